package domain

// Role identifies the speaker of a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// DieticianPrompt seeds every conversation.
const DieticianPrompt = "You are a dietician that should be polite and helpful."

// ConversationTurn is a single chat message entry.
type ConversationTurn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Conversation is an append-only chat transcript.
type Conversation struct {
	turns []ConversationTurn
}

// NewConversation returns a transcript seeded with the system prompt and,
// when mealPlan is non-empty, the plan as the first assistant turn.
func NewConversation(systemPrompt, mealPlan string) *Conversation {
	c := &Conversation{}
	c.Append(RoleSystem, systemPrompt)
	if mealPlan != "" {
		c.Append(RoleAssistant, mealPlan)
	}
	return c
}

// Append adds a turn at the end of the transcript.
func (c *Conversation) Append(role Role, content string) {
	c.turns = append(c.turns, ConversationTurn{Role: role, Content: content})
}

// Turns returns a copy of the transcript in chronological order.
func (c *Conversation) Turns() []ConversationTurn {
	out := make([]ConversationTurn, len(c.turns))
	copy(out, c.turns)
	return out
}

// Len returns the number of turns.
func (c *Conversation) Len() int {
	return len(c.turns)
}

// Last returns the most recent turn.
func (c *Conversation) Last() (ConversationTurn, bool) {
	if len(c.turns) == 0 {
		return ConversationTurn{}, false
	}
	return c.turns[len(c.turns)-1], true
}
