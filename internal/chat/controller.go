// Package chat runs the follow-up conversation of a chat page visit.
package chat

import (
	"context"
	"errors"
	"html/template"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/ashureev/nutriplan/internal/domain"
	"github.com/ashureev/nutriplan/internal/render"
)

// Placeholder and error texts shown in the transcript.
const (
	TypingText = "Assistant is typing..."
	FailedText = "Error: Unable to get response. Please try again."
)

// ErrAwaitingResponse is returned when a message is sent before the previous reply arrived.
var ErrAwaitingResponse = errors.New("awaiting assistant response")

// State is the state of a Controller.
type State int

const (
	StateIdle State = iota
	StateAwaitingResponse
)

func (s State) String() string {
	if s == StateAwaitingResponse {
		return "awaiting_response"
	}
	return "idle"
}

// Kind classifies a rendered message.
type Kind string

const (
	KindPlan      Kind = "meal-plan"
	KindUser      Kind = "user-message"
	KindAssistant Kind = "assistant-message"
	KindLoading   Kind = "loading-message"
	KindError     Kind = "error-message"
)

// Message is one rendered entry of the transcript.
type Message struct {
	ID   string        `json:"id"`
	Kind Kind          `json:"kind"`
	HTML template.HTML `json:"html"`
}

// View displays the transcript.
type View interface {
	ShowMessage(msg Message)
	RemoveMessage(id string)
	SetInputEnabled(enabled bool)
}

// FollowUpper answers a conversation.
type FollowUpper interface {
	FollowUp(ctx context.Context, turns []domain.ConversationTurn) (string, error)
}

// Controller owns the conversation of one visit.
type Controller struct {
	api  FollowUpper
	view View

	mu    sync.Mutex
	conv  *domain.Conversation
	state State
	seq   int
}

// NewController seeds a conversation from the stored meal plan and shows the plan.
func NewController(api FollowUpper, view View, mealPlan string) *Controller {
	c := &Controller{
		api:  api,
		view: view,
		conv: domain.NewConversation(domain.DieticianPrompt, mealPlan),
	}
	if mealPlan != "" {
		c.view.ShowMessage(Message{ID: c.nextID(), Kind: KindPlan, HTML: render.Markdown(mealPlan)})
	}
	return c
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Transcript returns a copy of the conversation.
func (c *Controller) Transcript() []domain.ConversationTurn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conv.Turns()
}

// Send appends text as a user turn and asks the backend for a reply. Empty
// text is ignored. The controller returns to idle whatever the outcome.
func (c *Controller) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	c.mu.Lock()
	if c.state == StateAwaitingResponse {
		c.mu.Unlock()
		return ErrAwaitingResponse
	}
	c.state = StateAwaitingResponse
	c.conv.Append(domain.RoleUser, text)
	turns := c.conv.Turns()
	userID, loadingID := c.nextID(), c.nextID()
	c.mu.Unlock()

	c.view.SetInputEnabled(false)
	c.view.ShowMessage(Message{ID: userID, Kind: KindUser, HTML: render.Text("You: " + text)})
	c.view.ShowMessage(Message{ID: loadingID, Kind: KindLoading, HTML: render.Text(TypingText)})

	reply, err := c.api.FollowUp(ctx, turns)
	c.view.RemoveMessage(loadingID)

	c.mu.Lock()
	if err == nil {
		c.conv.Append(domain.RoleAssistant, reply)
	}
	replyID := c.nextID()
	c.state = StateIdle
	c.mu.Unlock()

	if err != nil {
		slog.Warn("Follow-up failed", "error", err)
		c.view.ShowMessage(Message{ID: replyID, Kind: KindError, HTML: render.Text(FailedText)})
	} else {
		c.view.ShowMessage(Message{ID: replyID, Kind: KindAssistant, HTML: render.Labeled("Assistant", reply)})
	}
	c.view.SetInputEnabled(true)
	return err
}

func (c *Controller) nextID() string {
	c.seq++
	return "msg-" + strconv.Itoa(c.seq)
}
