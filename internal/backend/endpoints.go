package backend

import (
	"context"
	"net/url"

	"github.com/ashureev/nutriplan/internal/domain"
)

// Backend endpoint paths.
const (
	EndpointGenerateMealPlan = "/generate-meal-plan"
	EndpointFollowUp         = "/follow-up"
	EndpointTweakMealPlan    = "/tweak-meal-plan"
	EndpointRegister         = "/register"
	EndpointToken            = "/token"
	EndpointCurrentUser      = "/user/me"
	EndpointCurrentMealPlan  = "/user/meal-plan"
)

// MealPlanResponse is returned by generate and tweak.
type MealPlanResponse struct {
	MealPlan string `json:"mealPlan"`
}

// FollowUpRequest carries the whole transcript.
type FollowUpRequest struct {
	Conversation []domain.ConversationTurn `json:"conversation"`
}

// FollowUpResponse is the assistant's reply.
type FollowUpResponse struct {
	Response string `json:"response"`
}

// TokenResponse is the OAuth2 password-grant answer.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type,omitempty"`
}

// StoredMealPlanResponse is the current plan of the logged-in user.
type StoredMealPlanResponse struct {
	MealPlan string `json:"meal_plan"`
}

// GenerateMealPlan requests a new plan.
func (c *Client) GenerateMealPlan(ctx context.Context, req domain.MealPlanRequest) (string, error) {
	var resp MealPlanResponse
	if err := c.Request(ctx, EndpointGenerateMealPlan, req, &resp); err != nil {
		return "", err
	}
	if resp.MealPlan == "" {
		return "", &ApplicationError{Message: "No meal plan in response"}
	}
	return resp.MealPlan, nil
}

// FollowUp sends the conversation and returns the assistant's reply.
func (c *Client) FollowUp(ctx context.Context, turns []domain.ConversationTurn) (string, error) {
	var resp FollowUpResponse
	if err := c.Request(ctx, EndpointFollowUp, FollowUpRequest{Conversation: turns}, &resp); err != nil {
		return "", err
	}
	if resp.Response == "" {
		return "", &ApplicationError{Message: "Invalid response format"}
	}
	return resp.Response, nil
}

// TweakMealPlan asks for a revision of the user's current plan.
func (c *Client) TweakMealPlan(ctx context.Context, req domain.TweakRequest) (string, error) {
	var resp MealPlanResponse
	if err := c.Request(ctx, EndpointTweakMealPlan, req, &resp); err != nil {
		return "", err
	}
	if resp.MealPlan == "" {
		return "", &ApplicationError{Message: "No meal plan in response"}
	}
	return resp.MealPlan, nil
}

// Register creates a user. The confirmation body is returned undecoded.
func (c *Client) Register(ctx context.Context, reg domain.Registration) (map[string]any, error) {
	var resp map[string]any
	if err := c.Request(ctx, EndpointRegister, reg, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Token exchanges credentials for an access token.
func (c *Client) Token(ctx context.Context, username, password string) (string, error) {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)
	form.Set("grant_type", "password")

	var resp TokenResponse
	if err := c.PostForm(ctx, EndpointToken, form, &resp); err != nil {
		return "", err
	}
	if resp.AccessToken == "" {
		return "", &ApplicationError{Message: "No access token in response"}
	}
	return resp.AccessToken, nil
}

// CurrentUser returns the profile of the token's owner.
func (c *Client) CurrentUser(ctx context.Context) (*domain.UserProfile, error) {
	var profile domain.UserProfile
	if err := c.Get(ctx, EndpointCurrentUser, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// CurrentMealPlan returns the stored plan of the token's owner, or "" if none.
func (c *Client) CurrentMealPlan(ctx context.Context) (string, error) {
	var resp StoredMealPlanResponse
	if err := c.Get(ctx, EndpointCurrentMealPlan, &resp); err != nil {
		return "", err
	}
	return resp.MealPlan, nil
}
