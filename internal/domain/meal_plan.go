package domain

// PlanTypeTweaks marks a request that revises an existing diet.
const PlanTypeTweaks = "tweaks"

// MealPlanRequest is built fresh for every generate-meal-plan submission.
type MealPlanRequest struct {
	Username    string  `json:"username,omitempty"`
	Name        string  `json:"name,omitempty"`
	Age         int     `json:"age"`
	Height      float64 `json:"height"`
	Weight      float64 `json:"weight"`
	Goal        string  `json:"goal"`
	PlanType    string  `json:"planType"`
	CurrentDiet string  `json:"currentDiet"`
}

// TweakRequest asks the backend to revise the stored plan of a user.
type TweakRequest struct {
	Username    string `json:"username"`
	CurrentDiet string `json:"currentDiet"`
}
