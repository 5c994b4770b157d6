package types

import "time"

// Profile is the learner profile served by GET /api/profile.
type Profile struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Name          string    `json:"name"`
	Age           int       `json:"age"`
	SelectedVoice string    `json:"selectedVoice,omitempty"`
	TotalPoints   int       `json:"totalPoints"`
	CreatedAt     time.Time `json:"createdAt"`
}

// ProfileResponse is the envelope for GET /api/profile.
type ProfileResponse struct {
	User Profile `json:"user"`
}

// RegisterRequest is the body for POST /api/auth/register.
type RegisterRequest struct {
	Name          string `json:"name"`
	Email         string `json:"email"`
	Age           int    `json:"age"`
	SelectedVoice string `json:"selectedVoice,omitempty"`
}

// Registration is returned once on learner registration. Token is not retrievable later.
type Registration struct {
	Token string  `json:"token"`
	User  Profile `json:"user"`
}

// ProfileUpdate is the body for PATCH /api/profile. Nil fields are left unchanged.
type ProfileUpdate struct {
	Name          *string `json:"name,omitempty"`
	SelectedVoice *string `json:"selectedVoice,omitempty"`
}

const (
	MinLearnerAge = 4
	MaxLearnerAge = 18
)
