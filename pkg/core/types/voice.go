package types

// Voice is one entry of the voice catalog served by GET /api/voices.
type Voice struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	MinAge      int    `json:"minAge,omitempty"`
	MaxAge      int    `json:"maxAge,omitempty"`
}

// SuitableFor reports whether the voice is offered to a learner of the given age.
// Zero bounds are open.
func (v Voice) SuitableFor(age int) bool {
	if v.MinAge > 0 && age < v.MinAge {
		return false
	}
	if v.MaxAge > 0 && age > v.MaxAge {
		return false
	}
	return true
}

// VoicesResponse is the envelope for GET /api/voices.
type VoicesResponse struct {
	Voices []Voice `json:"voices"`
}

// DefaultVoice is used when a learner has not picked a voice.
const DefaultVoice = "shimmer"
