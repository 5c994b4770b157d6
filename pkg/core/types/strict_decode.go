package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/mail"
	"strings"
)

// StrictDecodeError is returned when strict request decoding fails.
// It includes an optional Param field suitable for API error reporting.
type StrictDecodeError struct {
	Param   string
	Message string
}

func (e *StrictDecodeError) Error() string {
	if e == nil {
		return ""
	}
	if e.Param != "" {
		return fmt.Sprintf("%s: %s", e.Param, e.Message)
	}
	return e.Message
}

func strictErr(param, msg string) error {
	return &StrictDecodeError{Param: param, Message: msg}
}

func decodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return strictErr("", fmt.Sprintf("invalid request body: %v", err))
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return strictErr("", "request body must contain a single JSON object")
	}
	return nil
}

// UnmarshalOutcomeRequestStrict decodes and validates a session outcome body.
func UnmarshalOutcomeRequestStrict(data []byte) (*OutcomeRequest, error) {
	var raw struct {
		DurationMinutes *int    `json:"durationMinutes"`
		Topic           *string `json:"topic"`
		PointsEarned    *int    `json:"pointsEarned"`
	}
	if err := decodeStrict(data, &raw); err != nil {
		return nil, err
	}
	if raw.DurationMinutes == nil {
		return nil, strictErr("durationMinutes", "durationMinutes is required")
	}
	if *raw.DurationMinutes < 0 {
		return nil, strictErr("durationMinutes", "durationMinutes must be >= 0")
	}
	if raw.PointsEarned == nil {
		return nil, strictErr("pointsEarned", "pointsEarned is required")
	}
	if *raw.PointsEarned < 1 {
		return nil, strictErr("pointsEarned", "pointsEarned must be >= 1")
	}
	topic := DefaultTopic
	if raw.Topic != nil {
		topic = strings.TrimSpace(*raw.Topic)
		if topic == "" {
			return nil, strictErr("topic", "topic must not be empty")
		}
	}
	return &OutcomeRequest{
		DurationMinutes: *raw.DurationMinutes,
		Topic:           topic,
		PointsEarned:    *raw.PointsEarned,
	}, nil
}

// UnmarshalRegisterRequestStrict decodes and validates a learner registration body.
func UnmarshalRegisterRequestStrict(data []byte) (*RegisterRequest, error) {
	var raw RegisterRequest
	if err := decodeStrict(data, &raw); err != nil {
		return nil, err
	}
	raw.Name = strings.TrimSpace(raw.Name)
	raw.Email = strings.ToLower(strings.TrimSpace(raw.Email))
	raw.SelectedVoice = strings.TrimSpace(raw.SelectedVoice)
	if raw.Name == "" {
		return nil, strictErr("name", "name is required")
	}
	if raw.Email == "" {
		return nil, strictErr("email", "email is required")
	}
	if _, err := mail.ParseAddress(raw.Email); err != nil {
		return nil, strictErr("email", "email is not a valid address")
	}
	if raw.Age < MinLearnerAge || raw.Age > MaxLearnerAge {
		return nil, strictErr("age", fmt.Sprintf("age must be between %d and %d", MinLearnerAge, MaxLearnerAge))
	}
	return &raw, nil
}

// UnmarshalProfileUpdateStrict decodes a profile update. At least one field
// must be present and none may be blank.
func UnmarshalProfileUpdateStrict(data []byte) (*ProfileUpdate, error) {
	var raw ProfileUpdate
	if err := decodeStrict(data, &raw); err != nil {
		return nil, err
	}
	if raw.Name == nil && raw.SelectedVoice == nil {
		return nil, strictErr("", "at least one of name or selectedVoice is required")
	}
	if raw.Name != nil {
		name := strings.TrimSpace(*raw.Name)
		if name == "" {
			return nil, strictErr("name", "name must not be empty")
		}
		raw.Name = &name
	}
	if raw.SelectedVoice != nil {
		voice := strings.TrimSpace(*raw.SelectedVoice)
		if voice == "" {
			return nil, strictErr("selectedVoice", "selectedVoice must not be empty")
		}
		raw.SelectedVoice = &voice
	}
	return &raw, nil
}
