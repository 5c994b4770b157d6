package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	TypeSessionUpdate          = "session.update"
	TypeInputAudioBufferAppend = "input_audio_buffer.append"

	TypeSessionCreated          = "session.created"
	TypeSessionUpdated          = "session.updated"
	TypeConversationItemCreated = "conversation.item.created"
	TypeResponseDone            = "response.done"
	TypeError                   = "error"

	TurnDetectionServerVAD = "server_vad"
	AudioFormatPCM16       = "pcm16"

	RoleAssistant = "assistant"
	RoleUser      = "user"

	DefaultTemperature             = 0.8
	DefaultMaxResponseOutputTokens = 4096

	MinTemperature             = 0.6
	MaxTemperature             = 1.2
	MaxResponseOutputTokensCap = 4096
)

type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badRequest(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_request", Message: message, Param: param}
}

type TurnDetection struct {
	Type string `json:"type"`
}

// SessionConfig is the voice-service session configuration sent once per connection.
type SessionConfig struct {
	TurnDetection           *TurnDetection `json:"turn_detection"`
	InputAudioFormat        string         `json:"input_audio_format"`
	OutputAudioFormat       string         `json:"output_audio_format"`
	Voice                   string         `json:"voice"`
	Instructions            string         `json:"instructions"`
	Temperature             float64        `json:"temperature"`
	MaxResponseOutputTokens int            `json:"max_response_output_tokens"`
}

// NewSessionConfig returns a config with server VAD, pcm16 audio and default sampling bounds.
func NewSessionConfig(voice, instructions string) SessionConfig {
	return SessionConfig{
		TurnDetection:           &TurnDetection{Type: TurnDetectionServerVAD},
		InputAudioFormat:        AudioFormatPCM16,
		OutputAudioFormat:       AudioFormatPCM16,
		Voice:                   voice,
		Instructions:            instructions,
		Temperature:             DefaultTemperature,
		MaxResponseOutputTokens: DefaultMaxResponseOutputTokens,
	}
}

type ClientSessionUpdate struct {
	Type    string        `json:"type"`
	Session SessionConfig `json:"session"`
}

func NewSessionUpdate(cfg SessionConfig) ClientSessionUpdate {
	return ClientSessionUpdate{Type: TypeSessionUpdate, Session: cfg}
}

// ClientAudioAppend carries one base64 pcm16 chunk of learner audio.
type ClientAudioAppend struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

func NewAudioAppend(audioB64 string) ClientAudioAppend {
	return ClientAudioAppend{Type: TypeInputAudioBufferAppend, Audio: audioB64}
}

func ValidateSessionConfig(cfg SessionConfig) error {
	if cfg.TurnDetection == nil || strings.TrimSpace(cfg.TurnDetection.Type) == "" {
		return badRequest("session.turn_detection.type is required", "turn_detection.type")
	}
	if strings.TrimSpace(cfg.InputAudioFormat) == "" {
		return badRequest("session.input_audio_format is required", "input_audio_format")
	}
	if strings.TrimSpace(cfg.OutputAudioFormat) == "" {
		return badRequest("session.output_audio_format is required", "output_audio_format")
	}
	if strings.TrimSpace(cfg.Voice) == "" {
		return badRequest("session.voice is required", "voice")
	}
	if strings.TrimSpace(cfg.Instructions) == "" {
		return badRequest("session.instructions is required", "instructions")
	}
	if cfg.Temperature < MinTemperature || cfg.Temperature > MaxTemperature {
		return badRequest(fmt.Sprintf("session.temperature must be between %.1f and %.1f", MinTemperature, MaxTemperature), "temperature")
	}
	if cfg.MaxResponseOutputTokens <= 0 || cfg.MaxResponseOutputTokens > MaxResponseOutputTokensCap {
		return badRequest(fmt.Sprintf("session.max_response_output_tokens must be in 1..%d", MaxResponseOutputTokensCap), "max_response_output_tokens")
	}
	return nil
}

// ServerEvent is a decoded inbound frame.
type ServerEvent interface {
	EventType() string
}

type ConversationItem struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	Role   string `json:"role"`
	Status string `json:"status,omitempty"`
}

type ConversationItemCreated struct {
	Type           string           `json:"type"`
	EventID        string           `json:"event_id,omitempty"`
	PreviousItemID string           `json:"previous_item_id,omitempty"`
	Item           ConversationItem `json:"item"`
}

func (ConversationItemCreated) EventType() string { return TypeConversationItemCreated }

// FromAssistant reports whether the created item was produced by the tutor.
func (e ConversationItemCreated) FromAssistant() bool {
	return e.Item.Role == RoleAssistant
}

type ResponseInfo struct {
	ID     string `json:"id"`
	Status string `json:"status,omitempty"`
}

type ResponseDone struct {
	Type     string       `json:"type"`
	EventID  string       `json:"event_id,omitempty"`
	Response ResponseInfo `json:"response"`
}

func (ResponseDone) EventType() string { return TypeResponseDone }

type ErrorDetail struct {
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Param   string `json:"param,omitempty"`
}

type ServerError struct {
	Type    string      `json:"type"`
	EventID string      `json:"event_id,omitempty"`
	Error   ErrorDetail `json:"error"`
}

func (ServerError) EventType() string { return TypeError }

// Message returns a display string for the error, falling back to its code.
func (e ServerError) Message() string {
	if msg := strings.TrimSpace(e.Error.Message); msg != "" {
		return msg
	}
	if e.Error.Code != "" {
		return e.Error.Code
	}
	return "voice service error"
}

type SessionAck struct {
	Type    string        `json:"type"`
	EventID string        `json:"event_id,omitempty"`
	Session SessionConfig `json:"session"`
}

func (e SessionAck) EventType() string { return e.Type }

// UnknownEvent preserves frames whose type is not modeled.
type UnknownEvent struct {
	Type string
	Raw  json.RawMessage
}

func (e UnknownEvent) EventType() string { return e.Type }

func DecodeServerEvent(data []byte) (ServerEvent, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, badRequest("invalid json frame", "")
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return nil, badRequest("missing type", "type")
	}

	switch typ {
	case TypeConversationItemCreated:
		var ev ConversationItemCreated
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, badRequest("invalid conversation.item.created", "")
		}
		return ev, nil
	case TypeResponseDone:
		var ev ResponseDone
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, badRequest("invalid response.done", "")
		}
		return ev, nil
	case TypeError:
		var ev ServerError
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, badRequest("invalid error event", "")
		}
		return ev, nil
	case TypeSessionCreated, TypeSessionUpdated:
		var ev SessionAck
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, badRequest("invalid "+typ, "")
		}
		return ev, nil
	default:
		return UnknownEvent{Type: typ, Raw: append(json.RawMessage(nil), data...)}, nil
	}
}
