// Package protocol defines the JSON messages exchanged with voice clients
// over the persistent WebSocket connection. Every frame carries exactly one
// JSON object with a "type" discriminator.
package protocol

import (
	"encoding/json"
	"strings"
)

// DecodeError describes a client frame the gateway refused to process.
type DecodeError struct {
	Message string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func badRequest(message string) *DecodeError {
	return &DecodeError{Message: message}
}

// ClientStartSession asks the gateway to open a voice session. AgentID is
// optional; when empty the first active agent profile is used.
type ClientStartSession struct {
	Type    string `json:"type"`
	AgentID string `json:"agentId,omitempty"`
}

// ClientAudio carries one chunk of base64-encoded PCM16 mono microphone
// audio at the negotiated input sample rate.
type ClientAudio struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

// ClientEndSession asks the gateway to tear the current session down.
type ClientEndSession struct {
	Type string `json:"type"`
}

// DecodeClientMessage parses one inbound frame into its typed message.
// Unknown types and malformed JSON yield a *DecodeError.
func DecodeClientMessage(data []byte) (any, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, badRequest("invalid JSON message")
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return nil, badRequest("missing message type")
	}

	switch typ {
	case "start_session":
		var msg ClientStartSession
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid start_session message")
		}
		msg.AgentID = strings.TrimSpace(msg.AgentID)
		return msg, nil
	case "audio":
		var msg ClientAudio
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid audio message")
		}
		if strings.TrimSpace(msg.Data) == "" {
			return nil, badRequest("audio.data is required")
		}
		return msg, nil
	case "end_session":
		var msg ClientEndSession
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid end_session message")
		}
		return msg, nil
	default:
		return nil, badRequest("unknown message type: " + typ)
	}
}

type ServerSessionStarted struct {
	Type    string `json:"type"`
	AgentID string `json:"agentId"`
}

type ServerAudio struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

type ServerTurnComplete struct {
	Type string `json:"type"`
}

type ServerInterrupted struct {
	Type string `json:"type"`
}

type ServerTranscript struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type ServerSessionEnded struct {
	Type string `json:"type"`
}

type ServerError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func SessionStarted(agentID string) ServerSessionStarted {
	return ServerSessionStarted{Type: "session_started", AgentID: agentID}
}

func Audio(b64 string) ServerAudio {
	return ServerAudio{Type: "audio", Audio: b64}
}

func TurnComplete() ServerTurnComplete {
	return ServerTurnComplete{Type: "turn_complete"}
}

func Interrupted() ServerInterrupted {
	return ServerInterrupted{Type: "interrupted"}
}

func TranscriptInput(text string) ServerTranscript {
	return ServerTranscript{Type: "transcript_input", Text: text}
}

func TranscriptOutput(text string) ServerTranscript {
	return ServerTranscript{Type: "transcript_output", Text: text}
}

func SessionEnded() ServerSessionEnded {
	return ServerSessionEnded{Type: "session_ended"}
}

func Error(message string) ServerError {
	return ServerError{Type: "error", Message: message}
}
