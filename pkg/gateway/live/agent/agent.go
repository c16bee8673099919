// Package agent defines the immutable per-session agent configuration and
// the resolver contract used to obtain it at session start.
package agent

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"
)

// ErrNotFound reports that no agent exists (or is active) for the given id.
var ErrNotFound = errors.New("agent not found")

// ErrNoActiveAgents reports that the resolver has no active agent to fall
// back to when the client did not name one.
var ErrNoActiveAgents = errors.New("no active agents")

// Config is an immutable snapshot of one agent profile, owned by the
// session dispatcher for the session's duration.
type Config struct {
	ID   string
	Name string

	// SystemInstruction is the persona text, already augmented with any
	// knowledge text (see WithKnowledge).
	SystemInstruction string

	Temperature     float64
	TopP            float64
	TopK            int
	MaxOutputTokens int

	Voice    string
	Language string

	EnableAffectiveDialog bool
	EnableProactiveAudio  bool
	ThinkingBudget        int

	// VADSensitivity is one of "low", "high", or "auto"/empty. Anything
	// other than low/high leaves the backend's own default in place.
	VADSensitivity string

	InputSampleRate int
}

// DefaultInputSampleRate is used when a profile does not set one.
const DefaultInputSampleRate = 16000

// Resolver turns an agent identifier into a Config. Implementations load
// profiles and knowledge documents from durable storage.
type Resolver interface {
	// Resolve returns the config for the named agent, or ErrNotFound.
	Resolve(ctx context.Context, agentID string) (Config, error)
	// FirstActive returns the config of the first active agent, or
	// ErrNoActiveAgents when none exists.
	FirstActive(ctx context.Context) (Config, error)
}

// TruncationMarker is appended whenever knowledge text is cut at the
// configured character ceiling, so truncation is never silent.
const TruncationMarker = "\n[knowledge truncated]"

// WithKnowledge appends knowledge text to a persona instruction, keeping
// at most charLimit characters of knowledge. Excess is truncated with an
// explicit marker. Empty knowledge leaves the instruction untouched.
func WithKnowledge(instruction, knowledge string, charLimit int) string {
	knowledge = strings.TrimSpace(knowledge)
	if knowledge == "" {
		return instruction
	}
	if charLimit > 0 && len(knowledge) > charLimit {
		// Back off to a rune boundary so the cut never leaves invalid UTF-8.
		cut := charLimit
		for cut > 0 && !utf8.RuneStart(knowledge[cut]) {
			cut--
		}
		knowledge = knowledge[:cut] + TruncationMarker
	}
	return instruction + "\n\nUse the following knowledge when answering:\n" + knowledge
}
