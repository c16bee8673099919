// Package bridge adapts one streaming session to the conversational AI
// backend into a normalized event stream consumed by the session
// dispatcher. The backend is injected so tests can substitute a fake.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/relaykit/voicerelay/pkg/gateway/live/agent"
	"github.com/relaykit/voicerelay/pkg/gateway/live/usage"
)

const (
	speakFirstDirective = "Begin the conversation by greeting the user warmly and introducing yourself. Do not wait for the user to speak first."
	greetingPrompt      = "Greet the user now."
)

// SessionConfig is the fully resolved configuration handed to the backend
// when opening a streaming session. The system instruction already carries
// the fixed directives appended by the bridge.
type SessionConfig struct {
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

	// VADSensitivity "low" and "high" map to backend sensitivity overrides;
	// any other value leaves the backend default untouched.
	VADSensitivity string

	InputSampleRate int
}

// Backend opens streaming sessions to the AI service. One process-scoped
// instance is shared by every dispatcher.
type Backend interface {
	Connect(ctx context.Context, cfg SessionConfig) (Stream, error)
}

// Stream is one live backend session. Receive blocks until the next server
// message or a terminal error.
type Stream interface {
	SendAudio(data []byte, mimeType string) error
	SendText(text string, turnComplete bool) error
	Receive() (*ServerMessage, error)
	Close() error
}

// ServerMessage is the closed decode of one raw backend message. Fields are
// not mutually exclusive: a single message may carry audio, an interruption
// flag, transcripts, and turn completion at once, and each is inspected
// independently.
type ServerMessage struct {
	Audio            [][]byte
	Interrupted      bool
	TurnComplete     bool
	InputTranscript  string
	OutputTranscript string
	ErrorMessage     string
}

type EventType string

const (
	EventSessionStarted   EventType = "session_started"
	EventAudio            EventType = "audio"
	EventInterrupted      EventType = "interrupted"
	EventTranscriptInput  EventType = "transcript_input"
	EventTranscriptOutput EventType = "transcript_output"
	EventTurnComplete     EventType = "turn_complete"
	EventError            EventType = "error"
	EventSessionEnded     EventType = "session_ended"
)

// Event is one normalized outbound event, delivered to the dispatcher in
// backend arrival order.
type Event struct {
	Type    EventType
	AgentID string
	Audio   []byte
	Text    string
	Message string
}

// Bridge owns one backend stream and its byte counters.
type Bridge struct {
	agentID   string
	stream    Stream
	logger    *slog.Logger
	mimeType  string
	events    chan Event
	closeCh   chan struct{}
	closed    atomic.Bool
	closeOnce sync.Once

	inputBytes  atomic.Int64
	outputBytes atomic.Int64
}

// Create opens a backend session for the given agent, emits session_started,
// and sends the synthetic begin-speaking turn so the backend greets the user
// without waiting for audio.
func Create(ctx context.Context, backend Backend, cfg agent.Config, logger *slog.Logger) (*Bridge, error) {
	if backend == nil {
		return nil, fmt.Errorf("backend is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	sampleRate := cfg.InputSampleRate
	if sampleRate <= 0 {
		sampleRate = agent.DefaultInputSampleRate
	}

	stream, err := backend.Connect(ctx, sessionConfigFor(cfg, sampleRate))
	if err != nil {
		return nil, fmt.Errorf("connect backend session: %w", err)
	}

	b := &Bridge{
		agentID:  cfg.ID,
		stream:   stream,
		logger:   logger,
		mimeType: fmt.Sprintf("audio/pcm;rate=%d", sampleRate),
		events:   make(chan Event, 64),
		closeCh:  make(chan struct{}),
	}
	b.events <- Event{Type: EventSessionStarted, AgentID: cfg.ID}

	if err := stream.SendText(greetingPrompt, true); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("send greeting turn: %w", err)
	}

	go b.receiveLoop()
	return b, nil
}

func sessionConfigFor(cfg agent.Config, sampleRate int) SessionConfig {
	instruction := cfg.SystemInstruction + "\n\n" + speakFirstDirective
	if directive := languageDirective(cfg.Language); directive != "" {
		instruction += "\n" + directive
	}
	return SessionConfig{
		SystemInstruction:     instruction,
		Temperature:           cfg.Temperature,
		TopP:                  cfg.TopP,
		TopK:                  cfg.TopK,
		MaxOutputTokens:       cfg.MaxOutputTokens,
		Voice:                 cfg.Voice,
		Language:              cfg.Language,
		EnableAffectiveDialog: cfg.EnableAffectiveDialog,
		EnableProactiveAudio:  cfg.EnableProactiveAudio,
		ThinkingBudget:        cfg.ThinkingBudget,
		VADSensitivity:        strings.ToLower(strings.TrimSpace(cfg.VADSensitivity)),
		InputSampleRate:       sampleRate,
	}
}

func languageDirective(language string) string {
	language = strings.TrimSpace(language)
	if language == "" || strings.HasPrefix(strings.ToLower(language), "en") {
		return ""
	}
	return fmt.Sprintf("Always respond in %s, regardless of the language the user speaks in.", language)
}

// Events returns the normalized outbound event stream. The channel is
// closed when the backend session ends or the bridge is closed.
func (b *Bridge) Events() <-chan Event {
	return b.events
}

// AgentID returns the agent this bridge was created for.
func (b *Bridge) AgentID() string {
	return b.agentID
}

// SendAudio forwards one chunk of raw PCM audio as realtime input and
// counts its decoded size. It is a no-op once the bridge is closed.
func (b *Bridge) SendAudio(data []byte) error {
	if b.closed.Load() || len(data) == 0 {
		return nil
	}
	if err := b.stream.SendAudio(data, b.mimeType); err != nil {
		return fmt.Errorf("send realtime audio: %w", err)
	}
	b.inputBytes.Add(int64(len(data)))
	return nil
}

// Close terminates the backend session. It is idempotent; subsequent
// SendAudio calls become no-ops and no session_ended event is emitted for
// an owner-initiated close.
func (b *Bridge) Close() {
	b.closeOnce.Do(func() {
		b.closed.Store(true)
		close(b.closeCh)
		if err := b.stream.Close(); err != nil {
			b.logger.Debug("backend stream close", "agent_id", b.agentID, "error", err)
		}
	})
}

// Stats returns a snapshot of the byte counters. Safe at any time,
// including after Close.
func (b *Bridge) Stats() usage.Stats {
	return usage.Stats{
		InputBytes:  b.inputBytes.Load(),
		OutputBytes: b.outputBytes.Load(),
	}
}

func (b *Bridge) receiveLoop() {
	defer close(b.events)
	for {
		msg, err := b.stream.Receive()
		if err != nil {
			if b.closed.Load() {
				return
			}
			if !isNormalClose(err) {
				b.emit(Event{Type: EventError, Message: err.Error()})
			}
			b.emit(Event{Type: EventSessionEnded})
			return
		}
		b.handleMessage(msg)
	}
}

// handleMessage inspects every field of the decoded message independently;
// audio fragments are never skipped because another signal is present.
func (b *Bridge) handleMessage(msg *ServerMessage) {
	if msg == nil {
		return
	}
	for _, chunk := range msg.Audio {
		if len(chunk) == 0 {
			continue
		}
		b.outputBytes.Add(int64(len(chunk)))
		b.emit(Event{Type: EventAudio, Audio: chunk})
	}
	if msg.Interrupted {
		b.emit(Event{Type: EventInterrupted})
	}
	if msg.InputTranscript != "" {
		b.emit(Event{Type: EventTranscriptInput, Text: msg.InputTranscript})
	}
	if msg.OutputTranscript != "" {
		b.emit(Event{Type: EventTranscriptOutput, Text: msg.OutputTranscript})
	}
	if msg.TurnComplete {
		b.emit(Event{Type: EventTurnComplete})
	}
	if msg.ErrorMessage != "" {
		b.emit(Event{Type: EventError, Message: msg.ErrorMessage})
	}
}

func (b *Bridge) emit(ev Event) {
	select {
	case b.events <- ev:
	case <-b.closeCh:
	}
}

func isNormalClose(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, context.Canceled) {
		return true
	}
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
