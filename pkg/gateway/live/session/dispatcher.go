// Package session implements the per-connection voice session dispatcher:
// a single-goroutine actor that owns the session state machine, mediates
// between the client transport and the AI backend bridge, and persists
// session records at the session-end boundaries.
package session

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"time"

	"github.com/relaykit/voicerelay/pkg/gateway/live/agent"
	"github.com/relaykit/voicerelay/pkg/gateway/live/bridge"
	"github.com/relaykit/voicerelay/pkg/gateway/live/protocol"
	"github.com/relaykit/voicerelay/pkg/gateway/live/usage"
)

// State is the lifecycle phase of one client session.
type State string

const (
	StateIdle       State = "IDLE"
	StateConnecting State = "CONNECTING"
	StateGreeting   State = "GREETING"
	StateListening  State = "LISTENING"
	StateClosing    State = "CLOSING"
	StateClosed     State = "CLOSED"
)

// Status is the terminal status written to the persisted session record.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// TranscriptEntry is one line of the session transcript.
type TranscriptEntry struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// FinalizeParams carries everything written to a session record when the
// session ends.
type FinalizeParams struct {
	EndedAt         time.Time
	DurationSeconds float64
	EstimatedCost   float64
	Status          Status
	Transcript      []TranscriptEntry
}

// RecordStore persists session metadata. It is touched only at the
// session-start and session-end boundaries.
type RecordStore interface {
	CreateRecord(ctx context.Context, agentID string) (recordID string, startedAt time.Time, err error)
	FinalizeRecord(ctx context.Context, recordID string, params FinalizeParams) error
}

// UsageRecord summarizes one finished session for external billing.
type UsageRecord struct {
	RecordID      string
	AgentID       string
	InputSeconds  float64
	OutputSeconds float64
	EstimatedCost float64
}

// UsageReporter forwards per-session usage to a billing system. Optional;
// failures must never affect the session.
type UsageReporter interface {
	ReportSessionUsage(ctx context.Context, rec UsageRecord) error
}

// ClientConn is the outbound half of the client transport.
type ClientConn interface {
	WriteJSON(v any) error
}

// InboundFrame is one raw frame from the client transport. A non-nil Err
// signals a transport failure; a closed inbound channel signals a clean
// transport close.
type InboundFrame struct {
	Data []byte
	Err  error
}

// clientSession is the per-connection mutable state, owned exclusively by
// the dispatcher goroutine.
type clientSession struct {
	state      State
	agentID    string
	recordID   string
	startedAt  time.Time
	transcript []TranscriptEntry
	bridge     *bridge.Bridge
}

type createResult struct {
	gen    int
	bridge *bridge.Bridge
	err    error
}

type Dependencies struct {
	Client    ClientConn
	Logger    *slog.Logger
	Backend   bridge.Backend
	Agents    agent.Resolver
	Records   RecordStore
	Usage     UsageReporter
	Rates     usage.Rates
	SessionID string
	Now       func() time.Time
}

// Dispatcher is the per-connection actor. All methods below Run are invoked
// only from the Run goroutine; there is no shared mutable state across
// sessions.
type Dispatcher struct {
	client    ClientConn
	logger    *slog.Logger
	backend   bridge.Backend
	agents    agent.Resolver
	records   RecordStore
	usage     UsageReporter
	rates     usage.Rates
	sessionID string
	now       func() time.Time

	sess   clientSession
	events <-chan bridge.Event

	// createGen tags the latest wanted bridge creation; results carrying a
	// stale generation are closed on arrival without being used.
	createGen      int
	pendingCreates int
	// abortPending records that the transport closed while a creation was
	// still in flight; the late-arriving bridge is closed immediately and
	// the record finalized as an error.
	abortPending  bool
	createResults chan createResult
}

func New(deps Dependencies) *Dispatcher {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Dispatcher{
		client:        deps.Client,
		logger:        deps.Logger,
		backend:       deps.Backend,
		agents:        deps.Agents,
		records:       deps.Records,
		usage:         deps.Usage,
		rates:         deps.Rates,
		sessionID:     deps.SessionID,
		now:           deps.Now,
		sess:          clientSession{state: StateIdle},
		createResults: make(chan createResult, 4),
	}
}

// State returns the current lifecycle state. Intended for the owning
// handler after Run returns.
func (d *Dispatcher) State() State {
	return d.sess.state
}

// Run drives the session until the transport closes and every in-flight
// bridge creation has settled. Exactly one of {inbound frame, creation
// result, bridge event} is processed at a time.
func (d *Dispatcher) Run(ctx context.Context, inbound <-chan InboundFrame) {
	done := ctx.Done()
	for d.sess.state != StateClosed {
		select {
		case frame, ok := <-inbound:
			if !ok {
				inbound = nil
				d.handleTransportClose(ctx)
				continue
			}
			if frame.Err != nil {
				d.handleTransportError(ctx, frame.Err)
				continue
			}
			d.handleClientFrame(ctx, frame.Data)
		case res := <-d.createResults:
			d.handleCreateResult(ctx, res)
		case ev, ok := <-d.events:
			if !ok {
				d.events = nil
				continue
			}
			d.handleBridgeEvent(ctx, ev)
		case <-done:
			done = nil
			d.handleTransportClose(ctx)
		}
	}
}

func (d *Dispatcher) handleClientFrame(ctx context.Context, data []byte) {
	msg, err := protocol.DecodeClientMessage(data)
	if err != nil {
		d.send(protocol.Error(err.Error()))
		return
	}
	switch m := msg.(type) {
	case protocol.ClientStartSession:
		d.handleStartSession(ctx, m)
	case protocol.ClientAudio:
		d.handleAudio(m)
	case protocol.ClientEndSession:
		d.handleEndSession(ctx)
	}
}

func (d *Dispatcher) handleStartSession(ctx context.Context, msg protocol.ClientStartSession) {
	switch d.sess.state {
	case StateConnecting, StateGreeting, StateListening:
		// Restart: tear the current session down, then start fresh. The
		// reset matters: if resolution fails below, the session must be
		// idle, not half torn down.
		d.teardown(ctx, StatusCompleted, false)
		d.sess = clientSession{state: StateIdle}
	case StateClosing, StateClosed:
		return
	}

	cfg, err := d.resolveAgent(ctx, msg.AgentID)
	if err != nil {
		d.send(protocol.Error(resolutionErrorMessage(err)))
		return
	}

	recordID, startedAt, err := d.records.CreateRecord(ctx, cfg.ID)
	if err != nil {
		// Persistence failures never abort the voice session.
		d.logger.Error("create session record", "session_id", d.sessionID, "agent_id", cfg.ID, "error", err)
		recordID = ""
		startedAt = d.now()
	}

	d.sess = clientSession{
		state:     StateConnecting,
		agentID:   cfg.ID,
		recordID:  recordID,
		startedAt: startedAt,
	}

	d.createGen++
	gen := d.createGen
	d.pendingCreates++
	go func() {
		b, err := bridge.Create(ctx, d.backend, cfg, d.logger)
		d.createResults <- createResult{gen: gen, bridge: b, err: err}
	}()
}

func (d *Dispatcher) resolveAgent(ctx context.Context, agentID string) (agent.Config, error) {
	if agentID != "" {
		return d.agents.Resolve(ctx, agentID)
	}
	return d.agents.FirstActive(ctx)
}

func resolutionErrorMessage(err error) string {
	switch {
	case errors.Is(err, agent.ErrNoActiveAgents):
		return "No active agents found"
	case errors.Is(err, agent.ErrNotFound):
		return "Agent not found"
	default:
		return "Failed to resolve agent"
	}
}

func (d *Dispatcher) handleAudio(msg protocol.ClientAudio) {
	switch d.sess.state {
	case StateListening:
		data, err := base64.StdEncoding.DecodeString(msg.Data)
		if err != nil {
			d.send(protocol.Error("invalid audio payload"))
			return
		}
		if err := d.sess.bridge.SendAudio(data); err != nil {
			d.logger.Warn("forward audio", "session_id", d.sessionID, "error", err)
			d.send(protocol.Error("failed to forward audio"))
		}
	case StateConnecting, StateGreeting:
		// Backend not ready, or the greeting must not be interrupted.
		// Dropped silently; never forwarded, never counted.
	default:
		d.send(protocol.Error("No active session"))
	}
}

func (d *Dispatcher) handleEndSession(ctx context.Context) {
	switch d.sess.state {
	case StateConnecting, StateGreeting, StateListening:
		d.teardown(ctx, StatusCompleted, true)
		d.sess.state = StateIdle
	default:
		d.send(protocol.Error("No active session"))
	}
}

func (d *Dispatcher) handleCreateResult(ctx context.Context, res createResult) {
	d.pendingCreates--

	if res.gen != d.createGen {
		// A restart or teardown superseded this creation; its record was
		// already finalized. Just make sure the backend session dies.
		if res.bridge != nil {
			res.bridge.Close()
		}
		d.maybeFinishClosing(ctx)
		return
	}

	if d.abortPending {
		// Transport closed while this creation was in flight.
		if res.bridge != nil {
			res.bridge.Close()
		}
		d.finalizeRecord(ctx, StatusError, usage.Stats{})
		d.maybeFinishClosing(ctx)
		return
	}

	if res.err != nil {
		d.logger.Error("bridge creation failed", "session_id", d.sessionID, "agent_id", d.sess.agentID, "error", res.err)
		d.send(protocol.Error("Failed to start AI session"))
		d.finalizeRecord(ctx, StatusError, usage.Stats{})
		d.sess.state = StateIdle
		return
	}

	d.sess.bridge = res.bridge
	d.events = res.bridge.Events()
	d.sess.state = StateGreeting
}

// maybeFinishClosing completes the CLOSING to CLOSED transition once every
// in-flight bridge creation has settled. Any record still open at that
// point never got a bridge and is finalized as an error.
func (d *Dispatcher) maybeFinishClosing(ctx context.Context) {
	if d.sess.state != StateClosing || d.pendingCreates > 0 {
		return
	}
	d.finalizeRecord(ctx, StatusError, usage.Stats{})
	d.sess.state = StateClosed
}

func (d *Dispatcher) handleBridgeEvent(ctx context.Context, ev bridge.Event) {
	switch ev.Type {
	case bridge.EventSessionStarted:
		d.send(protocol.SessionStarted(ev.AgentID))
	case bridge.EventAudio:
		d.send(protocol.Audio(base64.StdEncoding.EncodeToString(ev.Audio)))
	case bridge.EventInterrupted:
		d.send(protocol.Interrupted())
	case bridge.EventTranscriptInput:
		d.appendTranscript("user", ev.Text)
		d.send(protocol.TranscriptInput(ev.Text))
	case bridge.EventTranscriptOutput:
		d.appendTranscript("assistant", ev.Text)
		d.send(protocol.TranscriptOutput(ev.Text))
	case bridge.EventTurnComplete:
		if d.sess.state == StateGreeting {
			d.sess.state = StateListening
		}
		d.send(protocol.TurnComplete())
	case bridge.EventError:
		d.send(protocol.Error(ev.Message))
	case bridge.EventSessionEnded:
		// Backend hung up on its own initiative.
		d.teardown(ctx, StatusCompleted, true)
		d.sess.state = StateIdle
	}
}

func (d *Dispatcher) handleTransportClose(ctx context.Context) {
	switch d.sess.state {
	case StateClosing, StateClosed:
		return
	}
	if d.pendingCreates > 0 {
		d.abortPending = true
		d.sess.state = StateClosing
		return
	}
	if d.sess.bridge != nil {
		d.teardown(ctx, StatusCompleted, false)
	} else if d.sess.recordID != "" {
		// Orphan record: created before any bridge existed.
		d.finalizeRecord(ctx, StatusError, usage.Stats{})
	}
	d.sess.state = StateClosed
}

func (d *Dispatcher) handleTransportError(ctx context.Context, err error) {
	switch d.sess.state {
	case StateClosing, StateClosed:
		return
	}
	d.logger.Warn("transport error", "session_id", d.sessionID, "error", err)
	if d.pendingCreates > 0 {
		d.abortPending = true
		d.sess.state = StateClosing
		return
	}
	d.teardown(ctx, StatusError, false)
	d.sess.state = StateClosed
}

// teardown closes the bridge (if any), finalizes the session record exactly
// once, and optionally notifies the client. It is idempotent. Any in-flight
// bridge creation is invalidated: its result will arrive with a stale
// generation and be closed on sight.
func (d *Dispatcher) teardown(ctx context.Context, status Status, notifyClient bool) {
	if d.pendingCreates > 0 {
		d.createGen++
	}
	var stats usage.Stats
	if d.sess.bridge != nil {
		stats = d.sess.bridge.Stats()
		d.sess.bridge.Close()
		d.sess.bridge = nil
		d.events = nil
	}
	d.finalizeRecord(ctx, status, stats)
	if notifyClient {
		d.send(protocol.SessionEnded())
	}
}

func (d *Dispatcher) finalizeRecord(ctx context.Context, status Status, stats usage.Stats) {
	transcript := d.sess.transcript
	d.sess.transcript = nil
	if d.sess.recordID == "" {
		return
	}
	recordID := d.sess.recordID
	d.sess.recordID = ""

	endedAt := d.now()
	params := FinalizeParams{
		EndedAt:         endedAt,
		DurationSeconds: endedAt.Sub(d.sess.startedAt).Seconds(),
		EstimatedCost:   d.rates.Cost(stats),
		Status:          status,
		Transcript:      transcript,
	}
	if err := d.records.FinalizeRecord(ctx, recordID, params); err != nil {
		d.logger.Error("finalize session record", "session_id", d.sessionID, "record_id", recordID, "error", err)
	}

	if d.usage != nil && (stats.InputBytes > 0 || stats.OutputBytes > 0) {
		rec := UsageRecord{
			RecordID:      recordID,
			AgentID:       d.sess.agentID,
			InputSeconds:  d.rates.InputSeconds(stats),
			OutputSeconds: d.rates.OutputSeconds(stats),
			EstimatedCost: params.EstimatedCost,
		}
		if err := d.usage.ReportSessionUsage(ctx, rec); err != nil {
			d.logger.Error("report session usage", "session_id", d.sessionID, "record_id", recordID, "error", err)
		}
	}
}

func (d *Dispatcher) appendTranscript(role, text string) {
	d.sess.transcript = append(d.sess.transcript, TranscriptEntry{
		Role:      role,
		Text:      text,
		Timestamp: d.now(),
	})
}

func (d *Dispatcher) send(v any) {
	if err := d.client.WriteJSON(v); err != nil {
		d.logger.Debug("write to client", "session_id", d.sessionID, "error", err)
	}
}
