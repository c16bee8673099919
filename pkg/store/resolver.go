package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/relaykit/voicerelay/pkg/gateway/live/agent"
)

// agentSource is the slice of Store the resolver needs; an interface so
// tests can substitute a fake.
type agentSource interface {
	GetAgent(ctx context.Context, id string) (Agent, error)
	FirstActiveAgent(ctx context.Context) (Agent, error)
	AgentKnowledge(ctx context.Context, agentID string) (string, error)
}

// AgentResolver resolves persisted agent profiles into session-ready
// configurations, folding the agent's knowledge documents into the system
// instruction. Implements agent.Resolver.
type AgentResolver struct {
	source          agentSource
	knowledgeLimit  int
	inputSampleRate int
}

func NewAgentResolver(s *Store, knowledgeCharLimit, inputSampleRate int) *AgentResolver {
	return &AgentResolver{
		source:          s,
		knowledgeLimit:  knowledgeCharLimit,
		inputSampleRate: inputSampleRate,
	}
}

func (r *AgentResolver) Resolve(ctx context.Context, agentID string) (agent.Config, error) {
	a, err := r.source.GetAgent(ctx, agentID)
	if errors.Is(err, ErrNotFound) {
		return agent.Config{}, agent.ErrNotFound
	}
	if err != nil {
		return agent.Config{}, fmt.Errorf("resolve agent %s: %w", agentID, err)
	}
	if !a.Active {
		return agent.Config{}, agent.ErrNotFound
	}
	return r.configFor(ctx, a)
}

func (r *AgentResolver) FirstActive(ctx context.Context) (agent.Config, error) {
	a, err := r.source.FirstActiveAgent(ctx)
	if errors.Is(err, ErrNotFound) {
		return agent.Config{}, agent.ErrNoActiveAgents
	}
	if err != nil {
		return agent.Config{}, fmt.Errorf("resolve default agent: %w", err)
	}
	return r.configFor(ctx, a)
}

func (r *AgentResolver) configFor(ctx context.Context, a Agent) (agent.Config, error) {
	knowledge, err := r.source.AgentKnowledge(ctx, a.ID)
	if err != nil {
		return agent.Config{}, fmt.Errorf("load knowledge for agent %s: %w", a.ID, err)
	}
	return agent.Config{
		ID:                    a.ID,
		Name:                  a.Name,
		SystemInstruction:     agent.WithKnowledge(a.SystemInstruction, knowledge, r.knowledgeLimit),
		Temperature:           a.Temperature,
		TopP:                  a.TopP,
		TopK:                  a.TopK,
		MaxOutputTokens:       a.MaxOutputTokens,
		Voice:                 a.Voice,
		Language:              a.Language,
		EnableAffectiveDialog: a.EnableAffectiveDialog,
		EnableProactiveAudio:  a.EnableProactiveAudio,
		ThinkingBudget:        a.ThinkingBudget,
		VADSensitivity:        a.VADSensitivity,
		InputSampleRate:       r.inputSampleRate,
	}, nil
}
