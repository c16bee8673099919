package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/relaykit/voicerelay/pkg/store"
)

// AgentStore is the slice of the store the agents API needs.
type AgentStore interface {
	CreateAgent(ctx context.Context, a store.Agent) (store.Agent, error)
	GetAgent(ctx context.Context, id string) (store.Agent, error)
	ListAgents(ctx context.Context) ([]store.Agent, error)
	UpdateAgent(ctx context.Context, a store.Agent) (store.Agent, error)
	DeleteAgent(ctx context.Context, id string) error
}

// AgentsHandler serves the /v1/agents CRUD API.
type AgentsHandler struct {
	Store  AgentStore
	Logger *slog.Logger
}

type agentRequest struct {
	Name                  string  `json:"name"`
	SystemInstruction     string  `json:"systemInstruction"`
	Temperature           float64 `json:"temperature"`
	TopP                  float64 `json:"topP"`
	TopK                  int     `json:"topK"`
	MaxOutputTokens       int     `json:"maxOutputTokens"`
	Voice                 string  `json:"voice"`
	Language              string  `json:"language"`
	EnableAffectiveDialog bool    `json:"enableAffectiveDialog"`
	EnableProactiveAudio  bool    `json:"enableProactiveAudio"`
	ThinkingBudget        int     `json:"thinkingBudget"`
	VADSensitivity        string  `json:"vadSensitivity"`
	Active                *bool   `json:"active"`
}

func (req agentRequest) validate() string {
	if strings.TrimSpace(req.Name) == "" {
		return "name is required"
	}
	if req.Temperature < 0 || req.Temperature > 2 {
		return "temperature must be between 0 and 2"
	}
	if req.TopP < 0 || req.TopP > 1 {
		return "topP must be between 0 and 1"
	}
	switch strings.ToLower(strings.TrimSpace(req.VADSensitivity)) {
	case "", "auto", "low", "high":
	default:
		return "vadSensitivity must be one of auto|low|high"
	}
	return ""
}

func (req agentRequest) apply(a store.Agent) store.Agent {
	a.Name = strings.TrimSpace(req.Name)
	a.SystemInstruction = req.SystemInstruction
	a.Temperature = req.Temperature
	a.TopP = req.TopP
	a.TopK = req.TopK
	a.MaxOutputTokens = req.MaxOutputTokens
	a.Voice = strings.TrimSpace(req.Voice)
	a.Language = strings.TrimSpace(req.Language)
	a.EnableAffectiveDialog = req.EnableAffectiveDialog
	a.EnableProactiveAudio = req.EnableProactiveAudio
	a.ThinkingBudget = req.ThinkingBudget
	a.VADSensitivity = strings.ToLower(strings.TrimSpace(req.VADSensitivity))
	if req.Active != nil {
		a.Active = *req.Active
	}
	return a
}

func (h AgentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req agentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, r, http.StatusBadRequest, msg)
		return
	}

	a := req.apply(store.Agent{Active: true})
	created, err := h.Store.CreateAgent(r.Context(), a)
	if err != nil {
		h.logError(r, "create agent", err)
		writeError(w, r, http.StatusInternalServerError, "failed to create agent")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h AgentsHandler) List(w http.ResponseWriter, r *http.Request) {
	agents, err := h.Store.ListAgents(r.Context())
	if err != nil {
		h.logError(r, "list agents", err)
		writeError(w, r, http.StatusInternalServerError, "failed to list agents")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"agents": agents})
}

func (h AgentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	a, err := h.Store.GetAgent(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "Agent not found")
		return
	}
	if err != nil {
		h.logError(r, "get agent", err)
		writeError(w, r, http.StatusInternalServerError, "failed to load agent")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h AgentsHandler) Update(w http.ResponseWriter, r *http.Request) {
	existing, err := h.Store.GetAgent(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "Agent not found")
		return
	}
	if err != nil {
		h.logError(r, "load agent for update", err)
		writeError(w, r, http.StatusInternalServerError, "failed to load agent")
		return
	}

	var req agentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, r, http.StatusBadRequest, msg)
		return
	}

	updated, err := h.Store.UpdateAgent(r.Context(), req.apply(existing))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "Agent not found")
		return
	}
	if err != nil {
		h.logError(r, "update agent", err)
		writeError(w, r, http.StatusInternalServerError, "failed to update agent")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h AgentsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	err := h.Store.DeleteAgent(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "Agent not found")
		return
	}
	if err != nil {
		h.logError(r, "delete agent", err)
		writeError(w, r, http.StatusInternalServerError, "failed to delete agent")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h AgentsHandler) logError(r *http.Request, msg string, err error) {
	if h.Logger != nil {
		h.Logger.Error(msg, "path", r.URL.Path, "error", err)
	}
}
