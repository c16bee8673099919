// Package server wires the HTTP mux and middleware chain for the voice
// gateway.
package server

import (
	"log/slog"
	"net/http"

	"github.com/relaykit/voicerelay/pkg/gateway/config"
	"github.com/relaykit/voicerelay/pkg/gateway/handlers"
	"github.com/relaykit/voicerelay/pkg/gateway/live/agent"
	"github.com/relaykit/voicerelay/pkg/gateway/live/bridge"
	"github.com/relaykit/voicerelay/pkg/gateway/live/session"
	"github.com/relaykit/voicerelay/pkg/gateway/live/usage"
	"github.com/relaykit/voicerelay/pkg/gateway/mw"
)

// Deps are the wired collaborators. In production every store-shaped field
// is the shared *store.Store; tests substitute fakes.
type Deps struct {
	Backend bridge.Backend
	Agents  agent.Resolver
	Records session.RecordStore
	Usage   session.UsageReporter

	AgentAPI  handlers.AgentStore
	Documents handlers.DocumentStore
	Metrics   handlers.MetricsSource
	DB        handlers.Pinger
}

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux
	deps   Deps
}

func New(cfg config.Config, logger *slog.Logger, deps Deps) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:    cfg,
		logger: logger,
		mux:    http.NewServeMux(),
		deps:   deps,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.Handle("/healthz", handlers.HealthHandler{})
	s.mux.Handle("/readyz", handlers.ReadyHandler{DB: s.deps.DB})

	s.mux.Handle("/v1/voice", handlers.VoiceHandler{
		Config:  s.cfg,
		Logger:  s.logger,
		Backend: s.deps.Backend,
		Agents:  s.deps.Agents,
		Records: s.deps.Records,
		Usage:   s.deps.Usage,
		Rates: usage.RatesFor(s.cfg.InputSampleRate, s.cfg.OutputSampleRate,
			s.cfg.CostInputPerMinute, s.cfg.CostOutputPerMinute),
	})

	agents := handlers.AgentsHandler{Store: s.deps.AgentAPI, Logger: s.logger}
	s.mux.HandleFunc("POST /v1/agents", agents.Create)
	s.mux.HandleFunc("GET /v1/agents", agents.List)
	s.mux.HandleFunc("GET /v1/agents/{id}", agents.Get)
	s.mux.HandleFunc("PUT /v1/agents/{id}", agents.Update)
	s.mux.HandleFunc("DELETE /v1/agents/{id}", agents.Delete)

	documents := handlers.DocumentsHandler{
		Store:          s.deps.Documents,
		Logger:         s.logger,
		MaxUploadBytes: s.cfg.MaxUploadBytes,
	}
	s.mux.HandleFunc("POST /v1/agents/{id}/documents", documents.Upload)
	s.mux.HandleFunc("GET /v1/agents/{id}/documents", documents.List)
	s.mux.HandleFunc("DELETE /v1/agents/{id}/documents/{docID}", documents.Delete)

	s.mux.Handle("GET /v1/metrics", handlers.MetricsHandler{Store: s.deps.Metrics, Logger: s.logger})

	s.mux.Handle("/", handlers.NotFoundHandler{})
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.CORS(s.cfg, h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}
