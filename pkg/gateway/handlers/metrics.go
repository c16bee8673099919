package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/relaykit/voicerelay/pkg/store"
)

// MetricsSource provides aggregate session totals.
type MetricsSource interface {
	SessionMetrics(ctx context.Context) (store.Metrics, error)
}

// MetricsHandler serves /v1/metrics.
type MetricsHandler struct {
	Store  MetricsSource
	Logger *slog.Logger
}

func (h MetricsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m, err := h.Store.SessionMetrics(r.Context())
	if err != nil {
		if h.Logger != nil {
			h.Logger.Error("session metrics", "error", err)
		}
		writeError(w, r, http.StatusInternalServerError, "failed to compute metrics")
		return
	}
	writeJSON(w, http.StatusOK, m)
}
