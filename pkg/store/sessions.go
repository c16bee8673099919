package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/relaykit/voicerelay/pkg/gateway/live/session"
)

// SessionRecord is one persisted voice session.
type SessionRecord struct {
	ID              string                    `json:"id"`
	AgentID         string                    `json:"agentId"`
	Status          string                    `json:"status"`
	StartedAt       time.Time                 `json:"startedAt"`
	EndedAt         *time.Time                `json:"endedAt,omitempty"`
	DurationSeconds float64                   `json:"durationSeconds"`
	EstimatedCost   float64                   `json:"estimatedCost"`
	Transcript      []session.TranscriptEntry `json:"transcript"`
}

// CreateRecord inserts an active session row. Implements
// session.RecordStore.
func (s *Store) CreateRecord(ctx context.Context, agentID string) (string, time.Time, error) {
	id := newID("sess")
	startedAt := time.Now().UTC()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessions (id, agent_id, status, started_at)
		VALUES ($1, $2, $3, $4)`,
		id, agentID, string(session.StatusActive), startedAt)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("insert session record: %w", err)
	}
	return id, startedAt, nil
}

// FinalizeRecord writes the terminal fields of a session row. Implements
// session.RecordStore.
func (s *Store) FinalizeRecord(ctx context.Context, recordID string, params session.FinalizeParams) error {
	transcript := params.Transcript
	if transcript == nil {
		transcript = []session.TranscriptEntry{}
	}
	raw, err := json.Marshal(transcript)
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE sessions SET status = $2, ended_at = $3, duration_seconds = $4,
			estimated_cost = $5, transcript = $6
		WHERE id = $1`,
		recordID, string(params.Status), params.EndedAt.UTC(),
		params.DurationSeconds, params.EstimatedCost, raw)
	if err != nil {
		return fmt.Errorf("finalize session record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListSessions returns the most recent session records, newest first.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]SessionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, agent_id, status, started_at, ended_at, duration_seconds,
			estimated_cost, transcript
		FROM sessions ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	records := []SessionRecord{}
	for rows.Next() {
		var rec SessionRecord
		var raw []byte
		err := rows.Scan(&rec.ID, &rec.AgentID, &rec.Status, &rec.StartedAt,
			&rec.EndedAt, &rec.DurationSeconds, &rec.EstimatedCost, &raw)
		if err != nil {
			return nil, fmt.Errorf("scan session record: %w", err)
		}
		if err := json.Unmarshal(raw, &rec.Transcript); err != nil {
			return nil, fmt.Errorf("decode transcript: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Metrics are aggregate totals over all persisted sessions.
type Metrics struct {
	TotalSessions        int64   `json:"totalSessions"`
	CompletedSessions    int64   `json:"completedSessions"`
	ErrorSessions        int64   `json:"errorSessions"`
	TotalDurationSeconds float64 `json:"totalDurationSeconds"`
	TotalEstimatedCost   float64 `json:"totalEstimatedCost"`
}

func (s *Store) SessionMetrics(ctx context.Context) (Metrics, error) {
	var m Metrics
	err := s.pool.QueryRow(ctx, `
		SELECT count(*),
			count(*) FILTER (WHERE status = 'completed'),
			count(*) FILTER (WHERE status = 'error'),
			coalesce(sum(duration_seconds), 0),
			coalesce(sum(estimated_cost), 0)
		FROM sessions`).Scan(&m.TotalSessions, &m.CompletedSessions,
		&m.ErrorSessions, &m.TotalDurationSeconds, &m.TotalEstimatedCost)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return Metrics{}, fmt.Errorf("session metrics: %w", err)
	}
	return m, nil
}
