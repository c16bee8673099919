package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Agent is a persisted agent profile. JSON tags match the public API shape.
type Agent struct {
	ID                    string    `json:"id"`
	Name                  string    `json:"name"`
	SystemInstruction     string    `json:"systemInstruction"`
	Temperature           float64   `json:"temperature"`
	TopP                  float64   `json:"topP"`
	TopK                  int       `json:"topK"`
	MaxOutputTokens       int       `json:"maxOutputTokens"`
	Voice                 string    `json:"voice"`
	Language              string    `json:"language"`
	EnableAffectiveDialog bool      `json:"enableAffectiveDialog"`
	EnableProactiveAudio  bool      `json:"enableProactiveAudio"`
	ThinkingBudget        int       `json:"thinkingBudget"`
	VADSensitivity        string    `json:"vadSensitivity"`
	Active                bool      `json:"active"`
	CreatedAt             time.Time `json:"createdAt"`
	UpdatedAt             time.Time `json:"updatedAt"`
}

const agentColumns = `id, name, system_instruction, temperature, top_p, top_k,
	max_output_tokens, voice, language, enable_affective_dialog,
	enable_proactive_audio, thinking_budget, vad_sensitivity, active,
	created_at, updated_at`

func scanAgent(row pgx.Row) (Agent, error) {
	var a Agent
	err := row.Scan(&a.ID, &a.Name, &a.SystemInstruction, &a.Temperature,
		&a.TopP, &a.TopK, &a.MaxOutputTokens, &a.Voice, &a.Language,
		&a.EnableAffectiveDialog, &a.EnableProactiveAudio, &a.ThinkingBudget,
		&a.VADSensitivity, &a.Active, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Agent{}, ErrNotFound
	}
	if err != nil {
		return Agent{}, fmt.Errorf("scan agent: %w", err)
	}
	return a, nil
}

// CreateAgent inserts a new profile, assigning its identifier and
// timestamps.
func (s *Store) CreateAgent(ctx context.Context, a Agent) (Agent, error) {
	a.ID = newID("ag")
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now

	_, err := s.pool.Exec(ctx, `
		INSERT INTO agents (id, name, system_instruction, temperature, top_p,
			top_k, max_output_tokens, voice, language, enable_affective_dialog,
			enable_proactive_audio, thinking_budget, vad_sensitivity, active,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		a.ID, a.Name, a.SystemInstruction, a.Temperature, a.TopP, a.TopK,
		a.MaxOutputTokens, a.Voice, a.Language, a.EnableAffectiveDialog,
		a.EnableProactiveAudio, a.ThinkingBudget, a.VADSensitivity, a.Active,
		a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return Agent{}, fmt.Errorf("insert agent: %w", err)
	}
	return a, nil
}

func (s *Store) GetAgent(ctx context.Context, id string) (Agent, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE id = $1`, id)
	return scanAgent(row)
}

// FirstActiveAgent returns the oldest active profile, the default when a
// client starts a session without naming an agent.
func (s *Store) FirstActiveAgent(ctx context.Context) (Agent, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE active ORDER BY created_at LIMIT 1`)
	return scanAgent(row)
}

func (s *Store) ListAgents(ctx context.Context) ([]Agent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+agentColumns+` FROM agents ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	agents := []Agent{}
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

// UpdateAgent overwrites every mutable column of the profile.
func (s *Store) UpdateAgent(ctx context.Context, a Agent) (Agent, error) {
	a.UpdatedAt = time.Now().UTC()
	tag, err := s.pool.Exec(ctx, `
		UPDATE agents SET name = $2, system_instruction = $3, temperature = $4,
			top_p = $5, top_k = $6, max_output_tokens = $7, voice = $8,
			language = $9, enable_affective_dialog = $10,
			enable_proactive_audio = $11, thinking_budget = $12,
			vad_sensitivity = $13, active = $14, updated_at = $15
		WHERE id = $1`,
		a.ID, a.Name, a.SystemInstruction, a.Temperature, a.TopP, a.TopK,
		a.MaxOutputTokens, a.Voice, a.Language, a.EnableAffectiveDialog,
		a.EnableProactiveAudio, a.ThinkingBudget, a.VADSensitivity, a.Active,
		a.UpdatedAt)
	if err != nil {
		return Agent{}, fmt.Errorf("update agent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return Agent{}, ErrNotFound
	}
	return s.GetAgent(ctx, a.ID)
}

func (s *Store) DeleteAgent(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM agents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete agent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
