package store

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Document is one extracted knowledge document attached to an agent.
// Content is stored as plain text; extraction happens before insert.
type Document struct {
	ID        string    `json:"id"`
	AgentID   string    `json:"agentId"`
	Name      string    `json:"name"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

func (s *Store) AddDocument(ctx context.Context, agentID, name, content string) (Document, error) {
	doc := Document{
		ID:        newID("doc"),
		AgentID:   agentID,
		Name:      name,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO documents (id, agent_id, name, content, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		doc.ID, doc.AgentID, doc.Name, doc.Content, doc.CreatedAt)
	if err != nil {
		return Document{}, fmt.Errorf("insert document: %w", err)
	}
	return doc, nil
}

// ListDocuments returns an agent's documents without their content, oldest
// first.
func (s *Store) ListDocuments(ctx context.Context, agentID string) ([]Document, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, agent_id, name, created_at
		FROM documents WHERE agent_id = $1 ORDER BY created_at`, agentID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	docs := []Document{}
	for rows.Next() {
		var doc Document
		if err := rows.Scan(&doc.ID, &doc.AgentID, &doc.Name, &doc.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (s *Store) DeleteDocument(ctx context.Context, agentID, documentID string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM documents WHERE id = $1 AND agent_id = $2`, documentID, agentID)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AgentKnowledge concatenates an agent's document contents in upload order,
// separated by blank lines.
func (s *Store) AgentKnowledge(ctx context.Context, agentID string) (string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT content FROM documents WHERE agent_id = $1 ORDER BY created_at`, agentID)
	if err != nil {
		return "", fmt.Errorf("load agent knowledge: %w", err)
	}
	defer rows.Close()

	var parts []string
	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			return "", fmt.Errorf("scan document content: %w", err)
		}
		if content = strings.TrimSpace(content); content != "" {
			parts = append(parts, content)
		}
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	return strings.Join(parts, "\n\n"), nil
}
