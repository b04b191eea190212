package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"rosterbot/internal/models"
)

// FlowStore persists per-user flow state in the flow_states table
type FlowStore struct {
	s *Storage
}

// Flows returns the flow-state view of the database
func (s *Storage) Flows() *FlowStore {
	return &FlowStore{s: s}
}

// Load returns the user's state, or an empty state for unknown users
func (f *FlowStore) Load(ctx context.Context, userID string) (models.FlowState, error) {
	var raw string
	err := f.s.db.QueryRowContext(ctx, `SELECT state FROM flow_states WHERE user_id = ?`, userID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return models.NewFlowState(), nil
	}
	if err != nil {
		return models.FlowState{}, fmt.Errorf("failed to load flow state: %w", err)
	}
	return models.UnmarshalFlowState(raw)
}

// Save writes the user's state
func (f *FlowStore) Save(ctx context.Context, userID string, state models.FlowState) error {
	raw, err := state.Marshal()
	if err != nil {
		return err
	}
	_, err = f.s.db.ExecContext(ctx, `
		INSERT INTO flow_states (user_id, state, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`,
		userID, raw, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to save flow state: %w", err)
	}
	return nil
}
