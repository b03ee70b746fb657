package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/innerline/yokeflow2-sub000/pkg/models"
)

// CreateCheckpoint appends a checkpoint record for a session.
func (s *Store) CreateCheckpoint(ctx context.Context, c *models.Checkpoint) (*models.Checkpoint, error) {
	err := s.db.GetContext(ctx, &c.ID, `
		INSERT INTO checkpoints (session_id, checkpoint_type, conversation_history, last_task_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		c.SessionID, c.CheckpointType, c.ConversationHistory, c.LastTaskID)
	if err != nil {
		return nil, classify(err, "create checkpoint")
	}
	return c, nil
}

// LatestCheckpoint returns the most recent checkpoint for a session, used
// to resume a paused session.
func (s *Store) LatestCheckpoint(ctx context.Context, sessionID string) (*models.Checkpoint, error) {
	var c models.Checkpoint
	err := s.db.GetContext(ctx, &c, `
		SELECT * FROM checkpoints WHERE session_id = $1 ORDER BY created_at DESC LIMIT 1`, sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("checkpoint for session", sessionID)
	}
	if err != nil {
		return nil, classify(err, "latest checkpoint")
	}
	return &c, nil
}
