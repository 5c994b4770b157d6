package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/vango-go/vai-tutor/pkg/core"
	"github.com/vango-go/vai-tutor/pkg/core/types"
)

const conversationColumns = `id, learner_id, topic, duration_minutes, points_earned, started_at, ended_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// CreateConversation opens a conversation for the learner, started now.
func (s *Store) CreateConversation(ctx context.Context, learnerID string) (types.Conversation, error) {
	c := types.Conversation{
		ID:        uuid.NewString(),
		UserID:    learnerID,
		StartedAt: fromMillis(toMillis(s.now())),
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`
INSERT INTO conversations (id, learner_id, started_at) VALUES (?, ?, ?)`),
		c.ID, c.UserID, toMillis(c.StartedAt))
	if err != nil {
		return types.Conversation{}, fmt.Errorf("insert conversation: %w", err)
	}
	return c, nil
}

// DeleteConversation removes a conversation that has not ended.
func (s *Store) DeleteConversation(ctx context.Context, learnerID, id string) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
DELETE FROM conversations WHERE id = ? AND learner_id = ? AND ended_at IS NULL`), id, learnerID)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	return nil
}

func (s *Store) Conversation(ctx context.Context, learnerID, id string) (types.Conversation, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+conversationColumns+` FROM conversations WHERE id = ? AND learner_id = ?`), id, learnerID)
	return scanConversation(row)
}

// EndConversation records the outcome once. A conversation that already ended
// is returned unchanged and the learner's points are not credited again.
func (s *Store) EndConversation(ctx context.Context, learnerID, id string, req types.OutcomeRequest) (types.Conversation, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return types.Conversation{}, false, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, s.rebind(`SELECT `+conversationColumns+` FROM conversations WHERE id = ? AND learner_id = ?`), id, learnerID)
	c, err := scanConversation(row)
	if err != nil {
		return types.Conversation{}, false, err
	}
	if c.Ended() {
		return c, false, nil
	}

	endedAt := fromMillis(toMillis(s.now()))
	res, err := tx.ExecContext(ctx, s.rebind(`
UPDATE conversations SET topic = ?, duration_minutes = ?, points_earned = ?, ended_at = ?
WHERE id = ? AND ended_at IS NULL`),
		req.Topic, req.DurationMinutes, req.PointsEarned, toMillis(endedAt), id)
	if err != nil {
		return types.Conversation{}, false, fmt.Errorf("end conversation: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return types.Conversation{}, false, fmt.Errorf("end conversation: %w", err)
	} else if n != 1 {
		// Lost a race with a concurrent report; return what the winner stored.
		_ = tx.Rollback()
		stored, err := s.Conversation(ctx, learnerID, id)
		return stored, false, err
	}
	if _, err := tx.ExecContext(ctx, s.rebind(`
UPDATE learners SET total_points = total_points + ? WHERE id = ?`), req.PointsEarned, learnerID); err != nil {
		return types.Conversation{}, false, fmt.Errorf("credit points: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return types.Conversation{}, false, fmt.Errorf("commit: %w", err)
	}

	c.Topic = req.Topic
	c.DurationMinutes = req.DurationMinutes
	c.PointsEarned = req.PointsEarned
	c.EndedAt = &endedAt
	return c, true, nil
}

// ListConversations returns the learner's conversations, newest first.
func (s *Store) ListConversations(ctx context.Context, learnerID string, limit, offset int) (types.ConversationPage, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, s.rebind(`SELECT COUNT(*) FROM conversations WHERE learner_id = ?`), learnerID).Scan(&total); err != nil {
		return types.ConversationPage{}, fmt.Errorf("count conversations: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT `+conversationColumns+` FROM conversations
WHERE learner_id = ? ORDER BY started_at DESC, id DESC LIMIT ? OFFSET ?`), learnerID, limit, offset)
	if err != nil {
		return types.ConversationPage{}, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	page := types.ConversationPage{Conversations: []types.Conversation{}}
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return types.ConversationPage{}, err
		}
		page.Conversations = append(page.Conversations, c)
	}
	if err := rows.Err(); err != nil {
		return types.ConversationPage{}, fmt.Errorf("list conversations: %w", err)
	}
	page.Pagination = types.Pagination{
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		HasMore: offset+len(page.Conversations) < total,
	}
	return page, nil
}

func scanConversation(row rowScanner) (types.Conversation, error) {
	var (
		c         types.Conversation
		startedAt int64
		endedAt   sql.NullInt64
	)
	if err := row.Scan(&c.ID, &c.UserID, &c.Topic, &c.DurationMinutes, &c.PointsEarned, &startedAt, &endedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Conversation{}, core.NewNotFoundError("conversation not found")
		}
		return types.Conversation{}, fmt.Errorf("scan conversation: %w", err)
	}
	c.StartedAt = fromMillis(startedAt)
	if endedAt.Valid {
		t := fromMillis(endedAt.Int64)
		c.EndedAt = &t
	}
	return c, nil
}
