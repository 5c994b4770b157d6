package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/vango-go/vai-tutor/pkg/core"
	"github.com/vango-go/vai-tutor/pkg/core/types"
)

// NewLearner is the input to CreateLearner. TokenHash is the hex SHA-256 of the access token.
type NewLearner struct {
	Name          string
	Email         string
	Age           int
	SelectedVoice string
	TokenHash     string
}

const learnerColumns = `id, email, name, age, selected_voice, total_points, created_at`

func (s *Store) CreateLearner(ctx context.Context, in NewLearner) (types.Profile, error) {
	p := types.Profile{
		ID:            uuid.NewString(),
		Email:         in.Email,
		Name:          in.Name,
		Age:           in.Age,
		SelectedVoice: in.SelectedVoice,
		CreatedAt:     fromMillis(toMillis(s.now())),
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`
INSERT INTO learners (id, email, name, age, selected_voice, total_points, token_hash, created_at)
VALUES (?, ?, ?, ?, ?, 0, ?, ?)`),
		p.ID, p.Email, p.Name, p.Age, p.SelectedVoice, in.TokenHash, toMillis(p.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return types.Profile{}, core.NewConflictError("a learner with this email already exists")
		}
		return types.Profile{}, fmt.Errorf("insert learner: %w", err)
	}
	return p, nil
}

// LearnerByTokenHash resolves a bearer token hash to its learner.
func (s *Store) LearnerByTokenHash(ctx context.Context, tokenHash string) (types.Profile, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+learnerColumns+` FROM learners WHERE token_hash = ?`), tokenHash)
	return scanLearner(row)
}

func (s *Store) LearnerByID(ctx context.Context, id string) (types.Profile, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+learnerColumns+` FROM learners WHERE id = ?`), id)
	return scanLearner(row)
}

// UpdateLearner applies the non-nil fields of upd and returns the stored profile.
func (s *Store) UpdateLearner(ctx context.Context, id string, upd types.ProfileUpdate) (types.Profile, error) {
	var (
		sets []string
		args []any
	)
	if upd.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *upd.Name)
	}
	if upd.SelectedVoice != nil {
		sets = append(sets, "selected_voice = ?")
		args = append(args, *upd.SelectedVoice)
	}
	if len(sets) == 0 {
		return s.LearnerByID(ctx, id)
	}
	args = append(args, id)
	res, err := s.db.ExecContext(ctx, s.rebind(`UPDATE learners SET `+strings.Join(sets, ", ")+` WHERE id = ?`), args...)
	if err != nil {
		return types.Profile{}, fmt.Errorf("update learner: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return types.Profile{}, core.NewNotFoundError("learner not found")
	}
	return s.LearnerByID(ctx, id)
}

func scanLearner(row *sql.Row) (types.Profile, error) {
	var (
		p         types.Profile
		createdAt int64
	)
	if err := row.Scan(&p.ID, &p.Email, &p.Name, &p.Age, &p.SelectedVoice, &p.TotalPoints, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Profile{}, core.NewNotFoundError("learner not found")
		}
		return types.Profile{}, fmt.Errorf("scan learner: %w", err)
	}
	p.CreatedAt = fromMillis(createdAt)
	return p, nil
}
