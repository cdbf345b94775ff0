package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/learnmade/internal/apperror"
	"github.com/sakif/learnmade/internal/model"
	"github.com/sakif/learnmade/internal/repository"
)

var _ repository.SubscriberRepository = (*SubscriberStore)(nil)

// SubscriberStore persists newsletter subscribers.
// Callers normalise the email before it gets here; the UNIQUE index does the rest.
type SubscriberStore struct {
	conn *sql.DB
}

func (s *SubscriberStore) Create(ctx context.Context, sub *model.Subscriber) error {
	sub.ID = xid.New().String()
	sub.CreatedAt = time.Now().UTC()

	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO subscribers (id, email, is_active, created_at) VALUES (?, ?, ?, ?)`,
		sub.ID, sub.Email, sub.IsActive, sub.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("You are already subscribed!")
		}
		return fmt.Errorf("sqlite: creating subscriber: %w", err)
	}
	return nil
}

func (s *SubscriberStore) GetByID(ctx context.Context, id string) (*model.Subscriber, error) {
	sub, err := scanSubscriber(s.conn.QueryRowContext(ctx,
		`SELECT id, email, is_active, created_at FROM subscribers WHERE id = ?`, id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("subscriber", id)
		}
		return nil, fmt.Errorf("sqlite: getting subscriber %s: %w", id, err)
	}
	return sub, nil
}

func (s *SubscriberStore) GetByEmail(ctx context.Context, email string) (*model.Subscriber, error) {
	sub, err := scanSubscriber(s.conn.QueryRowContext(ctx,
		`SELECT id, email, is_active, created_at FROM subscribers WHERE email = ?`, email,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("subscriber", email)
		}
		return nil, fmt.Errorf("sqlite: getting subscriber by email: %w", err)
	}
	return sub, nil
}

func (s *SubscriberStore) SetActive(ctx context.Context, id string, active bool) error {
	result, err := s.conn.ExecContext(ctx,
		`UPDATE subscribers SET is_active = ? WHERE id = ?`, active, id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating subscriber %s: %w", id, err)
	}
	return requireRow(result, "subscriber", id)
}

// Delete hard-deletes the row. A later subscribe with the same email creates a fresh record.
func (s *SubscriberStore) Delete(ctx context.Context, id string) error {
	result, err := s.conn.ExecContext(ctx, `DELETE FROM subscribers WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting subscriber %s: %w", id, err)
	}
	return requireRow(result, "subscriber", id)
}

func (s *SubscriberStore) List(ctx context.Context) ([]model.Subscriber, error) {
	return s.list(ctx, `SELECT id, email, is_active, created_at FROM subscribers
		ORDER BY created_at DESC, rowid DESC`)
}

func (s *SubscriberStore) ListActive(ctx context.Context) ([]model.Subscriber, error) {
	return s.list(ctx, `SELECT id, email, is_active, created_at FROM subscribers
		WHERE is_active = 1 ORDER BY created_at ASC, rowid ASC`)
}

func (s *SubscriberStore) Count(ctx context.Context) (int, int, error) {
	var total, active int
	err := s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(is_active), 0) FROM subscribers`,
	).Scan(&total, &active)
	if err != nil {
		return 0, 0, fmt.Errorf("sqlite: counting subscribers: %w", err)
	}
	return total, active, nil
}

func (s *SubscriberStore) list(ctx context.Context, query string) ([]model.Subscriber, error) {
	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing subscribers: %w", err)
	}
	defer rows.Close()

	subs := make([]model.Subscriber, 0)
	for rows.Next() {
		sub, err := scanSubscriber(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning subscriber row: %w", err)
		}
		subs = append(subs, *sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating subscribers: %w", err)
	}
	return subs, nil
}

func scanSubscriber(row rowScanner) (*model.Subscriber, error) {
	var sub model.Subscriber
	if err := row.Scan(&sub.ID, &sub.Email, &sub.IsActive, &sub.CreatedAt); err != nil {
		return nil, err
	}
	return &sub, nil
}

// requireRow turns "UPDATE/DELETE matched nothing" into apperror.ErrNotFound.
func requireRow(result sql.Result, resource, id string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound(resource, id)
	}
	return nil
}
