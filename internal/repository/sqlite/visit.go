package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/learnmade/internal/model"
	"github.com/sakif/learnmade/internal/repository"
)

var _ repository.VisitRepository = (*VisitStore)(nil)

// VisitStore is append-only: visits are inserted and aggregated, never updated.
type VisitStore struct {
	conn *sql.DB
}

func (s *VisitStore) Create(ctx context.Context, visit *model.Visit) error {
	visit.ID = xid.New().String()
	visit.CreatedAt = time.Now().UTC()

	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO visits (id, path, referrer, user_agent, created_at) VALUES (?, ?, ?, ?, ?)`,
		visit.ID, visit.Path, visit.Referrer, visit.UserAgent, visit.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: recording visit: %w", err)
	}
	return nil
}

func (s *VisitStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM visits`).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: counting visits: %w", err)
	}
	return n, nil
}

func (s *VisitStore) Recent(ctx context.Context, limit int) ([]model.Visit, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, path, referrer, user_agent, created_at FROM visits
		 ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing recent visits: %w", err)
	}
	defer rows.Close()

	visits := make([]model.Visit, 0, limit)
	for rows.Next() {
		var v model.Visit
		if err := rows.Scan(&v.ID, &v.Path, &v.Referrer, &v.UserAgent, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning visit row: %w", err)
		}
		visits = append(visits, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating visits: %w", err)
	}
	return visits, nil
}

func (s *VisitStore) TopReferrers(ctx context.Context, limit int) ([]model.ReferrerCount, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT referrer, COUNT(*) AS n FROM visits
		 GROUP BY referrer ORDER BY n DESC, referrer ASC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: aggregating referrers: %w", err)
	}
	defer rows.Close()

	out := make([]model.ReferrerCount, 0, limit)
	for rows.Next() {
		var rc model.ReferrerCount
		if err := rows.Scan(&rc.Referrer, &rc.Count); err != nil {
			return nil, fmt.Errorf("sqlite: scanning referrer row: %w", err)
		}
		out = append(out, rc)
	}
	return out, rows.Err()
}

func (s *VisitStore) TopPaths(ctx context.Context, limit int) ([]model.PathCount, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT path, COUNT(*) AS n FROM visits
		 GROUP BY path ORDER BY n DESC, path ASC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: aggregating paths: %w", err)
	}
	defer rows.Close()

	out := make([]model.PathCount, 0, limit)
	for rows.Next() {
		var pc model.PathCount
		if err := rows.Scan(&pc.Path, &pc.Count); err != nil {
			return nil, fmt.Errorf("sqlite: scanning path row: %w", err)
		}
		out = append(out, pc)
	}
	return out, rows.Err()
}
