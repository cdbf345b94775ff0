package service

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/sakif/learnmade/internal/apperror"
	"github.com/sakif/learnmade/internal/auth"
	"github.com/sakif/learnmade/internal/model"
	"github.com/sakif/learnmade/internal/repository"
)

const (
	topN          = 5
	recentLogSize = 20
	unknownAgent  = "Unknown"
)

// untrackedPrefixes are paths whose page views are not recorded.
var untrackedPrefixes = []string{"/admin", "/api"}

// TrackInput is the body of POST /analytics/track.
type TrackInput struct {
	Path     string `json:"path"`
	Referrer string `json:"referrer"`
}

type SubscriberCounts struct {
	Total  int `json:"total"`
	Active int `json:"active"`
}

// Stats is the admin dashboard payload.
type Stats struct {
	TotalVisits  int                   `json:"totalVisits"`
	TopReferrers []model.ReferrerCount `json:"topReferrers"`
	RecentLogs   []model.Visit         `json:"recentLogs"`
	TopPages     []model.PathCount     `json:"topPages"`
	Subscribers  SubscriberCounts      `json:"subscribers"`
}

type AnalyticsService struct {
	visits      repository.VisitRepository
	subscribers repository.SubscriberRepository
	guard       *auth.Guard
	logger      *slog.Logger
}

func NewAnalyticsService(
	visits repository.VisitRepository,
	subscribers repository.SubscriberRepository,
	guard *auth.Guard,
	logger *slog.Logger,
) *AnalyticsService {
	return &AnalyticsService{
		visits:      visits,
		subscribers: subscribers,
		guard:       guard,
		logger:      logger,
	}
}

// Track records one page view. It reports false for paths that are
// accepted but deliberately not stored (admin pages, API calls).
func (s *AnalyticsService) Track(ctx context.Context, in TrackInput, userAgent string) (bool, error) {
	path := strings.TrimSpace(in.Path)
	if path == "" {
		return false, apperror.ValidationFailed("path", "Path is required")
	}
	for _, prefix := range untrackedPrefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return false, nil
		}
	}

	visit := &model.Visit{
		Path:      path,
		Referrer:  strings.TrimSpace(in.Referrer),
		UserAgent: strings.TrimSpace(userAgent),
	}
	if visit.Referrer == "" {
		visit.Referrer = model.DefaultReferrer
	}
	if visit.UserAgent == "" {
		visit.UserAgent = unknownAgent
	}

	if err := s.visits.Create(ctx, visit); err != nil {
		return false, err
	}
	return true, nil
}

// Stats gathers every dashboard aggregate concurrently. Any failing read
// fails the whole call.
func (s *AnalyticsService) Stats(ctx context.Context, p auth.Principal) (*Stats, error) {
	if _, err := s.guard.Authorize(ctx, p, auth.OpViewStats); err != nil {
		return nil, err
	}

	var stats Stats
	g, ctx := errgroup.WithContext(ctx)

	// Each goroutine writes a distinct field, so no locking is needed.
	g.Go(func() error {
		n, err := s.visits.Count(ctx)
		stats.TotalVisits = n
		return err
	})
	g.Go(func() error {
		rows, err := s.visits.TopReferrers(ctx, topN)
		stats.TopReferrers = rows
		return err
	})
	g.Go(func() error {
		rows, err := s.visits.Recent(ctx, recentLogSize)
		stats.RecentLogs = rows
		return err
	})
	g.Go(func() error {
		rows, err := s.visits.TopPaths(ctx, topN)
		stats.TopPages = rows
		return err
	})
	g.Go(func() error {
		total, active, err := s.subscribers.Count(ctx)
		stats.Subscribers = SubscriberCounts{Total: total, Active: active}
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if stats.TopReferrers == nil {
		stats.TopReferrers = []model.ReferrerCount{}
	}
	if stats.RecentLogs == nil {
		stats.RecentLogs = []model.Visit{}
	}
	if stats.TopPages == nil {
		stats.TopPages = []model.PathCount{}
	}
	return &stats, nil
}
