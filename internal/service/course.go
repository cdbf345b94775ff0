// Package service contains the business rules of LearnMade.
//
// THE THREE LAYERS:
//
//	Handler (HTTP)  → decodes requests, writes the JSON envelope
//	Service (rules) → authorizes, validates, orchestrates side effects
//	Repository (DB) → reads/writes one table per call
//
// Services depend on repository interfaces, never on *sqlite.DB, and know
// nothing about HTTP. Every privileged method takes an auth.Principal and
// asks the Guard first.
package service

import (
	"context"
	"log/slog"

	"github.com/sakif/learnmade/internal/auth"
	"github.com/sakif/learnmade/internal/background"
	"github.com/sakif/learnmade/internal/model"
	"github.com/sakif/learnmade/internal/repository"
	"github.com/sakif/learnmade/internal/validation"
)

// Broadcaster announces a newly created course. Dispatch must not block.
type Broadcaster interface {
	Dispatch(ctx context.Context, course *model.Course)
}

// CourseService publishes and serves courses.
type CourseService struct {
	courses     repository.CourseRepository
	guard       *auth.Guard
	broadcaster Broadcaster
	runner      *background.Runner
	logger      *slog.Logger
}

func NewCourseService(
	courses repository.CourseRepository,
	guard *auth.Guard,
	broadcaster Broadcaster,
	runner *background.Runner,
	logger *slog.Logger,
) *CourseService {
	return &CourseService{
		courses:     courses,
		guard:       guard,
		broadcaster: broadcaster,
		runner:      runner,
		logger:      logger,
	}
}

// Create validates and stores a new course, then triggers the subscriber
// broadcast. The returned course never depends on how the broadcast goes.
func (s *CourseService) Create(ctx context.Context, p auth.Principal, in validation.CourseInput) (*model.Course, error) {
	if _, err := s.guard.Authorize(ctx, p, auth.OpCreateCourse); err != nil {
		return nil, err
	}

	course, err := validation.ValidateCourse(in)
	if err != nil {
		return nil, err
	}

	// A duplicate slug comes back from the store as apperror.ErrConflict.
	if err := s.courses.Create(ctx, course); err != nil {
		return nil, err
	}

	s.logger.Info("course created",
		slog.String("id", course.ID),
		slog.String("slug", course.Slug),
		slog.String("by", p.UserID),
	)

	s.broadcaster.Dispatch(ctx, course)
	return course, nil
}

// Update merges patch onto the course at slug. The slug itself cannot change
// and the merged record is validated as a whole.
func (s *CourseService) Update(ctx context.Context, p auth.Principal, slug string, patch validation.CoursePatch) (*model.Course, error) {
	if _, err := s.guard.Authorize(ctx, p, auth.OpUpdateCourse); err != nil {
		return nil, err
	}

	current, err := s.courses.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}

	merged, err := validation.ApplyPatch(current, patch)
	if err != nil {
		return nil, err
	}

	if err := s.courses.Update(ctx, merged); err != nil {
		return nil, err
	}

	s.logger.Info("course updated", slog.String("slug", slug), slog.String("by", p.UserID))

	// Views may have moved while we were merging; return what is stored now.
	return s.courses.GetBySlug(ctx, slug)
}

// GetBySlug returns the course as stored and counts the view in the
// background. A failed increment is logged by the runner and otherwise ignored.
func (s *CourseService) GetBySlug(ctx context.Context, slug string) (*model.Course, error) {
	course, err := s.courses.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}

	s.runner.Go(ctx, "views:"+slug, func(ctx context.Context) error {
		return s.courses.IncrementViews(ctx, slug)
	})

	return course, nil
}

// List returns courses newest first. An empty search lists everything.
func (s *CourseService) List(ctx context.Context, filter repository.CourseFilter) ([]model.Course, error) {
	courses, err := s.courses.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if courses == nil {
		courses = []model.Course{}
	}
	return courses, nil
}
