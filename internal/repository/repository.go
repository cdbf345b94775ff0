// Package repository declares the storage contracts the service layer depends on.
//
// Services only see these interfaces; internal/repository/sqlite is the
// production implementation and tests are free to swap in fakes.
//
// Error contract shared by every implementation:
//   - a missing row           → apperror.ErrNotFound
//   - a unique-key collision  → apperror.ErrConflict
//   - anything else           → a wrapped storage error (500 at the edge)
package repository

import (
	"context"

	"github.com/sakif/learnmade/internal/model"
)

// ListOptions carries optional pagination. Limit 0 means "no limit".
type ListOptions struct {
	Limit  int
	Offset int
}

// CourseFilter narrows a course listing.
// Search matches title, description or any snippet's code, case-insensitively.
type CourseFilter struct {
	Search string
	ListOptions
}

type CourseRepository interface {
	Create(ctx context.Context, course *model.Course) error
	GetBySlug(ctx context.Context, slug string) (*model.Course, error)
	List(ctx context.Context, filter CourseFilter) ([]model.Course, error)
	// Update replaces the editable fields of the course identified by course.Slug.
	Update(ctx context.Context, course *model.Course) error
	// IncrementViews adds one to the view counter atomically.
	IncrementViews(ctx context.Context, slug string) error
}

type SubscriberRepository interface {
	Create(ctx context.Context, sub *model.Subscriber) error
	GetByID(ctx context.Context, id string) (*model.Subscriber, error)
	GetByEmail(ctx context.Context, email string) (*model.Subscriber, error)
	SetActive(ctx context.Context, id string, active bool) error
	Delete(ctx context.Context, id string) error
	// List returns every subscriber, newest first.
	List(ctx context.Context) ([]model.Subscriber, error)
	ListActive(ctx context.Context) ([]model.Subscriber, error)
	Count(ctx context.Context) (total int, active int, err error)
}

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByGitHubID(ctx context.Context, githubID int64) (*model.User, error)
	// Update persists the mutable fields: password hash, role and GitHub link.
	Update(ctx context.Context, user *model.User) error
}

type VisitRepository interface {
	Create(ctx context.Context, visit *model.Visit) error
	Count(ctx context.Context) (int, error)
	Recent(ctx context.Context, limit int) ([]model.Visit, error)
	TopReferrers(ctx context.Context, limit int) ([]model.ReferrerCount, error)
	TopPaths(ctx context.Context, limit int) ([]model.PathCount, error)
}
