package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/learnmade/internal/apperror"
	"github.com/sakif/learnmade/internal/model"
	"github.com/sakif/learnmade/internal/repository"
)

// compile-time check that *CourseStore implements repository.CourseRepository
var _ repository.CourseRepository = (*CourseStore)(nil)

// CourseStore persists courses. Tags and code snippets are ordered lists that
// are always read and written with their course, so they are stored as JSON
// columns instead of child tables.
type CourseStore struct {
	conn *sql.DB
}

const courseColumns = `id, title, slug, thumbnail, video_url, repo_url, description,
	file_structure, tags, code_snippets, views, created_at, updated_at`

// Create inserts a new course with views = 0.
// A slug that already exists fails with apperror.ErrConflict.
func (s *CourseStore) Create(ctx context.Context, course *model.Course) error {
	tags, snippets, err := encodeCourseLists(course)
	if err != nil {
		return err
	}

	course.ID = xid.New().String()
	now := time.Now().UTC()
	course.CreatedAt = now
	course.UpdatedAt = now
	course.Views = 0

	_, err = s.conn.ExecContext(ctx,
		`INSERT INTO courses (`+courseColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		course.ID,
		course.Title,
		course.Slug,
		course.Thumbnail,
		course.VideoURL,
		course.RepoURL,
		course.Description,
		course.FileStructure,
		tags,
		snippets,
		course.Views,
		course.CreatedAt,
		course.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("A course with this slug already exists.")
		}
		return fmt.Errorf("sqlite: creating course %s: %w", course.Slug, err)
	}

	return nil
}

// GetBySlug returns apperror.ErrNotFound when no course has the slug.
func (s *CourseStore) GetBySlug(ctx context.Context, slug string) (*model.Course, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT `+courseColumns+` FROM courses WHERE slug = ?`,
		slug,
	)

	course, err := scanCourse(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFoundMessage("Course not found")
		}
		return nil, fmt.Errorf("sqlite: getting course %s: %w", slug, err)
	}
	return course, nil
}

// List returns courses newest first.
//
// SEARCH:
// Both sides are folded (casefold on the columns, strings.ToLower on the
// term) so the match is case-insensitive beyond ASCII. Snippet code lives
// inside the code_snippets JSON array, so json_each unrolls it and
// json_extract pulls out each "code".
func (s *CourseStore) List(ctx context.Context, filter repository.CourseFilter) ([]model.Course, error) {
	var (
		where []string
		args  []any
	)

	if term := strings.TrimSpace(filter.Search); term != "" {
		pattern := likePattern(strings.ToLower(term))
		where = append(where, `(
			casefold(title) LIKE ? ESCAPE '\'
			OR casefold(description) LIKE ? ESCAPE '\'
			OR EXISTS (
				SELECT 1 FROM json_each(courses.code_snippets) AS snippet
				WHERE casefold(json_extract(snippet.value, '$.code')) LIKE ? ESCAPE '\'
			)
		)`)
		args = append(args, pattern, pattern, pattern)
	}

	query := `SELECT ` + courseColumns + ` FROM courses`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}

	// LIMIT -1 is SQLite for "no limit".
	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}
	offset := max(filter.Offset, 0)
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing courses: %w", err)
	}
	defer rows.Close()

	courses := make([]model.Course, 0)
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning course row: %w", err)
		}
		courses = append(courses, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating courses: %w", err)
	}

	return courses, nil
}

// Update replaces every editable field of the course matched by course.Slug.
// id, slug, views and created_at are never touched.
func (s *CourseStore) Update(ctx context.Context, course *model.Course) error {
	tags, snippets, err := encodeCourseLists(course)
	if err != nil {
		return err
	}
	course.UpdatedAt = time.Now().UTC()

	result, err := s.conn.ExecContext(ctx,
		`UPDATE courses
		 SET title = ?, thumbnail = ?, video_url = ?, repo_url = ?, description = ?,
		     file_structure = ?, tags = ?, code_snippets = ?, updated_at = ?
		 WHERE slug = ?`,
		course.Title,
		course.Thumbnail,
		course.VideoURL,
		course.RepoURL,
		course.Description,
		course.FileStructure,
		tags,
		snippets,
		course.UpdatedAt,
		course.Slug,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating course %s: %w", course.Slug, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFoundMessage("Course not found")
	}
	return nil
}

// IncrementViews is a single UPDATE, so concurrent increments never lose a count.
func (s *CourseStore) IncrementViews(ctx context.Context, slug string) error {
	result, err := s.conn.ExecContext(ctx,
		`UPDATE courses SET views = views + 1 WHERE slug = ?`,
		slug,
	)
	if err != nil {
		return fmt.Errorf("sqlite: incrementing views for %s: %w", slug, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFoundMessage("Course not found")
	}
	return nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanCourse(row rowScanner) (*model.Course, error) {
	var (
		c        model.Course
		tags     string
		snippets string
	)
	if err := row.Scan(
		&c.ID,
		&c.Title,
		&c.Slug,
		&c.Thumbnail,
		&c.VideoURL,
		&c.RepoURL,
		&c.Description,
		&c.FileStructure,
		&tags,
		&snippets,
		&c.Views,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(tags), &c.Tags); err != nil {
		return nil, fmt.Errorf("decoding tags of %s: %w", c.Slug, err)
	}
	if err := json.Unmarshal([]byte(snippets), &c.CodeSnippets); err != nil {
		return nil, fmt.Errorf("decoding code snippets of %s: %w", c.Slug, err)
	}
	if c.Tags == nil {
		c.Tags = []string{}
	}
	if c.CodeSnippets == nil {
		c.CodeSnippets = []model.CodeSnippet{}
	}
	return &c, nil
}

func encodeCourseLists(course *model.Course) (string, string, error) {
	tags := course.Tags
	if tags == nil {
		tags = []string{}
	}
	snippets := course.CodeSnippets
	if snippets == nil {
		snippets = []model.CodeSnippet{}
	}

	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return "", "", fmt.Errorf("sqlite: encoding tags: %w", err)
	}
	snippetsJSON, err := json.Marshal(snippets)
	if err != nil {
		return "", "", fmt.Errorf("sqlite: encoding code snippets: %w", err)
	}
	return string(tagsJSON), string(snippetsJSON), nil
}
