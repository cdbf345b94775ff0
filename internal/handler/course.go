package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/learnmade/internal/apperror"
	"github.com/sakif/learnmade/internal/auth"
	"github.com/sakif/learnmade/internal/repository"
	"github.com/sakif/learnmade/internal/service"
	"github.com/sakif/learnmade/internal/validation"
)

// CourseHandler serves the public catalogue and the admin editor's writes.
type CourseHandler struct {
	courses *service.CourseService
	logger  *slog.Logger
}

func NewCourseHandler(courses *service.CourseService, logger *slog.Logger) *CourseHandler {
	return &CourseHandler{courses: courses, logger: logger}
}

// HandleList returns courses newest-first.
//
// HTTP: GET /courses?search=<term>&limit=<n>&offset=<n>
//
// search matches title, description or snippet code, case-insensitively.
// An unknown term is an empty list, never an error.
func (h *CourseHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit, err := parseNonNegative(q.Get("limit"), "limit")
	if err != nil {
		writeError(w, err)
		return
	}
	offset, err := parseNonNegative(q.Get("offset"), "offset")
	if err != nil {
		writeError(w, err)
		return
	}

	courses, err := h.courses.List(r.Context(), repository.CourseFilter{
		Search:      strings.TrimSpace(q.Get("search")),
		ListOptions: repository.ListOptions{Limit: limit, Offset: offset},
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeData(w, http.StatusOK, courses)
}

// HandleGet returns one course and counts a view in the background.
//
// HTTP: GET /courses/{slug}
func (h *CourseHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	course, err := h.courses.GetBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, course)
}

// HandleCreate stores a new course and announces it to subscribers.
//
// HTTP: POST /courses (admin)
// REQUEST BODY: {"title", "slug", "thumbnail", "videoUrl", "repoUrl"?,
// "description", "fileStructure"?, "tags": [] or "a, b", "codeSnippets": []}
func (h *CourseHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var in validation.CourseInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}

	course, err := h.courses.Create(r.Context(), auth.PrincipalFromContext(r.Context()), in)
	if err != nil {
		writeError(w, err)
		return
	}

	writeData(w, http.StatusCreated, course)
}

// HandleUpdate applies a partial update. The slug in the path is the key;
// a different slug in the body is rejected.
//
// HTTP: PUT /courses/{slug} (admin)
func (h *CourseHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var patch validation.CoursePatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, err)
		return
	}

	course, err := h.courses.Update(r.Context(), auth.PrincipalFromContext(r.Context()), chi.URLParam(r, "slug"), patch)
	if err != nil {
		writeError(w, err)
		return
	}

	writeData(w, http.StatusOK, course)
}

func parseNonNegative(raw, field string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperror.ValidationFailed(field, field+" must be a non-negative integer")
	}
	return n, nil
}
