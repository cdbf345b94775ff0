package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sakif/learnmade/internal/apperror"
	"github.com/sakif/learnmade/internal/model"
)

// CourseInput is the create-course payload.
type CourseInput struct {
	Title         string         `json:"title" validate:"required,min=3,max=100"`
	Slug          string         `json:"slug" validate:"required"`
	Thumbnail     string         `json:"thumbnail" validate:"required,url"`
	VideoURL      string         `json:"videoUrl" validate:"required,url"`
	RepoURL       string         `json:"repoUrl" validate:"omitempty,url"`
	Description   string         `json:"description" validate:"required,min=10"`
	FileStructure string         `json:"fileStructure"`
	Tags          Tags           `json:"tags"`
	CodeSnippets  []SnippetInput `json:"codeSnippets" validate:"dive"`
}

type SnippetInput struct {
	Title    string `json:"title" validate:"required"`
	Language string `json:"language"`
	Code     string `json:"code" validate:"required"`
}

// Tags accepts either a JSON array or the comma-separated string an admin
// form submits ("react, websockets,,"). Only the string form is split on
// commas; an array element is one tag even if it contains a comma.
type Tags []string

func (t *Tags) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*t = CleanTags(list)
		return nil
	}

	var csv string
	if err := json.Unmarshal(data, &csv); err != nil {
		return fmt.Errorf("tags must be an array of strings or a comma-separated string")
	}
	*t = SplitTags(csv)
	return nil
}

// SplitTags splits each value on commas, trims every piece and drops empty ones.
// Order is preserved.
func SplitTags(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// CleanTags trims every tag and drops empty ones, keeping order.
func CleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			out = append(out, tag)
		}
	}
	return out
}

// Normalize trims identifiers and fills snippet language defaults.
// It runs before Check so length rules see the trimmed values.
func (in *CourseInput) Normalize() {
	in.Title = strings.TrimSpace(in.Title)
	in.Slug = strings.TrimSpace(in.Slug)
	in.Thumbnail = strings.TrimSpace(in.Thumbnail)
	in.VideoURL = strings.TrimSpace(in.VideoURL)
	in.RepoURL = strings.TrimSpace(in.RepoURL)
	in.Tags = CleanTags(in.Tags)
	for i := range in.CodeSnippets {
		s := &in.CodeSnippets[i]
		s.Title = strings.TrimSpace(s.Title)
		s.Language = strings.TrimSpace(s.Language)
		if s.Language == "" {
			s.Language = model.DefaultSnippetLanguage
		}
	}
}

// ValidateCourse normalises and checks a create payload and returns the record to persist.
func ValidateCourse(in CourseInput) (*model.Course, error) {
	in.Normalize()
	if err := Check(in); err != nil {
		return nil, err
	}
	return in.toModel(), nil
}

func (in CourseInput) toModel() *model.Course {
	snippets := make([]model.CodeSnippet, 0, len(in.CodeSnippets))
	for _, s := range in.CodeSnippets {
		snippets = append(snippets, model.CodeSnippet{Title: s.Title, Language: s.Language, Code: s.Code})
	}
	tags := []string(in.Tags)
	if tags == nil {
		tags = []string{}
	}
	return &model.Course{
		Title:         in.Title,
		Slug:          in.Slug,
		Thumbnail:     in.Thumbnail,
		VideoURL:      in.VideoURL,
		RepoURL:       in.RepoURL,
		Description:   in.Description,
		FileStructure: in.FileStructure,
		Tags:          tags,
		CodeSnippets:  snippets,
	}
}

// CoursePatch is the partial update payload. A nil field keeps the stored value.
type CoursePatch struct {
	Title         *string         `json:"title"`
	Slug          *string         `json:"slug"`
	Thumbnail     *string         `json:"thumbnail"`
	VideoURL      *string         `json:"videoUrl"`
	RepoURL       *string         `json:"repoUrl"`
	Description   *string         `json:"description"`
	FileStructure *string         `json:"fileStructure"`
	Tags          *Tags           `json:"tags"`
	CodeSnippets  *[]SnippetInput `json:"codeSnippets"`
}

// ApplyPatch merges patch onto current and re-validates the whole merged record.
//
// The slug is immutable: a patch that repeats the current slug is accepted
// and ignored, a different slug is rejected on field "slug".
func ApplyPatch(current *model.Course, patch CoursePatch) (*model.Course, error) {
	if patch.Slug != nil && strings.TrimSpace(*patch.Slug) != current.Slug {
		return nil, apperror.ValidationFailed("slug", "slug cannot be changed")
	}

	in := fromModel(current)
	if patch.Title != nil {
		in.Title = *patch.Title
	}
	if patch.Thumbnail != nil {
		in.Thumbnail = *patch.Thumbnail
	}
	if patch.VideoURL != nil {
		in.VideoURL = *patch.VideoURL
	}
	if patch.RepoURL != nil {
		in.RepoURL = *patch.RepoURL
	}
	if patch.Description != nil {
		in.Description = *patch.Description
	}
	if patch.FileStructure != nil {
		in.FileStructure = *patch.FileStructure
	}
	if patch.Tags != nil {
		in.Tags = *patch.Tags
	}
	if patch.CodeSnippets != nil {
		in.CodeSnippets = *patch.CodeSnippets
	}

	merged, err := ValidateCourse(in)
	if err != nil {
		return nil, err
	}

	merged.ID = current.ID
	merged.Views = current.Views
	merged.CreatedAt = current.CreatedAt
	merged.UpdatedAt = current.UpdatedAt
	return merged, nil
}

func fromModel(c *model.Course) CourseInput {
	snippets := make([]SnippetInput, 0, len(c.CodeSnippets))
	for _, s := range c.CodeSnippets {
		snippets = append(snippets, SnippetInput{Title: s.Title, Language: s.Language, Code: s.Code})
	}
	return CourseInput{
		Title:         c.Title,
		Slug:          c.Slug,
		Thumbnail:     c.Thumbnail,
		VideoURL:      c.VideoURL,
		RepoURL:       c.RepoURL,
		Description:   c.Description,
		FileStructure: c.FileStructure,
		Tags:          Tags(c.Tags),
		CodeSnippets:  snippets,
	}
}
