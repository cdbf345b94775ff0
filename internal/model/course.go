// Package model defines the data structures used throughout the application.
// In Go, we use structs to represent our data. The `json:"..."` struct tags
// control the wire names the API exposes (camelCase, like the frontend expects).
package model

import "time"

// DefaultSnippetLanguage is applied to code snippets sent without a language.
const DefaultSnippetLanguage = "javascript"

// Course is one published lesson: a video, a markdown write-up and the code
// that goes with it.
//
// Slug is the external identifier. It is unique across all courses and never
// changes after creation, so links in already-sent emails keep working.
type Course struct {
	ID            string        `json:"id"`
	Title         string        `json:"title"`
	Slug          string        `json:"slug"`
	Thumbnail     string        `json:"thumbnail"`
	VideoURL      string        `json:"videoUrl"`
	RepoURL       string        `json:"repoUrl,omitempty"`
	Description   string        `json:"description"`
	FileStructure string        `json:"fileStructure,omitempty"`
	Tags          []string      `json:"tags"`
	CodeSnippets  []CodeSnippet `json:"codeSnippets"`
	Views         int64         `json:"views"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// CodeSnippet is a titled, language-tagged block of source code attached to a Course.
// Order within Course.CodeSnippets is the display order.
type CodeSnippet struct {
	Title    string `json:"title"`
	Language string `json:"language"`
	Code     string `json:"code"`
}
