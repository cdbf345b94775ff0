package model

import "time"

// DefaultReferrer is recorded when a page view carries no referrer.
const DefaultReferrer = "Direct"

// Visit is one append-only page-view event.
type Visit struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	Referrer  string    `json:"referrer"`
	UserAgent string    `json:"userAgent"`
	CreatedAt time.Time `json:"createdAt"`
}

// PathCount is a group-by-path aggregate row.
type PathCount struct {
	Path  string `json:"path"`
	Count int    `json:"count"`
}

// ReferrerCount is a group-by-referrer aggregate row.
type ReferrerCount struct {
	Referrer string `json:"referrer"`
	Count    int    `json:"count"`
}
