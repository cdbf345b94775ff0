package model

import "time"

// Subscriber is one newsletter recipient. Email is stored lowercased and trimmed,
// and there is at most one row per email.
type Subscriber struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
}
