// Package email sends transactional and newsletter mail through an HTTP
// email gateway and renders the LearnMade templates.
package email

import "context"

// MaxBatchSize is the gateway's per-call recipient limit for SendBatch.
const MaxBatchSize = 100

// Message is one email to one recipient.
type Message struct {
	From    string            `json:"from"`
	To      []string          `json:"to"`
	Subject string            `json:"subject"`
	HTML    string            `json:"html"`
	Headers map[string]string `json:"headers,omitempty"`
}

// Sender is the gateway as the rest of the application sees it.
// Errors are reported as apperror.ErrUpstream.
type Sender interface {
	Send(ctx context.Context, msg Message) error
	// SendBatch submits up to MaxBatchSize messages in a single gateway call.
	SendBatch(ctx context.Context, msgs []Message) error
}

// Factory builds a Sender on demand, so a misconfigured gateway only fails
// the sends that actually need it.
type Factory func() (Sender, error)
