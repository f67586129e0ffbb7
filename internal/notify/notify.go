// Package notify delivers one-time codes by email. Delivery is best-effort:
// a notification is attempted once and failures are only logged.
package notify

import "context"

// Kind names the email a notification renders to.
type Kind string

const (
	KindVerification  Kind = "verification"
	KindPasswordReset Kind = "password_reset"
)

// Notification is a single email to send. It is JSON-encoded when relayed
// through a message queue.
type Notification struct {
	Kind     Kind   `json:"kind"`
	Email    string `json:"email"`
	Username string `json:"username"`
	Code     string `json:"code"`
}

// Sink delivers a notification once.
type Sink interface {
	Deliver(ctx context.Context, n Notification) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, n Notification) error

func (f SinkFunc) Deliver(ctx context.Context, n Notification) error {
	return f(ctx, n)
}
