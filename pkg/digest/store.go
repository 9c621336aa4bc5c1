// Package digest buffers trigger events into shared windows and flushes them
// exactly once when the window closes.
package digest

import (
	"context"
	"time"
)

// Window is the metadata of one open digest window. Buffered events are kept
// alongside it by the store, not on this struct.
type Window struct {
	ID             string    `json:"id"`
	EnvironmentID  string    `json:"environment_id"`
	OrganizationID string    `json:"organization_id"`
	WorkflowID     string    `json:"workflow_id"`
	SubscriberID   string    `json:"subscriber_id"`
	DigestKeyValue string    `json:"digest_key_value,omitempty"`
	FilterHash     string    `json:"filter_hash"`
	// AnchorJobID is the job that opened the window; it resumes as the
	// post-digest job when the window flushes.
	AnchorJobID   string    `json:"anchor_job_id"`
	TransactionID string    `json:"transaction_id"`
	OpensAt       time.Time `json:"opens_at"`
	ClosesAt      time.Time `json:"closes_at"`
}

// ClosedWindow is the result of closing a window: the metadata plus every
// buffered event in admission order.
type ClosedWindow struct {
	Window
	Events []map[string]any `json:"events"`
}

// Store coordinates windows across worker instances. Open is first-writer-wins
// and Close hands the buffered events to exactly one caller.
type Store interface {
	// Open creates the window if no window with the same id is open and
	// buffers the anchor event. It returns false when a window already
	// exists, in which case the caller appends instead.
	Open(ctx context.Context, window *Window, event map[string]any) (bool, error)

	// Append buffers one event into an open window and returns the event
	// count after the append.
	Append(ctx context.Context, windowID string, event map[string]any) (int, error)

	// Close atomically removes the window and returns its events. The second
	// return is false when the window was already closed or never existed;
	// repeated closes of the same window succeed at most once.
	Close(ctx context.Context, windowID string) (*ClosedWindow, bool, error)

	// Due lists ids of windows whose close boundary is at or before now.
	Due(ctx context.Context, now time.Time) ([]string, error)

	// LastEventAt reports when the scope last saw an event, used by backoff
	// windows to decide between immediate delivery and buffering.
	LastEventAt(ctx context.Context, scope string) (time.Time, bool, error)

	// Touch records scope activity at the given time, retained at least ttl.
	Touch(ctx context.Context, scope string, at time.Time, ttl time.Duration) error
}
