package workunit

import "context"

// Stream is an in-order sequence of increments produced by one turn.
//
// Next blocks until the next increment is available, the stream ends
// (io.EOF), the turn fails (any other error), or ctx is done. After
// cancellation the stream must stop yielding within bounded time;
// cancellation is cooperative, the broker never kills the work unit
// forcibly.
type Stream interface {
	Next(ctx context.Context) (Increment, error)
	Close() error
}

// Adapter wraps one work unit. Start begins a turn for the given user
// content and returns the turn's increment stream. The ctx passed to
// Start covers the whole turn; cancelling it interrupts the turn.
type Adapter interface {
	Start(ctx context.Context, content string) (Stream, error)
}

// Factory constructs an adapter for a new session. Construction errors
// propagate to the caller of session creation; a failed construction
// leaves no session behind.
type Factory func(cfg Config) (Adapter, error)
