// Package workunit defines the contract between a session and the
// opaque, streaming, interruptible operation it drives.
package workunit

// Kind discriminates the closed set of increment variants.
type Kind string

const (
	// KindTextDelta is a cumulative snapshot of the turn's streaming
	// text. Each delta replaces the previous one.
	KindTextDelta Kind = "text-delta"

	// KindToolInvocation is a discrete tool call with its input and,
	// when already available, its output.
	KindToolInvocation Kind = "tool-invocation"

	// KindResult is the final authoritative text for the turn.
	KindResult Kind = "result"
)

// ToolInvocation describes one tool call emitted by the work unit.
type ToolInvocation struct {
	Name   string
	Input  string
	Output string
}

// Increment is one unit of streamed output from a work unit. Exactly one
// variant is populated, selected by Kind.
type Increment struct {
	Kind Kind
	Text string
	Tool *ToolInvocation
}

// Config is the opaque configuration blob a session passes to its
// adapter at creation. The broker never interprets it beyond Cwd.
type Config struct {
	Cwd     string
	Context string
}
