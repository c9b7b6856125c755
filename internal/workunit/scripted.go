package workunit

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// ScriptFunc produces the increments for one turn given the user content.
type ScriptFunc func(content string) []Increment

// ScriptedAdapter replays a scripted sequence of increments per turn.
// It backs the development server and the test suites; turns are
// deterministic and interrupt at increment boundaries.
type ScriptedAdapter struct {
	script ScriptFunc
}

// NewScriptedAdapter creates an adapter that derives each turn's
// increments from script.
func NewScriptedAdapter(script ScriptFunc) *ScriptedAdapter {
	return &ScriptedAdapter{script: script}
}

// NewEchoAdapter returns a scripted adapter that streams back the user
// content character by character and finishes with a result increment.
// It is the default work unit of the development server.
func NewEchoAdapter() *ScriptedAdapter {
	return NewScriptedAdapter(func(content string) []Increment {
		reply := fmt.Sprintf("echo: %s", content)
		incs := make([]Increment, 0, len(reply)+1)
		for i := 1; i <= len(reply); i++ {
			incs = append(incs, Increment{Kind: KindTextDelta, Text: reply[:i]})
		}
		incs = append(incs, Increment{Kind: KindResult, Text: reply})
		return incs
	})
}

// Start begins a scripted turn.
func (a *ScriptedAdapter) Start(ctx context.Context, content string) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &scriptedStream{incs: a.script(content)}, nil
}

type scriptedStream struct {
	mu     sync.Mutex
	incs   []Increment
	pos    int
	closed bool
}

func (s *scriptedStream) Next(ctx context.Context) (Increment, error) {
	if err := ctx.Err(); err != nil {
		return Increment{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.pos >= len(s.incs) {
		return Increment{}, io.EOF
	}
	inc := s.incs[s.pos]
	s.pos++
	return inc, nil
}

func (s *scriptedStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// BlockingAdapter streams increments pushed through a channel, which
// lets tests hold a turn open across assertions. Push increments with
// Emit and terminate the turn with Finish or Fail.
type BlockingAdapter struct {
	ch chan streamItem
}

type streamItem struct {
	inc Increment
	err error
}

// NewBlockingAdapter creates a channel-fed adapter.
func NewBlockingAdapter() *BlockingAdapter {
	return &BlockingAdapter{ch: make(chan streamItem, 64)}
}

// Emit queues one increment for the in-flight turn.
func (a *BlockingAdapter) Emit(inc Increment) {
	a.ch <- streamItem{inc: inc}
}

// Finish ends the in-flight turn normally.
func (a *BlockingAdapter) Finish() {
	a.ch <- streamItem{err: io.EOF}
}

// Fail ends the in-flight turn with an error.
func (a *BlockingAdapter) Fail(err error) {
	a.ch <- streamItem{err: err}
}

// Start begins a turn fed by the adapter's channel.
func (a *BlockingAdapter) Start(ctx context.Context, content string) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &blockingStream{ch: a.ch}, nil
}

type blockingStream struct {
	ch chan streamItem
}

func (s *blockingStream) Next(ctx context.Context) (Increment, error) {
	select {
	case <-ctx.Done():
		return Increment{}, ctx.Err()
	case item := <-s.ch:
		return item.inc, item.err
	}
}

func (s *blockingStream) Close() error { return nil }
