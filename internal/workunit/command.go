package workunit

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
)

// maxOutputLine bounds a single stdout line from the work unit.
const maxOutputLine = 1024 * 1024

// CommandAdapter runs an external streaming program as the work unit.
// Each turn spawns the configured command in the session's working
// directory, writes the user content to its stdin, and translates
// stdout lines into cumulative text deltas. A clean exit yields a
// result increment with the full accumulated text; a non-zero exit
// fails the turn. Cancelling the turn context kills the process.
type CommandAdapter struct {
	cfg     Config
	command string
	args    []string
}

// NewCommandAdapter creates an adapter that runs command with args for
// every turn. cfg.Cwd becomes the process working directory and
// cfg.Context, when set, is exported as WORKUNIT_CONTEXT.
func NewCommandAdapter(cfg Config, command string, args ...string) *CommandAdapter {
	return &CommandAdapter{cfg: cfg, command: command, args: args}
}

// CommandFactory returns a Factory that builds a CommandAdapter per
// session for the given command line.
func CommandFactory(command string, args ...string) Factory {
	return func(cfg Config) (Adapter, error) {
		if command == "" {
			return nil, fmt.Errorf("work unit command is empty")
		}
		return NewCommandAdapter(cfg, command, args...), nil
	}
}

// Start spawns the command and begins streaming its output.
func (a *CommandAdapter) Start(ctx context.Context, content string) (Stream, error) {
	cmd := exec.CommandContext(ctx, a.command, a.args...)
	cmd.Dir = a.cfg.Cwd
	cmd.Stdin = strings.NewReader(content + "\n")
	if a.cfg.Context != "" {
		cmd.Env = append(cmd.Environ(), "WORKUNIT_CONTEXT="+a.cfg.Context)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", a.command, err)
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), maxOutputLine)

	s := &commandStream{cmd: cmd, items: make(chan streamItem, 16)}
	go s.pump(scanner)
	return s, nil
}

type commandStream struct {
	cmd   *exec.Cmd
	items chan streamItem

	closeOnce sync.Once
}

// pump reads stdout lines, emitting each as a cumulative text delta,
// then waits for the process and emits the terminal item.
func (s *commandStream) pump(scanner *bufio.Scanner) {
	var acc strings.Builder
	for scanner.Scan() {
		if acc.Len() > 0 {
			acc.WriteByte('\n')
		}
		acc.WriteString(scanner.Text())
		s.items <- streamItem{inc: Increment{Kind: KindTextDelta, Text: acc.String()}}
	}

	scanErr := scanner.Err()
	if scanErr != nil && s.cmd.Process != nil {
		// Nothing drains stdout anymore; kill so Wait cannot block on a
		// full pipe.
		_ = s.cmd.Process.Kill()
	}
	err := s.cmd.Wait()
	switch {
	case scanErr != nil:
		// Truncated output must never pass for a clean result.
		s.items <- streamItem{err: fmt.Errorf("read work unit output: %w", scanErr)}
	case err != nil:
		s.items <- streamItem{err: fmt.Errorf("work unit exited: %w", err)}
	default:
		s.items <- streamItem{inc: Increment{Kind: KindResult, Text: acc.String()}}
		s.items <- streamItem{err: io.EOF}
	}
	close(s.items)
}

func (s *commandStream) Next(ctx context.Context) (Increment, error) {
	select {
	case <-ctx.Done():
		return Increment{}, ctx.Err()
	case item, ok := <-s.items:
		if !ok {
			return Increment{}, io.EOF
		}
		return item.inc, item.err
	}
}

// Close kills the process if it is still running and drains the pump.
func (s *commandStream) Close() error {
	s.closeOnce.Do(func() {
		if s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
		}
		go func() {
			for range s.items {
			}
		}()
	})
	return nil
}
