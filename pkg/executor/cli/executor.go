// Package cli runs agent sessions from a terminal and renders their stream
// events as they arrive.
//
// Example usage:
//
//	a, _ := app.New(ctx, cfg)
//	executor := cli.NewExecutor(a.Sessions, a.Bridge)
//	if _, err := executor.Run(ctx, "What is on example.com?"); err != nil {
//	    log.Fatal(err)
//	}
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/entrhq/scout/pkg/agent"
	"github.com/entrhq/scout/pkg/bridge"
	"github.com/entrhq/scout/pkg/types"
)

// ErrSessionFailed is returned by Run when the session ended with an error event.
var ErrSessionFailed = errors.New("session failed")

// Sessions starts agent sessions.
type Sessions interface {
	Start(ctx context.Context, prompt, requestID string) error
}

// Executor renders sessions to a terminal.
type Executor struct {
	sessions Sessions
	bridge   *bridge.Bridge
	reader   *bufio.Reader
	writer   io.Writer
}

// ExecutorOption is a function that configures an Executor.
type ExecutorOption func(*Executor)

// WithWriter sets a custom output writer (default is os.Stdout).
func WithWriter(w io.Writer) ExecutorOption {
	return func(e *Executor) {
		e.writer = w
	}
}

// WithReader sets the input read by Interactive (default is os.Stdin).
func WithReader(r io.Reader) ExecutorOption {
	return func(e *Executor) {
		e.reader = bufio.NewReader(r)
	}
}

// NewExecutor creates an executor that starts sessions on sessions and reads
// their events from b.
func NewExecutor(sessions Sessions, b *bridge.Bridge, opts ...ExecutorOption) *Executor {
	e := &Executor{
		sessions: sessions,
		bridge:   b,
		reader:   bufio.NewReader(os.Stdin),
		writer:   os.Stdout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run runs prompt as one session and prints it as it streams. Cancelling ctx
// cancels the session.
func (e *Executor) Run(ctx context.Context, prompt string) (*types.Response, error) {
	requestID := uuid.NewString()

	sub := e.bridge.Subscribe(requestID)
	defer sub.Close()

	if err := e.sessions.Start(ctx, prompt, requestID); err != nil {
		return nil, err
	}

	streaming := false
	for {
		select {
		case event, ok := <-sub.Events():
			if !ok {
				// Abandoned streams close without a terminal event.
				if streaming {
					fmt.Fprintln(e.writer)
				}
				fmt.Fprintln(e.writer, tipsStyle.Render("Cancelled."))
				return nil, agent.ErrCancelled
			}
			switch event.Type {
			case types.EventTypeStart:
			case types.EventTypeChunk:
				streaming = true
				fmt.Fprint(e.writer, event.Delta)
			case types.EventTypeEnd:
				e.handleEnd(event.Response, streaming)
				return event.Response, nil
			case types.EventTypeError:
				if streaming {
					fmt.Fprintln(e.writer)
				}
				fmt.Fprintln(e.writer, errorStyle.Render("Error: "+event.Message))
				return nil, fmt.Errorf("%w: %s", ErrSessionFailed, event.Message)
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (e *Executor) handleEnd(resp *types.Response, streamed bool) {
	if streamed {
		fmt.Fprintln(e.writer)
	} else if resp != nil && resp.Content != "" {
		fmt.Fprintln(e.writer, resp.Content)
	}
	if resp != nil && resp.URL != "" {
		fmt.Fprintln(e.writer, tipsStyle.Render("Page: ")+urlStyle.Render(resp.URL))
	}
}

// Interactive reads prompts line by line and runs each as its own session
// until input ends, the user types exit or quit, or ctx is done.
func (e *Executor) Interactive(ctx context.Context) error {
	fmt.Fprintln(e.writer, headerStyle.Render("Scout"))
	fmt.Fprintln(e.writer, tipsStyle.Render("Type a request and press Enter. Type 'exit' or 'quit' to leave."))
	fmt.Fprintln(e.writer)

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		fmt.Fprint(e.writer, promptStyle.Render("> "))
		input, err := e.reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("failed to read input: %w", err)
		}
		eof := errors.Is(err, io.EOF)

		input = strings.TrimSpace(input)
		switch {
		case input == "exit" || input == "quit":
			return nil
		case input != "":
			if _, runErr := e.Run(ctx, input); runErr != nil && !isSessionOutcome(runErr) {
				return runErr
			}
			fmt.Fprintln(e.writer)
		}
		if eof {
			return nil
		}
	}
}

// isSessionOutcome reports whether err only describes how one session ended.
func isSessionOutcome(err error) bool {
	return errors.Is(err, ErrSessionFailed) ||
		errors.Is(err, agent.ErrCancelled) ||
		errors.Is(err, context.Canceled)
}
