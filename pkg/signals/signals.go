// Package signals classifies process signals delivered during a run.
//
// Terminal signals cancel the run context so the orchestrator unwinds and
// releases the lock on its normal return path. A second terminal signal means
// the unwind is stuck; the force hook then releases the lock directly and
// exits. Non-terminal signals are logged and otherwise ignored.
package signals

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/olcf/frontier-checknode/pkg/observability"
)

// TerminatedError is the cancellation cause recorded for a terminal signal.
type TerminatedError struct {
	Signal os.Signal
}

func (e *TerminatedError) Error() string {
	return fmt.Sprintf("terminated by signal %s (%d)", e.Signal, signalNumber(e.Signal))
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithForceExit sets the hook run when a terminal signal arrives after the
// run context was already cancelled.
func WithForceExit(fn func(os.Signal)) Option {
	return func(c *Classifier) {
		if fn != nil {
			c.force = fn
		}
	}
}

// WithSignalSets overrides the terminal and non-terminal signal lists.
func WithSignalSets(terminal, nonTerminal []os.Signal) Option {
	return func(c *Classifier) {
		c.terminal = toSet(terminal)
		c.nonTerminal = toSet(nonTerminal)
	}
}

// Classifier routes signals to cancellation or logging.
type Classifier struct {
	logger      observability.Logger
	node        string
	cancel      context.CancelCauseFunc
	force       func(os.Signal)
	terminal    map[os.Signal]bool
	nonTerminal map[os.Signal]bool

	mu        sync.Mutex
	cancelled bool

	ch   chan os.Signal
	done chan struct{}
	once sync.Once
}

// New builds a Classifier that cancels the run through cancel.
func New(logger observability.Logger, node string, cancel context.CancelCauseFunc, opts ...Option) *Classifier {
	c := &Classifier{
		logger:      logger,
		node:        node,
		cancel:      cancel,
		force:       func(os.Signal) { os.Exit(1) },
		terminal:    toSet(terminalSignals),
		nonTerminal: toSet(nonTerminalSignals),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start subscribes to every classified signal and handles them until Stop.
func (c *Classifier) Start() {
	all := make([]os.Signal, 0, len(c.terminal)+len(c.nonTerminal))
	for sig := range c.terminal {
		all = append(all, sig)
	}
	for sig := range c.nonTerminal {
		all = append(all, sig)
	}

	c.ch = make(chan os.Signal, 4)
	c.done = make(chan struct{})
	signal.Notify(c.ch, all...)
	go func() {
		for {
			select {
			case sig := <-c.ch:
				c.Handle(sig)
			case <-c.done:
				return
			}
		}
	}()
}

// Stop unsubscribes and ends the handling goroutine. It is safe to call more than once.
func (c *Classifier) Stop() {
	c.once.Do(func() {
		if c.ch != nil {
			signal.Stop(c.ch)
		}
		if c.done != nil {
			close(c.done)
		}
	})
}

// Handle classifies one signal and reports whether it was terminal.
func (c *Classifier) Handle(sig os.Signal) bool {
	if !c.terminal[sig] {
		level := observability.LevelWarn
		if isChildStatus(sig) {
			level = observability.LevelDebug
		}
		c.log(level, "signal_ignored", sig, "non-terminal signal received, continuing")
		return false
	}

	c.mu.Lock()
	again := c.cancelled
	c.cancelled = true
	c.mu.Unlock()

	if again {
		c.log(observability.LevelError, "signal_forced_exit", sig, "second terminal signal, releasing lock and exiting")
		c.force(sig)
		return true
	}
	c.log(observability.LevelError, "signal_terminal", sig, "terminal signal received, aborting run")
	if c.cancel != nil {
		c.cancel(&TerminatedError{Signal: sig})
	}
	return true
}

func (c *Classifier) log(level observability.Level, event string, sig os.Signal, msg string) {
	if c.logger == nil {
		return
	}
	_ = c.logger.Log(context.Background(), observability.Event{
		Level:     level,
		Node:      c.node,
		Component: "signals",
		Event:     event,
		Message:   msg,
		Fields: map[string]interface{}{
			"signal": sig.String(),
			"signo":  signalNumber(sig),
		},
	})
}

func signalNumber(sig os.Signal) int {
	if s, ok := sig.(syscall.Signal); ok {
		return int(s)
	}
	return -1
}

func toSet(sigs []os.Signal) map[os.Signal]bool {
	set := make(map[os.Signal]bool, len(sigs))
	for _, s := range sigs {
		set[s] = true
	}
	return set
}
