package observability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

// Logger emits structured events to an underlying sink.
type Logger interface {
	Log(context.Context, Event) error
}

// LoggerFunc adapts a function into a Logger.
type LoggerFunc func(context.Context, Event) error

// Log implements Logger.
func (f LoggerFunc) Log(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// JSONLogger writes each event as a single JSON object on its own line.
type JSONLogger struct {
	mu  sync.Mutex
	w   io.Writer
	now func() time.Time
}

// NewJSONLogger builds a JSONLogger writing to the provided io.Writer.
func NewJSONLogger(w io.Writer) *JSONLogger {
	return &JSONLogger{w: w, now: time.Now}
}

// Log implements Logger by emitting a JSON representation of the event.
func (l *JSONLogger) Log(_ context.Context, event Event) error {
	if l == nil || l.w == nil {
		return fmt.Errorf("json logger is not configured")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = l.now()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if _, err := l.w.Write(append(payload, '\n')); err != nil {
		return fmt.Errorf("write event: %w", err)
	}

	return nil
}

// TextLogger renders events as single human readable lines, the way an
// operator reads them on a console or in the cluster log.
//
//	checknode: [error] probe_result gpu_check exit_code=1 timed_out=false
type TextLogger struct {
	mu     sync.Mutex
	w      io.Writer
	prefix string
}

// NewTextLogger builds a TextLogger. Every line starts with prefix followed by a colon.
func NewTextLogger(w io.Writer, prefix string) *TextLogger {
	return &TextLogger{w: w, prefix: prefix}
}

// Log implements Logger.
func (l *TextLogger) Log(_ context.Context, event Event) error {
	if l == nil || l.w == nil {
		return fmt.Errorf("text logger is not configured")
	}

	var b strings.Builder
	if l.prefix != "" {
		b.WriteString(l.prefix)
		b.WriteString(": ")
	}
	fmt.Fprintf(&b, "[%s] %s", event.Level, event.Event)
	if event.Message != "" {
		b.WriteString(" ")
		b.WriteString(event.Message)
	}
	keys := make([]string, 0, len(event.Fields))
	for k := range event.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, event.Fields[k])
	}
	b.WriteByte('\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := io.WriteString(l.w, b.String()); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}

// LevelFilter drops events below a minimum level before forwarding them.
type LevelFilter struct {
	Min  Level
	Next Logger
}

// Log implements Logger.
func (f LevelFilter) Log(ctx context.Context, event Event) error {
	if f.Next == nil {
		return nil
	}
	if event.Level.Severity() < f.Min.Severity() {
		return nil
	}
	return f.Next.Log(ctx, event)
}

// MultiLogger fans each event out to every sink. All sinks are attempted even
// when one of them fails.
type MultiLogger []Logger

// Log implements Logger.
func (m MultiLogger) Log(ctx context.Context, event Event) error {
	var errs []error
	for _, l := range m {
		if l == nil {
			continue
		}
		if err := l.Log(ctx, event.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ Logger = (*JSONLogger)(nil)
var _ Logger = (*TextLogger)(nil)
var _ Logger = LevelFilter{}
var _ Logger = MultiLogger(nil)
