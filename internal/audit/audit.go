package audit

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/MrEthical07/authflow/internal/logging"
)

// Event is one append-only security fact.
type Event struct {
	Timestamp time.Time         `json:"timestamp"`
	Kind      string            `json:"kind"`
	State     string            `json:"state,omitempty"`
	Success   bool              `json:"success"`
	AccountID string            `json:"account_id,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
	IP        string            `json:"ip,omitempty"`
	UserAgent string            `json:"user_agent,omitempty"`
	Reason    string            `json:"reason,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Sink receives emitted audit events. Implementations must be safe for
// concurrent use.
type Sink interface {
	Emit(ctx context.Context, event Event) error
}

// NoOpSink drops audit events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) error { return nil }

// ChannelSink writes audit events into a buffered channel.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan Event, buffer),
	}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) error {
	select {
	case s.events <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Emit(_ context.Context, event Event) error {
	if s == nil || s.writer == nil {
		return nil
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.writer.Write(data)
	return err
}

// LoggerSink records events through a structured logger: successes at info,
// failures at warn.
type LoggerSink struct {
	log logging.Logger
}

func NewLoggerSink(log logging.Logger) *LoggerSink {
	return &LoggerSink{log: log}
}

func (s *LoggerSink) Emit(ctx context.Context, event Event) error {
	if s == nil || s.log == nil {
		return nil
	}
	args := []any{
		"kind", event.Kind,
		"state", event.State,
		"success", event.Success,
	}
	if event.AccountID != "" {
		args = append(args, "account_id", event.AccountID)
	}
	if event.IP != "" {
		args = append(args, "ip", event.IP)
	}
	if event.Reason != "" {
		args = append(args, "reason", event.Reason)
	}
	for k, v := range event.Metadata {
		args = append(args, k, v)
	}

	if event.Success {
		s.log.Info(ctx, "audit", args...)
	} else {
		s.log.Warn(ctx, "audit", args...)
	}
	return nil
}

// MultiSink fans an event out to every sink and joins their errors.
type MultiSink []Sink

func (m MultiSink) Emit(ctx context.Context, event Event) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Emit(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
