package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/authflow/internal/logging"
)

type countingSink struct {
	count atomic.Int64
	err   error
}

func (s *countingSink) Emit(context.Context, Event) error {
	s.count.Add(1)
	return s.err
}

type gateSink struct {
	gate chan struct{}
}

func (s *gateSink) Emit(context.Context, Event) error {
	<-s.gate
	return nil
}

func TestSyncDispatcherDeliversBeforeReturn(t *testing.T) {
	sink := &countingSink{}
	d := NewDispatcher(Config{}, sink, nil)
	defer d.Close()

	d.Emit(context.Background(), Event{Kind: "login_success"})
	if sink.count.Load() != 1 {
		t.Fatalf("expected inline delivery, got %d", sink.count.Load())
	}
}

func TestSyncDispatcherIgnoresCancelledContext(t *testing.T) {
	sink := NewChannelSink(1)
	d := NewDispatcher(Config{}, sink, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Emit(ctx, Event{Kind: "login_failure"})

	select {
	case ev := <-sink.Events():
		if ev.Timestamp.IsZero() {
			t.Fatal("expected timestamp to be stamped")
		}
	default:
		t.Fatal("expected event despite cancelled request context")
	}
}

func TestDispatcherCountsSinkFailures(t *testing.T) {
	var buf bytes.Buffer
	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(&buf, nil)))
	sink := &countingSink{err: errors.New("disk full")}
	d := NewDispatcher(Config{}, sink, log)

	d.Emit(context.Background(), Event{Kind: "reset_request"})
	if d.Failed() != 1 {
		t.Fatalf("expected one failure, got %d", d.Failed())
	}
	if !strings.Contains(buf.String(), "disk full") {
		t.Fatalf("expected failure to be logged, got %q", buf.String())
	}
}

func TestAsyncDropIfFullDoesNotBlock(t *testing.T) {
	sink := &gateSink{gate: make(chan struct{})}
	d := NewDispatcher(Config{Async: true, BufferSize: 1, DropIfFull: true}, sink, nil)
	defer func() {
		close(sink.gate)
		d.Close()
	}()

	start := time.Now()
	for i := 0; i < 3; i++ {
		d.Emit(context.Background(), Event{Kind: "enrollment"})
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Fatal("expected non-blocking emit when DropIfFull is true")
	}
	if d.Dropped() == 0 {
		t.Fatal("expected at least one dropped event")
	}
}

func TestAsyncCloseDrainsBuffer(t *testing.T) {
	sink := &countingSink{}
	d := NewDispatcher(Config{Async: true, BufferSize: 64}, sink, nil)

	for i := 0; i < 50; i++ {
		d.Emit(context.Background(), Event{Kind: "email_verify"})
	}
	d.Close()
	d.Close()

	if sink.count.Load() != 50 {
		t.Fatalf("expected 50 delivered after Close, got %d", sink.count.Load())
	}

	d.Emit(context.Background(), Event{Kind: "late"})
	if sink.count.Load() != 50 {
		t.Fatal("expected emits after Close to be ignored")
	}
}

func TestNilDispatcherIsSafe(t *testing.T) {
	var d *Dispatcher
	d.Emit(context.Background(), Event{})
	d.Close()
	if d.Dropped() != 0 || d.Failed() != 0 {
		t.Fatal("expected zero counters on nil dispatcher")
	}
}

func TestJSONWriterSinkOneLinePerEvent(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)

	_ = sink.Emit(context.Background(), Event{Kind: "login_success", State: "session_issued", Success: true, AccountID: "acct-1"})
	_ = sink.Emit(context.Background(), Event{Kind: "login_failure", State: "failed", Reason: "wrong_password"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var ev Event
	if err := json.Unmarshal([]byte(lines[1]), &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ev.Reason != "wrong_password" || ev.State != "failed" {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestLoggerSinkLevels(t *testing.T) {
	var buf bytes.Buffer
	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(&buf, nil)))
	sink := NewLoggerSink(log)

	_ = sink.Emit(context.Background(), Event{Kind: "login_success", Success: true})
	_ = sink.Emit(context.Background(), Event{Kind: "login_failure", Reason: "rate_limited", IP: "203.0.113.9"})

	out := buf.String()
	for _, want := range []string{"level=INFO", "level=WARN", "reason=rate_limited", "ip=203.0.113.9"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in %q", want, out)
		}
	}
}

func TestMultiSinkJoinsErrors(t *testing.T) {
	ok := &countingSink{}
	bad := &countingSink{err: errors.New("boom")}

	err := MultiSink{ok, nil, bad}.Emit(context.Background(), Event{})
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected joined error, got %v", err)
	}
	if ok.count.Load() != 1 || bad.count.Load() != 1 {
		t.Fatal("expected both sinks to receive the event")
	}
}
