package dispatcher

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rcdash/telemetry/pkg/core"
)

// testLogger implements Logger for testing
type testLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *testLogger) Debug(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("DEBUG: %s %v", msg, keysAndValues))
}

func (l *testLogger) Info(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("INFO: %s %v", msg, keysAndValues))
}

func (l *testLogger) Error(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("ERROR: %s %v", msg, keysAndValues))
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *testLogger) {
	logger := &testLogger{}

	d, err := New(logger)
	if err != nil {
		t.Fatalf("failed to create dispatcher: %v", err)
	}

	return d, logger
}

func TestDispatcher_SyncSink(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var got *core.Snapshot
	d.Register(KindSnapshot, "hub", func(e Event) error {
		got = e.Snapshot
		return nil
	})

	err := d.Dispatch(SnapshotEvent(core.Snapshot{Seq: 4, SpeedKmh: 12}))

	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if got == nil || got.Seq != 4 {
		t.Errorf("expected snapshot 4, got %+v", got)
	}
}

func TestDispatcher_FanOut(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var a, b atomic.Int32
	d.Register(KindSnapshot, "a", func(Event) error { a.Add(1); return nil })
	d.Register(KindSnapshot, "b", func(Event) error { b.Add(1); return errors.New("boom") })
	d.Register(KindSignal, "c", func(Event) error { t.Error("signal sink called"); return nil })

	err := d.Dispatch(SnapshotEvent(core.Snapshot{}))

	if err == nil || !strings.Contains(err.Error(), "b: boom") {
		t.Errorf("expected joined error naming sink b, got %v", err)
	}
	if a.Load() != 1 || b.Load() != 1 {
		t.Errorf("expected both sinks called once, got a=%d b=%d", a.Load(), b.Load())
	}
	if names := d.Sinks(KindSnapshot); len(names) != 2 || names[0] != "a" {
		t.Errorf("unexpected sinks %v", names)
	}
}

func TestDispatcher_UnknownKind(t *testing.T) {
	d, _ := newTestDispatcher(t)

	err := d.Dispatch(Event{Kind: "lap"})

	if err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestDispatcher_BufferedSink(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var processed atomic.Int32
	var wg sync.WaitGroup
	wg.Add(3)

	d.Register(KindSignal, "recorder", func(e Event) error {
		processed.Add(1)
		wg.Done()
		return nil
	}, Buffered(100))

	gas := 0.5
	for i := 0; i < 3; i++ {
		if err := d.Dispatch(SignalEvent(core.RawSignal{Gas: &gas})); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	}

	wg.Wait()

	if processed.Load() != 3 {
		t.Errorf("expected 3 processed, got %d", processed.Load())
	}
}

func TestDispatcher_BufferedDropsWhenFull(t *testing.T) {
	d, _ := newTestDispatcher(t)

	// Block the sink so the queue fills up
	block := make(chan struct{})
	started := make(chan struct{}, 1)
	d.Register(KindSnapshot, "slow", func(e Event) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-block
		return nil
	}, Buffered(2))

	d.Dispatch(SnapshotEvent(core.Snapshot{})) // being processed
	<-started
	d.Dispatch(SnapshotEvent(core.Snapshot{})) // queued
	d.Dispatch(SnapshotEvent(core.Snapshot{})) // queued

	// This should be dropped
	err := d.Dispatch(SnapshotEvent(core.Snapshot{}))

	if !errors.Is(err, ErrQueueFull) {
		t.Errorf("expected ErrQueueFull, got %v", err)
	}

	close(block)
}

func TestDispatcher_BufferedBlocking(t *testing.T) {
	d, _ := newTestDispatcher(t)

	block := make(chan struct{})
	started := make(chan struct{}, 1)
	d.Register(KindSnapshot, "blocking", func(e Event) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-block
		return nil
	}, Buffered(1), Blocking())

	// First event starts processing
	d.Dispatch(SnapshotEvent(core.Snapshot{}))
	<-started
	// Second event fills the queue
	d.Dispatch(SnapshotEvent(core.Snapshot{}))

	// Third event should block (test with timeout)
	done := make(chan struct{})
	go func() {
		d.Dispatch(SnapshotEvent(core.Snapshot{}))
		close(done)
	}()

	select {
	case <-done:
		t.Error("dispatch should have blocked")
	case <-time.After(50 * time.Millisecond):
		// Expected - dispatch is blocking
	}

	close(block)
	<-done
}

func TestDispatcher_LoggedSink(t *testing.T) {
	d, logger := newTestDispatcher(t)

	d.Register(KindSnapshot, "logged", func(e Event) error {
		return nil
	}, Logged())

	d.Dispatch(SnapshotEvent(core.Snapshot{}))

	logger.mu.Lock()
	defer logger.mu.Unlock()

	if len(logger.messages) < 2 {
		t.Errorf("expected at least 2 log messages, got %d", len(logger.messages))
	}
}

func TestDispatcher_LoggedSinkError(t *testing.T) {
	d, logger := newTestDispatcher(t)

	d.Register(KindSnapshot, "failing", func(e Event) error {
		return fmt.Errorf("test error")
	}, Logged())

	d.Dispatch(SnapshotEvent(core.Snapshot{}))

	logger.mu.Lock()
	defer logger.mu.Unlock()

	hasError := false
	for _, msg := range logger.messages {
		if strings.HasPrefix(msg, "ERROR") {
			hasError = true
			break
		}
	}

	if !hasError {
		t.Error("expected error log message")
	}
}

func TestDispatcher_HasHandler(t *testing.T) {
	d, _ := newTestDispatcher(t)

	d.Register(KindSnapshot, "exists", func(e Event) error { return nil })

	if !d.HasHandler(KindSnapshot) {
		t.Error("expected handler to exist")
	}

	if d.HasHandler(KindSignal) {
		t.Error("expected handler to not exist")
	}
}

func TestDispatcher_CloseDrains(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var processed atomic.Int32
	d.Register(KindSnapshot, "recorder", func(e Event) error {
		time.Sleep(time.Millisecond)
		processed.Add(1)
		return nil
	}, Buffered(100), Logged())

	for i := 0; i < 20; i++ {
		if err := d.Dispatch(SnapshotEvent(core.Snapshot{Seq: uint64(i)})); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	d.Close()
	d.Close()

	if processed.Load() != 20 {
		t.Errorf("expected 20 processed after Close, got %d", processed.Load())
	}
	if err := d.Dispatch(SnapshotEvent(core.Snapshot{})); err == nil {
		t.Error("expected error after Close")
	}
}

func TestDispatcher_QueueLengths(t *testing.T) {
	d, _ := newTestDispatcher(t)

	block := make(chan struct{})
	started := make(chan struct{}, 1)
	d.Register(KindSnapshot, "slow", func(e Event) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-block
		return nil
	}, Buffered(10))
	d.Register(KindSnapshot, "sync", func(e Event) error { return nil })

	d.Dispatch(SnapshotEvent(core.Snapshot{}))
	<-started
	d.Dispatch(SnapshotEvent(core.Snapshot{}))
	d.Dispatch(SnapshotEvent(core.Snapshot{}))

	lengths := d.QueueLengths()
	if len(lengths) != 1 {
		t.Errorf("expected only the buffered sink, got %v", lengths)
	}
	if lengths["snapshot/slow"] != 2 {
		t.Errorf("expected 2 queued, got %d", lengths["snapshot/slow"])
	}

	close(block)
}
