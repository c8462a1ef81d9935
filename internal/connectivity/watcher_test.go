package connectivity

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/angelmondragon/draftsync/pkg/logger"
)

type stubPinger struct {
	mu  sync.Mutex
	err error
}

func (s *stubPinger) Ping(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *stubPinger) set(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

type recordedStatus struct {
	mu     sync.Mutex
	values []bool
}

func (r *recordedStatus) SetOnline(v bool) {
	r.mu.Lock()
	r.values = append(r.values, v)
	r.mu.Unlock()
}

func newTestWatcher(t *testing.T, p pinger, rec statusRecorder) *Watcher {
	t.Helper()
	w, err := NewWatcher(WatcherParams{
		Pinger:   p,
		Interval: time.Hour,
		Logger:   logger.New(logger.Options{ServiceName: "test", Output: &bytes.Buffer{}}),
		Metrics:  rec,
	})
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	return w
}

func TestWatcherReconnectFiresOnTransition(t *testing.T) {
	p := &stubPinger{err: errors.New("offline")}
	rec := &recordedStatus{}
	w := newTestWatcher(t, p, rec)

	fired := make(chan struct{}, 4)
	w.OnReconnect(func(context.Context) { fired <- struct{}{} })

	if w.Check(context.Background()) {
		t.Fatalf("expected offline")
	}
	p.set(nil)
	if !w.Check(context.Background()) || !w.Online() {
		t.Fatalf("expected online")
	}
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatalf("reconnect callback not fired")
	}

	// staying online does not fire again
	w.Check(context.Background())
	select {
	case <-fired:
		t.Fatalf("callback fired without a transition")
	case <-time.After(50 * time.Millisecond):
	}

	p.set(errors.New("down"))
	if w.Check(context.Background()) || w.Online() {
		t.Fatalf("expected offline after failed probe")
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.values) != 4 || rec.values[0] || !rec.values[1] || rec.values[3] {
		t.Fatalf("unexpected recorded states %v", rec.values)
	}
}

func TestWatcherRunStopsOnCancel(t *testing.T) {
	w := newTestWatcher(t, &stubPinger{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("run did not return after cancel")
	}
}

func TestNewWatcherValidates(t *testing.T) {
	if _, err := NewWatcher(WatcherParams{}); err == nil {
		t.Fatalf("expected error without pinger")
	}
	if _, err := NewWatcher(WatcherParams{Pinger: &stubPinger{}, Logger: logger.New(logger.Options{})}); err == nil {
		t.Fatalf("expected error without interval")
	}
}
