package connectivity

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/angelmondragon/draftsync/pkg/logger"
)

const defaultProbeTimeout = 3 * time.Second

type pinger interface {
	Ping(ctx context.Context) error
}

type statusRecorder interface {
	SetOnline(bool)
}

// WatcherParams wires a Watcher.
type WatcherParams struct {
	Pinger   pinger
	Interval time.Duration
	Timeout  time.Duration
	Logger   *logger.Logger
	Metrics  statusRecorder
}

// Watcher tracks whether the content API is reachable by probing it on an
// interval. The initial state is offline until the first successful probe.
type Watcher struct {
	pinger   pinger
	interval time.Duration
	timeout  time.Duration
	logg     *logger.Logger
	metrics  statusRecorder

	online atomic.Bool

	mu          sync.Mutex
	onReconnect []func(context.Context)
}

func NewWatcher(params WatcherParams) (*Watcher, error) {
	if params.Pinger == nil {
		return nil, fmt.Errorf("pinger is required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if params.Interval <= 0 {
		return nil, fmt.Errorf("interval must be positive")
	}
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	return &Watcher{
		pinger:   params.Pinger,
		interval: params.Interval,
		timeout:  timeout,
		logg:     params.Logger,
		metrics:  params.Metrics,
	}, nil
}

// Online reports the result of the latest probe.
func (w *Watcher) Online() bool {
	return w.online.Load()
}

// OnReconnect registers fn to run after every offline to online transition.
func (w *Watcher) OnReconnect(fn func(context.Context)) {
	if fn == nil {
		return
	}
	w.mu.Lock()
	w.onReconnect = append(w.onReconnect, fn)
	w.mu.Unlock()
}

// Run probes immediately and then on every tick until ctx is done.
func (w *Watcher) Run(ctx context.Context) {
	w.Check(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.Check(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Check runs one probe and returns the resulting state.
func (w *Watcher) Check(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, w.timeout)
	err := w.pinger.Ping(probeCtx)
	cancel()

	online := err == nil
	was := w.online.Swap(online)
	if w.metrics != nil {
		w.metrics.SetOnline(online)
	}

	switch {
	case online && !was:
		w.logg.Info(w.logg.WithComponent(ctx, "connectivity"), "content api reachable")
		w.fireReconnect(ctx)
	case !online && was:
		w.logg.Warn(w.logg.WithField(w.logg.WithComponent(ctx, "connectivity"), "error", err.Error()), "content api unreachable")
	}
	return online
}

func (w *Watcher) fireReconnect(ctx context.Context) {
	w.mu.Lock()
	callbacks := append([]func(context.Context){}, w.onReconnect...)
	w.mu.Unlock()

	for _, fn := range callbacks {
		go fn(ctx)
	}
}
