package progress

import (
	"context"
	"fmt"
	"sync"

	"github.com/angelmondragon/draftsync/pkg/enums"
	"github.com/angelmondragon/draftsync/pkg/logger"
)

// Progress describes the delivery currently in flight.
type Progress struct {
	ContentID   string            `json:"contentId"`
	ContentType enums.ContentType `json:"contentType"`
	Stage       enums.UploadStage `json:"stage"`
	Progress    int               `json:"progress"`
	Error       string            `json:"error,omitempty"`
}

// Listener receives progress updates. A nil value means the queue is idle.
type Listener func(*Progress)

// Broadcaster fans progress out to any number of listeners and remembers the
// latest descriptor for late subscribers. Deliveries are serialized, so every
// listener sees events in publish order; listeners must not publish.
type Broadcaster struct {
	sendMu    sync.Mutex
	mu        sync.Mutex
	nextID    int
	listeners map[int]Listener
	current   *Progress
	logg      *logger.Logger
}

// Option configures a Broadcaster.
type Option func(*Broadcaster)

// WithLogger reports listener panics through logg.
func WithLogger(logg *logger.Logger) Option {
	return func(b *Broadcaster) { b.logg = logg }
}

func NewBroadcaster(opts ...Option) *Broadcaster {
	b := &Broadcaster{listeners: make(map[int]Listener)}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers l and immediately delivers the current descriptor,
// or nil when idle. The returned func removes the listener.
func (b *Broadcaster) Subscribe(l Listener) func() {
	if l == nil {
		return func() {}
	}

	b.sendMu.Lock()
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.listeners[id] = l
	snapshot := clone(b.current)
	b.mu.Unlock()
	b.deliver(l, snapshot)
	b.sendMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.listeners, id)
			b.mu.Unlock()
		})
	}
}

// Publish records p as current and notifies listeners.
func (b *Broadcaster) Publish(p Progress) {
	b.sendMu.Lock()
	defer b.sendMu.Unlock()

	b.mu.Lock()
	b.current = &p
	listeners := b.snapshotListeners()
	b.mu.Unlock()

	for _, l := range listeners {
		b.deliver(l, clone(&p))
	}
}

// Clear marks the queue idle and notifies listeners with nil.
func (b *Broadcaster) Clear() {
	b.sendMu.Lock()
	defer b.sendMu.Unlock()

	b.mu.Lock()
	if b.current == nil {
		b.mu.Unlock()
		return
	}
	b.current = nil
	listeners := b.snapshotListeners()
	b.mu.Unlock()

	for _, l := range listeners {
		b.deliver(l, nil)
	}
}

// Current returns a copy of the latest descriptor, or nil when idle.
func (b *Broadcaster) Current() *Progress {
	b.mu.Lock()
	defer b.mu.Unlock()
	return clone(b.current)
}

// Listeners reports how many listeners are registered.
func (b *Broadcaster) Listeners() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners)
}

func (b *Broadcaster) snapshotListeners() []Listener {
	out := make([]Listener, 0, len(b.listeners))
	for id := 0; id < b.nextID; id++ {
		if l, ok := b.listeners[id]; ok {
			out = append(out, l)
		}
	}
	return out
}

// deliver isolates the publisher from a misbehaving listener.
func (b *Broadcaster) deliver(l Listener, p *Progress) {
	defer func() {
		rec := recover()
		if rec == nil || b.logg == nil {
			return
		}
		ctx := b.logg.WithComponent(context.Background(), "progress")
		b.logg.Error(ctx, "progress listener panicked", fmt.Errorf("panic: %v", rec))
	}()
	l(p)
}

func clone(p *Progress) *Progress {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}
