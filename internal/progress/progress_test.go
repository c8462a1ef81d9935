package progress

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/angelmondragon/draftsync/pkg/enums"
	"github.com/angelmondragon/draftsync/pkg/logger"
)

func TestBroadcasterSubscribeReceivesCurrent(t *testing.T) {
	b := NewBroadcaster()

	var first []*Progress
	unsubscribe := b.Subscribe(func(p *Progress) { first = append(first, p) })
	defer unsubscribe()
	if len(first) != 1 || first[0] != nil {
		t.Fatalf("expected idle nil on subscribe, got %+v", first)
	}

	b.Publish(Progress{ContentID: "d1", ContentType: enums.ContentTypePost, Stage: enums.UploadStageCreating})

	var late []*Progress
	b.Subscribe(func(p *Progress) { late = append(late, p) })
	if len(late) != 1 || late[0] == nil || late[0].ContentID != "d1" {
		t.Fatalf("late subscriber should get current descriptor, got %+v", late)
	}
	if len(first) != 2 || first[1].Stage != enums.UploadStageCreating {
		t.Fatalf("existing subscriber missed update: %+v", first)
	}
}

func TestBroadcasterUnsubscribeAndClear(t *testing.T) {
	b := NewBroadcaster()
	var calls int
	unsubscribe := b.Subscribe(func(*Progress) { calls++ })
	var idle bool
	b.Subscribe(func(p *Progress) { idle = p == nil })

	b.Publish(Progress{ContentID: "d1", Progress: 50})
	unsubscribe()
	unsubscribe()
	b.Clear()

	if calls != 2 {
		t.Fatalf("expected 2 calls before unsubscribe, got %d", calls)
	}
	if !idle {
		t.Fatalf("expected idle notification after clear")
	}
	if b.Current() != nil {
		t.Fatalf("expected no current descriptor after clear")
	}
	if b.Listeners() != 1 {
		t.Fatalf("expected one listener left, got %d", b.Listeners())
	}
}

func TestBroadcasterListenerCopiesAreIndependent(t *testing.T) {
	b := NewBroadcaster()
	b.Subscribe(func(p *Progress) {
		if p != nil {
			p.Progress = 99
		}
	})
	b.Publish(Progress{ContentID: "d1", Progress: 10})
	if got := b.Current().Progress; got != 10 {
		t.Fatalf("listener mutated shared state: %d", got)
	}
}

func TestBroadcasterSurvivesPanickingListener(t *testing.T) {
	var buf bytes.Buffer
	b := NewBroadcaster(WithLogger(logger.New(logger.Options{ServiceName: "test", Output: &buf})))
	b.Subscribe(func(p *Progress) {
		if p != nil {
			panic("boom")
		}
	})
	var got *Progress
	b.Subscribe(func(p *Progress) { got = p })

	b.Publish(Progress{ContentID: "d2"})
	if got == nil || got.ContentID != "d2" {
		t.Fatalf("second listener should still be notified")
	}
	if !bytes.Contains(buf.Bytes(), []byte("progress listener panicked")) || !bytes.Contains(buf.Bytes(), []byte("boom")) {
		t.Fatalf("expected panic to be logged, got %s", buf.String())
	}
}

func TestBroadcasterLateSubscriberNeverSeesProgressGoBackwards(t *testing.T) {
	b := NewBroadcaster()
	b.Publish(Progress{ContentID: "d1", Progress: 0})

	const steps = 200
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 1; i <= steps; i++ {
			b.Publish(Progress{ContentID: "d1", Progress: i})
		}
	}()

	for round := 0; round < 50; round++ {
		var mu sync.Mutex
		var seen []int
		unsubscribe := b.Subscribe(func(p *Progress) {
			mu.Lock()
			defer mu.Unlock()
			if p != nil {
				seen = append(seen, p.Progress)
			}
		})
		unsubscribe()

		mu.Lock()
		for i := 1; i < len(seen); i++ {
			if seen[i] < seen[i-1] {
				mu.Unlock()
				t.Fatalf("progress went backwards for a late subscriber: %v", seen)
			}
		}
		mu.Unlock()
	}
	<-done
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []*gcppubsub.Message
	err  error
}

func (f *fakePublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
	return fakeResult{err: f.err}
}

type fakeResult struct{ err error }

func (r fakeResult) Get(context.Context) (string, error) { return "id", r.err }

func TestForwarderPublishesEvents(t *testing.T) {
	pub := &fakePublisher{}
	fwd := newForwarder(pub, logger.New(logger.Options{ServiceName: "test", Output: &bytes.Buffer{}}))
	listener := fwd.Listener()

	listener(nil)
	listener(&Progress{ContentID: "d1", ContentType: enums.ContentTypeRoute, Stage: enums.UploadStageUploadingTrack, Progress: 80})

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.msgs) != 1 {
		t.Fatalf("expected one message, got %d", len(pub.msgs))
	}
	msg := pub.msgs[0]
	if msg.Attributes["stage"] != "uploading_track" || msg.Attributes["progress"] != "80" {
		t.Fatalf("unexpected attributes %+v", msg.Attributes)
	}
	var decoded Progress
	if err := json.Unmarshal(msg.Data, &decoded); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if decoded.ContentID != "d1" || decoded.ContentType != enums.ContentTypeRoute {
		t.Fatalf("unexpected payload %+v", decoded)
	}
}

func TestForwarderPublishFailureDoesNotPanic(t *testing.T) {
	pub := &fakePublisher{err: errors.New("unavailable")}
	fwd := newForwarder(pub, nil)
	fwd.Listener()(&Progress{ContentID: "d1"})
}

func TestNewForwarderNilPublisher(t *testing.T) {
	if NewForwarder(nil, nil) != nil {
		t.Fatalf("expected nil forwarder")
	}
}
