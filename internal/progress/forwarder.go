package progress

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/angelmondragon/draftsync/pkg/logger"
)

const defaultPublishTimeout = 10 * time.Second

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

// Forwarder mirrors progress events to a Pub/Sub topic.
type Forwarder struct {
	pub     publisher
	logg    *logger.Logger
	timeout time.Duration
	now     func() time.Time
}

// NewForwarder wraps a topic publisher. It returns nil when p is nil so the
// caller can skip subscribing.
func NewForwarder(p *gcppubsub.Publisher, logg *logger.Logger) *Forwarder {
	if p == nil {
		return nil
	}
	return newForwarder(&gcpPublisher{Publisher: p}, logg)
}

func newForwarder(pub publisher, logg *logger.Logger) *Forwarder {
	return &Forwarder{pub: pub, logg: logg, timeout: defaultPublishTimeout, now: time.Now}
}

// Listener returns the callback to register on a Broadcaster. Idle
// notifications are not forwarded.
func (f *Forwarder) Listener() Listener {
	return func(p *Progress) {
		if p == nil {
			return
		}
		f.forward(*p)
	}
}

func (f *Forwarder) forward(p Progress) {
	data, err := json.Marshal(p)
	if err != nil {
		f.logError("encode progress event", err)
		return
	}
	msg := &gcppubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"content_id":   p.ContentID,
			"content_type": string(p.ContentType),
			"stage":        string(p.Stage),
			"progress":     strconv.Itoa(p.Progress),
			"emitted_at":   f.now().UTC().Format(time.RFC3339Nano),
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	result := f.pub.Publish(ctx, msg)
	if result == nil {
		cancel()
		f.logError("publish progress event", errors.New("publisher returned nil result"))
		return
	}
	go func() {
		defer cancel()
		if _, err := result.Get(ctx); err != nil {
			f.logError("publish progress event", err)
		}
	}()
}

func (f *Forwarder) logError(msg string, err error) {
	if f.logg == nil {
		return
	}
	f.logg.Error(f.logg.WithComponent(context.Background(), "progress-forwarder"), msg, err)
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	if p == nil || p.Publisher == nil {
		return nil
	}
	return &gcpPublishResult{PublishResult: p.Publisher.Publish(ctx, msg)}
}

type gcpPublishResult struct {
	*gcppubsub.PublishResult
}

func (r *gcpPublishResult) Get(ctx context.Context) (string, error) {
	if r == nil || r.PublishResult == nil {
		return "", errors.New("publish result is nil")
	}
	return r.PublishResult.Get(ctx)
}
