package uploadqueue

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/angelmondragon/draftsync/internal/drafts"
	"github.com/angelmondragon/draftsync/internal/progress"
	"github.com/angelmondragon/draftsync/internal/remote"
	"github.com/angelmondragon/draftsync/pkg/enums"
	pkgerrors "github.com/angelmondragon/draftsync/pkg/errors"
	"github.com/angelmondragon/draftsync/pkg/logger"
	"github.com/angelmondragon/draftsync/pkg/types"
)

var baseTime = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeStore struct {
	mu          sync.Mutex
	drafts      map[string]*drafts.Draft
	failures    []drafts.Failure
	checkpoints []drafts.Checkpoint
	completed   []string
	listErr     error
	staleAfter  time.Duration
}

func newFakeStore(items ...drafts.Draft) *fakeStore {
	s := &fakeStore{drafts: make(map[string]*drafts.Draft)}
	for _, d := range items {
		s.add(d)
	}
	return s
}

func (s *fakeStore) add(d drafts.Draft) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.Status == "" {
		d.Status = enums.DraftStatusDraft
	}
	if d.ClientID == "" {
		d.ClientID = "client-" + d.ID
	}
	cp := d
	s.drafts[d.ID] = &cp
}

func (s *fakeStore) get(id string) (drafts.Draft, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drafts[id]
	if !ok {
		return drafts.Draft{}, false
	}
	return *d, true
}

func (s *fakeStore) GetDraft(_ context.Context, id string) (*drafts.Draft, error) {
	d, ok := s.get(id)
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (s *fakeStore) GetAllDrafts(_ context.Context, filter drafts.Filter) ([]drafts.Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []drafts.Draft{}
	for _, d := range s.drafts {
		if filter.ContentType != nil && d.ContentType != *filter.ContentType {
			continue
		}
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *fakeStore) ListEligible(_ context.Context, now time.Time) ([]drafts.Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := []drafts.Draft{}
	for _, d := range s.drafts {
		if !d.Status.Eligible() {
			continue
		}
		if d.NextRetryAt != nil && d.NextRetryAt.After(now) {
			continue
		}
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *fakeStore) transition(id string, next enums.DraftStatus, retries int) (*drafts.Draft, error) {
	d, ok := s.drafts[id]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "draft not found")
	}
	if !d.Status.CanTransitionTo(next) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("%s -> %s", d.Status, next))
	}
	if retries < d.Retries {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "retries decreased")
	}
	return d, nil
}

func (s *fakeStore) UpdateDraftStatus(_ context.Context, id string, status enums.DraftStatus, retries *int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.drafts[id]
	if !ok {
		return pkgerrors.New(pkgerrors.CodeNotFound, "draft not found")
	}
	r := current.Retries
	if retries != nil {
		r = *retries
	}
	d, err := s.transition(id, status, r)
	if err != nil {
		return err
	}
	d.Status = status
	d.Retries = r
	if status == enums.DraftStatusUploading {
		d.NextRetryAt = nil
	}
	return nil
}

func (s *fakeStore) RecordFailure(_ context.Context, id string, failure drafts.Failure) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.transition(id, failure.Status, failure.Retries)
	if err != nil {
		return err
	}
	d.Status = failure.Status
	d.Retries = failure.Retries
	d.NextRetryAt = failure.NextRetryAt
	msg := failure.Message
	d.LastError = &msg
	s.failures = append(s.failures, failure)
	return nil
}

func (s *fakeStore) RecordCheckpoint(_ context.Context, id string, cp drafts.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drafts[id]
	if !ok {
		return pkgerrors.New(pkgerrors.CodeNotFound, "draft not found")
	}
	d.Checkpoint = cp
	s.checkpoints = append(s.checkpoints, cp)
	return nil
}

func (s *fakeStore) CompleteDraft(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drafts[id]
	if !ok {
		return nil
	}
	if d.Status != enums.DraftStatusUploading {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "not uploading")
	}
	delete(s.drafts, id)
	s.completed = append(s.completed, id)
	return nil
}

func (s *fakeStore) DeleteDraft(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drafts[id]
	if !ok {
		return nil
	}
	if d.Status == enums.DraftStatusUploading {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "uploading")
	}
	delete(s.drafts, id)
	return nil
}

func (s *fakeStore) NextRetryAt(context.Context) (*time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var earliest *time.Time
	for _, d := range s.drafts {
		if d.Status != enums.DraftStatusFailed || d.NextRetryAt == nil {
			continue
		}
		if earliest == nil || d.NextRetryAt.Before(*earliest) {
			at := *d.NextRetryAt
			earliest = &at
		}
	}
	return earliest, nil
}

func (s *fakeStore) RecoverStaleUploads(_ context.Context, olderThan time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staleAfter = olderThan
	var n int64
	for _, d := range s.drafts {
		if d.Status == enums.DraftStatusUploading {
			d.Status = enums.DraftStatusFailed
			d.NextRetryAt = nil
			n++
		}
	}
	return n, nil
}

type fakeRemote struct {
	mu      sync.Mutex
	creates []remote.CreateRequest
	images  []string
	tracks  []string

	createFn func(ctx context.Context, req remote.CreateRequest) (*remote.Created, error)
	imageFn  func(ctx context.Context, remoteID string, img remote.Image) error
	trackFn  func(ctx context.Context, remoteID string) error
}

func (f *fakeRemote) Create(ctx context.Context, req remote.CreateRequest) (*remote.Created, error) {
	f.mu.Lock()
	f.creates = append(f.creates, req)
	n := len(f.creates)
	fn := f.createFn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, req)
	}
	return &remote.Created{ID: fmt.Sprintf("remote-%d", n)}, nil
}

func (f *fakeRemote) UploadImage(ctx context.Context, _ enums.ContentType, remoteID string, img remote.Image) error {
	f.mu.Lock()
	f.images = append(f.images, remoteID+"/"+img.Name)
	fn := f.imageFn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, remoteID, img)
	}
	return nil
}

func (f *fakeRemote) UploadTrack(ctx context.Context, _ enums.ContentType, remoteID string, _ *types.TrackFeature) error {
	f.mu.Lock()
	f.tracks = append(f.tracks, remoteID)
	fn := f.trackFn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, remoteID)
	}
	return nil
}

func (f *fakeRemote) createCalls() []remote.CreateRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]remote.CreateRequest(nil), f.creates...)
}

type fakeTimer struct {
	mu      sync.Mutex
	delays  []time.Duration
	stopped int
}

func (f *fakeTimer) afterFunc(d time.Duration, _ func()) func() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delays = append(f.delays, d)
	return func() bool {
		f.mu.Lock()
		f.stopped++
		f.mu.Unlock()
		return true
	}
}

func (f *fakeTimer) last() (time.Duration, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.delays) == 0 {
		return 0, false
	}
	return f.delays[len(f.delays)-1], true
}

type staticConnectivity struct{ online bool }

func (c staticConnectivity) Online() bool { return c.online }

type recordedMetrics struct {
	mu       sync.Mutex
	attempts map[string]int
	depth    int
	passes   int
}

func (m *recordedMetrics) IncAttempt(_ string, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.attempts == nil {
		m.attempts = map[string]int{}
	}
	m.attempts[outcome]++
}

func (m *recordedMetrics) ObservePass(time.Duration) {
	m.mu.Lock()
	m.passes++
	m.mu.Unlock()
}

func (m *recordedMetrics) SetQueueDepth(n int) {
	m.mu.Lock()
	m.depth = n
	m.mu.Unlock()
}

type harness struct {
	processor *Processor
	store     *fakeStore
	remote    *fakeRemote
	bus       *progress.Broadcaster
	timer     *fakeTimer
	clock     *testClock
	metrics   *recordedMetrics
	events    *eventLog
}

type eventLog struct {
	mu     sync.Mutex
	events []*progress.Progress
}

func (l *eventLog) listener(p *progress.Progress) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, p)
}

func (l *eventLog) stages() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := []string{}
	for _, e := range l.events {
		if e == nil {
			out = append(out, "idle")
			continue
		}
		out = append(out, string(e.Stage))
	}
	return out
}

func (l *eventLog) lastError() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.events) - 1; i >= 0; i-- {
		if l.events[i] != nil && l.events[i].Error != "" {
			return l.events[i].Error
		}
	}
	return ""
}

func newHarness(t *testing.T, store *fakeStore, api *fakeRemote, mutate ...func(*ProcessorParams)) *harness {
	t.Helper()
	h := &harness{
		store:   store,
		remote:  api,
		bus:     progress.NewBroadcaster(),
		timer:   &fakeTimer{},
		clock:   &testClock{now: baseTime},
		metrics: &recordedMetrics{},
		events:  &eventLog{},
	}
	params := ProcessorParams{
		Store:       store,
		Remote:      api,
		Progress:    h.bus,
		Metrics:     h.metrics,
		Logger:      logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		Backoff:     DefaultBackoffPolicy().withRand(func() float64 { return 0 }),
		CallTimeout: time.Second,
		Now:         h.clock.Now,
		afterFunc:   h.timer.afterFunc,
	}
	for _, fn := range mutate {
		fn(&params)
	}
	processor, err := NewProcessor(params)
	if err != nil {
		t.Fatalf("new processor: %v", err)
	}
	h.processor = processor
	t.Cleanup(processor.Close)
	unsubscribe := processor.OnProgress(h.events.listener)
	t.Cleanup(unsubscribe)
	return h
}

func routeDraft(id string, createdAt time.Time) drafts.Draft {
	return drafts.Draft{
		ID:          id,
		ContentType: enums.ContentTypeRoute,
		Status:      enums.DraftStatusDraft,
		ClientID:    "client-" + id,
		Content: drafts.RouteContent{
			Title:  "Ridge loop",
			Points: []types.GeoPoint{{Lat: 46.5, Lng: 7.9}, {Lat: 46.6, Lng: 8.0}},
		},
		CreatedAt: createdAt,
	}
}

func postDraft(id string, createdAt time.Time) drafts.Draft {
	return drafts.Draft{
		ID:          id,
		ContentType: enums.ContentTypePost,
		Status:      enums.DraftStatusDraft,
		ClientID:    "client-" + id,
		Content:     drafts.PostContent{Text: "hello from the trail"},
		CreatedAt:   createdAt,
	}
}

func remoteErr(code pkgerrors.Code, msg string) error {
	return pkgerrors.New(code, msg)
}
