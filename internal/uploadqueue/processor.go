package uploadqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/angelmondragon/draftsync/internal/drafts"
	"github.com/angelmondragon/draftsync/internal/progress"
	"github.com/angelmondragon/draftsync/internal/remote"
	"github.com/angelmondragon/draftsync/pkg/enums"
	"github.com/angelmondragon/draftsync/pkg/logger"
	"github.com/angelmondragon/draftsync/pkg/types"
)

const (
	defaultCallTimeout      = 30 * time.Second
	defaultStaleUploadAfter = 15 * time.Minute
	minRetryTimerDelay      = time.Second
)

// ErrAlreadyProcessing is returned when a pass or manual upload is already
// running.
var ErrAlreadyProcessing = errors.New("upload queue is already processing")

type draftStore interface {
	GetDraft(ctx context.Context, id string) (*drafts.Draft, error)
	GetAllDrafts(ctx context.Context, filter drafts.Filter) ([]drafts.Draft, error)
	ListEligible(ctx context.Context, now time.Time) ([]drafts.Draft, error)
	UpdateDraftStatus(ctx context.Context, id string, status enums.DraftStatus, retries *int) error
	RecordFailure(ctx context.Context, id string, failure drafts.Failure) error
	RecordCheckpoint(ctx context.Context, id string, cp drafts.Checkpoint) error
	CompleteDraft(ctx context.Context, id string) error
	DeleteDraft(ctx context.Context, id string) error
	NextRetryAt(ctx context.Context) (*time.Time, error)
	RecoverStaleUploads(ctx context.Context, olderThan time.Duration) (int64, error)
}

type contentAPI interface {
	Create(ctx context.Context, req remote.CreateRequest) (*remote.Created, error)
	UploadImage(ctx context.Context, contentType enums.ContentType, remoteID string, img remote.Image) error
	UploadTrack(ctx context.Context, contentType enums.ContentType, remoteID string, track *types.TrackFeature) error
}

type progressBus interface {
	Publish(progress.Progress)
	Clear()
	Subscribe(progress.Listener) func()
}

type connectivity interface {
	Online() bool
}

type uploadMetrics interface {
	IncAttempt(contentType, outcome string)
	ObservePass(time.Duration)
	SetQueueDepth(int)
}

// timerFunc schedules fn after d; the returned func cancels it.
type timerFunc func(d time.Duration, fn func()) (stop func() bool)

// ProcessorParams wires a Processor. Connectivity and Metrics are optional.
type ProcessorParams struct {
	Store            draftStore
	Remote           contentAPI
	Progress         progressBus
	Connectivity     connectivity
	Metrics          uploadMetrics
	Logger           *logger.Logger
	Backoff          *BackoffPolicy
	CallTimeout      time.Duration
	StaleUploadAfter time.Duration
	Now              func() time.Time

	afterFunc timerFunc
}

// Processor delivers drafts to the content API. Passes and manual uploads
// are serialized; a concurrent call fails with ErrAlreadyProcessing.
type Processor struct {
	store        draftStore
	remote       contentAPI
	progress     progressBus
	connectivity connectivity
	metrics      uploadMetrics
	logg         *logger.Logger
	backoff      *BackoffPolicy
	callTimeout  time.Duration
	staleAfter   time.Duration
	now          func() time.Time
	afterFunc    timerFunc

	processing atomic.Bool
	// started is set once this process begins its first delivery. Before
	// that every uploading row was left behind by an earlier process.
	started atomic.Bool

	timerMu   sync.Mutex
	stopTimer func() bool
	timerAt   time.Time
	closed    bool
}

func NewProcessor(params ProcessorParams) (*Processor, error) {
	if params.Store == nil {
		return nil, fmt.Errorf("draft store is required")
	}
	if params.Remote == nil {
		return nil, fmt.Errorf("remote client is required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	bus := params.Progress
	if bus == nil {
		bus = progress.NewBroadcaster(progress.WithLogger(params.Logger))
	}
	backoff := params.Backoff
	if backoff == nil {
		backoff = DefaultBackoffPolicy()
	}
	callTimeout := params.CallTimeout
	if callTimeout <= 0 {
		callTimeout = defaultCallTimeout
	}
	staleAfter := params.StaleUploadAfter
	if staleAfter <= 0 {
		staleAfter = defaultStaleUploadAfter
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	afterFunc := params.afterFunc
	if afterFunc == nil {
		afterFunc = func(d time.Duration, fn func()) func() bool {
			return time.AfterFunc(d, fn).Stop
		}
	}

	return &Processor{
		store:        params.Store,
		remote:       params.Remote,
		progress:     bus,
		connectivity: params.Connectivity,
		metrics:      params.Metrics,
		logg:         params.Logger,
		backoff:      backoff,
		callTimeout:  callTimeout,
		staleAfter:   staleAfter,
		now:          now,
		afterFunc:    afterFunc,
	}, nil
}

// PassResult summarizes one ProcessQueue run.
type PassResult struct {
	Eligible        int           `json:"eligible"`
	Attempted       int           `json:"attempted"`
	Delivered       int           `json:"delivered"`
	Duplicates      int           `json:"duplicates"`
	RetryScheduled  int           `json:"retryScheduled"`
	FailedPermanent int           `json:"failedPermanent"`
	Skipped         int           `json:"skipped"`
	Interrupted     bool          `json:"interrupted"`
	Duration        time.Duration `json:"duration"`
}

func (r *PassResult) add(o Outcome) {
	r.Attempted++
	switch o.Result {
	case ResultDelivered:
		r.Delivered++
	case ResultDuplicate:
		r.Duplicates++
	case ResultRetryScheduled:
		r.RetryScheduled++
	case ResultFailedPermanent:
		r.FailedPermanent++
	default:
		r.Skipped++
	}
}

// ProcessQueue runs one reconciliation pass over eligible drafts, oldest
// first. Cancelling ctx or losing connectivity stops new drafts from being
// started; the draft in flight finishes.
func (p *Processor) ProcessQueue(ctx context.Context) (result PassResult, err error) {
	if !p.processing.CompareAndSwap(false, true) {
		return PassResult{}, ErrAlreadyProcessing
	}
	defer p.processing.Store(false)

	ctx = p.logg.WithComponent(ctx, "upload-queue")
	begin := p.now()
	defer func() {
		result.Duration = p.now().Sub(begin)
		if p.metrics != nil {
			p.metrics.ObservePass(result.Duration)
		}
		p.progress.Clear()
		p.armRetryTimer(ctx)
	}()

	eligible, err := p.store.ListEligible(ctx, p.now())
	if err != nil {
		p.logg.Error(ctx, "failed to list eligible drafts", err)
		return result, err
	}
	result.Eligible = len(eligible)
	if p.metrics != nil {
		p.metrics.SetQueueDepth(len(eligible))
	}

	for i := range eligible {
		if err := ctx.Err(); err != nil {
			result.Interrupted = true
			break
		}
		if !p.online() {
			result.Interrupted = true
			break
		}
		outcome, err := p.deliver(ctx, eligible[i])
		if err != nil {
			p.logg.Error(p.logg.WithDraftID(ctx, eligible[i].ID), "draft delivery skipped", err)
		}
		result.add(outcome)
	}

	if result.Attempted > 0 || result.Interrupted {
		logCtx := p.logg.WithFields(ctx, map[string]any{
			"eligible":         result.Eligible,
			"attempted":        result.Attempted,
			"delivered":        result.Delivered,
			"duplicates":       result.Duplicates,
			"retry_scheduled":  result.RetryScheduled,
			"failed_permanent": result.FailedPermanent,
			"skipped":          result.Skipped,
			"interrupted":      result.Interrupted,
		})
		p.logg.Info(logCtx, "upload pass finished")
	}
	return result, nil
}

// UploadDraftByID delivers one draft regardless of its retry timer or
// terminal status.
func (p *Processor) UploadDraftByID(ctx context.Context, id string) (Outcome, error) {
	if !p.processing.CompareAndSwap(false, true) {
		return Outcome{DraftID: id}, ErrAlreadyProcessing
	}
	defer p.processing.Store(false)

	ctx = p.logg.WithDraftID(p.logg.WithComponent(ctx, "upload-queue"), id)
	defer func() {
		p.progress.Clear()
		p.armRetryTimer(ctx)
	}()

	d, err := p.store.GetDraft(ctx, id)
	if err != nil {
		return Outcome{DraftID: id}, err
	}
	if d == nil {
		return Outcome{DraftID: id}, notFound(id)
	}
	return p.deliver(ctx, *d)
}

// OnProgress registers a progress listener. It immediately receives the
// current descriptor, or nil when idle.
func (p *Processor) OnProgress(fn func(*progress.Progress)) func() {
	return p.progress.Subscribe(fn)
}

// GetDrafts lists drafts for merging into listing views, newest first.
func (p *Processor) GetDrafts(ctx context.Context, contentType *enums.ContentType) ([]drafts.Draft, error) {
	return p.store.GetAllDrafts(ctx, drafts.Filter{ContentType: contentType})
}

// DeleteDraft removes a draft the user discarded from a listing view.
func (p *Processor) DeleteDraft(ctx context.Context, contentType enums.ContentType, id string) error {
	d, err := p.store.GetDraft(ctx, id)
	if err != nil {
		return err
	}
	if d == nil {
		return nil
	}
	if d.ContentType != contentType {
		return contentTypeMismatch(id, contentType, d.ContentType)
	}
	return p.store.DeleteDraft(ctx, id)
}

// Recover returns interrupted uploads to the queue and arms the retry timer.
// Until this process has started a delivery, every uploading draft counts as
// interrupted; afterwards only those older than the stale threshold do.
func (p *Processor) Recover(ctx context.Context) (int64, error) {
	if !p.processing.CompareAndSwap(false, true) {
		return 0, ErrAlreadyProcessing
	}
	defer p.processing.Store(false)

	olderThan := p.staleAfter
	if !p.started.Load() {
		olderThan = 0
	}
	recovered, err := p.store.RecoverStaleUploads(ctx, olderThan)
	if err != nil {
		return 0, err
	}
	p.armRetryTimer(ctx)
	return recovered, nil
}

// Processing reports whether a pass or manual upload is running.
func (p *Processor) Processing() bool {
	return p.processing.Load()
}

// Close stops the retry timer. Running passes are not interrupted.
func (p *Processor) Close() {
	p.timerMu.Lock()
	defer p.timerMu.Unlock()
	p.closed = true
	if p.stopTimer != nil {
		p.stopTimer()
		p.stopTimer = nil
	}
}

func (p *Processor) online() bool {
	return p.connectivity == nil || p.connectivity.Online()
}
