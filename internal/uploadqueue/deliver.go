package uploadqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/draftsync/internal/drafts"
	"github.com/angelmondragon/draftsync/internal/progress"
	"github.com/angelmondragon/draftsync/internal/remote"
	"github.com/angelmondragon/draftsync/pkg/enums"
	pkgerrors "github.com/angelmondragon/draftsync/pkg/errors"
)

// Result is the terminal state of one delivery attempt.
type Result string

const (
	ResultDelivered       Result = "delivered"
	ResultDuplicate       Result = "duplicate"
	ResultRetryScheduled  Result = "retry_scheduled"
	ResultFailedPermanent Result = "failed_permanent"
	ResultSkipped         Result = "skipped"
)

// Outcome describes what happened to a draft during a delivery attempt.
type Outcome struct {
	DraftID     string            `json:"draftId"`
	ContentType enums.ContentType `json:"contentType,omitempty"`
	Result      Result            `json:"result"`
	RemoteID    string            `json:"remoteId,omitempty"`
	Retries     int               `json:"retries"`
	NextRetryAt *time.Time        `json:"nextRetryAt,omitempty"`
	Error       string            `json:"error,omitempty"`
}

// deliver runs the per-draft algorithm. Remote calls are detached from ctx
// cancellation and bounded by the call timeout; store writes are detached
// too so an interrupted pass never leaves a half-recorded outcome.
func (p *Processor) deliver(ctx context.Context, d drafts.Draft) (Outcome, error) {
	ctx = p.logg.WithContentType(p.logg.WithDraftID(ctx, d.ID), string(d.ContentType))
	storeCtx := context.WithoutCancel(ctx)
	out := Outcome{DraftID: d.ID, ContentType: d.ContentType, Retries: d.Retries}
	p.started.Store(true)

	if err := p.store.UpdateDraftStatus(storeCtx, d.ID, enums.DraftStatusUploading, nil); err != nil {
		out.Result = ResultSkipped
		out.Error = err.Error()
		p.recordAttempt(out)
		return out, err
	}

	steps := newStepCounter(d)
	p.emit(d, enums.UploadStageCreating, 0, "")

	cp := d.Checkpoint
	duplicate := false
	if cp.RemoteID == nil {
		created, err := p.create(ctx, d)
		if err != nil {
			if Classify(err) != ClassDuplicate {
				return p.fail(storeCtx, d, enums.UploadStageCreating, 0, err)
			}
			existing := remote.ExistingID(err)
			if existing == "" || !steps.pending(cp) {
				p.logg.Info(ctx, "remote already holds draft; treating as delivered")
				return p.finish(storeCtx, d, ResultDuplicate, existing)
			}
			duplicate = true
			created = &remote.Created{ID: existing}
		}
		remoteID := created.ID
		cp.RemoteID = &remoteID
		p.checkpoint(storeCtx, d.ID, cp)
	}
	remoteID := *cp.RemoteID

	for i := cp.UploadedAttachments; i < len(d.Attachments); i++ {
		pct := steps.percent(cp)
		p.emit(d, enums.UploadStageUploadingImages, pct, "")
		err := p.call(ctx, func(callCtx context.Context) error {
			a := d.Attachments[i]
			return p.remote.UploadImage(callCtx, d.ContentType, remoteID, remote.Image{
				Name:     a.Name,
				MimeType: a.MimeType,
				Data:     a.Data,
			})
		})
		if err != nil && Classify(err) != ClassDuplicate {
			return p.fail(storeCtx, d, enums.UploadStageUploadingImages, pct, err)
		}
		cp.UploadedAttachments = i + 1
		p.checkpoint(storeCtx, d.ID, cp)
	}

	if d.Track != nil && !cp.TrackUploaded {
		pct := steps.percent(cp)
		p.emit(d, enums.UploadStageUploadingTrack, pct, "")
		err := p.call(ctx, func(callCtx context.Context) error {
			return p.remote.UploadTrack(callCtx, d.ContentType, remoteID, d.Track)
		})
		if err != nil && Classify(err) != ClassDuplicate {
			return p.fail(storeCtx, d, enums.UploadStageUploadingTrack, pct, err)
		}
		cp.TrackUploaded = true
		p.checkpoint(storeCtx, d.ID, cp)
	}

	result := ResultDelivered
	if duplicate {
		result = ResultDuplicate
	}
	return p.finish(storeCtx, d, result, remoteID)
}

func (p *Processor) create(ctx context.Context, d drafts.Draft) (*remote.Created, error) {
	var created *remote.Created
	err := p.call(ctx, func(callCtx context.Context) error {
		var err error
		created, err = p.remote.Create(callCtx, remote.CreateRequest{
			ContentType: d.ContentType,
			ClientID:    d.ClientID,
			RegionID:    d.RegionID,
			Content:     d.Content,
		})
		return err
	})
	return created, err
}

// call runs fn with its own timeout on a context that ignores the caller's
// cancellation.
func (p *Processor) call(ctx context.Context, fn func(context.Context) error) error {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.callTimeout)
	defer cancel()
	return fn(callCtx)
}

func (p *Processor) finish(ctx context.Context, d drafts.Draft, result Result, remoteID string) (Outcome, error) {
	out := Outcome{DraftID: d.ID, ContentType: d.ContentType, Result: result, RemoteID: remoteID, Retries: d.Retries}
	p.emit(d, enums.UploadStageCompleted, 100, "")
	p.recordAttempt(out)

	if err := p.store.CompleteDraft(ctx, d.ID); err != nil {
		// The remote side has the entity; the next attempt resolves as a
		// duplicate once the draft is recovered.
		p.logg.Error(ctx, "failed to remove delivered draft", err)
		return out, err
	}
	return out, nil
}

func (p *Processor) fail(ctx context.Context, d drafts.Draft, stage enums.UploadStage, pct int, cause error) (Outcome, error) {
	out := Outcome{DraftID: d.ID, ContentType: d.ContentType, Error: failureMessage(cause)}
	failure := drafts.Failure{Message: out.Error}

	switch Classify(cause) {
	case ClassLocal:
		// the remote never saw the attempt, so it does not count as a retry
		next := p.now().UTC().Add(p.backoff.Delay(1))
		failure.Status = enums.DraftStatusFailed
		failure.Retries = d.Retries
		failure.NextRetryAt = &next
	case ClassTransient:
		retries := d.Retries + 1
		failure.Retries = retries
		if p.backoff.Exhausted(retries) {
			failure.Status = enums.DraftStatusFailedPermanent
		} else {
			next := p.now().UTC().Add(p.backoff.Delay(retries))
			failure.Status = enums.DraftStatusFailed
			failure.NextRetryAt = &next
		}
	default:
		failure.Status = enums.DraftStatusFailedPermanent
		failure.Retries = d.Retries
	}

	out.Retries = failure.Retries
	out.NextRetryAt = failure.NextRetryAt
	if failure.Status == enums.DraftStatusFailedPermanent {
		out.Result = ResultFailedPermanent
	} else {
		out.Result = ResultRetryScheduled
	}

	logCtx := p.logg.WithFields(ctx, map[string]any{
		"retries": failure.Retries,
		"status":  failure.Status,
		"stage":   stage,
	})
	if out.Result == ResultFailedPermanent {
		p.logg.Error(logCtx, "draft delivery failed permanently", cause)
		p.emit(d, stage, pct, out.Error)
	} else {
		p.logg.Warn(p.logg.WithField(logCtx, "error", cause.Error()), "draft delivery failed; retry scheduled")
	}

	if err := p.store.RecordFailure(ctx, d.ID, failure); err != nil {
		out.Result = ResultSkipped
		p.recordAttempt(out)
		return out, err
	}
	p.recordAttempt(out)
	return out, nil
}

func (p *Processor) checkpoint(ctx context.Context, id string, cp drafts.Checkpoint) {
	if err := p.store.RecordCheckpoint(ctx, id, cp); err != nil {
		p.logg.Warn(p.logg.WithField(ctx, "error", err.Error()), "failed to record delivery checkpoint")
	}
}

func (p *Processor) emit(d drafts.Draft, stage enums.UploadStage, pct int, errMsg string) {
	p.progress.Publish(progress.Progress{
		ContentID:   d.ID,
		ContentType: d.ContentType,
		Stage:       stage,
		Progress:    pct,
		Error:       errMsg,
	})
}

func (p *Processor) recordAttempt(out Outcome) {
	if p.metrics == nil {
		return
	}
	p.metrics.IncAttempt(string(out.ContentType), string(out.Result))
}

// stepCounter converts checkpoint positions into progress percentages. The
// base entity, each attachment and the track are one step each.
type stepCounter struct {
	attachments int
	track       bool
}

func newStepCounter(d drafts.Draft) stepCounter {
	return stepCounter{attachments: len(d.Attachments), track: d.Track != nil}
}

func (s stepCounter) total() int {
	n := 1 + s.attachments
	if s.track {
		n++
	}
	return n
}

func (s stepCounter) done(cp drafts.Checkpoint) int {
	n := 0
	if cp.RemoteID != nil {
		n++
	}
	n += min(cp.UploadedAttachments, s.attachments)
	if s.track && cp.TrackUploaded {
		n++
	}
	return n
}

// pending reports whether uploads remain after the base entity.
func (s stepCounter) pending(cp drafts.Checkpoint) bool {
	return cp.UploadedAttachments < s.attachments || (s.track && !cp.TrackUploaded)
}

func (s stepCounter) percent(cp drafts.Checkpoint) int {
	return s.done(cp) * 100 / s.total()
}

func failureMessage(err error) string {
	if typed := pkgerrors.As(err); typed != nil && typed.Message() != "" {
		return typed.Message()
	}
	return err.Error()
}

func notFound(id string) error {
	return pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("draft %s not found", id)).
		WithDetails(map[string]any{"draft_id": id})
}

func contentTypeMismatch(id string, want, got enums.ContentType) error {
	return pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("draft %s is a %s, not a %s", id, got, want)).
		WithDetails(map[string]any{"draft_id": id, "content_type": got})
}
