package cron

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/draftsync/internal/uploadqueue"
	"github.com/angelmondragon/draftsync/pkg/logger"
)

const (
	UploadQueueJobName  = "upload-queue"
	DraftCleanupJobName = "draft-cleanup"
	StaleUploadJobName  = "stale-upload-recovery"
)

type queueRunner interface {
	ProcessQueue(ctx context.Context) (uploadqueue.PassResult, error)
	Recover(ctx context.Context) (int64, error)
}

type draftCleaner interface {
	CleanupOldDrafts(ctx context.Context, maxAgeDays int) (int64, error)
}

// NewUploadQueueJob runs a reconciliation pass. A pass already in progress
// is not an error.
func NewUploadQueueJob(runner queueRunner, logg *logger.Logger) (Job, error) {
	if runner == nil {
		return nil, fmt.Errorf("queue runner required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &uploadQueueJob{runner: runner, logg: logg}, nil
}

type uploadQueueJob struct {
	runner queueRunner
	logg   *logger.Logger
}

func (j *uploadQueueJob) Name() string { return UploadQueueJobName }

func (j *uploadQueueJob) Run(ctx context.Context) error {
	_, err := j.runner.ProcessQueue(ctx)
	if errors.Is(err, uploadqueue.ErrAlreadyProcessing) {
		j.logg.Debug(ctx, "upload pass already running")
		return nil
	}
	return err
}

// DraftCleanupJobParams configures the age-based draft cleanup.
type DraftCleanupJobParams struct {
	Logger     *logger.Logger
	Store      draftCleaner
	MaxAgeDays int
}

func NewDraftCleanupJob(params DraftCleanupJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Store == nil {
		return nil, fmt.Errorf("draft store required")
	}
	return &draftCleanupJob{
		logg:       params.Logger,
		store:      params.Store,
		maxAgeDays: params.MaxAgeDays,
	}, nil
}

type draftCleanupJob struct {
	logg       *logger.Logger
	store      draftCleaner
	maxAgeDays int
}

func (j *draftCleanupJob) Name() string { return DraftCleanupJobName }

func (j *draftCleanupJob) Run(ctx context.Context) error {
	deleted, err := j.store.CleanupOldDrafts(ctx, j.maxAgeDays)
	if err != nil {
		return fmt.Errorf("draft cleanup: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"max_age_days": j.maxAgeDays,
		"rows_deleted": deleted,
	})
	j.logg.Info(logCtx, "draft cleanup complete")
	return nil
}

// NewStaleUploadJob returns drafts abandoned in uploading to the queue.
func NewStaleUploadJob(runner queueRunner, logg *logger.Logger) (Job, error) {
	if runner == nil {
		return nil, fmt.Errorf("queue runner required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &staleUploadJob{runner: runner, logg: logg}, nil
}

type staleUploadJob struct {
	runner queueRunner
	logg   *logger.Logger
}

func (j *staleUploadJob) Name() string { return StaleUploadJobName }

func (j *staleUploadJob) Run(ctx context.Context) error {
	recovered, err := j.runner.Recover(ctx)
	if errors.Is(err, uploadqueue.ErrAlreadyProcessing) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stale upload recovery: %w", err)
	}
	if recovered > 0 {
		j.logg.Info(j.logg.WithField(ctx, "recovered", recovered), "stale uploads returned to the queue")
	}
	return nil
}
