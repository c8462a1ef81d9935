package drafts

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/angelmondragon/draftsync/pkg/db"
	"github.com/angelmondragon/draftsync/pkg/db/models"
	"github.com/angelmondragon/draftsync/pkg/enums"
	pkgerrors "github.com/angelmondragon/draftsync/pkg/errors"
	"github.com/angelmondragon/draftsync/pkg/logger"
	"github.com/angelmondragon/draftsync/pkg/migrate"
	"github.com/angelmondragon/draftsync/pkg/pagination"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

const (
	DefaultCleanupMaxAgeDays = 30

	interruptedUploadMessage = "upload interrupted before completion"
)

var cleanupStatuses = []enums.DraftStatus{
	enums.DraftStatusDraft,
	enums.DraftStatusFailed,
	enums.DraftStatusFailedPermanent,
}

// StoreParams wires the draft store.
type StoreParams struct {
	DB     *db.Client
	Logger *logger.Logger
	Now    func() time.Time
}

// Store is the durable on-device draft store.
type Store struct {
	client *db.Client
	repo   Repository
	logg   *logger.Logger
	now    func() time.Time

	initGroup singleflight.Group
	ready     atomic.Bool
}

// NewStore validates dependencies. The schema is created lazily by
// Initialize.
func NewStore(params StoreParams) (*Store, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("db client is required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Store{
		client: params.DB,
		repo:   NewRepository(params.DB.DB()),
		logg:   params.Logger,
		now:    now,
	}, nil
}

// Initialize prepares the schema. It is safe to call repeatedly and from
// several goroutines; concurrent callers share a single attempt. A failed
// attempt is not cached.
func (s *Store) Initialize(ctx context.Context) error {
	if s.ready.Load() {
		return nil
	}
	_, err, _ := s.initGroup.Do("initialize", func() (any, error) {
		if s.ready.Load() {
			return nil, nil
		}
		sqlDB, err := s.client.SQL()
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "open draft store")
		}
		if err := migrate.Ensure(ctx, sqlDB, s.logg); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "initialize draft store")
		}
		s.ready.Store(true)
		return nil, nil
	})
	return err
}

// AddDraft persists a new draft and returns its id.
func (s *Store) AddDraft(ctx context.Context, nd NewDraft) (string, error) {
	if err := s.Initialize(ctx); err != nil {
		return "", err
	}
	if err := ValidateContent(nd.Content); err != nil {
		return "", err
	}
	if nd.Track != nil {
		if err := nd.Track.Validate(); err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid track").
				WithDetails(map[string]string{"track": err.Error()})
		}
	}
	switch nd.Status {
	case "":
		nd.Status = enums.DraftStatusDraft
	case enums.DraftStatusDraft, enums.DraftStatusFailed, enums.DraftStatusFailedPermanent:
	default:
		return "", pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("draft cannot be created with status %q", nd.Status))
	}
	if nd.ClientID == "" {
		nd.ClientID = uuid.NewString()
	}

	content, err := EncodeContent(nd.Content)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	now := s.now().UTC()
	model := toModel(id, nd, content, now)

	err = s.client.WithTx(ctx, func(tx *gorm.DB) error {
		return s.repo.WithTx(tx).Create(ctx, model, attachmentModels(id, nd.Attachments))
	})
	if err != nil {
		if db.IsUniqueViolation(err, "client_id") {
			return "", pkgerrors.Wrap(pkgerrors.CodeConflict, err, "client id already belongs to another draft")
		}
		return "", pkgerrors.Wrap(pkgerrors.CodeStorage, err, "add draft")
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"draft_id":     id,
		"content_type": model.ContentType,
		"attachments":  len(nd.Attachments),
	})
	s.logg.Debug(logCtx, "draft saved")
	return id, nil
}

// GetDraft returns the draft or nil when it does not exist.
func (s *Store) GetDraft(ctx context.Context, id string) (*Draft, error) {
	if err := s.Initialize(ctx); err != nil {
		return nil, err
	}
	row, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "get draft")
	}
	if row == nil {
		return nil, nil
	}
	drafts, err := s.hydrate(ctx, s.repo, []models.Draft{*row})
	if err != nil {
		return nil, err
	}
	return &drafts[0], nil
}

// GetAllDrafts lists drafts newest first.
func (s *Store) GetAllDrafts(ctx context.Context, filter Filter) ([]Draft, error) {
	if err := s.Initialize(ctx); err != nil {
		return nil, err
	}
	rows, err := s.repo.List(ctx, filter, orderNewestFirst)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "list drafts")
	}
	return s.hydrate(ctx, s.repo, rows)
}

// ListDraftsPage lists drafts newest first, one cursor page at a time.
func (s *Store) ListDraftsPage(ctx context.Context, filter Filter, params pagination.Params) (pagination.Page[Draft], error) {
	after, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return pagination.Page[Draft]{}, err
	}
	if err := s.Initialize(ctx); err != nil {
		return pagination.Page[Draft]{}, err
	}
	rows, err := s.repo.ListPage(ctx, filter, after, pagination.LimitWithBuffer(params.Limit))
	if err != nil {
		return pagination.Page[Draft]{}, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "list drafts page")
	}
	items, err := s.hydrate(ctx, s.repo, rows)
	if err != nil {
		return pagination.Page[Draft]{}, err
	}
	return pagination.Trim(items, params.Limit, func(d Draft) pagination.Cursor {
		return pagination.Cursor{CreatedAt: d.CreatedAt, ID: d.ID}
	}), nil
}

// GetDraftsCount counts drafts matching filter.
func (s *Store) GetDraftsCount(ctx context.Context, filter Filter) (int64, error) {
	if err := s.Initialize(ctx); err != nil {
		return 0, err
	}
	count, err := s.repo.Count(ctx, filter)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "count drafts")
	}
	return count, nil
}

// UpdateDraftStatus moves a draft along the status state machine and
// optionally records a new retry count. Retries never decrease.
func (s *Store) UpdateDraftStatus(ctx context.Context, id string, status enums.DraftStatus, retries *int) error {
	if err := s.Initialize(ctx); err != nil {
		return err
	}
	if !status.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid draft status %q", status))
	}

	err := s.client.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := s.mustFind(ctx, repo, id)
		if err != nil {
			return err
		}
		if err := checkTransition(current, status, retries); err != nil {
			return err
		}

		fields := map[string]any{
			"status":     status,
			"updated_at": s.now().UTC(),
		}
		if retries != nil {
			fields["retries"] = *retries
		}
		if status == enums.DraftStatusUploading {
			fields["next_retry_at"] = nil
		}
		_, err = repo.Update(ctx, id, fields)
		return err
	})
	return storageErr(err, "update draft status")
}

// RecordFailure stores the outcome of an unsuccessful delivery.
func (s *Store) RecordFailure(ctx context.Context, id string, failure Failure) error {
	if err := s.Initialize(ctx); err != nil {
		return err
	}
	if failure.Status != enums.DraftStatusFailed && failure.Status != enums.DraftStatusFailedPermanent {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%q is not a failure status", failure.Status))
	}

	err := s.client.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := s.mustFind(ctx, repo, id)
		if err != nil {
			return err
		}
		retries := failure.Retries
		if err := checkTransition(current, failure.Status, &retries); err != nil {
			return err
		}

		fields := map[string]any{
			"status":        failure.Status,
			"retries":       retries,
			"next_retry_at": nil,
			"last_error":    nil,
			"updated_at":    s.now().UTC(),
		}
		if failure.NextRetryAt != nil {
			fields["next_retry_at"] = failure.NextRetryAt.UTC()
		}
		if failure.Message != "" {
			fields["last_error"] = failure.Message
		}
		_, err = repo.Update(ctx, id, fields)
		return err
	})
	return storageErr(err, "record draft failure")
}

// RecordCheckpoint persists partial remote progress so a retry resumes
// instead of recreating the remote entity.
func (s *Store) RecordCheckpoint(ctx context.Context, id string, cp Checkpoint) error {
	if err := s.Initialize(ctx); err != nil {
		return err
	}
	rows, err := s.repo.Update(ctx, id, map[string]any{
		"remote_id":            cp.RemoteID,
		"uploaded_attachments": cp.UploadedAttachments,
		"track_uploaded":       cp.TrackUploaded,
		"updated_at":           s.now().UTC(),
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "record draft checkpoint")
	}
	if rows == 0 {
		return notFound(id)
	}
	return nil
}

// DeleteDraft removes a draft. Deleting a missing draft is a no-op; a draft
// that is being uploaded cannot be deleted.
func (s *Store) DeleteDraft(ctx context.Context, id string) error {
	return s.remove(ctx, id, false)
}

// CompleteDraft removes a draft after the remote side accepted it. Only a
// draft held in uploading may be completed.
func (s *Store) CompleteDraft(ctx context.Context, id string) error {
	return s.remove(ctx, id, true)
}

func (s *Store) remove(ctx context.Context, id string, delivered bool) error {
	if err := s.Initialize(ctx); err != nil {
		return err
	}
	err := s.client.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if current == nil {
			return nil
		}
		uploading := current.Status == enums.DraftStatusUploading
		if uploading != delivered {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("draft %s is %s", id, current.Status)).
				WithDetails(map[string]any{"draft_id": id, "status": current.Status})
		}
		_, err = repo.Delete(ctx, id)
		return err
	})
	return storageErr(err, "delete draft")
}

// CleanupOldDrafts deletes drafts older than maxAgeDays that are not being
// uploaded. A non-positive maxAgeDays uses the 30 day default.
func (s *Store) CleanupOldDrafts(ctx context.Context, maxAgeDays int) (int64, error) {
	if err := s.Initialize(ctx); err != nil {
		return 0, err
	}
	if maxAgeDays <= 0 {
		maxAgeDays = DefaultCleanupMaxAgeDays
	}
	cutoff := s.now().UTC().Add(-time.Duration(maxAgeDays) * 24 * time.Hour)

	var removed int64
	err := s.client.WithTx(ctx, func(tx *gorm.DB) error {
		n, err := s.repo.WithTx(tx).DeleteCreatedBefore(ctx, cutoff, cleanupStatuses)
		removed = n
		return err
	})
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "cleanup drafts")
	}

	if removed > 0 {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"rows_deleted": removed,
			"max_age_days": maxAgeDays,
		})
		s.logg.Info(logCtx, "old drafts removed")
	}
	return removed, nil
}

// ListEligible returns drafts the automatic queue may deliver now, oldest
// first.
func (s *Store) ListEligible(ctx context.Context, now time.Time) ([]Draft, error) {
	if err := s.Initialize(ctx); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListEligible(ctx, now.UTC())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "list eligible drafts")
	}
	return s.hydrate(ctx, s.repo, rows)
}

// NextRetryAt returns the earliest scheduled retry, or nil.
func (s *Store) NextRetryAt(ctx context.Context) (*time.Time, error) {
	if err := s.Initialize(ctx); err != nil {
		return nil, err
	}
	at, err := s.repo.EarliestRetry(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "read next retry")
	}
	return at, nil
}

// RecoverStaleUploads returns drafts stuck in uploading for longer than
// olderThan to failed so they become eligible again. Retries are kept.
func (s *Store) RecoverStaleUploads(ctx context.Context, olderThan time.Duration) (int64, error) {
	if err := s.Initialize(ctx); err != nil {
		return 0, err
	}
	now := s.now().UTC()
	cutoff := now.Add(-olderThan)

	var recovered int64
	err := s.client.WithTx(ctx, func(tx *gorm.DB) error {
		n, err := s.repo.WithTx(tx).ResetUploadingBefore(ctx, cutoff, map[string]any{
			"status":        enums.DraftStatusFailed,
			"next_retry_at": nil,
			"last_error":    interruptedUploadMessage,
			"updated_at":    now,
		})
		recovered = n
		return err
	})
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "recover stale uploads")
	}
	if recovered > 0 {
		s.logg.Warn(s.logg.WithField(ctx, "recovered", recovered), "interrupted uploads returned to the queue")
	}
	return recovered, nil
}

func (s *Store) mustFind(ctx context.Context, repo Repository, id string) (*models.Draft, error) {
	current, err := repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, notFound(id)
	}
	return current, nil
}

func (s *Store) hydrate(ctx context.Context, repo Repository, rows []models.Draft) ([]Draft, error) {
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		if row.HasAttachments {
			ids = append(ids, row.ID)
		}
	}
	attachments, err := repo.Attachments(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "load attachments")
	}

	out := make([]Draft, 0, len(rows))
	for _, row := range rows {
		d, err := fromModel(row, attachments[row.ID])
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, fmt.Sprintf("decode draft %s", row.ID))
		}
		out = append(out, d)
	}
	return out, nil
}

func checkTransition(current *models.Draft, next enums.DraftStatus, retries *int) error {
	if !current.Status.CanTransitionTo(next) {
		return pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("draft cannot move from %s to %s", current.Status, next)).
			WithDetails(map[string]any{"draft_id": current.ID, "from": current.Status, "to": next})
	}
	if retries != nil && *retries < current.Retries {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "retry count cannot decrease").
			WithDetails(map[string]any{"draft_id": current.ID, "retries": current.Retries, "requested": *retries})
	}
	return nil
}

func notFound(id string) error {
	return pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("draft %s not found", id)).
		WithDetails(map[string]any{"draft_id": id})
}

// storageErr keeps typed errors and tags everything else as a storage
// failure.
func storageErr(err error, msg string) error {
	if err == nil {
		return nil
	}
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	return pkgerrors.Wrap(pkgerrors.CodeStorage, err, msg)
}
