package drafts

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/draftsync/pkg/db/models"
	"github.com/angelmondragon/draftsync/pkg/enums"
	"github.com/angelmondragon/draftsync/pkg/pagination"
	"gorm.io/gorm"
)

// Repository exposes persistence helpers for drafts and their attachments.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, draft *models.Draft, attachments []models.DraftAttachment) error
	FindByID(ctx context.Context, id string) (*models.Draft, error)
	List(ctx context.Context, filter Filter, order string) ([]models.Draft, error)
	ListPage(ctx context.Context, filter Filter, after *pagination.Cursor, limit int) ([]models.Draft, error)
	Count(ctx context.Context, filter Filter) (int64, error)
	Attachments(ctx context.Context, draftIDs []string) (map[string][]models.DraftAttachment, error)
	Update(ctx context.Context, id string, fields map[string]any) (int64, error)
	Delete(ctx context.Context, id string) (int64, error)
	DeleteCreatedBefore(ctx context.Context, cutoff time.Time, statuses []enums.DraftStatus) (int64, error)
	ListEligible(ctx context.Context, now time.Time) ([]models.Draft, error)
	EarliestRetry(ctx context.Context) (*time.Time, error)
	ResetUploadingBefore(ctx context.Context, cutoff time.Time, fields map[string]any) (int64, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a drafts repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

const (
	orderNewestFirst = "created_at DESC, id DESC"
	orderOldestFirst = "created_at ASC, id ASC"
)

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) Create(ctx context.Context, draft *models.Draft, attachments []models.DraftAttachment) error {
	if err := r.db.WithContext(ctx).Create(draft).Error; err != nil {
		return err
	}
	if len(attachments) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&attachments).Error
}

func (r *repositoryImpl) FindByID(ctx context.Context, id string) (*models.Draft, error) {
	var draft models.Draft
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&draft).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &draft, nil
}

func (r *repositoryImpl) filtered(ctx context.Context, filter Filter) *gorm.DB {
	query := r.db.WithContext(ctx).Model(&models.Draft{})
	if filter.ContentType != nil {
		query = query.Where("content_type = ?", *filter.ContentType)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.RegionID != nil {
		query = query.Where("region_id = ?", *filter.RegionID)
	}
	return query
}

func (r *repositoryImpl) List(ctx context.Context, filter Filter, order string) ([]models.Draft, error) {
	var rows []models.Draft
	if err := r.filtered(ctx, filter).Order(order).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ListPage returns up to limit rows older than the cursor, newest first.
func (r *repositoryImpl) ListPage(ctx context.Context, filter Filter, after *pagination.Cursor, limit int) ([]models.Draft, error) {
	query := r.filtered(ctx, filter)
	if after != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", after.CreatedAt, after.CreatedAt, after.ID)
	}
	var rows []models.Draft
	if err := query.Order(orderNewestFirst).Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repositoryImpl) Count(ctx context.Context, filter Filter) (int64, error) {
	var count int64
	if err := r.filtered(ctx, filter).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *repositoryImpl) Attachments(ctx context.Context, draftIDs []string) (map[string][]models.DraftAttachment, error) {
	out := map[string][]models.DraftAttachment{}
	if len(draftIDs) == 0 {
		return out, nil
	}
	var rows []models.DraftAttachment
	err := r.db.WithContext(ctx).
		Where("draft_id IN ?", draftIDs).
		Order("draft_id ASC, position ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.DraftID] = append(out[row.DraftID], row)
	}
	return out, nil
}

func (r *repositoryImpl) Update(ctx context.Context, id string, fields map[string]any) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.Draft{}).Where("id = ?", id).Updates(fields)
	return result.RowsAffected, result.Error
}

func (r *repositoryImpl) Delete(ctx context.Context, id string) (int64, error) {
	if err := r.db.WithContext(ctx).Where("draft_id = ?", id).Delete(&models.DraftAttachment{}).Error; err != nil {
		return 0, err
	}
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Draft{})
	return result.RowsAffected, result.Error
}

func (r *repositoryImpl) DeleteCreatedBefore(ctx context.Context, cutoff time.Time, statuses []enums.DraftStatus) (int64, error) {
	if len(statuses) == 0 {
		return 0, nil
	}
	expired := r.db.Model(&models.Draft{}).
		Select("id").
		Where("created_at < ? AND status IN ?", cutoff, statuses)

	if err := r.db.WithContext(ctx).Where("draft_id IN (?)", expired).Delete(&models.DraftAttachment{}).Error; err != nil {
		return 0, err
	}
	result := r.db.WithContext(ctx).
		Where("created_at < ? AND status IN ?", cutoff, statuses).
		Delete(&models.Draft{})
	return result.RowsAffected, result.Error
}

func (r *repositoryImpl) ListEligible(ctx context.Context, now time.Time) ([]models.Draft, error) {
	var rows []models.Draft
	err := r.db.WithContext(ctx).
		Model(&models.Draft{}).
		Where("status IN ?", []enums.DraftStatus{enums.DraftStatusDraft, enums.DraftStatusFailed}).
		Where("next_retry_at IS NULL OR next_retry_at <= ?", now).
		Order(orderOldestFirst).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repositoryImpl) EarliestRetry(ctx context.Context) (*time.Time, error) {
	var rows []models.Draft
	err := r.db.WithContext(ctx).
		Model(&models.Draft{}).
		Select("id", "next_retry_at").
		Where("status = ? AND next_retry_at IS NOT NULL", enums.DraftStatusFailed).
		Order("next_retry_at ASC").
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0].NextRetryAt, nil
}

func (r *repositoryImpl) ResetUploadingBefore(ctx context.Context, cutoff time.Time, fields map[string]any) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Draft{}).
		Where("status = ? AND updated_at < ?", enums.DraftStatusUploading, cutoff).
		Updates(fields)
	return result.RowsAffected, result.Error
}
