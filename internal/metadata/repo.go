package metadata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/draftsync/pkg/db/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository is a small key/value store for engine bookkeeping.
type Repository interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) (map[string]string, error)
}

type repositoryImpl struct {
	db  *gorm.DB
	now func() time.Time
}

// NewRepository returns a metadata repository over the sync_metadata table.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db, now: time.Now}
}

func (r *repositoryImpl) Get(ctx context.Context, key string) (string, bool, error) {
	var row models.SyncMetadata
	err := r.db.WithContext(ctx).Where("key = ?", key).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get metadata[%s]: %w", key, err)
	}
	return row.Value, true, nil
}

func (r *repositoryImpl) Set(ctx context.Context, key, value string) error {
	row := models.SyncMetadata{Key: key, Value: value, UpdatedAt: r.now().UTC()}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("set metadata[%s]: %w", key, err)
	}
	return nil
}

func (r *repositoryImpl) Delete(ctx context.Context, key string) error {
	if err := r.db.WithContext(ctx).Where("key = ?", key).Delete(&models.SyncMetadata{}).Error; err != nil {
		return fmt.Errorf("delete metadata[%s]: %w", key, err)
	}
	return nil
}

func (r *repositoryImpl) List(ctx context.Context) (map[string]string, error) {
	var rows []models.SyncMetadata
	if err := r.db.WithContext(ctx).Order("key ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list metadata: %w", err)
	}
	out := make(map[string]string, len(rows))
	for _, row := range rows {
		out[row.Key] = row.Value
	}
	return out, nil
}
