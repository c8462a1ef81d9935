package models

import (
	"encoding/json"
	"time"

	"github.com/angelmondragon/draftsync/pkg/enums"
	"github.com/angelmondragon/draftsync/pkg/types"
)

// Draft is a locally persisted piece of user content awaiting delivery.
type Draft struct {
	ID             string              `gorm:"column:id;primaryKey"`
	ContentType    enums.ContentType   `gorm:"column:content_type;not null"`
	Status         enums.DraftStatus   `gorm:"column:status;not null;default:draft"`
	Retries        int                 `gorm:"column:retries;not null;default:0"`
	ClientID       string              `gorm:"column:client_id;not null;<-:create"`
	RegionID       *string             `gorm:"column:region_id"`
	ContentData    json.RawMessage     `gorm:"column:content_data;type:text;not null"`
	HasAttachments bool                `gorm:"column:has_attachments;not null;default:false"`
	TrackData      *types.TrackFeature `gorm:"column:track_data;type:text"`
	HasTrack       bool                `gorm:"column:has_track;not null;default:false"`
	NetworkStatus  enums.NetworkStatus `gorm:"column:network_status;not null;default:offline"`
	OfflineEdits   int                 `gorm:"column:offline_edits;not null;default:0"`
	LastModified   time.Time           `gorm:"column:last_modified;not null"`
	CreatedAt      time.Time           `gorm:"column:created_at;not null"`
	UpdatedAt      time.Time           `gorm:"column:updated_at;not null"`

	NextRetryAt         *time.Time `gorm:"column:next_retry_at"`
	LastError           *string    `gorm:"column:last_error"`
	RemoteID            *string    `gorm:"column:remote_id"`
	UploadedAttachments int        `gorm:"column:uploaded_attachments;not null;default:0"`
	TrackUploaded       bool       `gorm:"column:track_uploaded;not null;default:false"`
}

func (Draft) TableName() string {
	return "drafts"
}

// DraftAttachment is one ordered binary attachment of a draft.
type DraftAttachment struct {
	DraftID  string `gorm:"column:draft_id;primaryKey"`
	Position int    `gorm:"column:position;primaryKey;autoIncrement:false"`
	Name     string `gorm:"column:name;not null"`
	MimeType string `gorm:"column:mime_type;not null"`
	Data     []byte `gorm:"column:data;not null"`
}

func (DraftAttachment) TableName() string {
	return "draft_attachments"
}
