package drafts

import (
	"time"

	"github.com/angelmondragon/draftsync/pkg/db/models"
	"github.com/angelmondragon/draftsync/pkg/enums"
	"github.com/angelmondragon/draftsync/pkg/types"
)

// Draft is a locally persisted piece of user content awaiting delivery.
type Draft struct {
	ID             string              `json:"id"`
	ContentType    enums.ContentType   `json:"contentType"`
	Status         enums.DraftStatus   `json:"status"`
	Retries        int                 `json:"retries"`
	ClientID       string              `json:"clientId"`
	RegionID       *string             `json:"regionId,omitempty"`
	Content        Content             `json:"contentData"`
	Attachments    []Attachment        `json:"attachments,omitempty"`
	HasAttachments bool                `json:"hasAttachments"`
	Track          *types.TrackFeature `json:"track,omitempty"`
	HasTrack       bool                `json:"hasTrack"`
	Session        OfflineSession      `json:"session"`
	CreatedAt      time.Time           `json:"createdAt"`
	UpdatedAt      time.Time           `json:"updatedAt"`

	NextRetryAt *time.Time `json:"nextRetryAt,omitempty"`
	LastError   *string    `json:"lastError,omitempty"`
	Checkpoint  Checkpoint `json:"checkpoint"`
}

// Attachment is an image or other binary blob uploaded after the base
// entity exists.
type Attachment struct {
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	Data     []byte `json:"data"`
}

// OfflineSession records the authoring context of a draft.
type OfflineSession struct {
	NetworkStatus enums.NetworkStatus `json:"networkStatus"`
	OfflineEdits  int                 `json:"offlineEdits"`
	LastModified  time.Time           `json:"lastModified"`
}

// Checkpoint is how far a previous delivery attempt got on the remote side.
type Checkpoint struct {
	RemoteID            *string `json:"remoteId,omitempty"`
	UploadedAttachments int     `json:"uploadedAttachments"`
	TrackUploaded       bool    `json:"trackUploaded"`
}

// NewDraft is the input of AddDraft.
type NewDraft struct {
	Content     Content
	Attachments []Attachment
	Track       *types.TrackFeature
	Status      enums.DraftStatus
	RegionID    *string
	ClientID    string
	Session     *OfflineSession
	// CreatedAt preserves the authoring time of imported drafts. Zero or
	// future values are replaced by the current time.
	CreatedAt time.Time
}

// Filter narrows listing and counting. Nil fields match everything.
type Filter struct {
	ContentType *enums.ContentType
	Status      *enums.DraftStatus
	RegionID    *string
}

// Failure is the outcome recorded after an unsuccessful delivery.
type Failure struct {
	Status      enums.DraftStatus
	Retries     int
	NextRetryAt *time.Time
	Message     string
}

func toModel(id string, nd NewDraft, content []byte, now time.Time) *models.Draft {
	session := OfflineSession{NetworkStatus: enums.NetworkStatusOffline, LastModified: now}
	if nd.Session != nil {
		session = *nd.Session
		if !session.NetworkStatus.IsValid() {
			session.NetworkStatus = enums.NetworkStatusOffline
		}
		if session.LastModified.IsZero() {
			session.LastModified = now
		}
	}

	createdAt := now
	if !nd.CreatedAt.IsZero() && nd.CreatedAt.Before(now) {
		createdAt = nd.CreatedAt.UTC()
	}

	return &models.Draft{
		ID:             id,
		ContentType:    nd.Content.ContentType(),
		Status:         nd.Status,
		Retries:        0,
		ClientID:       nd.ClientID,
		RegionID:       nd.RegionID,
		ContentData:    content,
		HasAttachments: len(nd.Attachments) > 0,
		TrackData:      nd.Track,
		HasTrack:       nd.Track != nil,
		NetworkStatus:  session.NetworkStatus,
		OfflineEdits:   session.OfflineEdits,
		LastModified:   session.LastModified.UTC(),
		CreatedAt:      createdAt,
		UpdatedAt:      now,
	}
}

func attachmentModels(draftID string, attachments []Attachment) []models.DraftAttachment {
	out := make([]models.DraftAttachment, 0, len(attachments))
	for i, a := range attachments {
		mime := a.MimeType
		if mime == "" {
			mime = "application/octet-stream"
		}
		out = append(out, models.DraftAttachment{
			DraftID:  draftID,
			Position: i,
			Name:     a.Name,
			MimeType: mime,
			Data:     a.Data,
		})
	}
	return out
}

func fromModel(m models.Draft, attachments []models.DraftAttachment) (Draft, error) {
	content, err := DecodeContent(m.ContentType, m.ContentData)
	if err != nil {
		return Draft{}, err
	}

	d := Draft{
		ID:             m.ID,
		ContentType:    m.ContentType,
		Status:         m.Status,
		Retries:        m.Retries,
		ClientID:       m.ClientID,
		RegionID:       m.RegionID,
		Content:        content,
		HasAttachments: m.HasAttachments,
		Track:          m.TrackData,
		HasTrack:       m.HasTrack,
		Session: OfflineSession{
			NetworkStatus: m.NetworkStatus,
			OfflineEdits:  m.OfflineEdits,
			LastModified:  m.LastModified,
		},
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
		NextRetryAt: m.NextRetryAt,
		LastError:   m.LastError,
		Checkpoint: Checkpoint{
			RemoteID:            m.RemoteID,
			UploadedAttachments: m.UploadedAttachments,
			TrackUploaded:       m.TrackUploaded,
		},
	}
	for _, a := range attachments {
		d.Attachments = append(d.Attachments, Attachment{Name: a.Name, MimeType: a.MimeType, Data: a.Data})
	}
	return d, nil
}
