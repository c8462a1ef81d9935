package controllers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/draftsync/api/responses"
	"github.com/angelmondragon/draftsync/api/validators"
	"github.com/angelmondragon/draftsync/internal/drafts"
	"github.com/angelmondragon/draftsync/internal/uploadqueue"
	"github.com/angelmondragon/draftsync/pkg/enums"
	pkgerrors "github.com/angelmondragon/draftsync/pkg/errors"
	"github.com/angelmondragon/draftsync/pkg/logger"
	"github.com/angelmondragon/draftsync/pkg/pagination"
	"github.com/angelmondragon/draftsync/pkg/types"
)

type attachmentRequest struct {
	Name     string `json:"name" validate:"required,max=255"`
	MimeType string `json:"mimeType" validate:"required,max=100"`
	Data     []byte `json:"data" validate:"required"`
}

type createDraftRequest struct {
	ContentType string              `json:"contentType" validate:"required,oneof=post marker route event"`
	Content     json.RawMessage     `json:"contentData" validate:"required"`
	Attachments []attachmentRequest `json:"attachments" validate:"omitempty,dive"`
	Track       *types.TrackFeature `json:"track"`
	RegionID    *string             `json:"regionId" validate:"omitempty,max=128"`
	ClientID    string              `json:"clientId" validate:"omitempty,uuid4"`
}

func (req createDraftRequest) toNewDraft() (drafts.NewDraft, error) {
	ct, err := enums.ParseContentType(req.ContentType)
	if err != nil {
		return drafts.NewDraft{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid content type")
	}
	content, err := drafts.DecodeContent(ct, req.Content)
	if err != nil {
		return drafts.NewDraft{}, err
	}
	nd := drafts.NewDraft{
		Content:  content,
		Track:    req.Track,
		ClientID: req.ClientID,
	}
	if req.RegionID != nil {
		if region := validators.SanitizeString(*req.RegionID, 128); region != "" {
			nd.RegionID = &region
		}
	}
	for _, a := range req.Attachments {
		nd.Attachments = append(nd.Attachments, drafts.Attachment{
			Name:     a.Name,
			MimeType: a.MimeType,
			Data:     a.Data,
		})
	}
	return nd, nil
}

func DraftCreate(store DraftStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload createDraftRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		nd, err := payload.toNewDraft()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		id, err := store.AddDraft(r.Context(), nd)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, map[string]string{"id": id})
	}
}

func parseFilter(r *http.Request) (drafts.Filter, error) {
	ct, err := validators.ParseQueryContentType(r, "contentType")
	if err != nil {
		return drafts.Filter{}, err
	}
	status, err := validators.ParseQueryDraftStatus(r, "status")
	if err != nil {
		return drafts.Filter{}, err
	}
	return drafts.Filter{
		ContentType: ct,
		Status:      status,
		RegionID:    validators.ParseQueryString(r, "regionId", 128),
	}, nil
}

// DraftList returns one newest-first page; pass nextCursor back as cursor
// for the following page.
func DraftList(store DraftStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter, err := parseFilter(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := store.ListDraftsPage(r.Context(), filter, pagination.Params{
			Limit:  limit,
			Cursor: r.URL.Query().Get("cursor"),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

func DraftCount(store DraftStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter, err := parseFilter(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		count, err := store.GetDraftsCount(r.Context(), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]int64{"count": count})
	}
}

func DraftDetail(store DraftStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "draftId")
		draft, err := store.GetDraft(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if draft == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "draft not found").
				WithDetails(map[string]any{"draft_id": id}))
			return
		}
		responses.WriteSuccess(w, draft)
	}
}

func DraftDelete(store DraftStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := store.DeleteDraft(r.Context(), chi.URLParam(r, "draftId")); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteNoContent(w)
	}
}

// DraftUpload delivers one draft immediately, including drafts that failed
// permanently.
func DraftUpload(queue UploadQueue, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "draftId")
		ctx := logg.WithDraftID(r.Context(), id)
		outcome, err := queue.UploadDraftByID(ctx, id)
		if err != nil {
			responses.WriteError(ctx, logg, w, busyAsConflict(err))
			return
		}
		responses.WriteSuccess(w, outcome)
	}
}

func busyAsConflict(err error) error {
	if errors.Is(err, uploadqueue.ErrAlreadyProcessing) {
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "an upload pass is already running")
	}
	return err
}
