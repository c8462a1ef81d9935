package controllers

import (
	"context"

	"github.com/angelmondragon/draftsync/internal/drafts"
	"github.com/angelmondragon/draftsync/internal/legacy"
	"github.com/angelmondragon/draftsync/internal/progress"
	"github.com/angelmondragon/draftsync/internal/uploadqueue"
	"github.com/angelmondragon/draftsync/pkg/pagination"
)

// DraftStore is the slice of the draft store exposed over HTTP.
type DraftStore interface {
	AddDraft(ctx context.Context, nd drafts.NewDraft) (string, error)
	GetDraft(ctx context.Context, id string) (*drafts.Draft, error)
	ListDraftsPage(ctx context.Context, filter drafts.Filter, params pagination.Params) (pagination.Page[drafts.Draft], error)
	GetDraftsCount(ctx context.Context, filter drafts.Filter) (int64, error)
	DeleteDraft(ctx context.Context, id string) error
	CleanupOldDrafts(ctx context.Context, maxAgeDays int) (int64, error)
}

// UploadQueue triggers delivery and streams its progress.
type UploadQueue interface {
	ProcessQueue(ctx context.Context) (uploadqueue.PassResult, error)
	UploadDraftByID(ctx context.Context, id string) (uploadqueue.Outcome, error)
	OnProgress(fn func(*progress.Progress)) func()
	Processing() bool
}

type LegacyMigrator interface {
	MigrateLegacyDrafts(ctx context.Context) (legacy.Report, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type OnlineReporter interface {
	Online() bool
}
