package legacy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/draftsync/internal/drafts"
	"github.com/angelmondragon/draftsync/internal/metadata"
	pkgerrors "github.com/angelmondragon/draftsync/pkg/errors"
	"github.com/angelmondragon/draftsync/pkg/logger"
	"go.uber.org/multierr"
)

// DoneKey marks a completed legacy import in sync_metadata.
const DoneKey = "legacy_migration_done"

// SourceDoneKey marks one source as imported, so a run that stopped on an
// unreadable source does not re-import records deleted since.
func SourceDoneKey(source Source) string {
	return DoneKey + ":" + source.Name()
}

type draftStore interface {
	Initialize(ctx context.Context) error
	AddDraft(ctx context.Context, nd drafts.NewDraft) (string, error)
}

// MigratorParams wires the legacy importer.
type MigratorParams struct {
	Store    draftStore
	Metadata metadata.Repository
	Sources  []Source
	Logger   *logger.Logger
	Now      func() time.Time
}

// Migrator imports drafts from legacy per-type stores exactly once.
type Migrator struct {
	store   draftStore
	meta    metadata.Repository
	sources []Source
	logg    *logger.Logger
	now     func() time.Time
}

// Report summarizes one import run.
type Report struct {
	AlreadyDone bool
	Imported    int
	Skipped     int
	// SkippedSources counts undecodable sources; they do not block the done flag.
	SkippedSources int
	// Complete is false when a source could not be read; the done flag is
	// not set and the next run retries only the sources still pending.
	Complete bool
	// Problems holds per-record and per-source errors combined with multierr.
	Problems error
}

func NewMigrator(params MigratorParams) (*Migrator, error) {
	if params.Store == nil {
		return nil, fmt.Errorf("draft store is required")
	}
	if params.Metadata == nil {
		return nil, fmt.Errorf("metadata repository is required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Migrator{
		store:   params.Store,
		meta:    params.Metadata,
		sources: params.Sources,
		logg:    params.Logger,
		now:     now,
	}, nil
}

// MigrateLegacyDrafts copies legacy records into the draft store. Malformed
// records and undecodable sources are skipped. Sources finished by an earlier
// run are not read again; records of an interrupted source are skipped
// through their stable client id. Only local storage failures are returned
// as errors.
func (m *Migrator) MigrateLegacyDrafts(ctx context.Context) (Report, error) {
	if err := m.store.Initialize(ctx); err != nil {
		return Report{}, err
	}

	if _, done, err := m.meta.Get(ctx, DoneKey); err != nil {
		return Report{}, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "read legacy migration flag")
	} else if done {
		return Report{AlreadyDone: true, Complete: true}, nil
	}

	report := Report{Complete: true}
	for _, source := range m.sources {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		doneKey := SourceDoneKey(source)
		if _, done, err := m.meta.Get(ctx, doneKey); err != nil {
			return report, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "read legacy source flag")
		} else if done {
			continue
		}

		records, err := source.Load(ctx)
		switch {
		case errors.Is(err, ErrMalformedSource):
			report.SkippedSources++
			report.Problems = multierr.Append(report.Problems, err)
		case err != nil:
			report.Complete = false
			report.Problems = multierr.Append(report.Problems, fmt.Errorf("%s: %w", source.Name(), err))
			continue
		}

		for i, rec := range records {
			nd, err := Convert(source.ContentType(), rec)
			if err == nil {
				_, err = m.store.AddDraft(ctx, nd)
			}
			if err == nil {
				report.Imported++
				continue
			}

			switch {
			case pkgerrors.IsCode(err, pkgerrors.CodeStorage):
				return report, err
			case pkgerrors.IsCode(err, pkgerrors.CodeConflict):
				// imported by an earlier interrupted run
				report.Skipped++
			default:
				report.Skipped++
				report.Problems = multierr.Append(report.Problems, fmt.Errorf("%s record %d: %w", source.Name(), i, err))
			}
		}

		if err := m.meta.Set(ctx, doneKey, m.now().UTC().Format(time.RFC3339)); err != nil {
			return report, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "persist legacy source flag")
		}
	}

	if report.Complete {
		if err := m.meta.Set(ctx, DoneKey, m.now().UTC().Format(time.RFC3339)); err != nil {
			return report, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "persist legacy migration flag")
		}
	}

	logCtx := m.logg.WithFields(ctx, map[string]any{
		"imported":        report.Imported,
		"skipped":         report.Skipped,
		"skipped_sources": report.SkippedSources,
		"complete":        report.Complete,
		"problems":        len(multierr.Errors(report.Problems)),
	})
	if report.Problems != nil {
		m.logg.Warn(logCtx, "legacy drafts migrated with problems")
	} else {
		m.logg.Info(logCtx, "legacy drafts migrated")
	}
	return report, nil
}
