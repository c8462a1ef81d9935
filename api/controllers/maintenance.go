package controllers

import (
	"net/http"

	"go.uber.org/multierr"

	"github.com/angelmondragon/draftsync/api/responses"
	"github.com/angelmondragon/draftsync/api/validators"
	"github.com/angelmondragon/draftsync/pkg/logger"
)

const maxCleanupAgeDays = 3650

type legacyMigrationResponse struct {
	AlreadyDone    bool     `json:"alreadyDone"`
	Imported       int      `json:"imported"`
	Skipped        int      `json:"skipped"`
	SkippedSources int      `json:"skippedSources"`
	Complete       bool     `json:"complete"`
	Problems       []string `json:"problems,omitempty"`
}

func MaintenanceCleanup(store DraftStore, defaultAgeDays int, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		maxAge, err := validators.ParseQueryInt(r, "maxAgeDays", defaultAgeDays, 1, maxCleanupAgeDays)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		deleted, err := store.CleanupOldDrafts(r.Context(), maxAge)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"maxAgeDays": maxAge,
			"deleted":    deleted,
		})
	}
}

func MaintenanceLegacyMigration(migrator LegacyMigrator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := migrator.MigrateLegacyDrafts(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		resp := legacyMigrationResponse{
			AlreadyDone:    report.AlreadyDone,
			Imported:       report.Imported,
			Skipped:        report.Skipped,
			SkippedSources: report.SkippedSources,
			Complete:       report.Complete,
		}
		for _, problem := range multierr.Errors(report.Problems) {
			resp.Problems = append(resp.Problems, problem.Error())
		}
		responses.WriteSuccess(w, resp)
	}
}
