package controllers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/angelmondragon/draftsync/api/responses"
	"github.com/angelmondragon/draftsync/pkg/config"
	pkgerrors "github.com/angelmondragon/draftsync/pkg/errors"
	"github.com/angelmondragon/draftsync/pkg/logger"
)

const readinessTimeout = 3 * time.Second

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Draftsync-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady fails when the local database or any configured dependency
// is unreachable. An offline remote is reported but is not a failure.
func HealthReady(cfg *config.Config, logg *logger.Logger, dbP Pinger, checks map[string]Pinger, conn OnlineReporter, queue UploadQueue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Draftsync-Env", cfg.App.Env)
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		if err := dbP.Ping(ctx); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "database not ready").
				WithDetails(map[string]any{"dependency": "database"}))
			return
		}

		names := make([]string, 0, len(checks))
		for name := range checks {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if err := checks[name].Ping(ctx); err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, name+" not ready").
					WithDetails(map[string]any{"dependency": name}))
				return
			}
		}

		remote := "offline"
		if conn != nil && conn.Online() {
			remote = "online"
		}
		payload := map[string]any{
			"status": "ready",
			"remote": remote,
		}
		if queue != nil {
			payload["processing"] = queue.Processing()
		}
		responses.WriteSuccess(w, payload)
	}
}
