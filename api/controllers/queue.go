package controllers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/angelmondragon/draftsync/api/responses"
	"github.com/angelmondragon/draftsync/internal/progress"
	pkgerrors "github.com/angelmondragon/draftsync/pkg/errors"
	"github.com/angelmondragon/draftsync/pkg/logger"
)

const progressBuffer = 64

func QueueProcess(queue UploadQueue, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := queue.ProcessQueue(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, busyAsConflict(err))
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// QueueProgress streams progress descriptors as server-sent events. An
// idle event is sent whenever no upload is running. Slow readers lose the
// oldest buffered events.
func QueueProgress(queue UploadQueue, logg *logger.Logger, keepAlive time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "streaming unsupported"))
			return
		}

		events := make(chan *progress.Progress, progressBuffer)
		unsubscribe := queue.OnProgress(func(p *progress.Progress) {
			select {
			case events <- p:
				return
			default:
			}
			select {
			case <-events:
			default:
			}
			select {
			case events <- p:
			default:
			}
		})
		defer unsubscribe()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		ticker := time.NewTicker(keepAlive)
		defer ticker.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case p := <-events:
				if err := writeProgressEvent(w, p); err != nil {
					logg.Warn(logg.WithField(r.Context(), "error", err.Error()), "progress stream closed")
					return
				}
				flusher.Flush()
			case <-ticker.C:
				if _, err := io.WriteString(w, ": keep-alive\n\n"); err != nil {
					return
				}
				flusher.Flush()
			}
		}
	}
}

func writeProgressEvent(w io.Writer, p *progress.Progress) error {
	if p == nil {
		_, err := io.WriteString(w, "event: idle\ndata: {}\n\n")
		return err
	}
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: progress\ndata: %s\n\n", data)
	return err
}
