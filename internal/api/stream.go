package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/erazemk/menjalnica/internal/live"
)

// keepaliveInterval keeps idle proxies from closing a quiet stream.
const keepaliveInterval = 25 * time.Second

// streamSnapshots writes every snapshot of sub as a server-sent event until
// the client goes away or the subscription ends.
func streamSnapshots[T any](w http.ResponseWriter, r *http.Request, sub *live.Subscription[T]) {
	defer sub.Cancel()

	rc := http.NewResponseController(w)
	// Streams outlive the server's write timeout.
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		slog.DebugContext(r.Context(), "clearing write deadline", "error", err)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		slog.WarnContext(r.Context(), "streaming not supported", "error", err)
		return
	}

	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case snapshot, ok := <-sub.C():
			if !ok {
				if err := sub.Err(); err != nil {
					slog.ErrorContext(r.Context(), "live query failed", "path", r.URL.Path, "error", err)
					fmt.Fprint(w, "event: error\ndata: {\"error\":\"internal error\"}\n\n")
					rc.Flush()
				}
				return
			}
			data, err := json.Marshal(snapshot)
			if err != nil {
				slog.ErrorContext(r.Context(), "encoding snapshot", "error", err)
				return
			}
			if _, err := fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", data); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}
