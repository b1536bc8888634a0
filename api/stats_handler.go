package api

import (
	"context"
	"net/http"

	"github.com/yourusername/burstfence/metrics"
	"github.com/yourusername/burstfence/store"
)

// StatsProvider defines the interface for getting bucket statistics
type StatsProvider interface {
	GetSnapshot() *metrics.Snapshot
	Stored(ctx context.Context, bucket string) (store.Counters, error)
}

// StatsHandler handles GET /stats requests
type StatsHandler struct {
	provider StatsProvider
}

// NewStatsHandler creates a new stats handler
func NewStatsHandler(provider StatsProvider) *StatsHandler {
	return &StatsHandler{provider: provider}
}

// ServeHTTP returns the in-process snapshot, or the stored counters of one
// bucket when ?bucket=<policy>/<key> is given.
func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		sendError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "Only GET requests are allowed")
		return
	}

	// Allow the dashboard to fetch
	w.Header().Set("Access-Control-Allow-Origin", "*")

	if bucket := r.URL.Query().Get("bucket"); bucket != "" {
		counters, err := h.provider.Stored(r.Context(), bucket)
		if err != nil {
			sendError(w, r, http.StatusBadGateway, "store_unavailable", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, struct {
			Bucket string `json:"bucket"`
			store.Counters
		}{Bucket: bucket, Counters: counters})
		return
	}

	writeJSON(w, http.StatusOK, h.provider.GetSnapshot())
}
