package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"zetaduel-service/internal/app"
)

// StatsHandler exposes queue length and active duel count for monitoring.
type StatsHandler struct {
	registry *app.SessionRegistry
}

func NewStatsHandler(registry *app.SessionRegistry) *StatsHandler {
	return &StatsHandler{registry: registry}
}

func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.registry.Stats()); err != nil {
		log.Error().Err(err).Msg("encode stats")
	}
}

// FeedStatus reports whether an optional outbound feed is connected.
type FeedStatus interface {
	Connected() bool
}

type healthResponse struct {
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
	OutcomeFeed string `json:"outcomeFeed,omitempty"`
}

// HealthHandler reports liveness as {"status":"OK","timestamp":...}. When an outcome
// feed is configured its connection state is included; a disconnected feed does not
// fail the check.
type HealthHandler struct {
	feed FeedStatus
	now  func() time.Time
}

// NewHealthHandler builds the handler. feed may be nil.
func NewHealthHandler(feed FeedStatus) *HealthHandler {
	return &HealthHandler{feed: feed, now: time.Now}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	resp := healthResponse{
		Status:    "OK",
		Timestamp: h.now().UTC().Format(time.RFC3339Nano),
	}
	if h.feed != nil {
		resp.OutcomeFeed = "disconnected"
		if h.feed.Connected() {
			resp.OutcomeFeed = "connected"
		}
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error().Err(err).Msg("encode health")
	}
}
