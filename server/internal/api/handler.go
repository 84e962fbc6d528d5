package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/weathermesh/weathermesh/server/internal/metrics"
)

// Handler is the HTTP handler for the admin endpoints.
type Handler struct {
	src Source
	mux *http.ServeMux
	now func() time.Time
}

// New creates a Handler reading from src and registers all routes. /metrics
// is mounted only when m is non-nil.
func New(src Source, m *metrics.Metrics) http.Handler {
	h := &Handler{src: src, mux: http.NewServeMux(), now: time.Now}

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/stations", h.listStations)
	h.mux.HandleFunc("/api/v1/stations/", h.getStation) // subtree, extracts {id}
	if m != nil {
		h.mux.Handle("/metrics", m.Handler())
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// health returns GET /api/v1/health.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	stations := BuildStations(h.src, h.now())
	jsonResp(w, http.StatusOK, HealthResponse{
		Status:      "ok",
		Stations:    len(stations.Stations),
		LamportTime: stations.LamportTime,
	})
}

// listStations returns GET /api/v1/stations.
func (h *Handler) listStations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, BuildStations(h.src, h.now()))
}

// getStation returns GET /api/v1/stations/{id}.
func (h *Handler) getStation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/v1/stations/")
	if id == "" {
		h.listStations(w, r)
		return
	}

	now := h.now()
	for _, e := range h.src.Entries() {
		if e.StationID == id && live(e, h.src.Expiry(), now) {
			jsonResp(w, http.StatusOK, toStationResponse(e, now))
			return
		}
	}
	jsonErr(w, http.StatusNotFound, "station not found")
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
