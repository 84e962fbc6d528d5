package api

import (
	"time"

	"github.com/weathermesh/weathermesh/pkg/types"
	"github.com/weathermesh/weathermesh/server/internal/store"
)

// Source is the read side of the aggregator the admin surface needs.
type Source interface {
	Entries() []*store.Entry
	Current() uint64
	Expiry() time.Duration
}

// HealthResponse is the JSON body for GET /api/v1/health.
type HealthResponse struct {
	Status      string `json:"status"`
	Stations    int    `json:"stations"`
	LamportTime uint64 `json:"lamport_time"`
}

// StationResponse is the JSON representation of a single live station.
type StationResponse struct {
	ID         string        `json:"id"`
	Reading    types.Reading `json:"reading"`
	LastWrite  string        `json:"last_write"` // RFC3339
	AgeSeconds float64       `json:"age_seconds"`
}

// StationsResponse is the JSON body for GET /api/v1/stations and the
// payload of every WebSocket stream message.
type StationsResponse struct {
	Stations    map[string]StationResponse `json:"stations"`
	LamportTime uint64                     `json:"lamport_time"`
	GeneratedAt string                     `json:"generated_at"` // RFC3339
}

type errorResponse struct {
	Error string `json:"error"`
}

// BuildStations collects the live stations of src as of now.
func BuildStations(src Source, now time.Time) StationsResponse {
	out := StationsResponse{
		Stations:    make(map[string]StationResponse),
		LamportTime: src.Current(),
		GeneratedAt: now.UTC().Format(time.RFC3339),
	}
	for _, e := range src.Entries() {
		if live(e, src.Expiry(), now) {
			out.Stations[e.StationID] = toStationResponse(e, now)
		}
	}
	return out
}

func live(e *store.Entry, expiry time.Duration, now time.Time) bool {
	return now.Sub(e.UpdatedAt) < expiry
}

func toStationResponse(e *store.Entry, now time.Time) StationResponse {
	return StationResponse{
		ID:         e.StationID,
		Reading:    e.Reading,
		LastWrite:  e.UpdatedAt.UTC().Format(time.RFC3339),
		AgeSeconds: now.Sub(e.UpdatedAt).Seconds(),
	}
}
