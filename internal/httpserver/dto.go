package httpserver

import (
	"time"

	"github.com/tphakala/threshcorder/internal/audiocore/export"
	"github.com/tphakala/threshcorder/internal/catalog"
)

// EpisodeDTO is an episode in API responses.
type EpisodeDTO struct {
	SessionID       string    `json:"session_id,omitempty"`
	ID              uint64    `json:"id"`
	Path            string    `json:"path"`
	Start           time.Time `json:"start"`
	TriggerAt       time.Time `json:"trigger_at"`
	DurationSeconds float64   `json:"duration_seconds"`
	Frames          int       `json:"frames"`
	Bytes           int64     `json:"bytes"`
	Forced          bool      `json:"forced"`
	Degraded        bool      `json:"degraded"`
	Archived        bool      `json:"archived,omitempty"`
	Error           string    `json:"error,omitempty"`
}

// EpisodeList is the /api/v1/episodes response.
type EpisodeList struct {
	Source   string       `json:"source"` // "session" or "catalog"
	Episodes []EpisodeDTO `json:"episodes"`
}

func episodeFromResult(sessionID string, r *export.Result) EpisodeDTO {
	dto := EpisodeDTO{
		SessionID:       sessionID,
		ID:              r.Episode.ID,
		Path:            r.Path,
		Start:           r.Episode.Start,
		TriggerAt:       r.Episode.TriggerAt,
		DurationSeconds: r.Duration.Seconds(),
		Frames:          r.Frames,
		Bytes:           r.Bytes,
		Forced:          r.Episode.Forced,
		Degraded:        r.Degraded,
	}
	if r.Err != nil {
		dto.Error = r.Err.Error()
	}
	return dto
}

func episodeFromCatalog(e *catalog.Episode) EpisodeDTO {
	return EpisodeDTO{
		SessionID:       e.SessionID,
		ID:              e.EpisodeID,
		Path:            e.Path,
		Start:           e.StartedAt,
		TriggerAt:       e.TriggerAt,
		DurationSeconds: e.Duration().Seconds(),
		Frames:          e.Frames,
		Bytes:           e.Bytes,
		Forced:          e.Forced,
		Degraded:        e.Degraded,
		Archived:        e.Archived,
		Error:           e.Error,
	}
}
