package mqtt

import (
	"time"

	"github.com/tphakala/threshcorder/internal/audiocore/export"
)

// EpisodeMessage is the JSON payload published for a written episode.
//
// Field names are part of the published topic contract.
type EpisodeMessage struct {
	SessionID string    `json:"sessionId"`
	EpisodeID uint64    `json:"episodeId"`
	File      string    `json:"file"`
	Start     time.Time `json:"start"`
	TriggerAt time.Time `json:"triggerAt"`
	Duration  float64   `json:"durationSeconds"`
	Bytes     int64     `json:"bytes"`
	Forced    bool      `json:"forced"`
	Degraded  bool      `json:"degraded,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// NewEpisodeMessage maps a writer result to its payload.
func NewEpisodeMessage(sessionID string, res export.Result) EpisodeMessage {
	msg := EpisodeMessage{
		SessionID: sessionID,
		EpisodeID: res.Episode.ID,
		File:      res.Path,
		Start:     res.Episode.Start,
		TriggerAt: res.Episode.TriggerAt,
		Duration:  res.Duration.Seconds(),
		Bytes:     res.Bytes,
		Forced:    res.Episode.Forced,
		Degraded:  res.Degraded,
	}
	if res.Err != nil {
		msg.Error = res.Err.Error()
	}
	return msg
}
