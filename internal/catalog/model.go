// Package catalog keeps a database record of every written episode.
package catalog

import (
	"time"

	"github.com/tphakala/threshcorder/internal/audiocore/export"
)

// Episode is one written episode file.
type Episode struct {
	ID        uint   `gorm:"primaryKey"`
	SessionID string `gorm:"size:36;index;uniqueIndex:idx_session_episode"`
	EpisodeID uint64 `gorm:"uniqueIndex:idx_session_episode"`
	Path      string `gorm:"size:1024;index"`

	StartedAt  time.Time `gorm:"index"`
	TriggerAt  time.Time
	DurationMs int64
	Frames     int
	Bytes      int64
	StartSeq   uint64
	EndSeq     uint64

	SampleRate int
	Channels   int
	Format     string `gorm:"size:16"`

	Forced   bool
	Degraded bool
	Error    string `gorm:"size:1024"`
	Archived bool

	CreatedAt time.Time
}

// TableName pins the table name independent of the struct name.
func (Episode) TableName() string {
	return "episodes"
}

// Duration returns the recorded audio length.
func (e *Episode) Duration() time.Duration {
	return time.Duration(e.DurationMs) * time.Millisecond
}

// FromResult maps a writer result to a catalogue row.
func FromResult(sessionID string, res export.Result, format string, sampleRate, channels int) Episode {
	ep := Episode{
		SessionID:  sessionID,
		EpisodeID:  res.Episode.ID,
		Path:       res.Path,
		StartedAt:  res.Episode.Start,
		TriggerAt:  res.Episode.TriggerAt,
		DurationMs: res.Duration.Milliseconds(),
		Frames:     res.Frames,
		Bytes:      res.Bytes,
		StartSeq:   res.Episode.StartSeq,
		EndSeq:     res.Episode.EndSeq,
		SampleRate: sampleRate,
		Channels:   channels,
		Format:     format,
		Forced:     res.Episode.Forced,
		Degraded:   res.Degraded,
	}
	if res.Err != nil {
		ep.Error = res.Err.Error()
	}
	return ep
}
