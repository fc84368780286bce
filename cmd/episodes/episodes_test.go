package episodes

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/threshcorder/internal/catalog"
)

type fakeLister struct {
	episodes []catalog.Episode
	got      catalog.ListOptions
}

func (f *fakeLister) List(_ context.Context, opts catalog.ListOptions) ([]catalog.Episode, error) {
	f.got = opts
	return f.episodes, nil
}

func TestList(t *testing.T) {
	t.Run("prints_rows", func(t *testing.T) {
		store := &fakeLister{episodes: []catalog.Episode{{
			SessionID:  "0123456789abcdef",
			EpisodeID:  7,
			Path:       "/rec/a.wav",
			StartedAt:  time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
			DurationMs: 1500,
			Bytes:      48044,
			Forced:     true,
			Archived:   true,
		}}}

		var buf bytes.Buffer
		require.NoError(t, list(context.Background(), &buf, store, catalog.ListOptions{Limit: 5}))

		out := buf.String()
		assert.Contains(t, out, "01234567")
		assert.NotContains(t, out, "0123456789abcdef")
		assert.Contains(t, out, "1.5s")
		assert.Contains(t, out, "FA")
		assert.Contains(t, out, "/rec/a.wav")
		assert.Equal(t, 5, store.got.Limit)
	})

	t.Run("empty", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, list(context.Background(), &buf, &fakeLister{}, catalog.ListOptions{}))
		assert.Equal(t, "no episodes\n", buf.String())
	})
}
