//go:build portaudio

package record

import (
	_ "github.com/tphakala/threshcorder/internal/audiocore/sources/portaudio"
)
