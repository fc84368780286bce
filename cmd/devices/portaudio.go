//go:build portaudio

package devices

import (
	_ "github.com/tphakala/threshcorder/internal/audiocore/sources/portaudio"
)
