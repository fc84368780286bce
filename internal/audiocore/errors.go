package audiocore

import "github.com/tphakala/threshcorder/internal/errors"

// ComponentAudioCore tags errors raised by the pipeline core.
const ComponentAudioCore = "audiocore"

// Error kinds of the capture pipeline. Match them with errors.Is; the
// errors returned by the pipeline wrap these with context.
var (
	// ErrDeviceUnavailable: the capture device could not be opened.
	ErrDeviceUnavailable = errors.NewStd("capture device unavailable")

	// ErrFormatUnsupported: the requested sample format, rate or channel
	// count was rejected by the device.
	ErrFormatUnsupported = errors.NewStd("audio format unsupported")

	// ErrDeviceDisconnected: a device read failed mid-session.
	ErrDeviceDisconnected = errors.NewStd("capture device disconnected")

	// ErrCaptureOverrun: the ring buffer was full and a frame was dropped.
	// Counted, not returned, on the capture path.
	ErrCaptureOverrun = errors.NewStd("capture overrun")

	// ErrHandoffDrop: the writer queue was full and episode data was dropped.
	ErrHandoffDrop = errors.NewStd("episode handoff dropped")

	// ErrFinalize: an episode file could not be finalized. Data already
	// written remains on disk and the episode is marked degraded.
	ErrFinalize = errors.NewStd("episode finalize failed")

	// ErrEndOfStream: a file-backed device reached the end of its input.
	ErrEndOfStream = errors.NewStd("end of audio stream")
)
