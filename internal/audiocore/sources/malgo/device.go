package malgo

import (
	"encoding/hex"
	"fmt"
	"runtime"
	"strings"

	"github.com/gen2brain/malgo"

	"github.com/tphakala/threshcorder/internal/audiocore"
	"github.com/tphakala/threshcorder/internal/audiocore/capture"
	"github.com/tphakala/threshcorder/internal/errors"
)

// backendForPlatform returns the miniaudio backend for the current platform.
func backendForPlatform() (malgo.Backend, error) {
	switch runtime.GOOS {
	case "linux":
		return malgo.BackendAlsa, nil
	case "windows":
		return malgo.BackendWasapi, nil
	case "darwin":
		return malgo.BackendCoreaudio, nil
	default:
		return malgo.BackendNull, errors.New(fmt.Errorf("%w: unsupported operating system %s",
			audiocore.ErrDeviceUnavailable, runtime.GOOS)).
			Component(componentMalgo).
			Category(errors.CategoryAudioSource).
			Build()
	}
}

// describeDevices converts miniaudio device infos, skipping the null device.
// The Index field refers to the position in infos.
func describeDevices(infos []malgo.DeviceInfo) []capture.DeviceInfo {
	devices := make([]capture.DeviceInfo, 0, len(infos))
	for i := range infos {
		if strings.Contains(infos[i].Name(), "Discard all samples") {
			continue
		}

		decodedID, err := hexToASCII(infos[i].ID.String())
		if err != nil {
			decodedID = infos[i].ID.String()
		}

		devices = append(devices, capture.DeviceInfo{
			Index:   i,
			Name:    infos[i].Name(),
			ID:      decodedID,
			Default: infos[i].IsDefault == 1,
		})
	}
	return devices
}

// selectDevice finds the device matching name. "", "default" and
// "sysdefault" select the system default; otherwise an exact name, a decoded
// ALSA id such as ":1,0", then a partial name match is tried in that order.
func selectDevice(devices []capture.DeviceInfo, name string) (capture.DeviceInfo, error) {
	if len(devices) == 0 {
		return capture.DeviceInfo{}, errors.New(fmt.Errorf("%w: no capture devices found", audiocore.ErrDeviceUnavailable)).
			Component(componentMalgo).
			Category(errors.CategoryAudioSource).
			Build()
	}

	switch name {
	case "", "default", "sysdefault":
		for _, d := range devices {
			if d.Default {
				return d, nil
			}
		}
		return devices[0], nil
	}

	for _, d := range devices {
		if d.Name == name {
			return d, nil
		}
	}

	for _, d := range devices {
		if d.ID == name {
			return d, nil
		}
	}

	for _, d := range devices {
		if strings.Contains(d.Name, name) {
			return d, nil
		}
	}

	return capture.DeviceInfo{}, errors.New(fmt.Errorf("%w: no capture device matches %q", audiocore.ErrDeviceUnavailable, name)).
		Component(componentMalgo).
		Category(errors.CategoryAudioSource).
		Context("available_devices", len(devices)).
		Build()
}

// toMalgoFormat maps a sample format to miniaudio.
func toMalgoFormat(f audiocore.SampleFormat) (malgo.FormatType, bool) {
	switch f {
	case audiocore.FormatS16LE:
		return malgo.FormatS16, true
	case audiocore.FormatS24LE:
		return malgo.FormatS24, true
	case audiocore.FormatS32LE:
		return malgo.FormatS32, true
	default:
		return malgo.FormatUnknown, false
	}
}

// fromMalgoFormat maps a miniaudio format back.
func fromMalgoFormat(f malgo.FormatType) audiocore.SampleFormat {
	switch f {
	case malgo.FormatS16:
		return audiocore.FormatS16LE
	case malgo.FormatS24:
		return audiocore.FormatS24LE
	case malgo.FormatS32:
		return audiocore.FormatS32LE
	default:
		return audiocore.FormatUnknown
	}
}

// hexToASCII converts a hexadecimal string to an ASCII string
func hexToASCII(hexStr string) (string, error) {
	bytes, err := hex.DecodeString(hexStr)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(bytes), "\x00"), nil
}
