// Package buildinfo holds build-time metadata injected with -ldflags.
package buildinfo

import (
	"fmt"
	"os"
)

// Set at build time:
//
//	-ldflags "-X github.com/tphakala/threshcorder/internal/buildinfo.version=v1.2.0"
var (
	version   = ""
	buildDate = ""
)

// Context contains build-time metadata that is not user-configurable.
type Context struct {
	Version   string
	BuildDate string
}

// Current returns the metadata of the running binary.
func Current() *Context {
	return &Context{Version: version, BuildDate: buildDate}
}

// GetVersion returns the version or "unknown".
func (c *Context) GetVersion() string {
	if c == nil || c.Version == "" {
		return "unknown"
	}
	return c.Version
}

// GetBuildDate returns the build date or "unknown".
func (c *Context) GetBuildDate() string {
	if c == nil || c.BuildDate == "" {
		return "unknown"
	}
	return c.BuildDate
}

// Release names the build for error reports, e.g. "threshcorder@v1.2.0".
func (c *Context) Release(app string) string {
	return fmt.Sprintf("%s@%s", app, c.GetVersion())
}

// ClientID returns an identifier for broker connections: the app name and
// host name.
func ClientID(app string) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return app + "-" + host
}
