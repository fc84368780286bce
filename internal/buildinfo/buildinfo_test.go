package buildinfo

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContext(t *testing.T) {
	t.Parallel()

	var nilCtx *Context
	assert.Equal(t, "unknown", nilCtx.GetVersion())
	assert.Equal(t, "unknown", (&Context{}).GetBuildDate())

	c := &Context{Version: "v1.2.0", BuildDate: "2026-03-14"}
	assert.Equal(t, "v1.2.0", c.GetVersion())
	assert.Equal(t, "2026-03-14", c.GetBuildDate())
	assert.Equal(t, "threshcorder@v1.2.0", c.Release("threshcorder"))
}

func TestClientID(t *testing.T) {
	t.Parallel()
	assert.True(t, strings.HasPrefix(ClientID("threshcorder"), "threshcorder-"))
}
