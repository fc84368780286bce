package secrets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandString(t *testing.T) {
	t.Setenv("THRESHCORDER_TEST_TOKEN", "secret123")
	t.Setenv("THRESHCORDER_TEST_USER", "admin")

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "empty", input: "", want: ""},
		{name: "literal", input: "literal-value", want: "literal-value"},
		{name: "variable", input: "${THRESHCORDER_TEST_TOKEN}", want: "secret123"},
		{name: "prefix_and_suffix", input: "Bearer ${THRESHCORDER_TEST_TOKEN}!", want: "Bearer secret123!"},
		{name: "multiple", input: "${THRESHCORDER_TEST_USER}:${THRESHCORDER_TEST_TOKEN}", want: "admin:secret123"},
		{name: "fallback_unused", input: "${THRESHCORDER_TEST_TOKEN:-other}", want: "secret123"},
		{name: "fallback_used", input: "${THRESHCORDER_TEST_UNSET:-fallback}", want: "fallback"},
		{name: "empty_fallback", input: "${THRESHCORDER_TEST_UNSET:-}", want: ""},
		{name: "missing", input: "${THRESHCORDER_TEST_UNSET}", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExpandString(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "THRESHCORDER_TEST_UNSET")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	t.Run("trims_trailing_newline", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(dir, "token")
		require.NoError(t, os.WriteFile(path, []byte(" s3cret \n"), 0o600))

		got, err := ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, " s3cret ", got)
	})

	t.Run("empty_file", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(dir, "empty")
		require.NoError(t, os.WriteFile(path, []byte("\n"), 0o600))

		_, err := ReadFile(path)
		assert.Error(t, err)
	})

	t.Run("missing_file", func(t *testing.T) {
		t.Parallel()
		_, err := ReadFile(filepath.Join(dir, "nope"))
		assert.Error(t, err)
	})

	t.Run("directory", func(t *testing.T) {
		t.Parallel()
		_, err := ReadFile(dir)
		assert.Error(t, err)
	})

	t.Run("too_large", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(dir, "large")
		require.NoError(t, os.WriteFile(path, make([]byte, maxSecretFileSize+1), 0o600))

		_, err := ReadFile(path)
		assert.Error(t, err)
	})
}

func TestResolve(t *testing.T) {
	t.Setenv("THRESHCORDER_TEST_PASS", "from-env")

	path := filepath.Join(t.TempDir(), "pass")
	require.NoError(t, os.WriteFile(path, []byte("from-file\n"), 0o600))

	got, err := Resolve(path, "${THRESHCORDER_TEST_PASS}")
	require.NoError(t, err)
	assert.Equal(t, "from-file", got)

	got, err = Resolve("", "${THRESHCORDER_TEST_PASS}")
	require.NoError(t, err)
	assert.Equal(t, "from-env", got)

	got, err = Resolve("", "")
	require.NoError(t, err)
	assert.Empty(t, got)
}
