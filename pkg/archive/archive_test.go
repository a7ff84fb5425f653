package archive

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsGzipped(t *testing.T) {
	assert.True(t, IsGzipped("rx20240101.jps.gz"))
	assert.False(t, IsGzipped("rx20240101.jps"))
}

func TestUnwrap_NonGzippedPathIsReturnedUnchanged(t *testing.T) {
	got, err := Unwrap("rx20240101.jps")
	require.NoError(t, err)
	assert.Equal(t, "rx20240101.jps", got)
}

func TestRewrapThenUnwrap_RoundTripsContent(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "rx.log")
	want := []byte("JAVAD\r\n%RT 12:00:00 001122\r\n")
	require.NoError(t, os.WriteFile(src, want, 0o644))

	require.NoError(t, Rewrap(src))
	_, err := os.Stat(src)
	assert.True(t, os.IsNotExist(err))

	gz := src + ".gz"
	_, err = os.Stat(gz)
	require.NoError(t, err)

	back, err := Unwrap(gz)
	require.NoError(t, err)
	assert.Equal(t, src, back)

	got, err := os.ReadFile(back)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
