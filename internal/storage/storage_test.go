package storage

import (
	"errors"
	"io/fs"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWriteReadAppend(t *testing.T) {
	s := NewMemoryStore(zap.NewNop())

	assert.False(t, s.Exists("/settings/sig/out0"))
	_, err := s.Read("/settings/sig/out0")
	assert.ErrorIs(t, err, fs.ErrNotExist)

	require.NoError(t, s.Write("/settings/sig/out0", `{"pin":4}`))
	assert.True(t, s.Exists("settings/sig/out0"))
	got, err := s.Read("/settings/sig/out0")
	require.NoError(t, err)
	assert.Equal(t, `{"pin":4}`, got)

	require.NoError(t, s.Append("/data/log", "a\n"))
	require.NoError(t, s.Append("/data/log", "b\n"))
	got, err = s.Read("/data/log")
	require.NoError(t, err)
	assert.Equal(t, "a\nb\n", got)
}

func TestListAndWipe(t *testing.T) {
	s := NewMemoryStore(zap.NewNop())
	require.NoError(t, s.Write("/settings/sig/b", "1"))
	require.NoError(t, s.Write("/settings/sig/a", "2"))
	require.NoError(t, s.Write("/data/x", "3"))

	names, err := s.List("/settings/sig", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"/settings/sig/a", "/settings/sig/b"}, names)

	names, err = s.List("/", 0)
	require.NoError(t, err)
	assert.Empty(t, names)
	names, err = s.List("/", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"/data/x", "/settings/sig/a", "/settings/sig/b"}, names)
	assert.True(t, s.IsDir("/settings"))
	assert.False(t, s.IsDir("/data/x"))

	names, err = s.List("/missing", 1)
	require.NoError(t, err)
	assert.Empty(t, names)

	free, err := s.FreeSpace()
	require.NoError(t, err)
	assert.Equal(t, uint64(MemoryCapacity-3), free)

	require.NoError(t, s.Wipe())
	assert.False(t, s.Exists("/settings/sig/a"))
	assert.False(t, s.Exists("/data/x"))
	require.NoError(t, s.Remove("/data/x"))
}

func TestOsStore(t *testing.T) {
	s, err := NewStore(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, s.Write("/settings/sen/temp", "{}"))
	got, err := s.Read("/settings/sen/temp")
	require.NoError(t, err)
	assert.Equal(t, "{}", got)

	free, err := s.FreeSpace()
	require.NoError(t, err)
	assert.Greater(t, free, uint64(0))
}

func TestWriteReader(t *testing.T) {
	s := NewMemoryStore(zap.NewNop())
	require.NoError(t, s.WriteReader("/www/index.html", strings.NewReader("<html>")))
	got, err := s.Read("/www/index.html")
	require.NoError(t, err)
	assert.Equal(t, "<html>", got)

	assert.Error(t, s.WriteReader("/www/broken", iotest.ErrReader(errors.New("cut"))))
	assert.False(t, s.Exists("/www/broken"))
}
