package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorageRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(LocalConfig{BasePath: t.TempDir(), BaseURL: "http://files/"})
	require.NoError(t, err)

	key := "p1/photo_original.jpg"
	ok, err := s.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Write(ctx, key, strings.NewReader("pixels"), 6, "image/jpeg"))

	ok, err = s.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	rc, err := s.Read(ctx, key)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "pixels", string(data))

	url, err := s.GetURL(ctx, key, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "http://files/p1/photo_original.jpg", url)

	// No temp files left behind.
	entries, err := os.ReadDir(filepath.Join(s.BasePath(), "p1"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLocalStorageMissingAndTraversal(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	s, err := NewLocalStorage(LocalConfig{BasePath: base})
	require.NoError(t, err)

	_, err = s.Read(ctx, "nope.jpg")
	assert.ErrorIs(t, err, ErrObjectNotFound)

	assert.Equal(t, s.BasePath(), s.fullPath("../../etc/passwd")[:len(s.BasePath())])

	_, err = s.GetUploadURL(ctx, "k", "image/png", time.Minute)
	assert.ErrorIs(t, err, ErrUploadUnsupported)
}

func TestNewRejectsUnknownType(t *testing.T) {
	_, err := New(context.Background(), Config{Type: "ftp"})
	assert.Error(t, err)

	st, err := New(context.Background(), Config{Type: "local", Local: LocalConfig{BasePath: t.TempDir()}})
	require.NoError(t, err)
	assert.IsType(t, &LocalStorage{}, st)
}
