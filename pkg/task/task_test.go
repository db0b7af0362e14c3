package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeys(t *testing.T) {
	const pid = "11111111-1111-1111-1111-111111111111"

	key := OriginalKey(pid, "holiday.photo.jpg")
	assert.Equal(t, pid+"/holiday.photo_original.jpg", key)
	assert.True(t, IsOriginalKey(key))

	assert.True(t, IsOriginalKey(pid+"/cat_original.png"))
	assert.True(t, IsOriginalKey(pid+"/scan.tar_original.gz"))
	assert.False(t, IsOriginalKey(pid+"/scan_original.tar.gz"))
	assert.False(t, IsOriginalKey(pid+"/holiday.photo_thumb.jpg"))
	assert.False(t, IsOriginalKey(pid+"/cat_thumb.png"))

	id, ok := ProjectOf(pid + "/cat_original.png")
	require.True(t, ok)
	assert.Equal(t, pid, id)

	_, ok = ProjectOf("cat_original.png")
	assert.False(t, ok)

	assert.Equal(t, pid+"/cat_thumb.png", DerivedKey(pid+"/cat_original.png", "thumb"))
	assert.Equal(t, "a/my_original_pic_d2500.jpg", DerivedKey("a/my_original_pic_original.jpg", "d2500"))
}

func TestParseNotification(t *testing.T) {
	n, err := ParseNotification([]byte(`{"project_id":"p","state":"PROGRESS","versions":{"thumb":"p/a_thumb.jpg"},"progress":{"done":1,"total":4}}`))
	require.NoError(t, err)
	assert.Equal(t, StateProgress, n.State)
	assert.Equal(t, 1, n.Progress.Done)

	n, err = ParseNotification([]byte(`{"task_id":"t","state":"FAILURE","error":"object not found"}`))
	require.NoError(t, err)
	assert.Equal(t, "object not found", n.Error)

	for _, bad := range []string{
		`{`,
		`{"state":"FAILURE"}`,
		`{"state":"SUCCESS"}`,
		`{"project_id":"p","state":"STARTED"}`,
	} {
		_, err := ParseNotification([]byte(bad))
		assert.ErrorIs(t, err, ErrInvalidNotification, bad)
	}
}

func TestTerminal(t *testing.T) {
	assert.True(t, StateSuccess.Terminal())
	assert.True(t, StateRevoked.Terminal())
	assert.False(t, StateProgress.Terminal())
}

func TestGeneratedOriginalKeysAreRecognised(t *testing.T) {
	const pid = "11111111-1111-1111-1111-111111111111"
	for _, name := range []string{
		"cat.jpg",
		"holiday.2024.jpg",
		"a.b.c.d.png",
		"archive.tar.gz",
		"no-extension",
		"my cat pic.jpeg",
		"trailing.",
		"original_original.jpg",
		"x_original.y.jpg",
	} {
		key := OriginalKey(pid, name)
		assert.True(t, IsOriginalKey(key), "%s -> %s", name, key)
		assert.False(t, IsOriginalKey(DerivedKey(key, "thumb")), "%s -> %s", name, DerivedKey(key, "thumb"))
	}
}
