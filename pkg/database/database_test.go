package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type row struct {
	ID    uint `gorm:"primaryKey"`
	Attrs StringMap
}

func TestSQLiteStringMap(t *testing.T) {
	db, err := New(&Config{Driver: "sqlite", FilePath: "file::memory:", LogLevel: "silent"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })

	require.NoError(t, db.AutoMigrate(&row{}))
	require.NoError(t, db.Create(&row{ID: 1, Attrs: StringMap{"thumb": "p/a_thumb.jpg"}}).Error)
	require.NoError(t, db.Create(&row{ID: 2}).Error)

	var got row
	require.NoError(t, db.First(&got, 1).Error)
	assert.Equal(t, "p/a_thumb.jpg", got.Attrs["thumb"])

	var empty row
	require.NoError(t, db.First(&empty, 2).Error)
	assert.Nil(t, empty.Attrs)
}

func TestUnsupportedDriver(t *testing.T) {
	_, err := New(&Config{Driver: "oracle"})
	assert.Error(t, err)
}

func TestStringMapScanRejectsNumbers(t *testing.T) {
	var m StringMap
	assert.Error(t, m.Scan(42))
	require.NoError(t, m.Scan(""))
	assert.Empty(t, m)
}
