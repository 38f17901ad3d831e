package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorageSaveReadDelete(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Save(filepath.Join("attendance", "course-1", "2024-03-01.json"), []byte(`{"a":1}`)))
	require.NoError(t, store.Save(filepath.Join("attendance", "course-1", "2024-03-01.json"), []byte(`{"a":2}`)))

	data, err := store.Read(filepath.Join("attendance", "course-1", "2024-03-01.json"))
	require.NoError(t, err)
	assert.Equal(t, `{"a":2}`, string(data))

	entries, err := os.ReadDir(filepath.Join(store.BaseDir(), "attendance", "course-1"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not linger")

	require.NoError(t, store.Delete(filepath.Join("attendance", "course-1", "2024-03-01.json")))
	require.NoError(t, store.Delete(filepath.Join("attendance", "course-1", "2024-03-01.json")))

	_, err = store.Read(filepath.Join("attendance", "course-1", "2024-03-01.json"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestLocalStorageRejectsEscapes(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	err = store.Save(filepath.Join("..", "outside.json"), []byte("x"))
	assert.True(t, errors.Is(err, ErrOutsideBase))

	_, err = store.Read("/etc/passwd")
	assert.True(t, errors.Is(err, ErrOutsideBase))
}
