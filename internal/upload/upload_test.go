package upload

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mytheresa/go-storefront/internal/errors"
)

// pngHeader is enough of a PNG for content sniffing.
var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

func TestSave(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, 1024)
	require.NoError(t, err)

	path, err := store.Save(bytes.NewReader(pngHeader))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(path, URLPrefix))
	assert.True(t, strings.HasSuffix(path, ".png"))

	stored, err := os.ReadFile(filepath.Join(dir, strings.TrimPrefix(path, URLPrefix)))
	require.NoError(t, err)
	assert.Equal(t, pngHeader, stored)

	require.NoError(t, store.Delete(path))
	_, err = os.Stat(filepath.Join(dir, strings.TrimPrefix(path, URLPrefix)))
	assert.True(t, os.IsNotExist(err))
}

func TestSaveRejects(t *testing.T) {
	store, err := NewStore(t.TempDir(), 16)
	require.NoError(t, err)

	tests := []struct {
		name string
		data []byte
	}{
		{name: "too large", data: append(append([]byte{}, pngHeader...), make([]byte, 32)...)},
		{name: "not an image", data: []byte("#!/bin/sh\necho")},
		{name: "empty", data: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.Save(bytes.NewReader(tt.data))
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrValidation)
		})
	}
}

func TestDeleteIgnoresForeignPaths(t *testing.T) {
	dir := t.TempDir()
	outside := filepath.Join(dir, "keep.txt")
	require.NoError(t, os.WriteFile(outside, []byte("x"), 0o600))

	store, err := NewStore(filepath.Join(dir, "uploads"), 1024)
	require.NoError(t, err)

	require.NoError(t, store.Delete("/uploads/../keep.txt"))
	require.NoError(t, store.Delete("/static/logo.png"))
	require.NoError(t, store.Delete("/uploads/missing.png"))

	_, err = os.Stat(outside)
	assert.NoError(t, err)
}
