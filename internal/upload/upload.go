// Package upload stores product images on local disk.
package upload

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/mytheresa/go-storefront/internal/errors"
)

// URLPrefix is the path under which stored files are served.
const URLPrefix = "/uploads/"

var allowedTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// Store writes uploaded images into a directory under random names.
type Store struct {
	dir      string
	maxBytes int64
}

// NewStore returns a Store rooted at dir, creating it when missing.
func NewStore(dir string, maxBytes int64) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Store{dir: dir, maxBytes: maxBytes}, nil
}

// Dir returns the storage directory.
func (s *Store) Dir() string {
	return s.dir
}

// MaxBytes returns the largest accepted file size.
func (s *Store) MaxBytes() int64 {
	return s.maxBytes
}

// Save sniffs the content type of r, rejects anything that is not a supported image or is too
// large, and writes it under a UUID name. It returns the public path of the stored file.
func (s *Store) Save(r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return "", errors.Internal("failed to read upload", err)
	}
	if int64(len(data)) > s.maxBytes {
		return "", errors.Validationf("image must not exceed %d bytes", s.maxBytes)
	}
	if len(data) == 0 {
		return "", errors.Validation("image is empty")
	}

	mime := mimetype.Detect(data)
	ext, ok := allowedTypes[mime.String()]
	if !ok {
		return "", errors.Validationf("unsupported image type %s", mime.String())
	}

	name := uuid.NewString() + ext
	if err := writeFile(filepath.Join(s.dir, name), data); err != nil {
		return "", errors.Internal("failed to store upload", err)
	}
	return URLPrefix + name, nil
}

// Delete removes a file previously returned by Save. Paths outside the store are ignored.
func (s *Store) Delete(publicPath string) error {
	name, ok := strings.CutPrefix(publicPath, URLPrefix)
	if !ok || name == "" || name != filepath.Base(name) {
		return nil
	}
	err := os.Remove(filepath.Join(s.dir, name))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func writeFile(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, bytes.NewReader(data)); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return err
	}
	return f.Close()
}
