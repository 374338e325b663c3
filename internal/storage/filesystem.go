package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

var (
	ErrInvalidObjectKey = errors.New("storage: invalid object key")
	ErrObjectNotFound   = errors.New("storage: object not found")
	ErrMissingRoot      = errors.New("storage: root directory required")
)

// CleanKey normalizes a slash-separated object key and rejects keys escaping the root.
func CleanKey(raw string) (string, error) {
	trimmed := strings.TrimSpace(strings.ReplaceAll(raw, "\\", "/"))
	trimmed = strings.TrimLeft(trimmed, "/")
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidObjectKey)
	}
	cleaned := path.Clean(trimmed)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: %q escapes root", ErrInvalidObjectKey, raw)
	}
	return cleaned, nil
}

// Filesystem stores objects as files below a root directory.
type Filesystem struct {
	root string
}

// NewFilesystem creates root if needed and returns the store.
func NewFilesystem(root string) (*Filesystem, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, ErrMissingRoot
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("storage: create root: %w", err)
	}
	return &Filesystem{root: root}, nil
}

// Put writes body under key, replacing any previous object, and returns the bytes written.
func (f *Filesystem) Put(ctx context.Context, key string, body io.Reader) (int64, error) {
	target, err := f.resolve(key)
	if err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return 0, fmt.Errorf("storage: create directory: %w", err)
	}

	temp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return 0, fmt.Errorf("storage: create temp file: %w", err)
	}
	tempName := temp.Name()
	written, copyErr := io.Copy(temp, body)
	closeErr := temp.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(tempName)
		return 0, fmt.Errorf("storage: write object: %w", errors.Join(copyErr, closeErr))
	}
	if err := os.Rename(tempName, target); err != nil {
		_ = os.Remove(tempName)
		return 0, fmt.Errorf("storage: commit object: %w", err)
	}
	return written, nil
}

// Open returns a reader for key; callers close it.
func (f *Filesystem) Open(ctx context.Context, key string) (io.ReadSeekCloser, error) {
	target, err := f.resolve(key)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	file, err := os.Open(target)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrObjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: open object: %w", err)
	}
	return file, nil
}

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key     string
	Size    int64
	ModTime time.Time
}

// Stat reports the size and modification time of key.
func (f *Filesystem) Stat(ctx context.Context, key string) (ObjectInfo, error) {
	target, err := f.resolve(key)
	if err != nil {
		return ObjectInfo{}, err
	}
	if err := ctx.Err(); err != nil {
		return ObjectInfo{}, err
	}
	info, err := os.Stat(target)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && info.IsDir()) {
		return ObjectInfo{}, ErrObjectNotFound
	}
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("storage: stat object: %w", err)
	}
	return ObjectInfo{Key: key, Size: info.Size(), ModTime: info.ModTime()}, nil
}

// Delete removes key; a missing object is not an error.
func (f *Filesystem) Delete(ctx context.Context, key string) error {
	target, err := f.resolve(key)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("storage: delete object: %w", err)
	}
	return nil
}

func (f *Filesystem) resolve(key string) (string, error) {
	cleaned, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(f.root, filepath.FromSlash(cleaned)), nil
}
