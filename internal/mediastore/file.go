// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package mediastore

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/jeranaias/prism/internal/media"
	"github.com/jeranaias/prism/internal/model"
	"github.com/jeranaias/prism/internal/util"
)

// FileStore keeps media as files in one directory.
type FileStore struct {
	dir string
}

// NewFileStore creates a store rooted at dir. The directory is created on
// first write.
func NewFileStore(dir string) (*FileStore, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve media directory: %w", err)
	}
	return &FileStore{dir: abs}, nil
}

// Dir returns the store directory.
func (s *FileStore) Dir() string {
	return s.dir
}

// Put writes the media atomically and returns a file:// URI.
func (s *FileStore) Put(ctx context.Context, key string, m *model.Media) (string, error) {
	if err := checkPut(key, m); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create media directory: %w", err)
	}

	path := filepath.Join(s.dir, key+media.Extension(m.MIMEType))
	if err := util.AtomicWriteFile(path, m.Data, 0600); err != nil {
		return "", err
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String(), nil
}

// Get reads the media stored under key.
func (s *FileStore) Get(ctx context.Context, key string) (*model.Media, error) {
	if !ValidKey(key) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	matches, err := filepath.Glob(filepath.Join(s.dir, key+".*"))
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}

	path := matches[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read media: %w", err)
	}
	return &model.Media{
		MIMEType: media.DetectMIME(path, data),
		Data:     data,
		URI:      (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String(),
	}, nil
}

var _ Store = (*FileStore)(nil)
