// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package mediastore persists generated media so a message can carry a
// stable reference instead of holding the bytes in memory only.
//
// Two stores are provided: a directory on local disk and an S3-compatible
// bucket. Both key objects by message ID.
package mediastore

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/jeranaias/prism/internal/model"
)

var (
	// ErrNotFound is returned when no media exists for a key.
	ErrNotFound = errors.New("media not found")

	// ErrInvalidKey is returned for keys that are not safe object names.
	ErrInvalidKey = errors.New("invalid media key")

	// ErrEmptyMedia is returned when Put is given no bytes.
	ErrEmptyMedia = errors.New("media has no data")
)

// Store saves and loads generated media.
type Store interface {
	// Put stores the media under key and returns its URI.
	Put(ctx context.Context, key string, m *model.Media) (string, error)

	// Get loads the media stored under key.
	Get(ctx context.Context, key string) (*model.Media, error)
}

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,127}$`)

// ValidKey reports whether key can be used as an object name.
func ValidKey(key string) bool {
	return keyPattern.MatchString(key)
}

func checkPut(key string, m *model.Media) error {
	if !ValidKey(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	if m == nil || len(m.Data) == 0 {
		return ErrEmptyMedia
	}
	return nil
}
