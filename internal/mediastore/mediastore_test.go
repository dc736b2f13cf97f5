// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package mediastore

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/prism/internal/model"
)

var pngBytes = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0}

func TestValidKey(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"3f2c1a9e-7b1d-4c8e-9a55-0d9c1f7e2b10", true},
		{"msg_1", true},
		{"", false},
		{"../etc/passwd", false},
		{"a/b", false},
		{"-leading", false},
		{strings.Repeat("a", 129), false},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidKey(tt.key))
		})
	}
}

func TestFileStore_PutGet(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(filepath.Join(dir, "media"))
	require.NoError(t, err)
	ctx := context.Background()

	uri, err := s.Put(ctx, "abc-123", &model.Media{MIMEType: "image/png", Data: pngBytes})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(uri, "file://"), uri)
	assert.True(t, strings.HasSuffix(uri, "abc-123.png"), uri)

	info, err := os.Stat(filepath.Join(dir, "media", "abc-123.png"))
	require.NoError(t, err)
	assert.False(t, info.IsDir())

	got, err := s.Get(ctx, "abc-123")
	require.NoError(t, err)
	assert.Equal(t, pngBytes, got.Data)
	assert.Equal(t, "image/png", got.MIMEType)
	assert.Equal(t, uri, got.URI)
}

func TestFileStore_Errors(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = s.Put(ctx, "../escape", &model.Media{MIMEType: "image/png", Data: pngBytes})
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = s.Put(ctx, "empty", &model.Media{MIMEType: "image/png"})
	assert.ErrorIs(t, err, ErrEmptyMedia)

	_, err = s.Put(ctx, "nil", nil)
	assert.ErrorIs(t, err, ErrEmptyMedia)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestS3Config_Validate(t *testing.T) {
	err := S3Config{}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "endpoint")
	assert.Contains(t, err.Error(), "bucket")
	assert.Contains(t, err.Error(), "credentials")

	cfg := S3Config{Endpoint: "localhost:9000", Bucket: "prism", AccessKey: "a", SecretKey: "b"}
	assert.NoError(t, cfg.Validate())
}

func TestS3Store_ObjectName(t *testing.T) {
	s, err := NewS3Store(S3Config{
		Endpoint: "localhost:9000", Bucket: "prism", AccessKey: "a", SecretKey: "b", Prefix: "generated",
	})
	require.NoError(t, err)
	assert.Equal(t, "generated/k1.png", s.ObjectName("k1", "image/png"))
	assert.Equal(t, "generated/k1.jpg", s.ObjectName("k1", "image/jpeg"))

	_, err = s.Put(context.Background(), "bad/key", &model.Media{MIMEType: "image/png", Data: pngBytes})
	assert.ErrorIs(t, err, ErrInvalidKey)
}
