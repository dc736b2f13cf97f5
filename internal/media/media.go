// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package media converts files and blobs into attachments.
//
// Every attachment enters the system through this package: the raw bytes are
// base64-encoded once and the coarse kind (image, video, audio) is derived
// from the MIME type.
package media

import (
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/jeranaias/prism/internal/model"
)

// MaxInlineSize is the largest payload sent inline to a backend (20MB).
const MaxInlineSize = 20 * 1024 * 1024

var (
	ErrEmpty       = errors.New("file is empty")
	ErrTooLarge    = errors.New("file exceeds the 20MB inline limit")
	ErrUnsupported = errors.New("unsupported media type")
)

// extra MIME types not reliably present in the system tables.
var extTypes = map[string]string{
	".m4a":  "audio/mp4",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".ogg":  "audio/ogg",
	".flac": "audio/flac",
	".aac":  "audio/aac",
	".webm": "video/webm",
	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
	".webp": "image/webp",
	".heic": "image/heic",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
}

// KindOf classifies a MIME type. The second result is false for types that
// are not image, video, or audio.
func KindOf(mimeType string) (model.Kind, bool) {
	base, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		base = strings.ToLower(strings.TrimSpace(mimeType))
	}
	switch {
	case strings.HasPrefix(base, "image/"):
		return model.KindImage, true
	case strings.HasPrefix(base, "video/"):
		return model.KindVideo, true
	case strings.HasPrefix(base, "audio/"):
		return model.KindAudio, true
	}
	return "", false
}

// DetectMIME guesses the MIME type from the file name, falling back to
// content sniffing.
func DetectMIME(name string, data []byte) string {
	ext := strings.ToLower(filepath.Ext(name))
	if t, ok := extTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		if base, _, err := mime.ParseMediaType(t); err == nil {
			return base
		}
		return t
	}
	t := http.DetectContentType(data)
	if base, _, err := mime.ParseMediaType(t); err == nil {
		return base
	}
	return t
}

// FromBytes builds an attachment from raw bytes. An empty mimeType is
// detected from the name and content.
func FromBytes(name string, data []byte, mimeType string) (model.Attachment, error) {
	if len(data) == 0 {
		return model.Attachment{}, fmt.Errorf("%s: %w", name, ErrEmpty)
	}
	if len(data) > MaxInlineSize {
		return model.Attachment{}, fmt.Errorf("%s: %w", name, ErrTooLarge)
	}
	if mimeType == "" {
		mimeType = DetectMIME(name, data)
	}
	kind, ok := KindOf(mimeType)
	if !ok {
		return model.Attachment{}, fmt.Errorf("%s (%s): %w", name, mimeType, ErrUnsupported)
	}
	return model.Attachment{
		Name:     name,
		MIMEType: mimeType,
		Kind:     kind,
		Data:     data,
		Base64:   base64.StdEncoding.EncodeToString(data),
	}, nil
}

// FromBase64 builds an attachment from an already encoded payload.
func FromBase64(name, encoded, mimeType string) (model.Attachment, error) {
	// Accept data URLs as sent by browsers.
	if strings.HasPrefix(encoded, "data:") {
		header, payload, ok := strings.Cut(encoded, ",")
		if !ok {
			return model.Attachment{}, fmt.Errorf("%s: malformed data URL", name)
		}
		if mimeType == "" {
			mimeType = strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64")
		}
		encoded = payload
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return model.Attachment{}, fmt.Errorf("%s: decode base64: %w", name, err)
	}
	return FromBytes(name, data, mimeType)
}

// Load reads a file from disk and builds an attachment from it.
func Load(path string) (model.Attachment, error) {
	info, err := os.Stat(path)
	if err != nil {
		return model.Attachment{}, err
	}
	if info.IsDir() {
		return model.Attachment{}, fmt.Errorf("%s: is a directory", path)
	}
	if info.Size() > MaxInlineSize {
		return model.Attachment{}, fmt.Errorf("%s: %w", path, ErrTooLarge)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Attachment{}, err
	}
	return FromBytes(filepath.Base(path), data, "")
}

// Extension returns a file extension (with dot) for a MIME type.
func Extension(mimeType string) string {
	switch mimeType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	}
	if exts, err := mime.ExtensionsByType(mimeType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}
