// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// helpers.go - Shared helpers for prism commands.
package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/jeranaias/prism/internal/media"
	"github.com/jeranaias/prism/internal/model"
	"github.com/jeranaias/prism/internal/util"
)

// formatDurationShort formats a duration like "850ms", "2.4s" or "1m5s".
func formatDurationShort(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}

// expandPath expands a leading "~/".
func expandPath(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}

// loadAttachments reads files into attachments, enforcing limit bytes per
// file when limit is positive.
func loadAttachments(paths []string, limit int64) ([]model.Attachment, error) {
	var out []model.Attachment
	for _, p := range paths {
		p = expandPath(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if limit > 0 {
			if info, err := os.Stat(p); err == nil && info.Size() > limit {
				return nil, NewValidationError("file", p,
					fmt.Sprintf("%s exceeds the %s attachment limit",
						humanize.Bytes(uint64(info.Size())), humanize.Bytes(uint64(limit))))
			}
		}
		att, err := media.Load(p)
		if err != nil {
			return nil, NewCommandError("attach", p, "could not load file", err)
		}
		out = append(out, att)
	}
	return out, nil
}

// writeMedia saves generated media to path. A path without an extension
// gets one from the MIME type.
func writeMedia(path string, m *model.Media) (string, error) {
	if m == nil || m.Empty() {
		return "", fmt.Errorf("response carried no media")
	}
	path = expandPath(path)
	if filepath.Ext(path) == "" {
		path += media.Extension(m.MIMEType)
	}
	if _, err := util.AtomicCopy(path, bytes.NewReader(m.Data), 0644, 0755); err != nil {
		return "", err
	}
	return path, nil
}

// mediaSummary describes generated media in one line.
func mediaSummary(m *model.Media) string {
	if m == nil || m.Empty() {
		return ""
	}
	s := fmt.Sprintf("[image] %s, %s", m.MIMEType, humanize.Bytes(uint64(len(m.Data))))
	if m.URI != "" {
		s += " saved to " + m.URI
	}
	return s
}
