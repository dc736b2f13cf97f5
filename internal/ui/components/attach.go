// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strconv"
	"strings"

	"github.com/jeranaias/prism/internal/model"
	"github.com/jeranaias/prism/internal/ui/styles"
	"github.com/jeranaias/prism/internal/util"
)

// AttachmentBar shows the attachments queued for the next submission.
type AttachmentBar struct {
	items []model.Attachment
	width int
	theme *styles.Theme
}

// NewAttachmentBar creates an empty attachment bar.
func NewAttachmentBar(theme *styles.Theme) *AttachmentBar {
	return &AttachmentBar{theme: theme, width: 80}
}

// SetWidth updates the available width.
func (b *AttachmentBar) SetWidth(width int) {
	b.width = width
}

// Add queues an attachment.
func (b *AttachmentBar) Add(a model.Attachment) {
	b.items = append(b.items, a)
}

// Remove drops the attachment at index i (0-based). It reports whether
// anything was removed.
func (b *AttachmentBar) Remove(i int) bool {
	if i < 0 || i >= len(b.items) {
		return false
	}
	b.items = append(b.items[:i], b.items[i+1:]...)
	return true
}

// Clear drops every queued attachment.
func (b *AttachmentBar) Clear() {
	b.items = nil
}

// Items returns a copy of the queued attachments.
func (b *AttachmentBar) Items() []model.Attachment {
	if len(b.items) == 0 {
		return nil
	}
	return append([]model.Attachment(nil), b.items...)
}

// Len returns the number of queued attachments.
func (b *AttachmentBar) Len() int {
	return len(b.items)
}

// View renders the chips, or "" when nothing is queued.
func (b *AttachmentBar) View() string {
	if len(b.items) == 0 {
		return ""
	}
	chipWidth := max(b.width/max(len(b.items), 1)-2, 12)
	chips := make([]string, 0, len(b.items))
	for i, a := range b.items {
		label := util.TruncateWidth(strconv.Itoa(i+1)+". "+AttachmentLabel(a), chipWidth)
		chips = append(chips, b.theme.AttachmentChip.Render(label))
	}
	return strings.Join(chips, "")
}
