// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"github.com/jeranaias/prism/internal/model"
	"github.com/jeranaias/prism/internal/orchestrator"
)

// =============================================================================
// ORCHESTRATOR MESSAGES
// =============================================================================

// RefreshMsg reports that the conversation or the cycle state changed.
// Consecutive changes are coalesced into one message.
type RefreshMsg struct{}

// KeyRequestMsg asks the user for a personal API key.
type KeyRequestMsg struct{}

// CycleDoneMsg carries the result of a cycle started by the model.
type CycleDoneMsg struct {
	Result *orchestrator.Result
}

// =============================================================================
// INPUT MESSAGES
// =============================================================================

// AttachmentLoadedMsg is sent when a file named by /attach has been read.
type AttachmentLoadedMsg struct {
	Attachment model.Attachment
	Err        error
	Path       string
}
