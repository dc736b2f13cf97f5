// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package router

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/jeranaias/prism/internal/model"
)

// transcribeKeyword triggers transcription of an audio attachment.
const transcribeKeyword = "transcribe"

// WantsTranscription reports whether the prompt asks for a transcription.
// Matching is a case-insensitive substring test using Unicode case folding.
func WantsTranscription(prompt string) bool {
	return strings.Contains(cases.Fold().String(prompt), transcribeKeyword)
}

// PrimaryAttachment returns the attachment that drives routing, which is the
// first one. ok is false when there are none.
func PrimaryAttachment(attachments []model.Attachment) (model.Attachment, bool) {
	if len(attachments) == 0 {
		return model.Attachment{}, false
	}
	return attachments[0], true
}

// FirstImage returns the first image attachment.
func FirstImage(attachments []model.Attachment) (model.Attachment, bool) {
	for _, a := range attachments {
		if a.IsImage() {
			return a, true
		}
	}
	return model.Attachment{}, false
}
