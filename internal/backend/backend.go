// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package backend defines the contract between the orchestrator and the
// hosted generative-AI APIs.
//
// Each operation is one external call. StreamChat returns a finite,
// single-use sequence of chunks whose Text is cumulative: every chunk
// carries the full response so far, so a renderer replaces rather than
// appends. Adapters whose provider streams deltas accumulate them.
package backend

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"strings"

	"github.com/jeranaias/prism/internal/credential"
	"github.com/jeranaias/prism/internal/model"
)

// Fixed instructions sent with media operations.
const (
	DefaultAnalyzePrompt = "Analyze this content."
	TranscribePrompt     = "Transcribe this audio file."
)

// =============================================================================
// ERRORS
// =============================================================================

// ErrUnsupported is returned when a provider cannot perform an operation,
// e.g. a media kind it does not accept.
var ErrUnsupported = errors.New("operation not supported by this provider")

// Error is an opaque failure reported by a backend API.
type Error struct {
	Provider string
	Status   int
	Message  string
	Err      error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Message != "":
		return e.Message
	case e.Status != 0:
		return fmt.Sprintf("%s: %d %s", e.Provider, e.Status, http.StatusText(e.Status))
	case e.Err != nil:
		return e.Err.Error()
	default:
		return e.Provider + ": request failed"
	}
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Rejected returns an error for a user-granted key the provider refused.
// It matches credential.ErrNotGranted so the caller can run the grant flow.
func Rejected(provider, message string) error {
	if message == "" {
		return fmt.Errorf("%s: %w", provider, credential.ErrNotGranted)
	}
	return fmt.Errorf("%s rejected the selected key: %s: %w", provider, message, credential.ErrNotGranted)
}

// =============================================================================
// REQUESTS AND RESULTS
// =============================================================================

// Turn is one prior exchange in a chat history.
type Turn struct {
	Role model.Role
	Text string
}

// ChatRequest is the input to StreamChat.
type ChatRequest struct {
	Credential  credential.Credential
	Model       string
	History     []Turn
	Text        string
	Attachments []model.Attachment

	// ThinkingBudget is the reasoning-token budget; 0 leaves it unset.
	ThinkingBudget int32
	// GoogleSearch enables grounded web search.
	GoogleSearch bool
}

// ImageRequest is the input to GenerateImage.
type ImageRequest struct {
	Credential  credential.Credential
	Model       string
	Prompt      string
	Resolution  model.Resolution
	AspectRatio string
}

// EditRequest is the input to EditImage.
type EditRequest struct {
	Credential credential.Credential
	Model      string
	Prompt     string
	Image      model.Attachment
}

// AnalyzeRequest is the input to AnalyzeMedia. An empty Prompt is replaced
// by DefaultAnalyzePrompt.
type AnalyzeRequest struct {
	Credential credential.Credential
	Model      string
	Prompt     string
	Attachment model.Attachment
}

// TranscribeRequest is the input to TranscribeAudio.
type TranscribeRequest struct {
	Credential credential.Credential
	Model      string
	Audio      model.Attachment
}

// Chunk is one element of a chat stream.
type Chunk struct {
	// Text is the full response text so far.
	Text string
	// Sources are grounding citations attached to this chunk, if any.
	Sources []model.Source
}

// Response is the result of a single-shot operation.
type Response struct {
	Text    string
	Media   *model.Media
	Sources []model.Source

	// Model is set when the adapter served the request with a model other
	// than the one it was asked for.
	Model string
}

// Executor performs backend operations.
type Executor interface {
	StreamChat(ctx context.Context, req ChatRequest) iter.Seq2[Chunk, error]
	GenerateImage(ctx context.Context, req ImageRequest) (*Response, error)
	EditImage(ctx context.Context, req EditRequest) (*Response, error)
	AnalyzeMedia(ctx context.Context, req AnalyzeRequest) (*Response, error)
	TranscribeAudio(ctx context.Context, req TranscribeRequest) (*Response, error)
}

// AnalyzePrompt returns the prompt to send for an analysis request.
func AnalyzePrompt(prompt string) string {
	if strings.TrimSpace(prompt) == "" {
		return DefaultAnalyzePrompt
	}
	return prompt
}

// HistoryFrom converts settled conversation messages into chat turns.
func HistoryFrom(messages []*model.Message) []Turn {
	turns := make([]Turn, 0, len(messages))
	for _, m := range messages {
		if m.Text == "" {
			continue
		}
		turns = append(turns, Turn{Role: m.Role, Text: m.Text})
	}
	return turns
}
