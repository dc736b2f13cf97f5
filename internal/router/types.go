// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package router

import (
	"fmt"

	"github.com/jeranaias/prism/internal/model"
)

// ============================================================================
// TIER TYPE
// ============================================================================

// Tier is a capability class of backend model. The concrete model identifier
// for each tier comes from the Models table.
type Tier int

const (
	// TierFast is the low-latency chat model.
	TierFast Tier = iota
	// TierReasoning is the strongest text model, used by default.
	TierReasoning
	// TierFlash is the fast multimodal model (search, audio).
	TierFlash
	// TierImage generates images from text.
	TierImage
	// TierFlashImage edits images.
	TierFlashImage
)

// Tiers lists every tier in order.
var Tiers = []Tier{TierFast, TierReasoning, TierFlash, TierImage, TierFlashImage}

// String returns the human-readable name of the tier.
func (t Tier) String() string {
	switch t {
	case TierFast:
		return "fast"
	case TierReasoning:
		return "reasoning"
	case TierFlash:
		return "flash"
	case TierImage:
		return "image"
	case TierFlashImage:
		return "flash-image"
	default:
		return fmt.Sprintf("Tier(%d)", t)
	}
}

// ============================================================================
// OPERATION TYPE
// ============================================================================

// Operation is the backend call a plan dispatches to.
type Operation string

const (
	OpStreamChat      Operation = "stream_chat"
	OpGenerateImage   Operation = "generate_image"
	OpEditImage       Operation = "edit_image"
	OpAnalyzeMedia    Operation = "analyze_media"
	OpTranscribeAudio Operation = "transcribe_audio"
)

// String returns the string representation of the operation.
func (o Operation) String() string {
	return string(o)
}

// IsStreaming returns true if the operation produces a chunk sequence
// rather than a single response.
func (o Operation) IsStreaming() bool {
	return o == OpStreamChat
}

// ============================================================================
// MODEL TABLE
// ============================================================================

// Models maps each tier to a provider model identifier.
type Models struct {
	Fast       string `toml:"fast" yaml:"fast" json:"fast"`
	Reasoning  string `toml:"reasoning" yaml:"reasoning" json:"reasoning"`
	Flash      string `toml:"flash" yaml:"flash" json:"flash"`
	Image      string `toml:"image" yaml:"image" json:"image"`
	FlashImage string `toml:"flash_image" yaml:"flash_image" json:"flash_image"`
}

// DefaultGeminiModels returns the tier table for the Gemini API.
func DefaultGeminiModels() Models {
	return Models{
		Fast:       "gemini-flash-lite-latest",
		Reasoning:  "gemini-3-pro-preview",
		Flash:      "gemini-flash-latest",
		Image:      "gemini-3-pro-image-preview",
		FlashImage: "gemini-2.5-flash-image",
	}
}

// DefaultOpenAIModels returns the tier table for OpenAI-compatible APIs.
func DefaultOpenAIModels() Models {
	return Models{
		Fast:       "gpt-4.1-mini",
		Reasoning:  "o4-mini",
		Flash:      "gpt-4o-search-preview",
		Image:      "gpt-image-1",
		FlashImage: "gpt-image-1",
	}
}

// For returns the model identifier for a tier.
func (m Models) For(t Tier) string {
	switch t {
	case TierFast:
		return m.Fast
	case TierReasoning:
		return m.Reasoning
	case TierFlash:
		return m.Flash
	case TierImage:
		return m.Image
	case TierFlashImage:
		return m.FlashImage
	default:
		return ""
	}
}

// Merge returns m with empty entries filled from fallback.
func (m Models) Merge(fallback Models) Models {
	if m.Fast == "" {
		m.Fast = fallback.Fast
	}
	if m.Reasoning == "" {
		m.Reasoning = fallback.Reasoning
	}
	if m.Flash == "" {
		m.Flash = fallback.Flash
	}
	if m.Image == "" {
		m.Image = fallback.Image
	}
	if m.FlashImage == "" {
		m.FlashImage = fallback.FlashImage
	}
	return m
}

// ============================================================================
// PLAN TYPE
// ============================================================================

// ThinkingBudget is the reasoning-token budget used when thinking is enabled.
const ThinkingBudget int32 = 32768

// SquareAspectRatio is the fixed aspect ratio for generated images.
const SquareAspectRatio = "1:1"

// Params holds operation-specific execution parameters. Zero values mean
// the parameter is not set.
type Params struct {
	ThinkingBudget int32            `json:"thinking_budget,omitempty"`
	GoogleSearch   bool             `json:"google_search,omitempty"`
	Resolution     model.Resolution `json:"resolution,omitempty"`
	AspectRatio    string           `json:"aspect_ratio,omitempty"`
}

// IsZero reports whether no parameter is set.
func (p Params) IsZero() bool {
	return p == Params{}
}

// Plan is the routing decision for one request.
type Plan struct {
	Operation     Operation `json:"operation"`
	Tier          Tier      `json:"tier"`
	Model         string    `json:"model"`
	Params        Params    `json:"params"`
	RequiresGrant bool      `json:"requires_grant,omitempty"`
	Reason        string    `json:"reason"`
}

// String returns a one-line summary of the plan.
func (p Plan) String() string {
	return fmt.Sprintf("%s via %s (%s): %s", p.Operation, p.Tier, p.Model, p.Reason)
}
