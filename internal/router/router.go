// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package router

import (
	"sync"

	"github.com/jeranaias/prism/internal/model"
)

// Route selects exactly one operation plan for a request. It is a pure
// function of its inputs.
//
// Rules, first match wins:
//  1. chat + fast      -> StreamChat on the fast tier
//  2. chat + thinking  -> StreamChat on the reasoning tier with a 32768 budget
//  3. chat + search    -> StreamChat on the flash tier with grounded search
//  4. chat             -> StreamChat on the reasoning tier
//  5. generate_image   -> GenerateImage on the image tier (needs a user grant)
//  6. edit_image       -> EditImage on the flash-image tier
//  7. analyze + audio + "transcribe" in the prompt -> TranscribeAudio on flash
//  8. analyze          -> AnalyzeMedia on reasoning, or flash for audio
//
// Unknown modes route like plain chat. Missing attachments for edit and
// analyze are the caller's concern.
func Route(models Models, mode model.Mode, cfg model.RequestConfig, attachments []model.Attachment, prompt string) Plan {
	switch mode {
	case model.ModeGenerateImage:
		return plan(models, OpGenerateImage, TierImage, Params{
			Resolution:  resolutionOrDefault(cfg.Resolution),
			AspectRatio: SquareAspectRatio,
		}, true, "image generation")

	case model.ModeEditImage:
		return plan(models, OpEditImage, TierFlashImage, Params{}, false, "image edit")

	case model.ModeAnalyze:
		primary, ok := PrimaryAttachment(attachments)
		audio := ok && primary.IsAudio()
		if audio && WantsTranscription(prompt) {
			return plan(models, OpTranscribeAudio, TierFlash, Params{}, false, "audio with transcription request")
		}
		if audio {
			return plan(models, OpAnalyzeMedia, TierFlash, Params{}, false, "audio analysis")
		}
		return plan(models, OpAnalyzeMedia, TierReasoning, Params{}, false, "media analysis")
	}

	switch {
	case cfg.EnableFast:
		return plan(models, OpStreamChat, TierFast, Params{}, false, "fast flag")
	case cfg.EnableThinking:
		return plan(models, OpStreamChat, TierReasoning, Params{ThinkingBudget: ThinkingBudget}, false, "thinking flag")
	case cfg.EnableSearch:
		return plan(models, OpStreamChat, TierFlash, Params{GoogleSearch: true}, false, "search flag")
	default:
		return plan(models, OpStreamChat, TierReasoning, Params{}, false, "default chat")
	}
}

func plan(models Models, op Operation, tier Tier, params Params, grant bool, reason string) Plan {
	return Plan{
		Operation:     op,
		Tier:          tier,
		Model:         models.For(tier),
		Params:        params,
		RequiresGrant: grant,
		Reason:        reason,
	}
}

func resolutionOrDefault(r model.Resolution) model.Resolution {
	if r == "" {
		return model.Resolution1K
	}
	return r
}

// ============================================================================
// ROUTER
// ============================================================================

// Router wraps Route with a model table that can be swapped at runtime when
// the configuration is reloaded.
type Router struct {
	mu     sync.RWMutex
	models Models
}

// New creates a router for the given model table.
func New(models Models) *Router {
	return &Router{models: models}
}

// Route selects a plan using the current model table.
func (r *Router) Route(mode model.Mode, cfg model.RequestConfig, attachments []model.Attachment, prompt string) Plan {
	r.mu.RLock()
	models := r.models
	r.mu.RUnlock()
	return Route(models, mode, cfg, attachments, prompt)
}

// Models returns the current model table.
func (r *Router) Models() Models {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.models
}

// SetModels replaces the model table.
func (r *Router) SetModels(models Models) {
	r.mu.Lock()
	r.models = models
	r.mu.Unlock()
}
