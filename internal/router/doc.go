// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package router selects the backend operation and model for a request.
//
// Routing is a pure function of the interaction mode, the request flags,
// the attachments, and the prompt text. The result is a Plan naming one
// Operation, the model Tier and its concrete model identifier, and any
// operation parameters (thinking budget, grounded search, image size).
//
// # Key Types
//
//   - Tier: model capability class (fast, reasoning, flash, image, flash-image)
//   - Operation: backend call (stream_chat, generate_image, ...)
//   - Models: tier to model-identifier table, loaded from configuration
//   - Plan: the routing decision
//
// # Usage
//
//	r := router.New(router.DefaultGeminiModels())
//	p := r.Route(model.ModeChat, cfg, nil, "Hello")
//	switch p.Operation {
//	case router.OpStreamChat:
//	    // stream from p.Model
//	}
package router
