// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides unified configuration loading and management for prism.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - GeminiConfig, OpenAIConfig: Provider keys, endpoints and tier tables
//   - ChatConfig: Initial mode, resolution and chat flag
//   - MediaConfig: Where generated images are stored (file or S3)
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (PRISM_*, GEMINI_API_KEY, OPENAI_API_KEY)
//   - ~/.prism/config.toml
//   - ~/.prism/config.yaml
//   - ~/.prism/config.json
//   - Built-in defaults
//
// # Usage
//
// Load configuration:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Watch for edits:
//
//	err := config.Watch(ctx, path, func(cfg *config.Config, err error) {
//	    if err == nil {
//	        orch.SetModels(cfg.Models())
//	    }
//	})
package config
