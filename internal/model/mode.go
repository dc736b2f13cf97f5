// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"fmt"
	"strings"
)

// =============================================================================
// INTERACTION MODE
// =============================================================================

// Mode is the user-selected purpose of the conversation.
type Mode string

const (
	ModeChat          Mode = "chat"
	ModeGenerateImage Mode = "generate_image"
	ModeEditImage     Mode = "edit_image"
	ModeAnalyze       Mode = "analyze"
)

// Modes lists every mode in display order.
var Modes = []Mode{ModeChat, ModeGenerateImage, ModeEditImage, ModeAnalyze}

// String returns the string representation of the mode.
func (m Mode) String() string {
	return string(m)
}

// Valid reports whether m is one of the known modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeChat, ModeGenerateImage, ModeEditImage, ModeAnalyze:
		return true
	}
	return false
}

// DisplayName returns the tab label for the mode.
func (m Mode) DisplayName() string {
	switch m {
	case ModeChat:
		return "Chat"
	case ModeGenerateImage:
		return "Generate"
	case ModeEditImage:
		return "Edit"
	case ModeAnalyze:
		return "Analyze"
	default:
		return string(m)
	}
}

// Placeholder returns the composer hint shown for the mode.
func (m Mode) Placeholder() string {
	switch m {
	case ModeGenerateImage:
		return "Describe the image you want to create..."
	case ModeEditImage:
		return "Attach an image and describe the edit..."
	case ModeAnalyze:
		return "Attach an image, video, or audio file and ask about it..."
	default:
		return "Ask anything..."
	}
}

// ParseMode parses a mode name. Short aliases are accepted.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "chat":
		return ModeChat, nil
	case "generate_image", "generate", "gen", "image":
		return ModeGenerateImage, nil
	case "edit_image", "edit":
		return ModeEditImage, nil
	case "analyze", "analyse":
		return ModeAnalyze, nil
	}
	return "", fmt.Errorf("unknown mode %q (want chat, generate, edit, or analyze)", s)
}

// =============================================================================
// REQUEST CONFIGURATION
// =============================================================================

// Resolution is the image-size tier for generated images.
type Resolution string

const (
	Resolution1K Resolution = "1K"
	Resolution2K Resolution = "2K"
	Resolution4K Resolution = "4K"
)

// Resolutions lists the valid resolution tiers.
var Resolutions = []Resolution{Resolution1K, Resolution2K, Resolution4K}

// ParseResolution parses a resolution tier, case-insensitively.
func ParseResolution(s string) (Resolution, error) {
	r := Resolution(strings.ToUpper(strings.TrimSpace(s)))
	switch r {
	case Resolution1K, Resolution2K, Resolution4K:
		return r, nil
	}
	return "", fmt.Errorf("unknown resolution %q (want 1K, 2K, or 4K)", s)
}

// Flag names one of the chat feature flags.
type Flag string

const (
	FlagThinking Flag = "thinking"
	FlagSearch   Flag = "search"
	FlagFast     Flag = "fast"
)

// ParseFlag parses a chat flag name.
func ParseFlag(s string) (Flag, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "thinking", "think":
		return FlagThinking, nil
	case "search":
		return FlagSearch, nil
	case "fast":
		return FlagFast, nil
	}
	return "", fmt.Errorf("unknown flag %q (want thinking, search, or fast)", s)
}

// RequestConfig holds the per-request feature flags. The chat flags only
// matter in chat mode and Resolution only in generate_image mode.
//
// At most one chat flag is set at a time; Toggle maintains that.
type RequestConfig struct {
	EnableThinking bool       `json:"enable_thinking"`
	EnableSearch   bool       `json:"enable_search"`
	EnableFast     bool       `json:"enable_fast"`
	Resolution     Resolution `json:"resolution"`
}

// DefaultRequestConfig returns a config with no flags and 1K resolution.
func DefaultRequestConfig() RequestConfig {
	return RequestConfig{Resolution: Resolution1K}
}

// Toggle flips one chat flag. Turning a flag on turns the other two off.
func (c RequestConfig) Toggle(f Flag) RequestConfig {
	on := !c.Enabled(f)
	c.EnableThinking, c.EnableSearch, c.EnableFast = false, false, false
	switch f {
	case FlagThinking:
		c.EnableThinking = on
	case FlagSearch:
		c.EnableSearch = on
	case FlagFast:
		c.EnableFast = on
	}
	return c
}

// Enabled reports whether the given flag is set.
func (c RequestConfig) Enabled(f Flag) bool {
	switch f {
	case FlagThinking:
		return c.EnableThinking
	case FlagSearch:
		return c.EnableSearch
	case FlagFast:
		return c.EnableFast
	}
	return false
}

// ActiveFlag returns the enabled chat flag, or "" when none is set.
func (c RequestConfig) ActiveFlag() Flag {
	for _, f := range []Flag{FlagFast, FlagThinking, FlagSearch} {
		if c.Enabled(f) {
			return f
		}
	}
	return ""
}
