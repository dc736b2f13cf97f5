// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package gemini implements backend.Executor on the Gemini API.
//
// The Gemini streaming endpoint delivers text deltas; StreamChat accumulates
// them so every chunk carries the full text so far. Grounding citations
// from web search arrive as grounding metadata and are reported as sources.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"google.golang.org/genai"

	"github.com/jeranaias/prism/internal/backend"
	"github.com/jeranaias/prism/internal/credential"
	"github.com/jeranaias/prism/internal/model"
)

// ProviderName identifies this backend in errors and logs.
const ProviderName = "gemini"

// notFoundMessage is what the API returns for a key without access to the
// requested model. For a user-granted key it means the grant must be redone.
const notFoundMessage = "Requested entity was not found"

// Executor talks to the Gemini API. Clients are created per credential and
// cached by key fingerprint.
type Executor struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger

	mu      sync.Mutex
	clients map[string]*genai.Client
}

// New creates a Gemini executor with default settings.
func New() *Executor {
	return &Executor{
		logger:  slog.Default(),
		clients: make(map[string]*genai.Client),
	}
}

// WithBaseURL sets a custom API endpoint (used by tests and proxies).
func (e *Executor) WithBaseURL(url string) *Executor {
	e.baseURL = strings.TrimSuffix(url, "/")
	return e
}

// WithHTTPClient sets the HTTP client used for API calls.
func (e *Executor) WithHTTPClient(c *http.Client) *Executor {
	e.httpClient = c
	return e
}

// WithLogger sets the logger.
func (e *Executor) WithLogger(l *slog.Logger) *Executor {
	if l != nil {
		e.logger = l
	}
	return e
}

func (e *Executor) client(ctx context.Context, cred credential.Credential) (*genai.Client, error) {
	if cred.APIKey == "" {
		return nil, credential.ErrNoKey
	}
	baseURL := e.baseURL
	if cred.BaseURL != "" {
		baseURL = cred.BaseURL
	}
	cacheKey := cred.CacheKey(baseURL)

	e.mu.Lock()
	defer e.mu.Unlock()
	if c, ok := e.clients[cacheKey]; ok {
		return c, nil
	}

	cfg := &genai.ClientConfig{
		APIKey:     cred.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: e.httpClient,
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL + "/"}
	}
	c, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating Gemini client: %w", err)
	}
	e.clients[cacheKey] = c
	e.logger.Debug("gemini client created", "key", cred.Fingerprint(), "granted", cred.Granted)
	return c, nil
}

// =============================================================================
// STREAMING CHAT
// =============================================================================

// StreamChat implements backend.Executor.
func (e *Executor) StreamChat(ctx context.Context, req backend.ChatRequest) iter.Seq2[backend.Chunk, error] {
	return func(yield func(backend.Chunk, error) bool) {
		c, err := e.client(ctx, req.Credential)
		if err != nil {
			yield(backend.Chunk{}, err)
			return
		}

		contents := make([]*genai.Content, 0, len(req.History)+1)
		for _, turn := range req.History {
			contents = append(contents, genai.NewContentFromText(turn.Text, roleOf(turn.Role)))
		}
		parts := make([]*genai.Part, 0, len(req.Attachments)+1)
		for _, a := range req.Attachments {
			parts = append(parts, genai.NewPartFromBytes(a.Data, a.MIMEType))
		}
		if req.Text != "" {
			parts = append(parts, genai.NewPartFromText(req.Text))
		}
		contents = append(contents, genai.NewContentFromParts(parts, genai.RoleUser))

		cfg := &genai.GenerateContentConfig{}
		if req.ThinkingBudget > 0 {
			budget := req.ThinkingBudget
			cfg.ThinkingConfig = &genai.ThinkingConfig{ThinkingBudget: &budget}
		}
		if req.GoogleSearch {
			cfg.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
		}

		var acc backend.Accumulator
		for resp, err := range c.Models.GenerateContentStream(ctx, req.Model, contents, cfg) {
			if err != nil {
				yield(backend.Chunk{}, e.wrapError(err, req.Credential))
				return
			}
			text, _ := extract(resp)
			if !yield(acc.Add(text, sourcesOf(resp)), nil) {
				return
			}
		}
	}
}

// =============================================================================
// SINGLE-SHOT OPERATIONS
// =============================================================================

// GenerateImage implements backend.Executor.
func (e *Executor) GenerateImage(ctx context.Context, req backend.ImageRequest) (*backend.Response, error) {
	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{"IMAGE", "TEXT"},
		ImageConfig: &genai.ImageConfig{
			AspectRatio: req.AspectRatio,
			ImageSize:   string(req.Resolution),
		},
	}
	parts := []*genai.Part{genai.NewPartFromText(req.Prompt)}
	return e.generate(ctx, req.Credential, req.Model, parts, cfg)
}

// EditImage implements backend.Executor.
func (e *Executor) EditImage(ctx context.Context, req backend.EditRequest) (*backend.Response, error) {
	cfg := &genai.GenerateContentConfig{ResponseModalities: []string{"IMAGE", "TEXT"}}
	parts := []*genai.Part{genai.NewPartFromBytes(req.Image.Data, req.Image.MIMEType)}
	if req.Prompt != "" {
		parts = append(parts, genai.NewPartFromText(req.Prompt))
	}
	return e.generate(ctx, req.Credential, req.Model, parts, cfg)
}

// AnalyzeMedia implements backend.Executor.
func (e *Executor) AnalyzeMedia(ctx context.Context, req backend.AnalyzeRequest) (*backend.Response, error) {
	parts := []*genai.Part{
		genai.NewPartFromBytes(req.Attachment.Data, req.Attachment.MIMEType),
		genai.NewPartFromText(backend.AnalyzePrompt(req.Prompt)),
	}
	return e.generate(ctx, req.Credential, req.Model, parts, nil)
}

// TranscribeAudio implements backend.Executor.
func (e *Executor) TranscribeAudio(ctx context.Context, req backend.TranscribeRequest) (*backend.Response, error) {
	parts := []*genai.Part{
		genai.NewPartFromBytes(req.Audio.Data, req.Audio.MIMEType),
		genai.NewPartFromText(backend.TranscribePrompt),
	}
	return e.generate(ctx, req.Credential, req.Model, parts, nil)
}

func (e *Executor) generate(ctx context.Context, cred credential.Credential, modelID string, parts []*genai.Part, cfg *genai.GenerateContentConfig) (*backend.Response, error) {
	c, err := e.client(ctx, cred)
	if err != nil {
		return nil, err
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	resp, err := c.Models.GenerateContent(ctx, modelID, contents, cfg)
	if err != nil {
		return nil, e.wrapError(err, cred)
	}
	text, media := extract(resp)
	return &backend.Response{Text: text, Media: media, Sources: sourcesOf(resp)}, nil
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

// extract returns the non-thought text and the first inline media part of
// the first candidate.
func extract(resp *genai.GenerateContentResponse) (string, *model.Media) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", nil
	}
	var sb strings.Builder
	var media *model.Media
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil {
			continue
		}
		if part.InlineData != nil && media == nil && len(part.InlineData.Data) > 0 {
			media = &model.Media{MIMEType: part.InlineData.MIMEType, Data: part.InlineData.Data}
			continue
		}
		if part.Text != "" && !part.Thought {
			sb.WriteString(part.Text)
		}
	}
	return sb.String(), media
}

func sourcesOf(resp *genai.GenerateContentResponse) []model.Source {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil
	}
	gm := resp.Candidates[0].GroundingMetadata
	if gm == nil {
		return nil
	}
	var sources []model.Source
	for _, chunk := range gm.GroundingChunks {
		if chunk == nil || chunk.Web == nil || chunk.Web.URI == "" {
			continue
		}
		title := chunk.Web.Title
		if title == "" {
			title = chunk.Web.Domain
		}
		sources = append(sources, model.Source{URI: chunk.Web.URI, Title: title})
	}
	return sources
}

func roleOf(r model.Role) genai.Role {
	if r == model.RoleModel {
		return genai.RoleModel
	}
	return genai.RoleUser
}

// wrapError maps SDK errors onto backend errors. A granted key refused by
// the API becomes credential.ErrNotGranted so the grant can be retried.
func (e *Executor) wrapError(err error, cred credential.Credential) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if cred.Granted && refusesKey(apiErr) {
			e.forget(cred)
			return backend.Rejected(ProviderName, apiErr.Message)
		}
		e.logger.Warn("gemini request failed", "status", apiErr.Code, "key", cred.Fingerprint())
		return &backend.Error{Provider: ProviderName, Status: apiErr.Code, Message: apiErr.Message, Err: err}
	}
	return &backend.Error{Provider: ProviderName, Message: err.Error(), Err: err}
}

func refusesKey(apiErr genai.APIError) bool {
	switch apiErr.Code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return true
	case http.StatusNotFound:
		return strings.Contains(apiErr.Message, notFoundMessage)
	}
	return strings.Contains(apiErr.Message, notFoundMessage)
}

// forget drops cached clients for a refused key.
func (e *Executor) forget(cred credential.Credential) {
	prefix := cred.CacheKey("")
	e.mu.Lock()
	defer e.mu.Unlock()
	for k := range e.clients {
		if strings.HasPrefix(k, prefix) {
			delete(e.clients, k)
		}
	}
}

var _ backend.Executor = (*Executor)(nil)
