// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package openai implements backend.Executor on OpenAI-compatible APIs.
//
// Chat streams deliver deltas which are accumulated into cumulative chunks.
// Image generation and editing use the Images API, transcription the Audio
// API, and media analysis a chat completion with image or audio parts.
// Video input is not supported by this provider.
package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/jeranaias/prism/internal/backend"
	"github.com/jeranaias/prism/internal/credential"
	"github.com/jeranaias/prism/internal/media"
	"github.com/jeranaias/prism/internal/model"
)

// ProviderName identifies this backend in errors and logs.
const ProviderName = "openai"

// Default models for operations the tier table does not cover well.
const (
	DefaultTranscribeModel = openai.AudioModelGPT4oTranscribe
	DefaultAudioModel      = "gpt-4o-audio-preview"
)

// Executor talks to an OpenAI-compatible API. Clients are cached by key
// fingerprint.
type Executor struct {
	baseURL         string
	httpClient      *http.Client
	transcribeModel string
	audioModel      string
	logger          *slog.Logger

	mu      sync.Mutex
	clients map[string]*openai.Client
}

// New creates an executor with default settings.
func New() *Executor {
	return &Executor{
		transcribeModel: DefaultTranscribeModel,
		audioModel:      DefaultAudioModel,
		logger:          slog.Default(),
		clients:         make(map[string]*openai.Client),
	}
}

// WithBaseURL sets a custom API endpoint.
func (e *Executor) WithBaseURL(url string) *Executor {
	e.baseURL = strings.TrimSuffix(url, "/")
	return e
}

// WithHTTPClient sets the HTTP client used for API calls.
func (e *Executor) WithHTTPClient(c *http.Client) *Executor {
	e.httpClient = c
	return e
}

// WithTranscribeModel overrides the model used for transcription.
func (e *Executor) WithTranscribeModel(m string) *Executor {
	if m != "" {
		e.transcribeModel = m
	}
	return e
}

// WithAudioModel overrides the model used to analyze audio.
func (e *Executor) WithAudioModel(m string) *Executor {
	if m != "" {
		e.audioModel = m
	}
	return e
}

// WithLogger sets the logger.
func (e *Executor) WithLogger(l *slog.Logger) *Executor {
	if l != nil {
		e.logger = l
	}
	return e
}

func (e *Executor) client(cred credential.Credential) (*openai.Client, error) {
	if cred.APIKey == "" {
		return nil, credential.ErrNoKey
	}
	baseURL := e.baseURL
	if cred.BaseURL != "" {
		baseURL = strings.TrimSuffix(cred.BaseURL, "/")
	}
	cacheKey := cred.CacheKey(baseURL)

	e.mu.Lock()
	defer e.mu.Unlock()
	if c, ok := e.clients[cacheKey]; ok {
		return c, nil
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cred.APIKey),
		// The orchestrator owns retry policy.
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL+"/"))
	}
	if e.httpClient != nil {
		opts = append(opts, option.WithHTTPClient(e.httpClient))
	}
	c := openai.NewClient(opts...)
	e.clients[cacheKey] = &c
	e.logger.Debug("openai client created", "key", cred.Fingerprint(), "granted", cred.Granted)
	return &c, nil
}

// =============================================================================
// STREAMING CHAT
// =============================================================================

// StreamChat implements backend.Executor.
func (e *Executor) StreamChat(ctx context.Context, req backend.ChatRequest) iter.Seq2[backend.Chunk, error] {
	return func(yield func(backend.Chunk, error) bool) {
		c, err := e.client(req.Credential)
		if err != nil {
			yield(backend.Chunk{}, err)
			return
		}

		messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.History)+1)
		for _, turn := range req.History {
			if turn.Role == model.RoleModel {
				messages = append(messages, openai.AssistantMessage(turn.Text))
			} else {
				messages = append(messages, openai.UserMessage(turn.Text))
			}
		}
		user, err := userMessage(req.Text, req.Attachments)
		if err != nil {
			yield(backend.Chunk{}, err)
			return
		}
		messages = append(messages, user)

		params := openai.ChatCompletionNewParams{
			Model:    req.Model,
			Messages: messages,
		}
		if req.ThinkingBudget > 0 {
			params.ReasoningEffort = openai.ReasoningEffortHigh
		}
		if req.GoogleSearch {
			params.WebSearchOptions = openai.ChatCompletionNewParamsWebSearchOptions{SearchContextSize: "medium"}
		}

		stream := c.Chat.Completions.NewStreaming(ctx, params)
		defer stream.Close()

		var acc backend.Accumulator
		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			delta := chunk.Choices[0].Delta
			if !yield(acc.Add(delta.Content, deltaSources(delta)), nil) {
				return
			}
		}
		if err := stream.Err(); err != nil {
			yield(backend.Chunk{}, e.wrapError(err, req.Credential))
		}
	}
}

// deltaSources decodes url_citation annotations, which some compatible
// servers attach to stream deltas.
func deltaSources(delta openai.ChatCompletionChunkChoiceDelta) []model.Source {
	field, ok := delta.JSON.ExtraFields["annotations"]
	if !ok || field.Raw() == "" {
		return nil
	}
	var annotations []struct {
		Type        string `json:"type"`
		URLCitation struct {
			URL   string `json:"url"`
			Title string `json:"title"`
		} `json:"url_citation"`
	}
	if err := json.Unmarshal([]byte(field.Raw()), &annotations); err != nil {
		return nil
	}
	var sources []model.Source
	for _, a := range annotations {
		if a.Type == "url_citation" && a.URLCitation.URL != "" {
			sources = append(sources, model.Source{URI: a.URLCitation.URL, Title: a.URLCitation.Title})
		}
	}
	return sources
}

func messageSources(msg openai.ChatCompletionMessage) []model.Source {
	var sources []model.Source
	for _, a := range msg.Annotations {
		if a.URLCitation.URL != "" {
			sources = append(sources, model.Source{URI: a.URLCitation.URL, Title: a.URLCitation.Title})
		}
	}
	return sources
}

// userMessage builds the new user turn, inlining attachments as content
// parts.
func userMessage(text string, attachments []model.Attachment) (openai.ChatCompletionMessageParamUnion, error) {
	if len(attachments) == 0 {
		return openai.UserMessage(text), nil
	}
	parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(attachments)+1)
	if text != "" {
		parts = append(parts, openai.TextContentPart(text))
	}
	for _, a := range attachments {
		part, err := contentPart(a)
		if err != nil {
			return openai.ChatCompletionMessageParamUnion{}, err
		}
		parts = append(parts, part)
	}
	return openai.UserMessage(parts), nil
}

func contentPart(a model.Attachment) (openai.ChatCompletionContentPartUnionParam, error) {
	switch a.Kind {
	case model.KindImage:
		return openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
			URL: "data:" + a.MIMEType + ";base64," + a.Base64,
		}), nil
	case model.KindAudio:
		format, err := audioFormat(a.MIMEType)
		if err != nil {
			return openai.ChatCompletionContentPartUnionParam{}, err
		}
		return openai.InputAudioContentPart(openai.ChatCompletionContentPartInputAudioInputAudioParam{
			Data:   a.Base64,
			Format: format,
		}), nil
	}
	return openai.ChatCompletionContentPartUnionParam{}, fmt.Errorf("%s input: %w", a.Kind, backend.ErrUnsupported)
}

func audioFormat(mimeType string) (string, error) {
	switch mimeType {
	case "audio/wav", "audio/x-wav", "audio/wave":
		return "wav", nil
	case "audio/mpeg", "audio/mp3":
		return "mp3", nil
	}
	return "", fmt.Errorf("audio format %s: %w", mimeType, backend.ErrUnsupported)
}

// =============================================================================
// SINGLE-SHOT OPERATIONS
// =============================================================================

// GenerateImage implements backend.Executor. The Images API only produces
// square 1024px output; the resolution tier selects the quality instead.
func (e *Executor) GenerateImage(ctx context.Context, req backend.ImageRequest) (*backend.Response, error) {
	c, err := e.client(req.Credential)
	if err != nil {
		return nil, err
	}
	resp, err := c.Images.Generate(ctx, openai.ImageGenerateParams{
		Prompt:  req.Prompt,
		Model:   req.Model,
		N:       openai.Int(1),
		Size:    openai.ImageGenerateParamsSize1024x1024,
		Quality: qualityFor(req.Resolution),
	})
	if err != nil {
		return nil, e.wrapError(err, req.Credential)
	}
	return imagesResponse(resp)
}

// EditImage implements backend.Executor.
func (e *Executor) EditImage(ctx context.Context, req backend.EditRequest) (*backend.Response, error) {
	c, err := e.client(req.Credential)
	if err != nil {
		return nil, err
	}
	name := req.Image.Name
	if name == "" {
		name = "image" + media.Extension(req.Image.MIMEType)
	}
	resp, err := c.Images.Edit(ctx, openai.ImageEditParams{
		Image: openai.ImageEditParamsImageUnion{
			OfFile: openai.File(bytes.NewReader(req.Image.Data), name, req.Image.MIMEType),
		},
		Prompt: req.Prompt,
		Model:  req.Model,
		N:      openai.Int(1),
	})
	if err != nil {
		return nil, e.wrapError(err, req.Credential)
	}
	return imagesResponse(resp)
}

// AnalyzeMedia implements backend.Executor.
func (e *Executor) AnalyzeMedia(ctx context.Context, req backend.AnalyzeRequest) (*backend.Response, error) {
	c, err := e.client(req.Credential)
	if err != nil {
		return nil, err
	}
	user, err := userMessage(backend.AnalyzePrompt(req.Prompt), []model.Attachment{req.Attachment})
	if err != nil {
		return nil, err
	}
	modelID := req.Model
	if req.Attachment.IsAudio() {
		modelID = e.audioModel
	}
	completion, err := c.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    modelID,
		Messages: []openai.ChatCompletionMessageParamUnion{user},
	})
	if err != nil {
		return nil, e.wrapError(err, req.Credential)
	}
	if len(completion.Choices) == 0 {
		return &backend.Response{Model: modelID}, nil
	}
	msg := completion.Choices[0].Message
	return &backend.Response{Text: msg.Content, Sources: messageSources(msg), Model: modelID}, nil
}

// TranscribeAudio implements backend.Executor.
func (e *Executor) TranscribeAudio(ctx context.Context, req backend.TranscribeRequest) (*backend.Response, error) {
	c, err := e.client(req.Credential)
	if err != nil {
		return nil, err
	}
	name := req.Audio.Name
	if name == "" {
		name = "audio" + media.Extension(req.Audio.MIMEType)
	}
	tr, err := c.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		File:   openai.File(bytes.NewReader(req.Audio.Data), name, req.Audio.MIMEType),
		Model:  e.transcribeModel,
		Prompt: openai.String(backend.TranscribePrompt),
	})
	if err != nil {
		return nil, e.wrapError(err, req.Credential)
	}
	return &backend.Response{Text: tr.Text, Model: e.transcribeModel}, nil
}

func qualityFor(r model.Resolution) openai.ImageGenerateParamsQuality {
	switch r {
	case model.Resolution2K, model.Resolution4K:
		return openai.ImageGenerateParamsQualityHigh
	default:
		return openai.ImageGenerateParamsQualityMedium
	}
}

func imagesResponse(resp *openai.ImagesResponse) (*backend.Response, error) {
	if resp == nil || len(resp.Data) == 0 {
		return &backend.Response{}, nil
	}
	img := resp.Data[0]
	out := &backend.Response{Text: img.RevisedPrompt}
	switch {
	case img.B64JSON != "":
		data, err := base64.StdEncoding.DecodeString(img.B64JSON)
		if err != nil {
			return nil, &backend.Error{Provider: ProviderName, Message: "invalid image payload", Err: err}
		}
		out.Media = &model.Media{MIMEType: http.DetectContentType(data), Data: data}
	case img.URL != "":
		out.Media = &model.Media{MIMEType: "image/png", URI: img.URL}
	}
	return out, nil
}

// wrapError maps SDK errors onto backend errors. A granted key refused with
// 401 or 403 becomes credential.ErrNotGranted.
func (e *Executor) wrapError(err error, cred credential.Credential) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if cred.Granted && (apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden) {
			return backend.Rejected(ProviderName, apiErr.Message)
		}
		e.logger.Warn("openai request failed", "status", apiErr.StatusCode, "key", cred.Fingerprint())
		return &backend.Error{Provider: ProviderName, Status: apiErr.StatusCode, Message: apiErr.Message, Err: err}
	}
	return &backend.Error{Provider: ProviderName, Message: err.Error(), Err: err}
}

var _ backend.Executor = (*Executor)(nil)
