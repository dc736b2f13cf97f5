// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package backendtest provides a scripted backend.Executor for tests.
package backendtest

import (
	"context"
	"iter"
	"sync"

	"github.com/jeranaias/prism/internal/backend"
	"github.com/jeranaias/prism/internal/model"
)

// Call records one invocation of the executor.
type Call struct {
	Operation string
	Model     string
	Granted   bool
	Request   any
}

// Executor is a backend.Executor whose behavior is set per operation.
// Operations without a scripted func fail with backend.ErrUnsupported.
type Executor struct {
	Chat       func(ctx context.Context, req backend.ChatRequest) iter.Seq2[backend.Chunk, error]
	Generate   func(ctx context.Context, req backend.ImageRequest) (*backend.Response, error)
	Edit       func(ctx context.Context, req backend.EditRequest) (*backend.Response, error)
	Analyze    func(ctx context.Context, req backend.AnalyzeRequest) (*backend.Response, error)
	Transcribe func(ctx context.Context, req backend.TranscribeRequest) (*backend.Response, error)

	mu    sync.Mutex
	calls []Call
}

// Calls returns the recorded calls in order.
func (e *Executor) Calls() []Call {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Call(nil), e.calls...)
}

// Operations returns the names of the recorded calls in order.
func (e *Executor) Operations() []string {
	calls := e.Calls()
	ops := make([]string, len(calls))
	for i, c := range calls {
		ops[i] = c.Operation
	}
	return ops
}

func (e *Executor) record(op, modelID string, granted bool, req any) {
	e.mu.Lock()
	e.calls = append(e.calls, Call{Operation: op, Model: modelID, Granted: granted, Request: req})
	e.mu.Unlock()
}

// StreamChat implements backend.Executor.
func (e *Executor) StreamChat(ctx context.Context, req backend.ChatRequest) iter.Seq2[backend.Chunk, error] {
	e.record("stream_chat", req.Model, req.Credential.Granted, req)
	if e.Chat == nil {
		return Fail(backend.ErrUnsupported)
	}
	return e.Chat(ctx, req)
}

// GenerateImage implements backend.Executor.
func (e *Executor) GenerateImage(ctx context.Context, req backend.ImageRequest) (*backend.Response, error) {
	e.record("generate_image", req.Model, req.Credential.Granted, req)
	if e.Generate == nil {
		return nil, backend.ErrUnsupported
	}
	return e.Generate(ctx, req)
}

// EditImage implements backend.Executor.
func (e *Executor) EditImage(ctx context.Context, req backend.EditRequest) (*backend.Response, error) {
	e.record("edit_image", req.Model, req.Credential.Granted, req)
	if e.Edit == nil {
		return nil, backend.ErrUnsupported
	}
	return e.Edit(ctx, req)
}

// AnalyzeMedia implements backend.Executor.
func (e *Executor) AnalyzeMedia(ctx context.Context, req backend.AnalyzeRequest) (*backend.Response, error) {
	e.record("analyze_media", req.Model, req.Credential.Granted, req)
	if e.Analyze == nil {
		return nil, backend.ErrUnsupported
	}
	return e.Analyze(ctx, req)
}

// TranscribeAudio implements backend.Executor.
func (e *Executor) TranscribeAudio(ctx context.Context, req backend.TranscribeRequest) (*backend.Response, error) {
	e.record("transcribe_audio", req.Model, req.Credential.Granted, req)
	if e.Transcribe == nil {
		return nil, backend.ErrUnsupported
	}
	return e.Transcribe(ctx, req)
}

// =============================================================================
// STREAM HELPERS
// =============================================================================

// Stream returns a chat stream of cumulative-text chunks, one per text.
func Stream(texts ...string) iter.Seq2[backend.Chunk, error] {
	chunks := make([]backend.Chunk, len(texts))
	for i, t := range texts {
		chunks[i] = backend.Chunk{Text: t}
	}
	return Chunks(chunks...)
}

// Chunks returns a chat stream yielding the given chunks.
func Chunks(chunks ...backend.Chunk) iter.Seq2[backend.Chunk, error] {
	return func(yield func(backend.Chunk, error) bool) {
		for _, c := range chunks {
			if !yield(c, nil) {
				return
			}
		}
	}
}

// Fail returns a chat stream that fails immediately.
func Fail(err error) iter.Seq2[backend.Chunk, error] {
	return func(yield func(backend.Chunk, error) bool) {
		yield(backend.Chunk{}, err)
	}
}

// FailAfter returns a chat stream that yields texts and then fails.
func FailAfter(err error, texts ...string) iter.Seq2[backend.Chunk, error] {
	return func(yield func(backend.Chunk, error) bool) {
		for _, t := range texts {
			if !yield(backend.Chunk{Text: t}, nil) {
				return
			}
		}
		yield(backend.Chunk{}, err)
	}
}

// Gated returns a chat stream that yields one chunk per value received on
// gate, and ends when gate is closed. It lets a test hold a cycle in flight.
func Gated(gate <-chan string) iter.Seq2[backend.Chunk, error] {
	return func(yield func(backend.Chunk, error) bool) {
		for t := range gate {
			if !yield(backend.Chunk{Text: t}, nil) {
				return
			}
		}
	}
}

// ImageResponse returns a one-shot response carrying a PNG payload.
func ImageResponse(caption string) *backend.Response {
	return &backend.Response{
		Text:  caption,
		Media: &model.Media{MIMEType: "image/png", Data: []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}},
	}
}

var _ backend.Executor = (*Executor)(nil)
