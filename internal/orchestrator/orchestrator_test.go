// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package orchestrator

import (
	"context"
	"errors"
	"iter"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/prism/internal/backend"
	"github.com/jeranaias/prism/internal/backend/backendtest"
	"github.com/jeranaias/prism/internal/credential"
	"github.com/jeranaias/prism/internal/ledger"
	"github.com/jeranaias/prism/internal/mediastore"
	"github.com/jeranaias/prism/internal/model"
	"github.com/jeranaias/prism/internal/router"
)

// =============================================================================
// HARNESS
// =============================================================================

type harness struct {
	o      *Orchestrator
	exec   *backendtest.Executor
	host   *credential.MemoryHost
	models router.Models

	mu     sync.Mutex
	states []State
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		exec:   &backendtest.Executor{},
		host:   credential.NewMemoryHost(nil),
		models: router.DefaultGeminiModels(),
	}
	creds := credential.NewProvider(credential.Config{Provider: "gemini", APIKey: "env-key"}, h.host)
	h.o = New(nil, router.New(h.models), creds, h.exec, opts...)
	h.o.OnState(func(tr Transition) {
		h.mu.Lock()
		h.states = append(h.states, tr.To)
		h.mu.Unlock()
	})
	return h
}

func (h *harness) stateLog() []State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]State(nil), h.states...)
}

func (h *harness) submit(t *testing.T, text string, atts ...model.Attachment) *Result {
	t.Helper()
	res, err := h.o.Submit(context.Background(), Submission{Text: text, Attachments: atts})
	require.NoError(t, err)
	require.NotNil(t, res)
	return res
}

func audio() model.Attachment {
	return model.Attachment{Name: "clip.mp3", MIMEType: "audio/mpeg", Kind: model.KindAudio, Data: []byte("ID3"), Base64: "SUQz"}
}

func image() model.Attachment {
	return model.Attachment{Name: "cat.png", MIMEType: "image/png", Kind: model.KindImage, Data: []byte{0x89, 'P', 'N', 'G'}, Base64: "iVBORw=="}
}

func chatWith(seq iter.Seq2[backend.Chunk, error]) func(context.Context, backend.ChatRequest) iter.Seq2[backend.Chunk, error] {
	return func(context.Context, backend.ChatRequest) iter.Seq2[backend.Chunk, error] { return seq }
}

// =============================================================================
// SUBMIT CYCLES
// =============================================================================

func TestSubmit_DefaultChatStreams(t *testing.T) {
	h := newHarness(t)
	var got backend.ChatRequest
	h.exec.Chat = func(_ context.Context, req backend.ChatRequest) iter.Seq2[backend.Chunk, error] {
		got = req
		return backendtest.Stream("Hi there!")
	}

	res := h.submit(t, "Hello")

	require.NoError(t, res.Err)
	assert.Equal(t, StateSettledSuccess, res.State)
	assert.Equal(t, router.OpStreamChat, res.Plan.Operation)
	assert.Equal(t, h.models.Reasoning, res.Plan.Model)
	assert.True(t, res.Plan.Params.IsZero())

	assert.Equal(t, h.models.Reasoning, got.Model)
	assert.Empty(t, got.History)
	assert.Zero(t, got.ThinkingBudget)
	assert.False(t, got.GoogleSearch)

	assert.Equal(t, "Hi there!", res.Message.Text)
	assert.False(t, res.Message.InProgress)
	assert.False(t, res.Message.Failed)

	msgs := h.o.Conversation().Snapshot()
	require.Len(t, msgs, 2)
	assert.Equal(t, model.RoleUser, msgs[0].Role)
	assert.Equal(t, "Hello", msgs[0].Text)
	assert.Equal(t, model.RoleModel, msgs[1].Role)
	assert.Empty(t, h.o.Conversation().InProgressID())

	assert.Equal(t, []State{StateDispatched, StateStreaming, StateSettledSuccess}, h.stateLog())
	assert.False(t, h.o.Busy())
}

func TestSubmit_GrantAndRetry(t *testing.T) {
	h := newHarness(t)
	prompts := 0
	h.host.SetPrompt(func(context.Context) (string, error) {
		prompts++
		return "user-key", nil
	})
	var gotReq backend.ImageRequest
	h.exec.Generate = func(_ context.Context, req backend.ImageRequest) (*backend.Response, error) {
		gotReq = req
		return backendtest.ImageResponse(""), nil
	}
	require.NoError(t, h.o.SetMode(model.ModeGenerateImage))
	require.NoError(t, h.o.SetResolution(model.Resolution2K))

	res := h.submit(t, "a lighthouse at dusk")

	require.NoError(t, res.Err)
	assert.True(t, res.Retried)
	assert.Equal(t, 1, prompts)
	assert.Equal(t, []State{
		StateDispatched, StateAwaitingCredential, StateRetrying, StateAwaitingResponse, StateSettledSuccess,
	}, h.stateLog())

	calls := h.exec.Calls()
	require.Len(t, calls, 1)
	assert.True(t, calls[0].Granted)
	assert.Equal(t, "user-key", gotReq.Credential.APIKey)
	assert.Equal(t, model.Resolution2K, gotReq.Resolution)
	assert.Equal(t, router.SquareAspectRatio, gotReq.AspectRatio)
	assert.Equal(t, h.models.Image, gotReq.Model)

	assert.False(t, res.Message.Media.Empty())
	assert.Equal(t, "Here is your generated image.", res.Message.Text)
}

func TestSubmit_ProviderRejectsGrantedKey(t *testing.T) {
	h := newHarness(t)
	h.host.Set("stale-key")
	h.host.SetPrompt(func(context.Context) (string, error) { return "fresh-key", nil })

	var keys []string
	h.exec.Generate = func(_ context.Context, req backend.ImageRequest) (*backend.Response, error) {
		keys = append(keys, req.Credential.APIKey)
		if req.Credential.APIKey == "stale-key" {
			return nil, backend.Rejected("gemini", "Requested entity was not found.")
		}
		return backendtest.ImageResponse("A lighthouse."), nil
	}
	require.NoError(t, h.o.SetMode(model.ModeGenerateImage))

	res := h.submit(t, "a lighthouse")

	require.NoError(t, res.Err)
	assert.Equal(t, []string{"stale-key", "fresh-key"}, keys)
	assert.Equal(t, "A lighthouse.", res.Message.Text)
}

func TestSubmit_SecondGrantFailurePropagates(t *testing.T) {
	h := newHarness(t)
	h.host.SetPrompt(func(context.Context) (string, error) { return "user-key", nil })
	h.exec.Generate = func(context.Context, backend.ImageRequest) (*backend.Response, error) {
		return nil, backend.Rejected("gemini", "key refused")
	}
	require.NoError(t, h.o.SetMode(model.ModeGenerateImage))

	res := h.submit(t, "anything")

	require.Error(t, res.Err)
	assert.True(t, credential.IsNotGranted(res.Err))
	assert.Len(t, h.exec.Calls(), 1)
	assert.Equal(t, StateSettledError, res.State)
	assert.True(t, res.Message.Failed)
	assert.True(t, strings.HasPrefix(res.Message.Text, "Error: "))
	assert.False(t, h.o.Busy())
}

func TestSubmit_GrantAbandoned(t *testing.T) {
	h := newHarness(t)
	h.host.SetPrompt(func(context.Context) (string, error) { return "", nil })
	require.NoError(t, h.o.SetMode(model.ModeGenerateImage))

	res := h.submit(t, "anything")

	assert.ErrorIs(t, res.Err, credential.ErrAbandoned)
	assert.Empty(t, h.exec.Calls())
	assert.Equal(t, ErrorText(credential.ErrAbandoned), res.Message.Text)
}

func TestSubmit_EditWithoutImage(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.o.SetMode(model.ModeEditImage))

	res := h.submit(t, "brighten it")

	var pre *PreconditionError
	require.True(t, errors.As(res.Err, &pre))
	assert.Contains(t, res.Message.Text, "attach an image")
	assert.True(t, res.Message.Failed)
	assert.False(t, res.Message.InProgress)
	assert.Empty(t, h.exec.Calls())
	assert.NotContains(t, h.stateLog(), StateAwaitingResponse)

	// An audio file is not an image either.
	res = h.submit(t, "brighten it", audio())
	assert.Contains(t, res.Message.Text, "attach an image")
	assert.Empty(t, h.exec.Calls())
}

func TestAnalyzeWithoutAttachment(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.o.SetMode(model.ModeAnalyze))

	res := h.submit(t, "what is this")

	assert.Equal(t, "Error: "+MsgAttachFile, res.Message.Text)
	assert.Empty(t, h.exec.Calls())
}

func TestSubmit_TranscribeRouting(t *testing.T) {
	h := newHarness(t)
	h.exec.Transcribe = func(_ context.Context, req backend.TranscribeRequest) (*backend.Response, error) {
		assert.Equal(t, "clip.mp3", req.Audio.Name)
		return &backend.Response{Text: "hello world"}, nil
	}
	require.NoError(t, h.o.SetMode(model.ModeAnalyze))

	res := h.submit(t, "please transcribe this", audio())

	require.NoError(t, res.Err)
	assert.Equal(t, []string{"transcribe_audio"}, h.exec.Operations())
	assert.Equal(t, h.models.Flash, res.Plan.Model)
	assert.Equal(t, "hello world", res.Message.Text)
	assert.Equal(t, "transcribe_audio", res.Message.Operation)
}

func TestSubmit_SearchSources(t *testing.T) {
	h := newHarness(t)
	sources := []model.Source{{URI: "https://x", Title: "X"}}
	var got backend.ChatRequest
	h.exec.Chat = func(_ context.Context, req backend.ChatRequest) iter.Seq2[backend.Chunk, error] {
		got = req
		return backendtest.Chunks(backend.Chunk{Text: "Result", Sources: sources})
	}
	h.o.Toggle(model.FlagSearch)

	res := h.submit(t, "latest news")

	require.NoError(t, res.Err)
	assert.True(t, got.GoogleSearch)
	assert.Equal(t, h.models.Flash, got.Model)
	assert.Equal(t, sources, res.Message.Sources)
}

// =============================================================================
// STREAMING
// =============================================================================

func TestStreaming_OrderAndReplacement(t *testing.T) {
	h := newHarness(t)
	chunks := []string{"The", "The quick", "The quick brown", "The quick brown fox"}
	h.exec.Chat = chatWith(backendtest.Stream(chunks...))

	var updates []string
	var inProgress []bool
	h.o.Conversation().Subscribe(func(ev model.Event) {
		if ev.Kind == model.EventUpdated {
			updates = append(updates, ev.Message.Text)
			inProgress = append(inProgress, ev.Message.InProgress)
		}
	})

	res := h.submit(t, "go")

	assert.Equal(t, chunks, updates)
	for _, ip := range inProgress {
		assert.True(t, ip)
	}
	assert.Equal(t, chunks[len(chunks)-1], res.Message.Text)
}

func TestStreaming_SourcesKeptAcrossChunks(t *testing.T) {
	h := newHarness(t)
	first := []model.Source{{URI: "https://a", Title: "A"}}
	both := []model.Source{{URI: "https://a", Title: "A"}, {URI: "https://b", Title: "B"}}
	h.exec.Chat = chatWith(backendtest.Chunks(
		backend.Chunk{Text: "a", Sources: first},
		backend.Chunk{Text: "ab"},
		backend.Chunk{Text: "abc", Sources: both},
		backend.Chunk{Text: "abcd"},
	))

	res := h.submit(t, "go")
	assert.Equal(t, both, res.Message.Sources)
	assert.Equal(t, "abcd", res.Message.Text)
}

func TestStreaming_FailureMidStream(t *testing.T) {
	h := newHarness(t)
	h.exec.Chat = chatWith(backendtest.FailAfter(&backend.Error{Provider: "gemini", Status: 503, Message: "model overloaded"}, "partial"))

	res := h.submit(t, "go")

	assert.Equal(t, StateSettledError, res.State)
	assert.Equal(t, "Error: model overloaded", res.Message.Text)
	assert.True(t, res.Message.Failed)
	assert.False(t, h.o.Busy())

	// Failed turns are not sent as history.
	var got backend.ChatRequest
	h.exec.Chat = func(_ context.Context, req backend.ChatRequest) iter.Seq2[backend.Chunk, error] {
		got = req
		return backendtest.Stream("ok")
	}
	h.submit(t, "again")
	require.Len(t, got.History, 1)
	assert.Equal(t, "go", got.History[0].Text)
}

func TestStreaming_EmptyResponseCaption(t *testing.T) {
	h := newHarness(t)
	h.exec.Chat = chatWith(backendtest.Stream())

	res := h.submit(t, "go")
	assert.Equal(t, "No response was returned.", res.Message.Text)
}

func TestHistorySentToChat(t *testing.T) {
	h := newHarness(t)
	var got backend.ChatRequest
	h.exec.Chat = func(_ context.Context, req backend.ChatRequest) iter.Seq2[backend.Chunk, error] {
		got = req
		return backendtest.Stream("reply " + req.Text)
	}

	h.submit(t, "one")
	h.submit(t, "two")

	require.Len(t, got.History, 2)
	assert.Equal(t, backend.Turn{Role: model.RoleUser, Text: "one"}, got.History[0])
	assert.Equal(t, backend.Turn{Role: model.RoleModel, Text: "reply one"}, got.History[1])
	assert.Equal(t, "two", got.Text)
}

// =============================================================================
// BUSY FLAG
// =============================================================================

func TestBusy_RejectsConcurrentSubmission(t *testing.T) {
	h := newHarness(t)
	gate := make(chan string)
	h.exec.Chat = chatWith(backendtest.Gated(gate))

	streaming := make(chan struct{}, 1)
	h.o.OnState(func(tr Transition) {
		if tr.To == StateStreaming {
			streaming <- struct{}{}
		}
	})

	done := make(chan *Result, 1)
	go func() {
		res, _ := h.o.Submit(context.Background(), Submission{Text: "first"})
		done <- res
	}()

	select {
	case <-streaming:
	case <-time.After(5 * time.Second):
		t.Fatal("cycle never started streaming")
	}
	gate <- "partial"

	assert.True(t, h.o.Busy())
	_, err := h.o.Submit(context.Background(), Submission{Text: "second"})
	assert.ErrorIs(t, err, ErrBusy)
	assert.ErrorIs(t, h.o.SetMode(model.ModeAnalyze), ErrBusy)
	assert.ErrorIs(t, h.o.Clear(), ErrBusy)
	assert.Equal(t, model.ModeChat, h.o.Mode())

	close(gate)
	var res *Result
	select {
	case res = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("cycle never settled")
	}
	assert.Equal(t, "partial", res.Message.Text)
	assert.False(t, h.o.Busy())

	h.exec.Chat = chatWith(backendtest.Stream("ok"))
	res = h.submit(t, "third")
	assert.NoError(t, res.Err)
	assert.Len(t, h.o.Conversation().Snapshot(), 4)
}

func TestBusy_ReleasedAfterPanic(t *testing.T) {
	h := newHarness(t)
	h.exec.Chat = func(context.Context, backend.ChatRequest) iter.Seq2[backend.Chunk, error] {
		panic("adapter bug")
	}

	res := h.submit(t, "go")

	assert.Equal(t, StateSettledError, res.State)
	assert.Contains(t, res.Message.Text, "adapter bug")
	assert.False(t, h.o.Busy())
	assert.Empty(t, h.o.Conversation().InProgressID())

	h.exec.Chat = chatWith(backendtest.Stream("ok"))
	assert.NoError(t, h.submit(t, "go").Err)
}

func TestSubmit_Empty(t *testing.T) {
	h := newHarness(t)
	_, err := h.o.Submit(context.Background(), Submission{Text: "   "})
	assert.ErrorIs(t, err, ErrEmpty)
	assert.True(t, h.o.Conversation().IsEmpty())
	assert.False(t, h.o.Busy())
}

// =============================================================================
// MODES, CAPTIONS AND ERRORS
// =============================================================================

func TestSetMode_ClearsConversation(t *testing.T) {
	h := newHarness(t)
	h.exec.Chat = chatWith(backendtest.Stream("hi"))
	h.submit(t, "hello")
	require.Equal(t, 2, h.o.Conversation().Len())

	require.NoError(t, h.o.SetMode(model.ModeChat))
	assert.Equal(t, 2, h.o.Conversation().Len(), "same mode keeps history")

	require.NoError(t, h.o.SetMode(model.ModeAnalyze))
	assert.True(t, h.o.Conversation().IsEmpty())
	assert.Equal(t, model.ModeAnalyze, h.o.Mode())

	assert.Error(t, h.o.SetMode("bogus"))
}

func TestToggleExclusive(t *testing.T) {
	h := newHarness(t)
	h.o.Toggle(model.FlagThinking)
	cfg := h.o.Toggle(model.FlagFast)
	assert.True(t, cfg.EnableFast)
	assert.False(t, cfg.EnableThinking)
	assert.Equal(t, router.OpStreamChat, h.o.Preview("x", nil).Operation)
	assert.Equal(t, router.TierFast, h.o.Preview("x", nil).Tier)

	assert.Error(t, h.o.SetResolution("8K"))
}

func TestDefaultCaptions(t *testing.T) {
	tests := []struct {
		name  string
		mode  model.Mode
		atts  []model.Attachment
		setup func(e *backendtest.Executor)
		want  string
	}{
		{
			name: "edit",
			mode: model.ModeEditImage,
			atts: []model.Attachment{image()},
			setup: func(e *backendtest.Executor) {
				e.Edit = func(context.Context, backend.EditRequest) (*backend.Response, error) {
					return backendtest.ImageResponse(""), nil
				}
			},
			want: "Here is your edited image.",
		},
		{
			name: "analyze",
			mode: model.ModeAnalyze,
			atts: []model.Attachment{image()},
			setup: func(e *backendtest.Executor) {
				e.Analyze = func(context.Context, backend.AnalyzeRequest) (*backend.Response, error) {
					return &backend.Response{}, nil
				}
			},
			want: "No analysis was returned.",
		},
		{
			name: "transcribe",
			mode: model.ModeAnalyze,
			atts: []model.Attachment{audio()},
			setup: func(e *backendtest.Executor) {
				e.Transcribe = func(context.Context, backend.TranscribeRequest) (*backend.Response, error) {
					return nil, nil
				}
			},
			want: "No transcription was returned.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			tt.setup(h.exec)
			require.NoError(t, h.o.SetMode(tt.mode))

			text := "describe"
			if tt.name == "transcribe" {
				text = "Transcribe please"
			}
			res := h.submit(t, text, tt.atts...)
			require.NoError(t, res.Err)
			assert.Equal(t, tt.want, res.Message.Text)
		})
	}
}

func TestAnalyzeAudioUsesFlash(t *testing.T) {
	h := newHarness(t)
	var got backend.AnalyzeRequest
	h.exec.Analyze = func(_ context.Context, req backend.AnalyzeRequest) (*backend.Response, error) {
		got = req
		return &backend.Response{Text: "A dog barking."}, nil
	}
	require.NoError(t, h.o.SetMode(model.ModeAnalyze))

	res := h.submit(t, "", audio())

	require.NoError(t, res.Err)
	assert.Equal(t, h.models.Flash, got.Model)
	assert.Empty(t, got.Prompt)
	assert.Equal(t, "A dog barking.", res.Message.Text)
}

func TestSubstitutedModelIsRecorded(t *testing.T) {
	lg, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { lg.Close() })

	h := newHarness(t, WithRecorder(lg))
	h.exec.Analyze = func(context.Context, backend.AnalyzeRequest) (*backend.Response, error) {
		return &backend.Response{Text: "A dog barking.", Model: "audio-preview"}, nil
	}
	require.NoError(t, h.o.SetMode(model.ModeAnalyze))

	res := h.submit(t, "what is this?", audio())
	require.NoError(t, res.Err)
	assert.Equal(t, h.models.Flash, res.Plan.Model)
	assert.Equal(t, "audio-preview", res.Message.Model)

	entries, err := lg.Recent(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "audio-preview", entries[0].Model)
}

func TestErrorText(t *testing.T) {
	assert.Equal(t, "Error: An unknown error occurred.", ErrorText(nil))
	assert.Equal(t, "Error: An unknown error occurred.", ErrorText(errors.New("  ")))
	assert.Equal(t, "Error: boom", ErrorText(errors.New("boom")))
}

func TestMissingKeySettlesWithError(t *testing.T) {
	h := newHarness(t)
	h.o.Credentials().SetConfig(credential.Config{Provider: "gemini"})

	res := h.submit(t, "hello")

	assert.ErrorIs(t, res.Err, credential.ErrNoKey)
	assert.Empty(t, h.exec.Calls())
	assert.False(t, h.o.Busy())
}

// =============================================================================
// COLLABORATORS
// =============================================================================

func TestMediaStoreAndLedger(t *testing.T) {
	dir := t.TempDir()
	store, err := mediastore.NewFileStore(filepath.Join(dir, "media"))
	require.NoError(t, err)
	lg, err := ledger.Open(filepath.Join(dir, "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { lg.Close() })

	h := newHarness(t, WithMediaStore(store), WithRecorder(lg), WithProvider("gemini"))
	h.host.Set("user-key")
	h.exec.Generate = func(context.Context, backend.ImageRequest) (*backend.Response, error) {
		return backendtest.ImageResponse("A cat."), nil
	}
	require.NoError(t, h.o.SetMode(model.ModeGenerateImage))

	res := h.submit(t, "a cat")
	require.NoError(t, res.Err)
	require.NotNil(t, res.Message.Media)
	assert.True(t, strings.HasPrefix(res.Message.Media.URI, "file://"))

	stored, err := store.Get(context.Background(), res.MessageID)
	require.NoError(t, err)
	assert.Equal(t, res.Message.Media.Data, stored.Data)

	h.o.SetMode(model.ModeEditImage)
	h.submit(t, "brighten")

	entries, err := lg.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	byID := map[string]ledger.Entry{}
	for _, e := range entries {
		byID[e.ID] = e
	}
	img := byID[res.CycleID]
	assert.Equal(t, ledger.StatusSuccess, img.Status)
	assert.Equal(t, "generate_image", img.Operation)
	assert.Equal(t, "gemini", img.Provider)
	assert.True(t, img.Granted)
	assert.False(t, img.Retried)
	assert.Equal(t, res.Message.Media.URI, img.MediaURI)

	for id, e := range byID {
		if id != res.CycleID {
			assert.Equal(t, ledger.StatusError, e.Status)
			assert.Equal(t, MsgAttachImage, e.Error)
		}
	}
}

type failingStore struct{}

func (failingStore) Put(context.Context, string, *model.Media) (string, error) {
	return "", errors.New("disk full")
}

func (failingStore) Get(context.Context, string) (*model.Media, error) {
	return nil, mediastore.ErrNotFound
}

func TestMediaStoreFailureKeepsInlineMedia(t *testing.T) {
	h := newHarness(t, WithMediaStore(failingStore{}))
	h.host.Set("user-key")
	h.exec.Generate = func(context.Context, backend.ImageRequest) (*backend.Response, error) {
		return backendtest.ImageResponse(""), nil
	}
	require.NoError(t, h.o.SetMode(model.ModeGenerateImage))

	res := h.submit(t, "a cat")
	require.NoError(t, res.Err)
	require.NotNil(t, res.Message.Media)
	assert.Empty(t, res.Message.Media.URI)
	assert.NotEmpty(t, res.Message.Media.Data)
}

func TestSetModels(t *testing.T) {
	h := newHarness(t)
	var got string
	h.exec.Chat = func(_ context.Context, req backend.ChatRequest) iter.Seq2[backend.Chunk, error] {
		got = req.Model
		return backendtest.Stream("ok")
	}
	m := h.models
	m.Reasoning = "custom-reasoning"
	h.o.SetModels(m)

	h.submit(t, "hi")
	assert.Equal(t, "custom-reasoning", got)
	assert.Equal(t, "custom-reasoning", h.o.Models().Reasoning)
}

func TestStart_RunsAsyncAndRejectsWhileBusy(t *testing.T) {
	h := newHarness(t)
	gate := make(chan string)
	h.exec.Chat = func(context.Context, backend.ChatRequest) iter.Seq2[backend.Chunk, error] {
		return backendtest.Gated(gate)
	}

	done, err := h.o.Start(context.Background(), Submission{Text: "first"})
	require.NoError(t, err)
	assert.True(t, h.o.Busy())

	_, err = h.o.Start(context.Background(), Submission{Text: "second"})
	assert.ErrorIs(t, err, ErrBusy)
	_, err = h.o.Start(context.Background(), Submission{})
	assert.ErrorIs(t, err, ErrEmpty)

	gate <- "streamed"
	close(gate)

	select {
	case res := <-done:
		require.NoError(t, res.Err)
		assert.Equal(t, "streamed", res.Message.Text)
	case <-time.After(5 * time.Second):
		t.Fatal("cycle did not settle")
	}
	assert.Eventually(t, func() bool { return !h.o.Busy() }, time.Second, 5*time.Millisecond)
}
