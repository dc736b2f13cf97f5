// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/prism/internal/backend"
	"github.com/jeranaias/prism/internal/credential"
	"github.com/jeranaias/prism/internal/model"
)

func testCred() credential.Credential {
	return credential.Credential{Provider: ProviderName, APIKey: "sk-test"}
}

func newServer(t *testing.T, mux *http.ServeMux) *Executor {
	t.Helper()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return New().WithBaseURL(server.URL)
}

func chunkJSON(content string) string {
	return fmt.Sprintf(`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"content":%q},"finish_reason":null}]}`, content)
}

func TestStreamChat_AccumulatesDeltas(t *testing.T) {
	var body map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))

		w.Header().Set("Content-Type", "text/event-stream")
		for _, c := range []string{"Hi", " there", "!"} {
			fmt.Fprintf(w, "data: %s\n\n", chunkJSON(c))
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	})
	exec := newServer(t, mux)

	var texts []string
	for chunk, err := range exec.StreamChat(context.Background(), backend.ChatRequest{
		Credential:     testCred(),
		Model:          "o4-mini",
		History:        []backend.Turn{{Role: model.RoleUser, Text: "a"}, {Role: model.RoleModel, Text: "b"}},
		Text:           "Hello",
		ThinkingBudget: 32768,
	}) {
		require.NoError(t, err)
		texts = append(texts, chunk.Text)
	}

	assert.Equal(t, []string{"Hi", "Hi there", "Hi there!"}, texts)
	assert.Equal(t, "o4-mini", body["model"])
	assert.Equal(t, "high", body["reasoning_effort"])
	assert.Equal(t, true, body["stream"])
	assert.Len(t, body["messages"], 3)
	assert.NotContains(t, body, "web_search_options")
}

func TestStreamChat_SearchAnnotations(t *testing.T) {
	var body map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, `data: {"id":"c1","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"content":"News","annotations":[{"type":"url_citation","url_citation":{"url":"https://x","title":"X","start_index":0,"end_index":4}}]},"finish_reason":null}]}`+"\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	})
	exec := newServer(t, mux)

	var last backend.Chunk
	for chunk, err := range exec.StreamChat(context.Background(), backend.ChatRequest{
		Credential:   testCred(),
		Model:        "gpt-4o-search-preview",
		Text:         "news?",
		GoogleSearch: true,
	}) {
		require.NoError(t, err)
		last = chunk
	}

	assert.Equal(t, "News", last.Text)
	assert.Equal(t, []model.Source{{URI: "https://x", Title: "X"}}, last.Sources)
	assert.Contains(t, body, "web_search_options")
}

func TestStreamChat_VideoUnsupported(t *testing.T) {
	exec := New()
	video := model.Attachment{MIMEType: "video/mp4", Kind: model.KindVideo, Data: []byte{1}}
	for _, err := range exec.StreamChat(context.Background(), backend.ChatRequest{
		Credential:  testCred(),
		Model:       "m",
		Attachments: []model.Attachment{video},
	}) {
		assert.ErrorIs(t, err, backend.ErrUnsupported)
	}
}

func TestStreamChat_RejectedGrant(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","code":"invalid_api_key","param":null}}`)
	})
	exec := newServer(t, mux)

	cred := testCred()
	cred.Granted = true
	var got error
	for _, err := range exec.StreamChat(context.Background(), backend.ChatRequest{Credential: cred, Model: "m", Text: "x"}) {
		got = err
	}
	assert.True(t, credential.IsNotGranted(got), "got %v", got)
}

func TestGenerateImage(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n0000")
	var body map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("/images/generations", func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"created":1,"data":[{"b64_json":%q}]}`, base64.StdEncoding.EncodeToString(png))
	})
	exec := newServer(t, mux)

	resp, err := exec.GenerateImage(context.Background(), backend.ImageRequest{
		Credential: testCred(),
		Model:      "gpt-image-1",
		Prompt:     "a fox",
		Resolution: model.Resolution4K,
	})
	require.NoError(t, err)
	require.NotNil(t, resp.Media)
	assert.Equal(t, png, resp.Media.Data)
	assert.Equal(t, "image/png", resp.Media.MIMEType)
	assert.Equal(t, "high", body["quality"])
	assert.Equal(t, "1024x1024", body["size"])
}

func TestGenerateImage_BackendError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/images/generations", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":{"message":"prompt rejected by safety system","type":"invalid_request_error","code":"content_policy_violation","param":null}}`)
	})
	exec := newServer(t, mux)

	_, err := exec.GenerateImage(context.Background(), backend.ImageRequest{Credential: testCred(), Model: "gpt-image-1", Prompt: "x"})
	var be *backend.Error
	require.True(t, errors.As(err, &be), "got %v", err)
	assert.Equal(t, http.StatusBadRequest, be.Status)
	assert.Equal(t, "prompt rejected by safety system", be.Error())
}

func TestTranscribeAudio(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/audio/transcriptions", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, DefaultTranscribeModel, r.FormValue("model"))
		assert.Equal(t, backend.TranscribePrompt, r.FormValue("prompt"))
		_, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		assert.Equal(t, "clip.mp3", hdr.Filename)

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"text":"hello world"}`)
	})
	exec := newServer(t, mux)

	resp, err := exec.TranscribeAudio(context.Background(), backend.TranscribeRequest{
		Credential: testCred(),
		Model:      "ignored",
		Audio:      model.Attachment{Name: "clip.mp3", MIMEType: "audio/mpeg", Kind: model.KindAudio, Data: []byte("ID3")},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello world", resp.Text)
	assert.Equal(t, DefaultTranscribeModel, resp.Model)
}

func TestAnalyzeMedia_DefaultPromptAndAudioModel(t *testing.T) {
	var body map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"x","object":"chat.completion","created":1,"model":"m","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"A dog barking."}}]}`)
	})
	exec := newServer(t, mux)

	audio := model.Attachment{MIMEType: "audio/wav", Kind: model.KindAudio, Data: []byte("RIFF"), Base64: "UklGRg=="}
	resp, err := exec.AnalyzeMedia(context.Background(), backend.AnalyzeRequest{Credential: testCred(), Model: "flash", Attachment: audio})
	require.NoError(t, err)
	assert.Equal(t, "A dog barking.", resp.Text)
	assert.Equal(t, DefaultAudioModel, body["model"])
	assert.Equal(t, DefaultAudioModel, resp.Model)

	msgs := body["messages"].([]any)
	parts := msgs[0].(map[string]any)["content"].([]any)
	assert.Equal(t, backend.DefaultAnalyzePrompt, parts[0].(map[string]any)["text"])
	assert.Equal(t, "input_audio", parts[1].(map[string]any)["type"])
}
