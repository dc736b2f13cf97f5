// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/prism/internal/backend"
	"github.com/jeranaias/prism/internal/credential"
	"github.com/jeranaias/prism/internal/model"
)

func testCred() credential.Credential {
	return credential.Credential{Provider: ProviderName, APIKey: "test-key"}
}

// fakeAPI records request bodies and serves canned responses keyed by the
// method suffix of the request path.
type fakeAPI struct {
	t        *testing.T
	bodies   []map[string]any
	handlers map[string]http.HandlerFunc
}

func newFakeAPI(t *testing.T) (*fakeAPI, *httptest.Server) {
	f := &fakeAPI{t: t, handlers: make(map[string]http.HandlerFunc)}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(raw, &body)
		f.bodies = append(f.bodies, body)

		for suffix, h := range f.handlers {
			if strings.HasSuffix(r.URL.Path, suffix) {
				h(w, r)
				return
			}
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(server.Close)
	return f, server
}

func sse(w http.ResponseWriter, events ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	for _, ev := range events {
		fmt.Fprintf(w, "data: %s\n\n", ev)
	}
}

func TestStreamChat_Cumulative(t *testing.T) {
	api, server := newFakeAPI(t)
	api.handlers[":streamGenerateContent"] = func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))
		sse(w,
			`{"candidates":[{"content":{"role":"model","parts":[{"text":"Hi "}]}}]}`,
			`{"candidates":[{"content":{"role":"model","parts":[{"text":"there!"}]}}]}`,
		)
	}

	exec := New().WithBaseURL(server.URL)
	var texts []string
	for chunk, err := range exec.StreamChat(context.Background(), backend.ChatRequest{
		Credential: testCred(),
		Model:      "m-reasoning",
		History:    []backend.Turn{{Role: model.RoleUser, Text: "earlier"}, {Role: model.RoleModel, Text: "reply"}},
		Text:       "Hello",
	}) {
		require.NoError(t, err)
		texts = append(texts, chunk.Text)
	}

	assert.Equal(t, []string{"Hi ", "Hi there!"}, texts)
	require.Len(t, api.bodies, 1)
	contents := api.bodies[0]["contents"].([]any)
	assert.Len(t, contents, 3)
	assert.NotContains(t, api.bodies[0], "tools")
}

func TestStreamChat_ThinkingAndSearch(t *testing.T) {
	api, server := newFakeAPI(t)
	api.handlers[":streamGenerateContent"] = func(w http.ResponseWriter, r *http.Request) {
		sse(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"Answer"}]},
			"groundingMetadata":{"groundingChunks":[{"web":{"uri":"https://x","title":"X"}}]}}]}`)
	}
	exec := New().WithBaseURL(server.URL)

	var last backend.Chunk
	for chunk, err := range exec.StreamChat(context.Background(), backend.ChatRequest{
		Credential:     testCred(),
		Model:          "m-flash",
		Text:           "news?",
		ThinkingBudget: 32768,
		GoogleSearch:   true,
	}) {
		require.NoError(t, err)
		last = chunk
	}

	assert.Equal(t, "Answer", last.Text)
	assert.Equal(t, []model.Source{{URI: "https://x", Title: "X"}}, last.Sources)

	body := api.bodies[0]
	gen := body["generationConfig"].(map[string]any)
	thinking := gen["thinkingConfig"].(map[string]any)
	assert.EqualValues(t, 32768, thinking["thinkingBudget"])
	tools := body["tools"].([]any)
	assert.Contains(t, tools[0].(map[string]any), "googleSearch")
}

func TestGenerateImage(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G'}
	api, server := newFakeAPI(t)
	api.handlers[":generateContent"] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"candidates":[{"content":{"role":"model","parts":[
			{"text":"A cat."},
			{"inlineData":{"mimeType":"image/png","data":%q}}]}}]}`,
			base64.StdEncoding.EncodeToString(png))
	}
	exec := New().WithBaseURL(server.URL)

	resp, err := exec.GenerateImage(context.Background(), backend.ImageRequest{
		Credential:  testCred(),
		Model:       "m-image",
		Prompt:      "a cat",
		Resolution:  model.Resolution2K,
		AspectRatio: "1:1",
	})
	require.NoError(t, err)
	assert.Equal(t, "A cat.", resp.Text)
	require.NotNil(t, resp.Media)
	assert.Equal(t, "image/png", resp.Media.MIMEType)
	assert.Equal(t, png, resp.Media.Data)

	gen := api.bodies[0]["generationConfig"].(map[string]any)
	img := gen["imageConfig"].(map[string]any)
	assert.Equal(t, "2K", img["imageSize"])
	assert.Equal(t, "1:1", img["aspectRatio"])
}

func TestGenerateImage_RejectedGrant(t *testing.T) {
	api, server := newFakeAPI(t)
	api.handlers[":generateContent"] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"error":{"code":404,"message":"Requested entity was not found.","status":"NOT_FOUND"}}`)
	}
	exec := New().WithBaseURL(server.URL)

	cred := testCred()
	cred.Granted = true
	_, err := exec.GenerateImage(context.Background(), backend.ImageRequest{Credential: cred, Model: "m-image", Prompt: "x"})
	require.Error(t, err)
	assert.True(t, credential.IsNotGranted(err), "got %v", err)

	// The same failure with the configured key is an ordinary backend error.
	_, err = exec.GenerateImage(context.Background(), backend.ImageRequest{Credential: testCred(), Model: "m-image", Prompt: "x"})
	var be *backend.Error
	require.True(t, errors.As(err, &be), "got %v", err)
	assert.Equal(t, http.StatusNotFound, be.Status)
	assert.False(t, credential.IsNotGranted(err))
}

func TestAnalyzeAndTranscribePrompts(t *testing.T) {
	api, server := newFakeAPI(t)
	api.handlers[":generateContent"] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"ok"}]}}]}`)
	}
	exec := New().WithBaseURL(server.URL)
	audio := model.Attachment{MIMEType: "audio/mpeg", Kind: model.KindAudio, Data: []byte("ID3")}

	_, err := exec.AnalyzeMedia(context.Background(), backend.AnalyzeRequest{Credential: testCred(), Model: "m", Attachment: audio})
	require.NoError(t, err)
	_, err = exec.TranscribeAudio(context.Background(), backend.TranscribeRequest{Credential: testCred(), Model: "m", Audio: audio})
	require.NoError(t, err)

	require.Len(t, api.bodies, 2)
	assert.Equal(t, backend.DefaultAnalyzePrompt, lastText(t, api.bodies[0]))
	assert.Equal(t, backend.TranscribePrompt, lastText(t, api.bodies[1]))
}

func TestClientRequiresKey(t *testing.T) {
	exec := New()
	_, err := exec.AnalyzeMedia(context.Background(), backend.AnalyzeRequest{Model: "m"})
	assert.ErrorIs(t, err, credential.ErrNoKey)
}

func lastText(t *testing.T, body map[string]any) string {
	t.Helper()
	contents := body["contents"].([]any)
	parts := contents[len(contents)-1].(map[string]any)["parts"].([]any)
	text, _ := parts[len(parts)-1].(map[string]any)["text"].(string)
	return text
}
