// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jeranaias/prism/internal/credential"
	"github.com/jeranaias/prism/internal/model"
)

func TestAccumulator_Cumulative(t *testing.T) {
	var acc Accumulator

	c := acc.Add("Hel", nil)
	assert.Equal(t, "Hel", c.Text)
	assert.Nil(t, c.Sources)

	c = acc.Add("lo", []model.Source{{URI: "https://a", Title: "A"}})
	assert.Equal(t, "Hello", c.Text)
	assert.Equal(t, []model.Source{{URI: "https://a", Title: "A"}}, c.Sources)

	c = acc.Add("!", []model.Source{{URI: "https://a", Title: "A"}, {URI: "https://b", Title: "B"}, {URI: ""}})
	assert.Equal(t, "Hello!", c.Text)
	assert.Equal(t, []model.Source{{URI: "https://a", Title: "A"}, {URI: "https://b", Title: "B"}}, c.Sources)

	c = acc.Add("", nil)
	assert.Equal(t, "Hello!", c.Text)
	assert.Nil(t, c.Sources)
}

func TestError_Message(t *testing.T) {
	assert.Equal(t, "quota exceeded", (&Error{Provider: "gemini", Status: 429, Message: "quota exceeded"}).Error())
	assert.Equal(t, "openai: 503 Service Unavailable", (&Error{Provider: "openai", Status: 503}).Error())

	inner := errors.New("dial tcp: refused")
	err := fmt.Errorf("stream: %w", &Error{Provider: "gemini", Err: inner})
	assert.ErrorIs(t, err, inner)

	var be *Error
	assert.True(t, errors.As(err, &be))
	assert.Equal(t, "dial tcp: refused", be.Error())
}

func TestRejected(t *testing.T) {
	err := Rejected("gemini", "Requested entity was not found.")
	assert.True(t, credential.IsNotGranted(err))
	assert.Contains(t, err.Error(), "Requested entity was not found.")
}

func TestAnalyzePrompt(t *testing.T) {
	assert.Equal(t, "Analyze this content.", AnalyzePrompt(""))
	assert.Equal(t, "Analyze this content.", AnalyzePrompt("   \n"))
	assert.Equal(t, "what is this?", AnalyzePrompt("what is this?"))
}

func TestHistoryFrom(t *testing.T) {
	msgs := []*model.Message{
		{Role: model.RoleUser, Text: "hi"},
		{Role: model.RoleModel, Text: ""},
		{Role: model.RoleModel, Text: "hello"},
	}
	assert.Equal(t, []Turn{{model.RoleUser, "hi"}, {model.RoleModel, "hello"}}, HistoryFrom(msgs))
}
