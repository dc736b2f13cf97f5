// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/prism/internal/backend"
	"github.com/jeranaias/prism/internal/credential"
	"github.com/jeranaias/prism/internal/ledger"
	"github.com/jeranaias/prism/internal/model"
	"github.com/jeranaias/prism/internal/router"
)

// Precondition messages shown when a required attachment is missing.
const (
	MsgAttachImage = "Please attach an image to edit."
	MsgAttachFile  = "Please attach a file to analyze."
)

// Captions used when a successful response carries no text.
var defaultCaptions = map[router.Operation]string{
	router.OpStreamChat:      "No response was returned.",
	router.OpGenerateImage:   "Here is your generated image.",
	router.OpEditImage:       "Here is your edited image.",
	router.OpAnalyzeMedia:    "No analysis was returned.",
	router.OpTranscribeAudio: "No transcription was returned.",
}

// DefaultCaption returns the fallback text for an operation.
func DefaultCaption(op router.Operation) string {
	if c, ok := defaultCaptions[op]; ok {
		return c
	}
	return defaultCaptions[router.OpStreamChat]
}

// ErrorText formats a cycle failure for display in the message.
func ErrorText(err error) string {
	var msg string
	if err != nil {
		msg = strings.TrimSpace(err.Error())
	}
	if msg == "" {
		return "Error: An unknown error occurred."
	}
	return "Error: " + msg
}

// Submission is one user request.
type Submission struct {
	Text        string
	Attachments []model.Attachment
}

// IsEmpty reports whether the submission has neither text nor attachments.
func (s Submission) IsEmpty() bool {
	return strings.TrimSpace(s.Text) == "" && len(s.Attachments) == 0
}

// Result describes a settled cycle.
type Result struct {
	CycleID   string
	MessageID string
	Plan      router.Plan
	State     State
	Retried   bool

	// Message is the settled placeholder.
	Message *model.Message

	// Err is the failure the cycle settled with, if any.
	Err error
}

// OK reports whether the cycle settled successfully.
func (r *Result) OK() bool {
	return r != nil && r.State == StateSettledSuccess
}

// =============================================================================
// SUBMIT
// =============================================================================

// Submit runs one cycle to completion. It returns ErrEmpty or ErrBusy when
// the submission is rejected before dispatch; once dispatched, every failure
// is reported through Result.Err and the placeholder message.
//
// ctx is passed to the backend call. The orchestrator itself imposes no
// timeout.
func (o *Orchestrator) Submit(ctx context.Context, sub Submission) (*Result, error) {
	c, err := o.begin(sub)
	if err != nil {
		return nil, err
	}
	defer c.release()

	return c.run(ctx), nil
}

// Start is Submit on a new goroutine. Rejections are returned immediately;
// the channel receives exactly one Result once the cycle settles.
func (o *Orchestrator) Start(ctx context.Context, sub Submission) (<-chan *Result, error) {
	c, err := o.begin(sub)
	if err != nil {
		return nil, err
	}
	done := make(chan *Result, 1)
	go func() {
		defer c.release()
		done <- c.run(ctx)
	}()
	return done, nil
}

// begin claims the busy flag and builds the cycle.
func (o *Orchestrator) begin(sub Submission) (*cycle, error) {
	if sub.IsEmpty() {
		return nil, ErrEmpty
	}
	if !o.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}

	mode, cfg := o.settings()
	c := &cycle{
		o:       o,
		id:      uuid.NewString(),
		mode:    mode,
		cfg:     cfg,
		sub:     sub,
		started: time.Now(),
	}
	c.logger = o.logger.With("cycle", c.id)
	return c, nil
}

// =============================================================================
// CYCLE
// =============================================================================

type cycle struct {
	o      *Orchestrator
	id     string
	logger *slog.Logger

	mode    model.Mode
	cfg     model.RequestConfig
	sub     Submission
	history []backend.Turn
	msgID   string
	plan    router.Plan
	served  string
	started time.Time

	granted  bool
	retried  bool
	chunks   int
	released bool
}

// outcome is a successful backend result before it is written to the store.
type outcome struct {
	text    string
	media   *model.Media
	sources []model.Source
}

// model returns the model that served the cycle. Adapters may substitute
// their own model for an operation; otherwise it is the planned one.
func (c *cycle) model() string {
	if c.served != "" {
		return c.served
	}
	return c.plan.Model
}

func (c *cycle) release() {
	if !c.released {
		c.released = true
		c.o.busy.Store(false)
	}
}

func (c *cycle) run(ctx context.Context) (res *Result) {
	conv := c.o.conv

	// History is captured before the new user turn is appended.
	c.history = backend.HistoryFrom(conv.History())
	conv.AppendUser(c.sub.Text, c.sub.Attachments)

	placeholder, err := conv.AppendPlaceholder()
	if err != nil {
		c.logger.Error("cannot start cycle", "error", err)
		return &Result{CycleID: c.id, State: StateSettledError, Err: err}
	}
	c.msgID = placeholder.ID
	c.o.transition(c.id, StateDispatched)

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("cycle panicked", "panic", r)
			res = c.settle(ctx, nil, fmt.Errorf("internal error: %v", r))
		}
	}()

	out, err := c.execute(ctx)
	return c.settle(ctx, out, err)
}

func (c *cycle) precondition() error {
	switch c.mode {
	case model.ModeEditImage:
		if _, ok := router.FirstImage(c.sub.Attachments); !ok {
			return &PreconditionError{Message: MsgAttachImage}
		}
	case model.ModeAnalyze:
		if len(c.sub.Attachments) == 0 {
			return &PreconditionError{Message: MsgAttachFile}
		}
	}
	return nil
}

// execute routes the request and runs it, with at most one credential grant
// and retry.
func (c *cycle) execute(ctx context.Context) (*outcome, error) {
	if err := c.precondition(); err != nil {
		return nil, err
	}

	c.plan = c.o.router.Route(c.mode, c.cfg, c.sub.Attachments, c.sub.Text)
	c.logger.Info("cycle dispatched",
		"mode", c.mode.String(),
		"operation", c.plan.Operation.String(),
		"model", c.plan.Model,
		"reason", c.plan.Reason,
	)

	out, err := c.attempt(ctx)
	if err == nil || !credential.IsNotGranted(err) {
		return out, err
	}

	c.o.transition(c.id, StateAwaitingCredential)
	c.logger.Info("credential grant required", "operation", c.plan.Operation.String())
	if err := c.o.creds.Grant(ctx); err != nil {
		return nil, err
	}

	c.retried = true
	c.o.transition(c.id, StateRetrying)
	return c.attempt(ctx)
}

func (c *cycle) attempt(ctx context.Context) (*outcome, error) {
	cred, err := c.o.creds.Resolve(ctx, c.plan.RequiresGrant)
	if err != nil {
		return nil, err
	}
	c.granted = cred.Granted

	if c.plan.Operation.IsStreaming() {
		c.o.transition(c.id, StateStreaming)
		return c.stream(ctx, cred)
	}
	c.o.transition(c.id, StateAwaitingResponse)
	return c.call(ctx, cred)
}

// stream applies each chunk to the placeholder in arrival order. Chunk text
// replaces the message text; a chunk with sources replaces the source list.
func (c *cycle) stream(ctx context.Context, cred credential.Credential) (*outcome, error) {
	req := backend.ChatRequest{
		Credential:     cred,
		Model:          c.plan.Model,
		History:        c.history,
		Text:           c.sub.Text,
		Attachments:    c.sub.Attachments,
		ThinkingBudget: c.plan.Params.ThinkingBudget,
		GoogleSearch:   c.plan.Params.GoogleSearch,
	}

	out := &outcome{}
	for chunk, err := range c.o.exec.StreamChat(ctx, req) {
		if err != nil {
			return nil, err
		}
		c.chunks++
		out.text = chunk.Text
		if len(chunk.Sources) > 0 {
			out.sources = append([]model.Source(nil), chunk.Sources...)
		}
		sources := out.sources
		if uerr := c.o.conv.UpdateInProgress(c.msgID, func(m *model.Message) {
			m.Text = chunk.Text
			m.Sources = sources
		}); uerr != nil {
			return nil, uerr
		}
	}
	return out, nil
}

func (c *cycle) call(ctx context.Context, cred credential.Credential) (*outcome, error) {
	exec := c.o.exec
	primary, _ := router.PrimaryAttachment(c.sub.Attachments)

	var resp *backend.Response
	var err error
	switch c.plan.Operation {
	case router.OpGenerateImage:
		resp, err = exec.GenerateImage(ctx, backend.ImageRequest{
			Credential:  cred,
			Model:       c.plan.Model,
			Prompt:      c.sub.Text,
			Resolution:  c.plan.Params.Resolution,
			AspectRatio: c.plan.Params.AspectRatio,
		})
	case router.OpEditImage:
		image, _ := router.FirstImage(c.sub.Attachments)
		resp, err = exec.EditImage(ctx, backend.EditRequest{
			Credential: cred,
			Model:      c.plan.Model,
			Prompt:     c.sub.Text,
			Image:      image,
		})
	case router.OpAnalyzeMedia:
		resp, err = exec.AnalyzeMedia(ctx, backend.AnalyzeRequest{
			Credential: cred,
			Model:      c.plan.Model,
			Prompt:     c.sub.Text,
			Attachment: primary,
		})
	case router.OpTranscribeAudio:
		resp, err = exec.TranscribeAudio(ctx, backend.TranscribeRequest{
			Credential: cred,
			Model:      c.plan.Model,
			Audio:      primary,
		})
	default:
		return nil, fmt.Errorf("operation %q: %w", c.plan.Operation, backend.ErrUnsupported)
	}
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return &outcome{}, nil
	}
	if resp.Model != "" && resp.Model != c.plan.Model {
		c.logger.Debug("backend substituted model", "planned", c.plan.Model, "served", resp.Model)
		c.served = resp.Model
	}
	return &outcome{text: resp.Text, media: resp.Media, sources: resp.Sources}, nil
}

// =============================================================================
// SETTLE
// =============================================================================

// settle writes the final state of the placeholder, records the cycle and
// releases the busy flag.
func (c *cycle) settle(ctx context.Context, out *outcome, cycleErr error) *Result {
	state := StateSettledSuccess
	if cycleErr != nil {
		state = StateSettledError
	}

	var text string
	var media *model.Media
	var sources []model.Source
	if cycleErr == nil {
		if out == nil {
			out = &outcome{}
		}
		text = out.text
		if strings.TrimSpace(text) == "" {
			text = DefaultCaption(c.plan.Operation)
		}
		sources = out.sources
		media = c.storeMedia(ctx, out.media)
	}

	err := c.o.conv.Settle(c.msgID, func(m *model.Message) {
		m.Operation = c.plan.Operation.String()
		m.Model = c.model()
		if cycleErr != nil {
			m.Text = ErrorText(cycleErr)
			m.Failed = true
			return
		}
		m.Text = text
		m.Media = media
		m.Sources = sources
	})
	if err != nil {
		c.logger.Error("failed to settle message", "message", c.msgID, "error", err)
	}

	msg, _ := c.o.conv.Get(c.msgID)
	res := &Result{
		CycleID:   c.id,
		MessageID: c.msgID,
		Plan:      c.plan,
		State:     state,
		Retried:   c.retried,
		Message:   msg,
		Err:       cycleErr,
	}

	duration := time.Since(c.started)
	if cycleErr != nil {
		c.logger.Warn("cycle settled", "state", state.String(), "duration", duration, "error", cycleErr)
	} else {
		c.logger.Info("cycle settled", "state", state.String(), "duration", duration, "chunks", c.chunks)
	}
	c.record(ctx, res, media, duration)

	c.o.transition(c.id, state)
	c.release()
	return res
}

func (c *cycle) storeMedia(ctx context.Context, m *model.Media) *model.Media {
	if m == nil {
		return nil
	}
	media := *m
	store := c.o.media
	if store == nil || len(media.Data) == 0 {
		return &media
	}
	uri, err := store.Put(ctx, c.msgID, &media)
	if err != nil {
		c.logger.Warn("failed to store generated media", "error", err)
		return &media
	}
	media.URI = uri
	return &media
}

func (c *cycle) record(ctx context.Context, res *Result, media *model.Media, duration time.Duration) {
	if c.o.recorder == nil {
		return
	}
	entry := ledger.Entry{
		ID:             c.id,
		ConversationID: c.o.conv.ID,
		MessageID:      c.msgID,
		Mode:           c.mode.String(),
		Operation:      c.plan.Operation.String(),
		Model:          c.model(),
		Provider:       c.o.provider,
		Status:         ledger.StatusSuccess,
		Granted:        c.granted,
		Retried:        c.retried,
		Chunks:         c.chunks,
		Attachments:    len(c.sub.Attachments),
		StartedAt:      c.started,
		Duration:       duration,
	}
	if res.Err != nil {
		entry.Status = ledger.StatusError
		entry.Error = res.Err.Error()
	}
	if res.Message != nil {
		entry.Sources = len(res.Message.Sources)
	}
	if media != nil {
		entry.MediaURI = media.URI
	}
	if err := c.o.recorder.Record(context.WithoutCancel(ctx), entry); err != nil {
		c.logger.Warn("failed to record cycle", "error", err)
	}
}
