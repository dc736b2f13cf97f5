// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package orchestrator drives request cycles: one user submission routed to
// one backend operation whose result is reconciled into the conversation.
//
// A cycle moves through explicit states:
//
//	Idle → Dispatched → [AwaitingCredential → Retrying] →
//	    (Streaming | AwaitingResponse) → SettledSuccess | SettledError
//
// Only one cycle runs at a time. Every failure is caught and written into
// the placeholder message, and the busy flag is always released when the
// cycle settles.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/jeranaias/prism/internal/backend"
	"github.com/jeranaias/prism/internal/credential"
	"github.com/jeranaias/prism/internal/ledger"
	"github.com/jeranaias/prism/internal/mediastore"
	"github.com/jeranaias/prism/internal/model"
	"github.com/jeranaias/prism/internal/router"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrBusy is returned when a cycle is already in flight.
	ErrBusy = errors.New("a request is already in progress")

	// ErrEmpty is returned for a submission with no text and no attachments.
	ErrEmpty = errors.New("nothing to send")
)

// PreconditionError is a request that cannot be dispatched as given, such as
// an edit without an image.
type PreconditionError struct {
	Message string
}

// Error implements the error interface.
func (e *PreconditionError) Error() string {
	return e.Message
}

// Recorder receives the metadata of every settled cycle.
type Recorder interface {
	Record(ctx context.Context, e ledger.Entry) error
}

// =============================================================================
// ORCHESTRATOR
// =============================================================================

// Orchestrator owns the conversation and runs cycles against it.
type Orchestrator struct {
	conv   *model.Conversation
	router *router.Router
	creds  *credential.Provider
	exec   backend.Executor

	provider string
	media    mediastore.Store
	recorder Recorder
	logger   *slog.Logger

	busy atomic.Bool

	mu       sync.RWMutex
	mode     model.Mode
	cfg      model.RequestConfig
	state    State
	nextObs  int
	stateObs []stateObserver
}

type stateObserver struct {
	id int
	fn func(Transition)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMediaStore persists generated media and sets its URI on the message.
func WithMediaStore(s mediastore.Store) Option {
	return func(o *Orchestrator) { o.media = s }
}

// WithRecorder records every settled cycle.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithProvider names the backend provider in ledger entries.
func WithProvider(name string) Option {
	return func(o *Orchestrator) { o.provider = name }
}

// WithMode sets the initial interaction mode.
func WithMode(m model.Mode) Option {
	return func(o *Orchestrator) {
		if m.Valid() {
			o.mode = m
		}
	}
}

// WithRequestConfig sets the initial request configuration.
func WithRequestConfig(cfg model.RequestConfig) Option {
	return func(o *Orchestrator) { o.cfg = cfg }
}

// New creates an orchestrator. conv may be nil, in which case a fresh
// conversation is created.
func New(conv *model.Conversation, r *router.Router, creds *credential.Provider, exec backend.Executor, opts ...Option) *Orchestrator {
	if conv == nil {
		conv = model.NewConversation()
	}
	o := &Orchestrator{
		conv:   conv,
		router: r,
		creds:  creds,
		exec:   exec,
		logger: slog.Default(),
		mode:   model.ModeChat,
		cfg:    model.DefaultRequestConfig(),
		state:  StateIdle,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Conversation returns the conversation store.
func (o *Orchestrator) Conversation() *model.Conversation {
	return o.conv
}

// Credentials returns the credential provider.
func (o *Orchestrator) Credentials() *credential.Provider {
	return o.creds
}

// MediaStore returns the configured media store, or nil.
func (o *Orchestrator) MediaStore() mediastore.Store {
	return o.media
}

// Busy reports whether a cycle is in flight.
func (o *Orchestrator) Busy() bool {
	return o.busy.Load()
}

// State returns the current cycle state.
func (o *Orchestrator) State() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

// OnState registers an observer for state transitions and returns a function
// that removes it. Observers run on the cycle's goroutine.
func (o *Orchestrator) OnState(fn func(Transition)) (unsubscribe func()) {
	o.mu.Lock()
	id := o.nextObs
	o.nextObs++
	o.stateObs = append(o.stateObs, stateObserver{id: id, fn: fn})
	o.mu.Unlock()

	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		for i, s := range o.stateObs {
			if s.id == id {
				o.stateObs = append(o.stateObs[:i:i], o.stateObs[i+1:]...)
				return
			}
		}
	}
}

func (o *Orchestrator) transition(cycle string, to State) {
	o.mu.Lock()
	from := o.state
	o.state = to
	observers := append([]stateObserver(nil), o.stateObs...)
	o.mu.Unlock()

	if from == to {
		return
	}
	o.logger.Debug("cycle state", "cycle", cycle, "from", from.String(), "to", to.String())
	t := Transition{Cycle: cycle, From: from, To: to}
	for _, s := range observers {
		s.fn(t)
	}
}

// =============================================================================
// MODE AND CONFIGURATION
// =============================================================================

// Mode returns the active interaction mode.
func (o *Orchestrator) Mode() model.Mode {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.mode
}

// SetMode switches the interaction mode. Switching clears the conversation;
// it is rejected while a cycle is in flight.
func (o *Orchestrator) SetMode(m model.Mode) error {
	if !m.Valid() {
		return fmt.Errorf("unknown mode %q", m)
	}
	if !o.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer o.busy.Store(false)

	o.mu.Lock()
	changed := o.mode != m
	o.mode = m
	o.mu.Unlock()

	if changed {
		o.conv.Clear()
		o.logger.Info("mode changed", "mode", m.String())
	}
	return nil
}

// Clear empties the conversation. It is rejected while a cycle is in flight.
func (o *Orchestrator) Clear() error {
	if !o.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer o.busy.Store(false)
	o.conv.Clear()
	return nil
}

// Config returns the current request configuration.
func (o *Orchestrator) Config() model.RequestConfig {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.cfg
}

// Toggle flips a chat feature flag. Turning a flag on turns the others off.
func (o *Orchestrator) Toggle(f model.Flag) model.RequestConfig {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cfg = o.cfg.Toggle(f)
	return o.cfg
}

// SetResolution sets the image resolution tier.
func (o *Orchestrator) SetResolution(r model.Resolution) error {
	if _, err := model.ParseResolution(string(r)); err != nil {
		return err
	}
	o.mu.Lock()
	o.cfg.Resolution = r
	o.mu.Unlock()
	return nil
}

// Models returns the active model table.
func (o *Orchestrator) Models() router.Models {
	return o.router.Models()
}

// SetModels replaces the model table. Cycles already in flight keep the
// plan they were routed with.
func (o *Orchestrator) SetModels(m router.Models) {
	o.router.SetModels(m)
}

// Preview returns the plan a submission would be routed to under the
// current mode and configuration. It has no side effects.
func (o *Orchestrator) Preview(text string, attachments []model.Attachment) router.Plan {
	o.mu.RLock()
	mode, cfg := o.mode, o.cfg
	o.mu.RUnlock()
	return o.router.Route(mode, cfg, attachments, text)
}

func (o *Orchestrator) settings() (model.Mode, model.RequestConfig) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.mode, o.cfg
}
