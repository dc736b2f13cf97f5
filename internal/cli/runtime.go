// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// runtime.go - Builds the orchestrator and its collaborators from config.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/jeranaias/prism/internal/backend"
	"github.com/jeranaias/prism/internal/backend/gemini"
	"github.com/jeranaias/prism/internal/backend/openai"
	"github.com/jeranaias/prism/internal/config"
	"github.com/jeranaias/prism/internal/credential"
	"github.com/jeranaias/prism/internal/ledger"
	"github.com/jeranaias/prism/internal/logging"
	"github.com/jeranaias/prism/internal/mediastore"
	"github.com/jeranaias/prism/internal/model"
	"github.com/jeranaias/prism/internal/orchestrator"
	"github.com/jeranaias/prism/internal/router"
)

// Runtime holds everything a command needs to run requests.
type Runtime struct {
	ConfigPath   string
	Logger       *slog.Logger
	Orchestrator *orchestrator.Orchestrator
	Credentials  *credential.Provider
	Host         *credential.MemoryHost
	Ledger       *ledger.Ledger
	Store        mediastore.Store

	provider string

	mu      sync.RWMutex
	cfg     *config.Config
	closers []io.Closer
}

// RuntimeOptions adjusts how a Runtime is built.
type RuntimeOptions struct {
	// Executor replaces the provider backend chosen from config.
	Executor backend.Executor

	// LogPath sends logs to a file, for commands that own the terminal.
	LogPath string
	// LogWriter receives logs when LogPath is empty. Defaults to stderr.
	LogWriter io.Writer

	// Prompt asks the user for a key when an operation needs one.
	Prompt credential.PromptFunc

	// NoLedger skips opening the ledger.
	NoLedger bool
}

// LoadConfig loads the config named by args, or the default search path,
// and applies the global flag overrides.
func LoadConfig(args Args) (*config.Config, string, error) {
	path := args.ConfigPath
	if path == "" {
		path = config.FindConfigFile()
	}

	var cfg *config.Config
	var err error
	if path != "" {
		cfg, err = config.LoadFromPath(expandPath(path))
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, path, err
	}

	if args.Provider != "" {
		cfg.Backend.Provider = strings.ToLower(args.Provider)
	}
	if args.LogLevel != "" {
		cfg.Log.Level = args.LogLevel
	}
	if args.Theme != "" {
		cfg.UI.Theme = args.Theme
	}
	if err := cfg.Validate(); err != nil {
		return nil, path, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, path, nil
}

// NewRuntime wires logging, the backend, media storage, the ledger and
// credentials into an orchestrator. Close releases what it opened.
func NewRuntime(cfg *config.Config, configPath string, opts RuntimeOptions) (*Runtime, error) {
	rt := &Runtime{ConfigPath: configPath, cfg: cfg, provider: cfg.Backend.Provider}

	logger, closer, err := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Path:   opts.LogPath,
		Writer: opts.LogWriter,
	})
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}
	rt.Logger = logger
	rt.closers = append(rt.closers, closer)

	exec := opts.Executor
	if exec == nil {
		exec = NewExecutor(cfg, logger)
	}

	store, err := NewMediaStore(cfg)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("media store: %w", err)
	}
	rt.Store = store

	if cfg.Ledger.Enabled && !opts.NoLedger {
		l, err := ledger.Open(expandPath(cfg.Ledger.Path))
		if err != nil {
			// The ledger is bookkeeping; requests run without it.
			logger.Warn("ledger unavailable", "path", cfg.Ledger.Path, "error", err)
		} else {
			rt.Ledger = l
			rt.closers = append(rt.closers, l)
		}
	}

	rt.Host = credential.NewMemoryHost(opts.Prompt)
	rt.Credentials = credential.NewProvider(cfg.Credential(), rt.Host)

	mode, rc := cfg.InitialRequest()
	orchOpts := []orchestrator.Option{
		orchestrator.WithLogger(logger),
		orchestrator.WithProvider(cfg.Backend.Provider),
		orchestrator.WithMode(mode),
		orchestrator.WithRequestConfig(rc),
	}
	if store != nil {
		orchOpts = append(orchOpts, orchestrator.WithMediaStore(store))
	}
	if rt.Ledger != nil {
		orchOpts = append(orchOpts, orchestrator.WithRecorder(rt.Ledger))
	}
	rt.Orchestrator = orchestrator.New(
		model.NewConversation(),
		router.New(cfg.Models()),
		rt.Credentials,
		exec,
		orchOpts...,
	)

	logger.Debug("runtime ready",
		"provider", cfg.Backend.Provider,
		"mode", mode,
		"media_store", cfg.Media.Store,
		"ledger", rt.Ledger != nil,
		"config", configPath,
	)
	return rt, nil
}

// NewExecutor returns the backend for the configured provider.
func NewExecutor(cfg *config.Config, logger *slog.Logger) backend.Executor {
	if cfg.Backend.Provider == config.ProviderOpenAI {
		return openai.New().
			WithLogger(logger).
			WithTranscribeModel(cfg.OpenAI.TranscribeModel).
			WithAudioModel(cfg.OpenAI.AudioModel)
	}
	return gemini.New().WithLogger(logger)
}

// NewMediaStore returns the configured media store, or nil for "none".
func NewMediaStore(cfg *config.Config) (mediastore.Store, error) {
	switch cfg.Media.Store {
	case config.StoreFile:
		return mediastore.NewFileStore(expandPath(cfg.Media.Dir))
	case config.StoreS3:
		s3 := cfg.Media.S3
		return mediastore.NewS3Store(mediastore.S3Config{
			Endpoint:  s3.Endpoint,
			Bucket:    s3.Bucket,
			Region:    s3.Region,
			AccessKey: s3.AccessKey,
			SecretKey: s3.SecretKey,
			Prefix:    s3.Prefix,
			UseSSL:    s3.UseSSL,
		})
	default:
		return nil, nil
	}
}

// Config returns the active configuration.
func (rt *Runtime) Config() *config.Config {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.cfg
}

// Apply adopts a reloaded configuration. Models and credentials change in
// place. The provider, media store and ledger are fixed for the life of the
// process, so a reload that names another provider keeps the current one.
func (rt *Runtime) Apply(cfg *config.Config) {
	if cfg.Backend.Provider != rt.provider {
		rt.Logger.Warn("provider change needs a restart; keeping current provider",
			"current", rt.provider, "configured", cfg.Backend.Provider)
		cfg.Backend.Provider = rt.provider
	}

	rt.mu.Lock()
	rt.cfg = cfg
	rt.mu.Unlock()

	rt.Orchestrator.SetModels(cfg.Models())
	rt.Credentials.SetConfig(cfg.Credential())
	rt.Logger.Info("config reloaded", "path", rt.ConfigPath)
}

// Watch reloads the config file while ctx is live. It does nothing when no
// config file is in use.
func (rt *Runtime) Watch(ctx context.Context) error {
	if rt.ConfigPath == "" {
		return nil
	}
	return config.Watch(ctx, expandPath(rt.ConfigPath), func(cfg *config.Config, err error) {
		if err != nil {
			rt.Logger.Warn("config reload rejected; keeping previous config", "error", err)
			return
		}
		rt.Apply(cfg)
	})
}

// Close releases the ledger and log file.
func (rt *Runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}
