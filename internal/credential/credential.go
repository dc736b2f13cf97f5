// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package credential resolves the API credential for a backend call.
//
// Most operations use the key from process configuration. Operations that
// require a user grant (image generation) only proceed once the user has
// selected a key through the Host, the renderer-provided capability that
// can answer "is a key selected?" and run an interactive selection prompt.
package credential

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNotGranted is returned when an operation needs a user-granted key
	// and none is selected. The caller decides whether to prompt.
	ErrNotGranted = errors.New("no API key has been granted for this operation")

	// ErrAbandoned is returned when the user dismisses the selection prompt.
	ErrAbandoned = errors.New("API key selection was cancelled")

	// ErrNoHost is returned when a grant is needed but no host can prompt.
	ErrNoHost = errors.New("no interactive host is available to grant an API key")

	// ErrNoKey is returned when configuration carries no API key.
	ErrNoKey = errors.New("no API key configured")
)

// IsNotGranted reports whether err means a user grant is missing or was
// rejected by the backend.
func IsNotGranted(err error) bool {
	return errors.Is(err, ErrNotGranted)
}

// =============================================================================
// CREDENTIAL
// =============================================================================

// Credential is a resolved API credential.
type Credential struct {
	Provider string
	APIKey   string
	BaseURL  string

	// Granted is true when the key came from a user grant.
	Granted bool
}

// Fingerprint returns a short, non-reversible identifier for the key,
// suitable for logs. It is too short to tell keys apart reliably.
func (c Credential) Fingerprint() string {
	if c.APIKey == "" {
		return "none"
	}
	sum := sha256.Sum256([]byte(c.APIKey))
	return hex.EncodeToString(sum[:4])
}

// CacheKey identifies the key and endpoint by the full sha256 of the key.
// Executors cache one client per CacheKey.
func (c Credential) CacheKey(baseURL string) string {
	sum := sha256.Sum256([]byte(c.APIKey))
	return hex.EncodeToString(sum[:]) + "@" + baseURL
}

// String implements fmt.Stringer without exposing the key.
func (c Credential) String() string {
	return c.Provider + ":" + c.Fingerprint()
}

// =============================================================================
// HOST CAPABILITY
// =============================================================================

// Host is the renderer-provided key selection capability.
type Host interface {
	// SelectedKey returns the user-selected key. ok is false when the user
	// has not selected one. An empty key with ok set means "use the
	// configured key".
	SelectedKey(ctx context.Context) (key string, ok bool)

	// SelectKey runs the interactive selection prompt and blocks until the
	// user picks a key, cancels (ErrAbandoned), or ctx is done.
	SelectKey(ctx context.Context) error
}

// =============================================================================
// PROVIDER
// =============================================================================

// Config is the process-wide credential configuration.
type Config struct {
	Provider string
	APIKey   string
	BaseURL  string
}

// Provider resolves credentials from configuration and the host.
type Provider struct {
	mu   sync.RWMutex
	cfg  Config
	host Host
}

// NewProvider creates a provider. host may be nil when no interactive
// surface exists; grants then fail with ErrNoHost.
func NewProvider(cfg Config, host Host) *Provider {
	return &Provider{cfg: cfg, host: host}
}

// SetConfig replaces the configuration, e.g. after a config reload.
func (p *Provider) SetConfig(cfg Config) {
	p.mu.Lock()
	p.cfg = cfg
	p.mu.Unlock()
}

// SetHost replaces the host capability.
func (p *Provider) SetHost(h Host) {
	p.mu.Lock()
	p.host = h
	p.mu.Unlock()
}

// Host returns the current host, which may be nil.
func (p *Provider) Host() Host {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.host
}

// Resolve returns the credential for one backend call. It has no side
// effects: when requiresGrant is set and no key is selected it returns
// ErrNotGranted without prompting.
func (p *Provider) Resolve(ctx context.Context, requiresGrant bool) (Credential, error) {
	p.mu.RLock()
	cfg, host := p.cfg, p.host
	p.mu.RUnlock()

	cred := Credential{Provider: cfg.Provider, APIKey: cfg.APIKey, BaseURL: cfg.BaseURL}

	if !requiresGrant {
		if cred.APIKey == "" {
			return Credential{}, ErrNoKey
		}
		return cred, nil
	}

	if host == nil {
		return Credential{}, ErrNotGranted
	}
	key, ok := host.SelectedKey(ctx)
	if !ok {
		return Credential{}, ErrNotGranted
	}
	if key != "" {
		cred.APIKey = key
	}
	if cred.APIKey == "" {
		return Credential{}, ErrNotGranted
	}
	cred.Granted = true
	return cred, nil
}

// Grant runs the host's interactive selection prompt.
func (p *Provider) Grant(ctx context.Context) error {
	host := p.Host()
	if host == nil {
		return ErrNoHost
	}
	return host.SelectKey(ctx)
}
