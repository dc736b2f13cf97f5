// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/prism/internal/model"
)

// isolate points the home directory at a temp dir and clears every
// environment override so tests never see the developer's real config.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)
	for _, k := range []string{
		"PRISM_PROVIDER", "GEMINI_API_KEY", "GOOGLE_API_KEY", "OPENAI_API_KEY",
		"OPENAI_BASE_URL", "PRISM_API_KEY", "PRISM_MODE", "PRISM_MEDIA_STORE",
		"PRISM_S3_ACCESS_KEY", "PRISM_S3_SECRET_KEY", "PRISM_LEDGER",
		"PRISM_SERVER_ADDR", "PRISM_SERVER_TOKEN", "PRISM_LOG_LEVEL",
	} {
		t.Setenv(k, "")
	}
	return home
}

func TestConfig_LoadForEditIgnoresEnv(t *testing.T) {
	home := isolate(t)
	t.Setenv("GEMINI_API_KEY", "from-env")

	path := filepath.Join(home, ".prism", "config.toml")
	cfg, err := LoadForEdit(path)
	require.NoError(t, err)
	assert.Empty(t, cfg.Gemini.APIKey)
	assert.Equal(t, filepath.Join(home, ".prism", "ledger.db"), cfg.Ledger.Path)

	require.NoError(t, cfg.Set("ui.theme", "light"))
	require.NoError(t, SaveToPath(cfg, path))

	again, err := LoadForEdit(path)
	require.NoError(t, err)
	assert.Equal(t, "light", again.UI.Theme)
	assert.Empty(t, again.Gemini.APIKey)

	edit, err := EditPath()
	require.NoError(t, err)
	assert.Equal(t, path, edit)
}

// TestConfig_Default tests that Default() returns a valid config with defaults.
func TestConfig_Default(t *testing.T) {
	isolate(t)
	cfg := Default()
	cfg.SetDefaults()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, ProviderGemini, cfg.Backend.Provider)
	assert.Equal(t, "gemini-3-pro-preview", cfg.Gemini.Models.Reasoning)
	assert.Equal(t, "gpt-image-1", cfg.OpenAI.Models.Image)
	assert.Equal(t, StoreFile, cfg.Media.Store)
	assert.True(t, cfg.Ledger.Enabled)
	assert.Equal(t, 20, cfg.Media.MaxAttachmentMB)

	mode, rc := cfg.InitialRequest()
	assert.Equal(t, model.ModeChat, mode)
	assert.Equal(t, model.DefaultRequestConfig(), rc)
}

// TestConfig_Validate tests configuration validation.
func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		field   string
		wantErr bool
	}{
		{"valid default", func(c *Config) {}, "", false},
		{"bad provider", func(c *Config) { c.Backend.Provider = "ollama" }, "backend.provider", true},
		{"bad mode", func(c *Config) { c.Chat.DefaultMode = "paint" }, "chat.default_mode", true},
		{"mode alias", func(c *Config) { c.Chat.DefaultMode = "edit" }, "", false},
		{"bad resolution", func(c *Config) { c.Chat.DefaultResolution = "8K" }, "chat.default_resolution", true},
		{"bad flag", func(c *Config) { c.Chat.DefaultFlag = "turbo" }, "chat.default_flag", true},
		{"bad store", func(c *Config) { c.Media.Store = "ftp" }, "media.store", true},
		{"s3 without bucket", func(c *Config) {
			c.Media.Store = StoreS3
			c.Media.S3.Endpoint = "localhost:9000"
		}, "media.s3.bucket", true},
		{"attachment limit too large", func(c *Config) { c.Media.MaxAttachmentMB = 500 }, "media.max_attachment_mb", true},
		{"bad base url scheme", func(c *Config) { c.OpenAI.BaseURL = "ftp://example.com" }, "openai.base_url", true},
		{"bad server addr", func(c *Config) { c.Server.Addr = "8787" }, "server.addr", true},
		{"bad theme", func(c *Config) { c.UI.Theme = "neon" }, "ui.theme", true},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.SetDefaults()
			tt.modify(cfg)

			err := cfg.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			var verrs ValidateErrors
			require.ErrorAs(t, err, &verrs)
			var fields []string
			for _, v := range verrs {
				fields = append(fields, v.Field)
			}
			assert.Contains(t, fields, tt.field)
		})
	}
}

func TestConfig_LoadFormats(t *testing.T) {
	isolate(t)
	dir := t.TempDir()

	files := map[string]string{
		"config.toml": "[backend]\nprovider = \"openai\"\n\n[openai.models]\nreasoning = \"o3\"\n",
		"config.yaml": "backend:\n  provider: openai\nopenai:\n  models:\n    reasoning: o3\n",
		"config.json": `{"backend":{"provider":"openai"},"openai":{"models":{"reasoning":"o3"}}}`,
	}
	for name, body := range files {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, os.WriteFile(path, []byte(body), 0644))

			cfg, err := LoadFromPath(path)
			require.NoError(t, err)
			assert.Equal(t, ProviderOpenAI, cfg.Backend.Provider)
			assert.Equal(t, "o3", cfg.Models().Reasoning)
			// Unset tiers fall back to the provider defaults.
			assert.Equal(t, "gpt-image-1", cfg.Models().Image)

			info, err := os.Stat(path)
			require.NoError(t, err)
			if os.PathSeparator == '/' {
				assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
			}
		})
	}
}

func TestConfig_LoadInvalid(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[ui]\ntheme = \"neon\"\n"), 0600))

	_, err := LoadFromPath(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ui.theme")
}

func TestConfig_LoadPrefersTOML(t *testing.T) {
	home := isolate(t)
	require.NoError(t, EnsureConfigDir())
	dir := filepath.Join(home, ".prism")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte(`{"ui":{"theme":"light"}}`), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte("[ui]\ntheme = \"auto\"\n"), 0600))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "auto", cfg.UI.Theme)
}

func TestConfig_EnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("GEMINI_API_KEY", "gem-key")
	t.Setenv("PRISM_PROVIDER", "OpenAI")
	t.Setenv("PRISM_API_KEY", "oa-key")
	t.Setenv("PRISM_LEDGER", "false")
	t.Setenv("PRISM_MODE", "analyze")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ProviderOpenAI, cfg.Backend.Provider)
	assert.Equal(t, "gem-key", cfg.Gemini.APIKey)
	assert.Equal(t, "oa-key", cfg.OpenAI.APIKey)
	assert.False(t, cfg.Ledger.Enabled)

	cred := cfg.Credential()
	assert.Equal(t, "openai", cred.Provider)
	assert.Equal(t, "oa-key", cred.APIKey)

	mode, _ := cfg.InitialRequest()
	assert.Equal(t, model.ModeAnalyze, mode)
}

func TestConfig_InitialRequestFlag(t *testing.T) {
	cfg := Default()
	cfg.Chat.DefaultFlag = "search"
	cfg.Chat.DefaultResolution = "4k"

	_, rc := cfg.InitialRequest()
	assert.True(t, rc.EnableSearch)
	assert.False(t, rc.EnableThinking)
	assert.Equal(t, model.Resolution4K, rc.Resolution)
}

// TestConfig_GetSet tests dot-notation access.
func TestConfig_GetSet(t *testing.T) {
	cfg := Default()

	v, err := cfg.Get("backend.provider")
	require.NoError(t, err)
	assert.Equal(t, "gemini", v)

	require.NoError(t, cfg.Set("gemini.models.flash_image", "custom-edit"))
	assert.Equal(t, "custom-edit", cfg.Gemini.Models.FlashImage)

	require.NoError(t, cfg.Set("media.max_attachment_mb", "5"))
	assert.Equal(t, 5, cfg.Media.MaxAttachmentMB)

	require.NoError(t, cfg.Set("ui.markdown", "false"))
	assert.False(t, cfg.UI.Markdown)

	require.NoError(t, cfg.Set("server.allowed_origins", "http://a, http://b"))
	assert.Equal(t, []string{"http://a", "http://b"}, cfg.Server.AllowedOrigins)

	_, err = cfg.Get("backend.nope")
	assert.Error(t, err)
	_, err = cfg.Get("version.sub")
	assert.Error(t, err)
	assert.Error(t, cfg.Set("media.max_attachment_mb", "lots"))
}

func TestConfig_AllKeysResolve(t *testing.T) {
	cfg := Default()
	for _, key := range GetAllKeys() {
		_, err := cfg.Get(key)
		assert.NoError(t, err, key)
	}
}

// TestConfig_Clone tests that Clone produces an independent copy.
func TestConfig_Clone(t *testing.T) {
	cfg := Default()
	cfg.Server.AllowedOrigins = []string{"http://localhost:3000"}

	clone := cfg.Clone()
	clone.Backend.Provider = ProviderOpenAI
	clone.Server.AllowedOrigins[0] = "changed"

	assert.Equal(t, ProviderGemini, cfg.Backend.Provider)
	assert.Equal(t, "http://localhost:3000", cfg.Server.AllowedOrigins[0])
}

func TestConfig_StringRedactsSecrets(t *testing.T) {
	cfg := Default()
	cfg.Gemini.APIKey = "AIza-secret"
	cfg.Media.S3.SecretKey = "s3-secret"
	cfg.Server.Token = "tok-secret"

	s := cfg.String()
	for _, secret := range []string{"AIza-secret", "s3-secret", "tok-secret"} {
		assert.NotContains(t, s, secret)
	}
	assert.Contains(t, s, "[REDACTED]")
	assert.Equal(t, "AIza-secret", cfg.Gemini.APIKey)
}

func TestConfig_SaveRoundTrip(t *testing.T) {
	isolate(t)
	dir := t.TempDir()

	for _, name := range []string{"out.toml", "out.yaml", "out.json"} {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			cfg.SetDefaults()
			cfg.Backend.Provider = ProviderOpenAI
			cfg.Chat.DefaultMode = "generate_image"

			path := filepath.Join(dir, "nested", name)
			require.NoError(t, SaveToPath(cfg, path))

			loaded, err := LoadFromPath(path)
			require.NoError(t, err)
			assert.Equal(t, ProviderOpenAI, loaded.Backend.Provider)
			assert.Equal(t, "generate_image", loaded.Chat.DefaultMode)
		})
	}

	data, err := os.ReadFile(filepath.Join(dir, "nested", "out.toml"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "# prism configuration file"))
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[ui]\ntheme = \"dark\"\n"), 0600))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan *Config, 4)
	err := WatchWithDebounce(ctx, path, 20*time.Millisecond, func(cfg *Config, err error) {
		if err == nil {
			got <- cfg
		}
	})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("[ui]\ntheme = \"light\"\n"), 0600))

	select {
	case cfg := <-got:
		assert.Equal(t, "light", cfg.UI.Theme)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after write")
	}
}

func TestWatch_ReportsInvalidConfig(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(""), 0600))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errs := make(chan error, 4)
	require.NoError(t, WatchWithDebounce(ctx, path, 20*time.Millisecond, func(cfg *Config, err error) {
		if err != nil {
			assert.Nil(t, cfg)
			errs <- err
		}
	}))

	require.NoError(t, os.WriteFile(path, []byte("[backend]\nprovider = \"nope\"\n"), 0600))

	select {
	case err := <-errs:
		assert.Contains(t, err.Error(), "backend.provider")
	case <-time.After(5 * time.Second):
		t.Fatal("no error after invalid write")
	}
}
