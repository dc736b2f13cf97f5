// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides unified configuration loading and management for prism.
//
// Supports TOML, YAML and JSON configuration formats, with sensible defaults,
// environment variable overrides, and validation.
//
// Configuration file locations (in order of precedence):
//   - ~/.prism/config.toml
//   - ~/.prism/config.yaml (or .yml)
//   - ~/.prism/config.json
//   - Built-in defaults
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/jeranaias/prism/internal/credential"
	"github.com/jeranaias/prism/internal/media"
	"github.com/jeranaias/prism/internal/model"
	"github.com/jeranaias/prism/internal/router"
	"github.com/jeranaias/prism/internal/util"
)

// Provider names.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Media store kinds.
const (
	StoreNone = "none"
	StoreFile = "file"
	StoreS3   = "s3"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete prism configuration.
type Config struct {
	Version string `toml:"version" yaml:"version" json:"version"`

	// Backend selects the provider used for every operation.
	Backend BackendConfig `toml:"backend" yaml:"backend" json:"backend"`

	Gemini GeminiConfig `toml:"gemini" yaml:"gemini" json:"gemini"`
	OpenAI OpenAIConfig `toml:"openai" yaml:"openai" json:"openai"`

	Chat   ChatConfig   `toml:"chat" yaml:"chat" json:"chat"`
	Media  MediaConfig  `toml:"media" yaml:"media" json:"media"`
	Ledger LedgerConfig `toml:"ledger" yaml:"ledger" json:"ledger"`
	Server ServerConfig `toml:"server" yaml:"server" json:"server"`
	UI     UIConfig     `toml:"ui" yaml:"ui" json:"ui"`
	Log    LogConfig    `toml:"log" yaml:"log" json:"log"`
}

// BackendConfig selects the provider.
type BackendConfig struct {
	// Provider is "gemini" or "openai"
	Provider string `toml:"provider" yaml:"provider" json:"provider"`
}

// GeminiConfig configures the Gemini API.
type GeminiConfig struct {
	APIKey  string        `toml:"api_key" yaml:"api_key" json:"api_key"`
	BaseURL string        `toml:"base_url" yaml:"base_url" json:"base_url"`
	Models  router.Models `toml:"models" yaml:"models" json:"models"`
}

// OpenAIConfig configures an OpenAI-compatible API.
type OpenAIConfig struct {
	APIKey  string        `toml:"api_key" yaml:"api_key" json:"api_key"`
	BaseURL string        `toml:"base_url" yaml:"base_url" json:"base_url"`
	Models  router.Models `toml:"models" yaml:"models" json:"models"`
	// TranscribeModel is used by the audio transcription endpoint
	TranscribeModel string `toml:"transcribe_model" yaml:"transcribe_model" json:"transcribe_model"`
	// AudioModel is used for chat-based audio analysis
	AudioModel string `toml:"audio_model" yaml:"audio_model" json:"audio_model"`
}

// ChatConfig holds the initial interaction settings.
type ChatConfig struct {
	// DefaultMode is chat, generate_image, edit_image, or analyze
	DefaultMode string `toml:"default_mode" yaml:"default_mode" json:"default_mode"`
	// DefaultResolution is 1K, 2K, or 4K
	DefaultResolution string `toml:"default_resolution" yaml:"default_resolution" json:"default_resolution"`
	// DefaultFlag is empty, thinking, search, or fast
	DefaultFlag string `toml:"default_flag" yaml:"default_flag" json:"default_flag"`
}

// MediaConfig configures where generated media is kept.
type MediaConfig struct {
	// Store is "none", "file", or "s3"
	Store string `toml:"store" yaml:"store" json:"store"`
	// Dir is the file store directory (default ~/.prism/media)
	Dir string `toml:"dir" yaml:"dir" json:"dir"`
	// MaxAttachmentMB limits the size of attached files
	MaxAttachmentMB int      `toml:"max_attachment_mb" yaml:"max_attachment_mb" json:"max_attachment_mb"`
	S3              S3Config `toml:"s3" yaml:"s3" json:"s3"`
}

// S3Config configures an S3-compatible bucket.
type S3Config struct {
	Endpoint  string `toml:"endpoint" yaml:"endpoint" json:"endpoint"`
	Bucket    string `toml:"bucket" yaml:"bucket" json:"bucket"`
	Region    string `toml:"region" yaml:"region" json:"region"`
	AccessKey string `toml:"access_key" yaml:"access_key" json:"access_key"`
	SecretKey string `toml:"secret_key" yaml:"secret_key" json:"secret_key"`
	Prefix    string `toml:"prefix" yaml:"prefix" json:"prefix"`
	UseSSL    bool   `toml:"use_ssl" yaml:"use_ssl" json:"use_ssl"`
}

// LedgerConfig configures the cycle ledger.
type LedgerConfig struct {
	Enabled bool   `toml:"enabled" yaml:"enabled" json:"enabled"`
	Path    string `toml:"path" yaml:"path" json:"path"`
}

// ServerConfig configures the local HTTP API.
type ServerConfig struct {
	Addr string `toml:"addr" yaml:"addr" json:"addr"`
	// Token, when set, is required as a bearer token on every request
	Token string `toml:"token" yaml:"token" json:"token"`
	// AllowedOrigins lists CORS origins for browser front-ends
	AllowedOrigins []string `toml:"allowed_origins" yaml:"allowed_origins" json:"allowed_origins"`
}

// UIConfig contains UI configuration.
type UIConfig struct {
	// Theme is the UI theme: "dark", "light", "auto"
	Theme string `toml:"theme" yaml:"theme" json:"theme"`
	// Markdown renders model responses as markdown
	Markdown bool `toml:"markdown" yaml:"markdown" json:"markdown"`
	// ShowSources lists grounding citations under responses
	ShowSources bool `toml:"show_sources" yaml:"show_sources" json:"show_sources"`
	// ShowPlan displays the routed model in the status bar
	ShowPlan bool `toml:"show_plan" yaml:"show_plan" json:"show_plan"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	// Level is debug, info, warn, or error
	Level string `toml:"level" yaml:"level" json:"level"`
	// Format is text or json
	Format string `toml:"format" yaml:"format" json:"format"`
	// Path is the log file used while a full-screen UI owns the terminal
	Path string `toml:"path" yaml:"path" json:"path"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Version: "1",

		Backend: BackendConfig{Provider: ProviderGemini},

		Gemini: GeminiConfig{Models: router.DefaultGeminiModels()},

		OpenAI: OpenAIConfig{
			Models:          router.DefaultOpenAIModels(),
			TranscribeModel: "gpt-4o-transcribe",
			AudioModel:      "gpt-4o-audio-preview",
		},

		Chat: ChatConfig{
			DefaultMode:       string(model.ModeChat),
			DefaultResolution: string(model.Resolution1K),
		},

		Media: MediaConfig{
			Store:           StoreFile,
			MaxAttachmentMB: media.MaxInlineSize / (1024 * 1024),
		},

		Ledger: LedgerConfig{Enabled: true},

		Server: ServerConfig{Addr: "127.0.0.1:8787"},

		UI: UIConfig{
			Theme:       "dark",
			Markdown:    true,
			ShowSources: true,
			ShowPlan:    true,
		},

		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the prism configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".prism"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// CandidatePaths returns the config files Load looks for, in order.
func CandidatePaths() []string {
	dir, err := ConfigDir()
	if err != nil {
		return nil
	}
	return []string{
		filepath.Join(dir, "config.toml"),
		filepath.Join(dir, "config.yaml"),
		filepath.Join(dir, "config.yml"),
		filepath.Join(dir, "config.json"),
	}
}

// FindConfigFile returns the first existing config file, or "".
func FindConfigFile() string {
	for _, p := range CandidatePaths() {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

// ensureSecurePermissions checks and fixes permissions on config files.
// Config files hold API keys and should be 0600.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	mode := info.Mode().Perm()
	if mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the first config file found, falling back
// to defaults. Environment overrides are applied last.
func Load() (*Config, error) {
	if path := FindConfigFile(); path != "" {
		return LoadFromPath(path)
	}
	return finish(Default())
}

// LoadFromPath loads configuration from a specific file path with full
// validation. The format is chosen by extension; unknown extensions are
// read as TOML.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	if err := decodeFile(cfg, path); err != nil {
		return nil, err
	}
	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func decodeFile(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		// Permissions might not be fixable on all systems
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to decode JSON config %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to decode YAML config %s: %w", path, err)
		}
	default:
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return fmt.Errorf("failed to decode TOML config %s: %w", path, err)
		}
	}
	return nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveToPath(cfg, path)
}

// SaveToPath writes the configuration in the format implied by the path's
// extension. Files are written atomically with 0600 permissions.
func SaveToPath(cfg *Config, path string) error {
	var data []byte
	var err error

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		data, err = json.MarshalIndent(cfg, "", "  ")
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cfg)
	default:
		var sb strings.Builder
		sb.WriteString("# prism configuration file\n")
		sb.WriteString("# API keys may also come from GEMINI_API_KEY / OPENAI_API_KEY\n\n")
		err = toml.NewEncoder(&sb).Encode(cfg)
		data = []byte(sb.String())
	}
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	// Backend
	switch c.Backend.Provider {
	case ProviderGemini, ProviderOpenAI:
	default:
		add("backend.provider", "invalid provider '%s', must be one of: gemini, openai", c.Backend.Provider)
	}
	if err := validateBaseURL(c.Gemini.BaseURL); err != nil {
		add("gemini.base_url", "%v", err)
	}
	if err := validateBaseURL(c.OpenAI.BaseURL); err != nil {
		add("openai.base_url", "%v", err)
	}

	// Chat
	if _, err := model.ParseMode(c.Chat.DefaultMode); err != nil {
		add("chat.default_mode", "%v", err)
	}
	if _, err := model.ParseResolution(c.Chat.DefaultResolution); err != nil {
		add("chat.default_resolution", "%v", err)
	}
	if c.Chat.DefaultFlag != "" {
		if _, err := model.ParseFlag(c.Chat.DefaultFlag); err != nil {
			add("chat.default_flag", "%v", err)
		}
	}

	// Media
	switch c.Media.Store {
	case StoreNone, StoreFile:
	case StoreS3:
		if c.Media.S3.Endpoint == "" {
			add("media.s3.endpoint", "required when media.store is s3")
		}
		if c.Media.S3.Bucket == "" {
			add("media.s3.bucket", "required when media.store is s3")
		}
	default:
		add("media.store", "invalid store '%s', must be one of: none, file, s3", c.Media.Store)
	}
	maxMB := media.MaxInlineSize / (1024 * 1024)
	if c.Media.MaxAttachmentMB < 1 || c.Media.MaxAttachmentMB > maxMB {
		add("media.max_attachment_mb", "must be between 1 and %d", maxMB)
	}

	// Server
	if _, _, err := net.SplitHostPort(c.Server.Addr); err != nil {
		add("server.addr", "invalid listen address '%s': %v", c.Server.Addr, err)
	}

	// UI
	switch c.UI.Theme {
	case "dark", "light", "auto":
	default:
		add("ui.theme", "invalid theme '%s', must be one of: dark, light, auto", c.UI.Theme)
	}

	// Log
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		add("log.level", "invalid level '%s', must be one of: debug, info, warn, error", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		add("log.format", "invalid format '%s', must be one of: text, json", c.Log.Format)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateBaseURL(raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL must use http or https, got '%s'", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("URL has no host")
	}
	return nil
}

// SetDefaults fills in missing values with defaults.
func (c *Config) SetDefaults() {
	d := Default()

	if c.Version == "" {
		c.Version = d.Version
	}
	if c.Backend.Provider == "" {
		c.Backend.Provider = d.Backend.Provider
	}
	c.Backend.Provider = strings.ToLower(c.Backend.Provider)

	c.Gemini.Models = c.Gemini.Models.Merge(d.Gemini.Models)
	c.OpenAI.Models = c.OpenAI.Models.Merge(d.OpenAI.Models)
	if c.OpenAI.TranscribeModel == "" {
		c.OpenAI.TranscribeModel = d.OpenAI.TranscribeModel
	}
	if c.OpenAI.AudioModel == "" {
		c.OpenAI.AudioModel = d.OpenAI.AudioModel
	}

	if c.Chat.DefaultMode == "" {
		c.Chat.DefaultMode = d.Chat.DefaultMode
	}
	if c.Chat.DefaultResolution == "" {
		c.Chat.DefaultResolution = d.Chat.DefaultResolution
	}

	if c.Media.Store == "" {
		c.Media.Store = d.Media.Store
	}
	if c.Media.MaxAttachmentMB == 0 {
		c.Media.MaxAttachmentMB = d.Media.MaxAttachmentMB
	}
	if c.Media.Dir == "" {
		if dir, err := ConfigDir(); err == nil {
			c.Media.Dir = filepath.Join(dir, "media")
		}
	}
	if c.Ledger.Path == "" {
		if dir, err := ConfigDir(); err == nil {
			c.Ledger.Path = filepath.Join(dir, "ledger.db")
		}
	}

	if c.Server.Addr == "" {
		c.Server.Addr = d.Server.Addr
	}
	if c.UI.Theme == "" {
		c.UI.Theme = d.UI.Theme
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
	if c.Log.Path == "" {
		if dir, err := ConfigDir(); err == nil {
			c.Log.Path = filepath.Join(dir, "prism.log")
		}
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - PRISM_PROVIDER: overrides backend.provider
//   - GEMINI_API_KEY, GOOGLE_API_KEY: override gemini.api_key
//   - OPENAI_API_KEY: overrides openai.api_key
//   - OPENAI_BASE_URL: overrides openai.base_url
//   - PRISM_API_KEY: overrides the key of the selected provider
//   - PRISM_MODE: overrides chat.default_mode
//   - PRISM_MEDIA_STORE: overrides media.store
//   - PRISM_S3_ACCESS_KEY, PRISM_S3_SECRET_KEY: override media.s3 credentials
//   - PRISM_LEDGER: set to "0" or "false" to disable the ledger
//   - PRISM_SERVER_ADDR, PRISM_SERVER_TOKEN: override server settings
//   - PRISM_LOG_LEVEL: overrides log.level
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("PRISM_PROVIDER"); v != "" {
		c.Backend.Provider = strings.ToLower(v)
	}

	if v := os.Getenv("GOOGLE_API_KEY"); v != "" {
		c.Gemini.APIKey = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.Gemini.APIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.OpenAI.APIKey = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		c.OpenAI.BaseURL = v
	}
	if v := os.Getenv("PRISM_API_KEY"); v != "" {
		if c.Backend.Provider == ProviderOpenAI {
			c.OpenAI.APIKey = v
		} else {
			c.Gemini.APIKey = v
		}
	}

	if v := os.Getenv("PRISM_MODE"); v != "" {
		c.Chat.DefaultMode = v
	}
	if v := os.Getenv("PRISM_MEDIA_STORE"); v != "" {
		c.Media.Store = strings.ToLower(v)
	}
	if v := os.Getenv("PRISM_S3_ACCESS_KEY"); v != "" {
		c.Media.S3.AccessKey = v
	}
	if v := os.Getenv("PRISM_S3_SECRET_KEY"); v != "" {
		c.Media.S3.SecretKey = v
	}
	if v := os.Getenv("PRISM_LEDGER"); v != "" {
		c.Ledger.Enabled = envBool(v)
	}
	if v := os.Getenv("PRISM_SERVER_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("PRISM_SERVER_TOKEN"); v != "" {
		c.Server.Token = v
	}
	if v := os.Getenv("PRISM_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

func envBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

// =============================================================================
// PROVIDER HELPERS
// =============================================================================

// Models returns the tier table of the selected provider.
func (c *Config) Models() router.Models {
	if c.Backend.Provider == ProviderOpenAI {
		return c.OpenAI.Models
	}
	return c.Gemini.Models
}

// Credential returns the credential configuration of the selected provider.
func (c *Config) Credential() credential.Config {
	if c.Backend.Provider == ProviderOpenAI {
		return credential.Config{Provider: ProviderOpenAI, APIKey: c.OpenAI.APIKey, BaseURL: c.OpenAI.BaseURL}
	}
	return credential.Config{Provider: ProviderGemini, APIKey: c.Gemini.APIKey, BaseURL: c.Gemini.BaseURL}
}

// InitialRequest returns the mode and request configuration a session
// starts with.
func (c *Config) InitialRequest() (model.Mode, model.RequestConfig) {
	mode, err := model.ParseMode(c.Chat.DefaultMode)
	if err != nil {
		mode = model.ModeChat
	}
	rc := model.DefaultRequestConfig()
	if r, err := model.ParseResolution(c.Chat.DefaultResolution); err == nil {
		rc.Resolution = r
	}
	if f, err := model.ParseFlag(c.Chat.DefaultFlag); err == nil {
		rc = rc.Toggle(f)
	}
	return mode, rc
}

// MaxAttachmentBytes returns the attachment size limit in bytes.
func (c *Config) MaxAttachmentBytes() int64 {
	return int64(c.Media.MaxAttachmentMB) * 1024 * 1024
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g., "backend.provider").
func (c *Config) Get(key string) (interface{}, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set sets a configuration value using dot notation (e.g., "ui.theme").
func (c *Config) Set(key string, value interface{}) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

func (c *Config) lookup(key string) (reflect.Value, error) {
	if key == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		fieldName := normalizeFieldName(part)
		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})
		if !field.IsValid() {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

// normalizeFieldName converts a snake_case or kebab-case name to its Go field equivalent.
func normalizeFieldName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-'
	})

	var result strings.Builder
	for _, part := range parts {
		if len(part) > 0 {
			result.WriteString(strings.ToUpper(string(part[0])))
			result.WriteString(strings.ToLower(part[1:]))
		}
	}
	return result.String()
}

// setFieldValue sets a reflect.Value from an interface{} value with type conversion.
func setFieldValue(field reflect.Value, value interface{}) error {
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Bool:
			field.SetBool(envBool(strVal))
			return nil
		case reflect.Slice:
			if field.Type().Elem().Kind() == reflect.String {
				var items []string
				for _, s := range strings.Split(strVal, ",") {
					if s = strings.TrimSpace(s); s != "" {
						items = append(items, s)
					}
				}
				field.Set(reflect.ValueOf(items))
				return nil
			}
		}
	}

	val := reflect.ValueOf(value)
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// GetAllKeys returns all configuration keys in dot notation.
func GetAllKeys() []string {
	return []string{
		"version",
		"backend.provider",
		"gemini.api_key",
		"gemini.base_url",
		"gemini.models.fast",
		"gemini.models.reasoning",
		"gemini.models.flash",
		"gemini.models.image",
		"gemini.models.flash_image",
		"openai.api_key",
		"openai.base_url",
		"openai.models.fast",
		"openai.models.reasoning",
		"openai.models.flash",
		"openai.models.image",
		"openai.models.flash_image",
		"openai.transcribe_model",
		"openai.audio_model",
		"chat.default_mode",
		"chat.default_resolution",
		"chat.default_flag",
		"media.store",
		"media.dir",
		"media.max_attachment_mb",
		"media.s3.endpoint",
		"media.s3.bucket",
		"media.s3.region",
		"media.s3.access_key",
		"media.s3.secret_key",
		"media.s3.prefix",
		"media.s3.use_ssl",
		"ledger.enabled",
		"ledger.path",
		"server.addr",
		"server.token",
		"server.allowed_origins",
		"ui.theme",
		"ui.markdown",
		"ui.show_sources",
		"ui.show_plan",
		"log.level",
		"log.format",
		"log.path",
	}
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	if c.Server.AllowedOrigins != nil {
		clone.Server.AllowedOrigins = append([]string(nil), c.Server.AllowedOrigins...)
	}
	return &clone
}

// Redacted returns a copy with secrets replaced.
func (c *Config) Redacted() *Config {
	safe := c.Clone()
	for _, s := range []*string{
		&safe.Gemini.APIKey,
		&safe.OpenAI.APIKey,
		&safe.Media.S3.SecretKey,
		&safe.Server.Token,
	} {
		if *s != "" {
			*s = "[REDACTED]"
		}
	}
	return safe
}

// String returns a string representation of the config for debugging.
// Secrets are redacted.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c.Redacted(), "", "  ")
	return string(data)
}

// =============================================================================
// EDITING
// =============================================================================

// LoadForEdit reads path over the defaults without environment overrides,
// so a config saved afterwards holds only what the file and the caller set.
// A missing file yields the defaults.
func LoadForEdit(path string) (*Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); err == nil {
		if err := decodeFile(cfg, path); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg.SetDefaults()
	return cfg, nil
}

// EditPath returns the file config edits should go to: the first existing
// config file, or the default TOML path.
func EditPath() (string, error) {
	if path := FindConfigFile(); path != "" {
		return path, nil
	}
	return ConfigPathTOML()
}
