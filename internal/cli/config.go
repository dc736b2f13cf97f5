// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config.go - Config command implementation.
//
// Command: config [subcommand]
// Short:   View and modify configuration
// Aliases: cfg
//
// Subcommands:
//   show (default)      Display the effective configuration
//   get <key>           Print one value
//   set <key> <value>   Set a value in the config file
//   keys                List every key
//   init                Write a default config file
//   reset               Reset the config file to defaults
//   path                Show the config file path
//
// Examples:
//   prism config
//   prism config show --json
//   prism config get backend.provider
//   prism config set backend.provider openai
//   prism config set gemini.models.image gemini-3-pro-image-preview
//   prism config set media.store s3
//   prism config set server.allowed_origins http://localhost:5173,http://127.0.0.1:5173
//   prism config init
//
// Keys use dot notation. Secrets (API keys, tokens, S3 secrets) are masked
// on output. Values taken from the environment are shown by "show" and
// "get" but never written by "set".
package cli

import (
	"crypto/sha256"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/jeranaias/prism/internal/config"
	"github.com/jeranaias/prism/internal/ui/styles"
)

// ConfigPathInfo is the JSON form of "config path".
type ConfigPathInfo struct {
	Path   string `json:"path"`
	Exists bool   `json:"exists"`
}

// ConfigValue is the JSON form of "config get" and "config set".
type ConfigValue struct {
	Key   string      `json:"key"`
	Value interface{} `json:"value"`
	Path  string      `json:"path,omitempty"`
}

// =============================================================================
// HANDLE CONFIG
// =============================================================================

// HandleConfig handles the "config" command. It works on the config file
// directly and does not need a runtime.
func HandleConfig(args Args) error {
	p := NewArgParser(args.Raw, "force")
	switch sub := p.Subcommand(); sub {
	case "", "show":
		return handleConfigShow(args)
	case "get":
		return handleConfigGet(args, p.Positional(1))
	case "set":
		return handleConfigSet(args, p.Positional(1), strings.Join(p.PositionalFrom(2), " "))
	case "keys":
		return handleConfigKeys(args)
	case "init":
		return handleConfigInit(args, p.BoolFlag("force"))
	case "reset":
		return handleConfigInit(args, true)
	case "path":
		return handleConfigPath(args)
	default:
		return NewValidationErrorWithExample("config subcommand", sub,
			"expected show, get, set, keys, init, reset, or path", "prism config set ui.theme light")
	}
}

// editPath is the file set, init and reset write to.
func editPath(args Args) (string, error) {
	if args.ConfigPath != "" {
		return expandPath(args.ConfigPath), nil
	}
	return config.EditPath()
}

// handleConfigShow displays the effective configuration.
func handleConfigShow(args Args) error {
	cfg, path, err := LoadConfig(args)
	if err != nil {
		return err
	}
	w := args.stdout()
	if args.JSON {
		return NewJSONResponse("config show", map[string]interface{}{
			"path":   path,
			"config": cfg.Redacted(),
		}).Write(w)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, TitleStyle.Render("prism Configuration"))
	fmt.Fprintln(w, RenderSeparator(41))

	section := ""
	for _, key := range config.GetAllKeys() {
		if sec, _, ok := strings.Cut(key, "."); ok && sec != section {
			section = sec
			fmt.Fprintln(w)
			fmt.Fprintln(w, SectionStyle.Render("["+sec+"]"))
		}
		v, err := cfg.Get(key)
		if err != nil {
			continue
		}
		label := fmt.Sprintf("%-22s", strings.TrimPrefix(key, section+".")+":")
		fmt.Fprintf(w, "  %s%s\n", DimStyle.Render(label), displayValue(key, v))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, RenderSeparator(41))
	if path == "" {
		path = "(none, using defaults)"
	}
	fmt.Fprintf(w, "Config file: %s\n", DimStyle.Render(path))
	return nil
}

// handleConfigGet prints one value.
func handleConfigGet(args Args, key string) error {
	if key == "" {
		return ErrMissingArgument("key", "prism config get backend.provider")
	}
	cfg, _, err := LoadConfig(args)
	if err != nil {
		return err
	}
	v, err := cfg.Get(key)
	if err != nil {
		return unknownKey(key)
	}
	if args.JSON {
		return NewJSONResponse("config get", ConfigValue{Key: key, Value: jsonValue(key, v)}).Write(args.stdout())
	}
	fmt.Fprintln(args.stdout(), displayValue(key, v))
	return nil
}

// handleConfigSet sets a value in the config file.
func handleConfigSet(args Args, key, value string) error {
	if key == "" {
		return ErrMissingArgument("key", "prism config set <key> <value>")
	}
	if value == "" {
		return ErrMissingArgument("value", fmt.Sprintf("prism config set %s <value>", key))
	}

	path, err := editPath(args)
	if err != nil {
		return NewCommandError("config set", "locate", "could not determine config path", err)
	}
	cfg, err := config.LoadForEdit(path)
	if err != nil {
		return err
	}

	key = strings.ToLower(key)
	if err := cfg.Set(key, value); err != nil {
		if strings.HasPrefix(err.Error(), "unknown field") || strings.Contains(err.Error(), "not a struct") {
			return unknownKey(key)
		}
		return NewValidationError(key, value, err.Error())
	}
	if err := cfg.Validate(); err != nil {
		return NewValidationError(key, value, err.Error())
	}
	if err := config.SaveToPath(cfg, path); err != nil {
		return NewCommandError("config set", "save", path, err)
	}

	if args.JSON {
		v, _ := cfg.Get(key)
		return NewJSONResponse("config set", ConfigValue{Key: key, Value: jsonValue(key, v), Path: path}).Write(args.stdout())
	}
	fmt.Fprintln(args.stdout(), styles.Mark(styles.MarkOK, key+" = "+maskIfSecret(key, value), styles.Emerald))
	return nil
}

// handleConfigKeys lists every key.
func handleConfigKeys(args Args) error {
	keys := config.GetAllKeys()
	if args.JSON {
		return NewJSONResponse("config keys", keys).Write(args.stdout())
	}
	for _, k := range keys {
		fmt.Fprintln(args.stdout(), k)
	}
	return nil
}

// handleConfigInit writes a default config file. Without force it refuses
// to replace an existing file.
func handleConfigInit(args Args, force bool) error {
	path, err := editPath(args)
	if err != nil {
		return NewCommandError("config init", "locate", "could not determine config path", err)
	}
	if _, err := os.Stat(path); err == nil && !force {
		return NewValidationErrorWithExample("config", path, "file already exists", "prism config init --force")
	}

	cfg := config.Default()
	cfg.SetDefaults()
	if err := config.SaveToPath(cfg, path); err != nil {
		return NewCommandError("config init", "save", path, err)
	}

	if args.JSON {
		return NewJSONResponse("config init", ConfigPathInfo{Path: path, Exists: true}).Write(args.stdout())
	}
	fmt.Fprintln(args.stdout(), styles.Mark(styles.MarkOK, "Wrote default configuration", styles.Emerald))
	fmt.Fprintf(args.stdout(), "Config file: %s\n", DimStyle.Render(path))
	return nil
}

// handleConfigPath shows the config file path.
func handleConfigPath(args Args) error {
	path, err := editPath(args)
	if err != nil {
		return NewCommandError("config path", "locate", "could not determine config path", err)
	}
	_, statErr := os.Stat(path)
	exists := statErr == nil

	if args.JSON {
		return NewJSONResponse("config path", ConfigPathInfo{Path: path, Exists: exists}).Write(args.stdout())
	}
	fmt.Fprintln(args.stdout(), path)
	if !exists {
		fmt.Fprintf(args.stderr(), "%s (file does not exist; run \"prism config init\" to create it)\n",
			DimStyle.Render("Note"))
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func unknownKey(key string) error {
	keys := config.GetAllKeys()
	best, bestDist := "", 4
	for _, k := range keys {
		if d := levenshteinDistance(key, k); d < bestDist {
			best, bestDist = k, d
		}
	}
	example := "prism config keys"
	if best != "" {
		example = "did you mean " + best + "?"
	}
	return NewValidationErrorWithExample("key", key, "unknown config key", example)
}

// displayValue formats a config value for the terminal.
func displayValue(key string, v interface{}) string {
	switch val := v.(type) {
	case string:
		if isSecretKey(key) {
			return maskAPIKey(val)
		}
		if val == "" {
			return DimStyle.Render("(not set)")
		}
		return val
	case []string:
		if len(val) == 0 {
			return DimStyle.Render("(none)")
		}
		sorted := append([]string(nil), val...)
		sort.Strings(sorted)
		return strings.Join(sorted, ", ")
	default:
		return fmt.Sprint(val)
	}
}

// jsonValue masks secrets in JSON output.
func jsonValue(key string, v interface{}) interface{} {
	if s, ok := v.(string); ok && isSecretKey(key) {
		return maskAPIKey(s)
	}
	return v
}

// maskAPIKey masks a secret with a short SHA-256 fingerprint so keys can be
// told apart without showing any of their characters.
func maskAPIKey(key string) string {
	if key == "" {
		return "(not set)"
	}
	hash := sha256.Sum256([]byte(key))
	return fmt.Sprintf("sha256:%x...", hash[:4])
}

func isSecretKey(key string) bool {
	k := strings.ToLower(key)
	for _, s := range []string{"api_key", "secret", "token", "password"} {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}

// maskIfSecret masks value if key names a secret.
func maskIfSecret(key, value string) string {
	if isSecretKey(key) {
		return maskAPIKey(value)
	}
	return value
}
