package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// Preferences holds user-configurable runtime settings: model/provider
// selection, API keys, and the RPC server's own bearer credential.
// Persisted to ~/.nexus3/config.json (§6).
type Preferences struct {
	Model        string `json:"model"`
	ModelCompact string `json:"model_compact,omitempty"`
	ModelTitle   string `json:"model_title,omitempty"`
	ModelTags    string `json:"model_tags,omitempty"`

	// Provider and API keys
	Provider        string `json:"provider,omitempty"`
	AnthropicAPIKey string `json:"anthropic_api_key,omitempty"`
	ZAIAPIKey       string `json:"zai_api_key,omitempty"`
	GrokAPIKey      string `json:"grok_api_key,omitempty"`
	MistralAPIKey   string `json:"mistral_api_key,omitempty"`
	OpenAIAPIKey    string `json:"openai_api_key,omitempty"`
	GoogleAPIKey    string `json:"google_api_key,omitempty"`
	FireworksAPIKey string `json:"fireworks_api_key,omitempty"`
	OllamaURL       string `json:"ollama_url,omitempty"`

	// RPC server settings (§6: control-plane bind address and the bearer
	// credential required on every JSON-RPC method except detect).
	RPCBindAddress string `json:"rpc_bind_address,omitempty"`
	RPCAPIKey      string `json:"rpc_api_key,omitempty"`
}

// PrefEntry holds a single key-value preference entry for display.
type PrefEntry struct {
	Key   string
	Value string
}

// ConfigGroup holds a named group of preference entries for display.
type ConfigGroup struct {
	Name    string
	Entries []PrefEntry
}

// ConfigGroupDef defines a single group with a name and its keys.
type ConfigGroupDef struct {
	Name string
	Keys []string
}

// ConfigGroupDefs defines the preference key groupings and their display order.
var ConfigGroupDefs = []ConfigGroupDef{
	{
		Name: "models",
		Keys: []string{"model", "model.compact", "model.title", "model.tags", "anthropic.api_key", "zai.api_key", "grok.api_key", "mistral.api_key", "openai.api_key", "google.api_key", "fireworks.api_key", "ollama.url"},
	},
	{
		Name: "rpc",
		Keys: []string{"rpc.bind_address", "rpc.api_key"},
	},
}

// ConfigGroupNames returns the list of valid group names.
func ConfigGroupNames() []string {
	names := make([]string, len(ConfigGroupDefs))
	for i, g := range ConfigGroupDefs {
		names[i] = g.Name
	}
	return names
}

// ValidConfigKeys returns all config keys accepted by Set().
func ValidConfigKeys() []string {
	var keys []string
	for _, g := range ConfigGroupDefs {
		keys = append(keys, g.Keys...)
	}
	return keys
}

// DefaultPreferences returns the default set of preferences.
func DefaultPreferences() Preferences {
	return Preferences{
		Model:    "",
		Provider: "",
	}
}

// LoadPreferences reads preferences from ~/.nexus3/config.json.
func LoadPreferences() Preferences {
	dir := ConfigDir()
	if dir == "" {
		return DefaultPreferences()
	}

	configPath := filepath.Join(dir, "config.json")
	p := DefaultPreferences()

	configLoaded := false
	if data, err := os.ReadFile(configPath); err == nil {
		data = stripBOM(data)
		if err := json.Unmarshal(data, &p); err != nil {
			fmt.Fprintf(os.Stderr, "config: parse %s: %v\n", configPath, err)
		} else {
			configLoaded = true
		}
		warnInsecurePermissions(configPath)
	}

	// Only sanitize and re-save if we successfully loaded the config.
	// This prevents overwriting the user's file with defaults on parse errors.
	if configLoaded && sanitizePreferences(&p) {
		if err := SavePreferences(p); err != nil {
			fmt.Fprintf(os.Stderr, "config: save sanitized config: %v\n", err)
		}
	}

	return p
}

// SavePreferences writes preferences to ~/.nexus3/config.json.
func SavePreferences(p Preferences) error {
	dir := ConfigDir()
	if dir == "" {
		return fmt.Errorf("could not determine config directory")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, "config.json"), data, 0o600)
}

// stripBOM removes a UTF-8 BOM prefix if present. Windows editors like
// Notepad may add a BOM which breaks JSON parsing.
func stripBOM(data []byte) []byte {
	if len(data) >= 3 && data[0] == 0xEF && data[1] == 0xBB && data[2] == 0xBF {
		return data[3:]
	}
	return data
}

// warnInsecurePermissions prints a warning to stderr if the config file is
// readable by group or others. On Windows, file permission bits don't map
// to ACLs, so the check is skipped.
func warnInsecurePermissions(path string) {
	if runtime.GOOS == "windows" {
		return
	}
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	if info.Mode().Perm()&0o077 != 0 {
		fmt.Fprintf(os.Stderr, "WARNING: %s is readable by others (mode %o). Run: chmod 600 %s\n",
			path, info.Mode().Perm(), path)
	}
}

// Grouped returns all preferences organized into named groups.
// Values are display-ready: API keys are masked, empty values show "(not set)".
func (p Preferences) Grouped() []ConfigGroup {
	all := p.entryMap()
	defaults := DefaultPreferences().entryMap()

	var groups []ConfigGroup
	for _, def := range ConfigGroupDefs {
		var entries []PrefEntry
		for _, key := range def.Keys {
			val := all[key]
			defVal := defaults[key]
			entries = append(entries, PrefEntry{
				Key:   key,
				Value: AnnotateValue(val, defVal),
			})
		}
		groups = append(groups, ConfigGroup{Name: def.Name, Entries: entries})
	}
	return groups
}

// GroupByName returns entries for a single config group, or nil if not found.
func (p Preferences) GroupByName(name string) *ConfigGroup {
	for _, g := range p.Grouped() {
		if g.Name == name {
			return &g
		}
	}
	return nil
}

// entryMap returns all preference entries as a key->value map.
func (p Preferences) entryMap() map[string]string {
	m := make(map[string]string)
	for _, e := range p.All() {
		m[e.Key] = e.Value
	}
	return m
}

// All returns all preference entries as a flat list.
func (p Preferences) All() []PrefEntry {
	return []PrefEntry{
		{"model", p.Model},
		{"model.compact", p.ModelCompact},
		{"model.title", p.ModelTitle},
		{"model.tags", p.ModelTags},
		{"anthropic.api_key", resolveKeyDisplay(p.AnthropicAPIKey, "ANTHROPIC_API_KEY")},
		{"zai.api_key", resolveKeyDisplay(p.ZAIAPIKey, "ZAI_API_KEY")},
		{"grok.api_key", resolveKeyDisplay(p.GrokAPIKey, "XAI_API_KEY")},
		{"mistral.api_key", resolveKeyDisplay(p.MistralAPIKey, "MISTRAL_API_KEY")},
		{"openai.api_key", resolveKeyDisplay(p.OpenAIAPIKey, "OPENAI_API_KEY")},
		{"google.api_key", resolveKeyDisplay(p.GoogleAPIKey, "GOOGLE_API_KEY")},
		{"fireworks.api_key", resolveKeyDisplay(p.FireworksAPIKey, "FIREWORKS_API_KEY")},
		{"ollama.url", p.OllamaURL},
		{"rpc.bind_address", p.RPCBindAddress},
		{"rpc.api_key", MaskKey(p.RPCAPIKey)},
	}
}

// Get returns the display value for a single preference key.
func (p Preferences) Get(key string) string {
	switch key {
	case "model":
		return p.Model
	case "model.compact":
		return p.ModelCompact
	case "model.title":
		return p.ModelTitle
	case "model.tags":
		return p.ModelTags
	case "anthropic.api_key":
		return MaskKey(p.AnthropicAPIKey)
	case "zai.api_key":
		return MaskKey(p.ZAIAPIKey)
	case "openai.api_key":
		return MaskKey(p.OpenAIAPIKey)
	case "mistral.api_key":
		return MaskKey(p.MistralAPIKey)
	case "grok.api_key":
		return MaskKey(p.GrokAPIKey)
	case "google.api_key":
		return MaskKey(p.GoogleAPIKey)
	case "fireworks.api_key":
		return MaskKey(p.FireworksAPIKey)
	case "ollama.url":
		return p.OllamaURL
	case "rpc.bind_address":
		return p.RPCBindAddress
	case "rpc.api_key":
		return MaskKey(p.RPCAPIKey)
	default:
		return ""
	}
}

// Set updates a single preference key to the given value.
func (p *Preferences) Set(key, value string) error {
	value = SanitizeValue(value)
	switch key {
	case "model":
		p.Model = value
	case "model.compact":
		p.ModelCompact = value
	case "model.title":
		p.ModelTitle = value
	case "model.tags":
		p.ModelTags = value
	case "anthropic.api_key":
		p.AnthropicAPIKey = value
	case "zai.api_key":
		p.ZAIAPIKey = value
	case "openai.api_key":
		p.OpenAIAPIKey = value
	case "mistral.api_key":
		p.MistralAPIKey = value
	case "grok.api_key":
		p.GrokAPIKey = value
	case "google.api_key":
		p.GoogleAPIKey = value
	case "fireworks.api_key":
		p.FireworksAPIKey = value
	case "ollama.url":
		p.OllamaURL = value
	case "rpc.bind_address":
		p.RPCBindAddress = value
	case "rpc.api_key":
		p.RPCAPIKey = value
	default:
		return fmt.Errorf("unknown key: %s", key)
	}
	return nil
}

// SanitizeValue strips null bytes, ASCII control characters (< 32 except
// \n and \t), and DEL (0x7F) from a string value and trims surrounding
// whitespace. API keys and secrets should never contain control characters —
// these typically sneak in through clipboard paste artifacts.
func SanitizeValue(s string) string {
	return strings.Map(func(r rune) rune {
		if (r < 32 && r != '\n' && r != '\t') || r == 0x7F {
			return -1
		}
		return r
	}, strings.TrimSpace(s))
}

// sanitizePreferences strips control characters from all string fields in
// an already-loaded Preferences struct. Returns true if any field was modified.
func sanitizePreferences(p *Preferences) bool {
	changed := false
	sanitize := func(s *string) {
		cleaned := SanitizeValue(*s)
		if cleaned != *s {
			*s = cleaned
			changed = true
		}
	}
	sanitize(&p.Model)
	sanitize(&p.ModelCompact)
	sanitize(&p.ModelTitle)
	sanitize(&p.ModelTags)
	sanitize(&p.Provider)
	sanitize(&p.AnthropicAPIKey)
	sanitize(&p.ZAIAPIKey)
	sanitize(&p.GrokAPIKey)
	sanitize(&p.MistralAPIKey)
	sanitize(&p.OpenAIAPIKey)
	sanitize(&p.GoogleAPIKey)
	sanitize(&p.FireworksAPIKey)
	sanitize(&p.OllamaURL)
	sanitize(&p.RPCBindAddress)
	sanitize(&p.RPCAPIKey)
	return changed
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// resolveKeyDisplay returns a masked key for display. If the preference is
// empty but the env var is set, shows the masked env value with "(from env)".
func resolveKeyDisplay(prefKey, envVar string) string {
	if prefKey != "" {
		return MaskKey(prefKey)
	}
	if envVal := strings.TrimSpace(os.Getenv(envVar)); envVal != "" {
		return MaskKey(envVal) + " (from env)"
	}
	return ""
}

// MaskKey masks an API key for display, showing only the last 4 characters.
func MaskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}

// ParseBoolish parses a boolean-like string value.
func ParseBoolish(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "true", "on", "yes", "1":
		return true, nil
	case "false", "off", "no", "0":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean value: %s (use true/false, on/off, yes/no)", s)
	}
}

// AnnotateValue returns a display string for a config value.
// Shows "(not set)" for empty values, otherwise shows the raw value.
func AnnotateValue(value, defaultValue string) string {
	if value == "" {
		return "(not set)"
	}
	return value
}

// ConfigFilePath returns the absolute path to config.json.
func ConfigFilePath() string {
	dir := ConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "config.json")
}

// ---------------------------------------------------------------------------
// Config actions — adapter-agnostic business logic
// ---------------------------------------------------------------------------

// ExecuteConfigAction handles /config subcommands and returns a plain-text
// response. The caller (REPL) applies its own formatting.
func ExecuteConfigAction(prefs *Preferences, args []string) (string, error) {
	sub := "show"
	if len(args) > 0 {
		sub = strings.ToLower(args[0])
	}

	switch sub {
	case "show":
		return FormatConfigGroups(prefs.Grouped()), nil

	case "models", "rpc":
		group := prefs.GroupByName(sub)
		if group == nil {
			return "", fmt.Errorf("unknown config group: %s", sub)
		}
		return FormatConfigGroups([]ConfigGroup{*group}), nil

	case "set":
		if len(args) < 3 {
			return "", fmt.Errorf("usage: /config set <key> <value>")
		}
		key := args[1]
		value := args[2]
		if err := prefs.Set(key, value); err != nil {
			return "", err
		}
		if err := SavePreferences(*prefs); err != nil {
			return "", fmt.Errorf("failed to save: %w", err)
		}
		return fmt.Sprintf("Set %s = %s", key, prefs.Get(key)), nil

	case "reset":
		*prefs = DefaultPreferences()
		if err := SavePreferences(*prefs); err != nil {
			return "", fmt.Errorf("failed to save: %w", err)
		}
		return "Preferences reset to defaults.", nil

	default:
		return "", fmt.Errorf("usage: /config [show|models|rpc|set <key> <value>|reset]")
	}
}

// FormatConfigGroups renders config groups as plain text (no ANSI styling).
func FormatConfigGroups(groups []ConfigGroup) string {
	var lines []string
	for i, g := range groups {
		if i > 0 {
			lines = append(lines, "")
		}
		lines = append(lines, strings.ToUpper(g.Name[:1])+g.Name[1:]+":")
		for _, e := range g.Entries {
			lines = append(lines, fmt.Sprintf("  %-24s %s", e.Key, e.Value))
		}
	}
	lines = append(lines, "")
	lines = append(lines, "  Use /config set <key> <value> to change")
	return strings.Join(lines, "\n")
}
