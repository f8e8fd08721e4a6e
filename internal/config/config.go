package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ProviderEnvVars maps provider names to their environment variable names.
var ProviderEnvVars = map[string]string{
	"anthropic": "ANTHROPIC_API_KEY",
	"zai":       "ZAI_API_KEY",
	"grok":      "XAI_API_KEY",
	"mistral":   "MISTRAL_API_KEY",
	"openai":    "OPENAI_API_KEY",
	"google":    "GOOGLE_API_KEY",
	"fireworks": "FIREWORKS_API_KEY",
}

// KnownProviders lists valid provider names for validation.
var KnownProviders = []string{"anthropic", "zai", "grok", "mistral", "openai", "google", "ollama", "fireworks"}

// configDirOverride is set by tests to redirect ConfigDir.
var configDirOverride string

// ConfigDir returns the per-user state directory, ~/.nexus3. Unlike the
// teacher's split ~/.config + ~/.local/share layout, the core spec (§6)
// keeps config, logs and session records under one namespaced directory.
func ConfigDir() string {
	if configDirOverride != "" {
		return configDirOverride
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".nexus3")
}

// DataDir returns ~/.nexus3, creating it if needed. Kept distinct from
// ConfigDir (which never creates anything) because callers that need the
// directory to exist — the session store, the logger — want the
// creation side effect; callers that merely format a path do not.
func DataDir() (string, error) {
	dir := ConfigDir()
	if dir == "" {
		return "", fmt.Errorf("could not determine home directory")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return dir, nil
}

// ProjectDir returns <cwd>/.nexus3, the per-project state directory named
// in §6. It is not created; callers that need it to exist create it.
func ProjectDir(cwd string) string {
	return filepath.Join(cwd, ".nexus3")
}

// LoadProviderAPIKey resolves an API key for the given provider using:
//  1. Environment variable (e.g. ANTHROPIC_API_KEY, OPENAI_API_KEY)
//  2. Preferences (e.g. anthropic_api_key set via /config)
//
// Ollama returns empty string (no key needed).
func LoadProviderAPIKey(prefs Preferences, providerName string) (string, error) {
	if providerName == "ollama" {
		return "", nil
	}

	// 1. Check environment variable
	if envVar, ok := ProviderEnvVars[providerName]; ok {
		if key := strings.TrimSpace(os.Getenv(envVar)); key != "" {
			return key, nil
		}
	}

	// 2. Check preferences
	switch providerName {
	case "anthropic":
		if key := strings.TrimSpace(prefs.AnthropicAPIKey); key != "" {
			return key, nil
		}
	case "openai":
		if key := strings.TrimSpace(prefs.OpenAIAPIKey); key != "" {
			return key, nil
		}
	case "mistral":
		if key := strings.TrimSpace(prefs.MistralAPIKey); key != "" {
			return key, nil
		}
	case "grok":
		if key := strings.TrimSpace(prefs.GrokAPIKey); key != "" {
			return key, nil
		}
	case "zai":
		if key := strings.TrimSpace(prefs.ZAIAPIKey); key != "" {
			return key, nil
		}
	case "google":
		if key := strings.TrimSpace(prefs.GoogleAPIKey); key != "" {
			return key, nil
		}
	case "fireworks":
		if key := strings.TrimSpace(prefs.FireworksAPIKey); key != "" {
			return key, nil
		}
	}

	return "", fmt.Errorf("no API key found for %s: set %s or use /config set %s.api_key <key>",
		providerName, ProviderEnvVars[providerName], providerName)
}

// ResolveAPIKeySource returns the source of the API key for display purposes.
// Returns "env", "config", or "" if not found.
func ResolveAPIKeySource(prefs Preferences, providerName string) string {
	if envVar, ok := ProviderEnvVars[providerName]; ok {
		if key := strings.TrimSpace(os.Getenv(envVar)); key != "" {
			return "env"
		}
	}
	switch providerName {
	case "anthropic":
		if prefs.AnthropicAPIKey != "" {
			return "config"
		}
	case "openai":
		if prefs.OpenAIAPIKey != "" {
			return "config"
		}
	case "mistral":
		if prefs.MistralAPIKey != "" {
			return "config"
		}
	case "grok":
		if prefs.GrokAPIKey != "" {
			return "config"
		}
	case "zai":
		if prefs.ZAIAPIKey != "" {
			return "config"
		}
	case "google":
		if prefs.GoogleAPIKey != "" {
			return "config"
		}
	case "fireworks":
		if prefs.FireworksAPIKey != "" {
			return "config"
		}
	}
	return ""
}
