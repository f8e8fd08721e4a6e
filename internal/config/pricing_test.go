package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/batalabs/nexus3d/internal/domain"
)

func TestDefaultPricingMap(t *testing.T) {
	m := DefaultPricingMap()
	if len(m) == 0 {
		t.Fatal("expected non-empty pricing map")
	}

	// Spot-check a few known models
	tests := []struct {
		model string
		input float64
		out   float64
	}{
		{"claude-sonnet-4-6", 3.0, 15.0},
		{"claude-haiku-4-5-20251001", 1.0, 5.0},
		{"gpt-4o", 2.50, 10.0},
		{"gpt-4o-mini", 0.15, 0.60},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			p, ok := m[tt.model]
			if !ok {
				t.Fatalf("model %q not in pricing map", tt.model)
			}
			if p.InputPerMillion != tt.input {
				t.Errorf("input cost = %.2f, want %.2f", p.InputPerMillion, tt.input)
			}
			if p.OutputPerMillion != tt.out {
				t.Errorf("output cost = %.2f, want %.2f", p.OutputPerMillion, tt.out)
			}
		})
	}
}

func TestSavePricing(t *testing.T) {
	dir := t.TempDir()
	orig := configDirOverride
	configDirOverride = dir
	t.Cleanup(func() { configDirOverride = orig })

	m := map[string]domain.ModelPricing{
		"test-model": {InputPerMillion: 1.0, OutputPerMillion: 5.0},
	}

	if err := SavePricing(m); err != nil {
		t.Fatalf("SavePricing: %v", err)
	}

	// Verify file was written
	data, err := os.ReadFile(filepath.Join(dir, "pricing.json"))
	if err != nil {
		t.Fatalf("read pricing file: %v", err)
	}

	var loaded map[string]domain.ModelPricing
	if err := json.Unmarshal(data, &loaded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p, ok := loaded["test-model"]; !ok {
		t.Error("expected test-model in saved pricing")
	} else if p.InputPerMillion != 1.0 {
		t.Errorf("input cost = %.2f, want 1.00", p.InputPerMillion)
	}
}

func TestSavePricing_noConfigDir(t *testing.T) {
	orig := configDirOverride
	configDirOverride = ""
	t.Cleanup(func() { configDirOverride = orig })

	// With no override and no resolvable home directory, ConfigDir()
	// returns "" and SavePricing must report an error.
	t.Setenv("HOME", "")
	t.Setenv("USERPROFILE", "")
	if err := SavePricing(DefaultPricingMap()); err == nil {
		t.Error("expected error when config directory cannot be determined")
	}
}

func TestLoadPricing(t *testing.T) {
	t.Run("first run writes defaults", func(t *testing.T) {
		dir := t.TempDir()
		orig := configDirOverride
		configDirOverride = dir
		t.Cleanup(func() { configDirOverride = orig })

		m := LoadPricing()
		defaults := DefaultPricingMap()

		// Should return all defaults
		for model, dp := range defaults {
			if lp, ok := m[model]; !ok {
				t.Errorf("missing model %q", model)
			} else if lp.InputPerMillion != dp.InputPerMillion {
				t.Errorf("%s input = %.2f, want %.2f", model, lp.InputPerMillion, dp.InputPerMillion)
			}
		}

		// File should now exist
		if _, err := os.Stat(filepath.Join(dir, "pricing.json")); err != nil {
			t.Error("expected pricing.json to be created on first run")
		}
	})

	t.Run("loads existing file", func(t *testing.T) {
		dir := t.TempDir()
		orig := configDirOverride
		configDirOverride = dir
		t.Cleanup(func() { configDirOverride = orig })

		custom := map[string]domain.ModelPricing{
			"claude-sonnet-4-6": {InputPerMillion: 99.0, OutputPerMillion: 99.0},
		}
		data, _ := json.Marshal(custom)
		os.WriteFile(filepath.Join(dir, "pricing.json"), data, 0o644)

		m := LoadPricing()

		// Custom value should be preserved
		if m["claude-sonnet-4-6"].InputPerMillion != 99.0 {
			t.Errorf("expected custom price 99.0, got %.2f", m["claude-sonnet-4-6"].InputPerMillion)
		}

		// Missing defaults should be merged in
		if _, ok := m["gpt-4o"]; !ok {
			t.Error("expected gpt-4o to be added from defaults")
		}
	})

	t.Run("handles invalid pricing.json", func(t *testing.T) {
		dir := t.TempDir()
		orig := configDirOverride
		configDirOverride = dir
		t.Cleanup(func() { configDirOverride = orig })

		os.WriteFile(filepath.Join(dir, "pricing.json"), []byte("{bad json"), 0o644)

		m := LoadPricing()
		defaults := DefaultPricingMap()

		// Should fall back to defaults
		if len(m) != len(defaults) {
			t.Errorf("expected %d defaults, got %d", len(defaults), len(m))
		}
	})

	t.Run("no merge when all models present", func(t *testing.T) {
		dir := t.TempDir()
		orig := configDirOverride
		configDirOverride = dir
		t.Cleanup(func() { configDirOverride = orig })

		// Write a file with all default models
		defaults := DefaultPricingMap()
		data, _ := json.Marshal(defaults)
		os.WriteFile(filepath.Join(dir, "pricing.json"), data, 0o644)

		m := LoadPricing()
		if len(m) != len(defaults) {
			t.Errorf("expected %d models, got %d", len(defaults), len(m))
		}
	})
}
