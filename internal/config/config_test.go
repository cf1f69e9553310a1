package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultValues(t *testing.T) {
	cfg := Default()

	if cfg.MaxTurns != 50 {
		t.Errorf("MaxTurns = %d", cfg.MaxTurns)
	}
	if cfg.AgentMaxSteps != 30 {
		t.Errorf("AgentMaxSteps = %d", cfg.AgentMaxSteps)
	}
	if cfg.Model != "gemini-2.5-flash" {
		t.Errorf("Model = %q", cfg.Model)
	}
	if cfg.Correlation.MaxRounds != 3 {
		t.Errorf("Correlation.MaxRounds = %d", cfg.Correlation.MaxRounds)
	}
	if cfg.Graph.Entry != "InvestigationAgent" {
		t.Errorf("Graph.Entry = %q", cfg.Graph.Entry)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if cfg.MaxTurns != 50 {
		t.Errorf("MaxTurns = %d", cfg.MaxTurns)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
model: gemini-2.5-pro
max_turns: 10
alertmanager_url: http://am.example:9093
correlation:
  max_rounds: 5
  confidence_threshold: 0.9
router:
  baseline: StorageSpecialist
providers:
  - name: kubernetes
    base_url: http://k8s-tools:8080
    enabled: true
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Model != "gemini-2.5-pro" || cfg.MaxTurns != 10 {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if cfg.Correlation.MaxRounds != 5 || cfg.Correlation.ConfidenceThreshold != 0.9 {
		t.Errorf("correlation overrides not applied: %+v", cfg.Correlation)
	}
	// Unset correlation fields keep defaults after engine normalization,
	// but the raw config reflects the file.
	if cfg.Router.Baseline != "StorageSpecialist" {
		t.Errorf("baseline = %q", cfg.Router.Baseline)
	}
	if len(cfg.Providers) != 1 || cfg.Providers[0].Name != "kubernetes" {
		t.Errorf("providers wrong: %+v", cfg.Providers)
	}
	// AgentMaxSteps untouched by the file keeps its default.
	if cfg.AgentMaxSteps != 30 {
		t.Errorf("AgentMaxSteps = %d", cfg.AgentMaxSteps)
	}
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("model: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("malformed YAML should error")
	}
}

func TestValidateRejectsBadProvider(t *testing.T) {
	cfg := Default()
	cfg.Providers = []ProviderConfig{{Name: "ceph", Enabled: true}}
	if err := cfg.Validate(); err == nil {
		t.Error("enabled provider without base_url should fail validation")
	}

	cfg = Default()
	cfg.Providers = []ProviderConfig{{BaseURL: "http://x", Enabled: true}}
	if err := cfg.Validate(); err == nil {
		t.Error("unnamed provider should fail validation")
	}

	// Disabled providers may omit the URL.
	cfg = Default()
	cfg.Providers = []ProviderConfig{{Name: "ceph", Enabled: false, Timeout: time.Minute}}
	if err := cfg.Validate(); err != nil {
		t.Errorf("disabled provider rejected: %v", err)
	}
}

func TestValidateRejectsBadGraph(t *testing.T) {
	cfg := Default()
	cfg.Graph.Entry = "NoSuchAgent"
	if err := cfg.Validate(); err == nil {
		t.Error("graph with unknown entry should fail validation")
	}
}

func TestRouterTable(t *testing.T) {
	cfg := Default()
	if table := cfg.RouterTable(); len(table["StorageSpecialist"]) == 0 {
		t.Error("default table missing StorageSpecialist keywords")
	}

	cfg.Router.Keywords = map[string][]string{"DatabaseSpecialist": {"postgres"}}
	table := cfg.RouterTable()
	if len(table) != 1 || table["DatabaseSpecialist"][0] != "postgres" {
		t.Errorf("custom table not used: %v", table)
	}
}
