package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("GRAPH_TOKEN", "")
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Suggest.MaxOffers != 2 {
		t.Errorf("expected max_offers 2, got %d", cfg.Suggest.MaxOffers)
	}
	if cfg.Suggest.Expiry != 2*time.Hour {
		t.Errorf("expected expiry 2h, got %v", cfg.Suggest.Expiry)
	}
	if cfg.Suggest.DefaultEstimate != 30*time.Minute {
		t.Errorf("expected default estimate 30m, got %v", cfg.Suggest.DefaultEstimate)
	}
	if cfg.Budget.WarningThreshold != 0.80 {
		t.Errorf("expected warning threshold 0.80, got %v", cfg.Budget.WarningThreshold)
	}
	if cfg.Store.Driver != "sqlite" {
		t.Errorf("expected driver sqlite, got %q", cfg.Store.Driver)
	}
	if cfg.Timeouts.ClaimLease != 2*time.Minute {
		t.Errorf("expected claim lease 2m, got %v", cfg.Timeouts.ClaimLease)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadFromPath_DefaultsMatchDefault(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "logging:\n  file: \"\"\n")

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	want := Default()
	if cfg.Suggest != want.Suggest {
		t.Errorf("suggest = %+v, want %+v", cfg.Suggest, want.Suggest)
	}
	if cfg.Timeouts != want.Timeouts {
		t.Errorf("timeouts = %+v, want %+v", cfg.Timeouts, want.Timeouts)
	}
	if cfg.Budget != want.Budget {
		t.Errorf("budget = %+v, want %+v", cfg.Budget, want.Budget)
	}
}

func TestLoadFromPath(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
anthropic:
  api_key: test-key
  classify: true
store:
  backend: file
  tasks_file: /tmp/tasks.yaml
  driver: sqlite3
budget:
  monthly_cap: 2.5
suggest:
  max_offers: 3
  expiry: 45m
  weights:
    duration: 0.5
    due: 0.5
    source: 0
availability:
  workday_start: "08:30"
  calendars:
    - name: work
      id: AAMk-work
      kind: busy
      priority: 0.9
    - name: focus
      id: AAMk-focus
      kind: free
      priority: 0.4
timeouts:
  task_store: 3s
`)

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	if cfg.Anthropic.APIKey != "test-key" {
		t.Errorf("expected api_key 'test-key', got %q", cfg.Anthropic.APIKey)
	}
	if !cfg.Anthropic.Classify {
		t.Error("expected classify to be true")
	}
	if cfg.Store.Backend != "file" || cfg.Store.Driver != "sqlite3" {
		t.Errorf("unexpected store config %+v", cfg.Store)
	}
	if cfg.Budget.MonthlyCap != 2.5 {
		t.Errorf("expected monthly cap 2.5, got %v", cfg.Budget.MonthlyCap)
	}
	if cfg.Suggest.MaxOffers != 3 {
		t.Errorf("expected max_offers 3, got %d", cfg.Suggest.MaxOffers)
	}
	if cfg.Suggest.Expiry != 45*time.Minute {
		t.Errorf("expected expiry 45m, got %v", cfg.Suggest.Expiry)
	}
	if cfg.Suggest.Weights.Source != 0 {
		t.Errorf("expected source weight 0, got %v", cfg.Suggest.Weights.Source)
	}
	if cfg.Timeouts.TaskStore != 3*time.Second {
		t.Errorf("expected task store timeout 3s, got %v", cfg.Timeouts.TaskStore)
	}
	if cfg.Timeouts.Model != 20*time.Second {
		t.Errorf("unset timeout should keep its default, got %v", cfg.Timeouts.Model)
	}
	if len(cfg.Availability.Calendars) != 2 {
		t.Fatalf("expected 2 calendars, got %d", len(cfg.Availability.Calendars))
	}
	if cfg.Availability.Calendars[1].Kind != "free" {
		t.Errorf("expected second calendar kind free, got %q", cfg.Availability.Calendars[1].Kind)
	}

	priorities := cfg.Availability.SourcePriorities()
	if priorities["work"] != 0.9 || priorities["focus"] != 0.4 {
		t.Errorf("SourcePriorities() = %v", priorities)
	}
}

func TestLoadFromPath_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("MONICA_SUGGEST_MAX_OFFERS", "5")
	t.Setenv("GRAPH_TOKEN", "token-from-env")

	path := writeConfig(t, "suggest:\n  max_offers: 1\n")

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}
	if cfg.Suggest.MaxOffers != 5 {
		t.Errorf("expected env override max_offers 5, got %d", cfg.Suggest.MaxOffers)
	}
	if cfg.Graph.Token != "token-from-env" {
		t.Errorf("expected graph token from env, got %q", cfg.Graph.Token)
	}
}

func TestLoadFromPath_ExpandsSecrets(t *testing.T) {
	clearEnv(t)
	t.Setenv("MONICA_TEST_CLIENT_STATE", "s3cret")

	path := writeConfig(t, "server:\n  client_state: ${MONICA_TEST_CLIENT_STATE}\n")

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}
	if cfg.Server.ClientState != "s3cret" {
		t.Errorf("expected expanded client state, got %q", cfg.Server.ClientState)
	}
}

func TestLoadFromPath_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown backend", "store:\n  backend: notion\n"},
		{"unknown driver", "store:\n  driver: postgres\n"},
		{"zero max offers", "suggest:\n  max_offers: 0\n"},
		{"min score out of range", "suggest:\n  min_score: 1.5\n"},
		{"all weights zero", "suggest:\n  weights:\n    duration: 0\n    due: 0\n    source: 0\n"},
		{"bad calendar kind", "availability:\n  calendars:\n    - name: x\n      kind: tentative\n"},
		{"unknown rules source", "rules:\n  source: s3\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			if _, err := LoadFromPath(writeConfig(t, tt.content)); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadFromPath_GraphRulesSource(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "rules:\n  source: graph\n  path: Monica/config/task-chains.json\n  drive_id: b!abc\n")

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}
	if cfg.Rules.Source != "graph" {
		t.Errorf("expected rules source graph, got %q", cfg.Rules.Source)
	}
	if cfg.Rules.Path != "Monica/config/task-chains.json" {
		t.Errorf("unexpected rules path %q", cfg.Rules.Path)
	}
	if cfg.Rules.DriveID != "b!abc" {
		t.Errorf("expected drive id b!abc, got %q", cfg.Rules.DriveID)
	}
}

func TestSetValue(t *testing.T) {
	clearEnv(t)
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	if err := SetValue("suggest.max_offers", "4"); err != nil {
		t.Fatalf("SetValue failed: %v", err)
	}
	if err := SetValue("budget.monthly_cap", "12.5"); err != nil {
		t.Fatalf("SetValue failed: %v", err)
	}

	cfg, err := LoadFromPath(GetUserConfigPath())
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}
	if cfg.Suggest.MaxOffers != 4 {
		t.Errorf("expected max_offers 4, got %d", cfg.Suggest.MaxOffers)
	}
	if cfg.Budget.MonthlyCap != 12.5 {
		t.Errorf("expected monthly cap 12.5, got %v", cfg.Budget.MonthlyCap)
	}
}

func TestSetValue_Rejects(t *testing.T) {
	clearEnv(t)
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	if err := SetValue("defaults.flavor", "x"); err == nil {
		t.Error("expected unknown key to be rejected")
	}
	if err := SetValue("suggest.max_offers", "0"); err == nil {
		t.Error("expected invalid value to be rejected")
	}
	if _, err := os.Stat(GetUserConfigPath()); !os.IsNotExist(err) {
		t.Error("rejected values should not create a config file")
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("TEST_VAR", "expanded-value")

	if result := expandEnv("${TEST_VAR}"); result != "expanded-value" {
		t.Errorf("expected 'expanded-value', got %q", result)
	}
	if result := expandEnv("prefix-${TEST_VAR}-suffix"); result != "prefix-expanded-value-suffix" {
		t.Errorf("expected 'prefix-expanded-value-suffix', got %q", result)
	}
}

func TestGetUserConfigDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")

	if dir := getUserConfigDir(); dir != "/custom/config/monica" {
		t.Errorf("expected %q, got %q", "/custom/config/monica", dir)
	}
}

func TestKeys(t *testing.T) {
	keys := Keys()
	for _, want := range []string{"suggest.max_offers", "budget.monthly_cap", "store.driver", "timeouts.claim_lease"} {
		if !isKnownKey(want) {
			t.Errorf("expected %q in Keys(), got %v", want, keys)
		}
	}
}
