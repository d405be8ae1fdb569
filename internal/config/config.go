// Package config handles configuration loading and management for monica.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for monica.
type Config struct {
	Graph        GraphConfig        `mapstructure:"graph"`
	Anthropic    AnthropicConfig    `mapstructure:"anthropic"`
	Store        StoreConfig        `mapstructure:"store"`
	Rules        RulesConfig        `mapstructure:"rules"`
	Budget       BudgetConfig       `mapstructure:"budget"`
	Suggest      SuggestConfig      `mapstructure:"suggest"`
	Availability AvailabilityConfig `mapstructure:"availability"`
	Timeouts     TimeoutsConfig     `mapstructure:"timeouts"`
	Server       ServerConfig       `mapstructure:"server"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	TUI          TUIConfig          `mapstructure:"tui"`
}

// GraphConfig holds Microsoft Graph settings for the task store and calendars.
type GraphConfig struct {
	BaseURL string `mapstructure:"base_url"`
	// Token is a static bearer token. When empty, a managed identity
	// token is requested from IDENTITY_ENDPOINT.
	Token string `mapstructure:"token"`
	// Resource is the audience requested from the managed identity endpoint.
	Resource string `mapstructure:"resource"`
	// User is "me" for delegated tokens or a user ID for application tokens.
	User string `mapstructure:"user"`
	// Lists are the To Do list display names scanned for open tasks.
	Lists []string `mapstructure:"lists"`
	// TimeZone is the zone used for due dates written to To Do.
	TimeZone string `mapstructure:"time_zone"`
	// NotificationURL is the public /taskchain URL given to subscriptions.
	NotificationURL string `mapstructure:"notification_url"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
	// MaxTokens bounds each classifier response.
	MaxTokens int `mapstructure:"max_tokens"`
	// Classify enables chain-tag inference for untagged completed tasks.
	Classify bool `mapstructure:"classify"`
	// Advise enables model fit estimates during suggestion scoring.
	Advise     bool   `mapstructure:"advise"`
	UseBedrock bool   `mapstructure:"use_bedrock"`
	AWSRegion  string `mapstructure:"aws_region"`
	AWSProfile string `mapstructure:"aws_profile"`
}

// StoreConfig selects the task store backend and the state database.
type StoreConfig struct {
	// Backend is "graph" or "file".
	Backend string `mapstructure:"backend"`
	// TasksFile is the YAML file used by the file backend.
	TasksFile string `mapstructure:"tasks_file"`
	// Driver is the database/sql driver: "sqlite" (pure Go) or "sqlite3" (CGO).
	Driver string `mapstructure:"driver"`
	// Path is the state database path. Empty uses the XDG data directory.
	Path string `mapstructure:"path"`
}

// RulesConfig locates the chain rule table.
type RulesConfig struct {
	// Source is "file" (local path) or "graph" (OneDrive item path).
	Source string `mapstructure:"source"`
	Path   string `mapstructure:"path"`
	// DriveID selects a OneDrive drive for the graph source. Empty uses the user's drive.
	DriveID string `mapstructure:"drive_id"`
}

// BudgetConfig holds the model spend ceiling.
type BudgetConfig struct {
	// MonthlyCap is the USD ceiling per UTC calendar month. Zero disables model calls.
	MonthlyCap       float64 `mapstructure:"monthly_cap"`
	WarningThreshold float64 `mapstructure:"warning_threshold"`
}

// SuggestConfig holds context suggestion tunables.
type SuggestConfig struct {
	Horizon time.Duration `mapstructure:"horizon"`
	// Expiry is how long a suggestion may stay pending before it expires.
	Expiry time.Duration `mapstructure:"expiry"`
	// MaxOffers bounds how many times one task is ever offered.
	MaxOffers       int           `mapstructure:"max_offers"`
	MinScore        float64       `mapstructure:"min_score"`
	DefaultEstimate time.Duration `mapstructure:"default_estimate"`
	// DueHorizon is the distance to due at which due proximity reaches zero.
	DueHorizon      time.Duration `mapstructure:"due_horizon"`
	DefaultPriority float64       `mapstructure:"default_priority"`
	Weights         WeightsConfig `mapstructure:"weights"`
	// AdvisorWeight is the share of the final score taken from the model's fit estimate.
	AdvisorWeight float64 `mapstructure:"advisor_weight"`
	// SinkFile receives emitted suggestions as JSON lines. Empty logs them.
	SinkFile string `mapstructure:"sink_file"`
}

// WeightsConfig weights the matcher's component scores.
type WeightsConfig struct {
	Duration float64 `mapstructure:"duration"`
	Due      float64 `mapstructure:"due"`
	Source   float64 `mapstructure:"source"`
}

// AvailabilityConfig describes the calendars free windows are derived from.
type AvailabilityConfig struct {
	Calendars []CalendarConfig `mapstructure:"calendars"`
	// WorkdayStart and WorkdayEnd bound derived free windows ("HH:MM").
	WorkdayStart string        `mapstructure:"workday_start"`
	WorkdayEnd   string        `mapstructure:"workday_end"`
	TimeZone     string        `mapstructure:"time_zone"`
	MinWindow    time.Duration `mapstructure:"min_window"`
	SkipWeekends bool          `mapstructure:"skip_weekends"`
}

// CalendarConfig is one availability source.
type CalendarConfig struct {
	Name string `mapstructure:"name"`
	ID   string `mapstructure:"id"`
	// Kind is "busy" (events block time) or "free" (events are offered windows).
	Kind     string  `mapstructure:"kind"`
	Priority float64 `mapstructure:"priority"`
}

// TimeoutsConfig bounds every external call.
type TimeoutsConfig struct {
	TaskStore    time.Duration `mapstructure:"task_store"`
	Availability time.Duration `mapstructure:"availability"`
	Model        time.Duration `mapstructure:"model"`
	// ClaimLease is how long a completion claim blocks concurrent handlers.
	ClaimLease time.Duration `mapstructure:"claim_lease"`
}

// ServerConfig holds webhook server settings.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
	// ClientState must match the clientState of incoming Graph notifications.
	ClientState string `mapstructure:"client_state"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	// File redirects logs. Empty logs to stderr.
	File string `mapstructure:"file"`
}

// TUIConfig holds dashboard display settings.
type TUIConfig struct {
	RefreshRate time.Duration `mapstructure:"refresh_rate"`
}

// SourcePriorities maps calendar names to their configured priority.
func (a AvailabilityConfig) SourcePriorities() map[string]float64 {
	priorities := make(map[string]float64, len(a.Calendars))
	for _, c := range a.Calendars {
		priorities[c.Name] = c.Priority
	}
	return priorities
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (MONICA_*, ANTHROPIC_API_KEY, GRAPH_TOKEN)
// 2. Project config (.monica.yaml in current directory or parent)
// 3. User config (~/.config/monica/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(getUserConfigDir())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	bindEnv(v)

	return unmarshal(v)
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	bindEnv(v)

	return unmarshal(v)
}

func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix("MONICA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.BindEnv("anthropic.api_key", "MONICA_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY")
	v.BindEnv("graph.token", "MONICA_GRAPH_TOKEN", "GRAPH_TOKEN")
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Expand ${VAR} references in secrets and paths
	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)
	cfg.Graph.Token = expandEnv(cfg.Graph.Token)
	cfg.Server.ClientState = expandEnv(cfg.Server.ClientState)
	cfg.Store.Path = expandEnv(cfg.Store.Path)
	cfg.Store.TasksFile = expandEnv(cfg.Store.TasksFile)
	cfg.Rules.Path = expandEnv(cfg.Rules.Path)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail deep inside an invocation.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "graph", "file":
	default:
		return fmt.Errorf("store.backend must be graph or file, got %q", c.Store.Backend)
	}
	switch c.Store.Driver {
	case "sqlite", "sqlite3":
	default:
		return fmt.Errorf("store.driver must be sqlite or sqlite3, got %q", c.Store.Driver)
	}
	switch c.Rules.Source {
	case "file", "graph":
	default:
		return fmt.Errorf("rules.source must be file or graph, got %q", c.Rules.Source)
	}
	if c.Suggest.MaxOffers < 1 {
		return fmt.Errorf("suggest.max_offers must be at least 1, got %d", c.Suggest.MaxOffers)
	}
	if c.Suggest.MinScore < 0 || c.Suggest.MinScore > 1 {
		return fmt.Errorf("suggest.min_score must be within [0, 1], got %v", c.Suggest.MinScore)
	}
	w := c.Suggest.Weights
	if w.Duration < 0 || w.Due < 0 || w.Source < 0 || w.Duration+w.Due+w.Source == 0 {
		return fmt.Errorf("suggest.weights must be non-negative and not all zero")
	}
	if c.Budget.MonthlyCap < 0 {
		return fmt.Errorf("budget.monthly_cap must not be negative")
	}
	for _, cal := range c.Availability.Calendars {
		if cal.Kind != "busy" && cal.Kind != "free" {
			return fmt.Errorf("calendar %q: kind must be busy or free, got %q", cal.Name, cal.Kind)
		}
	}
	return nil
}

// Save writes the current configuration to the user config file.
// Secrets are written as given, so callers should keep ${VAR} references.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(filepath.Join(userConfigDir, "config.yaml"))

	v.Set("graph.base_url", cfg.Graph.BaseURL)
	v.Set("graph.token", cfg.Graph.Token)
	v.Set("graph.resource", cfg.Graph.Resource)
	v.Set("graph.user", cfg.Graph.User)
	v.Set("graph.lists", cfg.Graph.Lists)
	v.Set("graph.time_zone", cfg.Graph.TimeZone)
	v.Set("graph.notification_url", cfg.Graph.NotificationURL)
	v.Set("anthropic.api_key", cfg.Anthropic.APIKey)
	v.Set("anthropic.model", cfg.Anthropic.Model)
	v.Set("anthropic.max_tokens", cfg.Anthropic.MaxTokens)
	v.Set("anthropic.classify", cfg.Anthropic.Classify)
	v.Set("anthropic.advise", cfg.Anthropic.Advise)
	v.Set("anthropic.use_bedrock", cfg.Anthropic.UseBedrock)
	v.Set("anthropic.aws_region", cfg.Anthropic.AWSRegion)
	v.Set("anthropic.aws_profile", cfg.Anthropic.AWSProfile)
	v.Set("store.backend", cfg.Store.Backend)
	v.Set("store.tasks_file", cfg.Store.TasksFile)
	v.Set("store.driver", cfg.Store.Driver)
	v.Set("store.path", cfg.Store.Path)
	v.Set("rules.source", cfg.Rules.Source)
	v.Set("rules.path", cfg.Rules.Path)
	v.Set("rules.drive_id", cfg.Rules.DriveID)
	v.Set("budget.monthly_cap", cfg.Budget.MonthlyCap)
	v.Set("budget.warning_threshold", cfg.Budget.WarningThreshold)
	v.Set("suggest.horizon", cfg.Suggest.Horizon.String())
	v.Set("suggest.expiry", cfg.Suggest.Expiry.String())
	v.Set("suggest.max_offers", cfg.Suggest.MaxOffers)
	v.Set("suggest.min_score", cfg.Suggest.MinScore)
	v.Set("suggest.default_estimate", cfg.Suggest.DefaultEstimate.String())
	v.Set("suggest.due_horizon", cfg.Suggest.DueHorizon.String())
	v.Set("suggest.default_priority", cfg.Suggest.DefaultPriority)
	v.Set("suggest.weights.duration", cfg.Suggest.Weights.Duration)
	v.Set("suggest.weights.due", cfg.Suggest.Weights.Due)
	v.Set("suggest.weights.source", cfg.Suggest.Weights.Source)
	v.Set("suggest.advisor_weight", cfg.Suggest.AdvisorWeight)
	v.Set("suggest.sink_file", cfg.Suggest.SinkFile)
	v.Set("availability.calendars", calendarMaps(cfg.Availability.Calendars))
	v.Set("availability.workday_start", cfg.Availability.WorkdayStart)
	v.Set("availability.workday_end", cfg.Availability.WorkdayEnd)
	v.Set("availability.time_zone", cfg.Availability.TimeZone)
	v.Set("availability.min_window", cfg.Availability.MinWindow.String())
	v.Set("availability.skip_weekends", cfg.Availability.SkipWeekends)
	v.Set("timeouts.task_store", cfg.Timeouts.TaskStore.String())
	v.Set("timeouts.availability", cfg.Timeouts.Availability.String())
	v.Set("timeouts.model", cfg.Timeouts.Model.String())
	v.Set("timeouts.claim_lease", cfg.Timeouts.ClaimLease.String())
	v.Set("server.addr", cfg.Server.Addr)
	v.Set("server.client_state", cfg.Server.ClientState)
	v.Set("logging.file", cfg.Logging.File)
	v.Set("tui.refresh_rate", cfg.TUI.RefreshRate.String())

	return v.WriteConfig()
}

func calendarMaps(cals []CalendarConfig) []map[string]any {
	out := make([]map[string]any, 0, len(cals))
	for _, c := range cals {
		out = append(out, map[string]any{
			"name":     c.Name,
			"id":       c.ID,
			"kind":     c.Kind,
			"priority": c.Priority,
		})
	}
	return out
}

// SetValue updates a single key in the user config file, leaving other
// keys untouched. The key must be one monica knows about.
func SetValue(key, value string) error {
	key = strings.ToLower(key)
	if !isKnownKey(key) {
		return fmt.Errorf("unknown configuration key: %s", key)
	}

	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	path := filepath.Join(userConfigDir, "config.yaml")

	v := viper.New()
	v.SetConfigFile(path)
	if _, err := os.Stat(path); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading user config: %w", err)
		}
	}
	v.Set(key, value)

	// Round-trip through defaults so a bad value is rejected before it is written.
	check := viper.New()
	setDefaults(check)
	if err := check.MergeConfigMap(v.AllSettings()); err != nil {
		return fmt.Errorf("merging config: %w", err)
	}
	if _, err := unmarshal(check); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}

	return v.WriteConfigAs(path)
}

// Keys returns every known configuration key, sorted.
func Keys() []string {
	v := viper.New()
	setDefaults(v)
	keys := v.AllKeys()
	sort.Strings(keys)
	return keys
}

func isKnownKey(key string) bool {
	for _, k := range Keys() {
		if k == key {
			return true
		}
	}
	return false
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("graph.base_url", "https://graph.microsoft.com/v1.0")
	v.SetDefault("graph.token", "")
	v.SetDefault("graph.resource", "https://graph.microsoft.com")
	v.SetDefault("graph.user", "me")
	v.SetDefault("graph.lists", []string{"Tasks"})
	v.SetDefault("graph.time_zone", "UTC")
	v.SetDefault("graph.notification_url", "")

	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", "claude-3-5-haiku-20241022")
	v.SetDefault("anthropic.max_tokens", 64)
	v.SetDefault("anthropic.classify", false)
	v.SetDefault("anthropic.advise", false)
	v.SetDefault("anthropic.use_bedrock", false)
	v.SetDefault("anthropic.aws_region", "")
	v.SetDefault("anthropic.aws_profile", "")

	v.SetDefault("store.backend", "graph")
	v.SetDefault("store.tasks_file", "tasks.yaml")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "")

	v.SetDefault("rules.source", "file")
	v.SetDefault("rules.path", "rules.yaml")
	v.SetDefault("rules.drive_id", "")

	v.SetDefault("budget.monthly_cap", 5.0)
	v.SetDefault("budget.warning_threshold", 0.80)

	v.SetDefault("suggest.horizon", "4h")
	v.SetDefault("suggest.expiry", "2h")
	v.SetDefault("suggest.max_offers", 2)
	v.SetDefault("suggest.min_score", 0.5)
	v.SetDefault("suggest.default_estimate", "30m")
	v.SetDefault("suggest.due_horizon", "168h")
	v.SetDefault("suggest.default_priority", 0.5)
	v.SetDefault("suggest.weights.duration", 0.4)
	v.SetDefault("suggest.weights.due", 0.4)
	v.SetDefault("suggest.weights.source", 0.2)
	v.SetDefault("suggest.advisor_weight", 0.3)
	v.SetDefault("suggest.sink_file", "")

	v.SetDefault("availability.calendars", []map[string]any{})
	v.SetDefault("availability.workday_start", "09:00")
	v.SetDefault("availability.workday_end", "18:00")
	v.SetDefault("availability.time_zone", "UTC")
	v.SetDefault("availability.min_window", "15m")
	v.SetDefault("availability.skip_weekends", true)

	v.SetDefault("timeouts.task_store", "10s")
	v.SetDefault("timeouts.availability", "10s")
	v.SetDefault("timeouts.model", "20s")
	v.SetDefault("timeouts.claim_lease", "2m")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.client_state", "")

	v.SetDefault("logging.file", "")

	v.SetDefault("tui.refresh_rate", "2s")
}

// getUserConfigDir returns the XDG config directory for monica.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "monica")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "monica")
	}
	return filepath.Join(home, ".config", "monica")
}

// findProjectConfig searches for .monica.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".monica.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Graph: GraphConfig{
			BaseURL:  "https://graph.microsoft.com/v1.0",
			Resource: "https://graph.microsoft.com",
			User:     "me",
			Lists:    []string{"Tasks"},
			TimeZone: "UTC",
		},
		Anthropic: AnthropicConfig{
			Model:     "claude-3-5-haiku-20241022",
			MaxTokens: 64,
		},
		Store: StoreConfig{
			Backend:   "graph",
			TasksFile: "tasks.yaml",
			Driver:    "sqlite",
		},
		Rules: RulesConfig{
			Source: "file",
			Path:   "rules.yaml",
		},
		Budget: BudgetConfig{
			MonthlyCap:       5.0,
			WarningThreshold: 0.80,
		},
		Suggest: SuggestConfig{
			Horizon:         4 * time.Hour,
			Expiry:          2 * time.Hour,
			MaxOffers:       2,
			MinScore:        0.5,
			DefaultEstimate: 30 * time.Minute,
			DueHorizon:      7 * 24 * time.Hour,
			DefaultPriority: 0.5,
			Weights: WeightsConfig{
				Duration: 0.4,
				Due:      0.4,
				Source:   0.2,
			},
			AdvisorWeight: 0.3,
		},
		Availability: AvailabilityConfig{
			WorkdayStart: "09:00",
			WorkdayEnd:   "18:00",
			TimeZone:     "UTC",
			MinWindow:    15 * time.Minute,
			SkipWeekends: true,
		},
		Timeouts: TimeoutsConfig{
			TaskStore:    10 * time.Second,
			Availability: 10 * time.Second,
			Model:        20 * time.Second,
			ClaimLease:   2 * time.Minute,
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
		TUI: TUIConfig{
			RefreshRate: 2 * time.Second,
		},
	}
}
