package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/monica/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `View or modify monica configuration.

Configuration is stored at ~/.config/monica/config.yaml
Project-specific overrides can be placed in .monica.yaml`,
}

var configShowCmd = &cobra.Command{
	Use:   "show [key]",
	Short: "Show the effective configuration, or one key",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		values := configValues(cfg)
		if len(args) == 1 {
			v, ok := values[strings.ToLower(args[0])]
			if !ok {
				return fmt.Errorf("unknown configuration key: %s", args[0])
			}
			fmt.Println(v)
			return nil
		}
		for _, key := range config.Keys() {
			if v, ok := values[key]; ok {
				fmt.Printf("%s: %s\n", key, v)
			}
		}
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the configuration file locations",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("user:    %s\n", config.GetUserConfigPath())
		project := config.GetProjectConfigPath()
		if project == "" {
			project = "(none)"
		}
		fmt.Printf("project: %s\n", project)
		if configPath != "" {
			fmt.Printf("flag:    %s\n", configPath)
		}
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a key in the user configuration file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.SetValue(args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("Set %s = %s\n", args[0], args[1])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configSetCmd)
}

// configValues renders every scalar key of cfg, masking secrets.
func configValues(cfg *config.Config) map[string]string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

	calendars := make([]string, 0, len(cfg.Availability.Calendars))
	for _, c := range cfg.Availability.Calendars {
		calendars = append(calendars, fmt.Sprintf("%s(%s,%s)", c.Name, c.Kind, f(c.Priority)))
	}

	return map[string]string{
		"graph.base_url":             cfg.Graph.BaseURL,
		"graph.token":                config.MaskSecret(cfg.Graph.Token),
		"graph.resource":             cfg.Graph.Resource,
		"graph.user":                 cfg.Graph.User,
		"graph.lists":                strings.Join(cfg.Graph.Lists, ","),
		"graph.time_zone":            cfg.Graph.TimeZone,
		"graph.notification_url":     cfg.Graph.NotificationURL,
		"anthropic.api_key":          config.MaskSecret(cfg.Anthropic.APIKey),
		"anthropic.model":            cfg.Anthropic.Model,
		"anthropic.max_tokens":       strconv.Itoa(cfg.Anthropic.MaxTokens),
		"anthropic.classify":         strconv.FormatBool(cfg.Anthropic.Classify),
		"anthropic.advise":           strconv.FormatBool(cfg.Anthropic.Advise),
		"anthropic.use_bedrock":      strconv.FormatBool(cfg.Anthropic.UseBedrock),
		"anthropic.aws_region":       cfg.Anthropic.AWSRegion,
		"anthropic.aws_profile":      cfg.Anthropic.AWSProfile,
		"store.backend":              cfg.Store.Backend,
		"store.tasks_file":           cfg.Store.TasksFile,
		"store.driver":               cfg.Store.Driver,
		"store.path":                 cfg.Store.Path,
		"rules.source":               cfg.Rules.Source,
		"rules.path":                 cfg.Rules.Path,
		"rules.drive_id":             cfg.Rules.DriveID,
		"budget.monthly_cap":         f(cfg.Budget.MonthlyCap),
		"budget.warning_threshold":   f(cfg.Budget.WarningThreshold),
		"suggest.horizon":            cfg.Suggest.Horizon.String(),
		"suggest.expiry":             cfg.Suggest.Expiry.String(),
		"suggest.max_offers":         strconv.Itoa(cfg.Suggest.MaxOffers),
		"suggest.min_score":          f(cfg.Suggest.MinScore),
		"suggest.default_estimate":   cfg.Suggest.DefaultEstimate.String(),
		"suggest.due_horizon":        cfg.Suggest.DueHorizon.String(),
		"suggest.default_priority":   f(cfg.Suggest.DefaultPriority),
		"suggest.weights.duration":   f(cfg.Suggest.Weights.Duration),
		"suggest.weights.due":        f(cfg.Suggest.Weights.Due),
		"suggest.weights.source":     f(cfg.Suggest.Weights.Source),
		"suggest.advisor_weight":     f(cfg.Suggest.AdvisorWeight),
		"suggest.sink_file":          cfg.Suggest.SinkFile,
		"availability.calendars":     strings.Join(calendars, ","),
		"availability.workday_start": cfg.Availability.WorkdayStart,
		"availability.workday_end":   cfg.Availability.WorkdayEnd,
		"availability.time_zone":     cfg.Availability.TimeZone,
		"availability.min_window":    cfg.Availability.MinWindow.String(),
		"availability.skip_weekends": strconv.FormatBool(cfg.Availability.SkipWeekends),
		"timeouts.task_store":        cfg.Timeouts.TaskStore.String(),
		"timeouts.availability":      cfg.Timeouts.Availability.String(),
		"timeouts.model":             cfg.Timeouts.Model.String(),
		"timeouts.claim_lease":       cfg.Timeouts.ClaimLease.String(),
		"server.addr":                cfg.Server.Addr,
		"server.client_state":        config.MaskSecret(cfg.Server.ClientState),
		"logging.file":               cfg.Logging.File,
		"tui.refresh_rate":           cfg.TUI.RefreshRate.String(),
	}
}
