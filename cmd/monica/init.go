package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/monica/internal/config"
	"github.com/ShayCichocki/monica/internal/rules"
)

var (
	initForce   bool
	initBackend string
)

var initCmd = &cobra.Command{
	Use:   "init [directory]",
	Short: "Initialize a monica project",
	Long: `Initialize a directory for use with monica.

This command writes starter files and checks credentials:
  - .monica.yaml with the selected task store backend
  - rules.yaml with an example chain rule
  - tasks.yaml when the file backend is selected

Existing files are kept unless --force is given.

Examples:
  monica init                   # Graph backend in the current directory
  monica init --backend file    # Local YAML task file, no Graph access needed
  monica init ./tasks --force   # Overwrite starter files`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing starter files")
	initCmd.Flags().StringVar(&initBackend, "backend", "graph", "Task store backend: graph or file")
}

const starterRules = `# Chain rules: when a completed task matches "when", "then" describes its successor.
# A task's chain tag comes from its "chain" field (file backend) or a
# "monica: chain: <tag>" line in its note (To Do).
rules:
  - name: weekly-review
    when:
      tag: weekly
    then:
      title: "{{.Title}}"
      due_offset: 168h
      due_anchor: due
      estimate: 45m

  # - name: follow-up
  #   when:
  #     title_prefix: "Send "
  #   then:
  #     title: "Follow up: {{.Title}}"
  #     due_offset: 72h
`

const starterTasks = `# Tasks for the file backend. Mark a task completed and run
# 'monica watch' (or 'monica complete <id>') to chain its successor.
tasks:
  - id: example-1
    title: Review inbox
    list: Tasks
    chain: weekly
    estimate: 30m
    state: open
`

func starterConfig(backend string) string {
	s := fmt.Sprintf(`# monica project configuration
# Overrides ~/.config/monica/config.yaml

store:
  backend: %s
  tasks_file: tasks.yaml

rules:
  path: rules.yaml
  # source: graph reads path from OneDrive instead.

budget:
  monthly_cap: 5.0

# anthropic:
#   classify: true
#   advise: true
`, backend)
	if backend == "graph" {
		s += `
graph:
  lists: [Tasks]
  # notification_url: https://example.net/taskchain

# availability:
#   calendars:
#     - name: work
#       kind: busy
#       priority: 1.0
`
	}
	return s
}

func runInit(cmd *cobra.Command, args []string) error {
	if initBackend != "graph" && initBackend != "file" {
		return fmt.Errorf("--backend must be graph or file, got %q", initBackend)
	}

	targetDir := "."
	if len(args) > 0 {
		targetDir = args[0]
	}
	absPath, err := filepath.Abs(targetDir)
	if err != nil {
		return fmt.Errorf("resolving absolute path: %w", err)
	}
	if err := os.MkdirAll(absPath, 0755); err != nil {
		return fmt.Errorf("creating directory %s: %w", absPath, err)
	}

	fmt.Printf("Initializing monica in %s...\n\n", absPath)

	if _, err := rules.Parse([]byte(starterRules)); err != nil {
		return fmt.Errorf("starter rules: %w", err)
	}

	files := []struct {
		name    string
		content string
	}{
		{".monica.yaml", starterConfig(initBackend)},
		{"rules.yaml", starterRules},
	}
	if initBackend == "file" {
		files = append(files, struct {
			name    string
			content string
		}{"tasks.yaml", starterTasks})
	}

	for _, f := range files {
		written, err := writeStarter(filepath.Join(absPath, f.name), f.content, initForce)
		if err != nil {
			return err
		}
		if written {
			printStatus("✓", "Created "+f.name, color.FgGreen)
		} else {
			printStatus("·", f.name+" exists (use --force to overwrite)", color.FgCyan)
		}
	}

	apiKeySet := true
	if _, err := config.GetAPIKey(cfg); err != nil {
		apiKeySet = false
		printStatus("⚠", "ANTHROPIC_API_KEY not set (classification and advice stay off)", color.FgYellow)
	} else {
		printStatus("✓", "ANTHROPIC_API_KEY is set", color.FgGreen)
	}

	if initBackend == "graph" {
		switch config.GetGraphTokenSource(cfg) {
		case config.SecretSourceNone:
			printStatus("⚠", "No Graph credentials (set GRAPH_TOKEN or run with a managed identity)", color.FgYellow)
		case config.SecretSourceIdentity:
			printStatus("✓", "Graph managed identity available", color.FgGreen)
		default:
			printStatus("✓", "Graph token is set", color.FgGreen)
		}
	}

	fmt.Printf("\n%s monica initialization complete!\n\n", color.GreenString("✓"))
	fmt.Println("Next steps:")
	if !apiKeySet {
		fmt.Println("  - Optionally set your API key:")
		fmt.Println("     export ANTHROPIC_API_KEY=your-key-here")
	}
	fmt.Println("  - Edit rules.yaml to describe your chains")
	if initBackend == "file" {
		fmt.Println("  - Run: monica watch")
	} else {
		fmt.Println("  - Run: monica serve, then monica subscribe --url <public-url>/taskchain")
	}
	fmt.Println("  - Suggestions: monica tick")
	return nil
}

// writeStarter writes content to path unless it exists and force is false.
func writeStarter(path, content string, force bool) (bool, error) {
	if _, err := os.Stat(path); err == nil && !force {
		return false, nil
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return false, fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	return true, nil
}
