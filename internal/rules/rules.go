// Package rules loads the static chain rule table and resolves completed
// tasks to successor templates. Resolution is pure: it reads no clock and
// makes no network calls.
package rules

import (
	"bytes"
	"fmt"
	"os"
	"regexp"
	"strings"
	"text/template"
	"time"

	"gopkg.in/yaml.v3"
)

// DueAnchor selects the instant a successor's due offset is added to.
type DueAnchor string

const (
	// AnchorCompleted offsets from the completion time of the source task.
	AnchorCompleted DueAnchor = "completed"
	// AnchorDue offsets from the source task's due date, falling back to
	// the completion time when the source had none.
	AnchorDue DueAnchor = "due"
)

// Predicate selects the completed tasks a rule applies to. Every condition
// that is set must match.
type Predicate struct {
	Tag          string `yaml:"tag,omitempty"`
	Title        string `yaml:"title,omitempty"`
	TitlePrefix  string `yaml:"title_prefix,omitempty"`
	TitlePattern string `yaml:"title_pattern,omitempty"`
	List         string `yaml:"list,omitempty"`
	Category     string `yaml:"category,omitempty"`

	titleRe *regexp.Regexp
}

// Empty reports whether the predicate has no conditions.
func (p *Predicate) Empty() bool {
	return p.Tag == "" && p.Title == "" && p.TitlePrefix == "" &&
		p.TitlePattern == "" && p.List == "" && p.Category == ""
}

// Successor describes the task created when a rule fires.
type Successor struct {
	// Title is a text/template rendered over the completed task.
	Title string `yaml:"title"`
	// List defaults to the completed task's list.
	List string `yaml:"list,omitempty"`
	// Categories default to the completed task's categories.
	Categories []string `yaml:"categories,omitempty"`
	// DueOffset is added to the anchor. Nil means the successor has no due date.
	DueOffset *time.Duration `yaml:"due_offset,omitempty"`
	DueAnchor DueAnchor      `yaml:"due_anchor,omitempty"`
	// Estimate defaults to the completed task's estimate.
	Estimate time.Duration `yaml:"estimate,omitempty"`
	// Chain is the successor's chain tag. Nil inherits the completed
	// task's tag; an empty string clears it.
	Chain *string `yaml:"chain,omitempty"`

	titleTmpl *template.Template
}

// ChainRule maps a predicate over completed tasks to a successor template.
type ChainRule struct {
	Name      string    `yaml:"name"`
	When      Predicate `yaml:"when"`
	Successor Successor `yaml:"then"`
}

// legacyRule is the flat shape used by task-chains.json:
// an exact trigger title creating one task in a list with one category.
type legacyRule struct {
	TriggerTask string `yaml:"trigger_task"`
	CreatesTask string `yaml:"creates_task"`
	List        string `yaml:"list"`
	Category    string `yaml:"category"`
}

// ruleEntry accepts either shape in one sequence.
type ruleEntry struct {
	ChainRule  `yaml:",inline"`
	legacyRule `yaml:",inline"`
}

type ruleFile struct {
	Rules []ruleEntry `yaml:"rules"`
}

var templateFuncs = template.FuncMap{
	"date": func(layout string, t time.Time) string {
		return t.Format(layout)
	},
	"upper":      strings.ToUpper,
	"lower":      strings.ToLower,
	"trimPrefix": strings.TrimPrefix,
	"trimSuffix": strings.TrimSuffix,
}

// Load reads and validates a rule table from a YAML (or JSON) file.
func Load(path string) ([]*ChainRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules %s: %w", path, err)
	}
	rules, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("load rules %s: %w", path, err)
	}
	return rules, nil
}

// Parse decodes and validates a rule table. The document is either a
// mapping with a rules key or a bare sequence of rules.
func Parse(data []byte) ([]*ChainRule, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}

	var entries []ruleEntry
	if len(root.Content) > 0 {
		doc := root.Content[0]
		if doc.Kind == yaml.SequenceNode {
			if err := doc.Decode(&entries); err != nil {
				return nil, fmt.Errorf("decode rules: %w", err)
			}
		} else {
			var f ruleFile
			if err := doc.Decode(&f); err != nil {
				return nil, fmt.Errorf("decode rules: %w", err)
			}
			entries = f.Rules
		}
	}

	rules := make([]*ChainRule, 0, len(entries))
	seen := make(map[string]bool, len(entries))
	for i, e := range entries {
		rule := e.normalize()
		if rule.Name == "" {
			rule.Name = fmt.Sprintf("rule-%d", i+1)
		}
		if seen[rule.Name] {
			return nil, fmt.Errorf("rule %q: duplicate name", rule.Name)
		}
		seen[rule.Name] = true

		if err := rule.compile(); err != nil {
			return nil, fmt.Errorf("rule %q: %w", rule.Name, err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// normalize converts a legacy entry into a ChainRule.
func (e ruleEntry) normalize() *ChainRule {
	if e.TriggerTask == "" && e.CreatesTask == "" {
		rule := e.ChainRule
		return &rule
	}

	rule := &ChainRule{
		Name: e.Name,
		When: Predicate{Title: e.TriggerTask},
		Successor: Successor{
			// Legacy titles are literal text.
			Title: escapeTemplate(e.CreatesTask),
			List:  e.List,
		},
	}
	if rule.Name == "" {
		rule.Name = e.TriggerTask
	}
	if e.Category != "" {
		rule.Successor.Categories = []string{e.Category}
	}
	return rule
}

func escapeTemplate(s string) string {
	if !strings.Contains(s, "{{") {
		return s
	}
	return `{{"` + strings.ReplaceAll(strings.ReplaceAll(s, `\`, `\\`), `"`, `\"`) + `"}}`
}

// compile validates the rule and prepares its pattern and title template.
func (r *ChainRule) compile() error {
	if r.When.Empty() {
		return fmt.Errorf("predicate has no conditions")
	}
	if r.When.TitlePattern != "" {
		re, err := regexp.Compile(r.When.TitlePattern)
		if err != nil {
			return fmt.Errorf("title_pattern: %w", err)
		}
		r.When.titleRe = re
	}

	if strings.TrimSpace(r.Successor.Title) == "" {
		return fmt.Errorf("successor title is empty")
	}
	tmpl, err := template.New(r.Name).Funcs(templateFuncs).Option("missingkey=error").Parse(r.Successor.Title)
	if err != nil {
		return fmt.Errorf("successor title: %w", err)
	}
	r.Successor.titleTmpl = tmpl

	switch r.Successor.DueAnchor {
	case "":
		r.Successor.DueAnchor = AnchorCompleted
	case AnchorCompleted, AnchorDue:
	default:
		return fmt.Errorf("due_anchor must be %q or %q, got %q", AnchorCompleted, AnchorDue, r.Successor.DueAnchor)
	}
	if r.Successor.Estimate < 0 {
		return fmt.Errorf("estimate must not be negative")
	}
	return nil
}

// renderTitle executes the successor title template.
func (s *Successor) renderTitle(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := s.titleTmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}
