package rules

import (
	"fmt"
	"strings"
	"time"

	"github.com/ShayCichocki/monica/pkg/models"
)

// TemplateData is the value successor title templates are rendered over.
type TemplateData struct {
	Title       string
	List        string
	Tag         string
	Categories  []string
	Due         *time.Time
	CompletedAt time.Time
}

// Resolver matches completed tasks against an ordered rule table.
type Resolver struct {
	rules []*ChainRule
}

// NewResolver creates a resolver over rules in declaration order.
func NewResolver(rules []*ChainRule) *Resolver {
	return &Resolver{rules: rules}
}

// Rules returns the rule table.
func (r *Resolver) Rules() []*ChainRule {
	return r.rules
}

// Tags returns the distinct chain tags referenced by rule predicates, in
// declaration order. These are the only tags worth inferring for a task.
func (r *Resolver) Tags() []string {
	var tags []string
	seen := make(map[string]bool)
	for _, rule := range r.rules {
		tag := strings.ToLower(rule.When.Tag)
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		tags = append(tags, rule.When.Tag)
	}
	return tags
}

// Match returns the first rule whose predicate matches task, or nil.
func (r *Resolver) Match(task *models.Task) *ChainRule {
	for _, rule := range r.rules {
		if rule.When.Matches(task) {
			return rule
		}
	}
	return nil
}

// Resolve returns the successor template for a task completed at
// completedAt, or nil when no rule matches. The error, if any, is a
// permanent failure: the same task and rule will never render.
func (r *Resolver) Resolve(task *models.Task, completedAt time.Time) (*models.TaskTemplate, *ChainRule, error) {
	rule := r.Match(task)
	if rule == nil {
		return nil, nil, nil
	}
	tmpl, err := rule.Instantiate(task, completedAt)
	if err != nil {
		return nil, rule, err
	}
	return tmpl, rule, nil
}

// Matches reports whether every set condition holds for task.
func (p *Predicate) Matches(task *models.Task) bool {
	if p.Empty() {
		return false
	}
	if p.Tag != "" && !strings.EqualFold(p.Tag, task.ChainTag) {
		return false
	}
	title := strings.TrimSpace(task.Title)
	if p.Title != "" && p.Title != title {
		return false
	}
	if p.TitlePrefix != "" && !strings.HasPrefix(title, p.TitlePrefix) {
		return false
	}
	if p.titleRe != nil && !p.titleRe.MatchString(title) {
		return false
	}
	if p.List != "" && !strings.EqualFold(p.List, task.List) {
		return false
	}
	if p.Category != "" && !task.HasCategory(p.Category) {
		return false
	}
	return true
}

// Instantiate renders the rule's successor for a completed task.
func (r *ChainRule) Instantiate(task *models.Task, completedAt time.Time) (*models.TaskTemplate, error) {
	s := &r.Successor

	title, err := s.renderTitle(TemplateData{
		Title:       task.Title,
		List:        task.List,
		Tag:         task.ChainTag,
		Categories:  task.Categories,
		Due:         task.Due,
		CompletedAt: completedAt,
	})
	if err != nil {
		return nil, models.Failed(fmt.Sprintf("rule %s: render title: %v", r.Name, err))
	}

	tmpl := &models.TaskTemplate{
		Title:             title,
		List:              s.List,
		Categories:        append([]string(nil), s.Categories...),
		EstimatedDuration: s.Estimate,
		ChainTag:          task.ChainTag,
	}
	if tmpl.List == "" {
		tmpl.List = task.List
	}
	if len(tmpl.Categories) == 0 {
		tmpl.Categories = append([]string(nil), task.Categories...)
	}
	if tmpl.EstimatedDuration == 0 {
		tmpl.EstimatedDuration = task.EstimatedDuration
	}
	if s.Chain != nil {
		tmpl.ChainTag = *s.Chain
	}

	if s.DueOffset != nil {
		anchor := completedAt
		if s.DueAnchor == AnchorDue && task.Due != nil {
			anchor = *task.Due
		}
		due := anchor.Add(*s.DueOffset)
		tmpl.Due = &due
	}

	if err := tmpl.Validate(); err != nil {
		return nil, fmt.Errorf("rule %s: %w", r.Name, err)
	}
	return tmpl, nil
}
