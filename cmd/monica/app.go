package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/ShayCichocki/monica/internal/api"
	"github.com/ShayCichocki/monica/internal/budget"
	"github.com/ShayCichocki/monica/internal/chain"
	"github.com/ShayCichocki/monica/internal/config"
	"github.com/ShayCichocki/monica/internal/events"
	"github.com/ShayCichocki/monica/internal/graph"
	"github.com/ShayCichocki/monica/internal/rules"
	"github.com/ShayCichocki/monica/internal/state"
	"github.com/ShayCichocki/monica/internal/suggest"
	"github.com/ShayCichocki/monica/internal/taskstore"
	"github.com/ShayCichocki/monica/pkg/models"
)

// app holds every component built from one configuration.
type app struct {
	cfg *config.Config
	db  *state.DB

	tasks        taskstore.Client
	availability taskstore.AvailabilitySource
	// graph and todo are nil for the file backend, files for the graph backend.
	graph *graph.Client
	todo  *graph.TodoStore
	files *taskstore.FileStore

	guard      *budget.Guard
	resolver   *rules.Resolver
	classifier *api.Classifier
	advisor    *api.Advisor
	emitter    *events.Emitter

	chain   *chain.Engine
	suggest *suggest.Engine
	sink    suggest.Sink
}

// openState opens and migrates the state database.
func openState(cfg *config.Config) (*state.DB, error) {
	path := cfg.Store.Path
	if path == "" {
		path = state.DefaultDBPath()
	}
	db, err := state.OpenWithDriver(cfg.Store.Driver, path)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return db, nil
}

// newApp wires the engines. emitter may be nil.
func newApp(cfg *config.Config, emitter *events.Emitter) (*app, error) {
	db, err := openState(cfg)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, db: db, emitter: emitter}
	if err := a.wire(); err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire() error {
	cfg := a.cfg

	if err := a.wireTaskStore(); err != nil {
		return err
	}

	a.guard = budget.NewGuard(cfg.Budget.MonthlyCap,
		budget.WithStore(a.db),
		budget.WithWarningThreshold(cfg.Budget.WarningThreshold),
	)

	resolver, err := a.loadResolver()
	if err != nil {
		return err
	}
	a.resolver = resolver

	a.wireModel()

	chainOpts := []chain.Option{
		chain.WithTaskStoreTimeout(cfg.Timeouts.TaskStore),
		chain.WithClaimLease(cfg.Timeouts.ClaimLease),
		chain.WithEmitter(a.emitter),
	}
	if a.classifier != nil {
		chainOpts = append(chainOpts, chain.WithClassifier(a.classifier))
	}
	a.chain = chain.NewEngine(chain.RequiredConfig{
		Tasks:    a.tasks,
		Ledger:   a.db,
		Resolver: a.resolver,
	}, chainOpts...)

	suggestOpts := []suggest.Option{
		suggest.WithMatcher(suggest.MatcherConfig{
			Weights: suggest.Weights{
				Duration: cfg.Suggest.Weights.Duration,
				Due:      cfg.Suggest.Weights.Due,
				Source:   cfg.Suggest.Weights.Source,
			},
			DefaultEstimate:  cfg.Suggest.DefaultEstimate,
			DueHorizon:       cfg.Suggest.DueHorizon,
			SourcePriorities: cfg.Availability.SourcePriorities(),
			DefaultPriority:  cfg.Suggest.DefaultPriority,
		}),
		suggest.WithHorizon(cfg.Suggest.Horizon),
		suggest.WithExpiry(cfg.Suggest.Expiry),
		suggest.WithMaxOffers(cfg.Suggest.MaxOffers),
		suggest.WithMinScore(cfg.Suggest.MinScore),
		suggest.WithBudget(a.guard),
		suggest.WithTimeouts(cfg.Timeouts.TaskStore, cfg.Timeouts.Availability),
		suggest.WithEmitter(a.emitter),
	}
	if a.advisor != nil {
		suggestOpts = append(suggestOpts, suggest.WithAdvisor(a.advisor, cfg.Suggest.AdvisorWeight))
	}
	a.suggest = suggest.NewEngine(suggest.RequiredConfig{
		Tasks:        a.tasks,
		Availability: a.availability,
		History:      a.db,
	}, suggestOpts...)

	a.sink = suggest.LogSink{}
	if cfg.Suggest.SinkFile != "" {
		a.sink = suggest.MultiSink{suggest.LogSink{}, suggest.NewJSONLinesSink(cfg.Suggest.SinkFile)}
	}
	return nil
}

func (a *app) wireTaskStore() error {
	cfg := a.cfg

	if cfg.Store.Backend == "file" {
		a.files = taskstore.NewFileStore(cfg.Store.TasksFile)
		a.tasks = a.files
		a.availability = a.files
		return nil
	}

	client, err := newGraphClient(cfg)
	if err != nil {
		return err
	}
	todo, err := graph.NewTodoStore(client, cfg.Graph.Lists, cfg.Graph.TimeZone)
	if err != nil {
		return err
	}

	hours, err := graph.ParseWorkingHours(
		cfg.Availability.WorkdayStart,
		cfg.Availability.WorkdayEnd,
		cfg.Availability.TimeZone,
		cfg.Availability.SkipWeekends,
	)
	if err != nil {
		return fmt.Errorf("availability: %w", err)
	}

	calendars := make([]graph.Calendar, 0, len(cfg.Availability.Calendars))
	for _, c := range cfg.Availability.Calendars {
		calendars = append(calendars, graph.Calendar{Name: c.Name, ID: c.ID, Kind: c.Kind})
	}
	if len(calendars) == 0 {
		calendars = []graph.Calendar{{Name: "calendar", Kind: graph.KindBusy}}
	}

	a.graph = client
	a.todo = todo
	a.tasks = todo
	a.availability = graph.NewCalendarSource(client, calendars, hours, cfg.Availability.MinWindow)
	return nil
}

// newGraphClient prefers a static token and falls back to a managed identity.
func newGraphClient(cfg *config.Config) (*graph.Client, error) {
	var tokens graph.TokenSource
	if token, err := config.GetGraphToken(cfg); err == nil {
		tokens = graph.StaticToken(token)
	} else {
		mi, err := graph.NewManagedIdentity(cfg.Graph.Resource)
		if err != nil {
			return nil, config.ErrNoGraphToken
		}
		tokens = mi
	}

	return graph.NewClient(graph.Config{
		BaseURL: cfg.Graph.BaseURL,
		User:    cfg.Graph.User,
		Tokens:  tokens,
	}), nil
}

// loadResolver reads the rule table from the configured source.
func (a *app) loadResolver() (*rules.Resolver, error) {
	cfg := a.cfg
	if cfg.Rules.Source != "graph" {
		return loadResolver(cfg.Rules.Path)
	}

	client := a.graph
	if client == nil {
		c, err := newGraphClient(cfg)
		if err != nil {
			return nil, err
		}
		client = c
	}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.TaskStore)
	defer cancel()
	return loadDriveResolver(ctx, client, cfg.Rules.DriveID, cfg.Rules.Path)
}

// loadDriveResolver reads the rule table from OneDrive. A missing item
// means no task chains.
func loadDriveResolver(ctx context.Context, client *graph.Client, driveID, path string) (*rules.Resolver, error) {
	data, err := client.DriveFile(ctx, driveID, path)
	if errors.Is(err, models.ErrNotFound) {
		log.Printf("[rules] Warning: %s not found on OneDrive, no successors will be created", path)
		return rules.NewResolver(nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	table, err := rules.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse rules from OneDrive %s: %w", path, err)
	}
	log.Printf("[rules] loaded %d rule(s) from OneDrive %s", len(table), path)
	return rules.NewResolver(table), nil
}

// loadResolver reads the rule table. A missing file means no task chains.
func loadResolver(path string) (*rules.Resolver, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		log.Printf("[rules] Warning: %s not found, no successors will be created", path)
		return rules.NewResolver(nil), nil
	}
	table, err := rules.Load(path)
	if err != nil {
		return nil, err
	}
	log.Printf("[rules] loaded %d rule(s) from %s", len(table), path)
	return rules.NewResolver(table), nil
}

// wireModel builds the classifier and advisor when enabled. Failing to
// reach the model is not fatal: both engines work without it.
func (a *app) wireModel() {
	cfg := a.cfg
	if !cfg.Anthropic.Classify && !cfg.Anthropic.Advise {
		return
	}

	clientCfg := api.ClientConfig{
		Model:         anthropic.Model(cfg.Anthropic.Model),
		UseAWSBedrock: cfg.Anthropic.UseBedrock,
		AWSRegion:     cfg.Anthropic.AWSRegion,
		AWSProfile:    cfg.Anthropic.AWSProfile,
	}
	if !cfg.Anthropic.UseBedrock {
		key, err := config.GetAPIKey(cfg)
		if err != nil {
			log.Printf("[api] Warning: %v, model features disabled", err)
			return
		}
		clientCfg.APIKey = key
	}

	client, err := api.NewClient(clientCfg)
	if err != nil {
		log.Printf("[api] Warning: create client: %v, model features disabled", err)
		return
	}

	modelCfg := api.ClassifierConfig{
		Model:     string(client.Model()),
		MaxTokens: int64(cfg.Anthropic.MaxTokens),
		Timeout:   cfg.Timeouts.Model,
	}
	if cfg.Anthropic.Classify {
		a.classifier = api.NewClassifier(client, a.guard, modelCfg)
	}
	if cfg.Anthropic.Advise {
		a.advisor = api.NewAdvisor(client, a.guard, modelCfg)
	}
}

// subscriptions returns the Graph subscription manager, or an error for
// the file backend.
func (a *app) subscriptions() (*graph.Subscriptions, error) {
	if a.graph == nil {
		return nil, fmt.Errorf("subscriptions need store.backend: graph")
	}
	return graph.NewSubscriptions(a.graph), nil
}

func (a *app) Close() error {
	return a.db.Close()
}
