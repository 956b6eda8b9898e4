package main

import (
	"fmt"

	"gorm.io/gorm"

	"cascade-engine/internal/config"
	"cascade-engine/internal/database"
	"cascade-engine/internal/jobs"
	"cascade-engine/internal/polymarket"
	"cascade-engine/internal/repository"
	"cascade-engine/internal/rules"
	"cascade-engine/internal/services"
	"cascade-engine/internal/textgen"
)

// app holds the wired services shared by the subcommands.
type app struct {
	cfg         *config.Config
	db          *gorm.DB
	repo        *repository.Repository
	rules       *rules.Rules
	polymarket  *polymarket.PolymarketClient
	tracker     *services.DiversityTracker
	settlement  *services.SettlementService
	queue       *services.ResolutionQueueService
	predictions *services.PredictionService
	poller      *jobs.ResolutionPoller
	generation  *services.GenerationService
}

func connectDB(cfg *config.Config) error {
	dsn := cfg.GetDSN()
	if cfg.Database.Driver == "sqlite" {
		dsn = cfg.Database.Path
	}
	if err := database.Connect(cfg.Database.Driver, dsn); err != nil {
		return err
	}
	return database.AutoMigrate()
}

func newApp(cfg *config.Config, db *gorm.DB) (*app, error) {
	ruleSet, err := rules.Load(cfg.App.RulesPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}

	repo := repository.NewRepository(db)

	pm := polymarket.NewPolymarketClient(cfg.Polymarket.APIKey, cfg.Polymarket.Secret, cfg.Polymarket.Passphrase)
	pm.SetBaseURL(cfg.Polymarket.BaseURL)

	settlement := services.NewSettlementService(
		repo,
		services.NewPredictionScorer(services.DefaultScoringConfig()),
		services.NewProgressionUpdater(services.DefaultProgressionRules()),
	)
	queue := services.NewResolutionQueueService(repo, settlement)

	poller := jobs.NewResolutionPoller(repo, pm, settlement, jobs.PollerConfig{
		Interval:  cfg.Poller.Interval,
		CallDelay: cfg.Poller.CallDelay,
		Retention: cfg.Poller.Retention,
	})
	queue.SetSweepReporter(poller)

	tracker := services.NewDiversityTracker(ruleSet, cfg.Generation.HistorySize)
	classifier := services.NewClassifier(ruleSet)
	generation := services.NewGenerationService(
		pm,
		repo,
		classifier,
		services.NewRelevanceScorer(ruleSet, classifier, tracker),
		tracker,
		services.NewOrchestrator(
			textgen.NewClient(cfg.TextGen.BaseURL, cfg.TextGen.APIKey, cfg.TextGen.Model),
			ruleSet,
			cfg.Generation.MaxCandidates,
			cfg.TextGen.MaxTokens,
		),
		services.NewCascadeValidator(ruleSet, tracker),
		services.GenerationConfig{
			PageSize:      cfg.Generation.PageSize,
			MaxPages:      cfg.Generation.MaxPages,
			TargetEffects: cfg.Generation.TargetEffects,
			Timeout:       cfg.Generation.Timeout,
		},
	)

	return &app{
		cfg:         cfg,
		db:          db,
		repo:        repo,
		rules:       ruleSet,
		polymarket:  pm,
		tracker:     tracker,
		settlement:  settlement,
		queue:       queue,
		predictions: services.NewPredictionService(repo),
		poller:      poller,
		generation:  generation,
	}, nil
}
