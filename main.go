package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/studyengine/internal/ai"
	"github.com/example/studyengine/internal/config"
	"github.com/example/studyengine/internal/database"
	"github.com/example/studyengine/internal/generation"
	"github.com/example/studyengine/internal/memory"
	"github.com/example/studyengine/internal/ranker"
	"github.com/example/studyengine/internal/remediation"
	"github.com/example/studyengine/internal/scheduler"
	"github.com/example/studyengine/internal/session"
	"github.com/example/studyengine/internal/struggle"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	learnerID := flag.String("learner", "", "print a learner's progress and next atom, then exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := database.Connect(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	var synth generation.Synthesizer
	if cfg.Anthropic.APIKey != "" {
		synth, err = ai.New(cfg.Anthropic.APIKey, cfg.Anthropic.Model)
		if err != nil {
			log.Fatalf("Failed to create synthesizer: %v", err)
		}
	} else {
		log.Println("ANTHROPIC_API_KEY not set; content generation disabled")
		synth = ai.Disabled{}
	}

	atoms := database.NewAtomRepository(db)
	orchestrator := generation.NewOrchestrator(synth, atoms)
	orchestrator.CacheTTL = cfg.Engine.CacheTTL()
	orchestrator.SynthesisTimeout = cfg.Engine.SynthesisTimeout()
	orchestrator.MaxProactive = cfg.Engine.MaxProactiveConcepts

	router := remediation.NewRouter(atoms, orchestrator)
	router.MinAtoms = cfg.Engine.MinRemediationAtoms

	struggles := struggle.NewTracker(
		database.NewStruggleRepository(db),
		database.NewSectionRepository(db),
	)

	model := memory.NewModel()
	model.TargetRetention = cfg.Engine.TargetRetention

	engine := session.New(db, model, struggles, router)
	engine.GapThreshold = cfg.Engine.GapMasteryThreshold
	engine.Tracker.HypercorrectionConf = cfg.Engine.HypercorrectionConfidence
	engine.Ranker.Weights = ranker.Weights{
		Decay:      cfg.Engine.ZScoreWeights.Decay,
		Centrality: cfg.Engine.ZScoreWeights.Centrality,
		Relevance:  cfg.Engine.ZScoreWeights.Relevance,
		Novelty:    cfg.Engine.ZScoreWeights.Novelty,
	}

	// -learner runs a one-shot progress report instead of the daemon.
	if *learnerID != "" {
		reportProgress(engine, *learnerID)
		return
	}

	jobs := scheduler.New(db, struggles, orchestrator)
	jobs.DecayRate = cfg.Maintenance.DecayRate
	jobs.DecayMinAge = cfg.Maintenance.DecayMinAge()
	jobs.Start()
	defer jobs.Stop()

	log.Println("Study engine started. Press Ctrl+C to stop.")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	log.Printf("Received signal: %v, shutting down", sig)
}

// reportProgress prints a learner's summary and the atom the ranker would
// present next.
func reportProgress(engine *session.Engine, learnerID string) {
	ctx := context.Background()

	stats, err := engine.Progress(ctx, learnerID)
	if err != nil {
		log.Fatalf("Failed to load progress for %s: %v", learnerID, err)
	}
	log.Printf("Learner %s: %d/%d atoms due, %d responses (%.0f%% accurate), %d/%d skills mastered",
		learnerID, stats.DueAtoms, stats.TrackedAtoms,
		stats.TotalResponses, stats.Accuracy*100,
		stats.MasteredSkills, stats.TrackedSkills)

	atom, err := engine.NextAtom(ctx, learnerID, "")
	if err != nil {
		log.Printf("No next atom: %v", err)
		return
	}
	log.Printf("Next up: %s (%s/%s) in section %s", atom.ID, atom.ContentType, atom.Format, atom.SectionID)
}
