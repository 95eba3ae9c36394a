package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/example/studyengine/internal/database"
	"github.com/example/studyengine/internal/generation"
	"github.com/example/studyengine/internal/struggle"
	"github.com/example/studyengine/pkg/models"
)

// Default maintenance policy.
const (
	DefaultDecayRate    = 0.10
	DefaultDecayMinAge  = 48 * time.Hour
	DefaultProactiveTop = 3
)

// Scheduler runs the periodic maintenance jobs: the struggle-weight decay
// sweep and proactive content generation for the worst sections.
type Scheduler struct {
	scheduler *gocron.Scheduler

	learners  *database.LearnerRepository
	sections  *database.SectionRepository
	struggles *struggle.Tracker
	generator *generation.Orchestrator

	DecayRate    float64
	DecayMinAge  time.Duration
	ProactiveTop int
}

// New creates a scheduler over the shared database handle and collaborators.
func New(db *database.DB, struggles *struggle.Tracker, generator *generation.Orchestrator) *Scheduler {
	return &Scheduler{
		scheduler:    gocron.NewScheduler(time.UTC),
		learners:     database.NewLearnerRepository(db),
		sections:     database.NewSectionRepository(db),
		struggles:    struggles,
		generator:    generator,
		DecayRate:    DefaultDecayRate,
		DecayMinAge:  DefaultDecayMinAge,
		ProactiveTop: DefaultProactiveTop,
	}
}

// Start registers the jobs and begins running them in the background.
func (s *Scheduler) Start() {
	s.scheduler.Every(6).Hours().Do(s.runDecaySweep)
	s.scheduler.Every(12).Hours().Do(s.runProactiveGeneration)
	s.scheduler.StartAsync()
}

// Stop terminates all scheduled jobs.
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

// runDecaySweep decays every learner's stale struggle weights so old spikes
// lose their grip on scheduling.
func (s *Scheduler) runDecaySweep() {
	ctx := context.Background()
	learners, err := s.learners.List(ctx)
	if err != nil {
		log.Printf("decay sweep: failed to list learners: %v", err)
		return
	}

	total := 0
	for _, learner := range learners {
		decayed, err := s.struggles.Decay(ctx, learner.ID, s.DecayRate, s.DecayMinAge)
		if err != nil {
			log.Printf("decay sweep for learner %s: %v", learner.ID, err)
			continue
		}
		total += decayed
	}
	log.Printf("decay sweep: decayed %d struggle weights across %d learners", total, len(learners))
}

// runProactiveGeneration synthesizes content ahead of need for each
// learner's top struggling sections.
func (s *Scheduler) runProactiveGeneration() {
	ctx := context.Background()
	learners, err := s.learners.List(ctx)
	if err != nil {
		log.Printf("proactive generation: failed to list learners: %v", err)
		return
	}

	for _, learner := range learners {
		requests, err := s.proactiveRequests(ctx, learner.ID)
		if err != nil {
			log.Printf("proactive generation for learner %s: %v", learner.ID, err)
			continue
		}
		if len(requests) == 0 {
			continue
		}
		generated := s.generator.ProactiveGenerate(ctx, requests)
		log.Printf("proactive generation for learner %s: %d atoms across %d sections",
			learner.ID, generated, len(requests))
	}
}

// proactiveRequests builds one generation request per top struggling
// section, using the section title as the concept seed.
func (s *Scheduler) proactiveRequests(ctx context.Context, learnerID string) ([]models.GenerationRequest, error) {
	top, err := s.struggles.Top(ctx, learnerID, s.ProactiveTop)
	if err != nil {
		return nil, err
	}

	var requests []models.GenerationRequest
	for _, w := range top {
		if w.DynamicWeight == 0 {
			// No live struggle signal; nothing worth pre-generating.
			continue
		}
		section, err := s.sections.Get(ctx, w.SectionID)
		if err != nil {
			return nil, err
		}
		if section == nil {
			continue
		}
		requests = append(requests, models.GenerationRequest{
			Concept:      section.Title,
			SectionID:    section.ID,
			Trigger:      models.TriggerProactive,
			ContentTypes: []string{"flashcard", "explanation"},
			Count:        generation.DefaultMinRequired,
		})
	}
	return requests, nil
}
