package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/joblens/job-import-service/internal/config"
)

// Scheduler triggers the fetch-and-enqueue cycle on a fixed cron cadence in
// a fixed timezone. Ticks run in their own goroutines with no overlap
// prevention; a cycle's failure or panic is logged and the next tick
// proceeds regardless.
type Scheduler struct {
	cron *cron.Cron
	log  *logrus.Entry
}

// New creates a scheduler that invokes run on each tick.
func New(cfg config.IngestionConfig, run func(context.Context)) (*Scheduler, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", cfg.Timezone, err)
	}

	log := logrus.WithField("component", "scheduler")
	c := cron.New(cron.WithLocation(loc))

	_, err = c.AddFunc(cfg.ScheduleSpec, func() {
		defer func() {
			if r := recover(); r != nil {
				log.WithField("panic", r).Error("import cycle panicked")
			}
		}()
		log.Info("running scheduled job import")
		run(context.Background())
	})
	if err != nil {
		return nil, fmt.Errorf("failed to register schedule %q: %w", cfg.ScheduleSpec, err)
	}

	return &Scheduler{cron: c, log: log}, nil
}

// Start begins triggering ticks.
func (s *Scheduler) Start() {
	s.log.WithField("next", s.cron.Entries()[0].Schedule.Next(time.Now())).Info("scheduler started")
	s.cron.Start()
}

// Stop stops triggering new ticks; running cycles keep draining.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}
