package ingestion

import (
	"sync"
	"time"

	"github.com/joblens/job-import-service/internal/models"
)

// RunSummary accumulates per-source import counters for one worker. Counters
// are deltas: the worker drains a source's counts after flushing them into
// the persisted import log, so the summary never grows for the lifetime of
// the process.
type RunSummary struct {
	mu           sync.Mutex
	sources      map[string]*models.ImportDelta
	lastActivity time.Time
}

// NewRunSummary creates an empty run summary.
func NewRunSummary() *RunSummary {
	return &RunSummary{
		sources: make(map[string]*models.ImportDelta),
	}
}

func (s *RunSummary) counts(source string) *models.ImportDelta {
	c, ok := s.sources[source]
	if !ok {
		c = &models.ImportDelta{}
		s.sources[source] = c
	}
	return c
}

// RecordNew counts one newly created posting for source.
func (s *RunSummary) RecordNew(source string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.counts(source)
	c.NewJobs++
	c.TotalFetched++
	s.lastActivity = time.Now().UTC()
}

// RecordUpdated counts one updated posting for source.
func (s *RunSummary) RecordUpdated(source string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.counts(source)
	c.UpdatedJobs++
	c.TotalFetched++
	s.lastActivity = time.Now().UTC()
}

// RecordFailure counts one failed item for source, keeping its reason.
func (s *RunSummary) RecordFailure(source, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.counts(source)
	c.FailedJobs++
	c.TotalFetched++
	c.FailureReasons = append(c.FailureReasons, reason)
	s.lastActivity = time.Now().UTC()
}

// Drain atomically returns and clears the accumulated delta for source.
func (s *RunSummary) Drain(source string) models.ImportDelta {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.sources[source]
	if !ok {
		return models.ImportDelta{}
	}
	delta := *c
	delete(s.sources, source)
	return delta
}

// Restore adds a drained delta back after a failed flush, so its counts are
// carried into the next flush instead of being lost.
func (s *RunSummary) Restore(source string, delta models.ImportDelta) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.counts(source)
	c.TotalFetched += delta.TotalFetched
	c.NewJobs += delta.NewJobs
	c.UpdatedJobs += delta.UpdatedJobs
	c.FailedJobs += delta.FailedJobs
	c.FailureReasons = append(delta.FailureReasons, c.FailureReasons...)
}

// Counts returns a copy of the pending delta for source.
func (s *RunSummary) Counts(source string) models.ImportDelta {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.sources[source]
	if !ok {
		return models.ImportDelta{}
	}
	delta := *c
	delta.FailureReasons = append([]string(nil), c.FailureReasons...)
	return delta
}

// LastActivity returns the time the summary last folded in an item.
func (s *RunSummary) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}
