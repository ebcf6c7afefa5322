package ingestion

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/joblens/job-import-service/internal/config"
	"github.com/joblens/job-import-service/internal/feeds"
	"github.com/joblens/job-import-service/internal/models"
)

// Enqueuer submits work items to the durable queue.
type Enqueuer interface {
	Enqueue(item models.WorkItem) error
}

// Service runs the fetch-and-enqueue half of the pipeline: pull every
// configured feed and push one work item per feed item onto the queue.
type Service struct {
	feeds *feeds.Client
	queue Enqueuer
	urls  []string
	log   *logrus.Entry
}

// NewService creates a new ingestion service
func NewService(cfg config.IngestionConfig, feedClient *feeds.Client, q Enqueuer) *Service {
	return &Service{
		feeds: feedClient,
		queue: q,
		urls:  cfg.FeedURLs,
		log:   logrus.WithField("component", "ingestion"),
	}
}

// RunCycle fetches all configured feeds and enqueues their items. A failing
// feed is skipped; an enqueue failure abandons the rest of that feed only.
// The cycle itself never returns an error, so a scheduler tick can never
// crash the process.
func (s *Service) RunCycle(ctx context.Context) {
	for _, url := range s.urls {
		items, err := s.feeds.FetchItems(ctx, url)
		if err != nil {
			s.log.WithError(err).WithField("feed", url).Warn("skipping feed for this cycle")
			continue
		}

		enqueued := 0
		for _, item := range items {
			work := models.WorkItem{
				JobID:       item.ID,
				Title:       item.Title,
				Company:     item.Company,
				Location:    item.Location,
				URL:         feeds.ResolveURL(item),
				Description: item.Description,
				Source:      url,
			}
			if err := s.queue.Enqueue(work); err != nil {
				s.log.WithError(err).WithField("feed", url).Error("enqueue failed, abandoning remaining feed items")
				break
			}
			enqueued++
		}

		s.log.WithFields(logrus.Fields{
			"feed":     url,
			"fetched":  len(items),
			"enqueued": enqueued,
		}).Info("feed cycle complete")
	}
}
