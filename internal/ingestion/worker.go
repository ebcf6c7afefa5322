package ingestion

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/joblens/job-import-service/internal/models"
	"github.com/joblens/job-import-service/internal/queue"
	"github.com/joblens/job-import-service/internal/storage"
)

// Worker consumes work items from the queue one at a time, upserts each
// posting by identity, and folds the outcome into its own run summary before
// merging it into the windowed import log. Multiple workers may drain the
// same queue concurrently; each keeps its own summary.
type Worker struct {
	queue   *queue.WorkQueue
	store   storage.Storage
	summary *RunSummary
	wait    time.Duration
	log     *logrus.Entry
}

// NewWorker creates a worker with its own run summary.
func NewWorker(id int, q *queue.WorkQueue, store storage.Storage, wait time.Duration) *Worker {
	return &Worker{
		queue:   q,
		store:   store,
		summary: NewRunSummary(),
		wait:    wait,
		log:     logrus.WithFields(logrus.Fields{"component": "worker", "worker": id}),
	}
}

// Summary exposes the worker's run summary.
func (w *Worker) Summary() *RunSummary {
	return w.summary
}

// Run consumes work items until ctx is canceled. Item failures are absorbed
// into the summary; only queue transport errors pause the loop briefly.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		item, raw, err := w.queue.Dequeue(w.wait)
		if err == queue.ErrEmpty {
			continue
		}
		if err != nil {
			w.log.WithError(err).Error("failed to dequeue work item")
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.wait):
			}
			continue
		}

		w.Process(ctx, *item)

		if err := w.queue.Ack(raw); err != nil {
			// The item was fully processed; redelivery after this point is
			// absorbed by the idempotent upsert.
			w.log.WithError(err).Error("failed to ack work item")
		}
	}
}

// Process handles one work item: identity upsert, summary fold, log flush.
// Store failures are recorded and swallowed; the item is still acknowledged.
func (w *Worker) Process(ctx context.Context, item models.WorkItem) {
	now := time.Now().UTC()

	created, err := w.store.UpsertJob(ctx, item.Job(now))
	switch {
	case err != nil:
		w.summary.RecordFailure(item.Source, err.Error())
		w.log.WithError(err).WithFields(logrus.Fields{
			"source": item.Source,
			"title":  item.Title,
		}).Error("failed to upsert job")
	case created:
		w.summary.RecordNew(item.Source)
	default:
		w.summary.RecordUpdated(item.Source)
	}

	w.flush(ctx, item.Source, now)
}

// flush drains the source's pending delta and merges it into the import log
// for the current window. On failure the delta is restored so the counts
// ride along with the next flush.
func (w *Worker) flush(ctx context.Context, source string, now time.Time) {
	delta := w.summary.Drain(source)
	if delta.IsZero() {
		return
	}

	if err := w.store.MergeImportLog(ctx, source, now, delta); err != nil {
		w.summary.Restore(source, delta)
		w.log.WithError(err).WithField("source", source).Error("failed to flush import log")
	}
}
