package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nyashahama/maison-checkout-notifier/internal/store"
)

// Job re-attempts the persistence of one SendRecord whose first insert
// failed after the email had already been accepted by the provider.
type Job struct {
	repo   store.Repository
	logger *slog.Logger
}

// NewJob constructs a Job over repo.
func NewJob(repo store.Repository, logger *slog.Logger) *Job {
	return &Job{repo: repo, logger: logger}
}

// Run inserts rec. A duplicate means an earlier attempt (possibly the one
// reported as failed) reached the database, so it counts as success.
func (j *Job) Run(ctx context.Context, rec store.SendRecord) error {
	_, err := j.repo.InsertSendRecord(ctx, rec)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrDuplicate):
		j.logger.Info("job: send record already present", "send_id", rec.SendID)
		return nil
	default:
		return fmt.Errorf("job: insert send record %s: %w", rec.SendID, err)
	}
}
