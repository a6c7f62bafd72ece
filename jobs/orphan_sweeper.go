package jobs

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"playforge/models"
	"playforge/utils"
)

// OrphanFinder lists polls left without options and deletes them.
// *services.PollService satisfies it.
type OrphanFinder interface {
	FindOrphans(ctx context.Context, cutoff time.Time) ([]models.Poll, error)
	DeletePoll(ctx context.Context, pollID string) error
}

// OrphanPollSweeper removes polls whose option inserts failed and whose
// rollback failed as well. The grace period keeps it away from polls that
// are still being created.
type OrphanPollSweeper struct {
	polls       OrphanFinder
	interval    time.Duration
	gracePeriod time.Duration
	logger      *logrus.Entry
	now         func() time.Time
}

func NewOrphanPollSweeper(polls OrphanFinder, interval, gracePeriod time.Duration) *OrphanPollSweeper {
	return &OrphanPollSweeper{
		polls:       polls,
		interval:    interval,
		gracePeriod: gracePeriod,
		logger:      utils.Component("orphan_sweeper"),
		now:         time.Now,
	}
}

// Start runs a sweep immediately and then on every tick until ctx ends.
func (s *OrphanPollSweeper) Start(ctx context.Context) {
	s.logger.Infof("Starting orphan poll sweeper, every %v", s.interval)

	s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Orphan poll sweeper stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs one sweep and returns how many polls it deleted.
func (s *OrphanPollSweeper) RunOnce(ctx context.Context) int {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	cutoff := s.now().Add(-s.gracePeriod)
	orphans, err := s.polls.FindOrphans(ctx, cutoff)
	if err != nil {
		s.logger.WithError(err).Error("Error finding orphan polls")
		return 0
	}

	var deleted int
	for _, poll := range orphans {
		if err := s.polls.DeletePoll(ctx, poll.ID); err != nil {
			s.logger.WithError(err).WithField("poll_id", poll.ID).Warn("Failed to delete orphan poll")
			continue
		}
		deleted++
		s.logger.WithFields(logrus.Fields{"poll_id": poll.ID, "game_id": poll.GameID}).Info("Deleted orphan poll")
	}

	if len(orphans) > 0 {
		s.logger.Infof("Orphan sweep completed. Deleted %d of %d", deleted, len(orphans))
	}
	return deleted
}
