package service

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/baiirun/mesa/internal/apperr"
	"github.com/baiirun/mesa/internal/db"
	"github.com/baiirun/mesa/internal/model"
)

// DeleteRequest moves a request to the trash, where it can be restored until
// the trash TTL runs out. Admin only.
func (s *Service) DeleteRequest(ctx context.Context, actor *model.User, id string) (*model.TrashEntry, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	entry, err := s.db.MoveToTrash(ctx, id, actor.ID, actor.FullName, s.opts.TrashTTL)
	if err != nil {
		return nil, storeErr(err, "Request")
	}
	s.log.WithFields(logrus.Fields{"request_id": id, "actor": actor.Username}).Info("Moved request to trash")
	s.refreshTrashGauge(ctx)
	return entry, nil
}

func (s *Service) ListTrash(ctx context.Context, actor *model.User, q string, page, pageSize int) (*model.TrashPage, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if err := s.checkPage(page, pageSize); err != nil {
		return nil, err
	}
	p, err := s.db.ListTrash(ctx, q, page, pageSize)
	return p, storeErr(err, "Trash")
}

func (s *Service) RestoreRequest(ctx context.Context, actor *model.User, id string) (*model.Request, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	r, err := s.db.RestoreFromTrash(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperr.NotFound("Request not in trash")
	}
	if err != nil {
		return nil, storeErr(err, "Request")
	}
	s.log.WithFields(logrus.Fields{"request_id": id, "actor": actor.Username}).Info("Restored request")
	s.refreshTrashGauge(ctx)
	return r, nil
}

func (s *Service) PurgeRequest(ctx context.Context, actor *model.User, id string) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	if err := s.db.PurgeTrash(ctx, id); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return apperr.NotFound("Request not in trash")
		}
		return storeErr(err, "Request")
	}
	s.metrics.TrashPurged(1)
	s.refreshTrashGauge(ctx)
	return nil
}

// EmptyTrash purges everything in the trash and returns how many entries
// were removed.
func (s *Service) EmptyTrash(ctx context.Context, actor *model.User) (int64, error) {
	if err := requireAdmin(actor); err != nil {
		return 0, err
	}
	n, err := s.db.EmptyTrash(ctx)
	if err != nil {
		return 0, storeErr(err, "Trash")
	}
	s.log.WithFields(logrus.Fields{"purged": n, "actor": actor.Username}).Info("Emptied trash")
	s.metrics.TrashPurged(n)
	s.refreshTrashGauge(ctx)
	return n, nil
}

// SweepTrash purges expired trash entries and stale failed-login records.
func (s *Service) SweepTrash(ctx context.Context) (int64, error) {
	n, err := s.db.PurgeExpiredTrash(ctx)
	if err != nil {
		return 0, err
	}
	if _, err := s.db.PruneFailedLogins(ctx); err != nil {
		return n, err
	}
	if n > 0 {
		s.log.WithField("purged", n).Info("Purged expired trash entries")
	}
	s.metrics.TrashPurged(n)
	s.refreshTrashGauge(ctx)
	return n, nil
}

// RunSweeper calls SweepTrash every interval until ctx is done.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	if _, err := s.SweepTrash(ctx); err != nil {
		s.log.WithError(err).Error("Trash sweep failed")
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepTrash(ctx); err != nil && ctx.Err() == nil {
				s.log.WithError(err).Error("Trash sweep failed")
			}
		}
	}
}

func (s *Service) refreshTrashGauge(ctx context.Context) {
	if s.metrics == nil {
		return
	}
	n, err := s.db.CountTrash(ctx)
	if err != nil {
		s.log.WithError(err).Warn("Failed to count trash")
		return
	}
	s.metrics.SetTrashSize(n)
}
