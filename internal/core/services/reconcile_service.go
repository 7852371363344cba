package services

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/vncsmyrnk/servervote/internal/core/ports"
	"golang.org/x/sync/errgroup"
)

const reconcileParallelism = 8

type reconcileService struct {
	targetRepo ports.TargetRepository
	countRepo  ports.VoteCountRepository
	log        logrus.FieldLogger
}

func NewReconcileService(targetRepo ports.TargetRepository, countRepo ports.VoteCountRepository, log logrus.FieldLogger) ports.ReconcileService {
	return &reconcileService{
		targetRepo: targetRepo,
		countRepo:  countRepo,
		log:        log,
	}
}

// ReconcileAll recomputes every cached vote counter from the ledger.
func (s *reconcileService) ReconcileAll(ctx context.Context) error {
	targets, err := s.targetRepo.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch all servers: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(reconcileParallelism)

	for _, target := range targets {
		id := target.ID
		g.Go(func() error {
			before, after, err := s.countRepo.ReconcileVoteCount(gctx, id)
			if err != nil {
				return fmt.Errorf("failed to reconcile server %s: %w", id, err)
			}
			if before != after {
				s.log.WithFields(logrus.Fields{
					"target_id": id,
					"cached":    before,
					"ledger":    after,
				}).Warn("vote count drift corrected")
			}
			return nil
		})
	}

	return g.Wait()
}
