package services

import (
	"context"
	"fmt"
	"time"

	"github.com/vncsmyrnk/servervote/internal/core/domain"
	"github.com/vncsmyrnk/servervote/internal/core/ports"
)

type eligibilityService struct {
	targets ports.TargetRepository
	votes   ports.VoteRepository
	window  time.Duration
}

func NewEligibilityService(targets ports.TargetRepository, votes ports.VoteRepository, window time.Duration) ports.EligibilityChecker {
	if window <= 0 {
		window = domain.CooldownWindow
	}
	return &eligibilityService{
		targets: targets,
		votes:   votes,
		window:  window,
	}
}

// CheckEligibility is a pure read: it never touches the ledger or counters.
func (s *eligibilityService) CheckEligibility(ctx context.Context, targetID, voterIdentity string, now time.Time) (domain.Eligibility, error) {
	identity, err := domain.NormalizeIdentity(voterIdentity)
	if err != nil {
		return domain.Eligibility{}, err
	}
	if targetID == "" {
		return domain.Eligibility{}, domain.ErrTargetNotFound
	}

	exists, err := s.targets.Exists(ctx, targetID)
	if err != nil {
		return domain.Eligibility{}, fmt.Errorf("failed to look up server: %w", err)
	}
	if !exists {
		return domain.Eligibility{}, domain.ErrTargetNotFound
	}

	last, err := s.votes.LastVote(ctx, targetID, identity)
	if err != nil {
		return domain.Eligibility{}, fmt.Errorf("failed to get last vote: %w", err)
	}

	var lastVoteAt *time.Time
	if last != nil {
		lastVoteAt = &last.VotedAt
	}
	return domain.EvaluateCooldown(lastVoteAt, now, s.window), nil
}
