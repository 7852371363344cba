package ports

import (
	"context"
	"time"

	"github.com/vncsmyrnk/servervote/internal/core/domain"
)

// VoteRepository is the vote ledger. RecordVote is the only write path: it
// must verify the target, re-evaluate the cooldown, append the vote and
// increment the target's counter as one unit serialized per
// (target, identity) key.
type VoteRepository interface {
	LastVote(ctx context.Context, targetID, voterIdentity string) (*domain.Vote, error)
	RecordVote(ctx context.Context, vote *domain.Vote, window time.Duration) (*domain.RecordOutcome, error)
	CountVotes(ctx context.Context, targetID string) (int64, error)
}

type EligibilityChecker interface {
	CheckEligibility(ctx context.Context, targetID, voterIdentity string, now time.Time) (domain.Eligibility, error)
}

type VoteInput struct {
	TargetID      string
	VoterIdentity string
	DisplayName   string
	Now           time.Time
}

type VoteService interface {
	RecordVote(ctx context.Context, input VoteInput) (*domain.VoteResult, error)
}
