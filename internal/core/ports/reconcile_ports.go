package ports

import "context"

// VoteCountRepository corrects the cached vote counter of a target from the
// ledger. It is an administrative path and the only one allowed to lower a
// counter.
type VoteCountRepository interface {
	ReconcileVoteCount(ctx context.Context, targetID string) (before, after int64, err error)
}

type ReconcileService interface {
	ReconcileAll(ctx context.Context) error
}
