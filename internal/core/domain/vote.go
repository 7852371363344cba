package domain

import (
	"time"

	"github.com/google/uuid"
)

// Vote is one accepted entry of the ledger. It is never updated.
type Vote struct {
	ID            uuid.UUID `json:"id"`
	TargetID      string    `json:"server_id"`
	VoterIdentity string    `json:"-"`
	DisplayName   string    `json:"display_name,omitempty"`
	VotedAt       time.Time `json:"voted_at"`
}

type Eligibility struct {
	Eligible   bool
	RetryAfter time.Duration
	LastVoteAt *time.Time
}

// NextVoteAt is the first instant at which the pair becomes eligible again.
func (e Eligibility) NextVoteAt(now time.Time) time.Time {
	if e.Eligible {
		return now
	}
	return now.Add(e.RetryAfter)
}

// RecordOutcome is what a ledger backend reports for one atomic
// check-and-append attempt. Target carries the post-increment vote count
// when the vote was accepted.
type RecordOutcome struct {
	Accepted    bool
	Target      *Target
	Eligibility Eligibility
}

type VoteResult struct {
	Accepted   bool
	VoteCount  int64
	RetryAfter time.Duration
	NextVoteAt time.Time
}

// Notification is handed to the dispatcher after a vote is accepted.
type Notification struct {
	TargetID      string
	Endpoint      NotificationEndpoint
	DisplayName   string
	VoterIdentity string
	VotedAt       time.Time
}
