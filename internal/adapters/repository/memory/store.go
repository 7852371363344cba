// Package memory is a single-instance ledger. Check-and-append is serialized
// by an in-process mutex per (server, voter) pair, so it must not be shared
// between processes.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vncsmyrnk/servervote/internal/core/domain"
)

type voteKey struct {
	targetID string
	identity string
}

func (k voteKey) String() string { return k.targetID + "\x00" + k.identity }

type Store struct {
	mu      sync.RWMutex
	targets map[string]*domain.Target
	votes   map[string][]domain.Vote
	last    map[voteKey]domain.Vote

	pairs *keyLock
}

func NewStore() *Store {
	return &Store{
		targets: make(map[string]*domain.Target),
		votes:   make(map[string][]domain.Vote),
		last:    make(map[voteKey]domain.Vote),
		pairs:   newKeyLock(),
	}
}

func (s *Store) Save(ctx context.Context, target *domain.Target) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.targets[target.ID]; ok {
		return domain.ErrDuplicateTarget
	}
	s.targets[target.ID] = copyTarget(target)
	return nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*domain.Target, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.targets[id]
	if !ok {
		return nil, domain.ErrTargetNotFound
	}
	return copyTarget(t), nil
}

func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.targets[id]
	return ok, nil
}

func (s *Store) GetAll(ctx context.Context) ([]*domain.Target, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*domain.Target, 0, len(s.targets))
	for _, t := range s.targets {
		all = append(all, copyTarget(t))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return all, nil
}

func (s *Store) List(ctx context.Context, limit, offset int) ([]*domain.Target, error) {
	all, _ := s.GetAll(ctx)
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].VoteCount != all[j].VoteCount {
			return all[i].VoteCount > all[j].VoteCount
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	if offset >= len(all) {
		return []*domain.Target{}, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (s *Store) LastVote(ctx context.Context, targetID, voterIdentity string) (*domain.Vote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.last[voteKey{targetID, voterIdentity}]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (s *Store) RecordVote(ctx context.Context, vote *domain.Vote, window time.Duration) (*domain.RecordOutcome, error) {
	key := voteKey{vote.TargetID, vote.VoterIdentity}
	unlock := s.pairs.Lock(key.String())
	defer unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	_, exists := s.targets[vote.TargetID]
	last, voted := s.last[key]
	s.mu.RUnlock()

	if !exists {
		return nil, domain.ErrTargetNotFound
	}

	var lastVoteAt *time.Time
	if voted {
		lastVoteAt = &last.VotedAt
	}
	eligibility := domain.EvaluateCooldown(lastVoteAt, vote.VotedAt, window)
	if !eligibility.Eligible {
		return &domain.RecordOutcome{Eligibility: eligibility}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	target, ok := s.targets[vote.TargetID]
	if !ok {
		return nil, domain.ErrTargetNotFound
	}
	s.votes[vote.TargetID] = append(s.votes[vote.TargetID], *vote)
	s.last[key] = *vote
	target.VoteCount++
	target.UpdatedAt = vote.VotedAt

	return &domain.RecordOutcome{
		Accepted:    true,
		Target:      copyTarget(target),
		Eligibility: eligibility,
	}, nil
}

func (s *Store) CountVotes(ctx context.Context, targetID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return int64(len(s.votes[targetID])), nil
}

func (s *Store) ReconcileVoteCount(ctx context.Context, targetID string) (int64, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	target, ok := s.targets[targetID]
	if !ok {
		return 0, 0, domain.ErrTargetNotFound
	}
	before := target.VoteCount
	target.VoteCount = int64(len(s.votes[targetID]))
	return before, target.VoteCount, nil
}

func copyTarget(t *domain.Target) *domain.Target {
	c := *t
	if t.Notification != nil {
		n := *t.Notification
		c.Notification = &n
	}
	return &c
}
