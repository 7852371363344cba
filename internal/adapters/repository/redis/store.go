// Package redis keeps the ledger in Redis. Each vote is appended inside a
// WATCH/MULTI transaction on the pair's last-vote key, so two racing votes of
// the same identity cannot both commit.
package redis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sort"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/vncsmyrnk/servervote/internal/core/domain"
)

// maxWatchRetries bounds how often a transaction is replayed after a WATCH
// conflict before the conflict is reported as transient.
const maxWatchRetries = 3

type Config struct {
	Address  string
	Password string
	DB       int
}

type Store struct {
	rdb *goredis.Client
}

// Open connects to Redis and pings it.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewStore(rdb), nil
}

func NewStore(rdb *goredis.Client) *Store {
	return &Store{rdb: rdb}
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

func (s *Store) Save(ctx context.Context, target *domain.Target) error {
	key := serverKey(target.ID)

	return s.watch(ctx, "insert server", func(tx *goredis.Tx) error {
		exists, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if exists > 0 {
			return domain.ErrDuplicateTarget
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.HSet(ctx, key, encodeTarget(target))
			pipe.ZAdd(ctx, rankingKey, goredis.Z{Score: float64(target.VoteCount), Member: target.ID})
			return nil
		})
		return err
	}, key)
}

func (s *Store) GetByID(ctx context.Context, id string) (*domain.Target, error) {
	fields, err := s.rdb.HGetAll(ctx, serverKey(id)).Result()
	if err != nil {
		return nil, classify("get server", err)
	}
	return decodeTarget(fields)
}

func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	n, err := s.rdb.Exists(ctx, serverKey(id)).Result()
	if err != nil {
		return false, classify("check server", err)
	}
	return n > 0, nil
}

func (s *Store) GetAll(ctx context.Context) ([]*domain.Target, error) {
	targets, err := s.loadAll(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i].ID < targets[j].ID })
	return targets, nil
}

// List ranks in memory because the ranking set cannot break vote ties by
// creation time.
func (s *Store) List(ctx context.Context, limit, offset int) ([]*domain.Target, error) {
	targets, err := s.loadAll(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(targets, func(i, j int) bool {
		a, b := targets[i], targets[j]
		if a.VoteCount != b.VoteCount {
			return a.VoteCount > b.VoteCount
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	if offset >= len(targets) {
		return []*domain.Target{}, nil
	}
	end := min(offset+limit, len(targets))
	return targets[offset:end], nil
}

func (s *Store) loadAll(ctx context.Context) ([]*domain.Target, error) {
	ids, err := s.rdb.ZRevRange(ctx, rankingKey, 0, -1).Result()
	if err != nil {
		return nil, classify("list servers", err)
	}

	cmds := make([]*goredis.MapStringStringCmd, len(ids))
	_, err = s.rdb.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, serverKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, classify("load servers", err)
	}

	targets := make([]*domain.Target, 0, len(ids))
	for _, cmd := range cmds {
		target, err := decodeTarget(cmd.Val())
		if errors.Is(err, domain.ErrTargetNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		targets = append(targets, target)
	}
	return targets, nil
}

func (s *Store) LastVote(ctx context.Context, targetID, voterIdentity string) (*domain.Vote, error) {
	raw, err := s.rdb.Get(ctx, lastVoteKey(targetID, voterIdentity)).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("get last vote", err)
	}
	return decodeVote(raw)
}

func (s *Store) RecordVote(ctx context.Context, vote *domain.Vote, window time.Duration) (*domain.RecordOutcome, error) {
	var outcome *domain.RecordOutcome

	sKey := serverKey(vote.TargetID)
	pairKey := lastVoteKey(vote.TargetID, vote.VoterIdentity)

	err := s.watch(ctx, "record vote", func(tx *goredis.Tx) error {
		exists, err := tx.Exists(ctx, sKey).Result()
		if err != nil {
			return err
		}
		if exists == 0 {
			return domain.ErrTargetNotFound
		}

		var lastVoteAt *time.Time
		raw, err := tx.Get(ctx, pairKey).Result()
		switch {
		case errors.Is(err, goredis.Nil):
		case err != nil:
			return err
		default:
			last, err := decodeVote(raw)
			if err != nil {
				return err
			}
			lastVoteAt = &last.VotedAt
		}

		eligibility := domain.EvaluateCooldown(lastVoteAt, vote.VotedAt, window)
		if !eligibility.Eligible {
			outcome = &domain.RecordOutcome{Eligibility: eligibility}
			return nil
		}

		payload, err := encodeVote(vote)
		if err != nil {
			return err
		}

		var fields *goredis.MapStringStringCmd
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.RPush(ctx, votesKey(vote.TargetID), payload)
			pipe.Set(ctx, pairKey, payload, 0)
			pipe.HIncrBy(ctx, sKey, "vote_count", 1)
			pipe.HSet(ctx, sKey, "updated_at", vote.VotedAt.UTC().Format(time.RFC3339Nano))
			pipe.ZIncrBy(ctx, rankingKey, 1, vote.TargetID)
			fields = pipe.HGetAll(ctx, sKey)
			return nil
		})
		if err != nil {
			return err
		}

		target, err := decodeTarget(fields.Val())
		if err != nil {
			return err
		}
		outcome = &domain.RecordOutcome{Accepted: true, Target: target, Eligibility: eligibility}
		return nil
	}, pairKey)
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

func (s *Store) CountVotes(ctx context.Context, targetID string) (int64, error) {
	n, err := s.rdb.LLen(ctx, votesKey(targetID)).Result()
	if err != nil {
		return 0, classify("count votes", err)
	}
	return n, nil
}

func (s *Store) ReconcileVoteCount(ctx context.Context, targetID string) (int64, int64, error) {
	var before, after int64

	sKey := serverKey(targetID)
	vKey := votesKey(targetID)

	err := s.watch(ctx, "reconcile vote count", func(tx *goredis.Tx) error {
		raw, err := tx.HGet(ctx, sKey, "vote_count").Int64()
		if errors.Is(err, goredis.Nil) {
			return domain.ErrTargetNotFound
		}
		if err != nil {
			return err
		}
		before = raw

		after, err = tx.LLen(ctx, vKey).Result()
		if err != nil {
			return err
		}
		if before == after {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.HSet(ctx, sKey, "vote_count", after, "updated_at", time.Now().UTC().Format(time.RFC3339Nano))
			pipe.ZAdd(ctx, rankingKey, goredis.Z{Score: float64(after), Member: targetID})
			return nil
		})
		return err
	}, sKey, vKey)
	return before, after, err
}

// watch runs fn as an optimistic transaction over keys, replaying it when a
// watched key changes underneath.
func (s *Store) watch(ctx context.Context, op string, fn func(*goredis.Tx) error, keys ...string) error {
	var err error
	for attempt := 0; attempt < maxWatchRetries; attempt++ {
		err = s.rdb.Watch(ctx, fn, keys...)
		if !errors.Is(err, goredis.TxFailedErr) {
			break
		}
	}
	return classify(op, err)
}

func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrTargetNotFound) || errors.Is(err, domain.ErrDuplicateTarget) {
		return err
	}

	var netErr net.Error
	if errors.Is(err, goredis.TxFailedErr) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.As(err, &netErr) {
		return fmt.Errorf("failed to %s: %w: %w", op, domain.ErrTransient, err)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}
