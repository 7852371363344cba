// Package repotest holds the behaviour every ledger backend must share.
package repotest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vncsmyrnk/servervote/internal/core/domain"
	"github.com/vncsmyrnk/servervote/internal/core/ports"
)

type Ledger interface {
	ports.TargetRepository
	ports.VoteRepository
	ports.VoteCountRepository
}

var t0 = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

// NewTarget builds a target with a unique id, optionally with a
// notification endpoint.
func NewTarget(name string, withEndpoint bool) *domain.Target {
	target := &domain.Target{
		ID:        "server_" + uuid.NewString(),
		Name:      name,
		Address:   "play.example.org",
		Port:      domain.DefaultGamePort,
		CreatedAt: t0,
		UpdatedAt: t0,
	}
	if withEndpoint {
		target.Notification = &domain.NotificationEndpoint{Host: "votifier.example.org", Port: 8192, PublicKey: "a2V5"}
	}
	return target
}

func NewVote(targetID, identity string, at time.Time) *domain.Vote {
	return &domain.Vote{
		ID:            uuid.New(),
		TargetID:      targetID,
		VoterIdentity: identity,
		DisplayName:   "Steve",
		VotedAt:       at,
	}
}

// RunLedgerSuite exercises a backend against the ledger contract.
// newLedger must return an empty, isolated ledger.
func RunLedgerSuite(t *testing.T, newLedger func(t *testing.T) Ledger) {
	t.Run("targets round trip", func(t *testing.T) {
		ctx := context.Background()
		ledger := newLedger(t)

		target := NewTarget("Hypixel-ish", true)
		require.NoError(t, ledger.Save(ctx, target))

		got, err := ledger.GetByID(ctx, target.ID)
		require.NoError(t, err)
		assert.Equal(t, target.Name, got.Name)
		assert.Equal(t, target.Address, got.Address)
		assert.Equal(t, target.Port, got.Port)
		assert.Zero(t, got.VoteCount)
		require.NotNil(t, got.Notification)
		assert.Equal(t, *target.Notification, *got.Notification)

		exists, err := ledger.Exists(ctx, target.ID)
		require.NoError(t, err)
		assert.True(t, exists)

		exists, err = ledger.Exists(ctx, "server_missing")
		require.NoError(t, err)
		assert.False(t, exists)

		_, err = ledger.GetByID(ctx, "server_missing")
		assert.ErrorIs(t, err, domain.ErrTargetNotFound)

		assert.ErrorIs(t, ledger.Save(ctx, target), domain.ErrDuplicateTarget)
	})

	t.Run("accepts first vote and appends", func(t *testing.T) {
		ctx := context.Background()
		ledger := newLedger(t)
		target := NewTarget("first", false)
		require.NoError(t, ledger.Save(ctx, target))

		last, err := ledger.LastVote(ctx, target.ID, "1.2.3.4")
		require.NoError(t, err)
		assert.Nil(t, last)

		outcome, err := ledger.RecordVote(ctx, NewVote(target.ID, "1.2.3.4", t0), domain.CooldownWindow)
		require.NoError(t, err)
		require.True(t, outcome.Accepted)
		assert.EqualValues(t, 1, outcome.Target.VoteCount)
		assert.Equal(t, target.ID, outcome.Target.ID)

		last, err = ledger.LastVote(ctx, target.ID, "1.2.3.4")
		require.NoError(t, err)
		require.NotNil(t, last)
		assert.True(t, t0.Equal(last.VotedAt))
		assert.Equal(t, "Steve", last.DisplayName)
	})

	t.Run("cooldown rejects without mutating", func(t *testing.T) {
		ctx := context.Background()
		ledger := newLedger(t)
		target := NewTarget("cooldown", false)
		require.NoError(t, ledger.Save(ctx, target))

		_, err := ledger.RecordVote(ctx, NewVote(target.ID, "1.2.3.4", t0), domain.CooldownWindow)
		require.NoError(t, err)

		outcome, err := ledger.RecordVote(ctx, NewVote(target.ID, "1.2.3.4", t0.Add(time.Hour)), domain.CooldownWindow)
		require.NoError(t, err)
		assert.False(t, outcome.Accepted)
		assert.Equal(t, 23*time.Hour, outcome.Eligibility.RetryAfter)

		outcome, err = ledger.RecordVote(ctx, NewVote(target.ID, "1.2.3.4", t0.Add(domain.CooldownWindow-time.Second)), domain.CooldownWindow)
		require.NoError(t, err)
		assert.False(t, outcome.Accepted)

		assertCounts(t, ledger, target.ID, 1)

		outcome, err = ledger.RecordVote(ctx, NewVote(target.ID, "1.2.3.4", t0.Add(domain.CooldownWindow)), domain.CooldownWindow)
		require.NoError(t, err)
		assert.True(t, outcome.Accepted)
		assert.EqualValues(t, 2, outcome.Target.VoteCount)
		assertCounts(t, ledger, target.ID, 2)
	})

	t.Run("identities and targets are independent", func(t *testing.T) {
		ctx := context.Background()
		ledger := newLedger(t)
		a := NewTarget("a", false)
		b := NewTarget("b", false)
		require.NoError(t, ledger.Save(ctx, a))
		require.NoError(t, ledger.Save(ctx, b))

		for _, v := range []*domain.Vote{
			NewVote(a.ID, "1.2.3.4", t0),
			NewVote(a.ID, "5.6.7.8", t0),
			NewVote(b.ID, "1.2.3.4", t0),
		} {
			outcome, err := ledger.RecordVote(ctx, v, domain.CooldownWindow)
			require.NoError(t, err)
			assert.True(t, outcome.Accepted)
		}

		assertCounts(t, ledger, a.ID, 2)
		assertCounts(t, ledger, b.ID, 1)
	})

	t.Run("unknown target", func(t *testing.T) {
		ledger := newLedger(t)

		_, err := ledger.RecordVote(context.Background(), NewVote("server_missing", "1.2.3.4", t0), domain.CooldownWindow)
		assert.ErrorIs(t, err, domain.ErrTargetNotFound)
	})

	t.Run("concurrent identical votes accept exactly one", func(t *testing.T) {
		ctx := context.Background()
		ledger := newLedger(t)
		target := NewTarget("race", false)
		require.NoError(t, ledger.Save(ctx, target))

		const n = 16
		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			accepted int
			rejected int
		)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				outcome, err := recordRetryingTransient(ctx, ledger, NewVote(target.ID, "9.9.9.9", t0))
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				defer mu.Unlock()
				if outcome.Accepted {
					accepted++
				} else {
					rejected++
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, accepted)
		assert.Equal(t, n-1, rejected)
		assertCounts(t, ledger, target.ID, 1)
	})

	t.Run("concurrent distinct identities keep counter consistent", func(t *testing.T) {
		ctx := context.Background()
		ledger := newLedger(t)
		target := NewTarget("load", false)
		require.NoError(t, ledger.Save(ctx, target))

		const voters = 20
		var wg sync.WaitGroup
		for i := 0; i < voters; i++ {
			identity := fmt.Sprintf("10.0.0.%d", i)
			for j := 0; j < 3; j++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := recordRetryingTransient(ctx, ledger, NewVote(target.ID, identity, t0))
					assert.NoError(t, err)
				}()
			}
		}
		wg.Wait()

		assertCounts(t, ledger, target.ID, voters)
	})

	t.Run("list orders by votes", func(t *testing.T) {
		ctx := context.Background()
		ledger := newLedger(t)
		quiet := NewTarget("quiet", false)
		busy := NewTarget("busy", false)
		require.NoError(t, ledger.Save(ctx, quiet))
		require.NoError(t, ledger.Save(ctx, busy))

		for _, ip := range []string{"1.1.1.1", "2.2.2.2"} {
			_, err := ledger.RecordVote(ctx, NewVote(busy.ID, ip, t0), domain.CooldownWindow)
			require.NoError(t, err)
		}

		list, err := ledger.List(ctx, 10, 0)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, busy.ID, list[0].ID)
		assert.EqualValues(t, 2, list[0].VoteCount)
		assert.Equal(t, quiet.ID, list[1].ID)

		page, err := ledger.List(ctx, 10, 1)
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, quiet.ID, page[0].ID)

		all, err := ledger.GetAll(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})

	t.Run("reconcile reports before and after", func(t *testing.T) {
		ctx := context.Background()
		ledger := newLedger(t)
		target := NewTarget("reconcile", false)
		require.NoError(t, ledger.Save(ctx, target))

		_, err := ledger.RecordVote(ctx, NewVote(target.ID, "1.2.3.4", t0), domain.CooldownWindow)
		require.NoError(t, err)

		before, after, err := ledger.ReconcileVoteCount(ctx, target.ID)
		require.NoError(t, err)
		assert.EqualValues(t, 1, before)
		assert.EqualValues(t, 1, after)

		_, _, err = ledger.ReconcileVoteCount(ctx, "server_missing")
		assert.ErrorIs(t, err, domain.ErrTargetNotFound)
	})
}

// recordRetryingTransient mirrors the vote service: backends may surface
// serialization conflicts as transient errors that are safe to retry.
func recordRetryingTransient(ctx context.Context, ledger Ledger, vote *domain.Vote) (*domain.RecordOutcome, error) {
	var (
		outcome *domain.RecordOutcome
		err     error
	)
	for attempt := 0; attempt < 50; attempt++ {
		outcome, err = ledger.RecordVote(ctx, vote, domain.CooldownWindow)
		if err == nil || !errors.Is(err, domain.ErrTransient) {
			return outcome, err
		}
		time.Sleep(time.Duration(attempt+1) * time.Millisecond)
	}
	return outcome, err
}

func assertCounts(t *testing.T, ledger Ledger, targetID string, want int64) {
	t.Helper()
	ctx := context.Background()

	got, err := ledger.GetByID(ctx, targetID)
	require.NoError(t, err)
	assert.Equal(t, want, got.VoteCount, "cached vote count")

	count, err := ledger.CountVotes(ctx, targetID)
	require.NoError(t, err)
	assert.Equal(t, want, count, "ledger entries")
}
