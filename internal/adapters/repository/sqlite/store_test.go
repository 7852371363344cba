package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vncsmyrnk/servervote/internal/adapters/repository/repotest"
)

func openStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_Ledger(t *testing.T) {
	repotest.RunLedgerSuite(t, func(t *testing.T) repotest.Ledger {
		return openStore(t)
	})
}

func TestStore_ReconcileCorrectsDrift(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	target := repotest.NewTarget("drifted", false)
	require.NoError(t, store.Save(ctx, target))
	require.NoError(t, store.db.Model(&serverModel{}).Where("id = ?", target.ID).Update("vote_count", 7).Error)

	before, after, err := store.ReconcileVoteCount(ctx, target.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 7, before)
	assert.EqualValues(t, 0, after)

	got, err := store.GetByID(ctx, target.ID)
	require.NoError(t, err)
	assert.Zero(t, got.VoteCount)
}

func TestStore_KeepsVoteTimestampPrecision(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	target := repotest.NewTarget("precision", false)
	require.NoError(t, store.Save(ctx, target))

	vote := repotest.NewVote(target.ID, "1.2.3.4", target.CreatedAt.Add(1234567))
	_, err := store.RecordVote(ctx, vote, 0)
	require.NoError(t, err)

	last, err := store.LastVote(ctx, target.ID, "1.2.3.4")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.True(t, vote.VotedAt.Truncate(1000).Equal(last.VotedAt))
	assert.Equal(t, vote.ID, last.ID)
}
