package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vncsmyrnk/servervote/internal/core/domain"
	"github.com/vncsmyrnk/servervote/internal/core/ports"
)

type voteRepository struct {
	db *sql.DB
}

func NewVoteRepository(db *sql.DB) ports.VoteRepository {
	return &voteRepository{
		db: db,
	}
}

func NewVoteCountRepository(db *sql.DB) ports.VoteCountRepository {
	return &voteRepository{
		db: db,
	}
}

func (r *voteRepository) LastVote(ctx context.Context, targetID, voterIdentity string) (*domain.Vote, error) {
	query := `
		SELECT id, server_id, voter_identity, display_name, voted_at
		FROM votes
		WHERE server_id = $1 AND voter_identity = $2
		ORDER BY voted_at DESC
		LIMIT 1
	`
	var v domain.Vote
	err := r.db.QueryRowContext(ctx, query, targetID, voterIdentity).Scan(&v.ID, &v.TargetID, &v.VoterIdentity, &v.DisplayName, &v.VotedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, classify("get last vote", err)
	}
	return &v, nil
}

// RecordVote runs the check-and-append under a transaction-scoped advisory
// lock keyed by the (server, voter) pair. A second writer for the same pair
// blocks until the first commits and then sees its vote.
func (r *voteRepository) RecordVote(ctx context.Context, vote *domain.Vote, window time.Duration) (*domain.RecordOutcome, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify("begin transaction", err)
	}
	defer tx.Rollback()

	lockQuery := `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`
	if _, err := tx.ExecContext(ctx, lockQuery, vote.TargetID+"\x1f"+vote.VoterIdentity); err != nil {
		return nil, classify("lock vote pair", err)
	}

	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM servers WHERE id = $1)`, vote.TargetID).Scan(&exists); err != nil {
		return nil, classify("check server", err)
	}
	if !exists {
		return nil, domain.ErrTargetNotFound
	}

	var last sql.NullTime
	lastQuery := `SELECT MAX(voted_at) FROM votes WHERE server_id = $1 AND voter_identity = $2`
	if err := tx.QueryRowContext(ctx, lastQuery, vote.TargetID, vote.VoterIdentity).Scan(&last); err != nil {
		return nil, classify("get last vote", err)
	}

	var lastVoteAt *time.Time
	if last.Valid {
		lastVoteAt = &last.Time
	}
	eligibility := domain.EvaluateCooldown(lastVoteAt, vote.VotedAt, window)
	if !eligibility.Eligible {
		return &domain.RecordOutcome{Eligibility: eligibility}, nil
	}

	insertQuery := `
		INSERT INTO votes (id, server_id, voter_identity, display_name, voted_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := tx.ExecContext(ctx, insertQuery, vote.ID, vote.TargetID, vote.VoterIdentity, vote.DisplayName, vote.VotedAt); err != nil {
		return nil, classify("insert vote", err)
	}

	incrementQuery := `
		UPDATE servers
		SET vote_count = vote_count + 1, updated_at = $2
		WHERE id = $1
		RETURNING ` + targetColumns
	target, err := scanTarget(tx.QueryRowContext(ctx, incrementQuery, vote.TargetID, vote.VotedAt))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrTargetNotFound
		}
		return nil, classify("increment vote count", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, classify("commit vote", err)
	}

	return &domain.RecordOutcome{
		Accepted:    true,
		Target:      target,
		Eligibility: eligibility,
	}, nil
}

func (r *voteRepository) CountVotes(ctx context.Context, targetID string) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM votes WHERE server_id = $1`, targetID).Scan(&count)
	if err != nil {
		return 0, classify("count votes", err)
	}
	return count, nil
}

// ReconcileVoteCount locks the server row so in-flight vote transactions
// either commit before the recount or increment on top of it.
func (r *voteRepository) ReconcileVoteCount(ctx context.Context, targetID string) (int64, int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, classify("begin transaction", err)
	}
	defer tx.Rollback()

	var before int64
	err = tx.QueryRowContext(ctx, `SELECT vote_count FROM servers WHERE id = $1 FOR UPDATE`, targetID).Scan(&before)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, 0, domain.ErrTargetNotFound
		}
		return 0, 0, classify("lock server", err)
	}

	var after int64
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM votes WHERE server_id = $1`, targetID).Scan(&after); err != nil {
		return 0, 0, classify("count votes", err)
	}

	if before != after {
		if _, err := tx.ExecContext(ctx, `UPDATE servers SET vote_count = $2, updated_at = NOW() WHERE id = $1`, targetID, after); err != nil {
			return 0, 0, classify("update vote count", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("failed to commit reconciliation: %w", err)
	}
	return before, after, nil
}
