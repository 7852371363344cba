// Package sqlite is the embedded ledger for single-node deployments. The pool
// is pinned to one connection, which serializes every transaction and makes
// check-and-append atomic without row locks.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/vncsmyrnk/servervote/internal/core/domain"
	sqlitedriver "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Store struct {
	db *gorm.DB
}

// Open connects to the database file at path and migrates the schema.
func Open(path string) (*Store, error) {
	dsn := path + "?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on"
	db, err := gorm.Open(sqlitedriver.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sqlite handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&serverModel{}, &voteModel{}); err != nil {
		return nil, fmt.Errorf("failed to migrate sqlite schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Save(ctx context.Context, target *domain.Target) error {
	m := toServerModel(target)
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return classify("insert server", err)
	}
	return nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*domain.Target, error) {
	var m serverModel
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrTargetNotFound
		}
		return nil, classify("get server", err)
	}
	return m.toDomain(), nil
}

func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&serverModel{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, classify("check server", err)
	}
	return count > 0, nil
}

func (s *Store) GetAll(ctx context.Context) ([]*domain.Target, error) {
	var models []serverModel
	if err := s.db.WithContext(ctx).Order("id").Find(&models).Error; err != nil {
		return nil, classify("get all servers", err)
	}
	return toTargets(models), nil
}

func (s *Store) List(ctx context.Context, limit, offset int) ([]*domain.Target, error) {
	var models []serverModel
	err := s.db.WithContext(ctx).
		Order("vote_count DESC").Order("created_at DESC").Order("id").
		Limit(limit).Offset(offset).
		Find(&models).Error
	if err != nil {
		return nil, classify("list servers", err)
	}
	return toTargets(models), nil
}

func (s *Store) LastVote(ctx context.Context, targetID, voterIdentity string) (*domain.Vote, error) {
	m, err := lastVote(s.db.WithContext(ctx), targetID, voterIdentity)
	if err != nil || m == nil {
		return nil, err
	}
	return m.toDomain()
}

func (s *Store) RecordVote(ctx context.Context, vote *domain.Vote, window time.Duration) (*domain.RecordOutcome, error) {
	var outcome *domain.RecordOutcome

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var server serverModel
		if err := tx.Where("id = ?", vote.TargetID).Take(&server).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrTargetNotFound
			}
			return classify("check server", err)
		}

		last, err := lastVote(tx, vote.TargetID, vote.VoterIdentity)
		if err != nil {
			return err
		}

		var lastVoteAt *time.Time
		if last != nil {
			at := time.UnixMicro(last.VotedAt).UTC()
			lastVoteAt = &at
		}
		eligibility := domain.EvaluateCooldown(lastVoteAt, vote.VotedAt, window)
		if !eligibility.Eligible {
			outcome = &domain.RecordOutcome{Eligibility: eligibility}
			return nil
		}

		m := toVoteModel(vote)
		if err := tx.Create(&m).Error; err != nil {
			return classify("insert vote", err)
		}

		res := tx.Model(&serverModel{}).Where("id = ?", vote.TargetID).Updates(map[string]any{
			"vote_count": gorm.Expr("vote_count + 1"),
			"updated_at": vote.VotedAt.UTC(),
		})
		if res.Error != nil {
			return classify("increment vote count", res.Error)
		}
		if res.RowsAffected == 0 {
			return domain.ErrTargetNotFound
		}

		if err := tx.Where("id = ?", vote.TargetID).Take(&server).Error; err != nil {
			return classify("reload server", err)
		}
		outcome = &domain.RecordOutcome{
			Accepted:    true,
			Target:      server.toDomain(),
			Eligibility: eligibility,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

func (s *Store) CountVotes(ctx context.Context, targetID string) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&voteModel{}).Where("server_id = ?", targetID).Count(&count).Error; err != nil {
		return 0, classify("count votes", err)
	}
	return count, nil
}

func (s *Store) ReconcileVoteCount(ctx context.Context, targetID string) (int64, int64, error) {
	var before, after int64

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var server serverModel
		if err := tx.Where("id = ?", targetID).Take(&server).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrTargetNotFound
			}
			return classify("get server", err)
		}
		before = server.VoteCount

		if err := tx.Model(&voteModel{}).Where("server_id = ?", targetID).Count(&after).Error; err != nil {
			return classify("count votes", err)
		}
		if before == after {
			return nil
		}
		err := tx.Model(&serverModel{}).Where("id = ?", targetID).Updates(map[string]any{
			"vote_count": after,
			"updated_at": time.Now().UTC(),
		}).Error
		return classify("update vote count", err)
	})
	return before, after, err
}

func lastVote(db *gorm.DB, targetID, voterIdentity string) (*voteModel, error) {
	var m voteModel
	err := db.Where("server_id = ? AND voter_identity = ?", targetID, voterIdentity).
		Order("voted_at DESC").
		Take(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, classify("get last vote", err)
	}
	return &m, nil
}

func toTargets(models []serverModel) []*domain.Target {
	targets := make([]*domain.Target, 0, len(models))
	for _, m := range models {
		targets = append(targets, m.toDomain())
	}
	return targets
}

func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch {
		case sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey,
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique:
			return fmt.Errorf("failed to %s: %w", op, domain.ErrDuplicateTarget)
		case sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey:
			return fmt.Errorf("failed to %s: %w", op, domain.ErrTargetNotFound)
		case sqliteErr.Code == sqlite3.ErrBusy, sqliteErr.Code == sqlite3.ErrLocked:
			return fmt.Errorf("failed to %s: %w: %w", op, domain.ErrTransient, err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("failed to %s: %w: %w", op, domain.ErrTransient, err)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}
