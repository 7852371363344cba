package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vncsmyrnk/servervote/internal/core/domain"
	"github.com/vncsmyrnk/servervote/internal/core/ports"
)

const targetColumns = `id, name, address, port, vote_count, votifier_host, votifier_port, votifier_public_key, created_at, updated_at`

type targetRepository struct {
	db *sql.DB
}

func NewTargetRepository(db *sql.DB) ports.TargetRepository {
	return &targetRepository{
		db: db,
	}
}

func (r *targetRepository) Save(ctx context.Context, target *domain.Target) error {
	query := `
		INSERT INTO servers (id, name, address, port, vote_count, votifier_host, votifier_port, votifier_public_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	host, port, key := endpointColumns(target.Notification)
	_, err := r.db.ExecContext(ctx, query,
		target.ID, target.Name, target.Address, target.Port, target.VoteCount,
		host, port, key, target.CreatedAt, target.UpdatedAt,
	)
	return classify("insert server", err)
}

func (r *targetRepository) GetByID(ctx context.Context, id string) (*domain.Target, error) {
	query := `SELECT ` + targetColumns + ` FROM servers WHERE id = $1`

	target, err := scanTarget(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrTargetNotFound
		}
		return nil, classify("get server", err)
	}
	return target, nil
}

func (r *targetRepository) Exists(ctx context.Context, id string) (bool, error) {
	query := `SELECT 1 FROM servers WHERE id = $1`
	var exists int
	err := r.db.QueryRowContext(ctx, query, id).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, classify("check server", err)
	}
	return true, nil
}

func (r *targetRepository) GetAll(ctx context.Context) ([]*domain.Target, error) {
	query := `SELECT ` + targetColumns + ` FROM servers ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, classify("get all servers", err)
	}
	defer rows.Close()

	return scanTargets(rows)
}

func (r *targetRepository) List(ctx context.Context, limit, offset int) ([]*domain.Target, error) {
	query := `
		SELECT ` + targetColumns + `
		FROM servers
		ORDER BY vote_count DESC, created_at DESC, id
		LIMIT $1 OFFSET $2
	`
	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, classify("list servers", err)
	}
	defer rows.Close()

	return scanTargets(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTarget(row rowScanner) (*domain.Target, error) {
	var (
		t    domain.Target
		host sql.NullString
		port sql.NullInt32
		key  sql.NullString
	)
	err := row.Scan(&t.ID, &t.Name, &t.Address, &t.Port, &t.VoteCount, &host, &port, &key, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if host.Valid && port.Valid && key.Valid {
		t.Notification = &domain.NotificationEndpoint{Host: host.String, Port: int(port.Int32), PublicKey: key.String}
	}
	return &t, nil
}

func scanTargets(rows *sql.Rows) ([]*domain.Target, error) {
	targets := []*domain.Target{}
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan server: %w", err)
		}
		targets = append(targets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating servers: %w", err)
	}
	return targets, nil
}

func endpointColumns(e *domain.NotificationEndpoint) (sql.NullString, sql.NullInt32, sql.NullString) {
	if e == nil {
		return sql.NullString{}, sql.NullInt32{}, sql.NullString{}
	}
	return sql.NullString{String: e.Host, Valid: true},
		sql.NullInt32{Int32: int32(e.Port), Valid: true},
		sql.NullString{String: e.PublicKey, Valid: true}
}
