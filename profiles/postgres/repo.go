// Package postgres reads profile rows from the platform's Postgres database
// (the same `profiles` table the hosted provider syncs user records into).
package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/openlettings/auth-gateway/internal/autherr"
	"github.com/openlettings/auth-gateway/internal/utils"
	"github.com/openlettings/auth-gateway/profiles"
)

var _ profiles.Repo = (*Repo)(nil)

type Repo struct {
	pool *pgxpool.Pool
}

// NewRepo wraps an existing pgx pool.
func NewRepo(pool *pgxpool.Pool) (*Repo, error) {
	if pool == nil {
		return nil, errors.New("[postgres.NewRepo] pool is required")
	}
	return &Repo{pool: pool}, nil
}

// Connect creates a pool from a DSN and wraps it.
func Connect(ctx context.Context, dsn string) (*Repo, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "[postgres.Connect] pgxpool.New")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(autherr.ErrNetwork, err.Error())
	}
	return &Repo{pool: pool}, nil
}

// Close releases the underlying pool.
func (r *Repo) Close() {
	r.pool.Close()
}

const getByIDQuery = `
SELECT id, email, full_name, role, phone, avatar_url, created_at, updated_at
FROM profiles
WHERE id = $1`

func (r *Repo) GetByID(ctx context.Context, id string) (*profiles.Profile, error) {
	var (
		p         profiles.Profile
		role      string
		phone     *string
		avatarURL *string
	)

	row := r.pool.QueryRow(ctx, getByIDQuery, id)
	err := row.Scan(&p.ID, &p.Email, &p.FullName, &role, &phone, &avatarURL, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "[postgres.GetByID] row.Scan")
	}

	p.Role = profiles.ParseRole(role)
	p.Phone = utils.Value(phone)
	p.AvatarURL = utils.Value(avatarURL)
	return &p, nil
}
