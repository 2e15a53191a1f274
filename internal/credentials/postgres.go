package credentials

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres resolves secrets from a charge_points table. Expected schema:
//
//	CREATE TABLE charge_points (
//	    id       TEXT PRIMARY KEY,
//	    secret   TEXT NOT NULL,
//	    enabled  BOOLEAN NOT NULL DEFAULT TRUE
//	);
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects a resolver to the given DSN.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("credentials: connect: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Lookup(ctx context.Context, clientID string) (string, bool, error) {
	var secret string
	err := p.pool.QueryRow(ctx,
		`SELECT secret FROM charge_points WHERE id = $1 AND enabled`, clientID,
	).Scan(&secret)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("credentials: lookup %s: %w", clientID, err)
	}
	return secret, true, nil
}

// Close releases the connection pool.
func (p *Postgres) Close() { p.pool.Close() }
