package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Pool bounds the connections held by the chunk repository.
type Pool struct {
	MaxConns    int
	ConnMaxLife time.Duration
}

// OpenDB opens a pgx-backed handle and verifies the server answers before ctx expires.
func OpenDB(ctx context.Context, dsn string, pool Pool) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	if pool.MaxConns > 0 {
		db.SetMaxOpenConns(pool.MaxConns)
		db.SetMaxIdleConns(pool.MaxConns / 2)
	}
	if pool.ConnMaxLife > 0 {
		db.SetConnMaxLifetime(pool.ConnMaxLife)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}
