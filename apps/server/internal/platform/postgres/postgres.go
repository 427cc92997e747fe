// Package postgres opens the run-history database and brings its schema up to date.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ApplicationName is reported to the server for every pooled connection.
const ApplicationName = "s3mirror"

// Options tunes the pool. Zero values keep pgxpool's defaults.
type Options struct {
	MaxConns    int32
	PingTimeout time.Duration
}

// New opens a pool on connString (a postgres:// URL), verifies it answers and
// applies every pending migration found at the root of migrations.
func New(ctx context.Context, connString string, migrations fs.FS, opts Options) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse postgres url: %w", err)
	}
	cfg.ConnConfig.RuntimeParams["application_name"] = ApplicationName
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgx pool: %w", err)
	}

	pingCtx := ctx
	if opts.PingTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, opts.PingTimeout)
		defer cancel()
	}
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgx ping: %w", err)
	}

	if err := migrateUp(connString, migrations); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func migrateUp(connString string, migrations fs.FS) error {
	src, err := iofs.New(migrations, ".")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, pgx5URL(connString))
	if err != nil {
		return fmt.Errorf("migrate init: %w", err)
	}
	defer m.Close() //nolint:errcheck

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		version, dirty, _ := m.Version()
		return fmt.Errorf("migrate up (at version %d, dirty=%t): %w", version, dirty, err)
	}
	return nil
}

// pgx5URL rewrites the scheme so golang-migrate picks its pgx/v5 driver.
func pgx5URL(connString string) string {
	for _, scheme := range []string{"postgresql://", "postgres://"} {
		if rest, ok := strings.CutPrefix(connString, scheme); ok {
			return "pgx5://" + rest
		}
	}
	return connString
}
