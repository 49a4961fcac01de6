// Package db implements the PostgreSQL persistence layer: schema
// management, the per-block atomic save path and the read queries backing
// the HTTP API. All tables live under a schema named after the chain, so
// several chains can share one database.
package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/Zondax/namadexer/config"
	"github.com/Zondax/namadexer/errs"
	"github.com/Zondax/namadexer/metrics"
)

var log = logrus.WithField("module", "db")

const (
	// Max connections in the pool, shared by the consumer and the API
	// handlers.
	maxOpenConnections = 10

	// Default limit, in seconds, to wait for a ready connection.
	defaultConnTimeout = 60
)

// MaspAddr is the well-known shielded pool address; transfers touching it
// are the shielded transfers the aggregation endpoints report on.
const MaspAddr = "atest1v4ehgw36xaryysfsx5unvve4g5my2vjz89p52sjxxgenzd348yuyyv3hg3pnjs35g5unvde4ca36y5"

// Database wraps the connection pool together with the chain schema all
// statements are qualified with.
type Database struct {
	db      *sqlx.DB
	schema  string
	metrics *metrics.Metrics
}

// ConnectionString builds a postgres URL from the configuration.
func ConnectionString(cfg config.DatabaseConfig) string {
	port := cfg.Port
	if port == 0 {
		port = config.DefaultDBPort
	}
	if cfg.Password != "" {
		return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
			cfg.User, cfg.Password, cfg.Host, port, cfg.Dbname)
	}
	return fmt.Sprintf("postgres://%s@%s:%d/%s?sslmode=disable",
		cfg.User, cfg.Host, port, cfg.Dbname)
}

// New connects to PostgreSQL and returns a Database bound to the schema
// derived from chainName (dashes become underscores).
func New(ctx context.Context, cfg config.DatabaseConfig, chainName string, m *metrics.Metrics) (*Database, error) {
	timeout := cfg.ConnectionTimeout
	if timeout == 0 {
		timeout = defaultConnTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
	defer cancel()

	pool, err := sqlx.ConnectContext(ctx, "postgres", ConnectionString(cfg))
	if err != nil {
		return nil, errs.Wrap(errs.DB, err)
	}
	pool.SetMaxOpenConns(maxOpenConnections)

	return WithPool(pool, chainName, m), nil
}

// WithPool wraps an existing pool; used by tests.
func WithPool(pool *sqlx.DB, chainName string, m *metrics.Metrics) *Database {
	return &Database{
		db:      pool,
		schema:  strings.ReplaceAll(chainName, "-", "_"),
		metrics: m,
	}
}

// Schema returns the chain schema name.
func (d *Database) Schema() string { return d.schema }

// Pool exposes the underlying pool; used by tests.
func (d *Database) Pool() *sqlx.DB { return d.db }

// Close releases the pool.
func (d *Database) Close() error { return d.db.Close() }
