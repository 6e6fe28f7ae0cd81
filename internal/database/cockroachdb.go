package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"medconnect-backend/pkg/logger"
)

// DBConfig tunes the CockroachDB connection pool.
type DBConfig struct {
	MaxConns          int
	MinConns          int
	ConnMaxLifetime   time.Duration
	ConnMaxIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

// DefaultDBConfig sizes the pool for one signaling instance. Call
// history and consultation writes are short transactions; 25
// connections covers them with headroom.
func DefaultDBConfig() *DBConfig {
	return &DBConfig{
		MaxConns:          25,
		MinConns:          2,
		ConnMaxLifetime:   1 * time.Hour,
		ConnMaxIdleTime:   5 * time.Minute,
		HealthCheckPeriod: 30 * time.Second,
	}
}

// DB wraps the pgxpool.Pool backing call attempts and consultation
// records.
type DB struct {
	Pool *pgxpool.Pool
}

// NewDB creates the connection pool and verifies it with a ping.
func NewDB(ctx context.Context, connString string, dbConfig *DBConfig) (*DB, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	if dbConfig == nil {
		dbConfig = DefaultDBConfig()
	}
	config.MaxConns = int32(dbConfig.MaxConns)
	config.MinConns = int32(dbConfig.MinConns)
	config.MaxConnLifetime = dbConfig.ConnMaxLifetime
	config.MaxConnIdleTime = dbConfig.ConnMaxIdleTime
	config.HealthCheckPeriod = dbConfig.HealthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database unreachable: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close closes the connection pool.
func (db *DB) Close() error {
	db.Pool.Close()
	logger.Info("Database connection pool closed")
	return nil
}

// Stats returns connection pool statistics.
func (db *DB) Stats() *pgxpool.Stat {
	return db.Pool.Stat()
}
