// Package postgres opens a bun handle over pgdriver.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

type Config struct {
	DSN          string        `split_words:"true"`
	MaxOpenConns int           `split_words:"true" default:"10"`
	DialTimeout  time.Duration `split_words:"true" default:"5s"`
	ReadTimeout  time.Duration `split_words:"true" default:"10s"`
	WriteTimeout time.Duration `split_words:"true" default:"10s"`
	CreateSchema bool          `split_words:"true" default:"true"`
}

// Enabled reports whether a database was configured.
func (c *Config) Enabled() bool {
	return strings.TrimSpace(c.DSN) != ""
}

func (c *Config) New(ctx context.Context) (*bun.DB, error) {
	if !c.Enabled() {
		return nil, errors.New("postgres: dsn is empty")
	}
	connector := pgdriver.NewConnector(
		pgdriver.WithDSN(c.DSN),
		pgdriver.WithDialTimeout(c.DialTimeout),
		pgdriver.WithReadTimeout(c.ReadTimeout),
		pgdriver.WithWriteTimeout(c.WriteTimeout),
	)
	sqldb := sql.OpenDB(connector)
	if c.MaxOpenConns > 0 {
		sqldb.SetMaxOpenConns(c.MaxOpenConns)
	}

	db := bun.NewDB(sqldb, pgdialect.New())
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return db, nil
}
