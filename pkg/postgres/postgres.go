package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Config struct {
	URL      string `split_words:"true" required:"true"`
	MaxConns int32  `split_words:"true" default:"8"`
}

func (c *Config) New(ctx context.Context) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(c.URL)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = c.MaxConns

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}

func (c *Config) MustNew(ctx context.Context) *pgxpool.Pool {
	pool, err := c.New(ctx)
	if err != nil {
		panic(err)
	}

	return pool
}
