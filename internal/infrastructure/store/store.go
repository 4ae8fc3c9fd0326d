// Package store opens the configured session store backend.
package store

import (
	"context"
	"fmt"

	"github.com/ErlanBelekov/channel-gate/internal/infrastructure/memory"
	"github.com/ErlanBelekov/channel-gate/internal/infrastructure/postgres"
	"github.com/ErlanBelekov/channel-gate/internal/infrastructure/sqlite"
	"github.com/ErlanBelekov/channel-gate/internal/repository"
)

const (
	KindMemory   = "memory"
	KindSQLite   = "sqlite"
	KindPostgres = "postgres"
)

// Sessions is implemented by every backend.
type Sessions interface {
	repository.SessionRepository
	repository.MemberDirectory
	Ping(ctx context.Context) error
}

type Options struct {
	Kind        string
	SQLitePath  string
	DatabaseURL string
}

// Open returns the store for opts.Kind and a func that releases it.
func Open(ctx context.Context, opts Options) (Sessions, func(), error) {
	switch opts.Kind {
	case KindMemory:
		return memory.NewSessionRepository(), func() {}, nil

	case KindSQLite, "":
		db, err := sqlite.Open(ctx, opts.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		repo := sqlite.NewSessionRepository(db)
		return repo, func() { _ = repo.Close() }, nil

	case KindPostgres:
		pool, err := postgres.NewPool(ctx, opts.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return postgres.NewSessionRepository(pool), pool.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown session store %q", opts.Kind)
	}
}
