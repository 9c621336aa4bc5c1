// Package cmd provides common initialization for the command-line entry
// points.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/courierhq/courier/pkg/persistence"
	"github.com/courierhq/courier/pkg/persistence/memory"
	"github.com/courierhq/courier/pkg/persistence/postgresql"
)

// NewPersistence builds the persistence layer from the database URL scheme.
// An empty URL falls back to the in-memory store, which only makes sense for
// local experiments.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Persistence {
	switch {
	case databaseURL == "":
		return memory.NewPersistence()
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			panic(fmt.Errorf("failed to initialize PostgreSQL persistence: %w", err))
		}

		return p
	default:
		panic("Unsupported database URL: " + databaseURL)
	}
}
