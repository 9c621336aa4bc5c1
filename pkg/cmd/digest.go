package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/courierhq/courier/pkg/digest"
)

// NewDigestStore builds the digest window store. Workers and the scheduler
// must share the same Redis so window coordination holds across processes; an
// empty URL falls back to the in-memory store for local experiments.
func NewDigestStore(ctx context.Context, redisURL string, logger *slog.Logger) digest.Store {
	if redisURL == "" {
		return digest.NewMemoryStore()
	}

	store, err := digest.NewRedisStore(ctx, redisURL, logger)
	if err != nil {
		panic(fmt.Errorf("failed to connect to Redis digest store: %w", err))
	}

	return store
}
