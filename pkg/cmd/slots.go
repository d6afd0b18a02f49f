package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/buildgate/buildgate/pkg/slots"
)

// NewSlotStore picks the concurrency slot store from the URL scheme. A Redis
// URL gives a store shared between workers; anything else falls back to the
// single-process in-memory store.
func NewSlotStore(ctx context.Context, slotStoreURL string) slots.Store {
	if strings.HasPrefix(slotStoreURL, "redis://") || strings.HasPrefix(slotStoreURL, "rediss://") {
		store, err := slots.NewRedisStore(ctx, slotStoreURL)
		if err != nil {
			panic(fmt.Errorf("failed to connect to redis: %w", err))
		}

		return store
	}

	return slots.NewMemoryStore()
}
