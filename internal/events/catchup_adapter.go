package events

import (
	"context"

	"github.com/benchforge/workbench/internal/models"
)

// eventQuerier abstracts the store method needed for catch-up replay.
// Implemented by *store.Store.
type eventQuerier interface {
	ListEvents(ctx context.Context, taskID string, afterSeq int64, limit int, tail bool) ([]models.EventLogRow, error)
}

// StoreAdapter wraps a store-like querier to implement CatchupQuerier.
type StoreAdapter struct {
	querier eventQuerier
}

// NewStoreAdapter creates a CatchupQuerier backed by the durable store.
func NewStoreAdapter(s eventQuerier) *StoreAdapter {
	return &StoreAdapter{querier: s}
}

// ListEvents satisfies CatchupQuerier by delegating to the store.
func (a *StoreAdapter) ListEvents(ctx context.Context, taskID string, afterSeq int64, limit int, tail bool) ([]CatchupEvent, error) {
	rows, err := a.querier.ListEvents(ctx, taskID, afterSeq, limit, tail)
	if err != nil {
		return nil, err
	}
	out := make([]CatchupEvent, len(rows))
	for i, r := range rows {
		out[i] = CatchupEvent{Seq: r.Seq, Type: r.Type, Payload: r.Payload}
	}
	return out, nil
}
