package connection

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// resolveMutual returns, for every distinct target, the users CONNECTED to
// both viewer and target. Every target is a key; viewer itself maps to an
// empty list.
func resolveMutual(ctx context.Context, store ConnectionStore, viewerID uuid.UUID, targetIDs []uuid.UUID) (map[uuid.UUID][]uuid.UUID, error) {
	out := make(map[uuid.UUID][]uuid.UUID, len(targetIDs))
	query := make([]uuid.UUID, 0, len(targetIDs))
	for _, id := range targetIDs {
		if _, seen := out[id]; seen {
			continue
		}
		out[id] = []uuid.UUID{}
		if id != viewerID {
			query = append(query, id)
		}
	}
	if len(query) == 0 {
		return out, nil
	}

	found, err := store.FindMutual(ctx, viewerID, query)
	if err != nil {
		return nil, fmt.Errorf("find mutual connections: %w", err)
	}
	for target, mutual := range found {
		if _, ok := out[target]; !ok {
			continue
		}
		kept := make([]uuid.UUID, 0, len(mutual))
		for _, m := range mutual {
			if m != viewerID && m != target {
				kept = append(kept, m)
			}
		}
		out[target] = kept
	}
	return out, nil
}

// Preview caps a mutual list for display. A negative limit keeps everything.
func Preview(mutual []uuid.UUID, limit int) []uuid.UUID {
	if limit < 0 || len(mutual) <= limit {
		return mutual
	}
	return mutual[:limit]
}
