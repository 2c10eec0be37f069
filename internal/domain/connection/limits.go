package connection

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/mwork/moments-api/internal/domain/visibility"
)

// ConnectedCounter counts a user's CONNECTED connections in the given tiers.
type ConnectedCounter interface {
	CountConnected(ctx context.Context, userID uuid.UUID, tiers []visibility.Tier) (int, error)
}

// LimitPolicy enforces per-tier capacity.
//
// A tier's usage is the number of CONNECTED connections at that tier or
// higher, so a SPECIAL connection also occupies a CLOSE_FRIEND and a FRIEND
// slot. The pair being changed is not excluded from the count.
type LimitPolicy struct {
	policy *visibility.Policy
}

// NewLimitPolicy creates a limit policy over the visibility policy's tier table.
func NewLimitPolicy(policy *visibility.Policy) *LimitPolicy {
	return &LimitPolicy{policy: policy}
}

// Check returns a *LimitError when userID has no room left at tier.
func (l *LimitPolicy) Check(ctx context.Context, counter ConnectedCounter, userID uuid.UUID, tier visibility.Tier, side Side) error {
	if !tier.IsConnected() {
		return nil
	}
	limit := l.policy.Capacity(tier)
	current, err := counter.CountConnected(ctx, userID, l.policy.AtOrAbove(tier))
	if err != nil {
		return fmt.Errorf("count connections: %w", err)
	}
	if current >= limit {
		return &LimitError{Side: side, UserID: userID, Tier: tier, Current: current, Limit: limit}
	}
	return nil
}

// CheckBoth checks self first, then peer.
func (l *LimitPolicy) CheckBoth(ctx context.Context, counter ConnectedCounter, self, peer uuid.UUID, tier visibility.Tier) error {
	if err := l.Check(ctx, counter, self, tier, SideSelf); err != nil {
		return err
	}
	return l.Check(ctx, counter, peer, tier, SidePeer)
}

// CheckTransition checks a move from -> to for both parties.
// Moving to a lower or equal tier never fails.
func (l *LimitPolicy) CheckTransition(ctx context.Context, counter ConnectedCounter, self, peer uuid.UUID, from, to visibility.Tier) error {
	if l.policy.Compare(to, from) <= 0 {
		return nil
	}
	return l.CheckBoth(ctx, counter, self, peer, to)
}
