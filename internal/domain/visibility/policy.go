package visibility

import "github.com/google/uuid"

// Subject is the visibility-relevant projection of a moment or story.
type Subject struct {
	OwnerID       uuid.UUID
	Label         Label
	TaggedUserIDs []uuid.UUID
}

// Policy answers tier and label questions against a tier table.
type Policy struct {
	table Table
}

// NewPolicy creates a policy over table. A nil table uses DefaultTable.
func NewPolicy(table Table) *Policy {
	if table == nil {
		table = DefaultTable()
	}
	return &Policy{table: table}
}

// Table returns a copy of the policy's tier table.
func (p *Policy) Table() Table {
	out := make(Table, len(p.table))
	for k, v := range p.table {
		v.AllowedLabels = append([]Label(nil), v.AllowedLabels...)
		out[k] = v
	}
	return out
}

// Level returns the numeric level of tier. Unknown tiers rank as NO_RELATION.
func (p *Policy) Level(tier Tier) int {
	return p.table[tier].Level
}

// Capacity returns the per-user cap for tier.
func (p *Policy) Capacity(tier Tier) int {
	return p.table[tier].Capacity
}

// Compare returns -1, 0 or 1 as a ranks below, equal to or above b.
func (p *Policy) Compare(a, b Tier) int {
	la, lb := p.Level(a), p.Level(b)
	switch {
	case la < lb:
		return -1
	case la > lb:
		return 1
	}
	return 0
}

// AtOrAbove returns the connected tiers whose level is at least tier's.
func (p *Policy) AtOrAbove(tier Tier) []Tier {
	out := make([]Tier, 0, len(ConnectedTiers))
	for _, t := range ConnectedTiers {
		if p.Level(t) >= p.Level(tier) {
			out = append(out, t)
		}
	}
	return out
}

// AllowedLabels returns the labels visible at tier. NO_RELATION sees none.
func (p *Policy) AllowedLabels(tier Tier) []Label {
	if !tier.IsConnected() {
		return nil
	}
	return append([]Label(nil), p.table[tier].AllowedLabels...)
}

// Allows reports whether label is visible at tier.
func (p *Policy) Allows(tier Tier, label Label) bool {
	if !tier.IsConnected() {
		return false
	}
	return containsLabel(p.table[tier].AllowedLabels, label)
}

// CanView reports whether viewer may see s given the tier between viewer
// and the owner. Owners and tagged users always see the subject.
func (p *Policy) CanView(s Subject, viewer uuid.UUID, tier Tier) bool {
	if s.OwnerID == viewer {
		return true
	}
	for _, id := range s.TaggedUserIDs {
		if id == viewer {
			return true
		}
	}
	return p.Allows(tier, s.Label)
}
