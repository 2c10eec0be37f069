package moment

import (
	"github.com/google/uuid"

	"github.com/mwork/moments-api/internal/domain/visibility"
)

// Grant lets the viewer see label on content owned by OwnerID.
type Grant struct {
	OwnerID uuid.UUID
	Label   visibility.Label
}

// Scope is everything the content queries need to know about a viewer.
//
// Owners restricts content to the listed owners; empty means any owner.
// Peers are the CONNECTED counterparts whose tagged content is visible.
// Grants are the (owner, label) pairs the viewer's tiers allow.
type Scope struct {
	ViewerID uuid.UUID
	Owners   []uuid.UUID
	Peers    []uuid.UUID
	Grants   []Grant
}

func (s Scope) admitsOwner(ownerID uuid.UUID) bool {
	if len(s.Owners) == 0 {
		return true
	}
	return containsID(s.Owners, ownerID)
}

func (s Scope) granted(ownerID uuid.UUID, label visibility.Label) bool {
	for _, g := range s.Grants {
		if g.OwnerID == ownerID && g.Label == label {
			return true
		}
	}
	return false
}

// StoryEligible reports whether st surfaces for the viewer. Membership
// only counts while the owner is still a CONNECTED peer.
func (s Scope) StoryEligible(st *Story) bool {
	if st == nil || st.IsDeleted() || !s.admitsOwner(st.OwnerID) {
		return false
	}
	if st.OwnerID == s.ViewerID {
		return true
	}
	if st.MemberIDs.Contains(s.ViewerID) && containsID(s.Peers, st.OwnerID) {
		return true
	}
	return s.granted(st.OwnerID, st.Label)
}

// StandaloneVisible reports whether a moment without a story is visible.
func (s Scope) StandaloneVisible(m *Moment) bool {
	if m == nil || m.IsDeleted() || !m.IsStandalone() || !s.admitsOwner(m.OwnerID) {
		return false
	}
	if m.OwnerID == s.ViewerID {
		return true
	}
	if !containsID(s.Peers, m.OwnerID) {
		return false
	}
	return m.TaggedUserIDs.Contains(s.ViewerID) || s.granted(m.OwnerID, m.Label)
}

// grantOwners and grantLabels split Grants into parallel arrays for unnest.
func (s Scope) grantOwners() []uuid.UUID {
	out := make([]uuid.UUID, len(s.Grants))
	for i, g := range s.Grants {
		out[i] = g.OwnerID
	}
	return out
}

func (s Scope) grantLabels() []string {
	out := make([]string, len(s.Grants))
	for i, g := range s.Grants {
		out[i] = string(g.Label)
	}
	return out
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
