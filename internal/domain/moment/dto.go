package moment

import (
	"time"

	"github.com/google/uuid"

	"github.com/mwork/moments-api/internal/domain/visibility"
)

// CreateMomentRequest for POST /moments
type CreateMomentRequest struct {
	Visibility    string   `json:"visibility" validate:"omitempty,visibility_label"`
	StoryID       *string  `json:"story_id,omitempty" validate:"omitempty,uuid"`
	TaggedUserIDs []string `json:"tagged_user_ids,omitempty" validate:"max=50,dive,uuid"`
	Caption       string   `json:"caption,omitempty" validate:"max=2000"`
}

// CreateStoryRequest for POST /stories
type CreateStoryRequest struct {
	Visibility string   `json:"visibility" validate:"required,visibility_label"`
	MemberIDs  []string `json:"member_ids,omitempty" validate:"max=50,dive,uuid"`
}

// MomentResponse represents a moment in API response
type MomentResponse struct {
	ID            uuid.UUID        `json:"id"`
	OwnerID       uuid.UUID        `json:"owner_id"`
	StoryID       *uuid.UUID       `json:"story_id,omitempty"`
	Visibility    visibility.Label `json:"visibility"`
	TaggedUserIDs []uuid.UUID      `json:"tagged_user_ids"`
	Caption       string           `json:"caption,omitempty"`
	CreatedAt     string           `json:"created_at"`
}

// MomentFromEntity converts entity to response
func MomentFromEntity(m *Moment) *MomentResponse {
	resp := &MomentResponse{
		ID:            m.ID,
		OwnerID:       m.OwnerID,
		Visibility:    m.Label,
		TaggedUserIDs: []uuid.UUID(m.TaggedUserIDs),
		Caption:       m.Caption,
		CreatedAt:     m.CreatedAt.Format(time.RFC3339),
	}
	if resp.TaggedUserIDs == nil {
		resp.TaggedUserIDs = []uuid.UUID{}
	}
	if m.StoryID.Valid {
		id := m.StoryID.UUID
		resp.StoryID = &id
	}
	return resp
}

// MomentsFromEntities converts a page of moments
func MomentsFromEntities(items []*Moment) []*MomentResponse {
	out := make([]*MomentResponse, 0, len(items))
	for _, m := range items {
		out = append(out, MomentFromEntity(m))
	}
	return out
}

// StoryResponse represents a story in API response
type StoryResponse struct {
	ID                   uuid.UUID        `json:"id"`
	OwnerID              uuid.UUID        `json:"owner_id"`
	MemberIDs            []uuid.UUID      `json:"member_ids"`
	Visibility           visibility.Label `json:"visibility"`
	LatestContributionID *uuid.UUID       `json:"latest_contribution_id,omitempty"`
	CreatedAt            string           `json:"created_at"`
}

// StoryFromEntity converts entity to response
func StoryFromEntity(s *Story) *StoryResponse {
	resp := &StoryResponse{
		ID:         s.ID,
		OwnerID:    s.OwnerID,
		MemberIDs:  []uuid.UUID(s.MemberIDs),
		Visibility: s.Label,
		CreatedAt:  s.CreatedAt.Format(time.RFC3339),
	}
	if resp.MemberIDs == nil {
		resp.MemberIDs = []uuid.UUID{}
	}
	if s.LatestContributionID.Valid {
		id := s.LatestContributionID.UUID
		resp.LatestContributionID = &id
	}
	return resp
}

func parseIDs(raw []string) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		if id, err := uuid.Parse(s); err == nil {
			out = append(out, id)
		}
	}
	return out
}
