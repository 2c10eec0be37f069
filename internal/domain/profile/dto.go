package profile

import (
	"github.com/google/uuid"

	"github.com/mwork/moments-api/internal/domain/connection"
	"github.com/mwork/moments-api/internal/domain/moment"
)

// ViewResponse for GET /profiles/{userId}
type ViewResponse struct {
	UserID       uuid.UUID                        `json:"user_id"`
	Self         bool                             `json:"self"`
	Online       bool                             `json:"online"`
	Relationship *connection.RelationshipResponse `json:"relationship,omitempty"`
	Moments      []*moment.MomentResponse         `json:"moments"`
}

// ViewFromEntity converts a view to response
func ViewFromEntity(v *View, viewerID uuid.UUID, previewLimit int) *ViewResponse {
	resp := &ViewResponse{
		UserID:  v.UserID,
		Self:    v.Self,
		Online:  v.Online,
		Moments: moment.MomentsFromEntities(v.Moments.Items),
	}
	if v.Relationship != nil {
		resp.Relationship = connection.RelationshipFromEntity(v.Relationship, viewerID, v.UserID, previewLimit)
	}
	return resp
}
