package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/socialchat-server/internal/service/friends"
	"github.com/vovakirdan/socialchat-server/internal/store"
)

// GroupHandlers provides HTTP handlers for friend groups.
type GroupHandlers struct {
	service *friends.Service
	log     *zerolog.Logger
}

// NewGroupHandlers creates a new group handlers instance.
func NewGroupHandlers(svc *friends.Service, logger *zerolog.Logger) *GroupHandlers {
	return &GroupHandlers{
		service: svc,
		log:     logger,
	}
}

// CreateGroupRequest represents the create group request body.
type CreateGroupRequest struct {
	Name      string   `json:"name" binding:"required,min=1,max=100"`
	MemberIDs []string `json:"member_ids" binding:"required,min=1,dive,required"`
}

// GroupResponse represents a group conversation in API responses.
type GroupResponse struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Type      string   `json:"type"`
	Members   []string `json:"members"`
	CreatedAt string   `json:"created_at"`
}

func groupResponse(conv *store.Conversation) GroupResponse {
	members := conv.Members
	if members == nil {
		members = []string{}
	}
	return GroupResponse{
		ID:        conv.ID,
		Name:      conv.Name,
		Type:      string(conv.Type),
		Members:   members,
		CreatedAt: conv.CreatedAt.Format(time.RFC3339),
	}
}

// CreateGroup handles group creation. Every member must be a friend of the caller.
// POST /api/groups
func (h *GroupHandlers) CreateGroup(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		return
	}

	var req CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create group request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "invalid request body"})
		return
	}

	group, err := h.service.CreateGroup(c.Request.Context(), uid, req.Name, req.MemberIDs)
	if err != nil {
		switch {
		case errors.Is(err, friends.ErrInvalidGroup):
			c.JSON(http.StatusBadRequest, ErrorResponse{Message: err.Error()})
		case errors.Is(err, friends.ErrUserNotFound):
			c.JSON(http.StatusNotFound, ErrorResponse{Message: err.Error()})
		case errors.Is(err, friends.ErrNotFriends):
			c.JSON(http.StatusForbidden, ErrorResponse{Message: err.Error()})
		default:
			h.log.Error().Err(err).Str("owner_id", uid).Msg("failed to create group")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Message: "internal server error"})
		}
		return
	}

	h.log.Info().Str("group_id", group.ID).Str("owner_id", uid).Int("members", len(group.Members)).Msg("group created")
	c.JSON(http.StatusCreated, groupResponse(group))
}

// ListGroups lists the caller's groups.
// GET /api/groups
func (h *GroupHandlers) ListGroups(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		return
	}

	groups, err := h.service.ListGroups(c.Request.Context(), uid)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", uid).Msg("failed to list groups")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Message: "internal server error"})
		return
	}

	response := make([]GroupResponse, 0, len(groups))
	for _, g := range groups {
		response = append(response, groupResponse(g))
	}
	c.JSON(http.StatusOK, response)
}
