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

// FriendsHandlers provides HTTP handlers for friend management endpoints.
type FriendsHandlers struct {
	service *friends.Service
	users   store.UserStore
	log     *zerolog.Logger
}

// NewFriendsHandlers creates a new friends handlers instance.
func NewFriendsHandlers(svc *friends.Service, users store.UserStore, logger *zerolog.Logger) *FriendsHandlers {
	return &FriendsHandlers{
		service: svc,
		users:   users,
		log:     logger,
	}
}

// SendFriendRequestRequest represents the request body for sending a friend request.
type SendFriendRequestRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// FriendResponse represents a friend in API responses.
type FriendResponse struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	FriendID  string `json:"friend_id"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
	// The other side of the relationship.
	FriendFirstName string `json:"friend_firstname,omitempty"`
	FriendLastName  string `json:"friend_lastname,omitempty"`
}

func (h *FriendsHandlers) friendToResponse(c *gin.Context, f *store.Friend, currentUserID string) FriendResponse {
	resp := FriendResponse{
		ID:        f.ID,
		UserID:    f.UserID,
		FriendID:  f.FriendID,
		Status:    string(f.Status),
		CreatedAt: f.CreatedAt.Format(time.RFC3339),
		UpdatedAt: f.UpdatedAt.Format(time.RFC3339),
	}

	otherUserID := f.FriendID
	if f.FriendID == currentUserID {
		otherUserID = f.UserID
	}
	if user, err := h.users.GetUserByID(c.Request.Context(), otherUserID); err == nil {
		resp.FriendFirstName = user.FirstName
		resp.FriendLastName = user.LastName
	}

	return resp
}

// SendRequest handles sending a friend request.
// POST /api/friends/requests
func (h *FriendsHandlers) SendRequest(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		return
	}

	var req SendFriendRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid send friend request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "invalid request body"})
		return
	}

	friend, err := h.service.SendRequest(c.Request.Context(), uid, req.UserID)
	if err != nil {
		switch {
		case errors.Is(err, friends.ErrCannotFriendSelf):
			c.JSON(http.StatusBadRequest, ErrorResponse{Message: "cannot send friend request to yourself"})
		case errors.Is(err, friends.ErrAlreadyFriends):
			c.JSON(http.StatusConflict, ErrorResponse{Message: "already friends"})
		case errors.Is(err, friends.ErrRequestAlreadyExists):
			c.JSON(http.StatusConflict, ErrorResponse{Message: "friend request already exists"})
		case errors.Is(err, friends.ErrUserNotFound):
			c.JSON(http.StatusNotFound, ErrorResponse{Message: "user not found"})
		default:
			h.log.Error().Err(err).Str("from_user_id", uid).Str("to_user_id", req.UserID).Msg("failed to send friend request")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Message: "internal server error"})
		}
		return
	}

	h.log.Info().Str("from_user_id", uid).Str("to_user_id", req.UserID).Msg("friend request sent")
	c.JSON(http.StatusCreated, h.friendToResponse(c, friend, uid))
}

// ListFriends handles listing accepted friends.
// GET /api/friends
func (h *FriendsHandlers) ListFriends(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		return
	}

	friendsList, err := h.service.ListFriends(c.Request.Context(), uid)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", uid).Msg("failed to list friends")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Message: "internal server error"})
		return
	}

	response := make([]FriendResponse, 0, len(friendsList))
	for _, f := range friendsList {
		response = append(response, h.friendToResponse(c, f, uid))
	}
	c.JSON(http.StatusOK, response)
}

// ListPendingRequests handles listing incoming pending friend requests.
// GET /api/friends/requests/incoming
func (h *FriendsHandlers) ListPendingRequests(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		return
	}

	requests, err := h.service.ListPendingRequests(c.Request.Context(), uid)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", uid).Msg("failed to list pending requests")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Message: "internal server error"})
		return
	}

	response := make([]FriendResponse, 0, len(requests))
	for _, f := range requests {
		response = append(response, h.friendToResponse(c, f, uid))
	}
	c.JSON(http.StatusOK, response)
}

// AcceptRequest handles accepting a friend request.
// POST /api/friends/:userId/accept
func (h *FriendsHandlers) AcceptRequest(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		return
	}
	fromUserID := c.Param("userId")

	if err := h.service.AcceptRequest(c.Request.Context(), uid, fromUserID); err != nil {
		if errors.Is(err, friends.ErrRequestNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Message: "friend request not found"})
			return
		}
		h.log.Error().Err(err).Str("user_id", uid).Str("from_user_id", fromUserID).Msg("failed to accept friend request")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Message: "internal server error"})
		return
	}

	h.log.Info().Str("user_id", uid).Str("from_user_id", fromUserID).Msg("friend request accepted")
	c.JSON(http.StatusOK, gin.H{"message": "friend request accepted"})
}

// RejectRequest handles rejecting a friend request.
// DELETE /api/friends/:userId/reject
func (h *FriendsHandlers) RejectRequest(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		return
	}
	fromUserID := c.Param("userId")

	if err := h.service.RejectRequest(c.Request.Context(), uid, fromUserID); err != nil {
		if errors.Is(err, friends.ErrRequestNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Message: "friend request not found"})
			return
		}
		h.log.Error().Err(err).Str("user_id", uid).Str("from_user_id", fromUserID).Msg("failed to reject friend request")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Message: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "friend request rejected"})
}

// RemoveFriend handles removing an accepted friend.
// DELETE /api/friends/:userId
func (h *FriendsHandlers) RemoveFriend(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		return
	}
	friendID := c.Param("userId")

	if err := h.service.RemoveFriend(c.Request.Context(), uid, friendID); err != nil {
		if errors.Is(err, friends.ErrNotFriends) {
			c.JSON(http.StatusNotFound, ErrorResponse{Message: "not friends"})
			return
		}
		h.log.Error().Err(err).Str("user_id", uid).Str("friend_id", friendID).Msg("failed to remove friend")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Message: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "friend removed"})
}
