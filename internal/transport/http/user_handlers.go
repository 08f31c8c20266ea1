package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/socialchat-server/internal/presence"
	"github.com/vovakirdan/socialchat-server/internal/store"
)

// UserHandlers provides HTTP handlers for user profiles.
type UserHandlers struct {
	store    store.UserStore
	presence *presence.Registry
	log      *zerolog.Logger
}

// NewUserHandlers creates a new user handlers instance.
func NewUserHandlers(st store.UserStore, registry *presence.Registry, logger *zerolog.Logger) *UserHandlers {
	return &UserHandlers{
		store:    st,
		presence: registry,
		log:      logger,
	}
}

// UserResponse represents a user in API responses.
type UserResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email,omitempty"`
	FirstName string `json:"firstname"`
	LastName  string `json:"lastname"`
	Online    bool   `json:"online"`
	CreatedAt string `json:"created_at"`
}

func userResponse(u *store.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		CreatedAt: u.CreatedAt.Format(time.RFC3339),
	}
}

// Me returns the authenticated user's profile.
// GET /api/me
func (h *UserHandlers) Me(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		return
	}
	h.respondUser(c, uid, true)
}

// GetUser returns another user's public profile and presence.
// GET /api/users/:userId
func (h *UserHandlers) GetUser(c *gin.Context) {
	if _, ok := currentUserID(c); !ok {
		return
	}
	h.respondUser(c, c.Param("userId"), false)
}

func (h *UserHandlers) respondUser(c *gin.Context, userID string, self bool) {
	user, err := h.store.GetUserByID(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Message: "user not found"})
			return
		}
		h.log.Error().Err(err).Str("user_id", userID).Msg("failed to get user")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Message: "internal server error"})
		return
	}

	resp := userResponse(user)
	if !self {
		resp.Email = ""
	}
	resp.Online = h.presence.Online(user.ID)
	c.JSON(http.StatusOK, resp)
}
