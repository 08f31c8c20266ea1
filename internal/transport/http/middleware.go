package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const (
	// ContextKeyUserID is the context key for storing user ID.
	ContextKeyUserID = "user_id"
	// ContextKeyFirstName is the context key for storing the first name.
	ContextKeyFirstName = "firstname"
	// ContextKeyLastName is the context key for storing the last name.
	ContextKeyLastName = "lastname"
)

// AuthMiddleware creates a middleware that validates bearer tokens.
func AuthMiddleware(tokens TokenValidator, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			logger.Debug().Msg("missing or malformed authorization header")
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Message: "missing authorization header"})
			return
		}

		claims, err := tokens.ValidateToken(token)
		if err != nil {
			logger.Debug().Err(err).Msg("invalid token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Message: "invalid token"})
			return
		}

		c.Set(ContextKeyUserID, claims.UserID)
		c.Set(ContextKeyFirstName, claims.FirstName)
		c.Set(ContextKeyLastName, claims.LastName)

		c.Next()
	}
}

// LoggerMiddleware creates a middleware that logs HTTP requests.
func LoggerMiddleware(logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Msg("http request")
	}
}

// currentUserID returns the authenticated user id, writing a 401 when absent.
func currentUserID(c *gin.Context) (string, bool) {
	uid := c.GetString(ContextKeyUserID)
	if uid == "" {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Message: "unauthorized"})
		return "", false
	}
	return uid, true
}
