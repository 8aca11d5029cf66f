// Package common holds helpers shared by every HTTP handler.
package common

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/devlinkhq/marketplace-backend/internal/http/middleware"
	"github.com/devlinkhq/marketplace-backend/internal/service"
)

var (
	// ErrNoIdentity is returned when the auth middleware did not run.
	ErrNoIdentity = errors.New("no identity in request context")

	// ErrInvalidUUID is returned when UUID parsing fails.
	ErrInvalidUUID = errors.New("invalid UUID format")
)

// CurrentIdentity extracts the authenticated caller from the gin
// context, as stored by the auth middleware.
func CurrentIdentity(c *gin.Context) (service.Identity, error) {
	rawID, exists := c.Get(middleware.ContextUserIDKey)
	if !exists {
		return service.Identity{}, ErrNoIdentity
	}
	userID, ok := rawID.(uuid.UUID)
	if !ok {
		return service.Identity{}, ErrNoIdentity
	}

	rawRole, exists := c.Get(middleware.ContextRoleKey)
	if !exists {
		return service.Identity{}, ErrNoIdentity
	}
	role, ok := rawRole.(string)
	if !ok {
		return service.Identity{}, ErrNoIdentity
	}

	return service.Identity{UserID: userID, Role: role}, nil
}

// ParseUUIDParam parses a UUID from a URL parameter.
func ParseUUIDParam(c *gin.Context, paramName string) (uuid.UUID, error) {
	param := c.Param(paramName)
	if param == "" {
		return uuid.Nil, fmt.Errorf("parameter %s is missing", paramName)
	}

	parsed, err := uuid.Parse(param)
	if err != nil {
		return uuid.Nil, ErrInvalidUUID
	}

	return parsed, nil
}

// BindAndValidate binds the JSON request body.
func BindAndValidate(c *gin.Context, req interface{}) error {
	if err := c.ShouldBindJSON(req); err != nil {
		return fmt.Errorf("request validation failed: %w", err)
	}
	return nil
}

// RespondError sends a standardized error response.
func RespondError(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{"error": message})
}

// RespondJSON sends a JSON response with the given status code.
func RespondJSON(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, data)
}

// RespondUnauthorized sends a 401 response.
func RespondUnauthorized(c *gin.Context, message string) {
	if message == "" {
		message = "authentication required"
	}
	RespondError(c, http.StatusUnauthorized, message)
}

// RespondBadRequest sends a 400 response.
func RespondBadRequest(c *gin.Context, message string) {
	if message == "" {
		message = "invalid request"
	}
	RespondError(c, http.StatusBadRequest, message)
}

// ParseIntQuery reads an integer query parameter with a fallback.
func ParseIntQuery(c *gin.Context, key string, fallback int) int {
	if v := c.Query(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

// GetPagination extracts limit and offset query parameters with
// defaults.
func GetPagination(c *gin.Context) (limit, offset int) {
	limit = ParseIntQuery(c, "limit", 20)
	offset = ParseIntQuery(c, "offset", 0)
	if limit > 100 {
		limit = 100
	}
	if limit < 1 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return
}
