package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-roster-sync/internal/client"
	"github.com/noah-isme/sma-roster-sync/internal/middleware"
	"github.com/noah-isme/sma-roster-sync/internal/models"
	appErrors "github.com/noah-isme/sma-roster-sync/pkg/errors"
	"github.com/noah-isme/sma-roster-sync/pkg/response"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// upstreamContext carries the caller's bearer token to Roster Service calls.
// The request id already travels on the request context.
func upstreamContext(c *gin.Context) context.Context {
	return client.WithAuthorization(c.Request.Context(), c.GetHeader("Authorization"))
}

// authorizeSession resolves the session id from the path and checks the
// caller owns it. It writes the error response itself.
func authorizeSession(c *gin.Context, authorizer sessionAuthorizer) (string, bool) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return "", false
	}
	id := c.Param("id")
	if err := authorizer.Authorize(id, claims.UserID, middleware.IsAdmin(claims.Role)); err != nil {
		response.Error(c, err)
		return "", false
	}
	return id, true
}
