package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/rl-arena/ranked-orchestrator/internal/authz"
	"github.com/rl-arena/ranked-orchestrator/internal/models"
	"github.com/rl-arena/ranked-orchestrator/internal/service"
	jwtutil "github.com/rl-arena/ranked-orchestrator/pkg/jwt"
)

const (
	identityKey = "identity"
	serverKey   = "gameServer"

	HeaderServerID  = "X-Server-ID"
	HeaderServerKey = "X-Server-Key"
)

// Auth verifies the session token issued by the identity provider and stores
// the caller's identity in the context. Browsers cannot set headers on a
// websocket upgrade, so a "token" query parameter is accepted as well.
func Auth(verifier *jwtutil.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			AbortWithError(c, http.StatusUnauthorized, service.CodeUnauthorized, "Authorization header required")
			return
		}

		claims, err := verifier.Verify(token)
		if err != nil {
			msg := "Invalid token"
			if errors.Is(err, jwtutil.ErrExpiredToken) {
				msg = "Token expired"
			}
			AbortWithError(c, http.StatusUnauthorized, service.CodeUnauthorized, msg)
			return
		}

		c.Set(identityKey, models.Identity{
			PlayerID:    claims.PlayerID,
			DisplayName: claims.DisplayName,
			Rating:      claims.Rating,
			Roles:       claims.Roles,
		})
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		token := c.Query("token")
		return token, token != ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// GetIdentity returns the identity stored by Auth.
func GetIdentity(c *gin.Context) (models.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return models.Identity{}, false
	}
	id, ok := v.(models.Identity)
	return id, ok
}

// Require rejects callers whose identity lacks capability. It must run after Auth.
func Require(a authz.Authorizer, capability authz.Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := GetIdentity(c)
		if !ok {
			AbortWithError(c, http.StatusUnauthorized, service.CodeUnauthorized, "Authentication required")
			return
		}
		if err := authz.Check(a, id, capability); err != nil {
			AbortWithError(c, http.StatusForbidden, service.CodeUnauthorized, "Missing capability "+string(capability))
			return
		}
		c.Next()
	}
}

// ServerAuthenticator checks hosting-instance credentials.
type ServerAuthenticator interface {
	Authenticate(ctx context.Context, serverID, key string) (*models.GameServer, error)
}

// ServerAuth authenticates a hosting instance by its id and callback key.
func ServerAuth(servers ServerAuthenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		srv, err := servers.Authenticate(c.Request.Context(), c.GetHeader(HeaderServerID), c.GetHeader(HeaderServerKey))
		if errors.Is(err, service.ErrUnauthorized) {
			AbortWithError(c, http.StatusUnauthorized, service.CodeUnauthorized, "Invalid server credentials")
			return
		}
		if err != nil {
			AbortWithError(c, http.StatusInternalServerError, service.CodeInternal, "Failed to authenticate server")
			return
		}
		c.Set(serverKey, srv)
		c.Next()
	}
}

// GetServer returns the hosting instance stored by ServerAuth.
func GetServer(c *gin.Context) (*models.GameServer, bool) {
	v, ok := c.Get(serverKey)
	if !ok {
		return nil, false
	}
	srv, ok := v.(*models.GameServer)
	return srv, ok
}
