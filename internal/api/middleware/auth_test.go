package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl-arena/ranked-orchestrator/internal/authz"
	"github.com/rl-arena/ranked-orchestrator/internal/models"
	"github.com/rl-arena/ranked-orchestrator/internal/service"
	jwtutil "github.com/rl-arena/ranked-orchestrator/pkg/jwt"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestAuth(t *testing.T) {
	jwtManager := jwtutil.NewJWTManager("secret", time.Hour)
	token, err := jwtManager.Generate("p1", "alice", nil, []string{"admin"})
	require.NoError(t, err)

	router := gin.New()
	router.GET("/me", Auth(jwtManager), func(c *gin.Context) {
		id, _ := GetIdentity(c)
		c.JSON(http.StatusOK, gin.H{"playerId": id.PlayerID, "roles": id.Roles})
	})

	tests := []struct {
		name   string
		header string
		query  string
		status int
	}{
		{"bearer header", "Bearer " + token, "", http.StatusOK},
		{"query token", "", "?token=" + token, http.StatusOK},
		{"missing", "", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + token, "", http.StatusUnauthorized},
		{"garbage", "Bearer nope", "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusOK {
				assert.Contains(t, w.Body.String(), `"playerId":"p1"`)
			} else {
				assert.Contains(t, w.Body.String(), `"code":"UNAUTHORIZED"`)
			}
		})
	}
}

func TestRequire(t *testing.T) {
	a := authz.NewRoleAuthorizer([]string{"root"})

	serve := func(id *models.Identity) int {
		router := gin.New()
		router.POST("/admin", func(c *gin.Context) {
			if id != nil {
				c.Set(identityKey, *id)
			}
		}, Require(a, authz.CapCancelMatch), func(c *gin.Context) {
			c.Status(http.StatusNoContent)
		})
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/admin", nil))
		return w.Code
	}

	assert.Equal(t, http.StatusNoContent, serve(&models.Identity{PlayerID: "root"}))
	assert.Equal(t, http.StatusNoContent, serve(&models.Identity{PlayerID: "p2", Roles: []string{authz.RoleAdmin}}))
	assert.Equal(t, http.StatusForbidden, serve(&models.Identity{PlayerID: "p3"}))
	assert.Equal(t, http.StatusUnauthorized, serve(nil))
}

type stubServers struct {
	key string
}

func (s stubServers) Authenticate(ctx context.Context, serverID, key string) (*models.GameServer, error) {
	if serverID != "s1" || key != s.key {
		return nil, service.ErrUnauthorized
	}
	return &models.GameServer{ID: "s1"}, nil
}

func TestServerAuth(t *testing.T) {
	router := gin.New()
	router.GET("/assignment", ServerAuth(stubServers{key: "k"}), func(c *gin.Context) {
		srv, _ := GetServer(c)
		c.String(http.StatusOK, srv.ID)
	})

	req := httptest.NewRequest(http.MethodGet, "/assignment", nil)
	req.Header.Set(HeaderServerID, "s1")
	req.Header.Set(HeaderServerKey, "k")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "s1", w.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/assignment", nil)
	req.Header.Set(HeaderServerID, "s1")
	req.Header.Set(HeaderServerKey, "wrong")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
