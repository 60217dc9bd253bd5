package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jwtutil "github.com/rl-arena/ranked-orchestrator/pkg/jwt"
)

type recordedRequest struct {
	Method string
	Path   string
	Auth   string
	Body   string
}

func stubServer(t *testing.T, routes map[string]func(w http.ResponseWriter)) (*httptest.Server, *[]recordedRequest) {
	t.Helper()
	var seen []recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		seen = append(seen, recordedRequest{Method: r.Method, Path: r.URL.RequestURI(), Auth: r.Header.Get("Authorization"), Body: string(body)})

		handler, ok := routes[r.Method+" "+r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		handler(w)
	}))
	t.Cleanup(srv.Close)
	return srv, &seen
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestMatchesList(t *testing.T) {
	srv, seen := stubServer(t, map[string]func(http.ResponseWriter){
		"GET /api/v1/admin/matches": func(w http.ResponseWriter) {
			_, _ = io.WriteString(w, `{"matches":[{"id":"m1","status":"VETO","players":[{},{}],"updatedAt":"2026-03-01T12:00:00Z"}],"total":1}`)
		},
	})

	out, err := run(t, "--server", srv.URL, "--token", "tok", "matches", "list", "--stuck")
	require.NoError(t, err)

	require.Len(t, *seen, 1)
	assert.Equal(t, "/api/v1/admin/matches?stuck=true", (*seen)[0].Path)
	assert.Equal(t, "Bearer tok", (*seen)[0].Auth)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.Contains(t, lines[1], "m1")
	assert.Contains(t, lines[1], "VETO")
}

func TestMatchesForm_JSONOutput(t *testing.T) {
	srv, seen := stubServer(t, map[string]func(http.ResponseWriter){
		"POST /api/v1/admin/matches/form": func(w http.ResponseWriter) {
			w.WriteHeader(http.StatusCreated)
			_, _ = io.WriteString(w, `{"match":{"id":"m2","status":"READY_CHECK"}}`)
		},
	})

	out, err := run(t, "--server", srv.URL, "--token", "tok", "-o", "json", "matches", "form", "--fill-bots")
	require.NoError(t, err)
	assert.JSONEq(t, `{"fillBots":true}`, (*seen)[0].Body)

	var decoded map[string]map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, "m2", decoded["match"]["id"])
}

func TestAPIErrorIsSurfaced(t *testing.T) {
	srv, _ := stubServer(t, map[string]func(http.ResponseWriter){
		"POST /api/v1/admin/servers/s1/release": func(w http.ResponseWriter) {
			w.WriteHeader(http.StatusForbidden)
			_, _ = io.WriteString(w, `{"error":{"code":"UNAUTHORIZED","message":"Missing capability servers:release","retryable":false}}`)
		},
	})

	_, err := run(t, "--server", srv.URL, "--token", "tok", "servers", "release", "s1")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "UNAUTHORIZED", apiErr.Code)
}

func TestBansRevoke_AlreadyInactive(t *testing.T) {
	srv, _ := stubServer(t, map[string]func(http.ResponseWriter){
		"POST /api/v1/admin/bans/b1/revoke": func(w http.ResponseWriter) {
			_, _ = io.WriteString(w, `{"status":"already_processed"}`)
		},
	})

	out, err := run(t, "--server", srv.URL, "--token", "tok", "bans", "revoke", "b1")
	require.NoError(t, err)
	assert.Equal(t, "ban already inactive\n", out)
}

func TestBansAdd(t *testing.T) {
	srv, seen := stubServer(t, map[string]func(http.ResponseWriter){
		"POST /api/v1/admin/bans": func(w http.ResponseWriter) {
			w.WriteHeader(http.StatusCreated)
			_, _ = io.WriteString(w, `{"ban":{"id":"b2","playerId":"p1","reason":"MANUAL","active":true}}`)
		},
	})

	out, err := run(t, "--server", srv.URL, "--token", "tok", "bans", "add", "p1", "--minutes", "90", "--note", "griefing")
	require.NoError(t, err)
	assert.JSONEq(t, `{"playerId":"p1","durationMinutes":90,"note":"griefing"}`, (*seen)[0].Body)
	assert.Contains(t, out, "never")
}

func TestTokenCommand(t *testing.T) {
	out, err := run(t, "--token", "unused", "token", "--secret", "s3cret", "--player", "admin", "--role", "admin")
	require.NoError(t, err)

	claims, err := jwtutil.NewJWTManager("s3cret", 0).Verify(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.PlayerID)
	assert.Equal(t, []string{"admin"}, claims.Roles)
}
