package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rl-arena/ranked-orchestrator/internal/models"
)

func TestServerService_Register(t *testing.T) {
	h := newHarness(t, 2)
	servers := NewServerService(h.store, h.clock, zap.NewNop())

	req := models.CreateServerRequest{
		Name:         "fra-1",
		Address:      "10.0.0.5:27015",
		RconPassword: "rcon",
		CallbackKey:  "0123456789abcdef",
	}
	srv, err := servers.Register(h.ctx, req)
	require.NoError(t, err)
	assert.NotEmpty(t, srv.ID)
	assert.Equal(t, models.ServerStatusAvailable, srv.Status)
	assert.NotEqual(t, req.CallbackKey, srv.CallbackKeyHash)

	_, err = servers.Register(h.ctx, req)
	assert.ErrorIs(t, err, ErrServerExists)
	assert.Equal(t, CodeStateConflict, CodeOf(err))

	req.Address = "10.0.0.6:27015"
	req.CallbackKey = "short"
	_, err = servers.Register(h.ctx, req)
	assert.Equal(t, CodeValidation, CodeOf(err))

	list, err := servers.List(h.ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestServerService_Authenticate(t *testing.T) {
	h := newHarness(t, 2)
	servers := NewServerService(h.store, h.clock, zap.NewNop())

	srv, err := servers.Register(h.ctx, models.CreateServerRequest{
		Name:         "fra-1",
		Address:      "10.0.0.5:27015",
		RconPassword: "rcon",
		CallbackKey:  "0123456789abcdef",
	})
	require.NoError(t, err)

	got, err := servers.Authenticate(h.ctx, srv.ID, "0123456789abcdef")
	require.NoError(t, err)
	assert.Equal(t, srv.ID, got.ID)

	tests := []struct {
		name string
		id   string
		key  string
	}{
		{"wrong key", srv.ID, "fedcba9876543210"},
		{"unknown server", "missing", "0123456789abcdef"},
		{"empty key", srv.ID, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := servers.Authenticate(h.ctx, tt.id, tt.key)
			assert.ErrorIs(t, err, ErrUnauthorized)
		})
	}
}
