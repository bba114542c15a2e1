package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palletrack/pallet-system/internal/api/handler"
	"github.com/palletrack/pallet-system/internal/api/middleware"
	"github.com/palletrack/pallet-system/internal/api/ws"
	"github.com/palletrack/pallet-system/internal/core/domain"
	"github.com/palletrack/pallet-system/internal/core/service"
	"github.com/palletrack/pallet-system/internal/infrastructure/db/memory"
	"github.com/palletrack/pallet-system/pkg/protocol"
)

const testSecret = "test-secret"

func newTestServer(t *testing.T) (*httptest.Server, *memory.PalletRepository) {
	t.Helper()
	log := zerolog.Nop()
	pallets := memory.NewPalletRepository()
	users := memory.NewUserRepository()
	palletSvc := service.NewPalletService(pallets, nil, nil, log)

	r := ws.NewRouter(handler.NewValidator(), log)
	ws.Register(r, ws.Services{
		Users:       service.NewUserService(users, log),
		Pallets:     palletSvc,
		Assignments: service.NewAssignmentService(pallets, users, nil, nil, log),
	})
	hub := ws.NewHub()

	e := NewRouter(Deps{
		Pallets:   palletSvc,
		Session:   ws.NewServer(hub, r, ws.Options{}, log),
		JWTSecret: testSecret,
		Log:       log,
	})
	srv := httptest.NewServer(e)
	t.Cleanup(func() {
		hub.CloseAll()
		srv.Close()
	})
	return srv, pallets
}

func operatorToken(t *testing.T, role string) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "dock-7", "role": role}).
		SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func get(t *testing.T, url, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestRouter_PublicEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, path := range []string{"/health", "/health/ready", "/metrics", "/swagger/doc.json"} {
		resp := get(t, srv.URL+path, "")
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}

func TestRouter_OperatorRoutes(t *testing.T) {
	srv, pallets := newTestServer(t)
	_, err := pallets.Insert(context.Background(), &domain.Pallet{Category: "grid-9", Status: domain.PalletAvailable})
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, get(t, srv.URL+"/v1/pallets", "").StatusCode)
	assert.Equal(t, http.StatusForbidden, get(t, srv.URL+"/v1/pallets", operatorToken(t, "driver")).StatusCode)

	resp := get(t, srv.URL+"/v1/pallets", operatorToken(t, middleware.RoleOperator))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 1, body.Count)

	resp = get(t, srv.URL+"/v1/pallets/available?target=weight&thing=1", operatorToken(t, middleware.RoleAdmin))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRouter_SessionChannel(t *testing.T) {
	srv, _ := newTestServer(t)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	env, err := protocol.NewEnvelope(protocol.KindFindSelections, protocol.FindSelections{Content: true})
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(env))

	var reply protocol.Envelope
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, protocol.KindFindSelections, reply.Type)
}
