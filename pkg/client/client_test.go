package client_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palletrack/pallet-system/internal/api/handler"
	"github.com/palletrack/pallet-system/internal/api/ws"
	"github.com/palletrack/pallet-system/internal/core/service"
	"github.com/palletrack/pallet-system/internal/infrastructure/db/memory"
	"github.com/palletrack/pallet-system/internal/infrastructure/queue"
	"github.com/palletrack/pallet-system/pkg/client"
	"github.com/palletrack/pallet-system/pkg/protocol"
)

type server struct {
	url string
	hub *ws.Hub
}

func newServer(t *testing.T) *server {
	t.Helper()
	log := zerolog.Nop()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	d := queue.NewDispatcher(2, log)
	d.Start(ctx)

	pallets := memory.NewPalletRepository()
	users := memory.NewUserRepository()

	r := ws.NewRouter(handler.NewValidator(), log)
	ws.Register(r, ws.Services{
		Users:       service.NewUserService(users, log),
		Pallets:     service.NewPalletService(pallets, d, nil, log),
		Assignments: service.NewAssignmentService(pallets, users, d, nil, log),
	})

	hub := ws.NewHub()
	srv := httptest.NewServer(ws.NewServer(hub, r, ws.Options{}, log))
	t.Cleanup(func() {
		hub.CloseAll()
		srv.Close()
	})
	return &server{url: "ws" + strings.TrimPrefix(srv.URL, "http"), hub: hub}
}

func dial(t *testing.T, s *server) *client.Coordinator {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := client.Dial(ctx, s.url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func ctxT(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func login(t *testing.T, c *client.Coordinator, userID string) {
	t.Helper()
	_, err := c.Register(ctxT(t), userID, "pw", nil)
	require.NoError(t, err)
	id, err := c.Authenticate(ctxT(t), userID, "pw")
	require.NoError(t, err)
	require.Equal(t, userID, id)
}

func TestCoordinator_ClaimAndReleaseFlow(t *testing.T) {
	s := newServer(t)
	c := dial(t, s)
	ctx := ctxT(t)

	login(t, c, "alice")
	assert.Equal(t, "alice", c.State().CurrentUser)
	assert.Equal(t, client.TaskNone, c.State().CurrentTask)

	c.SetPosition(protocol.Position{121.5, 25.0})
	created, err := c.CreatePallet(ctx, protocol.AddPallet{Type: "grid-9"})
	require.NoError(t, err)
	assert.Equal(t, "static", created.Status)
	assert.Equal(t, protocol.Position{121.5, 25.0}, created.Position)

	h, err := c.CheckHolding(ctx, client.TaskClaim)
	require.NoError(t, err)
	assert.True(t, h.OK)
	assert.True(t, h.HasNone)
	assert.Equal(t, client.TaskClaim, c.State().CurrentTask)

	claimed, err := c.Claim(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "take-away", claimed.Status)
	assert.Equal(t, "alice", claimed.FinalUser)

	st := c.State()
	assert.Equal(t, client.TaskNone, st.CurrentTask)
	require.NotNil(t, st.LastPallet)
	assert.Equal(t, created.ID, st.LastPallet.ID)

	held, err := c.FindHeld(ctx)
	require.NoError(t, err)
	assert.Equal(t, created.ID, held.ID)

	h, err = c.CheckHolding(ctx, client.TaskRelease)
	require.NoError(t, err)
	assert.True(t, h.OK)
	assert.Equal(t, created.ID, h.PalletID)

	c.SetPosition(protocol.Position{121.6, 25.1})
	released, err := c.Release(ctx)
	require.NoError(t, err)
	assert.Equal(t, "static", released.Status)
	assert.Empty(t, released.FinalUser)
	assert.Equal(t, protocol.Position{121.6, 25.1}, released.Position)
	assert.Nil(t, c.State().LastPallet)

	h, err = c.CheckHolding(ctx, client.TaskRelease)
	require.NoError(t, err)
	assert.False(t, h.OK)
	assert.True(t, h.HasNone)
}

func TestCoordinator_FailureReplyAbortsTask(t *testing.T) {
	s := newServer(t)
	alice := dial(t, s)
	bob := dial(t, s)
	ctx := ctxT(t)

	login(t, alice, "alice")
	login(t, bob, "bob")

	alice.SetPosition(protocol.Position{1, 2})
	p, err := alice.CreatePallet(ctx, protocol.AddPallet{Type: "grid-1"})
	require.NoError(t, err)
	_, err = alice.Claim(ctx, p.ID)
	require.NoError(t, err)

	_, err = bob.Claim(ctx, p.ID)
	var re *client.ReplyError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, protocol.KindTakeAway, re.Kind)
	assert.Equal(t, "pallet is not available", re.Msg)
	assert.Equal(t, client.TaskNone, bob.State().CurrentTask)

	_, err = bob.Authenticate(ctx, "bob", "nope")
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "wrong password", re.Msg)
}

func TestCoordinator_LocalValidation(t *testing.T) {
	s := newServer(t)
	c := dial(t, s)
	ctx := ctxT(t)

	_, err := c.Claim(ctx, "abc")
	assert.ErrorIs(t, err, client.ErrNotAuthenticated)

	_, err = c.Register(ctx, "", "pw", nil)
	assert.ErrorIs(t, err, client.ErrInvalidRequest)

	_, err = c.CreatePallet(ctx, protocol.AddPallet{Type: "grid-1"})
	assert.ErrorIs(t, err, client.ErrInvalidRequest, "no position reported yet")

	_, err = c.FindAvailable(ctx, "weight", "1")
	assert.ErrorIs(t, err, client.ErrInvalidRequest)

	login(t, c, "alice")
	_, err = c.Claim(ctx, "")
	assert.ErrorIs(t, err, client.ErrInvalidRequest)

	_, err = c.Release(ctx)
	assert.ErrorIs(t, err, client.ErrNoPosition)

	_, err = c.CheckHolding(ctx, client.TaskCreate)
	assert.ErrorIs(t, err, client.ErrInvalidRequest)

	// the session is still usable after local rejections
	all, err := c.FindAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCoordinator_Queries(t *testing.T) {
	s := newServer(t)
	c := dial(t, s)
	ctx := ctxT(t)

	c.SetPosition(protocol.Position{3, 4})
	for _, req := range []protocol.AddPallet{
		{Type: "grid-1"},
		{Type: "grid-2", Content: "bolts"},
		{Type: "grid-3", Content: "nuts", Status: "broken"},
	} {
		_, err := c.CreatePallet(ctx, req)
		require.NoError(t, err)
	}

	contents, err := c.FindSelections(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, []string{service.SelectionLabelContents, "bolts"}, contents)

	categories, err := c.FindSelections(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, []string{service.SelectionLabelCategory, "grid-1"}, categories)

	features, err := c.FindAvailable(ctx, "content", "bolts")
	require.NoError(t, err)
	require.Len(t, features, 1)
	assert.Equal(t, "grid-2", features[0].Properties.Type)
	assert.Equal(t, protocol.Position{3, 4}, features[0].Geometry.Coordinates)

	all, err := c.FindAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	repaired := "static"
	amended, err := c.AmendPallet(ctx, protocol.UpdatePallet{ID: all[2].ID, Status: &repaired})
	require.NoError(t, err)
	assert.Equal(t, "static", amended.Status)
}

func TestCoordinator_DisconnectDiscardsState(t *testing.T) {
	s := newServer(t)
	c := dial(t, s)
	login(t, c, "alice")
	c.SetPosition(protocol.Position{1, 1})

	s.hub.CloseAll()

	select {
	case <-c.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("coordinator did not notice the closed session")
	}

	st := c.State()
	assert.Empty(t, st.CurrentUser)
	assert.Nil(t, st.LastPosition)
	assert.Equal(t, client.TaskNone, st.CurrentTask)

	_, err := c.FindAll(ctxT(t))
	assert.True(t, errors.Is(err, client.ErrDisconnected), "got %v", err)
}
