package client

import (
	"context"
	"fmt"

	"github.com/palletrack/pallet-system/pkg/protocol"
)

// Holding is the answer to CheckHolding.
type Holding struct {
	// OK reports whether the intended task may proceed.
	OK       bool
	Msg      string
	HasNone  bool
	PalletID string
}

// Register creates an operator account.
func (c *Coordinator) Register(ctx context.Context, userID, pwd string, pos *protocol.Position) (*protocol.User, error) {
	data, err := c.call(ctx, protocol.KindAddUser, &protocol.AddUser{UserID: userID, Pwd: pwd, LastPosition: pos})
	if err != nil {
		return nil, err
	}
	return decodeData[protocol.User](protocol.KindAddUser, data)
}

// Authenticate logs in as userID. On success the user becomes the current
// user and any previous task is dropped.
func (c *Coordinator) Authenticate(ctx context.Context, userID, pwd string) (string, error) {
	data, err := c.call(ctx, protocol.KindCheckUser, &protocol.CheckUser{UserID: userID, Pwd: pwd})
	if err != nil {
		return "", err
	}
	id, err := decodeData[protocol.Identity](protocol.KindCheckUser, data)
	if err != nil {
		return "", err
	}
	if id == nil || id.Identity == "" {
		return "", fmt.Errorf("client: %s reply without identity", protocol.KindCheckUser)
	}

	c.mu.Lock()
	c.state.CurrentUser = id.Identity
	c.state.CurrentTask = TaskNone
	c.state.LastPallet = nil
	c.mu.Unlock()
	return id.Identity, nil
}

// CheckHolding asks whether the current user may start task, which must be
// TaskClaim or TaskRelease. When the answer is OK the task becomes current.
func (c *Coordinator) CheckHolding(ctx context.Context, task Task) (*Holding, error) {
	user, err := c.currentUser()
	if err != nil {
		return nil, err
	}
	if task != TaskClaim && task != TaskRelease {
		return nil, fmt.Errorf("%w: %s: task %q", ErrInvalidRequest, protocol.KindCheckUserPallet, task)
	}

	res, err := c.exchange(ctx, protocol.KindCheckUserPallet, &protocol.CheckUserPallet{UserID: user, Task: string(task)})
	if err != nil {
		return nil, err
	}
	h := &Holding{OK: res.Status, Msg: res.Msg}
	data, err := decodeData[protocol.Holding](protocol.KindCheckUserPallet, nonEmpty(res.Data))
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, &ReplyError{Kind: protocol.KindCheckUserPallet, Msg: res.Msg}
	}
	h.HasNone, h.PalletID = data.HasNone, data.PalletID

	if h.OK {
		c.setTask(task)
	}
	return h, nil
}

// Claim takes palletID for the current user.
func (c *Coordinator) Claim(ctx context.Context, palletID string) (*protocol.Pallet, error) {
	user, err := c.currentUser()
	if err != nil {
		return nil, err
	}
	return c.palletCall(ctx, TaskClaim, protocol.KindTakeAway, &protocol.TakeAway{PalletID: palletID, UserID: user})
}

// CreatePallet registers a new pallet. A missing position falls back to the
// last reported one.
func (c *Coordinator) CreatePallet(ctx context.Context, req protocol.AddPallet) (*protocol.Pallet, error) {
	if req.Position == nil {
		req.Position = c.State().LastPosition
	}
	return c.palletCall(ctx, TaskCreate, protocol.KindAddPallet, &req)
}

// AmendPallet updates an existing pallet.
func (c *Coordinator) AmendPallet(ctx context.Context, req protocol.UpdatePallet) (*protocol.Pallet, error) {
	return c.palletCall(ctx, TaskUpdate, protocol.KindUpdatePallet, &req)
}

// Release puts the current user's pallet down at the last reported position.
// The returned pallet is nil when the server only cleared a stale reference.
func (c *Coordinator) Release(ctx context.Context) (*protocol.Pallet, error) {
	user, err := c.currentUser()
	if err != nil {
		return nil, err
	}
	st := c.State()
	if st.LastPosition == nil {
		return nil, ErrNoPosition
	}
	empty := ""
	p, err := c.palletCall(ctx, TaskRelease, protocol.KindUpdateUser, &protocol.UpdateUser{
		UserID:   user,
		PalletID: &empty,
		Position: st.LastPosition,
	})
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.state.LastPallet = nil
	c.mu.Unlock()
	return p, nil
}

// FindSelections lists the selectable contents (or categories when
// contents is false). The first element is the list caption.
func (c *Coordinator) FindSelections(ctx context.Context, contents bool) ([]string, error) {
	data, err := c.call(ctx, protocol.KindFindSelections, &protocol.FindSelections{Content: contents})
	if err != nil {
		return nil, err
	}
	values, err := decodeData[[]string](protocol.KindFindSelections, data)
	if err != nil || values == nil {
		return nil, err
	}
	return *values, nil
}

// FindAvailable lists available pallets matching thing on target ("type"
// or "content").
func (c *Coordinator) FindAvailable(ctx context.Context, target, thing string) ([]protocol.Feature, error) {
	data, err := c.call(ctx, protocol.KindFindAvailablePallet, &protocol.FindAvailablePallet{Target: target, Thing: thing})
	if err != nil {
		return nil, err
	}
	features, err := decodeData[[]protocol.Feature](protocol.KindFindAvailablePallet, data)
	if err != nil || features == nil {
		return nil, err
	}
	return *features, nil
}

func (c *Coordinator) FindAll(ctx context.Context) ([]protocol.Pallet, error) {
	data, err := c.call(ctx, protocol.KindFindAllPallet, &protocol.FindAllPallet{})
	if err != nil {
		return nil, err
	}
	pallets, err := decodeData[[]protocol.Pallet](protocol.KindFindAllPallet, data)
	if err != nil || pallets == nil {
		return nil, err
	}
	return *pallets, nil
}

// FindHeld fetches the pallet the current user holds and remembers it.
func (c *Coordinator) FindHeld(ctx context.Context) (*protocol.Pallet, error) {
	user, err := c.currentUser()
	if err != nil {
		return nil, err
	}
	data, err := c.call(ctx, protocol.KindFindOnePallet, &protocol.FindOnePallet{UserID: user})
	if err != nil {
		return nil, err
	}
	p, err := decodeData[protocol.Pallet](protocol.KindFindOnePallet, data)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.state.LastPallet = p
	c.mu.Unlock()
	return p, nil
}

// SetPosition records the device's current position. It is local only.
func (c *Coordinator) SetPosition(pos protocol.Position) {
	c.mu.Lock()
	c.state.LastPosition = &pos
	c.mu.Unlock()
}

// palletCall runs a mutating request under task. The task is current while
// the request is in flight and cleared once the reply arrives, successful
// or not.
func (c *Coordinator) palletCall(ctx context.Context, task Task, kind string, req any) (*protocol.Pallet, error) {
	c.setTask(task)
	data, err := c.call(ctx, kind, req)
	if err != nil {
		c.setTask(TaskNone)
		return nil, err
	}
	p, err := decodeData[protocol.Pallet](kind, data)
	if err != nil {
		c.setTask(TaskNone)
		return nil, err
	}

	c.mu.Lock()
	c.state.CurrentTask = TaskNone
	if p != nil {
		c.state.LastPallet = p
	}
	c.mu.Unlock()
	return p, nil
}

func (c *Coordinator) currentUser() (string, error) {
	select {
	case <-c.done:
		return "", ErrDisconnected
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.CurrentUser == "" {
		return "", ErrNotAuthenticated
	}
	return c.state.CurrentUser, nil
}

func (c *Coordinator) setTask(t Task) {
	c.mu.Lock()
	c.state.CurrentTask = t
	c.mu.Unlock()
}

func nonEmpty(data []byte) []byte {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	return data
}
