package ws

import (
	"context"
	"fmt"

	"github.com/palletrack/pallet-system/internal/core/domain"
	"github.com/palletrack/pallet-system/internal/core/ports"
	"github.com/palletrack/pallet-system/pkg/protocol"
)

// Services are the core operations exposed over the session channel.
type Services struct {
	Users       ports.UserService
	Pallets     ports.PalletService
	Assignments ports.AssignmentService
}

// Register installs a handler for every request kind.
func Register(r *Router, svc Services) {
	h := &handlers{svc: svc}

	Handle(r, protocol.KindAddUser, protocol.ReplyKind(protocol.KindAddUser), h.addUser)
	Handle(r, protocol.KindCheckUser, protocol.ReplyKind(protocol.KindCheckUser), h.checkUser)
	Handle(r, protocol.KindCheckUserPallet, protocol.ReplyKind(protocol.KindCheckUserPallet), h.checkUserPallet)
	Handle(r, protocol.KindFindSelections, protocol.ReplyKind(protocol.KindFindSelections), h.findSelections)
	Handle(r, protocol.KindFindAvailablePallet, protocol.ReplyKind(protocol.KindFindAvailablePallet), h.findAvailablePallet)
	Handle(r, protocol.KindFindAllPallet, protocol.ReplyKind(protocol.KindFindAllPallet), h.findAllPallet)
	Handle(r, protocol.KindFindOnePallet, protocol.ReplyKind(protocol.KindFindOnePallet), h.findOnePallet)
	Handle(r, protocol.KindTakeAway, protocol.ReplyKind(protocol.KindTakeAway), h.takeAway)
	Handle(r, protocol.KindAddPallet, protocol.ReplyKind(protocol.KindAddPallet), h.addPallet)
	Handle(r, protocol.KindUpdatePallet, protocol.ReplyKind(protocol.KindUpdatePallet), h.updatePallet)
	Handle(r, protocol.KindUpdateUser, protocol.ReplyKind(protocol.KindUpdateUser), h.updateUser)
}

type handlers struct {
	svc Services
}

func (h *handlers) addUser(ctx context.Context, _ *Session, req *protocol.AddUser) (protocol.Result, error) {
	u, err := h.svc.Users.Register(ctx, req.UserID, req.Pwd, (*domain.Position)(req.LastPosition))
	if err != nil {
		return protocol.Result{}, err
	}
	return ok("User added successfully", userView(u)), nil
}

func (h *handlers) checkUser(ctx context.Context, s *Session, req *protocol.CheckUser) (protocol.Result, error) {
	identity, err := h.svc.Users.Authenticate(ctx, req.UserID, req.Pwd)
	if err != nil {
		return protocol.Result{}, err
	}
	s.SetIdentity(identity)
	return ok(identity, protocol.Identity{Identity: identity}), nil
}

func (h *handlers) checkUserPallet(ctx context.Context, _ *Session, req *protocol.CheckUserPallet) (protocol.Result, error) {
	task, valid := ports.ParseTask(req.Task)
	if !valid {
		return protocol.Result{}, fmt.Errorf("%w: unknown task %q", domain.ErrInvalidInput, req.Task)
	}
	st, err := h.svc.Assignments.HoldingStatus(ctx, req.UserID, task)
	if err != nil {
		return protocol.Result{}, err
	}
	return protocol.Result{
		Status: st.OK,
		Msg:    st.Msg,
		Data:   protocol.Holding{HasNone: st.HasNone, PalletID: st.PalletID},
	}, nil
}

func (h *handlers) findSelections(ctx context.Context, _ *Session, req *protocol.FindSelections) (protocol.Result, error) {
	values, err := h.svc.Pallets.ListSelections(ctx, req.Content)
	if err != nil {
		return protocol.Result{}, err
	}
	return ok("", values), nil
}

func (h *handlers) findAvailablePallet(ctx context.Context, _ *Session, req *protocol.FindAvailablePallet) (protocol.Result, error) {
	pallets, err := h.svc.Pallets.QueryAvailable(ctx, ports.MatchKind(req.Target), req.Thing)
	if err != nil {
		return protocol.Result{}, err
	}
	features := make([]protocol.Feature, 0, len(pallets))
	for _, p := range pallets {
		features = append(features, protocol.NewFeature(palletView(p)))
	}
	return ok("", features), nil
}

func (h *handlers) findAllPallet(ctx context.Context, _ *Session, _ *protocol.FindAllPallet) (protocol.Result, error) {
	pallets, err := h.svc.Pallets.QueryAll(ctx)
	if err != nil {
		return protocol.Result{}, err
	}
	return ok("", palletViews(pallets)), nil
}

func (h *handlers) findOnePallet(ctx context.Context, _ *Session, req *protocol.FindOnePallet) (protocol.Result, error) {
	p, err := h.svc.Assignments.HeldPallet(ctx, req.UserID)
	if err != nil {
		return protocol.Result{}, err
	}
	return ok("", palletView(p)), nil
}

func (h *handlers) takeAway(ctx context.Context, _ *Session, req *protocol.TakeAway) (protocol.Result, error) {
	p, err := h.svc.Assignments.Claim(ctx, req.PalletID, req.UserID)
	if err != nil {
		return protocol.Result{}, err
	}
	return ok("Pallet taken away", palletView(p)), nil
}

func (h *handlers) addPallet(ctx context.Context, _ *Session, req *protocol.AddPallet) (protocol.Result, error) {
	p, err := h.svc.Pallets.Create(ctx, ports.CreatePalletInput{
		Status:   domain.PalletStatus(req.Status),
		Category: req.Type,
		Contents: req.Content,
		Position: domain.Position(*req.Position),
		Holder:   req.FinalUser,
	})
	if err != nil {
		return protocol.Result{}, err
	}
	return ok("Pallet added successfully", palletView(p)), nil
}

func (h *handlers) updatePallet(ctx context.Context, _ *Session, req *protocol.UpdatePallet) (protocol.Result, error) {
	in := ports.AmendPalletInput{
		ID:       req.ID,
		Category: req.Type,
		Contents: req.Content,
		Position: (*domain.Position)(req.Position),
		Holder:   req.FinalUser,
	}
	if req.Status != nil {
		st := domain.PalletStatus(*req.Status)
		in.Status = &st
	}
	p, err := h.svc.Pallets.Amend(ctx, in)
	if err != nil {
		return protocol.Result{}, err
	}
	return ok("Pallet updated", palletView(p)), nil
}

// updateUser is the release command: the client clears the user's palletID.
func (h *handlers) updateUser(ctx context.Context, _ *Session, req *protocol.UpdateUser) (protocol.Result, error) {
	if *req.PalletID != "" {
		return protocol.Result{}, fmt.Errorf("%w: palletID must be empty, pallets are assigned with takeAway", domain.ErrInvalidInput)
	}
	p, err := h.svc.Assignments.Release(ctx, req.UserID, (*domain.Position)(req.Position))
	if err != nil {
		return protocol.Result{}, err
	}
	if p == nil {
		return ok("Pallet released", nil), nil
	}
	return ok("Pallet released", palletView(p)), nil
}

func ok(msg string, data any) protocol.Result {
	return protocol.Result{Status: true, Msg: msg, Data: data}
}

func palletView(p *domain.Pallet) protocol.Pallet {
	return protocol.Pallet{
		ID:        p.ID,
		Type:      p.Category,
		Content:   p.Contents,
		Status:    string(p.Status),
		Position:  protocol.Position(p.Position),
		FinalUser: p.Holder,
	}
}

func palletViews(ps []*domain.Pallet) []protocol.Pallet {
	out := make([]protocol.Pallet, 0, len(ps))
	for _, p := range ps {
		out = append(out, palletView(p))
	}
	return out
}

func userView(u *domain.User) protocol.User {
	return protocol.User{
		UserID:       u.UserID,
		Status:       string(u.Status),
		LastPosition: protocol.Position(u.LastPosition),
		PalletID:     u.PalletID,
	}
}
