// Package protocol defines the messages exchanged over the pallet session
// channel. Every frame is a JSON Envelope; the payload shape is fixed per
// Kind. Field names are the ones deployed clients already send.
package protocol

import "encoding/json"

// Request kinds.
const (
	KindAddUser             = "addUser"
	KindCheckUser           = "checkUser"
	KindCheckUserPallet     = "checkUserPallet"
	KindFindSelections      = "findSelections"
	KindFindAvailablePallet = "findAvailablePallet"
	KindFindAllPallet       = "findAllPallet"
	KindFindOnePallet       = "findOnePallet"
	KindTakeAway            = "takeAway"
	KindAddPallet           = "addPallet"
	KindUpdatePallet        = "updatePallet"
	KindUpdateUser          = "updateUser"
)

// Reply kinds that differ from their request kind.
const (
	KindFindPallet = "findPallet"
	KindError      = "error"
)

// ReplyKind returns the reply kind emitted for a request kind. Creation
// commands are answered under their own kind, never a shared "successful".
func ReplyKind(request string) string {
	if request == KindFindAllPallet {
		return KindFindPallet
	}
	return request
}

// Envelope is one framed message.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope marshals payload into an envelope of the given kind.
func NewEnvelope(kind string, payload any) (Envelope, error) {
	if payload == nil {
		return Envelope{Type: kind}, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: kind, Payload: raw}, nil
}

// Position is a [longitude, latitude] pair.
type Position [2]float64

// ── Requests ─────────────────────────────────────────────────────────────────

type AddUser struct {
	UserID       string    `json:"userID" validate:"required"`
	Pwd          string    `json:"pwd" validate:"required"`
	LastPosition *Position `json:"last_position,omitempty"`
}

type CheckUser struct {
	UserID string `json:"userID" validate:"required"`
	Pwd    string `json:"pwd" validate:"required"`
}

// CheckUserPallet asks whether UserID may proceed with Task.
type CheckUserPallet struct {
	UserID string `json:"userID" validate:"required"`
	Task   string `json:"task" validate:"required,oneof=claim find takeAway release putDown"`
}

type FindSelections struct {
	Content bool `json:"content"`
}

// FindAvailablePallet matches available pallets by Target attribute. A
// "type" target only matches empty pallets.
type FindAvailablePallet struct {
	Target string `json:"target" validate:"required,oneof=type content"`
	Thing  string `json:"thing" validate:"required"`
}

type FindAllPallet struct{}

type FindOnePallet struct {
	UserID string `json:"userID" validate:"required"`
}

type TakeAway struct {
	PalletID string `json:"palletID" validate:"required"`
	UserID   string `json:"userID" validate:"required"`
}

type AddPallet struct {
	Status    string    `json:"status" validate:"omitempty,oneof=static take-away broken"`
	Type      string    `json:"type"`
	Content   string    `json:"content"`
	Position  *Position `json:"position" validate:"required"`
	FinalUser string    `json:"final_user"`
}

// UpdatePallet amends the pallet with key ID. Nil fields are left unchanged.
type UpdatePallet struct {
	ID        string    `json:"_id" validate:"required"`
	Status    *string   `json:"status,omitempty" validate:"omitempty,oneof=static take-away broken"`
	Type      *string   `json:"type,omitempty"`
	Content   *string   `json:"content,omitempty"`
	Position  *Position `json:"position,omitempty"`
	FinalUser *string   `json:"final_user,omitempty"`
}

// UpdateUser releases the user's pallet. PalletID must be present and empty.
type UpdateUser struct {
	UserID   string    `json:"userID" validate:"required"`
	PalletID *string   `json:"palletID" validate:"required"`
	Position *Position `json:"position,omitempty"`
}

// ── Replies ──────────────────────────────────────────────────────────────────

// Result is the payload of every non-error reply.
type Result struct {
	Status bool   `json:"status"`
	Msg    string `json:"msg"`
	Data   any    `json:"data,omitempty"`
}

// RawResult is Result with Data left undecoded.
type RawResult struct {
	Status bool            `json:"status"`
	Msg    string          `json:"msg"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// ErrorReply is the payload of an "error" envelope, sent for frames that
// could not be decoded or validated.
type ErrorReply struct {
	Status  bool   `json:"status"`
	Msg     string `json:"msg"`
	Request string `json:"request"`
}

type Identity struct {
	Identity string `json:"identity"`
}

type Holding struct {
	HasNone  bool   `json:"hasNone"`
	PalletID string `json:"palletID,omitempty"`
}

type Pallet struct {
	ID        string   `json:"_id"`
	Type      string   `json:"type"`
	Content   string   `json:"content"`
	Status    string   `json:"status"`
	Position  Position `json:"position"`
	FinalUser string   `json:"final_user"`
}

type User struct {
	UserID       string   `json:"userID"`
	Status       string   `json:"status"`
	LastPosition Position `json:"last_position"`
	PalletID     string   `json:"palletID"`
}

// Feature is a GeoJSON point feature describing an available pallet.
type Feature struct {
	Type       string            `json:"type"`
	Geometry   Geometry          `json:"geometry"`
	Properties FeatureProperties `json:"properties"`
}

type Geometry struct {
	Type        string   `json:"type"`
	Coordinates Position `json:"coordinates"`
}

type FeatureProperties struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Type    string `json:"type"`
	Content string `json:"content"`
}

// NewFeature builds the GeoJSON feature for p.
func NewFeature(p Pallet) Feature {
	return Feature{
		Type:     "Feature",
		Geometry: Geometry{Type: "Point", Coordinates: p.Position},
		Properties: FeatureProperties{
			ID:      p.ID,
			Status:  p.Status,
			Type:    p.Type,
			Content: p.Content,
		},
	}
}
