package domain

// UserStatus is set to active once the user authenticates.
type UserStatus string

const (
	UserActive    UserStatus = "active"
	UserNotActive UserStatus = "not-active"
)

// User models an operator who claims and releases pallets.
// A user holds at most one pallet at a time.
type User struct {
	UserID       string     `json:"userID" bson:"userID"`
	Credential   string     `json:"-" bson:"pwd"`
	Status       UserStatus `json:"status" bson:"status"`
	LastPosition Position   `json:"last_position" bson:"last_position"`
	PalletID     string     `json:"palletID" bson:"palletID"`
	Version      int64      `json:"-" bson:"version"`
}

// Holds reports whether the user record references a pallet.
func (u *User) Holds() bool { return u.PalletID != "" }
