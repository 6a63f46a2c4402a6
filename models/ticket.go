package models

type Ticket struct {
	ID         string `json:"id"`
	OwnerID    string `json:"owner_id"`
	EventID    string `json:"event_id,omitempty"`
	SeatNumber string `json:"seat_number,omitempty"`
}

type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

type User struct {
	ID       string `json:"id"`
	Username string `json:"username,omitempty"`
	Role     Role   `json:"role,omitempty"`
}

// Identity is the authenticated caller handed to the marketplace by the
// transport layer.
type Identity struct {
	ID   string
	Role Role
}

func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}
