package domain

// Identity is the owner of a cart: an anonymous session token or an authenticated user id.
type Identity struct {
	ID            string
	Authenticated bool
}

func Anonymous(token string) Identity {
	return Identity{ID: token}
}

func User(userID string) Identity {
	return Identity{ID: userID, Authenticated: true}
}

func (i Identity) IsZero() bool {
	return i.ID == ""
}

func (i Identity) String() string {
	if i.Authenticated {
		return "user:" + i.ID
	}
	return "guest:" + i.ID
}

type Role string

const (
	RoleCustomer Role = "customer"
	RoleVendor   Role = "vendor"
	RoleAdmin    Role = "admin"
)

// Actor is whoever asks for an order status change.
type Actor struct {
	ID   string
	Role Role
}

// Privileged reports whether the actor may advance orders.
func (a Actor) Privileged() bool {
	return a.Role == RoleAdmin || a.Role == RoleVendor
}
