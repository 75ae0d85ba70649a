package domain

type Role string

const (
	RoleUser   Role = "user"
	RoleVendor Role = "vendor"
	RoleAdmin  Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleVendor, RoleAdmin:
		return true
	}
	return false
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	Email string `json:"email"`
	Role  Role   `json:"role"`
}
