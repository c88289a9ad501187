package domain

import "strings"

// Role enumerates the actor kinds allowed to drive the order lifecycle.
type Role string

const (
	RoleBuyer   Role = "buyer"
	RoleSeller  Role = "seller"
	RoleShipper Role = "shipper"
	RoleAdmin   Role = "admin"
)

// ParseRole normalises a role claim. Unknown values map to buyer.
func ParseRole(raw string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleSeller:
		return RoleSeller
	case RoleShipper:
		return RoleShipper
	case RoleAdmin:
		return RoleAdmin
	default:
		return RoleBuyer
	}
}

// Actor is the authenticated caller passed explicitly into every lifecycle operation.
type Actor struct {
	ID    string
	Role  Role
	Email string
	Name  string
}

// Is reports whether the actor carries role.
func (a Actor) Is(role Role) bool {
	return strings.TrimSpace(a.ID) != "" && a.Role == role
}
