package domain

import (
	"fmt"
	"strings"
)

// Role is a capability tag. Holders gain a role only through an explicit grant.
type Role string

// Role constants.
const (
	RoleAdmin     Role = "ADMIN"
	RoleBridge    Role = "BRIDGE"
	RoleMinter    Role = "MINTER"
	RoleBurner    Role = "BURNER"
	RoleRelayer   Role = "RELAYER"
	RoleOperator  Role = "OPERATOR"
	RoleValidator Role = "VALIDATOR"
)

// AllRoles lists every role in declaration order.
var AllRoles = []Role{
	RoleAdmin,
	RoleBridge,
	RoleMinter,
	RoleBurner,
	RoleRelayer,
	RoleOperator,
	RoleValidator,
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	for _, known := range AllRoles {
		if r == known {
			return true
		}
	}
	return false
}

// ParseRole parses a role name case-insensitively.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("%w: unknown role %q", ErrInvalidInput, s)
	}
	return r, nil
}
