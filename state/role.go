package state

import (
	"errors"
	"fmt"
)

// ErrUnknownRole is returned for a role name outside alice/eve/bob/admin.
var ErrUnknownRole = errors.New("unknown role")

// Role identifies a participant. Admin is an observer and never occupies a slot.
type Role uint8

const (
	RoleAlice Role = iota
	RoleEve
	RoleBob
	RoleAdmin
)

var roleNames = [...]string{"alice", "eve", "bob", "admin"}

// PlayerRoles lists the roles that own a slot, in protocol order.
var PlayerRoles = [...]Role{RoleAlice, RoleEve, RoleBob}

// ParseRole converts a wire role name.
func ParseRole(name string) (Role, error) {
	for i, n := range roleNames {
		if n == name {
			return Role(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownRole, name)
}

func (r Role) String() string {
	if int(r) < len(roleNames) {
		return roleNames[r]
	}
	return "unknown"
}

// IsPlayer reports whether r owns a slot in the registry.
func (r Role) IsPlayer() bool {
	return r < RoleAdmin
}

func (r Role) MarshalText() ([]byte, error) {
	if int(r) >= len(roleNames) {
		return nil, ErrUnknownRole
	}
	return []byte(roleNames[r]), nil
}

func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
