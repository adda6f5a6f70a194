package model

import (
	"errors"
	"strings"
)

// Role is the lane a member intends to play in a session.
type Role int

const (
	RoleUnassigned Role = iota // Zero value, never stored by AssignRole
	RoleTop
	RoleJungle
	RoleMid
	RoleADC
	RoleSupport
	RoleFill
)

var ErrInvalidRole = errors.New("invalid role: must be top, jungle, mid, adc, support or fill")

// Roles lists the assignable roles in display order.
var Roles = []Role{RoleTop, RoleJungle, RoleMid, RoleADC, RoleSupport, RoleFill}

func (r Role) String() string {
	switch r {
	case RoleUnassigned:
		return "unassigned"
	case RoleTop:
		return "top"
	case RoleJungle:
		return "jungle"
	case RoleMid:
		return "mid"
	case RoleADC:
		return "adc"
	case RoleSupport:
		return "support"
	case RoleFill:
		return "fill"
	default:
		return "unknown"
	}
}

// Label returns the short name shown next to a member.
func (r Role) Label() string {
	switch r {
	case RoleTop:
		return "TOP"
	case RoleJungle:
		return "JG"
	case RoleMid:
		return "MID"
	case RoleADC:
		return "ADC"
	case RoleSupport:
		return "SUP"
	case RoleFill:
		return "Autofill"
	default:
		return "-"
	}
}

// ParseRole converts a string to a Role. "bot" is accepted as an alias for adc.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "top":
		return RoleTop, nil
	case "jungle", "jg":
		return RoleJungle, nil
	case "mid":
		return RoleMid, nil
	case "adc", "bot":
		return RoleADC, nil
	case "support", "sup":
		return RoleSupport, nil
	case "fill", "autofill":
		return RoleFill, nil
	case "", "unassigned":
		return RoleUnassigned, nil
	default:
		return RoleUnassigned, ErrInvalidRole
	}
}

// Valid returns true if the role can be assigned to a member.
func (r Role) Valid() bool {
	return r >= RoleTop && r <= RoleFill
}

// MarshalText encodes the role by name so stored documents stay readable.
func (r Role) MarshalText() ([]byte, error) {
	if r != RoleUnassigned && !r.Valid() {
		return nil, ErrInvalidRole
	}
	return []byte(r.String()), nil
}

// UnmarshalText decodes a role name.
func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
