package auth

import "github.com/aciencia/apiserver/types"

type requirementKind int

const (
	kindPublic requirementKind = iota
	kindAuthenticated
	kindRoleAtLeast
	kindSelfOrAdmin
)

// Requirement is the capability a route demands from its caller.
type Requirement struct {
	kind requirementKind
	role types.Role

	// Conceal turns a denial into ErrConcealed so the route answers 404
	// instead of 403.
	Conceal bool
}

// Public lets every caller through, with or without a token.
func Public() Requirement {
	return Requirement{kind: kindPublic}
}

// AuthenticatedAny accepts any valid token.
func AuthenticatedAny() Requirement {
	return Requirement{kind: kindAuthenticated}
}

// RoleAtLeast demands an effective role of at least role.
func RoleAtLeast(role types.Role) Requirement {
	return Requirement{kind: kindRoleAtLeast, role: role}
}

// SelfOrAdmin accepts the user the route targets, and any WRITER or above.
func SelfOrAdmin() Requirement {
	return Requirement{kind: kindSelfOrAdmin, role: types.RoleWriter}
}

// Concealed returns a copy of r that hides denials behind ErrConcealed.
func (r Requirement) Concealed() Requirement {
	r.Conceal = true
	return r
}

// Authorize decides whether claims satisfy r. claims is nil for anonymous
// requests. targetUserID is only consulted by SelfOrAdmin.
func (r Requirement) Authorize(claims *Claims, targetUserID int) error {
	if r.kind == kindPublic {
		return nil
	}
	if claims == nil {
		return ErrUnauthorized
	}

	var allowed bool
	switch r.kind {
	case kindAuthenticated:
		allowed = true
	case kindRoleAtLeast:
		allowed = claims.Role().AtLeast(r.role)
	case kindSelfOrAdmin:
		allowed = claims.UserID() == targetUserID || claims.Role().AtLeast(r.role)
	}
	if allowed {
		return nil
	}
	if r.Conceal {
		return ErrConcealed
	}
	return ErrForbidden
}
