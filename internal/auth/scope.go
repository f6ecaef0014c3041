package auth

import (
	"strings"

	"github.com/aciencia/apiserver/types"
)

// RoleScopes returns the scopes a role may hold: the name of every active
// role up to and including role. INACTIVE holds none.
func RoleScopes(role types.Role) []string {
	var scopes []string
	for _, r := range types.Roles {
		if r == types.RoleInactive || r > role {
			continue
		}
		scopes = append(scopes, r.Scope())
	}
	return scopes
}

// ParseScopes splits a requested scope string on whitespace and '+'.
func ParseScopes(raw string) []string {
	return strings.FieldsFunc(raw, func(r rune) bool {
		return r == '+' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
}

// GrantScopes narrows the role-derived scopes to the requested ones. An
// empty request grants every role-derived scope.
func GrantScopes(role types.Role, requested string) ([]string, error) {
	available := RoleScopes(role)

	tokens := ParseScopes(requested)
	if len(tokens) == 0 {
		// A scope string made only of separators (e.g. "+") falls back to the
		// full set, same as no scope at all. This is permissive and a
		// candidate for rejecting with ErrInvalidScope instead.
		return available, nil
	}

	wanted := make(map[string]bool, len(tokens))
	for _, token := range tokens {
		wanted[strings.ToLower(token)] = true
	}

	var granted []string
	for _, scope := range available {
		if wanted[scope] {
			granted = append(granted, scope)
		}
	}
	if len(granted) == 0 {
		return nil, ErrInvalidScope
	}
	return granted, nil
}

// RoleFromScopes returns the highest role named by scopes, INACTIVE when
// none is recognised.
func RoleFromScopes(scopes []string) types.Role {
	role := types.RoleInactive
	for _, scope := range scopes {
		parsed, err := types.ParseRole(scope)
		if err != nil {
			continue
		}
		if parsed > role {
			role = parsed
		}
	}
	return role
}
