package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Role is the authorization tier of a user. Roles are ordered: a higher role
// includes every capability of the lower ones.
type Role int

const (
	RoleInactive Role = iota
	RoleReader
	RoleWriter
	RoleAdmin
)

var roleNames = [...]string{"INACTIVE", "READER", "WRITER", "ADMIN"}

// Roles lists every role from lowest to highest.
var Roles = []Role{RoleInactive, RoleReader, RoleWriter, RoleAdmin}

func (r Role) String() string {
	if r < RoleInactive || r > RoleAdmin {
		return fmt.Sprintf("Role(%d)", int(r))
	}
	return roleNames[r]
}

// Scope is the token scope name granted by the role.
func (r Role) Scope() string {
	return strings.ToLower(r.String())
}

// AtLeast reports whether r ranks at or above other.
func (r Role) AtLeast(other Role) bool {
	return r >= other
}

// ParseRole accepts a role name in any letter case.
func ParseRole(value string) (Role, error) {
	for i, name := range roleNames {
		if strings.EqualFold(strings.TrimSpace(value), name) {
			return Role(i), nil
		}
	}
	return RoleInactive, fmt.Errorf("unknown role %q", value)
}

func (r Role) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

func (r *Role) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseRole(raw)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// User represents an account in the system.
// It contains identity, role, and audit metadata.
type User struct {
	// ID is the unique identifier of the user.
	ID int `db:"id"`

	// Username is the unique login name chosen by the user.
	Username string `db:"username"`

	// Email is the user's unique email address.
	Email string `db:"email"`

	// Role indicates the user's authorization level. New accounts start
	// INACTIVE unless a privileged user created them with another role.
	Role Role `db:"role"`

	// PasswordHash stores the salted bcrypt hash of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `db:"password_hash"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `db:"updated_at"`
}

// Version identifies the stored revision of the user. It changes on every
// write, including password changes the representation does not show.
func (u User) Version() string {
	return u.UpdatedAt.UTC().Format(time.RFC3339Nano)
}

// MarshalJSON renders the user under the "user" root key. The password hash
// is never part of the representation.
func (u User) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"user": map[string]any{
			"id":       u.ID,
			"username": u.Username,
			"email":    u.Email,
			"role":     u.Role,
		},
	})
}
