package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/aciencia/apiserver/internal/auth"
	"github.com/aciencia/apiserver/types"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	List(ctx context.Context) ([]types.User, error)
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByUsername(ctx context.Context, username string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	Update(ctx context.Context, id int, mutate func(*types.User) error) (types.User, error)
	Delete(ctx context.Context, id int) error
}

// UserInput carries the writable user fields. Nil fields are left untouched
// on update.
type UserInput struct {
	Username *string `json:"username"`
	Email    *string `json:"email"`
	Password *string `json:"password"`
	Role     *string `json:"role"`
}

// UserService encapsulates user use-cases.
type UserService struct {
	repo UserRepository
}

func NewUserService(repo UserRepository) *UserService {
	return &UserService{repo: repo}
}

func (s *UserService) List(ctx context.Context) ([]types.User, error) {
	return s.repo.List(ctx)
}

func (s *UserService) GetByID(ctx context.Context, id int) (types.User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *UserService) GetByUsername(ctx context.Context, username string) (types.User, error) {
	return s.repo.GetByUsername(ctx, username)
}

// Register creates a user. Accounts start INACTIVE; a caller holding WRITER
// or above may pick another role, up to its own.
func (s *UserService) Register(ctx context.Context, in UserInput, callerRole types.Role) (types.User, error) {
	username, email, password := trimmed(in.Username), trimmed(in.Email), ""
	if in.Password != nil {
		password = *in.Password
	}
	if username == "" || email == "" || password == "" {
		return types.User{}, fmt.Errorf("%w: username, email and password are required", ErrValidation)
	}
	if err := checkUserFields(username, email); err != nil {
		return types.User{}, err
	}

	role := types.RoleInactive
	if in.Role != nil && callerRole.AtLeast(types.RoleWriter) {
		requested, err := grantableRole(*in.Role, callerRole)
		if err != nil {
			return types.User{}, err
		}
		role = requested
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return types.User{}, err
	}
	return s.repo.Create(ctx, types.User{
		Username:     username,
		Email:        email,
		Role:         role,
		PasswordHash: hash,
	})
}

// Update changes the fields set in in once check accepts the current user.
// Only WRITER and above may change roles, and never above their own.
func (s *UserService) Update(ctx context.Context, id int, in UserInput, callerRole types.Role, check Precondition[types.User]) (types.User, error) {
	var hash string
	if in.Password != nil && *in.Password != "" {
		var err error
		if hash, err = auth.HashPassword(*in.Password); err != nil {
			return types.User{}, err
		}
	}

	return s.repo.Update(ctx, id, func(user *types.User) error {
		if check != nil {
			if err := check(*user); err != nil {
				return err
			}
		}

		if in.Username != nil {
			if user.Username = trimmed(in.Username); user.Username == "" {
				return fmt.Errorf("%w: username must not be empty", ErrValidation)
			}
		}
		if in.Email != nil {
			if user.Email = trimmed(in.Email); user.Email == "" {
				return fmt.Errorf("%w: email must not be empty", ErrValidation)
			}
		}
		if err := checkUserFields(user.Username, user.Email); err != nil {
			return err
		}
		if hash != "" {
			user.PasswordHash = hash
		}
		if in.Role != nil {
			role, err := grantableRole(*in.Role, callerRole)
			if err != nil {
				return err
			}
			if role != user.Role && !callerRole.AtLeast(types.RoleWriter) {
				return fmt.Errorf("%w: changing roles requires writer", auth.ErrForbidden)
			}
			user.Role = role
		}
		return nil
	})
}

func (s *UserService) Delete(ctx context.Context, id int) error {
	return s.repo.Delete(ctx, id)
}

func grantableRole(value string, callerRole types.Role) (types.Role, error) {
	role, err := types.ParseRole(value)
	if err != nil {
		return types.RoleInactive, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	if role > callerRole {
		return types.RoleInactive, fmt.Errorf("%w: cannot grant role %s", auth.ErrForbidden, role)
	}
	return role, nil
}

func checkUserFields(username, email string) error {
	if err := checkLength("username", username, maxUsernameLength); err != nil {
		return err
	}
	return checkLength("email", email, maxEmailLength)
}

func trimmed(value *string) string {
	if value == nil {
		return ""
	}
	return strings.TrimSpace(*value)
}
