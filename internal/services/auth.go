package services

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/aciencia/apiserver/internal/auth"
	"github.com/aciencia/apiserver/internal/store"
	"github.com/aciencia/apiserver/types"
)

// AuthService exchanges user credentials for access tokens.
type AuthService struct {
	users  UserRepository
	tokens *auth.TokenService

	dummyOnce sync.Once
	dummyHash string
}

func NewAuthService(users UserRepository, tokens *auth.TokenService) *AuthService {
	return &AuthService{users: users, tokens: tokens}
}

// IssueToken checks the credentials and signs a token carrying the granted
// scopes. Unknown users, wrong passwords and inactive accounts all fail with
// auth.ErrInvalidGrant.
func (s *AuthService) IssueToken(ctx context.Context, username, password, scope string) (auth.Token, error) {
	user, err := s.users.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return auth.Token{}, err
		}
		// Spend the same bcrypt time as for a real account.
		_, _ = auth.CheckPassword(s.dummy(), password)
		return auth.Token{}, auth.ErrInvalidGrant
	}

	ok, err := auth.CheckPassword(user.PasswordHash, password)
	if err != nil || !ok || user.Role == types.RoleInactive {
		return auth.Token{}, auth.ErrInvalidGrant
	}

	scopes, err := auth.GrantScopes(user.Role, scope)
	if err != nil {
		return auth.Token{}, err
	}
	return s.tokens.Issue(user, scopes)
}

func (s *AuthService) dummy() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = auth.HashPassword("not-a-real-password")
	})
	return s.dummyHash
}
