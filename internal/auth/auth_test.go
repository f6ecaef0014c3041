package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aciencia/apiserver/config"
	"github.com/aciencia/apiserver/types"
)

func newTokenService(t *testing.T, cfg config.JWTConfig) *TokenService {
	t.Helper()
	if cfg.Secret == "" {
		cfg.Secret = "test-secret"
	}
	s, err := NewTokenService(cfg)
	require.NoError(t, err)
	return s
}

func TestNewTokenServiceRequiresSecret(t *testing.T) {
	_, err := NewTokenService(config.JWTConfig{Secret: "   "})
	assert.Error(t, err)
}

func TestIssueThenValidate(t *testing.T) {
	s := newTokenService(t, config.JWTConfig{Issuer: "aciencia", Audience: "catalog"})
	user := types.User{ID: 7, Username: "bob", Role: types.RoleWriter}

	token, err := s.Issue(user, RoleScopes(user.Role))
	require.NoError(t, err)
	assert.Equal(t, defaultTokenTTL, token.ExpiresIn)

	claims, err := s.Validate(token.Value)
	require.NoError(t, err)
	assert.Equal(t, 7, claims.UserID())
	assert.Equal(t, "bob", claims.Username)
	assert.Equal(t, []string{"reader", "writer"}, claims.Scopes)
	assert.Equal(t, types.RoleWriter, claims.Role())
	assert.NotEmpty(t, claims.ID)
}

func TestValidateExpired(t *testing.T) {
	s := newTokenService(t, config.JWTConfig{TTL: time.Hour})
	issuedAt := time.Now().Add(-2 * time.Hour)
	s.now = func() time.Time { return issuedAt }

	token, err := s.Issue(types.User{ID: 1, Role: types.RoleReader}, []string{"reader"})
	require.NoError(t, err)

	s.now = time.Now
	_, err = s.Validate(token.Value)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestValidateWrongSecret(t *testing.T) {
	issuer := newTokenService(t, config.JWTConfig{Secret: "one"})
	verifier := newTokenService(t, config.JWTConfig{Secret: "two"})

	token, err := issuer.Issue(types.User{ID: 1, Role: types.RoleReader}, []string{"reader"})
	require.NoError(t, err)

	_, err = verifier.Validate(token.Value)
	assert.ErrorIs(t, err, ErrTokenSignature)
}

func TestValidateRejects(t *testing.T) {
	s := newTokenService(t, config.JWTConfig{Audience: "catalog"})
	other := newTokenService(t, config.JWTConfig{Audience: "elsewhere"})

	foreign, err := other.Issue(types.User{ID: 1}, nil)
	require.NoError(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{name: "garbage", token: "not-a-token"},
		{name: "wrong audience", token: foreign.Value},
		{name: "alg none", token: unsigned},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Validate(tt.token)
			assert.Error(t, err)
		})
	}
}

func TestGrantScopes(t *testing.T) {
	tests := []struct {
		name      string
		role      types.Role
		requested string
		want      []string
		wantErr   error
	}{
		{name: "default reader", role: types.RoleReader, want: []string{"reader"}},
		{name: "default admin", role: types.RoleAdmin, want: []string{"reader", "writer", "admin"}},
		{name: "narrowed", role: types.RoleAdmin, requested: "reader", want: []string{"reader"}},
		{name: "plus separated", role: types.RoleAdmin, requested: "reader+writer", want: []string{"reader", "writer"}},
		{name: "space separated, mixed case", role: types.RoleWriter, requested: "Writer reader", want: []string{"reader", "writer"}},
		{name: "separators only fall back", role: types.RoleWriter, requested: " + ", want: []string{"reader", "writer"}},
		{name: "above role", role: types.RoleReader, requested: "admin", wantErr: ErrInvalidScope},
		{name: "unknown dropped", role: types.RoleWriter, requested: "writer delete", want: []string{"writer"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := GrantScopes(tt.role, tt.requested)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRoleFromScopes(t *testing.T) {
	assert.Equal(t, types.RoleInactive, RoleFromScopes(nil))
	assert.Equal(t, types.RoleWriter, RoleFromScopes([]string{"reader", "writer", "bogus"}))
}

func TestRequirementAuthorize(t *testing.T) {
	reader := &Claims{Scopes: []string{"reader"}, RegisteredClaims: jwt.RegisteredClaims{Subject: "1"}}
	writer := &Claims{Scopes: []string{"reader", "writer"}, RegisteredClaims: jwt.RegisteredClaims{Subject: "2"}}

	tests := []struct {
		name   string
		req    Requirement
		claims *Claims
		target int
		want   error
	}{
		{name: "public anonymous", req: Public()},
		{name: "any anonymous", req: AuthenticatedAny(), want: ErrUnauthorized},
		{name: "any reader", req: AuthenticatedAny(), claims: reader},
		{name: "writer route reader", req: RoleAtLeast(types.RoleWriter), claims: reader, want: ErrForbidden},
		{name: "writer route writer", req: RoleAtLeast(types.RoleWriter), claims: writer},
		{name: "self", req: SelfOrAdmin(), claims: reader, target: 1},
		{name: "other user", req: SelfOrAdmin(), claims: reader, target: 2, want: ErrForbidden},
		{name: "other user concealed", req: SelfOrAdmin().Concealed(), claims: reader, target: 2, want: ErrConcealed},
		{name: "privileged other user", req: SelfOrAdmin().Concealed(), claims: writer, target: 1},
		{name: "concealed anonymous", req: SelfOrAdmin().Concealed(), target: 1, want: ErrUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Authorize(tt.claims, tt.target)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestPasswords(t *testing.T) {
	hash, err := HashPassword("secret1")
	require.NoError(t, err)
	assert.NotEqual(t, "secret1", hash)

	ok, err := CheckPassword(hash, "secret1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = CheckPassword(hash, "secret2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBearerToken(t *testing.T) {
	token, err := BearerToken("Bearer abc.def")
	require.NoError(t, err)
	assert.Equal(t, "abc.def", token)

	for _, header := range []string{"", "Basic abc", "Bearer", "Bearer   "} {
		_, err := BearerToken(header)
		assert.ErrorIs(t, err, ErrUnauthorized, header)
	}
}
