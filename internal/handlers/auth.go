package handlers

import (
	"context"
	"errors"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	"github.com/aciencia/apiserver/internal/auth"
	"github.com/aciencia/apiserver/internal/services"
	"github.com/aciencia/apiserver/types"
)

type contextKey string

const contextClaimsKey contextKey = "claims"

// AuthHandler serves the token endpoint.
type AuthHandler struct {
	authService *services.AuthService
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(authService *services.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// AuthRouter registers the token endpoint on the given router.
func AuthRouter(r chi.Router, authService *services.AuthService) {
	handler := NewAuthHandler(authService)

	r.Options("/access_token", options(http.MethodPost))
	r.Post("/access_token", handler.AccessToken)
}

// TokenRequest is the body of POST /access_token, as JSON or form fields.
type TokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Scope    string `json:"scope"`
}

// TokenResponse is the successful token payload.
type TokenResponse struct {
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	AccessToken string `json:"access_token"`
}

// OAuthError is the error payload of the token endpoint.
type OAuthError struct {
	Error       string `json:"error"`
	Description string `json:"error_description"`
}

// AccessToken exchanges credentials for a bearer token.
func (h *AuthHandler) AccessToken(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")

	req, err := parseTokenRequest(w, r)
	if err != nil || strings.TrimSpace(req.Username) == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, OAuthError{
			Error:       "invalid_request",
			Description: "username and password are required",
		})
		return
	}

	token, err := h.authService.IssueToken(r.Context(), req.Username, req.Password, req.Scope)
	switch {
	case err == nil:
	case errors.Is(err, auth.ErrInvalidGrant):
		writeJSON(w, http.StatusBadRequest, OAuthError{
			Error:       "invalid_grant",
			Description: "the provided credentials are invalid",
		})
		return
	case errors.Is(err, auth.ErrInvalidScope):
		writeJSON(w, http.StatusBadRequest, OAuthError{
			Error:       "invalid_scope",
			Description: "none of the requested scopes can be granted",
		})
		return
	default:
		hlog.FromRequest(r).Error().Err(err).Msg("issue access token")
		writeJSON(w, http.StatusInternalServerError, OAuthError{
			Error:       "server_error",
			Description: "could not issue token",
		})
		return
	}

	w.Header().Set("Authorization", "Bearer "+token.Value)
	writeJSON(w, http.StatusOK, TokenResponse{
		TokenType:   "Bearer",
		ExpiresIn:   int(token.ExpiresIn.Seconds()),
		AccessToken: token.Value,
	})
}

func parseTokenRequest(w http.ResponseWriter, r *http.Request) (TokenRequest, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/x-www-form-urlencoded" || mediaType == "multipart/form-data" {
		r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
		if err := r.ParseForm(); err != nil {
			return TokenRequest{}, err
		}
		return TokenRequest{
			Username: r.PostFormValue("username"),
			Password: r.PostFormValue("password"),
			Scope:    r.PostFormValue("scope"),
		}, nil
	}

	var req TokenRequest
	err := decodeJSON(w, r, &req)
	return req, err
}

// Authenticate validates the bearer token when one is sent and stores its
// claims in the request context. Requests without Authorization pass through
// anonymously; a bad token is rejected with 401.
func Authenticate(tokens *auth.TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if strings.TrimSpace(header) == "" {
				next.ServeHTTP(w, r)
				return
			}

			raw, err := auth.BearerToken(header)
			if err != nil {
				writeServiceError(w, r, err)
				return
			}
			claims, err := tokens.Validate(raw)
			if err != nil {
				writeServiceError(w, r, err)
				return
			}

			ctx := context.WithValue(r.Context(), contextClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Require rejects requests whose claims do not satisfy req. When userParam is
// set, the URL parameter of that name is the target of SelfOrAdmin.
func Require(req auth.Requirement, userParam string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			target := 0
			if userParam != "" {
				// An unparsable id never matches the caller, so the gate
				// decides and concealed routes still answer 404.
				target, _ = parseID(r, userParam)
			}
			if err := req.Authorize(claimsFromContext(r.Context()), target); err != nil {
				writeServiceError(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func claimsFromContext(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(contextClaimsKey).(*auth.Claims)
	return claims
}

// callerRole is the effective role of the request, INACTIVE when anonymous.
func callerRole(ctx context.Context) types.Role {
	if claims := claimsFromContext(ctx); claims != nil {
		return claims.Role()
	}
	return types.RoleInactive
}
