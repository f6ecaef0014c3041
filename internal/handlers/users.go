package handlers

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aciencia/apiserver/internal/auth"
	"github.com/aciencia/apiserver/internal/services"
	"github.com/aciencia/apiserver/types"
)

const (
	paramUserID   = "userID"
	paramUsername = "username"
)

// UserHandler handles user routes.
type UserHandler struct {
	userService *services.UserService
}

// NewUserHandler constructs a UserHandler with the provided dependencies.
func NewUserHandler(userService *services.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

// UserRouter registers user routes on the given router.
func UserRouter(r chi.Router, userService *services.UserService) {
	handler := NewUserHandler(userService)
	self := Require(auth.SelfOrAdmin().Concealed(), paramUserID)

	r.Options("/", options(http.MethodGet, http.MethodPost))
	r.With(requireAny).Get("/", handler.List)
	r.Post("/", handler.Create)

	r.Options("/username/{username}", options(http.MethodGet))
	r.Get("/username/{username}", handler.UsernameExists)

	r.Options("/{userID}", options(http.MethodGet, http.MethodPut, http.MethodDelete))
	r.With(self).Get("/{userID}", handler.Get)
	r.With(self).Put("/{userID}", handler.Update)
	r.With(Require(auth.RoleAtLeast(types.RoleWriter).Concealed(), "")).Delete("/{userID}", handler.Delete)
}

func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.userService.List(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeTagged(w, r, http.StatusOK, map[string][]types.User{"users": users})
}

func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, paramUserID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	user, err := h.userService.GetByID(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeTagged(w, r, http.StatusOK, user)
}

// UsernameExists answers 204 when the username is taken, 404 otherwise.
func (h *UserHandler) UsernameExists(w http.ResponseWriter, r *http.Request) {
	if _, err := h.userService.GetByUsername(r.Context(), chi.URLParam(r, paramUsername)); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in services.UserInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeServiceError(w, r, err)
		return
	}

	user, err := h.userService.Register(r.Context(), in, callerRole(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/users/%d", user.ID))
	writeTagged(w, r, http.StatusCreated, user)
}

func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, paramUserID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	var in services.UserInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeServiceError(w, r, err)
		return
	}

	user, err := h.userService.Update(r.Context(), id, in, callerRole(r.Context()), ifMatch[types.User](r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeTagged(w, r, StatusUpdated, user)
}

func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, paramUserID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	if err := h.userService.Delete(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
