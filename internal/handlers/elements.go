package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/aciencia/apiserver/internal/auth"
	"github.com/aciencia/apiserver/internal/services"
	"github.com/aciencia/apiserver/internal/store"
	"github.com/aciencia/apiserver/types"
)

const (
	paramElementID = "elementID"
	paramTargetID  = "targetID"
	paramName      = "name"
)

var (
	requireAny    = Require(auth.AuthenticatedAny(), "")
	requireWriter = Require(auth.RoleAtLeast(types.RoleWriter), "")
)

// ElementHandler serves the routes of one element kind.
type ElementHandler struct {
	kind      types.Kind
	elements  *services.ElementService
	relations *services.RelationService
}

// NewElementHandler constructs an ElementHandler for kind.
func NewElementHandler(kind types.Kind, elements *services.ElementService, relations *services.RelationService) *ElementHandler {
	return &ElementHandler{kind: kind, elements: elements, relations: relations}
}

// ElementRouter registers the CRUD, relation and, when withImages is set,
// image routes of kind.
func ElementRouter(r chi.Router, kind types.Kind, elements *services.ElementService, relations *services.RelationService, withImages bool) {
	handler := NewElementHandler(kind, elements, relations)

	r.Options("/", options(http.MethodGet, http.MethodPost))
	r.With(requireAny).Get("/", handler.List)
	r.With(requireWriter).Post("/", handler.Create)

	r.Options("/elementname/{name}", options(http.MethodGet))
	r.Get("/elementname/{name}", handler.NameExists)

	r.Route("/{elementID}", func(r chi.Router) {
		r.Options("/", options(http.MethodGet, http.MethodPut, http.MethodDelete))
		r.With(requireAny).Get("/", handler.Get)
		r.With(requireWriter).Put("/", handler.Update)
		r.With(requireWriter).Delete("/", handler.Delete)

		for _, rel := range types.RelationsOf(kind) {
			RelationRouter(r, rel, relations)
		}

		if withImages {
			r.Options("/image", options(http.MethodPut))
			r.With(requireWriter).Put("/image", handler.UploadImage)
		}
	})
}

// elementList renders elements under key, each with its own root key.
func elementList(key string, elements []types.Element) map[string][]types.Element {
	return map[string][]types.Element{key: elements}
}

func (h *ElementHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	opts := store.ListOptions{
		Name:       strings.TrimSpace(query.Get("name")),
		OrderBy:    strings.ToLower(strings.TrimSpace(query.Get("order"))),
		Descending: strings.EqualFold(strings.TrimSpace(query.Get("ordering")), "DESC"),
	}
	if opts.OrderBy != "name" {
		opts.OrderBy = "id"
	}

	elements, err := h.elements.List(r.Context(), h.kind, opts)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeTagged(w, r, http.StatusOK, elementList(h.kind.Plural(), elements))
}

// NameExists answers 204 when an element of this kind has the name, 404
// otherwise.
func (h *ElementHandler) NameExists(w http.ResponseWriter, r *http.Request) {
	exists, err := h.elements.Exists(r.Context(), h.kind, chi.URLParam(r, paramName))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if !exists {
		writeError(w, http.StatusNotFound, "resource not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ElementHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, paramElementID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	element, err := h.elements.Get(r.Context(), h.kind, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeTagged(w, r, http.StatusOK, element)
}

func (h *ElementHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in services.ElementInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeServiceError(w, r, err)
		return
	}

	created, err := h.elements.Create(r.Context(), h.kind, in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/%s/%d", h.kind.Plural(), created.ID))
	writeTagged(w, r, http.StatusCreated, created)
}

func (h *ElementHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, paramElementID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	var in services.ElementInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeServiceError(w, r, err)
		return
	}

	updated, err := h.elements.Update(r.Context(), h.kind, id, in, ifMatch[types.Element](r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeTagged(w, r, StatusUpdated, updated)
}

func (h *ElementHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, paramElementID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	if err := h.elements.Delete(r.Context(), h.kind, id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
