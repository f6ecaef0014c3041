package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aciencia/apiserver/internal/auth"
	"github.com/aciencia/apiserver/internal/services"
	"github.com/aciencia/apiserver/types"
)

// RelationHandler serves the member routes of one relation, e.g.
// /associations/{id}/entities.
type RelationHandler struct {
	rel       types.Relation
	relations *services.RelationService
	gate      auth.Requirement
}

// NewRelationHandler constructs a RelationHandler for rel.
func NewRelationHandler(rel types.Relation, relations *services.RelationService) *RelationHandler {
	return &RelationHandler{
		rel:       rel,
		relations: relations,
		gate:      auth.RoleAtLeast(types.RoleWriter),
	}
}

// RelationRouter registers the relation routes below an element route.
func RelationRouter(r chi.Router, rel types.Relation, relations *services.RelationService) {
	handler := NewRelationHandler(rel, relations)
	base := "/" + rel.Path()

	r.Options(base, options(http.MethodGet))
	r.With(requireAny).Get(base, handler.List)

	r.Options(base+"/add/{targetID}", options(http.MethodPut))
	r.Options(base+"/rem/{targetID}", options(http.MethodPut))
	r.With(requireAny).Put(base+"/add/{targetID}", handler.Add)
	r.With(requireAny).Put(base+"/rem/{targetID}", handler.Remove)
}

func (h *RelationHandler) List(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, paramElementID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	elements, err := h.relations.List(r.Context(), h.rel, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeTagged(w, r, http.StatusOK, elementList(h.rel.Path(), elements))
}

func (h *RelationHandler) Add(w http.ResponseWriter, r *http.Request) {
	id, targetID, ok := h.admit(w, r)
	if !ok {
		return
	}

	element, err := h.relations.Add(r.Context(), h.rel, id, targetID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeTagged(w, r, StatusUpdated, element)
}

func (h *RelationHandler) Remove(w http.ResponseWriter, r *http.Request) {
	id, targetID, ok := h.admit(w, r)
	if !ok {
		return
	}

	element, _, err := h.relations.Remove(r.Context(), h.rel, id, targetID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeTagged(w, r, StatusUpdated, element)
}

// admit checks, in order, that the element exists (404), that the target
// exists (406) and that the caller may write (403).
func (h *RelationHandler) admit(w http.ResponseWriter, r *http.Request) (id, targetID int, ok bool) {
	id, err := parseID(r, paramElementID)
	if err != nil {
		writeServiceError(w, r, err)
		return 0, 0, false
	}
	if targetID, err = parseID(r, paramTargetID); err != nil {
		// A malformed target id cannot name a member either.
		targetID = 0
	}

	if err := h.relations.CheckEndpoints(r.Context(), h.rel, id, targetID); err != nil {
		writeServiceError(w, r, err)
		return 0, 0, false
	}
	if err := h.gate.Authorize(claimsFromContext(r.Context()), 0); err != nil {
		writeServiceError(w, r, err)
		return 0, 0, false
	}
	return id, targetID, true
}
