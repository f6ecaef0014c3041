package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	"github.com/aciencia/apiserver/internal/auth"
	"github.com/aciencia/apiserver/internal/etag"
	"github.com/aciencia/apiserver/internal/services"
	"github.com/aciencia/apiserver/internal/store"
)

// StatusUpdated is sent when a write succeeded and the response carries the
// new representation.
const StatusUpdated = 209

const maxJSONBody = 1 << 20

// ErrorResponse is the error payload of every route but /access_token.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Code: status, Message: message})
}

// writeServiceError maps an error from the layers below onto a status code
// and body. Unknown errors are logged and answered with a bare 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrUnauthorized),
		errors.Is(err, auth.ErrTokenExpired),
		errors.Is(err, auth.ErrTokenSignature),
		errors.Is(err, auth.ErrTokenInvalid):
		w.Header().Set("WWW-Authenticate", `Bearer realm="aciencia"`)
		writeError(w, http.StatusUnauthorized, "invalid or missing bearer token")
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, auth.ErrConcealed), errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "resource not found")
	case errors.Is(err, services.ErrUnacceptableMember):
		writeError(w, http.StatusNotAcceptable, err.Error())
	case errors.Is(err, services.ErrValidation), errors.Is(err, store.ErrTooLong):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, services.ErrBadRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrDuplicate):
		writeError(w, http.StatusBadRequest, "a resource with the same unique value already exists")
	case errors.Is(err, etag.ErrPreconditionRequired):
		writeError(w, http.StatusPreconditionRequired, "If-Match header is required")
	case errors.Is(err, etag.ErrPreconditionFailed):
		writeError(w, http.StatusPreconditionFailed, "resource has changed since it was read")
	case errors.Is(err, services.ErrImagesDisabled):
		writeError(w, http.StatusNotImplemented, err.Error())
	default:
		hlog.FromRequest(r).Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// writeTagged writes value with its ETag. GET and HEAD requests whose
// If-None-Match names the tag get 304 without a body.
func writeTagged(w http.ResponseWriter, r *http.Request, status int, value any) {
	body, err := json.Marshal(value)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	tag := etag.Tag(body, value)
	w.Header().Set("ETag", tag)
	if (r.Method == http.MethodGet || r.Method == http.MethodHead) &&
		etag.NotModified(r.Header.Get("If-None-Match"), tag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// ifMatch builds the write precondition of r: the If-Match header must name
// the current revision of the resource.
func ifMatch[T any](r *http.Request) services.Precondition[T] {
	header := r.Header.Get("If-Match")
	return func(current T) error {
		tag, err := etag.Fingerprint(current)
		if err != nil {
			return err
		}
		return etag.CheckWrite(header, tag)
	}
}

// decodeJSON reads an optional JSON object body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%w: invalid JSON body", services.ErrBadRequest)
	}
	return nil
}

// parseID reads a positive integer URL parameter. Anything else cannot name
// an existing resource and is reported as not found.
func parseID(r *http.Request, param string) (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(chi.URLParam(r, param)))
	if err != nil || id < 1 {
		return 0, store.ErrNotFound
	}
	return id, nil
}

// options answers OPTIONS with the allowed methods and no body.
func options(methods ...string) http.HandlerFunc {
	allow := strings.Join(append([]string{http.MethodOptions}, methods...), ", ")
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Allow", allow)
		w.WriteHeader(http.StatusNoContent)
	}
}

// Healthz reports liveness.
func Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
