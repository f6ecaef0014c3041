package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aciencia/apiserver/internal/auth"
	"github.com/aciencia/apiserver/internal/etag"
	"github.com/aciencia/apiserver/internal/services"
	"github.com/aciencia/apiserver/internal/store"
	"github.com/aciencia/apiserver/types"
)

func TestWriteServiceError(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{auth.ErrUnauthorized, http.StatusUnauthorized},
		{fmt.Errorf("parse: %w", auth.ErrTokenExpired), http.StatusUnauthorized},
		{auth.ErrForbidden, http.StatusForbidden},
		{auth.ErrConcealed, http.StatusNotFound},
		{fmt.Errorf("get: %w", store.ErrNotFound), http.StatusNotFound},
		{services.ErrUnacceptableMember, http.StatusNotAcceptable},
		{services.ErrValidation, http.StatusUnprocessableEntity},
		{fmt.Errorf("create: %w", store.ErrTooLong), http.StatusUnprocessableEntity},
		{services.ErrBadRequest, http.StatusBadRequest},
		{store.ErrDuplicate, http.StatusBadRequest},
		{etag.ErrPreconditionRequired, http.StatusPreconditionRequired},
		{etag.ErrPreconditionFailed, http.StatusPreconditionFailed},
		{services.ErrImagesDisabled, http.StatusNotImplemented},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeServiceError(rec, httptest.NewRequest(http.MethodGet, "/", nil), tc.err)
			assert.Equal(t, tc.status, rec.Code)
			assert.Contains(t, rec.Body.String(), fmt.Sprintf(`"code":%d`, tc.status))
		})
	}
}

func TestInternalErrorsAreNotLeaked(t *testing.T) {
	rec := httptest.NewRecorder()
	writeServiceError(rec, httptest.NewRequest(http.MethodGet, "/", nil), errors.New("pq: relation missing"))
	assert.NotContains(t, rec.Body.String(), "pq:")
}

func TestParseID(t *testing.T) {
	for raw, want := range map[string]int{"7": 7, "0": 0, "-3": 0, "abc": 0} {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		rctx := chi.NewRouteContext()
		rctx.URLParams.Add("id", raw)
		r = r.WithContext(contextWithRoute(r, rctx))

		id, err := parseID(r, "id")
		if want == 0 {
			assert.ErrorIs(t, err, store.ErrNotFound, raw)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, want, id)
	}
}

func TestWriteTaggedHonoursIfNoneMatch(t *testing.T) {
	value := types.Element{ID: 1, Kind: types.KindEntity, Name: "CERN"}

	rec := httptest.NewRecorder()
	writeTagged(rec, httptest.NewRequest(http.MethodGet, "/", nil), http.StatusOK, value)
	require.Equal(t, http.StatusOK, rec.Code)
	tag := rec.Header().Get("ETag")
	require.True(t, strings.HasPrefix(tag, `"`))

	want, err := etag.Fingerprint(value)
	require.NoError(t, err)
	assert.Equal(t, want, tag)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("If-None-Match", "W/"+tag)
	rec = httptest.NewRecorder()
	writeTagged(rec, req, http.StatusOK, value)
	assert.Equal(t, http.StatusNotModified, rec.Code)
	assert.Zero(t, rec.Body.Len())

	req = httptest.NewRequest(http.MethodPut, "/", nil)
	req.Header.Set("If-None-Match", tag)
	rec = httptest.NewRecorder()
	writeTagged(rec, req, StatusUpdated, value)
	assert.Equal(t, StatusUpdated, rec.Code)
}

func TestIfMatch(t *testing.T) {
	value := types.Element{ID: 1, Kind: types.KindEntity, Name: "CERN"}
	tag, err := etag.Fingerprint(value)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPut, "/", nil)
	assert.ErrorIs(t, ifMatch[types.Element](req)(value), etag.ErrPreconditionRequired)

	req.Header.Set("If-Match", tag)
	assert.NoError(t, ifMatch[types.Element](req)(value))

	value.Name = "CERN II"
	assert.ErrorIs(t, ifMatch[types.Element](req)(value), etag.ErrPreconditionFailed)
}

func TestIfMatchSeesHiddenWrites(t *testing.T) {
	stored := types.User{ID: 3, Username: "alice", PasswordHash: "old", UpdatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}

	rec := httptest.NewRecorder()
	writeTagged(rec, httptest.NewRequest(http.MethodGet, "/", nil), http.StatusOK, stored)
	tag := rec.Header().Get("ETag")

	req := httptest.NewRequest(http.MethodPut, "/", nil)
	req.Header.Set("If-Match", tag)
	require.NoError(t, ifMatch[types.User](req)(stored))

	stored.PasswordHash = "new"
	stored.UpdatedAt = stored.UpdatedAt.Add(time.Microsecond)
	assert.ErrorIs(t, ifMatch[types.User](req)(stored), etag.ErrPreconditionFailed)
}

func TestDecodeJSON(t *testing.T) {
	var in services.ElementInput
	rec := httptest.NewRecorder()
	assert.NoError(t, decodeJSON(rec, httptest.NewRequest(http.MethodPut, "/", strings.NewReader("")), &in))
	assert.Nil(t, in.Name)

	err := decodeJSON(rec, httptest.NewRequest(http.MethodPut, "/", strings.NewReader("{")), &in)
	assert.ErrorIs(t, err, services.ErrBadRequest)

	require.NoError(t, decodeJSON(rec, httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"name":"ACM"}`)), &in))
	require.NotNil(t, in.Name)
	assert.Equal(t, "ACM", *in.Name)
}

func contextWithRoute(r *http.Request, rctx *chi.Context) context.Context {
	return context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
}
