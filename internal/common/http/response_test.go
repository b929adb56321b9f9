package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/berniyo/twikey-lambda/internal/common/errors"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestSuccess(t *testing.T) {
	rec := httptest.NewRecorder()
	Success(rec, map[string]string{"status": "ok"})

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	resp := decode(t, rec)
	require.True(t, resp.Success)
	require.Equal(t, map[string]any{"status": "ok"}, resp.Data)
}

func TestHandleErrorStatusCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "not found", err: errors.Wrap(errors.ErrNotFound, "cursor"), want: http.StatusNotFound},
		{name: "invalid input", err: errors.Wrap(errors.ErrInvalidInput, "feed"), want: http.StatusBadRequest},
		{name: "unauthorized", err: errors.ErrUnauthorized, want: http.StatusUnauthorized},
		{name: "other", err: errors.New("boom"), want: http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			HandleError(rec, tc.err)

			require.Equal(t, tc.want, rec.Code)
			resp := decode(t, rec)
			require.False(t, resp.Success)
			require.Equal(t, tc.err.Error(), resp.Error)
		})
	}
}

func TestNewRouterRecoversPanics(t *testing.T) {
	r := NewRouter()
	r.Get("/panic", func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/panic", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}
