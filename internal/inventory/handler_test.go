package inventory

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func newTestRouter(repo *memoryRepo) http.Handler {
	h := NewHandler(slog.Default(), NewService(repo, nil, nil))
	r := chi.NewRouter()
	r.Route("/inventory", h.MountRoutes)
	return r
}

func TestHandlerAvailability(t *testing.T) {
	repo := newMemoryRepo()
	seedLayer(t, repo, 7, "5", "2.00", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	seedLayer(t, repo, 7, "3", "3.00", time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC))
	router := newTestRouter(repo)

	req := httptest.NewRequest(http.MethodGet, "/inventory/materials/7/availability", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"available":"8"`)
}

func TestHandlerRejectsBadMaterialID(t *testing.T) {
	router := newTestRouter(newMemoryRepo())

	req := httptest.NewRequest(http.MethodGet, "/inventory/materials/abc/layers", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerReceiveCreatesLayer(t *testing.T) {
	repo := newMemoryRepo()
	router := newTestRouter(repo)

	body := `{"material_id":7,"qty":"10","unit_cost":"2.50","note":"opening stock"}`
	req := httptest.NewRequest(http.MethodPost, "/inventory/receipts", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	layers, err := repo.ListLayers(req.Context(), 7, false)
	require.NoError(t, err)
	require.Len(t, layers, 1)
}

func TestHandlerReceiveValidation(t *testing.T) {
	router := newTestRouter(newMemoryRepo())

	cases := []struct {
		name string
		body string
	}{
		{"missing material", `{"qty":"10","unit_cost":"2.50"}`},
		{"bad ref id", `{"material_id":7,"qty":"10","unit_cost":"2.50","ref_id":"not-a-uuid"}`},
		{"zero qty", `{"material_id":7,"qty":"0","unit_cost":"2.50"}`},
		{"negative cost", `{"material_id":7,"qty":"1","unit_cost":"-1"}`},
		{"broken json", `{`},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/inventory/receipts", strings.NewReader(tc.body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code, tc.name)
	}
}
