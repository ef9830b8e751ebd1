package audit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func newTestRouter(repo *stubRepo) http.Handler {
	h := NewHandler(nil, NewService(repo))
	h.now = func() time.Time { return time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC) }
	r := chi.NewRouter()
	r.Route("/audit", h.MountRoutes)
	return r
}

func TestHandlerTimelineFilters(t *testing.T) {
	repo := &stubRepo{rows: []TimelineRow{
		trailRow("2026-03-10T10:00:00Z", "issue:POST", "issue"),
	}}
	router := newTestRouter(repo)

	req := httptest.NewRequest(http.MethodGet, "/audit?entity=issue&from=2026-03-01&to=2026-03-14&page=2&page_size=10", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "issue", repo.lastCall.Filters.Entity)
	require.Equal(t, 10, repo.lastCall.Offset)
	require.Equal(t, 11, repo.lastCall.Limit)
	require.Contains(t, rec.Body.String(), "issue:POST")
}

func TestHandlerTimelineRejectsBadRange(t *testing.T) {
	router := newTestRouter(&stubRepo{})

	cases := []string{
		"/audit?from=2026-03-10&to=2026-03-01",
		"/audit?from=2025-01-01&to=2025-12-31",
		"/audit?from=notadate",
		"/audit?actor_id=-1",
		"/audit?page=0",
	}
	for _, target := range cases {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestHandlerExportCSV(t *testing.T) {
	repo := &stubRepo{rows: []TimelineRow{
		trailRow("2026-03-10T10:00:00Z", "GRN_POST", "goods_receipt"),
	}}
	router := newTestRouter(repo)

	req := httptest.NewRequest(http.MethodGet, "/audit/export.csv", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	require.Contains(t, rec.Header().Get("Content-Disposition"), "audit-trail-20260315-120000.csv")
	require.Contains(t, rec.Body.String(), "GRN_POST")
}
