package audit

import (
	"context"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stubRepo struct {
	rows     []TimelineRow
	lastCall QueryParams
}

func (s *stubRepo) Window(_ context.Context, params QueryParams) ([]TimelineRow, error) {
	s.lastCall = params
	limit := params.Limit
	rows := s.rows
	if params.Offset < len(rows) {
		rows = rows[params.Offset:]
	} else {
		rows = nil
	}
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func trailRow(at string, action, entity string) TimelineRow {
	ts, err := time.Parse(time.RFC3339, at)
	if err != nil {
		panic(err)
	}
	return TimelineRow{At: ts, ActorID: 7, Action: action, Entity: entity, EntityID: "1"}
}

func TestTimelinePaging(t *testing.T) {
	repo := &stubRepo{rows: []TimelineRow{
		trailRow("2026-03-10T10:00:00Z", "issue:POST", "issue"),
		trailRow("2026-03-09T09:00:00Z", "GRN_POST", "goods_receipt"),
		trailRow("2026-03-08T08:00:00Z", "BOM_CREATE", "bom"),
	}}
	svc := NewService(repo)

	result, err := svc.Timeline(context.Background(), TimelineFilters{Page: 1, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, result.Rows, 2)
	require.True(t, result.Paging.HasNext)
	require.Equal(t, 3, repo.lastCall.Limit, "must overfetch one row to detect next page")
	require.Equal(t, 0, repo.lastCall.Offset)

	result, err = svc.Timeline(context.Background(), TimelineFilters{Page: 2, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	require.False(t, result.Paging.HasNext)
	require.Equal(t, 2, repo.lastCall.Offset)
}

func TestTimelineClampsPageSize(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo)

	_, err := svc.Timeline(context.Background(), TimelineFilters{PageSize: 500})
	require.NoError(t, err)
	require.Equal(t, maxPageSize+1, repo.lastCall.Limit)
}

func TestExportCSV(t *testing.T) {
	repo := &stubRepo{rows: []TimelineRow{
		{
			At:       time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC),
			ActorID:  7,
			Action:   "issue:POST",
			Entity:   "issue",
			EntityID: "42",
			Meta:     map[string]any{"number": "GI-1001"},
		},
	}}
	svc := NewService(repo)

	payload, err := svc.ExportCSV(context.Background(), TimelineFilters{})
	require.NoError(t, err)

	records, err := csv.NewReader(strings.NewReader(string(payload))).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, []string{"occurred_at", "actor_id", "action", "entity", "entity_id", "meta"}, records[0])
	require.Equal(t, "issue:POST", records[1][2])
	require.Equal(t, "42", records[1][4])
	require.Contains(t, records[1][5], "GI-1001")
}
