package bom

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/stitchline-erp/stitchline-erp/internal/shared"
)

type memoryRepo struct {
	headers map[int64]Header
	lines   map[int64][]Line
	nextID  int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{headers: map[int64]Header{}, lines: map[int64][]Line{}, nextID: 1}
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, m)
}

func (m *memoryRepo) Get(_ context.Context, id int64) (Header, []Line, error) {
	h, ok := m.headers[id]
	if !ok {
		return Header{}, nil, ErrNotFound
	}
	return h, m.lines[id], nil
}

func (m *memoryRepo) List(_ context.Context, activeOnly bool, _ int) ([]Header, error) {
	var out []Header
	for _, h := range m.headers {
		if activeOnly && !h.IsActive {
			continue
		}
		out = append(out, h)
	}
	return out, nil
}

func (m *memoryRepo) InsertHeader(_ context.Context, header Header) (int64, error) {
	id := m.nextID
	m.nextID++
	header.ID = id
	m.headers[id] = header
	return id, nil
}

func (m *memoryRepo) UpdateHeader(_ context.Context, id int64, header Header) error {
	existing, ok := m.headers[id]
	if !ok {
		return ErrNotFound
	}
	existing.Name = header.Name
	existing.Version = header.Version
	existing.OutputQty = header.OutputQty
	existing.OutputUnit = header.OutputUnit
	m.headers[id] = existing
	return nil
}

func (m *memoryRepo) SetActive(_ context.Context, id int64, active bool) error {
	h, ok := m.headers[id]
	if !ok {
		return ErrNotFound
	}
	h.IsActive = active
	m.headers[id] = h
	return nil
}

func (m *memoryRepo) InsertLine(_ context.Context, line Line) error {
	m.lines[line.HeaderID] = append(m.lines[line.HeaderID], line)
	return nil
}

func (m *memoryRepo) DeleteLines(_ context.Context, headerID int64) error {
	delete(m.lines, headerID)
	return nil
}

type fakeMaterials struct {
	infos map[int64]MaterialInfo
}

func (f *fakeMaterials) GetByIDs(_ context.Context, ids []int64) (map[int64]MaterialInfo, error) {
	out := make(map[int64]MaterialInfo, len(ids))
	for _, id := range ids {
		if info, ok := f.infos[id]; ok {
			out[id] = info
		}
	}
	return out, nil
}

type fakeAudit struct {
	logs []shared.AuditLog
}

func (f *fakeAudit) Record(_ context.Context, log shared.AuditLog) error {
	f.logs = append(f.logs, log)
	return nil
}

func newTestService() (*Service, *memoryRepo, *fakeAudit) {
	repo := newMemoryRepo()
	audit := &fakeAudit{}
	svc := NewService(repo, &fakeMaterials{infos: testMaterials()}, nil, audit)
	return svc, repo, audit
}

func teeInput() CreateInput {
	return CreateInput{
		Name:       "Basic Tee",
		Version:    "v1",
		OutputQty:  decimal.RequireFromString("1"),
		OutputUnit: "pcs",
		ActorID:    7,
		Lines: []LineInput{
			{MaterialID: 10, Qty: decimal.RequireFromString("2"), Unit: "m", WastePercent: decimal.RequireFromString("10")},
			{MaterialID: 20, Qty: decimal.RequireFromString("1"), Unit: "cone"},
		},
	}
}

func TestServiceCreateResolvesMaterials(t *testing.T) {
	svc, repo, audit := newTestService()

	header, lines, err := svc.Create(context.Background(), teeInput())
	require.NoError(t, err)
	require.Equal(t, int64(1), header.ID)
	require.Len(t, lines, 2)
	require.Equal(t, 1, lines[0].Position)
	require.Equal(t, string(ConsumptionGeneral), string(lines[0].Consumption.Kind))
	require.Len(t, repo.lines[header.ID], 2)
	require.Len(t, audit.logs, 1)
	require.Equal(t, "BOM_CREATE", audit.logs[0].Action)
}

func TestServiceCreateRejectsUnknownMaterial(t *testing.T) {
	svc, _, _ := newTestService()

	input := teeInput()
	input.Lines[0].MaterialID = 999
	_, _, err := svc.Create(context.Background(), input)
	require.ErrorIs(t, err, ErrUnresolvedMaterial)
}

func TestServiceCreateRejectsExcessiveWaste(t *testing.T) {
	svc, _, _ := newTestService()

	input := teeInput()
	input.Lines[0].WastePercent = MaxWastePercent.Add(decimal.NewFromInt(1))
	_, _, err := svc.Create(context.Background(), input)
	require.ErrorIs(t, err, ErrInvalidWaste)
}

func TestServiceExpandAndRequirements(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	header, _, err := svc.Create(ctx, teeInput())
	require.NoError(t, err)

	exp, err := svc.Expand(ctx, header.ID)
	require.NoError(t, err)
	// 2.2m at 5.00 plus 1 cone at 1.50.
	require.True(t, exp.TotalCost.Equal(decimal.RequireFromString("12.50")), "got %s", exp.TotalCost)

	reqs, err := svc.Requirements(ctx, header.ID, decimal.RequireFromString("10"))
	require.NoError(t, err)
	require.Len(t, reqs, 2)
	require.True(t, reqs[0].Qty.Equal(decimal.RequireFromString("22")))
}

func TestServiceUpdateReplacesLines(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()

	header, _, err := svc.Create(ctx, teeInput())
	require.NoError(t, err)

	input := teeInput()
	input.Version = "v2"
	input.Lines = input.Lines[:1]
	require.NoError(t, svc.Update(ctx, header.ID, input))

	got, lines, err := svc.Get(ctx, header.ID)
	require.NoError(t, err)
	require.Equal(t, "v2", got.Version)
	require.Len(t, lines, 1)
	require.Len(t, repo.lines[header.ID], 1)
}

func TestServiceDeactivateHidesFromActiveList(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	header, _, err := svc.Create(ctx, teeInput())
	require.NoError(t, err)
	require.NoError(t, svc.Deactivate(ctx, header.ID, 7))

	active, err := svc.List(ctx, true, 0)
	require.NoError(t, err)
	require.Empty(t, active)

	all, err := svc.List(ctx, false, 0)
	require.NoError(t, err)
	require.Len(t, all, 1)
}
