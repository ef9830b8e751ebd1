package materials

import (
	"context"
	"sort"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/stitchline-erp/stitchline-erp/internal/masterdata/shared"
)

type memoryRepo struct {
	materials map[int64]Material
	nextID    int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{materials: map[int64]Material{}, nextID: 1}
}

func (m *memoryRepo) List(_ context.Context, filters shared.ListFilters) ([]Material, int, error) {
	var out []Material
	for _, mat := range m.materials {
		if filters.IsActive != nil && mat.IsActive != *filters.IsActive {
			continue
		}
		if filters.Search != "" && !strings.Contains(strings.ToLower(mat.Name), strings.ToLower(filters.Search)) {
			continue
		}
		out = append(out, mat)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (m *memoryRepo) Get(_ context.Context, id int64) (Material, error) {
	mat, ok := m.materials[id]
	if !ok {
		return Material{}, shared.ErrNotFound
	}
	return mat, nil
}

func (m *memoryRepo) GetByIDs(_ context.Context, ids []int64) (map[int64]Material, error) {
	out := make(map[int64]Material, len(ids))
	for _, id := range ids {
		if mat, ok := m.materials[id]; ok {
			out[id] = mat
		}
	}
	return out, nil
}

func (m *memoryRepo) Create(_ context.Context, material Material) (Material, error) {
	for _, existing := range m.materials {
		if existing.Code == material.Code {
			return Material{}, shared.ErrDuplicate
		}
	}
	material.ID = m.nextID
	m.nextID++
	m.materials[material.ID] = material
	return material, nil
}

func (m *memoryRepo) Update(_ context.Context, id int64, material Material) error {
	if _, ok := m.materials[id]; !ok {
		return shared.ErrNotFound
	}
	material.ID = id
	m.materials[id] = material
	return nil
}

func (m *memoryRepo) Deactivate(_ context.Context, id int64) error {
	mat, ok := m.materials[id]
	if !ok {
		return shared.ErrNotFound
	}
	mat.IsActive = false
	m.materials[id] = mat
	return nil
}

func jersey() Material {
	return Material{
		Code:        "FAB-001",
		Name:        "Single jersey 180gsm",
		Unit:        "m",
		CostPerUnit: decimal.NewNullDecimal(decimal.RequireFromString("5.00")),
		IsActive:    true,
	}
}

func TestServiceCreateAndGet(t *testing.T) {
	svc := NewService(newMemoryRepo())
	ctx := context.Background()

	created, err := svc.Create(ctx, jersey())
	require.NoError(t, err)
	require.Equal(t, int64(1), created.ID)

	got, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, "FAB-001", got.Code)

	_, err = svc.Get(ctx, 0)
	require.ErrorIs(t, err, shared.ErrInvalidID)
}

func TestServiceCreateValidation(t *testing.T) {
	svc := NewService(newMemoryRepo())
	ctx := context.Background()

	m := jersey()
	m.Code = "  "
	_, err := svc.Create(ctx, m)
	require.ErrorIs(t, err, shared.ErrRequiredField)

	m = jersey()
	m.Unit = ""
	_, err = svc.Create(ctx, m)
	require.ErrorIs(t, err, shared.ErrRequiredField)

	m = jersey()
	m.CostPerUnit = decimal.NewNullDecimal(decimal.RequireFromString("-1"))
	_, err = svc.Create(ctx, m)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestServiceCreateRejectsDuplicateCode(t *testing.T) {
	svc := NewService(newMemoryRepo())
	ctx := context.Background()

	_, err := svc.Create(ctx, jersey())
	require.NoError(t, err)
	_, err = svc.Create(ctx, jersey())
	require.ErrorIs(t, err, shared.ErrDuplicate)
}

func TestServiceDeactivateFiltersList(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	created, err := svc.Create(ctx, jersey())
	require.NoError(t, err)

	thread := jersey()
	thread.Code = "THR-002"
	thread.Name = "Polyester thread"
	thread.Unit = "cone"
	_, err = svc.Create(ctx, thread)
	require.NoError(t, err)

	require.NoError(t, svc.Deactivate(ctx, created.ID))

	active := true
	got, total, err := svc.List(ctx, shared.ListFilters{IsActive: &active})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, "THR-002", got[0].Code)
}
