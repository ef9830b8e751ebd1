package bom

import (
	"context"

	"github.com/stitchline-erp/stitchline-erp/internal/masterdata/materials"
)

// MaterialAdapter bridges the materials repository to the MaterialPort
// expected by the BOM service.
type MaterialAdapter struct {
	repo materials.Repository
}

// NewMaterialAdapter constructs the adapter.
func NewMaterialAdapter(repo materials.Repository) *MaterialAdapter {
	return &MaterialAdapter{repo: repo}
}

// GetByIDs resolves material snapshots keyed by id.
func (a *MaterialAdapter) GetByIDs(ctx context.Context, ids []int64) (map[int64]MaterialInfo, error) {
	records, err := a.repo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	result := make(map[int64]MaterialInfo, len(records))
	for id, m := range records {
		result[id] = MaterialInfo{
			ID:          m.ID,
			Code:        m.Code,
			Name:        m.Name,
			Unit:        m.Unit,
			CostPerUnit: m.CostPerUnit,
		}
	}
	return result, nil
}
