package bom

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Requirement is the aggregated quantity of one material needed for a target
// production quantity, summed across every BOM line referencing it.
type Requirement struct {
	MaterialID   int64           `json:"material_id"`
	MaterialCode string          `json:"material_code"`
	MaterialName string          `json:"material_name"`
	Unit         string          `json:"unit"`
	Qty          decimal.Decimal `json:"qty"`
	Cost         decimal.Decimal `json:"cost"`
}

// CalculateRequirements scales the BOM's per-unit consumption to targetQty.
// Duplicate materials across lines (body fabric on one line, trim on another)
// collapse into a single requirement; skipping the aggregation would make
// downstream issues double-request the material.
func CalculateRequirements(header Header, lines []Line, mats map[int64]MaterialInfo, targetQty decimal.Decimal) ([]Requirement, error) {
	if !header.OutputQty.IsPositive() {
		return nil, fmt.Errorf("%w (header %d)", ErrInvalidBOM, header.ID)
	}
	if targetQty.IsNegative() {
		return nil, fmt.Errorf("%w: target quantity", ErrInvalidQuantity)
	}

	index := make(map[int64]int, len(lines))
	result := make([]Requirement, 0, len(lines))
	for _, line := range lines {
		info, ok := mats[line.MaterialID]
		if !ok {
			return nil, fmt.Errorf("%w: material %d on line %d", ErrUnresolvedMaterial, line.MaterialID, line.ID)
		}
		unitCost := decimal.Zero
		if info.CostPerUnit.Valid {
			unitCost = info.CostPerUnit.Decimal
		}
		perUnit := line.EffectiveQty().Div(header.OutputQty)
		required := perUnit.Mul(targetQty)
		cost := required.Mul(unitCost)

		if pos, seen := index[line.MaterialID]; seen {
			result[pos].Qty = result[pos].Qty.Add(required)
			result[pos].Cost = result[pos].Cost.Add(cost)
			continue
		}
		index[line.MaterialID] = len(result)
		result = append(result, Requirement{
			MaterialID:   line.MaterialID,
			MaterialCode: info.Code,
			MaterialName: info.Name,
			Unit:         info.Unit,
			Qty:          required,
			Cost:         cost,
		})
	}
	return result, nil
}
