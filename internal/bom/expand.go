package bom

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ExpandedLine is one costed BOM line.
type ExpandedLine struct {
	MaterialID   int64           `json:"material_id"`
	MaterialCode string          `json:"material_code"`
	MaterialName string          `json:"material_name"`
	Unit         string          `json:"unit"`
	Qty          decimal.Decimal `json:"qty"`
	WastePercent decimal.Decimal `json:"waste_percent"`
	EffectiveQty decimal.Decimal `json:"effective_qty"`
	UnitCost     decimal.Decimal `json:"unit_cost"`
	LineCost     decimal.Decimal `json:"line_cost"`
}

// Expansion is the costed view of a BOM for its header output quantity.
type Expansion struct {
	HeaderID          int64           `json:"header_id"`
	OutputQty         decimal.Decimal `json:"output_qty"`
	OutputUnit        string          `json:"output_unit"`
	Lines             []ExpandedLine  `json:"lines"`
	TotalCost         decimal.Decimal `json:"total_cost"`
	CostPerOutputUnit decimal.Decimal `json:"cost_per_output_unit"`
}

// Expand computes per-line effective quantities and costs and aggregates them
// to a total. Pure function of its input snapshot; materials without a cost
// are costed at zero rather than rejected.
func Expand(header Header, lines []Line, mats map[int64]MaterialInfo) (Expansion, error) {
	if !header.OutputQty.IsPositive() {
		return Expansion{}, fmt.Errorf("%w (header %d)", ErrInvalidBOM, header.ID)
	}

	exp := Expansion{
		HeaderID:   header.ID,
		OutputQty:  header.OutputQty,
		OutputUnit: header.OutputUnit,
		Lines:      make([]ExpandedLine, 0, len(lines)),
		TotalCost:  decimal.Zero,
	}
	for _, line := range lines {
		info, ok := mats[line.MaterialID]
		if !ok {
			return Expansion{}, fmt.Errorf("%w: material %d on line %d", ErrUnresolvedMaterial, line.MaterialID, line.ID)
		}
		unitCost := decimal.Zero
		if info.CostPerUnit.Valid {
			unitCost = info.CostPerUnit.Decimal
		}
		effective := line.EffectiveQty()
		lineCost := effective.Mul(unitCost)
		exp.Lines = append(exp.Lines, ExpandedLine{
			MaterialID:   line.MaterialID,
			MaterialCode: info.Code,
			MaterialName: info.Name,
			Unit:         info.Unit,
			Qty:          line.Qty,
			WastePercent: line.WastePercent,
			EffectiveQty: effective,
			UnitCost:     unitCost,
			LineCost:     lineCost,
		})
		exp.TotalCost = exp.TotalCost.Add(lineCost)
	}
	exp.CostPerOutputUnit = exp.TotalCost.Div(header.OutputQty)
	return exp, nil
}
