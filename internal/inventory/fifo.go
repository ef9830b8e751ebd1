package inventory

import (
	"sort"

	"github.com/shopspring/decimal"
)

// PlanConsumption computes FIFO takes for a demand against a layer snapshot
// without mutating anything. The snapshot is ordered by (created_at, id) so
// the walk is a deterministic total order even when layers share a timestamp.
// Availability is checked up front; on failure no plan is produced.
func PlanConsumption(materialID int64, layers []Layer, required decimal.Decimal) (Consumption, error) {
	if !required.IsPositive() {
		return Consumption{}, ErrInvalidQuantity
	}

	snapshot := make([]Layer, len(layers))
	copy(snapshot, layers)
	sort.SliceStable(snapshot, func(i, j int) bool {
		if snapshot[i].CreatedAt.Equal(snapshot[j].CreatedAt) {
			return snapshot[i].ID < snapshot[j].ID
		}
		return snapshot[i].CreatedAt.Before(snapshot[j].CreatedAt)
	})

	available := decimal.Zero
	for _, layer := range snapshot {
		available = available.Add(layer.QtyAvail)
	}
	if available.LessThan(required) {
		return Consumption{}, &InsufficientStockError{MaterialID: materialID, Available: available, Required: required}
	}

	plan := Consumption{MaterialID: materialID, Qty: required}
	remaining := required
	totalCost := decimal.Zero
	for _, layer := range snapshot {
		if remaining.IsZero() {
			break
		}
		if !layer.QtyAvail.IsPositive() {
			continue
		}
		take := decimal.Min(layer.QtyAvail, remaining)
		plan.Takes = append(plan.Takes, Take{LayerID: layer.ID, Qty: take, UnitCost: layer.UnitCost})
		totalCost = totalCost.Add(take.Mul(layer.UnitCost))
		remaining = remaining.Sub(take)
	}
	plan.AverageUnitCost = totalCost.Div(required)
	return plan, nil
}
