package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stitchline-erp/stitchline-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	AvailableQty(ctx context.Context, materialID int64) (decimal.Decimal, error)
	ListLayers(ctx context.Context, materialID int64, includeEmpty bool) ([]Layer, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards duplicate receipts per transaction reference.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Service coordinates ledger operations.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency IdempotencyPort
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, idem IdempotencyPort) *Service {
	return &Service{repo: repo, audit: audit, idempotency: idem}
}

// Receive creates a new layer. Receipts are the only way ledger quantity
// increases.
func (s *Service) Receive(ctx context.Context, input ReceiptInput) (Layer, error) {
	layers, err := s.ReceiveMany(ctx, []ReceiptInput{input})
	if err != nil {
		return Layer{}, err
	}
	return layers[0], nil
}

// ReceiveMany creates one layer per input inside a single transaction:
// either every layer lands or none does. Inputs are validated and their
// idempotency keys taken before the transaction opens; a failing transaction
// releases every key again.
func (s *Service) ReceiveMany(ctx context.Context, inputs []ReceiptInput) ([]Layer, error) {
	if len(inputs) == 0 {
		return nil, errors.New("inventory: minimal 1 receipt")
	}
	for _, input := range inputs {
		if input.MaterialID <= 0 {
			return nil, errors.New("inventory: material required")
		}
		if !input.Qty.IsPositive() {
			return nil, ErrInvalidQuantity
		}
		if input.UnitCost.IsNegative() {
			return nil, ErrInvalidUnitCost
		}
		if input.RefID != "" {
			if _, err := uuid.Parse(input.RefID); err != nil {
				return nil, fmt.Errorf("inventory: invalid ref id: %w", err)
			}
		}
	}

	var keys []string
	releaseKeys := func() {
		for _, key := range keys {
			_ = s.idempotency.Delete(ctx, key)
		}
	}
	if s.idempotency != nil {
		for _, input := range inputs {
			if input.RefID == "" {
				continue
			}
			key := fmt.Sprintf("RCV:%s:%d", input.RefID, input.MaterialID)
			if err := s.idempotency.CheckAndInsert(ctx, key, "inventory"); err != nil {
				releaseKeys()
				return nil, err
			}
			keys = append(keys, key)
		}
	}

	now := time.Now().UTC()
	layers := make([]Layer, 0, len(inputs))
	for _, input := range inputs {
		layers = append(layers, Layer{
			MaterialID: input.MaterialID,
			QtyOnHand:  input.Qty,
			QtyAvail:   input.Qty,
			UnitCost:   input.UnitCost,
			RefID:      input.RefID,
			Note:       input.Note,
			CreatedAt:  now,
		})
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for i := range layers {
			id, err := tx.InsertLayer(ctx, layers[i])
			if err != nil {
				return err
			}
			layers[i].ID = id
			if err := tx.InsertMovement(ctx, Movement{
				LayerID:   id,
				Type:      MovementReceipt,
				QtyDelta:  inputs[i].Qty,
				UnitCost:  inputs[i].UnitCost,
				RefModule: inputs[i].RefModule,
				RefID:     inputs[i].RefID,
				At:        now,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		releaseKeys()
		return nil, err
	}

	if s.audit != nil {
		for i := range layers {
			_ = s.audit.Record(ctx, shared.AuditLog{
				ActorID:  inputs[i].ActorID,
				Action:   "inventory:RECEIPT",
				Entity:   "inventory_layer",
				EntityID: fmt.Sprintf("%d", layers[i].ID),
				Meta: map[string]any{
					"material_id": inputs[i].MaterialID,
					"qty":         inputs[i].Qty.String(),
					"unit_cost":   inputs[i].UnitCost.String(),
				},
			})
		}
	}
	return layers, nil
}

// Consume satisfies one demand FIFO. Calling it twice with the same arguments
// consumes inventory twice; at-most-once semantics are the caller's job.
func (s *Service) Consume(ctx context.Context, materialID int64, qty decimal.Decimal, refModule, refID string) (Consumption, error) {
	results, err := s.ConsumeMany(ctx, []Demand{{MaterialID: materialID, Qty: qty}}, refModule, refID)
	if err != nil {
		return Consumption{}, err
	}
	return results[0], nil
}

// ConsumeMany satisfies a set of demands atomically inside one transaction:
// every demand is validated against its locked layer snapshot before any
// layer is decremented, so a failing demand rolls back the whole batch.
// Demands are locked in material-id order to keep lock acquisition
// deadlock-free across concurrent callers.
func (s *Service) ConsumeMany(ctx context.Context, demands []Demand, refModule, refID string) ([]Consumption, error) {
	if len(demands) == 0 {
		return nil, errors.New("inventory: minimal 1 demand")
	}
	merged, order, err := mergeDemands(demands)
	if err != nil {
		return nil, err
	}

	plans := make(map[int64]Consumption, len(merged))
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		lockOrder := make([]int64, 0, len(merged))
		for materialID := range merged {
			lockOrder = append(lockOrder, materialID)
		}
		sort.Slice(lockOrder, func(i, j int) bool { return lockOrder[i] < lockOrder[j] })

		// Validation pass: snapshot and plan everything before touching a row.
		for _, materialID := range lockOrder {
			layers, err := tx.LayersForUpdate(ctx, materialID)
			if err != nil {
				return err
			}
			plan, err := PlanConsumption(materialID, layers, merged[materialID])
			if err != nil {
				return err
			}
			plans[materialID] = plan
		}

		now := time.Now().UTC()
		for _, materialID := range lockOrder {
			for _, take := range plans[materialID].Takes {
				if err := tx.DecrementLayer(ctx, take.LayerID, take.Qty); err != nil {
					return err
				}
				if err := tx.InsertMovement(ctx, Movement{
					LayerID:   take.LayerID,
					Type:      MovementIssue,
					QtyDelta:  take.Qty.Neg(),
					UnitCost:  take.UnitCost,
					RefModule: refModule,
					RefID:     refID,
					At:        now,
				}); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.audit != nil {
		for materialID, plan := range plans {
			_ = s.audit.Record(ctx, shared.AuditLog{
				Action:   "inventory:ISSUE",
				Entity:   "inventory_layer",
				EntityID: fmt.Sprintf("%d", materialID),
				Meta: map[string]any{
					"material_id": materialID,
					"qty":         plan.Qty.String(),
					"avg_cost":    plan.AverageUnitCost.String(),
					"ref_module":  refModule,
					"ref_id":      refID,
				},
			})
		}
	}

	results := make([]Consumption, 0, len(order))
	for _, materialID := range order {
		results = append(results, plans[materialID])
	}
	return results, nil
}

// AvailableQty reports the quantity currently available for a material.
func (s *Service) AvailableQty(ctx context.Context, materialID int64) (decimal.Decimal, error) {
	if materialID <= 0 {
		return decimal.Zero, errors.New("inventory: material required")
	}
	return s.repo.AvailableQty(ctx, materialID)
}

// ListLayers returns the FIFO-ordered layers for a material.
func (s *Service) ListLayers(ctx context.Context, materialID int64, includeEmpty bool) ([]Layer, error) {
	if materialID <= 0 {
		return nil, errors.New("inventory: material required")
	}
	return s.repo.ListLayers(ctx, materialID, includeEmpty)
}

// mergeDemands sums duplicate materials and keeps first-appearance order for
// the results.
func mergeDemands(demands []Demand) (map[int64]decimal.Decimal, []int64, error) {
	merged := make(map[int64]decimal.Decimal, len(demands))
	order := make([]int64, 0, len(demands))
	for _, d := range demands {
		if d.MaterialID <= 0 {
			return nil, nil, errors.New("inventory: material required")
		}
		if !d.Qty.IsPositive() {
			return nil, nil, ErrInvalidQuantity
		}
		if _, seen := merged[d.MaterialID]; !seen {
			order = append(order, d.MaterialID)
		}
		merged[d.MaterialID] = merged[d.MaterialID].Add(d.Qty)
	}
	return merged, order, nil
}
