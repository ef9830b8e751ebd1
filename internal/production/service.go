package production

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stitchline-erp/stitchline-erp/internal/bom"
	"github.com/stitchline-erp/stitchline-erp/internal/issue"
	"github.com/stitchline-erp/stitchline-erp/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetOrder(ctx context.Context, id int64) (Order, error)
	ListOperations(ctx context.Context, orderID int64) ([]Operation, error)
	Schedule(ctx context.Context, openOnly bool, limit int) ([]Order, error)
}

// BOMPort resolves material requirements for a target quantity.
type BOMPort interface {
	Requirements(ctx context.Context, id int64, targetQty decimal.Decimal) ([]bom.Requirement, error)
}

// IssuePort creates the pending goods issue on release.
type IssuePort interface {
	Create(ctx context.Context, input issue.CreateInput) (issue.Issue, error)
}

// InventoryPort reports ledger availability for the shortage view.
type InventoryPort interface {
	AvailableQty(ctx context.Context, materialID int64) (decimal.Decimal, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates production orders.
type Service struct {
	repo      RepositoryPort
	boms      BOMPort
	issues    IssuePort
	inventory InventoryPort
	audit     AuditPort
}

// NewService constructs production service.
func NewService(repo RepositoryPort, boms BOMPort, issues IssuePort, inv InventoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, boms: boms, issues: issues, inventory: inv, audit: audit}
}

// CreateInput describes a new planned order.
type CreateInput struct {
	BOMID        int64
	TargetQty    decimal.Decimal
	PlannedStart time.Time
	PlannedEnd   time.Time
	Note         string
	ActorID      int64
}

// Create plans an order with the standard cut and sew steps.
func (s *Service) Create(ctx context.Context, input CreateInput) (Order, error) {
	if input.BOMID <= 0 {
		return Order{}, fmt.Errorf("%w: bom required", ErrValidation)
	}
	if !input.TargetQty.IsPositive() {
		return Order{}, fmt.Errorf("%w: target qty must be positive", ErrValidation)
	}
	if input.PlannedEnd.Before(input.PlannedStart) {
		return Order{}, fmt.Errorf("%w: planned end before start", ErrValidation)
	}

	// Fail early on a broken BOM instead of at release time.
	if _, err := s.boms.Requirements(ctx, input.BOMID, input.TargetQty); err != nil {
		return Order{}, err
	}

	order := Order{
		Number:       generateNumber("MO"),
		BOMID:        input.BOMID,
		TargetQty:    input.TargetQty,
		Status:       StatusPlanned,
		PlannedStart: input.PlannedStart,
		PlannedEnd:   input.PlannedEnd,
		Note:         input.Note,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertOrder(ctx, order)
		if err != nil {
			return err
		}
		order.ID = id
		for seq, kind := range []OperationKind{OperationCut, OperationSew} {
			if _, err := tx.InsertOperation(ctx, Operation{OrderID: id, Kind: kind, Seq: seq + 1, DoneQty: decimal.Zero}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	s.recordAudit(ctx, input.ActorID, "production:CREATE", order.ID, map[string]any{"number": order.Number})
	return order, nil
}

// Release moves a planned order to released and creates one pending goods
// issue covering its material requirements, aggregated per material.
func (s *Service) Release(ctx context.Context, id int64, actorID int64) (Order, error) {
	var order Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		loaded, err := tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if loaded.Status != StatusPlanned {
			return fmt.Errorf("%w: %s is %s", ErrInvalidState, loaded.Number, loaded.Status)
		}

		requirements, err := s.boms.Requirements(ctx, loaded.BOMID, loaded.TargetQty)
		if err != nil {
			return err
		}
		lines := make([]issue.LineInput, 0, len(requirements))
		for _, req := range requirements {
			lines = append(lines, issue.LineInput{MaterialID: req.MaterialID, Qty: req.Qty})
		}
		iss, err := s.issues.Create(ctx, issue.CreateInput{
			ProductionOrderID: loaded.ID,
			Note:              fmt.Sprintf("release %s", loaded.Number),
			Lines:             lines,
			ActorID:           actorID,
		})
		if err != nil {
			return err
		}
		if err := tx.SetOrderIssue(ctx, loaded.ID, iss.ID); err != nil {
			return err
		}
		if err := tx.UpdateOrderStatus(ctx, loaded.ID, StatusReleased); err != nil {
			return err
		}
		loaded.Status = StatusReleased
		loaded.IssueID = iss.ID
		order = loaded
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	s.recordAudit(ctx, actorID, "production:RELEASE", order.ID, map[string]any{"number": order.Number, "issue_id": order.IssueID})
	return order, nil
}

// Start moves a released order into progress.
func (s *Service) Start(ctx context.Context, id int64, actorID int64) (Order, error) {
	return s.transition(ctx, id, actorID, "production:START", StatusInProgress, StatusReleased)
}

// Progress records done quantity on one operation of an in-progress order.
// Done quantity may be corrected downward but never exceeds the target.
func (s *Service) Progress(ctx context.Context, orderID, operationID int64, doneQty decimal.Decimal, actorID int64) error {
	if doneQty.IsNegative() {
		return fmt.Errorf("%w: done qty must be >= 0", ErrValidation)
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status != StatusInProgress {
			return fmt.Errorf("%w: %s is %s", ErrInvalidState, order.Number, order.Status)
		}
		if doneQty.GreaterThan(order.TargetQty) {
			return fmt.Errorf("%w: done qty exceeds target %s", ErrValidation, order.TargetQty)
		}
		return tx.SetOperationDone(ctx, operationID, doneQty)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "production:PROGRESS", orderID, map[string]any{"operation_id": operationID, "done": doneQty.String()})
	return nil
}

// Complete finishes an in-progress order once every step has reached the
// target quantity.
func (s *Service) Complete(ctx context.Context, id int64, actorID int64) (Order, error) {
	ops, err := s.repo.ListOperations(ctx, id)
	if err != nil {
		return Order{}, err
	}
	var order Order
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		loaded, err := tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if loaded.Status != StatusInProgress {
			return fmt.Errorf("%w: %s is %s", ErrInvalidState, loaded.Number, loaded.Status)
		}
		for _, op := range ops {
			if op.DoneQty.LessThan(loaded.TargetQty) {
				return fmt.Errorf("%w: %s step at %s of %s", ErrInvalidState, op.Kind, op.DoneQty, loaded.TargetQty)
			}
		}
		if err := tx.UpdateOrderStatus(ctx, id, StatusCompleted); err != nil {
			return err
		}
		loaded.Status = StatusCompleted
		order = loaded
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	s.recordAudit(ctx, actorID, "production:COMPLETE", order.ID, map[string]any{"number": order.Number})
	return order, nil
}

// Cancel abandons an order that has not completed.
func (s *Service) Cancel(ctx context.Context, id int64, actorID int64) (Order, error) {
	return s.transition(ctx, id, actorID, "production:CANCEL", StatusCancelled, StatusPlanned, StatusReleased, StatusInProgress)
}

func (s *Service) transition(ctx context.Context, id, actorID int64, action string, to Status, from ...Status) (Order, error) {
	var order Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		loaded, err := tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		allowed := false
		for _, status := range from {
			if loaded.Status == status {
				allowed = true
				break
			}
		}
		if !allowed {
			return fmt.Errorf("%w: %s is %s", ErrInvalidState, loaded.Number, loaded.Status)
		}
		if err := tx.UpdateOrderStatus(ctx, id, to); err != nil {
			return err
		}
		loaded.Status = to
		order = loaded
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	s.recordAudit(ctx, actorID, action, order.ID, map[string]any{"number": order.Number})
	return order, nil
}

// Get loads one order with its operations.
func (s *Service) Get(ctx context.Context, id int64) (Order, []Operation, error) {
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return Order{}, nil, err
	}
	ops, err := s.repo.ListOperations(ctx, id)
	if err != nil {
		return Order{}, nil, err
	}
	return order, ops, nil
}

// Schedule lists orders by planned start.
func (s *Service) Schedule(ctx context.Context, openOnly bool, limit int) ([]Order, error) {
	return s.repo.Schedule(ctx, openOnly, limit)
}

// ShortageReport compares open-order material requirements against ledger
// availability and reports every material that falls short.
func (s *Service) ShortageReport(ctx context.Context) ([]Shortage, error) {
	orders, err := s.repo.Schedule(ctx, true, 0)
	if err != nil {
		return nil, err
	}
	required := make(map[int64]decimal.Decimal)
	for _, order := range orders {
		requirements, err := s.boms.Requirements(ctx, order.BOMID, order.TargetQty)
		if err != nil {
			return nil, fmt.Errorf("production: requirements for order %s: %w", order.Number, err)
		}
		for _, req := range requirements {
			required[req.MaterialID] = required[req.MaterialID].Add(req.Qty)
		}
	}

	materialIDs := make([]int64, 0, len(required))
	for materialID := range required {
		materialIDs = append(materialIDs, materialID)
	}
	sort.Slice(materialIDs, func(i, j int) bool { return materialIDs[i] < materialIDs[j] })

	var shortages []Shortage
	for _, materialID := range materialIDs {
		available, err := s.inventory.AvailableQty(ctx, materialID)
		if err != nil {
			return nil, err
		}
		if available.GreaterThanOrEqual(required[materialID]) {
			continue
		}
		shortages = append(shortages, Shortage{
			MaterialID: materialID,
			Required:   required[materialID],
			Available:  available,
			Missing:    required[materialID].Sub(available),
		})
	}
	return shortages, nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "production_order", EntityID: fmt.Sprintf("%d", id), Meta: meta})
}

func generateNumber(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}
