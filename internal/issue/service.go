package issue

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stitchline-erp/stitchline-erp/internal/inventory"
	"github.com/stitchline-erp/stitchline-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Issue, error)
	List(ctx context.Context, status Status, limit int) ([]Issue, error)
}

// InventoryPort is the ledger collaborator. ConsumeMany is atomic across the
// whole demand set.
type InventoryPort interface {
	ConsumeMany(ctx context.Context, demands []inventory.Demand, refModule, refID string) ([]inventory.Consumption, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards at-most-once posting per issue number.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Service coordinates goods issue lifecycle.
type Service struct {
	repo        RepositoryPort
	ledger      InventoryPort
	audit       AuditPort
	idempotency IdempotencyPort
}

// NewService builds Service.
func NewService(repo RepositoryPort, ledger InventoryPort, audit AuditPort, idem IdempotencyPort) *Service {
	return &Service{repo: repo, ledger: ledger, audit: audit, idempotency: idem}
}

// LineInput is one requested material line.
type LineInput struct {
	MaterialID int64
	Qty        decimal.Decimal
}

// CreateInput describes a new pending issue.
type CreateInput struct {
	ProductionOrderID int64
	Note              string
	Lines             []LineInput
	ActorID           int64
}

// Create stores a pending issue. Duplicate material lines are merged into one
// line per material, first appearance keeps its position.
func (s *Service) Create(ctx context.Context, input CreateInput) (Issue, error) {
	merged, err := mergeLines(input.Lines)
	if err != nil {
		return Issue{}, err
	}

	iss := Issue{
		Number:            generateNumber("GI"),
		Status:            StatusPending,
		ProductionOrderID: input.ProductionOrderID,
		Note:              input.Note,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertIssue(ctx, iss)
		if err != nil {
			return err
		}
		iss.ID = id
		for _, line := range merged {
			line.IssueID = id
			lineID, err := tx.InsertLine(ctx, line)
			if err != nil {
				return err
			}
			line.ID = lineID
			iss.Lines = append(iss.Lines, line)
		}
		return nil
	})
	if err != nil {
		return Issue{}, err
	}

	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.ActorID,
			Action:   "issue:CREATE",
			Entity:   "issue",
			EntityID: fmt.Sprintf("%d", iss.ID),
			Meta: map[string]any{
				"number": iss.Number,
				"lines":  len(iss.Lines),
			},
		})
	}
	return iss, nil
}

// Get loads one issue with lines.
func (s *Service) Get(ctx context.Context, id int64) (Issue, error) {
	return s.repo.Get(ctx, id)
}

// List returns issues, optionally filtered by status.
func (s *Service) List(ctx context.Context, status Status, limit int) ([]Issue, error) {
	if status != "" && status != StatusPending && status != StatusIssued && status != StatusCancelled {
		return nil, fmt.Errorf("issue: unknown status %q", status)
	}
	return s.repo.List(ctx, status, limit)
}

// Post consumes inventory for every line of a pending issue and marks it
// issued. The ledger consumption is atomic across all lines; a single short
// material fails the whole posting and no layer moves. The idempotency key is
// removed again only when consumption itself failed: once layers have been
// decremented the key must survive, or a retry would consume the same
// demands a second time. A posting that died after consumption surfaces as a
// duplicate and needs operator reconciliation.
func (s *Service) Post(ctx context.Context, id int64, actorID int64) (Issue, error) {
	var iss Issue
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		loaded, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if loaded.Status != StatusPending {
			return fmt.Errorf("%w: %s is %s", ErrIssueState, loaded.Number, loaded.Status)
		}
		if len(loaded.Lines) == 0 {
			return fmt.Errorf("%w: no lines", ErrInvalidLine)
		}
		iss = loaded
		return nil
	})
	if err != nil {
		return Issue{}, err
	}

	insertedKey := false
	key := ""
	if s.idempotency != nil {
		key = fmt.Sprintf("ISSUE:%s", iss.Number)
		if err := s.idempotency.CheckAndInsert(ctx, key, "issue"); err != nil {
			return Issue{}, err
		}
		insertedKey = true
	}

	demands := make([]inventory.Demand, 0, len(iss.Lines))
	for _, line := range iss.Lines {
		demands = append(demands, inventory.Demand{MaterialID: line.MaterialID, Qty: line.Qty})
	}
	consumptions, err := s.ledger.ConsumeMany(ctx, demands, "ISSUE", iss.Number)
	if err != nil {
		// Nothing moved yet, so the number may be retried after correction.
		if insertedKey {
			_ = s.idempotency.Delete(ctx, key)
		}
		return Issue{}, err
	}
	costs := make(map[int64]decimal.Decimal, len(consumptions))
	for _, c := range consumptions {
		costs[c.MaterialID] = c.AverageUnitCost
	}

	now := time.Now().UTC()
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for i := range iss.Lines {
			cost, ok := costs[iss.Lines[i].MaterialID]
			if !ok {
				return fmt.Errorf("issue: missing consumption for material %d", iss.Lines[i].MaterialID)
			}
			if err := tx.SetLineCost(ctx, iss.Lines[i].ID, cost); err != nil {
				return err
			}
			iss.Lines[i].UnitCost = decimal.NullDecimal{Decimal: cost, Valid: true}
		}
		return tx.SetStatus(ctx, iss.ID, StatusIssued, &now)
	})
	if err != nil {
		// Consumption has committed; the key stays so a retry cannot drain
		// the ledger twice for the same issue.
		return Issue{}, err
	}
	iss.Status = StatusIssued
	iss.PostedAt = &now

	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   "issue:POST",
			Entity:   "issue",
			EntityID: fmt.Sprintf("%d", iss.ID),
			Meta: map[string]any{
				"number": iss.Number,
				"lines":  len(iss.Lines),
			},
		})
	}
	return iss, nil
}

// Cancel moves a pending issue to cancelled without touching inventory.
func (s *Service) Cancel(ctx context.Context, id int64, actorID int64) (Issue, error) {
	var iss Issue
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		loaded, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if loaded.Status != StatusPending {
			return fmt.Errorf("%w: %s is %s", ErrIssueState, loaded.Number, loaded.Status)
		}
		iss = loaded
		return tx.SetStatus(ctx, id, StatusCancelled, nil)
	})
	if err != nil {
		return Issue{}, err
	}
	iss.Status = StatusCancelled

	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   "issue:CANCEL",
			Entity:   "issue",
			EntityID: fmt.Sprintf("%d", iss.ID),
			Meta:     map[string]any{"number": iss.Number},
		})
	}
	return iss, nil
}

func mergeLines(lines []LineInput) ([]Line, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: minimal 1 line", ErrInvalidLine)
	}
	index := make(map[int64]int, len(lines))
	merged := make([]Line, 0, len(lines))
	for _, in := range lines {
		if in.MaterialID <= 0 {
			return nil, fmt.Errorf("%w: material required", ErrInvalidLine)
		}
		if !in.Qty.IsPositive() {
			return nil, fmt.Errorf("%w: quantity must be positive", ErrInvalidLine)
		}
		if at, seen := index[in.MaterialID]; seen {
			merged[at].Qty = merged[at].Qty.Add(in.Qty)
			continue
		}
		index[in.MaterialID] = len(merged)
		merged = append(merged, Line{MaterialID: in.MaterialID, Qty: in.Qty})
	}
	return merged, nil
}

func generateNumber(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}
