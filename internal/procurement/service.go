package procurement

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stitchline-erp/stitchline-erp/internal/inventory"
	"github.com/stitchline-erp/stitchline-erp/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetPO(ctx context.Context, id int64) (PurchaseOrder, []POLine, error)
	ListPOs(ctx context.Context, limit int) ([]PurchaseOrder, error)
	GetGRN(ctx context.Context, id int64) (GoodsReceipt, []GRNLine, error)
}

// InventoryPort exposes required ledger integration. Every posted GRN line
// becomes exactly one layer, and a receipt batch lands atomically.
type InventoryPort interface {
	ReceiveMany(ctx context.Context, inputs []inventory.ReceiptInput) ([]inventory.Layer, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards at-most-once posting per GRN number.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Service orchestrates procurement flows.
type Service struct {
	repo        RepositoryPort
	inventory   InventoryPort
	audit       AuditPort
	idempotency IdempotencyPort
}

// NewService constructs procurement service.
func NewService(repo RepositoryPort, inv InventoryPort, audit AuditPort, idem IdempotencyPort) *Service {
	return &Service{repo: repo, inventory: inv, audit: audit, idempotency: idem}
}

// CreatePOInput defines data to create a purchase order.
type CreatePOInput struct {
	Number       string
	Supplier     string
	Currency     string
	ExpectedDate time.Time
	Note         string
	Lines        []POLineInput
}

// POLineInput describes an ordered material.
type POLineInput struct {
	MaterialID int64
	Qty        decimal.Decimal
	Price      decimal.Decimal
	Note       string
}

// CreateGRNInput describes GRN creation.
type CreateGRNInput struct {
	POID       int64
	Number     string
	ReceivedAt time.Time
	Note       string
	Lines      []GRNLineInput
}

// GRNLineInput for GRN.
type GRNLineInput struct {
	MaterialID int64
	Qty        decimal.Decimal
	UnitCost   decimal.Decimal
}

// CreatePurchaseOrder persists PO header and lines as draft.
func (s *Service) CreatePurchaseOrder(ctx context.Context, input CreatePOInput) (PurchaseOrder, error) {
	if len(input.Lines) == 0 {
		return PurchaseOrder{}, fmt.Errorf("%w: minimal 1 line", ErrValidation)
	}
	if input.Supplier == "" {
		return PurchaseOrder{}, fmt.Errorf("%w: supplier required", ErrValidation)
	}
	if input.Number == "" {
		input.Number = generateNumber("PO")
	}
	po := PurchaseOrder{
		Number:       input.Number,
		Supplier:     input.Supplier,
		Status:       POStatusDraft,
		Currency:     defaultString(input.Currency, "USD"),
		ExpectedDate: defaultTime(input.ExpectedDate),
		Note:         input.Note,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		poID, err := tx.CreatePO(ctx, po)
		if err != nil {
			return err
		}
		po.ID = poID
		for _, line := range input.Lines {
			if line.MaterialID <= 0 || !line.Qty.IsPositive() {
				return fmt.Errorf("%w: material and positive qty required", ErrValidation)
			}
			if line.Price.IsNegative() {
				return fmt.Errorf("%w: price must be >= 0", ErrValidation)
			}
			if err := tx.InsertPOLine(ctx, POLine{POID: poID, MaterialID: line.MaterialID, Qty: line.Qty, Price: line.Price, Note: line.Note}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.recordAudit(ctx, "PO_CREATE", po.ID, map[string]any{"number": po.Number})
	return po, nil
}

// SubmitPurchaseOrder requests approval.
func (s *Service) SubmitPurchaseOrder(ctx context.Context, poID int64, actorID int64) error {
	po, _, err := s.repo.GetPO(ctx, poID)
	if err != nil {
		return err
	}
	if po.Status != POStatusDraft {
		return ErrInvalidState
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdatePOStatus(ctx, poID, POStatusApproval)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, "PO_SUBMIT", poID, map[string]any{"number": po.Number, "actor": actorID})
	return nil
}

// ApprovePurchaseOrder marks PO as approved.
func (s *Service) ApprovePurchaseOrder(ctx context.Context, poID int64, actorID int64) error {
	po, _, err := s.repo.GetPO(ctx, poID)
	if err != nil {
		return err
	}
	if po.Status != POStatusApproval {
		return ErrInvalidState
	}
	now := time.Now().UTC()
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdatePOStatus(ctx, poID, POStatusApproved); err != nil {
			return err
		}
		return tx.SetPOApproval(ctx, poID, actorID, now)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, "PO_APPROVE", poID, map[string]any{"number": po.Number, "actor": actorID})
	return nil
}

// ClosePurchaseOrder ends an approved PO.
func (s *Service) ClosePurchaseOrder(ctx context.Context, poID int64, actorID int64) error {
	return s.transitionPO(ctx, poID, actorID, "PO_CLOSE", POStatusClosed, POStatusApproved)
}

// CancelPurchaseOrder abandons a PO that has not been approved yet.
func (s *Service) CancelPurchaseOrder(ctx context.Context, poID int64, actorID int64) error {
	return s.transitionPO(ctx, poID, actorID, "PO_CANCEL", POStatusCancelled, POStatusDraft, POStatusApproval)
}

func (s *Service) transitionPO(ctx context.Context, poID, actorID int64, action string, to POStatus, from ...POStatus) error {
	po, _, err := s.repo.GetPO(ctx, poID)
	if err != nil {
		return err
	}
	allowed := false
	for _, status := range from {
		if po.Status == status {
			allowed = true
			break
		}
	}
	if !allowed {
		return ErrInvalidState
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdatePOStatus(ctx, poID, to)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, action, poID, map[string]any{"number": po.Number, "actor": actorID})
	return nil
}

// GetPurchaseOrder loads one PO with lines.
func (s *Service) GetPurchaseOrder(ctx context.Context, poID int64) (PurchaseOrder, []POLine, error) {
	return s.repo.GetPO(ctx, poID)
}

// ListPurchaseOrders returns POs newest first.
func (s *Service) ListPurchaseOrders(ctx context.Context, limit int) ([]PurchaseOrder, error) {
	return s.repo.ListPOs(ctx, limit)
}

// CreateGoodsReceipt inserts a draft GRN against an approved PO. Every line
// must reference a material ordered on that PO.
func (s *Service) CreateGoodsReceipt(ctx context.Context, input CreateGRNInput) (GoodsReceipt, error) {
	if len(input.Lines) == 0 {
		return GoodsReceipt{}, fmt.Errorf("%w: minimal 1 line", ErrValidation)
	}
	po, poLines, err := s.repo.GetPO(ctx, input.POID)
	if err != nil {
		return GoodsReceipt{}, err
	}
	if po.Status != POStatusApproved {
		return GoodsReceipt{}, ErrInvalidState
	}
	ordered := make(map[int64]bool, len(poLines))
	for _, line := range poLines {
		ordered[line.MaterialID] = true
	}
	if input.Number == "" {
		input.Number = generateNumber("GRN")
	}
	grn := GoodsReceipt{
		Number:     input.Number,
		POID:       input.POID,
		Status:     GRNStatusDraft,
		ReceivedAt: defaultTime(input.ReceivedAt),
		Note:       input.Note,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		grnID, err := tx.CreateGRN(ctx, grn)
		if err != nil {
			return err
		}
		grn.ID = grnID
		for _, line := range input.Lines {
			if line.MaterialID <= 0 || !line.Qty.IsPositive() {
				return fmt.Errorf("%w: material and positive qty required", ErrValidation)
			}
			if line.UnitCost.IsNegative() {
				return fmt.Errorf("%w: unit cost must be >= 0", ErrValidation)
			}
			if !ordered[line.MaterialID] {
				return fmt.Errorf("%w: material %d not on PO %s", ErrValidation, line.MaterialID, po.Number)
			}
			if err := tx.InsertGRNLine(ctx, GRNLine{GRNID: grnID, MaterialID: line.MaterialID, Qty: line.Qty, UnitCost: line.UnitCost}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return GoodsReceipt{}, err
	}
	s.recordAudit(ctx, "GRN_CREATE", grn.ID, map[string]any{"number": grn.Number, "po": po.Number})
	return grn, nil
}

// PostGoodsReceipt posts a draft GRN: every line becomes one ledger layer in
// a single receipt batch, then the GRN is marked POSTED. The idempotency key
// keeps a GRN number from landing twice. The key is released only when the
// receipt batch itself failed, which means no layer was created. Once the
// layers have committed the key must survive, or a retry would book the same
// stock a second time. A posting that died after the layers landed surfaces
// as a duplicate and needs operator reconciliation.
func (s *Service) PostGoodsReceipt(ctx context.Context, grnID int64, actorID int64) error {
	grn, lines, err := s.repo.GetGRN(ctx, grnID)
	if err != nil {
		return err
	}
	if grn.Status != GRNStatusDraft {
		return ErrInvalidState
	}
	key := fmt.Sprintf("GRN:%s", grn.Number)
	inserted := false
	if s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, key, "procurement.grn"); err != nil {
			return err
		}
		inserted = true
	}

	receipts := make([]inventory.ReceiptInput, 0, len(lines))
	for _, line := range lines {
		refID := uuid.NewSHA1(uuid.Nil, []byte(fmt.Sprintf("GRN:%d:%d", grn.ID, line.ID)))
		receipts = append(receipts, inventory.ReceiptInput{
			MaterialID: line.MaterialID,
			Qty:        line.Qty,
			UnitCost:   line.UnitCost,
			RefModule:  "PROCUREMENT",
			RefID:      refID.String(),
			Note:       fmt.Sprintf("GRN %s", grn.Number),
			ActorID:    actorID,
		})
	}
	if _, err := s.inventory.ReceiveMany(ctx, receipts); err != nil {
		// No layer landed, so the number may be retried after correction.
		if inserted {
			_ = s.idempotency.Delete(ctx, key)
		}
		return err
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateGRNStatus(ctx, grnID, GRNStatusPosted)
	})
	if err != nil {
		// The layers have committed; the key stays so a retry cannot book
		// the same stock twice for this GRN.
		return err
	}
	s.recordAudit(ctx, "GRN_POST", grnID, map[string]any{"number": grn.Number})
	return nil
}

// CancelGoodsReceipt abandons a draft GRN.
func (s *Service) CancelGoodsReceipt(ctx context.Context, grnID int64, actorID int64) error {
	grn, _, err := s.repo.GetGRN(ctx, grnID)
	if err != nil {
		return err
	}
	if grn.Status != GRNStatusDraft {
		return ErrInvalidState
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateGRNStatus(ctx, grnID, GRNStatusCancelled)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, "GRN_CANCEL", grnID, map[string]any{"number": grn.Number, "actor": actorID})
	return nil
}

// GetGoodsReceipt loads one GRN with lines.
func (s *Service) GetGoodsReceipt(ctx context.Context, grnID int64) (GoodsReceipt, []GRNLine, error) {
	return s.repo.GetGRN(ctx, grnID)
}

func (s *Service) recordAudit(ctx context.Context, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{Action: action, Entity: "procurement", EntityID: fmt.Sprintf("%d", entityID), Meta: meta})
}

func generateNumber(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}

func defaultString(value string, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func defaultTime(value time.Time) time.Time {
	if value.IsZero() {
		return time.Now().UTC()
	}
	return value
}
