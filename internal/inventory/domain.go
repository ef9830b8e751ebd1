package inventory

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Layer is one receipt batch of a material. Layers are created by goods
// receipts and only ever shrink afterwards; available quantity never goes
// below zero.
type Layer struct {
	ID         int64           `json:"id"`
	MaterialID int64           `json:"material_id"`
	QtyOnHand  decimal.Decimal `json:"qty_on_hand"`
	QtyAvail   decimal.Decimal `json:"qty_available"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
	RefID      string          `json:"ref_id,omitempty"`
	Note       string          `json:"note,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// ReceiptInput describes an inbound batch (GRN line or manual receipt).
type ReceiptInput struct {
	MaterialID int64
	Qty        decimal.Decimal
	UnitCost   decimal.Decimal
	RefModule  string
	RefID      string
	Note       string
	ActorID    int64
}

// Demand is one requested withdrawal used by multi-line consumption.
type Demand struct {
	MaterialID int64
	Qty        decimal.Decimal
}

// Take records how much was drawn from a single layer.
type Take struct {
	LayerID  int64           `json:"layer_id"`
	Qty      decimal.Decimal `json:"qty"`
	UnitCost decimal.Decimal `json:"unit_cost"`
}

// Consumption is the result of satisfying one demand FIFO. AverageUnitCost is
// the quantity-weighted average across every layer touched, not the price of
// any single layer.
type Consumption struct {
	MaterialID      int64           `json:"material_id"`
	Qty             decimal.Decimal `json:"qty"`
	AverageUnitCost decimal.Decimal `json:"average_unit_cost"`
	Takes           []Take          `json:"takes"`
}

// MovementType enumerates ledger movements.
type MovementType string

const (
	// MovementReceipt is an inbound layer creation.
	MovementReceipt MovementType = "RECEIPT"
	// MovementIssue is an outbound layer decrement.
	MovementIssue MovementType = "ISSUE"
)

// Movement is an append-only ledger record of a layer change.
type Movement struct {
	ID        int64
	LayerID   int64
	Type      MovementType
	QtyDelta  decimal.Decimal
	UnitCost  decimal.Decimal
	RefModule string
	RefID     string
	At        time.Time
}

var (
	// ErrInvalidQuantity indicates a non-positive quantity.
	ErrInvalidQuantity = errors.New("inventory: quantity must be positive")
	// ErrInvalidUnitCost indicates a negative cost value.
	ErrInvalidUnitCost = errors.New("inventory: unit cost must be >= 0")
	// ErrInsufficientStock is matched by errors.Is against InsufficientStockError.
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
)

// InsufficientStockError reports a demand exceeding available layers. It is
// raised before any layer mutation, so a failed consumption leaves the ledger
// untouched.
type InsufficientStockError struct {
	MaterialID int64
	Available  decimal.Decimal
	Required   decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("inventory: insufficient stock for material %d: available %s, required %s",
		e.MaterialID, e.Available.String(), e.Required.String())
}

// Is makes errors.Is(err, ErrInsufficientStock) match.
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}
