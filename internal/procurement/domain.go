package procurement

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Purchase order lifecycle statuses.
type POStatus string

const (
	POStatusDraft     POStatus = "DRAFT"
	POStatusApproval  POStatus = "APPROVAL"
	POStatusApproved  POStatus = "APPROVED"
	POStatusClosed    POStatus = "CLOSED"
	POStatusCancelled POStatus = "CANCELLED"
)

// Goods receipt statuses.
type GRNStatus string

const (
	GRNStatusDraft     GRNStatus = "DRAFT"
	GRNStatusPosted    GRNStatus = "POSTED"
	GRNStatusCancelled GRNStatus = "CANCELLED"
)

// PurchaseOrder domain model.
type PurchaseOrder struct {
	ID           int64      `json:"id"`
	Number       string     `json:"number"`
	Supplier     string     `json:"supplier"`
	Status       POStatus   `json:"status"`
	Currency     string     `json:"currency"`
	ExpectedDate time.Time  `json:"expected_date"`
	Note         string     `json:"note,omitempty"`
	ApprovedBy   int64      `json:"approved_by,omitempty"`
	ApprovedAt   *time.Time `json:"approved_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// POLine represents PO lines.
type POLine struct {
	ID         int64           `json:"id"`
	POID       int64           `json:"po_id"`
	MaterialID int64           `json:"material_id"`
	Qty        decimal.Decimal `json:"qty"`
	Price      decimal.Decimal `json:"price"`
	Note       string          `json:"note,omitempty"`
}

// GoodsReceipt domain model.
type GoodsReceipt struct {
	ID         int64     `json:"id"`
	Number     string    `json:"number"`
	POID       int64     `json:"po_id"`
	Status     GRNStatus `json:"status"`
	ReceivedAt time.Time `json:"received_at"`
	Note       string    `json:"note,omitempty"`
}

// GRNLine describes received goods.
type GRNLine struct {
	ID         int64           `json:"id"`
	GRNID      int64           `json:"grn_id"`
	MaterialID int64           `json:"material_id"`
	Qty        decimal.Decimal `json:"qty"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
}

var (
	// ErrInvalidState occurs when action violates status workflow.
	ErrInvalidState = errors.New("procurement: invalid state transition")
	// ErrNotFound indicates record missing.
	ErrNotFound = errors.New("procurement: not found")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("procurement: invalid input")
)
