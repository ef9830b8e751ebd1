package production

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a production order.
type Status string

const (
	StatusPlanned    Status = "PLANNED"
	StatusReleased   Status = "RELEASED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
)

// OperationKind names a manufacturing step.
type OperationKind string

const (
	OperationCut OperationKind = "CUT"
	OperationSew OperationKind = "SEW"
)

// Order is one production run of a BOM's output garment.
type Order struct {
	ID           int64           `json:"id"`
	Number       string          `json:"number"`
	BOMID        int64           `json:"bom_id"`
	TargetQty    decimal.Decimal `json:"target_qty"`
	Status       Status          `json:"status"`
	PlannedStart time.Time       `json:"planned_start"`
	PlannedEnd   time.Time       `json:"planned_end"`
	IssueID      int64           `json:"issue_id,omitempty"`
	Note         string          `json:"note,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Operation is one step of an order with done-quantity progress. DoneQty
// never exceeds the order's target.
type Operation struct {
	ID        int64           `json:"id"`
	OrderID   int64           `json:"order_id"`
	Kind      OperationKind   `json:"kind"`
	Seq       int             `json:"seq"`
	DoneQty   decimal.Decimal `json:"done_qty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Shortage reports one material short of open-order demand.
type Shortage struct {
	MaterialID int64           `json:"material_id"`
	Required   decimal.Decimal `json:"required"`
	Available  decimal.Decimal `json:"available"`
	Missing    decimal.Decimal `json:"missing"`
}

var (
	// ErrNotFound indicates a missing order.
	ErrNotFound = errors.New("production: not found")
	// ErrInvalidState occurs when action violates status workflow.
	ErrInvalidState = errors.New("production: invalid state transition")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("production: invalid input")
)
