package issue

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a goods issue.
type Status string

const (
	// StatusPending means the issue is created but has not touched inventory.
	StatusPending Status = "PENDING"
	// StatusIssued means inventory was consumed. Terminal.
	StatusIssued Status = "ISSUED"
	// StatusCancelled means the issue was abandoned without inventory effect. Terminal.
	StatusCancelled Status = "CANCELLED"
)

// Issue is a goods issue document. Lines carry no unit cost until posting,
// when the FIFO weighted average is written back per line.
type Issue struct {
	ID                int64      `json:"id"`
	Number            string     `json:"number"`
	Status            Status     `json:"status"`
	ProductionOrderID int64      `json:"production_order_id,omitempty"`
	Note              string     `json:"note,omitempty"`
	PostedAt          *time.Time `json:"posted_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	Lines             []Line     `json:"lines,omitempty"`
}

// Line is one material demand on an issue.
type Line struct {
	ID         int64               `json:"id"`
	IssueID    int64               `json:"issue_id"`
	MaterialID int64               `json:"material_id"`
	Qty        decimal.Decimal     `json:"qty"`
	UnitCost   decimal.NullDecimal `json:"unit_cost,omitempty"`
}

var (
	// ErrNotFound indicates a missing issue.
	ErrNotFound = errors.New("issue: not found")
	// ErrIssueState indicates an operation against a non-pending issue.
	ErrIssueState = errors.New("issue: not in pending state")
	// ErrInvalidLine indicates a malformed issue line.
	ErrInvalidLine = errors.New("issue: invalid line")
)
