package materials

import (
	"time"

	"github.com/shopspring/decimal"
)

// Material represents a raw material entity (fabric, thread, trims).
type Material struct {
	ID          int64               `json:"id"`
	Code        string              `json:"code"`
	Name        string              `json:"name"`
	Unit        string              `json:"unit"`
	CostPerUnit decimal.NullDecimal `json:"cost_per_unit"`
	IsActive    bool                `json:"is_active"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}
