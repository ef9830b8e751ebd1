package bom

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ConsumptionKind enumerates the supported consumption scopes for a BOM line.
type ConsumptionKind string

const (
	// ConsumptionGeneral applies to every produced unit.
	ConsumptionGeneral ConsumptionKind = "GENERAL"
	// ConsumptionBySize applies only to a garment size.
	ConsumptionBySize ConsumptionKind = "BY_SIZE"
	// ConsumptionByColor applies only to a colorway.
	ConsumptionByColor ConsumptionKind = "BY_COLOR"
	// ConsumptionByCategory applies to a product category.
	ConsumptionByCategory ConsumptionKind = "BY_CATEGORY"
)

// ConsumptionSpec is a tagged variant describing which produced units a line
// applies to. It replaces free-text note parsing with a typed model.
type ConsumptionSpec struct {
	Kind       ConsumptionKind `json:"kind"`
	Size       string          `json:"size,omitempty"`
	Color      string          `json:"color,omitempty"`
	CategoryID int64           `json:"category_id,omitempty"`
}

// GeneralSpec returns the default consumption scope.
func GeneralSpec() ConsumptionSpec {
	return ConsumptionSpec{Kind: ConsumptionGeneral}
}

// Validate checks the variant payload matches its tag.
func (s ConsumptionSpec) Validate() error {
	switch s.Kind {
	case ConsumptionGeneral, "":
		return nil
	case ConsumptionBySize:
		if s.Size == "" {
			return errors.New("bom: consumption spec BY_SIZE requires size")
		}
	case ConsumptionByColor:
		if s.Color == "" {
			return errors.New("bom: consumption spec BY_COLOR requires color")
		}
	case ConsumptionByCategory:
		if s.CategoryID <= 0 {
			return errors.New("bom: consumption spec BY_CATEGORY requires category_id")
		}
	default:
		return errors.New("bom: unknown consumption kind")
	}
	return nil
}

// Header models a bill-of-materials header. OutputQty is the quantity the
// line consumptions are stated against.
type Header struct {
	ID         int64           `json:"id"`
	Name       string          `json:"name"`
	Version    string          `json:"version"`
	OutputQty  decimal.Decimal `json:"output_qty"`
	OutputUnit string          `json:"output_unit"`
	IsActive   bool            `json:"is_active"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Line models a single material consumption on a BOM. Line order is kept for
// display only; all calculations are order independent.
type Line struct {
	ID           int64           `json:"id"`
	HeaderID     int64           `json:"header_id"`
	Position     int             `json:"position"`
	MaterialID   int64           `json:"material_id"`
	Qty          decimal.Decimal `json:"qty"`
	Unit         string          `json:"unit"`
	WastePercent decimal.Decimal `json:"waste_percent"`
	Consumption  ConsumptionSpec `json:"consumption"`
	Note         string          `json:"note"`
}

// EffectiveQty applies the waste allowance: qty * (1 + waste/100).
func (l Line) EffectiveQty() decimal.Decimal {
	factor := decimal.NewFromInt(1).Add(l.WastePercent.Div(decimal.NewFromInt(100)))
	return l.Qty.Mul(factor)
}

// MaterialInfo is the resolved material snapshot used by the expander. An
// unset cost means the material has no price yet and is costed at zero.
type MaterialInfo struct {
	ID          int64
	Code        string
	Name        string
	Unit        string
	CostPerUnit decimal.NullDecimal
}

// MaxWastePercent caps waste allowance. Values above 100 are legitimate for
// pattern-matched fabrics, but anything past this bound is treated as a data
// entry mistake.
var MaxWastePercent = decimal.NewFromInt(1000)

var (
	// ErrInvalidBOM indicates the header output quantity is zero or negative.
	ErrInvalidBOM = errors.New("bom: output quantity must be positive")
	// ErrUnresolvedMaterial indicates a line references a material that cannot be resolved.
	ErrUnresolvedMaterial = errors.New("bom: unresolved material reference")
	// ErrInvalidWaste indicates a waste percentage outside the allowed range.
	ErrInvalidWaste = errors.New("bom: waste percent out of range")
	// ErrInvalidQuantity indicates a non-positive line or target quantity.
	ErrInvalidQuantity = errors.New("bom: quantity must be positive")
	// ErrNotFound indicates record missing.
	ErrNotFound = errors.New("bom: not found")
	// ErrInactive indicates the BOM has been superseded.
	ErrInactive = errors.New("bom: header is inactive")
)
