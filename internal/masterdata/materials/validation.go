package materials

import (
	"fmt"
	"strings"

	"github.com/stitchline-erp/stitchline-erp/internal/masterdata/shared"
)

func (s *Service) validate(m Material) error {
	if strings.TrimSpace(m.Code) == "" {
		return fmt.Errorf("%w: material code", shared.ErrRequiredField)
	}
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("%w: material name", shared.ErrRequiredField)
	}
	if strings.TrimSpace(m.Unit) == "" {
		return fmt.Errorf("%w: unit of measure", shared.ErrRequiredField)
	}
	if m.CostPerUnit.Valid && m.CostPerUnit.Decimal.IsNegative() {
		return fmt.Errorf("%w: cost per unit must be >= 0", shared.ErrValidation)
	}
	return nil
}
