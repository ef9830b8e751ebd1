package bom

import (
	"bytes"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// RequirementExporter renders material requirement sheets as XLSX for the
// purchasing team.
type RequirementExporter struct{}

// NewRequirementExporter constructs the exporter.
func NewRequirementExporter() *RequirementExporter {
	return &RequirementExporter{}
}

// Export renders one sheet with a requirement row per material.
func (e *RequirementExporter) Export(header Header, targetQty decimal.Decimal, reqs []Requirement) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())

	title := []interface{}{
		fmt.Sprintf("%s %s", header.Name, header.Version),
		fmt.Sprintf("target %s %s", targetQty.String(), header.OutputUnit),
	}
	if err := f.SetSheetRow(sheet, "A1", &title); err != nil {
		return nil, fmt.Errorf("bom: export title: %w", err)
	}

	columns := []interface{}{
		"material_id",
		"material_code",
		"material_name",
		"unit",
		"required_qty",
		"estimated_cost",
	}
	if err := f.SetSheetRow(sheet, "A3", &columns); err != nil {
		return nil, fmt.Errorf("bom: export header: %w", err)
	}

	row := 4
	for _, req := range reqs {
		values := []interface{}{
			req.MaterialID,
			req.MaterialCode,
			req.MaterialName,
			req.Unit,
			req.Qty.String(),
			req.Cost.String(),
		}
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return nil, fmt.Errorf("bom: export cell: %w", err)
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return nil, fmt.Errorf("bom: export row: %w", err)
		}
		row++
	}

	buf := &bytes.Buffer{}
	if err := f.Write(buf); err != nil {
		return nil, fmt.Errorf("bom: export write: %w", err)
	}
	return buf.Bytes(), nil
}
