package bom

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func testHeader(outputQty string) Header {
	return Header{
		ID:         1,
		Name:       "Basic Tee",
		Version:    "v1",
		OutputQty:  decimal.RequireFromString(outputQty),
		OutputUnit: "pcs",
		IsActive:   true,
	}
}

func testMaterials() map[int64]MaterialInfo {
	return map[int64]MaterialInfo{
		10: {
			ID:          10,
			Code:        "FAB-001",
			Name:        "Single jersey 180gsm",
			Unit:        "m",
			CostPerUnit: decimal.NewNullDecimal(decimal.RequireFromString("5.00")),
		},
		20: {
			ID:          20,
			Code:        "THR-002",
			Name:        "Polyester thread",
			Unit:        "cone",
			CostPerUnit: decimal.NewNullDecimal(decimal.RequireFromString("1.50")),
		},
	}
}

func TestExpandAppliesWasteAllowance(t *testing.T) {
	lines := []Line{
		{ID: 1, HeaderID: 1, Position: 1, MaterialID: 10, Qty: decimal.RequireFromString("2"), Unit: "m", WastePercent: decimal.RequireFromString("10")},
	}

	exp, err := Expand(testHeader("1"), lines, testMaterials())
	require.NoError(t, err)
	require.Len(t, exp.Lines, 1)

	line := exp.Lines[0]
	require.True(t, line.EffectiveQty.Equal(decimal.RequireFromString("2.2")), "got %s", line.EffectiveQty)
	require.True(t, line.LineCost.Equal(decimal.RequireFromString("11.00")), "got %s", line.LineCost)
	require.True(t, exp.TotalCost.Equal(decimal.RequireFromString("11.00")))
	require.True(t, exp.CostPerOutputUnit.Equal(decimal.RequireFromString("11.00")))
}

func TestExpandCostsUnpricedMaterialAtZero(t *testing.T) {
	mats := testMaterials()
	info := mats[10]
	info.CostPerUnit = decimal.NullDecimal{}
	mats[10] = info

	lines := []Line{
		{ID: 1, MaterialID: 10, Qty: decimal.RequireFromString("3"), WastePercent: decimal.Zero},
		{ID: 2, MaterialID: 20, Qty: decimal.RequireFromString("1"), WastePercent: decimal.Zero},
	}

	exp, err := Expand(testHeader("1"), lines, mats)
	require.NoError(t, err)
	require.True(t, exp.Lines[0].LineCost.IsZero())
	require.True(t, exp.TotalCost.Equal(decimal.RequireFromString("1.50")))
}

func TestExpandScalesCostPerOutputUnit(t *testing.T) {
	lines := []Line{
		{ID: 1, MaterialID: 10, Qty: decimal.RequireFromString("24"), WastePercent: decimal.RequireFromString("25")},
	}

	exp, err := Expand(testHeader("12"), lines, testMaterials())
	require.NoError(t, err)
	// 24 * 1.25 = 30m at 5.00 for a dozen pieces.
	require.True(t, exp.TotalCost.Equal(decimal.RequireFromString("150.00")))
	require.True(t, exp.CostPerOutputUnit.Equal(decimal.RequireFromString("12.50")))
}

func TestExpandTotalCostInvariantUnderLineOrder(t *testing.T) {
	forward := []Line{
		{ID: 1, Position: 1, MaterialID: 10, Qty: decimal.RequireFromString("2"), WastePercent: decimal.RequireFromString("10")},
		{ID: 2, Position: 2, MaterialID: 20, Qty: decimal.RequireFromString("0.4"), WastePercent: decimal.RequireFromString("5")},
		{ID: 3, Position: 3, MaterialID: 10, Qty: decimal.RequireFromString("0.35"), WastePercent: decimal.Zero},
	}
	reversed := []Line{forward[2], forward[0], forward[1]}

	a, err := Expand(testHeader("12"), forward, testMaterials())
	require.NoError(t, err)
	b, err := Expand(testHeader("12"), reversed, testMaterials())
	require.NoError(t, err)

	require.True(t, a.TotalCost.Equal(b.TotalCost), "got %s and %s", a.TotalCost, b.TotalCost)
	require.True(t, a.CostPerOutputUnit.Equal(b.CostPerOutputUnit))
}

func TestExpandRejectsBadInput(t *testing.T) {
	lines := []Line{{ID: 1, MaterialID: 10, Qty: decimal.RequireFromString("1")}}

	_, err := Expand(testHeader("0"), lines, testMaterials())
	require.ErrorIs(t, err, ErrInvalidBOM)

	lines[0].MaterialID = 999
	_, err = Expand(testHeader("1"), lines, testMaterials())
	require.ErrorIs(t, err, ErrUnresolvedMaterial)
}

func TestConsumptionSpecValidate(t *testing.T) {
	require.NoError(t, GeneralSpec().Validate())
	require.NoError(t, ConsumptionSpec{Kind: ConsumptionBySize, Size: "XL"}.Validate())
	require.Error(t, ConsumptionSpec{Kind: ConsumptionBySize}.Validate())
	require.Error(t, ConsumptionSpec{Kind: ConsumptionByColor}.Validate())
	require.Error(t, ConsumptionSpec{Kind: ConsumptionByCategory}.Validate())
	require.Error(t, ConsumptionSpec{Kind: "BY_MOOD"}.Validate())
}
