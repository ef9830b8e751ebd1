package inventory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/stitchline-erp/stitchline-erp/internal/shared"
)

type memoryRepo struct {
	nextID      int64
	layers      []Layer
	movements   []Movement
	failLayerAt int
	layerCalls  int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{nextID: 1}
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	backupLayers := make([]Layer, len(m.layers))
	copy(backupLayers, m.layers)
	backupMovements := make([]Movement, len(m.movements))
	copy(backupMovements, m.movements)
	backupID := m.nextID
	if err := fn(ctx, m); err != nil {
		m.layers = backupLayers
		m.movements = backupMovements
		m.nextID = backupID
		return err
	}
	return nil
}

func (m *memoryRepo) AvailableQty(_ context.Context, materialID int64) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, layer := range m.layers {
		if layer.MaterialID == materialID {
			total = total.Add(layer.QtyAvail)
		}
	}
	return total, nil
}

func (m *memoryRepo) ListLayers(_ context.Context, materialID int64, includeEmpty bool) ([]Layer, error) {
	var out []Layer
	for _, layer := range m.layers {
		if layer.MaterialID != materialID {
			continue
		}
		if !includeEmpty && !layer.QtyAvail.IsPositive() {
			continue
		}
		out = append(out, layer)
	}
	return out, nil
}

func (m *memoryRepo) LayersForUpdate(ctx context.Context, materialID int64) ([]Layer, error) {
	return m.ListLayers(ctx, materialID, false)
}

func (m *memoryRepo) InsertLayer(_ context.Context, layer Layer) (int64, error) {
	m.layerCalls++
	if m.failLayerAt != 0 && m.layerCalls == m.failLayerAt {
		return 0, errors.New("inventory: connection reset")
	}
	layer.ID = m.nextID
	m.nextID++
	m.layers = append(m.layers, layer)
	return layer.ID, nil
}

func (m *memoryRepo) DecrementLayer(_ context.Context, layerID int64, qty decimal.Decimal) error {
	for i := range m.layers {
		if m.layers[i].ID != layerID {
			continue
		}
		if m.layers[i].QtyAvail.LessThan(qty) {
			return ErrLayerOverdraw
		}
		m.layers[i].QtyAvail = m.layers[i].QtyAvail.Sub(qty)
		return nil
	}
	return ErrLayerOverdraw
}

func (m *memoryRepo) InsertMovement(_ context.Context, movement Movement) error {
	movement.ID = int64(len(m.movements) + 1)
	m.movements = append(m.movements, movement)
	return nil
}

type memoryIdem struct {
	keys map[string]bool
}

func newMemoryIdem() *memoryIdem {
	return &memoryIdem{keys: map[string]bool{}}
}

func (s *memoryIdem) CheckAndInsert(_ context.Context, key, _ string) error {
	if s.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	s.keys[key] = true
	return nil
}

func (s *memoryIdem) Delete(_ context.Context, key string) error {
	delete(s.keys, key)
	return nil
}

type memoryAudit struct {
	logs []shared.AuditLog
}

func (a *memoryAudit) Record(_ context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

func seedLayer(t *testing.T, repo *memoryRepo, materialID int64, qty, cost string, at time.Time) int64 {
	t.Helper()
	q := decimal.RequireFromString(qty)
	id, err := repo.InsertLayer(context.Background(), Layer{
		MaterialID: materialID,
		QtyOnHand:  q,
		QtyAvail:   q,
		UnitCost:   decimal.RequireFromString(cost),
		CreatedAt:  at,
	})
	require.NoError(t, err)
	return id
}

func TestReceiveCreatesLayerAndMovement(t *testing.T) {
	repo := newMemoryRepo()
	audit := &memoryAudit{}
	svc := NewService(repo, audit, nil)

	layer, err := svc.Receive(context.Background(), ReceiptInput{
		MaterialID: 7,
		Qty:        decimal.RequireFromString("12.5"),
		UnitCost:   decimal.RequireFromString("3.20"),
		RefModule:  "PROCUREMENT",
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), layer.ID)
	require.True(t, layer.QtyAvail.Equal(decimal.RequireFromString("12.5")))

	require.Len(t, repo.movements, 1)
	require.Equal(t, MovementReceipt, repo.movements[0].Type)
	require.True(t, repo.movements[0].QtyDelta.Equal(decimal.RequireFromString("12.5")))
	require.Len(t, audit.logs, 1)
	require.Equal(t, "inventory:RECEIPT", audit.logs[0].Action)
}

func TestReceiveRejectsBadInput(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil)

	_, err := svc.Receive(context.Background(), ReceiptInput{MaterialID: 7, Qty: decimal.Zero})
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = svc.Receive(context.Background(), ReceiptInput{
		MaterialID: 7,
		Qty:        decimal.NewFromInt(1),
		UnitCost:   decimal.RequireFromString("-0.01"),
	})
	require.ErrorIs(t, err, ErrInvalidUnitCost)

	_, err = svc.Receive(context.Background(), ReceiptInput{
		MaterialID: 7,
		Qty:        decimal.NewFromInt(1),
		RefID:      "not-a-uuid",
	})
	require.Error(t, err)
}

func TestReceiveManyRollsBackWholeBatch(t *testing.T) {
	repo := newMemoryRepo()
	idem := newMemoryIdem()
	svc := NewService(repo, nil, idem)

	inputs := []ReceiptInput{
		{
			MaterialID: 7,
			Qty:        decimal.RequireFromString("5"),
			UnitCost:   decimal.RequireFromString("2.00"),
			RefModule:  "PROCUREMENT",
			RefID:      "6ba7b810-9dad-11d1-80b4-00c04fd430c8",
		},
		{
			MaterialID: 8,
			Qty:        decimal.RequireFromString("3"),
			UnitCost:   decimal.RequireFromString("4.50"),
			RefModule:  "PROCUREMENT",
			RefID:      "6ba7b811-9dad-11d1-80b4-00c04fd430c8",
		},
	}

	repo.failLayerAt = 2
	_, err := svc.ReceiveMany(context.Background(), inputs)
	require.Error(t, err)

	// The first layer must not survive the failed batch, and the keys must
	// be released so a corrected retry can post.
	require.Empty(t, repo.layers)
	require.Empty(t, repo.movements)
	require.Empty(t, idem.keys)

	repo.failLayerAt = 0
	layers, err := svc.ReceiveMany(context.Background(), inputs)
	require.NoError(t, err)
	require.Len(t, layers, 2)
	require.Len(t, repo.movements, 2)

	_, err = svc.ReceiveMany(context.Background(), inputs)
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
}

func TestConsumeDrainsOldestLayersFirst(t *testing.T) {
	repo := newMemoryRepo()
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	first := seedLayer(t, repo, 7, "5", "2.00", base)
	second := seedLayer(t, repo, 7, "5", "3.00", base.Add(time.Hour))
	svc := NewService(repo, nil, nil)

	result, err := svc.Consume(context.Background(), 7, decimal.RequireFromString("7"), "ISSUE", "")
	require.NoError(t, err)
	require.Len(t, result.Takes, 2)
	require.Equal(t, first, result.Takes[0].LayerID)
	require.Equal(t, second, result.Takes[1].LayerID)

	want := decimal.RequireFromString("16").Div(decimal.RequireFromString("7"))
	require.True(t, result.AverageUnitCost.Equal(want))

	require.True(t, repo.layers[0].QtyAvail.IsZero())
	require.True(t, repo.layers[1].QtyAvail.Equal(decimal.RequireFromString("3")))

	// One ISSUE movement per layer touched.
	require.Len(t, repo.movements, 2)
	require.Equal(t, MovementIssue, repo.movements[0].Type)
	require.True(t, repo.movements[0].QtyDelta.Equal(decimal.RequireFromString("-5")))
}

func TestConsumeIsNotIdempotent(t *testing.T) {
	repo := newMemoryRepo()
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	seedLayer(t, repo, 7, "10", "2.00", base)
	svc := NewService(repo, nil, nil)

	qty := decimal.RequireFromString("3")
	_, err := svc.Consume(context.Background(), 7, qty, "ISSUE", "")
	require.NoError(t, err)
	_, err = svc.Consume(context.Background(), 7, qty, "ISSUE", "")
	require.NoError(t, err)

	avail, err := svc.AvailableQty(context.Background(), 7)
	require.NoError(t, err)
	require.True(t, avail.Equal(decimal.RequireFromString("4")))
}

func TestConsumeManyRollsBackWhenAnyDemandFails(t *testing.T) {
	repo := newMemoryRepo()
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	seedLayer(t, repo, 7, "10", "2.00", base)
	seedLayer(t, repo, 8, "1", "5.00", base)
	svc := NewService(repo, nil, nil)

	_, err := svc.ConsumeMany(context.Background(), []Demand{
		{MaterialID: 7, Qty: decimal.RequireFromString("4")},
		{MaterialID: 8, Qty: decimal.RequireFromString("2")},
	}, "ISSUE", "")
	require.ErrorIs(t, err, ErrInsufficientStock)

	// Nothing moved, including the demand that could have been satisfied.
	avail, err := svc.AvailableQty(context.Background(), 7)
	require.NoError(t, err)
	require.True(t, avail.Equal(decimal.RequireFromString("10")))
	require.Empty(t, repo.movements)
}

func TestConsumeManyMergesDuplicateDemands(t *testing.T) {
	repo := newMemoryRepo()
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	seedLayer(t, repo, 7, "10", "2.00", base)
	svc := NewService(repo, nil, nil)

	results, err := svc.ConsumeMany(context.Background(), []Demand{
		{MaterialID: 7, Qty: decimal.RequireFromString("2")},
		{MaterialID: 7, Qty: decimal.RequireFromString("3")},
	}, "ISSUE", "")
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.True(t, results[0].Qty.Equal(decimal.RequireFromString("5")))

	avail, err := svc.AvailableQty(context.Background(), 7)
	require.NoError(t, err)
	require.True(t, avail.Equal(decimal.RequireFromString("5")))
}
