package procurement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/stitchline-erp/stitchline-erp/internal/inventory"
	"github.com/stitchline-erp/stitchline-erp/internal/shared"
)

type memoryRepo struct {
	nextID        int64
	pos           map[int64]*PurchaseOrder
	poLines       map[int64][]POLine
	grns          map[int64]*GoodsReceipt
	grnLine       map[int64][]GRNLine
	failGRNStatus int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		nextID:  1,
		pos:     map[int64]*PurchaseOrder{},
		poLines: map[int64][]POLine{},
		grns:    map[int64]*GoodsReceipt{},
		grnLine: map[int64][]GRNLine{},
	}
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, m)
}

func (m *memoryRepo) GetPO(_ context.Context, id int64) (PurchaseOrder, []POLine, error) {
	po, ok := m.pos[id]
	if !ok {
		return PurchaseOrder{}, nil, ErrNotFound
	}
	return *po, m.poLines[id], nil
}

func (m *memoryRepo) ListPOs(_ context.Context, _ int) ([]PurchaseOrder, error) {
	var out []PurchaseOrder
	for _, po := range m.pos {
		out = append(out, *po)
	}
	return out, nil
}

func (m *memoryRepo) GetGRN(_ context.Context, id int64) (GoodsReceipt, []GRNLine, error) {
	grn, ok := m.grns[id]
	if !ok {
		return GoodsReceipt{}, nil, ErrNotFound
	}
	return *grn, m.grnLine[id], nil
}

func (m *memoryRepo) CreatePO(_ context.Context, po PurchaseOrder) (int64, error) {
	po.ID = m.nextID
	m.nextID++
	m.pos[po.ID] = &po
	return po.ID, nil
}

func (m *memoryRepo) InsertPOLine(_ context.Context, line POLine) error {
	line.ID = m.nextID
	m.nextID++
	m.poLines[line.POID] = append(m.poLines[line.POID], line)
	return nil
}

func (m *memoryRepo) UpdatePOStatus(_ context.Context, id int64, status POStatus) error {
	po, ok := m.pos[id]
	if !ok {
		return ErrNotFound
	}
	po.Status = status
	return nil
}

func (m *memoryRepo) SetPOApproval(_ context.Context, id int64, actorID int64, at time.Time) error {
	po, ok := m.pos[id]
	if !ok {
		return ErrNotFound
	}
	po.ApprovedBy = actorID
	po.ApprovedAt = &at
	return nil
}

func (m *memoryRepo) CreateGRN(_ context.Context, grn GoodsReceipt) (int64, error) {
	grn.ID = m.nextID
	m.nextID++
	m.grns[grn.ID] = &grn
	return grn.ID, nil
}

func (m *memoryRepo) InsertGRNLine(_ context.Context, line GRNLine) error {
	line.ID = m.nextID
	m.nextID++
	m.grnLine[line.GRNID] = append(m.grnLine[line.GRNID], line)
	return nil
}

func (m *memoryRepo) UpdateGRNStatus(_ context.Context, id int64, status GRNStatus) error {
	if m.failGRNStatus > 0 {
		m.failGRNStatus--
		return errors.New("procurement: connection reset")
	}
	grn, ok := m.grns[id]
	if !ok {
		return ErrNotFound
	}
	grn.Status = status
	return nil
}

// fakeLedger books receipt batches all-or-nothing like the real ledger.
type fakeLedger struct {
	received []inventory.ReceiptInput
	fail     error
}

func (f *fakeLedger) ReceiveMany(_ context.Context, inputs []inventory.ReceiptInput) ([]inventory.Layer, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	layers := make([]inventory.Layer, 0, len(inputs))
	for _, input := range inputs {
		f.received = append(f.received, input)
		layers = append(layers, inventory.Layer{ID: int64(len(f.received)), MaterialID: input.MaterialID, QtyAvail: input.Qty, UnitCost: input.UnitCost})
	}
	return layers, nil
}

type fakeIdemStore struct {
	keys map[string]bool
}

func newFakeIdemStore() *fakeIdemStore {
	return &fakeIdemStore{keys: map[string]bool{}}
}

func (f *fakeIdemStore) CheckAndInsert(_ context.Context, key, _ string) error {
	if f.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	f.keys[key] = true
	return nil
}

func (f *fakeIdemStore) Delete(_ context.Context, key string) error {
	delete(f.keys, key)
	return nil
}

func approvedPO(t *testing.T, svc *Service) PurchaseOrder {
	t.Helper()
	po, err := svc.CreatePurchaseOrder(context.Background(), CreatePOInput{
		Supplier: "Meridian Textiles",
		Lines: []POLineInput{
			{MaterialID: 5, Qty: decimal.RequireFromString("100"), Price: decimal.RequireFromString("2.50")},
			{MaterialID: 6, Qty: decimal.RequireFromString("40"), Price: decimal.RequireFromString("0.10")},
		},
	})
	require.NoError(t, err)
	require.NoError(t, svc.SubmitPurchaseOrder(context.Background(), po.ID, 1))
	require.NoError(t, svc.ApprovePurchaseOrder(context.Background(), po.ID, 2))
	return po
}

func TestPurchaseOrderLifecycle(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, &fakeLedger{}, nil, nil)

	po, err := svc.CreatePurchaseOrder(context.Background(), CreatePOInput{
		Supplier: "Meridian Textiles",
		Lines:    []POLineInput{{MaterialID: 5, Qty: decimal.NewFromInt(10), Price: decimal.RequireFromString("2.50")}},
	})
	require.NoError(t, err)
	require.Equal(t, POStatusDraft, po.Status)
	require.NotEmpty(t, po.Number)

	// Approve straight from draft is not allowed.
	require.ErrorIs(t, svc.ApprovePurchaseOrder(context.Background(), po.ID, 2), ErrInvalidState)

	require.NoError(t, svc.SubmitPurchaseOrder(context.Background(), po.ID, 1))
	require.NoError(t, svc.ApprovePurchaseOrder(context.Background(), po.ID, 2))

	stored, _, err := svc.GetPurchaseOrder(context.Background(), po.ID)
	require.NoError(t, err)
	require.Equal(t, POStatusApproved, stored.Status)
	require.Equal(t, int64(2), stored.ApprovedBy)
	require.NotNil(t, stored.ApprovedAt)

	require.NoError(t, svc.ClosePurchaseOrder(context.Background(), po.ID, 1))
	require.ErrorIs(t, svc.CancelPurchaseOrder(context.Background(), po.ID, 1), ErrInvalidState)
}

func TestCreatePurchaseOrderValidation(t *testing.T) {
	svc := NewService(newMemoryRepo(), &fakeLedger{}, nil, nil)

	_, err := svc.CreatePurchaseOrder(context.Background(), CreatePOInput{Supplier: "X"})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.CreatePurchaseOrder(context.Background(), CreatePOInput{
		Supplier: "X",
		Lines:    []POLineInput{{MaterialID: 5, Qty: decimal.Zero}},
	})
	require.ErrorIs(t, err, ErrValidation)
}

func TestGoodsReceiptRequiresApprovedPO(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, &fakeLedger{}, nil, nil)

	po, err := svc.CreatePurchaseOrder(context.Background(), CreatePOInput{
		Supplier: "Meridian Textiles",
		Lines:    []POLineInput{{MaterialID: 5, Qty: decimal.NewFromInt(10), Price: decimal.RequireFromString("2.50")}},
	})
	require.NoError(t, err)

	_, err = svc.CreateGoodsReceipt(context.Background(), CreateGRNInput{
		POID:  po.ID,
		Lines: []GRNLineInput{{MaterialID: 5, Qty: decimal.NewFromInt(10), UnitCost: decimal.RequireFromString("2.50")}},
	})
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestGoodsReceiptRejectsMaterialNotOnPO(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, &fakeLedger{}, nil, nil)
	po := approvedPO(t, svc)

	_, err := svc.CreateGoodsReceipt(context.Background(), CreateGRNInput{
		POID:  po.ID,
		Lines: []GRNLineInput{{MaterialID: 99, Qty: decimal.NewFromInt(1), UnitCost: decimal.NewFromInt(1)}},
	})
	require.ErrorIs(t, err, ErrValidation)
}

func TestPostGoodsReceiptCreatesOneLayerPerLine(t *testing.T) {
	repo := newMemoryRepo()
	ledger := &fakeLedger{}
	svc := NewService(repo, ledger, nil, nil)
	po := approvedPO(t, svc)

	grn, err := svc.CreateGoodsReceipt(context.Background(), CreateGRNInput{
		POID: po.ID,
		Lines: []GRNLineInput{
			{MaterialID: 5, Qty: decimal.RequireFromString("100"), UnitCost: decimal.RequireFromString("2.50")},
			{MaterialID: 6, Qty: decimal.RequireFromString("40"), UnitCost: decimal.RequireFromString("0.10")},
		},
	})
	require.NoError(t, err)
	require.Equal(t, GRNStatusDraft, grn.Status)

	require.NoError(t, svc.PostGoodsReceipt(context.Background(), grn.ID, 1))
	require.Len(t, ledger.received, 2)
	require.Equal(t, "PROCUREMENT", ledger.received[0].RefModule)
	require.True(t, ledger.received[0].Qty.Equal(decimal.RequireFromString("100")))

	stored, _, err := svc.GetGoodsReceipt(context.Background(), grn.ID)
	require.NoError(t, err)
	require.Equal(t, GRNStatusPosted, stored.Status)

	// Second posting is a state error before the ledger is touched.
	require.ErrorIs(t, svc.PostGoodsReceipt(context.Background(), grn.ID, 1), ErrInvalidState)
	require.Len(t, ledger.received, 2)
}

func TestPostGoodsReceiptFailedBatchLeavesNoLayers(t *testing.T) {
	repo := newMemoryRepo()
	ledger := &fakeLedger{fail: errors.New("inventory: connection reset")}
	idem := newFakeIdemStore()
	svc := NewService(repo, ledger, nil, idem)
	po := approvedPO(t, svc)

	grn, err := svc.CreateGoodsReceipt(context.Background(), CreateGRNInput{
		POID: po.ID,
		Lines: []GRNLineInput{
			{MaterialID: 5, Qty: decimal.RequireFromString("100"), UnitCost: decimal.RequireFromString("2.50")},
			{MaterialID: 6, Qty: decimal.RequireFromString("40"), UnitCost: decimal.RequireFromString("0.10")},
		},
	})
	require.NoError(t, err)

	require.Error(t, svc.PostGoodsReceipt(context.Background(), grn.ID, 1))

	// No stock landed, the GRN is still draft and the key was released, so a
	// corrected retry can post the same number.
	require.Empty(t, ledger.received)
	require.Empty(t, idem.keys)
	stored, _, err := svc.GetGoodsReceipt(context.Background(), grn.ID)
	require.NoError(t, err)
	require.Equal(t, GRNStatusDraft, stored.Status)

	ledger.fail = nil
	require.NoError(t, svc.PostGoodsReceipt(context.Background(), grn.ID, 1))
	require.Len(t, ledger.received, 2)
}

func TestPostGoodsReceiptRetryAfterStatusWriteFailureDoesNotBookTwice(t *testing.T) {
	repo := newMemoryRepo()
	ledger := &fakeLedger{}
	idem := newFakeIdemStore()
	svc := NewService(repo, ledger, nil, idem)
	po := approvedPO(t, svc)

	grn, err := svc.CreateGoodsReceipt(context.Background(), CreateGRNInput{
		POID:  po.ID,
		Lines: []GRNLineInput{{MaterialID: 5, Qty: decimal.RequireFromString("100"), UnitCost: decimal.RequireFromString("2.50")}},
	})
	require.NoError(t, err)

	repo.failGRNStatus = 1
	require.Error(t, svc.PostGoodsReceipt(context.Background(), grn.ID, 1))
	require.Len(t, ledger.received, 1)

	// The layers have committed but the GRN is still draft. A retry must
	// refuse rather than book the same stock a second time.
	err = svc.PostGoodsReceipt(context.Background(), grn.ID, 1)
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	require.Len(t, ledger.received, 1)
}

func TestCancelGoodsReceipt(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, &fakeLedger{}, nil, nil)
	po := approvedPO(t, svc)

	grn, err := svc.CreateGoodsReceipt(context.Background(), CreateGRNInput{
		POID:  po.ID,
		Lines: []GRNLineInput{{MaterialID: 5, Qty: decimal.NewFromInt(1), UnitCost: decimal.NewFromInt(2)}},
	})
	require.NoError(t, err)
	require.NoError(t, svc.CancelGoodsReceipt(context.Background(), grn.ID, 1))
	require.ErrorIs(t, svc.PostGoodsReceipt(context.Background(), grn.ID, 1), ErrInvalidState)
}
