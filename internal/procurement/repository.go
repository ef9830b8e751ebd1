package procurement

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists procurement documents in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	CreatePO(ctx context.Context, po PurchaseOrder) (int64, error)
	InsertPOLine(ctx context.Context, line POLine) error
	UpdatePOStatus(ctx context.Context, id int64, status POStatus) error
	SetPOApproval(ctx context.Context, id int64, actorID int64, at time.Time) error
	CreateGRN(ctx context.Context, grn GoodsReceipt) (int64, error)
	InsertGRNLine(ctx context.Context, line GRNLine) error
	UpdateGRNStatus(ctx context.Context, id int64, status GRNStatus) error
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("procurement repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &txRepository{tx: tx}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

const poColumns = `id, number, supplier, status, currency, expected_date, note, COALESCE(approved_by, 0), approved_at, created_at, updated_at`

// GetPO loads a purchase order with its lines.
func (r *Repository) GetPO(ctx context.Context, id int64) (PurchaseOrder, []POLine, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+poColumns+` FROM purchase_orders WHERE id=$1`, id)
	po, err := scanPO(row)
	if err != nil {
		return PurchaseOrder{}, nil, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, po_id, material_id, qty, price, note FROM purchase_order_lines WHERE po_id=$1 ORDER BY id ASC`, id)
	if err != nil {
		return PurchaseOrder{}, nil, err
	}
	defer rows.Close()
	var lines []POLine
	for rows.Next() {
		var line POLine
		if err := rows.Scan(&line.ID, &line.POID, &line.MaterialID, &line.Qty, &line.Price, &line.Note); err != nil {
			return PurchaseOrder{}, nil, err
		}
		lines = append(lines, line)
	}
	return po, lines, rows.Err()
}

// ListPOs returns purchase orders newest first.
func (r *Repository) ListPOs(ctx context.Context, limit int) ([]PurchaseOrder, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `SELECT `+poColumns+` FROM purchase_orders ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var pos []PurchaseOrder
	for rows.Next() {
		po, err := scanPO(rows)
		if err != nil {
			return nil, err
		}
		pos = append(pos, po)
	}
	return pos, rows.Err()
}

// GetGRN loads a goods receipt with its lines.
func (r *Repository) GetGRN(ctx context.Context, id int64) (GoodsReceipt, []GRNLine, error) {
	var grn GoodsReceipt
	var status string
	err := r.pool.QueryRow(ctx, `SELECT id, number, po_id, status, received_at, note FROM goods_receipts WHERE id=$1`, id).
		Scan(&grn.ID, &grn.Number, &grn.POID, &status, &grn.ReceivedAt, &grn.Note)
	if errors.Is(err, pgx.ErrNoRows) {
		return GoodsReceipt{}, nil, ErrNotFound
	}
	if err != nil {
		return GoodsReceipt{}, nil, err
	}
	grn.Status = GRNStatus(status)
	rows, err := r.pool.Query(ctx, `SELECT id, grn_id, material_id, qty, unit_cost FROM goods_receipt_lines WHERE grn_id=$1 ORDER BY id ASC`, id)
	if err != nil {
		return GoodsReceipt{}, nil, err
	}
	defer rows.Close()
	var lines []GRNLine
	for rows.Next() {
		var line GRNLine
		if err := rows.Scan(&line.ID, &line.GRNID, &line.MaterialID, &line.Qty, &line.UnitCost); err != nil {
			return GoodsReceipt{}, nil, err
		}
		lines = append(lines, line)
	}
	return grn, lines, rows.Err()
}

func (r *txRepository) CreatePO(ctx context.Context, po PurchaseOrder) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO purchase_orders (number, supplier, status, currency, expected_date, note, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,NOW(),NOW()) RETURNING id`,
		po.Number, po.Supplier, string(po.Status), po.Currency, po.ExpectedDate, po.Note).Scan(&id)
	return id, err
}

func (r *txRepository) InsertPOLine(ctx context.Context, line POLine) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO purchase_order_lines (po_id, material_id, qty, price, note)
VALUES ($1,$2,$3,$4,$5)`, line.POID, line.MaterialID, line.Qty, line.Price, line.Note)
	return err
}

func (r *txRepository) UpdatePOStatus(ctx context.Context, id int64, status POStatus) error {
	tag, err := r.tx.Exec(ctx, `UPDATE purchase_orders SET status=$1, updated_at=NOW() WHERE id=$2`, string(status), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *txRepository) SetPOApproval(ctx context.Context, id int64, actorID int64, at time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE purchase_orders SET approved_by=$1, approved_at=$2, updated_at=NOW() WHERE id=$3`, actorID, at, id)
	return err
}

func (r *txRepository) CreateGRN(ctx context.Context, grn GoodsReceipt) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO goods_receipts (number, po_id, status, received_at, note)
VALUES ($1,$2,$3,$4,$5) RETURNING id`,
		grn.Number, grn.POID, string(grn.Status), grn.ReceivedAt, grn.Note).Scan(&id)
	return id, err
}

func (r *txRepository) InsertGRNLine(ctx context.Context, line GRNLine) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO goods_receipt_lines (grn_id, material_id, qty, unit_cost)
VALUES ($1,$2,$3,$4)`, line.GRNID, line.MaterialID, line.Qty, line.UnitCost)
	return err
}

func (r *txRepository) UpdateGRNStatus(ctx context.Context, id int64, status GRNStatus) error {
	tag, err := r.tx.Exec(ctx, `UPDATE goods_receipts SET status=$1 WHERE id=$2`, string(status), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanPO(row pgx.Row) (PurchaseOrder, error) {
	var po PurchaseOrder
	var status string
	err := row.Scan(&po.ID, &po.Number, &po.Supplier, &status, &po.Currency, &po.ExpectedDate, &po.Note,
		&po.ApprovedBy, &po.ApprovedAt, &po.CreatedAt, &po.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return PurchaseOrder{}, ErrNotFound
	}
	if err != nil {
		return PurchaseOrder{}, err
	}
	po.Status = POStatus(status)
	return po, nil
}
