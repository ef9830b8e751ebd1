package production

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository persists production orders in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	GetOrderForUpdate(ctx context.Context, id int64) (Order, error)
	InsertOrder(ctx context.Context, order Order) (int64, error)
	UpdateOrderStatus(ctx context.Context, id int64, status Status) error
	SetOrderIssue(ctx context.Context, id int64, issueID int64) error
	InsertOperation(ctx context.Context, op Operation) (int64, error)
	SetOperationDone(ctx context.Context, opID int64, doneQty decimal.Decimal) error
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("production repository not initialised")
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

const orderColumns = `id, number, bom_id, target_qty, status, planned_start, planned_end, COALESCE(issue_id, 0), note, created_at, updated_at`

// GetOrder loads one order.
func (r *Repository) GetOrder(ctx context.Context, id int64) (Order, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM production_orders WHERE id=$1`, id)
	return scanOrder(row)
}

// ListOperations returns an order's steps in sequence.
func (r *Repository) ListOperations(ctx context.Context, orderID int64) ([]Operation, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, order_id, kind, seq, done_qty, updated_at
FROM production_operations WHERE order_id=$1 ORDER BY seq ASC, id ASC`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ops []Operation
	for rows.Next() {
		var op Operation
		var kind string
		if err := rows.Scan(&op.ID, &op.OrderID, &kind, &op.Seq, &op.DoneQty, &op.UpdatedAt); err != nil {
			return nil, err
		}
		op.Kind = OperationKind(kind)
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

// Schedule lists orders ordered by planned start, optionally only open ones.
func (r *Repository) Schedule(ctx context.Context, openOnly bool, limit int) ([]Order, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + orderColumns + ` FROM production_orders`
	if openOnly {
		query += ` WHERE status IN ('PLANNED','RELEASED','IN_PROGRESS')`
	}
	query += ` ORDER BY planned_start ASC, id ASC LIMIT $1`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var orders []Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

func (r *txRepository) GetOrderForUpdate(ctx context.Context, id int64) (Order, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM production_orders WHERE id=$1 FOR UPDATE`, id)
	return scanOrder(row)
}

func (r *txRepository) InsertOrder(ctx context.Context, order Order) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO production_orders (number, bom_id, target_qty, status, planned_start, planned_end, note, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,NOW(),NOW()) RETURNING id`,
		order.Number, order.BOMID, order.TargetQty, string(order.Status), order.PlannedStart, order.PlannedEnd, order.Note).Scan(&id)
	return id, err
}

func (r *txRepository) UpdateOrderStatus(ctx context.Context, id int64, status Status) error {
	tag, err := r.tx.Exec(ctx, `UPDATE production_orders SET status=$1, updated_at=NOW() WHERE id=$2`, string(status), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *txRepository) SetOrderIssue(ctx context.Context, id int64, issueID int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE production_orders SET issue_id=$1, updated_at=NOW() WHERE id=$2`, issueID, id)
	return err
}

func (r *txRepository) InsertOperation(ctx context.Context, op Operation) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO production_operations (order_id, kind, seq, done_qty, updated_at)
VALUES ($1,$2,$3,$4,NOW()) RETURNING id`,
		op.OrderID, string(op.Kind), op.Seq, op.DoneQty).Scan(&id)
	return id, err
}

func (r *txRepository) SetOperationDone(ctx context.Context, opID int64, doneQty decimal.Decimal) error {
	tag, err := r.tx.Exec(ctx, `UPDATE production_operations SET done_qty=$1, updated_at=NOW() WHERE id=$2`, doneQty, opID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanOrder(row pgx.Row) (Order, error) {
	var order Order
	var status string
	err := row.Scan(&order.ID, &order.Number, &order.BOMID, &order.TargetQty, &status, &order.PlannedStart,
		&order.PlannedEnd, &order.IssueID, &order.Note, &order.CreatedAt, &order.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, err
	}
	order.Status = Status(status)
	return order, nil
}

