package issue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository persists goods issues in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	GetForUpdate(ctx context.Context, id int64) (Issue, error)
	InsertIssue(ctx context.Context, iss Issue) (int64, error)
	InsertLine(ctx context.Context, line Line) (int64, error)
	SetStatus(ctx context.Context, id int64, status Status, postedAt *time.Time) error
	SetLineCost(ctx context.Context, lineID int64, unitCost decimal.Decimal) error
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("issue repository not initialised")
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

const issueColumns = `id, number, status, COALESCE(production_order_id, 0), note, posted_at, created_at, updated_at`

// Get loads one issue with its lines.
func (r *Repository) Get(ctx context.Context, id int64) (Issue, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+issueColumns+` FROM issues WHERE id=$1`, id)
	iss, err := scanIssue(row)
	if err != nil {
		return Issue{}, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, issue_id, material_id, qty, unit_cost FROM issue_lines WHERE issue_id=$1 ORDER BY id ASC`, id)
	if err != nil {
		return Issue{}, err
	}
	defer rows.Close()
	iss.Lines, err = scanLines(rows)
	return iss, err
}

// List returns issues newest first, optionally filtered by status.
func (r *Repository) List(ctx context.Context, status Status, limit int) ([]Issue, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + issueColumns + ` FROM issues`
	args := []any{}
	if status != "" {
		query += ` WHERE status=$1`
		args = append(args, string(status))
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var issues []Issue
	for rows.Next() {
		iss, err := scanIssue(rows)
		if err != nil {
			return nil, err
		}
		issues = append(issues, iss)
	}
	return issues, rows.Err()
}

// PendingForProductionOrders returns pending issue lines grouped per
// production order, used by the shortage report.
func (r *Repository) PendingForProductionOrders(ctx context.Context, orderIDs []int64) (map[int64][]Line, error) {
	if len(orderIDs) == 0 {
		return map[int64][]Line{}, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT l.id, l.issue_id, l.material_id, l.qty, l.unit_cost, i.production_order_id
FROM issue_lines l JOIN issues i ON i.id = l.issue_id
WHERE i.status='PENDING' AND i.production_order_id = ANY($1) ORDER BY l.id ASC`, orderIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result := make(map[int64][]Line)
	for rows.Next() {
		var line Line
		var orderID int64
		if err := rows.Scan(&line.ID, &line.IssueID, &line.MaterialID, &line.Qty, &line.UnitCost, &orderID); err != nil {
			return nil, err
		}
		result[orderID] = append(result[orderID], line)
	}
	return result, rows.Err()
}

func (r *txRepository) GetForUpdate(ctx context.Context, id int64) (Issue, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+issueColumns+` FROM issues WHERE id=$1 FOR UPDATE`, id)
	iss, err := scanIssue(row)
	if err != nil {
		return Issue{}, err
	}
	rows, err := r.tx.Query(ctx, `SELECT id, issue_id, material_id, qty, unit_cost FROM issue_lines WHERE issue_id=$1 ORDER BY id ASC`, id)
	if err != nil {
		return Issue{}, err
	}
	defer rows.Close()
	iss.Lines, err = scanLines(rows)
	return iss, err
}

func (r *txRepository) InsertIssue(ctx context.Context, iss Issue) (int64, error) {
	var orderID any
	if iss.ProductionOrderID > 0 {
		orderID = iss.ProductionOrderID
	}
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO issues (number, status, production_order_id, note, created_at, updated_at)
VALUES ($1,$2,$3,$4,NOW(),NOW()) RETURNING id`,
		iss.Number, string(iss.Status), orderID, iss.Note).Scan(&id)
	return id, err
}

func (r *txRepository) InsertLine(ctx context.Context, line Line) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO issue_lines (issue_id, material_id, qty, unit_cost)
VALUES ($1,$2,$3,$4) RETURNING id`,
		line.IssueID, line.MaterialID, line.Qty, line.UnitCost).Scan(&id)
	return id, err
}

func (r *txRepository) SetStatus(ctx context.Context, id int64, status Status, postedAt *time.Time) error {
	tag, err := r.tx.Exec(ctx, `UPDATE issues SET status=$1, posted_at=$2, updated_at=NOW() WHERE id=$3`,
		string(status), postedAt, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *txRepository) SetLineCost(ctx context.Context, lineID int64, unitCost decimal.Decimal) error {
	tag, err := r.tx.Exec(ctx, `UPDATE issue_lines SET unit_cost=$1 WHERE id=$2`, unitCost, lineID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanIssue(row pgx.Row) (Issue, error) {
	var iss Issue
	var status string
	err := row.Scan(&iss.ID, &iss.Number, &status, &iss.ProductionOrderID, &iss.Note, &iss.PostedAt, &iss.CreatedAt, &iss.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Issue{}, ErrNotFound
	}
	if err != nil {
		return Issue{}, err
	}
	iss.Status = Status(status)
	return iss, nil
}

func scanLines(rows pgx.Rows) ([]Line, error) {
	var lines []Line
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.IssueID, &line.MaterialID, &line.Qty, &line.UnitCost); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}
