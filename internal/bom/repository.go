package bom

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists BOM data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	InsertHeader(ctx context.Context, header Header) (int64, error)
	UpdateHeader(ctx context.Context, id int64, header Header) error
	SetActive(ctx context.Context, id int64, active bool) error
	InsertLine(ctx context.Context, line Line) error
	DeleteLines(ctx context.Context, headerID int64) error
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("bom repository not initialised")
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

// Get loads a header with its lines in display order.
func (r *Repository) Get(ctx context.Context, id int64) (Header, []Line, error) {
	var h Header
	err := r.pool.QueryRow(ctx, `SELECT id, name, version, output_qty, output_unit, is_active, created_at, updated_at
FROM bom_headers WHERE id=$1`, id).Scan(&h.ID, &h.Name, &h.Version, &h.OutputQty, &h.OutputUnit, &h.IsActive, &h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Header{}, nil, ErrNotFound
		}
		return Header{}, nil, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, header_id, position, material_id, qty, unit, waste_percent, consumption_kind, consumption_size, consumption_color, consumption_category_id, note
FROM bom_lines WHERE header_id=$1 ORDER BY position ASC, id ASC`, id)
	if err != nil {
		return Header{}, nil, err
	}
	defer rows.Close()
	var lines []Line
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.HeaderID, &line.Position, &line.MaterialID, &line.Qty, &line.Unit, &line.WastePercent,
			&line.Consumption.Kind, &line.Consumption.Size, &line.Consumption.Color, &line.Consumption.CategoryID, &line.Note); err != nil {
			return Header{}, nil, err
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return Header{}, nil, err
	}
	return h, lines, nil
}

// List returns headers, optionally restricted to active ones.
func (r *Repository) List(ctx context.Context, activeOnly bool, limit int) ([]Header, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id, name, version, output_qty, output_unit, is_active, created_at, updated_at FROM bom_headers`
	if activeOnly {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY name ASC, version DESC LIMIT $1`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var headers []Header
	for rows.Next() {
		var h Header
		if err := rows.Scan(&h.ID, &h.Name, &h.Version, &h.OutputQty, &h.OutputUnit, &h.IsActive, &h.CreatedAt, &h.UpdatedAt); err != nil {
			return nil, err
		}
		headers = append(headers, h)
	}
	return headers, rows.Err()
}

func (r *txRepository) InsertHeader(ctx context.Context, header Header) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO bom_headers (name, version, output_qty, output_unit, is_active, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,NOW(),NOW()) RETURNING id`, header.Name, header.Version, header.OutputQty, header.OutputUnit, header.IsActive).Scan(&id)
	return id, err
}

func (r *txRepository) UpdateHeader(ctx context.Context, id int64, header Header) error {
	tag, err := r.tx.Exec(ctx, `UPDATE bom_headers SET name=$1, version=$2, output_qty=$3, output_unit=$4, updated_at=$5 WHERE id=$6`,
		header.Name, header.Version, header.OutputQty, header.OutputUnit, time.Now(), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *txRepository) SetActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.tx.Exec(ctx, `UPDATE bom_headers SET is_active=$1, updated_at=NOW() WHERE id=$2`, active, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *txRepository) InsertLine(ctx context.Context, line Line) error {
	kind := line.Consumption.Kind
	if kind == "" {
		kind = ConsumptionGeneral
	}
	_, err := r.tx.Exec(ctx, `INSERT INTO bom_lines (header_id, position, material_id, qty, unit, waste_percent, consumption_kind, consumption_size, consumption_color, consumption_category_id, note)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		line.HeaderID, line.Position, line.MaterialID, line.Qty, line.Unit, line.WastePercent,
		string(kind), line.Consumption.Size, line.Consumption.Color, line.Consumption.CategoryID, line.Note)
	return err
}

func (r *txRepository) DeleteLines(ctx context.Context, headerID int64) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM bom_lines WHERE header_id=$1`, headerID)
	return err
}
