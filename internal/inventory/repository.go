package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository persists inventory layers in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by service. Layer reads
// inside a transaction lock the rows, which serializes consumption per
// material.
type TxRepository interface {
	LayersForUpdate(ctx context.Context, materialID int64) ([]Layer, error)
	InsertLayer(ctx context.Context, layer Layer) (int64, error)
	DecrementLayer(ctx context.Context, layerID int64, qty decimal.Decimal) error
	InsertMovement(ctx context.Context, movement Movement) error
}

type txRepository struct {
	tx pgx.Tx
}

// ErrLayerOverdraw indicates a decrement larger than the layer's availability.
var ErrLayerOverdraw = errors.New("inventory: layer decrement exceeds availability")

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
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

// AvailableQty sums available layer quantities for a material.
func (r *Repository) AvailableQty(ctx context.Context, materialID int64) (decimal.Decimal, error) {
	var qty decimal.Decimal
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(qty_available), 0) FROM inventory_layers WHERE material_id=$1`, materialID).Scan(&qty)
	return qty, err
}

// ListLayers returns layers for a material in FIFO order.
func (r *Repository) ListLayers(ctx context.Context, materialID int64, includeEmpty bool) ([]Layer, error) {
	query := `SELECT id, material_id, qty_on_hand, qty_available, unit_cost, COALESCE(ref_id::text, ''), note, created_at
FROM inventory_layers WHERE material_id=$1`
	if !includeEmpty {
		query += ` AND qty_available > 0`
	}
	query += ` ORDER BY created_at ASC, id ASC`
	rows, err := r.pool.Query(ctx, query, materialID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLayers(rows)
}

// ListMovements returns the append-only movement trail for a layer.
func (r *Repository) ListMovements(ctx context.Context, layerID int64, limit int) ([]Movement, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT id, layer_id, movement_type, qty_delta, unit_cost, ref_module, COALESCE(ref_id::text, ''), occurred_at
FROM inventory_movements WHERE layer_id=$1 ORDER BY occurred_at ASC, id ASC LIMIT $2`, layerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var movements []Movement
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.ID, &m.LayerID, &m.Type, &m.QtyDelta, &m.UnitCost, &m.RefModule, &m.RefID, &m.At); err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

func (r *txRepository) LayersForUpdate(ctx context.Context, materialID int64) ([]Layer, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, material_id, qty_on_hand, qty_available, unit_cost, COALESCE(ref_id::text, ''), note, created_at
FROM inventory_layers WHERE material_id=$1 AND qty_available > 0 ORDER BY created_at ASC, id ASC FOR UPDATE`, materialID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLayers(rows)
}

func (r *txRepository) InsertLayer(ctx context.Context, layer Layer) (int64, error) {
	createdAt := layer.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO inventory_layers (material_id, qty_on_hand, qty_available, unit_cost, ref_id, note, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
		layer.MaterialID, layer.QtyOnHand, layer.QtyAvail, layer.UnitCost, nullUUID(layer.RefID), layer.Note, createdAt).Scan(&id)
	return id, err
}

func (r *txRepository) DecrementLayer(ctx context.Context, layerID int64, qty decimal.Decimal) error {
	tag, err := r.tx.Exec(ctx, `UPDATE inventory_layers SET qty_available = qty_available - $1 WHERE id=$2 AND qty_available >= $1`, qty, layerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrLayerOverdraw
	}
	return nil
}

func (r *txRepository) InsertMovement(ctx context.Context, movement Movement) error {
	at := movement.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err := r.tx.Exec(ctx, `INSERT INTO inventory_movements (layer_id, movement_type, qty_delta, unit_cost, ref_module, ref_id, occurred_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		movement.LayerID, string(movement.Type), movement.QtyDelta, movement.UnitCost, movement.RefModule, nullUUID(movement.RefID), at)
	return err
}

func scanLayers(rows pgx.Rows) ([]Layer, error) {
	var layers []Layer
	for rows.Next() {
		var layer Layer
		if err := rows.Scan(&layer.ID, &layer.MaterialID, &layer.QtyOnHand, &layer.QtyAvail, &layer.UnitCost, &layer.RefID, &layer.Note, &layer.CreatedAt); err != nil {
			return nil, err
		}
		layers = append(layers, layer)
	}
	return layers, rows.Err()
}

func nullUUID(value string) any {
	if value == "" {
		return nil
	}
	return value
}
