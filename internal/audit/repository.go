package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// QueryParams selects a window of audit_logs rows, newest first.
type QueryParams struct {
	Filters TimelineFilters
	Offset  int
	Limit   int
}

// Repository reads the audit trail written by shared.AuditLogger.
type Repository interface {
	Window(ctx context.Context, params QueryParams) ([]TimelineRow, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository builds the pgx-backed audit repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) Window(ctx context.Context, params QueryParams) ([]TimelineRow, error) {
	query := `SELECT actor_id, action, entity, entity_id, COALESCE(meta, 'null'::jsonb), occurred_at FROM audit_logs`
	var conds []string
	var args []any

	f := params.Filters
	if !f.From.IsZero() {
		args = append(args, f.From)
		conds = append(conds, fmt.Sprintf("occurred_at >= $%d", len(args)))
	}
	if !f.To.IsZero() {
		args = append(args, f.To)
		conds = append(conds, fmt.Sprintf("occurred_at < $%d", len(args)))
	}
	if f.ActorID > 0 {
		args = append(args, f.ActorID)
		conds = append(conds, fmt.Sprintf("actor_id = $%d", len(args)))
	}
	if entity := strings.TrimSpace(f.Entity); entity != "" {
		args = append(args, entity)
		conds = append(conds, fmt.Sprintf("entity = $%d", len(args)))
	}
	if action := strings.TrimSpace(f.Action); action != "" {
		args = append(args, action)
		conds = append(conds, fmt.Sprintf("action = $%d", len(args)))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, params.Limit)
	query += fmt.Sprintf(" ORDER BY occurred_at DESC, id DESC LIMIT $%d", len(args))
	args = append(args, params.Offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TimelineRow
	for rows.Next() {
		var row TimelineRow
		var metaRaw []byte
		if err := rows.Scan(&row.ActorID, &row.Action, &row.Entity, &row.EntityID, &metaRaw, &row.At); err != nil {
			return nil, err
		}
		if len(metaRaw) > 0 && string(metaRaw) != "null" {
			if err := json.Unmarshal(metaRaw, &row.Meta); err != nil {
				return nil, err
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
