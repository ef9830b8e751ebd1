package bom

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/stitchline-erp/stitchline-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Header, []Line, error)
	List(ctx context.Context, activeOnly bool, limit int) ([]Header, error)
}

// MaterialPort resolves material references for costing.
type MaterialPort interface {
	GetByIDs(ctx context.Context, ids []int64) (map[int64]MaterialInfo, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates BOM operations.
type Service struct {
	repo      RepositoryPort
	materials MaterialPort
	cache     *Cache
	audit     AuditPort
	expand    singleflight.Group
}

// NewService builds Service.
func NewService(repo RepositoryPort, materials MaterialPort, cache *Cache, audit AuditPort) *Service {
	return &Service{repo: repo, materials: materials, cache: cache, audit: audit}
}

// LineInput describes one consumption line on create/update.
type LineInput struct {
	MaterialID   int64
	Qty          decimal.Decimal
	Unit         string
	WastePercent decimal.Decimal
	Consumption  ConsumptionSpec
	Note         string
}

// CreateInput describes a new BOM.
type CreateInput struct {
	Name       string
	Version    string
	OutputQty  decimal.Decimal
	OutputUnit string
	Lines      []LineInput
	ActorID    int64
}

// Create persists header and lines after resolving every material reference.
func (s *Service) Create(ctx context.Context, input CreateInput) (Header, []Line, error) {
	header := Header{
		Name:       input.Name,
		Version:    input.Version,
		OutputQty:  input.OutputQty,
		OutputUnit: input.OutputUnit,
		IsActive:   true,
	}
	lines, err := s.buildLines(ctx, input.Lines)
	if err != nil {
		return Header{}, nil, err
	}
	if !header.OutputQty.IsPositive() {
		return Header{}, nil, ErrInvalidBOM
	}
	if header.Name == "" {
		return Header{}, nil, fmt.Errorf("bom: name required")
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertHeader(ctx, header)
		if err != nil {
			return err
		}
		header.ID = id
		for i := range lines {
			lines[i].HeaderID = id
			if err := tx.InsertLine(ctx, lines[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Header{}, nil, err
	}
	_ = s.cache.Bump(ctx)
	s.recordAudit(ctx, input.ActorID, "BOM_CREATE", header.ID, map[string]any{"name": header.Name, "version": header.Version})
	return header, lines, nil
}

// Get returns a header with its lines.
func (s *Service) Get(ctx context.Context, id int64) (Header, []Line, error) {
	if id <= 0 {
		return Header{}, nil, ErrNotFound
	}
	return s.repo.Get(ctx, id)
}

// List returns BOM headers.
func (s *Service) List(ctx context.Context, activeOnly bool, limit int) ([]Header, error) {
	return s.repo.List(ctx, activeOnly, limit)
}

// Update replaces the header fields and the full line set.
func (s *Service) Update(ctx context.Context, id int64, input CreateInput) error {
	if !input.OutputQty.IsPositive() {
		return ErrInvalidBOM
	}
	if _, _, err := s.repo.Get(ctx, id); err != nil {
		return err
	}
	lines, err := s.buildLines(ctx, input.Lines)
	if err != nil {
		return err
	}
	header := Header{
		Name:       input.Name,
		Version:    input.Version,
		OutputQty:  input.OutputQty,
		OutputUnit: input.OutputUnit,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateHeader(ctx, id, header); err != nil {
			return err
		}
		if err := tx.DeleteLines(ctx, id); err != nil {
			return err
		}
		for i := range lines {
			lines[i].HeaderID = id
			if err := tx.InsertLine(ctx, lines[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	_ = s.cache.Bump(ctx)
	s.recordAudit(ctx, input.ActorID, "BOM_UPDATE", id, map[string]any{"name": header.Name, "version": header.Version})
	return nil
}

// Deactivate soft-deletes a superseded BOM. Headers are never hard-removed.
func (s *Service) Deactivate(ctx context.Context, id int64, actorID int64) error {
	if _, _, err := s.repo.Get(ctx, id); err != nil {
		return err
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.SetActive(ctx, id, false)
	})
	if err != nil {
		return err
	}
	_ = s.cache.Bump(ctx)
	s.recordAudit(ctx, actorID, "BOM_DEACTIVATE", id, nil)
	return nil
}

// Expand returns the costed view of a BOM, cached per BOM version bump.
// Concurrent requests for the same header share a single build.
func (s *Service) Expand(ctx context.Context, id int64) (Expansion, error) {
	key, err := s.cache.BuildKey(ctx, "bom", "expand", fmt.Sprintf("%d", id))
	if err != nil {
		return Expansion{}, err
	}
	var exp Expansion
	err = s.cache.FetchJSON(ctx, key, &exp, func(ctx context.Context) (any, error) {
		value, err, _ := s.expand.Do(key, func() (any, error) {
			return s.buildExpansion(ctx, id)
		})
		return value, err
	})
	return exp, err
}

func (s *Service) buildExpansion(ctx context.Context, id int64) (Expansion, error) {
	header, lines, err := s.repo.Get(ctx, id)
	if err != nil {
		return Expansion{}, err
	}
	mats, err := s.resolveMaterials(ctx, lines)
	if err != nil {
		return Expansion{}, err
	}
	return Expand(header, lines, mats)
}

// Requirements scales the BOM to a target production quantity.
func (s *Service) Requirements(ctx context.Context, id int64, targetQty decimal.Decimal) ([]Requirement, error) {
	header, lines, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	mats, err := s.resolveMaterials(ctx, lines)
	if err != nil {
		return nil, err
	}
	return CalculateRequirements(header, lines, mats, targetQty)
}

func (s *Service) buildLines(ctx context.Context, inputs []LineInput) ([]Line, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("bom: minimal 1 line")
	}
	lines := make([]Line, 0, len(inputs))
	ids := make([]int64, 0, len(inputs))
	for i, in := range inputs {
		if in.MaterialID <= 0 {
			return nil, fmt.Errorf("%w: line %d", ErrUnresolvedMaterial, i+1)
		}
		if !in.Qty.IsPositive() {
			return nil, fmt.Errorf("%w: line %d", ErrInvalidQuantity, i+1)
		}
		if in.WastePercent.IsNegative() || in.WastePercent.GreaterThan(MaxWastePercent) {
			return nil, fmt.Errorf("%w: line %d", ErrInvalidWaste, i+1)
		}
		if err := in.Consumption.Validate(); err != nil {
			return nil, err
		}
		spec := in.Consumption
		if spec.Kind == "" {
			spec = GeneralSpec()
		}
		lines = append(lines, Line{
			Position:     i + 1,
			MaterialID:   in.MaterialID,
			Qty:          in.Qty,
			Unit:         in.Unit,
			WastePercent: in.WastePercent,
			Consumption:  spec,
			Note:         in.Note,
		})
		ids = append(ids, in.MaterialID)
	}
	mats, err := s.materials.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, line := range lines {
		if _, ok := mats[line.MaterialID]; !ok {
			return nil, fmt.Errorf("%w: material %d", ErrUnresolvedMaterial, line.MaterialID)
		}
	}
	return lines, nil
}

func (s *Service) resolveMaterials(ctx context.Context, lines []Line) (map[int64]MaterialInfo, error) {
	ids := make([]int64, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.MaterialID)
	}
	return s.materials.GetByIDs(ctx, ids)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "bom", EntityID: fmt.Sprintf("%d", id), Meta: meta})
}
