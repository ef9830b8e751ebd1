package inventory

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/stitchline-erp/stitchline-erp/internal/platform/httpx"
	"github.com/stitchline-erp/stitchline-erp/internal/shared"
)

// Handler wires JSON endpoints for the inventory ledger.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/materials/{materialID}/layers", h.layers)
	r.Get("/materials/{materialID}/availability", h.availability)
	r.Post("/receipts", h.receive)
}

// ReceiptForm is the manual receipt payload.
type ReceiptForm struct {
	MaterialID int64           `json:"material_id" validate:"required,gt=0"`
	Qty        decimal.Decimal `json:"qty"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
	RefID      string          `json:"ref_id" validate:"omitempty,uuid4"`
	Note       string          `json:"note"`
}

type availabilityResponse struct {
	MaterialID int64           `json:"material_id"`
	Available  decimal.Decimal `json:"available"`
}

func (h *Handler) layers(w http.ResponseWriter, r *http.Request) {
	materialID, ok := h.parseMaterialID(w, r)
	if !ok {
		return
	}
	includeEmpty := r.URL.Query().Get("include_empty") == "true"
	layers, err := h.service.ListLayers(r.Context(), materialID, includeEmpty)
	if err != nil {
		h.logger.Error("list layers", slog.Any("error", err), slog.Int64("material_id", materialID))
		httpx.RespondError(w, err)
		return
	}
	if layers == nil {
		layers = []Layer{}
	}
	httpx.JSON(w, http.StatusOK, layers)
}

func (h *Handler) availability(w http.ResponseWriter, r *http.Request) {
	materialID, ok := h.parseMaterialID(w, r)
	if !ok {
		return
	}
	qty, err := h.service.AvailableQty(r.Context(), materialID)
	if err != nil {
		h.logger.Error("availability", slog.Any("error", err), slog.Int64("material_id", materialID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, availabilityResponse{MaterialID: materialID, Available: qty})
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	var form ReceiptForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	layer, err := h.service.Receive(r.Context(), ReceiptInput{
		MaterialID: form.MaterialID,
		Qty:        form.Qty,
		UnitCost:   form.UnitCost,
		RefModule:  "INVENTORY",
		RefID:      form.RefID,
		Note:       form.Note,
	})
	if err != nil {
		h.logger.Error("receive", slog.Any("error", err), slog.Int64("material_id", form.MaterialID))
		httpx.RespondError(w, mapLedgerError(err))
		return
	}
	httpx.JSON(w, http.StatusCreated, layer)
}

func (h *Handler) parseMaterialID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "materialID"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid material id")
		return 0, false
	}
	return id, true
}

func mapLedgerError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrInvalidUnitCost):
		return fmt.Errorf("%w: %s", httpx.ErrValidation, err)
	case errors.Is(err, ErrInsufficientStock):
		return fmt.Errorf("%w: %s", httpx.ErrConflict, err)
	case errors.Is(err, shared.ErrIdempotencyConflict):
		return fmt.Errorf("%w: duplicate receipt reference", httpx.ErrDuplicate)
	default:
		return err
	}
}
