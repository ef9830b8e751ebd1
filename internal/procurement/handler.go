package procurement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/stitchline-erp/stitchline-erp/internal/inventory"
	"github.com/stitchline-erp/stitchline-erp/internal/platform/httpx"
	"github.com/stitchline-erp/stitchline-erp/internal/shared"
)

// Handler wires JSON endpoints for procurement.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs procurement handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers procurement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/purchase-orders", func(r chi.Router) {
		r.Get("/", h.listPOs)
		r.Post("/", h.createPO)
		r.Get("/{id}", h.getPO)
		r.Post("/{id}/submit", h.poTransition(h.service.SubmitPurchaseOrder))
		r.Post("/{id}/approve", h.poTransition(h.service.ApprovePurchaseOrder))
		r.Post("/{id}/close", h.poTransition(h.service.ClosePurchaseOrder))
		r.Post("/{id}/cancel", h.poTransition(h.service.CancelPurchaseOrder))
	})
	r.Route("/goods-receipts", func(r chi.Router) {
		r.Post("/", h.createGRN)
		r.Get("/{id}", h.getGRN)
		r.Post("/{id}/post", h.grnTransition(h.service.PostGoodsReceipt))
		r.Post("/{id}/cancel", h.grnTransition(h.service.CancelGoodsReceipt))
	})
}

// POForm is the create payload for purchase orders.
type POForm struct {
	Supplier     string       `json:"supplier" validate:"required,max=200"`
	Currency     string       `json:"currency" validate:"omitempty,len=3"`
	ExpectedDate string       `json:"expected_date" validate:"omitempty,datetime=2006-01-02"`
	Note         string       `json:"note" validate:"max=500"`
	Lines        []POLineForm `json:"lines" validate:"required,min=1,dive"`
}

// POLineForm is one ordered material.
type POLineForm struct {
	MaterialID int64           `json:"material_id" validate:"required,gt=0"`
	Qty        decimal.Decimal `json:"qty"`
	Price      decimal.Decimal `json:"price"`
	Note       string          `json:"note" validate:"max=200"`
}

// GRNForm is the create payload for goods receipts.
type GRNForm struct {
	POID  int64         `json:"po_id" validate:"required,gt=0"`
	Note  string        `json:"note" validate:"max=500"`
	Lines []GRNLineForm `json:"lines" validate:"required,min=1,dive"`
}

// GRNLineForm is one received material.
type GRNLineForm struct {
	MaterialID int64           `json:"material_id" validate:"required,gt=0"`
	Qty        decimal.Decimal `json:"qty"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
}

type poResponse struct {
	PurchaseOrder
	Lines []POLine `json:"lines"`
}

type grnResponse struct {
	GoodsReceipt
	Lines []GRNLine `json:"lines"`
}

func (h *Handler) listPOs(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	pos, err := h.service.ListPurchaseOrders(r.Context(), limit)
	if err != nil {
		h.logger.Error("list purchase orders", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if pos == nil {
		pos = []PurchaseOrder{}
	}
	httpx.JSON(w, http.StatusOK, pos)
}

func (h *Handler) createPO(w http.ResponseWriter, r *http.Request) {
	var form POForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := CreatePOInput{Supplier: form.Supplier, Currency: form.Currency, Note: form.Note}
	if form.ExpectedDate != "" {
		input.ExpectedDate, _ = time.Parse("2006-01-02", form.ExpectedDate)
	}
	for _, line := range form.Lines {
		input.Lines = append(input.Lines, POLineInput(line))
	}
	po, err := h.service.CreatePurchaseOrder(r.Context(), input)
	if err != nil {
		h.logger.Error("create purchase order", slog.Any("error", err))
		httpx.RespondError(w, mapError(err))
		return
	}
	httpx.JSON(w, http.StatusCreated, po)
}

func (h *Handler) getPO(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	po, lines, err := h.service.GetPurchaseOrder(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, mapError(err))
		return
	}
	if lines == nil {
		lines = []POLine{}
	}
	httpx.JSON(w, http.StatusOK, poResponse{PurchaseOrder: po, Lines: lines})
}

func (h *Handler) poTransition(fn func(ctx context.Context, id, actorID int64) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := h.parseID(w, r)
		if !ok {
			return
		}
		if err := fn(r.Context(), id, 0); err != nil {
			h.logger.Error("purchase order transition", slog.Any("error", err), slog.Int64("po_id", id))
			httpx.RespondError(w, mapError(err))
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func (h *Handler) createGRN(w http.ResponseWriter, r *http.Request) {
	var form GRNForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := CreateGRNInput{POID: form.POID, Note: form.Note}
	for _, line := range form.Lines {
		input.Lines = append(input.Lines, GRNLineInput(line))
	}
	grn, err := h.service.CreateGoodsReceipt(r.Context(), input)
	if err != nil {
		h.logger.Error("create goods receipt", slog.Any("error", err))
		httpx.RespondError(w, mapError(err))
		return
	}
	httpx.JSON(w, http.StatusCreated, grn)
}

func (h *Handler) getGRN(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	grn, lines, err := h.service.GetGoodsReceipt(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, mapError(err))
		return
	}
	if lines == nil {
		lines = []GRNLine{}
	}
	httpx.JSON(w, http.StatusOK, grnResponse{GoodsReceipt: grn, Lines: lines})
}

func (h *Handler) grnTransition(fn func(ctx context.Context, id, actorID int64) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := h.parseID(w, r)
		if !ok {
			return
		}
		if err := fn(r.Context(), id, 0); err != nil {
			h.logger.Error("goods receipt transition", slog.Any("error", err), slog.Int64("grn_id", id))
			httpx.RespondError(w, mapError(err))
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func (h *Handler) parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return 0, false
	}
	return id, true
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return httpx.ErrNotFound
	case errors.Is(err, ErrInvalidState):
		return fmt.Errorf("%w: %s", httpx.ErrConflict, err)
	case errors.Is(err, ErrValidation), errors.Is(err, inventory.ErrInvalidQuantity), errors.Is(err, inventory.ErrInvalidUnitCost):
		return fmt.Errorf("%w: %s", httpx.ErrValidation, err)
	case errors.Is(err, shared.ErrIdempotencyConflict):
		return fmt.Errorf("%w: receipt already posted", httpx.ErrDuplicate)
	default:
		return err
	}
}
