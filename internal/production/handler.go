package production

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

	"github.com/stitchline-erp/stitchline-erp/internal/bom"
	"github.com/stitchline-erp/stitchline-erp/internal/inventory"
	"github.com/stitchline-erp/stitchline-erp/internal/platform/httpx"
)

// Handler wires JSON endpoints for production orders.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs production handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers production routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/schedule", h.schedule)
	r.Get("/shortages", h.shortages)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Post("/{id}/release", h.orderAction(func(ctx context.Context, id, actorID int64) (Order, error) {
		return h.service.Release(ctx, id, actorID)
	}))
	r.Post("/{id}/start", h.orderAction(h.service.Start))
	r.Post("/{id}/complete", h.orderAction(h.service.Complete))
	r.Post("/{id}/cancel", h.orderAction(h.service.Cancel))
	r.Put("/{id}/operations/{opID}", h.progress)
}

// OrderForm is the create payload.
type OrderForm struct {
	BOMID        int64           `json:"bom_id" validate:"required,gt=0"`
	TargetQty    decimal.Decimal `json:"target_qty"`
	PlannedStart string          `json:"planned_start" validate:"required,datetime=2006-01-02"`
	PlannedEnd   string          `json:"planned_end" validate:"required,datetime=2006-01-02"`
	Note         string          `json:"note" validate:"max=500"`
}

// ProgressForm updates one operation.
type ProgressForm struct {
	DoneQty decimal.Decimal `json:"done_qty"`
}

type orderResponse struct {
	Order
	Operations []Operation `json:"operations"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var form OrderForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	start, _ := time.Parse("2006-01-02", form.PlannedStart)
	end, _ := time.Parse("2006-01-02", form.PlannedEnd)
	order, err := h.service.Create(r.Context(), CreateInput{
		BOMID:        form.BOMID,
		TargetQty:    form.TargetQty,
		PlannedStart: start,
		PlannedEnd:   end,
		Note:         form.Note,
	})
	if err != nil {
		h.logger.Error("create production order", slog.Any("error", err))
		httpx.RespondError(w, mapError(err))
		return
	}
	httpx.JSON(w, http.StatusCreated, order)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r, "id")
	if !ok {
		return
	}
	order, ops, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, mapError(err))
		return
	}
	if ops == nil {
		ops = []Operation{}
	}
	httpx.JSON(w, http.StatusOK, orderResponse{Order: order, Operations: ops})
}

func (h *Handler) orderAction(fn func(ctx context.Context, id, actorID int64) (Order, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := h.parseID(w, r, "id")
		if !ok {
			return
		}
		order, err := fn(r.Context(), id, 0)
		if err != nil {
			h.logger.Error("production order action", slog.Any("error", err), slog.Int64("order_id", id))
			httpx.RespondError(w, mapError(err))
			return
		}
		httpx.JSON(w, http.StatusOK, order)
	}
}

func (h *Handler) progress(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r, "id")
	if !ok {
		return
	}
	opID, ok := h.parseID(w, r, "opID")
	if !ok {
		return
	}
	var form ProgressForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.service.Progress(r.Context(), id, opID, form.DoneQty, 0); err != nil {
		h.logger.Error("progress", slog.Any("error", err), slog.Int64("order_id", id))
		httpx.RespondError(w, mapError(err))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) schedule(w http.ResponseWriter, r *http.Request) {
	openOnly := r.URL.Query().Get("open") == "true"
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	orders, err := h.service.Schedule(r.Context(), openOnly, limit)
	if err != nil {
		h.logger.Error("schedule", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if orders == nil {
		orders = []Order{}
	}
	httpx.JSON(w, http.StatusOK, orders)
}

func (h *Handler) shortages(w http.ResponseWriter, r *http.Request) {
	shortages, err := h.service.ShortageReport(r.Context())
	if err != nil {
		h.logger.Error("shortage report", slog.Any("error", err))
		httpx.RespondError(w, mapError(err))
		return
	}
	if shortages == nil {
		shortages = []Shortage{}
	}
	httpx.JSON(w, http.StatusOK, shortages)
}

func (h *Handler) parseID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", fmt.Sprintf("invalid %s", param))
		return 0, false
	}
	return id, true
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, bom.ErrNotFound):
		return httpx.ErrNotFound
	case errors.Is(err, ErrInvalidState):
		return fmt.Errorf("%w: %s", httpx.ErrConflict, err)
	case errors.Is(err, ErrValidation), errors.Is(err, bom.ErrInvalidQuantity), errors.Is(err, bom.ErrUnresolvedMaterial):
		return fmt.Errorf("%w: %s", httpx.ErrValidation, err)
	case errors.Is(err, inventory.ErrInsufficientStock):
		return fmt.Errorf("%w: %s", httpx.ErrConflict, err)
	default:
		return err
	}
}
