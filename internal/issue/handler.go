package issue

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/stitchline-erp/stitchline-erp/internal/inventory"
	"github.com/stitchline-erp/stitchline-erp/internal/platform/httpx"
	"github.com/stitchline-erp/stitchline-erp/internal/shared"
)

// Handler wires JSON endpoints for goods issues.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs issue handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers issue routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Post("/{id}/post", h.post)
	r.Post("/{id}/cancel", h.cancel)
}

// IssueForm is the create payload.
type IssueForm struct {
	ProductionOrderID int64      `json:"production_order_id" validate:"omitempty,gt=0"`
	Note              string     `json:"note" validate:"max=500"`
	Lines             []LineForm `json:"lines" validate:"required,min=1,dive"`
}

// LineForm is one requested line.
type LineForm struct {
	MaterialID int64           `json:"material_id" validate:"required,gt=0"`
	Qty        decimal.Decimal `json:"qty"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	status := Status(r.URL.Query().Get("status"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	issues, err := h.service.List(r.Context(), status, limit)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if issues == nil {
		issues = []Issue{}
	}
	httpx.JSON(w, http.StatusOK, issues)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var form IssueForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := CreateInput{ProductionOrderID: form.ProductionOrderID, Note: form.Note}
	for _, line := range form.Lines {
		input.Lines = append(input.Lines, LineInput{MaterialID: line.MaterialID, Qty: line.Qty})
	}
	iss, err := h.service.Create(r.Context(), input)
	if err != nil {
		h.logger.Error("create issue", slog.Any("error", err))
		httpx.RespondError(w, mapError(err))
		return
	}
	httpx.JSON(w, http.StatusCreated, iss)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	iss, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, mapError(err))
		return
	}
	httpx.JSON(w, http.StatusOK, iss)
}

func (h *Handler) post(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	iss, err := h.service.Post(r.Context(), id, 0)
	if err != nil {
		h.logger.Error("post issue", slog.Any("error", err), slog.Int64("issue_id", id))
		httpx.RespondError(w, mapError(err))
		return
	}
	httpx.JSON(w, http.StatusOK, iss)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	iss, err := h.service.Cancel(r.Context(), id, 0)
	if err != nil {
		h.logger.Error("cancel issue", slog.Any("error", err), slog.Int64("issue_id", id))
		httpx.RespondError(w, mapError(err))
		return
	}
	httpx.JSON(w, http.StatusOK, iss)
}

func (h *Handler) parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid issue id")
		return 0, false
	}
	return id, true
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return httpx.ErrNotFound
	case errors.Is(err, ErrIssueState):
		return fmt.Errorf("%w: %s", httpx.ErrConflict, err)
	case errors.Is(err, ErrInvalidLine), errors.Is(err, inventory.ErrInvalidQuantity):
		return fmt.Errorf("%w: %s", httpx.ErrValidation, err)
	case errors.Is(err, inventory.ErrInsufficientStock):
		return fmt.Errorf("%w: %s", httpx.ErrConflict, err)
	case errors.Is(err, shared.ErrIdempotencyConflict):
		return fmt.Errorf("%w: issue already posted", httpx.ErrDuplicate)
	default:
		return err
	}
}
