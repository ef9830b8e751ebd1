package bom

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
)

// Handler wires JSON endpoints for the BOM module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	exporter *RequirementExporter
	validate *validator.Validate
}

// NewHandler constructs BOM handler.
func NewHandler(logger *slog.Logger, service *Service, exporter *RequirementExporter) *Handler {
	return &Handler{logger: logger, service: service, exporter: exporter, validate: validator.New()}
}

// MountRoutes registers BOM routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.show)
	r.Put("/{id}", h.update)
	r.Delete("/{id}", h.deactivate)
	r.Get("/{id}/expansion", h.expansion)
	r.Get("/{id}/requirements", h.requirements)
	r.Get("/{id}/requirements.xlsx", h.requirementsXLSX)
}

// LineForm is one consumption line in the create/update payload.
type LineForm struct {
	MaterialID   int64           `json:"material_id" validate:"required,gt=0"`
	Qty          decimal.Decimal `json:"qty"`
	Unit         string          `json:"unit" validate:"required,max=16"`
	WastePercent decimal.Decimal `json:"waste_percent"`
	Consumption  ConsumptionSpec `json:"consumption"`
	Note         string          `json:"note"`
}

// HeaderForm is the create/update payload.
type HeaderForm struct {
	Name       string          `json:"name" validate:"required,max=128"`
	Version    string          `json:"version" validate:"required,max=32"`
	OutputQty  decimal.Decimal `json:"output_qty"`
	OutputUnit string          `json:"output_unit" validate:"required,max=16"`
	Lines      []LineForm      `json:"lines" validate:"required,min=1,dive"`
}

type bomResponse struct {
	Header Header `json:"header"`
	Lines  []Line `json:"lines"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	headers, err := h.service.List(r.Context(), activeOnly, limit)
	if err != nil {
		h.logger.Error("list boms", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if headers == nil {
		headers = []Header{}
	}
	httpx.JSON(w, http.StatusOK, headers)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	header, lines, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.mapError(err))
		return
	}
	httpx.JSON(w, http.StatusOK, bomResponse{Header: header, Lines: lines})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	form, ok := h.decodeForm(w, r)
	if !ok {
		return
	}
	header, lines, err := h.service.Create(r.Context(), h.toInput(form))
	if err != nil {
		h.logger.Error("create bom", slog.Any("error", err))
		httpx.RespondError(w, h.mapError(err))
		return
	}
	httpx.JSON(w, http.StatusCreated, bomResponse{Header: header, Lines: lines})
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	form, ok := h.decodeForm(w, r)
	if !ok {
		return
	}
	if err := h.service.Update(r.Context(), id, h.toInput(form)); err != nil {
		h.logger.Error("update bom", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, h.mapError(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	if err := h.service.Deactivate(r.Context(), id, 0); err != nil {
		httpx.RespondError(w, h.mapError(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) expansion(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	exp, err := h.service.Expand(r.Context(), id)
	if err != nil {
		h.logger.Error("expand bom", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, h.mapError(err))
		return
	}
	httpx.JSON(w, http.StatusOK, exp)
}

func (h *Handler) requirements(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	target, err := decimal.NewFromString(r.URL.Query().Get("target"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "target quantity required")
		return
	}
	reqs, err := h.service.Requirements(r.Context(), id, target)
	if err != nil {
		h.logger.Error("calculate requirements", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, h.mapError(err))
		return
	}
	httpx.JSON(w, http.StatusOK, reqs)
}

func (h *Handler) requirementsXLSX(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	target, err := decimal.NewFromString(r.URL.Query().Get("target"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "target quantity required")
		return
	}
	header, _, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.mapError(err))
		return
	}
	reqs, err := h.service.Requirements(r.Context(), id, target)
	if err != nil {
		httpx.RespondError(w, h.mapError(err))
		return
	}
	data, err := h.exporter.Export(header, target, reqs)
	if err != nil {
		h.logger.Error("export requirements", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="requirements-%d.xlsx"`, id))
	_, _ = w.Write(data)
}

func (h *Handler) parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid bom id")
		return 0, false
	}
	return id, true
}

func (h *Handler) decodeForm(w http.ResponseWriter, r *http.Request) (HeaderForm, bool) {
	var form HeaderForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return HeaderForm{}, false
	}
	if err := h.validate.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return HeaderForm{}, false
	}
	return form, true
}

func (h *Handler) toInput(form HeaderForm) CreateInput {
	input := CreateInput{
		Name:       form.Name,
		Version:    form.Version,
		OutputQty:  form.OutputQty,
		OutputUnit: form.OutputUnit,
	}
	for _, line := range form.Lines {
		input.Lines = append(input.Lines, LineInput{
			MaterialID:   line.MaterialID,
			Qty:          line.Qty,
			Unit:         line.Unit,
			WastePercent: line.WastePercent,
			Consumption:  line.Consumption,
			Note:         line.Note,
		})
	}
	return input
}

func (h *Handler) mapError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return httpx.ErrNotFound
	case errors.Is(err, ErrInvalidBOM),
		errors.Is(err, ErrInvalidQuantity),
		errors.Is(err, ErrInvalidWaste),
		errors.Is(err, ErrUnresolvedMaterial):
		return fmt.Errorf("%w: %s", httpx.ErrValidation, err.Error())
	case errors.Is(err, ErrInactive):
		return httpx.ErrConflict
	default:
		return err
	}
}
