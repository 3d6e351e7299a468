package catalog

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/magneq-erp/magneq-erp/internal/platform/httpx"
)

// Handler wires catalog HTTP endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers catalog routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/resolve", h.resolve)
	r.Get("/{id}", h.get)
	r.Put("/{id}/bom", h.setBOM)
}

type bomLineDTO struct {
	MaterialID int64   `json:"material_id" validate:"required"`
	QtyPerUnit float64 `json:"qty_per_unit" validate:"required,gt=0"`
}

type createFinishedGoodDTO struct {
	Model         string       `json:"model" validate:"required"`
	Type          string       `json:"type" validate:"required"`
	Ratio         string       `json:"ratio" validate:"required"`
	Power         string       `json:"power" validate:"required"`
	ShaftDiameter string       `json:"shaft_diameter"`
	FrameSize     string       `json:"frame_size"`
	RatePerUnit   string       `json:"rate_per_unit"`
	BasePrice     string       `json:"base_price"`
	BOM           []bomLineDTO `json:"bom" validate:"dive"`
}

type finishedGoodResponse struct {
	ID            int64        `json:"id"`
	ModelNumber   string       `json:"model_number"`
	Model         string       `json:"model"`
	Type          string       `json:"type"`
	Ratio         string       `json:"ratio"`
	Power         string       `json:"power"`
	ShaftDiameter string       `json:"shaft_diameter,omitempty"`
	FrameSize     string       `json:"frame_size,omitempty"`
	RatePerUnit   string       `json:"rate_per_unit"`
	BasePrice     string       `json:"base_price"`
	Units         int64        `json:"units"`
	BOM           []bomLineDTO `json:"bom,omitempty"`
}

func toFinishedGoodResponse(fg FinishedGood) finishedGoodResponse {
	resp := finishedGoodResponse{
		ID:            fg.ID,
		ModelNumber:   ModelNumber(fg),
		Model:         fg.Model,
		Type:          fg.Type,
		Ratio:         fg.Ratio,
		Power:         fg.Power,
		ShaftDiameter: fg.ShaftDiameter,
		FrameSize:     fg.FrameSize,
		RatePerUnit:   fg.RatePerUnit.String(),
		BasePrice:     fg.BasePrice.String(),
		Units:         fg.Units,
	}
	for _, line := range fg.BOM {
		resp.BOM = append(resp.BOM, bomLineDTO{MaterialID: line.MaterialID, QtyPerUnit: line.QtyPerUnit})
	}
	return resp
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var dto createFinishedGoodDTO
	if err := httpx.DecodeJSON(r, &dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if err := h.validator.Struct(dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", err.Error())
		return
	}
	rate, err := parseDecimal(dto.RatePerUnit)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid rate_per_unit", err.Error())
		return
	}
	base, err := parseDecimal(dto.BasePrice)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid base_price", err.Error())
		return
	}
	input := CreateInput{
		Spec:          Spec{Model: dto.Model, Type: dto.Type, Ratio: dto.Ratio, Power: dto.Power},
		ShaftDiameter: dto.ShaftDiameter,
		FrameSize:     dto.FrameSize,
		RatePerUnit:   rate,
		BasePrice:     base,
	}
	for _, line := range dto.BOM {
		input.BOM = append(input.BOM, BOMLine{MaterialID: line.MaterialID, QtyPerUnit: line.QtyPerUnit})
	}
	fg, err := h.service.Create(r.Context(), input)
	if err != nil {
		h.respondError(w, r, "create finished good", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toFinishedGoodResponse(fg))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid id", "id must be an integer")
		return
	}
	fg, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, r, "get finished good", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toFinishedGoodResponse(fg))
}

// resolve looks up a finished good by its full specification, the way
// sales entry matches customer requirements to the catalog.
func (h *Handler) resolve(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	spec := Spec{
		Model: q.Get("model"),
		Type:  q.Get("type"),
		Ratio: q.Get("ratio"),
		Power: q.Get("power"),
	}
	fg, err := h.service.Resolve(r.Context(), spec)
	if err != nil {
		h.respondError(w, r, "resolve finished good", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toFinishedGoodResponse(fg))
}

type setBOMDTO struct {
	Lines []bomLineDTO `json:"lines" validate:"required,min=1,dive"`
}

func (h *Handler) setBOM(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid id", "id must be an integer")
		return
	}
	var dto setBOMDTO
	if err := httpx.DecodeJSON(r, &dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if err := h.validator.Struct(dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", err.Error())
		return
	}
	lines := make([]BOMLine, 0, len(dto.Lines))
	for _, line := range dto.Lines {
		lines = append(lines, BOMLine{MaterialID: line.MaterialID, QtyPerUnit: line.QtyPerUnit})
	}
	if err := h.service.SetBOM(r.Context(), id, lines); err != nil {
		h.respondError(w, r, "set bom", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"id": id, "lines": len(lines)})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	filter := ListFilter{
		Model:  q.Get("model"),
		Type:   q.Get("type"),
		Ratio:  q.Get("ratio"),
		Power:  q.Get("power"),
		Limit:  limit,
		Offset: offset,
	}
	goods, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.respondError(w, r, "list finished goods", err)
		return
	}
	items := make([]finishedGoodResponse, 0, len(goods))
	for _, fg := range goods {
		items = append(items, toFinishedGoodResponse(fg))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not found", err.Error())
	case errors.Is(err, ErrDuplicate):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal error", "")
	}
}

func parseDecimal(value string) (decimal.Decimal, error) {
	if value == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(value)
}
