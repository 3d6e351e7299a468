package ledger

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/magneq-erp/magneq-erp/internal/platform/httpx"
)

// Handler wires raw material ledger HTTP endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers ledger routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.createMaterial)
	r.Get("/{id}", h.get)
	r.Get("/{id}/stock", h.getStock)
	r.Post("/{id}/credit", h.credit)
	r.Post("/{id}/debit", h.debit)
	r.Post("/{id}/transition", h.transition)
}

type createMaterialDTO struct {
	Class       string  `json:"class" validate:"required,oneof=A B C"`
	Name        string  `json:"name" validate:"required"`
	Type        string  `json:"type"`
	MinQuantity float64 `json:"min_quantity" validate:"gte=0"`
}

type materialResponse struct {
	ID          int64    `json:"id"`
	Class       string   `json:"class"`
	Name        string   `json:"name"`
	Type        string   `json:"type,omitempty"`
	MinQuantity float64  `json:"min_quantity"`
	Quantity    Quantity `json:"quantity"`
	Total       float64  `json:"total"`
	LowStock    bool     `json:"low_stock"`
}

func toMaterialResponse(m Material) materialResponse {
	return materialResponse{
		ID:          m.ID,
		Class:       string(m.Class),
		Name:        m.Name,
		Type:        m.Type,
		MinQuantity: m.MinQuantity,
		Quantity:    m.Quantity,
		Total:       m.Quantity.Total(),
		LowStock:    m.LowStock(),
	}
}

func (h *Handler) createMaterial(w http.ResponseWriter, r *http.Request) {
	var dto createMaterialDTO
	if err := httpx.DecodeJSON(r, &dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if err := h.validator.Struct(dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", err.Error())
		return
	}
	m, err := h.service.CreateMaterial(r.Context(), CreateMaterialInput{
		Class:       Class(dto.Class),
		Name:        dto.Name,
		Type:        dto.Type,
		MinQuantity: dto.MinQuantity,
	})
	if err != nil {
		h.respondError(w, "create material", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toMaterialResponse(m))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.materialID(w, r)
	if !ok {
		return
	}
	m, err := h.service.GetMaterial(r.Context(), id)
	if err != nil {
		h.respondError(w, "get material", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toMaterialResponse(m))
}

func (h *Handler) getStock(w http.ResponseWriter, r *http.Request) {
	id, ok := h.materialID(w, r)
	if !ok {
		return
	}
	qty, err := h.service.GetStock(r.Context(), id)
	if err != nil {
		h.respondError(w, "get stock", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"material_id": id, "quantity": qty, "total": qty.Total()})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	materials, err := h.service.List(r.Context(), Class(q.Get("class")), limit, offset)
	if err != nil {
		h.respondError(w, "list materials", err)
		return
	}
	items := make([]materialResponse, 0, len(materials))
	for _, m := range materials {
		items = append(items, toMaterialResponse(m))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items})
}

type mutationDTO struct {
	Bucket string  `json:"bucket"`
	Amount float64 `json:"amount" validate:"required,gt=0"`
}

func (h *Handler) credit(w http.ResponseWriter, r *http.Request) {
	h.mutation(w, r, "credit stock", h.service.Credit)
}

func (h *Handler) debit(w http.ResponseWriter, r *http.Request) {
	h.mutation(w, r, "debit stock", h.service.Debit)
}

func (h *Handler) mutation(w http.ResponseWriter, r *http.Request, op string, apply func(ctx context.Context, materialID int64, bucket Bucket, amount float64) (Material, error)) {
	id, ok := h.materialID(w, r)
	if !ok {
		return
	}
	var dto mutationDTO
	if err := httpx.DecodeJSON(r, &dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if err := h.validator.Struct(dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", err.Error())
		return
	}
	m, err := apply(r.Context(), id, Bucket(dto.Bucket), dto.Amount)
	if err != nil {
		h.respondError(w, op, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toMaterialResponse(m))
}

type transitionDTO struct {
	From   string  `json:"from" validate:"required"`
	To     string  `json:"to" validate:"required"`
	Amount float64 `json:"amount" validate:"required,gt=0"`
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request) {
	id, ok := h.materialID(w, r)
	if !ok {
		return
	}
	var dto transitionDTO
	if err := httpx.DecodeJSON(r, &dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if err := h.validator.Struct(dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", err.Error())
		return
	}
	m, err := h.service.Transition(r.Context(), id, Bucket(dto.From), Bucket(dto.To), dto.Amount)
	if err != nil {
		h.respondError(w, "transition stock", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toMaterialResponse(m))
}

func (h *Handler) materialID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid id", "id must be an integer")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not found", err.Error())
	case errors.Is(err, ErrInvalidBucket), errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", err.Error())
	case errors.Is(err, ErrInsufficientStock):
		httpx.Problem(w, http.StatusConflict, "Insufficient stock", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal error", "")
	}
}
