package sales

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/magneq-erp/magneq-erp/internal/catalog"
	"github.com/magneq-erp/magneq-erp/internal/platform/httpx"
	"github.com/magneq-erp/magneq-erp/internal/production"
)

// Handler wires sales order HTTP endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers sales routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Post("/{id}/approve", h.approve)
	r.Post("/{id}/reject", h.reject)
	r.Post("/{id}/payments", h.recordPayment)
	r.Post("/{id}/status", h.advanceStatus)
}

type orderLineDTO struct {
	Model       string  `json:"model" validate:"required"`
	Type        string  `json:"type" validate:"required"`
	Ratio       string  `json:"ratio" validate:"required"`
	Power       string  `json:"power" validate:"required"`
	Quantity    float64 `json:"quantity" validate:"required,gt=0"`
	RatePerUnit string  `json:"rate_per_unit"`
}

type createOrderDTO struct {
	CustomerName string         `json:"customer_name" validate:"required"`
	Description  string         `json:"description"`
	Lines        []orderLineDTO `json:"lines" validate:"required,min=1,dive"`
}

type lineResponse struct {
	ID             int64   `json:"id"`
	FinishedGoodID int64   `json:"finished_good_id"`
	Quantity       float64 `json:"quantity"`
	RatePerUnit    string  `json:"rate_per_unit"`
	LineTotal      string  `json:"line_total"`
	Fulfilled      bool    `json:"fulfilled"`
}

type orderResponse struct {
	ID             int64          `json:"id"`
	Number         uint64         `json:"number"`
	CustomerName   string         `json:"customer_name"`
	Description    string         `json:"description,omitempty"`
	Status         string         `json:"status"`
	TotalAmount    string         `json:"total_amount"`
	ReceivedAmount string         `json:"received_amount"`
	Lines          []lineResponse `json:"lines"`
	CreatedAt      time.Time      `json:"created_at"`
}

func toOrderResponse(o Order) orderResponse {
	resp := orderResponse{
		ID:             o.ID,
		Number:         o.Number,
		CustomerName:   o.CustomerName,
		Description:    o.Description,
		Status:         string(o.Status),
		TotalAmount:    o.TotalAmount.String(),
		ReceivedAmount: o.ReceivedAmount.String(),
		Lines:          []lineResponse{},
		CreatedAt:      o.CreatedAt,
	}
	for _, line := range o.Lines {
		resp.Lines = append(resp.Lines, lineResponse{
			ID:             line.ID,
			FinishedGoodID: line.FinishedGoodID,
			Quantity:       line.Quantity,
			RatePerUnit:    line.RatePerUnit.String(),
			LineTotal:      line.LineTotal.String(),
			Fulfilled:      line.Fulfilled,
		})
	}
	return resp
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var dto createOrderDTO
	if err := httpx.DecodeJSON(r, &dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if err := h.validator.Struct(dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", err.Error())
		return
	}
	input := CreateInput{CustomerName: dto.CustomerName, Description: dto.Description}
	for _, line := range dto.Lines {
		rate := decimal.Zero
		if line.RatePerUnit != "" {
			parsed, err := decimal.NewFromString(line.RatePerUnit)
			if err != nil {
				httpx.Problem(w, http.StatusBadRequest, "Invalid rate_per_unit", err.Error())
				return
			}
			rate = parsed
		}
		input.Lines = append(input.Lines, LineInput{
			Spec:        catalog.Spec{Model: line.Model, Type: line.Type, Ratio: line.Ratio, Power: line.Power},
			Quantity:    line.Quantity,
			RatePerUnit: rate,
		})
	}
	order, err := h.service.Create(r.Context(), input)
	if err != nil {
		h.respondError(w, "create sales order", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toOrderResponse(order))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	order, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, "get sales order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	orders, total, err := h.service.List(r.Context(), limit, offset)
	if err != nil {
		h.respondError(w, "list sales orders", err)
		return
	}
	items := make([]orderResponse, 0, len(orders))
	for _, order := range orders {
		items = append(items, toOrderResponse(order))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items, "total": total})
}

type rateOverrideDTO struct {
	FinishedGoodID int64  `json:"finished_good_id" validate:"required"`
	RatePerUnit    string `json:"rate_per_unit" validate:"required"`
}

type approveDTO struct {
	RateOverrides []rateOverrideDTO `json:"rate_overrides" validate:"dive"`
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	dto := approveDTO{}
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &dto); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid request body", err.Error())
			return
		}
		if err := h.validator.Struct(dto); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation failed", err.Error())
			return
		}
	}
	overrides := make([]RateOverride, 0, len(dto.RateOverrides))
	for _, ovr := range dto.RateOverrides {
		rate, err := decimal.NewFromString(ovr.RatePerUnit)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid rate_per_unit", err.Error())
			return
		}
		overrides = append(overrides, RateOverride{FinishedGoodID: ovr.FinishedGoodID, RatePerUnit: rate})
	}
	order, productions, err := h.service.Approve(r.Context(), id, overrides)
	if err != nil {
		h.respondError(w, "approve sales order", err)
		return
	}
	prodNumbers := make([]uint64, 0, len(productions))
	for _, po := range productions {
		prodNumbers = append(prodNumbers, po.Number)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"order":             toOrderResponse(order),
		"production_orders": prodNumbers,
	})
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	order, err := h.service.Reject(r.Context(), id)
	if err != nil {
		h.respondError(w, "reject sales order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toOrderResponse(order))
}

type paymentDTO struct {
	Amount string `json:"amount" validate:"required"`
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	var dto paymentDTO
	if err := httpx.DecodeJSON(r, &dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if err := h.validator.Struct(dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", err.Error())
		return
	}
	amount, err := decimal.NewFromString(dto.Amount)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid amount", err.Error())
		return
	}
	order, err := h.service.RecordPayment(r.Context(), id, amount)
	if err != nil {
		h.respondError(w, "record payment", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toOrderResponse(order))
}

type advanceStatusDTO struct {
	Status string `json:"status" validate:"required,oneof=PROCESSED DISPATCHED DELIVERED"`
}

func (h *Handler) advanceStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	var dto advanceStatusDTO
	if err := httpx.DecodeJSON(r, &dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if err := h.validator.Struct(dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", err.Error())
		return
	}
	order, err := h.service.AdvanceStatus(r.Context(), id, Status(dto.Status))
	if err != nil {
		h.respondError(w, "advance sales status", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) orderID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid id", "id must be an integer")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, catalog.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not found", err.Error())
	case errors.Is(err, ErrInvalidState):
		httpx.Problem(w, http.StatusConflict, "Invalid state", err.Error())
	case errors.Is(err, ErrExceedsTotal):
		httpx.Problem(w, http.StatusConflict, "Payment exceeds total", err.Error())
	case errors.Is(err, ErrValidation), errors.Is(err, ErrInvalidAmount), errors.Is(err, catalog.ErrValidation), errors.Is(err, production.ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal error", "")
	}
}
