package procurement

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/magneq-erp/magneq-erp/internal/ledger"
	"github.com/magneq-erp/magneq-erp/internal/platform/httpx"
	"github.com/magneq-erp/magneq-erp/internal/shared"
)

// Handler wires purchase order HTTP endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers procurement routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Get("/{id}/items", h.listItems)
	r.Post("/{id}/receive", h.receiveStock)
}

type purchaseItemDTO struct {
	MaterialID int64   `json:"material_id" validate:"required"`
	Quantity   float64 `json:"quantity" validate:"required,gt=0"`
	UnitPrice  string  `json:"unit_price" validate:"required"`
}

type createPurchaseDTO struct {
	VendorName string            `json:"vendor_name" validate:"required"`
	OrderDate  string            `json:"order_date"`
	Items      []purchaseItemDTO `json:"items" validate:"required,min=1,dive"`
}

type itemResponse struct {
	ID            int64   `json:"id"`
	MaterialID    int64   `json:"material_id"`
	MaterialName  string  `json:"material_name"`
	MaterialClass string  `json:"material_class"`
	OrderedQty    float64 `json:"ordered_qty"`
	UnitPrice     string  `json:"unit_price"`
	ItemTotal     string  `json:"item_total"`
	ReceivedQty   float64 `json:"received_qty"`
	Status        string  `json:"status"`
}

type purchaseResponse struct {
	ID         int64          `json:"id"`
	Number     uint64         `json:"number"`
	VendorName string         `json:"vendor_name"`
	OrderDate  time.Time      `json:"order_date"`
	Status     string         `json:"status"`
	TotalPrice string         `json:"total_price"`
	Items      []itemResponse `json:"items"`
}

func toItemResponse(item Item) itemResponse {
	return itemResponse{
		ID:            item.ID,
		MaterialID:    item.MaterialID,
		MaterialName:  item.MaterialName,
		MaterialClass: string(item.MaterialClass),
		OrderedQty:    item.OrderedQty,
		UnitPrice:     item.UnitPrice.String(),
		ItemTotal:     item.ItemTotal.String(),
		ReceivedQty:   item.ReceivedQty,
		Status:        string(item.Status),
	}
}

func toPurchaseResponse(o Order) purchaseResponse {
	resp := purchaseResponse{
		ID:         o.ID,
		Number:     o.Number,
		VendorName: o.VendorName,
		OrderDate:  o.OrderDate,
		Status:     string(o.Status),
		TotalPrice: o.TotalPrice.String(),
		Items:      []itemResponse{},
	}
	for _, item := range o.Items {
		resp.Items = append(resp.Items, toItemResponse(item))
	}
	return resp
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var dto createPurchaseDTO
	if err := httpx.DecodeJSON(r, &dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if err := h.validator.Struct(dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", err.Error())
		return
	}
	input := CreateInput{VendorName: dto.VendorName}
	if dto.OrderDate != "" {
		date, err := time.Parse("2006-01-02", dto.OrderDate)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid order_date", "expected YYYY-MM-DD")
			return
		}
		input.OrderDate = date
	}
	for _, item := range dto.Items {
		price, err := decimal.NewFromString(item.UnitPrice)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid unit_price", err.Error())
			return
		}
		input.Items = append(input.Items, ItemInput{MaterialID: item.MaterialID, Quantity: item.Quantity, UnitPrice: price})
	}
	order, err := h.service.Create(r.Context(), input)
	if err != nil {
		h.respondError(w, "create purchase order", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toPurchaseResponse(order))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.purchaseID(w, r)
	if !ok {
		return
	}
	order, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, "get purchase order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPurchaseResponse(order))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	orders, total, err := h.service.List(r.Context(), limit, offset)
	if err != nil {
		h.respondError(w, "list purchase orders", err)
		return
	}
	items := make([]purchaseResponse, 0, len(orders))
	for _, order := range orders {
		items = append(items, toPurchaseResponse(order))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items, "total": total})
}

// listItems returns receivable lines with the remaining receivable
// quantity, optionally filtered by material class for goods-in staff
// working one store at a time.
func (h *Handler) listItems(w http.ResponseWriter, r *http.Request) {
	id, ok := h.purchaseID(w, r)
	if !ok {
		return
	}
	class := ledger.Class(r.URL.Query().Get("class"))
	if class != "" && !class.Valid() {
		httpx.Problem(w, http.StatusBadRequest, "Invalid class", "class must be A, B or C")
		return
	}
	views, err := h.service.ListItems(r.Context(), id, class)
	if err != nil {
		h.respondError(w, "list purchase items", err)
		return
	}
	items := make([]map[string]any, 0, len(views))
	for _, view := range views {
		item := toItemResponse(view.Item)
		items = append(items, map[string]any{
			"id":             item.ID,
			"material_id":    item.MaterialID,
			"material_name":  item.MaterialName,
			"material_class": item.MaterialClass,
			"ordered_qty":    item.OrderedQty,
			"received_qty":   item.ReceivedQty,
			"status":         item.Status,
			"max_allowed":    view.MaxAllowedQty,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items})
}

type receiptDeltaDTO struct {
	ItemID   int64   `json:"item_id" validate:"required"`
	Quantity float64 `json:"quantity" validate:"required,gt=0"`
}

type receiveStockDTO struct {
	IdempotencyKey string            `json:"idempotency_key"`
	Deltas         []receiptDeltaDTO `json:"deltas" validate:"required,min=1,dive"`
}

func (h *Handler) receiveStock(w http.ResponseWriter, r *http.Request) {
	id, ok := h.purchaseID(w, r)
	if !ok {
		return
	}
	var dto receiveStockDTO
	if err := httpx.DecodeJSON(r, &dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if err := h.validator.Struct(dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", err.Error())
		return
	}
	input := ReceiveInput{OrderID: id, IdempotencyKey: dto.IdempotencyKey}
	for _, delta := range dto.Deltas {
		input.Deltas = append(input.Deltas, ReceiptDelta{ItemID: delta.ItemID, Quantity: delta.Quantity})
	}
	order, err := h.service.ReceiveStock(r.Context(), input)
	if err != nil {
		h.respondError(w, "receive stock", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPurchaseResponse(order))
}

func (h *Handler) purchaseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid id", "id must be an integer")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ledger.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not found", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Duplicate request", err.Error())
	case errors.Is(err, ErrInvalidInput):
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal error", "")
	}
}
