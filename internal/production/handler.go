package production

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/magneq-erp/magneq-erp/internal/catalog"
	"github.com/magneq-erp/magneq-erp/internal/ledger"
	"github.com/magneq-erp/magneq-erp/internal/platform/httpx"
)

// Handler wires production order HTTP endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers production routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listPending)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Get("/{id}/availability", h.checkAvailability)
	r.Post("/{id}/start", h.start)
	r.Post("/{id}/ready", h.makeReady)
}

type createProductionDTO struct {
	FinishedGoodID int64   `json:"finished_good_id"`
	Model          string  `json:"model"`
	Type           string  `json:"type"`
	Ratio          string  `json:"ratio"`
	Power          string  `json:"power"`
	Quantity       float64 `json:"quantity" validate:"required,gt=0"`
}

type productionResponse struct {
	ID               int64     `json:"id"`
	Number           uint64    `json:"number"`
	SalesOrderNumber *uint64   `json:"sales_order_number,omitempty"`
	FinishedGoodID   int64     `json:"finished_good_id"`
	Quantity         float64   `json:"quantity"`
	Status           string    `json:"status"`
	CreatedAt        time.Time `json:"created_at"`
}

func toProductionResponse(o Order) productionResponse {
	return productionResponse{
		ID:               o.ID,
		Number:           o.Number,
		SalesOrderNumber: o.SalesOrderNumber,
		FinishedGoodID:   o.FinishedGoodID,
		Quantity:         o.Quantity,
		Status:           string(o.Status),
		CreatedAt:        o.CreatedAt,
	}
}

// create starts a standalone production order, either by finished good
// id or by full specification.
func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var dto createProductionDTO
	if err := httpx.DecodeJSON(r, &dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if err := h.validator.Struct(dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", err.Error())
		return
	}
	var order Order
	var err error
	if dto.FinishedGoodID != 0 {
		order, err = h.service.Create(r.Context(), CreateInput{FinishedGoodID: dto.FinishedGoodID, Quantity: dto.Quantity})
	} else {
		spec := catalog.Spec{Model: dto.Model, Type: dto.Type, Ratio: dto.Ratio, Power: dto.Power}
		order, err = h.service.CreateFromSpec(r.Context(), spec, dto.Quantity)
	}
	if err != nil {
		h.respondError(w, "create production order", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toProductionResponse(order))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.productionID(w, r)
	if !ok {
		return
	}
	order, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, "get production order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toProductionResponse(order))
}

func (h *Handler) listPending(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	orders, total, err := h.service.ListPending(r.Context(), limit, offset)
	if err != nil {
		h.respondError(w, "list production orders", err)
		return
	}
	items := make([]productionResponse, 0, len(orders))
	for _, order := range orders {
		items = append(items, toProductionResponse(order))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items, "total": total})
}

type materialCheckResponse struct {
	MaterialID int64   `json:"material_id"`
	Name       string  `json:"name"`
	Required   float64 `json:"required"`
	Available  float64 `json:"available"`
	InStock    bool    `json:"in_stock"`
}

func toMaterialChecks(checks []MaterialCheck) []materialCheckResponse {
	out := make([]materialCheckResponse, 0, len(checks))
	for _, c := range checks {
		out = append(out, materialCheckResponse{
			MaterialID: c.MaterialID,
			Name:       c.Name,
			Required:   c.Required,
			Available:  c.Available,
			InStock:    c.InStock,
		})
	}
	return out
}

func (h *Handler) checkAvailability(w http.ResponseWriter, r *http.Request) {
	id, ok := h.productionID(w, r)
	if !ok {
		return
	}
	report, err := h.service.CheckAvailability(r.Context(), id)
	if err != nil {
		h.respondError(w, "check availability", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"production_id": report.ProductionID,
		"number":        report.Number,
		"quantity":      report.Quantity,
		"status":        string(report.Status),
		"class_a":       toMaterialChecks(report.ClassA),
		"class_b":       toMaterialChecks(report.ClassB),
		"class_c":       toMaterialChecks(report.ClassC),
		"all_in_stock":  report.AllInStock,
	})
}

func (h *Handler) start(w http.ResponseWriter, r *http.Request) {
	id, ok := h.productionID(w, r)
	if !ok {
		return
	}
	order, err := h.service.Start(r.Context(), id)
	if err != nil {
		h.respondError(w, "start production", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toProductionResponse(order))
}

func (h *Handler) makeReady(w http.ResponseWriter, r *http.Request) {
	id, ok := h.productionID(w, r)
	if !ok {
		return
	}
	order, err := h.service.MakeReady(r.Context(), id)
	if err != nil {
		h.respondError(w, "make production ready", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toProductionResponse(order))
}

func (h *Handler) productionID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid id", "id must be an integer")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, catalog.ErrNotFound), errors.Is(err, ledger.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not found", err.Error())
	case errors.Is(err, ErrInvalidState):
		httpx.Problem(w, http.StatusConflict, "Invalid state", err.Error())
	case errors.Is(err, ledger.ErrInsufficientStock):
		httpx.Problem(w, http.StatusConflict, "Insufficient stock", err.Error())
	case errors.Is(err, ErrValidation), errors.Is(err, catalog.ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal error", "")
	}
}
