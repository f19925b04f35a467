package inventory

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// Handler wires HTTP endpoints for inventory module.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/low-stock", h.lowStock)
	r.Route("/products/{id}", func(r chi.Router) {
		r.Get("/", h.product)
		r.Get("/movements", h.movements)
		r.Post("/adjustments", h.adjust)
		r.Post("/receipts", h.receive)
	})
}

type adjustmentRequest struct {
	Delta  decimal.Decimal `json:"delta"`
	Reason string          `json:"reason" validate:"required,min=3,max=240"`
}

type receiptRequest struct {
	Quantity  decimal.Decimal `json:"quantity"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
	Reference string          `json:"reference" validate:"max=240"`
}

type movementsResponse struct {
	Movements  []Movement        `json:"movements"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) product(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}
	product, err := h.service.GetProduct(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) movements(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	movements, pagination, err := h.service.Movements(r.Context(), MovementFilter{ProductID: id, Page: page, PerPage: perPage})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if movements == nil {
		movements = []Movement{}
	}
	httpx.JSON(w, http.StatusOK, movementsResponse{Movements: movements, Pagination: pagination})
}

func (h *Handler) adjust(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}
	principal, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, r, shared.ErrUnauthenticated)
		return
	}
	var req adjustmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	mv, err := h.service.Adjust(r.Context(), AdjustmentInput{
		ProductID: id,
		Delta:     req.Delta,
		Reason:    req.Reason,
		ActorID:   principal.UserID,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, mv)
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}
	principal, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, r, shared.ErrUnauthenticated)
		return
	}
	var req receiptRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	mv, err := h.service.Receive(r.Context(), ReceiptInput{
		ProductID: id,
		Quantity:  req.Quantity,
		UnitCost:  req.UnitCost,
		Reference: req.Reference,
		ActorID:   principal.UserID,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, mv)
}

func (h *Handler) lowStock(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	_, limit = shared.NormalizePage(1, limit)
	products, err := h.service.LowStock(r.Context(), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if products == nil {
		products = []Product{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"products": products})
}

// fail maps inventory errors to problem responses.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var stockErr *InsufficientStockError
	switch {
	case errors.Is(err, ErrProductNotFound):
		httpx.LocalizedProblem(w, r, http.StatusNotFound, "Not Found", err.Error())
	case errors.As(err, &stockErr):
		httpx.WriteProblem(w, httpx.ProblemDetail{
			Title:  httpx.Localize(r, "Insufficient Stock"),
			Status: http.StatusConflict,
			Detail: err.Error(),
			Code:   "insufficient_stock",
			Extra: map[string]any{
				"product_id": stockErr.ProductID,
				"available":  stockErr.Available.String(),
				"requested":  stockErr.Requested.String(),
			},
		})
	case errors.Is(err, ErrQuantityLimit):
		httpx.LocalizedProblem(w, r, http.StatusConflict, "Quantity Limit", err.Error())
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrInvalidUnitCost):
		httpx.LocalizedProblem(w, r, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
	default:
		if !errors.Is(err, httpx.ErrValidation) {
			h.logger.Error("inventory request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		}
		httpx.RespondError(w, r, err)
	}
}

func productID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.LocalizedProblem(w, r, http.StatusBadRequest, "Bad Request", "invalid product id")
		return 0, false
	}
	return id, true
}
