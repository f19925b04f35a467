package workshop

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-pos/internal/sales"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// Handler wires HTTP endpoints for workshop module.
type Handler struct {
	logger  *slog.Logger
	service *Service
	idem    httpx.IdempotencyGuard
}

// NewHandler constructs workshop handler.
func NewHandler(logger *slog.Logger, service *Service, idem httpx.IdempotencyGuard) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, idem: idem}
}

// MountRoutes registers workshop routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/orders/{id}", h.show)
	r.Get("/mechanics/{id}/drawer", h.drawer)
	r.Group(func(r chi.Router) {
		r.Use(httpx.Idempotent(h.idem, "workshop", h.logger))
		r.Post("/orders", h.open)
		r.Post("/orders/{id}/consumptions", h.consume)
		r.Post("/orders/{id}/bill", h.bill)
		r.Post("/mechanics/{id}/drawer", h.stockDrawer)
	})
}

type orderResponse struct {
	Order        Order         `json:"order"`
	Consumptions []Consumption `json:"consumptions"`
}

type billRequest struct {
	Type sales.DocumentType `json:"type" validate:"required,oneof=INVOICE DELIVERY_NOTE"`
}

type billResponse struct {
	Order    Order          `json:"order"`
	Document sales.Document `json:"document"`
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	o, parts, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, orderResponse{Order: o, Consumptions: parts})
}

func (h *Handler) drawer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	items, err := h.service.Drawer(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if items == nil {
		items = []DrawerItem{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) open(w http.ResponseWriter, r *http.Request) {
	var in OpenInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	o, err := h.service.OpenOrder(r.Context(), in, principal(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, o)
}

func (h *Handler) consume(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in ConsumeInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	c, err := h.service.ConsumePart(r.Context(), id, in, principal(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, c)
}

func (h *Handler) bill(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req billRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	o, doc, err := h.service.BillOrder(r.Context(), id, req.Type, principal(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, billResponse{Order: o, Document: doc})
}

func (h *Handler) stockDrawer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in DrawerInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	item, err := h.service.StockDrawer(r.Context(), id, in, principal(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, item)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var stockErr *inventory.InsufficientStockError
	switch {
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
	case errors.Is(err, ErrAlreadyBilled):
		problem(w, r, http.StatusConflict, "Already Billed", "already_billed", err)
	case errors.Is(err, ErrOrderClosed):
		problem(w, r, http.StatusConflict, "Invalid State", "invalid_state", err)
	case errors.Is(err, ErrNothingToBill):
		problem(w, r, http.StatusUnprocessableEntity, "Empty Document", "nothing_to_bill", err)
	case errors.Is(err, ErrInvalidInput), errors.Is(err, inventory.ErrInvalidQuantity):
		problem(w, r, http.StatusUnprocessableEntity, "Validation Failed", "validation_failed", err)
	case errors.Is(err, inventory.ErrProductNotFound):
		problem(w, r, http.StatusUnprocessableEntity, "Validation Failed", "unknown_product", err)
	case errors.Is(err, inventory.ErrQuantityLimit):
		problem(w, r, http.StatusConflict, "Quantity Limit", "quantity_limit", err)
	default:
		if !errors.Is(err, shared.ErrNotFound) && !errors.Is(err, shared.ErrUnauthenticated) &&
			!errors.Is(err, httpx.ErrValidation) {
			h.logger.Error("workshop request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		}
		httpx.RespondError(w, r, err)
	}
}

func problem(w http.ResponseWriter, r *http.Request, status int, title, code string, err error) {
	httpx.WriteProblem(w, httpx.ProblemDetail{
		Title:  httpx.Localize(r, title),
		Status: status,
		Detail: err.Error(),
		Code:   code,
	})
}

func principal(r *http.Request) shared.Principal {
	p, _ := shared.PrincipalFromContext(r.Context())
	return p
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.LocalizedProblem(w, r, http.StatusBadRequest, "Bad Request", "invalid id")
		return 0, false
	}
	return id, true
}
