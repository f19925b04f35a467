package sales

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// Handler manages sales document HTTP endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	idem    httpx.IdempotencyGuard
}

// NewHandler creates a new handler. idem may be nil to disable Idempotency-Key checks.
func NewHandler(logger *slog.Logger, service *Service, idem httpx.IdempotencyGuard) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, idem: idem}
}

// MountRoutes registers document routes, normally under /api/sales/documents.
func (h *Handler) MountRoutes(r chi.Router) {
	write := r.With(httpx.Idempotent(h.idem, "sales", h.logger))
	r.Get("/", h.list)
	write.Post("/", h.create)
	r.Get("/pending-delivery-notes", h.pendingDeliveryNotes)
	r.Get("/{id}", h.show)
	write.Patch("/{id}", h.update)
	write.Post("/{id}/send-to-cashier", h.sendToCashier)
	write.Post("/{id}/finalize", h.finalize)
	write.Post("/{id}/convert-to-invoice", h.convert)
	write.Post("/{id}/annul", h.annul)
}

// MountCashierRoutes registers the cashier queue, normally under /api/cashier.
func (h *Handler) MountCashierRoutes(r chi.Router) {
	r.Get("/queue", h.queue)
	r.With(httpx.Idempotent(h.idem, "cashier", h.logger)).Post("/documents/{id}/finalize", h.finalizeFromQueue)
}

type listResponse struct {
	Documents  []Document        `json:"documents"`
	Pagination shared.Pagination `json:"pagination"`
}

type annulResponse struct {
	Document  Document        `json:"document"`
	Annulment AnnulmentRecord `json:"annulment"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	customerID, _ := strconv.ParseInt(q.Get("customer_id"), 10, 64)
	docs, pagination, err := h.service.ListDocuments(r.Context(), ListFilter{
		Type:       DocumentType(q.Get("type")),
		Status:     Status(q.Get("status")),
		CustomerID: customerID,
		Page:       page,
		PerPage:    perPage,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse{Documents: docs, Pagination: pagination})
}

func (h *Handler) queue(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	docs, pagination, err := h.service.CashierQueue(r.Context(), page, perPage)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse{Documents: docs, Pagination: pagination})
}

func (h *Handler) pendingDeliveryNotes(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	docs, pagination, err := h.service.ListPendingDeliveryNotes(r.Context(), page, perPage)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse{Documents: docs, Pagination: pagination})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, ok := documentID(w, r)
	if !ok {
		return
	}
	doc, err := h.service.GetDocument(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	doc, err := h.service.CreateDocument(r.Context(), in, principal(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, doc)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := documentID(w, r)
	if !ok {
		return
	}
	var patch UpdateInput
	if err := httpx.DecodeJSON(r, &patch); err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	doc, err := h.service.UpdateDocument(r.Context(), id, patch, principal(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) sendToCashier(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, h.service.SendToCashier)
}

func (h *Handler) finalize(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, h.service.Finalize)
}

func (h *Handler) finalizeFromQueue(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, h.service.FinalizeFromQueue)
}

func (h *Handler) convert(w http.ResponseWriter, r *http.Request) {
	id, ok := documentID(w, r)
	if !ok {
		return
	}
	doc, err := h.service.ConvertToInvoice(r.Context(), id, principal(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, doc)
}

func (h *Handler) annul(w http.ResponseWriter, r *http.Request) {
	id, ok := documentID(w, r)
	if !ok {
		return
	}
	var in AnnulInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	doc, rec, err := h.service.Annul(r.Context(), id, in, principal(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, annulResponse{Document: doc, Annulment: rec})
}

func (h *Handler) act(w http.ResponseWriter, r *http.Request, fn func(context.Context, int64, shared.Principal) (Document, error)) {
	id, ok := documentID(w, r)
	if !ok {
		return
	}
	doc, err := fn(r.Context(), id, principal(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

// fail maps sales errors to problem responses.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		mismatch *TotalsMismatchError
		stockErr *inventory.InsufficientStockError
	)
	switch {
	case errors.As(err, &mismatch):
		httpx.WriteProblem(w, httpx.ProblemDetail{
			Title:  httpx.Localize(r, "Totals Mismatch"),
			Status: http.StatusUnprocessableEntity,
			Detail: err.Error(),
			Code:   "totals_mismatch",
			Extra: map[string]any{
				"stated_subtotal":   mismatch.StatedSubtotal.StringFixed(2),
				"computed_subtotal": mismatch.ComputedSubtotal.StringFixed(2),
				"stated_total":      mismatch.StatedTotal.StringFixed(2),
				"computed_total":    mismatch.ComputedTotal.StringFixed(2),
			},
		})
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
	case errors.Is(err, ErrEmptyDocument):
		problem(w, r, http.StatusUnprocessableEntity, "Empty Document", "empty_document", err)
	case errors.Is(err, ErrValidation):
		problem(w, r, http.StatusUnprocessableEntity, "Validation Failed", "validation_failed", err)
	case errors.Is(err, ErrAlreadyFinalized):
		problem(w, r, http.StatusConflict, "Already Finalized", "already_finalized", err)
	case errors.Is(err, ErrAlreadyAnnulled):
		problem(w, r, http.StatusConflict, "Already Annulled", "already_annulled", err)
	case errors.Is(err, ErrMissingHandoff):
		problem(w, r, http.StatusConflict, "Missing Handoff", "missing_handoff", err)
	case errors.Is(err, ErrAlreadyConverted):
		problem(w, r, http.StatusConflict, "Already Converted", "already_converted", err)
	case errors.Is(err, ErrInconsistentState):
		h.logger.Error("inconsistent sales document", slog.Any("error", err))
		problem(w, r, http.StatusConflict, "Inconsistent State", "inconsistent_state", err)
	case errors.Is(err, ErrInvalidState):
		problem(w, r, http.StatusConflict, "Invalid State", "invalid_state", err)
	case errors.Is(err, inventory.ErrQuantityLimit):
		problem(w, r, http.StatusConflict, "Quantity Limit", "quantity_limit", err)
	case errors.Is(err, inventory.ErrProductNotFound):
		problem(w, r, http.StatusUnprocessableEntity, "Validation Failed", "unknown_product", err)
	default:
		if !errors.Is(err, shared.ErrNotFound) && !errors.Is(err, shared.ErrForbidden) &&
			!errors.Is(err, shared.ErrUnauthenticated) && !errors.Is(err, httpx.ErrValidation) {
			h.logger.Error("sales request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
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

func documentID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.LocalizedProblem(w, r, http.StatusBadRequest, "Bad Request", "invalid document id")
		return 0, false
	}
	return id, true
}
