package audithttp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-pos/internal/audit"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// TrailService defines the business contract for trail data.
type TrailService interface {
	Trail(ctx context.Context, filter audit.TrailFilter) (audit.Result, error)
}

// Handler menangani permintaan audit trail.
type Handler struct {
	logger  *slog.Logger
	service TrailService
}

// NewHandler membuat handler audit baru.
func NewHandler(logger *slog.Logger, service TrailService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

func (h *Handler) handleTrail(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		http.Error(w, http.StatusText(http.StatusNotImplemented), http.StatusNotImplemented)
		return
	}
	if _, ok := shared.PrincipalFromContext(r.Context()); !ok {
		httpx.RespondError(w, r, shared.ErrUnauthenticated)
		return
	}
	filter, err := parseFilter(r)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	result, err := h.service.Trail(r.Context(), filter)
	if err != nil {
		if errors.Is(err, audit.ErrInvalidFilter) {
			httpx.LocalizedProblem(w, r, http.StatusBadRequest, "Bad Request", err.Error())
			return
		}
		h.logger.Error("load audit trail", slog.Any("error", err))
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func parseFilter(r *http.Request) (audit.TrailFilter, error) {
	filter := audit.TrailFilter{
		Entity:   strings.TrimSpace(chi.URLParam(r, "entity")),
		EntityID: strings.TrimSpace(chi.URLParam(r, "id")),
		Page:     1,
	}
	fields := map[string]string{}
	if v := strings.TrimSpace(r.URL.Query().Get("page")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			fields["page"] = "min"
		}
		filter.Page = parsed
	}
	if v := strings.TrimSpace(r.URL.Query().Get("page_size")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			fields["page_size"] = "min"
		}
		filter.PageSize = parsed
	}
	if len(fields) > 0 {
		return audit.TrailFilter{}, &httpx.ValidationError{Fields: fields}
	}
	return filter, nil
}
