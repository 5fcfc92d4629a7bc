package catalog

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/promo-storefront/internal/common"
	"github.com/noah-isme/promo-storefront/internal/upstream"
)

// Handler exposes public catalog endpoints.
type Handler struct {
	service *Service
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Service *Service
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{service: cfg.Service}
}

// Product handles GET /api/v1/products/{productID}.
func (h *Handler) Product(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog service not configured", nil)
		return
	}
	product, err := h.service.Product(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       product,
		"quote_only": product.QuoteOnly(),
	})
}

// Quote handles GET /api/v1/products/{productID}/quote?qty=N&customizations=...
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog service not configured", nil)
		return
	}
	query := r.URL.Query()
	qty, err := strconv.Atoi(strings.TrimSpace(query.Get("qty")))
	if err != nil || qty < 1 {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "qty must be a positive integer", nil)
		return
	}
	selected, err := ParseCustomizations(query.Get("customizations"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		return
	}
	quote, err := h.service.Quote(r.Context(), chi.URLParam(r, "productID"), qty, selected)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": quote})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	common.WriteError(w, upstream.AppError(err))
}
