package cart

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/promo-storefront/internal/common"
	"github.com/noah-isme/promo-storefront/internal/pricing"
	"github.com/noah-isme/promo-storefront/internal/upstream"
)

// Handler wires cart services to HTTP.
type Handler struct {
	Svc *Service
}

// Get handles GET /api/v1/cart. The cart page prices shipping against the
// whole cart.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	priced, err := h.Svc.Priced(r.Context(), pricing.PerCart)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": priced.View()})
}

// AddItem handles POST /api/v1/cart/items.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	var in ItemInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request payload", nil)
		return
	}
	priced, err := h.Svc.Add(r.Context(), in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": priced.View()})
}

// UpdateItem handles PATCH /api/v1/cart/items/{itemId}.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	itemID := strings.TrimSpace(chi.URLParam(r, "itemId"))
	if itemID == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "item id is required", nil)
		return
	}
	var in ItemUpdate
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request payload", nil)
		return
	}
	priced, err := h.Svc.Update(r.Context(), itemID, in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": priced.View()})
}

// RemoveItem handles DELETE /api/v1/cart/items/{itemId}.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	itemID := strings.TrimSpace(chi.URLParam(r, "itemId"))
	if itemID == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "item id is required", nil)
		return
	}
	priced, err := h.Svc.Remove(r.Context(), itemID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": priced.View()})
}

func (h *Handler) ready(w http.ResponseWriter, r *http.Request) bool {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return false
	}
	if _, ok := common.UserID(r.Context()); !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
		return false
	}
	return true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	common.WriteError(w, upstream.AppError(err))
}
