package user

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/promo-storefront/internal/common"
	"github.com/noah-isme/promo-storefront/internal/upstream"
)

// Handler exposes REST endpoints for managing address book entries.
type Handler struct {
	Book       AddressBook
	Reconciler Reconciler
}

type reconcileRequest struct {
	BillingAddressID  string `json:"billing_address_id"`
	ShippingAddressID string `json:"shipping_address_id"`
	SyncShipping      bool   `json:"sync_shipping"`
}

// List handles GET /api/v1/users/me/addresses.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	addrs, err := h.Book.List(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data":  addrs,
		"state": StateOf(addrs),
	})
}

// Create handles POST /api/v1/users/me/addresses.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	in, ok := decodeInput(w, r)
	if !ok {
		return
	}
	address, err := h.Book.Create(r.Context(), in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": address})
}

// Update handles PATCH /api/v1/users/me/addresses/{addressID}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	addressID := chi.URLParam(r, "addressID")
	if strings.TrimSpace(addressID) == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "address id is required", nil)
		return
	}
	in, ok := decodeInput(w, r)
	if !ok {
		return
	}
	address, err := h.Book.Update(r.Context(), addressID, in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": address})
}

// Delete handles DELETE /api/v1/users/me/addresses/{addressID}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	addressID := chi.URLParam(r, "addressID")
	if strings.TrimSpace(addressID) == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "address id is required", nil)
		return
	}
	if err := h.Book.Delete(r.Context(), addressID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Reconcile handles POST /api/v1/users/me/addresses/reconcile.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	var req reconcileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request payload", nil)
		return
	}
	res, err := h.Reconciler.Reconcile(r.Context(), req.BillingAddressID, req.ShippingAddressID, req.SyncShipping)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": res})
}

func (h *Handler) ready(w http.ResponseWriter, r *http.Request) bool {
	if h.Book == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "address service not configured", nil)
		return false
	}
	if _, ok := common.UserID(r.Context()); !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
		return false
	}
	return true
}

func decodeInput(w http.ResponseWriter, r *http.Request) (AddressInput, bool) {
	var in AddressInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request payload", nil)
		return AddressInput{}, false
	}
	in.AddressType = AddressType(strings.ToLower(strings.TrimSpace(string(in.AddressType))))
	if err := common.ValidateStruct(in); err != nil {
		common.WriteError(w, err)
		return AddressInput{}, false
	}
	return in, true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	common.WriteError(w, upstream.AppError(err))
}
