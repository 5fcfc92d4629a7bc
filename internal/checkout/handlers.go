package checkout

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/noah-isme/promo-storefront/internal/common"
	"github.com/noah-isme/promo-storefront/internal/upstream"
)

// Handler exposes checkout over HTTP.
type Handler struct {
	Svc *Service
}

// Checkout handles POST /api/v1/checkout. The Idempotency-Key header names
// the attempt; replaying a completed key returns the same order with 200.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.ready(w, r)
	if !ok {
		return
	}
	var in Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request payload", nil)
		return
	}
	res, err := h.Svc.Checkout(r.Context(), userID, r.Header.Get(common.IdempotencyHeader), in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	common.JSON(w, status, map[string]any{"data": map[string]any{
		"order":    res.Order,
		"attempt":  res.Attempt.View(),
		"replayed": res.Replayed,
	}})
}

// Quote handles POST /api/v1/checkout/quote: the totals checkout would
// charge, without charging.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.ready(w, r); !ok {
		return
	}
	totals, err := h.Svc.Quote(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": totals.View()})
}

// Attempt handles GET /api/v1/checkout/attempts/{attemptId}.
func (h *Handler) Attempt(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.ready(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, "attemptId")))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid attempt id", nil)
		return
	}
	a, err := h.Svc.FindAttempt(r.Context(), userID, id)
	if errors.Is(err, ErrAttemptNotFound) {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "checkout attempt not found", nil)
		return
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": a.View()})
}

func (h *Handler) ready(w http.ResponseWriter, r *http.Request) (string, bool) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return "", false
	}
	userID, ok := common.UserID(r.Context())
	if !ok || userID == "" {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
		return "", false
	}
	return userID, true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	common.WriteError(w, upstream.AppError(err))
}
