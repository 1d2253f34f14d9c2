package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/herald/api/internal/content"
	"github.com/herald/api/internal/subscription"
)

// requestAccepted is returned for every well-formed request, whether or not
// the address was already subscribed, so responses do not reveal who is.
const requestAccepted = "Check your inbox: we have sent you an email with further instructions."

type emailInput struct {
	Email string `json:"email"`
}

type statusResponse struct {
	ContentID string `json:"content_id"`
	Enabled   bool   `json:"enabled"`
}

func (h *Handler) node(w http.ResponseWriter, r *http.Request) (*content.Node, bool) {
	node, err := h.content.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return nil, false
	}
	return node, true
}

// SubscriptionStatus reports whether node currently accepts subscriptions.
func (h *Handler) SubscriptionStatus(w http.ResponseWriter, r *http.Request) {
	node, ok := h.node(w, r)
	if !ok {
		return
	}
	enabled, err := h.service.AreSubscriptionsEnabled(r.Context(), node)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{ContentID: node.ID, Enabled: enabled})
}

func (h *Handler) RequestSubscription(w http.ResponseWriter, r *http.Request) {
	node, ok := h.node(w, r)
	if !ok {
		return
	}
	var input emailInput
	if !decodeJSON(w, r, &input) {
		return
	}

	err := h.service.RequestSubscription(r.Context(), node, strings.TrimSpace(input.Email))
	if err != nil && !errors.Is(err, subscription.ErrAlreadySubscribed) {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"message": requestAccepted})
}

func (h *Handler) RequestCancellation(w http.ResponseWriter, r *http.Request) {
	node, ok := h.node(w, r)
	if !ok {
		return
	}
	var input emailInput
	if !decodeJSON(w, r, &input) {
		return
	}

	err := h.service.RequestCancellation(r.Context(), node, strings.TrimSpace(input.Email))
	if err != nil && !errors.Is(err, subscription.ErrNotSubscribed) {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"message": requestAccepted})
}
