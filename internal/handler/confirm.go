package handler

import (
	"net/http"
	"strings"

	"github.com/herald/api/internal/content"
	"github.com/herald/api/internal/subscription"
)

const confirmPrefix = "/subscriptions/@@"

type confirmResponse struct {
	Status  string        `json:"status"`
	Content *content.Node `json:"content"`
}

// Confirm serves the links mailed by the subscription service:
// <node path>/subscriptions/@@<action>?content=&email=&token=. The node path
// is informational; the content parameter is what the token is bound to.
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	i := strings.LastIndex(r.URL.Path, confirmPrefix)
	if i < 0 {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "Not found")
		return
	}
	action := subscription.Action(r.URL.Path[i+len(confirmPrefix):])
	if !action.Valid() {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "Not found")
		return
	}

	q := r.URL.Query()
	contentID, addr, token := q.Get("content"), q.Get("email"), q.Get("token")
	if contentID == "" || addr == "" || token == "" {
		writeError(w, http.StatusBadRequest, ErrCodeValidationError, "content, email and token are required")
		return
	}

	var (
		node   *content.Node
		err    error
		status string
	)
	switch action {
	case subscription.ActionConfirmSubscription:
		node, err = h.service.ConfirmSubscription(r.Context(), contentID, addr, token)
		status = "subscribed"
	case subscription.ActionConfirmCancellation:
		node, err = h.service.ConfirmCancellation(r.Context(), contentID, addr, token)
		status = "cancelled"
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, confirmResponse{Status: status, Content: node})
}
