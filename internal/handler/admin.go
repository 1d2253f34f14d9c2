package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/herald/api/internal/content"
	"github.com/herald/api/internal/events"
	"github.com/herald/api/internal/subscription"
)

func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Settings())
}

func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var update subscription.SettingsUpdate
	if !decodeJSON(w, r, &update) {
		return
	}
	settings, err := h.service.UpdateSettings(r.Context(), update)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (h *Handler) EnableSubscriptions(w http.ResponseWriter, r *http.Request) {
	if err := h.service.EnableSubscriptions(r.Context()); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.service.Settings())
}

func (h *Handler) DisableSubscriptions(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DisableSubscriptions(r.Context()); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.service.Settings())
}

type contentSubscriptionsResponse struct {
	Content         *content.Node                  `json:"content"`
	Subscribability subscription.Subscribability   `json:"subscribability"`
	Choices         []subscription.Subscribability `json:"choices"`
	Emails          []string                       `json:"emails"`
	Summary         subscription.Summary           `json:"summary"`
}

type contentSubscriptionsInput struct {
	Subscribability *subscription.Subscribability `json:"subscribability"`
	Emails          *[]string                     `json:"emails"`
}

func (h *Handler) GetContentSubscriptions(w http.ResponseWriter, r *http.Request) {
	node, ok := h.node(w, r)
	if !ok {
		return
	}
	h.writeContentSubscriptions(w, r, node)
}

// UpdateContentSubscriptions sets the node's own subscribability and/or
// replaces its local address list. Addresses are added without
// confirmation, so this stays behind the admin token.
func (h *Handler) UpdateContentSubscriptions(w http.ResponseWriter, r *http.Request) {
	node, ok := h.node(w, r)
	if !ok {
		return
	}
	var input contentSubscriptionsInput
	if !decodeJSON(w, r, &input) {
		return
	}
	if !h.resolver.Supports(node) {
		writeServiceError(w, r, subscription.ErrNotSubscribable)
		return
	}
	if input.Emails != nil {
		for _, addr := range *input.Emails {
			if err := subscription.ValidateEmail(addr); err != nil {
				writeError(w, http.StatusBadRequest, ErrCodeInvalidEmail, "Invalid email address: "+addr)
				return
			}
		}
	}

	ctx := r.Context()
	if input.Subscribability != nil {
		if err := h.resolver.SetSubscribability(ctx, node, *input.Subscribability); err != nil {
			writeServiceError(w, r, err)
			return
		}
	}
	if input.Emails != nil {
		if err := h.resolver.SetLocalEmails(ctx, node, *input.Emails); err != nil {
			writeServiceError(w, r, err)
			return
		}
	}
	slog.Info("updated content subscriptions", "component", "handler", "content_id", node.ID)
	h.writeContentSubscriptions(w, r, node)
}

func (h *Handler) writeContentSubscriptions(w http.ResponseWriter, r *http.Request, node *content.Node) {
	ctx := r.Context()
	resp := contentSubscriptionsResponse{Content: node, Choices: subscription.Choices(node)}

	var err error
	if resp.Subscribability, err = h.resolver.Subscribability(ctx, node); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if resp.Emails, err = h.resolver.LocalEmails(ctx, node); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if resp.Summary, err = h.resolver.Summary(ctx, node); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type createContentInput struct {
	ID        string  `json:"id"`
	ParentID  *string `json:"parent_id"`
	Name      string  `json:"name"`
	Title     string  `json:"title"`
	Kind      string  `json:"kind"`
	HauntedID *string `json:"haunted_id"`
}

// CreateContent mirrors a CMS node into the local tree.
func (h *Handler) CreateContent(w http.ResponseWriter, r *http.Request) {
	var input createContentInput
	if !decodeJSON(w, r, &input) {
		return
	}
	node := &content.Node{
		ID:        input.ID,
		ParentID:  input.ParentID,
		Name:      input.Name,
		Title:     input.Title,
		Kind:      input.Kind,
		HauntedID: input.HauntedID,
	}
	if err := h.content.Create(r.Context(), node); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, node)
}

type publishedInput struct {
	ContentID   string     `json:"content_id"`
	PublishedAt *time.Time `json:"published_at"`
}

// Published is the CMS webhook for publish events. Delivery failures are
// logged and the event is still acknowledged. The fan-out outlives the
// webhook call, so a caller that hangs up does not cut off the remaining
// subscribers.
func (h *Handler) Published(w http.ResponseWriter, r *http.Request) {
	var input publishedInput
	if !decodeJSON(w, r, &input) {
		return
	}
	if input.ContentID == "" {
		writeError(w, http.StatusBadRequest, ErrCodeValidationError, "content_id is required")
		return
	}
	if _, err := h.content.GetByID(r.Context(), input.ContentID); err != nil {
		writeServiceError(w, r, err)
		return
	}

	event := events.Published{ContentID: input.ContentID}
	if input.PublishedAt != nil {
		event.PublishedAt = *input.PublishedAt
	}
	if err := h.bus.Publish(context.WithoutCancel(r.Context()), event); err != nil {
		slog.Error("publish event delivered with errors", "component", "handler", "content_id", input.ContentID, "error", err)
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}
