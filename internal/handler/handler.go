package handler

import (
	"encoding/json"
	"net/http"

	"github.com/herald/api/internal/content"
	"github.com/herald/api/internal/events"
	"github.com/herald/api/internal/subscription"
)

// Handler serves the public subscription endpoints, the confirmation links
// and the admin API.
type Handler struct {
	content  *content.Repository
	resolver *subscription.Resolver
	service  *subscription.Service
	bus      *events.Bus
}

// Dependencies holds all dependencies for the Handler
type Dependencies struct {
	Content  *content.Repository
	Resolver *subscription.Resolver
	Service  *subscription.Service
	Bus      *events.Bus
}

func New(deps Dependencies) *Handler {
	return &Handler{
		content:  deps.Content,
		resolver: deps.Resolver,
		service:  deps.Service,
		bus:      deps.Bus,
	}
}

// maxBodySize bounds JSON request bodies.
const maxBodySize = 1 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidJSON, "Invalid request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
