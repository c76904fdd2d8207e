package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/lojasmm/papo/internal/bot"
	"github.com/lojasmm/papo/internal/chat"
)

// TurnHandler runs one turn for an inbound event.
type TurnHandler interface {
	HandleEvent(ctx context.Context, ev bot.Event, out chat.Replier) (bool, error)
}

type turnRequest struct {
	UserID    string   `json:"user_id"`
	Text      string   `json:"text"`
	Images    []string `json:"images,omitempty"`
	Addressed *bool    `json:"addressed,omitempty"`
}

type turnResponse struct {
	Handled bool           `json:"handled"`
	Replies []chat.Content `json:"replies"`
	Error   string         `json:"error,omitempty"`
}

// buffer collects replies to return them in the HTTP response.
type buffer struct {
	mu      sync.Mutex
	replies []chat.Content
}

func (b *buffer) Reply(c chat.Content) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.replies = append(b.replies, c)
	return nil
}

type Handler struct {
	turns TurnHandler
}

func NewHandler(turns TurnHandler) *Handler {
	return &Handler{turns: turns}
}

// Routes mounts the turn endpoint.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/turns", h.HandleTurn)
	return r
}

// HandleTurn runs a turn synchronously and returns every reply it produced.
// Addressed defaults to true since direct API callers talk to the bot.
func (h *Handler) HandleTurn(w http.ResponseWriter, r *http.Request) {
	var req turnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	ev := bot.Event{UserID: req.UserID, Text: req.Text, Images: req.Images, Addressed: true}
	if req.Addressed != nil {
		ev.Addressed = *req.Addressed
	}

	out := &buffer{}
	handled, err := h.turns.HandleEvent(r.Context(), ev, out)

	resp := turnResponse{Handled: handled, Replies: out.replies}
	if resp.Replies == nil {
		resp.Replies = []chat.Content{}
	}
	status := http.StatusOK
	if err != nil {
		log.Printf("api: turn for %s failed: %v", req.UserID, err)
		resp.Error = err.Error()
		status = http.StatusBadGateway
		if errors.Is(err, bot.ErrStore) {
			status = http.StatusInternalServerError
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}
