package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/ashureev/nutriplan/internal/chat"
	"github.com/ashureev/nutriplan/internal/domain"
	"github.com/coder/websocket"
	"github.com/google/uuid"
)

const wsWriteTimeout = 10 * time.Second

// wsFrame is sent to the page script.
type wsFrame struct {
	Type    string        `json:"type"`
	Message *chat.Message `json:"message,omitempty"`
	ID      string        `json:"id,omitempty"`
	Enabled *bool         `json:"enabled,omitempty"`
	Error   string        `json:"error,omitempty"`
}

// wsInbound is received from the page script.
type wsInbound struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// wsView implements chat.View on top of a WebSocket.
type wsView struct {
	mu   sync.Mutex
	conn *websocket.Conn
	ctx  context.Context
}

func (v *wsView) write(frame wsFrame) {
	data, err := json.Marshal(frame)
	if err != nil {
		slog.Error("Failed to encode chat frame", "error", err)
		return
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.ctx.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(v.ctx, wsWriteTimeout)
	defer cancel()
	if err := v.conn.Write(ctx, websocket.MessageText, data); err != nil {
		slog.Debug("WebSocket write error", "error", err)
	}
}

func (v *wsView) ShowMessage(msg chat.Message) {
	v.write(wsFrame{Type: "message", Message: &msg})
}

func (v *wsView) RemoveMessage(id string) {
	v.write(wsFrame{Type: "remove", ID: id})
}

func (v *wsView) SetInputEnabled(enabled bool) {
	v.write(wsFrame{Type: "input", Enabled: &enabled})
}

func (v *wsView) showError(message string) {
	v.write(wsFrame{Type: "error", Error: message})
}

// ChatSocket runs one chat page visit. The conversation lives as long as the connection.
func (h *Handler) ChatSocket(w http.ResponseWriter, r *http.Request) {
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	d, err := h.deps(r.Context())
	if err != nil {
		slog.Error("Failed to load client state", "error", err)
		http.Error(w, "failed to load client state", http.StatusInternalServerError)
		return
	}

	mealPlan, _, err := d.storage.GetItem(r.Context(), domain.KeyMealPlan)
	if err != nil {
		slog.Error("Failed to load meal plan", "client_id", d.clientID, "error", err)
		http.Error(w, "failed to load meal plan", http.StatusInternalServerError)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "client_id", d.clientID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "visit ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "client_id", d.clientID)
		}
	}()

	visitID := uuid.NewString()
	h.visits.Register(d.clientID, visitID, ws)
	defer h.visits.Unregister(d.clientID, visitID, ws)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	view := &wsView{conn: ws, ctx: ctx}
	ctrl := chat.NewController(d.api, view, mealPlan)
	slog.Info("Chat visit started", "client_id", d.clientID, "visit_id", visitID, "has_plan", mealPlan != "")

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
				slog.Debug("WebSocket closed by client", "client_id", d.clientID)
			} else {
				slog.Warn("WebSocket read error", "error", err, "client_id", d.clientID)
			}
			cancel()
			return
		}

		var msg wsInbound
		if err := json.Unmarshal(data, &msg); err != nil || msg.Type != "send" {
			slog.Debug("Ignoring chat frame", "client_id", d.clientID)
			continue
		}
		if !h.limiter.Allow(d.clientID) {
			view.showError("Too many requests. Please slow down.")
			continue
		}

		wg.Add(1)
		go func(text string) {
			defer wg.Done()
			if err := ctrl.Send(ctx, text); errors.Is(err, chat.ErrAwaitingResponse) {
				view.showError("Please wait for the assistant to reply.")
			}
		}(msg.Text)
	}
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.cfg.IsDevelopment() {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if u, err := url.Parse(origin); err == nil && u.Host == r.Host {
		return true
	}
	for _, allowed := range h.cfg.Origins() {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	slog.Warn("WebSocket origin rejected", "origin", origin)
	return false
}
