package pricefeed

import (
	"net/http"
	"strings"

	"btcpaper/internal/metrics"

	"github.com/gorilla/websocket"
)

// WSHandler streams price events to connected clients. The current quote is
// sent immediately on connect so the UI never starts blank.
type WSHandler struct {
	svc      *Service
	bus      *Bus
	origin   string
	upgrader websocket.Upgrader
}

func NewWSHandler(svc *Service, bus *Bus, origin string) *WSHandler {
	return &WSHandler{
		svc:    svc,
		bus:    bus,
		origin: origin,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return allowOrigin(r, origin) },
		},
	}
}

func allowOrigin(r *http.Request, origin string) bool {
	if origin == "*" {
		return true
	}
	return strings.EqualFold(r.Header.Get("Origin"), origin)
}

// priceMessage is the wire envelope for streamed quotes.
type priceMessage struct {
	Type string `json:"type"`
	Quote
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	metrics.WebSocketClients.Inc()
	defer metrics.WebSocketClients.Dec()

	ch := h.bus.Subscribe()
	defer h.bus.Unsubscribe(ch)

	if q := h.svc.Quote(); !q.UpdatedAt.IsZero() {
		if err := conn.WriteJSON(priceMessage{Type: "price", Quote: q}); err != nil {
			return
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	for {
		select {
		case q, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteJSON(priceMessage{Type: "price", Quote: q}); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
