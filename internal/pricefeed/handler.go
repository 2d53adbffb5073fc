package pricefeed

import (
	"net/http"

	"btcpaper/internal/httputil"
)

type Handler struct {
	svc *Service
	WS  *WSHandler
}

func NewHandler(svc *Service, ws *WSHandler) *Handler {
	return &Handler{svc: svc, WS: ws}
}

func (h *Handler) Price(w http.ResponseWriter, r *http.Request) {
	q := h.svc.Quote()
	if q.UpdatedAt.IsZero() {
		httputil.WriteJSON(w, http.StatusServiceUnavailable, httputil.ErrorResponse{Error: "price feed not ready"})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, q)
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	points := h.svc.Series()
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"prices": points})
}
