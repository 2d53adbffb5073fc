package ledger

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"btcpaper/internal/httputil"
	"btcpaper/internal/model"
	"btcpaper/internal/store"
	"btcpaper/internal/types"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrPositionNotFound), errors.Is(err, store.ErrNotFound):
		httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: err.Error()})
	case errors.Is(err, store.ErrInsufficientBalance),
		errors.Is(err, ErrInvalidSide),
		errors.Is(err, ErrInvalidPrice),
		errors.Is(err, ErrInvalidQuantity),
		errors.Is(err, ErrInvalidAmount):
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
	default:
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{Error: "internal error"})
	}
}

func (h *Handler) Balance(w http.ResponseWriter, r *http.Request, owner model.Owner) {
	balance, err := h.svc.Balance(r.Context(), owner)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"balance": balance})
}

type openPositionRequest struct {
	Side       string `json:"type"`
	EntryPrice string `json:"entry_price"`
	Quantity   string `json:"quantity"`
}

func (h *Handler) OpenPosition(w http.ResponseWriter, r *http.Request, owner model.Owner) {
	var req openPositionRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	side := types.PositionSide(strings.ToLower(strings.TrimSpace(req.Side)))
	entryPrice, err := decimal.NewFromString(req.EntryPrice)
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid entry_price"})
		return
	}
	quantity, err := decimal.NewFromString(req.Quantity)
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid quantity"})
		return
	}
	res, err := h.svc.OpenPosition(r.Context(), owner, side, entryPrice, quantity)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, res)
}

type closePositionRequest struct {
	ExitPrice string `json:"exit_price"`
}

func (h *Handler) ClosePosition(w http.ResponseWriter, r *http.Request, owner model.Owner) {
	positionID := chi.URLParam(r, "id")
	if positionID == "" {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "position id is required"})
		return
	}
	var req closePositionRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	exitPrice, err := decimal.NewFromString(req.ExitPrice)
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid exit_price"})
		return
	}
	res, err := h.svc.ClosePosition(r.Context(), owner, positionID, exitPrice)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) Positions(w http.ResponseWriter, r *http.Request, owner model.Owner) {
	positions, err := h.svc.OpenPositions(r.Context(), owner)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"positions": positions})
}

func (h *Handler) Trades(w http.ResponseWriter, r *http.Request, owner model.Owner) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid limit"})
			return
		}
		limit = n
	}
	trades, err := h.svc.TradeHistory(r.Context(), owner, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"trades": trades})
}

func (h *Handler) Transactions(w http.ResponseWriter, r *http.Request, owner model.Owner) {
	txs, err := h.svc.TransactionHistory(r.Context(), owner)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"transactions": txs})
}

type adjustmentRequest struct {
	Amount string `json:"amount"`
}

func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request, owner model.Owner) {
	h.adjust(w, r, owner, true)
}

func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request, owner model.Owner) {
	h.adjust(w, r, owner, false)
}

func (h *Handler) adjust(w http.ResponseWriter, r *http.Request, owner model.Owner, deposit bool) {
	var req adjustmentRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.GreaterThan(decimal.Zero) {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid amount"})
		return
	}
	var res AdjustResult
	if deposit {
		res, err = h.svc.Deposit(r.Context(), owner, amount, nil)
	} else {
		res, err = h.svc.Withdraw(r.Context(), owner, amount, nil)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}
