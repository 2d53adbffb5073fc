package users

import (
	"net/http"

	"btcpaper/internal/httputil"
	"btcpaper/internal/model"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Me returns the authenticated user with their current balance. The identity
// middleware has already resolved (or created) the user.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request, user *model.UserWithBalance) {
	httputil.WriteJSON(w, http.StatusOK, user)
}
