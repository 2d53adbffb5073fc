package health

import (
	"context"
	"net/http"
	"time"

	"btcpaper/internal/httputil"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Handler reports liveness and readiness. In demo mode there is no database,
// so readiness only covers the process itself.
type Handler struct {
	pool      *pgxpool.Pool
	startedAt time.Time
	storeMode string
}

func NewHandler(pool *pgxpool.Pool, startedAt time.Time, storeMode string) *Handler {
	start := startedAt.UTC()
	if start.IsZero() {
		start = time.Now().UTC()
	}
	return &Handler{pool: pool, startedAt: start, storeMode: storeMode}
}

type databaseStat struct {
	Reachable bool   `json:"reachable"`
	PingMs    int64  `json:"ping_ms"`
	Error     string `json:"error,omitempty"`
	CheckedAt string `json:"checked_at"`
}

type healthResponse struct {
	Status    string        `json:"status"`
	Timestamp string        `json:"timestamp"`
	UptimeSec int64         `json:"uptime_sec"`
	Uptime    string        `json:"uptime"`
	StoreMode string        `json:"store_mode"`
	Database  *databaseStat `json:"database,omitempty"`
}

func (h *Handler) uptime(now time.Time) time.Duration {
	uptime := now.Sub(h.startedAt)
	if uptime < 0 {
		return 0
	}
	return uptime
}

func (h *Handler) pingDB(ctx context.Context) databaseStat {
	start := time.Now()
	pingCtx, cancel := context.WithTimeout(ctx, time.Second)
	err := h.pool.Ping(pingCtx)
	cancel()
	stat := databaseStat{
		PingMs:    time.Since(start).Milliseconds(),
		CheckedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if err != nil {
		stat.Error = err.Error()
	} else {
		stat.Reachable = true
	}
	return stat
}

// Live does not touch the database.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	uptime := h.uptime(now)
	httputil.WriteJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Timestamp: now.Format(time.RFC3339),
		UptimeSec: int64(uptime.Seconds()),
		Uptime:    uptime.String(),
		StoreMode: h.storeMode,
	})
}

// Ready checks the database when one is configured and returns 503 when it is
// not reachable.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	uptime := h.uptime(now)
	resp := healthResponse{
		Status:    "ok",
		Timestamp: now.Format(time.RFC3339),
		UptimeSec: int64(uptime.Seconds()),
		Uptime:    uptime.String(),
		StoreMode: h.storeMode,
	}
	httpStatus := http.StatusOK
	if h.pool != nil {
		db := h.pingDB(r.Context())
		resp.Database = &db
		if !db.Reachable {
			resp.Status = "degraded"
			httpStatus = http.StatusServiceUnavailable
		}
	}
	httputil.WriteJSON(w, httpStatus, resp)
}

// Get keeps compatibility: /health is the readiness summary.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	h.Ready(w, r)
}
