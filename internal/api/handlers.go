package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins for local development
		// TODO: restrict in production
		return true
	},
}

// Handlers holds all HTTP handler dependencies
type Handlers struct {
	provider ReportProvider
	hub      *Hub
	logger   *slog.Logger
}

// NewHandlers creates a new handlers instance
func NewHandlers(provider ReportProvider, hub *Hub, logger *slog.Logger) *Handlers {
	return &Handlers{
		provider: provider,
		hub:      hub,
		logger:   logger.With("component", "api-handlers"),
	}
}

// HandleHealth returns a simple health check response
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// HandleReports returns the latest metrics for every account.
func (h *Handlers) HandleReports(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.provider.Reports()); err != nil {
		h.logger.Error("failed to encode reports", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// HandleReport returns the latest metrics for one account. The address in
// the path is normalized to checksum form before lookup, so any casing
// works.
func (h *Handlers) HandleReport(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimPrefix(r.URL.Path, "/api/reports/")
	if !common.IsHexAddress(raw) {
		http.Error(w, "invalid account address", http.StatusBadRequest)
		return
	}
	account := common.HexToAddress(raw).Hex()

	metrics, ok := h.provider.Latest(account)
	if !ok {
		http.Error(w, "no report for account", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(metrics); err != nil {
		h.logger.Error("failed to encode report", "error", err, "account", account)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// HandleWebSocket upgrades the connection and registers a refresh-stream
// client.
func (h *Handlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	NewClient(h.hub, conn)
}
