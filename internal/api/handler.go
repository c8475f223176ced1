// Package api provides the HTTP admin and health surface of the relay.
// All endpoints are read-only over state the chat core exposes, plus the
// manual whitelist reload trigger.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/nvoronin/gatechat/internal/chat"
	"github.com/nvoronin/gatechat/internal/store"
	"github.com/nvoronin/gatechat/internal/whitelist"
)

// Handler serves the health snapshot and admin endpoints.
type Handler struct {
	whitelist      *whitelist.Store
	ledger         store.Ledger
	sup            *chat.Supervisor
	logsConfigured bool
	chatConfigured bool
}

// NewHandler creates the admin handler. The webhook flags only report
// configuration state in the health snapshot.
func NewHandler(wl *whitelist.Store, ledger store.Ledger, sup *chat.Supervisor, logsConfigured, chatConfigured bool) *Handler {
	return &Handler{
		whitelist:      wl,
		ledger:         ledger,
		sup:            sup,
		logsConfigured: logsConfigured,
		chatConfigured: chatConfigured,
	}
}

// RegisterRoutes mounts the handler's endpoints on the router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.status)
	r.Get("/reload-whitelist", h.reloadWhitelist)
	r.Get("/admin/code-usage", h.codeUsage)
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	trackedCodes, err := h.ledger.CodeCount(r.Context())
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to read usage ledger")
		return
	}

	JSON(w, http.StatusOK, map[string]any{
		"status":           "ok",
		"time":             time.Now().Format(time.RFC3339),
		"connectedClients": h.sup.ConnectedCount(),
		"whitelistedCodes": h.whitelist.Size(),
		"trackedCodes":     trackedCodes,
		"webhooksConfigured": map[string]bool{
			"logs": h.logsConfigured,
			"chat": h.chatConfigured,
		},
	})
}

func (h *Handler) reloadWhitelist(w http.ResponseWriter, _ *http.Request) {
	if err := h.whitelist.Reload(); err != nil {
		Error(w, http.StatusInternalServerError, "failed to reload whitelist")
		return
	}
	JSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"message":    "whitelist reloaded",
		"totalCodes": h.whitelist.Size(),
	})
}

func (h *Handler) codeUsage(w http.ResponseWriter, r *http.Request) {
	usage, err := h.ledger.Snapshot(r.Context())
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to read usage ledger")
		return
	}

	totalUsers := 0
	for _, names := range usage {
		totalUsers += len(names)
	}
	JSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"timestamp":  time.Now().Format(time.RFC3339),
		"codeUsage":  usage,
		"totalCodes": len(usage),
		"totalUsers": totalUsers,
	})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}
