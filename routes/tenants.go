// Package routes exposes the operator HTTP API: tenant inventory, run
// history, remote stop, and the lifecycle event stream.
package routes

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/musichost/hoster/registry"
	"github.com/musichost/hoster/store"
)

// Lifecycle is the slice of the orchestrator the stop routes need.
type Lifecycle interface {
	StopTenant(ctx context.Context, userID int64) (registry.Tenant, bool)
	StopAll(ctx context.Context)
}

// tenantView is the API representation of a registered tenant. The bot
// token never leaves the process.
type tenantView struct {
	UserID      int64     `json:"user_id"`
	BotUsername string    `json:"bot_username"`
	WorkDir     string    `json:"work_dir"`
	Alive       bool      `json:"alive"`
	StartedAt   time.Time `json:"started_at"`
	LastSeen    time.Time `json:"last_seen"`
}

func viewOf(t registry.Tenant) tenantView {
	view := tenantView{
		UserID:      t.UserID,
		BotUsername: t.BotUsername,
		WorkDir:     t.WorkDir,
		StartedAt:   t.StartedAt,
		LastSeen:    t.LastSeen,
	}
	if t.Handle != nil {
		view.Alive = t.Handle.Alive()
	}
	return view
}

// MountTenantRoutes registers tenant inventory and lifecycle routes.
func MountTenantRoutes(mux *http.ServeMux, reg *registry.Registry, runs *store.RunStore, lifecycle Lifecycle) {
	mux.HandleFunc("GET /api/tenants", func(w http.ResponseWriter, r *http.Request) {
		tenants := reg.Snapshot()
		views := make([]tenantView, 0, len(tenants))
		for _, t := range tenants {
			views = append(views, viewOf(t))
		}
		writeJSON(w, http.StatusOK, map[string]any{"tenants": views})
	})

	mux.HandleFunc("GET /api/tenants/{id}", func(w http.ResponseWriter, r *http.Request) {
		userID, ok := tenantID(w, r)
		if !ok {
			return
		}

		tenant, ok := reg.Get(userID)
		if !ok {
			writeAPIError(w, http.StatusNotFound, "tenant not found")
			return
		}
		writeJSON(w, http.StatusOK, viewOf(tenant))
	})

	mux.HandleFunc("GET /api/tenants/{id}/runs/latest", func(w http.ResponseWriter, r *http.Request) {
		userID, ok := tenantID(w, r)
		if !ok {
			return
		}

		run, err := runs.LatestRun(r.Context(), userID)
		if errors.Is(err, store.ErrNotConfigured) {
			writeAPIError(w, http.StatusServiceUnavailable, "run history is not configured")
			return
		}
		if err != nil {
			writeAPIError(w, http.StatusInternalServerError, "failed to load run history")
			return
		}
		if run == nil {
			writeAPIError(w, http.StatusNotFound, "no runs recorded")
			return
		}
		writeJSON(w, http.StatusOK, run)
	})

	mux.HandleFunc("POST /api/tenants/{id}/stop", func(w http.ResponseWriter, r *http.Request) {
		userID, ok := tenantID(w, r)
		if !ok {
			return
		}

		tenant, ok := lifecycle.StopTenant(r.Context(), userID)
		if !ok {
			writeAPIError(w, http.StatusNotFound, "tenant not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"status":       "stopped",
			"bot_username": tenant.BotUsername,
		})
	})

	mux.HandleFunc("POST /api/stop-all", func(w http.ResponseWriter, r *http.Request) {
		stopped := reg.Len()
		lifecycle.StopAll(r.Context())
		writeJSON(w, http.StatusOK, map[string]any{"status": "stopped", "count": stopped})
	})

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "tenants": reg.Len()})
	})
}

func tenantID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := strings.TrimSpace(r.PathValue("id"))
	if raw == "" {
		writeAPIError(w, http.StatusBadRequest, "missing tenant id")
		return 0, false
	}
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, "tenant id must be numeric")
		return 0, false
	}
	return userID, true
}
