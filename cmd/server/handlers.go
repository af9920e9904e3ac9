package server

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"time"

	"k8s.io/klog/v2"

	"github.com/podwatch/podwatch/internal/config"
	"github.com/podwatch/podwatch/internal/db"
	"github.com/podwatch/podwatch/internal/types"
)

// GET /api/v1/pods?namespace=default
func (api *APIServer) handlePods(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	namespace := r.URL.Query().Get("namespace")

	pods := make([]types.ResourceSnapshot, 0)
	for _, snap := range api.state.Snapshots(namespace) {
		if snap.Kind == types.KindPod {
			pods = append(pods, snap)
		}
	}
	sort.Slice(pods, func(i, j int) bool {
		if pods[i].Namespace != pods[j].Namespace {
			return pods[i].Namespace < pods[j].Namespace
		}
		return pods[i].Name < pods[j].Name
	})

	api.respondJSON(w, map[string]interface{}{
		"count": len(pods),
		"pods":  pods,
	})
}

// GET /api/v1/nodes
func (api *APIServer) handleNodes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	nodes := make([]types.ResourceSnapshot, 0)
	for _, snap := range api.state.Snapshots("") {
		if snap.Kind == types.KindNode {
			nodes = append(nodes, snap)
		}
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Name < nodes[j].Name })

	stats, err := api.store.QueryNodeStats()
	if err != nil {
		api.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	api.respondJSON(w, map[string]interface{}{
		"count": len(nodes),
		"nodes": nodes,
		"stats": stats,
	})
}

// GET /api/v1/history?days=7&namespace=default&name=web&type=status_change&limit=100
func (api *APIServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	days := queryInt(r, "days", 7)
	limit := queryInt(r, "limit", 100)

	q := db.ChangeQuery{
		Since:     time.Now().UTC().AddDate(0, 0, -days),
		Namespace: r.URL.Query().Get("namespace"),
		Name:      r.URL.Query().Get("name"),
		Type:      types.ChangeType(r.URL.Query().Get("type")),
		Limit:     limit,
	}

	events, err := api.store.QueryChanges(q)
	if err != nil {
		api.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	api.respondJSON(w, map[string]interface{}{
		"count":  len(events),
		"days":   days,
		"events": events,
	})
}

// GET /api/v1/metrics?namespace=default&name=web&hours=24
func (api *APIServer) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	namespace := r.URL.Query().Get("namespace")
	name := r.URL.Query().Get("name")
	if namespace == "" || name == "" {
		api.respondError(w, http.StatusBadRequest, "namespace and name are required")
		return
	}
	hours := queryInt(r, "hours", 24)

	key := types.SnapshotKey{Kind: types.KindPod, Namespace: namespace, Name: name}
	samples, err := api.store.QueryMetrics(key, time.Duration(hours)*time.Hour)
	if err != nil {
		api.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	api.respondJSON(w, map[string]interface{}{
		"count":   len(samples),
		"hours":   hours,
		"samples": samples,
	})
}

// GET /api/v1/config
// POST /api/v1/config
// POST body: {"password": "...", "config": {...}}
func (api *APIServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		cfg := api.config.Get()
		// The admin credential never leaves the process.
		cfg.Monitoring.AdminPassword = ""
		api.respondJSON(w, cfg)

	case http.MethodPost:
		var req struct {
			Password string        `json:"password"`
			Config   config.Config `json:"config"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			api.respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		if err := config.Validate(config.ApplyDefaults(req.Config)); err != nil {
			api.respondError(w, http.StatusBadRequest, err.Error())
			return
		}

		if err := api.config.Update(req.Config, req.Password); err != nil {
			if err == config.ErrUnauthorized {
				api.respondError(w, http.StatusForbidden, "invalid credential")
				return
			}
			api.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		api.respondJSON(w, map[string]string{"status": "updated"})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// POST /api/v1/pod/restart
// Body: {"password": "...", "namespace": "default", "name": "web"}
func (api *APIServer) handlePodRestart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Password  string `json:"password"`
		Namespace string `json:"namespace"`
		Name      string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Namespace == "" || req.Name == "" {
		api.respondError(w, http.StatusBadRequest, "namespace and name are required")
		return
	}

	if !api.config.CheckCredential(req.Password) {
		api.respondError(w, http.StatusForbidden, "invalid credential")
		return
	}

	key := types.SnapshotKey{Kind: types.KindPod, Namespace: req.Namespace, Name: req.Name}
	if err := api.restarter.DeleteResource(r.Context(), key); err != nil {
		api.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	api.respondJSON(w, map[string]string{
		"status":    "restarting",
		"namespace": req.Namespace,
		"name":      req.Name,
	})
}

// POST /api/v1/cleanup
// Body: {"password": "...", "days": 7} (days optional)
func (api *APIServer) handleCleanup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Password string `json:"password"`
		Days     int    `json:"days"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if !api.config.CheckCredential(req.Password) {
		api.respondError(w, http.StatusForbidden, "invalid credential")
		return
	}

	counts, err := api.cleaner.RunCleanup(req.Days)
	if err != nil {
		api.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	api.respondJSON(w, map[string]interface{}{
		"status":  "completed",
		"removed": counts,
	})
}

// GET /health
func (api *APIServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status": "healthy",
		"time":   time.Now(),
	}

	if err := api.store.Ping(); err != nil {
		health["status"] = "unhealthy"
		health["database"] = "disconnected"
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		health["database"] = "connected"
	}

	api.respondJSON(w, health)
}

// GET /ready
func (api *APIServer) handleReady(w http.ResponseWriter, r *http.Request) {
	// Ready once the first poll cycle has populated the baseline.
	ready := api.state.Baseline() != nil
	if !ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	api.respondJSON(w, map[string]interface{}{
		"ready":     ready,
		"resources": api.state.Len(),
	})
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func (api *APIServer) respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (api *APIServer) respondError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (api *APIServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		klog.Infof("[%s] %s %s (%v)", r.Method, r.URL.Path, r.RemoteAddr, time.Since(start))
	})
}

func (api *APIServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
