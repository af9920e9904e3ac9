package server

import (
	"context"
	"net/http"

	"k8s.io/klog/v2"

	"github.com/podwatch/podwatch/internal/config"
	"github.com/podwatch/podwatch/internal/db"
	"github.com/podwatch/podwatch/internal/state"
	"github.com/podwatch/podwatch/internal/types"
)

// Restarter deletes a pod so its controller reschedules it.
type Restarter interface {
	DeleteResource(ctx context.Context, key types.SnapshotKey) error
}

// Cleaner runs a retention prune on demand. A non-positive days value
// uses the configured retention.
type Cleaner interface {
	RunCleanup(days int) (map[string]int64, error)
}

type APIServer struct {
	store     db.Store
	state     *state.SnapshotStore
	config    *config.Manager
	restarter Restarter
	cleaner   Cleaner
	mux       *http.ServeMux
}

func NewAPIServer(store db.Store, st *state.SnapshotStore, cfg *config.Manager, restarter Restarter, cleaner Cleaner) *APIServer {
	api := &APIServer{
		store:     store,
		state:     st,
		config:    cfg,
		restarter: restarter,
		cleaner:   cleaner,
		mux:       http.NewServeMux(),
	}
	api.registerRoutes()
	return api
}

func (api *APIServer) registerRoutes() {
	// Current state
	api.mux.HandleFunc("/api/v1/pods", api.handlePods)
	api.mux.HandleFunc("/api/v1/nodes", api.handleNodes)

	// Persisted history
	api.mux.HandleFunc("/api/v1/history", api.handleHistory)
	api.mux.HandleFunc("/api/v1/metrics", api.handleMetrics)

	// Configuration
	api.mux.HandleFunc("/api/v1/config", api.handleConfig)

	// Administrative actions
	api.mux.HandleFunc("/api/v1/pod/restart", api.handlePodRestart)
	api.mux.HandleFunc("/api/v1/cleanup", api.handleCleanup)

	// Health check
	api.mux.HandleFunc("/health", api.handleHealth)
	api.mux.HandleFunc("/ready", api.handleReady)
}

func (api *APIServer) Start(addr string) error {
	klog.Infof("Starting API server on %s", addr)

	handler := api.corsMiddleware(api.loggingMiddleware(api.mux))

	return http.ListenAndServe(addr, handler)
}
