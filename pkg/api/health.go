package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/vanguarddb/vanguard/pkg/catalog"
	"github.com/vanguarddb/vanguard/pkg/metrics"
)

// HealthServer provides HTTP health check endpoints for a master node.
type HealthServer struct {
	mgr *catalog.Manager
	mux *http.ServeMux
}

// NewHealthServer creates a new health check HTTP server.
func NewHealthServer(mgr *catalog.Manager) *HealthServer {
	mux := http.NewServeMux()
	hs := &HealthServer{mgr: mgr, mux: mux}

	mux.HandleFunc("/health", hs.HealthHandler)
	mux.HandleFunc("/ready", hs.ReadyHandler)
	mux.HandleFunc("/live", hs.LivenessHandler)
	mux.Handle("/metrics", metrics.Handler())

	return hs
}

func (hs *HealthServer) Start(addr string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      hs.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return server.ListenAndServe()
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type ReadyResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
	Message   string            `json:"message,omitempty"`
}

// HealthHandler is a liveness check: 200 if the process is alive.
func (hs *HealthServer) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	response := HealthResponse{Status: "healthy", Timestamp: time.Now()}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(response)
}

// ReadyHandler checks whether this master is ready to serve reads (and, if
// leader, writes): the Raft group has a leader and the Sys-Catalog store
// responds.
func (hs *HealthServer) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	checks := make(map[string]string)
	ready := true
	var message string

	if hs.mgr != nil {
		if hs.mgr.IsLeader() {
			checks["raft"] = "leader"
		} else if leaderAddr := hs.mgr.LeaderAddr(); leaderAddr != "" {
			checks["raft"] = fmt.Sprintf("follower (leader: %s)", leaderAddr)
		} else {
			checks["raft"] = "no leader elected"
			ready = false
			message = "waiting for leader election"
		}
	} else {
		checks["raft"] = "not initialized"
		ready = false
		message = "manager not initialized"
	}

	if hs.mgr != nil {
		// ListNamespaces always succeeds against a live registry; it is
		// the cheapest read that proves the Sys-Catalog was rebuilt.
		hs.mgr.ListNamespaces()
		checks["storage"] = "ok"
	} else {
		checks["storage"] = "not initialized"
		ready = false
	}

	status, statusCode := "ready", http.StatusOK
	if !ready {
		status, statusCode = "not ready", http.StatusServiceUnavailable
	}

	response := ReadyResponse{Status: status, Timestamp: time.Now(), Checks: checks, Message: message}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(response)
}

// LivenessHandler always reports alive if the process can answer at
// all; unlike ReadyHandler it never depends on Raft or storage state.
func (hs *HealthServer) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "alive"})
}

// GetHandler returns the HTTP handler for embedding in other servers.
func (hs *HealthServer) GetHandler() http.Handler {
	return hs.mux
}
