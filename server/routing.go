package server

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// setupHTTPRoutes configures all HTTP handlers
func (s *Server) setupHTTPRoutes() {
	s.mux.HandleFunc("/health", s.corsMiddleware(s.HandleHealth))
	s.mux.Handle("/metrics", promhttp.Handler())

	s.mux.HandleFunc("/api/jobs", s.corsMiddleware(s.HandleJobs))                          // List jobs (GET)
	s.mux.HandleFunc("/api/jobs/{id}", s.corsMiddleware(s.HandleJob))                      // One job (GET/PUT)
	s.mux.HandleFunc("/api/executions", s.corsMiddleware(s.HandleExecutions))              // List executions (GET)
	s.mux.HandleFunc("/api/executions/{executionId}", s.corsMiddleware(s.HandleExecution)) // One execution (GET)
	s.mux.HandleFunc("/api/logs/{executionId}", s.corsMiddleware(s.HandleLogs))            // Logs of one execution (GET)
	s.mux.HandleFunc("/api/rca", s.corsMiddleware(s.HandleRCAs))                           // List/upsert knowledge base (GET/POST)
	s.mux.HandleFunc("/api/rca/{id}", s.corsMiddleware(s.HandleRCA))                       // One knowledge base entry (GET)
	s.mux.HandleFunc("/api/auditlogs", s.corsMiddleware(s.HandleAuditLogs))                // List/append audit entries (GET/POST)
	s.mux.HandleFunc("/api/restart/{jobId}", s.corsMiddleware(s.HandleRestart))            // Remediate now (POST)
	s.mux.HandleFunc("/v1/event", s.corsMiddleware(s.HandleEvent))                         // Trigger processing (POST)
}

// corsMiddleware adds CORS headers for configured origins and answers preflights
func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next(w, r)
	}
}

// originAllowed prefix-matches so any port of an allowed host passes
func (s *Server) originAllowed(origin string) bool {
	if len(s.cfg.AllowedOrigins) == 0 {
		return strings.HasPrefix(origin, "http://localhost") ||
			strings.HasPrefix(origin, "https://localhost")
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if strings.HasPrefix(origin, allowed) {
			return true
		}
	}
	return false
}
