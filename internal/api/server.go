// Package api provides the status/metrics HTTP surface for an
// artillery process. Routing and middleware follow the teacher's
// internal/api/server.go: a chi router, RequestID/RealIP/Recoverer
// middleware, and a conditionally-mounted /metrics handler.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/artillery-go/artillery/internal/cluster"
	"github.com/artillery-go/artillery/internal/craq"
)

// Server is the artillery status/metrics HTTP server.
type Server struct {
	facade         *cluster.Facade
	node           *craq.Node
	metricsEnabled bool
}

// NewServer creates a server that reports on an (optional) epidemic
// facade and an (optional) CRAQ node — either may be nil for a process
// running only the other layer.
func NewServer(facade *cluster.Facade, node *craq.Node) *Server {
	return &Server{facade: facade, node: node}
}

// EnableMetrics mounts the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/api/status", s.handleStatus)
	r.Get("/api/members", s.handleMembers)
	r.Get("/api/craq/chain", s.handleCraqChain)

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"epidemic_enabled": s.facade != nil,
		"craq_enabled":     s.node != nil,
	}
	if s.facade != nil {
		status["local_addr"] = s.facade.LocalAddr()
	}
	if s.node != nil {
		chain := s.node.Chain()
		status["craq_index"] = chain.GetIndex()
		status["craq_chain_size"] = chain.ChainSize()
		status["craq_is_head"] = chain.IsHead()
		status["craq_is_tail"] = chain.IsTail()
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleMembers(w http.ResponseWriter, r *http.Request) {
	if s.facade == nil {
		writeError(w, http.StatusNotFound, "epidemic layer is not enabled on this process")
		return
	}
	var latest []memberView
	for _, m := range s.facade.Snapshot() {
		latest = append(latest, memberView{
			HostKey:     m.HostKey.String(),
			Addr:        m.Addr(),
			State:       m.MemberState.String(),
			Incarnation: m.IncarnationNumber,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"members": latest})
}

type memberView struct {
	HostKey     string `json:"host_key"`
	Addr        string `json:"addr"`
	State       string `json:"state"`
	Incarnation uint64 `json:"incarnation"`
}

func (s *Server) handleCraqChain(w http.ResponseWriter, r *http.Request) {
	if s.node == nil {
		writeError(w, http.StatusNotFound, "craq layer is not enabled on this process")
		return
	}
	chain := s.node.Chain()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"index":    chain.GetIndex(),
		"size":     chain.ChainSize(),
		"is_head":  chain.IsHead(),
		"is_tail":  chain.IsTail(),
		"own_addr": chain.GetNode().Addr,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{"error": msg})
}
