package api

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"

	"github.com/pinstack/pinstack/pkg/audit"
	"github.com/pinstack/pinstack/pkg/observability"
	"github.com/pinstack/pinstack/pkg/registry"
	"github.com/pinstack/pinstack/pkg/resolver"
	"github.com/pinstack/pinstack/pkg/revision"
)

// Server exposes the registry, resolver, and revision history over HTTP.
type Server struct {
	registry  *registry.Registry
	resolver  *resolver.Resolver
	feed      audit.Feed
	revisions revision.Store
	engine    *revision.Engine
	router    *mux.Router
	logger    *observability.Logger
	metrics   *observability.Metrics

	// nextTx hands out transaction ids for write requests. Seeded from
	// the clock so ids do not repeat across restarts of the memory
	// backend; a DB-backed feed would tolerate repeats anyway since
	// events also carry their own ids.
	nextTx atomic.Int64
}

// NewServer wires the API over its collaborators. metrics may be nil.
func NewServer(reg *registry.Registry, feed audit.Feed, revisions revision.Store,
	logger *observability.Logger, metrics *observability.Metrics) *Server {
	s := &Server{
		registry:  reg,
		resolver:  resolver.New(reg.Store()),
		feed:      feed,
		revisions: revisions,
		engine:    revision.NewEngine(feed),
		router:    mux.NewRouter(),
		logger:    logger,
		metrics:   metrics,
	}
	s.nextTx.Store(time.Now().UnixMilli())
	s.setupRoutes()
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	// Package routes
	s.router.HandleFunc("/packages", s.createPackage).Methods("POST")
	s.router.HandleFunc("/packages", s.listPackages).Methods("GET")
	s.router.HandleFunc("/packages/{name}", s.getPackage).Methods("GET")

	// Distribution routes
	s.router.HandleFunc("/packages/{name}/distributions", s.createDistribution).Methods("POST")
	s.router.HandleFunc("/packages/{name}/distributions", s.listDistributions).Methods("GET")

	// Axis path routes
	s.router.HandleFunc("/paths/{axis}", s.registerPath).Methods("POST")
	s.router.HandleFunc("/paths/{axis}", s.listPaths).Methods("GET")

	// Pin routes
	s.router.HandleFunc("/pins", s.upsertPin).Methods("PUT")
	s.router.HandleFunc("/pins", s.listPins).Methods("GET")
	s.router.HandleFunc("/pins/{id:[0-9]+}", s.getPin).Methods("GET")
	s.router.HandleFunc("/pins/{id:[0-9]+}/withs", s.setWiths).Methods("PUT")
	s.router.HandleFunc("/pins/{id:[0-9]+}/withs", s.getWiths).Methods("GET")

	// Resolution
	s.router.HandleFunc("/resolve/{package}", s.resolve).Methods("GET")

	// History
	s.router.HandleFunc("/revisions", s.createRevision).Methods("POST")
	s.router.HandleFunc("/revisions", s.listRevisions).Methods("GET")
	s.router.HandleFunc("/revisions/{id}", s.getRevision).Methods("GET")
	s.router.HandleFunc("/transactions/{id:[0-9]+}/changes", s.transactionChanges).Methods("GET")

	// Probes
	s.router.HandleFunc("/health", s.health).Methods("GET")
	s.router.HandleFunc("/ready", s.ready).Methods("GET")
}

// Handler returns the root handler, metrics middleware included when
// metrics are configured.
func (s *Server) Handler() http.Handler {
	if s.metrics != nil {
		return observability.HTTPMetricsMiddleware(s.metrics)(s.router)
	}
	return s.router
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Handler().ServeHTTP(w, r)
}

func (s *Server) newTransactionID() int64 {
	return s.nextTx.Add(1)
}
