package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"bilancio/internal/budget"
	"bilancio/internal/category"
	"bilancio/internal/goal"
	"bilancio/internal/importer"
	"bilancio/internal/ledger"
	applog "bilancio/internal/log"
	"bilancio/internal/recurrence"
)

// Deps are the engine components the API exposes.
type Deps struct {
	Cats       *category.Graph
	Store      *ledger.Store
	Recurrence *recurrence.Engine
	Budgets    *budget.Engine
	Goals      *goal.Tracker
	Importer   *importer.Reconciler
}

type Server struct {
	http.Server
	deps        Deps
	rateLimiter *rateLimiter

	shutdownOnce sync.Once
	clock        func() time.Time
}

// Simple in-memory rate limiter
type rateLimiter struct {
	mu           sync.Mutex
	clients      map[string]*clientInfo
	stopCleanup  chan struct{}
	shutdownOnce sync.Once
}

type clientInfo struct {
	lastRequest time.Time
	requests    int
}

func newRateLimiter() *rateLimiter {
	rl := &rateLimiter{
		clients:     make(map[string]*clientInfo),
		stopCleanup: make(chan struct{}),
	}
	go rl.startCleanup()
	return rl
}

func (rl *rateLimiter) startCleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanupStaleEntries()
		case <-rl.stopCleanup:
			return
		}
	}
}

// cleanupStaleEntries removes client entries older than 10 minutes
func (rl *rateLimiter) cleanupStaleEntries() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-10 * time.Minute)
	for ip, client := range rl.clients {
		if client.lastRequest.Before(cutoff) {
			delete(rl.clients, ip)
		}
	}
}

func (rl *rateLimiter) stop() {
	rl.shutdownOnce.Do(func() {
		close(rl.stopCleanup)
	})
}

func (rl *rateLimiter) allow(clientIP string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	client, exists := rl.clients[clientIP]
	if !exists {
		rl.clients[clientIP] = &clientInfo{lastRequest: now, requests: 1}
		return true
	}

	// Reset counter if more than 1 minute has passed
	if now.Sub(client.lastRequest) > time.Minute {
		client.requests = 1
		client.lastRequest = now
		return true
	}

	// Allow up to 120 requests per minute
	client.requests++
	client.lastRequest = now
	return client.requests <= 120
}

// NewServer configures routes, returning a ready-to-run http.Server.
func NewServer(addr string, deps Deps) *Server {
	mux := http.NewServeMux()
	// AccessLog tags the http component itself; the logger stays
	// untagged so the attribute appears once per line.
	logger := applog.New(applog.DefaultConfig())

	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: applog.AccessLog(logger)(applog.Middleware(logger)(mux)),
		},
		deps:        deps,
		rateLimiter: newRateLimiter(),
		clock:       time.Now,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)

	mux.HandleFunc("POST /api/transactions", s.withSecurityHeaders(s.handlePostTransaction))
	mux.HandleFunc("GET /api/transactions", s.withSecurityHeaders(s.handleListTransactions))
	mux.HandleFunc("GET /api/transactions/{id}", s.withSecurityHeaders(s.handleGetTransaction))
	mux.HandleFunc("PATCH /api/transactions/{id}", s.withSecurityHeaders(s.handleAmendTransaction))
	mux.HandleFunc("DELETE /api/transactions/{id}", s.withSecurityHeaders(s.handleTombstoneTransaction))
	mux.HandleFunc("GET /api/balance", s.withSecurityHeaders(s.handleBalance))
	mux.HandleFunc("GET /api/export", s.withSecurityHeaders(s.handleExport))

	mux.HandleFunc("POST /api/categories", s.withSecurityHeaders(s.handleAddCategory))
	mux.HandleFunc("GET /api/categories", s.withSecurityHeaders(s.handleListCategories))
	mux.HandleFunc("POST /api/categories/{id}/reparent", s.withSecurityHeaders(s.handleReparentCategory))
	mux.HandleFunc("DELETE /api/categories/{id}", s.withSecurityHeaders(s.handleDeleteCategory))

	mux.HandleFunc("POST /api/templates", s.withSecurityHeaders(s.handleCreateTemplate))
	mux.HandleFunc("GET /api/templates", s.withSecurityHeaders(s.handleListTemplates))
	mux.HandleFunc("GET /api/templates/{id}", s.withSecurityHeaders(s.handleGetTemplate))
	mux.HandleFunc("PATCH /api/templates/{id}", s.withSecurityHeaders(s.handleEditTemplate))
	mux.HandleFunc("POST /api/templates/{id}/materialize", s.withSecurityHeaders(s.handleMaterializeOne))
	mux.HandleFunc("POST /api/materialize", s.withSecurityHeaders(s.handleMaterializeAll))
	mux.HandleFunc("GET /api/upcoming", s.withSecurityHeaders(s.handleUpcoming))

	mux.HandleFunc("POST /api/budgets", s.withSecurityHeaders(s.handleCreateBudget))
	mux.HandleFunc("GET /api/budgets", s.withSecurityHeaders(s.handleListBudgets))
	mux.HandleFunc("GET /api/budgets/{id}/status", s.withSecurityHeaders(s.handleBudgetStatus))
	mux.HandleFunc("POST /api/evaluate", s.withSecurityHeaders(s.handleEvaluateAll))

	mux.HandleFunc("POST /api/goals", s.withSecurityHeaders(s.handleCreateGoal))
	mux.HandleFunc("GET /api/goals", s.withSecurityHeaders(s.handleListGoals))
	mux.HandleFunc("GET /api/goals/{id}/progress", s.withSecurityHeaders(s.handleGoalProgress))
	mux.HandleFunc("POST /api/goals/{id}/link", s.withSecurityHeaders(s.handleGoalLink))
	mux.HandleFunc("POST /api/goals/{id}/contribute", s.withSecurityHeaders(s.handleGoalContribute))
	mux.HandleFunc("POST /api/goals/{id}/sweep", s.withSecurityHeaders(s.handleGoalSweep))

	mux.HandleFunc("POST /api/import", s.withSecurityHeaders(s.handleImport))
	mux.HandleFunc("POST /api/import/accept", s.withSecurityHeaders(s.handleImportAccept))

	return s
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Shutdown gracefully shuts down the server and cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
