// Package web provides the HTTP API for pricelist import operations.
package web

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sybdeb/supplier-pricelist-sync-sub000/internal/importer"
)

// Server is the HTTP server for the pricelist import API.
type Server struct {
	service *importer.Service
	worker  *importer.Worker
	router  *chi.Mux
	server  *http.Server
	opts    Options
}

// Options tunes the HTTP layer. Zero values fall back to defaults.
type Options struct {
	// RequestTimeout is the middleware timeout applied to every request.
	RequestTimeout time.Duration

	// RateLimit is requests per minute per IP; 0 disables rate limiting.
	RateLimit int

	// ImportRateLimit is requests per minute per IP for import
	// submission; 0 disables the stricter limit.
	ImportRateLimit int

	// MaxBodySize caps request bodies, matching the import size cap.
	MaxBodySize int64
}

// NewServer creates a new Server instance.
func NewServer(service *importer.Service, worker *importer.Worker, opts Options) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}
	if opts.MaxBodySize <= 0 {
		opts.MaxBodySize = importer.DefaultMaxFileSize
	}
	s := &Server{
		service: service,
		worker:  worker,
		router:  chi.NewRouter(),
		opts:    opts,
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
	s.router.Use(middleware.Timeout(s.opts.RequestTimeout))

	// Security hardening
	s.router.Use(securityHeaders)

	if s.opts.RateLimit > 0 {
		limiter := newRateLimiter(s.opts.RateLimit, time.Minute)
		s.router.Use(limiter.middleware)
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		// Import submission gets its own, stricter rate limit.
		r.Group(func(r chi.Router) {
			if s.opts.ImportRateLimit > 0 {
				limiter := newRateLimiter(s.opts.ImportRateLimit, time.Minute)
				r.Use(limiter.middleware)
			}
			r.Post("/imports", s.handleSubmitImport)
			r.Post("/imports/preview", s.handlePreviewMapping)
		})

		r.Get("/imports", s.handleListImports)
		r.Get("/imports/{jobID}", s.handleGetImport)
		r.Post("/imports/{jobID}/requeue", s.handleRequeueImport)
		r.Post("/imports/{jobID}/fail", s.handleFailImport)
		r.Post("/imports/{jobID}/complete", s.handleCompleteImport)
		r.Get("/imports/{jobID}/errors", s.handleListImportErrors)

		r.Post("/import-errors/{errorID}/resolve", s.handleResolveImportError)

		r.Get("/suppliers/{supplierID}/mapping", s.handleGetMapping)
		r.Put("/suppliers/{supplierID}/mapping", s.handlePutMapping)

		// Hook for external schedulers; same contract as the in-process ticker.
		r.Post("/worker/tick", s.handleWorkerTick)
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start(addr string, readTimeout, writeTimeout, idleTimeout time.Duration) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Prevent MIME type sniffing
		w.Header().Set("X-Content-Type-Options", "nosniff")

		// Prevent clickjacking
		w.Header().Set("X-Frame-Options", "DENY")

		// JSON API only; no resources should ever load from here
		w.Header().Set("Content-Security-Policy", "default-src 'none'")

		// Control referrer information
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		next.ServeHTTP(w, r)
	})
}

// rateLimiter implements a simple token bucket rate limiter per IP.
type rateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     int           // requests per window
	window   time.Duration // time window
}

type visitor struct {
	tokens    int
	lastReset time.Time
}

// newRateLimiter creates a rate limiter with the specified rate per window.
func newRateLimiter(rate int, window time.Duration) *rateLimiter {
	rl := &rateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate,
		window:   window,
	}
	// Start cleanup goroutine
	go rl.cleanup()
	return rl
}

// cleanup removes stale visitor entries every minute.
func (rl *rateLimiter) cleanup() {
	for {
		time.Sleep(time.Minute)
		rl.mu.Lock()
		for ip, v := range rl.visitors {
			if time.Since(v.lastReset) > rl.window*2 {
				delete(rl.visitors, ip)
			}
		}
		rl.mu.Unlock()
	}
}

// allow checks if the request should be allowed and consumes a token if so.
func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, exists := rl.visitors[ip]
	if !exists {
		rl.visitors[ip] = &visitor{
			tokens:    rl.rate - 1, // consume one token
			lastReset: time.Now(),
		}
		return true
	}

	// Reset tokens if window has passed
	if time.Since(v.lastReset) > rl.window {
		v.tokens = rl.rate - 1
		v.lastReset = time.Now()
		return true
	}

	// Check if we have tokens left
	if v.tokens <= 0 {
		return false
	}

	v.tokens--
	return true
}

// middleware returns an HTTP middleware that rate limits by IP.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		// Use X-Real-IP if set (by RealIP middleware)
		if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
			ip = realIP
		}

		if !rl.allow(ip) {
			w.Header().Set("Retry-After", "60")
			respondErrorJSON(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}
