package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ledgerline/ledgerline/internal/audit"
	"github.com/ledgerline/ledgerline/internal/auth"
	"github.com/ledgerline/ledgerline/internal/onboarding"
	"github.com/ledgerline/ledgerline/internal/platform/middleware"
	"github.com/ledgerline/ledgerline/internal/platform/telemetry"
	"github.com/ledgerline/ledgerline/internal/rbac"
	"github.com/ledgerline/ledgerline/internal/tenant"
)

// Dependencies holds all injected dependencies for the server.
type Dependencies struct {
	Pool               *pgxpool.Pool
	Auth               *auth.TokenService
	AuthHandler        *auth.Handler
	RBAC               *rbac.Engine
	TenantHandler      *tenant.Handler
	UserHandler        *tenant.UserHandler
	RoleHandler        *tenant.RoleHandler
	AuditHandler       *audit.Handler
	OnboardingHandler  *onboarding.Handler
	RBACAuditLogger    rbac.AuditLogger
	Metrics            *telemetry.Metrics
	DevMode            bool
	DevIdentity        *auth.Identity
	Logger             *slog.Logger
	CORSAllowedOrigins []string
}

type Server struct {
	httpServer   *http.Server
	protectedMux *http.ServeMux
	pool         *pgxpool.Pool
	handler      http.Handler
}

func New(addr string, deps Dependencies) *Server {
	// Protected routes mux, wrapped with auth middleware
	protectedMux := http.NewServeMux()

	var protectedHandler http.Handler = protectedMux
	protectedHandler = middleware.TenantContext(protectedHandler)
	if deps.Auth != nil {
		if deps.DevMode && deps.DevIdentity != nil {
			protectedHandler = auth.MiddlewareWithDevMode(deps.Auth, deps.DevIdentity)(protectedHandler)
		} else {
			protectedHandler = auth.Middleware(deps.Auth)(protectedHandler)
		}
	}

	// Top-level mux: public routes + protected catch-all
	topMux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		protectedMux: protectedMux,
		pool:         deps.Pool,
	}

	// Public routes (no auth required)
	topMux.HandleFunc("GET /healthz", s.handleHealth)
	topMux.HandleFunc("GET /readyz", s.handleReadiness)
	if deps.Metrics != nil {
		topMux.Handle("GET /metrics", deps.Metrics.Handler())
	}
	if deps.AuthHandler != nil {
		deps.AuthHandler.RegisterRoutes(topMux)
	}

	var gateOpts []rbac.GateOption
	if deps.RBACAuditLogger != nil {
		gateOpts = append(gateOpts, rbac.WithAuditLogger(deps.RBACAuditLogger))
	}
	if deps.Metrics != nil {
		gateOpts = append(gateOpts, rbac.WithMetrics(deps.Metrics))
	}
	require := func(p rbac.Permission, h http.HandlerFunc) http.Handler {
		return rbac.RequirePermission(deps.RBAC, p, gateOpts...)(h)
	}

	// Tenant routes. "me" needs only a session; the rest are platform or
	// tenant gated.
	if deps.TenantHandler != nil && deps.RBAC != nil {
		protectedMux.Handle("GET /api/v1/tenants/me", middleware.RequireTenantContext(http.HandlerFunc(deps.TenantHandler.HandleMe)))
		protectedMux.Handle("POST /api/v1/tenants",
			rbac.RequireRole(deps.RBAC, rbac.PlatformAdmin, gateOpts...)(
				require(rbac.TenantManage, deps.TenantHandler.HandleCreate),
			),
		)
		protectedMux.Handle("GET /api/v1/tenants",
			rbac.RequireRole(deps.RBAC, rbac.PlatformAdmin, gateOpts...)(
				require(rbac.TenantRead, deps.TenantHandler.HandleList),
			),
		)
		protectedMux.Handle("GET /api/v1/tenants/{id}",
			rbac.RequireTenant(deps.RBAC, "id", gateOpts...)(
				require(rbac.TenantRead, deps.TenantHandler.HandleGet),
			),
		)
	}

	// Role catalog routes
	if deps.RoleHandler != nil && deps.RBAC != nil {
		protectedMux.Handle("GET /api/v1/permissions", require(rbac.RoleRead, deps.RoleHandler.HandlePermissions))
		protectedMux.Handle("GET /api/v1/roles", require(rbac.RoleRead, deps.RoleHandler.HandleList))
		protectedMux.Handle("POST /api/v1/roles", require(rbac.RoleManage, deps.RoleHandler.HandleCreate))
		protectedMux.Handle("PUT /api/v1/roles/{id}", require(rbac.RoleManage, deps.RoleHandler.HandleUpdate))
		protectedMux.Handle("DELETE /api/v1/roles/{id}", require(rbac.RoleManage, deps.RoleHandler.HandleDelete))
	}

	// User routes
	if deps.UserHandler != nil && deps.RBAC != nil {
		protectedMux.Handle("GET /api/v1/users", require(rbac.UserRead, deps.UserHandler.HandleList))
		protectedMux.Handle("GET /api/v1/users/{id}", require(rbac.UserRead, deps.UserHandler.HandleGet))
		protectedMux.Handle("POST /api/v1/users", require(rbac.UserManage, deps.UserHandler.HandleCreate))
		protectedMux.Handle("PUT /api/v1/users/{id}/role", require(rbac.UserManage, deps.UserHandler.HandleAssignRole))
	}

	// Audit routes
	if deps.AuditHandler != nil && deps.RBAC != nil {
		protectedMux.Handle("GET /api/v1/audit/events", require(rbac.AuditRead, deps.AuditHandler.HandleListEvents))
	}

	// Onboarding routes
	if deps.OnboardingHandler != nil && deps.RBAC != nil {
		h := deps.OnboardingHandler
		onboard := func(fn http.HandlerFunc) http.Handler {
			return middleware.RequireTenantContext(require(rbac.OnboardingManage, fn))
		}
		protectedMux.Handle("POST /api/v1/onboarding/step/{n}", onboard(h.HandleSubmitStep))
		protectedMux.Handle("GET /api/v1/onboarding/status", onboard(h.HandleStatus))
		protectedMux.Handle("GET /api/v1/onboarding/progress", onboard(h.HandleProgress))
		protectedMux.Handle("GET /api/v1/onboarding/progress/stream", onboard(h.HandleProgressStream))
	}

	// All other routes go through auth middleware
	topMux.Handle("/", protectedHandler)

	// Wrap top-level mux with observability middleware
	var handler http.Handler = topMux
	if deps.Logger != nil {
		handler = middleware.Logging(deps.Logger)(handler)
	}
	handler = middleware.RequestID(handler)
	if len(deps.CORSAllowedOrigins) > 0 {
		handler = middleware.CORS(deps.CORSAllowedOrigins)(handler)
	}

	s.handler = handler
	s.httpServer.Handler = handler
	return s
}

// Handler returns the full middleware-wrapped handler chain (for testing).
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ProtectedMux returns the mux for authenticated routes.
// Use this to register routes that require authentication.
func (s *Server) ProtectedMux() *http.ServeMux {
	return s.protectedMux
}

func (s *Server) Start(ctx context.Context) error {
	lc := net.ListenConfig{}
	listener, err := lc.Listen(ctx, "tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.httpServer.Addr, err)
	}

	slog.Info("server starting", "addr", listener.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		slog.Info("server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if s.pool == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "database not connected",
		})
		return
	}

	if err := s.pool.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "database ping failed",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
