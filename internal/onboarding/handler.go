package onboarding

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/ledgerline/ledgerline/internal/platform/middleware"
	"github.com/ledgerline/ledgerline/internal/tenant"
)

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithStreamInterval sets how often the progress stream polls.
func WithStreamInterval(d time.Duration) HandlerOption {
	return func(h *Handler) {
		if d > 0 {
			h.interval = d
		}
	}
}

// WithOriginPatterns allows cross-origin websocket upgrades from patterns.
func WithOriginPatterns(patterns []string) HandlerOption {
	return func(h *Handler) { h.originPatterns = patterns }
}

// Handler exposes the onboarding API. Routes are gated by the router.
type Handler struct {
	svc            *Service
	interval       time.Duration
	originPatterns []string
}

// NewHandler creates the onboarding HTTP handler.
func NewHandler(svc *Service, opts ...HandlerOption) *Handler {
	h := &Handler{svc: svc, interval: 500 * time.Millisecond}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func tenantOf(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := middleware.GetTenantID(r.Context())
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "tenant context required"})
		return "", false
	}
	return id, true
}

// HandleSubmitStep handles POST /api/v1/onboarding/step/{n}.
func (h *Handler) HandleSubmitStep(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantOf(w, r)
	if !ok {
		return
	}
	n, err := strconv.Atoi(r.PathValue("n"))
	if err != nil || !Step(n).Valid() {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown onboarding step"})
		return
	}

	if Step(n) == StepPresets {
		// Provisioning can outlast the server's WriteTimeout.
		_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 64<<10))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	resp, err := h.svc.SubmitStep(r.Context(), tenantID, Step(n), body)
	if err != nil {
		writeStepError(w, tenantID, Step(n), err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeStepError(w http.ResponseWriter, tenantID string, step Step, err error) {
	var (
		ve *ValidationError
		pe *ProvisioningError
	)
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": ve.Error(), "fields": ve.Fields})
	case errors.Is(err, ErrStepOutOfOrder), errors.Is(err, ErrWorkflowComplete),
		errors.Is(err, tenant.ErrDomainLocked), errors.Is(err, tenant.ErrDomainTaken):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.As(err, &pe):
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": pe.Error(), "detailed_results": pe.Results})
	case errors.Is(err, tenant.ErrTenantNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "tenant not found"})
	case errors.Is(err, context.Canceled):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "request canceled"})
	default:
		slog.Error("onboarding step failed", "tenant_id", tenantID, "step", step.String(), "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "saving onboarding step failed"})
	}
}

// HandleStatus handles GET /api/v1/onboarding/status.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantOf(w, r)
	if !ok {
		return
	}
	st, err := h.svc.Status(r.Context(), tenantID)
	if err != nil {
		slog.Error("loading onboarding status failed", "tenant_id", tenantID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "loading onboarding status failed"})
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// HandleProgress handles GET /api/v1/onboarding/progress.
func (h *Handler) HandleProgress(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantOf(w, r)
	if !ok {
		return
	}
	snap, err := h.svc.Progress(r.Context(), tenantID)
	if err != nil {
		if errors.Is(err, ErrNoProgress) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
			return
		}
		slog.Error("loading provisioning progress failed", "tenant_id", tenantID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "loading provisioning progress failed"})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// HandleProgressStream upgrades to a websocket and pushes every new
// provisioning snapshot until one reports Done.
func (h *Handler) HandleProgressStream(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantOf(w, r)
	if !ok {
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns})
	if err != nil {
		slog.Warn("progress stream upgrade failed", "tenant_id", tenantID, "error", err)
		return
	}
	defer conn.CloseNow()

	// The server's WriteTimeout would otherwise cut long streams.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	// Clients never send; CloseRead handles their close frames.
	ctx := conn.CloseRead(r.Context())

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	var (
		last time.Time
		sent bool
	)
	for {
		snap, err := h.svc.Progress(ctx, tenantID)
		switch {
		case err == nil:
			if !sent || !snap.UpdatedAt.Equal(last) {
				last, sent = snap.UpdatedAt, true
				if err := wsjson.Write(ctx, conn, snap); err != nil {
					return
				}
			}
			if snap.Done {
				conn.Close(websocket.StatusNormalClosure, "")
				return
			}
		case errors.Is(err, ErrNoProgress):
		default:
			if ctx.Err() == nil {
				slog.Error("progress stream load failed", "tenant_id", tenantID, "error", err)
				conn.Close(websocket.StatusInternalError, "loading progress failed")
			}
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
