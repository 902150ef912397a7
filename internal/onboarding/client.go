package onboarding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/ledgerline/ledgerline/internal/onboarding/credentials"
	"github.com/ledgerline/ledgerline/internal/presets"
)

// Kind classifies the outcome of a client operation.
type Kind int

const (
	KindOK Kind = iota
	// KindValidation is a local payload error; nothing was sent.
	KindValidation
	// KindAuth is a missing or rejected session (401/403).
	KindAuth
	// KindNetwork is a failure to reach the server.
	KindNetwork
	// KindServer is a non-2xx response or an unreadable body.
	KindServer
	// KindTimeout is a request that outlived its deadline.
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindNetwork:
		return "network"
	case KindServer:
		return "server"
	case KindTimeout:
		return "timeout"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Retryable reports whether the user may resubmit the same request.
func (k Kind) Retryable() bool {
	return k == KindNetwork || k == KindServer || k == KindTimeout
}

// StepError is a failed request to the onboarding API.
type StepError struct {
	kind     Kind
	Step     Step
	Endpoint string
	Status   int
	Message  string
	Err      error
	// DetailedResults carries per-preset outcomes when a step 4 failure
	// body reports them.
	DetailedResults map[string]PresetResult
}

func (e *StepError) Kind() Kind { return e.kind }

func (e *StepError) Error() string {
	var b strings.Builder
	b.WriteString(e.kind.String())
	b.WriteString(" error")
	if e.Endpoint != "" {
		b.WriteString(" (")
		b.WriteString(e.Endpoint)
		b.WriteString(")")
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil && e.Message == "" {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *StepError) Unwrap() error { return e.Err }

// KindOf classifies err. A nil error is KindOK.
func KindOf(err error) Kind {
	if err == nil {
		return KindOK
	}
	var se *StepError
	if errors.As(err, &se) {
		return se.kind
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return KindValidation
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindServer
}

// Credentials is the part of the credential store the client reads.
type Credentials interface {
	Get(key string) (string, error)
}

// StepResponse is the success body of a step submission.
type StepResponse struct {
	Step            Step                    `json:"step"`
	Status          *Status                 `json:"status,omitempty"`
	Data            json.RawMessage         `json:"data,omitempty"`
	DetailedResults map[string]PresetResult `json:"detailed_results,omitempty"`
}

// TenantInfo is the subset of GET /tenants/me the wizard needs.
type TenantInfo struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Slug          string `json:"slug"`
	PrimaryDomain string `json:"primary_domain"`
	Status        string `json:"status"`
}

// DomainLocked reports whether the tenant's domain can no longer change.
func (t TenantInfo) DomainLocked() bool {
	return t.PrimaryDomain != "" || t.Slug != ""
}

// Default request deadlines.
const (
	DefaultStepTimeout    = 15 * time.Second
	DefaultPresetsTimeout = 5 * time.Minute
)

const maxResponseBytes = 1 << 20

// ClientOption configures an APIClient.
type ClientOption func(*APIClient)

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(a *APIClient) { a.http = c }
}

// WithTimeouts sets the per-request deadline for ordinary requests and for
// the presets step. Zero keeps the default.
func WithTimeouts(step, presets time.Duration) ClientOption {
	return func(a *APIClient) {
		if step > 0 {
			a.stepTimeout = step
		}
		if presets > 0 {
			a.presetsTimeout = presets
		}
	}
}

// WithLogger sets the client's logger.
func WithLogger(l *slog.Logger) ClientOption {
	return func(a *APIClient) { a.logger = l }
}

// APIClient talks to the onboarding API with the stored bearer token.
type APIClient struct {
	baseURL        string
	creds          Credentials
	http           *http.Client
	stepTimeout    time.Duration
	presetsTimeout time.Duration
	logger         *slog.Logger
}

// NewAPIClient creates a client for the server at baseURL.
func NewAPIClient(baseURL string, creds Credentials, opts ...ClientOption) *APIClient {
	c := &APIClient{
		baseURL:        strings.TrimRight(baseURL, "/"),
		creds:          creds,
		http:           http.DefaultClient,
		stepTimeout:    DefaultStepTimeout,
		presetsTimeout: DefaultPresetsTimeout,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *APIClient) token(step Step, endpoint string) (string, error) {
	tok, err := c.creds.Get(credentials.AccessToken)
	if err != nil {
		return "", &StepError{kind: KindAuth, Step: step, Endpoint: endpoint, Message: "reading credentials", Err: err}
	}
	if tok == "" {
		return "", &StepError{kind: KindAuth, Step: step, Endpoint: endpoint, Message: "not signed in"}
	}
	return tok, nil
}

// do sends one request and decodes a 2xx body into out.
func (c *APIClient) do(ctx context.Context, step Step, method, path string, body any, timeout time.Duration, out any) error {
	endpoint := method + " " + c.baseURL + path
	tok, err := c.token(step, endpoint)
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding %s body: %w", step, err)
		}
		reader = bytes.NewReader(raw)
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, c.baseURL+path, reader)
	if err != nil {
		return &StepError{kind: KindNetwork, Step: step, Endpoint: endpoint, Message: "building request", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return c.transportError(ctx, reqCtx, step, endpoint, timeout, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return c.transportError(ctx, reqCtx, step, endpoint, timeout, err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return &StepError{kind: KindAuth, Step: step, Endpoint: endpoint, Status: resp.StatusCode, Message: serverMessage(raw, resp.StatusCode)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Debug("onboarding request failed", "endpoint", endpoint, "status", resp.StatusCode)
		return &StepError{
			kind:            KindServer,
			Step:            step,
			Endpoint:        endpoint,
			Status:          resp.StatusCode,
			Message:         serverMessage(raw, resp.StatusCode),
			DetailedResults: failedResults(raw),
		}
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &StepError{kind: KindServer, Step: step, Endpoint: endpoint, Status: resp.StatusCode, Message: "invalid response body", Err: err}
	}
	return nil
}

func (c *APIClient) transportError(parent, reqCtx context.Context, step Step, endpoint string, timeout time.Duration, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
		return &StepError{kind: KindTimeout, Step: step, Endpoint: endpoint, Message: fmt.Sprintf("no response within %s", timeout), Err: err}
	}
	return &StepError{kind: KindNetwork, Step: step, Endpoint: endpoint, Message: "cannot reach " + endpoint, Err: err}
}

// serverMessage extracts a human-readable message from an error body,
// trying error, message and detail in turn.
func serverMessage(raw []byte, status int) string {
	var body map[string]any
	if json.Unmarshal(raw, &body) == nil {
		for _, key := range []string{"error", "message", "detail"} {
			if s, ok := body[key].(string); ok && s != "" {
				return s
			}
		}
	}
	if text := http.StatusText(status); text != "" {
		return text
	}
	return fmt.Sprintf("HTTP %d", status)
}

// failedResults reads detailed_results from an error body, or nil.
func failedResults(raw []byte) map[string]PresetResult {
	var body struct {
		Results map[string]PresetResult `json:"detailed_results"`
	}
	if json.Unmarshal(raw, &body) != nil {
		return nil
	}
	return body.Results
}

// SubmitStep posts body to the step endpoint. A nil body is sent as {}.
func (c *APIClient) SubmitStep(ctx context.Context, step Step, body any) (*StepResponse, error) {
	if !step.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidStep, int(step))
	}
	if body == nil {
		body = struct{}{}
	}
	timeout := c.stepTimeout
	if step == StepPresets {
		timeout = c.presetsTimeout
	}
	var resp StepResponse
	if err := c.do(ctx, step, http.MethodPost, fmt.Sprintf("/api/v1/onboarding/step/%d", int(step)), body, timeout, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status fetches the tenant's onboarding status.
func (c *APIClient) Status(ctx context.Context) (*Status, error) {
	var s Status
	if err := c.do(ctx, 0, http.MethodGet, "/api/v1/onboarding/status", nil, c.stepTimeout, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// TenantInfo fetches the caller's tenant.
func (c *APIClient) TenantInfo(ctx context.Context) (*TenantInfo, error) {
	var t TenantInfo
	if err := c.do(ctx, 0, http.MethodGet, "/api/v1/tenants/me", nil, c.stepTimeout, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// Progress fetches the latest provisioning snapshot.
func (c *APIClient) Progress(ctx context.Context) (*presets.Snapshot, error) {
	var s presets.Snapshot
	if err := c.do(ctx, StepPresets, http.MethodGet, "/api/v1/onboarding/progress", nil, c.stepTimeout, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// StreamProgress follows provisioning over a websocket, calling fn for each
// snapshot until one reports Done, fn fails, or ctx ends.
func (c *APIClient) StreamProgress(ctx context.Context, fn func(presets.Snapshot) error) error {
	endpoint := "GET " + c.baseURL + "/api/v1/onboarding/progress/stream"
	tok, err := c.token(StepPresets, endpoint)
	if err != nil {
		return err
	}

	conn, resp, err := websocket.Dial(ctx, c.baseURL+"/api/v1/onboarding/progress/stream", &websocket.DialOptions{
		HTTPClient: c.http,
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + tok}},
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if resp != nil {
			kind := KindServer
			if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
				kind = KindAuth
			}
			return &StepError{kind: kind, Step: StepPresets, Endpoint: endpoint, Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode), Err: err}
		}
		return &StepError{kind: KindNetwork, Step: StepPresets, Endpoint: endpoint, Message: "cannot reach " + endpoint, Err: err}
	}
	defer conn.CloseNow()

	for {
		var snap presets.Snapshot
		if err := wsjson.Read(ctx, conn, &snap); err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return &StepError{kind: KindNetwork, Step: StepPresets, Endpoint: endpoint, Message: "progress stream interrupted", Err: err}
		}
		if err := fn(snap); err != nil {
			return err
		}
		if snap.Done {
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return nil
		}
	}
}
