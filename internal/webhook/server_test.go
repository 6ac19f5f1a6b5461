package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/finchley/agentgw/internal/events"
	"github.com/finchley/agentgw/internal/guard"
	"github.com/finchley/agentgw/internal/workflow"
)

const testSecret = "test-secret"

type fakeStarter struct {
	mu    sync.Mutex
	calls []string // "agentID/jobPostID"
	err   error
}

func (f *fakeStarter) Start(_ context.Context, agentID, jobPostID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, agentID+"/"+jobPostID)
	if f.err != nil {
		return "", f.err
	}
	return "run-1", nil
}

func (f *fakeStarter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeRecorder struct {
	mu    sync.Mutex
	kinds []string
}

func (f *fakeRecorder) RecordEvent(_ context.Context, requestID, agentID, jobPostID, kind, origin string, body []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kinds = append(f.kinds, kind)
	return nil
}

type serverOptions struct {
	secret    string
	origins   []string
	rateMax   int
	maxBody   int64
	starterFn *fakeStarter
	limiter   guard.RateLimiter
}

func newTestGateway(t *testing.T, opts serverOptions) (*httptest.Server, *fakeStarter, *fakeRecorder) {
	t.Helper()

	if opts.origins == nil {
		opts.origins = []string{"*"}
	}
	if opts.rateMax == 0 {
		opts.rateMax = 100
	}
	if opts.maxBody == 0 {
		opts.maxBody = DefaultMaxBodySize
	}
	starter := opts.starterFn
	if starter == nil {
		starter = &fakeStarter{}
	}
	recorder := &fakeRecorder{}
	limiter := opts.limiter
	if limiter == nil {
		limiter = guard.NewMemoryRateLimiter(opts.rateMax, time.Minute)
	}

	allowlist, err := guard.NewAllowlist(opts.origins)
	if err != nil {
		t.Fatalf("NewAllowlist() error = %v", err)
	}

	s := New(
		Config{
			ServiceName:     "agentgw",
			Version:         "test",
			Secret:          opts.secret,
			MaxBodySize:     opts.maxBody,
			FreshnessMaxAge: 2 * time.Minute,
			RateLimitWindow: time.Minute,
			RateLimitMax:    opts.rateMax,
		},
		Deps{
			Allowlist: allowlist,
			RateLimit: limiter,
			Replay:    guard.NewMemoryReplayGuard(100),
			Workflows: starter,
			Recorder:  recorder,
			Hub:       events.NewHub(16),
		},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts, starter, recorder
}

var requestSeq int

// signedRequest builds a POST with a valid signature and fresh timestamp.
func signedRequest(t *testing.T, url, body string) *http.Request {
	t.Helper()
	requestSeq++
	return signedRequestAt(t, url, body, time.Now(), fmt.Sprintf("req-%d", requestSeq))
}

func signedRequestAt(t *testing.T, url, body string, at time.Time, requestID string) *http.Request {
	t.Helper()
	timestamp := strconv.FormatInt(at.UnixMilli(), 10)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderSignature, Sign([]byte(body), testSecret, timestamp, requestID))
	req.Header.Set(HeaderTimestamp, timestamp)
	req.Header.Set(HeaderRequestID, requestID)
	return req
}

func doRequest(t *testing.T, req *http.Request) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	return resp, body
}

func TestHandleEvent_InvitationStartsWorkflow(t *testing.T) {
	ts, starter, recorder := newTestGateway(t, serverOptions{secret: testSecret})

	req := signedRequest(t, ts.URL+"/agents/a1/webhook/events",
		`{"event_type":"agent.job.invitation","job_post_id":"j1"}`)
	resp, body := doRequest(t, req)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", resp.StatusCode, body)
	}

	var ack AckResponse
	if err := json.Unmarshal(body, &ack); err != nil {
		t.Fatalf("unmarshal ack: %v", err)
	}
	if !ack.Success {
		t.Error("ack.Success = false, want true")
	}
	if ack.Status != StatusProcessingStarted {
		t.Errorf("ack.Status = %q, want %q", ack.Status, StatusProcessingStarted)
	}
	if ack.JobPostID != "j1" {
		t.Errorf("ack.JobPostID = %q, want j1", ack.JobPostID)
	}

	starter.mu.Lock()
	defer starter.mu.Unlock()
	if len(starter.calls) != 1 || starter.calls[0] != "a1/j1" {
		t.Errorf("starter calls = %v, want [a1/j1]", starter.calls)
	}

	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	if len(recorder.kinds) != 1 || recorder.kinds[0] != "job_invitation" {
		t.Errorf("recorded kinds = %v, want [job_invitation]", recorder.kinds)
	}
}

func TestHandleEvent_SecondInvitationAlreadyProcessing(t *testing.T) {
	starter := &fakeStarter{err: workflow.ErrAlreadyRunning}
	ts, _, _ := newTestGateway(t, serverOptions{secret: testSecret, starterFn: starter})

	req := signedRequest(t, ts.URL+"/agents/a1/webhook/events",
		`{"event_type":"agent.job.invitation","job_post_id":"j1"}`)
	resp, body := doRequest(t, req)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var ack AckResponse
	json.Unmarshal(body, &ack)
	if ack.Status != StatusAlreadyProcessing {
		t.Errorf("ack.Status = %q, want %q", ack.Status, StatusAlreadyProcessing)
	}
}

func TestHandleEvent_HealthCheck(t *testing.T) {
	ts, starter, _ := newTestGateway(t, serverOptions{secret: testSecret})

	req := signedRequest(t, ts.URL+"/agents/a1/webhook/events",
		`{"event_type":"agent.health_check"}`)
	resp, body := doRequest(t, req)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", resp.StatusCode, body)
	}
	var ack AckResponse
	json.Unmarshal(body, &ack)
	if !ack.Success || ack.EventType != "agent.health_check" {
		t.Errorf("ack = %+v, want success with event type echoed", ack)
	}
	if starter.callCount() != 0 {
		t.Error("health check must not start a workflow")
	}
}

func TestHandleEvent_LegacyInvitationAcksWithoutSpawn(t *testing.T) {
	ts, starter, _ := newTestGateway(t, serverOptions{secret: testSecret})

	req := signedRequest(t, ts.URL+"/agents/a1/webhook/events",
		`{"job_post_id":"j1","agent_ids":["a1","a2"]}`)
	resp, body := doRequest(t, req)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", resp.StatusCode, body)
	}
	if starter.callCount() != 0 {
		t.Error("legacy invitation must not start a workflow")
	}
}

func TestHandleEvent_InvalidSignature(t *testing.T) {
	ts, _, _ := newTestGateway(t, serverOptions{secret: testSecret})

	req := signedRequest(t, ts.URL+"/agents/a1/webhook/events", `{"event_type":"agent.health_check"}`)
	req.Header.Set(HeaderSignature, "sha256=deadbeef")
	resp, body := doRequest(t, req)

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
	var e ErrorResponse
	json.Unmarshal(body, &e)
	if e.Error != "invalid_signature" {
		t.Errorf("error = %q, want invalid_signature", e.Error)
	}
}

func TestHandleEvent_StaleTimestamp(t *testing.T) {
	ts, _, _ := newTestGateway(t, serverOptions{secret: testSecret})

	// Correctly signed, but over a timestamp outside the freshness window.
	req := signedRequestAt(t, ts.URL+"/agents/a1/webhook/events",
		`{"event_type":"agent.health_check"}`, time.Now().Add(-10*time.Minute), "req-stale")
	resp, body := doRequest(t, req)

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
	var e ErrorResponse
	json.Unmarshal(body, &e)
	if e.Error != "stale_timestamp" {
		t.Errorf("error = %q, want stale_timestamp", e.Error)
	}
}

func TestHandleEvent_DuplicateRequestID(t *testing.T) {
	ts, _, _ := newTestGateway(t, serverOptions{secret: testSecret})
	url := ts.URL + "/agents/a1/webhook/events"
	body := `{"event_type":"agent.health_check"}`

	resp, _ := doRequest(t, signedRequestAt(t, url, body, time.Now(), "req-dup"))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("first delivery status = %d, want 200", resp.StatusCode)
	}

	resp, respBody := doRequest(t, signedRequestAt(t, url, body, time.Now(), "req-dup"))
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("replay status = %d, want 409 (body %s)", resp.StatusCode, respBody)
	}
}

func TestHandleEvent_OriginDenied(t *testing.T) {
	ts, _, _ := newTestGateway(t, serverOptions{
		secret:  testSecret,
		origins: []string{"https://www.upwork.com"},
	})

	req := signedRequest(t, ts.URL+"/agents/a1/webhook/events", `{}`)
	req.Header.Set("Origin", "https://evil.example")
	resp, _ := doRequest(t, req)

	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}
}

func TestHandleEvent_RateLimited(t *testing.T) {
	ts, _, _ := newTestGateway(t, serverOptions{secret: testSecret, rateMax: 2})
	url := ts.URL + "/agents/a1/webhook/events"

	for i := 0; i < 2; i++ {
		resp, _ := doRequest(t, signedRequest(t, url, `{"event_type":"agent.health_check"}`))
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i+1, resp.StatusCode)
		}
		if resp.Header.Get("X-RateLimit-Limit") != "2" {
			t.Errorf("X-RateLimit-Limit = %q, want 2", resp.Header.Get("X-RateLimit-Limit"))
		}
	}

	resp, body := doRequest(t, signedRequest(t, url, `{"event_type":"agent.health_check"}`))
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", resp.StatusCode)
	}
	var e ErrorResponse
	json.Unmarshal(body, &e)
	if e.ResetTime == 0 {
		t.Error("429 body should carry reset_time")
	}
}

type downRateLimiter struct{}

func (downRateLimiter) Check(context.Context, string) (guard.RateResult, error) {
	return guard.RateResult{}, fmt.Errorf("limiter store unavailable")
}

func TestHandleEvent_RateStoreDownAdmitsWithHeaders(t *testing.T) {
	ts, _, _ := newTestGateway(t, serverOptions{secret: testSecret, rateMax: 50, limiter: downRateLimiter{}})

	resp, _ := doRequest(t, signedRequest(t, ts.URL+"/agents/a1/webhook/events", `{"event_type":"agent.health_check"}`))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200 when the limiter store is down", resp.StatusCode)
	}
	if got := resp.Header.Get("X-RateLimit-Limit"); got != "50" {
		t.Errorf("X-RateLimit-Limit = %q, want 50", got)
	}
	if got := resp.Header.Get("X-RateLimit-Remaining"); got != "50" {
		t.Errorf("X-RateLimit-Remaining = %q, want 50", got)
	}
	if got := resp.Header.Get("X-RateLimit-Window"); got != "60" {
		t.Errorf("X-RateLimit-Window = %q, want 60", got)
	}
}

func TestHandleEvent_BodyTooLarge(t *testing.T) {
	ts, _, _ := newTestGateway(t, serverOptions{secret: testSecret, maxBody: 32})

	big := `{"event_type":"agent.health_check","padding":"` + string(bytes.Repeat([]byte("x"), 64)) + `"}`
	resp, _ := doRequest(t, signedRequest(t, ts.URL+"/agents/a1/webhook/events", big))

	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", resp.StatusCode)
	}
}

func TestHandleEvent_MalformedJSON(t *testing.T) {
	ts, _, _ := newTestGateway(t, serverOptions{secret: testSecret})

	resp, _ := doRequest(t, signedRequest(t, ts.URL+"/agents/a1/webhook/events", `not json`))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestHandleEvent_InvitationWithoutJobPostID(t *testing.T) {
	ts, starter, _ := newTestGateway(t, serverOptions{secret: testSecret})

	resp, _ := doRequest(t, signedRequest(t, ts.URL+"/agents/a1/webhook/events",
		`{"event_type":"agent.job.invitation"}`))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if starter.callCount() != 0 {
		t.Error("invitation without job_post_id must not start a workflow")
	}
}

func TestHandleEvent_MissingSecretIsConfigError(t *testing.T) {
	ts, _, _ := newTestGateway(t, serverOptions{secret: ""})

	resp, body := doRequest(t, signedRequest(t, ts.URL+"/agents/a1/webhook/events", `{}`))
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500 (body %s)", resp.StatusCode, body)
	}
	var e ErrorResponse
	json.Unmarshal(body, &e)
	if e.Error != "configuration_error" {
		t.Errorf("error = %q, want configuration_error", e.Error)
	}
}

func TestHandleEvent_MethodNotAllowed(t *testing.T) {
	ts, _, _ := newTestGateway(t, serverOptions{secret: testSecret})

	resp, err := http.Get(ts.URL + "/agents/a1/webhook/events")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", resp.StatusCode)
	}
}

func TestHandlePreflight(t *testing.T) {
	ts, _, _ := newTestGateway(t, serverOptions{secret: testSecret})

	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/agents/a1/webhook/events", nil)
	resp, _ := doRequest(t, req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Methods") == "" {
		t.Error("preflight should advertise allowed methods")
	}
}

func TestHealthz(t *testing.T) {
	ts, _, _ := newTestGateway(t, serverOptions{secret: testSecret})

	resp, body := doRequestGet(t, ts.URL+"/healthz")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var out map[string]string
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("unmarshal healthz: %v", err)
	}
	if out["status"] != "ok" {
		t.Errorf("status field = %q, want ok", out["status"])
	}
}

func doRequestGet(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	return resp, body
}
