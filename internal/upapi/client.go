package upapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/finchley/agentgw/internal/log"
)

// Config holds client settings.
type Config struct {
	BaseURL      string
	AuthURL      string
	ClientID     string
	ClientSecret string

	// HTTPClient overrides the default transport (tests).
	HTTPClient *http.Client
}

// Client is the authenticated marketplace API client. It implements API.
type Client struct {
	baseURL    string
	tokens     *TokenSource
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a marketplace API client.
func New(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		tokens:     NewTokenSource(cfg.AuthURL, cfg.ClientID, cfg.ClientSecret, httpClient),
		httpClient: httpClient,
		logger:     log.WithComponent("upapi"),
	}
}

// JobDetail fetches the job posting detail for an agent.
func (c *Client) JobDetail(ctx context.Context, jobPostID, agentID string) (*JobDetail, error) {
	var detail JobDetail
	endpoint := fmt.Sprintf("/jobs/%s/%s/detail", jobPostID, agentID)
	if err := c.call(ctx, http.MethodGet, endpoint, nil, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// StartAttempt posts the start action with a human-readable explanation.
func (c *Client) StartAttempt(ctx context.Context, jobPostID, agentID, explanation string) error {
	endpoint := fmt.Sprintf("/jobs/%s/%s/start", jobPostID, agentID)
	body := map[string]any{"explanation": explanation}
	return c.call(ctx, http.MethodPost, endpoint, body, nil)
}

// SubmitDeliverable uploads the deliverable as a multipart form. The binary
// part is named "files" per the marketplace's upload contract; this path
// does not go through the JSON body handling in call.
func (c *Client) SubmitDeliverable(ctx context.Context, jobPostID, agentID, filename string, content []byte) error {
	endpoint := fmt.Sprintf("/jobs/%s/%s/deliverable", jobPostID, agentID)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("files", filename)
	if err != nil {
		return fmt.Errorf("create multipart: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return fmt.Errorf("write multipart: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("close multipart: %w", err)
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return fmt.Errorf("build request %s: %w", endpoint, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return &APIError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	return nil
}

// CompleteAttempt posts the complete action.
func (c *Client) CompleteAttempt(ctx context.Context, jobPostID, agentID, explanation string) error {
	endpoint := fmt.Sprintf("/jobs/%s/%s/complete", jobPostID, agentID)
	body := map[string]any{
		"explanation": explanation,
		"fixed_price": nil,
	}
	return c.call(ctx, http.MethodPost, endpoint, body, nil)
}

// Messages fetches client messages for a job attempt.
func (c *Client) Messages(ctx context.Context, jobPostID, agentID string) ([]Message, error) {
	var out struct {
		Messages []Message `json:"messages"`
	}
	endpoint := fmt.Sprintf("/jobs/%s/%s/messages", jobPostID, agentID)
	if err := c.call(ctx, http.MethodGet, endpoint, nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// Feedback fetches client feedback for a job attempt.
func (c *Client) Feedback(ctx context.Context, jobPostID, agentID string) ([]Feedback, error) {
	var out struct {
		Feedback []Feedback `json:"feedback"`
	}
	endpoint := fmt.Sprintf("/jobs/%s/%s/feedback", jobPostID, agentID)
	if err := c.call(ctx, http.MethodGet, endpoint, nil, &out); err != nil {
		return nil, err
	}
	return out.Feedback, nil
}

// call issues an authenticated JSON request. A non-2xx status becomes an
// *APIError carrying the status code and response body; the error is the
// caller's to handle, nothing is retried here.
func (c *Client) call(ctx context.Context, method, endpoint string, body, out any) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("build request %s: %w", endpoint, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	c.logger.Debug("marketplace API call", "method", method, "endpoint", endpoint)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response %s: %w", endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode response %s: %w", endpoint, err)
		}
	}
	return nil
}
