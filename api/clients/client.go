// Package clients provides a Go client for the HTTP API, used by the
// admin CLI and by integrating services.
package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/The-Web-Dev-Forge/federated-biometric-backend/api"
)

// Client talks to a running server instance.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr api.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

// RegisterEmbedding enrolls or replaces a subject's embedding.
func (c *Client) RegisterEmbedding(ctx context.Context, req api.RegisterEmbeddingRequest) (api.RegisterEmbeddingResponse, error) {
	var resp api.RegisterEmbeddingResponse
	err := c.do(ctx, http.MethodPost, "/api/biometric/register", req, &resp)
	return resp, err
}

// Verify submits a challenge vector for comparison.
func (c *Client) Verify(ctx context.Context, req api.VerifyRequest) (api.VerifyResponse, error) {
	var resp api.VerifyResponse
	err := c.do(ctx, http.MethodPost, "/api/biometric/verify", req, &resp)
	return resp, err
}

// Status fetches a subject's enrollment status.
func (c *Client) Status(ctx context.Context, subjectID string) (api.StatusResponse, error) {
	var resp api.StatusResponse
	err := c.do(ctx, http.MethodGet, "/api/biometric/status/"+url.PathEscape(subjectID), nil, &resp)
	return resp, err
}

// DeleteEmbeddings erases a subject's embeddings.
func (c *Client) DeleteEmbeddings(ctx context.Context, subjectID string) (api.DeleteResponse, error) {
	var resp api.DeleteResponse
	err := c.do(ctx, http.MethodPost, "/api/biometric/delete", api.DeleteRequest{SubjectID: subjectID}, &resp)
	return resp, err
}

// ModelInfo fetches the active model version.
func (c *Client) ModelInfo(ctx context.Context) (api.ModelInfoResponse, error) {
	var resp api.ModelInfoResponse
	err := c.do(ctx, http.MethodGet, "/api/federated/model", nil, &resp)
	return resp, err
}

// SubmitGradients submits a gradient contribution.
func (c *Client) SubmitGradients(ctx context.Context, req api.SubmitGradientsRequest) (api.SubmitGradientsResponse, error) {
	var resp api.SubmitGradientsResponse
	err := c.do(ctx, http.MethodPost, "/api/federated/contributions", req, &resp)
	return resp, err
}

// Stats fetches the public federation statistics.
func (c *Client) Stats(ctx context.Context) (api.StatsResponse, error) {
	var resp api.StatsResponse
	err := c.do(ctx, http.MethodGet, "/api/federated/stats", nil, &resp)
	return resp, err
}

// CreateSubject registers a subject for an external identifier.
func (c *Client) CreateSubject(ctx context.Context, externalID string) (api.CreateSubjectResponse, error) {
	var resp api.CreateSubjectResponse
	err := c.do(ctx, http.MethodPost, "/api/admin/subjects", api.CreateSubjectRequest{ExternalID: externalID}, &resp)
	return resp, err
}

// CreateModel uploads a model version.
func (c *Client) CreateModel(ctx context.Context, req api.CreateModelRequest) (api.ModelVersionResponse, error) {
	var resp api.ModelVersionResponse
	err := c.do(ctx, http.MethodPost, "/api/admin/models", req, &resp)
	return resp, err
}

// ActivateModel deploys a model version.
func (c *Client) ActivateModel(ctx context.Context, version string) (api.ModelVersionResponse, error) {
	var resp api.ModelVersionResponse
	err := c.do(ctx, http.MethodPost, "/api/admin/models/"+url.PathEscape(version)+"/activate", nil, &resp)
	return resp, err
}
