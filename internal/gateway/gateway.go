// Package gateway wraps every outbound API call: it attaches the current
// bearer credential and transparently recovers from a single expired-token
// failure by exchanging the refresh token and resending the request once.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

const refreshPath = "/api/token/refresh/"

// Credentials is the session surface the gateway needs. Implemented by
// session.Store.
type Credentials interface {
	Access(ctx context.Context) (string, error)
	Refresh(ctx context.Context) (string, error)
	SetAccess(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}

type Gateway struct {
	baseURL    string
	httpClient *http.Client
	creds      Credentials
	logger     *logrus.Logger

	// onAuthExpired runs after an unrecoverable refresh failure, once the
	// stored tokens have been cleared. The redirect-to-login effect lives
	// with the caller, not inside the transport.
	onAuthExpired func()
}

type Option func(*Gateway)

func WithHTTPClient(client *http.Client) Option {
	return func(g *Gateway) { g.httpClient = client }
}

func WithAuthExpired(fn func()) Option {
	return func(g *Gateway) { g.onAuthExpired = fn }
}

func New(baseURL string, creds Credentials, logger *logrus.Logger, opts ...Option) *Gateway {
	g := &Gateway{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		creds:  creds,
		logger: logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// BaseURL returns the configured API root.
func (g *Gateway) BaseURL() string {
	return g.baseURL
}

// NewRequest builds a request against the API root. A non-nil body is
// JSON-encoded; the resulting request is replayable, which the one-shot
// retry relies on.
func (g *Gateway) NewRequest(ctx context.Context, method, path string, body interface{}) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// Do dispatches the request with the current access token attached. On a 401
// it performs exactly one refresh-and-resend cycle, provided a refresh token
// is stored. Any other failure, a 401 without a refresh token, and a 401 on
// the resent request all propagate unchanged. Transport errors are returned
// as-is.
//
// Concurrent requests that 401 together each run their own refresh; the
// cycle is not deduplicated across requests.
func (g *Gateway) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	access, err := g.creds.Access(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read access token: %w", err)
	}
	if access != "" {
		req.Header.Set("Authorization", "Bearer "+access)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	refresh, err := g.creds.Refresh(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read refresh token: %w", err)
	}
	if refresh == "" {
		return resp, nil
	}

	g.logger.WithFields(logrus.Fields{
		"method": req.Method,
		"path":   req.URL.Path,
	}).Info("Access token rejected, attempting refresh")

	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	newAccess, rerr := g.refreshAccess(ctx, refresh)
	if rerr != nil {
		g.logger.WithError(rerr).Warn("Token refresh failed, clearing credentials")
		if cerr := g.creds.Clear(ctx); cerr != nil {
			g.logger.WithError(cerr).Error("Failed to clear credentials")
		}
		if g.onAuthExpired != nil {
			g.onAuthExpired()
		}
		return nil, fmt.Errorf("token refresh failed (%v): %w", rerr, ErrUnauthenticated)
	}

	if err := g.creds.SetAccess(ctx, newAccess); err != nil {
		return nil, fmt.Errorf("failed to store refreshed access token: %w", err)
	}

	retry, err := replayableRequest(req)
	if err != nil {
		return nil, err
	}
	retry.Header.Set("Authorization", "Bearer "+newAccess)

	g.logger.WithFields(logrus.Fields{
		"method": req.Method,
		"path":   req.URL.Path,
	}).Info("Resending request with refreshed token")

	return g.httpClient.Do(retry)
}

// refreshAccess exchanges the refresh token for a new access token. The
// refresh call itself carries no bearer credential.
func (g *Gateway) refreshAccess(ctx context.Context, refreshToken string) (string, error) {
	payload, err := json.Marshal(map[string]string{"refresh": refreshToken})
	if err != nil {
		return "", fmt.Errorf("failed to marshal refresh request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+refreshPath, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send refresh request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("refresh endpoint returned status %d", resp.StatusCode)
	}

	var result struct {
		Access string `json:"access"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode refresh response: %w", err)
	}
	if result.Access == "" {
		return "", fmt.Errorf("refresh response carried no access token")
	}
	return result.Access, nil
}

// replayableRequest clones req with a fresh body for the single resend.
func replayableRequest(req *http.Request) (*http.Request, error) {
	retry := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("failed to rewind request body: %w", err)
		}
		retry.Body = body
	}
	return retry, nil
}

// JSON performs a request and decodes a 2xx response body into out (when out
// is non-nil). Non-2xx statuses are mapped to typed errors: 401 becomes
// ErrUnauthenticated, everything else a *ServerError.
func (g *Gateway) JSON(ctx context.Context, method, path string, body, out interface{}) error {
	req, err := g.NewRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	resp, err := g.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		io.Copy(io.Discard, resp.Body)
		return ErrUnauthenticated
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return newServerError(resp)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Download fetches a raw payload, e.g. the inventory CSV report.
func (g *Gateway) Download(ctx context.Context, path string) ([]byte, error) {
	req, err := g.NewRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	resp, err := g.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrUnauthenticated
	}
	if resp.StatusCode != http.StatusOK {
		return nil, newServerError(resp)
	}
	return io.ReadAll(resp.Body)
}
