package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/kimhsiao/inventra/internal/errors"
	"github.com/kimhsiao/inventra/internal/sync/queue"
)

// BatchPath is the endpoint path, relative to the base URL, that receives batches.
const BatchPath = "/sync/batch"

// TokenSource returns a bearer token for the next request.
type TokenSource func() (string, error)

// HTTPConfig holds remote endpoint configuration.
type HTTPConfig struct {
	Endpoint string
	DeviceID string
	Timeout  time.Duration // per request; zero uses 30s
}

// BatchRequest is the JSON body posted to the remote endpoint.
type BatchRequest struct {
	DeviceID string        `json:"device_id"`
	Entries  []queue.Entry `json:"entries"`
}

// HTTPTransport posts batches to a remote sync endpoint.
type HTTPTransport struct {
	config     *HTTPConfig
	tokens     TokenSource
	httpClient *http.Client
}

// NewHTTPTransport creates an HTTPTransport. tokens may be nil for endpoints
// that do not require authentication.
func NewHTTPTransport(config *HTTPConfig, tokens TokenSource) *HTTPTransport {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &HTTPTransport{
		config: config,
		tokens: tokens,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
	}
}

// Sync posts entries in one request. Any status other than 200 fails the batch.
func (t *HTTPTransport) Sync(ctx context.Context, entries []queue.Entry) error {
	body, err := json.Marshal(BatchRequest{DeviceID: t.config.DeviceID, Entries: entries})
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternal, "encode batch", err)
	}

	url := strings.TrimRight(t.config.Endpoint, "/") + BatchPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return apperrors.Wrap(apperrors.ErrSyncFailed, "build sync request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if t.tokens != nil {
		token, err := t.tokens()
		if err != nil {
			return apperrors.Wrap(apperrors.ErrSyncAuthFailed, "obtain bearer token", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrSyncFailed, "sync request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	code := apperrors.ErrSyncFailed
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		code = apperrors.ErrSyncAuthFailed
	}
	return apperrors.New(code, fmt.Sprintf("sync failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))))
}
