// Package backend implements the outbound HTTP client that reports link
// state, captured messages, and sync progress to the backend collaborator.
// All calls are best-effort from the caller's perspective: the client retries
// transient failures a bounded number of times and then gives up.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/searchlet/chatbridge/internal/config"
	"github.com/searchlet/chatbridge/internal/core"
	"github.com/searchlet/chatbridge/internal/logging"
)

// Client is an HTTP implementation of core.BackendNotifier.
type Client struct {
	baseURL    string
	authToken  string
	maxRetries int
	httpClient *http.Client
	logger     *logging.Logger
}

// New creates a backend client from config. Returns nil when no base URL is
// configured, which callers treat as "reporting disabled".
func New(cfg config.BackendConfig, logger *logging.Logger) *Client {
	if cfg.BaseURL == "" {
		return nil
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		authToken:  cfg.AuthToken,
		maxRetries: cfg.MaxRetries,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.WithComponent("backend"),
	}
}

type linkedPayload struct {
	OwnerID   string    `json:"owner_id"`
	Linked    bool      `json:"linked"`
	Timestamp time.Time `json:"timestamp"`
}

type messagesPayload struct {
	OwnerID  string                 `json:"owner_id"`
	Messages []core.BufferedMessage `json:"messages"`
}

type syncStatusPayload struct {
	OwnerID    string    `json:"owner_id"`
	LastSyncAt time.Time `json:"last_sync_at"`
	SyncCount  int       `json:"sync_count"`
}

// NotifyLinked reports a link-state change for an owner.
func (c *Client) NotifyLinked(ctx context.Context, ownerID string, linked bool) error {
	return c.post(ctx, "/internal/bridge/linked", linkedPayload{
		OwnerID:   ownerID,
		Linked:    linked,
		Timestamp: time.Now().UTC(),
	})
}

// ReportMessages forwards a batch of captured messages.
func (c *Client) ReportMessages(ctx context.Context, ownerID string, messages []core.BufferedMessage) error {
	if len(messages) == 0 {
		return nil
	}
	return c.post(ctx, "/internal/bridge/messages", messagesPayload{
		OwnerID:  ownerID,
		Messages: messages,
	})
}

// ReportSyncStatus reports sync progress counters.
func (c *Client) ReportSyncStatus(ctx context.Context, ownerID string, lastSyncAt time.Time, syncCount int) error {
	return c.post(ctx, "/internal/bridge/sync-status", syncStatusPayload{
		OwnerID:    ownerID,
		LastSyncAt: lastSyncAt.UTC(),
		SyncCount:  syncCount,
	})
}

// post sends a JSON body with bounded retries on transient failures. Client
// errors (4xx) are not retried.
func (c *Client) post(ctx context.Context, path string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return core.ErrInternal("failed to encode backend payload", err)
	}

	url := c.baseURL + path
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * 500 * time.Millisecond
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			c.logger.Debug("retrying backend call", "path", path, "attempt", attempt)
		}

		lastErr = c.doPost(ctx, url, body)
		if lastErr == nil {
			return nil
		}
		if !core.IsRetryable(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

func (c *Client) doPost(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return core.ErrInternal("failed to build backend request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return core.ErrUnreachable(fmt.Sprintf("backend unreachable: %v", err))
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return core.ErrUpstream(fmt.Sprintf("backend returned %d", resp.StatusCode))
	default:
		return core.ErrValidation("BACKEND_REJECTED", fmt.Sprintf("backend rejected request with %d", resp.StatusCode))
	}
}
