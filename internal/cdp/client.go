// Package cdp provides the one-shot evaluation channel into the managed
// browser. Each call connects to the remote-debugging endpoint, evaluates a
// single expression in the target page, and disconnects; no connection is held
// between calls, so the probe and the bridge can share the endpoint freely.
package cdp

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/playwright-community/playwright-go"

	"github.com/searchlet/chatbridge/internal/core"
)

// Client evaluates expressions in the page whose URL matches the target
// prefix, over the Chrome DevTools Protocol.
type Client struct {
	mu        sync.Mutex
	pw        *playwright.Playwright
	endpoint  string
	targetURL string
}

// NewClient creates a client for the given debug port and target page URL.
// The playwright driver is started lazily on first use.
func NewClient(debugPort int, targetURL string) *Client {
	return &Client{
		endpoint:  fmt.Sprintf("http://127.0.0.1:%d", debugPort),
		targetURL: targetURL,
	}
}

func (c *Client) driver() (*playwright.Playwright, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pw != nil {
		return c.pw, nil
	}
	opts := &playwright.RunOptions{
		Verbose: false,
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	}
	pw, err := playwright.Run(opts)
	if err != nil {
		return nil, fmt.Errorf("starting playwright driver: %w", err)
	}
	c.pw = pw
	return pw, nil
}

// Evaluate implements core.PageEvaluator. Connection failures surface as
// Unreachable so callers can treat them as transient; a missing target page
// (browser up, page not yet loaded) is reported the same way.
func (c *Client) Evaluate(ctx context.Context, expression string) (interface{}, error) {
	type evalResult struct {
		value interface{}
		err   error
	}
	resultCh := make(chan evalResult, 1)

	go func() {
		value, err := c.evaluate(expression)
		resultCh <- evalResult{value: value, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, core.ErrTimeout("page evaluation abandoned").WithCause(ctx.Err())
	case res := <-resultCh:
		return res.value, res.err
	}
}

func (c *Client) evaluate(expression string) (interface{}, error) {
	pw, err := c.driver()
	if err != nil {
		return nil, core.ErrUnreachable("devtools driver unavailable").WithCause(err)
	}

	browser, err := pw.Chromium.ConnectOverCDP(c.endpoint)
	if err != nil {
		return nil, core.ErrUnreachable("devtools endpoint not reachable").WithCause(err)
	}
	defer func() {
		// Closes the CDP session, not the browser process.
		_ = browser.Close()
	}()

	page, err := c.findTargetPage(browser)
	if err != nil {
		return nil, err
	}

	value, err := page.Evaluate(expression)
	if err != nil {
		return nil, fmt.Errorf("evaluating expression: %w", err)
	}
	return value, nil
}

func (c *Client) findTargetPage(browser playwright.Browser) (playwright.Page, error) {
	for _, browserCtx := range browser.Contexts() {
		for _, page := range browserCtx.Pages() {
			if strings.HasPrefix(page.URL(), c.targetURL) {
				return page, nil
			}
		}
	}
	return nil, core.ErrUnreachable("target page not loaded").
		WithDetail("target_url", c.targetURL)
}

// Close stops the playwright driver.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pw == nil {
		return nil
	}
	err := c.pw.Stop()
	c.pw = nil
	return err
}
