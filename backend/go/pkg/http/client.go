package http

import (
	"Neurologix/backend/go/internal/config"
	"Neurologix/backend/go/pkg/circuitbreaker"
	"fmt"
	"net/http"
)

// Client wraps http.Client with optional circuit breaking.
type Client struct {
	httpClient *http.Client
	breaker    circuitbreaker.CircuitBreaker
}

// NewClient creates a Client. The underlying client has no overall timeout
// because response bodies may be event streams; bound requests with their
// context instead.
func NewClient(cfg config.CircuitBreakerConfig) (*Client, error) {
	c := &Client{httpClient: &http.Client{}}
	if !cfg.Enabled {
		return c, nil
	}
	breaker, err := createCircuitBreaker(cfg, nil)
	if err != nil {
		return nil, err
	}
	c.breaker = breaker
	return c, nil
}

// Do executes req. With a breaker, transport errors and 5xx responses count
// as failures; the 5xx response is still returned to the caller.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if c.breaker == nil {
		return c.httpClient.Do(req)
	}

	var resp *http.Response
	err := c.breaker.Execute(func() error {
		var err error
		resp, err = c.httpClient.Do(req)
		if err != nil {
			return err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("server error: received status code %d", resp.StatusCode)
		}
		return nil
	})
	if resp != nil && resp.StatusCode >= http.StatusInternalServerError {
		return resp, nil
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}
