package cli

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Client talks to the orchestrator's admin API.
type Client struct {
	rest *resty.Client
}

func NewClient(baseURL, token string) *Client {
	rest := resty.New().
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetTimeout(30 * time.Second).
		SetHeader("Accept", "application/json")
	if token != "" {
		rest.SetAuthToken(token)
	}
	return &Client{rest: rest}
}

// APIError is the error envelope returned by the orchestrator.
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

func (e *APIError) Error() string {
	if e.Retryable {
		return fmt.Sprintf("%s (%s, retryable)", e.Message, e.Code)
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

type errorResponse struct {
	Error *APIError `json:"error"`
}

// Do performs a request and decodes a successful JSON body into result.
func (c *Client) Do(method, path string, body, result any) error {
	var errResp errorResponse
	req := c.rest.R().SetError(&errResp)
	if body != nil {
		req.SetBody(body)
	}
	if result != nil {
		req.SetResult(result)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if resp.IsError() {
		if errResp.Error != nil && errResp.Error.Code != "" {
			return errResp.Error
		}
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

func (c *Client) Get(path string, result any) error {
	return c.Do(http.MethodGet, path, nil, result)
}

func (c *Client) Post(path string, body, result any) error {
	return c.Do(http.MethodPost, path, body, result)
}
