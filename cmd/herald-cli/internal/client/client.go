// Package client talks to the herald admin API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nfrund/herald/internal/cleanup"
	"github.com/nfrund/herald/internal/handlers"
	"github.com/nfrund/herald/internal/jobs"
	"github.com/nfrund/herald/internal/messaging"
	"github.com/nfrund/herald/internal/topicmgr"
)

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("server returned %d (%s): %s", e.Status, e.Code, e.Message)
}

// Client is an admin API client.
type Client struct {
	base string
	http *http.Client
}

// New creates a client for the API rooted at baseURL, for example
// http://localhost:1002/api/v1.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: timeout},
	}
}

// Topics lists core and dynamic topics.
func (c *Client) Topics(ctx context.Context) (topicmgr.ActiveTopics, error) {
	var out topicmgr.ActiveTopics
	err := c.do(ctx, http.MethodGet, "/topics", nil, &out)
	return out, err
}

// TopicStatus reports one topic.
func (c *Client) TopicStatus(ctx context.Context, name string) (topicmgr.TopicStatus, error) {
	var out topicmgr.TopicStatus
	err := c.do(ctx, http.MethodGet, "/topics/"+url.PathEscape(name), nil, &out)
	return out, err
}

// Publish sends message, which must be valid JSON, to topic.
func (c *Client) Publish(ctx context.Context, topic string, message json.RawMessage) (messaging.PublishResult, error) {
	if !json.Valid(message) {
		return messaging.PublishResult{}, fmt.Errorf("message is not valid JSON")
	}
	body := map[string]json.RawMessage{"message": message}
	var out messaging.PublishResult
	err := c.do(ctx, http.MethodPost, "/topics/"+url.PathEscape(topic)+"/messages", body, &out)
	return out, err
}

// Cleanup runs a cleanup pass on the server.
func (c *Client) Cleanup(ctx context.Context) (cleanup.Report, error) {
	var out cleanup.Report
	err := c.do(ctx, http.MethodPost, "/cleanup", nil, &out)
	return out, err
}

// Jobs lists the cron jobs.
func (c *Client) Jobs(ctx context.Context) ([]jobs.JobStatus, error) {
	var out []jobs.JobStatus
	err := c.do(ctx, http.MethodGet, "/jobs", nil, &out)
	return out, err
}

// RunJob runs a job now.
func (c *Client) RunJob(ctx context.Context, name string) (handlers.JobRunResponse, error) {
	var out handlers.JobRunResponse
	err := c.do(ctx, http.MethodPost, "/jobs/"+url.PathEscape(name)+"/run", nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(data))}
		var er handlers.ErrorResponse
		if json.Unmarshal(data, &er) == nil && er.Message != "" {
			apiErr.Code, apiErr.Message = er.Code, er.Message
		}
		return apiErr
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
