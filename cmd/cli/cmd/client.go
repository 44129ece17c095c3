package cmd

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"jobdeck/pkg/api"
)

// DeckClient handles API calls to a jobdeck launcher.
type DeckClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewDeckClient creates a new client with the given base URL and token.
func NewDeckClient(baseURL, token string) *DeckClient {
	return &DeckClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// APIError represents an error response from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

func apiError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	var er api.ErrorResponse
	if json.Unmarshal(body, &er) == nil && er.Error != "" {
		return &APIError{StatusCode: resp.StatusCode, Message: er.Error}
	}
	return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
}

// do sends req and decodes a 2xx JSON body into out.
func (c *DeckClient) do(req *http.Request, out any) error {
	if c.Token != "" {
		req.Header.Add("Authorization", fmt.Sprintf("Bearer %s", c.Token))
	}
	req.Header.Add("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apiError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func (c *DeckClient) get(path string, out any) error {
	req, err := http.NewRequest(http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, out)
}

// Namespaces sends GET /api/v1/backend.
func (c *DeckClient) Namespaces() ([]api.NamespaceResponse, error) {
	var result []api.NamespaceResponse
	if err := c.get("/api/v1/backend", &result); err != nil {
		return nil, err
	}
	return result, nil
}

// Backend sends GET /api/v1/backend/{ns} for one page of jobs in status.
func (c *DeckClient) Backend(ns, status string, page int) (*api.BackendResponse, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if page != 0 {
		q.Set("page", strconv.Itoa(page))
	}
	path := "/api/v1/backend/" + url.PathEscape(ns)
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var result api.BackendResponse
	if err := c.get(path, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Workers sends GET /api/v1/backend/{ns}/workers.
func (c *DeckClient) Workers(ns string) ([]api.WorkerResponse, error) {
	var result []api.WorkerResponse
	if err := c.get("/api/v1/backend/"+url.PathEscape(ns)+"/workers", &result); err != nil {
		return nil, err
	}
	return result, nil
}

// Push sends PUT /api/v1/backend/{ns}/job with payload as the body.
// A non-zero delay schedules the job for later.
func (c *DeckClient) Push(ns string, payload []byte, delay time.Duration) (*api.PushJobResponse, error) {
	endpoint := c.BaseURL + "/api/v1/backend/" + url.PathEscape(ns) + "/job"
	if delay > 0 {
		endpoint += "?delay=" + url.QueryEscape(delay.String())
	}
	req, err := http.NewRequest(http.MethodPut, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	var result api.PushJobResponse
	if err := c.do(req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetJob sends GET /api/v1/backend/{ns}/job/{id}.
func (c *DeckClient) GetJob(ns, id string) (*api.JobResponse, error) {
	var result api.JobResponse
	if err := c.get("/api/v1/backend/"+url.PathEscape(ns)+"/job/"+url.PathEscape(id), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// StreamEvents reads the server-sent event stream and calls fn for every event
// until ctx is cancelled or the server closes the stream.
func (c *DeckClient) StreamEvents(ctx context.Context, fn func(event string)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/api/v1/events", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	// The stream has no overall deadline.
	client := *c.HTTPClient
	client.Timeout = 0
	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}

	var data []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if len(data) > 0 {
				fn(strings.Join(data, "\n"))
				data = data[:0]
			}
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("stream interrupted: %w", err)
	}
	return nil
}
