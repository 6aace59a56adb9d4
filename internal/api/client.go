package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrUnavailable reports that no daemon API is configured or reachable.
var ErrUnavailable = errors.New("daemon API unavailable")

// StatusError is a non-2xx reply from the daemon.
type StatusError struct {
	Code    int
	Message string
	Kind    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("daemon api returned status %d", e.Code)
	}
	return fmt.Sprintf("daemon api returned status %d: %s", e.Code, e.Message)
}

// Client talks to the daemon control API.
type Client struct {
	base  *url.URL
	token string
	http  *http.Client
}

// NewClient builds a client for bind ("host:port" or a full URL). An empty
// bind returns ErrUnavailable.
func NewClient(bind, token string) (*Client, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, ErrUnavailable
	}
	if !strings.Contains(bind, "://") {
		bind = "http://" + bind
	}
	base, err := url.Parse(bind)
	if err != nil {
		return nil, fmt.Errorf("parse api bind: %w", err)
	}
	base.Path = ""
	base.RawQuery = ""
	base.Fragment = ""

	return &Client{
		base:  base,
		token: strings.TrimSpace(token),
		http:  &http.Client{Timeout: 2 * time.Minute},
	}, nil
}

// Health pings the unauthenticated liveness endpoint.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil, nil)
}

// Status fetches daemon runtime information.
func (c *Client) Status(ctx context.Context) (StatusResponse, error) {
	var out StatusResponse
	err := c.do(ctx, http.MethodGet, "/api/status", nil, nil, &out)
	return out, err
}

// Queue lists queued jobs.
func (c *Client) Queue(ctx context.Context) (QueueResponse, error) {
	var out QueueResponse
	err := c.do(ctx, http.MethodGet, "/api/queue", nil, nil, &out)
	return out, err
}

// Replay runs one drain pass without reading the sheet.
func (c *Client) Replay(ctx context.Context) (ReplayResponse, error) {
	var out ReplayResponse
	err := c.do(ctx, http.MethodPost, "/api/queue/replay", nil, nil, &out)
	return out, err
}

// ClearJob removes a queued job.
func (c *Client) ClearJob(ctx context.Context, jobID string) (ClearResponse, error) {
	var out ClearResponse
	err := c.do(ctx, http.MethodDelete, "/api/queue/"+url.PathEscape(jobID), nil, nil, &out)
	return out, err
}

// Poll runs one ingest and drain cycle.
func (c *Client) Poll(ctx context.Context) (PollResponse, error) {
	var out PollResponse
	err := c.do(ctx, http.MethodPost, "/api/poll", nil, nil, &out)
	return out, err
}

// Applications lists applications, optionally filtered by status.
func (c *Client) Applications(ctx context.Context, status string) (ApplicationsResponse, error) {
	var query url.Values
	if status = strings.TrimSpace(status); status != "" {
		query = url.Values{"status": []string{status}}
	}
	var out ApplicationsResponse
	err := c.do(ctx, http.MethodGet, "/api/applications", query, nil, &out)
	return out, err
}

// Application fetches one application.
func (c *Client) Application(ctx context.Context, id string) (ApplicationResponse, error) {
	var out ApplicationResponse
	err := c.do(ctx, http.MethodGet, "/api/applications/"+url.PathEscape(id), nil, nil, &out)
	return out, err
}

// Finalize decides a pending application.
func (c *Client) Finalize(ctx context.Context, id string, req FinalizeRequest) (DecisionResponse, error) {
	var out DecisionResponse
	err := c.do(ctx, http.MethodPost, "/api/applications/"+url.PathEscape(id)+"/finalize", nil, req, &out)
	return out, err
}

// Reopen returns a decided application to pending.
func (c *Client) Reopen(ctx context.Context, id string, req ReopenRequest) (DecisionResponse, error) {
	var out DecisionResponse
	err := c.do(ctx, http.MethodPost, "/api/applications/"+url.PathEscape(id)+"/reopen", nil, req, &out)
	return out, err
}

// Evaluate recounts the vote on an application.
func (c *Client) Evaluate(ctx context.Context, id string) (VoteResponse, error) {
	var out VoteResponse
	err := c.do(ctx, http.MethodPost, "/api/applications/"+url.PathEscape(id)+"/evaluate", nil, nil, &out)
	return out, err
}

// Reaction reports a vote reaction change.
func (c *Client) Reaction(ctx context.Context, req ReactionRequest) (VoteResponse, error) {
	var out VoteResponse
	err := c.do(ctx, http.MethodPost, "/api/reactions", nil, req, &out)
	return out, err
}

// Logs fetches captured log events after since.
func (c *Client) Logs(ctx context.Context, since uint64, limit int) (LogsResponse, error) {
	query := url.Values{}
	if since > 0 {
		query.Set("since", strconv.FormatUint(since, 10))
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var out LogsResponse
	err := c.do(ctx, http.MethodGet, "/api/logs", query, nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload, out any) error {
	if c == nil {
		return ErrUnavailable
	}
	endpoint := c.base.ResolveReference(&url.URL{Path: path, RawQuery: query.Encode()})

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		statusErr := &StatusError{Code: resp.StatusCode}
		var decoded ErrorResponse
		if raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 64<<10)); readErr == nil {
			if json.Unmarshal(raw, &decoded) == nil {
				statusErr.Message = decoded.Error
				statusErr.Kind = decoded.Kind
			} else {
				statusErr.Message = strings.TrimSpace(string(raw))
			}
		}
		return statusErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// IsUnavailable reports whether err means the daemon could not be reached.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		err = urlErr.Err
	}
	var opErr *net.OpError
	return errors.Is(err, ErrUnavailable) || errors.As(err, &opErr)
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.Code == code
}
