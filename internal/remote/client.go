// Package remote is the client of the annotation store HTTP API. It loads
// tasks and their annotations, saves annotation lists and deletes single
// annotations.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/tphakala/audio-annotator/internal/annotation"
	"github.com/tphakala/audio-annotator/internal/errors"
	"github.com/tphakala/audio-annotator/internal/httpclient"
	"github.com/tphakala/audio-annotator/internal/logger"
)

const (
	defaultTimeout  = 15 * time.Second
	defaultCacheTTL = 30 * time.Second
	retryBaseDelay  = 250 * time.Millisecond
	maxPreviewBytes = 300
)

// Config configures the store client
type Config struct {
	// BaseURL is the API root, for example http://localhost:8000/api
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
	// Retries is the number of extra attempts for reads
	Retries int
	// CacheTTL bounds how long task metadata is reused
	CacheTTL time.Duration
	// Transport replaces the network, used by tests
	Transport http.RoundTripper
	// Observe is called after every request, for example to record metrics
	Observe func(req *http.Request, resp *http.Response, duration time.Duration, err error)
}

// Metrics are request counters of the client
type Metrics struct {
	Requests    int64
	Errors      int64
	CacheHits   int64
	CacheMisses int64
}

// Client talks to the annotation store. Safe for concurrent use.
type Client struct {
	cfg   Config
	base  string
	http  *httpclient.Client
	cache *cache.Cache
	log   logger.Logger

	requests    atomic.Int64
	errs        atomic.Int64
	cacheHits   atomic.Int64
	cacheMisses atomic.Int64

	firstCall sync.Once
}

// apiError is the error body of the store
type apiError struct {
	Error string `json:"error"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// NewClient validates cfg and returns a client
func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.Newf("annotation store base URL is required").
			Component("remote").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if u, err := url.Parse(base); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.Newf("invalid annotation store base URL %q", cfg.BaseURL).
			Component("remote").
			Category(errors.CategoryConfiguration).
			Context("base_url", cfg.BaseURL).
			Build()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}

	hc := httpclient.New(&httpclient.Config{
		DefaultTimeout: cfg.Timeout,
		UserAgent:      cfg.UserAgent,
		Transport:      cfg.Transport,
	})
	if cfg.Observe != nil {
		hc.SetAfterResponseHook(cfg.Observe)
	}

	return &Client{
		cfg:   cfg,
		base:  base,
		http:  hc,
		cache: cache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
		log:   logger.Global().Module("remote"),
	}, nil
}

// Close releases idle connections
func (c *Client) Close() {
	c.http.Close()
}

// Task fetches task metadata
func (c *Client) Task(ctx context.Context, id annotation.ID) (annotation.Task, error) {
	key := taskKey(id)
	if cached, ok := c.cache.Get(key); ok {
		if task, ok := cached.(annotation.Task); ok {
			c.cacheHits.Add(1)
			return task, nil
		}
	}
	c.cacheMisses.Add(1)

	var task annotation.Task
	if err := c.doWithRetry(ctx, http.MethodGet, c.url("task", id), nil, &task); err != nil {
		return annotation.Task{}, err
	}
	c.cache.SetDefault(key, task)
	return task, nil
}

// TaskAnnotations fetches the stored annotations of a task with its project labels
func (c *Client) TaskAnnotations(ctx context.Context, id annotation.ID) (annotation.TaskAnnotations, error) {
	var payload annotation.TaskAnnotations
	if err := c.doWithRetry(ctx, http.MethodGet, c.url("tasks", id, "annotations"), nil, &payload); err != nil {
		return annotation.TaskAnnotations{}, err
	}
	return payload, nil
}

// SaveAnnotations replaces every annotation of the task. It is not retried.
func (c *Client) SaveAnnotations(ctx context.Context, id annotation.ID, req annotation.SaveRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return errors.New(err).
			Component("remote").
			Category(errors.CategoryValidation).
			Context("task_id", int64(id)).
			Build()
	}

	var resp messageResponse
	if err := c.do(ctx, http.MethodPost, c.url("tasks", id, "save_annotations"), body, &resp); err != nil {
		return err
	}
	c.cache.Delete(taskKey(id))

	c.log.Debug("store accepted annotations",
		logger.Int64("task_id", int64(id)),
		logger.Int("count", len(req.Annotations)),
		logger.String("message", resp.Message))
	return nil
}

// DeleteAnnotation deletes one stored annotation. An unknown id yields a
// not-found error. Failures are reported once and never retried.
func (c *Client) DeleteAnnotation(ctx context.Context, id annotation.ID) error {
	return c.do(ctx, http.MethodDelete, c.url("annotations", id), nil, nil)
}

// Tasks lists tasks, optionally filtered by status
func (c *Client) Tasks(ctx context.Context, status annotation.Status) ([]annotation.Task, error) {
	u := c.base + "/tasks/"
	if status != "" {
		u += "?" + url.Values{"status": {string(status)}}.Encode()
	}
	var tasks []annotation.Task
	if err := c.doWithRetry(ctx, http.MethodGet, u, nil, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// Projects lists every project with its labels
func (c *Client) Projects(ctx context.Context) ([]annotation.Project, error) {
	var projects []annotation.Project
	if err := c.doWithRetry(ctx, http.MethodGet, c.base+"/projects/", nil, &projects); err != nil {
		return nil, err
	}
	return projects, nil
}

// GetMetrics returns a snapshot of the request counters
func (c *Client) GetMetrics() Metrics {
	return Metrics{
		Requests:    c.requests.Load(),
		Errors:      c.errs.Load(),
		CacheHits:   c.cacheHits.Load(),
		CacheMisses: c.cacheMisses.Load(),
	}
}

func (c *Client) url(resource string, id annotation.ID, sub ...string) string {
	parts := append([]string{c.base, resource, fmt.Sprintf("%d", id)}, sub...)
	return strings.Join(parts, "/") + "/"
}

func taskKey(id annotation.ID) string {
	return fmt.Sprintf("task:%d", id)
}

// do performs one request and decodes a JSON response into result
func (c *Client) do(ctx context.Context, method, rawURL string, body []byte, result any) error {
	c.requests.Add(1)
	start := time.Now()

	var reader io.Reader = http.NoBody
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		c.errs.Add(1)
		return errors.New(err).
			Component("remote").
			Category(errors.CategoryHTTP).
			Context("method", method).
			Context("url", rawURL).
			Build()
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		c.errs.Add(1)
		c.log.Warn("store request failed",
			logger.String("method", method),
			logger.String("url", rawURL),
			logger.Error(err))
		return errors.New(err).
			Component("remote").
			Category(errors.CategoryNetwork).
			Context("method", method).
			Context("url", rawURL).
			Build()
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.log.Debug("failed to close response body", logger.Error(cerr))
		}
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		c.errs.Add(1)
		return errors.New(err).
			Component("remote").
			Category(errors.CategoryNetwork).
			Context("url", rawURL).
			Context("status_code", resp.StatusCode).
			Build()
	}

	if resp.StatusCode >= http.StatusBadRequest {
		c.errs.Add(1)
		return c.statusError(method, rawURL, resp.StatusCode, data)
	}

	if result != nil && len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, result); err != nil {
			c.errs.Add(1)
			c.log.Error("failed to parse store response",
				logger.String("url", rawURL),
				logger.Int("response_size", len(data)),
				logger.String("response_preview", preview(data)),
				logger.Error(err))
			return errors.New(err).
				Component("remote").
				Category(errors.CategoryFileParsing).
				Context("url", rawURL).
				Build()
		}
	}

	c.firstCall.Do(func() {
		c.log.Info("annotation store reachable", logger.String("base_url", c.base))
	})
	c.log.Debug("store request completed",
		logger.String("method", method),
		logger.String("url", rawURL),
		logger.Int("status_code", resp.StatusCode),
		logger.Duration("duration", time.Since(start)))

	return nil
}

func (c *Client) statusError(method, rawURL string, status int, data []byte) error {
	msg := strings.TrimSpace(string(data))
	var body apiError
	if err := json.Unmarshal(data, &body); err == nil && body.Error != "" {
		msg = body.Error
	}
	if msg == "" {
		msg = http.StatusText(status)
	}

	if status != http.StatusNotFound {
		c.log.Warn("store returned an error",
			logger.String("method", method),
			logger.String("url", rawURL),
			logger.Int("status_code", status),
			logger.String("error", msg))
	}

	return errors.Newf("annotation store error (status %d): %s", status, msg).
		Component("remote").
		Category(categoryForStatus(status)).
		Context("status_code", status).
		Context("method", method).
		Context("url", rawURL).
		Build()
}

// doWithRetry retries idempotent requests on network and server errors
func (c *Client) doWithRetry(ctx context.Context, method, rawURL string, body []byte, result any) error {
	var lastErr error
	for attempt := range c.cfg.Retries + 1 {
		err := c.do(ctx, method, rawURL, body, result)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable(err) || ctx.Err() != nil || attempt == c.cfg.Retries {
			break
		}

		delay := time.Duration(attempt+1) * retryBaseDelay
		c.log.Warn("store request failed, retrying",
			logger.Int("attempt", attempt+1),
			logger.Int("max_retries", c.cfg.Retries),
			logger.Duration("delay", delay),
			logger.String("url", rawURL))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return lastErr
		}
	}
	return lastErr
}

func retryable(err error) bool {
	var ee *errors.EnhancedError
	if !errors.As(err, &ee) {
		return false
	}
	switch ee.Category {
	case errors.CategoryNetwork:
		if status, ok := ee.Context["status_code"].(int); ok {
			return status >= http.StatusInternalServerError
		}
		return true
	case errors.CategoryLimit:
		return true
	default:
		return false
	}
}

func categoryForStatus(status int) errors.ErrorCategory {
	switch {
	case status == http.StatusNotFound:
		return errors.CategoryNotFound
	case status == http.StatusTooManyRequests:
		return errors.CategoryLimit
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return errors.CategoryConfiguration
	case status == http.StatusConflict:
		return errors.CategoryConflict
	case status >= http.StatusInternalServerError:
		return errors.CategoryNetwork
	default:
		return errors.CategoryValidation
	}
}

func preview(data []byte) string {
	if len(data) > maxPreviewBytes {
		return string(data[:maxPreviewBytes]) + "..."
	}
	return string(data)
}
