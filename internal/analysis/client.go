package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"sync"
	"time"

	"github.com/AdvaitD04/LiveandLetCode/internal/audio"
)

// FormField is the multipart field carrying the WAV file
const FormField = "audio"

// Client uploads finished recordings to the remote analysis service, which
// returns a transcription and sentiment scores
type Client struct {
	config     Config
	httpClient *http.Client
	semaphore  chan struct{} // Concurrency limiting semaphore
	observer   Observer

	// Statistics
	totalRequests   uint64
	successRequests uint64
	failedRequests  uint64
	totalRetries    uint64
	avgResponseTime time.Duration

	mu sync.RWMutex
}

// Config contains analysis client configuration
type Config struct {
	Endpoint      string
	APIKey        string // optional bearer token
	Timeout       time.Duration
	MaxRetries    int
	MaxConcurrent int

	// BaseBackoff is the delay before the first retry; it doubles per
	// attempt up to 30s
	BaseBackoff time.Duration
}

// Observer receives analysis instrumentation. metrics.Metrics implements it.
type Observer interface {
	RecordAnalysisRequest()
	RecordAnalysisSuccess(durationSeconds float64)
	RecordAnalysisFailure(durationSeconds float64)
	RecordAnalysisRetry()
}

// Result is the analysis service response
type Result struct {
	Transcription     string    `json:"transcription"`
	SentimentAnalysis Sentiment `json:"sentiment_analysis"`
}

// Sentiment holds the sentiment fields of a Result
type Sentiment struct {
	SentimentScore   map[string]float64 `json:"sentiment_score"`
	Polarity         float64            `json:"polarity"`
	OverallSentiment string             `json:"overall_sentiment"`
}

// ServiceError is a non-2xx answer from the analysis service
type ServiceError struct {
	StatusCode int
	Message    string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("HTTP error %d: %s", e.StatusCode, e.Message)
}

// Retryable reports whether the request may succeed when repeated
func (e *ServiceError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// ClientStats represents client statistics
type ClientStats struct {
	TotalRequests   uint64        `json:"total_requests"`
	SuccessRequests uint64        `json:"success_requests"`
	FailedRequests  uint64        `json:"failed_requests"`
	SuccessRate     float64       `json:"success_rate"`
	TotalRetries    uint64        `json:"total_retries"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
	ActiveRequests  int           `json:"active_requests"`
}

// NewClient creates a new analysis HTTP client. observer may be nil.
func NewClient(config Config, observer Observer) (*Client, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}

	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	if config.MaxRetries < 0 {
		config.MaxRetries = 3
	}

	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 10
	}

	if config.BaseBackoff <= 0 {
		config.BaseBackoff = time.Second
	}

	if observer == nil {
		observer = noopObserver{}
	}

	httpClient := &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &Client{
		config:     config,
		httpClient: httpClient,
		semaphore:  make(chan struct{}, config.MaxConcurrent),
		observer:   observer,
	}, nil
}

// AnalyzeBlob uploads an exported recording
func (c *Client) AnalyzeBlob(ctx context.Context, blob *audio.Blob, filename string) (*Result, error) {
	return c.Analyze(ctx, filename, blob.Bytes(), blob.MimeType())
}

// Analyze uploads a WAV file for transcription and sentiment analysis
func (c *Client) Analyze(ctx context.Context, filename string, data []byte, mimeType string) (*Result, error) {
	// Acquire semaphore for concurrency limiting
	select {
	case c.semaphore <- struct{}{}:
		defer func() { <-c.semaphore }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	startTime := time.Now()
	c.incrementTotalRequests()
	c.observer.RecordAnalysisRequest()

	var lastErr error

	// Retry loop with exponential backoff
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			c.incrementTotalRetries()
			c.observer.RecordAnalysisRetry()

			backoffTime := time.Duration(math.Pow(2, float64(attempt-1))) * c.config.BaseBackoff
			if backoffTime > 30*time.Second {
				backoffTime = 30 * time.Second
			}

			select {
			case <-time.After(backoffTime):
			case <-ctx.Done():
				c.fail(startTime)
				return nil, ctx.Err()
			}
		}

		result, err := c.doRequest(ctx, filename, data, mimeType)
		if err == nil {
			c.incrementSuccessRequests()
			c.updateAvgResponseTime(time.Since(startTime))
			c.observer.RecordAnalysisSuccess(time.Since(startTime).Seconds())
			return result, nil
		}

		lastErr = err

		if ctx.Err() != nil || !isRetryableError(err) {
			break
		}
	}

	c.fail(startTime)
	return nil, fmt.Errorf("analysis failed: %w", lastErr)
}

func (c *Client) fail(startTime time.Time) {
	c.incrementFailedRequests()
	c.observer.RecordAnalysisFailure(time.Since(startTime).Seconds())
}

// doRequest performs a single HTTP request to the analysis service
func (c *Client) doRequest(ctx context.Context, filename string, data []byte, mimeType string) (*Result, error) {
	body, contentType, err := createMultipartRequest(filename, data, mimeType)
	if err != nil {
		return nil, fmt.Errorf("failed to create multipart request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", "wavcap/1.0")
	if c.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ServiceError{StatusCode: resp.StatusCode, Message: errorMessage(respBody)}
	}

	var payload struct {
		Result
		Error string `json:"error"`
	}
	if err := json.Unmarshal(respBody, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse response JSON: %w", err)
	}

	if payload.Error != "" {
		return nil, &ServiceError{StatusCode: resp.StatusCode, Message: payload.Error}
	}

	return &payload.Result, nil
}

// errorMessage extracts {"error": "..."} from a response body, falling back
// to the raw body
func errorMessage(body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	return string(bytes.TrimSpace(body))
}

// createMultipartRequest creates a multipart/form-data request body
func createMultipartRequest(filename string, data []byte, mimeType string) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	if mimeType == "" {
		mimeType = audio.DefaultMimeType
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, FormField, filename))
	header.Set("Content-Type", mimeType)

	fileWriter, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}

	if _, err := fileWriter.Write(data); err != nil {
		return nil, "", fmt.Errorf("failed to write audio data: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	return &buf, writer.FormDataContentType(), nil
}

// isRetryableError determines if an error is retryable: 5xx and 429
// answers, timeouts and network failures
func isRetryableError(err error) bool {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr.Retryable()
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// Statistics methods
func (c *Client) incrementTotalRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRequests++
}

func (c *Client) incrementSuccessRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.successRequests++
}

func (c *Client) incrementFailedRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failedRequests++
}

func (c *Client) incrementTotalRetries() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRetries++
}

func (c *Client) updateAvgResponseTime(responseTime time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Simple moving average
	if c.avgResponseTime == 0 {
		c.avgResponseTime = responseTime
	} else {
		c.avgResponseTime = (c.avgResponseTime + responseTime) / 2
	}
}

// GetStats returns current client statistics
func (c *Client) GetStats() ClientStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	successRate := float64(0)
	if c.totalRequests > 0 {
		successRate = float64(c.successRequests) / float64(c.totalRequests) * 100
	}

	return ClientStats{
		TotalRequests:   c.totalRequests,
		SuccessRequests: c.successRequests,
		FailedRequests:  c.failedRequests,
		SuccessRate:     successRate,
		TotalRetries:    c.totalRetries,
		AvgResponseTime: c.avgResponseTime,
		ActiveRequests:  len(c.semaphore),
	}
}

// Close waits for active requests to complete
func (c *Client) Close() error {
	for i := 0; i < c.config.MaxConcurrent; i++ {
		c.semaphore <- struct{}{}
	}
	return nil
}

type noopObserver struct{}

func (noopObserver) RecordAnalysisRequest() {}
func (noopObserver) RecordAnalysisSuccess(float64) {}
func (noopObserver) RecordAnalysisFailure(float64) {}
func (noopObserver) RecordAnalysisRetry() {}
