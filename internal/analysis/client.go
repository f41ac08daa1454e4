package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/codemind/reviewhub/internal/database"
	"github.com/codemind/reviewhub/internal/stats"
	"github.com/google/uuid"
)

const (
	maxAttempts    = 3
	requestTimeout = 30 * time.Second
)

// ErrUnavailable means the analysis backend kept failing after retries.
var ErrUnavailable = errors.New("analysis service unavailable")

type Report struct {
	Score         float64  `json:"score"`
	Suggestions   []string `json:"suggestions"`
	Bugs          []string `json:"bugs"`
	Optimizations []string `json:"optimizations"`
	Documentation string   `json:"documentation"`
}

type analyzeRequest struct {
	Code     string `json:"code"`
	Language string `json:"language"`
}

// Client calls the code analysis backend and records each successful run.
type Client struct {
	log     *log.Logger
	baseURL string
	http    *http.Client
	db      database.ReviewRepository
	stats   stats.StatsProvider
	backoff time.Duration
}

func NewClient(logger *log.Logger, baseURL string, db database.ReviewRepository, sp stats.StatsProvider) *Client {
	return &Client{
		log:     logger,
		baseURL: baseURL,
		http:    &http.Client{Timeout: requestTimeout},
		db:      db,
		stats:   sp,
		backoff: 200 * time.Millisecond,
	}
}

// Analyze scores a snippet of code. Server-side failures are retried with
// backoff; a client error from the backend is returned as-is since the
// same input would fail again.
func (c *Client) Analyze(ctx context.Context, userId int, code, language, repository string) (Report, error) {
	body, err := json.Marshal(analyzeRequest{Code: code, Language: language})
	if err != nil {
		return Report{}, err
	}

	var report Report
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(c.backoff << uint(attempt-1)):
			case <-ctx.Done():
				return Report{}, ctx.Err()
			}
		}

		report, lastErr = c.post(ctx, body)
		if lastErr == nil {
			break
		}

		var retryable *retryableError
		if !errors.As(lastErr, &retryable) {
			return Report{}, lastErr
		}

		c.log.Printf("analysis attempt %d failed: %v", attempt+1, lastErr)
	}

	if lastErr != nil {
		return Report{}, fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
	}

	if _, err := c.db.SaveAnalysisReport(database.SaveAnalysisParams{
		Id:         uuid.NewString(),
		UserId:     userId,
		Language:   language,
		Repository: repository,
		Score:      report.Score,
	}); err != nil {
		// the caller still gets their report if only the audit write failed
		c.log.Printf("save analysis report: %v", err)
	}

	c.stats.Incr(stats.AnalysesPerformed)
	return report, nil
}

type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

func (c *Client) post(ctx context.Context, body []byte) (Report, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze", bytes.NewReader(body))
	if err != nil {
		return Report{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Report{}, &retryableError{err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		io.Copy(io.Discard, resp.Body)
		return Report{}, &retryableError{err: fmt.Errorf("analysis service returned %d", resp.StatusCode)}
	}

	if resp.StatusCode != http.StatusOK {
		return Report{}, fmt.Errorf("analysis service returned %d", resp.StatusCode)
	}

	var report Report
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return Report{}, fmt.Errorf("decode analysis response: %w", err)
	}

	return report, nil
}
