package analysis

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/codemind/reviewhub/internal/database"
	"github.com/codemind/reviewhub/internal/stats"
	"github.com/codemind/reviewhub/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func newTestClient(t *testing.T, url string, db database.ReviewRepository) *Client {
	sp := &stats.MockStatsUpdater{}
	sp.On("Incr", mock.Anything).Maybe()

	c := NewClient(testutil.TestLogger(t), url, db, sp)
	c.backoff = 0
	return c
}

func TestAnalyze(t *testing.T) {
	t.Run("returns the report and saves it", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/analyze", r.URL.Path)
			w.Write([]byte(`{"score":0.82,"suggestions":["use context"],"bugs":[],"optimizations":[],"documentation":"ok"}`))
		}))
		defer srv.Close()

		db := &database.MockReviewRepository{}
		defer db.AssertExpectations(t)

		db.On("SaveAnalysisReport", mock.MatchedBy(func(p database.SaveAnalysisParams) bool {
			return p.UserId == 1 && p.Language == "go" && p.Score == 0.82 && p.Id != ""
		})).Return(database.AnalysisReport{}, nil).Once()

		c := newTestClient(t, srv.URL, db)

		report, err := c.Analyze(context.Background(), 1, "package main", "go", "org/repo")
		assert.NoError(t, err)
		assert.Equal(t, 0.82, report.Score)
		assert.Equal(t, []string{"use context"}, report.Suggestions)
	})

	t.Run("retries a server error", func(t *testing.T) {
		var calls int
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			if calls == 1 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			w.Write([]byte(`{"score":0.5}`))
		}))
		defer srv.Close()

		db := &database.MockReviewRepository{}
		db.On("SaveAnalysisReport", mock.Anything).Return(database.AnalysisReport{}, nil).Once()

		c := newTestClient(t, srv.URL, db)

		report, err := c.Analyze(context.Background(), 1, "x", "go", "")
		assert.NoError(t, err)
		assert.Equal(t, 0.5, report.Score)
		assert.Equal(t, 2, calls, "expected one retry after the server error")
	})

	t.Run("gives up after repeated server errors", func(t *testing.T) {
		var calls int
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		c := newTestClient(t, srv.URL, &database.MockReviewRepository{})

		_, err := c.Analyze(context.Background(), 1, "x", "go", "")
		assert.ErrorIs(t, err, ErrUnavailable)
		assert.Equal(t, maxAttempts, calls)
	})

	t.Run("does not retry a client error", func(t *testing.T) {
		var calls int
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			w.WriteHeader(http.StatusBadRequest)
		}))
		defer srv.Close()

		c := newTestClient(t, srv.URL, &database.MockReviewRepository{})

		_, err := c.Analyze(context.Background(), 1, "x", "go", "")
		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrUnavailable)
		assert.Equal(t, 1, calls, "expected no retry on a client error")
	})

	t.Run("a failed report save does not fail the analysis", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"score":0.9}`))
		}))
		defer srv.Close()

		db := &database.MockReviewRepository{}
		defer db.AssertExpectations(t)

		db.On("SaveAnalysisReport", mock.Anything).Return(database.AnalysisReport{}, assert.AnError).Once()

		c := newTestClient(t, srv.URL, db)

		report, err := c.Analyze(context.Background(), 1, "x", "go", "")
		assert.NoError(t, err)
		assert.Equal(t, 0.9, report.Score)
	})
}
