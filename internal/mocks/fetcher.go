package mocks

import (
	"context"
	"net/http"

	"github.com/Harvey-AU/hostprobe/internal/crawler"
	"github.com/Harvey-AU/hostprobe/internal/storage"
	"github.com/Harvey-AU/hostprobe/internal/techdetect"
	"github.com/stretchr/testify/mock"
)

// MockFetcher is a mock implementation of crawler.Fetcher
type MockFetcher struct {
	mock.Mock
}

// Fetch mocks the Fetch method
func (m *MockFetcher) Fetch(ctx context.Context, targetURL string) (*crawler.FetchOutcome, error) {
	args := m.Called(ctx, targetURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*crawler.FetchOutcome), args.Error(1)
}

// Outcome builds a FetchOutcome for use as a mocked return value.
func Outcome(url string, status int, headers map[string]string, body string) *crawler.FetchOutcome {
	if headers == nil {
		headers = map[string]string{}
	}
	return &crawler.FetchOutcome{
		URL:        url,
		StatusCode: status,
		Headers:    headers,
		Body:       []byte(body),
		Location:   headers["location"],
	}
}

// HTMLOutcome builds a 200 text/html FetchOutcome.
func HTMLOutcome(url, body string) *crawler.FetchOutcome {
	return Outcome(url, http.StatusOK, map[string]string{"content-type": "text/html; charset=utf-8"}, body)
}

// MockResultStore is a mock implementation of the runner's result store
type MockResultStore struct {
	mock.Mock
}

// Save mocks the Save method
func (m *MockResultStore) Save(ctx context.Context, runID string, res *crawler.Resolution) error {
	args := m.Called(ctx, runID, res)
	return args.Error(0)
}

// MockMirror is a mock implementation of the runner's artifact mirror
type MockMirror struct {
	mock.Mock
}

// MirrorHost mocks the MirrorHost method
func (m *MockMirror) MirrorHost(ctx context.Context, w *storage.Writer, host string) error {
	args := m.Called(ctx, w, host)
	return args.Error(0)
}

// MockDetector is a mock implementation of the runner's technology detector
type MockDetector struct {
	mock.Mock
}

// Detect mocks the Detect method
func (m *MockDetector) Detect(headers map[string]string, body []byte) *techdetect.Result {
	args := m.Called(headers, body)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(*techdetect.Result)
}
