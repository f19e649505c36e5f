// Package fetch retrieves the externally hosted dataset files. No retries are
// attempted here; callers decide what a non-success status means.
package fetch

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

// Response is a fully buffered HTTP response.
type Response struct {
	URL    string
	Status int
	Header http.Header
	Body   []byte
}

// OK reports a 200 status, the only status the dataset loader accepts.
func (r *Response) OK() bool {
	return r.Status == http.StatusOK
}

// JSON decodes the body into v.
func (r *Response) JSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode %s: %w", r.URL, err)
	}
	return nil
}

// Text returns the body as a string.
func (r *Response) Text() string {
	return string(r.Body)
}

// Lines returns a scanner over the body, sized for long JSONL records.
func (r *Response) Lines() *bufio.Scanner {
	sc := bufio.NewScanner(bytes.NewReader(r.Body))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return sc
}

// Fetcher retrieves a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Response, error)
}

// Config tunes the colly collector.
type Config struct {
	UserAgent string
	// Timeout bounds each request; zero leaves requests unbounded.
	Timeout time.Duration
	// MaxBodyBytes caps response size; zero means unlimited.
	MaxBodyBytes int
}

// CollyFetcher implements Fetcher with a colly collector cloned per request.
type CollyFetcher struct {
	base   *colly.Collector
	logger *zap.Logger
}

// NewCollyFetcher builds a collector that revisits URLs and surfaces non-2xx
// responses instead of treating them as transport errors.
func NewCollyFetcher(cfg Config, logger *zap.Logger) *CollyFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := []colly.CollectorOption{
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
		colly.IgnoreRobotsTxt(),
		colly.MaxBodySize(cfg.MaxBodyBytes),
	}
	if cfg.UserAgent != "" {
		opts = append(opts, colly.UserAgent(cfg.UserAgent))
	}
	base := colly.NewCollector(opts...)
	if cfg.Timeout > 0 {
		base.SetRequestTimeout(cfg.Timeout)
	}
	return &CollyFetcher{base: base, logger: logger}
}

// Fetch performs a single GET.
func (f *CollyFetcher) Fetch(ctx context.Context, rawURL string) (*Response, error) {
	collector := f.base.Clone()
	collector.Context = ctx

	var (
		once   sync.Once
		result *Response
		resErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		once.Do(func() {
			result = &Response{
				URL:    r.Request.URL.String(),
				Status: r.StatusCode,
				Header: headerCopy(r.Headers),
				Body:   append([]byte(nil), r.Body...),
			}
		})
	})
	collector.OnError(func(r *colly.Response, err error) {
		once.Do(func() {
			if err == nil {
				err = errors.New("unknown colly error")
			}
			resErr = err
		})
	})

	start := time.Now()
	if err := collector.Visit(rawURL); err != nil && resErr == nil {
		resErr = err
	}
	collector.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if resErr != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, resErr)
	}
	if result == nil {
		return nil, fmt.Errorf("fetch %s: no response", rawURL)
	}
	f.logger.Debug("fetched",
		zap.String("url", rawURL),
		zap.Int("status", result.Status),
		zap.Int("bytes", len(result.Body)),
		zap.Duration("dur", time.Since(start)),
	)
	return result, nil
}

func headerCopy(h *http.Header) http.Header {
	if h == nil {
		return http.Header{}
	}
	return h.Clone()
}
