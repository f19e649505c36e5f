package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCollyFetcherReturnsBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Seen-UA", r.UserAgent())
		fmt.Fprint(w, `{"dubbed":[1,2,3]}`)
	}))
	defer srv.Close()

	f := NewCollyFetcher(Config{UserAgent: "dubbadge-test", Timeout: 5 * time.Second}, nil)
	resp, err := f.Fetch(context.Background(), srv.URL+"/dubbed_english.json")
	require.NoError(t, err)
	require.True(t, resp.OK())
	require.Equal(t, "dubbadge-test", resp.Header.Get("X-Seen-UA"))

	var payload struct {
		Dubbed []int `json:"dubbed"`
	}
	require.NoError(t, resp.JSON(&payload))
	require.Equal(t, []int{1, 2, 3}, payload.Dubbed)
}

func TestCollyFetcherSurfacesErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewCollyFetcher(Config{}, nil)
	resp, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.Status)
	require.False(t, resp.OK())
}

func TestCollyFetcherRevisitsSameURL(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, "hit %d", hits.Add(1))
	}))
	defer srv.Close()

	f := NewCollyFetcher(Config{}, nil)
	for i := 1; i <= 2; i++ {
		resp, err := f.Fetch(context.Background(), srv.URL)
		require.NoError(t, err)
		require.Equal(t, fmt.Sprintf("hit %d", i), resp.Text())
	}
}

func TestCollyFetcherCanceledContext(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "late")
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := NewCollyFetcher(Config{}, nil)
	_, err := f.Fetch(ctx, srv.URL)
	require.ErrorIs(t, err, context.Canceled)
}

func TestCollyFetcherTransportError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	f := NewCollyFetcher(Config{Timeout: time.Second}, nil)
	_, err := f.Fetch(context.Background(), addr)
	require.Error(t, err)
}

func TestResponseLines(t *testing.T) {
	t.Parallel()

	resp := &Response{Body: []byte("{\"a\":1}\n\n{\"a\":2}\n")}
	sc := resp.Lines()
	var lines []string
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	require.NoError(t, sc.Err())
	require.Equal(t, []string{`{"a":1}`, "", `{"a":2}`}, lines)
}

func TestResponseJSONError(t *testing.T) {
	t.Parallel()

	resp := &Response{URL: "http://x/y.json", Body: []byte("not json")}
	var v map[string]any
	err := resp.JSON(&v)
	require.Error(t, err)
	require.Contains(t, err.Error(), "http://x/y.json")
}
