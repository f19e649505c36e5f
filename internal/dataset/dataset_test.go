package dataset

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/dubbadge/internal/fetch"
)

const (
	testDubbedURL  = "https://data.test/{confidence}/dubbed_{language}.json"
	testMappingURL = "https://data.test/mappings.jsonl"
)

type fakeFetcher struct {
	mu      sync.Mutex
	routes  map[string]*fetch.Response
	errs    map[string]error
	calls   []string
	blockOn map[string]chan struct{}
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		routes:  make(map[string]*fetch.Response),
		errs:    make(map[string]error),
		blockOn: make(map[string]chan struct{}),
	}
}

func (f *fakeFetcher) serve(url string, status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[url] = &fetch.Response{URL: url, Status: status, Body: []byte(body)}
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (*fetch.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	resp, ok := f.routes[url]
	err := f.errs[url]
	block := f.blockOn[url]
	f.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return &fetch.Response{URL: url, Status: http.StatusNotFound}, nil
	}
	return resp, nil
}

func newTestCache(f fetch.Fetcher) *Cache {
	return New(f, Config{DubbedURLTemplate: testDubbedURL, MappingURL: testMappingURL}, nil)
}

func TestReloadBuildsCanonicalSet(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	f.serve("https://data.test/normal/dubbed_english.json", http.StatusOK, `{"dubbed":["100"]}`)
	f.serve(testMappingURL, http.StatusOK, `{"mal_id":"100","anilist_id":"555"}`+"\n"+`{"mal_id":"200","anilist_id":"777"}`)

	c := newTestCache(f)
	require.Equal(t, StatusReady, c.Status())
	require.False(t, c.Ready())

	require.NoError(t, c.Reload(context.Background(), "english", "normal"))
	require.True(t, c.Ready())
	require.Equal(t, []string{"555"}, c.Set().IDs())
	require.True(t, c.Contains("555"))
	require.False(t, c.Contains("777"))
	require.Equal(t, "Active: english (1)", c.Status())

	epoch, ok := c.Epoch()
	require.True(t, ok)
	require.Equal(t, Epoch{Language: "english", Confidence: "normal"}, epoch)
}

func TestReloadNormalizesNumericAndStringIDs(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	f.serve("https://data.test/low/dubbed_german.json", http.StatusOK, `{"dubbed":[1, "2", 3.0]}`)
	f.serve(testMappingURL, http.StatusOK, `
{"mal_id":1,"anilist_id":"11"}
{"mal_id":"2","anilist_id":22}
{"mal_id":3,"anilist_id":33}
{"mal_id":4,"anilist_id":44}
`)

	c := newTestCache(f)
	require.NoError(t, c.Reload(context.Background(), "german", "low"))
	require.Equal(t, []string{"11", "22", "33"}, c.Set().IDs())
	require.Equal(t, "Active: german (3)", c.Status())
}

func TestReloadSkipsMalformedLines(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	f.serve("https://data.test/normal/dubbed_english.json", http.StatusOK, `{"dubbed":[1,2]}`)
	f.serve(testMappingURL, http.StatusOK, `{"mal_id":1,"anilist_id":10}
not json at all
{"mal_id":2}
{"mal_id":2,"anilist_id":20

{"mal_id":2,"anilist_id":21}
`)

	c := newTestCache(f)
	require.NoError(t, c.Reload(context.Background(), "english", "normal"))
	require.Equal(t, []string{"10", "21"}, c.Set().IDs())
	require.Equal(t, 3, c.Info().Malformed)
}

func TestReloadBadStatusKeepsPreviousSet(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	f.serve("https://data.test/normal/dubbed_english.json", http.StatusOK, `{"dubbed":[100]}`)
	f.serve(testMappingURL, http.StatusOK, `{"mal_id":100,"anilist_id":555}`)

	c := newTestCache(f)
	require.NoError(t, c.Reload(context.Background(), "english", "normal"))

	// The spanish list is not served, so the fake answers 404.
	err := c.Reload(context.Background(), "spanish", "low")
	require.ErrorIs(t, err, ErrBadStatus)
	require.False(t, c.Ready())
	require.Equal(t, StatusError, c.Status())
	require.True(t, c.Contains("555"))

	epoch, ok := c.Epoch()
	require.True(t, ok)
	require.Equal(t, "english", epoch.Language)

	info := c.Info()
	require.Contains(t, info.LastError, "404")
	require.False(t, info.Ready)
}

func TestReloadMappingFailure(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	f.serve("https://data.test/normal/dubbed_english.json", http.StatusOK, `{"dubbed":[1]}`)
	f.serve(testMappingURL, http.StatusInternalServerError, "")

	c := newTestCache(f)
	require.ErrorIs(t, c.Reload(context.Background(), "english", "normal"), ErrBadStatus)
	require.False(t, c.Ready())
	require.Equal(t, StatusError, c.Status())
}

func TestReloadTransportError(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection reset")
	f := newFakeFetcher()
	f.errs["https://data.test/normal/dubbed_english.json"] = boom

	c := newTestCache(f)
	err := c.Reload(context.Background(), "english", "normal")
	require.ErrorIs(t, err, boom)
	require.Equal(t, StatusError, c.Status())
	require.False(t, c.Ready())
}

func TestReloadRejectsMissingArray(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	f.serve("https://data.test/normal/dubbed_english.json", http.StatusOK, `{"items":[1]}`)

	c := newTestCache(f)
	err := c.Reload(context.Background(), "english", "normal")
	require.Error(t, err)
	require.Contains(t, err.Error(), "dubbed")
	require.Equal(t, StatusError, c.Status())
}

func TestReadyFalseWhileLoading(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	f.serve("https://data.test/normal/dubbed_english.json", http.StatusOK, `{"dubbed":[1]}`)
	f.serve(testMappingURL, http.StatusOK, `{"mal_id":1,"anilist_id":2}`)

	c := newTestCache(f)
	require.NoError(t, c.Reload(context.Background(), "english", "normal"))
	require.True(t, c.Ready())

	gate := make(chan struct{})
	f.mu.Lock()
	f.blockOn[testMappingURL] = gate
	f.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- c.Reload(context.Background(), "english", "normal") }()

	require.Eventually(t, func() bool { return c.Status() == StatusLoading }, testWait, testTick)
	require.False(t, c.Ready())

	close(gate)
	require.NoError(t, <-done)
	require.True(t, c.Ready())
}

func TestConcurrentReloadsKeepReadinessAndStatusInStep(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	f.serve("https://data.test/normal/dubbed_english.json", http.StatusOK, `{"dubbed":["100"]}`)
	f.serve("https://data.test/low/dubbed_spanish.json", http.StatusOK, `{"dubbed":["100"]}`)
	f.serve(testMappingURL, http.StatusOK, `{"mal_id":"100","anilist_id":"555"}`)
	c := newTestCache(f)

	for round := 0; round < 20; round++ {
		var wg sync.WaitGroup
		errs := make(chan error, 8)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				lang, conf := "english", "normal"
				if i%2 == 1 {
					lang, conf = "spanish", "low"
				}
				errs <- c.Reload(context.Background(), lang, conf)
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			if err != nil {
				require.ErrorIs(t, err, ErrSuperseded)
			}
		}
		require.True(t, strings.HasPrefix(c.Status(), "Active: "), "round %d status %q", round, c.Status())
		require.True(t, c.Ready(), "round %d", round)
	}
}

func TestOnlyNewestReloadCommits(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	f.serve("https://data.test/normal/dubbed_english.json", http.StatusOK, `{"dubbed":[1]}`)
	f.serve("https://data.test/low/dubbed_french.json", http.StatusOK, `{"dubbed":[2]}`)
	f.serve(testMappingURL, http.StatusOK, `{"mal_id":1,"anilist_id":10}`+"\n"+`{"mal_id":2,"anilist_id":20}`)

	gate := make(chan struct{})
	f.blockOn["https://data.test/normal/dubbed_english.json"] = gate

	c := newTestCache(f)
	older := make(chan error, 1)
	go func() { older <- c.Reload(context.Background(), "english", "normal") }()
	require.Eventually(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		return len(f.calls) == 1
	}, testWait, testTick)

	require.NoError(t, c.Reload(context.Background(), "french", "low"))
	close(gate)
	require.ErrorIs(t, <-older, ErrSuperseded)

	require.Equal(t, []string{"20"}, c.Set().IDs())
	require.Equal(t, "Active: french (1)", c.Status())
	require.True(t, c.Ready())
}

func TestInvalidate(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	f.serve("https://data.test/normal/dubbed_english.json", http.StatusOK, `{"dubbed":[1]}`)
	f.serve(testMappingURL, http.StatusOK, `{"mal_id":1,"anilist_id":2}`)

	c := newTestCache(f)
	require.NoError(t, c.Reload(context.Background(), "english", "normal"))
	c.Invalidate()
	require.False(t, c.Ready())
	_, ok := c.Epoch()
	require.False(t, ok)
	require.Nil(t, c.Info().Epoch)
}

func TestDubbedURL(t *testing.T) {
	t.Parallel()

	require.Equal(t,
		"https://raw.githubusercontent.com/Joelis57/MyDubList/refs/heads/main/dubs/confidence/very-high/dubbed_japanese.json",
		Config{}.DubbedURL("japanese", "very-high"))
	require.Equal(t, "https://data.test/low/dubbed_german.json",
		Config{DubbedURLTemplate: testDubbedURL}.DubbedURL("german", "low"))
}

const (
	testWait = 2 * time.Second
	testTick = 5 * time.Millisecond
)
