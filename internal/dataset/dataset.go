// Package dataset loads and holds the set of host identifiers known to be dubbed
// for one language and confidence tier.
//
// A reload fetches two externally owned files: a JSON object listing dubbed
// entries under a foreign identifier scheme, and a JSONL mapping table from that
// scheme to the identifiers the host UI renders. Readiness is false for the whole
// duration of a reload and only the most recently started reload may commit.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/JakeFAU/dubbadge/internal/fetch"
	"github.com/JakeFAU/dubbadge/internal/metrics"
)

// Status strings surfaced to users.
const (
	StatusReady   = "Ready"
	StatusLoading = "Loading..."
	StatusError   = "Error"
)

const (
	// DefaultDubbedURLTemplate is the per-language list; {confidence} and
	// {language} are substituted on each reload.
	DefaultDubbedURLTemplate = "https://raw.githubusercontent.com/Joelis57/MyDubList/refs/heads/main/dubs/confidence/{confidence}/dubbed_{language}.json"
	// DefaultMappingURL is the global foreign-to-host identifier table.
	DefaultMappingURL = "https://raw.githubusercontent.com/Joelis57/MyDubList/refs/heads/main/dubs/mappings/mappings_anilist.jsonl"
)

var (
	// ErrBadStatus reports a fetch that completed with a non-200 status.
	ErrBadStatus = errors.New("dataset: unexpected status")
	// ErrSuperseded reports a reload that finished after a newer one started.
	ErrSuperseded = errors.New("dataset: reload superseded")
)

// Config locates the dataset files.
type Config struct {
	DubbedURLTemplate string
	MappingURL        string
	// ForeignField and HostField name the mapping record keys.
	ForeignField string
	HostField    string
}

func (c Config) withDefaults() Config {
	if c.DubbedURLTemplate == "" {
		c.DubbedURLTemplate = DefaultDubbedURLTemplate
	}
	if c.MappingURL == "" {
		c.MappingURL = DefaultMappingURL
	}
	if c.ForeignField == "" {
		c.ForeignField = "mal_id"
	}
	if c.HostField == "" {
		c.HostField = "anilist_id"
	}
	return c
}

// DubbedURL expands the template for one language and confidence tier.
func (c Config) DubbedURL(language, confidence string) string {
	c = c.withDefaults()
	return strings.NewReplacer("{confidence}", confidence, "{language}", language).Replace(c.DubbedURLTemplate)
}

// Epoch is the language and confidence pair that produced a set.
type Epoch struct {
	Language   string `json:"language"`
	Confidence string `json:"confidence"`
}

// Set is an immutable collection of host identifiers.
type Set struct {
	ids map[string]struct{}
}

// NewSet builds a Set from identifiers.
func NewSet(ids ...string) Set {
	m := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return Set{ids: m}
}

// Has reports membership.
func (s Set) Has(id string) bool {
	_, ok := s.ids[id]
	return ok
}

// Len returns the number of identifiers.
func (s Set) Len() int {
	return len(s.ids)
}

// IDs returns the identifiers in sorted order.
func (s Set) IDs() []string {
	out := make([]string, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Info describes the cache for status endpoints.
type Info struct {
	Status      string    `json:"status"`
	Ready       bool      `json:"ready"`
	Epoch       *Epoch    `json:"epoch,omitempty"`
	Identifiers int       `json:"identifiers"`
	Malformed   int       `json:"malformed_lines"`
	LoadedAt    time.Time `json:"loaded_at,omitzero"`
	LastError   string    `json:"last_error,omitempty"`
}

// Cache owns the committed set and its readiness.
type Cache struct {
	fetcher fetch.Fetcher
	cfg     Config
	logger  *zap.Logger

	ready atomic.Bool
	gen   atomic.Uint64

	mu        sync.RWMutex
	set       Set
	epoch     Epoch
	hasEpoch  bool
	status    string
	malformed int
	loadedAt  time.Time
	lastErr   string
}

// New constructs an empty cache.
func New(fetcher fetch.Fetcher, cfg Config, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		fetcher: fetcher,
		cfg:     cfg.withDefaults(),
		logger:  logger.Named("dataset"),
		set:     NewSet(),
		status:  StatusReady,
	}
}

// Reload fetches and rebuilds the set for language and confidence. On failure
// the previously committed set stays in memory but readiness remains false.
func (c *Cache) Reload(ctx context.Context, language, confidence string) error {
	c.mu.Lock()
	gen := c.gen.Add(1)
	c.ready.Store(false)
	metrics.SetDatasetReady(false)
	c.status = StatusLoading
	c.lastErr = ""
	c.mu.Unlock()

	start := time.Now()
	logger := c.logger.With(zap.String("language", language), zap.String("confidence", confidence))
	logger.Info("reloading dataset")

	set, malformed, err := c.build(ctx, language, confidence)
	if err != nil {
		metrics.ObserveDatasetLoad("error", 0, time.Since(start))
		if c.setStatus(gen, StatusError, err.Error()) {
			logger.Warn("dataset reload failed", zap.Error(err))
		}
		return err
	}
	metrics.ObserveMalformedLines(malformed)

	c.mu.Lock()
	if gen != c.gen.Load() {
		c.mu.Unlock()
		metrics.ObserveDatasetLoad("superseded", 0, time.Since(start))
		logger.Debug("discarding superseded reload")
		return ErrSuperseded
	}
	c.set = set
	c.epoch = Epoch{Language: language, Confidence: confidence}
	c.hasEpoch = true
	c.malformed = malformed
	c.loadedAt = time.Now()
	c.lastErr = ""
	c.status = fmt.Sprintf("Active: %s (%d)", language, set.Len())
	c.ready.Store(true)
	metrics.SetDatasetReady(true)
	c.mu.Unlock()

	metrics.ObserveDatasetLoad("success", set.Len(), time.Since(start))
	logger.Info("dataset ready",
		zap.Int("identifiers", set.Len()),
		zap.Int("malformed_lines", malformed),
		zap.Duration("dur", time.Since(start)),
	)
	return nil
}

// setStatus records status only while gen is still the newest reload.
func (c *Cache) setStatus(gen uint64, status, lastErr string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen.Load() {
		return false
	}
	c.status = status
	c.lastErr = lastErr
	return true
}

func (c *Cache) build(ctx context.Context, language, confidence string) (Set, int, error) {
	dubbedURL := c.cfg.DubbedURL(language, confidence)
	resp, err := c.fetch(ctx, dubbedURL)
	if err != nil {
		return Set{}, 0, err
	}
	foreign, err := dubbedIDs(resp.Body)
	if err != nil {
		return Set{}, 0, fmt.Errorf("parse %s: %w", dubbedURL, err)
	}

	resp, err = c.fetch(ctx, c.cfg.MappingURL)
	if err != nil {
		return Set{}, 0, err
	}
	ids := make(map[string]struct{})
	malformed := 0
	sc := resp.Lines()
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		from, to, ok := mapping(line, c.cfg.ForeignField, c.cfg.HostField)
		if !ok {
			malformed++
			continue
		}
		if _, dubbed := foreign[from]; dubbed {
			ids[to] = struct{}{}
		}
	}
	if err := sc.Err(); err != nil {
		return Set{}, 0, fmt.Errorf("scan %s: %w", c.cfg.MappingURL, err)
	}
	return Set{ids: ids}, malformed, nil
}

func (c *Cache) fetch(ctx context.Context, url string) (*fetch.Response, error) {
	resp, err := c.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch dataset: %w", err)
	}
	if !resp.OK() {
		return nil, fmt.Errorf("%w: %s returned %d", ErrBadStatus, url, resp.Status)
	}
	return resp, nil
}

// dubbedIDs extracts the dubbed array, accepting numeric or string entries.
func dubbedIDs(body []byte) (map[string]struct{}, error) {
	if !gjson.ValidBytes(body) {
		return nil, errors.New("invalid json")
	}
	arr := gjson.GetBytes(body, "dubbed")
	if !arr.IsArray() {
		return nil, errors.New(`missing "dubbed" array`)
	}
	out := make(map[string]struct{})
	arr.ForEach(func(_, v gjson.Result) bool {
		if id, ok := normalizeID(v); ok {
			out[id] = struct{}{}
		}
		return true
	})
	return out, nil
}

func mapping(line, foreignField, hostField string) (string, string, bool) {
	if !gjson.Valid(line) {
		return "", "", false
	}
	res := gjson.GetMany(line, foreignField, hostField)
	from, ok := normalizeID(res[0])
	if !ok {
		return "", "", false
	}
	to, ok := normalizeID(res[1])
	if !ok {
		return "", "", false
	}
	return from, to, true
}

// normalizeID renders numeric and string identifiers as the same decimal string.
func normalizeID(v gjson.Result) (string, bool) {
	switch v.Type {
	case gjson.Number:
		if v.Num == math.Trunc(v.Num) && math.Abs(v.Num) < 1<<53 {
			return strconv.FormatInt(int64(v.Num), 10), true
		}
		return v.Raw, true
	case gjson.String:
		s := strings.TrimSpace(v.Str)
		if s == "" {
			return "", false
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return strconv.FormatInt(n, 10), true
		}
		return s, true
	default:
		return "", false
	}
}

// Ready reports whether the committed set may be used for matching.
func (c *Cache) Ready() bool {
	return c.ready.Load()
}

// Contains reports membership in the committed set.
func (c *Cache) Contains(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.set.Has(id)
}

// Set returns the committed set.
func (c *Cache) Set() Set {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.set
}

// Epoch returns the pair that produced the committed set.
func (c *Cache) Epoch() (Epoch, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.epoch, c.hasEpoch
}

// Status returns the user-facing status string.
func (c *Cache) Status() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Info returns a snapshot for status reporting.
func (c *Cache) Info() Info {
	c.mu.RLock()
	defer c.mu.RUnlock()
	info := Info{
		Status:      c.status,
		Ready:       c.ready.Load(),
		Identifiers: c.set.Len(),
		Malformed:   c.malformed,
		LoadedAt:    c.loadedAt,
		LastError:   c.lastErr,
	}
	if c.hasEpoch {
		epoch := c.epoch
		info.Epoch = &epoch
	}
	return info
}

// Invalidate drops readiness and the epoch, and prevents any in-flight reload
// from committing.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.gen.Add(1)
	c.ready.Store(false)
	c.hasEpoch = false
	metrics.SetDatasetReady(false)
	c.mu.Unlock()
}
