// Package crawl fetches a practice's homepage and the small set of linked
// pages most likely to name its staff, returning cleaned page text.
package crawl

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/lead-enrichment/internal/metrics"
	"github.com/sells-group/lead-enrichment/internal/model"
)

// ErrConnectionFailure matches any *ConnectionError.
var ErrConnectionFailure = eris.New("crawl: connection failure")

// ConnectionError reports that no page of a site could be fetched.
type ConnectionError struct {
	URL    string
	Reason string
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("crawl: no pages fetched from %s: %s", e.URL, e.Reason)
}

// Is lets errors.Is match ErrConnectionFailure.
func (e *ConnectionError) Is(target error) bool {
	return target == ErrConnectionFailure
}

// Config controls crawl scope and per-page behavior.
type Config struct {
	MaxDepth     int
	MaxPages     int
	PageTimeout  time.Duration
	MaxPageChars int
	Concurrency  int
	UserAgent    string
	Patterns     []string
}

// DefaultConfig returns the standard crawl limits.
func DefaultConfig() Config {
	return Config{
		MaxDepth:     1,
		MaxPages:     5,
		PageTimeout:  30 * time.Second,
		MaxPageChars: 10_000,
		Concurrency:  5,
		UserAgent:    "Mozilla/5.0 (compatible; LeadEnrichmentBot/1.0)",
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxDepth <= 0 {
		c.MaxDepth = d.MaxDepth
	}
	if c.MaxPages <= 0 {
		c.MaxPages = d.MaxPages
	}
	if c.PageTimeout <= 0 {
		c.PageTimeout = d.PageTimeout
	}
	if c.MaxPageChars <= 0 {
		c.MaxPageChars = d.MaxPageChars
	}
	if c.Concurrency <= 0 {
		c.Concurrency = d.Concurrency
	}
	if c.UserAgent == "" {
		c.UserAgent = d.UserAgent
	}
	return c
}

// Crawler fetches pages with one colly collector per page.
type Crawler struct {
	cfg       Config
	matcher   *PathMatcher
	transport http.RoundTripper
}

// New creates a Crawler.
func New(cfg Config) *Crawler {
	cfg = cfg.withDefaults()
	return &Crawler{
		cfg:       cfg,
		matcher:   NewPathMatcher(cfg.Patterns),
		transport: newHTTPTransport(),
	}
}

// fetched is the raw outcome of one page request.
type fetched struct {
	finalURL *url.URL
	status   int
	header   http.Header
	body     []byte
}

// Crawl fetches the homepage at rawURL and, breadth first, allowlisted
// same-site pages up to the configured depth and page count. Results are in
// crawl order. A failed page is returned as an unsuccessful result; the
// error is a *ConnectionError only when no page succeeded.
func (c *Crawler) Crawl(ctx context.Context, rawURL string) ([]model.WebPageResult, error) {
	log := zap.L().With(zap.String("url", rawURL))

	start, err := normalizeURL(rawURL)
	if err != nil {
		return nil, &ConnectionError{URL: rawURL, Reason: err.Error()}
	}

	hosts := map[string]bool{siteHost(start): true}
	visited := map[string]bool{pageKey(start): true}
	frontier := []*url.URL{start}
	var results []model.WebPageResult

	for depth := 0; depth <= c.cfg.MaxDepth && len(frontier) > 0; depth++ {
		if err := ctx.Err(); err != nil {
			return results, eris.Wrap(err, "crawl: cancelled")
		}

		level := make([]model.WebPageResult, len(frontier))
		links := make([][]string, len(frontier))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(c.cfg.Concurrency)
		for i, u := range frontier {
			g.Go(func() error {
				level[i], links[i] = c.visit(gctx, u, depth)
				return nil
			})
		}
		_ = g.Wait()
		results = append(results, level...)

		// Final URLs after redirects count as the same site.
		if depth == 0 && level[0].Success {
			if final, err := url.Parse(level[0].URL); err == nil {
				hosts[siteHost(final)] = true
			}
		}

		var next []*url.URL
		for _, pageLinks := range links {
			for _, link := range pageLinks {
				if len(results)+len(next) >= c.cfg.MaxPages {
					break
				}
				u, err := url.Parse(link)
				if err != nil || !hosts[siteHost(u)] || visited[pageKey(u)] || !c.matcher.Allowed(link) {
					continue
				}
				visited[pageKey(u)] = true
				next = append(next, u)
			}
		}
		frontier = next
	}

	succeeded := len(model.SuccessfulPages(results))
	log.Debug("crawl: complete", zap.Int("pages", len(results)), zap.Int("succeeded", succeeded))
	if succeeded == 0 {
		reason := "no successful pages"
		if len(results) > 0 && results[0].Error != "" {
			reason = results[0].Error
		}
		return results, &ConnectionError{URL: rawURL, Reason: reason}
	}
	return results, nil
}

// visit fetches and parses one page. It never returns an error; failures
// are recorded on the result.
func (c *Crawler) visit(ctx context.Context, u *url.URL, depth int) (model.WebPageResult, []string) {
	res := model.WebPageResult{URL: u.String(), Depth: depth}

	f, err := c.fetch(ctx, u.String())
	if err != nil {
		res.Error = err.Error()
		metrics.ObservePage("error")
		return res, nil
	}
	if f.finalURL != nil {
		res.URL = f.finalURL.String()
	}
	if blocked, kind := DetectBlock(f.status, f.header, f.body); blocked {
		res.Error = fmt.Sprintf("blocked (%s)", kind)
		metrics.ObservePage("blocked")
		return res, nil
	}
	if f.status >= http.StatusBadRequest {
		res.Error = fmt.Sprintf("status %d", f.status)
		metrics.ObservePage(strconv.Itoa(f.status))
		return res, nil
	}

	base := u
	if f.finalURL != nil {
		base = f.finalURL
	}
	page, err := parsePage(f.body, base, c.cfg.MaxPageChars)
	if err != nil {
		res.Error = err.Error()
		metrics.ObservePage("error")
		return res, nil
	}
	if page.Text == "" {
		res.Error = "empty page"
		metrics.ObservePage("empty")
		return res, page.Links
	}

	res.Success = true
	res.Text = page.Text
	metrics.ObservePage("ok")
	return res, page.Links
}

// fetch runs a fresh collector for a single URL.
func (c *Crawler) fetch(ctx context.Context, target string) (*fetched, error) {
	collector := colly.NewCollector(
		colly.UserAgent(c.cfg.UserAgent),
		colly.MaxBodySize(2*1024*1024),
		colly.ParseHTTPErrorResponse(),
	)
	collector.SetRequestTimeout(c.cfg.PageTimeout)
	collector.WithTransport(c.transport)

	var (
		result   fetched
		got      bool
		fetchErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		got = true
		result = fetched{
			finalURL: r.Request.URL,
			status:   r.StatusCode,
			body:     append([]byte(nil), r.Body...),
		}
		if r.Headers != nil {
			result.header = r.Headers.Clone()
		}
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(target)
	}()

	select {
	case <-ctx.Done():
		return nil, eris.Wrap(ctx.Err(), "crawl: fetch cancelled")
	case err := <-done:
		if fetchErr != nil {
			return nil, eris.Wrap(fetchErr, "crawl: response")
		}
		if err != nil {
			return nil, eris.Wrap(err, "crawl: visit")
		}
		if !got {
			return nil, eris.New("crawl: no response")
		}
		return &result, nil
	}
}

// CrawlBatch crawls several sites with bounded concurrency. Per-site errors
// are returned in the map rather than aborting the batch.
func (c *Crawler) CrawlBatch(ctx context.Context, urls []string) (map[string][]model.WebPageResult, map[string]error) {
	pages := make(map[string][]model.WebPageResult, len(urls))
	errs := make(map[string]error)
	type outcome struct {
		url   string
		pages []model.WebPageResult
		err   error
	}
	out := make([]outcome, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Concurrency)
	for i, u := range urls {
		g.Go(func() error {
			p, err := c.Crawl(gctx, u)
			out[i] = outcome{url: u, pages: p, err: err}
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range out {
		pages[o.url] = o.pages
		if o.err != nil {
			errs[o.url] = o.err
		}
	}
	return pages, errs
}

// normalizeURL adds a scheme when missing and requires a host.
func normalizeURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, eris.New("empty url")
	}
	switch {
	case !hasScheme(raw):
		raw = "https://" + raw
	case !strings.Contains(raw, "://"):
		return nil, eris.Errorf("unsupported url %q", raw)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, eris.Wrap(err, "parse url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, eris.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, eris.New("missing host")
	}
	u.Fragment = ""
	return u, nil
}

// hasScheme reports whether raw starts with a URL scheme such as "mailto:"
// or "https:". A host with a port ("example.com:8080") is not a scheme.
func hasScheme(raw string) bool {
	i := strings.IndexByte(raw, ':')
	if i <= 0 {
		return false
	}
	for j, r := range raw[:i] {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case j > 0 && (r >= '0' && r <= '9' || r == '+' || r == '-' || r == '.'):
		default:
			return false
		}
	}
	rest := raw[i+1:]
	if rest == "" || strings.HasPrefix(rest, "//") {
		return true
	}
	port := rest
	if k := strings.IndexAny(port, "/?#"); k >= 0 {
		port = port[:k]
	}
	return port == "" || strings.Trim(port, "0123456789") != ""
}

// siteHost lowercases the host and strips a leading "www.".
func siteHost(u *url.URL) string {
	return strings.TrimPrefix(strings.ToLower(u.Host), "www.")
}

// pageKey identifies a page independent of www prefix and trailing slash.
func pageKey(u *url.URL) string {
	p := strings.TrimSuffix(u.Path, "/")
	return siteHost(u) + p
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
