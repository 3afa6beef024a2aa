package checker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/khanhnv2901/seca-scanner/internal/domain/scan"
	"github.com/khanhnv2901/seca-scanner/internal/shared/constants"
	sharedErrors "github.com/khanhnv2901/seca-scanner/internal/shared/errors"
)

// CrawlOptions bounds a crawl.
type CrawlOptions struct {
	MaxPages       int
	MaxRedirects   int
	RequestTimeout time.Duration
	CORSTimeout    time.Duration
	// RequestsPerSecond paces fetches; zero means unpaced.
	RequestsPerSecond float64
}

// DefaultCrawlOptions returns the standard crawl bounds.
func DefaultCrawlOptions() CrawlOptions {
	return CrawlOptions{
		MaxPages:       constants.MaxPages,
		MaxRedirects:   constants.MaxRedirects,
		RequestTimeout: constants.RequestTimeout,
		CORSTimeout:    constants.CORSProbeTimeout,
	}
}

// Crawler performs a bounded breadth-first crawl of one site.
type Crawler struct {
	client  *http.Client
	opts    CrawlOptions
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewCrawler creates a crawler issuing requests through client.
func NewCrawler(client *http.Client, opts CrawlOptions, logger *zap.Logger) *Crawler {
	defaults := DefaultCrawlOptions()
	if opts.MaxPages <= 0 {
		opts.MaxPages = defaults.MaxPages
	}
	if opts.MaxRedirects <= 0 {
		opts.MaxRedirects = defaults.MaxRedirects
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaults.RequestTimeout
	}
	if opts.CORSTimeout <= 0 {
		opts.CORSTimeout = defaults.CORSTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}

	return &Crawler{
		client:  client,
		opts:    opts,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}
}

// pageOutcome is what fetching one URL contributes to the crawl state.
type pageOutcome struct {
	page          scan.PageResult
	links         []string
	metaGenerator string
	redirectChain []string
}

// Crawl visits startURL and same-host pages reachable from it, breadth
// first, until the frontier is empty or MaxPages pages were recorded.
// Per-page fetch failures are recorded on the page; only a redirect loop on
// the first page or context cancellation fails the crawl.
func (c *Crawler) Crawl(ctx context.Context, startURL string) (*scan.HTTPReport, error) {
	root, err := url.Parse(startURL)
	if err != nil || root.Hostname() == "" {
		return nil, fmt.Errorf("%w: invalid start url %q", sharedErrors.ErrInvalidURL, startURL)
	}

	queued := map[string]struct{}{canonicalURL(root): {}}
	toVisit := []string{startURL}
	pages := make([]scan.PageResult, 0, c.opts.MaxPages)
	redirectChain := []string{}
	var generators []string

	for len(toVisit) > 0 && len(pages) < c.opts.MaxPages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		next := toVisit[0]
		toVisit = toVisit[1:]
		first := len(pages) == 0

		outcome, err := c.crawlPage(ctx, root, next, first)
		if err != nil {
			return nil, err
		}
		pages = append(pages, outcome.page)

		if first && outcome.redirectChain != nil {
			redirectChain = outcome.redirectChain
		}
		if outcome.metaGenerator != "" {
			generators = append(generators, outcome.metaGenerator)
		}
		for _, link := range outcome.links {
			if _, seen := queued[link]; seen {
				continue
			}
			queued[link] = struct{}{}
			toVisit = append(toVisit, link)
		}

		c.logger.Debug("page crawled",
			zap.String("url", next),
			zap.Int("status", outcome.page.StatusCode),
			zap.Int("links", len(outcome.links)),
			zap.Int("frontier", len(toVisit)))
	}

	findings := make([]string, 0)
	seenFindings := make(map[string]struct{})
	for _, p := range pages {
		for _, f := range p.Findings() {
			if _, ok := seenFindings[f]; ok {
				continue
			}
			seenFindings[f] = struct{}{}
			findings = append(findings, f)
		}
	}

	return &scan.HTTPReport{
		StartURL:       startURL,
		PagesScanned:   len(pages),
		Pages:          pages,
		Findings:       findings,
		RedirectChain:  redirectChain,
		MetaGenerators: dedupe(generators),
		Timestamp:      time.Now().UTC(),
	}, nil
}

func (c *Crawler) crawlPage(ctx context.Context, root *url.URL, target string, trackRedirects bool) (pageOutcome, error) {
	var (
		resp  *http.Response
		chain []string
		err   error
	)
	if trackRedirects {
		resp, chain, err = c.followRedirects(ctx, target)
	} else {
		resp, err = c.get(ctx, c.client, target)
	}
	if err != nil {
		if ctx.Err() != nil {
			return pageOutcome{}, ctx.Err()
		}
		if trackRedirects && errors.Is(err, sharedErrors.ErrTooManyRedirects) {
			return pageOutcome{}, err
		}
		c.logger.Debug("page fetch failed", zap.String("url", target), zap.Error(err))
		return pageOutcome{page: failedPage(target, err)}, nil
	}
	defer resp.Body.Close()

	var contentType *string
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		contentType = &ct
	}

	var body []byte
	if contentType != nil && isHTML(*contentType) {
		body, err = io.ReadAll(io.LimitReader(resp.Body, constants.MaxBodyBytes))
		if err != nil {
			c.logger.Debug("page body truncated", zap.String("url", target), zap.Error(err))
		}
	}

	finalURL := target
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	cookieIssues, totalCookies := AnalyzeCookies(resp)
	page := scan.PageResult{
		URL:           target,
		StatusCode:    resp.StatusCode,
		ContentType:   contentType,
		HeaderGrades:  GradeHeaders(resp.Header),
		InfoLeakage:   InfoLeakage(resp.Header),
		ContentIssues: ContentIssues(finalURL, body),
		CookieIssues:  cookieIssues,
		TotalCookies:  totalCookies,
		ScriptIssues:  []scan.ScriptIssue{},
	}

	outcome := pageOutcome{redirectChain: chain}
	if len(body) > 0 {
		base, perr := url.Parse(finalURL)
		if perr != nil {
			base = root
		}
		doc := parseHTML(body)
		outcome.links = ExtractLinks(doc, base, root)
		outcome.metaGenerator = MetaGenerator(doc)
		page.ScriptIssues, page.TotalExternalScripts = AnalyzeScripts(doc, target)
	}

	page.CORSIssues = ProbeCORS(ctx, c.client, target, c.opts.CORSTimeout)
	page.CORSChecked = true

	outcome.page = page
	return outcome, nil
}

// followRedirects fetches target without automatic redirects and records
// every URL requested. Up to MaxRedirects hops are followed; one more is
// fatal to the crawl.
func (c *Crawler) followRedirects(ctx context.Context, target string) (*http.Response, []string, error) {
	manual := withoutRedirects(c.client)
	chain := make([]string, 0, 2)
	current := target

	for i := 0; i <= c.opts.MaxRedirects; i++ {
		resp, err := c.get(ctx, manual, current)
		if err != nil {
			return nil, chain, err
		}
		chain = append(chain, current)

		location := resp.Header.Get("Location")
		if location == "" || resp.StatusCode < 300 || resp.StatusCode >= 400 {
			return resp, chain, nil
		}
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, constants.MaxBodyBytes))
		resp.Body.Close()

		next, err := resp.Request.URL.Parse(location)
		if err != nil {
			return nil, chain, fmt.Errorf("invalid redirect location %q: %w", location, err)
		}
		current = next.String()
	}

	return nil, chain, &sharedErrors.TooManyRedirectsError{URL: target, Max: c.opts.MaxRedirects}
}

// get issues a GET bounded by the request timeout. The timeout is released
// when the body is closed.
func (c *Crawler) get(ctx context.Context, client *http.Client, target string) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		cancel()
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

func failedPage(target string, err error) scan.PageResult {
	return scan.PageResult{
		URL:           target,
		StatusCode:    0,
		HeaderGrades:  []scan.HeaderGrade{},
		InfoLeakage:   []scan.InfoLeak{},
		ContentIssues: []string{fmt.Sprintf("Failed to fetch: %v", err)},
		CookieIssues:  []string{},
		ScriptIssues:  []scan.ScriptIssue{},
	}
}

func dedupe(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
