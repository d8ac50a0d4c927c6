// Package validator checks a bounded, prioritized sample of the discovered
// edge set: status code, latency, and title for pages that resolve.
package validator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"

	"github.com/user/webanalysis-engine/internal/adaptive"
	"github.com/user/webanalysis-engine/internal/entity"
)

// defaultConcurrency caps in-flight validation requests, independent of
// the fetcher's semaphore.
const defaultConcurrency = 50

const maxBodyBytes = 10 * 1024 * 1024

// resourceExtensions and resourcePaths identify URLs that are almost
// certainly static assets; these are marked valid without a round trip so
// the validation budget is spent on page links.
var resourceExtensions = []string{
	".css", ".js", ".png", ".jpg", ".jpeg", ".gif", ".svg", ".ico", ".webp",
	".woff", ".woff2", ".ttf", ".eot", ".otf",
	".pdf", ".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx",
	".zip", ".rar", ".tar", ".gz",
	".mp3", ".mp4", ".avi", ".mov", ".wmv",
	".xml", ".json", ".txt", ".csv",
}

var resourcePaths = []string{
	"/cdn/", "/assets/", "/static/", "/images/", "/img/", "/css/", "/js/",
	"/fonts/", "/media/", "/uploads/", "/files/", "/downloads/",
}

// IsLikelyResource reports whether a URL points at a static asset rather
// than a page.
func IsLikelyResource(rawURL string) bool {
	lower := strings.ToLower(rawURL)
	for _, ext := range resourceExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	for _, p := range resourcePaths {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// Validator validates edges for one run. Separate client and semaphore
// from the Fetcher; redirects are reported, not followed.
type Validator struct {
	client    *http.Client
	userAgent string
	timeout   time.Duration
	maxLinks  int
	sem       chan struct{}
	logger    *slog.Logger
	window    *adaptive.Window
}

// New builds a Validator for one run.
func New(cfg entity.Config, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{
		client: &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		userAgent: cfg.UserAgent,
		timeout:   cfg.RequestTimeout,
		maxLinks:  cfg.MaxLinksToValidate,
		sem:       make(chan struct{}, defaultConcurrency),
		logger:    logger,
		window:    adaptive.NewWindow(),
	}
}

// Validate returns a copy of edges in their original discovery order, with
// up to the configured budget of them validated. Selection priority:
// edges whose target was already fetched as a page (status reused, no
// request), then same-origin edges in discovery order, then external
// edges. Everything beyond the budget keeps status unknown.
func (v *Validator) Validate(ctx context.Context, edges []entity.EdgeRecord, fetchedStatus map[string]int) []entity.EdgeRecord {
	out := make([]entity.EdgeRecord, len(edges))
	copy(out, edges)

	selected := selectForValidation(out, fetchedStatus, v.maxLinks)

	// Pass 1: settle edges that need no network round trip.
	var pending []int
	for _, i := range selected {
		e := &out[i]
		if code, ok := fetchedStatus[e.URL]; ok {
			e.StatusCode = &code
			e.Status = categorizeStatus(code)
			continue
		}
		if e.Type == entity.LinkResource || IsLikelyResource(e.URL) {
			code := http.StatusOK
			e.StatusCode = &code
			e.Status = entity.StatusValid
			continue
		}
		pending = append(pending, i)
	}

	// Pass 2: adaptive batches over the network.
	batchSize := adaptive.InitialBatchSize
	for len(pending) > 0 {
		if ctx.Err() != nil {
			break
		}
		n := batchSize
		if n > len(pending) {
			n = len(pending)
		}
		batch := pending[:n]
		pending = pending[n:]

		g, gctx := errgroup.WithContext(ctx)
		for _, i := range batch {
			g.Go(func() error {
				select {
				case v.sem <- struct{}{}:
					defer func() { <-v.sem }()
				case <-gctx.Done():
					return nil
				}
				v.validateOne(gctx, &out[i])
				return nil
			})
		}
		_ = g.Wait()

		for _, i := range batch {
			s := out[i].Status
			v.window.Record(s == entity.StatusBroken || s == entity.StatusTimeout || s == entity.StatusRateLimited)
		}
		batchSize = adaptive.NextBatchSize(batchSize, v.window.Rate())
	}

	return out
}

// selectForValidation picks up to maxLinks edge indices by priority.
func selectForValidation(edges []entity.EdgeRecord, fetchedStatus map[string]int, maxLinks int) []int {
	var known, sameOrigin, external []int
	for i, e := range edges {
		switch {
		case fetchedStatusHas(fetchedStatus, e.URL):
			known = append(known, i)
		case e.Type == entity.LinkExternal:
			external = append(external, i)
		default:
			sameOrigin = append(sameOrigin, i)
		}
	}

	selected := make([]int, 0, len(edges))
	for _, group := range [][]int{known, sameOrigin, external} {
		for _, i := range group {
			if len(selected) >= maxLinks {
				return selected
			}
			selected = append(selected, i)
		}
	}
	return selected
}

func fetchedStatusHas(m map[string]int, url string) bool {
	_, ok := m[url]
	return ok
}

// validateOne issues a single GET and writes the outcome onto e.
func (v *Validator) validateOne(ctx context.Context, e *entity.EdgeRecord) {
	reqCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, e.URL, nil)
	if err != nil {
		e.Status = entity.StatusUnknown
		e.ErrorMessage = err.Error()
		return
	}
	if v.userAgent != "" {
		req.Header.Set("User-Agent", v.userAgent)
	}

	start := time.Now()
	resp, err := v.client.Do(req)
	e.ResponseTime = time.Since(start)
	if err != nil {
		if isTimeout(err) {
			e.Status = entity.StatusTimeout
			e.ErrorMessage = "request timeout"
		} else {
			e.Status = entity.StatusUnknown
			e.ErrorMessage = err.Error()
		}
		return
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	e.ResponseTime = time.Since(start)

	code := resp.StatusCode
	e.StatusCode = &code
	e.Status = categorizeStatus(code)

	if e.Status == entity.StatusValid && readErr == nil {
		if doc, perr := goquery.NewDocumentFromReader(strings.NewReader(string(body))); perr == nil {
			e.Title = strings.TrimSpace(doc.Find("title").First().Text())
		}
	}
}

// categorizeStatus maps an HTTP status code to a link status label.
func categorizeStatus(code int) entity.LinkStatus {
	switch {
	case code >= 200 && code < 300:
		return entity.StatusValid
	case code >= 300 && code < 400:
		return entity.StatusRedirect
	case code == http.StatusTooManyRequests:
		return entity.StatusRateLimited
	case code >= 400 && code < 600:
		return entity.StatusBroken
	default:
		return entity.StatusUnknown
	}
}

func isTimeout(err error) bool {
	type timeouter interface{ Timeout() bool }
	if t, ok := err.(timeouter); ok && t.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
