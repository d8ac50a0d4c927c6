// Package frontier runs the bounded breadth-first crawl over the
// same-origin URL graph, enforcing depth and page budgets and building the
// parent/child maps as URLs are first discovered.
package frontier

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"

	"github.com/user/webanalysis-engine/internal/adaptive"
	"github.com/user/webanalysis-engine/internal/classifier"
	"github.com/user/webanalysis-engine/internal/entity"
	"github.com/user/webanalysis-engine/internal/extractor"
	"github.com/user/webanalysis-engine/internal/fetcher"
)

// Fetcher is the single-origin HTTP client the frontier drains the queue
// through.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*fetcher.Result, *fetcher.Error)
}

// urlState is the per-URL lifecycle. Transitions are monotonic; a URL
// never regresses.
type urlState int

const (
	stateUnseen urlState = iota
	stateEnqueued
	stateFetching
	stateFetched
	stateFailedFetch
	stateClassified
)

// Result is everything one crawl produces: page records, the typed edge
// set in deterministic discovery order, the three maps, and the fetched
// bodies retained in memory for the duration of the run.
type Result struct {
	Pages       []entity.PageRecord
	Edges       []entity.EdgeRecord
	Maps        *entity.ParentChildMaps
	Bodies      map[string]string
	Fetched     map[string]bool
	StatusCodes map[string]int
}

// Frontier owns the BFS state for one run: the queue, the seen set, and
// the maps builder. Exactly one goroutine (the Crawl loop) mutates them;
// fetch workers return results over the errgroup rendezvous.
type Frontier struct {
	runID   string
	cfg     entity.Config
	fetcher Fetcher
	logger  *slog.Logger

	state  map[string]urlState
	window *adaptive.Window
}

// New builds a Frontier for one run. It is never shared across runs. The
// caller supplies a logger already scoped to the run.
func New(runID string, cfg entity.Config, f Fetcher, logger *slog.Logger) *Frontier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Frontier{
		runID:   runID,
		cfg:     cfg,
		fetcher: f,
		logger:  logger,
		state:   make(map[string]urlState),
		window:  adaptive.NewWindow(),
	}
}

type queueItem struct {
	url   string
	depth int
}

type fetchOutcome struct {
	item     queueItem
	res      *fetcher.Result
	ferr     *fetcher.Error
	classify classifier.Result
	links    []extractor.Link
}

// Crawl performs the breadth-first traversal from seed. It returns a
// partial-but-consistent Result when the wall-clock ceiling is hit, and an
// error only on cancellation of ctx or a malformed seed.
func (fr *Frontier) Crawl(ctx context.Context, seed string) (*Result, error) {
	seedURL, err := url.Parse(seed)
	if err != nil {
		return nil, err
	}
	canonSeed, ok := extractor.Canonicalize(seedURL)
	if !ok {
		return nil, &entity.ErrInvariantViolation{Reason: "seed URL is not canonicalizable: " + seed}
	}
	base, _ := url.Parse(canonSeed)

	wallClock := fr.cfg.WallClockCeiling
	if wallClock <= 0 {
		wallClock = 10 * time.Minute
	}
	ceiling := time.Now().Add(wallClock)
	fetchCtx, cancel := context.WithDeadline(ctx, ceiling)
	defer cancel()

	result := &Result{
		Maps:        entity.NewParentChildMaps(canonSeed),
		Bodies:      make(map[string]string),
		Fetched:     make(map[string]bool),
		StatusCodes: make(map[string]int),
	}

	queue := []queueItem{{url: canonSeed, depth: 0}}
	fr.state[canonSeed] = stateEnqueued
	enqueued := 1
	edgeSeen := make(map[string]struct{})
	batchSize := adaptive.InitialBatchSize

	for len(queue) > 0 {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if time.Now().After(ceiling) {
			fr.logger.Warn("wall-clock ceiling reached, stopping crawl", "pending", len(queue))
			break
		}

		n := batchSize
		if n > len(queue) {
			n = len(queue)
		}
		batch := queue[:n]
		queue = queue[n:]

		outcomes := fr.fetchBatch(fetchCtx, base, batch)

		for _, out := range outcomes {
			fr.recordOutcome(out, result, edgeSeen, &queue, &enqueued)
		}

		batchSize = adaptive.NextBatchSize(batchSize, fr.window.Rate())
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return result, nil
}

// fetchBatch fans the batch out to workers and collects outcomes back in
// batch order, so edge production stays deterministic. Parsing,
// classification, and extraction happen on the worker; only the BFS
// bookkeeping runs on the owning goroutine.
func (fr *Frontier) fetchBatch(ctx context.Context, base *url.URL, batch []queueItem) []fetchOutcome {
	outcomes := make([]fetchOutcome, len(batch))

	g, gctx := errgroup.WithContext(ctx)
	for i, item := range batch {
		fr.state[item.url] = stateFetching
		g.Go(func() error {
			out := fetchOutcome{item: item}
			out.res, out.ferr = fr.fetcher.Fetch(gctx, item.url)
			if out.ferr == nil {
				body := string(out.res.Body)
				doc, perr := goquery.NewDocumentFromReader(strings.NewReader(body))
				if perr != nil {
					// Parser failure: the page record is still written,
					// with type error and zeroed structural flags.
					out.classify = classifier.Result{Type: entity.PageError}
				} else {
					out.classify = classifier.Classify(doc, body, out.res.StatusCode)
					if out.res.StatusCode < 400 {
						out.links = extractor.Extract(doc, base, fr.cfg.Toggles)
					}
				}
			}
			outcomes[i] = out
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// recordOutcome applies one fetch outcome to the BFS state: page record,
// edge records for candidate children in the order the extractor returns
// them, and enqueueing of
// the ones that pass the depth, budget, and same-origin gates.
func (fr *Frontier) recordOutcome(out fetchOutcome, result *Result, edgeSeen map[string]struct{}, queue *[]queueItem, enqueued *int) {
	pageURL := out.item.url

	if out.ferr != nil {
		fr.window.Record(true)
		fr.state[pageURL] = stateFailedFetch
		fr.logger.Warn("fetch failed", "url", pageURL, "kind", out.ferr.Kind)
		result.Pages = append(result.Pages, entity.PageRecord{
			RunID: fr.runID,
			URL:   pageURL,
			Type:  entity.PageError,
			Depth: out.item.depth,
			Path:  result.Maps.PathMap[pageURL],
		})
		return
	}

	fr.window.Record(out.res.StatusCode >= 400)
	fr.state[pageURL] = stateFetched
	result.Fetched[pageURL] = true
	result.Bodies[pageURL] = string(out.res.Body)
	result.StatusCodes[pageURL] = out.res.StatusCode

	result.Pages = append(result.Pages, entity.PageRecord{
		RunID:           fr.runID,
		URL:             pageURL,
		Title:           out.classify.Title,
		WordCount:       out.classify.WordCount,
		Type:            out.classify.Type,
		HasHeader:       out.classify.HasHeader,
		HasFooter:       out.classify.HasFooter,
		HasNav:          out.classify.HasNav,
		StructureDigest: out.classify.StructureDigest,
		Depth:           out.item.depth,
		Path:            result.Maps.PathMap[pageURL],
		StructureIssues: out.classify.Issues,
	})
	fr.state[pageURL] = stateClassified

	for _, link := range out.links {
		if link.URL == pageURL {
			continue
		}

		result.Maps.AddEdge(pageURL, link.URL)

		if _, dup := edgeSeen[link.URL]; !dup {
			edgeSeen[link.URL] = struct{}{}
			result.Edges = append(result.Edges, entity.EdgeRecord{
				RunID:     fr.runID,
				URL:       link.URL,
				ParentURL: pageURL,
				Type:      link.Type,
				Status:    entity.StatusUnknown,
			})
		}

		if link.Type == entity.LinkExternal {
			continue
		}
		if fr.state[link.URL] != stateUnseen {
			continue
		}
		if out.item.depth+1 > fr.cfg.MaxCrawlDepth {
			continue
		}
		if *enqueued >= fr.cfg.MaxPagesToCrawl {
			continue
		}
		fr.state[link.URL] = stateEnqueued
		*enqueued++
		*queue = append(*queue, queueItem{url: link.URL, depth: out.item.depth + 1})
	}
}
