// Package store persists run artifacts under the hierarchical body
// deduplication scheme: HTML bodies live only at interior pages of the
// discovery forest, and leaves resolve theirs by walking up the parent
// chain.
package store

import (
	"context"

	"github.com/user/webanalysis-engine/internal/entity"
)

// Artifacts is everything one crawl hands to PersistRun: page records,
// the edge set, the maps, the in-memory bodies, and the set of URLs that
// produced a usable response.
type Artifacts struct {
	Pages   []entity.PageRecord
	Edges   []entity.EdgeRecord
	Maps    *entity.ParentChildMaps
	Bodies  map[string]string
	Fetched map[string]bool
}

// RunBundle is the full read-side view of one run.
type RunBundle struct {
	Run    entity.Run
	Config entity.Config
	Pages  []entity.PageRecord
	Edges  []entity.EdgeRecord
	Maps   *entity.ParentChildMaps
}

// LinkDetail is the broken-link detail view: the edge record plus the
// parent page's title and the discovery path of the target URL.
type LinkDetail struct {
	Edge        entity.EdgeRecord
	ParentTitle string
	Path        []string
}

// PathStats summarizes the discovery forest: URL count per depth and the
// deepest level reached. Derived from path_map on read, never persisted.
type PathStats struct {
	URLsByDepth map[int]int
	MaxDepth    int
	TotalURLs   int
}

// Store is the hierarchical persistence adapter. Writers are serialized
// per run id; concurrent readers are allowed. Records are never modified
// after their initial write, and a run's artifacts are only observable
// once PersistRun has returned.
type Store interface {
	// CreateRun inserts a new run in the pending state along with the
	// config it will execute under.
	CreateRun(ctx context.Context, run *entity.Run, cfg entity.Config) error

	// SetRunState transitions the run's lifecycle state, stamping
	// started_at / completed_at as appropriate. errMsg is recorded only
	// for the failed state.
	SetRunState(ctx context.Context, runID string, state entity.RunState, errMsg string) error

	// PersistRun atomically writes all artifacts for the run and the
	// aggregate counters recomputed from them. Re-issuing it with
	// identical inputs produces an identical store.
	PersistRun(ctx context.Context, runID string, a Artifacts) error

	// GetRun returns run metadata, config, page records, edge records,
	// and the three maps.
	GetRun(ctx context.Context, runID string) (*RunBundle, error)

	// GetSource returns the HTML body for pageURL, possibly resolved
	// from an ancestor via the upward traversal, with highlighted link
	// offsets for edges observed on the resolved page.
	GetSource(ctx context.Context, runID, pageURL string) (*entity.SourceResult, error)

	// GetParentChild returns the three maps alone.
	GetParentChild(ctx context.Context, runID string) (*entity.ParentChildMaps, error)

	// GetLinkDetail returns the edge record for url plus parent title and
	// discovery path.
	GetLinkDetail(ctx context.Context, runID, url string) (*LinkDetail, error)

	// PathStatistics derives forest statistics from path_map.
	PathStatistics(ctx context.Context, runID string) (*PathStats, error)

	// DeleteRun cascades across all rows keyed by the run id. Deleting a
	// missing run is a no-op.
	DeleteRun(ctx context.Context, runID string) error
}
