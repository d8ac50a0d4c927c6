package entity

// ParentChildMaps is the three denormalized views of the discovery forest
// for one run. ParentMap has no entry for the seed. ChildrenMap and
// PathMap are derivable from ParentMap alone (see internal/store for the
// recursive-CTE derivation); this struct is the in-memory shape the
// Frontier builds during a crawl and the shape returned to HTTP callers.
type ParentChildMaps struct {
	SeedURL    string
	ParentMap  map[string]string   // child URL -> parent URL
	ChildrenMap map[string][]string // parent URL -> child URLs, discovery order
	PathMap    map[string][]string // URL -> [seed, ..., URL]
}

// NewParentChildMaps builds an empty maps value rooted at seed.
func NewParentChildMaps(seed string) *ParentChildMaps {
	return &ParentChildMaps{
		SeedURL:     seed,
		ParentMap:   make(map[string]string),
		ChildrenMap: make(map[string][]string),
		PathMap:     map[string][]string{seed: {seed}},
	}
}

// HasChildren reports whether u has at least one recorded child.
func (m *ParentChildMaps) HasChildren(u string) bool {
	return len(m.ChildrenMap[u]) > 0
}

// AddEdge records that child was first discovered via parent. It is a
// no-op if child already has a parent recorded: the first discoverer
// wins, and repeat observations are dropped.
func (m *ParentChildMaps) AddEdge(parent, child string) {
	if _, exists := m.ParentMap[child]; exists {
		return
	}
	if child == m.SeedURL {
		return
	}
	m.ParentMap[child] = parent
	m.ChildrenMap[parent] = append(m.ChildrenMap[parent], child)

	parentPath, ok := m.PathMap[parent]
	if !ok {
		parentPath = []string{parent}
	}
	path := make([]string, len(parentPath)+1)
	copy(path, parentPath)
	path[len(parentPath)] = child
	m.PathMap[child] = path
}

// SourceBody is the HTML body stored at an interior (non-leaf) page,
// keyed by (run_id, page_url).
type SourceBody struct {
	RunID string
	URL   string
	Body  string
}

// HighlightedLink is a byte-offset occurrence of an edge's URL inside a
// source body, used by the hierarchical read's link-highlighting rule.
type HighlightedLink struct {
	URL        string
	Start      int
	End        int
	Type       HighlightType
	StatusCode *int
	Status     LinkStatus
}

// HighlightType buckets an edge for presentation coloring.
type HighlightType string

const (
	HighlightBroken  HighlightType = "broken"
	HighlightWorking HighlightType = "working"
	HighlightOther   HighlightType = "other"
)

// SourceResult is the result of a hierarchical source-code read.
type SourceResult struct {
	RequestedURL      string
	ActualSourcePage  string
	IsSourceFromParent bool
	Body              string
	TraversalPath     []string
	HierarchyDepth    int
	HighlightedLinks  []HighlightedLink
}
