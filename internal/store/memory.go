package store

import (
	"context"
	"sync"
	"time"

	"github.com/user/webanalysis-engine/internal/entity"
)

// Memory is an in-process Store used by tests and by single-node
// deployments that do not need durability. It applies the same write
// rule, traversal read, and invariant checks as the Postgres adapter.
type Memory struct {
	mu   sync.RWMutex
	runs map[string]*memRun
}

type memRun struct {
	run    entity.Run
	cfg    entity.Config
	pages  []entity.PageRecord
	edges  []entity.EdgeRecord
	maps   *entity.ParentChildMaps
	bodies map[string]string
}

// NewMemory builds an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{runs: make(map[string]*memRun)}
}

func (s *Memory) CreateRun(ctx context.Context, run *entity.Run, cfg entity.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = &memRun{run: *run, cfg: cfg}
	return nil
}

func (s *Memory) SetRunState(ctx context.Context, runID string, state entity.RunState, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[runID]
	if !ok {
		return entity.ErrRunNotFound
	}
	if r.run.State == entity.RunCompleted || r.run.State == entity.RunFailed {
		return &entity.ErrInvariantViolation{Reason: "run is terminal and immutable"}
	}
	now := time.Now()
	switch state {
	case entity.RunRunning:
		r.run.StartedAt = &now
	case entity.RunCompleted:
		r.run.CompletedAt = &now
	case entity.RunFailed:
		r.run.CompletedAt = &now
		r.run.ErrorMessage = errMsg
	}
	r.run.State = state
	return nil
}

func (s *Memory) PersistRun(ctx context.Context, runID string, a Artifacts) error {
	if err := validateForest(a.Maps); err != nil {
		return err
	}
	keep, err := bodyKeepSet(a)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[runID]
	if !ok {
		return entity.ErrRunNotFound
	}

	r.pages = append([]entity.PageRecord(nil), a.Pages...)
	r.edges = append([]entity.EdgeRecord(nil), a.Edges...)
	r.maps = copyMaps(a.Maps)
	r.bodies = make(map[string]string, len(keep))
	for u := range keep {
		r.bodies[u] = a.Bodies[u]
	}
	r.run.Apply(recomputeCounters(a.Pages, a.Edges))
	return nil
}

func (s *Memory) GetRun(ctx context.Context, runID string) (*RunBundle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[runID]
	if !ok {
		return nil, entity.ErrRunNotFound
	}
	bundle := &RunBundle{
		Run:    r.run,
		Config: r.cfg,
		Pages:  append([]entity.PageRecord(nil), r.pages...),
		Edges:  append([]entity.EdgeRecord(nil), r.edges...),
	}
	if r.maps != nil {
		bundle.Maps = copyMaps(r.maps)
	}
	return bundle, nil
}

func (s *Memory) GetSource(ctx context.Context, runID, pageURL string) (*entity.SourceResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[runID]
	if !ok {
		return nil, entity.ErrRunNotFound
	}
	if r.maps == nil {
		return nil, entity.ErrSourceNotFound
	}

	if body, ok := r.bodies[pageURL]; ok {
		return &entity.SourceResult{
			RequestedURL:     pageURL,
			ActualSourcePage: pageURL,
			Body:             body,
			TraversalPath:    []string{pageURL},
			HighlightedLinks: computeHighlights(body, r.edges, pageURL),
		}, nil
	}

	maxWalk := r.cfg.MaxCrawlDepth + traversalSlack
	cur := pageURL
	path := []string{pageURL}
	depth := 0
	for {
		parent, ok := r.maps.ParentMap[cur]
		if !ok {
			return nil, entity.ErrSourceNotFound
		}
		cur = parent
		path = append(path, cur)
		depth++
		if depth > maxWalk {
			return nil, entity.ErrSourceNotFound
		}
		if body, ok := r.bodies[cur]; ok {
			return &entity.SourceResult{
				RequestedURL:       pageURL,
				ActualSourcePage:   cur,
				IsSourceFromParent: true,
				Body:               body,
				TraversalPath:      path,
				HierarchyDepth:     depth,
				HighlightedLinks:   computeHighlights(body, r.edges, cur),
			}, nil
		}
	}
}

func (s *Memory) GetParentChild(ctx context.Context, runID string) (*entity.ParentChildMaps, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[runID]
	if !ok {
		return nil, entity.ErrRunNotFound
	}
	if r.maps == nil {
		return entity.NewParentChildMaps(r.run.SeedURL), nil
	}
	return copyMaps(r.maps), nil
}

func (s *Memory) GetLinkDetail(ctx context.Context, runID, url string) (*LinkDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[runID]
	if !ok {
		return nil, entity.ErrRunNotFound
	}
	for _, e := range r.edges {
		if e.URL != url {
			continue
		}
		detail := &LinkDetail{Edge: e}
		for _, p := range r.pages {
			if p.URL == e.ParentURL {
				detail.ParentTitle = p.Title
				break
			}
		}
		if r.maps != nil {
			detail.Path = append([]string(nil), r.maps.PathMap[url]...)
		}
		return detail, nil
	}
	return nil, entity.ErrLinkNotFound
}

func (s *Memory) PathStatistics(ctx context.Context, runID string) (*PathStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[runID]
	if !ok {
		return nil, entity.ErrRunNotFound
	}
	stats := &PathStats{URLsByDepth: make(map[int]int)}
	if r.maps == nil {
		return stats, nil
	}
	for _, path := range r.maps.PathMap {
		depth := len(path) - 1
		stats.URLsByDepth[depth]++
		if depth > stats.MaxDepth {
			stats.MaxDepth = depth
		}
		stats.TotalURLs++
	}
	return stats, nil
}

func (s *Memory) DeleteRun(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.runs, runID)
	return nil
}

func copyMaps(m *entity.ParentChildMaps) *entity.ParentChildMaps {
	out := entity.NewParentChildMaps(m.SeedURL)
	for k, v := range m.ParentMap {
		out.ParentMap[k] = v
	}
	for k, v := range m.ChildrenMap {
		out.ChildrenMap[k] = append([]string(nil), v...)
	}
	for k, v := range m.PathMap {
		out.PathMap[k] = append([]string(nil), v...)
	}
	return out
}
