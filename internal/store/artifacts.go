package store

import (
	"fmt"

	"github.com/user/webanalysis-engine/internal/entity"
)

// traversalSlack is added to the run's max crawl depth to bound the
// upward walk in GetSource.
const traversalSlack = 1

// validateForest checks that the parent map is a forest with exactly one
// root (the seed): the seed has no entry, every chain terminates at the
// seed, and no chain revisits a URL.
func validateForest(m *entity.ParentChildMaps) error {
	if _, ok := m.ParentMap[m.SeedURL]; ok {
		return &entity.ErrInvariantViolation{Reason: "seed has a parent entry"}
	}
	for child := range m.ParentMap {
		seen := map[string]struct{}{child: {}}
		cur := child
		for cur != m.SeedURL {
			parent, ok := m.ParentMap[cur]
			if !ok {
				return &entity.ErrInvariantViolation{Reason: fmt.Sprintf("parent chain of %s dead-ends at %s", child, cur)}
			}
			if _, cycle := seen[parent]; cycle {
				return &entity.ErrInvariantViolation{Reason: fmt.Sprintf("cycle in parent map through %s", parent)}
			}
			seen[parent] = struct{}{}
			cur = parent
		}
	}
	return nil
}

// bodyKeepSet applies the hierarchical write rule: a body row is kept for
// u iff u was fetched and has at least one child. The seed is always kept
// if fetched. Returns an invariant violation if the rule demands a body
// the crawl did not retain.
func bodyKeepSet(a Artifacts) (map[string]bool, error) {
	keep := make(map[string]bool)
	for u := range a.Fetched {
		if u == a.Maps.SeedURL || a.Maps.HasChildren(u) {
			keep[u] = true
		}
	}
	for u := range keep {
		if _, ok := a.Bodies[u]; !ok {
			if u == a.Maps.SeedURL {
				return nil, &entity.ErrInvariantViolation{Reason: "seed was fetched but its body was not retained"}
			}
			return nil, &entity.ErrInvariantViolation{Reason: fmt.Sprintf("non-leaf fetched page %s has no retained body", u)}
		}
	}
	return keep, nil
}

// recomputeCounters derives the run's aggregate counters from the
// per-record tables. Rate-limited links do not count as broken. The
// overall score deducts ten points per broken link or blank page.
func recomputeCounters(pages []entity.PageRecord, edges []entity.EdgeRecord) entity.Counters {
	c := entity.Counters{
		PagesAnalyzed: len(pages),
		LinksFound:    len(edges),
	}
	for _, p := range pages {
		switch p.Type {
		case entity.PageBlank:
			c.BlankCount++
		case entity.PageContent:
			c.ContentCount++
		}
	}
	for _, e := range edges {
		if e.Status == entity.StatusBroken && (e.StatusCode == nil || *e.StatusCode != 429) {
			c.BrokenCount++
		}
	}
	score := 100 - 10*(c.BrokenCount+c.BlankCount)
	if score < 0 {
		score = 0
	}
	c.OverallScore = float64(score)
	return c
}
