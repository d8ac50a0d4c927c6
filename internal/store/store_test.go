package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/user/webanalysis-engine/internal/entity"
)

func newRun(t *testing.T, s Store, id, seed string) entity.Config {
	t.Helper()
	cfg := entity.DefaultConfig()
	cfg.MaxCrawlDepth = 3
	run := &entity.Run{
		ID:        id,
		SeedURL:   seed,
		State:     entity.RunPending,
		CreatedAt: time.Now(),
	}
	require.NoError(t, s.CreateRun(context.Background(), run, cfg))
	return cfg
}

// trivialArtifacts builds the crawl output of a seed linking to two empty
// leaves.
func trivialArtifacts(runID string) Artifacts {
	seed := "http://a.example/"
	x := "http://a.example/x"
	y := "http://a.example/y"

	maps := entity.NewParentChildMaps(seed)
	maps.AddEdge(seed, x)
	maps.AddEdge(seed, y)

	return Artifacts{
		Pages: []entity.PageRecord{
			{RunID: runID, URL: seed, Type: entity.PageContent, Title: "Seed", Path: []string{seed}},
			{RunID: runID, URL: x, Type: entity.PageBlank, Depth: 1, Path: []string{seed, x}},
			{RunID: runID, URL: y, Type: entity.PageBlank, Depth: 1, Path: []string{seed, y}},
		},
		Edges: []entity.EdgeRecord{
			{RunID: runID, URL: x, ParentURL: seed, Type: entity.LinkStaticHTML, Status: entity.StatusValid, StatusCode: intp(200)},
			{RunID: runID, URL: y, ParentURL: seed, Type: entity.LinkStaticHTML, Status: entity.StatusValid, StatusCode: intp(200)},
		},
		Maps: maps,
		Bodies: map[string]string{
			seed: `<html><body><a href="http://a.example/x">x</a><a href="http://a.example/y">y</a></body></html>`,
			x:    `<html></html>`,
			y:    `<html></html>`,
		},
		Fetched: map[string]bool{seed: true, x: true, y: true},
	}
}

func intp(v int) *int { return &v }

func TestPersistRunKeepsBodiesOnlyAtInteriorPages(t *testing.T) {
	s := NewMemory()
	newRun(t, s, "r1", "http://a.example/")
	require.NoError(t, s.PersistRun(context.Background(), "r1", trivialArtifacts("r1")))

	// Seed has children, so its body resolves directly.
	src, err := s.GetSource(context.Background(), "r1", "http://a.example/")
	require.NoError(t, err)
	require.False(t, src.IsSourceFromParent)
	require.Equal(t, []string{"http://a.example/"}, src.TraversalPath)
	require.Equal(t, 0, src.HierarchyDepth)

	// Leaves carry no body row; theirs resolves from the seed.
	src, err = s.GetSource(context.Background(), "r1", "http://a.example/x")
	require.NoError(t, err)
	require.True(t, src.IsSourceFromParent)
	require.Equal(t, "http://a.example/", src.ActualSourcePage)
	require.Equal(t, []string{"http://a.example/x", "http://a.example/"}, src.TraversalPath)
	require.Equal(t, 1, src.HierarchyDepth)
}

func TestGetSourceDeepLeafWalksToNearestAncestorWithBody(t *testing.T) {
	// Chain a/ -> a/b -> a/b/c -> a/b/c/d; only a/ and a/b are interior
	// with retained bodies.
	seed := "http://a.example/"
	b := "http://a.example/b"
	c := "http://a.example/b/c"
	d := "http://a.example/b/c/d"

	maps := entity.NewParentChildMaps(seed)
	maps.AddEdge(seed, b)
	maps.AddEdge(b, c)
	maps.AddEdge(c, d)

	a := Artifacts{
		Pages: []entity.PageRecord{
			{URL: seed, Type: entity.PageContent},
			{URL: b, Type: entity.PageContent},
			{URL: c, Type: entity.PageContent},
			{URL: d, Type: entity.PageContent},
		},
		Edges: []entity.EdgeRecord{
			{URL: b, ParentURL: seed, Type: entity.LinkStaticHTML, Status: entity.StatusValid},
			{URL: c, ParentURL: b, Type: entity.LinkStaticHTML, Status: entity.StatusValid},
			{URL: d, ParentURL: c, Type: entity.LinkStaticHTML, Status: entity.StatusValid},
		},
		Maps: maps,
		Bodies: map[string]string{
			seed: "<html>seed</html>",
			b:    "<html>b</html>",
			c:    "<html>c</html>",
			d:    "<html>d</html>",
		},
		// c fetched and has a child, so its body is kept; simulate the
		// deep-leaf scenario by marking c unfetched.
		Fetched: map[string]bool{seed: true, b: true, d: true},
	}

	s := NewMemory()
	newRun(t, s, "r1", seed)
	require.NoError(t, s.PersistRun(context.Background(), "r1", a))

	src, err := s.GetSource(context.Background(), "r1", d)
	require.NoError(t, err)
	require.Equal(t, b, src.ActualSourcePage)
	require.Equal(t, "<html>b</html>", src.Body)
	require.Equal(t, []string{d, c, b}, src.TraversalPath)
	require.Equal(t, 2, src.HierarchyDepth)
}

func TestGetSourceNotFoundPastRoot(t *testing.T) {
	s := NewMemory()
	newRun(t, s, "r1", "http://a.example/")

	a := trivialArtifacts("r1")
	delete(a.Bodies, "http://a.example/")
	delete(a.Fetched, "http://a.example/")
	a.Pages = a.Pages[1:]
	require.NoError(t, s.PersistRun(context.Background(), "r1", a))

	_, err := s.GetSource(context.Background(), "r1", "http://a.example/x")
	require.ErrorIs(t, err, entity.ErrSourceNotFound)
}

func TestPersistRunCountersMatchRecords(t *testing.T) {
	s := NewMemory()
	newRun(t, s, "r1", "http://a.example/")

	a := trivialArtifacts("r1")
	a.Edges[1].Status = entity.StatusBroken
	a.Edges[1].StatusCode = intp(404)
	require.NoError(t, s.PersistRun(context.Background(), "r1", a))

	bundle, err := s.GetRun(context.Background(), "r1")
	require.NoError(t, err)
	require.Equal(t, 3, bundle.Run.PagesAnalyzed)
	require.Equal(t, 2, bundle.Run.LinksFound)
	require.Equal(t, 1, bundle.Run.BrokenCount)
	require.Equal(t, 2, bundle.Run.BlankCount)
	require.Equal(t, 1, bundle.Run.ContentCount)
	// 100 minus 10 per broken link or blank page.
	require.Equal(t, float64(70), bundle.Run.OverallScore)
}

func TestRateLimitedEdgeNotCountedBroken(t *testing.T) {
	c := recomputeCounters(nil, []entity.EdgeRecord{
		{Status: entity.StatusRateLimited, StatusCode: intp(429)},
		{Status: entity.StatusBroken, StatusCode: intp(404)},
	})
	require.Equal(t, 1, c.BrokenCount)
}

func TestPersistRunIsIdempotent(t *testing.T) {
	s := NewMemory()
	newRun(t, s, "r1", "http://a.example/")

	a := trivialArtifacts("r1")
	require.NoError(t, s.PersistRun(context.Background(), "r1", a))
	first, err := s.GetRun(context.Background(), "r1")
	require.NoError(t, err)

	require.NoError(t, s.PersistRun(context.Background(), "r1", a))
	second, err := s.GetRun(context.Background(), "r1")
	require.NoError(t, err)

	require.Equal(t, first.Pages, second.Pages)
	require.Equal(t, first.Edges, second.Edges)
	require.Equal(t, first.Maps, second.Maps)
	require.Equal(t, first.Run.PagesAnalyzed, second.Run.PagesAnalyzed)
}

func TestDeleteRunCascadesAndIsIdempotent(t *testing.T) {
	s := NewMemory()
	newRun(t, s, "r1", "http://a.example/")
	require.NoError(t, s.PersistRun(context.Background(), "r1", trivialArtifacts("r1")))

	require.NoError(t, s.DeleteRun(context.Background(), "r1"))
	_, err := s.GetRun(context.Background(), "r1")
	require.ErrorIs(t, err, entity.ErrRunNotFound)
	_, err = s.GetSource(context.Background(), "r1", "http://a.example/")
	require.ErrorIs(t, err, entity.ErrRunNotFound)

	require.NoError(t, s.DeleteRun(context.Background(), "r1"))
}

func TestPersistRunRejectsMissingSeedBody(t *testing.T) {
	s := NewMemory()
	newRun(t, s, "r1", "http://a.example/")

	a := trivialArtifacts("r1")
	delete(a.Bodies, "http://a.example/") // seed fetched and non-leaf, body lost
	err := s.PersistRun(context.Background(), "r1", a)

	var inv *entity.ErrInvariantViolation
	require.ErrorAs(t, err, &inv)
}

func TestPersistRunRejectsParentCycle(t *testing.T) {
	s := NewMemory()
	newRun(t, s, "r1", "http://a.example/")

	a := trivialArtifacts("r1")
	a.Maps.ParentMap["http://a.example/x"] = "http://a.example/y"
	a.Maps.ParentMap["http://a.example/y"] = "http://a.example/x"
	err := s.PersistRun(context.Background(), "r1", a)

	var inv *entity.ErrInvariantViolation
	require.ErrorAs(t, err, &inv)
}

func TestSetRunStateLifecycle(t *testing.T) {
	s := NewMemory()
	newRun(t, s, "r1", "http://a.example/")
	ctx := context.Background()

	require.NoError(t, s.SetRunState(ctx, "r1", entity.RunRunning, ""))
	require.NoError(t, s.SetRunState(ctx, "r1", entity.RunCompleted, ""))

	// Terminal runs are immutable.
	err := s.SetRunState(ctx, "r1", entity.RunFailed, "late failure")
	var inv *entity.ErrInvariantViolation
	require.ErrorAs(t, err, &inv)

	bundle, err := s.GetRun(ctx, "r1")
	require.NoError(t, err)
	require.Equal(t, entity.RunCompleted, bundle.Run.State)
	require.NotNil(t, bundle.Run.StartedAt)
	require.NotNil(t, bundle.Run.CompletedAt)
}

func TestGetLinkDetail(t *testing.T) {
	s := NewMemory()
	newRun(t, s, "r1", "http://a.example/")
	require.NoError(t, s.PersistRun(context.Background(), "r1", trivialArtifacts("r1")))

	detail, err := s.GetLinkDetail(context.Background(), "r1", "http://a.example/x")
	require.NoError(t, err)
	require.Equal(t, "Seed", detail.ParentTitle)
	require.Equal(t, []string{"http://a.example/", "http://a.example/x"}, detail.Path)

	_, err = s.GetLinkDetail(context.Background(), "r1", "http://a.example/nope")
	require.ErrorIs(t, err, entity.ErrLinkNotFound)
}

func TestPathStatistics(t *testing.T) {
	s := NewMemory()
	newRun(t, s, "r1", "http://a.example/")
	require.NoError(t, s.PersistRun(context.Background(), "r1", trivialArtifacts("r1")))

	stats, err := s.PathStatistics(context.Background(), "r1")
	require.NoError(t, err)
	require.Equal(t, 3, stats.TotalURLs)
	require.Equal(t, 1, stats.URLsByDepth[0])
	require.Equal(t, 2, stats.URLsByDepth[1])
	require.Equal(t, 1, stats.MaxDepth)
}

func TestGetLinkDetailForSeedTargetedEdge(t *testing.T) {
	s := NewMemory()
	newRun(t, s, "r1", "http://a.example/")

	// /x links back to the seed: a real edge record, but the seed never
	// gains a parent_map entry.
	a := trivialArtifacts("r1")
	a.Edges = append(a.Edges, entity.EdgeRecord{
		RunID:     "r1",
		URL:       "http://a.example/",
		ParentURL: "http://a.example/x",
		Type:      entity.LinkStaticHTML,
		Status:    entity.StatusValid,
		StatusCode: intp(200),
	})
	require.NoError(t, s.PersistRun(context.Background(), "r1", a))

	detail, err := s.GetLinkDetail(context.Background(), "r1", "http://a.example/")
	require.NoError(t, err)
	require.Equal(t, "http://a.example/x", detail.Edge.ParentURL)
	require.Equal(t, []string{"http://a.example/"}, detail.Path)

	bundle, err := s.GetRun(context.Background(), "r1")
	require.NoError(t, err)
	require.Equal(t, 3, bundle.Run.LinksFound)
}
