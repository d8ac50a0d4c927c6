package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/user/webanalysis-engine/internal/entity"
)

//go:embed schema.sql
var schemaSQL string

// Postgres backs the Store interface with PostgreSQL via pgx. Five tables
// keyed by run id; parent_map is the single persisted representation of
// the forest, children_map and path_map are derived on read.
type Postgres struct {
	db *pgxpool.Pool
}

// NewPostgres creates a Postgres store on an existing pool.
func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

// EnsureSchema applies the embedded schema. Idempotent.
func (s *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, schemaSQL)
	return err
}

func (s *Postgres) CreateRun(ctx context.Context, run *entity.Run, cfg entity.Config) error {
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO runs (run_id, application_id, seed_url, state, config, created_at)
		VALUES ($1, $2, $3, $4, $5, $6);
	`
	_, err = s.db.Exec(ctx, query, run.ID, run.ApplicationID, run.SeedURL, string(run.State), cfgJSON, run.CreatedAt)
	return err
}

func (s *Postgres) SetRunState(ctx context.Context, runID string, state entity.RunState, errMsg string) error {
	query := `
		UPDATE runs
		SET state = $2,
		    started_at = CASE WHEN $2 = 'running' THEN NOW() ELSE started_at END,
		    completed_at = CASE WHEN $2 IN ('completed', 'failed') THEN NOW() ELSE completed_at END,
		    error_message = CASE WHEN $2 = 'failed' THEN $3 ELSE error_message END
		WHERE run_id = $1 AND state NOT IN ('completed', 'failed');
	`
	tag, err := s.db.Exec(ctx, query, runID, string(state), errMsg)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM runs WHERE run_id = $1)`, runID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return entity.ErrRunNotFound
		}
		return &entity.ErrInvariantViolation{Reason: "run is terminal and immutable"}
	}
	return nil
}

func (s *Postgres) PersistRun(ctx context.Context, runID string, a Artifacts) error {
	if err := validateForest(a.Maps); err != nil {
		return err
	}
	keep, err := bodyKeepSet(a)
	if err != nil {
		return err
	}
	counters := recomputeCounters(a.Pages, a.Edges)

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// Delete-then-insert keeps re-issuing PersistRun with identical
	// inputs byte-identical in the store.
	for _, table := range []string{"pages", "edges", "parent_edges", "source_bodies"} {
		if _, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE run_id = $1`, table), runID); err != nil {
			return err
		}
	}

	for _, p := range a.Pages {
		pathJSON, err := json.Marshal(p.Path)
		if err != nil {
			return err
		}
		issuesJSON, err := json.Marshal(p.StructureIssues)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO pages (run_id, page_url, title, word_count, page_type, has_header, has_footer, has_navigation, structure_digest, depth, path, structure_issues)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12);
		`, runID, p.URL, p.Title, p.WordCount, string(p.Type), p.HasHeader, p.HasFooter, p.HasNav, p.StructureDigest, p.Depth, pathJSON, issuesJSON)
		if err != nil {
			return err
		}
	}

	for i, e := range a.Edges {
		_, err = tx.Exec(ctx, `
			INSERT INTO edges (run_id, url, parent_url, link_type, status_code, status, response_time_ms, error_message, title, position)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);
		`, runID, e.URL, e.ParentURL, string(e.Type), e.StatusCode, string(e.Status), e.ResponseTime.Milliseconds(), e.ErrorMessage, e.Title, i)
		if err != nil {
			return err
		}
	}

	// Every discovered non-seed URL has exactly one edge record, and the
	// edge list is already in discovery order, so it drives the
	// parent_edges positions. An edge targeting the seed is real link
	// data but never a parent_map row: the seed has no parent.
	for i, e := range a.Edges {
		if e.URL == a.Maps.SeedURL {
			continue
		}
		parent, ok := a.Maps.ParentMap[e.URL]
		if !ok {
			return &entity.ErrInvariantViolation{Reason: fmt.Sprintf("edge %s missing from parent map", e.URL)}
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO parent_edges (run_id, child_url, parent_url, position)
			VALUES ($1, $2, $3, $4);
		`, runID, e.URL, parent, i)
		if err != nil {
			return err
		}
	}

	for u := range keep {
		if _, err := tx.Exec(ctx, `
			INSERT INTO source_bodies (run_id, page_url, body) VALUES ($1, $2, $3);
		`, runID, u, a.Bodies[u]); err != nil {
			return err
		}
	}

	tag, err := tx.Exec(ctx, `
		UPDATE runs
		SET pages_analyzed = $2, links_found = $3, broken_count = $4, blank_count = $5, content_count = $6, overall_score = $7
		WHERE run_id = $1;
	`, runID, counters.PagesAnalyzed, counters.LinksFound, counters.BrokenCount, counters.BlankCount, counters.ContentCount, counters.OverallScore)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return entity.ErrRunNotFound
	}

	return tx.Commit(ctx)
}

func (s *Postgres) GetRun(ctx context.Context, runID string) (*RunBundle, error) {
	run, cfg, err := s.getRunRow(ctx, runID)
	if err != nil {
		return nil, err
	}

	bundle := &RunBundle{Run: *run, Config: *cfg}

	rows, err := s.db.Query(ctx, `
		SELECT page_url, title, word_count, page_type, has_header, has_footer, has_navigation, structure_digest, depth, path, structure_issues
		FROM pages WHERE run_id = $1 ORDER BY depth, page_url;
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		p := entity.PageRecord{RunID: runID}
		var pageType string
		var pathJSON, issuesJSON []byte
		if err := rows.Scan(&p.URL, &p.Title, &p.WordCount, &pageType, &p.HasHeader, &p.HasFooter, &p.HasNav, &p.StructureDigest, &p.Depth, &pathJSON, &issuesJSON); err != nil {
			return nil, err
		}
		p.Type = entity.PageType(pageType)
		if err := json.Unmarshal(pathJSON, &p.Path); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(issuesJSON, &p.StructureIssues); err != nil {
			return nil, err
		}
		bundle.Pages = append(bundle.Pages, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	bundle.Edges, err = s.edgesForRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	bundle.Maps, err = s.loadMaps(ctx, runID, run.SeedURL)
	if err != nil {
		return nil, err
	}
	return bundle, nil
}

func (s *Postgres) getRunRow(ctx context.Context, runID string) (*entity.Run, *entity.Config, error) {
	var run entity.Run
	var state string
	var cfgJSON []byte
	err := s.db.QueryRow(ctx, `
		SELECT run_id, application_id, seed_url, state, config, created_at, started_at, completed_at, error_message,
		       pages_analyzed, links_found, broken_count, blank_count, content_count, overall_score
		FROM runs WHERE run_id = $1;
	`, runID).Scan(
		&run.ID, &run.ApplicationID, &run.SeedURL, &state, &cfgJSON, &run.CreatedAt, &run.StartedAt, &run.CompletedAt, &run.ErrorMessage,
		&run.PagesAnalyzed, &run.LinksFound, &run.BrokenCount, &run.BlankCount, &run.ContentCount, &run.OverallScore,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, entity.ErrRunNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	run.State = entity.RunState(state)

	var cfg entity.Config
	if err := json.Unmarshal(cfgJSON, &cfg); err != nil {
		return nil, nil, err
	}
	return &run, &cfg, nil
}

func (s *Postgres) edgesForRun(ctx context.Context, runID string) ([]entity.EdgeRecord, error) {
	rows, err := s.db.Query(ctx, `
		SELECT url, parent_url, link_type, status_code, status, response_time_ms, error_message, title
		FROM edges WHERE run_id = $1 ORDER BY position;
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edges []entity.EdgeRecord
	for rows.Next() {
		e := entity.EdgeRecord{RunID: runID}
		var linkType, status string
		var respMS int64
		if err := rows.Scan(&e.URL, &e.ParentURL, &linkType, &e.StatusCode, &status, &respMS, &e.ErrorMessage, &e.Title); err != nil {
			return nil, err
		}
		e.Type = entity.LinkType(linkType)
		e.Status = entity.LinkStatus(status)
		e.ResponseTime = time.Duration(respMS) * time.Millisecond
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// loadMaps rebuilds the three views: parent_map and children_map straight
// from parent_edges rows in discovery order, path_map by a recursive walk
// from the seed.
func (s *Postgres) loadMaps(ctx context.Context, runID, seedURL string) (*entity.ParentChildMaps, error) {
	maps := entity.NewParentChildMaps(seedURL)

	rows, err := s.db.Query(ctx, `
		SELECT child_url, parent_url FROM parent_edges WHERE run_id = $1 ORDER BY position;
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var child, parent string
		if err := rows.Scan(&child, &parent); err != nil {
			return nil, err
		}
		maps.ParentMap[child] = parent
		maps.ChildrenMap[parent] = append(maps.ChildrenMap[parent], child)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	pathRows, err := s.db.Query(ctx, `
		WITH RECURSIVE paths AS (
			SELECT r.seed_url AS url, ARRAY[r.seed_url] AS path
			FROM runs r WHERE r.run_id = $1
			UNION ALL
			SELECT pe.child_url, p.path || pe.child_url
			FROM parent_edges pe
			JOIN paths p ON pe.parent_url = p.url
			WHERE pe.run_id = $1
		)
		SELECT url, path FROM paths;
	`, runID)
	if err != nil {
		return nil, err
	}
	defer pathRows.Close()
	for pathRows.Next() {
		var u string
		var path []string
		if err := pathRows.Scan(&u, &path); err != nil {
			return nil, err
		}
		maps.PathMap[u] = path
	}
	return maps, pathRows.Err()
}

func (s *Postgres) GetSource(ctx context.Context, runID, pageURL string) (*entity.SourceResult, error) {
	body, found, err := s.bodyAt(ctx, runID, pageURL)
	if err != nil {
		return nil, err
	}
	if found {
		links, err := s.highlightsFor(ctx, runID, pageURL, body)
		if err != nil {
			return nil, err
		}
		return &entity.SourceResult{
			RequestedURL:     pageURL,
			ActualSourcePage: pageURL,
			Body:             body,
			TraversalPath:    []string{pageURL},
			HighlightedLinks: links,
		}, nil
	}

	var maxCrawlDepth int
	err = s.db.QueryRow(ctx, `
		SELECT COALESCE((config->>'max_crawl_depth')::int, 5) FROM runs WHERE run_id = $1;
	`, runID).Scan(&maxCrawlDepth)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, entity.ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}

	maxWalk := maxCrawlDepth + traversalSlack
	cur := pageURL
	path := []string{pageURL}
	depth := 0
	for {
		var parent string
		err := s.db.QueryRow(ctx, `
			SELECT parent_url FROM parent_edges WHERE run_id = $1 AND child_url = $2;
		`, runID, cur).Scan(&parent)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, entity.ErrSourceNotFound
		}
		if err != nil {
			return nil, err
		}
		cur = parent
		path = append(path, cur)
		depth++
		if depth > maxWalk {
			return nil, entity.ErrSourceNotFound
		}

		body, found, err := s.bodyAt(ctx, runID, cur)
		if err != nil {
			return nil, err
		}
		if found {
			links, err := s.highlightsFor(ctx, runID, cur, body)
			if err != nil {
				return nil, err
			}
			return &entity.SourceResult{
				RequestedURL:       pageURL,
				ActualSourcePage:   cur,
				IsSourceFromParent: true,
				Body:               body,
				TraversalPath:      path,
				HierarchyDepth:     depth,
				HighlightedLinks:   links,
			}, nil
		}
	}
}

func (s *Postgres) bodyAt(ctx context.Context, runID, pageURL string) (string, bool, error) {
	var body string
	err := s.db.QueryRow(ctx, `
		SELECT body FROM source_bodies WHERE run_id = $1 AND page_url = $2;
	`, runID, pageURL).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return body, true, nil
}

func (s *Postgres) highlightsFor(ctx context.Context, runID, sourcePage, body string) ([]entity.HighlightedLink, error) {
	edges, err := s.edgesForRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	return computeHighlights(body, edges, sourcePage), nil
}

func (s *Postgres) GetParentChild(ctx context.Context, runID string) (*entity.ParentChildMaps, error) {
	var seedURL string
	err := s.db.QueryRow(ctx, `SELECT seed_url FROM runs WHERE run_id = $1`, runID).Scan(&seedURL)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, entity.ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.loadMaps(ctx, runID, seedURL)
}

func (s *Postgres) GetLinkDetail(ctx context.Context, runID, url string) (*LinkDetail, error) {
	e := entity.EdgeRecord{RunID: runID}
	var linkType, status string
	var respMS int64
	err := s.db.QueryRow(ctx, `
		SELECT url, parent_url, link_type, status_code, status, response_time_ms, error_message, title
		FROM edges WHERE run_id = $1 AND url = $2;
	`, runID, url).Scan(&e.URL, &e.ParentURL, &linkType, &e.StatusCode, &status, &respMS, &e.ErrorMessage, &e.Title)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, entity.ErrLinkNotFound
	}
	if err != nil {
		return nil, err
	}
	e.Type = entity.LinkType(linkType)
	e.Status = entity.LinkStatus(status)
	e.ResponseTime = time.Duration(respMS) * time.Millisecond

	detail := &LinkDetail{Edge: e}

	err = s.db.QueryRow(ctx, `
		SELECT title FROM pages WHERE run_id = $1 AND page_url = $2;
	`, runID, e.ParentURL).Scan(&detail.ParentTitle)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	err = s.db.QueryRow(ctx, `
		WITH RECURSIVE paths AS (
			SELECT r.seed_url AS url, ARRAY[r.seed_url] AS path
			FROM runs r WHERE r.run_id = $1
			UNION ALL
			SELECT pe.child_url, p.path || pe.child_url
			FROM parent_edges pe
			JOIN paths p ON pe.parent_url = p.url
			WHERE pe.run_id = $1
		)
		SELECT path FROM paths WHERE url = $2;
	`, runID, url).Scan(&detail.Path)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	return detail, nil
}

func (s *Postgres) PathStatistics(ctx context.Context, runID string) (*PathStats, error) {
	var exists bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM runs WHERE run_id = $1)`, runID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, entity.ErrRunNotFound
	}

	rows, err := s.db.Query(ctx, `
		WITH RECURSIVE paths AS (
			SELECT r.seed_url AS url, ARRAY[r.seed_url] AS path
			FROM runs r WHERE r.run_id = $1
			UNION ALL
			SELECT pe.child_url, p.path || pe.child_url
			FROM parent_edges pe
			JOIN paths p ON pe.parent_url = p.url
			WHERE pe.run_id = $1
		)
		SELECT array_length(path, 1) - 1 AS depth, COUNT(*) FROM paths GROUP BY 1;
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := &PathStats{URLsByDepth: make(map[int]int)}
	for rows.Next() {
		var depth, count int
		if err := rows.Scan(&depth, &count); err != nil {
			return nil, err
		}
		stats.URLsByDepth[depth] = count
		stats.TotalURLs += count
		if depth > stats.MaxDepth {
			stats.MaxDepth = depth
		}
	}
	return stats, rows.Err()
}

func (s *Postgres) DeleteRun(ctx context.Context, runID string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM runs WHERE run_id = $1`, runID)
	return err
}
