package response

import (
	"time"

	"github.com/user/webanalysis-engine/internal/entity"
	"github.com/user/webanalysis-engine/internal/store"
)

type StartRunResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	RunID   string `json:"run_id"`
}

type RunStatusResponse struct {
	RunID      string `json:"run_id"`
	State      string `json:"state"`
	Progress   int    `json:"progress"`
	Ready      bool   `json:"ready"`
	Successful bool   `json:"successful"`
	Failed     bool   `json:"failed"`
	Info       string `json:"info,omitempty"`
}

type RunResponse struct {
	RunID         string     `json:"run_id"`
	ApplicationID string     `json:"application_id"`
	SeedURL       string     `json:"seed_url"`
	State         string     `json:"state"`
	CreatedAt     time.Time  `json:"created_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	PagesAnalyzed int        `json:"pages_analyzed"`
	LinksFound    int        `json:"links_found"`
	BrokenCount   int        `json:"broken_count"`
	BlankCount    int        `json:"blank_count"`
	ContentCount  int        `json:"content_count"`
	OverallScore  float64    `json:"overall_score"`
}

type PageResponse struct {
	URL             string   `json:"url"`
	Title           string   `json:"title"`
	WordCount       int      `json:"word_count"`
	PageType        string   `json:"page_type"`
	HasHeader       bool     `json:"has_header"`
	HasFooter       bool     `json:"has_footer"`
	HasNavigation   bool     `json:"has_navigation"`
	StructureDigest string   `json:"structure_digest"`
	Depth           int      `json:"depth"`
	Path            []string `json:"path"`
	StructureIssues []string `json:"structure_issues,omitempty"`
}

type EdgeResponse struct {
	URL            string  `json:"url"`
	ParentURL      string  `json:"parent_url"`
	LinkType       string  `json:"link_type"`
	StatusCode     *int    `json:"status_code"`
	Status         string  `json:"status"`
	ResponseTimeMS int64   `json:"response_time_ms"`
	ErrorMessage   string  `json:"error_message,omitempty"`
	Title          string  `json:"title,omitempty"`
}

type MapsResponse struct {
	SeedURL     string              `json:"seed_url"`
	ParentMap   map[string]string   `json:"parent_map"`
	ChildrenMap map[string][]string `json:"children_map"`
	PathMap     map[string][]string `json:"path_map"`
}

type RunBundleResponse struct {
	Run   RunResponse    `json:"run"`
	Pages []PageResponse `json:"pages"`
	Edges []EdgeResponse `json:"edges"`
	Maps  MapsResponse   `json:"maps"`
}

type HighlightedLinkResponse struct {
	URL        string `json:"url"`
	Start      int    `json:"start"`
	End        int    `json:"end"`
	Type       string `json:"type"`
	StatusCode *int   `json:"status_code"`
	Status     string `json:"status"`
}

type SourceResponse struct {
	RequestedURL       string                    `json:"requested_url"`
	ActualSourcePage   string                    `json:"actual_source_page"`
	IsSourceFromParent bool                      `json:"is_source_from_parent"`
	SourceCode         string                    `json:"source_code"`
	TraversalPath      []string                  `json:"traversal_path"`
	HierarchyDepth     int                       `json:"hierarchy_depth"`
	HighlightedLinks   []HighlightedLinkResponse `json:"highlighted_links"`
}

type LinkDetailResponse struct {
	Edge        EdgeResponse `json:"edge"`
	ParentTitle string       `json:"parent_title"`
	Path        []string     `json:"path"`
}

type PathStatsResponse struct {
	URLsByDepth map[int]int `json:"urls_by_depth"`
	MaxDepth    int         `json:"max_depth"`
	TotalURLs   int         `json:"total_urls"`
}

// FromRun maps a run entity onto its DTO.
func FromRun(r entity.Run) RunResponse {
	return RunResponse{
		RunID:         r.ID,
		ApplicationID: r.ApplicationID,
		SeedURL:       r.SeedURL,
		State:         string(r.State),
		CreatedAt:     r.CreatedAt,
		StartedAt:     r.StartedAt,
		CompletedAt:   r.CompletedAt,
		ErrorMessage:  r.ErrorMessage,
		PagesAnalyzed: r.PagesAnalyzed,
		LinksFound:    r.LinksFound,
		BrokenCount:   r.BrokenCount,
		BlankCount:    r.BlankCount,
		ContentCount:  r.ContentCount,
		OverallScore:  r.OverallScore,
	}
}

// FromBundle maps a full run bundle onto its DTO.
func FromBundle(b *store.RunBundle) RunBundleResponse {
	out := RunBundleResponse{Run: FromRun(b.Run)}
	for _, p := range b.Pages {
		out.Pages = append(out.Pages, PageResponse{
			URL:             p.URL,
			Title:           p.Title,
			WordCount:       p.WordCount,
			PageType:        string(p.Type),
			HasHeader:       p.HasHeader,
			HasFooter:       p.HasFooter,
			HasNavigation:   p.HasNav,
			StructureDigest: p.StructureDigest,
			Depth:           p.Depth,
			Path:            p.Path,
			StructureIssues: p.StructureIssues,
		})
	}
	for _, e := range b.Edges {
		out.Edges = append(out.Edges, FromEdge(e))
	}
	if b.Maps != nil {
		out.Maps = FromMaps(b.Maps)
	}
	return out
}

// FromEdge maps an edge record onto its DTO.
func FromEdge(e entity.EdgeRecord) EdgeResponse {
	return EdgeResponse{
		URL:            e.URL,
		ParentURL:      e.ParentURL,
		LinkType:       string(e.Type),
		StatusCode:     e.StatusCode,
		Status:         string(e.Status),
		ResponseTimeMS: e.ResponseTime.Milliseconds(),
		ErrorMessage:   e.ErrorMessage,
		Title:          e.Title,
	}
}

// FromMaps maps the three views onto their DTO.
func FromMaps(m *entity.ParentChildMaps) MapsResponse {
	return MapsResponse{
		SeedURL:     m.SeedURL,
		ParentMap:   m.ParentMap,
		ChildrenMap: m.ChildrenMap,
		PathMap:     m.PathMap,
	}
}

// FromSource maps a hierarchical read result onto its DTO.
func FromSource(s *entity.SourceResult) SourceResponse {
	out := SourceResponse{
		RequestedURL:       s.RequestedURL,
		ActualSourcePage:   s.ActualSourcePage,
		IsSourceFromParent: s.IsSourceFromParent,
		SourceCode:         s.Body,
		TraversalPath:      s.TraversalPath,
		HierarchyDepth:     s.HierarchyDepth,
		HighlightedLinks:   []HighlightedLinkResponse{},
	}
	for _, h := range s.HighlightedLinks {
		out.HighlightedLinks = append(out.HighlightedLinks, HighlightedLinkResponse{
			URL:        h.URL,
			Start:      h.Start,
			End:        h.End,
			Type:       string(h.Type),
			StatusCode: h.StatusCode,
			Status:     string(h.Status),
		})
	}
	return out
}
