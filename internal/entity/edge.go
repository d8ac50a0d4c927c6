package entity

import "time"

// LinkType is the category a discovered hyperlink was extracted under.
type LinkType string

const (
	LinkStaticHTML LinkType = "static_html"
	LinkDynamicJS  LinkType = "dynamic_js"
	LinkResource   LinkType = "resource"
	LinkExternal   LinkType = "external"
)

// LinkStatus is the validation outcome of an edge.
type LinkStatus string

const (
	StatusValid       LinkStatus = "valid"
	StatusBroken      LinkStatus = "broken"
	StatusRedirect    LinkStatus = "redirect"
	StatusTimeout     LinkStatus = "timeout"
	StatusRateLimited LinkStatus = "rate_limited"
	StatusUnknown     LinkStatus = "unknown"
)

// EdgeRecord is a discovered hyperlink, validated or not, keyed by
// (run_id, url). ParentURL identifies the page on which the edge was first
// observed.
type EdgeRecord struct {
	RunID        string
	URL          string
	ParentURL    string
	Type         LinkType
	StatusCode   *int
	Status       LinkStatus
	ResponseTime time.Duration
	ErrorMessage string
	Title        string
}
