package entity

import "time"

// RunState is the lifecycle state of a Run.
type RunState string

const (
	RunPending   RunState = "pending"
	RunRunning   RunState = "running"
	RunCompleted RunState = "completed"
	RunFailed    RunState = "failed"
)

// Run is one invocation of the engine against one seed URL and one Config.
type Run struct {
	ID            string
	ApplicationID string
	SeedURL       string
	State         RunState
	CreatedAt     time.Time
	StartedAt     *time.Time
	CompletedAt   *time.Time
	ErrorMessage  string

	PagesAnalyzed int
	LinksFound    int
	BrokenCount   int
	BlankCount    int
	ContentCount  int
	OverallScore  float64
}

// Counters holds the five aggregate counters and overall score as
// recomputed from the per-record tables, per the invariant that reported
// totals equal the sums of persisted per-URL records.
type Counters struct {
	PagesAnalyzed int
	LinksFound    int
	BrokenCount   int
	BlankCount    int
	ContentCount  int
	OverallScore  float64
}

// Apply writes recomputed counters onto the run.
func (r *Run) Apply(c Counters) {
	r.PagesAnalyzed = c.PagesAnalyzed
	r.LinksFound = c.LinksFound
	r.BrokenCount = c.BrokenCount
	r.BlankCount = c.BlankCount
	r.ContentCount = c.ContentCount
	r.OverallScore = c.OverallScore
}
