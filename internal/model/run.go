package model

import "time"

// ThreadOutcome is the terminal state of one thread within a run.
type ThreadOutcome string

const (
	OutcomeProcessed ThreadOutcome = "processed"
	OutcomeSkipped   ThreadOutcome = "skipped"
	OutcomeFailed    ThreadOutcome = "failed"
)

// ThreadResult records what happened to a single thread during a run.
type ThreadResult struct {
	ThreadID          string        `json:"thread_id"`
	Outcome           ThreadOutcome `json:"outcome"`
	SkipReason        string        `json:"skip_reason,omitempty"`
	NewPosts          int           `json:"new_posts"`
	ValidCount        int           `json:"valid_count"`
	Rescanned         bool          `json:"rescanned"`
	SnapshotComputed  bool          `json:"snapshot_computed"`
	NarrativeRefresh  bool          `json:"narrative_refresh"`
	AnalyticsUnlocked bool          `json:"analytics_unlocked"`
	Error             string        `json:"error,omitempty"`
	DurationMs        int64         `json:"duration_ms"`
}

// RunReport is the aggregate outcome of one analyzer invocation. A run always
// completes; individual thread failures land in Results, never abort the run.
type RunReport struct {
	ID         string         `json:"id"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Candidates int            `json:"candidates"`
	Processed  int            `json:"processed"`
	Skipped    int            `json:"skipped"`
	Failed     int            `json:"failed"`
	Results    []ThreadResult `json:"results"`
	Error      string         `json:"error,omitempty"`
}
