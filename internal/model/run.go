package model

import "time"

// RunStatus represents the current state of a pulse run.
type RunStatus string

const (
	RunStatusQueued      RunStatus = "queued"
	RunStatusFetching    RunStatus = "fetching"
	RunStatusIngesting   RunStatus = "ingesting"
	RunStatusDiscovering RunStatus = "discovering"
	RunStatusClassifying RunStatus = "classifying"
	RunStatusAssembling  RunStatus = "assembling"
	RunStatusReporting   RunStatus = "reporting"
	RunStatusComplete    RunStatus = "complete"
	RunStatusFailed      RunStatus = "failed"
)

// PhaseStatus represents the current state of a pipeline phase.
type PhaseStatus string

const (
	PhaseStatusRunning  PhaseStatus = "running"
	PhaseStatusComplete PhaseStatus = "complete"
	PhaseStatusFailed   PhaseStatus = "failed"
	PhaseStatusSkipped  PhaseStatus = "skipped"
)

// PhaseResult holds the outcome of a single pipeline phase.
type PhaseResult struct {
	Name     string      `json:"name"`
	Status   PhaseStatus `json:"status"`
	Duration int64       `json:"duration_ms"`
	Error    string      `json:"error,omitempty"`
}

// RunStats counts what happened to reviews on the way through a run. The
// skip and fallback counters are the consumer's confidence gauge: a pulse
// built mostly from fallback classifications says so here.
type RunStats struct {
	Fetched           map[Source]int `json:"fetched"`
	FetchFailures     map[Source]int `json:"fetch_failures"`
	SkippedMalformed  int            `json:"skipped_malformed"`
	OutsideWindow     int            `json:"outside_window"`
	DuplicatesDropped int            `json:"duplicates_dropped"`
	Ingested          int            `json:"ingested"`
	Classified        int            `json:"classified"`
	FallbackThemed    int            `json:"fallback_themed"`
	NoIssue           int            `json:"no_issue"`
	DiscoveryFellBack bool           `json:"discovery_fell_back"`
}

// AddFetched records n reviews fetched from a source.
func (s *RunStats) AddFetched(src Source, n int) {
	if s.Fetched == nil {
		s.Fetched = make(map[Source]int)
	}
	s.Fetched[src] += n
}

// AddFetchFailure records a failed fetch attempt against a source.
func (s *RunStats) AddFetchFailure(src Source) {
	if s.FetchFailures == nil {
		s.FetchFailures = make(map[Source]int)
	}
	s.FetchFailures[src]++
}

// TokenUsage tracks token consumption across LLM calls.
type TokenUsage struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	Cost         float64 `json:"cost"`
}

// Add merges token usage from another instance.
func (t *TokenUsage) Add(other TokenUsage) {
	t.InputTokens += other.InputTokens
	t.OutputTokens += other.OutputTokens
	t.Cost += other.Cost
}

// RunRecord is the persisted bookkeeping for one pulse run.
type RunRecord struct {
	ID        string        `json:"id"`
	Period    Window        `json:"period"`
	Status    RunStatus     `json:"status"`
	Phases    []PhaseResult `json:"phases"`
	Stats     RunStats      `json:"stats"`
	Usage     TokenUsage    `json:"usage"`
	Error     string        `json:"error,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}
