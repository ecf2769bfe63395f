package domain

import "time"

// Repository is a snapshot of one of the owner's repositories, replaced
// wholesale on every refresh. FullName ("owner/name") is the identity.
type Repository struct {
	FullName    string `json:"full_name" gorm:"primaryKey"`
	Owner       string `json:"owner"`
	Name        string `json:"name"`
	URL         string `json:"url"`
	Description string `json:"description"`

	Language  string         `json:"language"`
	Languages map[string]int `json:"languages" gorm:"serializer:json"` // bytes per language
	Topics    []string       `json:"topics" gorm:"serializer:json"`

	Stars        int `json:"stars"`
	Forks        int `json:"forks"`
	OpenIssues   int `json:"open_issues"`
	SizeKB       int `json:"size_kb"`
	ReadmeLength int `json:"readme_length"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	PushedAt  time.Time `json:"pushed_at"`

	IsFork     bool `json:"is_fork"`
	IsArchived bool `json:"is_archived"`
	IsPrivate  bool `json:"is_private"`

	// FetchedAt tracks staleness of this snapshot in the local cache.
	FetchedAt time.Time `json:"fetched_at"`
}

// AnalysisResult is derived from exactly one Repository snapshot.
// Given the same snapshot and scoring configuration it is always identical,
// which is what makes caching and re-runs idempotent.
type AnalysisResult struct {
	RepoFullName   string `json:"repo_full_name" gorm:"primaryKey"`
	ScoringVersion string `json:"scoring_version"`

	Complexity    float64 `json:"complexity"`     // [0,1]
	BusinessValue float64 `json:"business_value"` // [0,1]
	CombinedScore float64 `json:"combined_score"` // [0,1]

	// AICollaboration is a heuristic call, not a guarantee.
	AICollaboration bool    `json:"ai_collaboration"`
	AIConfidence    float64 `json:"ai_confidence"` // [0,1]

	ProjectType     string   `json:"project_type"`
	TechStack       []string `json:"tech_stack" gorm:"serializer:json"`
	KeyFeatures     []string `json:"key_features" gorm:"serializer:json"`
	RoleSuggestions []string `json:"role_suggestions" gorm:"serializer:json"`
	EstimatedEffort string   `json:"estimated_effort"`

	AnalyzedAt time.Time `json:"analyzed_at"`
}

// ReportEntry pairs a repository snapshot with its analysis. Reports own
// their entries; later cache refreshes never change a compiled report.
type ReportEntry struct {
	Repo     Repository     `json:"repo"`
	Analysis AnalysisResult `json:"analysis"`
}

// ReportStats are the aggregate numbers over all scored (unfiltered) repos.
type ReportStats struct {
	TotalProjects      int            `json:"total_projects"`
	RecentUpdates      int            `json:"recent_updates"`
	SignificantUpdates int            `json:"significant_updates"`
	AIProjects         int            `json:"ai_projects"`
	AvgComplexity      float64        `json:"avg_complexity"`
	Languages          map[string]int `json:"languages"`
	ProjectTypes       map[string]int `json:"project_types"`
}

// ChangeReason explains why a repository landed in Delta.Changed.
type ChangeReason string

const (
	ChangeBucketShift ChangeReason = "complexity-bucket-shift"
	ChangeSignificant ChangeReason = "crossed-significant-threshold"
	ChangeHighValue   ChangeReason = "crossed-high-value-threshold"
)

type ChangedRepo struct {
	FullName  string       `json:"full_name"`
	PrevScore float64      `json:"prev_score"`
	NewScore  float64      `json:"new_score"`
	Reason    ChangeReason `json:"reason"`
}

// Delta is the difference between two consecutive reports. It is recorded
// on the report even when no notification goes out.
type Delta struct {
	Added   []string      `json:"added"`
	Removed []string      `json:"removed"`
	Changed []ChangedRepo `json:"changed"`
}

// Affected returns the names of repositories that are new or changed,
// in deterministic order.
func (d Delta) Affected() []string {
	out := make([]string, 0, len(d.Added)+len(d.Changed))
	out = append(out, d.Added...)
	for _, c := range d.Changed {
		out = append(out, c.FullName)
	}
	return out
}

// RunOutcome is the recorded result of a single analysis run.
type RunOutcome string

const (
	OutcomeSuccess RunOutcome = "success"
	OutcomePartial RunOutcome = "partial"
	OutcomeFailed  RunOutcome = "failed"
)

// SkippedRepo records a repository excluded from a report because its
// scoring failed, together with the reason. Filter-policy exclusions are
// not recorded here; they are policy, not errors.
type SkippedRepo struct {
	FullName string `json:"full_name"`
	Reason   string `json:"reason"`
}

// Report is the immutable output of one run. A new run produces a new
// Report; existing reports are never mutated.
type Report struct {
	RunID       string    `json:"run_id"`
	GeneratedAt time.Time `json:"generated_at"`

	// Entries are ranked by combined score descending, ties broken by most
	// recent push first, then name ascending.
	Entries []ReportEntry `json:"entries"`

	Stats       ReportStats    `json:"stats"`
	Featured    []string       `json:"featured"` // full names, top-K of Entries
	SkillMatrix map[string]int `json:"skill_matrix"`

	Suggestions     []string `json:"suggestions"`
	Recommendations []string `json:"recommendations"`

	Delta Delta `json:"delta"`

	Outcome       RunOutcome    `json:"outcome"`
	OutcomeReason string        `json:"outcome_reason,omitempty"`
	Skipped       []SkippedRepo `json:"skipped,omitempty"`
}

// Entry returns the entry for a full name, or nil.
func (r *Report) Entry(fullName string) *ReportEntry {
	for i := range r.Entries {
		if r.Entries[i].Repo.FullName == fullName {
			return &r.Entries[i]
		}
	}
	return nil
}

// FeaturedEntries resolves the featured names against the ranked entries.
func (r *Report) FeaturedEntries() []ReportEntry {
	var out []ReportEntry
	for _, name := range r.Featured {
		if e := r.Entry(name); e != nil {
			out = append(out, *e)
		}
	}
	return out
}

// EventOutcome is the terminal state of one notification attempt.
type EventOutcome string

const (
	EventSent       EventOutcome = "sent"
	EventFailed     EventOutcome = "failed"
	EventSuppressed EventOutcome = "suppressed-duplicate"
)

// NotificationEvent is the durable record of one dispatch decision per
// channel. Suppression looks these up to avoid re-alerting on unchanged
// conditions inside the cooldown window.
type NotificationEvent struct {
	ID           string       `json:"id" gorm:"primaryKey"`
	Channel      string       `json:"channel"`
	TriggerClass string       `json:"trigger_class"`
	Fingerprint  string       `json:"fingerprint" gorm:"index"`
	Summary      string       `json:"summary"`
	DispatchedAt time.Time    `json:"dispatched_at"`
	Outcome      EventOutcome `json:"outcome"`
	Error        string       `json:"error,omitempty"`
}

// ScheduleState is the single persisted row of scheduler bookkeeping.
// It is updated after every run attempt, success or failure, and only
// reset by explicit operator action.
type ScheduleState struct {
	ID uint `json:"-" gorm:"primaryKey"`

	LastSuccessAt *time.Time `json:"last_success_at"`
	LastAttemptAt *time.Time `json:"last_attempt_at"`
	LastOutcome   RunOutcome `json:"last_outcome"`
	LastReason    string     `json:"last_reason"`

	// NextFire holds the next scheduled trigger per cadence name.
	NextFire map[string]time.Time `json:"next_fire" gorm:"serializer:json"`

	RunInProgress bool      `json:"run_in_progress"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// RecordAttempt folds one run attempt into the state.
func (s *ScheduleState) RecordAttempt(at time.Time, outcome RunOutcome, reason string) {
	t := at
	s.LastAttemptAt = &t
	s.LastOutcome = outcome
	s.LastReason = reason
	if outcome != OutcomeFailed {
		s.LastSuccessAt = &t
	}
	s.UpdatedAt = at
}

// Notification is the channel-agnostic message handed to each configured
// channel. All renderings of a run carry the same information.
type Notification struct {
	Subject  string
	Body     string // long-form plain text
	Markdown string // lightweight markup
	HTML     string // self-contained document for mail clients
	Report   *Report
}
