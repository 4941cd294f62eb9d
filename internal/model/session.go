package model

import "time"

// SessionStatus represents the lifecycle state of a scrape session.
// Transitions are monotone: PENDING → RUNNING → {COMPLETED, FAILED, CANCELLED}.
type SessionStatus string

const (
	SessionPending   SessionStatus = "pending"
	SessionRunning   SessionStatus = "running"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
	SessionCancelled SessionStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s SessionStatus) Terminal() bool {
	switch s {
	case SessionCompleted, SessionFailed, SessionCancelled:
		return true
	default:
		return false
	}
}

// CanTransition reports whether moving from s to next is a legal, forward-only
// state machine step.
func (s SessionStatus) CanTransition(next SessionStatus) bool {
	switch s {
	case SessionPending:
		return next == SessionRunning || next == SessionFailed || next == SessionCancelled
	case SessionRunning:
		return next.Terminal()
	default:
		return false
	}
}

// ErrorType labels an entry in a session's error list per the taxonomy.
type ErrorType string

const (
	ErrConfiguration     ErrorType = "configuration"
	ErrAuthentication    ErrorType = "authentication"
	ErrNavigationTimeout ErrorType = "navigation_timeout"
	ErrExtraction        ErrorType = "extraction"
	ErrPersistence       ErrorType = "persistence"
	ErrRateLimit         ErrorType = "rate_limit"
)

// SessionError is one entry in a session's ordered error list.
type SessionError struct {
	Type      ErrorType `json:"type"`
	Context   string    `json:"context"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// KeywordGroup is a named set of synonyms sharing one score bonus. The bonus
// is awarded at most once per group regardless of how many synonyms match.
type KeywordGroup struct {
	Name  string   `json:"name" yaml:"name" mapstructure:"name"`
	Terms []string `json:"terms" yaml:"terms" mapstructure:"terms"`
	Bonus int      `json:"bonus" yaml:"bonus" mapstructure:"bonus"`
}

// ScoringConfig holds every weight and threshold used by the relevance
// scorer. The hand-tuned defaults live in scorer.DefaultScoringConfig; none
// of these values are constants anywhere in scoring code.
type ScoringConfig struct {
	TargetRegions       []string       `json:"target_regions" yaml:"target_regions" mapstructure:"target_regions"`
	PriorityRegions     []string       `json:"priority_regions" yaml:"priority_regions" mapstructure:"priority_regions"`
	RegionBonus         int            `json:"region_bonus" yaml:"region_bonus" mapstructure:"region_bonus"`
	PriorityRegionBonus int            `json:"priority_region_bonus" yaml:"priority_region_bonus" mapstructure:"priority_region_bonus"`
	NoMatchPenalty      int            `json:"no_match_penalty" yaml:"no_match_penalty" mapstructure:"no_match_penalty"`
	KeywordGroups       []KeywordGroup `json:"keyword_groups" yaml:"keyword_groups" mapstructure:"keyword_groups"`
	HighThreshold       int            `json:"high_threshold" yaml:"high_threshold" mapstructure:"high_threshold"`
	MediumThreshold     int            `json:"medium_threshold" yaml:"medium_threshold" mapstructure:"medium_threshold"`
	LowThreshold        int            `json:"low_threshold" yaml:"low_threshold" mapstructure:"low_threshold"`
}

// Profile is the full configuration for one scrape session against one
// source: what to search for, how far to go, how politely to go, and how to
// score what comes back.
type Profile struct {
	Keywords           []string      `json:"keywords" yaml:"keywords" mapstructure:"keywords"`
	MaxPages           int           `json:"max_pages" yaml:"max_pages" mapstructure:"max_pages"`
	RequestDelay       time.Duration `json:"request_delay" yaml:"request_delay" mapstructure:"request_delay"`
	CheckpointInterval int           `json:"checkpoint_interval" yaml:"checkpoint_interval" mapstructure:"checkpoint_interval"`
	Scoring            ScoringConfig `json:"scoring" yaml:"scoring" mapstructure:"scoring"`
}

// ScrapeSession is one bounded execution of a scrape against one source.
// Owned exclusively by the orchestrator; everything else sees snapshots.
type ScrapeSession struct {
	ID               string         `json:"id"`
	Source           string         `json:"source"`
	Status           SessionStatus  `json:"status"`
	StartedAt        time.Time      `json:"started_at"`
	CompletedAt      *time.Time     `json:"completed_at,omitempty"`
	PagesProcessed   int            `json:"pages_processed"`
	RecordsFound     int            `json:"records_found"`
	RecordsPersisted int            `json:"records_persisted"`
	Errors           []SessionError `json:"errors,omitempty"`
	Profile          Profile        `json:"profile"`
}

// Checkpoint is a durable progress snapshot enabling resume without
// reprocessing. Seq is monotonically increasing per session.
type Checkpoint struct {
	ID           string         `json:"id"`
	SessionID    string         `json:"session_id"`
	Seq          int            `json:"seq"`
	KeywordIndex int            `json:"keyword_index"`
	Page         int            `json:"page"`
	Processed    int            `json:"processed"`
	Records      []TenderRecord `json:"records,omitempty"`
	Errors       []SessionError `json:"errors,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}
