package model

// Stage names a point in the scrape lifecycle reported to progress callbacks.
type Stage string

const (
	StageInitialization    Stage = "initialization"
	StageProviderSelection Stage = "provider-selection"
	StageProviderAttempt   Stage = "provider-attempt"
	StageProviderFailed    Stage = "provider-failed"
	StageSuccess           Stage = "success"
	StageCompleteFailure   Stage = "complete-failure"
	StageCache             Stage = "cache"
	StageBudgetExceeded    Stage = "budget-exceeded"
)

// Progress is one progress report. Percent never decreases within a scrape.
type Progress struct {
	Stage   Stage          `json:"stage"`
	Percent float64        `json:"percent"`
	Details map[string]any `json:"details,omitempty"`
}

// ProgressFunc receives progress reports. It must not block.
type ProgressFunc func(Progress)
