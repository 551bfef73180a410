package domain

import "time"

type Checkpoint struct {
	ProcessedIDs []string  `json:"processed_ids"`
	CurrentIndex int       `json:"current_index"`
	TotalFiles   int       `json:"total_files"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

// RunStats tracks separate counters for each terminal item state of one batch run.
type RunStats struct {
	RunID            string
	Total            int
	Evaluated        int
	AlreadyProcessed int
	SkippedInvalid   int
	Malformed        int
	Failed           int
	PersistFailed    int
	// Errors holds one line per failed item, for the run summary.
	Errors []string
}
