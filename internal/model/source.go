package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// Cadence is how often a job is expected to run.
type Cadence string

const (
	CadenceDaily     Cadence = "daily"
	CadenceWeekly    Cadence = "weekly"
	CadenceMonthly   Cadence = "monthly"
	CadenceQuarterly Cadence = "quarterly"
)

// ParseCadence validates a cadence name.
func ParseCadence(s string) (Cadence, error) {
	switch c := Cadence(s); c {
	case CadenceDaily, CadenceWeekly, CadenceMonthly, CadenceQuarterly:
		return c, nil
	default:
		return "", eris.Errorf("model: unknown cadence %q (valid: daily, weekly, monthly, quarterly)", s)
	}
}

// SourceHealth is the last known state of a job. One row per job name.
type SourceHealth struct {
	SourceName   string    `json:"source_name"`
	LastScrapeAt time.Time `json:"last_scrape_at"`
	LastStatus   RunStatus `json:"last_status"`
	Cadence      Cadence   `json:"cadence"`
}
