package marketdata

import "time"

// QualityReport is the outcome of one validation pass over a series.
// Reports are diagnostic artifacts produced fresh per call; they are
// never persisted as authoritative state.
type QualityReport struct {
	Code       string     `json:"code"`
	SeriesType SeriesType `json:"series_type"`

	Valid     bool      `json:"valid"`
	Errors    []string  `json:"errors,omitempty"`
	Warnings  []string  `json:"warnings,omitempty"`
	Anomalies []Anomaly `json:"anomalies,omitempty"`
	Gaps      []Gap     `json:"gaps,omitempty"`

	Stats SeriesStats `json:"stats"`
}

// Anomaly is one flagged outlier. Warnings, never hard failures: the
// caller decides whether to quarantine or accept.
type Anomaly struct {
	Code      string    `json:"code"`
	Timestamp time.Time `json:"timestamp"`
	Column    string    `json:"column"`
	Value     float64   `json:"value"`
	Reason    string    `json:"reason"`
}

// Gap is a detected hole between two adjacent bars.
type Gap struct {
	Start       time.Time     `json:"start"`
	End         time.Time     `json:"end"`
	MissingDays int           `json:"missing_days,omitempty"`
	Span        time.Duration `json:"span,omitempty"`
}

// SeriesStats summarizes the validated series.
type SeriesStats struct {
	Rows       int       `json:"rows"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	CloseMean  float64   `json:"close_mean"`
	CloseStd   float64   `json:"close_std"`
	CloseMin   float64   `json:"close_min"`
	CloseMax   float64   `json:"close_max"`
	VolumeMean float64   `json:"volume_mean"`
	VolumeMax  int64     `json:"volume_max"`
}

// Score condenses the report into a 0-100 quality score: errors weigh
// heaviest, then gaps and warnings, anomalies are capped so a long
// history with a handful of outliers still scores well.
func (r *QualityReport) Score() int {
	score := 100
	score -= len(r.Errors) * 10
	score -= len(r.Warnings) * 5
	score -= len(r.Gaps) * 5
	anomalyPenalty := len(r.Anomalies) * 2
	if anomalyPenalty > 20 {
		anomalyPenalty = 20
	}
	score -= anomalyPenalty
	if score < 0 {
		score = 0
	}
	return score
}
