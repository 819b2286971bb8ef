package model

import "time"

// TrendDirection classifies the trajectory of a driver's scores.
type TrendDirection string

// Trend directions. Scores are risk oriented, so a rising slope degrades.
const (
	TrendInsufficientData TrendDirection = "INSUFFICIENT_DATA"
	TrendImproving        TrendDirection = "IMPROVING"
	TrendStable           TrendDirection = "STABLE"
	TrendDegrading        TrendDirection = "DEGRADING"
)

// TrendSnapshot is the trend view attached to a result.
type TrendSnapshot struct {
	Direction  TrendDirection `json:"direction"`
	Slope      float64        `json:"slope"`
	WindowSize int            `json:"window_size"`
	Current    float64        `json:"current"`
	Mean       float64        `json:"mean"`
	Variance   float64        `json:"variance"`
	Confidence float64        `json:"confidence"`
}

// HistoryPoint is the summary of one past result.
type HistoryPoint struct {
	TripID string    `json:"trip_id"`
	Score  float64   `json:"score"`
	Tier   string    `json:"tier"`
	At     time.Time `json:"at"`
}
