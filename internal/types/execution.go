package types

import (
	"math"
	"time"
)

type ExecutionStatus string

const (
	ExecutionStatusSuccess ExecutionStatus = "success"
	ExecutionStatusFailed  ExecutionStatus = "failed"
	ExecutionStatusSkipped ExecutionStatus = "skipped"
)

// Execution is one firing attempt of a trigger. Rows are append-only; the
// scheduler never updates or deletes them.
type Execution struct {
	ID         int64           `json:"id"`
	TriggerID  string          `json:"trigger_id"`
	ExecutedAt time.Time       `json:"executed_at"`
	Status     ExecutionStatus `json:"status"`
	DurationMs int64           `json:"duration_ms"`
	Error      string          `json:"error,omitempty"`
}

type ExecutionStats struct {
	Total         int     `json:"total"`
	Successful    int     `json:"successful"`
	Failed        int     `json:"failed"`
	Skipped       int     `json:"skipped"`
	SuccessRate   float64 `json:"success_rate"`
	AvgDurationMs int64   `json:"avg_duration_ms"`
}

// ComputeStats derives aggregate stats from a set of execution records.
func ComputeStats(executions []Execution) ExecutionStats {
	stats := ExecutionStats{Total: len(executions)}
	if stats.Total == 0 {
		return stats
	}
	var totalDuration int64
	for _, e := range executions {
		switch e.Status {
		case ExecutionStatusSuccess:
			stats.Successful++
		case ExecutionStatusFailed:
			stats.Failed++
		case ExecutionStatusSkipped:
			stats.Skipped++
		}
		totalDuration += e.DurationMs
	}
	stats.SuccessRate = float64(stats.Successful) / float64(stats.Total) * 100
	stats.AvgDurationMs = int64(math.Round(float64(totalDuration) / float64(stats.Total)))
	return stats
}
