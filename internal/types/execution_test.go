package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeStats(t *testing.T) {
	testCases := []struct {
		name       string
		executions []Execution
		expected   ExecutionStats
	}{
		{
			name:     "no executions",
			expected: ExecutionStats{},
		},
		{
			name: "mixed statuses",
			executions: []Execution{
				{Status: ExecutionStatusSuccess, DurationMs: 100},
				{Status: ExecutionStatusSuccess, DurationMs: 200},
				{Status: ExecutionStatusFailed, DurationMs: 300},
				{Status: ExecutionStatusSkipped, DurationMs: 0},
			},
			expected: ExecutionStats{
				Total:         4,
				Successful:    2,
				Failed:        1,
				Skipped:       1,
				SuccessRate:   50,
				AvgDurationMs: 150,
			},
		},
		{
			name: "all successful",
			executions: []Execution{
				{Status: ExecutionStatusSuccess, DurationMs: 10},
				{Status: ExecutionStatusSuccess, DurationMs: 11},
			},
			expected: ExecutionStats{
				Total:         2,
				Successful:    2,
				SuccessRate:   100,
				AvgDurationMs: 11, // 10.5 rounds up
			},
		},
		{
			name: "all skipped",
			executions: []Execution{
				{Status: ExecutionStatusSkipped},
				{Status: ExecutionStatusSkipped},
				{Status: ExecutionStatusSkipped},
			},
			expected: ExecutionStats{
				Total:   3,
				Skipped: 3,
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			stats := ComputeStats(tc.executions)
			assert.Equal(t, tc.expected, stats)
			assert.Equal(t, stats.Total, stats.Successful+stats.Failed+stats.Skipped)
		})
	}
}
