package runner

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-testhost/types"
)

func TestResultCollector_RecordSummary(t *testing.T) {
	collector := NewResultCollector("run-1")

	require.NoError(t, collector.RecordSummary("b.test", types.ExecutionSummary{Total: 2, Failed: 1}))
	require.NoError(t, collector.RecordSummary("a.test", types.ExecutionSummary{Total: 3, Skipped: 1, Time: time.Second}))

	err := collector.RecordSummary("a.test", types.ExecutionSummary{Total: 9})
	require.Error(t, err)
	assert.True(t, IsDuplicateKeyError(err))
	assert.Equal(t, 2, collector.Len())

	summary := collector.Finalize(5 * time.Second)
	require.NotNil(t, summary)
	assert.Equal(t, "run-1", summary.RunID)
	assert.Equal(t, 5*time.Second, summary.Elapsed)
	require.Len(t, summary.Assemblies, 2)
	assert.Equal(t, "a.test", summary.Assemblies[0].Key, "assemblies should be sorted by key")
	assert.Equal(t, 3, summary.Assemblies[0].Summary.Total, "the duplicate must not replace the first summary")
	assert.Equal(t, "b.test", summary.Assemblies[1].Key)
	assert.Equal(t, 5, summary.Total.Total)
	assert.Equal(t, 1, summary.Total.Failed)
	assert.Equal(t, 1, summary.Total.Skipped)
}

func TestResultCollector_FailureCount(t *testing.T) {
	tests := []struct {
		name      string
		summaries map[string]types.ExecutionSummary
		faulted   bool
		want      int
	}{
		{
			name: "no summaries",
			want: 0,
		},
		{
			name: "sum of failed tests",
			summaries: map[string]types.ExecutionSummary{
				"a.test": {Total: 4, Failed: 2},
				"b.test": {Total: 4, Failed: 1},
			},
			want: 3,
		},
		{
			name: "fault overrides test failures",
			summaries: map[string]types.ExecutionSummary{
				"a.test": {Total: 4, Failed: 2},
			},
			faulted: true,
			want:    1,
		},
		{
			name:    "fault without summaries",
			faulted: true,
			want:    1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			collector := NewResultCollector("run")
			for k, s := range tt.summaries {
				require.NoError(t, collector.RecordSummary(k, s))
			}
			if tt.faulted {
				collector.MarkFailed()
			}
			assert.Equal(t, tt.want, collector.FailureCount())
			assert.Equal(t, tt.want > 0, collector.HasFailures())
		})
	}
}

func TestResultCollector_Concurrent(t *testing.T) {
	collector := NewResultCollector("run")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := string(rune('a'+i%26)) + string(rune('a'+i/26)) + ".test"
			assert.NoError(t, collector.RecordSummary(key, types.ExecutionSummary{Total: 1, Failed: 1}))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, collector.Len())
	assert.Equal(t, 50, collector.FailureCount())
}
