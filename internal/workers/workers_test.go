package workers

import (
	"context"
	"errors"
	"runtime"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCount(t *testing.T) {
	t.Setenv(EnvOverride, "")
	availableCPU := runtime.GOMAXPROCS(0)

	tests := []struct {
		name       string
		multiplier float64
		limit      int
		maxExpect  int
	}{
		{"CPU-bound", 1.0, 0, availableCPU},
		{"I/O-bound", 2.0, 0, availableCPU * 2},
		{"mixed", 1.5, 0, int(float64(availableCPU) * 1.5)},
		{"limit lower than calculated", 2.0, 2, 2},
		{"very low multiplier", 0.1, 0, max(1, int(float64(availableCPU)*0.1))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Count(tt.multiplier, tt.limit)
			assert.GreaterOrEqual(t, got, 1)
			assert.LessOrEqual(t, got, tt.maxExpect)
		})
	}
}

func TestCountOverride(t *testing.T) {
	t.Setenv(EnvOverride, "7")
	assert.Equal(t, 7, Count(1.0, 0))
	assert.Equal(t, 4, Count(1.0, 4))

	t.Setenv(EnvOverride, "not-a-number")
	assert.Equal(t, ForCPU(0), Count(1.0, 0))

	t.Setenv(EnvOverride, "-3")
	assert.GreaterOrEqual(t, Count(1.0, 0), 1)
}

func TestHelpers(t *testing.T) {
	t.Setenv(EnvOverride, "")
	assert.LessOrEqual(t, ForCPU(0), ForIO(0))
	assert.LessOrEqual(t, ForMixed(0), ForIO(0))
	assert.Equal(t, 1, ForIO(1))
}

func TestMapPreservesOrder(t *testing.T) {
	inputs := []int{5, 3, 9, 1, 7, 2, 8}

	out, err := Map(context.Background(), 3, inputs, func(_ context.Context, v int) (int, error) {
		return v * 10, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{50, 30, 90, 10, 70, 20, 80}, out)
}

func TestMapEmpty(t *testing.T) {
	out, err := Map(context.Background(), 4, []string{}, func(_ context.Context, s string) (string, error) {
		return s, nil
	})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestMapStopsOnError(t *testing.T) {
	boom := errors.New("boom")
	var calls atomic.Int32

	inputs := make([]int, 100)
	for i := range inputs {
		inputs[i] = i
	}

	_, err := Map(context.Background(), 2, inputs, func(ctx context.Context, v int) (int, error) {
		calls.Add(1)
		if v == 3 {
			return 0, boom
		}
		return v, ctx.Err()
	})
	require.ErrorIs(t, err, boom)
	assert.Less(t, int(calls.Load()), len(inputs))
}

func TestMapCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Map(ctx, 2, []int{1, 2, 3}, func(ctx context.Context, v int) (int, error) {
		return v, nil
	})
	require.ErrorIs(t, err, context.Canceled)
}
