package cost

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGovernor(t *testing.T, ceiling float64, obs Observer) *Governor {
	t.Helper()
	g, err := NewGovernor(NewCalculator(testRates()), GovernorConfig{
		Model:        "flat",
		Ceiling:      ceiling,
		Buffer:       0.10,
		ObserveEvery: 10,
		Observer:     obs,
	})
	require.NoError(t, err)
	return g
}

func TestGovernor_Defaults(t *testing.T) {
	t.Parallel()
	g, err := NewGovernor(nil, GovernorConfig{Model: "claude-haiku-4-5-20251001"})
	require.NoError(t, err)
	l := g.Snapshot()
	assert.InDelta(t, 1.00, l.Ceiling, 1e-9)
	assert.InDelta(t, 0.10, l.Buffer, 1e-9)
	assert.Zero(t, l.Spent)
	assert.Zero(t, l.Calls)
}

func TestGovernor_UnknownModelRejected(t *testing.T) {
	t.Parallel()
	g, err := NewGovernor(NewCalculator(Rates{}), GovernorConfig{Model: "gemini-2.0-flash", Ceiling: 0.01})
	require.Error(t, err)
	assert.Nil(t, g)
	assert.True(t, errors.Is(err, ErrUnknownModel))
	assert.Contains(t, err.Error(), "gemini-2.0-flash")
}

func TestGovernor_ConfiguredRateEnforcesCeiling(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(Rates{Models: map[string]ModelRate{
		"gemini-2.0-flash": {Input: 0.10, Output: 0.40},
	}})
	g, err := NewGovernor(calc, GovernorConfig{Model: "gemini-2.0-flash", Ceiling: 0.01, Observer: func(Observation) {}})
	require.NoError(t, err)

	est := g.EstimateCost(100_000_000, 100_000_000)
	require.Greater(t, est, 0.0)
	res, err := g.CheckBudget(est)
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, ErrCostLimitExceeded))
}

func TestGovernor_TrackUsageChargesCache(t *testing.T) {
	t.Parallel()
	g, err := NewGovernor(NewCalculator(testRates()), GovernorConfig{Model: "haiku", Observer: func(Observation) {}})
	require.NoError(t, err)

	res, err := g.CheckBudget(0.5)
	require.NoError(t, err)
	actual := g.TrackUsage(res, Usage{Input: 500_000, Output: 50_000, CacheWrite: 200_000, CacheRead: 300_000})
	assert.InDelta(t, 0.824, actual, 1e-9)
	assert.InDelta(t, 0.824, g.Spent(), 1e-9)
	assert.Zero(t, g.Snapshot().Reserved)
}

func TestGovernor_EstimateCost(t *testing.T) {
	t.Parallel()
	g := newTestGovernor(t, 1.0, func(Observation) {})
	assert.InDelta(t, 0.0023, g.EstimateCost(2000, 300), 1e-9)
}

func TestGovernor_RejectsBeforeCallAtCeiling(t *testing.T) {
	t.Parallel()
	g := newTestGovernor(t, 1.00, func(Observation) {})

	// Bring cumulative spend to $0.95.
	g.TrackCall(nil, 950_000, 0)
	require.InDelta(t, 0.95, g.Spent(), 1e-9)

	// Buffered estimate of $0.08.
	res, err := g.CheckBudget(0.08 / 1.10)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, ErrCostLimitExceeded))

	var limitErr *LimitExceededError
	require.True(t, errors.As(err, &limitErr))
	assert.InDelta(t, 0.95, limitErr.Spent, 1e-9)
	assert.InDelta(t, 0.08, limitErr.Buffered, 1e-9)
	assert.InDelta(t, 1.00, limitErr.Ceiling, 1e-9)
	assert.Contains(t, err.Error(), "cost limit exceeded")

	// A rejected check leaves the ledger untouched.
	assert.Zero(t, g.Snapshot().Reserved)
}

func TestGovernor_ReservationHoldsBudget(t *testing.T) {
	t.Parallel()
	g := newTestGovernor(t, 1.00, func(Observation) {})

	res, err := g.CheckBudget(0.50)
	require.NoError(t, err)
	assert.InDelta(t, 0.55, res.Amount(), 1e-9)

	// 0.55 reserved + 0.55 buffered > 1.00
	_, err = g.CheckBudget(0.50)
	require.ErrorIs(t, err, ErrCostLimitExceeded)

	g.Release(res)
	g.Release(res) // second release is a no-op
	assert.Zero(t, g.Snapshot().Reserved)

	_, err = g.CheckBudget(0.50)
	require.NoError(t, err)
}

func TestGovernor_TrackCallSettlesReservation(t *testing.T) {
	t.Parallel()
	g := newTestGovernor(t, 1.00, func(Observation) {})

	res, err := g.CheckBudget(0.10)
	require.NoError(t, err)

	actual := g.TrackCall(res, 60_000, 20_000)
	assert.InDelta(t, 0.08, actual, 1e-9)

	l := g.Snapshot()
	assert.InDelta(t, 0.08, l.Spent, 1e-9)
	assert.Zero(t, l.Reserved)
	assert.Equal(t, 1, l.Calls)
}

func TestGovernor_ConcurrentChecksNeverOvercommit(t *testing.T) {
	t.Parallel()
	g := newTestGovernor(t, 1.00, func(Observation) {})

	var wg sync.WaitGroup
	var passed atomic.Int64
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := g.CheckBudget(0.10); err == nil {
				passed.Add(1)
			}
		}()
	}
	wg.Wait()

	// 9 × 0.11 = 0.99 fits, a tenth would not.
	assert.Equal(t, int64(9), passed.Load())
	assert.LessOrEqual(t, g.Snapshot().Reserved, 1.00)
}

func TestGovernor_SpendMonotonicAndBounded(t *testing.T) {
	t.Parallel()
	g := newTestGovernor(t, 0.50, func(Observation) {})
	bound := 0.50 * 1.10

	var mu sync.Mutex
	var samples []float64
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			est := g.EstimateCost(15_000, 5_000)
			res, err := g.CheckBudget(est)
			if err != nil {
				return
			}
			g.TrackCall(res, 15_000, 5_000)
			mu.Lock()
			samples = append(samples, g.Spent())
			mu.Unlock()
		}()
	}
	wg.Wait()

	final := g.Spent()
	assert.LessOrEqual(t, final, bound)
	for _, s := range samples {
		assert.LessOrEqual(t, s, final)
	}

	prev := 0.0
	g2 := newTestGovernor(t, 10, func(Observation) {})
	for i := range 20 {
		g2.TrackCall(nil, int64(i*1000), 0)
		cur := g2.Spent()
		assert.GreaterOrEqual(t, cur, prev)
		prev = cur
	}
}

func TestGovernor_ObservesEveryNthCall(t *testing.T) {
	t.Parallel()

	var got []Observation
	g := newTestGovernor(t, 10, func(o Observation) { got = append(got, o) })

	for range 25 {
		g.TrackCall(nil, 1000, 0)
	}
	require.Len(t, got, 2)
	assert.Equal(t, 10, got[0].Calls)
	assert.Equal(t, 20, got[1].Calls)
	assert.InDelta(t, 0.02, got[1].Spent, 1e-9)
}
