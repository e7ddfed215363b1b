package cost

import (
	"fmt"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrCostLimitExceeded matches any *LimitExceededError. It is fatal to the run.
var ErrCostLimitExceeded = eris.New("cost limit exceeded")

// ErrUnknownModel is returned by NewGovernor when the calculator has no rate
// for the configured model. Every estimate would price at zero.
var ErrUnknownModel = eris.New("cost: no rate for model")

// LimitExceededError carries the ledger state at the moment a call was rejected.
type LimitExceededError struct {
	Spent    float64
	Reserved float64
	Estimate float64
	Buffered float64
	Ceiling  float64
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("cost limit exceeded: spent $%.4f (reserved $%.4f) + buffered estimate $%.4f > ceiling $%.4f",
		e.Spent, e.Reserved, e.Buffered, e.Ceiling)
}

// Is lets errors.Is match ErrCostLimitExceeded.
func (e *LimitExceededError) Is(target error) bool {
	return target == ErrCostLimitExceeded
}

// Observation is a cumulative-cost sample emitted every N tracked calls.
type Observation struct {
	Calls   int
	Spent   float64
	Ceiling float64
}

// Observer receives cumulative-cost observations.
type Observer func(Observation)

// LogObserver logs each observation through the global zap logger.
func LogObserver(o Observation) {
	zap.L().Info("cost: cumulative spend",
		zap.Int("calls", o.Calls),
		zap.Float64("spent_usd", o.Spent),
		zap.Float64("ceiling_usd", o.Ceiling),
	)
}

// GovernorConfig controls budget enforcement.
type GovernorConfig struct {
	// Model selects the rate used by EstimateCost and TrackCall.
	Model string
	// Ceiling is the hard spend limit in USD for one run. Default: 1.00.
	Ceiling float64
	// Buffer is the safety margin applied to every estimate. Default: 0.10.
	Buffer float64
	// ObserveEvery emits an Observation every N tracked calls. Default: 10.
	ObserveEvery int
	// Observer receives observations. Default: LogObserver.
	Observer Observer
}

// Ledger is a point-in-time copy of the governor's state.
type Ledger struct {
	Spent    float64 `json:"spent_usd"`
	Reserved float64 `json:"reserved_usd"`
	Calls    int     `json:"calls"`
	Ceiling  float64 `json:"ceiling_usd"`
	Buffer   float64 `json:"buffer"`
}

// Reservation is budget held by CheckBudget until the call is tracked or released.
type Reservation struct {
	amount  float64
	settled bool
}

// Amount returns the buffered estimate held by the reservation.
func (r *Reservation) Amount() float64 {
	if r == nil {
		return 0
	}
	return r.amount
}

// Governor tracks cumulative spend for one run. CheckBudget and TrackCall
// serialize on the same mutex, so concurrent workers cannot both pass a
// check against budget that only one of them fits in.
type Governor struct {
	calc     *Calculator
	model    string
	ceiling  float64
	buffer   float64
	every    int
	observer Observer

	mu       sync.Mutex
	spent    float64
	reserved float64
	calls    int
}

// NewGovernor creates a Governor with a fresh ledger. The model must have a
// rate in calc.
func NewGovernor(calc *Calculator, cfg GovernorConfig) (*Governor, error) {
	if calc == nil {
		calc = NewCalculator(Rates{})
	}
	if cfg.Ceiling <= 0 {
		cfg.Ceiling = 1.00
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 0.10
	}
	if cfg.ObserveEvery <= 0 {
		cfg.ObserveEvery = 10
	}
	if cfg.Observer == nil {
		cfg.Observer = LogObserver
	}
	if !calc.Known(cfg.Model) {
		return nil, eris.Wrapf(ErrUnknownModel, "model %q (add it under cost.rates)", cfg.Model)
	}
	return &Governor{
		calc:     calc,
		model:    cfg.Model,
		ceiling:  cfg.Ceiling,
		buffer:   cfg.Buffer,
		every:    cfg.ObserveEvery,
		observer: cfg.Observer,
	}, nil
}

// EstimateCost prices a call with the given token counts.
func (g *Governor) EstimateCost(inputTokens, outputTokens int64) float64 {
	return g.calc.Tokens(g.model, inputTokens, outputTokens)
}

// CheckBudget applies the safety buffer to estimate and, if the result still
// fits under the ceiling, reserves it. The returned reservation must be
// passed to TrackCall or Release.
func (g *Governor) CheckBudget(estimate float64) (*Reservation, error) {
	if estimate < 0 {
		estimate = 0
	}
	buffered := estimate * (1 + g.buffer)

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.spent+g.reserved+buffered > g.ceiling {
		return nil, &LimitExceededError{
			Spent:    g.spent,
			Reserved: g.reserved,
			Estimate: estimate,
			Buffered: buffered,
			Ceiling:  g.ceiling,
		}
	}
	g.reserved += buffered
	return &Reservation{amount: buffered}, nil
}

// Usage is the token usage reported for one call.
type Usage struct {
	Input      int64
	Output     int64
	CacheWrite int64
	CacheRead  int64
}

// Total returns the sum of all token counts.
func (u Usage) Total() int64 {
	return u.Input + u.Output + u.CacheWrite + u.CacheRead
}

// TrackCall settles res with plain input and output usage and returns the
// actual cost.
func (g *Governor) TrackCall(res *Reservation, inputTokens, outputTokens int64) float64 {
	return g.TrackUsage(res, Usage{Input: inputTokens, Output: outputTokens})
}

// TrackUsage settles res with the actual usage, prompt cache tokens
// included, and returns the actual cost.
func (g *Governor) TrackUsage(res *Reservation, u Usage) float64 {
	actual := g.calc.TokensWithCache(g.model, u.Input, u.Output, u.CacheWrite, u.CacheRead)

	g.mu.Lock()
	g.release(res)
	g.spent += actual
	g.calls++
	obs := Observation{Calls: g.calls, Spent: g.spent, Ceiling: g.ceiling}
	emit := g.calls%g.every == 0
	g.mu.Unlock()

	if res != nil && actual > res.amount {
		zap.L().Warn("cost: actual exceeded buffered estimate",
			zap.Float64("actual_usd", actual),
			zap.Float64("reserved_usd", res.amount),
		)
	}
	if emit {
		g.observer(obs)
	}
	return actual
}

// Release returns an unused reservation, e.g. because the call failed.
func (g *Governor) Release(res *Reservation) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.release(res)
}

func (g *Governor) release(res *Reservation) {
	if res == nil || res.settled {
		return
	}
	res.settled = true
	g.reserved -= res.amount
	if g.reserved < 0 {
		g.reserved = 0
	}
}

// Snapshot returns the current ledger.
func (g *Governor) Snapshot() Ledger {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Ledger{
		Spent:    g.spent,
		Reserved: g.reserved,
		Calls:    g.calls,
		Ceiling:  g.ceiling,
		Buffer:   g.buffer,
	}
}

// Spent returns cumulative actual spend.
func (g *Governor) Spent() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.spent
}
