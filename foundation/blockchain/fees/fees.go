// Package fees derives fee-rate recommendations from the current mempool
// and from fee statistics of recently confirmed blocks.
package fees

import (
	"math"
	"sort"
	"sync"

	"github.com/kobaltchain/kobalt/foundation/blockchain/ledger"
	"github.com/kobaltchain/kobalt/foundation/blockchain/mempool"
)

// Target represents a confirmation-speed goal.
type Target int

// The four supported confirmation targets.
const (
	NextBlock Target = iota
	Fast
	Normal
	Slow
)

// Targets lists every supported target in priority order.
var Targets = []Target{NextBlock, Fast, Normal, Slow}

// Blocks returns the expected number of blocks until confirmation.
func (t Target) Blocks() int {
	switch t {
	case NextBlock:
		return 1
	case Fast:
		return 3
	case Normal:
		return 6
	default:
		return 12
	}
}

// String returns the name of the target.
func (t Target) String() string {
	switch t {
	case NextBlock:
		return "next-block"
	case Fast:
		return "fast"
	case Normal:
		return "normal"
	default:
		return "slow"
	}
}

// multiplier scales the blended base rate per target so faster targets
// always price at or above slower ones.
func (t Target) multiplier() float64 {
	switch t {
	case NextBlock:
		return 1.5
	case Fast:
		return 1.2
	case Normal:
		return 1.0
	default:
		return 0.8
	}
}

// Estimate is a fee recommendation for one target.
type Estimate struct {
	Target     string  `json:"target"`
	Blocks     int     `json:"blocks"`
	FeeRate    float64 `json:"fee_rate"`
	Confidence float64 `json:"confidence"`
}

// BlockStats records the fee profile of one confirmed block.
type BlockStats struct {
	Height     uint64  `json:"height"`
	TxCount    int     `json:"tx_count"`
	MinRate    float64 `json:"min_rate"`
	MaxRate    float64 `json:"max_rate"`
	MedianRate float64 `json:"median_rate"`
}

// Config represents the configuration required to construct an Estimator.
type Config struct {
	Mempool        *mempool.Mempool
	Ledger         *ledger.Store
	MinFeeRate     float64
	WindowBlocks   int // History window size, most recent first.
	HighCongestion int // Mempool count above which the max rate drives the base.
	LowCongestion  int // Mempool count above which the average rate drives the base.
}

// Estimator produces fee-rate recommendations.
type Estimator struct {
	mu      sync.RWMutex
	cfg     Config
	history []BlockStats
}

// New constructs an Estimator, applying defaults for unset knobs.
func New(cfg Config) *Estimator {
	if cfg.WindowBlocks <= 0 {
		cfg.WindowBlocks = 20
	}
	if cfg.HighCongestion <= 0 {
		cfg.HighCongestion = 1000
	}
	if cfg.LowCongestion <= 0 {
		cfg.LowCongestion = 100
	}

	return &Estimator{cfg: cfg}
}

// Estimate returns the recommendation for a single target. The base rate
// follows mempool congestion, is blended 70/30 with the recent per-block
// median average, scaled by the target multiplier, and floored at the
// network minimum.
func (e *Estimator) Estimate(target Target) Estimate {
	stats := e.cfg.Mempool.Stats()

	base := e.cfg.MinFeeRate
	switch {
	case stats.Count >= e.cfg.HighCongestion:
		base = math.Max(base, stats.MaxFeeRate)
	case stats.Count >= e.cfg.LowCongestion:
		base = math.Max(base, stats.AvgFeeRate)
	}

	histAvg, haveHistory := e.historyAverage()

	rate := base
	if haveHistory {
		rate = base*0.7 + histAvg*0.3
	}

	confidence := 0.5
	haveMempool := stats.Count > 0
	switch {
	case haveMempool && haveHistory:
		confidence = 0.9
	case haveMempool || haveHistory:
		confidence = 0.7
	}

	rate *= target.multiplier()
	if rate < e.cfg.MinFeeRate {
		rate = e.cfg.MinFeeRate
	}

	return Estimate{
		Target:     target.String(),
		Blocks:     target.Blocks(),
		FeeRate:    rate,
		Confidence: confidence,
	}
}

// EstimateAll returns recommendations for every target.
func (e *Estimator) EstimateAll() []Estimate {
	estimates := make([]Estimate, 0, len(Targets))
	for _, target := range Targets {
		estimates = append(estimates, e.Estimate(target))
	}

	return estimates
}

// historyAverage averages the median fee rate of windowed blocks that
// carried fee-paying transactions.
func (e *Estimator) historyAverage() (float64, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var total float64
	var count int
	for _, stats := range e.history {
		if stats.TxCount == 0 {
			continue
		}
		total += stats.MedianRate
		count++
	}

	if count == 0 {
		return 0, false
	}

	return total / float64(count), true
}

// UpdateWithNewBlock recomputes fee rates for the block confirmed at the
// specified height, skipping the coinbase, and records the stats at the
// front of the history window. The oldest entry is evicted on overflow.
func (e *Estimator) UpdateWithNewBlock(height uint64) error {
	block, err := e.cfg.Ledger.GetBlockByHeight(height)
	if err != nil {
		return err
	}

	var rates []float64
	for _, tx := range block.Trans {
		if tx.IsCoinbase() {
			continue
		}
		if size := tx.Size(); size > 0 {
			rates = append(rates, float64(tx.Fee)/float64(size))
		}
	}

	stats := BlockStats{
		Height:  height,
		TxCount: len(rates),
	}

	if len(rates) > 0 {
		sort.Float64s(rates)
		stats.MinRate = rates[0]
		stats.MaxRate = rates[len(rates)-1]

		mid := len(rates) / 2
		if len(rates)%2 == 0 {
			stats.MedianRate = (rates[mid-1] + rates[mid]) / 2
		} else {
			stats.MedianRate = rates[mid]
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.history = append([]BlockStats{stats}, e.history...)
	if len(e.history) > e.cfg.WindowBlocks {
		e.history = e.history[:e.cfg.WindowBlocks]
	}

	return nil
}

// History returns a copy of the windowed block stats, most recent first.
func (e *Estimator) History() []BlockStats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	history := make([]BlockStats, len(e.history))
	copy(history, e.history)

	return history
}
