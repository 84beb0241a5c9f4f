package allocator

import (
	"encoding/json"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecouncil/internal/domain/allocation"
	"tradecouncil/internal/domain/decision"
	"tradecouncil/internal/domain/market_data"
	"tradecouncil/pkg/errors"
	"tradecouncil/pkg/logger"
)

func newAllocator(t *testing.T, mutate ...func(*Config)) *Allocator {
	t.Helper()
	cfg := DefaultConfig()
	for _, m := range mutate {
		m(&cfg)
	}
	a, err := New(cfg, logger.NewNop())
	require.NoError(t, err)
	return a
}

func coordinated(sym string, action decision.Action, conf float64) *decision.CoordinatedDecision {
	return &decision.CoordinatedDecision{
		Symbol:                 sym,
		FinalAction:            action,
		FinalConfidence:        conf,
		CoordinationMethod:     decision.MethodHybrid,
		CoordinationConfidence: 1,
		ConflictResolution:     decision.ResolutionNone,
	}
}

func withReturn(d *decision.CoordinatedDecision, er float64) *decision.CoordinatedDecision {
	d.ExpectedReturn = &er
	return d
}

func randomWalk(seed int64, n int, dailyVol float64) market_data.Series {
	rng := rand.New(rand.NewSource(seed))
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s := make(market_data.Series, n)
	price := 100.0
	for i := range s {
		if i > 0 {
			price *= math.Exp(rng.NormFloat64() * dailyVol)
		}
		s[i] = market_data.OHLCV{
			Timeframe:   "1d",
			OpenTime:    start.AddDate(0, 0, i),
			Open:        price,
			High:        price * 1.01,
			Low:         price * 0.99,
			Close:       price,
			Volume:      1000,
			QuoteVolume: price * 1000,
		}
	}
	return s
}

// fiveAssets has daily volatilities 1%, 1.5%, 2%, 3%, 4% for A..E
func fiveAssets() (map[string]*decision.CoordinatedDecision, map[string]market_data.Series) {
	symbols := []string{"A", "B", "C", "D", "E"}
	vols := []float64{0.01, 0.015, 0.02, 0.03, 0.04}
	decisions := make(map[string]*decision.CoordinatedDecision)
	data := make(map[string]market_data.Series)
	for i, sym := range symbols {
		decisions[sym] = coordinated(sym, decision.ActionBuy, 0.6)
		data[sym] = randomWalk(int64(101*(i+1)), 300, vols[i])
	}
	return decisions, data
}

func assertWellFormed(t *testing.T, alloc *allocation.PortfolioAllocation, cfg Config) {
	t.Helper()
	var sum float64
	for sym, a := range alloc.TargetAllocations {
		assert.GreaterOrEqual(t, a.TargetWeight, cfg.MinPositionSize-1e-9, sym)
		assert.LessOrEqual(t, a.TargetWeight, cfg.MaxPositionSize+1e-9, sym)
		sum += a.TargetWeight
	}
	assert.LessOrEqual(t, sum, 1.0+1e-9)
}

func TestAllocateStrategicTwoBuys(t *testing.T) {
	a := newAllocator(t)

	res := a.Allocate(map[string]*decision.CoordinatedDecision{
		"BTCUSDT": coordinated("BTCUSDT", decision.ActionBuy, 0.8),
		"ETHUSDT": coordinated("ETHUSDT", decision.ActionBuy, 0.8),
	}, nil, 0, WithMethod(allocation.MethodStrategic))

	require.False(t, res.IsFallback())
	require.Len(t, res.TargetAllocations, 2)
	for _, sym := range []string{"BTCUSDT", "ETHUSDT"} {
		aa := res.TargetAllocations[sym]
		assert.InDelta(t, 0.08, aa.ExpectedReturn, 1e-12)
		assert.InDelta(t, 0.45, aa.TargetWeight, 1e-12)
	}
	assert.Equal(t, 1_000_000.0, res.TotalPortfolioValue)
	assert.InDelta(t, 0.1, res.LiquidityConstraints.CashReserve, 1e-12)
}

func TestAllocateStrategicDiscountsRisk(t *testing.T) {
	a := newAllocator(t)
	risky := func(sym string) *decision.CoordinatedDecision {
		d := coordinated(sym, decision.ActionBuy, 0.8)
		r := 0.25
		d.RiskAssessment = &r
		return d
	}

	res := a.Allocate(map[string]*decision.CoordinatedDecision{
		"BTCUSDT": risky("BTCUSDT"),
		"ETHUSDT": risky("ETHUSDT"),
	}, nil, 0, WithMethod(allocation.MethodStrategic))

	assert.InDelta(t, 1*0.8*0.1*0.75, res.TargetAllocations["BTCUSDT"].ExpectedReturn, 1e-12)
	assert.InDelta(t, 0.45, res.TargetAllocations["ETHUSDT"].TargetWeight, 1e-12)
}

func TestApplyConstraintsCapsOversizedWeight(t *testing.T) {
	cfg := DefaultConfig()
	symbols := []string{"A", "B", "C"}
	raw := weights{"A": 0.6, "B": 0.2, "C": 0.2}

	clamped := clampWeights(symbols, raw, cfg.MinPositionSize, cfg.MaxPositionSize)
	assert.Equal(t, 0.3, clamped["A"])

	final := applyConstraints(symbols, raw, cfg)
	var sum float64
	for _, sym := range symbols {
		sum += final[sym]
		assert.LessOrEqual(t, final[sym], cfg.MaxPositionSize+1e-12)
	}
	assert.InDelta(t, 1-cfg.LiquidityRequirement, sum, 1e-12)
	assert.InDelta(t, 0.3, final["A"], 1e-12)
}

func TestApplyConstraintsRaisesFloor(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinPositionSize = 0.05
	symbols := []string{"A", "B", "C", "D", "E"}
	raw := weights{"A": 0.3, "B": 0.3, "C": 0.3, "D": 0.1, "E": 0}

	final := applyConstraints(symbols, raw, cfg)
	var sum float64
	for _, sym := range symbols {
		sum += final[sym]
		assert.GreaterOrEqual(t, final[sym], cfg.MinPositionSize-1e-12, sym)
		assert.LessOrEqual(t, final[sym], cfg.MaxPositionSize+1e-12, sym)
	}
	assert.InDelta(t, 0.9, sum, 1e-12)
	assert.InDelta(t, final["A"], final["B"], 1e-12)
	assert.Greater(t, final["D"], final["E"])
}

func TestAllocateStrategicThreeSymbolsWithCap(t *testing.T) {
	a := newAllocator(t)

	res := a.Allocate(map[string]*decision.CoordinatedDecision{
		"A": withReturn(coordinated("A", decision.ActionBuy, 0.9), 0.6),
		"B": withReturn(coordinated("B", decision.ActionBuy, 0.9), 0.2),
		"C": withReturn(coordinated("C", decision.ActionBuy, 0.9), 0.2),
	}, nil, 0, WithMethod(allocation.MethodStrategic))

	assertWellFormed(t, res, a.Config())
	assert.InDelta(t, 0.9, res.TotalWeight(), 1e-12)
	assert.InDelta(t, 0.3, res.TargetAllocations["A"].TargetWeight, 1e-12)
}

func TestOptimizerFallsBackWithoutCovariance(t *testing.T) {
	for _, m := range []allocation.Method{
		allocation.MethodRiskParity,
		allocation.MethodMinVariance,
		allocation.MethodMaxDiversification,
	} {
		t.Run(string(m), func(t *testing.T) {
			a := newAllocator(t)
			decisions := map[string]*decision.CoordinatedDecision{
				"A": coordinated("A", decision.ActionBuy, 0.9),
				"B": coordinated("B", decision.ActionHold, 0.2),
				"C": coordinated("C", decision.ActionSell, 0.4),
				"D": coordinated("D", decision.ActionBuy, 0.1),
			}
			// one symbol with history is not enough for a covariance
			data := map[string]market_data.Series{"A": randomWalk(1, 300, 0.02)}

			res := a.Allocate(decisions, data, 0, WithMethod(m))

			require.False(t, res.IsFallback())
			assert.Contains(t, res.Metadata, "fallback")
			for _, aa := range res.TargetAllocations {
				assert.InDelta(t, 0.9/4, aa.TargetWeight, 1e-12)
			}
			assert.InDelta(t, 0.9, res.TotalWeight(), 1e-12)
			assert.Equal(t, 1, a.Stats().Fallbacks)
			assert.Nil(t, a.RiskModel())
		})
	}
}

func TestOptimizedMethodsFavourLowVolatility(t *testing.T) {
	for _, m := range []allocation.Method{
		allocation.MethodRiskParity,
		allocation.MethodMinVariance,
		allocation.MethodMaxDiversification,
	} {
		t.Run(string(m), func(t *testing.T) {
			a := newAllocator(t)
			decisions, data := fiveAssets()

			res := a.Allocate(decisions, data, 250_000, WithMethod(m))

			require.False(t, res.IsFallback())
			require.NotContains(t, res.Metadata, "fallback")
			assert.Equal(t, true, res.Metadata["risk_model"])
			assertWellFormed(t, res, a.Config())
			assert.InDelta(t, 0.9, res.TotalWeight(), 1e-9)

			w := res.TargetWeights()
			assert.Greater(t, w["A"], w["C"])
			assert.Greater(t, w["C"], w["E"])

			rm := res.RiskMetrics
			assert.Greater(t, rm.PortfolioVolatility, 0.0)
			assert.InDelta(t, rm.PortfolioVolatility*rm.PortfolioVolatility, rm.PortfolioVariance, 1e-12)
			assert.Greater(t, rm.DiversificationRatio, 1.0)
			assert.InDelta(t, rm.PortfolioVolatility/0.15, rm.RiskBudgetUtilization, 1e-12)

			var rcSum float64
			for _, aa := range res.TargetAllocations {
				rcSum += aa.RiskContribution
			}
			assert.InDelta(t, rm.PortfolioVolatility, rcSum, 1e-9)

			model := a.RiskModel()
			require.NotNil(t, model)
			assert.Equal(t, []string{"A", "B", "C", "D", "E"}, model.Symbols)
		})
	}
}

func TestRiskModelKeptWhenRefreshIsImpossible(t *testing.T) {
	a := newAllocator(t)
	decisions, data := fiveAssets()
	a.Allocate(decisions, data, 0)

	short := map[string]market_data.Series{"A": randomWalk(3, 10, 0.01)}
	res := a.Allocate(decisions, short, 0)

	assert.NotContains(t, res.Metadata, "fallback")
	require.NotNil(t, a.RiskModel())
	assert.Len(t, a.RiskModel().Symbols, 5)
	assert.Equal(t, 5, res.Metadata["risk_model_assets"])
}

func TestRiskMetricsWithDefaultVolatility(t *testing.T) {
	a := newAllocator(t)

	res := a.Allocate(map[string]*decision.CoordinatedDecision{
		"BTCUSDT": coordinated("BTCUSDT", decision.ActionBuy, 0.8),
		"ETHUSDT": coordinated("ETHUSDT", decision.ActionBuy, 0.8),
	}, nil, 0, WithMethod(allocation.MethodStrategic))

	vol := math.Sqrt(2 * 0.45 * 0.45 * 0.04)
	rm := res.RiskMetrics
	assert.InDelta(t, vol, rm.PortfolioVolatility, 1e-12)
	assert.InDelta(t, 0.45*0.45*0.04/vol, rm.MaxRiskContribution, 1e-12)
	assert.InDelta(t, math.Sqrt2, rm.DiversificationRatio, 1e-12)
	assert.Equal(t, false, res.Metadata["risk_model"])

	btc := res.TargetAllocations["BTCUSDT"]
	assert.InDelta(t, 0.2, btc.Volatility, 1e-12)
	assert.InDelta(t, 0.4, btc.SharpeRatio, 1e-12)
	assert.Equal(t, 0.5, btc.LiquidityScore)

	pm := res.PerformanceMetrics
	assert.InDelta(t, 0.072, pm.ExpectedReturn, 1e-12)
	assert.InDelta(t, 0.02, pm.TrackingError, 1e-12)
	assert.InDelta(t, 3.6, pm.InformationRatio, 1e-9)
	assert.InDelta(t, 0.072/vol, pm.SharpeRatio, 1e-9)

	lc := res.LiquidityConstraints
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, lc.IlliquidRisk)
	assert.InDelta(t, 0.5, lc.ConcentrationExcess, 1e-12)
	assert.InDelta(t, 0.8, res.AllocationConfidence, 1e-12)
}

func TestRebalanceAnalysis(t *testing.T) {
	a := newAllocator(t)
	decisions := map[string]*decision.CoordinatedDecision{
		"BTCUSDT": coordinated("BTCUSDT", decision.ActionBuy, 0.8),
		"ETHUSDT": coordinated("ETHUSDT", decision.ActionBuy, 0.8),
	}

	first := a.Allocate(decisions, nil, 1_000_000, WithMethod(allocation.MethodStrategic))
	assert.True(t, first.RebalancingNeeded)
	assert.InDelta(t, 0.9, first.Turnover, 1e-12)
	assert.InDelta(t, 900, first.RebalancingCost, 1e-9)
	assert.Contains(t, first.Reasoning, "$900")

	second := a.Allocate(decisions, nil, 1_000_000, WithMethod(allocation.MethodStrategic))
	assert.False(t, second.RebalancingNeeded)
	assert.InDelta(t, 0, second.Turnover, 1e-12)
	assert.InDelta(t, 0.45, second.TargetAllocations["BTCUSDT"].CurrentWeight, 1e-12)
	assert.InDelta(t, 0, second.TargetAllocations["BTCUSDT"].WeightChange, 1e-12)

	// a held position missing from the targets is sold
	a.SetCurrentAllocations(map[string]float64{"BTCUSDT": 0.45, "ETHUSDT": 0.45, "DOGEUSDT": 0.03})
	third := a.Allocate(decisions, nil, 1_000_000, WithMethod(allocation.MethodStrategic))
	assert.InDelta(t, 0.03, third.Turnover, 1e-12)
	assert.False(t, third.RebalancingNeeded)

	s := a.Stats()
	assert.Equal(t, 3, s.TotalAllocations)
	assert.Equal(t, 1, s.RebalancesNeeded)
	assert.InDelta(t, (0.9+0+0.03)/3, s.AverageTurnover, 1e-12)
	assert.InDelta(t, 900+30, s.CumulativeTransactionCost, 1e-9)
	assert.Equal(t, map[string]float64{"BTCUSDT": 0.45, "ETHUSDT": 0.45}, a.CurrentAllocations())
}

func TestAllocateErrorPathLeavesStateUntouched(t *testing.T) {
	a := newAllocator(t)
	decisions := map[string]*decision.CoordinatedDecision{
		"BTCUSDT": coordinated("BTCUSDT", decision.ActionBuy, 0.8),
		"ETHUSDT": coordinated("ETHUSDT", decision.ActionSell, 0.8),
	}

	res := a.Allocate(decisions, nil, 0, WithMethod("astrology"))
	assert.True(t, res.IsFallback())
	assert.Contains(t, res.Reasoning, "unknown method")
	assert.InDelta(t, 0.45, res.TargetAllocations["ETHUSDT"].TargetWeight, 1e-12)
	assert.Empty(t, a.CurrentAllocations())
	assert.Empty(t, a.History(0))
	assert.Equal(t, 1, a.Stats().Errors)

	empty := a.Allocate(nil, nil, 0)
	assert.True(t, empty.IsFallback())
	assert.Empty(t, empty.TargetAllocations)
}

func TestAllocateRecoversFromPanics(t *testing.T) {
	orig := methods[allocation.MethodStrategic]
	methods[allocation.MethodStrategic] = func(*book) (weights, error) { panic("boom") }
	defer func() { methods[allocation.MethodStrategic] = orig }()

	a := newAllocator(t)
	var res *allocation.PortfolioAllocation
	require.NotPanics(t, func() {
		res = a.Allocate(map[string]*decision.CoordinatedDecision{
			"A": coordinated("A", decision.ActionBuy, 0.8),
		}, nil, 0, WithMethod(allocation.MethodStrategic))
	})
	assert.True(t, res.IsFallback())
	assert.Contains(t, res.Reasoning, "boom")
	assert.Empty(t, a.History(0))
}

func TestAllocationWellFormedAcrossMethods(t *testing.T) {
	decisions, data := fiveAssets()
	decisions["B"] = coordinated("B", decision.ActionSell, 0.9)
	decisions["D"] = coordinated("D", decision.ActionHold, 0.3)

	for _, m := range allocation.Methods {
		t.Run(string(m), func(t *testing.T) {
			a := newAllocator(t)
			res := a.Allocate(decisions, data, 0, WithMethod(m))
			require.False(t, res.IsFallback())
			assert.Equal(t, m, res.AllocationMethod)
			assertWellFormed(t, res, a.Config())
			assert.InDelta(t, 0.9, res.TotalWeight(), 1e-9)
		})
	}
}

func TestHistoryIsBounded(t *testing.T) {
	a := newAllocator(t, func(cfg *Config) { cfg.MaxHistory = 2 })
	decisions := map[string]*decision.CoordinatedDecision{
		"A": coordinated("A", decision.ActionBuy, 0.8),
		"B": coordinated("B", decision.ActionBuy, 0.4),
	}
	var last *allocation.PortfolioAllocation
	for i := 0; i < 3; i++ {
		last = a.Allocate(decisions, nil, 0, WithMethod(allocation.MethodTactical))
	}

	h := a.History(0)
	require.Len(t, h, 2)
	assert.Equal(t, last.ID, h[1].ID)
	assert.Len(t, a.History(1), 1)

	h[1].TargetAllocations["A"].TargetWeight = 0
	assert.NotZero(t, a.History(1)[0].TargetAllocations["A"].TargetWeight)
}

func TestAllocationJSONRoundTrip(t *testing.T) {
	a := newAllocator(t)
	decisions, data := fiveAssets()
	res := a.Allocate(decisions, data, 0)

	raw, err := json.Marshal(res)
	require.NoError(t, err)
	var back allocation.PortfolioAllocation
	require.NoError(t, json.Unmarshal(raw, &back))

	assert.Equal(t, res.TargetWeights(), back.TargetWeights())
	assert.Equal(t, res.RebalancingNeeded, back.RebalancingNeeded)
	assert.Equal(t, res.RebalancingCost, back.RebalancingCost)

	// the round-tripped allocation is a valid baseline for the next cycle
	other := newAllocator(t)
	other.SetCurrentAllocations(back.TargetWeights())
	a.SetCurrentAllocations(res.TargetWeights())
	next1 := a.Allocate(decisions, data, 0)
	next2 := other.Allocate(decisions, data, 0)
	assert.Equal(t, next1.Turnover, next2.Turnover)
	assert.Equal(t, next1.TargetWeights(), next2.TargetWeights())
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LiquidityRequirement = 1
	_, err := New(cfg, logger.NewNop())
	assert.Error(t, err)
}

func TestRiskModelJoinsOnBarTime(t *testing.T) {
	cfg := DefaultConfig()
	a := randomWalk(11, 200, 0.02)

	// same prices, but b misses the newest bar, one bar mid-series and
	// carries an unusable close
	b := append(market_data.Series{}, a[:199]...)
	b = append(b[:80:80], b[81:]...)
	b[120].Close = math.NaN()

	model, err := buildRiskModel(map[string]market_data.Series{"A": a, "B": b}, cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, model.Symbols)
	assert.InDelta(t, 1, model.Correlation.At(0, 1), 1e-9)
	assert.InDelta(t, model.Covariance.At(0, 0), model.Covariance.At(1, 1), 1e-12)
	// 200 bars, three unshared
	assert.Equal(t, 196, model.Obs)
}

func TestRiskModelDropsSymbolWithoutSharedHistory(t *testing.T) {
	cfg := DefaultConfig()
	a := randomWalk(21, 300, 0.01)
	b := randomWalk(22, 300, 0.02)
	// enough bars of its own, but it ends ten bars into the others
	c := randomWalk(23, 40, 0.03)
	for i := range c {
		c[i].OpenTime = a[0].OpenTime.AddDate(0, 0, i-30)
	}

	model, err := buildRiskModel(map[string]market_data.Series{"A": a, "B": b, "C": c}, cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, model.Symbols)
	assert.Equal(t, cfg.LookbackWindow, model.Obs)

	_, err = buildRiskModel(map[string]market_data.Series{"A": a, "C": c}, cfg)
	assert.ErrorIs(t, err, errors.ErrInsufficientHistory)
}
