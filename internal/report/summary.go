package report

import (
	"fmt"
	"io"
	"math"
	"os"
	"sort"

	"regimelab/internal/results"
)

// Terminal-table columns the summary consumes.
const (
	colAdoption     = "TotalAdoption"
	colInflation    = "Inflation"
	colUnemployment = "Unemployment"
	colMarketWage   = "MarketWage"
	colPriceLevel   = "PriceLevel"
	colEffectiveBDP = "EffectiveBDP"
)

// Welfare model constants from the study design.
const (
	Population = 100_000
	// MPC is the marginal propensity to consume applied to aggregate income.
	MPC = 0.82
)

// Metric is a mean with its seed spread.
type Metric struct {
	Mean float64
	Std  float64
}

// LevelStats aggregates one (regime, level) terminal table across seeds.
// Rate metrics are expressed in percent.
type LevelStats struct {
	Regime string
	Level  int
	Seeds  int

	Adoption     Metric
	Inflation    Metric
	Unemployment Metric

	// EffectiveLevel is the policy level actually delivered (the engine's
	// EffectiveBDP, e.g. after fiscal constraints), falling back to the
	// legislated level when the engine does not report it.
	EffectiveLevel Metric
}

// RegimeStats is a regime's per-level aggregate sequence plus the levels
// whose artifacts were absent.
type RegimeStats struct {
	Regime  string
	Levels  []LevelStats
	Missing []int
}

// LoadRegimeStats aggregates every available terminal table of a regime.
// Missing files are tolerated and reported in Missing: a partially populated
// results tree still produces a summary for the part that exists.
func LoadRegimeStats(layout results.Layout, regime string, levels []int) (*RegimeStats, error) {
	out := &RegimeStats{Regime: regime}
	for _, level := range levels {
		path := layout.TerminalPath(regime, level)
		table, err := ReadTable(path)
		if err != nil {
			if os.IsNotExist(err) {
				out.Missing = append(out.Missing, level)
				continue
			}
			return nil, fmt.Errorf("load %s/%d: %w", regime, level, err)
		}
		stats, err := levelStats(table, regime, level)
		if err != nil {
			return nil, fmt.Errorf("aggregate %s/%d: %w", regime, level, err)
		}
		out.Levels = append(out.Levels, stats)
	}
	return out, nil
}

func levelStats(t *Table, regime string, level int) (LevelStats, error) {
	pct := func(name string) (Metric, error) {
		xs, err := t.Column(name)
		if err != nil {
			return Metric{}, err
		}
		scaled := make([]float64, len(xs))
		for i, x := range xs {
			scaled[i] = x * 100
		}
		return Metric{Mean: mean(scaled), Std: stddev(scaled)}, nil
	}

	adoption, err := pct(colAdoption)
	if err != nil {
		return LevelStats{}, err
	}
	inflation, err := pct(colInflation)
	if err != nil {
		return LevelStats{}, err
	}
	unemployment, err := pct(colUnemployment)
	if err != nil {
		return LevelStats{}, err
	}

	effective := effectiveLevels(t, level)

	return LevelStats{
		Regime:         regime,
		Level:          level,
		Seeds:          t.Len(),
		Adoption:       adoption,
		Inflation:      inflation,
		Unemployment:   unemployment,
		EffectiveLevel: Metric{Mean: mean(effective), Std: stddev(effective)},
	}, nil
}

// effectiveLevels returns the per-seed delivered policy level, substituting
// the legislated level for seeds where the engine reported none.
func effectiveLevels(t *Table, legislated int) []float64 {
	out := make([]float64, t.Len())
	fallback := float64(legislated)
	if !t.Has(colEffectiveBDP) {
		for i := range out {
			out[i] = fallback
		}
		return out
	}
	xs, _ := t.Column(colEffectiveBDP)
	for i, x := range xs {
		if math.IsNaN(x) {
			out[i] = fallback
		} else {
			out[i] = x
		}
	}
	return out
}

// CriticalPoint is the bifurcation signature: the level where adoption
// variance across seeds peaks.
type CriticalPoint struct {
	Level int
	Sigma float64
}

// FindCriticalPoint locates the maximum adoption spread. Returns false when
// no level has a defined spread (fewer than two seeds everywhere).
func FindCriticalPoint(rs *RegimeStats) (CriticalPoint, bool) {
	best := CriticalPoint{Sigma: math.Inf(-1)}
	found := false
	for _, ls := range rs.Levels {
		if math.IsNaN(ls.Adoption.Std) {
			continue
		}
		if ls.Adoption.Std > best.Sigma {
			best = CriticalPoint{Level: ls.Level, Sigma: ls.Adoption.Std}
			found = true
		}
	}
	return best, found
}

// LevelDiff is the mean difference (b − a) at one level, in percentage
// points.
type LevelDiff struct {
	Level        int
	Adoption     float64
	Inflation    float64
	Unemployment float64
}

// Difference compares two regimes over the levels both have data for,
// returning b − a in ascending level order.
func Difference(a, b *RegimeStats) []LevelDiff {
	byLevel := make(map[int]LevelStats, len(a.Levels))
	for _, ls := range a.Levels {
		byLevel[ls.Level] = ls
	}

	var out []LevelDiff
	for _, lb := range b.Levels {
		la, ok := byLevel[lb.Level]
		if !ok {
			continue
		}
		out = append(out, LevelDiff{
			Level:        lb.Level,
			Adoption:     lb.Adoption.Mean - la.Adoption.Mean,
			Inflation:    lb.Inflation.Mean - la.Inflation.Mean,
			Unemployment: lb.Unemployment.Mean - la.Unemployment.Mean,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Level < out[j].Level })
	return out
}

// WelfareStats aggregates the welfare model over one terminal table's seeds.
type WelfareStats struct {
	Regime string
	Level  int

	// RealConsumptionPC is per-capita real consumption in base-period
	// currency units.
	RealConsumptionPC Metric

	// Gini is the binary employed/unemployed income Gini coefficient.
	Gini Metric
}

// ComputeWelfare evaluates the study's welfare model on one terminal table.
//
// Per seed: the employed earn wage + delivered transfer, the unemployed the
// transfer alone; aggregate income times MPC, deflated by the price level,
// gives real consumption. The Gini reduces to the two-group closed form.
func ComputeWelfare(t *Table, regime string, level int) (WelfareStats, error) {
	for _, col := range []string{colUnemployment, colMarketWage, colPriceLevel} {
		if !t.Has(col) {
			return WelfareStats{}, fmt.Errorf("terminal table lacks column %q", col)
		}
	}

	unemp, _ := t.Column(colUnemployment)
	wage, _ := t.Column(colMarketWage)
	price, _ := t.Column(colPriceLevel)
	delivered := effectiveLevels(t, level)

	cons := make([]float64, 0, t.Len())
	gini := make([]float64, 0, t.Len())
	for i := 0; i < t.Len(); i++ {
		if math.IsNaN(unemp[i]) || math.IsNaN(wage[i]) || math.IsNaN(price[i]) {
			continue
		}
		nEmp := int((1 - unemp[i]) * Population)
		nUnemp := Population - nEmp

		yEmp := wage[i] + delivered[i]
		yUnemp := delivered[i]

		totalIncome := float64(nEmp)*yEmp + float64(nUnemp)*yUnemp
		realCons := totalIncome * MPC / math.Max(0.01, price[i])
		cons = append(cons, realCons/Population)

		if totalIncome > 0 && nEmp > 0 && nUnemp > 0 {
			g := float64(nEmp) * float64(nUnemp) * math.Abs(yEmp-yUnemp) /
				(Population * totalIncome)
			gini = append(gini, g)
		} else {
			gini = append(gini, 0)
		}
	}
	if len(cons) == 0 {
		return WelfareStats{}, fmt.Errorf("no usable seeds in %s/%d terminal table", regime, level)
	}

	return WelfareStats{
		Regime:            regime,
		Level:             level,
		RealConsumptionPC: Metric{Mean: mean(cons), Std: stddev(cons)},
		Gini:              Metric{Mean: mean(gini), Std: stddev(gini)},
	}, nil
}

// RenderSweepSummary writes the comparison table the study prints after a
// sweep: one row per level present in both regimes, each regime's critical
// point, and the per-level mean differences (b − a).
func RenderSweepSummary(w io.Writer, a, b *RegimeStats) error {
	byLevel := make(map[int]LevelStats, len(b.Levels))
	for _, ls := range b.Levels {
		byLevel[ls.Level] = ls
	}

	if _, err := fmt.Fprintf(w, "%6s | %9s %5s | %9s %5s | %9s %9s | %9s %9s | %10s\n",
		"level",
		a.Regime+" adopt", "±σ",
		b.Regime+" adopt", "±σ",
		a.Regime+" infl", b.Regime+" infl",
		a.Regime+" unemp", b.Regime+" unemp",
		b.Regime+" eff"); err != nil {
		return err
	}

	for _, la := range a.Levels {
		lb, ok := byLevel[la.Level]
		if !ok {
			continue
		}
		if _, err := fmt.Fprintf(w, "%6d | %9.1f %5.1f | %9.1f %5.1f | %9.1f %9.1f | %9.1f %9.1f | %10.0f\n",
			la.Level,
			la.Adoption.Mean, la.Adoption.Std,
			lb.Adoption.Mean, lb.Adoption.Std,
			la.Inflation.Mean, lb.Inflation.Mean,
			la.Unemployment.Mean, lb.Unemployment.Mean,
			lb.EffectiveLevel.Mean); err != nil {
			return err
		}
	}

	for _, rs := range []*RegimeStats{a, b} {
		if cp, ok := FindCriticalPoint(rs); ok {
			if _, err := fmt.Fprintf(w, "critical point (%s): level = %d (σ_adopt = %.1f%%)\n",
				rs.Regime, cp.Level, cp.Sigma); err != nil {
				return err
			}
		}
	}

	for _, d := range Difference(a, b) {
		if _, err := fmt.Fprintf(w, "difference (%s - %s) @ %d: adoption %+.1fpp, inflation %+.1fpp, unemployment %+.1fpp\n",
			b.Regime, a.Regime, d.Level, d.Adoption, d.Inflation, d.Unemployment); err != nil {
			return err
		}
	}
	return nil
}
