package portfolio

import (
	"math"
	"time"

	"github.com/bobmcallan/folio/internal/models"
)

// Initial guesses tried in order; the first convergent root wins.
var xirrGuesses = []float64{0.1, 0.05, 0.2, -0.1, 0.01}

const (
	xirrMaxIter = 100
	xirrTol     = 1e-6
	xirrMinRate = -0.99
	daysPerYear = 365.0
)

// HoldingCashflows builds the XIRR input for one holding: buys are money
// out, sells are money in, and the holding's market value is a final
// inflow dated asOf. Trades with zero adjusted quantity carry no cashflow.
func HoldingCashflows(trades []models.TradeRecord, marketValue float64, asOf time.Time) []models.CashflowPoint {
	flows := make([]models.CashflowPoint, 0, len(trades)+1)
	for _, t := range trades {
		cf := math.Abs(t.AdjustedCashflow())
		switch {
		case t.IsBuy():
			flows = append(flows, models.CashflowPoint{Amount: -cf, Date: t.Timestamp})
		case t.IsSell():
			flows = append(flows, models.CashflowPoint{Amount: cf, Date: t.Timestamp})
		}
	}
	return append(flows, models.CashflowPoint{Amount: marketValue, Date: asOf})
}

// SolveCashflows is SolveXIRR over a CashflowPoint series.
func SolveCashflows(flows []models.CashflowPoint) (float64, bool) {
	amounts := make([]float64, len(flows))
	dates := make([]time.Time, len(flows))
	for i, f := range flows {
		amounts[i] = f.Amount
		dates[i] = f.Date
	}
	return SolveXIRR(amounts, dates)
}

// SolveXIRR returns the annualised rate r > -1 at which the dated
// cashflows have zero net present value. Time is measured in whole days
// from the earliest date over a 365 day year. Newton-Raphson is started
// from each guess in turn; if none converges above -0.99 the compound
// growth of the last cashflow over the total invested is used instead.
// ok is false when the input is degenerate or no estimate exists.
func SolveXIRR(cashflows []float64, dates []time.Time) (float64, bool) {
	if len(cashflows) != len(dates) || len(cashflows) < 2 {
		return 0, false
	}

	allZero := true
	for _, c := range cashflows {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return 0, false
		}
		if c != 0 {
			allZero = false
		}
	}
	if allZero {
		return 0, false
	}

	first := models.TruncateDay(dates[0])
	for _, d := range dates[1:] {
		if d := models.TruncateDay(d); d.Before(first) {
			first = d
		}
	}
	years := make([]float64, len(dates))
	for i, d := range dates {
		days := math.Round(models.TruncateDay(d).Sub(first).Hours() / 24)
		years[i] = days / daysPerYear
	}

	for _, guess := range xirrGuesses {
		if rate, ok := newtonXIRR(cashflows, years, guess); ok && rate > xirrMinRate {
			return rate, true
		}
	}
	return compoundGrowth(cashflows, years)
}

// newtonXIRR runs Newton-Raphson from guess. It fails when the derivative
// vanishes, the rate leaves the domain r > -1, or the step never drops
// below the tolerance.
func newtonXIRR(flows, years []float64, guess float64) (float64, bool) {
	rate := guess
	for iter := 0; iter < xirrMaxIter; iter++ {
		base := 1 + rate
		if base <= 0 {
			return 0, false
		}

		npv, dnpv := 0.0, 0.0
		for i, f := range flows {
			discount := math.Pow(base, years[i])
			npv += f / discount
			dnpv -= years[i] * f / (discount * base)
		}
		if dnpv == 0 || math.IsNaN(dnpv) || math.IsInf(dnpv, 0) {
			return 0, false
		}

		next := rate - npv/dnpv
		if math.IsNaN(next) || math.IsInf(next, 0) {
			return 0, false
		}
		if math.Abs(next-rate) < xirrTol {
			return next, true
		}
		rate = next
	}
	return 0, false
}

// compoundGrowth annualises final/invested over the span to the last
// cashflow's date.
func compoundGrowth(flows, years []float64) (float64, bool) {
	invested := 0.0
	for _, f := range flows {
		if f < 0 {
			invested -= f
		}
	}
	final := flows[len(flows)-1]
	span := years[len(years)-1]
	if invested <= 0 || final <= 0 || span <= 0 {
		return 0, false
	}

	rate := math.Pow(final/invested, 1/span) - 1
	if math.IsNaN(rate) || math.IsInf(rate, 0) {
		return 0, false
	}
	return rate, true
}
