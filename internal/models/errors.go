package models

import "errors"

// Error taxonomy. Only ErrNoValidTrades is fatal to a valuation run; the
// others are per symbol or per holding and degrade coverage.
var (
	ErrNoValidTrades         = errors.New("no valid trade rows")
	ErrQuoteUnavailable      = errors.New("quote unavailable")
	ErrSplitLookup           = errors.New("split lookup failed")
	ErrConversionUnavailable = errors.New("currency conversion unavailable")
	ErrSolverDivergence      = errors.New("xirr solver did not converge")
	ErrUntradeable           = errors.New("symbol is not tradeable")
	ErrSymbolNotHeld         = errors.New("symbol not held")
)
