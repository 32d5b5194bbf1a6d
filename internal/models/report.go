package models

import "time"

// HoldingDetail is a holding with its annualised return and trade history
type HoldingDetail struct {
	Holding
	XIRR          *float64      `json:"xirr"`
	XIRRPct       *float64      `json:"xirr_percentage"`
	Trades        []TradeRecord `json:"trade_history,omitempty"`
	TotalTrades   int           `json:"total_trades"`
	FirstPurchase time.Time     `json:"first_purchase"`
	LastTrade     time.Time     `json:"last_trade"`
}

// DetailedHoldings lists every holding with XIRR and the portfolio total in the base currency.
type DetailedHoldings struct {
	Holdings            map[string]HoldingDetail `json:"holdings"`
	TotalPortfolioValue float64                  `json:"total_portfolio_value"`
	BaseCurrency        string                   `json:"base_currency"`
	Incomplete          bool                     `json:"incomplete"`
}

// SplitAudit records one split applied inside a symbol's trading window.
// Effectiveness is the percentage deviation of the first post-split trade
// price from price_before/ratio.
type SplitAudit struct {
	Symbol             string    `json:"symbol"`
	Date               time.Time `json:"date"`
	Ratio              float64   `json:"ratio"`
	PriceBefore        float64   `json:"price_before"`
	PriceAfter         float64   `json:"price_after"`
	ExpectedAfterPrice float64   `json:"expected_after_price"`
	TradesAffected     int       `json:"trades_affected"`
	Effectiveness      float64   `json:"split_effectiveness"`
}

// SplitsAnalysis summarises split activity across the ledger
type SplitsAnalysis struct {
	TotalSplits    int             `json:"total_splits"`
	AffectedStocks int             `json:"affected_stocks"`
	TradesAdjusted int             `json:"trades_adjusted"`
	Splits         []SplitAudit    `json:"splits"`
	ChartData      SplitsChartData `json:"chart_data"`
	Failed         []string        `json:"failed,omitempty"`
}

// SplitsChartData holds parallel series for plotting split audits
type SplitsChartData struct {
	Symbols      []string  `json:"symbols"`
	BeforePrices []float64 `json:"before_prices"`
	AfterPrices  []float64 `json:"after_prices"`
	Ratios       []float64 `json:"ratios"`
}

// ValuePoint is the portfolio value on one day
type ValuePoint struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// ValueHistory is a daily value series in one currency
type ValueHistory struct {
	Currency    string       `json:"currency"`
	Points      []ValuePoint `json:"points"`
	Incomplete  bool         `json:"incomplete"`
	Unpriced    []string     `json:"unpriced,omitempty"`    // holdings left out of every point
	Unconverted []string     `json:"unconverted,omitempty"` // holdings whose currency has no rate to the base
}
