package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/subcommands"

	"github.com/bobmcallan/folio/internal/app"
	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/models"
	"github.com/bobmcallan/folio/internal/services/portfolio"
)

// commands are the valuation subcommands; each loads the ledger first
var commands = []subcommands.Command{
	&summaryCmd{},
	&holdingsCmd{},
	&holdingCmd{},
	&tradesCmd{},
	&splitsCmd{},
	&historyCmd{},
	&chartCmd{},
	&watchCmd{},
}

var stdout io.Writer = os.Stdout

// openApp initializes the app and runs a full valuation
func openApp(ctx context.Context) (*app.App, error) {
	a, err := app.NewApp(*configPath)
	if err != nil {
		return nil, err
	}
	if !*quiet {
		common.PrintBanner(os.Stderr, a.Config, a.Logger)
	}
	if err := a.Portfolio.Load(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// emit writes v as JSON, or the text rendering when -format is text
func emit(v interface{}, text func() string) subcommands.ExitStatus {
	switch strings.ToLower(*outputFormat) {
	case "json":
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			fmt.Fprintf(os.Stderr, "Error encoding output: %v\n", err)
			return subcommands.ExitFailure
		}
	case "text", "":
		fmt.Fprint(stdout, text())
	default:
		fmt.Fprintf(os.Stderr, "Unknown format %q\n", *outputFormat)
		return subcommands.ExitUsageError
	}
	return subcommands.ExitSuccess
}

func fail(what string, err error) subcommands.ExitStatus {
	fmt.Fprintf(os.Stderr, "Error %s: %v\n", what, err)
	return subcommands.ExitFailure
}

// summaryCmd prints portfolio totals across tracked currencies
type summaryCmd struct {
	refresh bool
}

func (*summaryCmd) Name() string     { return "summary" }
func (*summaryCmd) Synopsis() string { return "portfolio totals in every tracked currency" }
func (*summaryCmd) Usage() string {
	return `folio summary [-refresh]

  Values the ledger and prints total holdings, value per tracked currency,
  unrealized P&L and the largest holdings.
`
}

func (c *summaryCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.refresh, "refresh", false, "re-fetch latest prices before summarising")
}

func (c *summaryCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := openApp(ctx)
	if err != nil {
		return fail("loading portfolio", err)
	}
	defer a.Close()

	if c.refresh {
		if err := a.Portfolio.RefreshPrices(ctx); err != nil {
			return fail("refreshing prices", err)
		}
	}

	s, err := a.Portfolio.Summary(ctx)
	if err != nil {
		return fail("building summary", err)
	}
	return emit(s, func() string { return formatSummary(s) })
}

// holdingsCmd lists every holding with XIRR
type holdingsCmd struct{}

func (*holdingsCmd) Name() string     { return "holdings" }
func (*holdingsCmd) Synopsis() string { return "every open holding with annualised return" }
func (*holdingsCmd) Usage() string {
	return `folio holdings

  Prints each open position with quantity, average cost, price, market
  value, unrealized P&L and XIRR.
`
}
func (*holdingsCmd) SetFlags(*flag.FlagSet) {}

func (*holdingsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := openApp(ctx)
	if err != nil {
		return fail("loading portfolio", err)
	}
	defer a.Close()

	dh, err := a.Portfolio.DetailedHoldings(ctx)
	if err != nil {
		return fail("building holdings", err)
	}
	return emit(dh, func() string { return formatDetailedHoldings(dh) })
}

// holdingCmd prints one holding with its trade history
type holdingCmd struct {
	symbol string
}

func (*holdingCmd) Name() string     { return "holding" }
func (*holdingCmd) Synopsis() string { return "detail and trade history for one holding" }
func (*holdingCmd) Usage() string {
	return `folio holding -symbol <SYMBOL>

  Prints one holding, its XIRR and its split-adjusted trades.
`
}

func (c *holdingCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.symbol, "symbol", "", "symbol to show")
}

func (c *holdingCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.symbol == "" {
		fmt.Fprintln(os.Stderr, "-symbol is required")
		return subcommands.ExitUsageError
	}
	a, err := openApp(ctx)
	if err != nil {
		return fail("loading portfolio", err)
	}
	defer a.Close()

	d, err := a.Portfolio.HoldingDetail(ctx, strings.ToUpper(c.symbol))
	if err != nil {
		return fail("loading holding", err)
	}
	return emit(d, func() string { return formatHoldingDetail(d) })
}

// tradesCmd prints the split-adjusted ledger
type tradesCmd struct {
	symbol string
}

func (*tradesCmd) Name() string     { return "trades" }
func (*tradesCmd) Synopsis() string { return "the loaded ledger with split adjustments" }
func (*tradesCmd) Usage() string {
	return `folio trades [-symbol <SYMBOL>]

  Prints every trade that survived loading, oldest first, with raw and
  split-adjusted quantity and price.
`
}

func (c *tradesCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.symbol, "symbol", "", "only show trades for this symbol")
}

func (c *tradesCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := openApp(ctx)
	if err != nil {
		return fail("loading portfolio", err)
	}
	defer a.Close()

	trades := a.Portfolio.Trades()
	if c.symbol != "" {
		trades = models.TradesBySymbol(trades)[strings.ToUpper(c.symbol)]
	}
	return emit(trades, func() string { return formatTrades(trades) })
}

// splitsCmd audits the splits applied to the ledger
type splitsCmd struct{}

func (*splitsCmd) Name() string     { return "splits" }
func (*splitsCmd) Synopsis() string { return "audit of stock splits applied to the ledger" }
func (*splitsCmd) Usage() string {
	return `folio splits

  Lists every split inside a symbol's trading window with the trade prices
  either side and how far the post-split price deviates from expectation.
`
}
func (*splitsCmd) SetFlags(*flag.FlagSet) {}

func (*splitsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := openApp(ctx)
	if err != nil {
		return fail("loading portfolio", err)
	}
	defer a.Close()

	analysis, err := a.Portfolio.SplitsAnalysis(ctx)
	if err != nil {
		return fail("analysing splits", err)
	}
	return emit(analysis, func() string { return formatSplits(analysis) })
}

// historyCmd prints the daily value series
type historyCmd struct {
	days     int
	currency string
}

func (*historyCmd) Name() string     { return "history" }
func (*historyCmd) Synopsis() string { return "daily portfolio value at current prices" }
func (*historyCmd) Usage() string {
	return `folio history [-days N] [-currency CCY]

  Prints the value of the holdings held on each past day at today's prices.
`
}

func (c *historyCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.days, "days", portfolio.DefaultHistoryDays, "number of days to look back")
	f.StringVar(&c.currency, "currency", "", "report currency (default: base currency)")
}

func (c *historyCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := openApp(ctx)
	if err != nil {
		return fail("loading portfolio", err)
	}
	defer a.Close()

	h, err := a.Portfolio.History(ctx, c.days, c.currency)
	if err != nil {
		return fail("building history", err)
	}
	return emit(h, func() string { return formatHistory(h) })
}

// chartCmd renders a PNG chart
type chartCmd struct {
	kind string
	out  string
	days int
}

func (*chartCmd) Name() string     { return "chart" }
func (*chartCmd) Synopsis() string { return "render the value history or split audit as PNG" }
func (*chartCmd) Usage() string {
	return `folio chart -kind value|splits -out file.png [-days N]
`
}

func (c *chartCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.kind, "kind", "value", "chart kind: value or splits")
	f.StringVar(&c.out, "out", "folio.png", "output file")
	f.IntVar(&c.days, "days", portfolio.DefaultHistoryDays, "days of history for the value chart")
}

func (c *chartCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.kind != "value" && c.kind != "splits" {
		fmt.Fprintf(os.Stderr, "Unknown chart kind %q\n", c.kind)
		return subcommands.ExitUsageError
	}
	a, err := openApp(ctx)
	if err != nil {
		return fail("loading portfolio", err)
	}
	defer a.Close()

	var png []byte
	switch c.kind {
	case "value":
		h, err := a.Portfolio.History(ctx, c.days, "")
		if err != nil {
			return fail("building history", err)
		}
		png, err = portfolio.RenderValueChart(h)
		if err != nil {
			return fail("rendering chart", err)
		}
	case "splits":
		analysis, err := a.Portfolio.SplitsAnalysis(ctx)
		if err != nil {
			return fail("analysing splits", err)
		}
		png, err = portfolio.RenderSplitsChart(analysis)
		if err != nil {
			return fail("rendering chart", err)
		}
	}

	if err := os.WriteFile(c.out, png, 0o644); err != nil {
		return fail("writing chart", err)
	}
	fmt.Fprintf(stdout, "Wrote %s (%d bytes)\n", c.out, len(png))
	return subcommands.ExitSuccess
}

// watchCmd keeps the process running and reprints the summary after each price refresh
type watchCmd struct {
	interval time.Duration
}

func (*watchCmd) Name() string     { return "watch" }
func (*watchCmd) Synopsis() string { return "refresh prices periodically and reprint the summary" }
func (*watchCmd) Usage() string {
	return `folio watch [-interval 5m]

  Values the ledger once, then re-prices holdings every interval until
  interrupted. Quantities and cost basis are not recomputed.
`
}

func (c *watchCmd) SetFlags(f *flag.FlagSet) {
	f.DurationVar(&c.interval, "interval", 5*time.Minute, "time between price refreshes")
}

func (c *watchCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.interval <= 0 {
		fmt.Fprintln(os.Stderr, "-interval must be positive")
		return subcommands.ExitUsageError
	}
	a, err := openApp(ctx)
	if err != nil {
		return fail("loading portfolio", err)
	}
	defer a.Close()

	show := func() {
		s, err := a.Portfolio.Summary(ctx)
		if err != nil {
			a.Logger.Warn().Err(err).Msg("Summary failed")
			return
		}
		emit(s, func() string { return formatSummary(s) })
	}

	show()
	a.StartPriceRefresh(c.interval, show)
	<-ctx.Done()
	return subcommands.ExitSuccess
}

// versionCmd prints build information
type versionCmd struct{}

func (*versionCmd) Name() string           { return "version" }
func (*versionCmd) Synopsis() string       { return "print version information" }
func (*versionCmd) Usage() string          { return "folio version\n" }
func (*versionCmd) SetFlags(*flag.FlagSet) {}
func (*versionCmd) Execute(context.Context, *flag.FlagSet, ...interface{}) subcommands.ExitStatus {
	common.LoadVersionFromFile()
	fmt.Fprintln(stdout, common.GetFullVersion())
	return subcommands.ExitSuccess
}
