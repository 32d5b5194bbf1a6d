// Package ledger loads brokerage trade exports into a normalised, time
// ordered trade ledger.
package ledger

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/interfaces"
	"github.com/bobmcallan/folio/internal/models"
)

// Column aliases, matched case-insensitively after trimming.
var (
	symbolColumns    = []string{"symbol", "ticker"}
	timestampColumns = []string{"date/time", "datetime", "timestamp", "date", "trade date"}
	quantityColumns  = []string{"quantity", "qty", "shares"}
	priceColumns     = []string{"t. price", "trade price", "price"}
	currencyColumns  = []string{"currency"}
	kindColumns      = []string{"header"}            // section row kind: Header, Data, SubTotal, Total
	discrimColumns   = []string{"datadiscriminator"} // Order, Trade, ClosedLot
)

// tradeDiscriminators are the row discriminator values kept as trades
var tradeDiscriminators = map[string]bool{"order": true, "trade": true}

var timestampLayouts = []string{
	"2006-01-02, 15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"01/02/2006 15:04:05",
	"01/02/2006",
	"20060102;150405",
	"20060102",
}

// Loader implements interfaces.TradeLoader over a directory of CSV exports
type Loader struct {
	dataPath        string
	defaultCurrency string
	logger          *common.Logger
}

// NewLoader creates a loader for the ledger section of the config
func NewLoader(cfg common.LedgerConfig, logger *common.Logger) *Loader {
	cur := strings.ToUpper(strings.TrimSpace(cfg.DefaultCurrency))
	if cur == "" {
		cur = "USD"
	}
	return &Loader{
		dataPath:        cfg.DataPath,
		defaultCurrency: cur,
		logger:          logger,
	}
}

// Load reads every *.csv file in the data directory and returns the trades
// ordered by timestamp. Malformed rows and unreadable files are logged and
// skipped; only a ledger with no valid rows at all is an error.
func (l *Loader) Load(ctx context.Context) ([]models.TradeRecord, error) {
	info, err := os.Stat(l.dataPath)
	if err != nil {
		return nil, fmt.Errorf("ledger data directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("ledger data path %s is not a directory", l.dataPath)
	}

	files, err := filepath.Glob(filepath.Join(l.dataPath, "*.csv"))
	if err != nil {
		return nil, fmt.Errorf("ledger glob: %w", err)
	}
	sort.Strings(files)
	if len(files) == 0 {
		l.logger.Warn().Str("path", l.dataPath).Msg("No CSV files found")
	}

	var trades []models.TradeRecord
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows, err := l.loadFile(path)
		if err != nil {
			l.logger.Error().Str("file", path).Err(err).Msg("Skipping unreadable trade file")
			continue
		}
		trades = append(trades, rows...)
	}

	if len(trades) == 0 {
		return nil, fmt.Errorf("%s: %w", l.dataPath, models.ErrNoValidTrades)
	}

	models.SortTrades(trades)
	l.logger.Info().Int("trades", len(trades)).Int("files", len(files)).Msg("Trade ledger loaded")
	return trades, nil
}

func (l *Loader) loadFile(path string) ([]models.TradeRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return l.Parse(f, filepath.Base(path))
}

// columnMap locates the fields of interest in a header row
type columnMap struct {
	symbol, timestamp, quantity, price, currency, kind, discrim int
}

func newColumnMap(header []string) (columnMap, error) {
	m := columnMap{
		symbol:    findColumn(header, symbolColumns),
		timestamp: findColumn(header, timestampColumns),
		quantity:  findColumn(header, quantityColumns),
		price:     findColumn(header, priceColumns),
		currency:  findColumn(header, currencyColumns),
		kind:      findColumn(header, kindColumns),
		discrim:   findColumn(header, discrimColumns),
	}
	var missing []string
	if m.symbol < 0 {
		missing = append(missing, "symbol")
	}
	if m.timestamp < 0 {
		missing = append(missing, "timestamp")
	}
	if m.quantity < 0 {
		missing = append(missing, "quantity")
	}
	if m.price < 0 {
		missing = append(missing, "price")
	}
	if len(missing) > 0 {
		return m, fmt.Errorf("missing required columns: %s", strings.Join(missing, ", "))
	}
	return m, nil
}

func findColumn(header []string, aliases []string) int {
	for _, alias := range aliases {
		for i, h := range header {
			if strings.EqualFold(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")), alias) {
				return i
			}
		}
	}
	return -1
}

// Parse reads one CSV export. The first row is the header; in sectioned
// exports a later row whose kind column reads "Header" starts a new header.
func (l *Loader) Parse(r io.Reader, source string) ([]models.TradeRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	cols, err := newColumnMap(header)
	if err != nil {
		return nil, err
	}

	var trades []models.TradeRecord
	line := 1
	skipSection := false // current section's header has no trade columns
	for {
		record, err := reader.Read()
		line++
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			l.logger.Warn().Str("file", source).Int("line", line).Err(err).Msg("Dropping unreadable row")
			continue
		}

		if cols.kind >= 0 && cols.kind < len(record) {
			switch strings.TrimSpace(record[cols.kind]) {
			case "Header":
				next, err := newColumnMap(record)
				if err != nil {
					l.logger.Debug().Str("file", source).Int("line", line).Str("section", record[0]).Msg("Skipping non-trade section")
					skipSection = true
					continue
				}
				cols, skipSection = next, false
				continue
			case "Data":
				if skipSection {
					continue
				}
			default:
				continue // SubTotal, Total
			}
		}
		if cols.discrim >= 0 && cols.discrim < len(record) {
			if !tradeDiscriminators[strings.ToLower(strings.TrimSpace(record[cols.discrim]))] {
				continue
			}
		}

		tr, reason := l.parseRow(record, cols)
		if reason != "" {
			l.logger.Warn().Str("file", source).Int("line", line).Str("reason", reason).Msg("Dropping malformed trade row")
			continue
		}
		tr.Source = source
		trades = append(trades, tr)
	}
	return trades, nil
}

// parseRow converts one record, returning a non-empty reason when it must be dropped
func (l *Loader) parseRow(record []string, cols columnMap) (models.TradeRecord, string) {
	field := func(i int) string {
		if i < 0 || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	symbol := strings.ToUpper(field(cols.symbol))
	if symbol == "" {
		return models.TradeRecord{}, "missing symbol"
	}
	ts, err := ParseTimestamp(field(cols.timestamp))
	if err != nil {
		return models.TradeRecord{}, err.Error()
	}
	qty, err := ParseNumber(field(cols.quantity))
	if err != nil {
		return models.TradeRecord{}, "quantity: " + err.Error()
	}
	price, err := ParseNumber(field(cols.price))
	if err != nil {
		return models.TradeRecord{}, "price: " + err.Error()
	}

	currency := strings.ToUpper(field(cols.currency))
	if currency == "" {
		currency = l.defaultCurrency
	}

	return models.NewTradeRecord(symbol, ts, qty, price, currency), ""
}

// ParseNumber parses a decimal that may carry thousands separators or quotes
func ParseNumber(s string) (float64, error) {
	cleaned := strings.Trim(strings.TrimSpace(s), "\"")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	if cleaned == "" {
		return 0, errors.New("empty value")
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return 0, fmt.Errorf("not numeric: %q", s)
	}
	return d.InexactFloat64(), nil
}

// ParseTimestamp accepts the layouts brokers commonly export. Timestamps
// without a zone are read as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("missing timestamp")
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}

// Ensure Loader implements TradeLoader
var _ interfaces.TradeLoader = (*Loader)(nil)
