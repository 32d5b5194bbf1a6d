package ledger

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/models"
)

func newTestLoader(dir string) *Loader {
	return NewLoader(common.LedgerConfig{DataPath: dir, DefaultCurrency: "usd"}, common.NewSilentLogger())
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestParse_DropsMalformedPriceRow(t *testing.T) {
	var b strings.Builder
	b.WriteString("Symbol,Date/Time,Quantity,T. Price,Currency\n")
	for i := 1; i <= 9; i++ {
		b.WriteString("AAPL,2024-01-0" + string(rune('0'+i)) + " 10:00:00,10,150.25,USD\n")
	}
	b.WriteString("AAPL,2024-01-10 10:00:00,10,abc,USD\n")

	trades, err := newTestLoader("").Parse(strings.NewReader(b.String()), "test.csv")
	require.NoError(t, err)
	assert.Len(t, trades, 9)
}

func TestParse_ThousandsSeparatorsAndQuotes(t *testing.T) {
	csv := "Symbol,Date/Time,Quantity,T. Price,Currency\n" +
		"BRK.B,\"2024-02-01, 09:30:00\",\"1,000\",\"1,234.50\",usd\n"

	trades, err := newTestLoader("").Parse(strings.NewReader(csv), "test.csv")
	require.NoError(t, err)
	require.Len(t, trades, 1)

	tr := trades[0]
	assert.Equal(t, "BRK.B", tr.Symbol)
	assert.Equal(t, 1000.0, tr.Quantity)
	assert.Equal(t, 1234.5, tr.Price)
	assert.Equal(t, "USD", tr.Currency)
	assert.Equal(t, time.Date(2024, 2, 1, 9, 30, 0, 0, time.UTC), tr.Timestamp)
	assert.Equal(t, tr.Quantity, tr.AdjustedQuantity)
	assert.Equal(t, tr.Price, tr.AdjustedPrice)
	assert.Equal(t, "test.csv", tr.Source)
}

func TestParse_DropsMissingFields(t *testing.T) {
	csv := "Symbol,Date/Time,Quantity,T. Price\n" +
		",2024-01-01,1,1\n" +
		"MSFT,not a date,1,1\n" +
		"MSFT,2024-01-01,,1\n" +
		"MSFT,2024-01-01,-5,300\n" +
		"MSFT\n"

	trades, err := newTestLoader("").Parse(strings.NewReader(csv), "test.csv")
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, -5.0, trades[0].Quantity)
	assert.True(t, trades[0].IsSell())
	assert.Equal(t, "USD", trades[0].Currency, "missing currency column uses default")
}

func TestParse_SectionedExportKeepsOnlyTradeRows(t *testing.T) {
	csv := "Trades,Header,DataDiscriminator,Asset Category,Currency,Symbol,Date/Time,Quantity,T. Price\n" +
		"Trades,Data,Order,Stocks,USD,AAPL,\"2023-05-01, 10:00:00\",10,170\n" +
		"Trades,Data,ClosedLot,Stocks,USD,AAPL,2023-04-01,5,160\n" +
		"Trades,SubTotal,,Stocks,USD,AAPL,,15,\n" +
		"Trades,Data,Trade,Stocks,SGD,D05,\"2023-05-02, 10:00:00\",100,32.5\n" +
		"Trades,Total,,,,,,,\n"

	trades, err := newTestLoader("").Parse(strings.NewReader(csv), "ibkr.csv")
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, "AAPL", trades[0].Symbol)
	assert.Equal(t, "D05", trades[1].Symbol)
	assert.Equal(t, "SGD", trades[1].Currency)
}

func TestParse_SectionedExportSkipsNonTradeSection(t *testing.T) {
	csv := "Trades,Header,Symbol,Date/Time,Quantity,T. Price,Currency\n" +
		"Trades,Data,AAPL,2024-01-02,10,185,USD\n" +
		"Transfers,Header,Direction,Date,Quantity,Market Value,Currency\n" +
		"Transfers,Data,In,2024-02-02,50,9000,USD\n" +
		"Trades,Header,Symbol,Date/Time,Quantity,T. Price,Currency\n" +
		"Trades,Data,MSFT,2024-03-01,2,410,USD\n"

	trades, err := newTestLoader("").Parse(strings.NewReader(csv), "ibkr.csv")
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, "AAPL", trades[0].Symbol)
	assert.Equal(t, "MSFT", trades[1].Symbol)
	assert.Equal(t, 410.0, trades[1].Price)
}

func TestParse_MissingRequiredColumn(t *testing.T) {
	_, err := newTestLoader("").Parse(strings.NewReader("Symbol,Quantity\nAAPL,1\n"), "bad.csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timestamp")
}

func TestLoad_MergesFilesSortedByTimestamp(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.csv", "Symbol,Date/Time,Quantity,T. Price,Currency\nMSFT,2022-03-01,5,300,USD\n")
	writeFile(t, dir, "a.csv", "Symbol,Date/Time,Quantity,T. Price,Currency\nAAPL,2023-01-01,1,100,USD\nAAPL,2021-06-01,1,90,USD\n")
	writeFile(t, dir, "notes.txt", "ignored")
	writeFile(t, dir, "broken.csv", "just,a,header\n")

	trades, err := newTestLoader(dir).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, trades, 3)

	for i := 1; i < len(trades); i++ {
		assert.False(t, trades[i].Timestamp.Before(trades[i-1].Timestamp))
	}
	assert.Equal(t, "MSFT", trades[1].Symbol)
}

func TestLoad_NoValidRowsIsDataError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.csv", "Symbol,Date/Time,Quantity,T. Price\nAAPL,bad,1,1\n")

	_, err := newTestLoader(dir).Load(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrNoValidTrades))
}

func TestLoad_MissingDirectory(t *testing.T) {
	_, err := newTestLoader(filepath.Join(t.TempDir(), "nope")).Load(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, models.ErrNoValidTrades))
}

func TestParseTimestamp_Layouts(t *testing.T) {
	want := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	for _, s := range []string{"2024-03-05", "03/05/2024", "20240305", "2024-03-05T00:00:00Z"} {
		got, err := ParseTimestamp(s)
		require.NoError(t, err, s)
		assert.True(t, want.Equal(got), s)
	}

	got, err := ParseTimestamp("2024-03-05T09:00:00+08:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 5, 1, 0, 0, 0, time.UTC), got)

	_, err = ParseTimestamp("yesterday")
	assert.Error(t, err)
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{"1,234.56", 1234.56, false},
		{" -10 ", -10, false},
		{"\"42\"", 42, false},
		{"", 0, true},
		{"N/A", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseNumber(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
