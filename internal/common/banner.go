package common

import (
	"fmt"
	"io"
	"strings"

	"github.com/ternarybob/banner"
)

// PrintBanner writes the startup banner for a CLI run to w.
func PrintBanner(w io.Writer, config *Config, logger *Logger) {
	lineColor := banner.ColorCyan
	textColor := banner.ColorBold + banner.ColorWhite
	hr := lineColor + strings.Repeat("═", 56) + banner.ColorReset

	fmt.Fprintf(w, "\n%s\n", hr)
	fmt.Fprintf(w, "%s  FOLIO  portfolio valuation%s\n", textColor, banner.ColorReset)
	fmt.Fprintf(w, "%s\n", hr)

	kvLines := [][2]string{
		{"Version", GetVersion()},
		{"Environment", config.Environment},
		{"Data", config.Ledger.DataPath},
		{"Provider", config.Clients.Provider},
		{"Currencies", strings.Join(config.Currency.Tracked, ", ")},
	}
	for _, kv := range kvLines {
		fmt.Fprintf(w, "%s  %-12s %s%s\n", textColor, kv[0], kv[1], banner.ColorReset)
	}
	fmt.Fprintf(w, "%s\n\n", hr)

	logger.Debug().
		Str("version", GetVersion()).
		Str("environment", config.Environment).
		Str("data_path", config.Ledger.DataPath).
		Str("provider", config.Clients.Provider).
		Msg("Folio started")
}
