package portfolio

import (
	"bytes"
	"fmt"
	"time"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/bobmcallan/folio/internal/models"
)

// RenderValueChart renders the value history as a PNG line chart.
// Returns raw PNG bytes.
func RenderValueChart(history *models.ValueHistory) ([]byte, error) {
	if history == nil || len(history.Points) < 2 {
		n := 0
		if history != nil {
			n = len(history.Points)
		}
		return nil, fmt.Errorf("need at least 2 data points, got %d", n)
	}

	xValues := make([]time.Time, len(history.Points))
	yValues := make([]float64, len(history.Points))
	for i, p := range history.Points {
		xValues[i] = p.Date
		yValues[i] = p.Value
	}

	title := "Portfolio Value (" + history.Currency + ")"
	if history.Incomplete {
		title += " - incomplete"
	}

	graph := chart.Chart{
		Title:  title,
		Width:  900,
		Height: 400,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 10, Right: 20, Bottom: 10},
		},
		XAxis: chart.XAxis{
			TickPosition: chart.TickPositionBetweenTicks,
			ValueFormatter: func(v interface{}) string {
				if t, ok := v.(float64); ok {
					return chart.TimeFromFloat64(t).Format("02 Jan")
				}
				return ""
			},
		},
		YAxis: chart.YAxis{
			ValueFormatter: func(v interface{}) string {
				if f, ok := v.(float64); ok {
					return fmt.Sprintf("%.0fk", f/1000)
				}
				return ""
			},
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name: "Value",
				Style: chart.Style{
					StrokeColor: drawing.ColorFromHex("2563eb"), // blue-600
					StrokeWidth: 2.5,
				},
				XValues: xValues,
				YValues: yValues,
			},
		},
	}

	return render(&graph)
}

// RenderSplitsChart renders price before and after each audited split as
// a grouped PNG bar chart.
func RenderSplitsChart(analysis *models.SplitsAnalysis) ([]byte, error) {
	if analysis == nil || len(analysis.Splits) == 0 {
		return nil, fmt.Errorf("no splits to chart")
	}

	var bars []chart.Value
	for _, a := range analysis.Splits {
		label := fmt.Sprintf("%s %s", a.Symbol, a.Date.Format("2006-01-02"))
		bars = append(bars,
			chart.Value{
				Label: label + " before",
				Value: a.PriceBefore,
				Style: chart.Style{FillColor: drawing.ColorFromHex("9ca3af"), StrokeColor: drawing.ColorFromHex("9ca3af")},
			},
			chart.Value{
				Label: fmt.Sprintf("after 1:%g", a.Ratio),
				Value: a.PriceAfter,
				Style: chart.Style{FillColor: drawing.ColorFromHex("2563eb"), StrokeColor: drawing.ColorFromHex("2563eb")},
			},
		)
	}

	graph := chart.BarChart{
		Title:  "Split Adjustments",
		Width:  120 * len(bars),
		Height: 400,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 10, Right: 20, Bottom: 10},
		},
		BarWidth: 40,
		Bars:     bars,
	}
	if graph.Width < 400 {
		graph.Width = 400
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("chart render failed: %w", err)
	}
	return buf.Bytes(), nil
}

func render(graph *chart.Chart) ([]byte, error) {
	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("chart render failed: %w", err)
	}
	return buf.Bytes(), nil
}
