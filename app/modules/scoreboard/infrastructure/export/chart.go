package scoreboardexport

import (
	"bytes"
	"fmt"

	scoreboardservice "github.com/scorecard-club/scorecard/app/modules/scoreboard/application"
	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// ProgressionChart renders each player's running total per round as a PNG
// line chart. Empty cells add nothing to the running total.
func ProgressionChart(roundCount int, rows []scoreboardservice.Row) ([]byte, error) {
	if roundCount == 0 || len(rows) == 0 {
		return renderPlaceholder("No scores yet")
	}

	xValues := make([]float64, roundCount)
	for r := range roundCount {
		xValues[r] = float64(r + 1)
	}

	series := make([]chart.Series, 0, len(rows))
	for i, row := range rows {
		yValues := make([]float64, roundCount)
		running := 0
		for r := range roundCount {
			if r < len(row.Cells) {
				if v, ok := row.Cells[r].Value(); ok {
					running += v
				}
			}
			yValues[r] = float64(running)
		}
		series = append(series, chart.ContinuousSeries{
			Name:    row.Name,
			XValues: xValues,
			YValues: yValues,
			Style: chart.Style{
				StrokeColor: chart.GetDefaultColor(i),
				StrokeWidth: 2,
				DotWidth:    3,
				DotColor:    chart.GetDefaultColor(i),
			},
		})
	}

	graph := chart.Chart{
		Width:  800,
		Height: 400,
		Background: chart.Style{
			Padding: chart.Box{Top: 20, Left: 20, Right: 20, Bottom: 20},
		},
		XAxis: chart.XAxis{
			Name: "Round",
			ValueFormatter: func(v any) string {
				if f, ok := v.(float64); ok {
					return fmt.Sprintf("%d", int(f))
				}
				return ""
			},
		},
		YAxis: chart.YAxis{
			Name: "Total",
		},
		Series: series,
	}
	// A zero-width range fails to render.
	if roundCount == 1 {
		graph.XAxis.Range = &chart.ContinuousRange{Min: 0, Max: 2}
	}
	if flat(series) {
		graph.YAxis.Range = &chart.ContinuousRange{Min: -1, Max: 1}
	}
	graph.Elements = []chart.Renderable{chart.LegendLeft(&graph)}

	buffer := bytes.NewBuffer(nil)
	if err := graph.Render(chart.PNG, buffer); err != nil {
		return nil, fmt.Errorf("failed to render chart: %w", err)
	}
	return buffer.Bytes(), nil
}

func flat(series []chart.Series) bool {
	var first float64
	seen := false
	for _, s := range series {
		cs, ok := s.(chart.ContinuousSeries)
		if !ok {
			continue
		}
		for _, y := range cs.YValues {
			if !seen {
				first, seen = y, true
				continue
			}
			if y != first {
				return false
			}
		}
	}
	return true
}

func renderPlaceholder(msg string) ([]byte, error) {
	graph := chart.Chart{
		Width:  400,
		Height: 200,
		Background: chart.Style{
			FillColor: drawing.ColorWhite,
		},
		XAxis: chart.XAxis{Style: chart.Hidden()},
		YAxis: chart.YAxis{
			Style: chart.Hidden(),
			Range: &chart.ContinuousRange{Min: -1, Max: 1},
		},
		// go-chart refuses to render without a series.
		Series: []chart.Series{chart.ContinuousSeries{
			XValues: []float64{0, 1},
			YValues: []float64{0, 0},
			Style:   chart.Style{StrokeColor: drawing.ColorTransparent},
		}},
		Elements: []chart.Renderable{
			func(r chart.Renderer, cb chart.Box, _ chart.Style) {
				r.SetFontColor(drawing.ColorBlack)
				r.SetFontSize(12.0)
				tb := r.MeasureText(msg)
				r.Text(msg, (cb.Width()-tb.Width())/2, (cb.Height()+tb.Height())/2)
			},
		},
	}
	buffer := bytes.NewBuffer(nil)
	if err := graph.Render(chart.PNG, buffer); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}
