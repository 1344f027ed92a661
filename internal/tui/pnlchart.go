package tui

import (
	tslc "github.com/NimbleMarkets/ntcharts/linechart/timeserieslinechart"
	"github.com/charmbracelet/lipgloss"

	"github.com/lasersell/viewer/internal/model"
)

// renderPnlChart draws the cumulative pnl history as a braille line chart.
// Values are plotted in SOL.
func renderPnlChart(points []model.PnlPoint, width, height int) string {
	if width < 20 || height < 4 {
		return ""
	}
	if len(points) < 2 {
		return lipgloss.NewStyle().
			Foreground(ColorGray).
			Italic(true).
			Render("collecting pnl history…")
	}

	minSol, maxSol := solValue(points[0]), solValue(points[0])
	for _, p := range points[1:] {
		v := solValue(p)
		if v < minSol {
			minSol = v
		}
		if v > maxSol {
			maxSol = v
		}
	}
	if minSol == maxSol {
		// A flat series still needs a non-degenerate Y range to draw.
		minSol -= 0.001
		maxSol += 0.001
	}

	chart := tslc.New(width, height,
		tslc.WithYRange(minSol, maxSol),
		tslc.WithTimeRange(points[0].At, points[len(points)-1].At),
	)
	for _, p := range points {
		chart.Push(tslc.TimePoint{Time: p.At, Value: solValue(p)})
	}
	chart.DrawBraille()
	return chart.View()
}

func solValue(p model.PnlPoint) float64 {
	return float64(p.Lamports) / model.LamportsPerSol
}
