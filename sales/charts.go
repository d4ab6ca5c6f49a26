package sales

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/alusci/ask-bi/docs"
)

// Chart rendering writes self-contained SVG files. The panels mirror the
// breakdowns present in the summary so each document ships with one chart
// covering its dimension.

type chartBar struct {
	Label string
	Value float64
}

type chartPanel struct {
	Title string
	Bars  []chartBar
}

const (
	chartWidth   = 640
	panelHeight  = 40
	barHeight    = 22
	barMaxWidth  = 380
	labelWidth   = 150
	panelPadding = 16
)

// WriteChart renders the panels stacked vertically into a single SVG file.
func WriteChart(path, title string, panels []chartPanel) error {
	var sb strings.Builder

	totalHeight := panelPadding * 2
	for _, panel := range panels {
		totalHeight += panelHeight + len(panel.Bars)*(barHeight+6)
	}

	fmt.Fprintf(&sb, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" font-family="sans-serif">`+"\n", chartWidth, totalHeight+30)
	fmt.Fprintf(&sb, `<text x="%d" y="22" font-size="16" font-weight="bold">%s</text>`+"\n", panelPadding, escapeXML(title))

	y := 40
	for _, panel := range panels {
		fmt.Fprintf(&sb, `<text x="%d" y="%d" font-size="13" fill="#444">%s</text>`+"\n", panelPadding, y+14, escapeXML(panel.Title))
		y += panelHeight - 10

		maxValue := 0.0
		for _, bar := range panel.Bars {
			if bar.Value > maxValue {
				maxValue = bar.Value
			}
		}

		for _, bar := range panel.Bars {
			width := 0
			if maxValue > 0 {
				width = int(bar.Value / maxValue * barMaxWidth)
			}
			fmt.Fprintf(&sb, `<text x="%d" y="%d" font-size="11" text-anchor="end">%s</text>`+"\n",
				labelWidth-6, y+barHeight-7, escapeXML(bar.Label))
			fmt.Fprintf(&sb, `<rect x="%d" y="%d" width="%d" height="%d" fill="#2a7f8f"/>`+"\n",
				labelWidth, y, width, barHeight)
			fmt.Fprintf(&sb, `<text x="%d" y="%d" font-size="11" fill="#222">%.2f</text>`+"\n",
				labelWidth+width+6, y+barHeight-7, bar.Value)
			y += barHeight + 6
		}
		y += panelPadding
	}

	sb.WriteString("</svg>\n")

	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		return fmt.Errorf("write chart: %w", err)
	}
	return nil
}

func breakdownPanel(title string, entries map[string]docs.Breakdown) chartPanel {
	bars := make([]chartBar, 0, len(entries))
	for name, stats := range entries {
		bars = append(bars, chartBar{Label: name, Value: stats.Sum})
	}
	sort.Slice(bars, func(i, j int) bool {
		if bars[i].Value != bars[j].Value {
			return bars[i].Value > bars[j].Value
		}
		return bars[i].Label < bars[j].Label
	})
	return chartPanel{Title: title, Bars: bars}
}

func escapeXML(s string) string {
	replacer := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
	)
	return replacer.Replace(s)
}
