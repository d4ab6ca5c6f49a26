package sales

import (
	"fmt"
	"sort"
	"strings"

	"github.com/alusci/ask-bi/docs"
)

// BuildSummary reduces a slice of records into the structured aggregate that
// backs one document: totals, averages, date range and sum/count/mean
// breakdowns by product, region and gender.
func BuildSummary(records []Record, level, value string) *docs.RawSummary {
	summary := &docs.RawSummary{
		Level:        level,
		Value:        value,
		TotalRecords: len(records),
	}
	if len(records) == 0 {
		return summary
	}

	minDate, maxDate := records[0].Date, records[0].Date
	var totalSales, totalSatisfaction float64
	for _, rec := range records {
		totalSales += rec.Sales
		totalSatisfaction += rec.Satisfaction
		if rec.Date.Before(minDate) {
			minDate = rec.Date
		}
		if rec.Date.After(maxDate) {
			maxDate = rec.Date
		}
	}

	summary.TotalSales = totalSales
	summary.AverageSale = totalSales / float64(len(records))
	summary.AverageSatisfaction = totalSatisfaction / float64(len(records))
	summary.DateRange = docs.DateRange{
		Start: minDate.Format("2006-01-02"),
		End:   maxDate.Format("2006-01-02"),
	}
	summary.ProductSummary = breakdownBy(records, func(r Record) string { return r.Product })
	summary.RegionSummary = breakdownBy(records, func(r Record) string { return r.Region })
	summary.GenderSummary = breakdownBy(records, func(r Record) string { return r.Gender })

	return summary
}

func breakdownBy(records []Record, key func(Record) string) map[string]docs.Breakdown {
	out := make(map[string]docs.Breakdown)
	for _, rec := range records {
		entry := out[key(rec)]
		entry.Sum += rec.Sales
		entry.Count++
		out[key(rec)] = entry
	}
	for k, entry := range out {
		entry.Mean = entry.Sum / float64(entry.Count)
		out[k] = entry
	}
	return out
}

// RenderText produces the fixed-format natural-language block that gets
// embedded and retrieved. Which breakdown sections appear depends on the
// dimension: a product document does not break down by product, and so on.
func RenderText(title string, summary *docs.RawSummary, sections ...string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\n", title)
	fmt.Fprintf(&sb, "Total Records: %d\n", summary.TotalRecords)
	fmt.Fprintf(&sb, "Total Sales: $%.2f\n", summary.TotalSales)
	fmt.Fprintf(&sb, "Average Sale: $%.2f\n", summary.AverageSale)
	fmt.Fprintf(&sb, "Average Customer Satisfaction: %.2f\n", summary.AverageSatisfaction)
	fmt.Fprintf(&sb, "Date Range: %s to %s\n", summary.DateRange.Start, summary.DateRange.End)

	for _, section := range sections {
		switch section {
		case "product":
			writeBreakdown(&sb, "Sales by Product", summary.ProductSummary)
		case "region":
			writeBreakdown(&sb, "Sales by Region", summary.RegionSummary)
		case "gender":
			writeBreakdown(&sb, "Sales by Gender", summary.GenderSummary)
		}
	}

	return sb.String()
}

func writeBreakdown(sb *strings.Builder, heading string, entries map[string]docs.Breakdown) {
	sb.WriteString("\n" + heading + ":\n")
	for _, name := range sortedKeys(entries) {
		stats := entries[name]
		fmt.Fprintf(sb, "- %s: $%.2f total, %d sales, $%.2f average\n", name, stats.Sum, stats.Count, stats.Mean)
	}
}

func sortedKeys(entries map[string]docs.Breakdown) []string {
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
