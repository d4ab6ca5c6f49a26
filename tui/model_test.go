package tui

import (
	"strings"
	"testing"

	"github.com/alusci/ask-bi/docs"
)

func TestFormatSources(t *testing.T) {
	out := formatSources([]docs.Metadata{
		{
			Type:    docs.TypeProduct,
			Product: "Widget A",
			RawData: &docs.RawSummary{
				TotalRecords:        12,
				TotalSales:          3456.78,
				AverageSale:         288.07,
				AverageSatisfaction: 4.2,
			},
			PlotPath: "plots/product_Widget_A.svg",
		},
		{Type: docs.TypeOverall},
	})

	if !strings.Contains(out, "Sources:") {
		t.Fatalf("missing heading:\n%s", out)
	}
	if !strings.Contains(out, "1. Widget A") {
		t.Fatalf("missing product label:\n%s", out)
	}
	if !strings.Contains(out, "Total $3456.78") || !strings.Contains(out, "Sat 4.20/5") {
		t.Fatalf("missing stats:\n%s", out)
	}
	if !strings.Contains(out, "chart: plots/product_Widget_A.svg") {
		t.Fatalf("missing chart path:\n%s", out)
	}
	if !strings.Contains(out, "2. Overall summary") {
		t.Fatalf("missing overall label:\n%s", out)
	}
}

func TestFormatSourcesEmpty(t *testing.T) {
	if out := formatSources(nil); out != "" {
		t.Fatalf("expected empty output, got %q", out)
	}
}

func TestSourceLabel(t *testing.T) {
	cases := []struct {
		meta docs.Metadata
		want string
	}{
		{docs.Metadata{Type: docs.TypeTimePeriod, Period: "2023-Q1"}, "Time period 2023-Q1"},
		{docs.Metadata{Type: docs.TypeRegion, Region: "North"}, "North Region"},
		{docs.Metadata{Type: docs.TypeDemographic, AgeGroup: "26-35"}, "Age group 26-35"},
		{docs.Metadata{Type: "unknown"}, "Source"},
	}
	for _, tc := range cases {
		if got := sourceLabel(tc.meta); got != tc.want {
			t.Errorf("type %s: expected %q, got %q", tc.meta.Type, tc.want, got)
		}
	}
}
