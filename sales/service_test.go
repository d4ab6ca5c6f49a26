package sales

import (
	"io"
	"log"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/alusci/ask-bi/docs"
)

func generatorRecords() []Record {
	return []Record{
		{Date: time.Date(2023, 1, 10, 0, 0, 0, 0, time.UTC), Product: "Widget A", Region: "North", Sales: 100, CustomerAge: 22, Gender: "Male", Satisfaction: 4},
		{Date: time.Date(2023, 2, 5, 0, 0, 0, 0, time.UTC), Product: "Widget B", Region: "South", Sales: 200, CustomerAge: 30, Gender: "Female", Satisfaction: 5},
		{Date: time.Date(2023, 5, 20, 0, 0, 0, 0, time.UTC), Product: "Widget A", Region: "South", Sales: 300, CustomerAge: 45, Gender: "Female", Satisfaction: 3},
		{Date: time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC), Product: "Widget B", Region: "North", Sales: 150, CustomerAge: 80, Gender: "Male", Satisfaction: 4},
	}
}

func TestBuildDocumentsCoversEveryDimension(t *testing.T) {
	gen := NewGenerator(log.New(io.Discard, "", 0))
	documents, err := gen.BuildDocuments(generatorRecords(), t.TempDir())
	if err != nil {
		t.Fatalf("build documents: %v", err)
	}

	// 2 quarters + 2 products + 2 regions + 3 age groups + overall. The 80
	// year old falls outside every bucket, so 51-70 has no document.
	if len(documents) != 10 {
		t.Fatalf("expected 10 documents, got %d", len(documents))
	}

	byID := make(map[string]docs.Document, len(documents))
	for _, doc := range documents {
		byID[doc.ID] = doc
	}
	for _, id := range []string{
		"time_2023-Q1", "time_2023-Q2",
		"product_Widget_A", "product_Widget_B",
		"region_North", "region_South",
		"age_group_18-25", "age_group_26-35", "age_group_36-50",
		"overall_summary",
	} {
		if _, ok := byID[id]; !ok {
			t.Errorf("missing document %s", id)
		}
	}
	if _, ok := byID["age_group_51-70"]; ok {
		t.Error("unexpected document for the empty 51-70 bucket")
	}
}

func TestBuildDocumentsMetadataAndCharts(t *testing.T) {
	gen := NewGenerator(log.New(io.Discard, "", 0))
	documents, err := gen.BuildDocuments(generatorRecords(), t.TempDir())
	if err != nil {
		t.Fatalf("build documents: %v", err)
	}

	for _, doc := range documents {
		if doc.Metadata.RawData == nil {
			t.Errorf("%s: missing raw data", doc.ID)
			continue
		}
		if doc.Metadata.RawData.TotalRecords == 0 {
			t.Errorf("%s: raw data has no records", doc.ID)
		}
		if doc.Metadata.PlotPath == "" {
			t.Errorf("%s: missing plot path", doc.ID)
			continue
		}
		info, err := os.Stat(doc.Metadata.PlotPath)
		if err != nil {
			t.Errorf("%s: chart not written: %v", doc.ID, err)
			continue
		}
		if info.Size() == 0 {
			t.Errorf("%s: chart file is empty", doc.ID)
		}
	}
}

func TestBuildDocumentsProductDocument(t *testing.T) {
	gen := NewGenerator(log.New(io.Discard, "", 0))
	documents, err := gen.BuildDocuments(generatorRecords(), t.TempDir())
	if err != nil {
		t.Fatalf("build documents: %v", err)
	}

	var widgetA docs.Document
	for _, doc := range documents {
		if doc.ID == "product_Widget_A" {
			widgetA = doc
		}
	}
	if widgetA.ID == "" {
		t.Fatal("missing Widget A document")
	}

	if widgetA.Metadata.Type != docs.TypeProduct || widgetA.Metadata.Product != "Widget A" {
		t.Fatalf("unexpected metadata: %+v", widgetA.Metadata)
	}
	if widgetA.Metadata.RawData.TotalSales != 400 {
		t.Fatalf("expected total sales 400, got %v", widgetA.Metadata.RawData.TotalSales)
	}
	if !strings.Contains(widgetA.Text, "Sales Summary for Widget A") {
		t.Fatalf("unexpected text:\n%s", widgetA.Text)
	}
	if strings.Contains(widgetA.Text, "Sales by Product:") {
		t.Fatal("product document should not break down by product")
	}
}

func TestBuildDocumentsEmptyInput(t *testing.T) {
	gen := NewGenerator(log.New(io.Discard, "", 0))
	if _, err := gen.BuildDocuments(nil, t.TempDir()); err == nil {
		t.Fatal("expected an error for empty input")
	}
}

func TestWriteChartProducesValidSVG(t *testing.T) {
	path := t.TempDir() + "/chart.svg"
	panels := []chartPanel{{
		Title: "Sales by Region",
		Bars:  []chartBar{{Label: "North", Value: 250}, {Label: "South", Value: 500}},
	}}
	if err := WriteChart(path, "Sales for <2023-Q1>", panels); err != nil {
		t.Fatalf("write chart: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read chart: %v", err)
	}
	content := string(data)
	if !strings.HasPrefix(content, "<svg") {
		t.Fatalf("expected SVG root element, got:\n%.80s", content)
	}
	if !strings.Contains(content, "&lt;2023-Q1&gt;") {
		t.Fatal("title is not XML-escaped")
	}
	if !strings.Contains(content, "North") || !strings.Contains(content, "South") {
		t.Fatal("bar labels missing")
	}
}
