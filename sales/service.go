package sales

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/alusci/ask-bi/docs"
)

// Generator turns the raw dataset into the document set consumed by the
// indexing step.
type Generator struct {
	logger *log.Logger
}

func NewGenerator(logger *log.Logger) *Generator {
	if logger == nil {
		logger = log.Default()
	}
	return &Generator{logger: logger}
}

// BuildDocuments aggregates records along the five dimensions (time period,
// product, region, age group, overall) and renders one document plus one
// chart per summary. Chart files land in plotsDir.
func (g *Generator) BuildDocuments(records []Record, plotsDir string) ([]docs.Document, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("no sales records to summarize")
	}
	if err := os.MkdirAll(plotsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create plots directory: %w", err)
	}

	documents := make([]docs.Document, 0)

	for _, yq := range uniqueValues(records, func(r Record) string { return r.YearQuarter() }) {
		chunk := filterRecords(records, func(r Record) bool { return r.YearQuarter() == yq })
		doc, err := g.timePeriodDocument(chunk, yq, plotsDir)
		if err != nil {
			return nil, err
		}
		documents = append(documents, doc)
	}

	for _, product := range uniqueValues(records, func(r Record) string { return r.Product }) {
		chunk := filterRecords(records, func(r Record) bool { return r.Product == product })
		doc, err := g.productDocument(chunk, product, plotsDir)
		if err != nil {
			return nil, err
		}
		documents = append(documents, doc)
	}

	for _, region := range uniqueValues(records, func(r Record) string { return r.Region }) {
		chunk := filterRecords(records, func(r Record) bool { return r.Region == region })
		doc, err := g.regionDocument(chunk, region, plotsDir)
		if err != nil {
			return nil, err
		}
		documents = append(documents, doc)
	}

	for _, group := range ageGroupLabels {
		chunk := filterRecords(records, func(r Record) bool {
			label, ok := r.AgeGroup()
			return ok && label == group
		})
		if len(chunk) == 0 {
			continue
		}
		doc, err := g.ageGroupDocument(chunk, group, plotsDir)
		if err != nil {
			return nil, err
		}
		documents = append(documents, doc)
	}

	overall, err := g.overallDocument(records, plotsDir)
	if err != nil {
		return nil, err
	}
	documents = append(documents, overall)

	g.logger.Printf("created %d documents with charts", len(documents))
	return documents, nil
}

func (g *Generator) timePeriodDocument(chunk []Record, yq, plotsDir string) (docs.Document, error) {
	summary := BuildSummary(chunk, "time_period", yq)
	plotPath := filepath.Join(plotsDir, fmt.Sprintf("time_period_%s.svg", strings.ReplaceAll(yq, "-", "_")))
	if err := g.writeSummaryChart(plotPath, fmt.Sprintf("Sales for %s", yq), summary, "product", "region"); err != nil {
		return docs.Document{}, err
	}

	return docs.Document{
		ID:   "time_" + yq,
		Text: RenderText(fmt.Sprintf("Sales Summary for %s", yq), summary, "product", "region"),
		Metadata: docs.Metadata{
			Type:     docs.TypeTimePeriod,
			Period:   yq,
			RawData:  summary,
			PlotPath: plotPath,
		},
	}, nil
}

func (g *Generator) productDocument(chunk []Record, product, plotsDir string) (docs.Document, error) {
	summary := BuildSummary(chunk, "product", product)
	plotPath := filepath.Join(plotsDir, fmt.Sprintf("product_%s.svg", strings.ReplaceAll(product, " ", "_")))
	if err := g.writeSummaryChart(plotPath, fmt.Sprintf("Sales for %s", product), summary, "region", "gender"); err != nil {
		return docs.Document{}, err
	}

	return docs.Document{
		ID:   "product_" + strings.ReplaceAll(product, " ", "_"),
		Text: RenderText(fmt.Sprintf("Sales Summary for %s", product), summary, "region", "gender"),
		Metadata: docs.Metadata{
			Type:     docs.TypeProduct,
			Product:  product,
			RawData:  summary,
			PlotPath: plotPath,
		},
	}, nil
}

func (g *Generator) regionDocument(chunk []Record, region, plotsDir string) (docs.Document, error) {
	summary := BuildSummary(chunk, "region", region)
	plotPath := filepath.Join(plotsDir, fmt.Sprintf("region_%s.svg", region))
	if err := g.writeSummaryChart(plotPath, fmt.Sprintf("Sales for %s Region", region), summary, "product", "gender"); err != nil {
		return docs.Document{}, err
	}

	return docs.Document{
		ID:   "region_" + region,
		Text: RenderText(fmt.Sprintf("Sales Summary for %s Region", region), summary, "product", "gender"),
		Metadata: docs.Metadata{
			Type:     docs.TypeRegion,
			Region:   region,
			RawData:  summary,
			PlotPath: plotPath,
		},
	}, nil
}

func (g *Generator) ageGroupDocument(chunk []Record, group, plotsDir string) (docs.Document, error) {
	summary := BuildSummary(chunk, "age_group", group)
	plotPath := filepath.Join(plotsDir, fmt.Sprintf("age_group_%s.svg", strings.ReplaceAll(group, "-", "to")))
	if err := g.writeSummaryChart(plotPath, fmt.Sprintf("Sales for Age Group %s", group), summary, "product", "region", "gender"); err != nil {
		return docs.Document{}, err
	}

	return docs.Document{
		ID:   "age_group_" + group,
		Text: RenderText(fmt.Sprintf("Sales Summary for Age Group %s", group), summary, "product", "region", "gender"),
		Metadata: docs.Metadata{
			Type:     docs.TypeDemographic,
			AgeGroup: group,
			RawData:  summary,
			PlotPath: plotPath,
		},
	}, nil
}

func (g *Generator) overallDocument(records []Record, plotsDir string) (docs.Document, error) {
	summary := BuildSummary(records, "overall", "all_data")
	plotPath := filepath.Join(plotsDir, "overall_summary.svg")
	if err := g.writeSummaryChart(plotPath, "Overall Sales", summary, "product", "region", "gender"); err != nil {
		return docs.Document{}, err
	}

	return docs.Document{
		ID:   "overall_summary",
		Text: RenderText("Overall Sales Summary", summary, "product", "region", "gender"),
		Metadata: docs.Metadata{
			Type:     docs.TypeOverall,
			RawData:  summary,
			PlotPath: plotPath,
		},
	}, nil
}

func (g *Generator) writeSummaryChart(path, title string, summary *docs.RawSummary, sections ...string) error {
	panels := make([]chartPanel, 0, len(sections))
	for _, section := range sections {
		switch section {
		case "product":
			panels = append(panels, breakdownPanel("Sales by Product", summary.ProductSummary))
		case "region":
			panels = append(panels, breakdownPanel("Sales by Region", summary.RegionSummary))
		case "gender":
			panels = append(panels, breakdownPanel("Sales by Gender", summary.GenderSummary))
		}
	}
	return WriteChart(path, title, panels)
}

func uniqueValues(records []Record, key func(Record) string) []string {
	seen := make(map[string]struct{})
	values := make([]string, 0)
	for _, rec := range records {
		v := key(rec)
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		values = append(values, v)
	}
	sort.Strings(values)
	return values
}

func filterRecords(records []Record, keep func(Record) bool) []Record {
	out := make([]Record, 0)
	for _, rec := range records {
		if keep(rec) {
			out = append(out, rec)
		}
	}
	return out
}
