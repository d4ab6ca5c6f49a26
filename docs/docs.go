// Package docs defines the summary document model shared by the aggregation,
// indexing and retrieval stages, plus the JSON exchange format that decouples
// them.
package docs

import (
	"encoding/json"
	"fmt"
	"os"
)

// Document type tags. Each tag corresponds to one aggregation dimension.
const (
	TypeTimePeriod  = "time_period"
	TypeProduct     = "product"
	TypeRegion      = "region"
	TypeDemographic = "demographic"
	TypeOverall     = "overall"
)

// Breakdown holds sum/count/mean sales figures for one category value.
type Breakdown struct {
	Sum   float64 `json:"sum"`
	Count int     `json:"count"`
	Mean  float64 `json:"mean"`
}

// DateRange is the min/max date covered by a summary, formatted YYYY-MM-DD.
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// RawSummary is the structured aggregate a document's text was rendered from.
// It travels inside the document metadata so the presentation layer can show
// the numbers without re-parsing the text.
type RawSummary struct {
	Level               string               `json:"level"`
	Value               string               `json:"value"`
	TotalRecords        int                  `json:"total_records"`
	TotalSales          float64              `json:"total_sales"`
	AverageSale         float64              `json:"average_sale"`
	AverageSatisfaction float64              `json:"average_satisfaction"`
	DateRange           DateRange            `json:"date_range"`
	ProductSummary      map[string]Breakdown `json:"product_summary,omitempty"`
	RegionSummary       map[string]Breakdown `json:"region_summary,omitempty"`
	GenderSummary       map[string]Breakdown `json:"gender_summary,omitempty"`
}

// Metadata describes the dimension a document was aggregated over. Exactly
// one of Period, Product, Region or AgeGroup is set depending on Type; the
// overall document sets none. Extra carries forward-compatible fields that
// this version does not interpret.
type Metadata struct {
	Type            string         `json:"type"`
	Period          string         `json:"period,omitempty"`
	Product         string         `json:"product,omitempty"`
	Region          string         `json:"region,omitempty"`
	AgeGroup        string         `json:"age_group,omitempty"`
	RawData         *RawSummary    `json:"raw_data,omitempty"`
	PlotPath        string         `json:"plot_path,omitempty"`
	SimilarityScore float64        `json:"similarity_score,omitempty"`
	Extra           map[string]any `json:"extra,omitempty"`
}

// Document is one unit of indexed text plus its metadata. Documents are
// immutable once produced by the aggregator.
type Document struct {
	ID       string   `json:"id"`
	Text     string   `json:"text"`
	Metadata Metadata `json:"metadata"`
}

// Subject returns the dimension value the document summarizes, or an empty
// string for the overall document.
func (m Metadata) Subject() string {
	switch m.Type {
	case TypeTimePeriod:
		return m.Period
	case TypeProduct:
		return m.Product
	case TypeRegion:
		return m.Region
	case TypeDemographic:
		return m.AgeGroup
	}
	return ""
}

// Clone returns a deep copy. Mutating the copy never alters the original,
// which is what lets retrieval hand metadata to callers safely.
func (m Metadata) Clone() Metadata {
	out := m
	if m.RawData != nil {
		raw := *m.RawData
		raw.ProductSummary = cloneBreakdowns(m.RawData.ProductSummary)
		raw.RegionSummary = cloneBreakdowns(m.RawData.RegionSummary)
		raw.GenderSummary = cloneBreakdowns(m.RawData.GenderSummary)
		out.RawData = &raw
	}
	if m.Extra != nil {
		extra := make(map[string]any, len(m.Extra))
		for k, v := range m.Extra {
			extra[k] = v
		}
		out.Extra = extra
	}
	return out
}

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	return Document{ID: d.ID, Text: d.Text, Metadata: d.Metadata.Clone()}
}

func cloneBreakdowns(in map[string]Breakdown) map[string]Breakdown {
	if in == nil {
		return nil
	}
	out := make(map[string]Breakdown, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Save writes documents as a JSON array. The format is the stable boundary
// between the aggregator and the indexer: reindexing reads this file without
// re-running aggregation.
func Save(path string, documents []Document) error {
	data, err := json.MarshalIndent(documents, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal documents: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write documents: %w", err)
	}
	return nil
}

// Load reads a JSON document array written by Save.
func Load(path string) ([]Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read documents: %w", err)
	}
	var documents []Document
	if err := json.Unmarshal(data, &documents); err != nil {
		return nil, fmt.Errorf("decode documents: %w", err)
	}
	return documents, nil
}
