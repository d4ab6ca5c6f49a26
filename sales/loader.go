// Package sales reduces raw sales records into per-dimension statistical
// summaries and renders them as indexable documents with accompanying charts.
package sales

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"
)

// Record is one row of the sales dataset.
type Record struct {
	Date         time.Time
	Product      string
	Region       string
	Sales        float64
	CustomerAge  int
	Gender       string
	Satisfaction float64
}

// YearQuarter formats the record's period as "2023-Q1".
func (r Record) YearQuarter() string {
	quarter := (int(r.Date.Month())-1)/3 + 1
	return fmt.Sprintf("%d-Q%d", r.Date.Year(), quarter)
}

// Age-group buckets used for demographic aggregation. Ages outside the
// buckets stay in the overall dataset but are excluded from bucketed
// summaries.
var ageGroupLabels = []string{"18-25", "26-35", "36-50", "51-70"}

// AgeGroup returns the bucket label for the record's customer age, or false
// when the age falls outside every bucket.
func (r Record) AgeGroup() (string, bool) {
	switch age := r.CustomerAge; {
	case age >= 18 && age <= 25:
		return "18-25", true
	case age >= 26 && age <= 35:
		return "26-35", true
	case age >= 36 && age <= 50:
		return "36-50", true
	case age >= 51 && age <= 70:
		return "51-70", true
	}
	return "", false
}

// LoadCSV reads the sales dataset. Expected columns: Date, Product, Region,
// Sales, Customer_Age, Customer_Gender, Customer_Satisfaction; extra columns
// are ignored. Dates are YYYY-MM-DD.
func LoadCSV(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	return readRecords(f)
}

func readRecords(r io.Reader) ([]Record, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[name] = i
	}
	for _, required := range []string{"Date", "Product", "Region", "Sales", "Customer_Age", "Customer_Gender", "Customer_Satisfaction"} {
		if _, ok := columns[required]; !ok {
			return nil, fmt.Errorf("dataset missing column %q", required)
		}
	}

	records := make([]Record, 0)
	line := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", line+1, err)
		}
		line++

		rec, err := parseRecord(row, columns)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}
		records = append(records, rec)
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("dataset contains no records")
	}

	return records, nil
}

func parseRecord(row []string, columns map[string]int) (Record, error) {
	field := func(name string) string { return row[columns[name]] }

	date, err := time.Parse("2006-01-02", field("Date"))
	if err != nil {
		return Record{}, fmt.Errorf("parse date %q: %w", field("Date"), err)
	}
	amount, err := strconv.ParseFloat(field("Sales"), 64)
	if err != nil {
		return Record{}, fmt.Errorf("parse sales %q: %w", field("Sales"), err)
	}
	age, err := strconv.Atoi(field("Customer_Age"))
	if err != nil {
		return Record{}, fmt.Errorf("parse customer age %q: %w", field("Customer_Age"), err)
	}
	satisfaction, err := strconv.ParseFloat(field("Customer_Satisfaction"), 64)
	if err != nil {
		return Record{}, fmt.Errorf("parse satisfaction %q: %w", field("Customer_Satisfaction"), err)
	}

	return Record{
		Date:         date,
		Product:      field("Product"),
		Region:       field("Region"),
		Sales:        amount,
		CustomerAge:  age,
		Gender:       field("Customer_Gender"),
		Satisfaction: satisfaction,
	}, nil
}
