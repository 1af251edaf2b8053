package report

import (
	"bytes"
	"encoding/csv"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/rxdesk/rxdesk/pkg/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func sampleItems() []models.InventoryItem {
	return []models.InventoryItem{
		{
			ID: 1, Name: "Paracetamol 500mg", SKU: "PARA-500",
			Quantity: 4, Threshold: 20,
			Price:    decimal.RequireFromString("12.5"),
			Supplier: &models.Supplier{Name: "Acme Pharma"},
			User:     "alice",
		},
		{
			ID: 2, Name: "Amoxicillin 250mg", SKU: "AMOX-250",
			Quantity: 18, Threshold: 20,
			Price:    decimal.RequireFromString("45"),
			Supplier: &models.Supplier{Name: "Acme Pharma"},
			User:     "alice",
		},
		{
			ID: 3, Name: "Ibuprofen 400mg", SKU: "IBU-400",
			Quantity: 50, Threshold: 20,
			Price: decimal.RequireFromString("8"),
			User:  "bob",
		},
	}
}

func TestSummarize(t *testing.T) {
	analyzer := NewAnalyzer(testLogger())
	summary := analyzer.Summarize(sampleItems())

	if summary.TotalItems != 2 {
		t.Errorf("Expected 2 low-stock items, got %d", summary.TotalItems)
	}
	if summary.TotalShortfall != 18 {
		t.Errorf("Expected total shortfall 18, got %d", summary.TotalShortfall)
	}
	if summary.BySupplier["Acme Pharma"] != 2 {
		t.Errorf("Expected 2 Acme Pharma items, got %d", summary.BySupplier["Acme Pharma"])
	}

	if len(summary.WorstOffenders) != 2 {
		t.Fatalf("Expected 2 offenders, got %d", len(summary.WorstOffenders))
	}
	if summary.WorstOffenders[0].SKU != "PARA-500" {
		t.Errorf("Expected deepest shortage first, got %s", summary.WorstOffenders[0].SKU)
	}
	if summary.WorstOffenders[0].Shortfall != 16 {
		t.Errorf("Expected shortfall 16, got %d", summary.WorstOffenders[0].Shortfall)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	analyzer := NewAnalyzer(testLogger())
	summary := analyzer.Summarize(nil)

	if summary.TotalItems != 0 || summary.TotalShortfall != 0 {
		t.Errorf("Expected empty summary, got %+v", summary)
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, sampleItems()); err != nil {
		t.Fatalf("WriteCSV failed: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("Failed to parse written CSV: %v", err)
	}

	if len(records) != 4 {
		t.Fatalf("Expected header plus 3 rows, got %d records", len(records))
	}
	if records[0][0] != "Name" || records[0][7] != "Added By" {
		t.Errorf("Unexpected header: %v", records[0])
	}
	if records[1][0] != "Paracetamol 500mg" || records[1][3] != "12.50" {
		t.Errorf("Unexpected first row: %v", records[1])
	}
	if records[3][4] != "" {
		t.Errorf("Expected empty supplier column for item without supplier, got %q", records[3][4])
	}
}
