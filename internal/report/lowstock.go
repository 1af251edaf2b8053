// Package report turns inventory snapshots into the low-stock report and
// the CSV export the backend serves.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rxdesk/rxdesk/pkg/models"
)

type Analyzer struct {
	logger *logrus.Logger
}

func NewAnalyzer(logger *logrus.Logger) *Analyzer {
	return &Analyzer{logger: logger}
}

type LowStockSummary struct {
	TotalItems     int            `json:"total_items"`
	TotalShortfall int            `json:"total_shortfall"`
	BySupplier     map[string]int `json:"by_supplier"`
	WorstOffenders []ItemShortage `json:"worst_offenders"`
	GeneratedAt    time.Time      `json:"generated_at"`
}

type ItemShortage struct {
	ItemID    int    `json:"item_id"`
	Name      string `json:"name"`
	SKU       string `json:"sku"`
	Quantity  int    `json:"quantity"`
	Threshold int    `json:"threshold"`
	Shortfall int    `json:"shortfall"`
	Supplier  string `json:"supplier,omitempty"`
}

const maxWorstOffenders = 10

// Summarize aggregates a low-stock item set: total shortfall, per-supplier
// counts, and the deepest shortages first.
func (a *Analyzer) Summarize(items []models.InventoryItem) LowStockSummary {
	summary := LowStockSummary{
		BySupplier:  make(map[string]int),
		GeneratedAt: time.Now(),
	}

	for _, item := range items {
		shortfall := item.Shortfall()
		if shortfall == 0 {
			continue
		}

		summary.TotalItems++
		summary.TotalShortfall += shortfall

		supplier := ""
		if item.Supplier != nil {
			supplier = item.Supplier.Name
		}
		summary.BySupplier[supplier]++

		summary.WorstOffenders = append(summary.WorstOffenders, ItemShortage{
			ItemID:    item.ID,
			Name:      item.Name,
			SKU:       item.SKU,
			Quantity:  item.Quantity,
			Threshold: item.Threshold,
			Shortfall: shortfall,
			Supplier:  supplier,
		})
	}

	sort.Slice(summary.WorstOffenders, func(i, j int) bool {
		if summary.WorstOffenders[i].Shortfall != summary.WorstOffenders[j].Shortfall {
			return summary.WorstOffenders[i].Shortfall > summary.WorstOffenders[j].Shortfall
		}
		return summary.WorstOffenders[i].SKU < summary.WorstOffenders[j].SKU
	})
	if len(summary.WorstOffenders) > maxWorstOffenders {
		summary.WorstOffenders = summary.WorstOffenders[:maxWorstOffenders]
	}

	a.logger.WithFields(logrus.Fields{
		"items":     summary.TotalItems,
		"shortfall": summary.TotalShortfall,
	}).Info("Low-stock summary computed")

	return summary
}

// csvHeader matches the backend's inventory export column set.
var csvHeader = []string{"Name", "SKU", "Quantity", "Price", "Supplier", "Expiration Date", "Threshold", "Added By"}

// WriteCSV renders items in the backend's export format.
func WriteCSV(w io.Writer, items []models.InventoryItem) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, item := range items {
		supplier := ""
		if item.Supplier != nil {
			supplier = item.Supplier.Name
		}
		record := []string{
			item.Name,
			item.SKU,
			fmt.Sprintf("%d", item.Quantity),
			item.Price.StringFixed(2),
			supplier,
			item.ExpirationDate,
			fmt.Sprintf("%d", item.Threshold),
			item.User,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}
