package graph

import (
	"txledger/internal/models"

	"github.com/shopspring/decimal"
)

// CategoryTotals sums transaction amounts per category. Each category present
// in transactions appears exactly once, in the order it was first seen.
func CategoryTotals(transactions []models.Transaction) []models.CategoryStatistic {
	index := make(map[string]int)
	stats := make([]models.CategoryStatistic, 0)

	for _, t := range transactions {
		i, ok := index[t.Category]
		if !ok {
			i = len(stats)
			index[t.Category] = i
			stats = append(stats, models.CategoryStatistic{Category: t.Category, TotalAmount: decimal.Zero})
		}
		stats[i].TotalAmount = stats[i].TotalAmount.Add(t.Amount)
	}
	return stats
}
