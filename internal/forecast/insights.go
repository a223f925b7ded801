package forecast

import (
	"sort"

	"github.com/castlemilk/pfinance/insights/internal/i18n"
	"github.com/castlemilk/pfinance/insights/internal/ml"
	"github.com/castlemilk/pfinance/insights/internal/store"
)

const (
	TrendStable     = "stable"
	TrendIncreasing = "increasing"
)

const (
	topCategories         = 5
	categoryConfidence    = 0.8
	maxRecommendations    = 5
	aboveAverageRatio     = 1.2
	dominantCategoryShare = 0.4
	nearIncomeRatio       = 0.8
	savingWellRatio       = 0.5
	percent               = 100
)

// CategoryForecast summarizes one of the user's top spending categories.
// PredictedAmount carries the category's historical total for the window; it
// is not a separate per-category forecast.
type CategoryForecast struct {
	CategoryID      int64   `json:"category_id"`
	CategoryName    string  `json:"category_name"`
	PredictedAmount float64 `json:"predicted_amount"`
	HistoricalTotal float64 `json:"historical_total"`
	Share           float64 `json:"share_percentage"`
	ConfidenceScore float64 `json:"confidence_score"`
	Trend           string  `json:"trend"`
}

// Trend is one month of expense history compared with the month before it.
type Trend struct {
	Period           string  `json:"period"`
	Amount           float64 `json:"amount"`
	ChangePercentage float64 `json:"change_percentage"`
	Trend            string  `json:"trend"`
}

type categoryTotal struct {
	id    int64
	name  string
	total float64
}

// expenseByCategory totals expenses per display name, largest first. Ties keep
// first-seen order.
func expenseByCategory(transactions []store.Transaction) ([]categoryTotal, float64) {
	index := make(map[string]int)
	var totals []categoryTotal
	grand := 0.0
	for _, tx := range transactions {
		if !tx.IsExpense() {
			continue
		}
		i, ok := index[tx.CategoryName]
		if !ok {
			i = len(totals)
			index[tx.CategoryName] = i
			totals = append(totals, categoryTotal{name: tx.CategoryName})
		}
		if totals[i].id == 0 {
			totals[i].id = tx.CategoryID
		}
		totals[i].total += tx.Amount
		grand += tx.Amount
	}
	sort.SliceStable(totals, func(a, b int) bool { return totals[a].total > totals[b].total })
	return totals, grand
}

func categoryBreakdown(transactions []store.Transaction) []CategoryForecast {
	totals, grand := expenseByCategory(transactions)
	if len(totals) > topCategories {
		totals = totals[:topCategories]
	}

	breakdown := make([]CategoryForecast, 0, len(totals))
	for _, c := range totals {
		share := 0.0
		if grand > 0 {
			share = c.total / grand * percent
		}
		breakdown = append(breakdown, CategoryForecast{
			CategoryID:      c.id,
			CategoryName:    c.name,
			PredictedAmount: c.total,
			HistoricalTotal: c.total,
			Share:           share,
			ConfidenceScore: categoryConfidence,
			Trend:           TrendStable,
		})
	}
	return breakdown
}

func monthlyTrends(series []MonthlyRow) []Trend {
	trends := make([]Trend, 0, len(series))
	for i, row := range series {
		t := Trend{Period: row.YearMonth, Amount: row.TotalExpense, Trend: TrendStable}
		if i > 0 {
			prev := trends[i-1].Amount
			if row.TotalExpense > prev {
				t.Trend = TrendIncreasing
			}
			if prev != 0 {
				t.ChangePercentage = (row.TotalExpense - prev) / prev * percent
			}
		}
		trends = append(trends, t)
	}
	return trends
}

func (f *Forecaster) recommendations(transactions []store.Transaction, series []MonthlyRow, predicted float64) []string {
	totals, totalExpense := expenseByCategory(transactions)
	if len(totals) == 0 || totalExpense <= 0 {
		return []string{f.printer.Sprintf(i18n.ForecastNoExpenseData)}
	}

	var recs []string

	monthly := make([]float64, len(series))
	for i, row := range series {
		monthly[i] = row.TotalExpense
	}
	if predicted > ml.Mean(monthly)*aboveAverageRatio {
		recs = append(recs, f.printer.Sprintf(i18n.ForecastAboveAverage))
	}

	if totals[0].total > totalExpense*dominantCategoryShare {
		recs = append(recs, f.printer.Sprintf(i18n.ForecastCategoryDominates, totals[0].name))
	}

	totalIncome := 0.0
	hasIncome := false
	for _, tx := range transactions {
		if tx.Type == store.TransactionTypeIncome {
			hasIncome = true
			totalIncome += tx.Amount
		}
	}
	if hasIncome {
		switch {
		case totalExpense > totalIncome*nearIncomeRatio:
			recs = append(recs, f.printer.Sprintf(i18n.ForecastNearIncome))
		case totalExpense < totalIncome*savingWellRatio:
			recs = append(recs, f.printer.Sprintf(i18n.ForecastSavingWell))
		}
	}

	recs = append(recs,
		f.printer.Sprintf(i18n.ForecastTrackDaily),
		f.printer.Sprintf(i18n.ForecastSetGoals),
	)
	if len(recs) > maxRecommendations {
		recs = recs[:maxRecommendations]
	}
	return recs
}
