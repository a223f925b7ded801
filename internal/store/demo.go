package store

import (
	"context"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"
)

// DemoConfig describes a generated transaction history.
type DemoConfig struct {
	UserID int64
	Months int
	Seed   int64
	End    time.Time
}

type demoCategory struct {
	id   int64
	name string
}

var (
	demoHousing       = demoCategory{1, "Housing"}
	demoUtilities     = demoCategory{2, "Utilities"}
	demoFood          = demoCategory{3, "Food"}
	demoTransport     = demoCategory{4, "Transportation"}
	demoEntertainment = demoCategory{5, "Entertainment"}
	demoShopping      = demoCategory{6, "Shopping"}
	demoHealthcare    = demoCategory{7, "Healthcare"}
	demoSalary        = demoCategory{8, "Salary"}
)

type demoTemplate struct {
	minAmount float64
	maxAmount float64
	category  demoCategory
}

var demoMonthly = []demoTemplate{
	{8_000_000, 8_000_000, demoHousing},
	{600_000, 1_100_000, demoUtilities},
	{250_000, 250_000, demoUtilities},
	{180_000, 180_000, demoEntertainment},
	{500_000, 500_000, demoHealthcare},
}

var demoWeekly = []demoTemplate{
	{800_000, 2_000_000, demoFood},
	{300_000, 600_000, demoTransport},
}

var demoRandom = []demoTemplate{
	{30_000, 60_000, demoFood},
	{50_000, 150_000, demoFood},
	{150_000, 500_000, demoFood},
	{40_000, 200_000, demoTransport},
	{100_000, 300_000, demoEntertainment},
	{200_000, 1_500_000, demoShopping},
	{100_000, 600_000, demoHealthcare},
}

// GenerateDemo builds a reproducible history of expenses and salary income
// ending at cfg.End: monthly bills, weekly groceries and transport, a few
// random purchases a day, and an occasional outsized purchase.
func GenerateDemo(cfg DemoConfig) []Record {
	rng := rand.New(rand.NewSource(cfg.Seed))
	end := DateOf(cfg.End)
	start := end.AddDate(0, -cfg.Months, 0)

	var records []Record
	add := func(amount float64, cat demoCategory, date time.Time, typ TransactionType) {
		name := cat.name
		records = append(records, Record{
			UserID:       cfg.UserID,
			Amount:       decimal.NewNullDecimal(decimal.NewFromFloat(amount).Round(0)),
			CategoryID:   cat.id,
			CategoryName: &name,
			Date:         date,
			Type:         string(typ),
		})
	}

	for m := 0; m < cfg.Months; m++ {
		for _, tmpl := range demoMonthly {
			date := start.AddDate(0, m, rng.Intn(5))
			add(demoAmount(rng, tmpl), tmpl.category, date, TransactionTypeExpense)
		}
		payday := start.AddDate(0, m, 14)
		if !payday.After(end) {
			add(30_000_000+rng.Float64()*1_000_000, demoSalary, payday, TransactionTypeIncome)
		}
	}

	for _, tmpl := range demoWeekly {
		for d := start; !d.After(end); d = d.AddDate(0, 0, 6+rng.Intn(3)) {
			add(demoAmount(rng, tmpl), tmpl.category, d, TransactionTypeExpense)
		}
	}

	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		n := 1 + rng.Intn(3)
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			n++
		}
		for i := 0; i < n; i++ {
			tmpl := demoRandom[rng.Intn(len(demoRandom))]
			amount := demoAmount(rng, tmpl)
			if rng.Intn(50) == 0 {
				amount *= 3 + rng.Float64()*2
			}
			add(amount, tmpl.category, d, TransactionTypeExpense)
		}
	}
	return records
}

func demoAmount(rng *rand.Rand, tmpl demoTemplate) float64 {
	return tmpl.minAmount + rng.Float64()*(tmpl.maxAmount-tmpl.minAmount)
}

// SeedDemo generates a demo history and adds it to the store. It returns the
// number of records added.
func (m *MemoryStore) SeedDemo(ctx context.Context, cfg DemoConfig) int {
	records := GenerateDemo(cfg)
	for _, rec := range records {
		m.AddTransaction(ctx, rec)
	}
	return len(records)
}
