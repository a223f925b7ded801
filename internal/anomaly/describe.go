package anomaly

import (
	"github.com/castlemilk/pfinance/insights/internal/i18n"
	"github.com/castlemilk/pfinance/insights/internal/store"
)

var descriptionKeys = map[Type][3]string{
	TypeAmountPattern:     {i18n.AnomalyAmountHigh, i18n.AnomalyAmountMedium, i18n.AnomalyAmountLow},
	TypeCategoryPattern:   {i18n.AnomalyCategoryHigh, i18n.AnomalyCategoryMedium, i18n.AnomalyCategoryLow},
	TypeBehavioralPattern: {i18n.AnomalyBehavioralHigh, i18n.AnomalyBehavioralMedium, i18n.AnomalyBehavioralLow},
}

func (d *Detector) describe(kind Type, score float64, tx store.Transaction) string {
	keys := descriptionKeys[kind]
	key := keys[2]
	switch {
	case score >= highScoreBand:
		key = keys[0]
	case score >= mediumScoreBand:
		key = keys[1]
	}
	return d.printer.Sprintf(key, d.printer.Amount(tx.Amount), tx.CategoryName)
}
