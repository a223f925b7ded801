// Package i18n holds the user-facing strings of the insights pipelines.
// Keys are the English texts; Vietnamese translations are registered with
// the default x/text catalog at init.
package i18n

import (
	"fmt"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// DefaultLocale matches the service's primary user base.
var DefaultLocale = language.Vietnamese

// Message keys.
const (
	AnomalyAmountHigh       = "Transaction of %v in %q is far above your usual spending."
	AnomalyAmountMedium     = "Transaction of %v in %q is noticeably larger than usual."
	AnomalyAmountLow        = "Transaction of %v in %q is somewhat larger than usual."
	AnomalyCategoryHigh     = "Spending of %v in %q, a category you rarely use, looks highly unusual."
	AnomalyCategoryMedium   = "Spending of %v in %q, a category you rarely use."
	AnomalyCategoryLow      = "Spending of %v in %q is uncommon for you."
	AnomalyBehavioralHigh   = "Transaction of %v in %q breaks strongly from your usual timing and habits."
	AnomalyBehavioralMedium = "Transaction of %v in %q does not match your usual spending habits."
	AnomalyBehavioralLow    = "Transaction of %v in %q differs slightly from your usual pattern."

	ForecastNeedMoreData      = "More transaction data is needed for an accurate forecast."
	ForecastInsufficientData  = "Not enough monthly history to make a forecast."
	ForecastFailed            = "Forecasting failed: %s"
	ForecastNoExpenseData     = "No expense data yet to base recommendations on."
	ForecastAboveAverage      = "Predicted spending is above your average. Consider cutting unnecessary expenses."
	ForecastCategoryDominates = "Spending on %q takes a large share. Consider rebalancing your budget."
	ForecastNearIncome        = "Spending is close to your income. Try to save more."
	ForecastSavingWell        = "You are saving well! Keep up the habit."
	ForecastTrackDaily        = "Track daily spending to keep your finances under control."
	ForecastSetGoals          = "Set concrete saving goals and track your progress."
)

var vietnamese = map[string]string{
	AnomalyAmountHigh:       "Giao dịch %v cho '%s' cao bất thường so với mức chi tiêu thông thường của bạn.",
	AnomalyAmountMedium:     "Giao dịch %v cho '%s' lớn hơn đáng kể so với thường lệ.",
	AnomalyAmountLow:        "Giao dịch %v cho '%s' lớn hơn một chút so với thường lệ.",
	AnomalyCategoryHigh:     "Chi tiêu %v cho '%s', một danh mục bạn hiếm khi dùng, rất bất thường.",
	AnomalyCategoryMedium:   "Chi tiêu %v cho '%s', một danh mục bạn hiếm khi dùng.",
	AnomalyCategoryLow:      "Chi tiêu %v cho '%s' không thường xuyên đối với bạn.",
	AnomalyBehavioralHigh:   "Giao dịch %v cho '%s' khác hẳn thời điểm và thói quen chi tiêu của bạn.",
	AnomalyBehavioralMedium: "Giao dịch %v cho '%s' không khớp với thói quen chi tiêu của bạn.",
	AnomalyBehavioralLow:    "Giao dịch %v cho '%s' hơi khác so với mẫu chi tiêu thường ngày.",

	ForecastNeedMoreData:      "Cần thêm dữ liệu giao dịch để đưa ra dự đoán chính xác",
	ForecastInsufficientData:  "Dữ liệu không đủ để đưa ra dự đoán",
	ForecastFailed:            "Lỗi trong quá trình dự đoán: %s",
	ForecastNoExpenseData:     "Chưa có dữ liệu chi tiêu để đưa ra khuyến nghị",
	ForecastAboveAverage:      "Chi tiêu dự đoán cao hơn mức trung bình. Hãy cân nhắc cắt giảm chi tiêu không cần thiết.",
	ForecastCategoryDominates: "Chi tiêu cho '%s' chiếm tỷ lệ cao. Hãy cân nhắc phân bổ lại ngân sách.",
	ForecastNearIncome:        "Chi tiêu gần bằng thu nhập. Hãy tăng cường tiết kiệm.",
	ForecastSavingWell:        "Bạn đang tiết kiệm tốt! Hãy tiếp tục duy trì thói quen này.",
	ForecastTrackDaily:        "Hãy theo dõi chi tiêu hàng ngày để kiểm soát tài chính tốt hơn.",
	ForecastSetGoals:          "Đặt mục tiêu tiết kiệm cụ thể và theo dõi tiến độ.",
}

func init() {
	for key, msg := range vietnamese {
		if err := message.SetString(language.Vietnamese, key, msg); err != nil {
			panic(fmt.Sprintf("i18n: register %q: %v", key, err))
		}
	}
}

// Printer renders catalog messages for one locale.
type Printer struct {
	p *message.Printer
}

// NewPrinter returns a printer for tag. Unknown tags fall back to English keys.
func NewPrinter(tag language.Tag) *Printer {
	return &Printer{p: message.NewPrinter(tag)}
}

// Parse resolves a locale string such as "vi" or "en", defaulting to DefaultLocale.
func Parse(locale string) language.Tag {
	if locale == "" {
		return DefaultLocale
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return DefaultLocale
	}
	return tag
}

// Sprintf formats the message for key.
func (p *Printer) Sprintf(key message.Reference, args ...any) string {
	return p.p.Sprintf(key, args...)
}

// Amount formats a currency amount with locale digit grouping and no fraction digits.
func (p *Printer) Amount(v float64) string {
	return p.p.Sprint(number.Decimal(v, number.MaxFractionDigits(0)))
}
