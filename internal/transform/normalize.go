package transform

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rumor-ml/commons.systems/spentsync/internal/domain"
)

// ParseCents converts a decimal amount string ("4.50", "-1,234.56", "$12")
// into minor units, truncating toward zero beyond two decimal places.
// Conversion is exact: "0.29" is 29, not 28.
func ParseCents(amount string) (int64, error) {
	cleaned := strings.TrimSpace(amount)
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	cleaned = strings.Replace(cleaned, "$", "", 1)
	if cleaned == "" {
		return 0, fmt.Errorf("amount cannot be empty")
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	return d.Shift(2).IntPart(), nil
}

// NegatedCents parses amount and flips its sign. Statement and CSV sources
// report purchases as negative amounts while the ledger stores them positive.
func NegatedCents(amount string) (int64, error) {
	cents, err := ParseCents(amount)
	if err != nil {
		return 0, err
	}
	return -cents, nil
}

// SlashDateToISO rewrites "MM/DD/YYYY" as "YYYY-MM-DD". One digit months
// and days are zero-padded ("1/2/2024" is "2024-01-02") and the result must
// be a real calendar day.
func SlashDateToISO(mmddyyyy string) (string, error) {
	parts := strings.Split(strings.TrimSpace(mmddyyyy), "/")
	if len(parts) != 3 {
		return "", fmt.Errorf("date %q is not MM/DD/YYYY", mmddyyyy)
	}
	iso := fmt.Sprintf("%s-%s-%s", parts[2], PadDay(parts[0]), PadDay(parts[1]))
	if err := ValidateDate(iso); err != nil {
		return "", fmt.Errorf("date %q: %w", mmddyyyy, err)
	}
	return iso, nil
}

// DashDateToISO checks that a "YYYY-MM-DD" date has three dash separated
// components and returns it unchanged.
func DashDateToISO(yyyymmdd string) (string, error) {
	trimmed := strings.TrimSpace(yyyymmdd)
	parts := strings.Split(trimmed, "-")
	if len(parts) != 3 {
		return "", fmt.Errorf("date %q is not YYYY-MM-DD", yyyymmdd)
	}
	return fmt.Sprintf("%s-%s-%s", parts[0], parts[1], parts[2]), nil
}

// ValidateDate reports whether date is a real calendar day in YYYY-MM-DD form.
func ValidateDate(date string) error {
	if _, err := time.Parse(domain.DateLayout, date); err != nil {
		return fmt.Errorf("invalid date %q: %w", date, err)
	}
	return nil
}

var months = map[string]string{
	"Jan": "01", "Feb": "02", "Mar": "03", "Apr": "04",
	"May": "05", "Jun": "06", "Jul": "07", "Aug": "08",
	"Sep": "09", "Oct": "10", "Nov": "11", "Dec": "12",
}

// MonthNumber maps a three letter English month abbreviation to "01".."12".
func MonthNumber(abbrev string) (string, bool) {
	mm, ok := months[abbrev]
	return mm, ok
}

// PadDay left-pads a one digit day or month with a zero.
func PadDay(dd string) string {
	if len(dd) == 1 {
		return "0" + dd
	}
	return dd
}
