package database

import (
	"fmt"
	"time"
)

const periodLayout = "2006-01"

// CurrentPeriod returns the current month as YYYY-MM.
func CurrentPeriod() string {
	return time.Now().Format(periodLayout)
}

// ValidatePeriod checks that periodID is a YYYY-MM month label.
func ValidatePeriod(periodID string) error {
	if _, err := time.Parse(periodLayout, periodID); err != nil {
		return fmt.Errorf("invalid period %q, want YYYY-MM", periodID)
	}
	return nil
}

// FormatPeriodDisplay formats a period_id for human-readable display.
// "2023-01" becomes "January 2023"; anything else is returned unchanged.
func FormatPeriodDisplay(periodID string) string {
	d, err := time.Parse(periodLayout, periodID)
	if err != nil {
		return periodID
	}
	return d.Format("January 2006")
}
