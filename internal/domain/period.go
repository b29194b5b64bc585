package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// RenewalPeriodNone disables renewal reminders.
const RenewalPeriodNone = "none"

// RenewalPeriod is the reminder lead time, expressed as "+N unit".
type RenewalPeriod struct {
	raw    string
	amount int
	unit   string
}

var renewalPeriodUnits = map[string]string{
	"day":    "day",
	"days":   "day",
	"week":   "week",
	"weeks":  "week",
	"month":  "month",
	"months": "month",
}

// ParseRenewalPeriod accepts "none" or "+N day(s)|week(s)|month(s)".
func ParseRenewalPeriod(raw string) (RenewalPeriod, error) {
	clean := strings.ToLower(strings.TrimSpace(raw))
	if clean == RenewalPeriodNone {
		return RenewalPeriod{raw: RenewalPeriodNone}, nil
	}

	fields := strings.Fields(strings.TrimPrefix(clean, "+"))
	if len(fields) != 2 {
		return RenewalPeriod{}, fmt.Errorf("invalid renewal reminder period %q", raw)
	}
	amount, err := strconv.Atoi(fields[0])
	if err != nil || amount <= 0 {
		return RenewalPeriod{}, fmt.Errorf("invalid renewal reminder period %q", raw)
	}
	unit, ok := renewalPeriodUnits[fields[1]]
	if !ok {
		return RenewalPeriod{}, fmt.Errorf("invalid renewal reminder period unit in %q", raw)
	}

	return RenewalPeriod{raw: clean, amount: amount, unit: unit}, nil
}

// IsNone reports whether reminders are disabled.
func (p RenewalPeriod) IsNone() bool {
	return p.amount == 0
}

// AddTo returns t shifted forward by the period. Month arithmetic follows
// time.AddDate normalization, so Jan 31 + 1 month lands in early March.
func (p RenewalPeriod) AddTo(t time.Time) time.Time {
	switch p.unit {
	case "day":
		return t.AddDate(0, 0, p.amount)
	case "week":
		return t.AddDate(0, 0, 7*p.amount)
	case "month":
		return t.AddDate(0, p.amount, 0)
	}
	return t
}

func (p RenewalPeriod) String() string {
	return p.raw
}
