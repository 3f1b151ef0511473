package enums

import "fmt"

// PlanInterval defines the billing cadence unit for a plan.
type PlanInterval string

const (
	PlanIntervalDaily   PlanInterval = "DAILY"
	PlanIntervalWeekly  PlanInterval = "WEEKLY"
	PlanIntervalMonthly PlanInterval = "MONTHLY"
	PlanIntervalYearly  PlanInterval = "YEARLY"
)

var validPlanIntervals = []PlanInterval{
	PlanIntervalDaily,
	PlanIntervalWeekly,
	PlanIntervalMonthly,
	PlanIntervalYearly,
}

// String implements fmt.Stringer.
func (p PlanInterval) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PlanInterval.
func (p PlanInterval) IsValid() bool {
	for _, candidate := range validPlanIntervals {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePlanInterval converts raw input into a PlanInterval.
func ParsePlanInterval(value string) (PlanInterval, error) {
	for _, candidate := range validPlanIntervals {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid plan interval %q", value)
}
