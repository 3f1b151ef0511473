package subscriptions

import (
	"testing"
	"time"

	"github.com/jfuertes/subman-backend/pkg/enums"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestAddIntervalDaily(t *testing.T) {
	got, err := AddInterval(date(2026, time.January, 15), enums.PlanIntervalDaily, 10)
	if err != nil {
		t.Fatalf("AddInterval: %v", err)
	}
	if want := date(2026, time.January, 25); !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestAddIntervalWeekly(t *testing.T) {
	got, err := AddInterval(date(2026, time.January, 15), enums.PlanIntervalWeekly, 2)
	if err != nil {
		t.Fatalf("AddInterval: %v", err)
	}
	if want := date(2026, time.January, 29); !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestAddIntervalMonthlyKeepsDayOfMonth(t *testing.T) {
	got, err := AddInterval(date(2026, time.January, 15), enums.PlanIntervalMonthly, 1)
	if err != nil {
		t.Fatalf("AddInterval: %v", err)
	}
	if want := date(2026, time.February, 15); !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestAddIntervalMonthlyRollsOverShortMonths(t *testing.T) {
	// Jan 31 + 1 month spills into March instead of clamping to Feb 28.
	got, err := AddInterval(date(2026, time.January, 31), enums.PlanIntervalMonthly, 1)
	if err != nil {
		t.Fatalf("AddInterval: %v", err)
	}
	if want := date(2026, time.March, 3); !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestAddIntervalYearly(t *testing.T) {
	got, err := AddInterval(date(2026, time.February, 1), enums.PlanIntervalYearly, 3)
	if err != nil {
		t.Fatalf("AddInterval: %v", err)
	}
	if want := date(2029, time.February, 1); !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestAddIntervalRepeatedEqualsSingleForFixedUnits(t *testing.T) {
	start := date(2026, time.March, 9)
	for _, interval := range []enums.PlanInterval{enums.PlanIntervalDaily, enums.PlanIntervalWeekly, enums.PlanIntervalYearly} {
		once, err := AddInterval(start, interval, 2)
		if err != nil {
			t.Fatalf("AddInterval(%s): %v", interval, err)
		}
		step1, err := AddInterval(start, interval, 1)
		if err != nil {
			t.Fatalf("AddInterval(%s): %v", interval, err)
		}
		step2, err := AddInterval(step1, interval, 1)
		if err != nil {
			t.Fatalf("AddInterval(%s): %v", interval, err)
		}
		if !once.Equal(step2) {
			t.Fatalf("%s: count=2 gave %v but two count=1 steps gave %v", interval, once, step2)
		}
	}
}

func TestAddIntervalRejectsBadInput(t *testing.T) {
	if _, err := AddInterval(date(2026, time.January, 1), enums.PlanIntervalMonthly, 0); err == nil {
		t.Fatal("expected error for zero count")
	}
	if _, err := AddInterval(date(2026, time.January, 1), enums.PlanInterval("HOURLY"), 1); err == nil {
		t.Fatal("expected error for unknown interval")
	}
}

func TestBeforeDayIgnoresTimeOfDay(t *testing.T) {
	morning := time.Date(2026, time.February, 20, 1, 0, 0, 0, time.UTC)
	evening := time.Date(2026, time.February, 20, 23, 0, 0, 0, time.UTC)
	if BeforeDay(morning, evening) {
		t.Fatal("same calendar day must not compare as before")
	}
	if !BeforeDay(morning.AddDate(0, 0, -1), evening) {
		t.Fatal("previous day must compare as before")
	}
}

func TestDayFloorNormalizesToUTCMidnight(t *testing.T) {
	loc := time.FixedZone("plus8", 8*3600)
	local := time.Date(2026, time.February, 20, 2, 30, 0, 0, loc)
	got := DayFloor(local)
	// 02:30 +08:00 is still Feb 19 in UTC.
	if want := date(2026, time.February, 19); !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}
