package timeutil

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestPreviousPeriod(t *testing.T) {
	tests := []struct {
		name      string
		start     time.Time
		end       time.Time
		prevStart time.Time
	}{
		{
			name:      "one week",
			start:     date(2024, 3, 8),
			end:       date(2024, 3, 15),
			prevStart: date(2024, 3, 1),
		},
		{
			name:      "one day",
			start:     date(2024, 1, 2),
			end:       date(2024, 1, 3),
			prevStart: date(2024, 1, 1),
		},
		{
			name:      "degenerate window",
			start:     date(2024, 6, 1),
			end:       date(2024, 6, 1),
			prevStart: date(2024, 6, 1),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := PreviousPeriod(tt.start, tt.end)
			if !p.PrevEnd.Equal(tt.start) {
				t.Errorf("PrevEnd = %v, want %v", p.PrevEnd, tt.start)
			}
			if !p.PrevStart.Equal(tt.prevStart) {
				t.Errorf("PrevStart = %v, want %v", p.PrevStart, tt.prevStart)
			}
			cur := p.End.Sub(p.Start)
			prev := p.PrevEnd.Sub(p.PrevStart)
			if cur != prev {
				t.Errorf("previous duration %v != current duration %v", prev, cur)
			}
		})
	}
}

func TestPreviousPeriodContiguity(t *testing.T) {
	// Windows of many sizes: previous always ends where current
	// starts, with identical duration.
	start := date(2024, 1, 15)
	for _, hours := range []int{0, 1, 5, 24, 73, 24 * 30, 24 * 365} {
		end := start.Add(time.Duration(hours) * time.Hour)
		p := PreviousPeriod(start, end)
		if !p.PrevEnd.Equal(p.Start) {
			t.Fatalf("span %dh: prev window not contiguous", hours)
		}
		if p.PrevEnd.Sub(p.PrevStart) != p.Duration() {
			t.Fatalf("span %dh: prev window duration differs", hours)
		}
	}
}

func TestResolveGranularity(t *testing.T) {
	tests := []struct {
		days int
		want Granularity
	}{
		{1, GranularityHour},
		{2, GranularityHour},
		{3, GranularityDay},
		{30, GranularityDay},
		{90, GranularityDay},
		{91, GranularityMonth},
		{400, GranularityMonth},
	}

	start := date(2024, 1, 1)
	for _, tt := range tests {
		end := start.AddDate(0, 0, tt.days)
		if got := ResolveGranularity(start, end); got != tt.want {
			t.Errorf("ResolveGranularity(%d days) = %q, want %q",
				tt.days, got, tt.want)
		}
	}
}

func TestResolveHeatmapGranularity(t *testing.T) {
	// Heatmap thresholds differ from chart thresholds on purpose.
	tests := []struct {
		days int
		want HeatmapGranularity
	}{
		{1, HeatmapHourly},
		{40, HeatmapDaily},
		{200, HeatmapWeekly},
		{800, HeatmapMonthly},
	}

	start := date(2023, 1, 1)
	for _, tt := range tests {
		end := start.AddDate(0, 0, tt.days)
		if got := ResolveHeatmapGranularity(start, end); got != tt.want {
			t.Errorf("ResolveHeatmapGranularity(%d days) = %q, want %q",
				tt.days, got, tt.want)
		}
	}
}

func TestParseGranularity(t *testing.T) {
	for _, valid := range []string{"hour", "day", "month"} {
		g, err := ParseGranularity(valid)
		if err != nil {
			t.Errorf("ParseGranularity(%q) error: %v", valid, err)
		}
		if string(g) != valid {
			t.Errorf("ParseGranularity(%q) = %q", valid, g)
		}
	}
	for _, invalid := range []string{"", "week", "hourly", "year"} {
		if _, err := ParseGranularity(invalid); err == nil {
			t.Errorf("ParseGranularity(%q) should fail", invalid)
		}
	}
}

func TestBucketField(t *testing.T) {
	tests := []struct {
		g    Granularity
		want string
	}{
		{GranularityHour, "hour"},
		{GranularityDay, "day"},
		{GranularityMonth, "month"},
	}
	for _, tt := range tests {
		if got := tt.g.BucketField(); got != tt.want {
			t.Errorf("BucketField(%q) = %q, want %q", tt.g, got, tt.want)
		}
	}
}
