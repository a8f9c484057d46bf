// Package timeutil provides period math and granularity
// classification for time-windowed statistics.
package timeutil

import (
	"fmt"
	"time"
)

// Period is a date window plus the equal-length window that
// immediately precedes it. PrevEnd always equals Start, so the
// two windows are contiguous with no gap or overlap.
type Period struct {
	Start     time.Time
	End       time.Time
	PrevStart time.Time
	PrevEnd   time.Time
}

// PreviousPeriod computes the comparison window for [start, end].
// The previous window has identical duration and ends exactly
// where the current one starts. A degenerate window (start == end)
// yields an empty previous window; callers treat that as "no
// previous data", not an error.
func PreviousPeriod(start, end time.Time) Period {
	duration := end.Sub(start)
	return Period{
		Start:     start,
		End:       end,
		PrevStart: start.Add(-duration),
		PrevEnd:   start,
	}
}

// Duration returns the length of the current window.
func (p Period) Duration() time.Duration {
	return p.End.Sub(p.Start)
}

// Granularity is the time-bucket size for chart series.
type Granularity string

// Chart granularities.
const (
	GranularityHour  Granularity = "hour"
	GranularityDay   Granularity = "day"
	GranularityMonth Granularity = "month"
)

// ParseGranularity validates a granularity query parameter.
func ParseGranularity(s string) (Granularity, error) {
	switch Granularity(s) {
	case GranularityHour, GranularityDay, GranularityMonth:
		return Granularity(s), nil
	}
	return "", fmt.Errorf(
		"invalid granularity %q: must be hour, day, or month", s,
	)
}

// BucketField returns the result field name that carries the
// bucket key for this granularity. The lookup is an explicit
// switch so an invalid value can never leak into a pipeline as
// a field name.
func (g Granularity) BucketField() string {
	switch g {
	case GranularityHour:
		return "hour"
	case GranularityMonth:
		return "month"
	default:
		return "day"
	}
}

const day = 24 * time.Hour

// ResolveGranularity picks the chart bucket size for a window:
// up to 2 days of span buckets by hour, up to 90 days by day,
// anything longer by month.
func ResolveGranularity(start, end time.Time) Granularity {
	span := end.Sub(start)
	switch {
	case span <= 2*day:
		return GranularityHour
	case span <= 90*day:
		return GranularityDay
	default:
		return GranularityMonth
	}
}

// HeatmapGranularity is the display bucket size for the request
// heatmap. It is a distinct enumeration from Granularity with
// its own thresholds; the two must not be conflated.
type HeatmapGranularity string

// Heatmap granularities.
const (
	HeatmapHourly  HeatmapGranularity = "hourly"
	HeatmapDaily   HeatmapGranularity = "daily"
	HeatmapWeekly  HeatmapGranularity = "weekly"
	HeatmapMonthly HeatmapGranularity = "monthly"
)

// ResolveHeatmapGranularity picks the heatmap display bucket for
// a window: up to 2 days hourly, up to 90 days daily, up to a
// year weekly, beyond that monthly.
func ResolveHeatmapGranularity(start, end time.Time) HeatmapGranularity {
	span := end.Sub(start)
	switch {
	case span <= 2*day:
		return HeatmapHourly
	case span <= 90*day:
		return HeatmapDaily
	case span <= 365*day:
		return HeatmapWeekly
	default:
		return HeatmapMonthly
	}
}
