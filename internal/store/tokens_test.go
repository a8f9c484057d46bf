package store

import (
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/chatlens/chatlens/internal/timeutil"
)

func testPeriod() timeutil.Period {
	return timeutil.PreviousPeriod(
		time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
	)
}

func TestTokenCountsPipelineBranches(t *testing.T) {
	pipeline := tokenCountsPipeline(testPeriod())
	if len(pipeline) != 2 {
		t.Fatalf("pipeline has %d stages, want 2", len(pipeline))
	}
	facet := stageValue(t, pipeline[0], "$facet")

	tests := []struct {
		branch    string
		tokenType string
	}{
		{"currentInput", "prompt"},
		{"currentOutput", "completion"},
		{"prevInput", "prompt"},
		{"prevOutput", "completion"},
	}

	for _, tt := range tests {
		t.Run(tt.branch, func(t *testing.T) {
			branch, ok := docValue(facet, tt.branch).(bson.A)
			if !ok {
				t.Fatalf("branch %s missing", tt.branch)
			}
			if len(branch) != 2 {
				t.Fatalf("branch %s has %d stages, want 2", tt.branch, len(branch))
			}

			match := stageValue(t, branch[0].(bson.D), "$match")
			if got := docValue(match, "tokenType"); got != any(tt.tokenType) {
				t.Errorf("tokenType = %v, want %q", got, tt.tokenType)
			}

			// Token sums must use the absolute value: amounts are
			// stored signed.
			group := stageValue(t, branch[1].(bson.D), "$group")
			total := docValue(group, "total").(bson.D)
			sum := docValue(total, "$sum").(bson.D)
			if got := docValue(sum, "$abs"); got != any("$rawAmount") {
				t.Errorf("$abs operand = %v, want $rawAmount", got)
			}
		})
	}
}

func TestTokenCountsProjectionDefaultsToZero(t *testing.T) {
	pipeline := tokenCountsPipeline(testPeriod())
	project := stageValue(t, pipeline[1], "$project")

	for _, field := range []string{
		"currentInputToken", "currentOutputToken",
		"prevInputToken", "prevOutputToken",
	} {
		expr, ok := docValue(project, field).(bson.D)
		if !ok {
			t.Fatalf("projection field %s missing", field)
		}
		ifNull, ok := docValue(expr, "$ifNull").(bson.A)
		if !ok {
			t.Fatalf("field %s is not null-safe", field)
		}
		if ifNull[1] != any(0) {
			t.Errorf("field %s default = %v, want 0", field, ifNull[1])
		}
	}
}

func TestMessageStatsPipelineGroupsTotals(t *testing.T) {
	pipeline := messageStatsPipeline(testPeriod())
	facet := stageValue(t, pipeline[0], "$facet")
	current := docValue(facet, "current").([]bson.D)
	group := stageValue(t, current[1], "$group")

	for _, field := range []string{
		"totalMessages", "totalTokenCount", "totalSummaryTokenCount",
	} {
		if docValue(group, field) == nil {
			t.Errorf("group accumulator %s missing", field)
		}
	}
}

func TestRequestHeatmapPipelineShape(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	pipeline := requestHeatmapPipeline(start, end, "Europe/Berlin")

	// Weekday and hour derive from createdAt in the requested
	// timezone.
	project := stageValue(t, pipeline[1], "$project")
	dow := docValue(project, "dayOfWeek").(bson.D)
	iso := docValue(dow, "$isoDayOfWeek").(bson.D)
	if got := docValue(iso, "timezone"); got != any("Europe/Berlin") {
		t.Errorf("dayOfWeek timezone = %v", got)
	}
	hour := docValue(project, "hour").(bson.D)
	if docValue(hour, "$hour") == nil {
		t.Error("hour field does not use $hour")
	}

	// Sorted by weekday then slot for a stable grid.
	sort := stageValue(t, pipeline[3], "$sort")
	if docValue(sort, "_id.dayOfWeek") != any(1) || docValue(sort, "_id.hour") != any(1) {
		t.Errorf("sort keys = %v", sort)
	}

	// Output rows use the public field names.
	out := stageValue(t, pipeline[4], "$project")
	if docValue(out, "timeSlot") != any("$_id.hour") {
		t.Errorf("timeSlot source = %v", docValue(out, "timeSlot"))
	}
	if docValue(out, "dayOfWeek") != any("$_id.dayOfWeek") {
		t.Errorf("dayOfWeek source = %v", docValue(out, "dayOfWeek"))
	}
}

func TestRequestHeatmapDefaultsToUTC(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	pipeline := requestHeatmapPipeline(start, start.AddDate(0, 1, 0), "")
	project := stageValue(t, pipeline[1], "$project")
	dow := docValue(project, "dayOfWeek").(bson.D)
	iso := docValue(dow, "$isoDayOfWeek").(bson.D)
	if got := docValue(iso, "timezone"); got != any("UTC") {
		t.Errorf("timezone = %v, want UTC", got)
	}
}
