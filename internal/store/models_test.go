package store

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/chatlens/chatlens/internal/timeutil"
)

func testRange() (time.Time, time.Time) {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
}

func TestResolveModelFields(t *testing.T) {
	stage := resolveModelFields()
	fields := stageValue(t, stage, "$addFields")

	// Agent conversations with a declared agent model resolve to
	// it; everything else keeps the transaction's own model.
	want := bson.D{{Key: "$cond", Value: bson.A{
		bson.D{{Key: "$and", Value: bson.A{
			bson.D{{Key: "$eq", Value: bson.A{"$conversation.endpoint", "agents"}}},
			bson.D{{Key: "$ne", Value: bson.A{"$agent.model", nil}}},
		}}},
		"$agent.model",
		"$model",
	}}}
	if diff := cmp.Diff(want, docValue(fields, "resolvedModel")); diff != "" {
		t.Errorf("resolvedModel mismatch (-want +got):\n%s", diff)
	}

	wantEndpoint := bson.D{{Key: "$ifNull", Value: bson.A{"$conversation.endpoint", "direct"}}}
	if diff := cmp.Diff(wantEndpoint, docValue(fields, "endpoint")); diff != "" {
		t.Errorf("endpoint mismatch (-want +got):\n%s", diff)
	}
}

func TestModelResolutionPrecedesGrouping(t *testing.T) {
	start, end := testRange()
	for name, pipeline := range map[string]mongo.Pipeline{
		"usage": modelUsagePipeline(start, end),
		"table": modelStatsTablePipeline(start, end),
	} {
		resolveIdx, groupIdx := -1, -1
		for i, stage := range pipeline {
			if _, ok := stage[0].Value.(bson.D); !ok {
				continue
			}
			switch stage[0].Key {
			case "$addFields":
				if docValue(stage[0].Value.(bson.D), "resolvedModel") != nil {
					resolveIdx = i
				}
			case "$group":
				if groupIdx < 0 {
					groupIdx = i
				}
			}
		}
		if resolveIdx < 0 {
			t.Fatalf("%s: no resolution stage", name)
		}
		if groupIdx < 0 {
			t.Fatalf("%s: no group stage", name)
		}
		if resolveIdx >= groupIdx {
			t.Errorf("%s: resolution at %d, first group at %d", name, resolveIdx, groupIdx)
		}
	}
}

func TestLookupsAreLeftPreserving(t *testing.T) {
	stages := lookupConversationAndAgent()
	if len(stages) != 4 {
		t.Fatalf("got %d stages, want 4", len(stages))
	}
	for _, i := range []int{1, 3} {
		unwind, ok := docValue(stages[i], "$unwind").(bson.D)
		if !ok {
			t.Fatalf("stage %d is not an options-form $unwind", i)
		}
		if got := docValue(unwind, "preserveNullAndEmptyArrays"); got != any(true) {
			t.Errorf("stage %d does not preserve unmatched documents", i)
		}
	}
}

func TestModelStatsTableGroupKeysUseResolvedModel(t *testing.T) {
	start, end := testRange()
	pipeline := modelStatsTablePipeline(start, end)

	var group bson.D
	for _, stage := range pipeline {
		if stage[0].Key == "$group" {
			group = stage[0].Value.(bson.D)
			break
		}
	}
	if group == nil {
		t.Fatal("no group stage")
	}
	id := docValue(group, "_id").(bson.D)
	if got := docValue(id, "model"); got != any("$resolvedModel") {
		t.Errorf("group model key = %v, want $resolvedModel", got)
	}

	// Requests count completion rows only; input/output split on
	// token type.
	for _, field := range []string{"totalInputToken", "totalOutputToken", "requests"} {
		if docValue(group, field) == nil {
			t.Errorf("group accumulator %s missing", field)
		}
	}
}

func TestModelTimeSeriesBucketFieldFollowsGranularity(t *testing.T) {
	start, end := testRange()
	for _, g := range []timeutil.Granularity{
		timeutil.GranularityHour,
		timeutil.GranularityDay,
		timeutil.GranularityMonth,
	} {
		pipeline := modelTimeSeriesPipeline(start, end, "gpt-4o", g, "UTC")

		last := pipeline[len(pipeline)-1]
		project := stageValue(t, last, "$project")
		if got := docValue(project, g.BucketField()); got != any("$_id."+g.BucketField()) {
			t.Errorf("granularity %q: bucket projection = %v", g, got)
		}

		sort := stageValue(t, pipeline[len(pipeline)-2], "$sort")
		if got := docValue(sort, "_id."+g.BucketField()); got != any(1) {
			t.Errorf("granularity %q: series not sorted ascending by bucket", g)
		}
	}
}

func TestModelsAndAgentsCatalogShape(t *testing.T) {
	pipeline := modelsAndAgentsPipeline()

	match := stageValue(t, pipeline[0], "$match")
	model := docValue(match, "model").(bson.D)
	if diff := cmp.Diff(bson.D{{Key: "$ne", Value: nil}}, model); diff != "" {
		t.Errorf("null models not excluded (-want +got):\n%s", diff)
	}

	// Final grouping is by endpoint.
	last := pipeline[len(pipeline)-1]
	group := stageValue(t, last, "$group")
	if got := docValue(group, "_id"); got != any("$_id.endpoint") {
		t.Errorf("catalog group key = %v, want $_id.endpoint", got)
	}
}
