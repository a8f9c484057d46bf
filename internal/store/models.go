package store

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/chatlens/chatlens/internal/timeutil"
)

// --- Model/agent resolution ---

// lookupConversationAndAgent joins a transaction to its
// conversation and, through the conversation's agent_id, to the
// agent. Both joins are left-preserving: transactions with no
// conversation or agent still flow through.
func lookupConversationAndAgent() []bson.D {
	return []bson.D{
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: CollConversations},
			{Key: "localField", Value: "conversationId"},
			{Key: "foreignField", Value: "conversationId"},
			{Key: "as", Value: "conversation"},
		}}},
		{{Key: "$unwind", Value: bson.D{
			{Key: "path", Value: "$conversation"},
			{Key: "preserveNullAndEmptyArrays", Value: true},
		}}},
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: CollAgents},
			{Key: "localField", Value: "conversation.agent_id"},
			{Key: "foreignField", Value: "id"},
			{Key: "as", Value: "agent"},
		}}},
		{{Key: "$unwind", Value: bson.D{
			{Key: "path", Value: "$agent"},
			{Key: "preserveNullAndEmptyArrays", Value: true},
		}}},
	}
}

// resolveModelFields rewrites each transaction's model to the
// agent's underlying model when the conversation ran through the
// agents endpoint and the agent declares one; otherwise the
// transaction's own model stands. Resolution happens before any
// grouping so agent traffic is never counted under the literal
// agent id. Endpoint falls back to "direct" for transactions
// with no conversation.
func resolveModelFields() bson.D {
	return bson.D{{Key: "$addFields", Value: bson.D{
		{Key: "resolvedModel", Value: bson.D{
			{Key: "$cond", Value: bson.A{
				bson.D{{Key: "$and", Value: bson.A{
					bson.D{{Key: "$eq", Value: bson.A{"$conversation.endpoint", "agents"}}},
					bson.D{{Key: "$ne", Value: bson.A{"$agent.model", nil}}},
				}}},
				"$agent.model",
				"$model",
			}},
		}},
		{Key: "endpoint", Value: bson.D{
			{Key: "$ifNull", Value: bson.A{"$conversation.endpoint", "direct"}},
		}},
	}}}
}

// tokenDirectionAccumulators are the shared $group accumulators
// for input tokens, output tokens, and request count.
func tokenDirectionAccumulators() bson.D {
	return bson.D{
		{Key: "totalInputToken", Value: sumIfTokenType(tokenTypePrompt)},
		{Key: "totalOutputToken", Value: sumIfTokenType(tokenTypeCompletion)},
		{Key: "requests", Value: countIfTokenType(tokenTypeCompletion)},
	}
}

// --- Catalog ---

// modelsAndAgentsPipeline builds the model catalog from messages:
// every (endpoint, model) pair with its first-seen date, grouped
// by endpoint. Agent endpoint entries carry the sender set so
// the caller can display agent names.
func modelsAndAgentsPipeline() mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.D{
			{Key: "model", Value: bson.D{{Key: "$ne", Value: nil}}},
		}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: bson.D{
				{Key: "endpoint", Value: "$endpoint"},
				{Key: "model", Value: "$model"},
			}},
			{Key: "sender", Value: bson.D{{Key: "$addToSet", Value: "$sender"}}},
			{Key: "firstCreatedAt", Value: bson.D{{Key: "$min", Value: "$createdAt"}}},
		}}},
		SortBy("firstCreatedAt", 1),
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$_id.endpoint"},
			{Key: "models", Value: bson.D{{Key: "$push", Value: bson.D{
				{Key: "$mergeObjects", Value: bson.A{
					bson.D{
						{Key: "model", Value: "$_id.model"},
						{Key: "firstCreatedAt", Value: "$firstCreatedAt"},
					},
					bson.D{{Key: "$cond", Value: bson.A{
						bson.D{{Key: "$eq", Value: bson.A{"$_id.endpoint", "agents"}}},
						bson.D{{Key: "agentName", Value: "$sender"}},
						bson.D{},
					}}},
				}},
			}}}},
		}}},
	}
}

// ModelsAndAgents returns every model seen in messages, grouped
// by endpoint with first-usage dates.
func (s *Store) ModelsAndAgents(ctx context.Context) ([]ModelCatalogEntry, error) {
	var rows []ModelCatalogEntry
	if err := s.aggregate(ctx, CollMessages, modelsAndAgentsPipeline(), &rows); err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []ModelCatalogEntry{}
	}
	return rows, nil
}

// --- Usage by provider ---

// modelUsagePipeline sums transaction tokens per resolved model,
// then folds models into their provider/endpoint.
func modelUsagePipeline(start, end time.Time) mongo.Pipeline {
	pipeline := mongo.Pipeline{
		MatchDateRange(start, end, bson.D{
			{Key: "model", Value: bson.D{{Key: "$ne", Value: nil}}},
		}),
	}
	pipeline = append(pipeline, lookupConversationAndAgent()...)
	pipeline = append(pipeline,
		resolveModelFields(),
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: bson.D{
				{Key: "endpoint", Value: "$endpoint"},
				{Key: "model", Value: "$resolvedModel"},
			}},
			{Key: "tokenCount", Value: AbsTokenSum()},
		}}},
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$_id.endpoint"},
			{Key: "totalTokenCount", Value: bson.D{{Key: "$sum", Value: "$tokenCount"}}},
			{Key: "models", Value: bson.D{{Key: "$push", Value: bson.D{
				{Key: "name", Value: "$_id.model"},
				{Key: "tokenCount", Value: "$tokenCount"},
			}}}},
		}}},
		SortBy("_id", 1),
	)
	return pipeline
}

// ModelUsageByProvider returns token usage grouped by provider
// for a date range.
func (s *Store) ModelUsageByProvider(
	ctx context.Context, start, end time.Time,
) ([]ModelUsageEntry, error) {
	var rows []ModelUsageEntry
	if err := s.aggregate(ctx, CollTransactions, modelUsagePipeline(start, end), &rows); err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []ModelUsageEntry{}
	}
	return rows, nil
}

// --- Stats table ---

// modelStatsTablePipeline produces one row per (resolved model,
// endpoint) with token direction sums and request counts.
func modelStatsTablePipeline(start, end time.Time) mongo.Pipeline {
	pipeline := mongo.Pipeline{
		MatchDateRange(start, end, bson.D{
			{Key: "model", Value: bson.D{{Key: "$ne", Value: nil}}},
		}),
	}
	pipeline = append(pipeline, lookupConversationAndAgent()...)
	group := bson.D{
		{Key: "_id", Value: bson.D{
			{Key: "model", Value: "$resolvedModel"},
			{Key: "endpoint", Value: "$endpoint"},
		}},
	}
	group = append(group, tokenDirectionAccumulators()...)
	pipeline = append(pipeline,
		resolveModelFields(),
		bson.D{{Key: "$group", Value: group}},
		bson.D{{Key: "$project", Value: bson.D{
			{Key: "_id", Value: 0},
			{Key: "model", Value: "$_id.model"},
			{Key: "endpoint", Value: "$_id.endpoint"},
			{Key: "totalInputToken", Value: 1},
			{Key: "totalOutputToken", Value: 1},
			{Key: "requests", Value: 1},
		}}},
	)
	return pipeline
}

// ModelStatsTable returns per-model usage rows for a date range.
func (s *Store) ModelStatsTable(
	ctx context.Context, start, end time.Time,
) ([]StatsTableEntry, error) {
	var rows []StatsTableEntry
	if err := s.aggregate(ctx, CollTransactions, modelStatsTablePipeline(start, end), &rows); err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []StatsTableEntry{}
	}
	return rows, nil
}

// --- Time series ---

// modelTimeSeriesPipeline buckets one model's transactions by the
// granularity's time field. The inner-join unwind on conversation
// is deliberate here: a chart point needs an endpoint to plot
// under.
func modelTimeSeriesPipeline(
	start, end time.Time, model string,
	g timeutil.Granularity, tz string,
) mongo.Pipeline {
	field := g.BucketField()
	return mongo.Pipeline{
		MatchDateRange(start, end, bson.D{{Key: "model", Value: model}}),
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: CollConversations},
			{Key: "localField", Value: "conversationId"},
			{Key: "foreignField", Value: "conversationId"},
			{Key: "as", Value: "conversation"},
		}}},
		{{Key: "$unwind", Value: "$conversation"}},
		{{Key: "$addFields", Value: bson.D{
			{Key: "endpoint", Value: "$conversation.endpoint"},
		}}},
		AddTimeField(g, tz),
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: bson.D{
				{Key: "model", Value: "$model"},
				{Key: "endpoint", Value: "$endpoint"},
				{Key: field, Value: "$" + field},
			}},
			{Key: "totalInputToken", Value: sumIfTokenType(tokenTypePrompt)},
			{Key: "totalOutputToken", Value: sumIfTokenType(tokenTypeCompletion)},
			{Key: "requests", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		SortBy("_id."+field, 1),
		{{Key: "$project", Value: bson.D{
			{Key: "_id", Value: 0},
			{Key: "model", Value: "$_id.model"},
			{Key: "endpoint", Value: "$_id.endpoint"},
			{Key: field, Value: "$_id." + field},
			{Key: "totalInputToken", Value: 1},
			{Key: "totalOutputToken", Value: 1},
			{Key: "requests", Value: 1},
		}}},
	}
}

// ModelTimeSeries returns bucketed usage for one model, sorted
// by bucket key ascending.
func (s *Store) ModelTimeSeries(
	ctx context.Context, start, end time.Time,
	model string, g timeutil.Granularity, tz string,
) ([]TimeSeriesEntry, error) {
	var rows []TimeSeriesEntry
	err := s.aggregate(ctx, CollTransactions,
		modelTimeSeriesPipeline(start, end, model, g, tz), &rows)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []TimeSeriesEntry{}
	}
	return rows, nil
}
