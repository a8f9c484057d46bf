package store

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/chatlens/chatlens/internal/timeutil"
)

// TotalAgentCount returns the number of configured agents.
func (s *Store) TotalAgentCount(ctx context.Context) (int64, error) {
	return s.count(ctx, CollAgents)
}

// lookupAgentChain joins a transaction to its conversation, keeps
// only agent-endpoint conversations, then joins the agent record.
// The conversation unwind is an inner join because a transaction
// without one cannot belong to an agent; the agent unwind stays
// left-preserving so deleted agents still show up under their id.
func lookupAgentChain() []bson.D {
	return []bson.D{
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: CollConversations},
			{Key: "localField", Value: "conversationId"},
			{Key: "foreignField", Value: "conversationId"},
			{Key: "as", Value: "conv"},
		}}},
		{{Key: "$unwind", Value: "$conv"}},
		{{Key: "$match", Value: bson.D{
			{Key: "conv.endpoint", Value: "agents"},
		}}},
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: CollAgents},
			{Key: "localField", Value: "conv.agent_id"},
			{Key: "foreignField", Value: "id"},
			{Key: "as", Value: "agent"},
		}}},
		{{Key: "$unwind", Value: bson.D{
			{Key: "path", Value: "$agent"},
			{Key: "preserveNullAndEmptyArrays", Value: true},
		}}},
	}
}

// agentIdentityKeys are the $group key fields identifying an
// agent row, with fallbacks for agents missing from the agents
// collection: name falls back to the raw agent id, model to the
// transaction's model, endpoint to "agents".
func agentIdentityKeys() bson.D {
	return bson.D{
		{Key: "agentId", Value: "$conv.agent_id"},
		{Key: "agentName", Value: bson.D{
			{Key: "$ifNull", Value: bson.A{"$agent.name", "$conv.agent_id"}},
		}},
		{Key: "model", Value: bson.D{
			{Key: "$ifNull", Value: bson.A{"$agent.model", "$model"}},
		}},
		{Key: "endpoint", Value: bson.D{
			{Key: "$ifNull", Value: bson.A{"$agent.provider", "agents"}},
		}},
	}
}

// agentStatsTablePipeline produces one row per agent with token
// direction sums and request counts.
func agentStatsTablePipeline(start, end time.Time) mongo.Pipeline {
	pipeline := mongo.Pipeline{MatchDateRange(start, end, nil)}
	pipeline = append(pipeline, lookupAgentChain()...)
	group := bson.D{{Key: "_id", Value: agentIdentityKeys()}}
	group = append(group, tokenDirectionAccumulators()...)
	pipeline = append(pipeline,
		bson.D{{Key: "$group", Value: group}},
		bson.D{{Key: "$project", Value: bson.D{
			{Key: "_id", Value: 0},
			{Key: "agentId", Value: "$_id.agentId"},
			{Key: "agentName", Value: "$_id.agentName"},
			{Key: "model", Value: "$_id.model"},
			{Key: "endpoint", Value: "$_id.endpoint"},
			{Key: "totalInputToken", Value: 1},
			{Key: "totalOutputToken", Value: 1},
			{Key: "requests", Value: 1},
		}}},
	)
	return pipeline
}

// AgentStatsTable returns per-agent usage rows for a date range.
func (s *Store) AgentStatsTable(
	ctx context.Context, start, end time.Time,
) ([]StatsTableEntry, error) {
	var rows []StatsTableEntry
	if err := s.aggregate(ctx, CollTransactions, agentStatsTablePipeline(start, end), &rows); err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []StatsTableEntry{}
	}
	return rows, nil
}

// agentTimeSeriesPipeline buckets one agent's transactions by the
// granularity's time field. The agent may be addressed by display
// name or by raw agent id.
func agentTimeSeriesPipeline(
	start, end time.Time, agentName string,
	g timeutil.Granularity, tz string,
) mongo.Pipeline {
	field := g.BucketField()
	pipeline := mongo.Pipeline{MatchDateRange(start, end, nil)}
	pipeline = append(pipeline, lookupAgentChain()...)
	groupKeys := bson.D{
		{Key: "agentId", Value: "$conv.agent_id"},
		{Key: "agentName", Value: bson.D{
			{Key: "$ifNull", Value: bson.A{"$agent.name", "$conv.agent_id"}},
		}},
		{Key: "endpoint", Value: bson.D{
			{Key: "$ifNull", Value: bson.A{"$agent.provider", "agents"}},
		}},
		{Key: field, Value: "$" + field},
	}
	group := bson.D{{Key: "_id", Value: groupKeys}}
	group = append(group, tokenDirectionAccumulators()...)
	pipeline = append(pipeline,
		bson.D{{Key: "$match", Value: bson.D{
			{Key: "$or", Value: bson.A{
				bson.D{{Key: "agent.name", Value: agentName}},
				bson.D{{Key: "conv.agent_id", Value: agentName}},
			}},
		}}},
		AddTimeField(g, tz),
		bson.D{{Key: "$group", Value: group}},
		SortBy("_id."+field, 1),
		bson.D{{Key: "$project", Value: bson.D{
			{Key: "_id", Value: 0},
			{Key: "agentId", Value: "$_id.agentId"},
			{Key: "agentName", Value: "$_id.agentName"},
			{Key: "endpoint", Value: "$_id.endpoint"},
			{Key: field, Value: "$_id." + field},
			{Key: "totalInputToken", Value: 1},
			{Key: "totalOutputToken", Value: 1},
			{Key: "requests", Value: 1},
		}}},
	)
	return pipeline
}

// AgentTimeSeries returns bucketed usage for one agent, sorted by
// bucket key ascending.
func (s *Store) AgentTimeSeries(
	ctx context.Context, start, end time.Time,
	agentName string, g timeutil.Granularity, tz string,
) ([]TimeSeriesEntry, error) {
	var rows []TimeSeriesEntry
	err := s.aggregate(ctx, CollTransactions,
		agentTimeSeriesPipeline(start, end, agentName, g, tz), &rows)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []TimeSeriesEntry{}
	}
	return rows, nil
}
