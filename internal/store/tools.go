package store

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/chatlens/chatlens/internal/timeutil"
)

// toolCallPrefilter prunes documents with no tool calls before
// the unwind; the array index on content.type does the work.
func toolCallPrefilter() bson.D {
	return bson.D{{Key: "content.type", Value: "tool_call"}}
}

// --- MCP tool calls ---

// mcpToolCallsPipeline counts MCP tool calls in both windows of a
// period.
func mcpToolCallsPipeline(p timeutil.Period) mongo.Pipeline {
	suffix := UnwindToolCalls()
	suffix = append(suffix, MatchMCPTools(),
		bson.D{{Key: "$count", Value: "mcpToolCallCount"}})
	return mongo.Pipeline{
		PeriodFacet(p, toolCallPrefilter(), suffix),
		{{Key: "$project", Value: bson.D{
			{Key: "currentMcpToolCalls", Value: FirstOrDefault("current.mcpToolCallCount", 0)},
			{Key: "prevMcpToolCalls", Value: FirstOrDefault("prev.mcpToolCallCount", 0)},
		}}},
	}
}

// McpToolCalls returns the MCP tool call count for the period and
// its comparison window.
func (s *Store) McpToolCalls(
	ctx context.Context, p timeutil.Period,
) (McpToolCallsResult, error) {
	var rows []McpToolCallsResult
	if err := s.aggregate(ctx, CollMessages, mcpToolCallsPipeline(p), &rows); err != nil {
		return McpToolCallsResult{}, err
	}
	if len(rows) == 0 {
		return McpToolCallsResult{}, nil
	}
	return rows[0], nil
}

// --- All tool calls ---

// allToolCallsPipeline counts every tool call, MCP or not, in
// both windows of a period.
func allToolCallsPipeline(p timeutil.Period) mongo.Pipeline {
	suffix := UnwindToolCalls()
	suffix = append(suffix, bson.D{{Key: "$count", Value: "toolCallCount"}})
	return mongo.Pipeline{
		PeriodFacet(p, toolCallPrefilter(), suffix),
		{{Key: "$project", Value: bson.D{
			{Key: "currentToolCalls", Value: FirstOrDefault("current.toolCallCount", 0)},
			{Key: "prevToolCalls", Value: FirstOrDefault("prev.toolCallCount", 0)},
		}}},
	}
}

// AllToolCalls returns the total tool call count for the period
// and its comparison window.
func (s *Store) AllToolCalls(
	ctx context.Context, p timeutil.Period,
) (AllToolCallsResult, error) {
	var rows []AllToolCallsResult
	if err := s.aggregate(ctx, CollMessages, allToolCallsPipeline(p), &rows); err != nil {
		return AllToolCallsResult{}, err
	}
	if len(rows) == 0 {
		return AllToolCallsResult{}, nil
	}
	return rows[0], nil
}

// --- MCP tool table ---

// mcpToolStatsTablePipeline groups MCP tool calls by (tool,
// server) with call counts and distinct user/conversation
// counts, busiest tools first.
func mcpToolStatsTablePipeline(start, end time.Time) mongo.Pipeline {
	pipeline := mongo.Pipeline{
		MatchDateRange(start, end, toolCallPrefilter()),
	}
	pipeline = append(pipeline, UnwindToolCalls()...)
	pipeline = append(pipeline, MatchMCPTools())
	pipeline = append(pipeline, SplitToolName()...)
	pipeline = append(pipeline,
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: bson.D{
				{Key: "toolName", Value: "$toolName"},
				{Key: "serverName", Value: "$serverName"},
			}},
			{Key: "callCount", Value: bson.D{{Key: "$sum", Value: 1}}},
			{Key: "uniqueUsers", Value: bson.D{{Key: "$addToSet", Value: "$user"}}},
			{Key: "uniqueConversations", Value: bson.D{{Key: "$addToSet", Value: "$conversationId"}}},
		}}},
		bson.D{{Key: "$project", Value: bson.D{
			{Key: "_id", Value: 0},
			{Key: "toolName", Value: "$_id.toolName"},
			{Key: "serverName", Value: "$_id.serverName"},
			{Key: "callCount", Value: 1},
			{Key: "uniqueUsers", Value: bson.D{{Key: "$size", Value: "$uniqueUsers"}}},
			{Key: "uniqueConversations", Value: bson.D{{Key: "$size", Value: "$uniqueConversations"}}},
		}}},
		SortBy("callCount", -1),
	)
	return pipeline
}

// McpToolStatsTable returns per-tool MCP usage rows for a date
// range.
func (s *Store) McpToolStatsTable(
	ctx context.Context, start, end time.Time,
) ([]McpToolStatsEntry, error) {
	var rows []McpToolStatsEntry
	if err := s.aggregate(ctx, CollMessages, mcpToolStatsTablePipeline(start, end), &rows); err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []McpToolStatsEntry{}
	}
	return rows, nil
}

// --- MCP tool chart ---

// mcpToolStatsChartPipeline buckets MCP tool calls by (tool,
// server, time bucket).
func mcpToolStatsChartPipeline(
	start, end time.Time, g timeutil.Granularity, tz string,
) mongo.Pipeline {
	if tz == "" {
		tz = "UTC"
	}
	pipeline := mongo.Pipeline{
		MatchDateRange(start, end, toolCallPrefilter()),
	}
	pipeline = append(pipeline, UnwindToolCalls()...)
	pipeline = append(pipeline, MatchMCPTools())
	pipeline = append(pipeline, SplitToolName()...)
	pipeline = append(pipeline,
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: bson.D{
				{Key: "toolName", Value: "$toolName"},
				{Key: "serverName", Value: "$serverName"},
				{Key: "date", Value: bson.D{
					{Key: "$dateToString", Value: bson.D{
						{Key: "format", Value: DateFormat(g)},
						{Key: "date", Value: "$createdAt"},
						{Key: "timezone", Value: tz},
					}},
				}},
			}},
			{Key: "callCount", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		bson.D{{Key: "$project", Value: bson.D{
			{Key: "_id", Value: 0},
			{Key: "toolName", Value: "$_id.toolName"},
			{Key: "serverName", Value: "$_id.serverName"},
			{Key: "date", Value: "$_id.date"},
			{Key: "callCount", Value: 1},
		}}},
		bson.D{{Key: "$sort", Value: bson.D{
			{Key: "date", Value: 1},
			{Key: "toolName", Value: 1},
		}}},
	)
	return pipeline
}

// McpToolStatsChart returns bucketed MCP tool call counts for a
// date range.
func (s *Store) McpToolStatsChart(
	ctx context.Context, start, end time.Time,
	g timeutil.Granularity, tz string,
) ([]McpToolSeriesEntry, error) {
	var rows []McpToolSeriesEntry
	err := s.aggregate(ctx, CollMessages,
		mcpToolStatsChartPipeline(start, end, g, tz), &rows)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []McpToolSeriesEntry{}
	}
	return rows, nil
}

// --- Web search ---

// webSearchSuffix aggregates one window of web-search tool calls
// into count plus distinct users and conversations.
func webSearchSuffix() []bson.D {
	suffix := UnwindToolCalls()
	suffix = append(suffix, MatchWebSearchTools(),
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "searchCount", Value: bson.D{{Key: "$sum", Value: 1}}},
			{Key: "uniqueUsers", Value: bson.D{{Key: "$addToSet", Value: "$user"}}},
			{Key: "uniqueConversations", Value: bson.D{{Key: "$addToSet", Value: "$conversationId"}}},
		}}},
		bson.D{{Key: "$project", Value: bson.D{
			{Key: "_id", Value: 0},
			{Key: "searchCount", Value: 1},
			{Key: "uniqueUsers", Value: bson.D{{Key: "$size", Value: "$uniqueUsers"}}},
			{Key: "uniqueConversations", Value: bson.D{{Key: "$size", Value: "$uniqueConversations"}}},
		}}},
	)
	return suffix
}

// emptyWebSearchWindow is the default for a window with no
// searches.
func emptyWebSearchWindow() bson.D {
	return bson.D{
		{Key: "searchCount", Value: 0},
		{Key: "uniqueUsers", Value: 0},
		{Key: "uniqueConversations", Value: 0},
	}
}

// webSearchStatsPipeline compares web-search usage across both
// windows of a period.
func webSearchStatsPipeline(p timeutil.Period) mongo.Pipeline {
	return mongo.Pipeline{
		PeriodFacet(p, toolCallPrefilter(), webSearchSuffix()),
		{{Key: "$project", Value: bson.D{
			{Key: "current", Value: FirstOrDefault("current", emptyWebSearchWindow())},
			{Key: "prev", Value: FirstOrDefault("prev", emptyWebSearchWindow())},
		}}},
	}
}

// WebSearchStats returns web-search usage for the period and its
// comparison window.
func (s *Store) WebSearchStats(
	ctx context.Context, p timeutil.Period,
) (WebSearchStatsResult, error) {
	var rows []WebSearchStatsResult
	if err := s.aggregate(ctx, CollMessages, webSearchStatsPipeline(p), &rows); err != nil {
		return WebSearchStatsResult{}, err
	}
	if len(rows) == 0 {
		return WebSearchStatsResult{}, nil
	}
	return rows[0], nil
}
