package store

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/chatlens/chatlens/internal/timeutil"
)

// Transaction token types. Prompt rows carry input tokens,
// completion rows carry output tokens; one completion row per
// request.
const (
	tokenTypePrompt     = "prompt"
	tokenTypeCompletion = "completion"
)

// --- Token counts ---

// tokenBranch is one facet branch: match a window and token type,
// then sum |rawAmount| into total.
func tokenBranch(start, end time.Time, tokenType string) bson.A {
	return bson.A{
		MatchDateRange(start, end, bson.D{{Key: "tokenType", Value: tokenType}}),
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "total", Value: AbsTokenSum()},
		}}},
	}
}

// tokenCountsPipeline splits transaction token usage four ways:
// input and output for both the current and previous windows.
// Every branch sees the same grouping, so the facet differs only
// in its match stage.
func tokenCountsPipeline(p timeutil.Period) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$facet", Value: bson.D{
			{Key: "currentInput", Value: tokenBranch(p.Start, p.End, tokenTypePrompt)},
			{Key: "currentOutput", Value: tokenBranch(p.Start, p.End, tokenTypeCompletion)},
			{Key: "prevInput", Value: tokenBranch(p.PrevStart, p.PrevEnd, tokenTypePrompt)},
			{Key: "prevOutput", Value: tokenBranch(p.PrevStart, p.PrevEnd, tokenTypeCompletion)},
		}}},
		{{Key: "$project", Value: bson.D{
			{Key: "currentInputToken", Value: FirstOrDefault("currentInput.total", 0)},
			{Key: "currentOutputToken", Value: FirstOrDefault("currentOutput.total", 0)},
			{Key: "prevInputToken", Value: FirstOrDefault("prevInput.total", 0)},
			{Key: "prevOutputToken", Value: FirstOrDefault("prevOutput.total", 0)},
		}}},
	}
}

// TokenCounts returns input/output token totals for the period
// and its comparison window.
func (s *Store) TokenCounts(
	ctx context.Context, p timeutil.Period,
) (TokenCountResult, error) {
	var rows []TokenCountResult
	if err := s.aggregate(ctx, CollTransactions, tokenCountsPipeline(p), &rows); err != nil {
		return TokenCountResult{}, err
	}
	if len(rows) == 0 {
		return TokenCountResult{}, nil
	}
	return rows[0], nil
}

// --- Message stats ---

// messageStatsSuffix groups a window of messages into volume and
// token totals. tokenCount and summaryTokenCount may be unset on
// old documents.
func messageStatsSuffix() []bson.D {
	return []bson.D{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "totalMessages", Value: bson.D{{Key: "$sum", Value: 1}}},
			{Key: "totalTokenCount", Value: bson.D{{Key: "$sum", Value: bson.D{
				{Key: "$ifNull", Value: bson.A{"$tokenCount", 0}},
			}}}},
			{Key: "totalSummaryTokenCount", Value: bson.D{{Key: "$sum", Value: bson.D{
				{Key: "$ifNull", Value: bson.A{"$summaryTokenCount", 0}},
			}}}},
		}}},
	}
}

// messageStatsPipeline aggregates message volume for both windows
// of a period.
func messageStatsPipeline(p timeutil.Period) mongo.Pipeline {
	return mongo.Pipeline{
		PeriodFacet(p, nil, messageStatsSuffix()),
		{{Key: "$project", Value: bson.D{
			{Key: "totalMessages", Value: FirstOrDefault("current.totalMessages", 0)},
			{Key: "totalTokenCount", Value: FirstOrDefault("current.totalTokenCount", 0)},
			{Key: "totalSummaryTokenCount", Value: FirstOrDefault("current.totalSummaryTokenCount", 0)},
			{Key: "prevTotalMessages", Value: FirstOrDefault("prev.totalMessages", 0)},
			{Key: "prevTotalTokenCount", Value: FirstOrDefault("prev.totalTokenCount", 0)},
			{Key: "prevTotalSummaryTokenCount", Value: FirstOrDefault("prev.totalSummaryTokenCount", 0)},
		}}},
	}
}

// MessageStats returns message volume totals for the period and
// its comparison window.
func (s *Store) MessageStats(
	ctx context.Context, p timeutil.Period,
) (MessageStatsResult, error) {
	var rows []MessageStatsResult
	if err := s.aggregate(ctx, CollMessages, messageStatsPipeline(p), &rows); err != nil {
		return MessageStatsResult{}, err
	}
	if len(rows) == 0 {
		return MessageStatsResult{}, nil
	}
	return rows[0], nil
}

// --- Request heatmap ---

// requestHeatmapPipeline buckets messages into (ISO weekday, hour
// of day) cells, evaluated in tz. Weekday numbering is ISO:
// 1=Monday through 7=Sunday. Cells with no traffic are absent
// from the result, not zero-filled.
func requestHeatmapPipeline(start, end time.Time, tz string) mongo.Pipeline {
	if tz == "" {
		tz = "UTC"
	}
	return mongo.Pipeline{
		MatchDateRange(start, end, nil),
		{{Key: "$project", Value: bson.D{
			{Key: "dayOfWeek", Value: bson.D{
				{Key: "$isoDayOfWeek", Value: bson.D{
					{Key: "date", Value: "$createdAt"},
					{Key: "timezone", Value: tz},
				}},
			}},
			{Key: "hour", Value: bson.D{
				{Key: "$hour", Value: bson.D{
					{Key: "date", Value: "$createdAt"},
					{Key: "timezone", Value: tz},
				}},
			}},
		}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: bson.D{
				{Key: "dayOfWeek", Value: "$dayOfWeek"},
				{Key: "hour", Value: "$hour"},
			}},
			{Key: "totalRequests", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		{{Key: "$sort", Value: bson.D{
			{Key: "_id.dayOfWeek", Value: 1},
			{Key: "_id.hour", Value: 1},
		}}},
		{{Key: "$project", Value: bson.D{
			{Key: "_id", Value: 0},
			{Key: "dayOfWeek", Value: "$_id.dayOfWeek"},
			{Key: "timeSlot", Value: "$_id.hour"},
			{Key: "totalRequests", Value: 1},
		}}},
	}
}

// RequestHeatmap returns the weekday-by-hour activity grid for a
// date range. Distinct dates sharing a weekday fold into one
// cell.
func (s *Store) RequestHeatmap(
	ctx context.Context, start, end time.Time, tz string,
) ([]HeatmapEntry, error) {
	var rows []HeatmapEntry
	if err := s.aggregate(ctx, CollMessages, requestHeatmapPipeline(start, end, tz), &rows); err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []HeatmapEntry{}
	}
	return rows, nil
}
