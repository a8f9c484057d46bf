package store

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/chatlens/chatlens/internal/timeutil"
)

// --- Active users ---

// activeUsersPipeline counts distinct message authors in both
// windows of a period.
func activeUsersPipeline(p timeutil.Period) mongo.Pipeline {
	return mongo.Pipeline{
		PeriodFacet(p, nil, CountByField("user", "activeUserCount")),
		{{Key: "$project", Value: bson.D{
			{Key: "currentActiveUsers", Value: FirstOrDefault("current.activeUserCount", 0)},
			{Key: "prevActiveUsers", Value: FirstOrDefault("prev.activeUserCount", 0)},
		}}},
	}
}

// ActiveUsers returns the distinct active user count for the
// period and its comparison window.
func (s *Store) ActiveUsers(
	ctx context.Context, p timeutil.Period,
) (ActiveUsersResult, error) {
	var rows []ActiveUsersResult
	if err := s.aggregate(ctx, CollMessages, activeUsersPipeline(p), &rows); err != nil {
		return ActiveUsersResult{}, err
	}
	if len(rows) == 0 {
		return ActiveUsersResult{}, nil
	}
	return rows[0], nil
}

// --- Conversations ---

// conversationsPipeline counts distinct conversations in both
// windows of a period.
func conversationsPipeline(p timeutil.Period) mongo.Pipeline {
	return mongo.Pipeline{
		PeriodFacet(p, nil, CountByField("conversationId", "conversationCount")),
		{{Key: "$project", Value: bson.D{
			{Key: "currentConversations", Value: FirstOrDefault("current.conversationCount", 0)},
			{Key: "prevConversations", Value: FirstOrDefault("prev.conversationCount", 0)},
		}}},
	}
}

// Conversations returns the distinct conversation count for the
// period and its comparison window.
func (s *Store) Conversations(
	ctx context.Context, p timeutil.Period,
) (ConversationsResult, error) {
	var rows []ConversationsResult
	if err := s.aggregate(ctx, CollMessages, conversationsPipeline(p), &rows); err != nil {
		return ConversationsResult{}, err
	}
	if len(rows) == 0 {
		return ConversationsResult{}, nil
	}
	return rows[0], nil
}

// TotalUserCount returns the total number of registered users.
func (s *Store) TotalUserCount(ctx context.Context) (int64, error) {
	return s.count(ctx, CollUsers)
}

// --- Per-user behavior ---

// behaviorContentFields derives per-message tool call and error
// counters from the content array. Shared by the rollup and the
// per-user drill-down.
func behaviorContentFields() []bson.D {
	return []bson.D{
		{{Key: "$addFields", Value: bson.D{
			{Key: "toolCallsInMessage", Value: filterContentItems("tool_call")},
			{Key: "errorItemsInMessage", Value: filterContentItems("error")},
		}}},
		{{Key: "$addFields", Value: bson.D{
			{Key: "mcpToolCallsInMessage", Value: countMatchingToolCalls(mcpDelimiterPattern, false)},
			{Key: "webSearchCallsInMessage", Value: countMatchingToolCalls(webSearchPattern, true)},
		}}},
	}
}

// lookupUserProfile joins the grouped user id to the user profile
// for display names. Left-preserving: users missing from the
// users collection still produce a row.
func lookupUserProfile() bson.D {
	return bson.D{{Key: "$lookup", Value: bson.D{
		{Key: "from", Value: CollUsers},
		{Key: "let", Value: bson.D{{Key: "targetUserId", Value: "$_id"}}},
		{Key: "pipeline", Value: bson.A{
			bson.D{{Key: "$match", Value: bson.D{
				{Key: "$expr", Value: bson.D{
					{Key: "$eq", Value: bson.A{"$userId", "$$targetUserId"}},
				}},
			}}},
			bson.D{{Key: "$project", Value: bson.D{
				{Key: "_id", Value: 0},
				{Key: "name", Value: 1},
				{Key: "email", Value: 1},
				{Key: "username", Value: 1},
			}}},
			bson.D{{Key: "$limit", Value: 1}},
		}},
		{Key: "as", Value: "userProfile"},
	}}}
}

// userNameExpr falls back from profile name to username when the
// display name is unset.
func userNameExpr() bson.D {
	return bson.D{{Key: "$ifNull", Value: bson.A{
		bson.D{{Key: "$arrayElemAt", Value: bson.A{"$userProfile.name", 0}}},
		bson.D{{Key: "$arrayElemAt", Value: bson.A{"$userProfile.username", 0}}},
	}}}
}

// userBehaviorPipeline rolls message activity up per user: volume,
// tool usage, failed assistant responses, recency. Most active
// users first.
func userBehaviorPipeline(start, end time.Time) mongo.Pipeline {
	pipeline := mongo.Pipeline{MatchDateRange(start, end, nil)}
	pipeline = append(pipeline, behaviorContentFields()...)
	pipeline = append(pipeline,
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$user"},
			{Key: "messageCount", Value: bson.D{{Key: "$sum", Value: 1}}},
			{Key: "conversations", Value: bson.D{{Key: "$addToSet", Value: "$conversationId"}}},
			{Key: "mcpToolCallCount", Value: bson.D{{Key: "$sum", Value: "$mcpToolCallsInMessage"}}},
			{Key: "webSearchCount", Value: bson.D{{Key: "$sum", Value: "$webSearchCallsInMessage"}}},
			{Key: "aiErrorCount", Value: bson.D{{Key: "$sum", Value: bson.D{
				{Key: "$cond", Value: bson.A{hasAIErrorExpr(), 1, 0}},
			}}}},
			{Key: "lastActivityAt", Value: bson.D{{Key: "$max", Value: "$createdAt"}}},
		}}},
		lookupUserProfile(),
		bson.D{{Key: "$project", Value: bson.D{
			{Key: "_id", Value: 0},
			{Key: "userId", Value: bson.D{{Key: "$ifNull", Value: bson.A{"$_id", "unknown"}}}},
			{Key: "userName", Value: userNameExpr()},
			{Key: "email", Value: bson.D{{Key: "$arrayElemAt", Value: bson.A{"$userProfile.email", 0}}}},
			{Key: "messageCount", Value: 1},
			{Key: "conversationCount", Value: bson.D{{Key: "$size", Value: "$conversations"}}},
			{Key: "mcpToolCallCount", Value: 1},
			{Key: "webSearchCount", Value: 1},
			{Key: "aiErrorCount", Value: 1},
			{Key: "lastActivityAt", Value: 1},
		}}},
		bson.D{{Key: "$sort", Value: bson.D{
			{Key: "messageCount", Value: -1},
			{Key: "lastActivityAt", Value: -1},
		}}},
	)
	return pipeline
}

// UserBehaviorStats returns the per-user activity rollup for a
// date range.
func (s *Store) UserBehaviorStats(
	ctx context.Context, start, end time.Time,
) ([]UserBehaviorEntry, error) {
	var rows []UserBehaviorEntry
	if err := s.aggregate(ctx, CollMessages, userBehaviorPipeline(start, end), &rows); err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []UserBehaviorEntry{}
	}
	return rows, nil
}

// --- Per-user drill-down ---

// userDetailSummaryPipeline is the rollup restricted to one user,
// with the user/assistant sender split added.
func userDetailSummaryPipeline(userID string, start, end time.Time) mongo.Pipeline {
	pipeline := mongo.Pipeline{
		MatchDateRange(start, end, bson.D{{Key: "user", Value: userID}}),
	}
	pipeline = append(pipeline, behaviorContentFields()...)
	pipeline = append(pipeline,
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$user"},
			{Key: "messageCount", Value: bson.D{{Key: "$sum", Value: 1}}},
			{Key: "conversations", Value: bson.D{{Key: "$addToSet", Value: "$conversationId"}}},
			{Key: "userMessageCount", Value: bson.D{{Key: "$sum", Value: bson.D{
				{Key: "$cond", Value: bson.A{
					bson.D{{Key: "$eq", Value: bson.A{"$sender", "user"}}}, 1, 0,
				}},
			}}}},
			{Key: "assistantMessageCount", Value: bson.D{{Key: "$sum", Value: bson.D{
				{Key: "$cond", Value: bson.A{
					bson.D{{Key: "$eq", Value: bson.A{"$sender", "assistant"}}}, 1, 0,
				}},
			}}}},
			{Key: "mcpToolCallCount", Value: bson.D{{Key: "$sum", Value: "$mcpToolCallsInMessage"}}},
			{Key: "webSearchCount", Value: bson.D{{Key: "$sum", Value: "$webSearchCallsInMessage"}}},
			{Key: "aiErrorCount", Value: bson.D{{Key: "$sum", Value: bson.D{
				{Key: "$cond", Value: bson.A{hasAIErrorExpr(), 1, 0}},
			}}}},
			{Key: "lastActivityAt", Value: bson.D{{Key: "$max", Value: "$createdAt"}}},
		}}},
		lookupUserProfile(),
		bson.D{{Key: "$project", Value: bson.D{
			{Key: "_id", Value: 0},
			{Key: "userId", Value: bson.D{{Key: "$ifNull", Value: bson.A{"$_id", userID}}}},
			{Key: "userName", Value: userNameExpr()},
			{Key: "email", Value: bson.D{{Key: "$arrayElemAt", Value: bson.A{"$userProfile.email", 0}}}},
			{Key: "messageCount", Value: 1},
			{Key: "conversationCount", Value: bson.D{{Key: "$size", Value: "$conversations"}}},
			{Key: "userMessageCount", Value: 1},
			{Key: "assistantMessageCount", Value: 1},
			{Key: "mcpToolCallCount", Value: 1},
			{Key: "webSearchCount", Value: 1},
			{Key: "aiErrorCount", Value: 1},
			{Key: "lastActivityAt", Value: 1},
		}}},
	)
	return pipeline
}

// userTopMCPToolsPipeline ranks one user's MCP tools by call
// count, top 10.
func userTopMCPToolsPipeline(userID string, start, end time.Time) mongo.Pipeline {
	pipeline := mongo.Pipeline{
		MatchDateRange(start, end, bson.D{
			{Key: "user", Value: userID},
			{Key: "content.type", Value: "tool_call"},
		}),
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
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		bson.D{{Key: "$project", Value: bson.D{
			{Key: "_id", Value: 0},
			{Key: "toolName", Value: "$_id.toolName"},
			{Key: "serverName", Value: "$_id.serverName"},
			{Key: "count", Value: 1},
		}}},
		SortBy("count", -1),
		bson.D{{Key: "$limit", Value: 10}},
	)
	return pipeline
}

// userRecentActivitiesPipeline lists one user's 25 most recent
// messages with a bounded text preview and the failure flag.
func userRecentActivitiesPipeline(userID string, start, end time.Time) mongo.Pipeline {
	return mongo.Pipeline{
		MatchDateRange(start, end, bson.D{{Key: "user", Value: userID}}),
		{{Key: "$addFields", Value: bson.D{
			{Key: "errorItemsInMessage", Value: filterContentItems("error")},
		}}},
		{{Key: "$addFields", Value: bson.D{
			{Key: "hasAiError", Value: hasAIErrorExpr()},
		}}},
		{{Key: "$project", Value: bson.D{
			{Key: "_id", Value: 0},
			{Key: "messageId", Value: bson.D{{Key: "$ifNull", Value: bson.A{"$messageId", ""}}}},
			{Key: "conversationId", Value: bson.D{{Key: "$ifNull", Value: bson.A{"$conversationId", ""}}}},
			{Key: "sender", Value: bson.D{{Key: "$ifNull", Value: bson.A{"$sender", "unknown"}}}},
			{Key: "model", Value: "$model"},
			{Key: "endpoint", Value: bson.D{{Key: "$ifNull", Value: bson.A{"$endpoint", "unknown"}}}},
			{Key: "textPreview", Value: bson.D{{Key: "$substrCP", Value: bson.A{
				bson.D{{Key: "$ifNull", Value: bson.A{"$text", ""}}}, 0, 180,
			}}}},
			{Key: "createdAt", Value: "$createdAt"},
			{Key: "hasAiError", Value: "$hasAiError"},
		}}},
		SortBy("createdAt", -1),
		{{Key: "$limit", Value: 25}},
	}
}

// UserBehaviorDetail returns the drill-down for one user: the
// summary rollup, their top MCP tools, and recent activity.
// Returns nil when the user has no messages in the range.
func (s *Store) UserBehaviorDetail(
	ctx context.Context, userID string, start, end time.Time,
) (*UserBehaviorDetail, error) {
	var summaries []UserBehaviorDetail
	err := s.aggregate(ctx, CollMessages,
		userDetailSummaryPipeline(userID, start, end), &summaries)
	if err != nil {
		return nil, err
	}
	if len(summaries) == 0 {
		return nil, nil
	}
	detail := summaries[0]

	err = s.aggregate(ctx, CollMessages,
		userTopMCPToolsPipeline(userID, start, end), &detail.TopMcpTools)
	if err != nil {
		return nil, err
	}
	err = s.aggregate(ctx, CollMessages,
		userRecentActivitiesPipeline(userID, start, end), &detail.RecentActivities)
	if err != nil {
		return nil, err
	}

	if detail.TopMcpTools == nil {
		detail.TopMcpTools = []UserMcpToolUsage{}
	}
	if detail.RecentActivities == nil {
		detail.RecentActivities = []UserActivity{}
	}
	return &detail, nil
}
