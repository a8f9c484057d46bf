package store

import "time"

// Comparison results always carry both windows; absent data is
// 0, never a missing field.

// ActiveUsersResult counts distinct message authors per window.
type ActiveUsersResult struct {
	CurrentActiveUsers int64 `bson:"currentActiveUsers" json:"currentActiveUsers"`
	PrevActiveUsers    int64 `bson:"prevActiveUsers" json:"prevActiveUsers"`
}

// ConversationsResult counts distinct conversations per window.
type ConversationsResult struct {
	CurrentConversations int64 `bson:"currentConversations" json:"currentConversations"`
	PrevConversations    int64 `bson:"prevConversations" json:"prevConversations"`
}

// TokenCountResult splits token usage by direction per window.
type TokenCountResult struct {
	CurrentInputToken  int64 `bson:"currentInputToken" json:"currentInputToken"`
	CurrentOutputToken int64 `bson:"currentOutputToken" json:"currentOutputToken"`
	PrevInputToken     int64 `bson:"prevInputToken" json:"prevInputToken"`
	PrevOutputToken    int64 `bson:"prevOutputToken" json:"prevOutputToken"`
}

// MessageStatsResult aggregates message volume per window.
type MessageStatsResult struct {
	TotalMessages              int64 `bson:"totalMessages" json:"totalMessages"`
	TotalTokenCount            int64 `bson:"totalTokenCount" json:"totalTokenCount"`
	TotalSummaryTokenCount     int64 `bson:"totalSummaryTokenCount" json:"totalSummaryTokenCount"`
	PrevTotalMessages          int64 `bson:"prevTotalMessages" json:"prevTotalMessages"`
	PrevTotalTokenCount        int64 `bson:"prevTotalTokenCount" json:"prevTotalTokenCount"`
	PrevTotalSummaryTokenCount int64 `bson:"prevTotalSummaryTokenCount" json:"prevTotalSummaryTokenCount"`
}

// HeatmapEntry is one observed (ISO weekday, hour) cell.
// DayOfWeek is 1=Monday..7=Sunday; TimeSlot is 0..23. Distinct
// calendar dates sharing a weekday aggregate into one cell: the
// heatmap describes a typical week, not specific dates.
type HeatmapEntry struct {
	DayOfWeek     int   `bson:"dayOfWeek" json:"dayOfWeek"`
	TimeSlot      int   `bson:"timeSlot" json:"timeSlot"`
	TotalRequests int64 `bson:"totalRequests" json:"totalRequests"`
}

// McpToolCallsResult counts MCP tool calls per window.
type McpToolCallsResult struct {
	CurrentMcpToolCalls int64 `bson:"currentMcpToolCalls" json:"currentMcpToolCalls"`
	PrevMcpToolCalls    int64 `bson:"prevMcpToolCalls" json:"prevMcpToolCalls"`
}

// AllToolCallsResult counts every tool call, MCP or not.
type AllToolCallsResult struct {
	CurrentToolCalls int64 `bson:"currentToolCalls" json:"currentToolCalls"`
	PrevToolCalls    int64 `bson:"prevToolCalls" json:"prevToolCalls"`
}

// McpToolStatsEntry is one (tool, server) row of the MCP table.
type McpToolStatsEntry struct {
	ToolName            string `bson:"toolName" json:"toolName"`
	ServerName          string `bson:"serverName" json:"serverName"`
	CallCount           int64  `bson:"callCount" json:"callCount"`
	UniqueUsers         int64  `bson:"uniqueUsers" json:"uniqueUsers"`
	UniqueConversations int64  `bson:"uniqueConversations" json:"uniqueConversations"`
}

// McpToolSeriesEntry is one (tool, server, bucket) chart point.
type McpToolSeriesEntry struct {
	ToolName   string `bson:"toolName" json:"toolName"`
	ServerName string `bson:"serverName" json:"serverName"`
	Date       string `bson:"date" json:"date"`
	CallCount  int64  `bson:"callCount" json:"callCount"`
}

// WebSearchWindow is one window of web-search usage.
type WebSearchWindow struct {
	SearchCount         int64 `bson:"searchCount" json:"searchCount"`
	UniqueUsers         int64 `bson:"uniqueUsers" json:"uniqueUsers"`
	UniqueConversations int64 `bson:"uniqueConversations" json:"uniqueConversations"`
}

// WebSearchStatsResult compares web-search usage across windows.
type WebSearchStatsResult struct {
	Current WebSearchWindow `bson:"current" json:"current"`
	Prev    WebSearchWindow `bson:"prev" json:"prev"`
}

// FilesProcessedResult counts processed-file events per window.
type FilesProcessedResult struct {
	CurrentFilesProcessed int64 `bson:"currentFilesProcessed" json:"currentFilesProcessed"`
	PrevFilesProcessed    int64 `bson:"prevFilesProcessed" json:"prevFilesProcessed"`
}

// CatalogModel is one model in the models/agents catalog.
type CatalogModel struct {
	Model          string    `bson:"model" json:"model"`
	FirstCreatedAt time.Time `bson:"firstCreatedAt" json:"firstCreatedAt"`
	AgentName      []string  `bson:"agentName,omitempty" json:"agentName,omitempty"`
}

// ModelCatalogEntry groups the catalog by endpoint.
type ModelCatalogEntry struct {
	Endpoint string         `bson:"_id" json:"endpoint"`
	Models   []CatalogModel `bson:"models" json:"models"`
}

// ModelTokenShare is one model's slice of a provider's usage.
type ModelTokenShare struct {
	Name       string `bson:"name" json:"name"`
	TokenCount int64  `bson:"tokenCount" json:"tokenCount"`
}

// ModelUsageEntry is token usage grouped by provider/endpoint,
// with the effective model resolved through the agent join.
type ModelUsageEntry struct {
	Endpoint        string            `bson:"_id" json:"endpoint"`
	TotalTokenCount int64             `bson:"totalTokenCount" json:"totalTokenCount"`
	Models          []ModelTokenShare `bson:"models" json:"models"`
}

// StatsTableEntry is one row of the per-model or per-agent
// stats table.
type StatsTableEntry struct {
	Model            string `bson:"model" json:"model"`
	Endpoint         string `bson:"endpoint" json:"endpoint"`
	AgentID          string `bson:"agentId,omitempty" json:"agentId,omitempty"`
	AgentName        string `bson:"agentName,omitempty" json:"agentName,omitempty"`
	TotalInputToken  int64  `bson:"totalInputToken" json:"totalInputToken"`
	TotalOutputToken int64  `bson:"totalOutputToken" json:"totalOutputToken"`
	Requests         int64  `bson:"requests" json:"requests"`
}

// TimeSeriesEntry is one bucketed chart point. Exactly one of
// Hour/Day/Month is set, matching the requested granularity.
type TimeSeriesEntry struct {
	Model            string `bson:"model,omitempty" json:"model,omitempty"`
	AgentID          string `bson:"agentId,omitempty" json:"agentId,omitempty"`
	AgentName        string `bson:"agentName,omitempty" json:"agentName,omitempty"`
	Endpoint         string `bson:"endpoint" json:"endpoint"`
	Hour             string `bson:"hour,omitempty" json:"hour,omitempty"`
	Day              string `bson:"day,omitempty" json:"day,omitempty"`
	Month            string `bson:"month,omitempty" json:"month,omitempty"`
	TotalInputToken  int64  `bson:"totalInputToken" json:"totalInputToken"`
	TotalOutputToken int64  `bson:"totalOutputToken" json:"totalOutputToken"`
	Requests         int64  `bson:"requests" json:"requests"`
}

// UserBehaviorEntry is one user's activity rollup.
type UserBehaviorEntry struct {
	UserID            string    `bson:"userId" json:"userId"`
	UserName          string    `bson:"userName,omitempty" json:"userName,omitempty"`
	Email             string    `bson:"email,omitempty" json:"email,omitempty"`
	MessageCount      int64     `bson:"messageCount" json:"messageCount"`
	ConversationCount int64     `bson:"conversationCount" json:"conversationCount"`
	McpToolCallCount  int64     `bson:"mcpToolCallCount" json:"mcpToolCallCount"`
	WebSearchCount    int64     `bson:"webSearchCount" json:"webSearchCount"`
	AIErrorCount      int64     `bson:"aiErrorCount" json:"aiErrorCount"`
	LastActivityAt    time.Time `bson:"lastActivityAt" json:"lastActivityAt"`
}

// UserMcpToolUsage is one (tool, server) row of a user's top
// MCP tools.
type UserMcpToolUsage struct {
	ToolName   string `bson:"toolName" json:"toolName"`
	ServerName string `bson:"serverName" json:"serverName"`
	Count      int64  `bson:"count" json:"count"`
}

// UserActivity is one recent message in the user drill-down.
type UserActivity struct {
	MessageID      string    `bson:"messageId" json:"messageId"`
	ConversationID string    `bson:"conversationId" json:"conversationId"`
	Sender         string    `bson:"sender" json:"sender"`
	Model          string    `bson:"model,omitempty" json:"model,omitempty"`
	Endpoint       string    `bson:"endpoint" json:"endpoint"`
	TextPreview    string    `bson:"textPreview" json:"textPreview"`
	CreatedAt      time.Time `bson:"createdAt" json:"createdAt"`
	HasAIError     bool      `bson:"hasAiError" json:"hasAiError"`
}

// UserBehaviorDetail is the per-user drill-down: the rollup plus
// sender split, top MCP tools, and recent activity.
type UserBehaviorDetail struct {
	UserBehaviorEntry     `bson:",inline"`
	UserMessageCount      int64              `bson:"userMessageCount" json:"userMessageCount"`
	AssistantMessageCount int64              `bson:"assistantMessageCount" json:"assistantMessageCount"`
	TopMcpTools           []UserMcpToolUsage `bson:"-" json:"topMcpTools"`
	RecentActivities      []UserActivity     `bson:"-" json:"recentActivities"`
}
