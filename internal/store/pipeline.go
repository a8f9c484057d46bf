package store

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/chatlens/chatlens/internal/timeutil"
)

// Tool-call name delimiters. MCP tools are stored as
// toolName_mcp_serverName or toolName::serverName; anything
// without a delimiter is a plain (non-MCP) tool call.
const (
	mcpDelimiterPattern = "(_mcp_|::)"
	delimUnderscore     = "_mcp_"
	delimColons         = "::"
)

// webSearchPattern flags web-search tool calls. Matched
// case-insensitively and independently of the MCP delimiters: a
// call can count as both.
const webSearchPattern = "web_search"

// aiErrorPattern flags assistant messages whose text indicates a
// failed response. Matched case-insensitively.
const aiErrorPattern = "(error|failed|failure|timed out|rate limit|unavailable)"

// dateFormats maps each chart granularity to its $dateToString
// format. Keyed by the validated enum so a free-form string can
// never pick a format.
var dateFormats = map[timeutil.Granularity]string{
	timeutil.GranularityHour:  "%d, %H:00",
	timeutil.GranularityDay:   "%Y-%m-%d",
	timeutil.GranularityMonth: "%Y-%m",
}

// DateFormat returns the $dateToString format for a granularity.
func DateFormat(g timeutil.Granularity) string {
	if f, ok := dateFormats[g]; ok {
		return f
	}
	return dateFormats[timeutil.GranularityDay]
}

// MatchDateRange restricts documents to createdAt within
// [start, end] (inclusive both ends), merged with any extra
// equality/regex filters.
func MatchDateRange(start, end time.Time, extra bson.D) bson.D {
	filter := bson.D{{Key: "createdAt", Value: bson.D{
		{Key: "$gte", Value: start},
		{Key: "$lte", Value: end},
	}}}
	filter = append(filter, extra...)
	return bson.D{{Key: "$match", Value: filter}}
}

// AddTimeField derives a string bucket key from createdAt at the
// given granularity, evaluated in tz. The field is named after
// the granularity and later becomes a $group key and chart
// x-axis label.
func AddTimeField(g timeutil.Granularity, tz string) bson.D {
	if tz == "" {
		tz = "UTC"
	}
	return bson.D{{Key: "$addFields", Value: bson.D{
		{Key: g.BucketField(), Value: bson.D{
			{Key: "$dateToString", Value: bson.D{
				{Key: "format", Value: DateFormat(g)},
				{Key: "date", Value: "$createdAt"},
				{Key: "timezone", Value: tz},
			}},
		}},
	}}}
}

// PeriodFacet runs the same aggregation suffix over the current
// and previous windows in parallel sub-pipelines. Both branches
// see an identical extra filter and identical later stages; the
// date filter is the only asymmetry, so the comparison is
// apples-to-apples.
func PeriodFacet(p timeutil.Period, extra bson.D, suffix []bson.D) bson.D {
	current := make([]bson.D, 0, len(suffix)+1)
	current = append(current, MatchDateRange(p.Start, p.End, extra))
	current = append(current, suffix...)

	prev := make([]bson.D, 0, len(suffix)+1)
	prev = append(prev, MatchDateRange(p.PrevStart, p.PrevEnd, extra))
	prev = append(prev, suffix...)

	return bson.D{{Key: "$facet", Value: bson.D{
		{Key: "current", Value: current},
		{Key: "prev", Value: prev},
	}}}
}

// CountByField counts distinct values of a field: group by the
// field, then count the groups into countField.
func CountByField(field, countField string) []bson.D {
	return []bson.D{
		{{Key: "$group", Value: bson.D{{Key: "_id", Value: "$" + field}}}},
		{{Key: "$count", Value: countField}},
	}
}

// FirstOrDefault safely extracts the first element of a facet
// branch result array, substituting def when the branch matched
// nothing. Facets on empty input yield [], never [{...: 0}], so
// every comparison statistic funnels through this one wrapper.
func FirstOrDefault(path string, def any) bson.D {
	return bson.D{{Key: "$ifNull", Value: bson.A{
		bson.D{{Key: "$arrayElemAt", Value: bson.A{"$" + path, 0}}},
		def,
	}}}
}

// SortBy builds a single-field $sort stage.
func SortBy(field string, direction int) bson.D {
	return bson.D{{Key: "$sort", Value: bson.D{
		{Key: field, Value: direction},
	}}}
}

// AbsTokenSum sums the absolute value of rawAmount. Transaction
// amounts are signed but the sign carries no meaning for
// counting.
func AbsTokenSum() bson.D {
	return bson.D{{Key: "$sum", Value: bson.D{
		{Key: "$abs", Value: "$rawAmount"},
	}}}
}

// sumIfTokenType sums |rawAmount| only for rows of the given
// token type ("prompt" or "completion").
func sumIfTokenType(tokenType string) bson.D {
	return bson.D{{Key: "$sum", Value: bson.D{
		{Key: "$cond", Value: bson.A{
			bson.D{{Key: "$eq", Value: bson.A{"$tokenType", tokenType}}},
			bson.D{{Key: "$abs", Value: "$rawAmount"}},
			0,
		}},
	}}}
}

// countIfTokenType counts rows of the given token type. Counting
// completions approximates request count: one completion per
// request.
func countIfTokenType(tokenType string) bson.D {
	return bson.D{{Key: "$sum", Value: bson.D{
		{Key: "$cond", Value: bson.A{
			bson.D{{Key: "$eq", Value: bson.A{"$tokenType", tokenType}}},
			1,
			0,
		}},
	}}}
}

// UnwindToolCalls expands the heterogeneous content array and
// keeps only tool_call items. The preceding $match on
// content.type lets the index prune documents with no tool
// calls before the unwind.
func UnwindToolCalls() []bson.D {
	return []bson.D{
		{{Key: "$unwind", Value: "$content"}},
		{{Key: "$match", Value: bson.D{
			{Key: "content.type", Value: "tool_call"},
		}}},
	}
}

// MatchMCPTools keeps only unwound tool calls whose name carries
// an MCP delimiter.
func MatchMCPTools() bson.D {
	return bson.D{{Key: "$match", Value: bson.D{
		{Key: "content.tool_call.name", Value: bson.D{
			{Key: "$regex", Value: mcpDelimiterPattern},
		}},
	}}}
}

// MatchWebSearchTools keeps only unwound tool calls whose name
// contains "web_search" (case-insensitive).
func MatchWebSearchTools() bson.D {
	return bson.D{{Key: "$match", Value: bson.D{
		{Key: "content.tool_call.name", Value: bson.D{
			{Key: "$regex", Value: webSearchPattern},
			{Key: "$options", Value: "i"},
		}},
	}}}
}

// SplitToolName derives toolName and serverName from an unwound
// MCP tool call. The "::" delimiter is checked first, matching
// ParseToolName.
func SplitToolName() []bson.D {
	return []bson.D{
		{{Key: "$addFields", Value: bson.D{
			{Key: "toolId", Value: "$content.tool_call.name"},
			{Key: "delimiter", Value: bson.D{
				{Key: "$cond", Value: bson.D{
					{Key: "if", Value: bson.D{
						{Key: "$regexMatch", Value: bson.D{
							{Key: "input", Value: "$content.tool_call.name"},
							{Key: "regex", Value: delimColons},
						}},
					}},
					{Key: "then", Value: delimColons},
					{Key: "else", Value: delimUnderscore},
				}},
			}},
		}}},
		{{Key: "$addFields", Value: bson.D{
			{Key: "parts", Value: bson.D{
				{Key: "$split", Value: bson.A{"$toolId", "$delimiter"}},
			}},
		}}},
		{{Key: "$addFields", Value: bson.D{
			{Key: "toolName", Value: bson.D{
				{Key: "$arrayElemAt", Value: bson.A{"$parts", 0}},
			}},
			{Key: "serverName", Value: bson.D{
				{Key: "$arrayElemAt", Value: bson.A{"$parts", 1}},
			}},
		}}},
	}
}

// ParseToolName is the Go-side mirror of SplitToolName: it
// splits an MCP tool name into (toolName, serverName). ok is
// false when the name carries no MCP delimiter.
func ParseToolName(name string) (tool, server string, ok bool) {
	if strings.Contains(name, delimColons) {
		parts := strings.Split(name, delimColons)
		return parts[0], parts[1], true
	}
	if strings.Contains(name, delimUnderscore) {
		parts := strings.Split(name, delimUnderscore)
		return parts[0], parts[1], true
	}
	return "", "", false
}

// IsWebSearch reports whether a tool name counts as a web
// search. Independent of MCP classification.
func IsWebSearch(name string) bool {
	return strings.Contains(strings.ToLower(name), webSearchPattern)
}

// filterContentItems builds a $filter over the content array
// keeping items of one type. Content may be absent or
// non-array on old documents, hence the $isArray guard.
func filterContentItems(itemType string) bson.D {
	return bson.D{{Key: "$filter", Value: bson.D{
		{Key: "input", Value: bson.D{
			{Key: "$cond", Value: bson.A{
				bson.D{{Key: "$isArray", Value: "$content"}},
				"$content",
				bson.A{},
			}},
		}},
		{Key: "as", Value: "contentItem"},
		{Key: "cond", Value: bson.D{
			{Key: "$eq", Value: bson.A{"$$contentItem.type", itemType}},
		}},
	}}}
}

// countMatchingToolCalls builds a $size($filter(...)) expression
// counting tool calls in toolCallsInMessage whose name matches
// the pattern.
func countMatchingToolCalls(pattern string, caseInsensitive bool) bson.D {
	regexMatch := bson.D{
		{Key: "input", Value: bson.D{
			{Key: "$ifNull", Value: bson.A{"$$toolCallItem.tool_call.name", ""}},
		}},
		{Key: "regex", Value: pattern},
	}
	if caseInsensitive {
		regexMatch = append(regexMatch, bson.E{Key: "options", Value: "i"})
	}
	return bson.D{{Key: "$size", Value: bson.D{
		{Key: "$filter", Value: bson.D{
			{Key: "input", Value: "$toolCallsInMessage"},
			{Key: "as", Value: "toolCallItem"},
			{Key: "cond", Value: bson.D{
				{Key: "$regexMatch", Value: regexMatch},
			}},
		}},
	}}}
}

// hasAIErrorExpr flags an assistant message as failed when its
// text matches the error keywords or it carries a structured
// error content item. Both signals are OR'd.
func hasAIErrorExpr() bson.D {
	return bson.D{{Key: "$and", Value: bson.A{
		bson.D{{Key: "$eq", Value: bson.A{"$sender", "assistant"}}},
		bson.D{{Key: "$or", Value: bson.A{
			bson.D{{Key: "$regexMatch", Value: bson.D{
				{Key: "input", Value: bson.D{
					{Key: "$ifNull", Value: bson.A{"$text", ""}},
				}},
				{Key: "regex", Value: aiErrorPattern},
				{Key: "options", Value: "i"},
			}}},
			bson.D{{Key: "$gt", Value: bson.A{
				bson.D{{Key: "$size", Value: "$errorItemsInMessage"}},
				0,
			}}},
		}}},
	}}}
}
