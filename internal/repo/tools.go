package repo

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/miradorstack/mirador-triage/internal/utils"
)

// ParamType constrains the values a tool parameter accepts.
type ParamType string

const (
	ParamString ParamType = "str"
	ParamInt    ParamType = "int"
	ParamFloat  ParamType = "float"
	// ParamClause is a raw ES|QL boolean expression spliced into a WHERE.
	// It may not chain further commands.
	ParamClause ParamType = "clause"
	// ParamSpan is an ES|QL time span literal such as "24 hours".
	ParamSpan ParamType = "span"
)

var spanPattern = regexp.MustCompile(`(?i)^[0-9]+ ?(milliseconds?|ms|seconds?|minutes?|hours?|days?|weeks?|months?|years?)$`)

// Tool is a named ES|QL aggregation template.
type Tool struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Template    string               `json:"-"`
	Params      map[string]ParamType `json:"parameters"`
}

// AggregationQuery selects a tool and supplies its parameters. The {index}
// placeholder is filled by the store.
type AggregationQuery struct {
	Tool   string
	Params map[string]string
}

// Tools is the aggregation catalogue exposed to the assembler and operators.
var Tools = map[string]Tool{
	"search_logs": {
		ID:          "search_logs",
		Name:        "Search Logs",
		Description: "Search logs by service, level, or message content",
		Template: `FROM "{index}"
| WHERE {filter_clause}
| SORT @timestamp DESC
| LIMIT {limit}`,
		Params: map[string]ParamType{"filter_clause": ParamClause, "limit": ParamInt},
	},
	"error_timeline": {
		ID:          "error_timeline",
		Name:        "Error Timeline",
		Description: "Get error count over time for trend analysis",
		Template: `FROM "{index}"
| WHERE level == "ERROR"
| EVAL hour = DATE_TRUNC({hours} hours, @timestamp)
| STATS error_count = COUNT(*) BY hour
| SORT hour DESC
| LIMIT {limit}`,
		Params: map[string]ParamType{"hours": ParamInt, "limit": ParamInt},
	},
	"service_health": {
		ID:          "service_health",
		Name:        "Service Health Check",
		Description: "Analyze health of all services based on error rates",
		Template: `FROM "{index}"
| WHERE @timestamp > NOW() - {timeframe}
| STATS total = COUNT(*), errors = COUNT(*) WHERE level == "ERROR", warnings = COUNT(*) WHERE level == "WARN" BY service
| EVAL error_rate = ROUND(errors * 100.0 / total, 2)
| SORT error_rate DESC`,
		Params: map[string]ParamType{"timeframe": ParamSpan},
	},
	"trace_request": {
		ID:          "trace_request",
		Name:        "Trace Request",
		Description: "Follow a request through services using trace ID",
		Template: `FROM "{index}"
| WHERE trace_id == "{trace_id}"
| SORT @timestamp ASC
| KEEP @timestamp, service, level, message, span_id`,
		Params: map[string]ParamType{"trace_id": ParamString},
	},
	"anomaly_detection": {
		ID:          "anomaly_detection",
		Name:        "Detect Anomalies",
		Description: "Find services with unusually high error rates",
		Template: `FROM "{index}"
| WHERE @timestamp > NOW() - {window}
| STATS error_count = COUNT(*) WHERE level == "ERROR", total_count = COUNT(*) BY service
| WHERE error_count > 0
| EVAL error_rate = ROUND(error_count * 100.0 / total_count, 2)
| WHERE error_rate > {threshold}
| SORT error_rate DESC`,
		Params: map[string]ParamType{"window": ParamSpan, "threshold": ParamFloat},
	},
	"service_correlation": {
		ID:          "service_correlation",
		Name:        "Cascading Failure Detector",
		Description: "Find traces that caused errors across multiple services",
		Template: `FROM "{index}"
| WHERE level == "ERROR" AND @timestamp > NOW() - {timeframe}
| STATS error_count = COUNT(*), distinct_services = COUNT_DISTINCT(service) BY trace_id
| WHERE distinct_services > 1
| SORT error_count DESC
| LIMIT 20`,
		Params: map[string]ParamType{"timeframe": ParamSpan},
	},
	"critical_errors": {
		ID:          "critical_errors",
		Name:        "Critical Errors",
		Description: "Find critical errors that need immediate attention",
		Template: `FROM "{index}"
| WHERE level == "ERROR" AND @timestamp > NOW() - {window}
| WHERE message LIKE "*critical*" OR message LIKE "*fatal*" OR message LIKE "*panic*"
| SORT @timestamp DESC
| LIMIT {limit}`,
		Params: map[string]ParamType{"window": ParamSpan, "limit": ParamInt},
	},
}

// ToolList returns the catalogue sorted by id.
func ToolList() []Tool {
	list := make([]Tool, 0, len(Tools))
	for _, t := range Tools {
		list = append(list, t)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}

// RenderTool expands a tool template against index and params. Unknown tools,
// missing parameters and mistyped values are programmer errors.
func RenderTool(index string, q AggregationQuery) (string, error) {
	tool, ok := Tools[q.Tool]
	if !ok {
		return "", utils.InvalidArgument("render tool", fmt.Sprintf("unknown tool: %s", q.Tool))
	}

	pairs := []string{"{index}", index}
	for name, typ := range tool.Params {
		value, ok := q.Params[name]
		if !ok {
			return "", utils.InvalidArgument("render tool", fmt.Sprintf("%s: missing parameter %s", q.Tool, name))
		}
		switch typ {
		case ParamInt:
			if _, err := strconv.Atoi(value); err != nil {
				return "", utils.InvalidArgument("render tool", fmt.Sprintf("%s: parameter %s must be an integer", q.Tool, name))
			}
		case ParamFloat:
			if _, err := strconv.ParseFloat(value, 64); err != nil {
				return "", utils.InvalidArgument("render tool", fmt.Sprintf("%s: parameter %s must be a number", q.Tool, name))
			}
		case ParamSpan:
			value = strings.TrimSpace(value)
			if !spanPattern.MatchString(value) {
				return "", utils.InvalidArgument("render tool", fmt.Sprintf("%s: parameter %s must be a time span like \"1 hours\"", q.Tool, name))
			}
		case ParamString:
			value = strings.ReplaceAll(value, `"`, `\"`)
		case ParamClause:
			value = strings.TrimSpace(value)
			if value == "" || strings.ContainsAny(value, "|\r\n") || strings.Count(value, `"`)%2 != 0 {
				return "", utils.InvalidArgument("render tool", fmt.Sprintf("%s: parameter %s must be a single boolean expression", q.Tool, name))
			}
		}
		pairs = append(pairs, "{"+name+"}", value)
	}

	return strings.NewReplacer(pairs...).Replace(tool.Template), nil
}
