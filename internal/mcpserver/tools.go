package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the Trustline MCP server.
// Descriptions are what the LLM reads to decide which tool to use.

var ToolReportEvent = mcp.NewTool("report_event",
	mcp.WithDescription(
		"Report a trust event about an agent (task outcome, payment result, review, "+
			"security incident). Events feed the agent's trust and behavior scores. "+
			"Returns the agent's updated score."),
	mcp.WithString("agent_id",
		mcp.Required(),
		mcp.Description("The agent this event is about")),
	mcp.WithString("kind",
		mcp.Required(),
		mcp.Description("Overall direction of the event"),
		mcp.Enum("positive", "neutral", "negative")),
	mcp.WithString("event_type",
		mcp.Description("Specific event type (e.g. 'completed_task_on_time', 'payment_success', 'missed_deadline', 'abuse_report')")),
	mcp.WithString("details",
		mcp.Description("Free-text details about what happened")),
	mcp.WithString("source",
		mcp.Description("Who or what reported this event")),
	mcp.WithString("source_type",
		mcp.Description("How trustworthy the reporting channel is"),
		mcp.Enum("verified_integration", "manual", "self_reported", "unverified")),
	mcp.WithNumber("confidence",
		mcp.Description("Reporter confidence in the event, 0.0 to 1.0. Defaults by source_type if omitted.")),
	mcp.WithString("external_event_id",
		mcp.Description("Idempotency key: reporting the same external_event_id twice records one event")),
)

var ToolGetTrustScore = mcp.NewTool("get_trust_score",
	mcp.WithDescription(
		"Get an agent's current trust score (0-100), behavior score, signal quality "+
			"and a plain-language explanation. Use before delegating work or payments "+
			"to an agent you don't fully trust."),
	mcp.WithString("agent_id",
		mcp.Required(),
		mcp.Description("The agent to score")),
	mcp.WithBoolean("include_trace",
		mcp.Description("Include a per-event contribution trace explaining the arithmetic")),
)

var ToolPreflightAction = mcp.NewTool("preflight_action",
	mcp.WithDescription(
		"Ask whether an agent should be allowed to perform an action. Returns "+
			"allow, review or block with a reason, combining the agent's trust score "+
			"with the action's risk profile (amount, new payee, privilege level)."),
	mcp.WithString("agent_id",
		mcp.Required(),
		mcp.Description("The agent attempting the action")),
	mcp.WithString("action_type",
		mcp.Description("What the agent wants to do (e.g. 'payment', 'deploy', 'data_export')")),
	mcp.WithNumber("amount_usd",
		mcp.Description("Dollar amount at stake, if any")),
	mcp.WithBoolean("new_payee",
		mcp.Description("True if paying a payee the agent has not paid before")),
	mcp.WithBoolean("first_time_counterparty",
		mcp.Description("True if the agent has never dealt with this counterparty")),
	mcp.WithBoolean("high_privilege",
		mcp.Description("True for privileged operations (infrastructure, credentials, admin)")),
	mcp.WithBoolean("exposes_api_keys",
		mcp.Description("True if the action could expose API keys or secrets")),
)

var ToolListDecisions = mcp.NewTool("list_decisions",
	mcp.WithDescription(
		"List recent preflight decisions for an agent: what was allowed, reviewed "+
			"or blocked, and why."),
	mcp.WithString("agent_id",
		mcp.Required(),
		mcp.Description("The agent whose decision history to fetch")),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of decisions to return (default 20)")),
)

var ToolGetPolicy = mcp.NewTool("get_policy",
	mcp.WithDescription(
		"Get the tenant's active scoring policy: minimum confidence, allowed "+
			"sources, source weights and event overrides."),
)
