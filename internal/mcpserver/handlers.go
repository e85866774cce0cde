package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client *TrustlineClient
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client *TrustlineClient) *Handlers {
	return &Handlers{client: client}
}

// HandleReportEvent records a trust event.
func (h *Handlers) HandleReportEvent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	agentID := req.GetString("agent_id", "")
	if agentID == "" {
		return mcp.NewToolResultError("agent_id is required"), nil
	}
	kind := req.GetString("kind", "")
	if kind == "" {
		return mcp.NewToolResultError("kind is required"), nil
	}

	event := map[string]any{
		"agentId": agentID,
		"kind":    kind,
	}
	if v := req.GetString("event_type", ""); v != "" {
		event["eventType"] = v
	}
	if v := req.GetString("details", ""); v != "" {
		event["details"] = v
	}
	if v := req.GetString("source", ""); v != "" {
		event["source"] = v
	}
	if v := req.GetString("source_type", ""); v != "" {
		event["sourceType"] = v
	}
	if raw := req.GetArguments()["confidence"]; raw != nil {
		if f, ok := raw.(float64); ok {
			event["confidence"] = f
		}
	}
	if v := req.GetString("external_event_id", ""); v != "" {
		event["externalEventId"] = v
	}

	raw, err := h.client.ReportEvent(ctx, event)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to report event: %v", err)), nil
	}

	var result struct {
		Duplicate     bool   `json:"duplicate"`
		PreviousScore int    `json:"previousScore"`
		Score         int    `json:"score"`
		Level         string `json:"level"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse response: %v", err)), nil
	}

	if result.Duplicate {
		return mcp.NewToolResultText(fmt.Sprintf(
			"Event already recorded (duplicate external_event_id).\n"+
				"Agent %s score: %d (%s)",
			agentID, result.Score, result.Level)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf(
		"Event recorded for %s.\n"+
			"Score: %d -> %d (%s)",
		agentID, result.PreviousScore, result.Score, result.Level)), nil
}

// HandleGetTrustScore returns the trust score for an agent.
func (h *Handlers) HandleGetTrustScore(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	agentID := req.GetString("agent_id", "")
	if agentID == "" {
		return mcp.NewToolResultError("agent_id is required"), nil
	}
	includeTrace := req.GetBool("include_trace", false)

	raw, err := h.client.GetScore(ctx, agentID, includeTrace)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get trust score: %v", err)), nil
	}

	text, err := formatScore(raw, includeTrace)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse score: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandlePreflightAction asks for a decision on a proposed action.
func (h *Handlers) HandlePreflightAction(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	agentID := req.GetString("agent_id", "")
	if agentID == "" {
		return mcp.NewToolResultError("agent_id is required"), nil
	}

	action := map[string]any{}
	if v := req.GetString("action_type", ""); v != "" {
		action["actionType"] = v
	}
	if raw := req.GetArguments()["amount_usd"]; raw != nil {
		if f, ok := raw.(float64); ok {
			action["amountUsd"] = f
		}
	}
	if req.GetBool("new_payee", false) {
		action["newPayee"] = true
	}
	if req.GetBool("first_time_counterparty", false) {
		action["firstTimeCounterparty"] = true
	}
	if req.GetBool("high_privilege", false) {
		action["highPrivilegeAction"] = true
	}
	if req.GetBool("exposes_api_keys", false) {
		action["exposesApiKeys"] = true
	}

	raw, err := h.client.Preflight(ctx, agentID, action)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Preflight failed: %v", err)), nil
	}

	var d struct {
		Decision string `json:"decision"`
		Reason   string `json:"reason"`
		Trust    struct {
			Score         int `json:"score"`
			BehaviorScore int `json:"behaviorScore"`
		} `json:"trust"`
		Policy struct {
			AdjustedScore int `json:"adjustedScore"`
			RiskPenalty   int `json:"riskPenalty"`
		} `json:"policy"`
	}
	if err := json.Unmarshal(raw, &d); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse decision: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf(
		"Decision: %s\n"+
			"Reason: %s\n"+
			"Trust score: %d | Behavior: %d\n"+
			"Risk penalty: %d | Adjusted score: %d",
		strings.ToUpper(d.Decision), d.Reason,
		d.Trust.Score, d.Trust.BehaviorScore,
		d.Policy.RiskPenalty, d.Policy.AdjustedScore)), nil
}

// HandleListDecisions lists recent preflight decisions for an agent.
func (h *Handlers) HandleListDecisions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	agentID := req.GetString("agent_id", "")
	if agentID == "" {
		return mcp.NewToolResultError("agent_id is required"), nil
	}
	limit := req.GetInt("limit", 20)

	raw, err := h.client.ListDecisions(ctx, agentID, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list decisions: %v", err)), nil
	}

	var resp struct {
		Decisions []struct {
			Decision    string `json:"decision"`
			ActionType  string `json:"actionType"`
			Reason      string `json:"reason"`
			EvaluatedAt string `json:"evaluatedAt"`
		} `json:"decisions"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse decisions: %v", err)), nil
	}
	if len(resp.Decisions) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No decisions recorded for %s.", agentID)), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Recent decisions for %s:\n\n", agentID)
	for i, d := range resp.Decisions {
		action := d.ActionType
		if action == "" {
			action = "(unspecified action)"
		}
		fmt.Fprintf(&sb, "%d. %s - %s\n", i+1, strings.ToUpper(d.Decision), action)
		fmt.Fprintf(&sb, "   %s\n", d.Reason)
		fmt.Fprintf(&sb, "   At: %s\n", d.EvaluatedAt)
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// HandleGetPolicy returns the tenant's scoring policy.
func (h *Handlers) HandleGetPolicy(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.GetPolicy(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get policy: %v", err)), nil
	}
	return mcp.NewToolResultText(formatJSON(raw)), nil
}

// --- Formatting helpers ---

func formatScore(raw json.RawMessage, includeTrace bool) (string, error) {
	var score struct {
		AgentID       string `json:"agentId"`
		Score         int    `json:"score"`
		Level         string `json:"level"`
		Explanation   string `json:"explanation"`
		SignalQuality struct {
			Score      int    `json:"score"`
			Level      string `json:"level"`
			SampleSize int    `json:"sampleSize"`
		} `json:"signalQuality"`
		Behavior struct {
			Score       int    `json:"score"`
			Level       string `json:"level"`
			Explanation string `json:"explanation"`
		} `json:"behavior"`
		Trace []struct {
			EventType    string  `json:"eventType"`
			Contribution float64 `json:"contribution"`
			Included     bool    `json:"included"`
			Reason       string  `json:"exclusionReason"`
		} `json:"trace"`
	}
	if err := json.Unmarshal(raw, &score); err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Agent: %s\n", score.AgentID)
	fmt.Fprintf(&sb, "Trust score: %d (%s)\n", score.Score, score.Level)
	fmt.Fprintf(&sb, "%s\n\n", score.Explanation)
	fmt.Fprintf(&sb, "Behavior: %d (%s): %s\n", score.Behavior.Score, score.Behavior.Level, score.Behavior.Explanation)
	fmt.Fprintf(&sb, "Signal quality: %d (%s) over %d events\n",
		score.SignalQuality.Score, score.SignalQuality.Level, score.SignalQuality.SampleSize)

	if includeTrace && len(score.Trace) > 0 {
		sb.WriteString("\nTop contributions:\n")
		for _, t := range score.Trace {
			if t.Included {
				fmt.Fprintf(&sb, "  %+.2f  %s\n", t.Contribution, t.EventType)
			} else {
				fmt.Fprintf(&sb, "  excluded (%s)  %s\n", t.Reason, t.EventType)
			}
		}
	}
	return sb.String(), nil
}

func formatJSON(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}
