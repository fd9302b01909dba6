package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/Strob0t/RuleForge/internal/domain/policy"
	"github.com/Strob0t/RuleForge/internal/domain/trigger"
)

// registerTools registers all MCP tools on the server.
func (s *Server) registerTools() {
	s.mcpServer.AddTools(
		s.listPoliciesTool(),
		s.getPolicyTool(),
		s.registerPolicyTool(),
		s.testPolicyTool(),
		s.getStatsTool(),
	)
}

func (s *Server) listPoliciesTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("list_policies",
		mcplib.WithDescription("List all automation policies registered in the sandbox"),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleListPolicies,
	}
}

func (s *Server) getPolicyTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("get_policy",
		mcplib.WithDescription("Get one policy by ID, including its snippets and execution history"),
		mcplib.WithString("policy_id",
			mcplib.Required(),
			mcplib.Description("The policy ID to look up"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleGetPolicy,
	}
}

func (s *Server) registerPolicyTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("register_policy",
		mcplib.WithDescription("Register a new automation policy. Both snippets pass static validation before storage; blocked constructs are rejected."),
		mcplib.WithString("name",
			mcplib.Required(),
			mcplib.Description("Unique policy name"),
		),
		mcplib.WithString("trigger",
			mcplib.Required(),
			mcplib.Description("Trigger name the policy reacts to, e.g. ticket.created"),
		),
		mcplib.WithString("action",
			mcplib.Required(),
			mcplib.Description("Action snippet executed when the condition holds"),
		),
		mcplib.WithString("condition",
			mcplib.Description("Condition expression; empty means the action always runs"),
		),
		mcplib.WithString("description",
			mcplib.Description("Human-readable summary of what the policy does"),
		),
		mcplib.WithBoolean("enabled",
			mcplib.Description("Whether the policy starts enabled (default true)"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleRegisterPolicy,
	}
}

func (s *Server) testPolicyTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("test_policy",
		mcplib.WithDescription("Run a policy against a sample event without persisting anything. Pass policy_id for a stored policy, or trigger and action for a draft. Dry-run by default: capability calls are stubbed and recorded instead of executed."),
		mcplib.WithString("policy_id",
			mcplib.Description("ID of a stored policy to test"),
		),
		mcplib.WithString("trigger",
			mcplib.Description("Draft trigger name, used when policy_id is not given"),
		),
		mcplib.WithString("condition",
			mcplib.Description("Draft condition expression"),
		),
		mcplib.WithString("action",
			mcplib.Description("Draft action snippet, used when policy_id is not given"),
		),
		mcplib.WithObject("payload",
			mcplib.Description("Sample event payload the snippets see as event.payload"),
		),
		mcplib.WithBoolean("dry_run",
			mcplib.Description("Stub capability calls instead of executing them (default true)"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleTestPolicy,
	}
}

func (s *Server) getStatsTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("get_stats",
		mcplib.WithDescription("Get execution statistics, globally or scoped to one policy"),
		mcplib.WithString("policy_id",
			mcplib.Description("Optional policy ID; empty aggregates across all policies"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleGetStats,
	}
}

func (s *Server) handleListPolicies(ctx context.Context, _ mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.PolicyReader == nil {
		return mcplib.NewToolResultError("policy reader not configured"), nil
	}
	policies, err := s.deps.PolicyReader.List(ctx)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to list policies", err), nil
	}
	data, err := json.Marshal(policies)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal policies", err), nil
	}
	return toolResultJSON(string(data)), nil
}

func (s *Server) handleGetPolicy(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.PolicyReader == nil {
		return mcplib.NewToolResultError("policy reader not configured"), nil
	}
	args := req.GetArguments()
	policyID, ok := args["policy_id"].(string)
	if !ok || policyID == "" {
		return mcplib.NewToolResultError("policy_id is required"), nil
	}
	p, err := s.deps.PolicyReader.Get(ctx, policyID)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(
			fmt.Sprintf("failed to get policy %s", policyID), err,
		), nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal policy", err), nil
	}
	return toolResultJSON(string(data)), nil
}

func (s *Server) handleRegisterPolicy(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.PolicyRegistrar == nil {
		return mcplib.NewToolResultError("policy registrar not configured"), nil
	}
	args := req.GetArguments()
	create := policy.CreateRequest{
		Name:        stringArg(args, "name"),
		Trigger:     stringArg(args, "trigger"),
		Action:      stringArg(args, "action"),
		Condition:   stringArg(args, "condition"),
		Description: stringArg(args, "description"),
	}
	if create.Name == "" || create.Trigger == "" || create.Action == "" {
		return mcplib.NewToolResultError("name, trigger and action are required"), nil
	}
	if v, ok := args["enabled"].(bool); ok {
		create.Enabled = &v
	}

	p, err := s.deps.PolicyRegistrar.Create(ctx, create)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to register policy", err), nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal policy", err), nil
	}
	return toolResultJSON(string(data)), nil
}

func (s *Server) handleTestPolicy(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.PolicyTester == nil {
		return mcplib.NewToolResultError("policy tester not configured"), nil
	}
	args := req.GetArguments()

	var p *policy.Policy
	if policyID := stringArg(args, "policy_id"); policyID != "" {
		if s.deps.PolicyReader == nil {
			return mcplib.NewToolResultError("policy reader not configured"), nil
		}
		stored, err := s.deps.PolicyReader.Get(ctx, policyID)
		if err != nil {
			return mcplib.NewToolResultErrorFromErr(
				fmt.Sprintf("failed to get policy %s", policyID), err,
			), nil
		}
		p = stored
	} else {
		trig := stringArg(args, "trigger")
		action := stringArg(args, "action")
		if trig == "" || action == "" {
			return mcplib.NewToolResultError("either policy_id or trigger and action are required"), nil
		}
		p = &policy.Policy{
			Name:      "draft",
			Trigger:   trig,
			Condition: stringArg(args, "condition"),
			Action:    action,
			Enabled:   true,
		}
	}

	payload, _ := args["payload"].(map[string]any)
	dryRun := true
	if v, ok := args["dry_run"].(bool); ok {
		dryRun = v
	}

	report, err := s.deps.PolicyTester.TestPolicy(ctx, p, trigger.Event{Payload: payload}, dryRun)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("policy test failed", err), nil
	}
	data, err := json.Marshal(report)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal report", err), nil
	}
	return toolResultJSON(string(data)), nil
}

func (s *Server) handleGetStats(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.StatsReader == nil {
		return mcplib.NewToolResultError("stats reader not configured"), nil
	}
	stats, err := s.deps.StatsReader.Stats(ctx, stringArg(req.GetArguments(), "policy_id"))
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to get stats", err), nil
	}
	data, err := json.Marshal(stats)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal stats", err), nil
	}
	return toolResultJSON(string(data)), nil
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}
