package mcp

import (
	"context"
	"encoding/json"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

// registerResources registers all MCP resources on the server.
func (s *Server) registerResources() {
	s.mcpServer.AddResource(
		mcplib.NewResource(
			"ruleforge://policies",
			"Policy List",
			mcplib.WithResourceDescription("All automation policies registered in the sandbox"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handlePoliciesResource,
	)

	s.mcpServer.AddResource(
		mcplib.NewResource(
			"ruleforge://stats",
			"Execution Statistics",
			mcplib.WithResourceDescription("Global execution counters across all policies"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleStatsResource,
	)
}

func (s *Server) handlePoliciesResource(ctx context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	if s.deps.PolicyReader == nil {
		return []mcplib.ResourceContents{
			mcplib.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     `{"error":"policy reader not configured"}`,
			},
		}, nil
	}
	policies, err := s.deps.PolicyReader.List(ctx)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(policies)
	if err != nil {
		return nil, err
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleStatsResource(ctx context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	if s.deps.StatsReader == nil {
		return []mcplib.ResourceContents{
			mcplib.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     `{"error":"stats reader not configured"}`,
			},
		}, nil
	}
	stats, err := s.deps.StatsReader.Stats(ctx, "")
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(stats)
	if err != nil {
		return nil, err
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
