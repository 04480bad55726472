// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes dataset check tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/pfdl/internal/apperr"
	"github.com/starford/pfdl/internal/checkservice"
)

const layoutURI = "pfdl://layout"

// Server wraps the MCP server with dataset tools.
type Server struct {
	mcp *server.MCPServer
	svc *checkservice.Service
}

// New creates a new MCP server with all tools registered.
func New(svc *checkservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"PFDL",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("check_dataset",
		mcp.WithDescription("Run a full check over every configured root and return the report. "+
			"A passing check returns state \"data\" with the artifact history and dataset; "+
			"a failing one returns state \"error\" with every failure found. "+
			"Read the pfdl://layout resource to interpret failures."),
	), s.checkDataset)

	s.mcp.AddTool(mcp.NewTool("search_artifacts",
		mcp.WithDescription("Search artifacts of the last passing check by name, batch or checksum."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 20)")),
	), s.searchArtifacts)

	s.mcp.AddTool(mcp.NewTool("get_artifact_history",
		mcp.WithDescription("Return the current version of an artifact and every earlier version, latest first."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Artifact name (e.g. P1.bam)")),
	), s.getArtifactHistory)

	s.mcp.AddTool(mcp.NewTool("get_dataset",
		mcp.WithDescription("Return the individuals and families assembled by the last passing check."),
	), s.getDataset)

	s.mcp.AddResource(
		mcp.NewResource(layoutURI, "Dataset Layout",
			mcp.WithResourceDescription("How roots, batches, manifests and phenopackets are laid out and checked."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readLayoutResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func (s *Server) checkDataset(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.svc.Run(ctx)
	if err != nil {
		if agg, ok := apperr.As(err); ok {
			return jsonResult(agg.Report()), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res.Report()), nil
}

func (s *Server) searchArtifacts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	limit := req.GetInt("limit", 20)
	results, err := s.svc.Search(ctx, query, limit)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(results) == 0 {
		return mcp.NewToolResultText("no artifacts found"), nil
	}
	return jsonResult(results), nil
}

func (s *Server) getArtifactHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	detail, err := s.svc.Artifact(ctx, name)
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", name)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(detail), nil
}

func (s *Server) getDataset(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ds, err := s.svc.Dataset()
	if err != nil {
		if agg, ok := apperr.As(err); ok {
			return mcp.NewToolResultError("last check failed: " + agg.Error()), nil
		}
		if errors.Is(err, apperr.ErrNotFound) {
			return mcp.NewToolResultError("last check did not assemble a dataset"), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(ds), nil
}

func (s *Server) readLayoutResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      layoutURI,
			MIMEType: "text/markdown",
			Text:     LayoutContract,
		},
	}, nil
}
