// Package mcptools exposes the read-only graph views as Model Context Protocol
// tools, so agents can explore the same projections the front-end renders.
package mcptools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	kglti "github.com/hardtochooseaname/kg-lti"
	"github.com/hardtochooseaname/kg-lti/models"
)

// Projections is the subset of *kglti.Projector the tools need.
type Projections interface {
	InitialView(ctx context.Context) (*models.ProjectionResult, error)
	FullView(ctx context.Context) (*models.ProjectionResult, error)
	Search(ctx context.Context, label, keyword string) (*models.ProjectionResult, error)
	Expand(ctx context.Context, nodeID string) (*models.ProjectionResult, error)
}

// Schema lists the labels in use.
type Schema interface {
	Labels(ctx context.Context) ([]string, error)
}

// GraphTools holds references needed by the tool handlers.
type GraphTools struct {
	Projections Projections
	Schema      Schema
}

// --- Input types ---

type ViewInput struct {
	Full bool `json:"full,omitempty" jsonschema:"Return the whole graph instead of the initial view"`
}

type SearchInput struct {
	Label   string `json:"label" jsonschema:"Node label to search, e.g. Movie"`
	Keyword string `json:"keyword" jsonschema:"Case-insensitive substring of the label's searchable property"`
}

type ExpandInput struct {
	NodeID string `json:"node_id" jsonschema:"Element id of the node to expand"`
}

type LabelsInput struct{}

// New creates an MCP server with every graph tool registered.
func New(projections Projections, schema Schema, version string) *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{Name: "kg-lti", Version: version}, nil)
	tools := &GraphTools{Projections: projections, Schema: schema}
	tools.Register(srv)
	return srv
}

// Register adds the graph tools to srv.
func (t *GraphTools) Register(srv *mcp.Server) {
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "graph_view",
		Description: "Return the initial graph view (nodes flagged init and their neighbors), or the full graph when full is true.",
	}, t.View)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "graph_search",
		Description: "Find nodes of a label whose searchable property contains a keyword, with their 1-hop neighborhood. centerIds lists the matches.",
	}, t.Search)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "graph_expand",
		Description: "Return the neighbors of a node and the relationships connecting them to it.",
	}, t.Expand)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "graph_labels",
		Description: "List the node labels present in the graph.",
	}, t.Labels)
}

// --- Handlers ---

func (t *GraphTools) View(ctx context.Context, _ *mcp.CallToolRequest, input ViewInput) (*mcp.CallToolResult, any, error) {
	var (
		res *models.ProjectionResult
		err error
	)
	if input.Full {
		res, err = t.Projections.FullView(ctx)
	} else {
		res, err = t.Projections.InitialView(ctx)
	}
	if err != nil {
		return toolFailure("Failed to load graph", err), nil, nil
	}
	return toolJSON(res)
}

func (t *GraphTools) Search(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, any, error) {
	res, err := t.Projections.Search(ctx, input.Label, input.Keyword)
	if err != nil {
		return toolFailure("Failed to search", err), nil, nil
	}
	return toolJSON(res)
}

func (t *GraphTools) Expand(ctx context.Context, _ *mcp.CallToolRequest, input ExpandInput) (*mcp.CallToolResult, any, error) {
	res, err := t.Projections.Expand(ctx, input.NodeID)
	if err != nil {
		return toolFailure("Failed to expand node", err), nil, nil
	}
	return toolJSON(res)
}

func (t *GraphTools) Labels(ctx context.Context, _ *mcp.CallToolRequest, _ LabelsInput) (*mcp.CallToolResult, any, error) {
	labels, err := t.Schema.Labels(ctx)
	if err != nil {
		return toolFailure("Failed to list labels", err), nil, nil
	}
	return toolJSON(labels)
}

// toolFailure reports err to the agent, prefixed with its kind so the agent
// can tell bad input from an unavailable database.
func toolFailure(what string, err error) *mcp.CallToolResult {
	return toolError("%s [%s]: %v", what, kglti.KindOf(err), err)
}

func toolError(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf(format, args...)}},
		IsError: true,
	}
}

func toolJSON(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return toolError("Failed to marshal result: %v", err), nil, nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil, nil
}
