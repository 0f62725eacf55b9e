// Package mcpserver exposes the virtual tree to agents as MCP tools.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/agentic-research/facetfs/internal/content"
	"github.com/agentic-research/facetfs/internal/graph"
	"github.com/agentic-research/facetfs/internal/schema"
	"github.com/agentic-research/facetfs/internal/vnode"
)

// Tree resolves node states by path.
type Tree interface {
	State(ctx context.Context, path string) (*content.NodeState, error)
}

// Server answers tool calls against a Tree.
type Server struct {
	tree   Tree
	logger *zap.Logger
	mcp    *server.MCPServer
}

func New(tree Tree, version string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		tree:   tree,
		logger: logger,
		mcp:    server.NewMCPServer("facetfs", version, server.WithToolCapabilities(false)),
	}

	s.mcp.AddTool(mcp.NewTool("list_children",
		mcp.WithDescription("List the children of a node in the virtual content tree."),
		mcp.WithString("path", mcp.Description("Absolute node path, e.g. /mounts/by-color/red. Defaults to /.")),
	), s.listChildren)

	s.mcp.AddTool(mcp.NewTool("get_node",
		mcp.WithDescription("Show a node's type, mixins, properties, children and contained errors."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Absolute node path.")),
	), s.getNode)

	s.mcp.AddTool(mcp.NewTool("facet_counts",
		mcp.WithDescription("Show the facet values of a facet search node with the number of matching documents for each."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path of a facet search or sub-search node.")),
	), s.facetCounts)

	return s
}

// MCP returns the underlying server, e.g. for server.ServeStdio.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// ServeStdio serves tool calls on stdin/stdout until EOF.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// ChildInfo is one entry of list_children.
type ChildInfo struct {
	Name string `json:"name"`
	// Display is the unescaped name, set when it differs from Name.
	Display string `json:"display,omitempty"`
	Path    string `json:"path"`
	Kind    string `json:"kind"`
	Count   *int64 `json:"count,omitempty"`
}

// NodeInfo is the get_node result.
type NodeInfo struct {
	Path        string              `json:"path"`
	ID          string              `json:"id"`
	Type        string              `json:"type"`
	Mixins      []string            `json:"mixins,omitempty"`
	Properties  map[string][]string `json:"properties"`
	Children    []string            `json:"children"`
	Diagnostics []string            `json:"diagnostics,omitempty"`
}

// FacetCounts is the facet_counts result.
type FacetCounts struct {
	Path   string       `json:"path"`
	Count  int64        `json:"count"`
	Facet  string       `json:"facet,omitempty"`
	Values []FacetValue `json:"values"`
}

type FacetValue struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

func childPath(parent, seg string) string {
	if parent == "/" || parent == "" {
		return "/" + seg
	}
	return parent + "/" + seg
}

// kindOf names a child entry's identity variant without resolving it.
func kindOf(id content.NodeID) (string, *int64) {
	switch v := id.(type) {
	case content.ID:
		return "stored", nil
	case vnode.FacetSearchID:
		return vnode.KindFacetSearch.String(), &v.Count
	case vnode.ResultSetID:
		return vnode.KindResultSet.String(), &v.Count
	case vnode.ID:
		return v.Kind().String(), nil
	default:
		return "unknown", nil
	}
}

func (s *Server) state(ctx context.Context, path string) (*content.NodeState, error) {
	st, err := s.tree.State(ctx, path)
	if err != nil {
		s.logger.Debug("tool lookup failed", zap.String("path", path), zap.Error(err))
	}
	return st, err
}

func toolError(path string, err error) *mcp.CallToolResult {
	if errors.Is(err, graph.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("no node at %s", path))
	}
	return mcp.NewToolResultError(err.Error())
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) listChildren(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := req.GetString("path", "/")
	st, err := s.state(ctx, path)
	if err != nil {
		return toolError(path, err), nil
	}
	out := make([]ChildInfo, 0, len(st.Children))
	for _, c := range st.Children {
		kind, count := kindOf(c.ID)
		info := ChildInfo{Name: c.Segment(), Path: childPath(path, c.Segment()), Kind: kind, Count: count}
		if d := vnode.DecodeName(c.Name); d != c.Name {
			info.Display = d
		}
		out = append(out, info)
	}
	return jsonResult(out)
}

func (s *Server) getNode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	st, err := s.state(ctx, path)
	if err != nil {
		return toolError(path, err), nil
	}

	info := NodeInfo{
		Path:       path,
		Type:       st.PrimaryType,
		Mixins:     st.Mixins,
		Properties: make(map[string][]string, len(st.Properties)),
		Children:   make([]string, 0, len(st.Children)),
	}
	if info.ID, err = vnode.Token(st.ID); err != nil {
		return nil, err
	}
	for _, p := range st.Properties {
		info.Properties[p.Name] = p.Values
	}
	for _, c := range st.Children {
		info.Children = append(info.Children, c.Segment())
	}
	for _, d := range st.Diagnostics {
		info.Diagnostics = append(info.Diagnostics, d.Error())
	}
	return jsonResult(info)
}

func (s *Server) facetCounts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	st, err := s.state(ctx, path)
	if err != nil {
		return toolError(path, err), nil
	}
	if st.PrimaryType != schema.NTFacetSearch && st.PrimaryType != schema.NTFacetSubSearch {
		return mcp.NewToolResultError(fmt.Sprintf("%s is a %s, not a facet search", path, st.PrimaryType)), nil
	}

	out := FacetCounts{Path: path, Values: []FacetValue{}}
	if facets := st.Values(schema.PropFacets); len(facets) > 0 {
		out.Facet = facets[0]
	}
	for _, c := range st.Children {
		switch id := c.ID.(type) {
		case vnode.FacetSearchID:
			out.Values = append(out.Values, FacetValue{Name: c.Segment(), Count: id.Count})
		case vnode.ResultSetID:
			out.Count = id.Count
		}
	}
	return jsonResult(out)
}
