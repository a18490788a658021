package server

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/calebreed/recall/internal/graph"
	"github.com/calebreed/recall/internal/retrieve"
	"github.com/calebreed/recall/internal/tools"
)

// New creates a fully configured MCP server with all graph and retrieval
// tools registered against the given store and engine.
func New(store *graph.Store, engine *retrieve.Engine) *mcp.Server {
	gt := &tools.GraphTools{Store: store, Engine: engine}

	srv := mcp.NewServer(&mcp.Implementation{
		Name:    "recall",
		Version: "0.1.0",
	}, nil)

	// Graph mutations
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "create_entities",
		Description: "Create named entities with a category tag and optional initial observations; duplicates are reported per item",
	}, gt.CreateEntities)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "add_observations",
		Description: "Append timestamped atomic facts to existing entities; unknown entities are reported per item",
	}, gt.AddObservations)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "create_relations",
		Description: "Create directed typed relations between existing entities; duplicate triples are reported per item",
	}, gt.CreateRelations)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "delete_entities",
		Description: "Delete entities by name and cascade-delete every relation touching them; unknown names are ignored",
	}, gt.DeleteEntities)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "delete_observations",
		Description: "Remove observations matching the given content strings exactly; no-op when nothing matches",
	}, gt.DeleteObservations)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "delete_relations",
		Description: "Delete relations by exact (from, to, relationType) match; no-op when absent",
	}, gt.DeleteRelations)

	// Reads
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "read_graph",
		Description: "Read the full knowledge graph: all entities with observations, and all relations",
	}, gt.ReadGraph)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "search_nodes",
		Description: "Keyword search: entities whose name, type or observations contain the query substring",
	}, gt.SearchNodes)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "open_nodes",
		Description: "Retrieve specific entities by exact name plus the relations connected to them",
	}, gt.OpenNodes)

	// Semantic retrieval
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "retrieve_context",
		Description: "Semantically rank observations under one category tag against a query thought and return the top-k with scores",
	}, gt.RetrieveContext)

	return srv
}
