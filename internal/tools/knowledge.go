package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/calebreed/recall/internal/graph"
	"github.com/calebreed/recall/internal/retrieve"
)

// GraphTools holds the store and retrieval engine used by tool handlers.
type GraphTools struct {
	Store  *graph.Store
	Engine *retrieve.Engine
}

// --- Input types ---

type CreateEntitiesInput struct {
	Entities []EntityInput `json:"entities" jsonschema:"Array of entities to create"`
}

type EntityInput struct {
	Name         string   `json:"name" jsonschema:"Unique entity name (case-sensitive)"`
	EntityType   string   `json:"entityType" jsonschema:"Broad category tag (e.g. Professional, Personal)"`
	Observations []string `json:"observations,omitempty" jsonschema:"Optional initial facts about the entity"`
}

type AddObservationsInput struct {
	Observations []ObservationInput `json:"observations" jsonschema:"Array of observations to add"`
}

type ObservationInput struct {
	EntityName string   `json:"entityName" jsonschema:"Name of an existing entity"`
	Contents   []string `json:"contents" jsonschema:"Atomic fact strings to append"`
}

type CreateRelationsInput struct {
	Relations []RelationInput `json:"relations" jsonschema:"Array of relations to create"`
}

type RelationInput struct {
	From         string `json:"from" jsonschema:"Source entity name"`
	To           string `json:"to" jsonschema:"Target entity name"`
	RelationType string `json:"relationType" jsonschema:"Relation label in active voice (e.g. counsel, manages)"`
}

type DeleteEntitiesInput struct {
	EntityNames []string `json:"entityNames" jsonschema:"Entity names to delete (cascades to their relations)"`
}

type DeleteObservationsInput struct {
	Deletions []DeletionInput `json:"deletions" jsonschema:"Array of observation deletions"`
}

type DeletionInput struct {
	EntityName   string   `json:"entityName" jsonschema:"Name of the entity"`
	Observations []string `json:"observations" jsonschema:"Observation content strings to match and remove"`
}

type DeleteRelationsInput struct {
	Relations []RelationInput `json:"relations" jsonschema:"Relations to delete by exact triple match"`
}

type SearchNodesInput struct {
	Query string `json:"query" jsonschema:"Case-insensitive substring matched against names, types and observations"`
}

type OpenNodesInput struct {
	Names []string `json:"names" jsonschema:"Exact entity names to retrieve"`
}

type RetrieveContextInput struct {
	CanonicalEntity string `json:"canonical_entity" jsonschema:"Canonical category tag scoping the search (exact match)"`
	QueryThought    string `json:"query_thought" jsonschema:"Free-text thought to rank observations against"`
	TopK            int    `json:"top_k,omitempty" jsonschema:"Maximum number of results (default 3)"`
}

// --- Handlers ---

func (t *GraphTools) CreateEntities(_ context.Context, _ *mcp.CallToolRequest, input CreateEntitiesInput) (*mcp.CallToolResult, any, error) {
	items := make([]graph.EntityInput, len(input.Entities))
	for i, e := range input.Entities {
		items[i] = graph.EntityInput{Name: e.Name, EntityType: e.EntityType, Observations: e.Observations}
	}
	results, err := t.Store.CreateEntities(items)
	if err != nil {
		return codedError(err), nil, nil
	}
	return toolJSON(map[string]any{"results": results})
}

func (t *GraphTools) AddObservations(_ context.Context, _ *mcp.CallToolRequest, input AddObservationsInput) (*mcp.CallToolResult, any, error) {
	items := make([]graph.ObservationInput, len(input.Observations))
	for i, o := range input.Observations {
		items[i] = graph.ObservationInput{EntityName: o.EntityName, Contents: o.Contents}
	}
	results, err := t.Store.AddObservations(items)
	if err != nil {
		return codedError(err), nil, nil
	}
	return toolJSON(map[string]any{"results": results})
}

func (t *GraphTools) CreateRelations(_ context.Context, _ *mcp.CallToolRequest, input CreateRelationsInput) (*mcp.CallToolResult, any, error) {
	results, err := t.Store.CreateRelations(relationInputs(input.Relations))
	if err != nil {
		return codedError(err), nil, nil
	}
	return toolJSON(map[string]any{"results": results})
}

func (t *GraphTools) DeleteEntities(_ context.Context, _ *mcp.CallToolRequest, input DeleteEntitiesInput) (*mcp.CallToolResult, any, error) {
	count, err := t.Store.DeleteEntities(input.EntityNames)
	if err != nil {
		return codedError(err), nil, nil
	}
	return toolText(fmt.Sprintf("Deleted %d entities.", count)), nil, nil
}

func (t *GraphTools) DeleteObservations(_ context.Context, _ *mcp.CallToolRequest, input DeleteObservationsInput) (*mcp.CallToolResult, any, error) {
	items := make([]graph.ObservationInput, len(input.Deletions))
	for i, d := range input.Deletions {
		items[i] = graph.ObservationInput{EntityName: d.EntityName, Contents: d.Observations}
	}
	results, err := t.Store.DeleteObservations(items)
	if err != nil {
		return codedError(err), nil, nil
	}
	return toolJSON(map[string]any{"results": results})
}

func (t *GraphTools) DeleteRelations(_ context.Context, _ *mcp.CallToolRequest, input DeleteRelationsInput) (*mcp.CallToolResult, any, error) {
	count, err := t.Store.DeleteRelations(relationInputs(input.Relations))
	if err != nil {
		return codedError(err), nil, nil
	}
	return toolText(fmt.Sprintf("Deleted %d relations.", count)), nil, nil
}

func (t *GraphTools) ReadGraph(_ context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, any, error) {
	return toolJSON(t.Store.ReadGraph())
}

func (t *GraphTools) SearchNodes(_ context.Context, _ *mcp.CallToolRequest, input SearchNodesInput) (*mcp.CallToolResult, any, error) {
	return toolJSON(t.Store.Search(input.Query))
}

func (t *GraphTools) OpenNodes(_ context.Context, _ *mcp.CallToolRequest, input OpenNodesInput) (*mcp.CallToolResult, any, error) {
	return toolJSON(t.Store.Open(input.Names))
}

func (t *GraphTools) RetrieveContext(ctx context.Context, _ *mcp.CallToolRequest, input RetrieveContextInput) (*mcp.CallToolResult, any, error) {
	topK := input.TopK
	if topK == 0 {
		topK = 3 // sensible agent default; explicit non-positive values still fail
	}
	results, err := t.Engine.RetrieveContext(ctx, input.CanonicalEntity, input.QueryThought, topK)
	if err != nil {
		return codedError(err), nil, nil
	}
	return toolJSON(map[string]any{
		"tag":     input.CanonicalEntity,
		"query":   input.QueryThought,
		"results": results,
	})
}

// --- Helpers ---

func relationInputs(in []RelationInput) []graph.RelationInput {
	out := make([]graph.RelationInput, len(in))
	for i, r := range in {
		out[i] = graph.RelationInput{From: r.From, To: r.To, RelationType: r.RelationType}
	}
	return out
}

func toolText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

// codedError surfaces an error with its stable taxonomy code so callers
// can branch programmatically instead of parsing the message.
func codedError(err error) *mcp.CallToolResult {
	body := map[string]any{
		"error": map[string]any{
			"code":    string(graph.CodeOf(err)),
			"message": err.Error(),
		},
	}
	data, merr := json.MarshalIndent(body, "", "  ")
	if merr != nil {
		data = []byte(err.Error())
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		IsError: true,
	}
}

func toolJSON(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return codedError(fmt.Errorf("marshal result: %w", err)), nil, nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil, nil
}
