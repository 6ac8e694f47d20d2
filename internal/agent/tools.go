package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"ragcore/internal/analytics"
	"ragcore/internal/health"
	"ragcore/internal/metadatastore"
	"ragcore/internal/rag/retrieval"
)

// chunkSummary is the JSON shape returned to the caller for one search hit;
// tool results are always rendered as a JSON string inside an MCP text
// content block, so these types only need to marshal cleanly.
type chunkSummary struct {
	CollectionId     string  `json:"collectionId"`
	DocumentId       string  `json:"documentId"`
	OriginalFileName string  `json:"originalFileName"`
	ChunkId          string  `json:"chunkId"`
	Score            float64 `json:"score"`
	Text             string  `json:"text"`
}

func hitsToSummaries(collectionId string, hits []retrieval.Hit) []chunkSummary {
	out := make([]chunkSummary, len(hits))
	for i, h := range hits {
		cid := collectionId
		out[i] = chunkSummary{
			CollectionId:     cid,
			DocumentId:       h.DocumentId,
			OriginalFileName: h.OriginalFileName,
			ChunkId:          h.ChunkId,
			Score:            h.Score,
			Text:             h.ChunkText,
		}
	}
	return out
}

// searchKnowledgeTool wraps retrieval.Searcher.Search for one collection.
type searchKnowledgeTool struct {
	searcher *retrieval.Searcher
	minScore float64
}

func NewSearchKnowledgeTool(searcher *retrieval.Searcher, minScore float64) Tool {
	return &searchKnowledgeTool{searcher: searcher, minScore: minScore}
}

func (t *searchKnowledgeTool) Describe() Spec {
	return Spec{
		Name:        "search_knowledge",
		Description: "Search one knowledge base collection for chunks relevant to a query.",
		Parameters: map[string]any{
			"type":     "object",
			"required": []string{"collectionId", "query"},
			"properties": map[string]any{
				"collectionId": map[string]any{"type": "string"},
				"query":        map[string]any{"type": "string"},
				"k":            map[string]any{"type": "integer", "minimum": 1},
			},
		},
	}
}

func (t *searchKnowledgeTool) Execute(ctx context.Context, args json.RawMessage) (any, error) {
	var in struct {
		CollectionId string `json:"collectionId"`
		Query        string `json:"query"`
		K            int    `json:"k"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, err
	}
	hits, err := t.searcher.Search(ctx, in.CollectionId, in.Query, in.K, t.minScore)
	if err != nil {
		return nil, err
	}
	return map[string]any{"chunks": hitsToSummaries(in.CollectionId, hits)}, nil
}

// searchAllKnowledgeTool fans a query out across every active collection.
type searchAllKnowledgeTool struct {
	searcher *retrieval.Searcher
	minScore float64
}

func NewSearchAllKnowledgeTool(searcher *retrieval.Searcher, minScore float64) Tool {
	return &searchAllKnowledgeTool{searcher: searcher, minScore: minScore}
}

func (t *searchAllKnowledgeTool) Describe() Spec {
	return Spec{
		Name:        "search_all_knowledge",
		Description: "Search every active knowledge base collection for chunks relevant to a query, merged by score.",
		Parameters: map[string]any{
			"type":     "object",
			"required": []string{"query"},
			"properties": map[string]any{
				"query": map[string]any{"type": "string"},
				"k":     map[string]any{"type": "integer", "minimum": 1},
			},
		},
	}
}

func (t *searchAllKnowledgeTool) Execute(ctx context.Context, args json.RawMessage) (any, error) {
	var in struct {
		Query string `json:"query"`
		K     int    `json:"k"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, err
	}
	hits, err := t.searcher.SearchAll(ctx, in.Query, in.K, t.minScore)
	if err != nil {
		return nil, err
	}
	return map[string]any{"chunks": hitsToSummaries("", hits)}, nil
}

// compareKnowledgeBasesTool runs search_knowledge per collection id and
// returns side-by-side summaries.
type compareKnowledgeBasesTool struct {
	searcher *retrieval.Searcher
	minScore float64
}

func NewCompareKnowledgeBasesTool(searcher *retrieval.Searcher, minScore float64) Tool {
	return &compareKnowledgeBasesTool{searcher: searcher, minScore: minScore}
}

func (t *compareKnowledgeBasesTool) Describe() Spec {
	return Spec{
		Name:        "compare_knowledge_bases",
		Description: "Run the same query against several knowledge base collections and return per-collection results side by side.",
		Parameters: map[string]any{
			"type":     "object",
			"required": []string{"ids", "query"},
			"properties": map[string]any{
				"ids":   map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "minItems": 1},
				"query": map[string]any{"type": "string"},
			},
		},
	}
}

func (t *compareKnowledgeBasesTool) Execute(ctx context.Context, args json.RawMessage) (any, error) {
	var in struct {
		Ids   []string `json:"ids"`
		Query string   `json:"query"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, err
	}
	result := map[string]any{}
	for _, id := range in.Ids {
		hits, err := t.searcher.Search(ctx, id, in.Query, 8, t.minScore)
		if err != nil {
			result[id] = map[string]any{"error": err.Error()}
			continue
		}
		result[id] = hitsToSummaries(id, hits)
	}
	return result, nil
}

// knowledgeBaseSummaryTool reads §4.A collection rows.
type knowledgeBaseSummaryTool struct{ store *metadatastore.Store }

func NewKnowledgeBaseSummaryTool(store *metadatastore.Store) Tool {
	return &knowledgeBaseSummaryTool{store: store}
}

func (t *knowledgeBaseSummaryTool) Describe() Spec {
	return Spec{
		Name:        "get_knowledge_base_summary",
		Description: "Summarize every knowledge base collection: document and chunk counts, embedding model, status.",
		Parameters:  map[string]any{"type": "object"},
	}
}

func (t *knowledgeBaseSummaryTool) Execute(ctx context.Context, _ json.RawMessage) (any, error) {
	collections, err := t.store.ListCollections(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{"collections": collections}, nil
}

// knowledgeBaseHealthTool lists Active collections as healthy and Error
// collections as errored; collections in any other status appear in neither
// list.
type knowledgeBaseHealthTool struct{ store *metadatastore.Store }

func NewKnowledgeBaseHealthTool(store *metadatastore.Store) Tool {
	return &knowledgeBaseHealthTool{store: store}
}

func (t *knowledgeBaseHealthTool) Describe() Spec {
	return Spec{
		Name:        "get_knowledge_base_health",
		Description: "Report which knowledge base collections are healthy (Active) versus erroring.",
		Parameters:  map[string]any{"type": "object"},
	}
}

func (t *knowledgeBaseHealthTool) Execute(ctx context.Context, _ json.RawMessage) (any, error) {
	collections, err := t.store.ListCollections(ctx)
	if err != nil {
		return nil, err
	}
	var healthy, errored []string
	for _, c := range collections {
		if c.Status == metadatastore.CollectionError {
			errored = append(errored, c.CollectionId)
		} else if c.Status == metadatastore.CollectionActive {
			healthy = append(healthy, c.CollectionId)
		}
	}
	return map[string]any{"healthy": healthy, "errored": errored}, nil
}

// storageOptimizationTool flags collections whose chunk-to-document ratio
// looks anomalous, a coarse proxy for "this collection would benefit from
// re-chunking or dedup" since the core has no direct view into the vector
// backend's on-disk footprint (§6: "the core never reaches inside it").
type storageOptimizationTool struct{ store *metadatastore.Store }

func NewStorageOptimizationTool(store *metadatastore.Store) Tool {
	return &storageOptimizationTool{store: store}
}

func (t *storageOptimizationTool) Describe() Spec {
	return Spec{
		Name:        "get_storage_optimization",
		Description: "Suggest which knowledge base collections may need re-chunking based on chunk-to-document ratios.",
		Parameters:  map[string]any{"type": "object"},
	}
}

func (t *storageOptimizationTool) Execute(ctx context.Context, _ json.RawMessage) (any, error) {
	collections, err := t.store.ListCollections(ctx)
	if err != nil {
		return nil, err
	}
	suggestions := []map[string]any{}
	for _, c := range collections {
		if c.DocumentCount == 0 {
			continue
		}
		ratio := float64(c.ChunkCount) / float64(c.DocumentCount)
		if ratio > 200 {
			suggestions = append(suggestions, map[string]any{
				"collectionId":      c.CollectionId,
				"chunksPerDocument": ratio,
				"suggestion":        "consider a larger ChunkCharacterLimit to reduce chunk count",
			})
		}
	}
	return map[string]any{"suggestions": suggestions}, nil
}

// popularModelsTool / compareModelsTool / modelPerformanceTool read §4.L.
type popularModelsTool struct{ analytics *analytics.Reader }

func NewPopularModelsTool(reader *analytics.Reader) Tool { return &popularModelsTool{analytics: reader} }

func (t *popularModelsTool) Describe() Spec {
	return Spec{
		Name:        "get_popular_models",
		Description: "List provider/model pairs ordered by request volume.",
		Parameters:  map[string]any{"type": "object"},
	}
}

func (t *popularModelsTool) Execute(ctx context.Context, _ json.RawMessage) (any, error) {
	summaries, err := t.analytics.ModelSummaries(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{"models": summaries}, nil
}

type compareModelsTool struct{ analytics *analytics.Reader }

func NewCompareModelsTool(reader *analytics.Reader) Tool { return &compareModelsTool{analytics: reader} }

func (t *compareModelsTool) Describe() Spec {
	return Spec{
		Name:        "compare_models",
		Description: "Compare usage statistics for a named set of models.",
		Parameters: map[string]any{
			"type":     "object",
			"required": []string{"names"},
			"properties": map[string]any{
				"names": map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "minItems": 1},
			},
		},
	}
}

func (t *compareModelsTool) Execute(ctx context.Context, args json.RawMessage) (any, error) {
	var in struct {
		Names []string `json:"names"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, err
	}
	summaries, err := t.analytics.ModelSummaries(ctx)
	if err != nil {
		return nil, err
	}
	want := map[string]bool{}
	for _, n := range in.Names {
		want[n] = true
	}
	filtered := []analytics.ModelStats{}
	for _, s := range summaries {
		if want[s.Model] {
			filtered = append(filtered, s)
		}
	}
	return map[string]any{"models": filtered}, nil
}

type modelPerformanceTool struct{ analytics *analytics.Reader }

func NewModelPerformanceTool(reader *analytics.Reader) Tool {
	return &modelPerformanceTool{analytics: reader}
}

func (t *modelPerformanceTool) Describe() Spec {
	return Spec{
		Name:        "get_model_performance",
		Description: "Return usage statistics for a single named model.",
		Parameters: map[string]any{
			"type":     "object",
			"required": []string{"name"},
			"properties": map[string]any{
				"name": map[string]any{"type": "string"},
			},
		},
	}
}

func (t *modelPerformanceTool) Execute(ctx context.Context, args json.RawMessage) (any, error) {
	var in struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, err
	}
	summaries, err := t.analytics.ModelSummaries(ctx)
	if err != nil {
		return nil, err
	}
	for _, s := range summaries {
		if strings.EqualFold(s.Model, in.Name) {
			return s, nil
		}
	}
	return nil, fmt.Errorf("agent: no usage recorded for model %q", in.Name)
}

// systemHealthTool / componentHealthTool read §9's component health
// checkers.
type systemHealthTool struct{ registry *health.Registry }

func NewSystemHealthTool(registry *health.Registry) Tool { return &systemHealthTool{registry: registry} }

func (t *systemHealthTool) Describe() Spec {
	return Spec{
		Name:        "get_system_health",
		Description: "Report health for every registered system component.",
		Parameters:  map[string]any{"type": "object"},
	}
}

func (t *systemHealthTool) Execute(ctx context.Context, _ json.RawMessage) (any, error) {
	statuses := t.registry.CheckAll(ctx)
	return map[string]any{"components": statuses, "healthy": health.Overall(statuses)}, nil
}

type componentHealthTool struct{ registry *health.Registry }

func NewComponentHealthTool(registry *health.Registry) Tool {
	return &componentHealthTool{registry: registry}
}

func (t *componentHealthTool) Describe() Spec {
	return Spec{
		Name:        "check_component_health",
		Description: "Report health for a single named system component.",
		Parameters: map[string]any{
			"type":     "object",
			"required": []string{"component"},
			"properties": map[string]any{
				"component": map[string]any{"type": "string"},
			},
		},
	}
}

func (t *componentHealthTool) Execute(ctx context.Context, args json.RawMessage) (any, error) {
	var in struct {
		Component string `json:"component"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, err
	}
	status, ok := t.registry.CheckComponent(ctx, in.Component)
	if !ok {
		return nil, fmt.Errorf("agent: unknown component %q", in.Component)
	}
	return status, nil
}

// BuildDefaultTools assembles the fixed §4.J tool set over the shared
// read-only views. Each constructor above stays independently usable for
// tests; this is the one-stop wiring point cmd/server and cmd/mcpstdio use.
func BuildDefaultTools(store *metadatastore.Store, searcher *retrieval.Searcher, minScore float64, reader *analytics.Reader, registry *health.Registry) []Tool {
	return []Tool{
		NewSearchKnowledgeTool(searcher, minScore),
		NewSearchAllKnowledgeTool(searcher, minScore),
		NewCompareKnowledgeBasesTool(searcher, minScore),
		NewKnowledgeBaseSummaryTool(store),
		NewKnowledgeBaseHealthTool(store),
		NewStorageOptimizationTool(store),
		NewPopularModelsTool(reader),
		NewCompareModelsTool(reader),
		NewModelPerformanceTool(reader),
		NewSystemHealthTool(registry),
		NewComponentHealthTool(registry),
	}
}
