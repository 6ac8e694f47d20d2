package mcpserver

import (
	"context"
	"errors"
	"strings"

	"ragcore/internal/apperr"
	"ragcore/internal/health"
	"ragcore/internal/metadatastore"
)

// readResource resolves a resource:// URI to its JSON payload, matching it
// first against the static resource set then against the parameterized
// templates in resourceTemplates.
func (s *Server) readResource(ctx context.Context, uri string) (any, error) {
	switch uri {
	case "resource://knowledge/collections":
		return s.readCollections(ctx)
	case "resource://system/health":
		return s.readHealth(ctx)
	case "resource://system/models":
		return s.readModels(ctx)
	}

	if collectionId, ok := matchTemplate(uri, "resource://knowledge/{collectionId}/documents"); ok {
		return s.readCollectionDocuments(ctx, collectionId["collectionId"])
	}
	if params, ok := matchTemplate(uri, "resource://knowledge/{collectionId}/document/{documentId}"); ok {
		return s.readDocument(ctx, params["documentId"])
	}
	if params, ok := matchTemplate(uri, "resource://knowledge/{collectionId}/stats"); ok {
		return s.readCollectionStats(ctx, params["collectionId"])
	}

	return nil, apperr.New(apperr.NotFound, "unknown resource uri: "+uri)
}

// matchTemplate matches uri against a template using {name} placeholders
// for single path segments, returning the captured segment values.
func matchTemplate(uri, template string) (map[string]string, bool) {
	uriParts := strings.Split(uri, "/")
	tmplParts := strings.Split(template, "/")
	if len(uriParts) != len(tmplParts) {
		return nil, false
	}
	params := make(map[string]string)
	for i, part := range tmplParts {
		if strings.HasPrefix(part, "{") && strings.HasSuffix(part, "}") {
			name := strings.TrimSuffix(strings.TrimPrefix(part, "{"), "}")
			if uriParts[i] == "" {
				return nil, false
			}
			params[name] = uriParts[i]
			continue
		}
		if part != uriParts[i] {
			return nil, false
		}
	}
	return params, true
}

func (s *Server) readCollections(ctx context.Context) (any, error) {
	collections, err := s.Store.ListCollections(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "list collections", err)
	}
	return map[string]any{"collections": collections, "totalCollections": len(collections)}, nil
}

func (s *Server) readHealth(ctx context.Context) (any, error) {
	statuses := s.Health.CheckAll(ctx)
	return map[string]any{"components": statuses, "healthy": health.Overall(statuses)}, nil
}

func (s *Server) readModels(ctx context.Context) (any, error) {
	models, err := s.Ollama.List(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.BackendUnavailable, "list ollama models", err)
	}
	return map[string]any{
		"providers":    []string{"openai", "anthropic", "google", "ollama"},
		"ollamaModels": models,
	}, nil
}

func (s *Server) readCollectionDocuments(ctx context.Context, collectionId string) (any, error) {
	if _, err := s.Store.GetCollection(ctx, collectionId); err != nil {
		return nil, translateNotFound(err)
	}
	documents, err := s.Store.ListDocuments(ctx, collectionId)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "list documents", err)
	}
	return map[string]any{"documents": documents, "totalDocuments": len(documents)}, nil
}

func (s *Server) readDocument(ctx context.Context, documentId string) (any, error) {
	doc, err := s.Store.GetDocument(ctx, documentId)
	if err != nil {
		return nil, translateNotFound(err)
	}
	return doc, nil
}

func (s *Server) readCollectionStats(ctx context.Context, collectionId string) (any, error) {
	collection, err := s.Store.GetCollection(ctx, collectionId)
	if err != nil {
		return nil, translateNotFound(err)
	}
	return map[string]any{
		"documentCount": collection.DocumentCount,
		"chunkCount":    collection.ChunkCount,
		"status":        collection.Status,
	}, nil
}

func translateNotFound(err error) error {
	if errors.Is(err, metadatastore.ErrNotFound) {
		return apperr.Wrap(apperr.NotFound, "not found", err)
	}
	return apperr.Wrap(apperr.Internal, "resource lookup failed", err)
}
