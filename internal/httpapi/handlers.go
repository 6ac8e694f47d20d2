package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"

	"github.com/google/uuid"

	"ragcore/internal/apperr"
	"ragcore/internal/chat"
	"ragcore/internal/health"
	"ragcore/internal/metadatastore"
	"ragcore/internal/ollamaadmin"
	"ragcore/internal/validation"
)

// translateStoreErr maps metadatastore's plain not-found sentinel to the
// apperr kind the HTTP layer's error body and status mapping understand.
func translateStoreErr(err error) error {
	if errors.Is(err, metadatastore.ErrNotFound) {
		return apperr.Wrap(apperr.NotFound, "not found", err)
	}
	return err
}

// knowledgeSummaryDTO is the §6 collection summary shape returned by GET
// /api/knowledge.
type knowledgeSummaryDTO struct {
	Id             string `json:"id"`
	Name           string `json:"name"`
	DocumentCount  int    `json:"documentCount"`
	ChunkCount     int    `json:"chunkCount"`
	EmbeddingModel string `json:"embeddingModel"`
	Status         string `json:"status"`
}

func (s *Server) handleCreateKnowledge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := r.ParseMultipartForm(64 << 20); err != nil {
		respondError(w, apperr.New(apperr.ValidationFailed, "invalid multipart form"))
		return
	}

	collectionId := r.FormValue("knowledgeId")
	if collectionId == "" {
		collectionId = uuid.NewString()
	}
	collectionId, err := validation.PathSegment("knowledgeId", collectionId)
	if err != nil {
		respondError(w, err)
		return
	}

	files := r.MultipartForm.File["files[]"]
	if len(files) == 0 {
		respondError(w, apperr.New(apperr.ValidationFailed, "at least one file is required").WithDetails(map[string]string{"files[]": "required"}))
		return
	}

	for _, fh := range files {
		src, err := fh.Open()
		if err != nil {
			respondError(w, apperr.Wrap(apperr.Internal, "open uploaded file", err))
			return
		}

		tmp, err := os.CreateTemp("", "ingest-*-"+fh.Filename)
		if err != nil {
			src.Close()
			respondError(w, apperr.Wrap(apperr.Internal, "stage uploaded file", err))
			return
		}
		_, copyErr := io.Copy(tmp, src)
		src.Close()
		tmp.Close()
		if copyErr != nil {
			os.Remove(tmp.Name())
			respondError(w, apperr.Wrap(apperr.Internal, "stage uploaded file", copyErr))
			return
		}
		defer os.Remove(tmp.Name())

		if _, err := s.Ingest.Ingest(ctx, collectionId, collectionId, tmp.Name()); err != nil {
			respondError(w, err)
			return
		}
	}

	respondJSON(w, http.StatusCreated, map[string]string{"id": collectionId})
}

func (s *Server) handleListKnowledge(w http.ResponseWriter, r *http.Request) {
	collections, err := s.Store.ListCollections(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	out := make([]knowledgeSummaryDTO, 0, len(collections))
	for _, c := range collections {
		out = append(out, knowledgeSummaryDTO{
			Id: c.CollectionId, Name: c.Name, DocumentCount: c.DocumentCount,
			ChunkCount: c.ChunkCount, EmbeddingModel: c.EmbeddingModel, Status: string(c.Status),
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{"collections": out})
}

func (s *Server) handleGetKnowledge(w http.ResponseWriter, r *http.Request) {
	id, err := validation.PathSegment("id", r.PathValue("id"))
	if err != nil {
		respondError(w, err)
		return
	}
	collection, err := s.Store.GetCollection(r.Context(), id)
	if err != nil {
		respondError(w, translateStoreErr(err))
		return
	}
	documents, err := s.Store.ListDocuments(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"collection": collection, "documents": documents})
}

func (s *Server) handleDeleteKnowledge(w http.ResponseWriter, r *http.Request) {
	id, err := validation.PathSegment("id", r.PathValue("id"))
	if err != nil {
		respondError(w, err)
		return
	}
	if err := s.Store.DeleteCollection(r.Context(), id); err != nil {
		respondError(w, translateStoreErr(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var body validation.ChatRequest
	var wire struct {
		KnowledgeId             *string `json:"knowledgeId"`
		Message                 string  `json:"message"`
		Temperature             float64 `json:"temperature"`
		StripMarkdown           bool    `json:"stripMarkdown"`
		UseExtendedInstructions bool    `json:"useExtendedInstructions"`
		ConversationId          *string `json:"conversationId"`
		Provider                string  `json:"provider"`
		OllamaModel             *string `json:"ollamaModel"`
		UseAgent                bool    `json:"useAgent"`
	}
	if err := json.NewDecoder(r.Body).Decode(&wire); err != nil {
		respondError(w, apperr.New(apperr.ValidationFailed, "invalid JSON body"))
		return
	}
	body = validation.ChatRequest{
		KnowledgeId: wire.KnowledgeId, Message: wire.Message, Temperature: wire.Temperature,
		StripMarkdown: wire.StripMarkdown, UseExtendedInstructions: wire.UseExtendedInstructions,
		ConversationId: wire.ConversationId, Provider: wire.Provider, OllamaModel: wire.OllamaModel, UseAgent: wire.UseAgent,
	}
	if err := validation.Validate(body); err != nil {
		respondError(w, err)
		return
	}

	model := ""
	if body.OllamaModel != nil {
		model = *body.OllamaModel
	}

	resp, err := s.Orchestrator.Ask(r.Context(), chat.Request{
		ConversationId:          body.ConversationId,
		KnowledgeId:             body.KnowledgeId,
		Message:                 body.Message,
		Temperature:             body.NormalizedTemperature(),
		StripMarkdown:           body.StripMarkdown,
		UseExtendedInstructions: body.UseExtendedInstructions,
		Provider:                body.Provider,
		Model:                   model,
		UseAgent:                body.UseAgent,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"conversationId": resp.ConversationId, "reply": resp.Reply})
}

func (s *Server) handlePing(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	statuses := s.Health.CheckAll(r.Context())
	respondJSON(w, http.StatusOK, map[string]any{"components": statuses, "healthy": health.Overall(statuses)})
}

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	models, err := s.Ollama.List(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"models": models})
}

func (s *Server) handlePullModel(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Model string `json:"model"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Model == "" {
		respondError(w, apperr.New(apperr.ValidationFailed, "model is required").WithDetails(map[string]string{"model": "required"}))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	flusher, canFlush := w.(http.Flusher)

	err := s.Ollama.Pull(r.Context(), body.Model, func(p ollamaadmin.PullProgress) error {
		b, marshalErr := json.Marshal(p)
		if marshalErr != nil {
			return marshalErr
		}
		if _, writeErr := w.Write([]byte("data: " + string(b) + "\n\n")); writeErr != nil {
			return writeErr
		}
		if canFlush {
			flusher.Flush()
		}
		return nil
	})
	if err != nil {
		b, _ := json.Marshal(apperr.ToBody(err))
		w.Write([]byte("event: error\ndata: " + string(b) + "\n\n"))
		if canFlush {
			flusher.Flush()
		}
	}
}

func (s *Server) handleDeleteModel(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if name == "" {
		respondError(w, apperr.New(apperr.ValidationFailed, "name is required"))
		return
	}
	if err := s.Ollama.Delete(r.Context(), name); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAnalyticsModels(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.Analytics.ModelSummaries(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"models": summaries})
}

func (s *Server) handleAnalyticsAggregates(w http.ResponseWriter, r *http.Request) {
	aggregates, err := s.Analytics.Aggregates(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"aggregates": aggregates})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, err error) {
	respondJSON(w, apperr.HTTPStatus(apperr.KindOf(err)), apperr.ToBody(err))
}
