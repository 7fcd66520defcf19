// Package server exposes the retrieval pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/FKhadivpour/RAG-Application/internal/models"
)

// ContextRetriever answers queries with a ranked, budget-bounded context.
type ContextRetriever interface {
	Retrieve(ctx context.Context, query models.Query) (*models.ContextBundle, error)
}

// GenerateFunc turns a finished prompt into an answer. A nil GenerateFunc
// leaves the answer empty and returns only the retrieved context.
type GenerateFunc func(ctx context.Context, prompt string) (string, error)

// Server wires the HTTP routes to the retriever and generator.
type Server struct {
	retriever ContextRetriever
	generate  GenerateFunc
	engine    *gin.Engine
}

type queryRequest struct {
	Query           string            `json:"query" binding:"required"`
	TopK            int               `json:"top_k"`
	Filters         map[string]string `json:"filters"`
	MaxContextChars int               `json:"max_context_chars"`
}

type contextChunk struct {
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Score    float64           `json:"score"`
}

type queryResponse struct {
	Answer        string         `json:"answer"`
	ContextChunks []contextChunk `json:"context_chunks"`
	Query         string         `json:"query"`
}

// New builds the server. generate may be nil for retrieval-only deployments.
func New(retriever ContextRetriever, generate GenerateFunc) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		retriever: retriever,
		generate:  generate,
		engine:    gin.New(),
	}
	s.engine.Use(gin.Recovery())

	s.engine.GET("/api/health", s.handleHealth)
	s.engine.POST("/api/query", s.handleQuery)
	return s
}

// Handler returns the underlying HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run blocks serving on addr.
func (s *Server) Run(addr string) error {
	log.Info().Str("addr", addr).Msg("Starting HTTP server")
	return s.engine.Run(addr)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleQuery(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	bundle, err := s.retriever.Retrieve(c.Request.Context(), models.Query{
		Text:            req.Query,
		TopK:            req.TopK,
		Filters:         req.Filters,
		MaxContextChars: req.MaxContextChars,
	})
	if err != nil {
		status := statusFor(err)
		log.Error().Err(err).Str("query", req.Query).Msg("Retrieval failed")
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	answer := ""
	if s.generate != nil {
		answer, err = s.generate(c.Request.Context(), bundle.Prompt)
		if err != nil {
			log.Error().Err(err).Msg("Generation failed")
			c.JSON(http.StatusBadGateway, gin.H{"error": "generation failed: " + err.Error()})
			return
		}
	}

	chunks := make([]contextChunk, 0, len(bundle.Chunks))
	for _, sc := range bundle.Chunks {
		chunks = append(chunks, contextChunk{
			Text:     sc.Chunk.Text,
			Metadata: sc.Chunk.Metadata,
			Score:    sc.Score,
		})
	}
	c.JSON(http.StatusOK, queryResponse{
		Answer:        answer,
		ContextChunks: chunks,
		Query:         req.Query,
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidQuery):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrEmbeddingUnavailable), errors.Is(err, models.ErrTimeout):
		return http.StatusBadGateway
	case errors.Is(err, models.ErrIndexModelMismatch):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
