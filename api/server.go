package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/alusci/ask-bi/qa"
	"github.com/alusci/ask-bi/store"
)

// Assistant answers one question against the knowledge base. It never
// returns an error; failures are reported inside the Result.
type Assistant interface {
	Answer(ctx context.Context, query string, index store.Index, history []qa.Turn, k int) qa.Result
}

// Server exposes the question-answering workflow over HTTP.
type Server struct {
	assistant Assistant
	index     store.Index
	k         int
	logger    *log.Logger
	handler   http.Handler
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type askRequest struct {
	Question string      `json:"question"`
	K        int         `json:"k"`
	History  []turnInput `json:"history"`
}

type turnInput struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type askResponse struct {
	Answer         string      `json:"answer"`
	RetrievedCount int         `json:"retrieved_count"`
	Sources        []askSource `json:"sources"`
	Error          string      `json:"error,omitempty"`
}

type askSource struct {
	Type            string  `json:"type"`
	Subject         string  `json:"subject"`
	PlotPath        string  `json:"plot_path,omitempty"`
	SimilarityScore float64 `json:"similarity_score"`
}

// New constructs a Server answering questions with the given assistant and
// index. A nil index is allowed; every answer then reports the uninitialized
// knowledge base.
func New(assistant Assistant, index store.Index, k int, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}

	s := &Server{assistant: assistant, index: index, k: k, logger: logger}
	s.handler = s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/v1/ask", s.handleAsk)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}

	s.writeJSON(w, http.StatusOK, messageResponse{Message: "ok"})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}

	var req askRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("question is required"))
		return
	}

	k := req.K
	if k <= 0 {
		k = s.k
	}

	history := make([]qa.Turn, 0, len(req.History))
	for _, turn := range req.History {
		role := qa.RoleUser
		if strings.EqualFold(turn.Role, qa.RoleAssistant) {
			role = qa.RoleAssistant
		}
		history = append(history, qa.Turn{Role: role, Content: turn.Content})
	}

	result := s.assistant.Answer(r.Context(), req.Question, s.index, history, k)
	s.writeJSON(w, http.StatusOK, transformResult(result))
}

func (s *Server) methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	s.writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed, use %s", allowed))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Printf("encode response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.logger.Printf("api error (%d): %v", status, err)
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}

	if dec.More() {
		return fmt.Errorf("request body must contain a single JSON object")
	}

	return nil
}

func transformResult(result qa.Result) askResponse {
	resp := askResponse{
		Answer:         result.Answer,
		RetrievedCount: result.RetrievedCount,
		Error:          result.Err,
		Sources:        make([]askSource, 0, len(result.DocumentMetadata)),
	}
	for _, meta := range result.DocumentMetadata {
		resp.Sources = append(resp.Sources, askSource{
			Type:            meta.Type,
			Subject:         meta.Subject(),
			PlotPath:        meta.PlotPath,
			SimilarityScore: meta.SimilarityScore,
		})
	}
	return resp
}
