// Package qa implements the conversational retrieval engine: it retrieves
// the summaries most relevant to a question, grounds a generation prompt on
// them and returns a structured, source-attributed answer. The engine is the
// failure-isolation boundary of the serving path; callers always get a
// well-formed Result, never an error or a panic.
package qa

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/alusci/ask-bi/docs"
	"github.com/alusci/ask-bi/embeddings"
	"github.com/alusci/ask-bi/llm"
	"github.com/alusci/ask-bi/store"
)

// DefaultK is the retrieval depth used when the caller does not choose one.
const DefaultK = 5

const uninitializedAnswer = "Knowledge base not initialized. Please try again."

const answerInstructions = `Answer the question based only on the provided context.
If the context is incomplete or vague, do your best to respond using the available information.
If the question appears incomplete (e.g. starts with "Can you find", "Do you", or cuts off unexpectedly), politely inform the user that the question seems incomplete and ask them to rephrase.
If the question refers to previous questions or responses, use the chat history to understand what the user is referring to.
If a full answer is not possible, clearly state what is missing and politely ask the user for clarification.
Do not invent or assume facts that are not explicitly present in the context.
Keep responses brief and focused (no more than 300 words).
Avoid repetition and long paragraphs.`

// Result is the outcome of one query. Err is set only on failure, in which
// case Answer holds a human-readable explanation, DocumentMetadata is empty
// and RetrievedCount is zero.
type Result struct {
	Answer           string          `json:"answer"`
	DocumentMetadata []docs.Metadata `json:"document_metadata"`
	RetrievedCount   int             `json:"retrieved_count"`
	Err              string          `json:"error,omitempty"`
}

type Engine struct {
	embedder embeddings.Embedder
	llm      llm.Client
	logger   *log.Logger
	timeout  time.Duration
}

// NewEngine wires the retrieval engine. A zero timeout disables the
// per-query deadline.
func NewEngine(embedder embeddings.Embedder, llmClient llm.Client, logger *log.Logger, timeout time.Duration) *Engine {
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{embedder: embedder, llm: llmClient, logger: logger, timeout: timeout}
}

// Answer retrieves the k most relevant documents for the query, grounds a
// prompt on them together with the rendered history, and generates the
// answer in a single best-effort attempt. No retries. A nil index fails fast
// without touching the embedder or the model.
func (e *Engine) Answer(ctx context.Context, query string, index store.Index, history []Turn, k int) Result {
	if index == nil {
		e.logger.Printf("query rejected: vector index not initialized")
		return Result{
			Answer:           uninitializedAnswer,
			DocumentMetadata: []docs.Metadata{},
			Err:              "vector index not initialized",
		}
	}
	if k <= 0 {
		k = DefaultK
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	answer, metadata, retrieved, err := e.run(ctx, query, index, history, k)
	if err != nil {
		e.logger.Printf("query failed: %v", err)
		return Result{
			Answer:           fmt.Sprintf("Error querying the model: %v", err),
			DocumentMetadata: []docs.Metadata{},
			Err:              err.Error(),
		}
	}

	return Result{Answer: answer, DocumentMetadata: metadata, RetrievedCount: retrieved}
}

func (e *Engine) run(ctx context.Context, query string, index store.Index, history []Turn, k int) (string, []docs.Metadata, int, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", nil, 0, fmt.Errorf("question cannot be empty")
	}

	vectors, err := e.embedder.Embed(ctx, []string{query})
	if err != nil {
		return "", nil, 0, fmt.Errorf("embed question: %w", err)
	}
	if len(vectors) == 0 {
		return "", nil, 0, fmt.Errorf("embedder returned no vectors")
	}

	results, err := index.Search(ctx, vectors[0], k)
	if err != nil {
		return "", nil, 0, fmt.Errorf("vector search: %w", err)
	}

	metadata := make([]docs.Metadata, 0, len(results))
	contexts := make([]string, 0, len(results))
	for _, res := range results {
		meta := res.Document.Metadata.Clone()
		meta.SimilarityScore = res.Score
		metadata = append(metadata, meta)
		contexts = append(contexts, res.Document.Text)
	}
	e.logger.Printf("retrieved %d documents", len(results))

	prompt := buildPrompt(RenderHistory(history), strings.Join(contexts, "\n\n"), query)

	answer, err := e.llm.Generate(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}})
	if err != nil {
		return "", nil, 0, fmt.Errorf("generate answer: %w", err)
	}

	return strings.TrimSpace(answer), metadata, len(results), nil
}

// RenderHistory flattens the most recent HistoryLimit turns into the text
// block shown to the model: one "User:"/"Assistant:" line per turn,
// blank-line separated, in chronological order. Empty history renders to the
// empty string.
func RenderHistory(history []Turn) string {
	if len(history) > HistoryLimit {
		history = history[len(history)-HistoryLimit:]
	}

	var sb strings.Builder
	for _, turn := range history {
		role := "Assistant"
		if turn.Role == RoleUser {
			role = "User"
		}
		sb.WriteString(role + ": " + turn.Content + "\n\n")
	}
	return sb.String()
}

func buildPrompt(history, context, question string) string {
	var sb strings.Builder
	sb.WriteString("You are a helpful assistant that provides accurate information based on the given context.\n\n")
	sb.WriteString("Chat History:\n")
	sb.WriteString(history)
	sb.WriteString("\n\nContext:\n")
	sb.WriteString(context)
	sb.WriteString("\n\nQuestion:\n")
	sb.WriteString(question)
	sb.WriteString("\n\n")
	sb.WriteString(answerInstructions)
	return sb.String()
}
