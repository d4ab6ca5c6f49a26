package qa

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"testing"

	"github.com/alusci/ask-bi/docs"
	"github.com/alusci/ask-bi/embeddings"
	"github.com/alusci/ask-bi/llm"
	"github.com/alusci/ask-bi/store"
)

type stubEmbedder struct {
	vectors [][]float32
	err     error
}

func (s *stubEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.vectors == nil {
		out := make([][]float32, len(texts))
		for i := range out {
			out[i] = []float32{1, 0, 0}
		}
		return out, nil
	}
	return s.vectors, nil
}

var _ embeddings.Embedder = (*stubEmbedder)(nil)

type stubIndex struct {
	results []store.SearchResult
	err     error
}

func (s *stubIndex) Search(ctx context.Context, embedding []float32, k int) ([]store.SearchResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	if k > len(s.results) {
		k = len(s.results)
	}
	return s.results[:k], nil
}

func (s *stubIndex) Size(ctx context.Context) (int, error) {
	return len(s.results), nil
}

var _ store.Index = (*stubIndex)(nil)

type stubLLM struct {
	answer  string
	err     error
	prompts []string
}

func (s *stubLLM) Generate(ctx context.Context, messages []llm.Message) (string, error) {
	for _, msg := range messages {
		s.prompts = append(s.prompts, msg.Content)
	}
	if s.err != nil {
		return "", s.err
	}
	return s.answer, nil
}

var _ llm.Client = (*stubLLM)(nil)

func testIndex() *stubIndex {
	return &stubIndex{results: []store.SearchResult{
		{
			Document: docs.Document{
				ID:   "product_Widget_A",
				Text: "Product Analysis: Widget A",
				Metadata: docs.Metadata{
					Type:    docs.TypeProduct,
					Product: "Widget A",
					RawData: &docs.RawSummary{TotalRecords: 10, TotalSales: 1234.5},
				},
			},
			Score: 0.92,
		},
		{
			Document: docs.Document{
				ID:   "region_North",
				Text: "Regional Analysis: North",
				Metadata: docs.Metadata{Type: docs.TypeRegion, Region: "North"},
			},
			Score: 0.87,
		},
	}}
}

func discardLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestEngineAnswerReturnsAnswerAndSources(t *testing.T) {
	engine := NewEngine(&stubEmbedder{}, &stubLLM{answer: "Widget A sold best."}, discardLogger(), 0)

	result := engine.Answer(context.Background(), "Which product sold best?", testIndex(), nil, 2)
	if result.Err != "" {
		t.Fatalf("unexpected error: %s", result.Err)
	}
	if result.Answer != "Widget A sold best." {
		t.Fatalf("unexpected answer: %q", result.Answer)
	}
	if result.RetrievedCount != 2 {
		t.Fatalf("expected retrieved count 2, got %d", result.RetrievedCount)
	}
	if len(result.DocumentMetadata) != 2 {
		t.Fatalf("expected 2 metadata entries, got %d", len(result.DocumentMetadata))
	}
	if result.DocumentMetadata[0].SimilarityScore != 0.92 {
		t.Fatalf("expected similarity score 0.92, got %v", result.DocumentMetadata[0].SimilarityScore)
	}
	if result.DocumentMetadata[0].Product != "Widget A" {
		t.Fatalf("expected Widget A first, got %q", result.DocumentMetadata[0].Product)
	}
}

func TestEngineAnswerNilIndex(t *testing.T) {
	engine := NewEngine(&stubEmbedder{}, &stubLLM{answer: "unused"}, discardLogger(), 0)

	result := engine.Answer(context.Background(), "Anything?", nil, nil, 5)
	if result.Answer != "Knowledge base not initialized. Please try again." {
		t.Fatalf("unexpected answer: %q", result.Answer)
	}
	if result.Err == "" {
		t.Fatal("expected error to be set")
	}
	if result.RetrievedCount != 0 {
		t.Fatalf("expected retrieved count 0, got %d", result.RetrievedCount)
	}
	if result.DocumentMetadata == nil || len(result.DocumentMetadata) != 0 {
		t.Fatalf("expected empty metadata slice, got %v", result.DocumentMetadata)
	}
}

func TestEngineAnswerGenerationFailure(t *testing.T) {
	engine := NewEngine(&stubEmbedder{}, &stubLLM{err: errors.New("model unavailable")}, discardLogger(), 0)

	result := engine.Answer(context.Background(), "Which region leads?", testIndex(), nil, 2)
	if result.Err == "" {
		t.Fatal("expected error to be set")
	}
	if !strings.Contains(result.Answer, "Error") {
		t.Fatalf("expected answer to mention the error, got %q", result.Answer)
	}
	if !strings.Contains(result.Answer, "model unavailable") {
		t.Fatalf("expected answer to carry the cause, got %q", result.Answer)
	}
	if len(result.DocumentMetadata) != 0 {
		t.Fatalf("expected no metadata on failure, got %d entries", len(result.DocumentMetadata))
	}
	if result.RetrievedCount != 0 {
		t.Fatalf("expected retrieved count 0 on failure, got %d", result.RetrievedCount)
	}
}

func TestEngineAnswerMetadataIsCopied(t *testing.T) {
	index := testIndex()
	engine := NewEngine(&stubEmbedder{}, &stubLLM{answer: "ok"}, discardLogger(), 0)

	result := engine.Answer(context.Background(), "How did Widget A do?", index, nil, 1)
	if len(result.DocumentMetadata) != 1 {
		t.Fatalf("expected 1 metadata entry, got %d", len(result.DocumentMetadata))
	}

	result.DocumentMetadata[0].Product = "mutated"
	result.DocumentMetadata[0].RawData.TotalSales = -1

	original := index.results[0].Document.Metadata
	if original.Product != "Widget A" {
		t.Fatalf("stored metadata mutated: %q", original.Product)
	}
	if original.RawData.TotalSales != 1234.5 {
		t.Fatalf("stored raw data mutated: %v", original.RawData.TotalSales)
	}
	if original.SimilarityScore != 0 {
		t.Fatalf("similarity score leaked into stored metadata: %v", original.SimilarityScore)
	}
}

func TestEngineAnswerRendersLastTenTurns(t *testing.T) {
	client := &stubLLM{answer: "ok"}
	engine := NewEngine(&stubEmbedder{}, client, discardLogger(), 0)

	history := make([]Turn, 0, 15)
	for i := 0; i < 15; i++ {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		history = append(history, Turn{Role: role, Content: fmt.Sprintf("turn %d", i)})
	}

	engine.Answer(context.Background(), "And now?", testIndex(), history, 1)
	if len(client.prompts) != 1 {
		t.Fatalf("expected 1 prompt, got %d", len(client.prompts))
	}
	prompt := client.prompts[0]

	if strings.Contains(prompt, "turn 4") {
		t.Fatal("prompt contains a turn older than the window")
	}
	if !strings.Contains(prompt, "turn 5") || !strings.Contains(prompt, "turn 14") {
		t.Fatal("prompt is missing turns inside the window")
	}
	if strings.Index(prompt, "turn 5") > strings.Index(prompt, "turn 14") {
		t.Fatal("history is not in chronological order")
	}
}

func TestEngineAnswerEmptyAndNilHistoryMatch(t *testing.T) {
	first := &stubLLM{answer: "ok"}
	NewEngine(&stubEmbedder{}, first, discardLogger(), 0).
		Answer(context.Background(), "Same question", testIndex(), nil, 1)

	second := &stubLLM{answer: "ok"}
	NewEngine(&stubEmbedder{}, second, discardLogger(), 0).
		Answer(context.Background(), "Same question", testIndex(), []Turn{}, 1)

	if len(first.prompts) != 1 || len(second.prompts) != 1 {
		t.Fatalf("expected 1 prompt each, got %d and %d", len(first.prompts), len(second.prompts))
	}
	if first.prompts[0] != second.prompts[0] {
		t.Fatal("nil and empty history produced different prompts")
	}
}

func TestEngineAnswerPromptSectionSpacing(t *testing.T) {
	client := &stubLLM{answer: "ok"}
	engine := NewEngine(&stubEmbedder{}, client, discardLogger(), 0)

	engine.Answer(context.Background(), "Anything?", testIndex(), nil, 1)
	if len(client.prompts) != 1 {
		t.Fatalf("expected 1 prompt, got %d", len(client.prompts))
	}
	prompt := client.prompts[0]

	// A blank line separates the history block from the context section
	// even when the history is empty.
	if !strings.Contains(prompt, "Chat History:\n\n\nContext:\n") {
		t.Fatalf("unexpected section spacing with empty history:\n%q", prompt)
	}

	client = &stubLLM{answer: "ok"}
	engine = NewEngine(&stubEmbedder{}, client, discardLogger(), 0)
	engine.Answer(context.Background(), "Anything?", testIndex(),
		[]Turn{{Role: RoleUser, Content: "earlier question"}}, 1)
	prompt = client.prompts[0]

	if !strings.Contains(prompt, "Chat History:\nUser: earlier question\n\n\n\nContext:\n") {
		t.Fatalf("unexpected section spacing with history:\n%q", prompt)
	}
}

func TestRenderHistoryFormat(t *testing.T) {
	rendered := RenderHistory([]Turn{
		{Role: RoleUser, Content: "What sold best?"},
		{Role: RoleAssistant, Content: "Widget A."},
	})

	want := "User: What sold best?\n\nAssistant: Widget A.\n\n"
	if rendered != want {
		t.Fatalf("unexpected rendering:\n%q\nwant:\n%q", rendered, want)
	}
}

func TestRenderHistoryEmpty(t *testing.T) {
	if got := RenderHistory(nil); got != "" {
		t.Fatalf("expected empty string, got %q", got)
	}
}
