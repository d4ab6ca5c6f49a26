package qa

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/alusci/ask-bi/llm"
	"github.com/alusci/ask-bi/store"
)

// Answerer is the evaluation-facing view of the engine.
type Answerer interface {
	Answer(ctx context.Context, query string, index store.Index, history []Turn, k int) Result
}

// EvalExample is one ground-truth pair from the evaluation dataset.
type EvalExample struct {
	Query  string `json:"query"`
	Answer string `json:"answer"`
}

// EvalResult pairs an example with the generated answer and the grader's
// verdict.
type EvalResult struct {
	Example   EvalExample
	Generated string
	Verdict   string
}

const gradePrompt = `You are a teacher grading a quiz.
You are given a question, the student's answer, and the true answer, and are asked to score the student answer as either CORRECT or INCORRECT.

Example Format:
QUESTION: question here
STUDENT ANSWER: student's answer here
TRUE ANSWER: true answer here
GRADE: CORRECT or INCORRECT here

Grade the student answers based ONLY on their factual accuracy. Ignore differences in punctuation and phrasing between the student answer and true answer. It is OK if the student answer contains more information than the true answer, as long as it does not contain any conflicting statements. Begin!

QUESTION: %s
STUDENT ANSWER: %s
TRUE ANSWER: %s
GRADE:`

// LoadEvalExamples reads a JSONL file with one {"query", "answer"} object
// per line. Blank lines are skipped.
func LoadEvalExamples(path string) ([]EvalExample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open evaluation dataset: %w", err)
	}
	defer f.Close()

	examples := make([]EvalExample, 0)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var example EvalExample
		if err := json.Unmarshal([]byte(text), &example); err != nil {
			return nil, fmt.Errorf("decode evaluation example on line %d: %w", line, err)
		}
		examples = append(examples, example)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read evaluation dataset: %w", err)
	}
	if len(examples) == 0 {
		return nil, fmt.Errorf("evaluation dataset contains no examples")
	}
	return examples, nil
}

// Evaluator grades generated answers against ground truth with an LLM.
type Evaluator struct {
	grader llm.Client
	logger *log.Logger
}

func NewEvaluator(grader llm.Client, logger *log.Logger) *Evaluator {
	if logger == nil {
		logger = log.Default()
	}
	return &Evaluator{grader: grader, logger: logger}
}

// Evaluate answers every example through the assistant, then asks the
// grading model for a CORRECT/INCORRECT verdict per example. Failed answers
// are graded like any other: their error text stands in as the generated
// answer, which the grader marks incorrect.
func (e *Evaluator) Evaluate(ctx context.Context, assistant Answerer, index store.Index, examples []EvalExample, k int) ([]EvalResult, error) {
	results := make([]EvalResult, 0, len(examples))

	for i, example := range examples {
		answer := assistant.Answer(ctx, example.Query, index, nil, k)
		if answer.Err != "" {
			e.logger.Printf("example %d: answering failed: %s", i+1, answer.Err)
		}
		results = append(results, EvalResult{Example: example, Generated: answer.Answer})
	}

	for i := range results {
		prompt := fmt.Sprintf(gradePrompt, results[i].Example.Query, results[i].Generated, results[i].Example.Answer)
		verdict, err := e.grader.Generate(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}})
		if err != nil {
			return nil, fmt.Errorf("grade example %d: %w", i+1, err)
		}
		results[i].Verdict = strings.TrimSpace(verdict)
	}

	return results, nil
}
