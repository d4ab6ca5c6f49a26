package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/alusci/ask-bi/api"
	"github.com/alusci/ask-bi/config"
	"github.com/alusci/ask-bi/database"
	"github.com/alusci/ask-bi/docs"
	"github.com/alusci/ask-bi/embeddings"
	"github.com/alusci/ask-bi/llm"
	"github.com/alusci/ask-bi/qa"
	"github.com/alusci/ask-bi/sales"
	"github.com/alusci/ask-bi/store"
	"github.com/alusci/ask-bi/tui"
)

const documentsFile = "documents.json"

func main() {
	logger := log.New(os.Stdout, "", log.LstdFlags)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg := config.Load()

	switch os.Args[1] {
	case "summarize":
		summarizeCmd(cfg, logger, os.Args[2:])
	case "index":
		indexCmd(cfg, logger, os.Args[2:])
	case "chat":
		chatCmd(cfg, logger, os.Args[2:])
	case "serve":
		serveCmd(cfg, logger, os.Args[2:])
	case "evaluate":
		evaluateCmd(cfg, logger, os.Args[2:])
	case "clear":
		clearCmd(cfg, logger, os.Args[2:])
	default:
		logger.Printf("unknown command: %s", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func summarizeCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("summarize", flag.ExitOnError)
	csvPath := flags.String("csv", "sales_data.csv", "path to the sales CSV file")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse summarize flags: %v", err)
	}

	records, err := sales.LoadCSV(*csvPath)
	if err != nil {
		logger.Fatalf("load sales data: %v", err)
	}
	logger.Printf("loaded %d sales records from %s", len(records), *csvPath)

	plotsDir := filepath.Join(cfg.DataDir, "plots")
	gen := sales.NewGenerator(logger)
	documents, err := gen.BuildDocuments(records, plotsDir)
	if err != nil {
		logger.Fatalf("build summary documents: %v", err)
	}

	outPath := filepath.Join(cfg.DataDir, documentsFile)
	if err := docs.Save(outPath, documents); err != nil {
		logger.Fatalf("save documents: %v", err)
	}
	logger.Printf("wrote %d summary documents to %s", len(documents), outPath)
}

func indexCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("index", flag.ExitOnError)
	dataPath := flags.String("data-path", "", "path to documents.json (defaults to the data directory)")
	backend := flags.String("backend", "local", "index backend: local or postgres")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse index flags: %v", err)
	}

	path := *dataPath
	if path == "" {
		path = filepath.Join(cfg.DataDir, documentsFile)
	}

	documents, err := docs.Load(path)
	if err != nil {
		logger.Fatalf("load documents: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	embedder, err := embeddings.NewEmbedder(cfg)
	if err != nil {
		logger.Fatalf("embedder setup: %v", err)
	}

	switch *backend {
	case "local":
		idx, err := store.BuildLocalIndex(ctx, filepath.Join(cfg.DataDir, store.LocalIndexFile), documents, embedder)
		if err != nil {
			logger.Fatalf("build index: %v", err)
		}
		if err := idx.Persist(); err != nil {
			logger.Fatalf("persist index: %v", err)
		}
	case "postgres":
		pool, err := database.NewPostgresPool(ctx, cfg.PostgresDSN)
		if err != nil {
			logger.Fatalf("postgres connection: %v", err)
		}
		defer pool.Close()

		if err := database.EnsureDocumentSchema(ctx, pool, cfg.Embeddings.Dimension); err != nil {
			logger.Fatalf("ensure schema: %v", err)
		}
		if err := store.NewPostgresIndex(pool).Add(ctx, documents, embedder); err != nil {
			logger.Fatalf("build index: %v", err)
		}
	default:
		logger.Fatalf("unknown backend %q, use local or postgres", *backend)
	}

	logger.Printf("indexed %d documents using %s/%s embeddings (%s backend)",
		len(documents), strings.ToUpper(cfg.Embeddings.Provider), cfg.Embeddings.Model, *backend)
}

func chatCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("chat", flag.ExitOnError)
	question := flags.String("question", "", "ask a single question and exit")
	backend := flags.String("backend", "local", "index backend: local or postgres")
	k := flags.Int("k", cfg.RetrievalK, "number of summary documents to retrieve")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse chat flags: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	index, closeIndex, err := openIndex(ctx, cfg, *backend)
	if err != nil {
		logger.Fatalf("open index: %v", err)
	}
	defer closeIndex()

	embedder, err := embeddings.NewEmbedder(cfg)
	if err != nil {
		logger.Fatalf("embedder setup: %v", err)
	}
	llmClient, err := llm.NewClient(cfg)
	if err != nil {
		logger.Fatalf("llm setup: %v", err)
	}

	logFile, err := openInteractionLog(cfg.LogDir)
	if err != nil {
		logger.Fatalf("open interaction log: %v", err)
	}
	defer logFile.Close()

	if strings.TrimSpace(*question) != "" {
		engineLogger := log.New(io.MultiWriter(os.Stderr, logFile), "", log.LstdFlags)
		engine := qa.NewEngine(embedder, llmClient, engineLogger, cfg.QueryTimeout)

		result := engine.Answer(ctx, *question, index, nil, *k)
		fmt.Println(result.Answer)
		printSources(result.DocumentMetadata)
		return
	}

	// Interactive mode: the engine logs to the interaction file only, so
	// nothing interleaves with the terminal UI.
	engine := qa.NewEngine(embedder, llmClient, log.New(logFile, "", log.LstdFlags), cfg.QueryTimeout)
	model := tui.New(engine, index, *k)
	if _, err := tea.NewProgram(model, tea.WithAltScreen()).Run(); err != nil {
		logger.Fatalf("chat session: %v", err)
	}
}

func serveCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := flags.String("addr", ":8080", "listen address")
	backend := flags.String("backend", "local", "index backend: local or postgres")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse serve flags: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	index, closeIndex, err := openIndex(ctx, cfg, *backend)
	if err != nil {
		logger.Fatalf("open index: %v", err)
	}
	defer closeIndex()

	embedder, err := embeddings.NewEmbedder(cfg)
	if err != nil {
		logger.Fatalf("embedder setup: %v", err)
	}
	llmClient, err := llm.NewClient(cfg)
	if err != nil {
		logger.Fatalf("llm setup: %v", err)
	}

	engine := qa.NewEngine(embedder, llmClient, logger, cfg.QueryTimeout)
	server := api.New(engine, index, cfg.RetrievalK, logger)

	httpServer := &http.Server{Addr: *addr, Handler: server}
	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Printf("serving HTTP API on %s (%s backend)", *addr, *backend)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("http server: %v", err)
	}
}

func evaluateCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("evaluate", flag.ExitOnError)
	dataset := flags.String("dataset", "Datasets/evaluation_dataset.jsonl", "path to the JSONL ground-truth dataset")
	backend := flags.String("backend", "local", "index backend: local or postgres")
	k := flags.Int("k", cfg.RetrievalK, "number of summary documents to retrieve per query")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse evaluate flags: %v", err)
	}

	examples, err := qa.LoadEvalExamples(*dataset)
	if err != nil {
		logger.Fatalf("load evaluation dataset: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	index, closeIndex, err := openIndex(ctx, cfg, *backend)
	if err != nil {
		logger.Fatalf("open index: %v", err)
	}
	defer closeIndex()

	embedder, err := embeddings.NewEmbedder(cfg)
	if err != nil {
		logger.Fatalf("embedder setup: %v", err)
	}
	llmClient, err := llm.NewClient(cfg)
	if err != nil {
		logger.Fatalf("llm setup: %v", err)
	}

	engine := qa.NewEngine(embedder, llmClient, logger, cfg.QueryTimeout)
	evaluator := qa.NewEvaluator(llmClient, logger)

	logger.Printf("evaluating %d examples from %s", len(examples), *dataset)
	results, err := evaluator.Evaluate(ctx, engine, index, examples, *k)
	if err != nil {
		logger.Fatalf("evaluation failed: %v", err)
	}

	correct := 0
	for i, result := range results {
		fmt.Printf("Example %d\n", i+1)
		fmt.Printf("Question: %s\n", result.Example.Query)
		fmt.Printf("Ground Truth: %s\n", result.Example.Answer)
		fmt.Printf("Generated: %s\n", result.Generated)
		fmt.Printf("Evaluation: %s\n", result.Verdict)
		fmt.Println(strings.Repeat("-", 60))
		if strings.EqualFold(result.Verdict, "CORRECT") {
			correct++
		}
	}
	logger.Printf("graded %d/%d answers correct", correct, len(results))
}

func clearCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("clear", flag.ExitOnError)
	confirmed := flags.Bool("confirm", false, "skip confirmation prompt")
	backend := flags.String("backend", "local", "index backend: local or postgres")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse clear flags: %v", err)
	}

	if !*confirmed {
		fmt.Print("This will permanently delete the indexed knowledge base. Continue? [y/N]: ")
		scanner := bufio.NewScanner(os.Stdin)
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				logger.Fatalf("read confirmation: %v", err)
			}
			logger.Println("clear aborted")
			return
		}
		answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if answer != "y" && answer != "yes" {
			logger.Println("clear aborted")
			return
		}
	}

	switch *backend {
	case "local":
		path := filepath.Join(cfg.DataDir, store.LocalIndexFile)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.Fatalf("remove local index: %v", err)
		}
		logger.Printf("removed local index %s", path)
	case "postgres":
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		pool, err := database.NewPostgresPool(ctx, cfg.PostgresDSN)
		if err != nil {
			logger.Fatalf("postgres connection: %v", err)
		}
		defer pool.Close()

		if err := store.NewPostgresIndex(pool).Clear(ctx); err != nil {
			logger.Fatalf("clear postgres index: %v", err)
		}
		logger.Println("cleared Postgres document index")
	default:
		logger.Fatalf("unknown backend %q, use local or postgres", *backend)
	}
}

// openIndex hands back the configured index, or a nil index when the local
// file does not exist yet. The engine reports the uninitialized knowledge
// base to the user in that case instead of failing.
func openIndex(ctx context.Context, cfg config.Config, backend string) (store.Index, func(), error) {
	switch backend {
	case "local":
		idx, err := store.LoadLocalIndex(filepath.Join(cfg.DataDir, store.LocalIndexFile))
		if err != nil {
			return nil, nil, err
		}
		if idx == nil {
			return nil, func() {}, nil
		}
		return idx, func() {}, nil
	case "postgres":
		pool, err := database.NewPostgresPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return store.NewPostgresIndex(pool), pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown backend %q, use local or postgres", backend)
	}
}

func openInteractionLog(logDir string) (*os.File, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, err
	}
	name := fmt.Sprintf("interactions_%s.log", time.Now().Format("2006-01-02"))
	return os.OpenFile(filepath.Join(logDir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
}

func printSources(metadata []docs.Metadata) {
	if len(metadata) == 0 {
		return
	}
	fmt.Println()
	fmt.Println("Sources:")
	for idx, meta := range metadata {
		fmt.Printf("%d. %s (score %.3f)\n", idx+1, meta.Subject(), meta.SimilarityScore)
		if meta.PlotPath != "" {
			fmt.Printf("   Chart: %s\n", meta.PlotPath)
		}
	}
}

func printUsage() {
	fmt.Println("Usage: ask-bi <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  summarize  Aggregate the sales CSV into summary documents and charts")
	fmt.Println("  index      Embed the summary documents into the vector index")
	fmt.Println("  chat       Ask questions against the knowledge base (interactive or --question)")
	fmt.Println("  serve      Expose the question-answering workflow over HTTP")
	fmt.Println("  evaluate   Grade answers against a JSONL ground-truth dataset")
	fmt.Println("  clear      Remove the indexed knowledge base")
}
