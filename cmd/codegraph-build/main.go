// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Command codegraph-build runs a full ingest: parse the YAML symbol index,
// recover function spans from source, assemble the graph rows, and write
// every node and edge the project's graph doesn't yet have.
//
// Usage:
//
//	codegraph-build [flags] <index-file> <project-path>
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/spf13/pflag"

	"github.com/kraklabs/codegraph/internal/config"
	cgerrors "github.com/kraklabs/codegraph/internal/errors"
	"github.com/kraklabs/codegraph/internal/metrics"
	"github.com/kraklabs/codegraph/internal/output"
	"github.com/kraklabs/codegraph/internal/ui"
	"github.com/kraklabs/codegraph/pkg/embedding"
	"github.com/kraklabs/codegraph/pkg/graphingest"
	"github.com/kraklabs/codegraph/pkg/indexparser"
	"github.com/kraklabs/codegraph/pkg/ingestpipeline"
	"github.com/kraklabs/codegraph/pkg/llm"
	"github.com/kraklabs/codegraph/pkg/pathmodel"
	"github.com/kraklabs/codegraph/pkg/ragenrich"
	"github.com/kraklabs/codegraph/pkg/sourceparser"
)

func main() {
	var (
		configPath       string
		numParseWorkers  int
		numLocalWorkers  int
		numRemoteWorkers int
		logBatchSize     int
		cypherTxSize     int
		ingestBatchSize  int
		definesStrategy  string
		sourceParserMode string
		compileCommands  string
		generateSummary  bool
		llmAPI           string
		keepOrphans      bool
		jsonOut          bool
		quiet            bool
	)

	fs := pflag.NewFlagSet("codegraph-build", pflag.ExitOnError)
	fs.StringVar(&configPath, "config", "", "Path to .codegraph/project.yaml")
	fs.IntVar(&numParseWorkers, "num-parse-workers", 0, "YAML & source parse workers")
	fs.IntVar(&numLocalWorkers, "num-local-workers", 0, "RAG local-model workers")
	fs.IntVar(&numRemoteWorkers, "num-remote-workers", 0, "RAG remote-API workers")
	fs.IntVar(&logBatchSize, "log-batch-size", 500, "Progress granularity")
	fs.IntVar(&cypherTxSize, "cypher-tx-size", 500, "Server-side transaction size")
	fs.IntVar(&ingestBatchSize, "ingest-batch-size", 0, "Client submission size (default cypher-tx-size * num-parse-workers)")
	fs.StringVar(&definesStrategy, "defines-generation", "batched-parallel", "unwind-sequential, isolated-parallel, or batched-parallel")
	fs.StringVar(&sourceParserMode, "source-parser", "clang", "clang or treesitter")
	fs.StringVar(&compileCommands, "compile-commands", "", "Path to compile_commands.json (required for clang)")
	fs.BoolVar(&generateSummary, "generate-summary", false, "Run RAG enrichment after ingest")
	fs.StringVar(&llmAPI, "llm-api", "fake", "openai, deepseek, ollama, or fake")
	fs.BoolVar(&keepOrphans, "keep-orphans", false, "Skip orphan cleanup")
	fs.BoolVar(&jsonOut, "json", false, "Output summary as JSON")
	fs.BoolVar(&quiet, "quiet", false, "Suppress progress bars")
	fs.Parse(os.Args[1:])

	args := fs.Args()
	if len(args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: codegraph-build [flags] <index-file> <project-path>")
		os.Exit(1)
	}
	indexFile, projectPath := args[0], args[1]

	logger := slog.Default()
	ctx := context.Background()

	absProject, err := filepath.Abs(projectPath)
	if err != nil {
		fail(cgerrors.NewInputError("Invalid project path", err.Error(), "Pass an existing directory"), jsonOut)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		cfg = config.DefaultConfig(filepath.Base(absProject), absProject)
	}
	if numParseWorkers > 0 {
		cfg.Indexing.NumParseWorkers = numParseWorkers
	}
	if numLocalWorkers > 0 {
		cfg.Indexing.NumLocalWorkers = numLocalWorkers
	}
	if numRemoteWorkers > 0 {
		cfg.Indexing.NumRemoteWorkers = numRemoteWorkers
	}
	if fs.Changed("defines-generation") {
		cfg.Indexing.DefinesStrategy = definesStrategy
	}
	if ingestBatchSize == 0 {
		ingestBatchSize = cypherTxSize * cfg.Indexing.NumParseWorkers
	}

	progress := ui.NewProgressConfig(quiet || jsonOut, false)

	// --- Stage A: IndexParser ---
	parseStart := time.Now()
	table, err := indexparser.Parse(indexFile, indexparser.Options{Workers: cfg.Indexing.NumParseWorkers, Logger: logger})
	if err != nil {
		fail(cgerrors.NewInputError("Cannot parse symbol index", err.Error(), "Check the index file path and format"), jsonOut)
	}
	metrics.ObserveParseSeconds(time.Since(parseStart).Seconds())
	logger.Info("index.parsed", "symbols", len(table.Symbols), "functions", len(table.Functions),
		"container_aware", table.HasContainerField, "call_kind_aware", table.HasCallKind)

	// --- Stage B: SourceParser ---
	disc := pathmodel.Discover(absProject, table.Symbols)
	var sourceFiles []string
	for _, rel := range disc.Files {
		if sourceparser.SourceExtensions[filepath.Ext(rel)] {
			sourceFiles = append(sourceFiles, filepath.Join(absProject, rel))
		}
	}

	strategy, err := sourceparser.NewStrategy(sourceparser.Mode(sourceParserMode), compileCommands, cfg.Indexing.NumParseWorkers, logger)
	if err != nil {
		fail(cgerrors.NewInputError("Cannot build source parser", err.Error(), "Pass --compile-commands for the clang backend, or use --source-parser treesitter"), jsonOut)
	}

	cache := &sourceparser.Cache{Dir: filepath.Join(absProject, ".codegraph"), Project: cfg.ProjectID}
	cacheKey := sourceparser.CurrentKey(absProject, sourceFiles)
	parseResult, cached := cache.Load(cacheKey)
	bar := ui.NewProgressBar(progress, int64(len(sourceFiles)), "parsing source")
	if !cached {
		parseResult, err = strategy.Parse(sourceFiles)
		if err != nil {
			fail(cgerrors.NewInternalError("Source parsing failed", err.Error(), "Re-run with --source-parser treesitter if clang is unavailable", err), jsonOut)
		}
		if err := cache.Save(cacheKey, parseResult); err != nil {
			logger.Warn("parser_cache.save_failed", "error", err)
		}
	}
	if bar != nil {
		bar.Add64(int64(len(sourceFiles)))
		bar.Finish()
	}
	logger.Info("source.parsed", "files", len(parseResult.FunctionSpans), "includes", len(parseResult.IncludeRelations), "cached", cached)

	// --- Stage C-E: SpanMatcher, PathModel, CallGraphBuilder (ingestpipeline.Build wires all three) ---
	rows := ingestpipeline.Build(absProject, cfg.ProjectID, table, parseResult, cfg.Indexing.NumParseWorkers)
	logger.Info("callgraph.built", "calls", rows.CallStats.Edges, "self_calls", rows.CallStats.SelfCalls,
		"matched_spans", rows.SpanStats.Matched, "total_spans", rows.SpanStats.Total)

	// Memory discipline: the SymbolTable and parse result are no longer
	// needed once rows have been derived; drop the large references before
	// the write phase and (optionally) the RAG phase begin.
	table = nil
	parseResult = sourceparser.Result{}

	// --- Connect to the graph database ---
	rawDriver, err := neo4j.NewDriverWithContext(cfg.Neo4j.URI, neo4j.BasicAuth(cfg.Neo4j.User, cfg.Neo4j.Password, ""))
	if err != nil {
		fail(cgerrors.NewDatabaseError("Cannot build Neo4j driver", err.Error(), "Check NEO4J_URI", err), jsonOut)
	}
	defer rawDriver.Close(ctx)
	if err := rawDriver.VerifyConnectivity(ctx); err != nil {
		fail(cgerrors.NewDatabaseError("Cannot connect to Neo4j", err.Error(), "Check NEO4J_URI/NEO4J_USER/NEO4J_PASSWORD and that the server is reachable", err), jsonOut)
	}

	ingestCfg := graphingest.Config{
		IngestBatchSize: ingestBatchSize,
		CypherTxSize:    cypherTxSize,
		Workers:         cfg.Indexing.NumParseWorkers,
		Defines:         graphingest.DefinesStrategy(cfg.Indexing.DefinesStrategy),
		KeepOrphans:     keepOrphans,
	}
	ingestor := graphingest.New(graphingest.WrapDriver(rawDriver), ingestCfg, logger)

	ingestStart := time.Now()
	if err := ingestor.CreateConstraints(ctx); err != nil {
		fail(cgerrors.NewDatabaseError("Cannot create graph constraints", err.Error(), "Check the Neo4j user has schema privileges", err), jsonOut)
	}
	commitHash, _ := resolveHead(absProject)
	if err := ingestor.UpsertProject(ctx, cfg.ProjectID, filepath.Base(absProject), commitHash); err != nil {
		fail(cgerrors.NewDatabaseError("Cannot upsert project node", err.Error(), "", err), jsonOut)
	}

	mustIngest(ctx, jsonOut, "folders", ingestor.IngestFolders, rows.Folders)
	mustIngest(ctx, jsonOut, "files", ingestor.IngestFiles, rows.Files)
	mustIngest(ctx, jsonOut, "functions", ingestor.IngestFunctionNodes, rows.Functions)
	mustIngest(ctx, jsonOut, "data structures", ingestor.IngestDataStructureNodes, rows.DataStructures)
	if err := ingestor.IngestDefines(ctx, rows.Defines); err != nil {
		fail(cgerrors.NewDatabaseError("DEFINES ingest failed", err.Error(), "", err), jsonOut)
	}
	mustIngest(ctx, jsonOut, "includes", ingestor.IngestIncludes, rows.Includes)
	mustIngest(ctx, jsonOut, "calls", ingestor.IngestCalls, rows.Calls)

	metrics.AddFoldersIngested(len(rows.Folders))
	metrics.AddFilesIngested(len(rows.Files))
	metrics.AddFunctionsIngested(len(rows.Functions))
	metrics.AddDataStructuresIngested(len(rows.DataStructures))
	metrics.AddCallsIngested(len(rows.Calls))
	metrics.AddIncludesIngested(len(rows.Includes))

	if !keepOrphans {
		if err := ingestor.CleanupOrphans(ctx); err != nil {
			logger.Warn("orphan_cleanup.failed", "error", err)
		}
	}
	ingestor.CreateVectorIndexes(ctx, cfg.Embedding.Dimensions)
	metrics.ObserveIngestSeconds(time.Since(ingestStart).Seconds())

	// --- Stage I: RagEnricher (optional) ---
	if generateSummary {
		enrichStart := time.Now()
		if err := runEnrichment(ctx, cfg, llmAPI, cfg.Indexing.NumLocalWorkers, cfg.Indexing.NumRemoteWorkers, rawDriver, logger); err != nil {
			logger.Warn("rag_enrichment.failed", "error", err)
		}
		metrics.ObserveEnrichSeconds(time.Since(enrichStart).Seconds())
	}

	result := buildSummary{
		ProjectID:      cfg.ProjectID,
		CommitHash:     commitHash,
		Folders:        len(rows.Folders),
		Files:          len(rows.Files),
		Functions:      len(rows.Functions),
		DataStructures: len(rows.DataStructures),
		Calls:          len(rows.Calls),
		Includes:       len(rows.Includes),
	}
	if jsonOut {
		_ = output.JSON(result)
	} else {
		fmt.Printf("build complete: %d folders, %d files, %d functions, %d data structures, %d calls, %d includes (commit %s)\n",
			result.Folders, result.Files, result.Functions, result.DataStructures, result.Calls, result.Includes, result.CommitHash)
	}
}

type buildSummary struct {
	ProjectID      string `json:"project_id"`
	CommitHash     string `json:"commit_hash"`
	Folders        int    `json:"folders"`
	Files          int    `json:"files"`
	Functions      int    `json:"functions"`
	DataStructures int    `json:"data_structures"`
	Calls          int    `json:"calls"`
	Includes       int    `json:"includes"`
}

func mustIngest[T any](ctx context.Context, jsonOut bool, label string, fn func(context.Context, []T) error, rows []T) {
	if err := fn(ctx, rows); err != nil {
		fail(cgerrors.NewDatabaseError(fmt.Sprintf("%s ingest failed", label), err.Error(), "", err), jsonOut)
	}
}

func runEnrichment(ctx context.Context, cfg *config.Config, llmAPI string, localWorkers, remoteWorkers int, driver neo4j.DriverWithContext, logger *slog.Logger) error {
	provider, err := llm.NewProvider(llm.ProviderConfig{
		Type:         llmAPI,
		BaseURL:      cfg.LLM.BaseURL,
		APIKey:       cfg.LLM.APIKey,
		DefaultModel: cfg.LLM.Model,
	})
	if err != nil {
		return fmt.Errorf("build LLM provider: %w", err)
	}

	embedProvider, err := embeddingProviderFor(cfg)
	if err != nil {
		return fmt.Errorf("build embedding provider: %w", err)
	}
	workers := remoteWorkers
	if localWorkers > workers {
		workers = localWorkers
	}
	generator := embedding.NewGenerator(embedProvider, workers, logger)

	store := ragenrich.NewNeo4jStore(driver)
	enricher := ragenrich.New(store, provider, generator, remoteWorkers, logger)
	return enricher.FullRollup(ctx)
}

func embeddingProviderFor(cfg *config.Config) (embedding.Provider, error) {
	switch cfg.Embedding.Provider {
	case "openai":
		return embedding.NewOpenAIProvider(cfg.Embedding.BaseURL, cfg.Embedding.APIKey, cfg.Embedding.Model, 120*time.Second), nil
	case "ollama", "":
		return embedding.NewOllamaProvider(cfg.Embedding.BaseURL, cfg.Embedding.Model, 120*time.Second), nil
	case "fake":
		dim := cfg.Embedding.Dimensions
		if dim == 0 {
			dim = 768
		}
		return embedding.NewFakeProvider(dim), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Embedding.Provider)
	}
}

// resolveHead returns the current commit hash of the git repository at
// projectRoot, or "" if it isn't one; recorded on PROJECT so a later
// codegraph-update run can diff against it.
func resolveHead(projectRoot string) (string, error) {
	cmd := exec.Command("git", "rev-parse", "HEAD")
	cmd.Dir = projectRoot
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func fail(err *cgerrors.UserError, jsonOut bool) {
	if jsonOut {
		_ = output.JSONError(err)
	} else {
		fmt.Fprint(os.Stderr, err.Format(false))
	}
	os.Exit(1)
}
