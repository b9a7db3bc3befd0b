// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Command codegraph-update incrementally brings a previously built graph up
// to date with the project's working tree, reparsing and reingesting only
// the files a git diff and the #include graph say are dirty.
//
// Usage:
//
//	codegraph-update [flags] <index-file> <project-path>
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/spf13/pflag"

	"github.com/kraklabs/codegraph/internal/config"
	cgerrors "github.com/kraklabs/codegraph/internal/errors"
	"github.com/kraklabs/codegraph/internal/metrics"
	"github.com/kraklabs/codegraph/internal/output"
	"github.com/kraklabs/codegraph/pkg/embedding"
	"github.com/kraklabs/codegraph/pkg/graphingest"
	"github.com/kraklabs/codegraph/pkg/includegraph"
	"github.com/kraklabs/codegraph/pkg/llm"
	"github.com/kraklabs/codegraph/pkg/pathmodel"
	"github.com/kraklabs/codegraph/pkg/ragenrich"
	"github.com/kraklabs/codegraph/pkg/sourceparser"
	"github.com/kraklabs/codegraph/pkg/updater"
)

func main() {
	var (
		configPath       string
		numParseWorkers  int
		oldCommit        string
		newCommit        string
		sourceParserMode string
		compileCommands  string
		generateSummary  bool
		llmAPI           string
		jsonOut          bool
	)

	fs := pflag.NewFlagSet("codegraph-update", pflag.ExitOnError)
	fs.StringVar(&configPath, "config", "", "Path to .codegraph/project.yaml")
	fs.IntVar(&numParseWorkers, "num-parse-workers", 0, "YAML & source parse workers")
	fs.StringVar(&oldCommit, "from", "", "Baseline commit (defaults to the PROJECT node's recorded commit)")
	fs.StringVar(&newCommit, "to", "HEAD", "Target commit")
	fs.StringVar(&sourceParserMode, "source-parser", "clang", "clang or treesitter")
	fs.StringVar(&compileCommands, "compile-commands", "", "Path to compile_commands.json (required for clang)")
	fs.BoolVar(&generateSummary, "generate-summary", false, "Run targeted RAG re-enrichment after reingest")
	fs.StringVar(&llmAPI, "llm-api", "fake", "openai, deepseek, ollama, or fake")
	fs.BoolVar(&jsonOut, "json", false, "Output summary as JSON")
	fs.Parse(os.Args[1:])

	args := fs.Args()
	if len(args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: codegraph-update [flags] <index-file> <project-path>")
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

	rawDriver, err := neo4j.NewDriverWithContext(cfg.Neo4j.URI, neo4j.BasicAuth(cfg.Neo4j.User, cfg.Neo4j.Password, ""))
	if err != nil {
		fail(cgerrors.NewDatabaseError("Cannot build Neo4j driver", err.Error(), "Check NEO4J_URI", err), jsonOut)
	}
	defer rawDriver.Close(ctx)
	if err := rawDriver.VerifyConnectivity(ctx); err != nil {
		fail(cgerrors.NewDatabaseError("Cannot connect to Neo4j", err.Error(), "Check NEO4J_URI/NEO4J_USER/NEO4J_PASSWORD and that the server is reachable", err), jsonOut)
	}

	if oldCommit == "" {
		oldCommit, err = recordedCommit(ctx, rawDriver)
		if err != nil {
			fail(cgerrors.NewDatabaseError("Cannot find the project's last indexed commit", err.Error(),
				"Run codegraph-build first, or pass --from explicitly", err), jsonOut)
		}
	}

	ingestCfg := graphingest.Config{
		CypherTxSize: 500,
		Workers:      cfg.Indexing.NumParseWorkers,
		Defines:      graphingest.DefinesStrategy(cfg.Indexing.DefinesStrategy),
	}
	ingestor := graphingest.New(graphingest.WrapDriver(rawDriver), ingestCfg, logger)

	strategy, err := sourceparser.NewStrategy(sourceparser.Mode(sourceParserMode), compileCommands, cfg.Indexing.NumParseWorkers, logger)
	if err != nil {
		fail(cgerrors.NewInputError("Cannot build source parser", err.Error(), "Pass --compile-commands for the clang backend, or use --source-parser treesitter"), jsonOut)
	}

	up := &updater.Updater{
		Ingestor:     ingestor,
		IncludeGraph: includegraph.NewMaterialized(includegraph.NewNeo4jStore(rawDriver)),
		SourceParser: strategy,
		Logger:       logger,
	}

	updateStart := time.Now()
	result, err := up.Run(ctx, updater.Config{
		RepoPath:      absProject,
		ProjectRoot:   absProject,
		IndexFilePath: indexFile,
		ProjectID:     cfg.ProjectID,
		ProjectName:   filepath.Base(absProject),
		OldCommit:     oldCommit,
		NewCommit:     newCommit,
		ParseWorkers:  cfg.Indexing.NumParseWorkers,
	})
	if err != nil {
		fail(cgerrors.NewInternalError("Incremental update failed", err.Error(), "Check the Neo4j connection and git repository state", err), jsonOut)
	}
	metrics.ObserveUpdateSeconds(time.Since(updateStart).Seconds())

	if generateSummary && !result.NoOp {
		enrichStart := time.Now()
		if err := runTargetedEnrichment(ctx, cfg, llmAPI, rawDriver, logger, result); err != nil {
			logger.Warn("rag_enrichment.failed", "error", err)
		}
		metrics.ObserveEnrichSeconds(time.Since(enrichStart).Seconds())
	}

	summary := updateSummary{
		ProjectID:  cfg.ProjectID,
		FromCommit: oldCommit,
		ToCommit:   result.NewCommit,
		NoOp:       result.NoOp,
		Added:      len(result.Delta.Added),
		Modified:   len(result.Delta.Modified),
		Deleted:    len(result.Delta.Deleted),
		DirtyFiles: len(result.DirtyFiles),
	}
	if jsonOut {
		_ = output.JSON(summary)
	} else if summary.NoOp {
		fmt.Printf("no changes between %s and %s\n", summary.FromCommit, summary.ToCommit)
	} else {
		fmt.Printf("update complete: %d added, %d modified, %d deleted, %d files reingested (%s -> %s)\n",
			summary.Added, summary.Modified, summary.Deleted, summary.DirtyFiles, summary.FromCommit, summary.ToCommit)
	}
}

type updateSummary struct {
	ProjectID  string `json:"project_id"`
	FromCommit string `json:"from_commit"`
	ToCommit   string `json:"to_commit"`
	NoOp       bool   `json:"no_op"`
	Added      int    `json:"added"`
	Modified   int    `json:"modified"`
	Deleted    int    `json:"deleted"`
	DirtyFiles int    `json:"dirty_files"`
}

// recordedCommit reads the single PROJECT node's commit_hash, the baseline an
// update run diffs from when --from isn't passed explicitly.
func recordedCommit(ctx context.Context, driver neo4j.DriverWithContext) (string, error) {
	result, err := neo4j.ExecuteQuery(ctx, driver,
		`MATCH (p:PROJECT) RETURN p.commit_hash AS commit_hash LIMIT 1`,
		nil, neo4j.EagerResultTransformer)
	if err != nil {
		return "", fmt.Errorf("query project commit: %w", err)
	}
	if len(result.Records) == 0 {
		return "", fmt.Errorf("no PROJECT node found; run codegraph-build first")
	}
	v, _ := result.Records[0].Get("commit_hash")
	commit, _ := v.(string)
	if commit == "" {
		return "", fmt.Errorf("PROJECT node has no recorded commit_hash")
	}
	return commit, nil
}

func runTargetedEnrichment(ctx context.Context, cfg *config.Config, llmAPI string, driver neo4j.DriverWithContext, logger *slog.Logger, result *updater.Result) error {
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
	workers := cfg.Indexing.NumRemoteWorkers
	generator := embedding.NewGenerator(embedProvider, workers, logger)

	store := ragenrich.NewNeo4jStore(driver)
	enricher := ragenrich.New(store, provider, generator, workers, logger)

	seeds := make([]string, 0, len(result.DirtyFiles))
	for _, f := range result.DirtyFiles {
		ids, err := store.FunctionIDsInFile(ctx, pathmodel.StableID("file", f))
		if err != nil {
			logger.Warn("ragenrich.functions_in_file_failed", "file", f, "error", err)
			continue
		}
		seeds = append(seeds, ids...)
	}

	change := ragenrich.StructuralChange{
		AddedFiles:    fileIDs(result.Delta.Added),
		ModifiedFiles: fileIDs(result.Delta.Modified),
		DeletedFiles:  fileIDs(result.Delta.Deleted),
	}
	return enricher.TargetedUpdate(ctx, seeds, change)
}

// fileIDs converts repo-relative paths (already project-relative, since
// RepoPath and ProjectRoot coincide for this CLI) into the FILE node ids the
// RAG enrichment layer addresses.
func fileIDs(paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = pathmodel.StableID("file", p)
	}
	return out
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

func fail(err *cgerrors.UserError, jsonOut bool) {
	if jsonOut {
		_ = output.JSONError(err)
	} else {
		fmt.Fprint(os.Stderr, err.Format(false))
	}
	os.Exit(1)
}
