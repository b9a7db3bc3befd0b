// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Command codegraph-query runs ad-hoc Cypher or semantic (embedding)
// searches against a graph already populated by codegraph-build or
// codegraph-update.
//
// Usage:
//
//	codegraph-query [flags] --cypher "MATCH (f:FUNCTION) RETURN f.id LIMIT 10"
//	codegraph-query [flags] --semantic "parse a compile_commands.json file" --label FUNCTION
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/spf13/pflag"

	"github.com/kraklabs/codegraph/internal/config"
	cgerrors "github.com/kraklabs/codegraph/internal/errors"
	"github.com/kraklabs/codegraph/internal/output"
	"github.com/kraklabs/codegraph/pkg/embedding"
	"github.com/kraklabs/codegraph/pkg/queryapi"
)

func main() {
	var (
		configPath  string
		projectPath string
		cypher      string
		paramsJSON  string
		semantic    string
		label       string
		topK        int
		jsonOut     bool
	)

	fs := pflag.NewFlagSet("codegraph-query", pflag.ExitOnError)
	fs.StringVar(&configPath, "config", "", "Path to .codegraph/project.yaml")
	fs.StringVar(&projectPath, "project", ".", "Project directory (used to locate config when --config is unset)")
	fs.StringVar(&cypher, "cypher", "", "Ad-hoc read-only Cypher query")
	fs.StringVar(&paramsJSON, "params", "", "JSON object of query parameters for --cypher")
	fs.StringVar(&semantic, "semantic", "", "Semantic search text")
	fs.StringVar(&label, "label", "FUNCTION", "Node label for --semantic (FUNCTION, FILE, or FOLDER)")
	fs.IntVar(&topK, "top-k", 10, "Number of nearest neighbors for --semantic")
	fs.BoolVar(&jsonOut, "json", false, "Output results as JSON")
	fs.Parse(os.Args[1:])

	if cypher == "" && semantic == "" {
		fmt.Fprintln(os.Stderr, "usage: codegraph-query [flags] (--cypher QUERY | --semantic TEXT)")
		os.Exit(1)
	}
	if cypher != "" && semantic != "" {
		fmt.Fprintln(os.Stderr, "codegraph-query: pass only one of --cypher or --semantic")
		os.Exit(1)
	}

	ctx := context.Background()

	absProject, err := filepath.Abs(projectPath)
	if err != nil {
		fail(cgerrors.NewInputError("Invalid project path", err.Error(), "Pass an existing directory with --project"), jsonOut)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		cfg = config.DefaultConfig(filepath.Base(absProject), absProject)
	}

	rawDriver, err := neo4j.NewDriverWithContext(cfg.Neo4j.URI, neo4j.BasicAuth(cfg.Neo4j.User, cfg.Neo4j.Password, ""))
	if err != nil {
		fail(cgerrors.NewDatabaseError("Cannot build Neo4j driver", err.Error(), "Check NEO4J_URI", err), jsonOut)
	}
	defer rawDriver.Close(ctx)
	if err := rawDriver.VerifyConnectivity(ctx); err != nil {
		fail(cgerrors.NewDatabaseError("Cannot connect to Neo4j", err.Error(),
			"Check NEO4J_URI/NEO4J_USER/NEO4J_PASSWORD and that the server is reachable", err), jsonOut)
	}

	client := queryapi.New(rawDriver)

	if cypher != "" {
		params := map[string]any{}
		if paramsJSON != "" {
			if err := json.Unmarshal([]byte(paramsJSON), &params); err != nil {
				fail(cgerrors.NewInputError("Invalid --params JSON", err.Error(), "Pass a JSON object, e.g. --params '{\"name\":\"foo\"}'"), jsonOut)
			}
		}
		rows, err := client.Cypher(ctx, cypher, params)
		if err != nil {
			fail(cgerrors.NewDatabaseError("Query failed", err.Error(), "Check the Cypher syntax and that the graph has been built", err), jsonOut)
		}
		printRows(rows, jsonOut)
		return
	}

	embedProvider, err := embeddingProviderFor(cfg)
	if err != nil {
		fail(cgerrors.NewConfigError("Cannot build embedding provider", err.Error(), "Check the embedding section of the project config", err), jsonOut)
	}
	matches, err := client.SemanticSearch(ctx, embedProvider, label, semantic, topK)
	if err != nil {
		fail(cgerrors.NewDatabaseError("Semantic search failed", err.Error(),
			"Check --label is FUNCTION, FILE, or FOLDER and that vector indexes exist (run codegraph-build with --generate-summary)", err), jsonOut)
	}
	printMatches(matches, jsonOut)
}

func printRows(rows []queryapi.Row, jsonOut bool) {
	if jsonOut {
		_ = output.JSON(rows)
		return
	}
	if len(rows) == 0 {
		fmt.Println("no rows")
		return
	}
	for i, row := range rows {
		fmt.Printf("[%d] %v\n", i, map[string]any(row))
	}
}

func printMatches(matches []queryapi.SemanticMatch, jsonOut bool) {
	if jsonOut {
		_ = output.JSON(matches)
		return
	}
	if len(matches) == 0 {
		fmt.Println("no matches")
		return
	}
	for i, m := range matches {
		fmt.Printf("%2d. [%.4f] %-10s %-40s %s\n", i+1, m.Score, m.Label, m.ID, m.Path)
		if m.Summary != "" {
			fmt.Printf("      %s\n", m.Summary)
		}
	}
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
