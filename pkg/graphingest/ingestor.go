// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package graphingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// DefinesStrategy selects how IngestDefines dispatches its batches.
type DefinesStrategy string

const (
	// UnwindSequential runs every batch through one session, one
	// auto-commit transaction each, in submission order.
	UnwindSequential DefinesStrategy = "unwind-sequential"
	// BatchedParallel dispatches batches across a bounded worker pool of
	// sessions with no inter-batch ordering; relies on MERGE idempotence.
	BatchedParallel DefinesStrategy = "batched-parallel"
	// IsolatedParallel groups rows by the FILE they touch so no two
	// concurrent transactions contend on the same FILE node.
	IsolatedParallel DefinesStrategy = "isolated-parallel"
)

// Config controls batching, parallelism, and destructive behavior.
type Config struct {
	IngestBatchSize int
	CypherTxSize    int
	Workers         int
	Defines         DefinesStrategy
	KeepOrphans     bool
	// DryRun logs the Cypher and parameters instead of executing them,
	// supplemented from original_source/clangd_to_neo4j_ingestor.py for
	// CI validation of a build's query shape.
	DryRun bool
}

func (c Config) batchSize() int {
	if c.IngestBatchSize > 0 {
		return c.IngestBatchSize
	}
	return 500
}

func (c Config) workers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return 4
}

// Ingestor writes a parsed project into Neo4j.
type Ingestor struct {
	driver Driver
	cfg    Config
	logger *slog.Logger
}

// New builds an Ingestor over driver.
func New(driver Driver, cfg Config, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{driver: driver, cfg: cfg, logger: logger}
}

func (g *Ingestor) session(ctx context.Context) Session {
	return g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
}

// run executes cypher with params in its own session+transaction, or logs it
// and returns immediately when DryRun is set.
func (g *Ingestor) run(ctx context.Context, cypher string, params map[string]any) error {
	if g.cfg.DryRun {
		g.logger.Info("graphingest.dry_run", "cypher", cypher, "params", params)
		return nil
	}
	sess := g.session(ctx)
	defer func() { _ = sess.Close(ctx) }()
	cursor, err := sess.Run(ctx, cypher, params)
	if err != nil {
		return fmt.Errorf("run cypher: %w", err)
	}
	if _, err := cursor.Consume(ctx); err != nil {
		return fmt.Errorf("consume result: %w", err)
	}
	return nil
}

// ResetDatabase deletes every node and relationship, for a clean full
// rebuild.
func (g *Ingestor) ResetDatabase(ctx context.Context) error {
	return g.run(ctx, `MATCH (n) DETACH DELETE n`, nil)
}

// CreateConstraints creates the uniqueness constraints named by the graph
// schema, idempotent across repeated calls: every label is keyed by its id;
// FOLDER and FILE additionally get a path constraint since path is their
// natural key, even though their id is itself derived deterministically from
// path by pathmodel.StableID (see DESIGN.md).
func (g *Ingestor) CreateConstraints(ctx context.Context) error {
	idLabels := []string{"PROJECT", "FOLDER", "FILE", "FUNCTION", "DATA_STRUCTURE"}
	for _, label := range idLabels {
		cypher := fmt.Sprintf("CREATE CONSTRAINT IF NOT EXISTS FOR (n:%s) REQUIRE n.id IS UNIQUE", label)
		if err := g.run(ctx, cypher, nil); err != nil {
			return fmt.Errorf("constraint for %s: %w", label, err)
		}
	}
	pathLabels := []string{"FOLDER", "FILE"}
	for _, label := range pathLabels {
		cypher := fmt.Sprintf("CREATE CONSTRAINT IF NOT EXISTS FOR (n:%s) REQUIRE n.path IS UNIQUE", label)
		if err := g.run(ctx, cypher, nil); err != nil {
			return fmt.Errorf("path constraint for %s: %w", label, err)
		}
	}
	return nil
}

// UpsertProject merges the single PROJECT node for this build, recording its
// commit hash for the Updater's later incremental passes.
func (g *Ingestor) UpsertProject(ctx context.Context, id, name, commitHash string) error {
	return g.run(ctx, `
MERGE (p:PROJECT {id: $id})
SET p.name = $name, p.commit_hash = $commit_hash`,
		map[string]any{"id": id, "name": name, "commit_hash": commitHash})
}

// IngestFolders upserts every FOLDER node and its CONTAINS edge from its
// parent (project or folder), batched at ingest_batch_size.
func (g *Ingestor) IngestFolders(ctx context.Context, rows []FolderRow) error {
	for _, batch := range chunk(rows, g.cfg.batchSize()) {
		params := rowsToParams(batch, func(r FolderRow) map[string]any {
			return map[string]any{"id": r.ID, "path": r.Path, "parent_id": r.ParentID}
		})
		cypher := `
UNWIND $rows AS row
MERGE (f:FOLDER {id: row.id})
SET f.path = row.path
WITH f, row
MATCH (parent) WHERE parent.id = row.parent_id
MERGE (parent)-[:CONTAINS]->(f)`
		if err := g.run(ctx, cypher, map[string]any{"rows": params}); err != nil {
			return fmt.Errorf("ingest folders: %w", err)
		}
	}
	return nil
}

// IngestFiles upserts every FILE node and its CONTAINS edge from its parent
// (project or folder).
func (g *Ingestor) IngestFiles(ctx context.Context, rows []FileRow) error {
	for _, batch := range chunk(rows, g.cfg.batchSize()) {
		params := rowsToParams(batch, func(r FileRow) map[string]any {
			return map[string]any{"id": r.ID, "path": r.Path, "language": r.Language, "folder_id": r.FolderID}
		})
		cypher := `
UNWIND $rows AS row
MERGE (file:FILE {id: row.id})
SET file.path = row.path, file.language = row.language
WITH file, row
MATCH (folder) WHERE folder.id = row.folder_id
MERGE (folder)-[:CONTAINS]->(file)`
		if err := g.run(ctx, cypher, map[string]any{"rows": params}); err != nil {
			return fmt.Errorf("ingest files: %w", err)
		}
	}
	return nil
}

// IngestFunctionNodes upserts every FUNCTION node's properties (not its
// DEFINES edge; see IngestDefines).
func (g *Ingestor) IngestFunctionNodes(ctx context.Context, rows []FunctionRow) error {
	for _, batch := range chunk(rows, g.cfg.batchSize()) {
		params := rowsToParams(batch, func(r FunctionRow) map[string]any {
			return map[string]any{
				"id": r.ID, "name": r.Name, "signature": r.Signature, "return_type": r.ReturnType,
				"documentation": r.Documentation, "template_params": r.TemplateParams,
				"file_uri": r.FileURI, "start_line": r.StartLine, "start_column": r.StartColumn,
				"end_line": r.EndLine, "end_column": r.EndColumn,
			}
		})
		cypher := `
UNWIND $rows AS row
MERGE (fn:FUNCTION {id: row.id})
SET fn.name = row.name, fn.signature = row.signature, fn.return_type = row.return_type,
    fn.documentation = row.documentation, fn.template_params = row.template_params,
    fn.file_uri = row.file_uri, fn.start_line = row.start_line, fn.start_column = row.start_column,
    fn.end_line = row.end_line, fn.end_column = row.end_column`
		if err := g.run(ctx, cypher, map[string]any{"rows": params}); err != nil {
			return fmt.Errorf("ingest function nodes: %w", err)
		}
	}
	return nil
}

// IngestDataStructureNodes upserts every DATA_STRUCTURE node's properties.
func (g *Ingestor) IngestDataStructureNodes(ctx context.Context, rows []DataStructureRow) error {
	for _, batch := range chunk(rows, g.cfg.batchSize()) {
		params := rowsToParams(batch, func(r DataStructureRow) map[string]any {
			return map[string]any{"id": r.ID, "name": r.Name, "kind": r.Kind, "file_uri": r.FileURI}
		})
		cypher := `
UNWIND $rows AS row
MERGE (ds:DATA_STRUCTURE {id: row.id})
SET ds.name = row.name, ds.kind = row.kind, ds.file_uri = row.file_uri`
		if err := g.run(ctx, cypher, map[string]any{"rows": params}); err != nil {
			return fmt.Errorf("ingest data structure nodes: %w", err)
		}
	}
	return nil
}

const definesCypher = `
UNWIND $rows AS row
MATCH (file:FILE {id: row.file_id})
MATCH (sym) WHERE sym.id = row.symbol_id
MERGE (file)-[:DEFINES]->(sym)`

// IngestDefines writes FILE-DEFINES->symbol edges, dispatched per the
// configured DefinesStrategy.
func (g *Ingestor) IngestDefines(ctx context.Context, rows []DefinesRow) error {
	switch g.cfg.Defines {
	case BatchedParallel:
		return g.ingestDefinesBatchedParallel(ctx, rows)
	case IsolatedParallel:
		return g.ingestDefinesIsolatedParallel(ctx, rows)
	default:
		return g.ingestDefinesUnwindSequential(ctx, rows)
	}
}

func (g *Ingestor) ingestDefinesUnwindSequential(ctx context.Context, rows []DefinesRow) error {
	for _, batch := range chunk(rows, g.cfg.batchSize()) {
		if err := g.run(ctx, definesCypher, map[string]any{"rows": definesParams(batch)}); err != nil {
			return fmt.Errorf("ingest defines: %w", err)
		}
	}
	return nil
}

func (g *Ingestor) ingestDefinesBatchedParallel(ctx context.Context, rows []DefinesRow) error {
	batches := chunk(rows, g.cfg.batchSize())
	return runBatchesParallel(ctx, g, batches, definesCypher, definesParams)
}

// ingestDefinesIsolatedParallel groups rows by the FILE they touch so no two
// concurrent transactions contend on the same FILE node, the batching
// discipline the spec names "largest builds".
func (g *Ingestor) ingestDefinesIsolatedParallel(ctx context.Context, rows []DefinesRow) error {
	byFile := make(map[string][]DefinesRow)
	for _, r := range rows {
		byFile[r.FileID] = append(byFile[r.FileID], r)
	}
	groups := make([][]DefinesRow, 0, len(byFile))
	for _, rs := range byFile {
		groups = append(groups, rs)
	}
	return runBatchesParallel(ctx, g, groups, definesCypher, definesParams)
}

func definesParams(batch []DefinesRow) []map[string]any {
	return rowsToParams(batch, func(r DefinesRow) map[string]any {
		return map[string]any{"file_id": r.FileID, "symbol_id": r.SymbolID}
	})
}

// runBatchesParallel dispatches batches across a bounded worker pool of
// sessions, grounded on the resolver's worker-pool pattern; the first error
// observed is returned after every in-flight worker drains. A free function
// rather than a method: Go methods cannot carry their own type parameters.
func runBatchesParallel[T any](ctx context.Context, g *Ingestor, batches [][]T, cypher string, toParams func([]T) []map[string]any) error {
	jobs := make(chan []T)
	errCh := make(chan error, len(batches))
	var wg sync.WaitGroup
	workers := g.cfg.workers()
	if workers > len(batches) {
		workers = len(batches)
	}
	if workers < 1 {
		workers = 1
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for batch := range jobs {
				if err := g.run(ctx, cypher, map[string]any{"rows": toParams(batch)}); err != nil {
					errCh <- err
				}
			}
		}()
	}
	for _, b := range batches {
		jobs <- b
	}
	close(jobs)
	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil {
			return err
		}
	}
	return nil
}

// IngestCalls writes FUNCTION-CALLS->FUNCTION edges with their call-site
// location.
func (g *Ingestor) IngestCalls(ctx context.Context, rows []CallsRow) error {
	for _, batch := range chunk(rows, g.cfg.batchSize()) {
		params := rowsToParams(batch, func(r CallsRow) map[string]any {
			return map[string]any{"caller_id": r.CallerID, "callee_id": r.CalleeID, "line": r.Line, "column": r.Column}
		})
		cypher := `
UNWIND $rows AS row
MATCH (caller:FUNCTION {id: row.caller_id})
MATCH (callee:FUNCTION {id: row.callee_id})
MERGE (caller)-[c:CALLS {line: row.line, column: row.column}]->(callee)`
		if err := g.run(ctx, cypher, map[string]any{"rows": params}); err != nil {
			return fmt.Errorf("ingest calls: %w", err)
		}
	}
	return nil
}

// IngestIncludes writes FILE-INCLUDES->FILE edges.
func (g *Ingestor) IngestIncludes(ctx context.Context, rows []IncludesRow) error {
	for _, batch := range chunk(rows, g.cfg.batchSize()) {
		params := rowsToParams(batch, func(r IncludesRow) map[string]any {
			return map[string]any{"including_id": r.IncludingID, "included_id": r.IncludedID}
		})
		cypher := `
UNWIND $rows AS row
MATCH (a:FILE {id: row.including_id})
MATCH (b:FILE {id: row.included_id})
MERGE (a)-[:INCLUDES]->(b)`
		if err := g.run(ctx, cypher, map[string]any{"rows": params}); err != nil {
			return fmt.Errorf("ingest includes: %w", err)
		}
	}
	return nil
}

// CleanupOrphans deletes every node with no relationships, unless
// KeepOrphans is set.
func (g *Ingestor) CleanupOrphans(ctx context.Context) error {
	if g.cfg.KeepOrphans {
		return nil
	}
	return g.run(ctx, `MATCH (n) WHERE NOT (n)--() DETACH DELETE n`, nil)
}

// CreateVectorIndexes creates vector indexes for RAG-enriched embeddings on
// FUNCTION, FILE, FOLDER, and PROJECT summary_embedding properties.
// Failures are logged and swallowed: not every Neo4j edition supports
// vector indexes.
func (g *Ingestor) CreateVectorIndexes(ctx context.Context, dimensions int) {
	for _, label := range []string{"FUNCTION", "FILE", "FOLDER", "PROJECT"} {
		name := fmt.Sprintf("%s_summary_embedding", label)
		cypher := `CALL db.index.vector.createNodeIndex($name, $label, 'summary_embedding', $dimensions, 'cosine')`
		if err := g.run(ctx, cypher, map[string]any{"name": name, "label": label, "dimensions": dimensions}); err != nil {
			g.logger.Warn("graphingest.vector_index.failed", "label", label, "error", err)
		}
	}
}

// PurgeSymbolsInFiles removes every FUNCTION/DATA_STRUCTURE node defined by
// one of files, for the Updater's purge-then-reingest cycle.
func (g *Ingestor) PurgeSymbolsInFiles(ctx context.Context, fileURIs []string) error {
	return g.run(ctx, `
UNWIND $file_uris AS uri
MATCH (sym) WHERE sym.file_uri = uri AND (sym:FUNCTION OR sym:DATA_STRUCTURE)
DETACH DELETE sym`, map[string]any{"file_uris": fileURIs})
}

// PurgeFiles removes FILE nodes (and transitively their symbols and edges)
// for deleted/renamed-away paths.
func (g *Ingestor) PurgeFiles(ctx context.Context, ids []string) error {
	if err := g.run(ctx, `
UNWIND $ids AS id
MATCH (file:FILE {id: id})
OPTIONAL MATCH (file)-[:DEFINES]->(sym)
DETACH DELETE sym`, map[string]any{"ids": ids}); err != nil {
		return err
	}
	return g.run(ctx, `
UNWIND $ids AS id
MATCH (file:FILE {id: id})
DETACH DELETE file`, map[string]any{"ids": ids})
}

// PurgeIncludeRelationsFrom removes every outgoing INCLUDES edge from the
// given files, ahead of re-deriving them from a fresh parse.
func (g *Ingestor) PurgeIncludeRelationsFrom(ctx context.Context, fileIDs []string) error {
	return g.run(ctx, `
UNWIND $ids AS id
MATCH (a:FILE {id: id})-[r:INCLUDES]->()
DELETE r`, map[string]any{"ids": fileIDs})
}

func rowsToParams[T any](rows []T, toMap func(T) map[string]any) []map[string]any {
	out := make([]map[string]any, len(rows))
	for i, r := range rows {
		out[i] = toMap(r)
	}
	return out
}
