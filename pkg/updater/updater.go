// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package updater

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"

	"github.com/kraklabs/codegraph/internal/metrics"
	"github.com/kraklabs/codegraph/pkg/graphingest"
	"github.com/kraklabs/codegraph/pkg/includegraph"
	"github.com/kraklabs/codegraph/pkg/indexparser"
	"github.com/kraklabs/codegraph/pkg/ingestpipeline"
	"github.com/kraklabs/codegraph/pkg/pathmodel"
	"github.com/kraklabs/codegraph/pkg/sourceparser"
)

// Config names the inputs one incremental update run needs.
type Config struct {
	RepoPath      string // working tree the git commands run against
	ProjectRoot   string // root Discover/Normalize resolve paths relative to
	IndexFilePath string

	ProjectID      string
	ProjectName    string
	OldCommit      string // baseline; empty means "unknown" and the run aborts
	NewCommit      string // target; empty defaults to HEAD

	ParseWorkers int
}

// Updater drives the 8-step purge-then-reingest cycle that keeps a
// previously built graph current without a full rebuild.
type Updater struct {
	Ingestor     *graphingest.Ingestor
	IncludeGraph *includegraph.Materialized
	SourceParser sourceparser.Strategy
	Logger       *slog.Logger
}

func (u *Updater) logger() *slog.Logger {
	if u.Logger != nil {
		return u.Logger
	}
	return slog.Default()
}

// Result summarizes one Run for logging and for CLI exit-code decisions.
type Result struct {
	Delta      *Delta
	NoOp       bool // true when step 3's "nothing dirty" short circuit fired
	NewCommit  string
	DirtyFiles []string
}

// Run executes steps 1-8 against cfg. Step numbers in comments refer to the
// update procedure this mirrors.
func (u *Updater) Run(ctx context.Context, cfg Config) (*Result, error) {
	if cfg.OldCommit == "" {
		return nil, fmt.Errorf("update: baseline commit is unknown, run a full build first")
	}
	newCommit := cfg.NewCommit
	if newCommit == "" {
		newCommit = "HEAD"
	}
	resolvedNew, err := resolveRef(cfg.RepoPath, newCommit)
	if err != nil {
		return nil, fmt.Errorf("resolve new commit: %w", err)
	}

	// Step 1: classify file-level changes.
	delta, err := Detect(cfg.RepoPath, cfg.OldCommit, resolvedNew)
	if err != nil {
		return nil, fmt.Errorf("detect changes: %w", err)
	}

	metrics.AddFilesAdded(len(delta.Added))
	metrics.AddFilesModified(len(delta.Modified))
	metrics.AddFilesDeleted(len(delta.Deleted))

	// Exact renames are flattened as deleted(src)+added(dst), per spec.md
	// §4.H step 1: the old path's FILE node and symbols are purged, the new
	// path is reparsed and reingested like any other added file.
	renamedOld := make([]string, 0, len(delta.Renamed))
	renamedNew := make([]string, 0, len(delta.Renamed))
	for oldPath, newPath := range delta.Renamed {
		renamedOld = append(renamedOld, oldPath)
		renamedNew = append(renamedNew, newPath)
	}

	// Step 2: expand to the files impacted via #include of a changed or
	// deleted header. A renamed header counts on both ends: the old path's
	// includers need reparsing same as a deletion, the new path's same as a
	// modification.
	headerCandidates := headerPaths(cfg.ProjectRoot,
		append(append(append(append([]string(nil), delta.Modified...), delta.Deleted...), renamedOld...), renamedNew...))
	impacted, err := u.impactedFiles(ctx, headerCandidates)
	if err != nil {
		return nil, fmt.Errorf("compute impacted files: %w", err)
	}
	metrics.AddFilesImpacted(len(impacted))

	// Step 3: union the dirty set; short circuit if nothing needs reingest.
	dirtySet := make(map[string]bool)
	for _, p := range relPaths(cfg.ProjectRoot, delta.Added) {
		dirtySet[p] = true
	}
	for _, p := range relPaths(cfg.ProjectRoot, delta.Modified) {
		dirtySet[p] = true
	}
	for _, p := range relPaths(cfg.ProjectRoot, renamedNew) {
		dirtySet[p] = true
	}
	for _, p := range impacted {
		dirtySet[p] = true
	}
	deletedRel := append(relPaths(cfg.ProjectRoot, delta.Deleted), relPaths(cfg.ProjectRoot, renamedOld)...)

	dirty := sortedKeys(dirtySet)
	if len(dirty) == 0 && len(deletedRel) == 0 {
		metrics.IncUpdateNoOp()
		if err := u.Ingestor.UpsertProject(ctx, cfg.ProjectID, cfg.ProjectName, resolvedNew); err != nil {
			return nil, fmt.Errorf("record clean commit: %w", err)
		}
		return &Result{Delta: delta, NoOp: true, NewCommit: resolvedNew}, nil
	}

	u.logger().Info("updater.dirty_set", "dirty", len(dirty), "deleted", len(deletedRel))

	// Step 4: purge symbols/edges for everything about to be replaced or
	// removed, and the FILE nodes for paths that no longer exist at all.
	purgePaths := append(append([]string(nil), dirty...), deletedRel...)
	if err := u.purge(ctx, cfg.ProjectRoot, purgePaths, deletedRel); err != nil {
		return nil, fmt.Errorf("purge: %w", err)
	}

	if len(dirty) == 0 {
		// Nothing to reparse, only deletions; commit the purge and return.
		if err := u.Ingestor.UpsertProject(ctx, cfg.ProjectID, cfg.ProjectName, resolvedNew); err != nil {
			return nil, fmt.Errorf("record commit after purge-only update: %w", err)
		}
		return &Result{Delta: delta, NewCommit: resolvedNew, DirtyFiles: dirty}, nil
	}

	// Step 5: reparse the dirty source files only, uncached.
	absDirty := absPaths(cfg.ProjectRoot, dirty)
	parseResult, err := u.SourceParser.Parse(absDirty)
	if err != nil {
		return nil, fmt.Errorf("parse dirty files: %w", err)
	}

	// Step 6: parse the new full index, then narrow it to a mini-table
	// containing only symbols defined in a dirty file.
	full, err := indexparser.Parse(cfg.IndexFilePath, indexparser.Options{Workers: cfg.ParseWorkers, Logger: u.logger()})
	if err != nil {
		return nil, fmt.Errorf("parse new index: %w", err)
	}
	keep := make(map[string]bool)
	for id, sym := range full.Symbols {
		if sym.Definition == nil {
			continue
		}
		rel, ok := pathmodel.Normalize(cfg.ProjectRoot, sym.Definition.FileURI)
		if ok && dirtySet[rel] {
			keep[id] = true
		}
	}
	mini := full.CreateSubset(keep)

	// Step 7: reingest the mini-table through the same pipeline a full build
	// uses. MERGE means neighbor functions outside the mini-table resolve by
	// id lookup without needing to be re-created.
	rows := ingestpipeline.Build(cfg.ProjectRoot, cfg.ProjectID, mini, parseResult, cfg.ParseWorkers)
	if err := reingest(ctx, u.Ingestor, rows); err != nil {
		return nil, fmt.Errorf("reingest dirty subset: %w", err)
	}

	// Step 8: commit hash update is the last write of the run.
	if err := u.Ingestor.UpsertProject(ctx, cfg.ProjectID, cfg.ProjectName, resolvedNew); err != nil {
		return nil, fmt.Errorf("record new commit: %w", err)
	}

	return &Result{Delta: delta, NewCommit: resolvedNew, DirtyFiles: dirty}, nil
}

func (u *Updater) impactedFiles(ctx context.Context, headers []string) ([]string, error) {
	if len(headers) == 0 {
		return nil, nil
	}
	return u.IncludeGraph.ImpactedFiles(ctx, headers)
}

func (u *Updater) purge(ctx context.Context, projectRoot string, purgePaths, deletedPaths []string) error {
	if err := u.Ingestor.PurgeSymbolsInFiles(ctx, purgePaths); err != nil {
		return fmt.Errorf("purge symbols: %w", err)
	}
	metrics.AddSymbolsPurged(len(purgePaths))
	fileIDs := make([]string, len(purgePaths))
	for i, p := range purgePaths {
		fileIDs[i] = pathmodel.StableID("file", p)
	}
	if err := u.Ingestor.PurgeIncludeRelationsFrom(ctx, fileIDs); err != nil {
		return fmt.Errorf("purge include relations: %w", err)
	}
	metrics.AddIncludesPurged(len(fileIDs))
	if len(deletedPaths) > 0 {
		deletedIDs := make([]string, len(deletedPaths))
		for i, p := range deletedPaths {
			deletedIDs[i] = pathmodel.StableID("file", p)
		}
		if err := u.Ingestor.PurgeFiles(ctx, deletedIDs); err != nil {
			return fmt.Errorf("purge files: %w", err)
		}
	}
	return nil
}

// reingest runs every row slice through the Ingestor in dependency order:
// folders and files first, then nodes, then edges that reference them.
func reingest(ctx context.Context, g *graphingest.Ingestor, rows ingestpipeline.Rows) error {
	if err := g.IngestFolders(ctx, rows.Folders); err != nil {
		return err
	}
	if err := g.IngestFiles(ctx, rows.Files); err != nil {
		return err
	}
	if err := g.IngestFunctionNodes(ctx, rows.Functions); err != nil {
		return err
	}
	if err := g.IngestDataStructureNodes(ctx, rows.DataStructures); err != nil {
		return err
	}
	if err := g.IngestDefines(ctx, rows.Defines); err != nil {
		return err
	}
	if err := g.IngestCalls(ctx, rows.Calls); err != nil {
		return err
	}
	if err := g.IngestIncludes(ctx, rows.Includes); err != nil {
		return err
	}
	return nil
}

// headerPaths narrows a path list down to headers: step 2 only needs to walk
// the include graph from changed/deleted headers, since a changed .c file
// can never be #included by anything else.
func headerPaths(projectRoot string, paths []string) []string {
	var out []string
	for _, p := range relPaths(projectRoot, paths) {
		switch filepath.Ext(p) {
		case ".h", ".hpp", ".hxx":
			out = append(out, p)
		}
	}
	return out
}

// relPaths normalizes a set of repo-relative paths (as git reports them)
// against projectRoot, dropping any that fall outside it.
func relPaths(projectRoot string, paths []string) []string {
	var out []string
	for _, p := range paths {
		rel, ok := pathmodel.Normalize(projectRoot, p)
		if ok {
			out = append(out, rel)
		}
	}
	return out
}

func absPaths(projectRoot string, relPaths []string) []string {
	out := make([]string, len(relPaths))
	for i, p := range relPaths {
		out[i] = projectRoot + "/" + p
	}
	return out
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
