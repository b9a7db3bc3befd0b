// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package ragenrich

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/kraklabs/codegraph/internal/metrics"
	"github.com/kraklabs/codegraph/pkg/embedding"
	"github.com/kraklabs/codegraph/pkg/llm"
)

// Enricher computes and maintains the four-tier summary roll-up and its
// derived embeddings over a graph already populated by an ingest or update
// run.
type Enricher struct {
	Store      GraphStore
	LLM        llm.Provider
	Embeddings *embedding.Generator
	Logger     *slog.Logger

	// Workers bounds how many functions/files are summarized concurrently
	// within a single tier.
	Workers int
}

// New builds an Enricher. workers <= 0 defaults to 4.
func New(store GraphStore, provider llm.Provider, embeddings *embedding.Generator, workers int, logger *slog.Logger) *Enricher {
	if logger == nil {
		logger = slog.Default()
	}
	if workers <= 0 {
		workers = 4
	}
	return &Enricher{Store: store, LLM: provider, Embeddings: embeddings, Workers: workers, Logger: logger}
}

// FullRollup recomputes every tier from scratch: function code summaries,
// function context summaries, file summaries, folder summaries (bottom-up
// by depth), the project summary, and finally every embedding a changed
// summary invalidated.
func (e *Enricher) FullRollup(ctx context.Context) error {
	functionIDs, err := e.Store.AllFunctionIDs(ctx)
	if err != nil {
		return fmt.Errorf("list functions: %w", err)
	}
	e.parallelEach(ctx, functionIDs, e.recomputeCodeSummary)
	e.parallelEach(ctx, functionIDs, e.recomputeContextSummary)

	fileIDs, err := e.Store.AllFileIDs(ctx)
	if err != nil {
		return fmt.Errorf("list files: %w", err)
	}
	e.parallelEach(ctx, fileIDs, e.rollupFile)

	folderIDs, err := e.Store.FoldersDeepestFirst(ctx)
	if err != nil {
		return fmt.Errorf("list folders: %w", err)
	}
	// Folders roll up sequentially, deepest first: a folder's summary
	// depends on its children's summaries already being set.
	for _, id := range folderIDs {
		if err := e.rollupFolder(ctx, id); err != nil {
			e.Logger.Error("ragenrich.folder_rollup_failed", "folder_id", id, "error", err)
		}
	}

	projectID, err := e.Store.ProjectID(ctx)
	if err != nil {
		return fmt.Errorf("project id: %w", err)
	}
	if err := e.rollupProject(ctx, projectID); err != nil {
		e.Logger.Error("ragenrich.project_rollup_failed", "error", err)
	}

	return e.regenerateEmbeddings(ctx)
}

// StructuralChange describes the file-level delta driving a targeted update,
// mirroring the classification an Updater run already produced.
type StructuralChange struct {
	AddedFiles    []string
	ModifiedFiles []string
	DeletedFiles  []string
}

// TargetedUpdate implements the six-step incremental roll-up: (a) code
// summaries for seedFunctionIDs, (b) context summaries for seeds and their
// 1-hop neighbors, (c) file summaries for every file touching a changed
// function plus added/modified files, (d) folder summaries along every such
// file's ancestor path, (e) the project summary, (f) embeddings for
// everything invalidated above.
func (e *Enricher) TargetedUpdate(ctx context.Context, seedFunctionIDs []string, change StructuralChange) error {
	// (a)
	e.parallelEach(ctx, seedFunctionIDs, e.recomputeCodeSummary)

	// (b)
	oneHop := e.oneHopClosure(ctx, seedFunctionIDs)
	e.parallelEach(ctx, oneHop, e.recomputeContextSummary)

	// (c)
	fileSet := make(map[string]bool)
	for _, fn := range seedFunctionIDs {
		fileID, err := e.Store.FileOf(ctx, fn)
		if err != nil {
			e.Logger.Warn("ragenrich.file_of_failed", "function_id", fn, "error", err)
			continue
		}
		fileSet[fileID] = true
	}
	for _, f := range change.AddedFiles {
		fileSet[f] = true
	}
	for _, f := range change.ModifiedFiles {
		fileSet[f] = true
	}
	fileIDs := sortedKeys(fileSet)
	e.parallelEach(ctx, fileIDs, e.rollupFile)

	// (d)
	folderDepths := make(map[string]int)
	for _, f := range fileIDs {
		ancestors, err := e.Store.AncestorFolders(ctx, f)
		if err != nil {
			e.Logger.Warn("ragenrich.ancestors_failed", "file_id", f, "error", err)
			continue
		}
		for _, a := range ancestors {
			if d, ok := folderDepths[a.ID]; !ok || a.Depth > d {
				folderDepths[a.ID] = a.Depth
			}
		}
	}
	folderIDs := make([]string, 0, len(folderDepths))
	for id := range folderDepths {
		folderIDs = append(folderIDs, id)
	}
	sort.Slice(folderIDs, func(i, j int) bool { return folderDepths[folderIDs[i]] > folderDepths[folderIDs[j]] })
	for _, id := range folderIDs {
		if err := e.rollupFolder(ctx, id); err != nil {
			e.Logger.Error("ragenrich.folder_rollup_failed", "folder_id", id, "error", err)
		}
	}

	// (e)
	projectID, err := e.Store.ProjectID(ctx)
	if err != nil {
		return fmt.Errorf("project id: %w", err)
	}
	if err := e.rollupProject(ctx, projectID); err != nil {
		e.Logger.Error("ragenrich.project_rollup_failed", "error", err)
	}

	// (f)
	return e.regenerateEmbeddings(ctx)
}

// oneHopClosure returns seeds union their direct callers and callees,
// deduplicated.
func (e *Enricher) oneHopClosure(ctx context.Context, seeds []string) []string {
	set := make(map[string]bool, len(seeds)*3)
	for _, s := range seeds {
		set[s] = true
	}
	for _, s := range seeds {
		if callers, err := e.Store.Callers(ctx, s); err == nil {
			for _, c := range callers {
				set[c] = true
			}
		}
		if callees, err := e.Store.Callees(ctx, s); err == nil {
			for _, c := range callees {
				set[c] = true
			}
		}
	}
	return sortedKeys(set)
}

func (e *Enricher) recomputeCodeSummary(ctx context.Context, id string) error {
	code, _, err := e.Store.FunctionBody(ctx, id)
	if err != nil {
		return fmt.Errorf("function body: %w", err)
	}
	if strings.TrimSpace(code) == "" {
		return nil
	}
	summary, err := e.chat(ctx, llm.SystemPrompts.CodeDocument, code)
	if err != nil {
		return fmt.Errorf("summarize code: %w", err)
	}
	if err := e.Store.SetCodeSummary(ctx, id, summary); err != nil {
		return err
	}
	metrics.IncCodeSummary()
	return nil
}

func (e *Enricher) recomputeContextSummary(ctx context.Context, id string) error {
	codeSummary, err := e.Store.CodeSummary(ctx, id)
	if err != nil {
		return fmt.Errorf("code summary: %w", err)
	}
	if codeSummary == "" {
		return nil
	}

	var neighbors []string
	if callers, err := e.Store.Callers(ctx, id); err == nil {
		for _, c := range callers {
			if s, err := e.Store.CodeSummary(ctx, c); err == nil && s != "" {
				neighbors = append(neighbors, "caller: "+s)
			}
		}
	}
	if callees, err := e.Store.Callees(ctx, id); err == nil {
		for _, c := range callees {
			if s, err := e.Store.CodeSummary(ctx, c); err == nil && s != "" {
				neighbors = append(neighbors, "callee: "+s)
			}
		}
	}

	prompt := codeSummary
	if len(neighbors) > 0 {
		prompt = codeSummary + "\n\nCallers and callees:\n" + strings.Join(neighbors, "\n")
	}
	summary, err := e.chat(ctx, llm.SystemPrompts.CodeExplain, prompt)
	if err != nil {
		return fmt.Errorf("summarize context: %w", err)
	}
	if err := e.Store.SetContextSummary(ctx, id, summary); err != nil {
		return err
	}
	metrics.IncContextSummary()
	return nil
}

func (e *Enricher) rollupFile(ctx context.Context, fileID string) error {
	fnIDs, err := e.Store.FunctionIDsInFile(ctx, fileID)
	if err != nil {
		return fmt.Errorf("functions in file: %w", err)
	}
	var parts []string
	for _, fn := range fnIDs {
		if s, err := e.Store.ContextSummary(ctx, fn); err == nil && s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return nil
	}
	summary, err := e.chat(ctx, llm.SystemPrompts.CodeExplain, "Summarize this file from its functions:\n"+strings.Join(parts, "\n"))
	if err != nil {
		return fmt.Errorf("summarize file: %w", err)
	}
	if err := e.Store.SetFileSummary(ctx, fileID, summary); err != nil {
		return err
	}
	metrics.IncFileSummary()
	return nil
}

func (e *Enricher) rollupFolder(ctx context.Context, folderID string) error {
	childIDs, err := e.Store.ChildIDs(ctx, folderID)
	if err != nil {
		return fmt.Errorf("child ids: %w", err)
	}
	var parts []string
	for _, c := range childIDs {
		if s, err := e.Store.SummaryOf(ctx, c); err == nil && s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return nil
	}
	summary, err := e.chat(ctx, llm.SystemPrompts.CodeExplain, "Summarize this folder from its contents:\n"+strings.Join(parts, "\n"))
	if err != nil {
		return fmt.Errorf("summarize folder: %w", err)
	}
	if err := e.Store.SetFolderSummary(ctx, folderID, summary); err != nil {
		return err
	}
	metrics.IncFolderSummary()
	return nil
}

func (e *Enricher) rollupProject(ctx context.Context, projectID string) error {
	childIDs, err := e.Store.ChildIDs(ctx, projectID)
	if err != nil {
		return fmt.Errorf("child ids: %w", err)
	}
	var parts []string
	for _, c := range childIDs {
		if s, err := e.Store.SummaryOf(ctx, c); err == nil && s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return nil
	}
	summary, err := e.chat(ctx, llm.SystemPrompts.CodeExplain, "Summarize this project from its top-level contents:\n"+strings.Join(parts, "\n"))
	if err != nil {
		return fmt.Errorf("summarize project: %w", err)
	}
	if err := e.Store.SetProjectSummary(ctx, projectID, summary); err != nil {
		return err
	}
	metrics.IncProjectSummary()
	return nil
}

func (e *Enricher) regenerateEmbeddings(ctx context.Context) error {
	targets, err := e.Store.NodesNeedingEmbedding(ctx)
	if err != nil {
		return fmt.Errorf("nodes needing embedding: %w", err)
	}
	if len(targets) == 0 {
		return nil
	}
	items := make([]embedding.Item, len(targets))
	labelByID := make(map[string]string, len(targets))
	for i, t := range targets {
		items[i] = embedding.Item{ID: t.ID, Text: t.Summary}
		labelByID[t.ID] = t.Label
	}
	results := e.Embeddings.EmbedAll(ctx, items)
	for _, r := range results {
		if r.Err != nil {
			e.Logger.Warn("ragenrich.embed_failed", "id", r.ID, "error", r.Err)
			metrics.IncEmbeddingFailed()
			continue
		}
		label := labelByID[r.ID]
		if label == "" {
			continue
		}
		if err := e.Store.SetEmbedding(ctx, r.ID, label, r.Vector); err != nil {
			e.Logger.Warn("ragenrich.set_embedding_failed", "id", r.ID, "error", err)
			continue
		}
		metrics.IncEmbeddingOK()
	}
	return nil
}

func (e *Enricher) chat(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := e.LLM.Chat(ctx, llm.ChatRequest{Messages: llm.BuildChatMessages(systemPrompt, userPrompt)})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Message.Content), nil
}

// parallelEach runs fn over ids across e.Workers goroutines, logging but not
// propagating per-item errors: one function's summarization failure must not
// abort the batch for the rest.
func (e *Enricher) parallelEach(ctx context.Context, ids []string, fn func(context.Context, string) error) {
	if len(ids) == 0 {
		return
	}
	workers := e.Workers
	if workers > len(ids) {
		workers = len(ids)
	}
	if workers < 1 {
		workers = 1
	}

	jobs := make(chan string)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				if err := fn(ctx, id); err != nil {
					e.Logger.Warn("ragenrich.item_failed", "id", id, "error", err)
				}
			}
		}()
	}
	for _, id := range ids {
		jobs <- id
	}
	close(jobs)
	wg.Wait()
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
