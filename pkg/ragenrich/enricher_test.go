// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package ragenrich

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/kraklabs/codegraph/pkg/embedding"
	"github.com/kraklabs/codegraph/pkg/llm"
)

// fakeStore is an in-memory GraphStore modeling a tiny graph:
//
//	project "proj" -CONTAINS-> folder "src" -CONTAINS-> file "a.c"
//	file "a.c" -DEFINES-> function "fn_main", function "fn_helper"
//	fn_main -CALLS-> fn_helper
type fakeStore struct {
	mu sync.Mutex

	bodies      map[string]string
	fileOf      map[string]string
	calls       map[string][]string // caller -> callees
	calledBy    map[string][]string // callee -> callers
	fnsInFile   map[string][]string
	children    map[string][]string
	ancestors   map[string][]FolderRef
	folderOrder []string

	codeSummary    map[string]string
	contextSummary map[string]string
	summary        map[string]string
	embeddings     map[string][]float32
	labels         map[string]string

	projectID string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		bodies:         map[string]string{},
		fileOf:         map[string]string{},
		calls:          map[string][]string{},
		calledBy:       map[string][]string{},
		fnsInFile:      map[string][]string{},
		children:       map[string][]string{},
		ancestors:      map[string][]FolderRef{},
		codeSummary:    map[string]string{},
		contextSummary: map[string]string{},
		summary:        map[string]string{},
		embeddings:     map[string][]float32{},
		labels:         map[string]string{},
	}
}

func buildFakeGraph() *fakeStore {
	s := newFakeStore()
	s.projectID = "proj"
	s.labels["proj"] = "PROJECT"
	s.labels["src"] = "FOLDER"
	s.labels["a.c"] = "FILE"
	s.labels["fn_main"] = "FUNCTION"
	s.labels["fn_helper"] = "FUNCTION"

	s.children["proj"] = []string{"src"}
	s.children["src"] = []string{"a.c"}
	s.fnsInFile["a.c"] = []string{"fn_main", "fn_helper"}
	s.fileOf["fn_main"] = "a.c"
	s.fileOf["fn_helper"] = "a.c"
	s.folderOrder = []string{"src"}
	s.ancestors["a.c"] = []FolderRef{{ID: "src", Depth: 1}}

	s.bodies["fn_main"] = "int main(void) { return helper(); }"
	s.bodies["fn_helper"] = "int helper(void) { return 42; }"
	s.calls["fn_main"] = []string{"fn_helper"}
	s.calledBy["fn_helper"] = []string{"fn_main"}
	return s
}

func (s *fakeStore) AllFunctionIDs(ctx context.Context) ([]string, error) {
	out := make([]string, 0, len(s.bodies))
	for id := range s.bodies {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (s *fakeStore) AllFileIDs(ctx context.Context) ([]string, error) {
	out := make([]string, 0, len(s.fnsInFile))
	for id := range s.fnsInFile {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (s *fakeStore) FoldersDeepestFirst(ctx context.Context) ([]string, error) {
	return s.folderOrder, nil
}

func (s *fakeStore) ProjectID(ctx context.Context) (string, error) { return s.projectID, nil }

func (s *fakeStore) FunctionBody(ctx context.Context, id string) (string, string, error) {
	return s.bodies[id], s.fileOf[id], nil
}

func (s *fakeStore) SetCodeSummary(ctx context.Context, id, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codeSummary[id] = summary
	delete(s.embeddings, id)
	return nil
}

func (s *fakeStore) CodeSummary(ctx context.Context, id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.codeSummary[id], nil
}

func (s *fakeStore) Callers(ctx context.Context, id string) ([]string, error) {
	return s.calledBy[id], nil
}

func (s *fakeStore) Callees(ctx context.Context, id string) ([]string, error) {
	return s.calls[id], nil
}

func (s *fakeStore) SetContextSummary(ctx context.Context, id, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contextSummary[id] = summary
	delete(s.embeddings, id)
	return nil
}

func (s *fakeStore) ContextSummary(ctx context.Context, id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.contextSummary[id], nil
}

func (s *fakeStore) FunctionIDsInFile(ctx context.Context, fileID string) ([]string, error) {
	return s.fnsInFile[fileID], nil
}

func (s *fakeStore) SetFileSummary(ctx context.Context, fileID, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summary[fileID] = summary
	delete(s.embeddings, fileID)
	return nil
}

func (s *fakeStore) ChildIDs(ctx context.Context, parentID string) ([]string, error) {
	return s.children[parentID], nil
}

func (s *fakeStore) SummaryOf(ctx context.Context, id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summary[id], nil
}

func (s *fakeStore) SetFolderSummary(ctx context.Context, folderID, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summary[folderID] = summary
	delete(s.embeddings, folderID)
	return nil
}

func (s *fakeStore) SetProjectSummary(ctx context.Context, projectID, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summary[projectID] = summary
	delete(s.embeddings, projectID)
	return nil
}

func (s *fakeStore) FileOf(ctx context.Context, functionID string) (string, error) {
	return s.fileOf[functionID], nil
}

func (s *fakeStore) AncestorFolders(ctx context.Context, fileID string) ([]FolderRef, error) {
	return s.ancestors[fileID], nil
}

func (s *fakeStore) NodesNeedingEmbedding(ctx context.Context) ([]EmbeddingTarget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []EmbeddingTarget
	for id, summary := range s.contextSummary {
		if _, done := s.embeddings[id]; !done && summary != "" {
			out = append(out, EmbeddingTarget{ID: id, Label: s.labels[id], Summary: summary})
		}
	}
	for id, summary := range s.summary {
		if s.labels[id] == "FUNCTION" {
			continue
		}
		if _, done := s.embeddings[id]; !done && summary != "" {
			out = append(out, EmbeddingTarget{ID: id, Label: s.labels[id], Summary: summary})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeStore) SetEmbedding(ctx context.Context, id, label string, vector []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.embeddings[id] = vector
	return nil
}

// fakeLLM returns a canned, deterministic summary derived from the prompt so
// assertions can check roll-up shape without depending on a real model.
type fakeLLM struct{}

func (fakeLLM) Name() string { return "fake" }

func (fakeLLM) Models(ctx context.Context) ([]string, error) { return []string{"fake-model"}, nil }

func (fakeLLM) Generate(ctx context.Context, req llm.GenerateRequest) (*llm.GenerateResponse, error) {
	return &llm.GenerateResponse{Text: "summary of: " + req.Prompt, Done: true}, nil
}

func (fakeLLM) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	var last string
	for _, m := range req.Messages {
		if m.Role == "user" {
			last = m.Content
		}
	}
	return &llm.ChatResponse{Message: llm.Message{Role: "assistant", Content: fmt.Sprintf("summary of: %s", last)}, Done: true}, nil
}

func TestFullRollup_PropagatesThroughAllFourTiers(t *testing.T) {
	store := buildFakeGraph()
	gen := embedding.NewGenerator(embedding.NewFakeProvider(8), 2, nil)
	e := New(store, fakeLLM{}, gen, 2, nil)

	if err := e.FullRollup(context.Background()); err != nil {
		t.Fatalf("FullRollup: %v", err)
	}

	if store.codeSummary["fn_main"] == "" || store.codeSummary["fn_helper"] == "" {
		t.Fatalf("expected code summaries for both functions, got %#v", store.codeSummary)
	}
	if store.contextSummary["fn_main"] == "" {
		t.Fatalf("expected a context summary for fn_main")
	}
	if !strings.Contains(store.contextSummary["fn_main"], "summary of") {
		t.Errorf("expected context summary derived from LLM output, got %q", store.contextSummary["fn_main"])
	}
	if store.summary["a.c"] == "" {
		t.Fatalf("expected a file summary for a.c")
	}
	if store.summary["src"] == "" {
		t.Fatalf("expected a folder summary for src")
	}
	if store.summary["proj"] == "" {
		t.Fatalf("expected a project summary")
	}

	for _, id := range []string{"fn_main", "fn_helper", "a.c", "src", "proj"} {
		if _, ok := store.embeddings[id]; !ok {
			t.Errorf("expected an embedding for %s", id)
		}
	}
}

func TestTargetedUpdate_RecomputesImpactedNodes(t *testing.T) {
	store := buildFakeGraph()
	gen := embedding.NewGenerator(embedding.NewFakeProvider(8), 2, nil)
	e := New(store, fakeLLM{}, gen, 2, nil)

	if err := e.FullRollup(context.Background()); err != nil {
		t.Fatalf("FullRollup: %v", err)
	}

	// Simulate fn_helper's body changing on its own; fn_main is its only
	// caller so must be recomputed too by the 1-hop context pass.
	store.bodies["fn_helper"] = "int helper(void) { return 7; }"
	store.codeSummary["fn_helper"] = ""
	store.contextSummary["fn_main"] = ""

	err := e.TargetedUpdate(context.Background(), []string{"fn_helper"}, StructuralChange{})
	if err != nil {
		t.Fatalf("TargetedUpdate: %v", err)
	}

	if store.codeSummary["fn_helper"] == "" {
		t.Errorf("expected fn_helper's code summary to be recomputed")
	}
	if store.contextSummary["fn_main"] == "" {
		t.Errorf("expected fn_main's context summary to be recomputed as fn_helper's 1-hop neighbor")
	}
	if store.summary["a.c"] == "" {
		t.Errorf("expected a.c's file summary to be re-rolled-up")
	}
	if store.summary["proj"] == "" {
		t.Errorf("expected the project summary to be recomputed")
	}
}
