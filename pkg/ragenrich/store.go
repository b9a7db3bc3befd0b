// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ragenrich computes the four-tier summary roll-up (function code
// summary -> function context summary -> file summary -> folder summary ->
// project summary) and the embeddings derived from it, either for a full
// build or for a targeted update over a changed subset.
package ragenrich

import (
	"context"
	"fmt"
	"sort"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// FolderRef is a folder id paired with its path depth, so callers can merge
// ancestor-folder lists from several files and still process shallowest
// last.
type FolderRef struct {
	ID    string
	Depth int
}

// EmbeddingTarget is a node whose summary changed since its embedding was
// last computed.
type EmbeddingTarget struct {
	ID      string
	Label   string
	Summary string
}

// GraphStore is the read/write surface the Enricher needs from the graph
// database, narrowed so tests can supply an in-memory fake instead of a live
// Neo4j instance.
type GraphStore interface {
	AllFunctionIDs(ctx context.Context) ([]string, error)
	AllFileIDs(ctx context.Context) ([]string, error)
	FoldersDeepestFirst(ctx context.Context) ([]string, error)
	ProjectID(ctx context.Context) (string, error)

	FunctionBody(ctx context.Context, id string) (code, fileID string, err error)
	SetCodeSummary(ctx context.Context, id, summary string) error
	CodeSummary(ctx context.Context, id string) (string, error)

	Callers(ctx context.Context, id string) ([]string, error)
	Callees(ctx context.Context, id string) ([]string, error)
	SetContextSummary(ctx context.Context, id, summary string) error
	ContextSummary(ctx context.Context, id string) (string, error)

	FunctionIDsInFile(ctx context.Context, fileID string) ([]string, error)
	SetFileSummary(ctx context.Context, fileID, summary string) error

	ChildIDs(ctx context.Context, parentID string) ([]string, error)
	SummaryOf(ctx context.Context, id string) (string, error)
	SetFolderSummary(ctx context.Context, folderID, summary string) error
	SetProjectSummary(ctx context.Context, projectID, summary string) error

	FileOf(ctx context.Context, functionID string) (string, error)
	AncestorFolders(ctx context.Context, fileID string) ([]FolderRef, error)

	NodesNeedingEmbedding(ctx context.Context) ([]EmbeddingTarget, error)
	SetEmbedding(ctx context.Context, id, label string, vector []float32) error
}

// Neo4jStore implements GraphStore against a live database, using the
// driver's high-level ExecuteQuery helper rather than manual session
// bookkeeping since every query here is a single eagerly-collected read or
// write with no multi-statement transaction needed.
type Neo4jStore struct {
	driver neo4j.DriverWithContext
}

// NewNeo4jStore wraps driver for RAG enrichment queries.
func NewNeo4jStore(driver neo4j.DriverWithContext) *Neo4jStore {
	return &Neo4jStore{driver: driver}
}

func (s *Neo4jStore) query(ctx context.Context, cypher string, params map[string]any) (*neo4j.EagerResult, error) {
	result, err := neo4j.ExecuteQuery(ctx, s.driver, cypher, params, neo4j.EagerResultTransformer)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	return result, nil
}

func stringColumn(result *neo4j.EagerResult, key string) []string {
	out := make([]string, 0, len(result.Records))
	for _, rec := range result.Records {
		if v, ok := rec.Get(key); ok && v != nil {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
	}
	return out
}

func (s *Neo4jStore) AllFunctionIDs(ctx context.Context) ([]string, error) {
	result, err := s.query(ctx, `MATCH (fn:FUNCTION) RETURN fn.id AS id`, nil)
	if err != nil {
		return nil, err
	}
	return stringColumn(result, "id"), nil
}

func (s *Neo4jStore) AllFileIDs(ctx context.Context) ([]string, error) {
	result, err := s.query(ctx, `MATCH (f:FILE) RETURN f.id AS id`, nil)
	if err != nil {
		return nil, err
	}
	return stringColumn(result, "id"), nil
}

// FoldersDeepestFirst orders folders by path depth descending, so a
// sequential pass never rolls a parent up before its children.
func (s *Neo4jStore) FoldersDeepestFirst(ctx context.Context) ([]string, error) {
	result, err := s.query(ctx, `MATCH (f:FOLDER) RETURN f.id AS id, f.path AS path`, nil)
	if err != nil {
		return nil, err
	}
	type row struct {
		id    string
		depth int
	}
	rows := make([]row, 0, len(result.Records))
	for _, rec := range result.Records {
		id, _ := rec.Get("id")
		path, _ := rec.Get("path")
		idStr, _ := id.(string)
		pathStr, _ := path.(string)
		rows = append(rows, row{id: idStr, depth: pathDepth(pathStr)})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].depth > rows[j].depth })
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.id
	}
	return out, nil
}

func pathDepth(path string) int {
	depth := 1
	for _, c := range path {
		if c == '/' {
			depth++
		}
	}
	return depth
}

func (s *Neo4jStore) ProjectID(ctx context.Context) (string, error) {
	result, err := s.query(ctx, `MATCH (p:PROJECT) RETURN p.id AS id LIMIT 1`, nil)
	if err != nil {
		return "", err
	}
	ids := stringColumn(result, "id")
	if len(ids) == 0 {
		return "", fmt.Errorf("no PROJECT node found")
	}
	return ids[0], nil
}

// FunctionBody returns the FUNCTION node's stored documentation and
// signature, joined, as the code text, plus its defining file's id. The
// function's body source text is not read.
func (s *Neo4jStore) FunctionBody(ctx context.Context, id string) (string, string, error) {
	result, err := s.query(ctx, `
MATCH (fn:FUNCTION {id: $id})
OPTIONAL MATCH (file:FILE)-[:DEFINES]->(fn)
RETURN fn.signature AS signature, fn.documentation AS documentation, file.id AS file_id`,
		map[string]any{"id": id})
	if err != nil {
		return "", "", err
	}
	if len(result.Records) == 0 {
		return "", "", fmt.Errorf("function %s not found", id)
	}
	rec := result.Records[0]
	sig, _ := rec.Get("signature")
	doc, _ := rec.Get("documentation")
	fileID, _ := rec.Get("file_id")
	sigStr, _ := sig.(string)
	docStr, _ := doc.(string)
	fileIDStr, _ := fileID.(string)
	code := sigStr
	if docStr != "" {
		code = docStr + "\n" + sigStr
	}
	return code, fileIDStr, nil
}

func (s *Neo4jStore) SetCodeSummary(ctx context.Context, id, summary string) error {
	_, err := s.query(ctx, `
MATCH (fn:FUNCTION {id: $id})
SET fn.code_summary = $summary, fn.summary_embedding = null`,
		map[string]any{"id": id, "summary": summary})
	return err
}

func (s *Neo4jStore) CodeSummary(ctx context.Context, id string) (string, error) {
	return s.scalarStringProperty(ctx, `MATCH (fn:FUNCTION {id: $id}) RETURN fn.code_summary AS v`, id)
}

func (s *Neo4jStore) Callers(ctx context.Context, id string) ([]string, error) {
	result, err := s.query(ctx, `MATCH (caller:FUNCTION)-[:CALLS]->(fn:FUNCTION {id: $id}) RETURN DISTINCT caller.id AS id`, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	return stringColumn(result, "id"), nil
}

func (s *Neo4jStore) Callees(ctx context.Context, id string) ([]string, error) {
	result, err := s.query(ctx, `MATCH (fn:FUNCTION {id: $id})-[:CALLS]->(callee:FUNCTION) RETURN DISTINCT callee.id AS id`, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	return stringColumn(result, "id"), nil
}

func (s *Neo4jStore) SetContextSummary(ctx context.Context, id, summary string) error {
	_, err := s.query(ctx, `
MATCH (fn:FUNCTION {id: $id})
SET fn.context_summary = $summary, fn.summary_embedding = null`,
		map[string]any{"id": id, "summary": summary})
	return err
}

func (s *Neo4jStore) ContextSummary(ctx context.Context, id string) (string, error) {
	return s.scalarStringProperty(ctx, `MATCH (fn:FUNCTION {id: $id}) RETURN fn.context_summary AS v`, id)
}

func (s *Neo4jStore) FunctionIDsInFile(ctx context.Context, fileID string) ([]string, error) {
	result, err := s.query(ctx, `MATCH (:FILE {id: $id})-[:DEFINES]->(fn:FUNCTION) RETURN fn.id AS id`, map[string]any{"id": fileID})
	if err != nil {
		return nil, err
	}
	return stringColumn(result, "id"), nil
}

func (s *Neo4jStore) SetFileSummary(ctx context.Context, fileID, summary string) error {
	_, err := s.query(ctx, `
MATCH (f:FILE {id: $id})
SET f.summary = $summary, f.summary_embedding = null`,
		map[string]any{"id": fileID, "summary": summary})
	return err
}

func (s *Neo4jStore) ChildIDs(ctx context.Context, parentID string) ([]string, error) {
	result, err := s.query(ctx, `MATCH (p {id: $id})-[:CONTAINS]->(c) RETURN c.id AS id`, map[string]any{"id": parentID})
	if err != nil {
		return nil, err
	}
	return stringColumn(result, "id"), nil
}

func (s *Neo4jStore) SummaryOf(ctx context.Context, id string) (string, error) {
	return s.scalarStringProperty(ctx, `MATCH (n {id: $id}) RETURN n.summary AS v`, id)
}

func (s *Neo4jStore) SetFolderSummary(ctx context.Context, folderID, summary string) error {
	_, err := s.query(ctx, `
MATCH (f:FOLDER {id: $id})
SET f.summary = $summary, f.summary_embedding = null`,
		map[string]any{"id": folderID, "summary": summary})
	return err
}

func (s *Neo4jStore) SetProjectSummary(ctx context.Context, projectID, summary string) error {
	_, err := s.query(ctx, `
MATCH (p:PROJECT {id: $id})
SET p.summary = $summary, p.summary_embedding = null`,
		map[string]any{"id": projectID, "summary": summary})
	return err
}

func (s *Neo4jStore) FileOf(ctx context.Context, functionID string) (string, error) {
	result, err := s.query(ctx, `MATCH (f:FILE)-[:DEFINES]->(:FUNCTION {id: $id}) RETURN f.id AS id LIMIT 1`, map[string]any{"id": functionID})
	if err != nil {
		return "", err
	}
	ids := stringColumn(result, "id")
	if len(ids) == 0 {
		return "", fmt.Errorf("no defining file for function %s", functionID)
	}
	return ids[0], nil
}

func (s *Neo4jStore) AncestorFolders(ctx context.Context, fileID string) ([]FolderRef, error) {
	result, err := s.query(ctx, `
MATCH (f:FILE {id: $id})<-[:CONTAINS*1..]-(ancestor:FOLDER)
RETURN ancestor.id AS id, ancestor.path AS path`, map[string]any{"id": fileID})
	if err != nil {
		return nil, err
	}
	out := make([]FolderRef, 0, len(result.Records))
	for _, rec := range result.Records {
		id, _ := rec.Get("id")
		path, _ := rec.Get("path")
		idStr, _ := id.(string)
		pathStr, _ := path.(string)
		out = append(out, FolderRef{ID: idStr, Depth: pathDepth(pathStr)})
	}
	return out, nil
}

func (s *Neo4jStore) NodesNeedingEmbedding(ctx context.Context) ([]EmbeddingTarget, error) {
	result, err := s.query(ctx, `
MATCH (n)
WHERE (n:FUNCTION OR n:FILE OR n:FOLDER OR n:PROJECT)
  AND n.summary_embedding IS NULL
  AND (n.summary IS NOT NULL OR n.context_summary IS NOT NULL)
RETURN n.id AS id, labels(n) AS labels, coalesce(n.context_summary, n.summary) AS summary`, nil)
	if err != nil {
		return nil, err
	}
	out := make([]EmbeddingTarget, 0, len(result.Records))
	for _, rec := range result.Records {
		id, _ := rec.Get("id")
		labelsVal, _ := rec.Get("labels")
		summary, _ := rec.Get("summary")
		idStr, _ := id.(string)
		summaryStr, _ := summary.(string)
		label := ""
		if labels, ok := labelsVal.([]any); ok {
			for _, l := range labels {
				if ls, ok := l.(string); ok {
					label = ls
					break
				}
			}
		}
		if summaryStr == "" {
			continue
		}
		out = append(out, EmbeddingTarget{ID: idStr, Label: label, Summary: summaryStr})
	}
	return out, nil
}

func (s *Neo4jStore) SetEmbedding(ctx context.Context, id, label string, vector []float32) error {
	cypher := fmt.Sprintf(`MATCH (n:%s {id: $id}) SET n.summary_embedding = $vector`, label)
	_, err := s.query(ctx, cypher, map[string]any{"id": id, "vector": vector})
	return err
}

func (s *Neo4jStore) scalarStringProperty(ctx context.Context, cypher, id string) (string, error) {
	result, err := s.query(ctx, cypher, map[string]any{"id": id})
	if err != nil {
		return "", err
	}
	if len(result.Records) == 0 {
		return "", nil
	}
	v, ok := result.Records[0].Get("v")
	if !ok || v == nil {
		return "", nil
	}
	s2, _ := v.(string)
	return s2, nil
}
