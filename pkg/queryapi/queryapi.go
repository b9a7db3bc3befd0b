// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package queryapi executes ad-hoc Cypher and semantic (embedding)
// searches against a built graph, backing the codegraph-query entry point.
package queryapi

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/kraklabs/codegraph/pkg/embedding"
)

// Client runs read queries against a graph already populated by a build or
// update run.
type Client struct {
	driver neo4j.DriverWithContext
}

// New wraps an already-connected driver for querying.
func New(driver neo4j.DriverWithContext) *Client {
	return &Client{driver: driver}
}

// Row is one record from a Cypher query, keyed by return alias.
type Row map[string]any

// Cypher runs an arbitrary read-only query and returns every row. It is the
// direct implementation of the CLI's pass-through query mode.
func (c *Client) Cypher(ctx context.Context, query string, params map[string]any) ([]Row, error) {
	result, err := neo4j.ExecuteQuery(ctx, c.driver, query, params, neo4j.EagerResultTransformer)
	if err != nil {
		return nil, fmt.Errorf("cypher query: %w", err)
	}
	rows := make([]Row, 0, len(result.Records))
	for _, rec := range result.Records {
		row := make(Row, len(result.Keys))
		for _, key := range result.Keys {
			v, _ := rec.Get(key)
			row[key] = v
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// SemanticMatch is one nearest-neighbor hit against a node label's
// summary_embedding vector index.
type SemanticMatch struct {
	ID       string
	Label    string
	Summary  string
	Score    float64
	Path     string
}

// nodeLabelToIndex mirrors the FUNCTION, FILE and FOLDER vector index names
// graphingest creates on the summary_embedding property (spec.md §3's vector
// index list). graphingest also creates a PROJECT index, which semantic
// search does not use.
var nodeLabelToIndex = map[string]string{
	"FUNCTION": "FUNCTION_summary_embedding",
	"FILE":     "FILE_summary_embedding",
	"FOLDER":   "FOLDER_summary_embedding",
}

// SemanticSearch embeds queryText with provider and returns the topK nearest
// nodes of the given label by cosine similarity over summary_embedding.
func (c *Client) SemanticSearch(ctx context.Context, provider embedding.Provider, label, queryText string, topK int) ([]SemanticMatch, error) {
	indexName, ok := nodeLabelToIndex[label]
	if !ok {
		return nil, fmt.Errorf("unsupported label for semantic search: %s (expected FUNCTION, FILE, or FOLDER)", label)
	}
	if topK <= 0 {
		topK = 10
	}

	vector, err := provider.Embed(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("embed query text: %w", err)
	}

	cypher := `
CALL db.index.vector.queryNodes($indexName, $topK, $vector)
YIELD node, score
RETURN node.id AS id, node.summary AS summary, node.path AS path, score AS score`
	result, err := neo4j.ExecuteQuery(ctx, c.driver, cypher, map[string]any{
		"indexName": indexName,
		"topK":      topK,
		"vector":    vector,
	}, neo4j.EagerResultTransformer)
	if err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}

	matches := make([]SemanticMatch, 0, len(result.Records))
	for _, rec := range result.Records {
		id, _ := rec.Get("id")
		summary, _ := rec.Get("summary")
		path, _ := rec.Get("path")
		score, _ := rec.Get("score")
		idStr, _ := id.(string)
		summaryStr, _ := summary.(string)
		pathStr, _ := path.(string)
		scoreF, _ := score.(float64)
		matches = append(matches, SemanticMatch{ID: idStr, Label: label, Summary: summaryStr, Score: scoreF, Path: pathStr})
	}
	return matches, nil
}
