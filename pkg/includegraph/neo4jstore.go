// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package includegraph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Neo4jStore answers IncludersOf directly against a live graph, one Cypher
// round trip per visited file. It shares the single process-wide driver
// instance the rest of the pipeline uses (§5's shared-resource policy).
type Neo4jStore struct {
	driver neo4j.DriverWithContext
}

// NewNeo4jStore wraps an already-connected driver for impact queries.
func NewNeo4jStore(driver neo4j.DriverWithContext) *Neo4jStore {
	return &Neo4jStore{driver: driver}
}

// IncludersOf returns the project-relative paths of FILE nodes with an
// outgoing INCLUDES edge to the FILE at fileID (a project-relative path,
// matching the caller's convention of walking the graph in path space
// rather than hashed-id space).
func (s *Neo4jStore) IncludersOf(ctx context.Context, fileID string) ([]string, error) {
	result, err := neo4j.ExecuteQuery(ctx, s.driver,
		`MATCH (a:FILE)-[:INCLUDES]->(b:FILE {path:$path}) RETURN a.path AS path`,
		map[string]any{"path": fileID},
		neo4j.EagerResultTransformer)
	if err != nil {
		return nil, fmt.Errorf("includers of %s: %w", fileID, err)
	}
	out := make([]string, 0, len(result.Records))
	for _, rec := range result.Records {
		v, _ := rec.Get("path")
		if p, ok := v.(string); ok {
			out = append(out, p)
		}
	}
	return out, nil
}
