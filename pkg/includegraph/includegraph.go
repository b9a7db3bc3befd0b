// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package includegraph computes the set of files transitively impacted by a
// change, via reverse breadth-first search over #include edges: if A
// includes B and B changes, A is impacted too, recursively.
package includegraph

import "context"

// InMemoryIncludeGraph is the adjacency-list form used by the Updater and by
// ad-hoc compile-time-impact analysis, built once from a full parse.
type InMemoryIncludeGraph struct {
	// includedBy maps a file to the set of files that directly include it.
	includedBy map[string]map[string]bool
}

// NewInMemoryIncludeGraph builds the reverse adjacency list from a flat list
// of (including, included) relations.
func NewInMemoryIncludeGraph(relations [][2]string) *InMemoryIncludeGraph {
	g := &InMemoryIncludeGraph{includedBy: make(map[string]map[string]bool)}
	for _, rel := range relations {
		including, included := rel[0], rel[1]
		if g.includedBy[included] == nil {
			g.includedBy[included] = make(map[string]bool)
		}
		g.includedBy[included][including] = true
	}
	return g
}

// ImpactedFiles returns every file transitively reachable by walking
// includedBy edges backward from changed, cycle-aware via a visited set so a
// mutual-include cycle terminates instead of looping forever. changed files
// themselves are included in the result.
func (g *InMemoryIncludeGraph) ImpactedFiles(changed []string) []string {
	visited := make(map[string]bool)
	queue := append([]string(nil), changed...)
	for _, f := range changed {
		visited[f] = true
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for includer := range g.includedBy[cur] {
			if visited[includer] {
				continue
			}
			visited[includer] = true
			queue = append(queue, includer)
		}
	}
	out := make([]string, 0, len(visited))
	for f := range visited {
		out = append(out, f)
	}
	return out
}

// GraphStore is the slice of graphingest.Session/Driver the materialized
// variant needs to traverse INCLUDES edges already written to Neo4j,
// narrowed to keep this package decoupled from the driver package.
type GraphStore interface {
	// IncludersOf returns the project-relative paths of the FILE nodes with
	// an outgoing INCLUDES edge to the file at path fileID (i.e. the files
	// that directly include it).
	IncludersOf(ctx context.Context, fileID string) ([]string, error)
}

// Materialized computes impacted-file sets against a live graph database
// instead of an in-memory snapshot, for callers that only have file paths
// from a partial (incremental) parse.
type Materialized struct {
	store GraphStore
}

// NewMaterialized wraps store for graph-backed impact queries.
func NewMaterialized(store GraphStore) *Materialized {
	return &Materialized{store: store}
}

// ImpactedFiles performs the same reverse-BFS as InMemoryIncludeGraph, one
// IncludersOf call per visited file.
func (m *Materialized) ImpactedFiles(ctx context.Context, changed []string) ([]string, error) {
	visited := make(map[string]bool)
	queue := append([]string(nil), changed...)
	for _, f := range changed {
		visited[f] = true
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		includers, err := m.store.IncludersOf(ctx, cur)
		if err != nil {
			return nil, err
		}
		for _, includer := range includers {
			if visited[includer] {
				continue
			}
			visited[includer] = true
			queue = append(queue, includer)
		}
	}
	out := make([]string, 0, len(visited))
	for f := range visited {
		out = append(out, f)
	}
	return out, nil
}
