// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package callgraph derives (caller, callee) edges from a symbol table,
// either from reference container ids when the index carries them, or by
// testing call-site locations for spatial containment inside parsed
// function bodies when it does not.
package callgraph

import (
	"sort"
	"sync"

	"github.com/kraklabs/codegraph/pkg/graphmodel"
)

// Stats summarizes a Build call for logging.
type Stats struct {
	Edges     int
	SelfCalls int
	Strategy  string
}

// Build derives call relations from symbols, selecting the algorithm based
// on hasContainerField. The containment-based algorithm runs over workers
// goroutines; the container-aware algorithm runs serially.
func Build(symbols map[string]*graphmodel.Symbol, hasContainerField, hasCallKind bool, workers int) ([]graphmodel.CallRelation, Stats) {
	if hasContainerField {
		edges := buildContainerAware(symbols)
		return edges, statsFor(edges, "container-aware")
	}
	edges := buildContainment(symbols, hasCallKind, workers)
	return edges, statsFor(edges, "containment-based")
}

func statsFor(edges []graphmodel.CallRelation, strategy string) Stats {
	self := 0
	for _, e := range edges {
		if e.CallerID == e.CalleeID {
			self++
		}
	}
	return Stats{Edges: len(edges), SelfCalls: self, Strategy: strategy}
}

// buildContainerAware emits CallRelation(container_id, S.id, r.location) for
// every call-kind reference of every function symbol S whose container is
// itself a function.
func buildContainerAware(symbols map[string]*graphmodel.Symbol) []graphmodel.CallRelation {
	var edges []graphmodel.CallRelation
	for _, s := range symbols {
		if !s.IsFunction() {
			continue
		}
		for _, r := range s.References {
			if !r.IsCall() {
				continue
			}
			container, ok := symbols[r.ContainerID]
			if !ok || !container.IsFunction() {
				continue
			}
			edges = append(edges, graphmodel.CallRelation{
				CallerID:     container.ID,
				CalleeID:     s.ID,
				CallLocation: r.Location,
			})
		}
	}
	return edges
}

// bodyEntry is one entry of a file's spatial index, sorted by start
// position.
type bodyEntry struct {
	body graphmodel.RelativeLocation
	sym  *graphmodel.Symbol
}

// spatialIndex maps file_uri -> bodies sorted by start line, for the
// containment-based fallback.
type spatialIndex map[string][]bodyEntry

func buildSpatialIndex(symbols map[string]*graphmodel.Symbol) spatialIndex {
	idx := make(spatialIndex)
	for _, s := range symbols {
		if !s.IsFunction() || s.BodyLocation == nil || s.Definition == nil {
			continue
		}
		idx[s.Definition.FileURI] = append(idx[s.Definition.FileURI], bodyEntry{body: *s.BodyLocation, sym: s})
	}
	for file := range idx {
		entries := idx[file]
		sort.Slice(entries, func(i, j int) bool {
			return entries[i].body.Start.Before(entries[j].body.Start)
		})
		idx[file] = entries
	}
	return idx
}

// findContainingBody returns the first body (in sorted start-position order)
// whose extent contains loc under the start-strict, end-inclusive
// containment predicate, per spec.md §4.D/§9. Every candidate body must
// start at or before loc, so a binary search bounds the scan to the prefix
// of entries with Start.AtOrBefore(loc.Start); "first match wins" means the
// smallest-start containing body, so the scan walks that prefix forward.
func findContainingBody(entries []bodyEntry, loc graphmodel.RelativeLocation) *graphmodel.Symbol {
	bound := sort.Search(len(entries), func(i int) bool {
		return entries[i].body.Start.After(loc.Start)
	})
	for i := 0; i < bound; i++ {
		if graphmodel.ContainsStrict(loc, entries[i].body) {
			return entries[i].sym
		}
	}
	return nil
}

// buildContainment builds the spatial index once, then attributes every
// spatial-candidate reference of every function symbol to the first
// containing body, in parallel over workers goroutines.
func buildContainment(symbols map[string]*graphmodel.Symbol, callKindAware bool, workers int) []graphmodel.CallRelation {
	idx := buildSpatialIndex(symbols)
	if workers < 1 {
		workers = 1
	}

	// Each job is a reference r belonging to symbol target's reference list;
	// r.Location is a call site somewhere in the source, and the function
	// whose body textually encloses that call site is the caller of target.
	type job struct {
		target *graphmodel.Symbol
		ref    graphmodel.Reference
	}
	var jobs []job
	for _, s := range symbols {
		if !s.IsFunction() {
			continue
		}
		for _, r := range s.References {
			if !graphmodel.IsSpatialCandidateKind(r.Kind, callKindAware) {
				continue
			}
			jobs = append(jobs, job{target: s, ref: r})
		}
	}

	jobCh := make(chan job)
	resultCh := make(chan graphmodel.CallRelation, len(jobs))
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobCh {
				entries, ok := idx[j.ref.Location.FileURI]
				if !ok {
					continue
				}
				enclosing := findContainingBody(entries, j.ref.Location.Relative())
				if enclosing == nil {
					continue
				}
				resultCh <- graphmodel.CallRelation{
					CallerID:     enclosing.ID,
					CalleeID:     j.target.ID,
					CallLocation: j.ref.Location,
				}
			}
		}()
	}

	go func() {
		for _, j := range jobs {
			jobCh <- j
		}
		close(jobCh)
	}()
	go func() { wg.Wait(); close(resultCh) }()

	var edges []graphmodel.CallRelation
	for e := range resultCh {
		edges = append(edges, e)
	}
	return edges
}
