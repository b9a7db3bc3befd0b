// Copyright 2026 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package indexparser streams a compiler-indexer's multi-document YAML
// symbol index, parses it in parallel chunks, cross-links reference
// documents to the symbols they target, and caches the result so repeat
// builds over an unchanged index skip parsing entirely.
package indexparser

import "github.com/kraklabs/codegraph/pkg/graphmodel"

// SymbolTable is the parsed, cross-linked output of an index: every symbol
// keyed by its opaque ID, plus a derived view restricted to function-like
// symbols and the two index-capability flags the rest of the pipeline
// branches on.
type SymbolTable struct {
	Symbols   map[string]*graphmodel.Symbol
	Functions map[string]*graphmodel.Symbol

	// HasContainerField is true the first time build_cross_references sees a
	// non-empty, non-sentinel Reference.ContainerID.
	HasContainerField bool

	// HasCallKind is true the first time a reference Kind carries the
	// dedicated call bit (>= 16), or whenever HasContainerField is set.
	HasCallKind bool
}

// NewSymbolTable returns an empty, ready-to-populate table.
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{
		Symbols:   make(map[string]*graphmodel.Symbol),
		Functions: make(map[string]*graphmodel.Symbol),
	}
}

// deriveFunctions rebuilds the Functions view from Symbols.
func (t *SymbolTable) deriveFunctions() {
	t.Functions = make(map[string]*graphmodel.Symbol, len(t.Symbols))
	for id, sym := range t.Symbols {
		if sym.IsFunction() {
			t.Functions[id] = sym
		}
	}
}

// CreateSubset produces a logically independent table containing exactly the
// symbols named in keepIDs. References are kept intact; a reference whose
// ContainerID points outside the subset simply becomes a dangling string,
// which is fine since downstream consumers only ever look up container ids
// that happen to be present. The two capability flags are carried over from
// the parent table, per spec.
func (t *SymbolTable) CreateSubset(keepIDs map[string]bool) *SymbolTable {
	sub := NewSymbolTable()
	sub.HasContainerField = t.HasContainerField
	sub.HasCallKind = t.HasCallKind

	for id := range keepIDs {
		if sym, ok := t.Symbols[id]; ok {
			sub.Symbols[id] = sym
		}
	}
	sub.deriveFunctions()
	return sub
}

// Stats summarizes a table for logging.
type Stats struct {
	Symbols           int
	Functions         int
	HasContainerField bool
	HasCallKind       bool
}

// Stats returns summary counters for t.
func (t *SymbolTable) Stats() Stats {
	return Stats{
		Symbols:           len(t.Symbols),
		Functions:         len(t.Functions),
		HasContainerField: t.HasContainerField,
		HasCallKind:       t.HasCallKind,
	}
}
