// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package spanmatcher attaches a body span to every function symbol whose
// definition position matches a span produced by a SourceParser, so the
// containment-based call graph builder has something to test references
// against.
package spanmatcher

import (
	"fmt"

	"github.com/kraklabs/codegraph/pkg/graphmodel"
)

// spanKey identifies a span by (file_uri, name, start_line, start_col),
// matching a function symbol's (definition.file_uri, name, start_line,
// start_column).
type spanKey struct {
	fileURI string
	name    string
	line    int
	col     int
}

func keyFor(fileURI, name string, pos graphmodel.Position) spanKey {
	return spanKey{fileURI: fileURI, name: name, line: pos.Line, col: pos.Column}
}

// Match sets symbol.BodyLocation for every function symbol whose
// (name, definition.file_uri, definition.start_line, definition.start_column)
// matches a span's (name, file_uri, name_location.start_line,
// name_location.start_column). Symbols left unmatched keep a nil
// BodyLocation and are excluded from containment-based call attribution.
// Returns the number of symbols matched.
func Match(symbols map[string]*graphmodel.Symbol, spans []graphmodel.FileFunctionSpans) int {
	index := make(map[spanKey]graphmodel.RelativeLocation)
	for _, file := range spans {
		for _, fn := range file.Functions {
			index[keyFor(file.FileURI, fn.Name, fn.NameLocation.Start)] = fn.BodyLocation
		}
	}

	matched := 0
	for _, sym := range symbols {
		if !sym.IsFunction() || sym.Definition == nil {
			continue
		}
		key := keyFor(sym.Definition.FileURI, sym.Name, sym.Definition.Start)
		if body, ok := index[key]; ok {
			loc := body
			sym.BodyLocation = &loc
			matched++
		}
	}
	return matched
}

// Stats reports coverage for logging.
type Stats struct {
	Total   int
	Matched int
}

func (s Stats) String() string {
	return fmt.Sprintf("%d/%d function symbols matched a body span", s.Matched, s.Total)
}

// MatchWithStats is Match plus a summary, for callers that want to log
// coverage.
func MatchWithStats(symbols map[string]*graphmodel.Symbol, spans []graphmodel.FileFunctionSpans) Stats {
	total := 0
	for _, sym := range symbols {
		if sym.IsFunction() {
			total++
		}
	}
	matched := Match(symbols, spans)
	return Stats{Total: total, Matched: matched}
}
