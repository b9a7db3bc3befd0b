// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ingestpipeline converts a parsed SymbolTable plus a SourceParser
// result into the row types graphingest.Ingestor writes to Neo4j. Both the
// full build and the Updater's mini-table reingest share this conversion so
// the two never drift: a full build is simply this pipeline run over every
// symbol, and an incremental update runs it over the dirty subset only.
package ingestpipeline

import (
	"path/filepath"
	"sort"

	"github.com/kraklabs/codegraph/pkg/callgraph"
	"github.com/kraklabs/codegraph/pkg/graphingest"
	"github.com/kraklabs/codegraph/pkg/graphmodel"
	"github.com/kraklabs/codegraph/pkg/indexparser"
	"github.com/kraklabs/codegraph/pkg/pathmodel"
	"github.com/kraklabs/codegraph/pkg/sourceparser"
	"github.com/kraklabs/codegraph/pkg/spanmatcher"
)

// Rows is the full set of graphingest rows derived from one SymbolTable, plus
// the call-graph stats the caller typically wants to log.
type Rows struct {
	Folders        []graphingest.FolderRow
	Files          []graphingest.FileRow
	Functions      []graphingest.FunctionRow
	DataStructures []graphingest.DataStructureRow
	Defines        []graphingest.DefinesRow
	Calls          []graphingest.CallsRow
	Includes       []graphingest.IncludesRow
	SpanStats      spanmatcher.Stats
	CallStats      callgraph.Stats
}

func languageFor(relPath string) string {
	switch filepath.Ext(relPath) {
	case ".c":
		return "c"
	case ".h":
		return "c-header"
	case ".cc", ".cpp", ".cxx":
		return "cpp"
	case ".hpp", ".hxx":
		return "cpp-header"
	default:
		return "unknown"
	}
}

func folderNodeID(relPath string) string { return pathmodel.StableID("folder", relPath) }
func fileNodeID(relPath string) string   { return pathmodel.StableID("file", relPath) }

// withIncludeFiles extends disc's file/folder sets with every in-project
// endpoint of relations that Discover's symbol-only walk missed: a header
// carrying zero symbols (pure macros, typedefs, forward declarations) still
// needs a FILE node when it appears in an #include edge, per spec.md §8's
// boundary case. System/out-of-tree headers still fall out via Normalize.
func withIncludeFiles(projectRoot string, disc pathmodel.Discovery, relations []graphmodel.IncludeRelation) (files, folders []string) {
	fileSet := make(map[string]bool, len(disc.Files))
	for _, f := range disc.Files {
		fileSet[f] = true
	}
	folderSet := make(map[string]bool, len(disc.Folders))
	for _, f := range disc.Folders {
		folderSet[f] = true
	}

	for _, inc := range relations {
		for _, raw := range [2]string{inc.Including, inc.Included} {
			rel, ok := pathmodel.Normalize(projectRoot, raw)
			if !ok || fileSet[rel] {
				continue
			}
			fileSet[rel] = true
			for _, anc := range pathmodel.Ancestors(rel) {
				folderSet[anc] = true
			}
		}
	}

	files = make([]string, 0, len(fileSet))
	for f := range fileSet {
		files = append(files, f)
	}
	sort.Strings(files)

	folders = make([]string, 0, len(folderSet))
	for f := range folderSet {
		folders = append(folders, f)
	}
	sort.Strings(folders)
	return files, folders
}

// Build walks table and parseResult and produces every row graphingest needs
// to write the corresponding slice of the graph, attaching body spans and
// deriving the call graph along the way.
func Build(projectRoot, projectID string, table *indexparser.SymbolTable, parseResult sourceparser.Result, workers int) Rows {
	disc := pathmodel.Discover(projectRoot, table.Symbols)
	allFiles, allFolders := withIncludeFiles(projectRoot, disc, parseResult.IncludeRelations)

	parentID := func(relPath string) string {
		parent := pathmodel.Parent(relPath)
		if parent == "" {
			return projectID
		}
		return folderNodeID(parent)
	}

	folders := make([]graphingest.FolderRow, 0, len(allFolders))
	for _, f := range allFolders {
		folders = append(folders, graphingest.FolderRow{ID: folderNodeID(f), Path: f, ParentID: parentID(f)})
	}

	files := make([]graphingest.FileRow, 0, len(allFiles))
	fileIDByRel := make(map[string]string, len(allFiles))
	for _, f := range allFiles {
		id := fileNodeID(f)
		fileIDByRel[f] = id
		files = append(files, graphingest.FileRow{ID: id, Path: f, Language: languageFor(f), FolderID: parentID(f)})
	}

	var functions []graphingest.FunctionRow
	var dataStructures []graphingest.DataStructureRow
	var defines []graphingest.DefinesRow

	for _, sym := range table.Symbols {
		if sym.Definition == nil {
			continue
		}
		rel, ok := pathmodel.Normalize(projectRoot, sym.Definition.FileURI)
		if !ok {
			continue
		}
		fileID, ok := fileIDByRel[rel]
		if !ok {
			continue
		}
		switch {
		case sym.IsFunction():
			functions = append(functions, graphingest.FunctionRow{
				ID:             sym.ID,
				Name:           sym.Name,
				Signature:      sym.Signature,
				ReturnType:     sym.ReturnType,
				Documentation:  sym.Documentation,
				TemplateParams: sym.TemplateParams,
				// FileURI is stored as the project-relative path, not the
				// raw (possibly absolute) source location, so the Updater's
				// purge step can match it against the same paths git diff
				// reports.
				FileURI:     rel,
				StartLine:   sym.Definition.Start.Line,
				StartColumn: sym.Definition.Start.Column,
				EndLine:     sym.Definition.End.Line,
				EndColumn:   sym.Definition.End.Column,
			})
			defines = append(defines, graphingest.DefinesRow{FileID: fileID, SymbolID: sym.ID})
		case sym.Kind.IsDataStructure():
			dataStructures = append(dataStructures, graphingest.DataStructureRow{
				ID: sym.ID, Name: sym.Name, Kind: string(sym.Kind), FileURI: rel,
			})
			defines = append(defines, graphingest.DefinesRow{FileID: fileID, SymbolID: sym.ID})
		}
	}

	spanStats := spanmatcher.MatchWithStats(table.Symbols, parseResult.FunctionSpans)
	callRelations, callStats := callgraph.Build(table.Symbols, table.HasContainerField, table.HasCallKind, workers)

	calls := make([]graphingest.CallsRow, 0, len(callRelations))
	for _, c := range callRelations {
		calls = append(calls, graphingest.CallsRow{
			CallerID: c.CallerID, CalleeID: c.CalleeID,
			Line: c.CallLocation.Start.Line, Column: c.CallLocation.Start.Column,
		})
	}

	includes := includeRows(projectRoot, parseResult.IncludeRelations, fileIDByRel)

	return Rows{
		Folders: folders, Files: files, Functions: functions, DataStructures: dataStructures,
		Defines: defines, Calls: calls, Includes: includes, SpanStats: spanStats, CallStats: callStats,
	}
}

// includeRows resolves each SourceParser-reported include to two
// project-relative files, dropping pairs where either side falls outside the
// project (system headers, generated includes from outside the tree) and
// de-duplicating repeated #include lines across translation units.
func includeRows(projectRoot string, relations []graphmodel.IncludeRelation, fileIDByRel map[string]string) []graphingest.IncludesRow {
	type pair struct{ including, included string }
	seen := make(map[pair]bool)
	var out []graphingest.IncludesRow
	for _, inc := range relations {
		includingRel, ok1 := pathmodel.Normalize(projectRoot, inc.Including)
		includedRel, ok2 := pathmodel.Normalize(projectRoot, inc.Included)
		if !ok1 || !ok2 {
			continue
		}
		includingID, ok3 := fileIDByRel[includingRel]
		includedID, ok4 := fileIDByRel[includedRel]
		if !ok3 || !ok4 {
			continue
		}
		p := pair{includingRel, includedRel}
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, graphingest.IncludesRow{IncludingID: includingID, IncludedID: includedID})
	}
	return out
}
