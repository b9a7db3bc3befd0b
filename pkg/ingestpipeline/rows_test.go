// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package ingestpipeline

import (
	"testing"

	"github.com/kraklabs/codegraph/pkg/graphmodel"
	"github.com/kraklabs/codegraph/pkg/indexparser"
	"github.com/kraklabs/codegraph/pkg/sourceparser"
)

func TestBuild_FoldersFilesFunctionsAndDefines(t *testing.T) {
	table := indexparser.NewSymbolTable()
	table.Symbols["F1"] = &graphmodel.Symbol{
		ID:   "F1",
		Name: "helper",
		Kind: graphmodel.KindFunction,
		Definition: &graphmodel.Location{
			FileURI: "/proj/src/util/helper.c",
			Start:   graphmodel.Position{Line: 3, Column: 0},
			End:     graphmodel.Position{Line: 7, Column: 1},
		},
	}
	table.Symbols["S1"] = &graphmodel.Symbol{
		ID:   "S1",
		Name: "widget",
		Kind: graphmodel.KindStruct,
		Definition: &graphmodel.Location{
			FileURI: "/proj/src/util/helper.c",
			Start:   graphmodel.Position{Line: 1, Column: 0},
		},
	}

	rows := Build("/proj", "proj-id", table, sourceparser.Result{}, 2)

	if len(rows.Files) != 1 || rows.Files[0].Path != "src/util/helper.c" {
		t.Fatalf("unexpected files: %+v", rows.Files)
	}
	if rows.Files[0].Language != "c" {
		t.Errorf("expected c language, got %s", rows.Files[0].Language)
	}
	wantFolders := map[string]bool{"src": true, "src/util": true}
	if len(rows.Folders) != len(wantFolders) {
		t.Fatalf("unexpected folders: %+v", rows.Folders)
	}
	for _, f := range rows.Folders {
		if !wantFolders[f.Path] {
			t.Errorf("unexpected folder %s", f.Path)
		}
	}
	if len(rows.Functions) != 1 || rows.Functions[0].ID != "F1" {
		t.Fatalf("unexpected functions: %+v", rows.Functions)
	}
	if len(rows.DataStructures) != 1 || rows.DataStructures[0].ID != "S1" {
		t.Fatalf("unexpected data structures: %+v", rows.DataStructures)
	}
	if len(rows.Defines) != 2 {
		t.Fatalf("expected 2 defines rows, got %d", len(rows.Defines))
	}
	for _, d := range rows.Defines {
		if d.FileID != rows.Files[0].ID {
			t.Errorf("defines row %+v does not point at the only file", d)
		}
	}
}

func TestBuild_IncludesDropExternalPaths(t *testing.T) {
	table := indexparser.NewSymbolTable()
	result := sourceparser.Result{
		IncludeRelations: []graphmodel.IncludeRelation{
			{Including: "/proj/a.c", Included: "/proj/b.h"},
			{Including: "/proj/a.c", Included: "/usr/include/stdio.h"},
			{Including: "/proj/a.c", Included: "/proj/b.h"}, // duplicate
		},
	}
	table.Symbols["fn"] = &graphmodel.Symbol{
		ID: "fn", Name: "fn", Kind: graphmodel.KindFunction,
		Definition: &graphmodel.Location{FileURI: "/proj/a.c"},
	}

	rows := Build("/proj", "proj-id", table, result, 1)

	// b.h carries no symbol but still appears in an #include edge, so it
	// must still get a FILE node and the edge must survive (deduplicated).
	// stdio.h resolves outside the project root and is dropped.
	if len(rows.Includes) != 1 {
		t.Fatalf("expected exactly one deduplicated in-project include edge, got %+v", rows.Includes)
	}

	var bFileID string
	for _, f := range rows.Files {
		if f.Path == "b.h" {
			bFileID = f.ID
		}
	}
	if bFileID == "" {
		t.Fatalf("expected b.h to get a FILE node despite having no symbols, got %+v", rows.Files)
	}
	if rows.Includes[0].IncludedID != bFileID {
		t.Errorf("expected include edge to point at b.h's FILE node, got %+v", rows.Includes[0])
	}
}
