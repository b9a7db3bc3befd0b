// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package spanmatcher

import (
	"testing"

	"github.com/kraklabs/codegraph/pkg/graphmodel"
)

func TestMatch_AttachesBodyLocation(t *testing.T) {
	defLoc := graphmodel.Location{
		FileURI: "file:///proj/src/only.c",
		Start:   graphmodel.Position{Line: 9, Column: 0},
		End:     graphmodel.Position{Line: 19, Column: 1},
	}
	foo := &graphmodel.Symbol{ID: "A", Name: "foo", Kind: graphmodel.KindFunction, Definition: &defLoc}

	spans := []graphmodel.FileFunctionSpans{
		{
			FileURI: "file:///proj/src/only.c",
			Functions: []graphmodel.FunctionSpan{
				{
					Name:         "foo",
					NameLocation: graphmodel.RelativeLocation{Start: graphmodel.Position{Line: 9, Column: 0}},
					BodyLocation: graphmodel.RelativeLocation{
						Start: graphmodel.Position{Line: 9, Column: 0},
						End:   graphmodel.Position{Line: 19, Column: 1},
					},
				},
			},
		},
	}

	symbols := map[string]*graphmodel.Symbol{"A": foo}
	matched := Match(symbols, spans)
	if matched != 1 {
		t.Fatalf("expected 1 match, got %d", matched)
	}
	if foo.BodyLocation == nil {
		t.Fatalf("expected BodyLocation to be set")
	}
	if foo.BodyLocation.End.Line != 19 {
		t.Errorf("got end line %d, want 19", foo.BodyLocation.End.Line)
	}
}

func TestMatch_UnmatchedSymbolStaysNil(t *testing.T) {
	defLoc := graphmodel.Location{FileURI: "file:///proj/src/only.c", Start: graphmodel.Position{Line: 100, Column: 0}}
	foo := &graphmodel.Symbol{ID: "A", Name: "foo", Kind: graphmodel.KindFunction, Definition: &defLoc}
	symbols := map[string]*graphmodel.Symbol{"A": foo}

	matched := Match(symbols, nil)
	if matched != 0 {
		t.Fatalf("expected 0 matches, got %d", matched)
	}
	if foo.BodyLocation != nil {
		t.Errorf("expected BodyLocation to remain nil")
	}
}
