// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package callgraph

import (
	"testing"

	"github.com/kraklabs/codegraph/pkg/graphmodel"
)

func TestBuild_ContainerAware(t *testing.T) {
	outer := &graphmodel.Symbol{ID: "outer", Name: "outer", Kind: graphmodel.KindFunction}
	inner := &graphmodel.Symbol{
		ID: "inner", Name: "inner", Kind: graphmodel.KindFunction,
		References: []graphmodel.Reference{
			{Kind: graphmodel.RefKindCall, ContainerID: "outer", Location: graphmodel.Location{FileURI: "file:///a.c", Start: graphmodel.Position{Line: 5, Column: 4}}},
		},
	}
	orphan := &graphmodel.Symbol{
		ID: "orphan", Name: "orphan", Kind: graphmodel.KindFunction,
		References: []graphmodel.Reference{
			{Kind: graphmodel.RefKindCall, ContainerID: graphmodel.NullContainerID, Location: graphmodel.Location{FileURI: "file:///a.c", Start: graphmodel.Position{Line: 9, Column: 0}}},
		},
	}
	variable := &graphmodel.Symbol{ID: "v", Name: "v", Kind: graphmodel.KindVariable}
	referencingVariableContainer := &graphmodel.Symbol{
		ID: "refv", Name: "refv", Kind: graphmodel.KindFunction,
		References: []graphmodel.Reference{
			{Kind: graphmodel.RefKindCall, ContainerID: "v", Location: graphmodel.Location{FileURI: "file:///a.c", Start: graphmodel.Position{Line: 1, Column: 0}}},
		},
	}

	symbols := map[string]*graphmodel.Symbol{
		"outer": outer, "inner": inner, "orphan": orphan, "v": variable, "refv": referencingVariableContainer,
	}

	edges, stats := Build(symbols, true, true, 2)
	if stats.Strategy != "container-aware" {
		t.Fatalf("expected container-aware strategy, got %s", stats.Strategy)
	}
	if len(edges) != 1 {
		t.Fatalf("expected 1 edge, got %d: %+v", len(edges), edges)
	}
	if edges[0].CallerID != "outer" || edges[0].CalleeID != "inner" {
		t.Errorf("expected outer->inner, got %s->%s", edges[0].CallerID, edges[0].CalleeID)
	}
}

func TestBuild_ContainmentBased_AttributesCallerByEnclosingBody(t *testing.T) {
	callerBody := graphmodel.RelativeLocation{
		Start: graphmodel.Position{Line: 10, Column: 0},
		End:   graphmodel.Position{Line: 20, Column: 1},
	}
	caller := &graphmodel.Symbol{
		ID: "caller", Name: "caller", Kind: graphmodel.KindFunction,
		Definition:   &graphmodel.Location{FileURI: "file:///a.c", Start: callerBody.Start, End: callerBody.End},
		BodyLocation: &callerBody,
	}
	callee := &graphmodel.Symbol{
		ID: "callee", Name: "callee", Kind: graphmodel.KindFunction,
		References: []graphmodel.Reference{
			{
				Kind: graphmodel.RefKindReference,
				Location: graphmodel.Location{
					FileURI: "file:///a.c",
					Start:   graphmodel.Position{Line: 15, Column: 4},
					End:     graphmodel.Position{Line: 15, Column: 10},
				},
			},
		},
	}
	symbols := map[string]*graphmodel.Symbol{"caller": caller, "callee": callee}

	edges, stats := Build(symbols, false, false, 2)
	if stats.Strategy != "containment-based" {
		t.Fatalf("expected containment-based strategy, got %s", stats.Strategy)
	}
	if len(edges) != 1 {
		t.Fatalf("expected 1 edge, got %d: %+v", len(edges), edges)
	}
	if edges[0].CallerID != "caller" || edges[0].CalleeID != "callee" {
		t.Errorf("expected caller->callee, got %s->%s", edges[0].CallerID, edges[0].CalleeID)
	}
}

func TestBuild_ContainmentBased_ReferenceOutsideAnyBodyIsDropped(t *testing.T) {
	callerBody := graphmodel.RelativeLocation{
		Start: graphmodel.Position{Line: 10, Column: 0},
		End:   graphmodel.Position{Line: 20, Column: 1},
	}
	caller := &graphmodel.Symbol{
		ID: "caller", Name: "caller", Kind: graphmodel.KindFunction,
		Definition:   &graphmodel.Location{FileURI: "file:///a.c", Start: callerBody.Start, End: callerBody.End},
		BodyLocation: &callerBody,
	}
	callee := &graphmodel.Symbol{
		ID: "callee", Name: "callee", Kind: graphmodel.KindFunction,
		References: []graphmodel.Reference{
			{
				Kind: graphmodel.RefKindReference,
				Location: graphmodel.Location{
					FileURI: "file:///a.c",
					Start:   graphmodel.Position{Line: 30, Column: 0},
					End:     graphmodel.Position{Line: 30, Column: 4},
				},
			},
		},
	}
	symbols := map[string]*graphmodel.Symbol{"caller": caller, "callee": callee}

	edges, _ := Build(symbols, false, false, 2)
	if len(edges) != 0 {
		t.Fatalf("expected 0 edges, got %d: %+v", len(edges), edges)
	}
}

func TestFindContainingBody_EndInclusiveBoundary(t *testing.T) {
	body := graphmodel.RelativeLocation{
		Start: graphmodel.Position{Line: 1, Column: 0},
		End:   graphmodel.Position{Line: 5, Column: 10},
	}
	sym := &graphmodel.Symbol{ID: "f"}
	entries := []bodyEntry{{body: body, sym: sym}}

	atEnd := graphmodel.RelativeLocation{Start: graphmodel.Position{Line: 5, Column: 10}, End: graphmodel.Position{Line: 5, Column: 10}}
	if got := findContainingBody(entries, atEnd); got != sym {
		t.Errorf("expected a reference touching body.end to count as inside, got %v", got)
	}

	pastEnd := graphmodel.RelativeLocation{Start: graphmodel.Position{Line: 5, Column: 11}, End: graphmodel.Position{Line: 5, Column: 11}}
	if got := findContainingBody(entries, pastEnd); got != nil {
		t.Errorf("expected a reference past body.end to be outside, got %v", got)
	}

	atStart := graphmodel.RelativeLocation{Start: graphmodel.Position{Line: 1, Column: 0}, End: graphmodel.Position{Line: 1, Column: 0}}
	if got := findContainingBody(entries, atStart); got != nil {
		t.Errorf("expected a reference exactly at body.start to be outside (start-strict), got %v", got)
	}
}

func TestFindContainingBody_FirstMatchWinsAmongNonOverlapping(t *testing.T) {
	first := &graphmodel.Symbol{ID: "first"}
	second := &graphmodel.Symbol{ID: "second"}
	entries := []bodyEntry{
		{sym: first, body: graphmodel.RelativeLocation{Start: graphmodel.Position{Line: 1, Column: 0}, End: graphmodel.Position{Line: 5, Column: 1}}},
		{sym: second, body: graphmodel.RelativeLocation{Start: graphmodel.Position{Line: 10, Column: 0}, End: graphmodel.Position{Line: 15, Column: 1}}},
	}
	loc := graphmodel.RelativeLocation{Start: graphmodel.Position{Line: 12, Column: 0}, End: graphmodel.Position{Line: 12, Column: 0}}
	if got := findContainingBody(entries, loc); got != second {
		t.Errorf("expected second, got %v", got)
	}
	if got := findContainingBody(entries, graphmodel.RelativeLocation{Start: graphmodel.Position{Line: 100, Column: 0}, End: graphmodel.Position{Line: 100, Column: 0}}); got != nil {
		t.Errorf("expected no match past every body, got %v", got)
	}
}
