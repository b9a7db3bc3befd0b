// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package graphmodel

import "testing"

func TestContainsStrict_BoundaryInclusive(t *testing.T) {
	body := RelativeLocation{
		Start: Position{Line: 10, Column: 0},
		End:   Position{Line: 20, Column: 1},
	}

	// A reference ending exactly at body.End counts as inside (end-inclusive).
	loc := RelativeLocation{
		Start: Position{Line: 15, Column: 0},
		End:   Position{Line: 20, Column: 1},
	}
	if !ContainsStrict(loc, body) {
		t.Errorf("expected reference ending at body.End to be contained")
	}
}

func TestContainsStrict_StartStrict(t *testing.T) {
	body := RelativeLocation{
		Start: Position{Line: 10, Column: 0},
		End:   Position{Line: 20, Column: 1},
	}

	// A reference starting exactly at body.Start is NOT contained (start-strict).
	loc := RelativeLocation{
		Start: Position{Line: 10, Column: 0},
		End:   Position{Line: 11, Column: 0},
	}
	if ContainsStrict(loc, body) {
		t.Errorf("expected reference starting at body.Start to be excluded")
	}
}

func TestContainsStrict_OutsideRange(t *testing.T) {
	body := RelativeLocation{
		Start: Position{Line: 10, Column: 0},
		End:   Position{Line: 20, Column: 1},
	}
	loc := RelativeLocation{
		Start: Position{Line: 21, Column: 0},
		End:   Position{Line: 22, Column: 0},
	}
	if ContainsStrict(loc, body) {
		t.Errorf("expected out-of-range reference to be excluded")
	}
}

func TestHasCallBit(t *testing.T) {
	if !HasCallBit(RefKindCall) {
		t.Errorf("RefKindCall should carry the call bit")
	}
	if HasCallBit(RefKindReference) {
		t.Errorf("RefKindReference should not carry the call bit")
	}
}

func TestReference_IsCall(t *testing.T) {
	r := Reference{Kind: RefKindCall, ContainerID: "abc123"}
	if !r.IsCall() {
		t.Errorf("expected reference with container id and call kind to be a call")
	}

	sentinel := Reference{Kind: RefKindCall, ContainerID: NullContainerID}
	if sentinel.IsCall() {
		t.Errorf("sentinel container id must never be treated as a call")
	}

	noContainer := Reference{Kind: RefKindCall}
	if noContainer.IsCall() {
		t.Errorf("absent container id must never be treated as a call")
	}
}
