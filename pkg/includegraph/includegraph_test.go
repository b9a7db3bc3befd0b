// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package includegraph

import (
	"context"
	"sort"
	"testing"
)

func TestImpactedFiles_TransitiveAndCycleAware(t *testing.T) {
	// a.c includes b.h, b.h includes c.h, c.h includes b.h (cycle).
	g := NewInMemoryIncludeGraph([][2]string{
		{"a.c", "b.h"},
		{"b.h", "c.h"},
		{"c.h", "b.h"},
	})

	impacted := g.ImpactedFiles([]string{"c.h"})
	sort.Strings(impacted)

	want := map[string]bool{"a.c": true, "b.h": true, "c.h": true}
	if len(impacted) != len(want) {
		t.Fatalf("expected %d impacted files, got %v", len(want), impacted)
	}
	for _, f := range impacted {
		if !want[f] {
			t.Errorf("unexpected file in impact set: %s", f)
		}
	}
}

func TestImpactedFiles_NoIncluders(t *testing.T) {
	g := NewInMemoryIncludeGraph(nil)
	impacted := g.ImpactedFiles([]string{"standalone.c"})
	if len(impacted) != 1 || impacted[0] != "standalone.c" {
		t.Fatalf("expected only the changed file itself, got %v", impacted)
	}
}

type fakeStore struct {
	includedBy map[string][]string
}

func (f *fakeStore) IncludersOf(ctx context.Context, fileID string) ([]string, error) {
	return f.includedBy[fileID], nil
}

func TestMaterialized_ImpactedFiles(t *testing.T) {
	store := &fakeStore{includedBy: map[string][]string{
		"b.h": {"a.c"},
		"c.h": {"b.h"},
	}}
	m := NewMaterialized(store)

	impacted, err := m.ImpactedFiles(context.Background(), []string{"c.h"})
	if err != nil {
		t.Fatalf("ImpactedFiles: %v", err)
	}
	sort.Strings(impacted)
	want := []string{"a.c", "b.h", "c.h"}
	if len(impacted) != len(want) {
		t.Fatalf("got %v, want %v", impacted, want)
	}
	for i := range want {
		if impacted[i] != want[i] {
			t.Fatalf("got %v, want %v", impacted, want)
		}
	}
}
