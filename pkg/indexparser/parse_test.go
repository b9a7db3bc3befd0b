// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package indexparser

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleIndex = `--- !Symbol
ID: "A"
Name: foo
SymInfo:
  Kind: Function
  Lang: C
Definition:
  FileURI: "file:///proj/src/only.c"
  Start: {Line: 9, Column: 0}
  End: {Line: 19, Column: 1}
--- !Symbol
ID: "B"
Name: bar
SymInfo:
  Kind: Function
  Lang: C
Definition:
  FileURI: "file:///proj/src/only.c"
  Start: {Line: 21, Column: 0}
  End: {Line: 25, Column: 1}
--- !Refs
ID: "A"
References:
  - Kind: 28
    Location:
      FileURI: "file:///proj/src/only.c"
      Start: {Line: 22, Column: 4}
      End: {Line: 22, Column: 7}
    Container:
      ID: "B"
`

func writeSampleIndex(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "index.yaml")
	if err := os.WriteFile(path, []byte(sampleIndex), 0o644); err != nil {
		t.Fatalf("write sample index: %v", err)
	}
	return path
}

func TestParse_CrossReferencesAndFlags(t *testing.T) {
	path := writeSampleIndex(t)

	table, err := Parse(path, Options{Workers: 2})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if len(table.Symbols) != 2 {
		t.Fatalf("expected 2 symbols, got %d", len(table.Symbols))
	}
	if len(table.Functions) != 2 {
		t.Fatalf("expected 2 functions, got %d", len(table.Functions))
	}
	if !table.HasContainerField {
		t.Errorf("expected HasContainerField to be true")
	}
	if !table.HasCallKind {
		t.Errorf("expected HasCallKind to be true")
	}

	a := table.Symbols["A"]
	if len(a.References) != 1 {
		t.Fatalf("expected symbol A to carry 1 reference, got %d", len(a.References))
	}
	if a.References[0].ContainerID != "B" {
		t.Errorf("expected container id B, got %q", a.References[0].ContainerID)
	}
}

func TestParse_CacheRoundTrip(t *testing.T) {
	path := writeSampleIndex(t)

	first, err := Parse(path, Options{Workers: 2})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if _, err := os.Stat(cachePath(path)); err != nil {
		t.Fatalf("expected cache file to be written: %v", err)
	}

	second, err := Parse(path, Options{Workers: 4})
	if err != nil {
		t.Fatalf("Parse (cached): %v", err)
	}
	if len(second.Symbols) != len(first.Symbols) {
		t.Fatalf("cached table diverged: got %d symbols, want %d", len(second.Symbols), len(first.Symbols))
	}
}

func TestCreateSubset(t *testing.T) {
	path := writeSampleIndex(t)
	table, err := Parse(path, Options{Workers: 1})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	sub := table.CreateSubset(map[string]bool{"A": true})
	if len(sub.Symbols) != 1 {
		t.Fatalf("expected subset of 1 symbol, got %d", len(sub.Symbols))
	}
	if sub.HasContainerField != table.HasContainerField {
		t.Errorf("subset must preserve HasContainerField")
	}
}
