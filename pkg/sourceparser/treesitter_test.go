// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package sourceparser

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleC = `int helper(int x) {
    return x + 1;
}

int main(void) {
    int v = helper(2);
    return v;
}
`

func TestTreeSitterStrategy_Parse(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "only.c")
	if err := os.WriteFile(path, []byte(sampleC), 0o644); err != nil {
		t.Fatalf("write sample: %v", err)
	}

	strategy := &TreeSitterStrategy{Workers: 2}
	result, err := strategy.Parse([]string{path})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(result.FunctionSpans) != 1 {
		t.Fatalf("expected 1 file entry, got %d", len(result.FunctionSpans))
	}
	funcs := result.FunctionSpans[0].Functions
	if len(funcs) != 2 {
		t.Fatalf("expected 2 functions, got %d", len(funcs))
	}

	names := map[string]bool{}
	for _, f := range funcs {
		names[f.Name] = true
	}
	if !names["helper"] || !names["main"] {
		t.Errorf("expected helper and main, got %v", names)
	}
}
