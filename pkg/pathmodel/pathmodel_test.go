// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package pathmodel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/codegraph/pkg/graphmodel"
)

func TestNormalize(t *testing.T) {
	rel, ok := Normalize("/proj", "/proj/src/only.c")
	require.True(t, ok)
	assert.Equal(t, "src/only.c", rel)
}

func TestNormalize_OutsideProjectRejected(t *testing.T) {
	_, ok := Normalize("/proj", "/other/file.c")
	assert.False(t, ok, "expected path outside project root to be rejected")
}

func TestNormalize_FileURIScheme(t *testing.T) {
	rel, ok := Normalize("/proj", "file:///proj/src/only.c")
	require.True(t, ok)
	assert.Equal(t, "src/only.c", rel)
}

func TestAncestors(t *testing.T) {
	got := Ancestors("a/b/c.c")
	assert.Equal(t, []string{"a", "a/b"}, got)
}

func TestAncestors_TopLevel(t *testing.T) {
	assert.Nil(t, Ancestors("only.c"))
}

func TestDiscover_SingleFile(t *testing.T) {
	loc := &graphmodel.Location{FileURI: "file:///proj/src/only.c"}
	symbols := map[string]*graphmodel.Symbol{
		"A": {ID: "A", Definition: loc},
	}
	d := Discover("/proj", symbols)
	require.Len(t, d.Files, 1)
	assert.Equal(t, "src/only.c", d.Files[0])
	require.Len(t, d.Folders, 1)
	assert.Equal(t, "src", d.Folders[0])

	foundFileEdge := false
	for _, e := range d.Contains {
		if e.ChildPath == "src/only.c" && e.ParentPath == "src" {
			foundFileEdge = true
		}
	}
	assert.True(t, foundFileEdge, "expected CONTAINS edge src -> src/only.c, got %v", d.Contains)
}
