// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package pathmodel discovers the files and folders referenced by a symbol
// table and normalizes them to project-relative, POSIX-separated paths.
package pathmodel

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kraklabs/codegraph/pkg/graphmodel"
)

// Normalize turns an absolute or relative filesystem path into the
// project-relative, forward-slash form used as a graph key everywhere in the
// pipeline: ids.go's normalizePath, generalized to also strip a project root.
func Normalize(projectRoot, path string) (string, bool) {
	if strings.HasPrefix(path, "file://") {
		path = strings.TrimPrefix(path, "file://")
	}

	absRoot, err := filepath.Abs(projectRoot)
	if err != nil {
		return "", false
	}
	absPath := path
	if !filepath.IsAbs(absPath) {
		absPath, err = filepath.Abs(filepath.Join(absRoot, absPath))
		if err != nil {
			return "", false
		}
	}
	absPath = filepath.Clean(absPath)
	absRoot = filepath.Clean(absRoot)

	rel, err := filepath.Rel(absRoot, absPath)
	if err != nil {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	if rel == "." {
		return "", false
	}
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", false
	}
	return rel, true
}

// Ancestors returns every strict-prefix ancestor folder of a project-relative
// path, excluding "." and the path itself, ordered shallowest first.
func Ancestors(relPath string) []string {
	dir := filepath.ToSlash(filepath.Dir(relPath))
	if dir == "." || dir == "" {
		return nil
	}
	parts := strings.Split(dir, "/")
	var out []string
	for i := range parts {
		out = append(out, strings.Join(parts[:i+1], "/"))
	}
	return out
}

// Parent returns the immediate containing folder of relPath, or "" when
// relPath is top-level (its CONTAINS parent is the PROJECT node).
func Parent(relPath string) string {
	dir := filepath.ToSlash(filepath.Dir(relPath))
	if dir == "." {
		return ""
	}
	return dir
}

// Discovery is the output of walking a symbol table's locations: the set of
// project-relative files and folders, plus the CONTAINS edges linking them.
type Discovery struct {
	Files   []string
	Folders []string
	Contains []graphmodel.ContainsEdge
}

// Discover walks every symbol's Declaration and Definition locations,
// collecting files that resolve inside the project root and every strict
// ancestor folder, per spec.md §4.E.
func Discover(projectRoot string, symbols map[string]*graphmodel.Symbol) Discovery {
	fileSet := make(map[string]bool)
	folderSet := make(map[string]bool)

	consider := func(loc *graphmodel.Location) {
		if loc == nil {
			return
		}
		rel, ok := Normalize(projectRoot, loc.FileURI)
		if !ok {
			return
		}
		fileSet[rel] = true
		for _, anc := range Ancestors(rel) {
			folderSet[anc] = true
		}
	}

	for _, sym := range symbols {
		consider(sym.Declaration)
		consider(sym.Definition)
	}

	files := setToSortedSlice(fileSet)
	folders := setToSortedSlice(folderSet)

	var edges []graphmodel.ContainsEdge
	for _, f := range folders {
		edges = append(edges, graphmodel.ContainsEdge{ParentPath: Parent(f), ChildPath: f})
	}
	for _, f := range files {
		edges = append(edges, graphmodel.ContainsEdge{ParentPath: Parent(f), ChildPath: f})
	}

	return Discovery{Files: files, Folders: folders, Contains: edges}
}

func setToSortedSlice(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// StableID hashes a long project-relative path into a bounded-length key,
// mirroring ids.go's long-path fallback; short paths are used verbatim.
func StableID(prefix, normalized string) string {
	if len(normalized) <= 256 {
		return fmt.Sprintf("%s:%s", prefix, normalized)
	}
	hash := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%s:%s", prefix, hex.EncodeToString(hash[:16]))
}
