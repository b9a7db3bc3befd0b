// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package updater classifies the files that changed between two git commits
// and drives the purge-then-reingest cycle that keeps a previously built
// graph current without a full rebuild.
package updater

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

// Delta is the set of C/C++ source file changes between two commits,
// adapted from the indexer's own DeltaDetector/GitDelta shape: the same
// git-diff invocation and added/modified/deleted/renamed bucketing, widened
// to the exact-similarity copy/rename flags spec.md names and filtered down
// to .c/.h paths.
type Delta struct {
	OldCommit string
	NewCommit string
	Added     []string
	Modified  []string
	Deleted   []string
	Renamed   map[string]string // old path -> new path

	// All is the union of every path touched by the delta (old and new
	// paths for renames), sorted and deduplicated.
	All []string
}

// HasChanges reports whether any file changed.
func (d *Delta) HasChanges() bool { return len(d.All) > 0 }

// sourceExtensions is the set of extensions the updater re-parses;
// everything else (build files, docs, generated YAML indexes) is ignored.
var sourceExtensions = map[string]bool{".c": true, ".h": true, ".cc": true, ".cpp": true, ".hpp": true, ".cxx": true}

func isSourceFile(path string) bool {
	return sourceExtensions[strings.ToLower(filepath.Ext(path))]
}

// Detect runs `git diff --find-copies-harder -M100% -C100% -r --raw -z
// oldCommit newCommit` in repoPath and classifies the result, filtered to
// C/C++ source paths.
func Detect(repoPath, oldCommit, newCommit string) (*Delta, error) {
	cmd := exec.Command("git", "diff", "--find-copies-harder", "-M100%", "-C100%", "-r", "--raw", "-z", oldCommit, newCommit)
	cmd.Dir = repoPath
	out, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return nil, fmt.Errorf("git diff failed: %s", string(exitErr.Stderr))
		}
		return nil, fmt.Errorf("git diff: %w", err)
	}

	delta := &Delta{OldCommit: oldCommit, NewCommit: newCommit, Renamed: make(map[string]string)}
	for _, rec := range splitRawRecords(out) {
		status := rec.status
		switch {
		case strings.HasPrefix(status, "A"):
			if isSourceFile(rec.paths[0]) {
				delta.Added = append(delta.Added, rec.paths[0])
			}
		case strings.HasPrefix(status, "M"):
			if isSourceFile(rec.paths[0]) {
				delta.Modified = append(delta.Modified, rec.paths[0])
			}
		case strings.HasPrefix(status, "D"):
			if isSourceFile(rec.paths[0]) {
				delta.Deleted = append(delta.Deleted, rec.paths[0])
			}
		case strings.HasPrefix(status, "R"):
			if len(rec.paths) >= 2 && isSourceFile(rec.paths[1]) {
				delta.Renamed[rec.paths[0]] = rec.paths[1]
			}
		case strings.HasPrefix(status, "C"):
			// Copy: the indexed state gains a new defining file; treat as
			// add, matching delta.go's Added-on-copy rule.
			if len(rec.paths) >= 2 && isSourceFile(rec.paths[1]) {
				delta.Added = append(delta.Added, rec.paths[1])
			}
		}
	}

	sort.Strings(delta.Added)
	sort.Strings(delta.Modified)
	sort.Strings(delta.Deleted)

	allSet := make(map[string]bool)
	for _, p := range delta.Added {
		allSet[p] = true
	}
	for _, p := range delta.Modified {
		allSet[p] = true
	}
	for _, p := range delta.Deleted {
		allSet[p] = true
	}
	for oldPath, newPath := range delta.Renamed {
		allSet[oldPath] = true
		allSet[newPath] = true
	}
	delta.All = make([]string, 0, len(allSet))
	for p := range allSet {
		delta.All = append(delta.All, p)
	}
	sort.Strings(delta.All)

	return delta, nil
}

type rawRecord struct {
	status string
	paths  []string
}

// splitRawRecords parses `git diff --raw -z` output: NUL-separated fields,
// each record is ":old_mode new_mode old_sha new_sha status\0path\0" or, for
// renames/copies, "...status\0old_path\0new_path\0".
func splitRawRecords(out []byte) []rawRecord {
	fields := strings.Split(strings.TrimRight(string(out), "\x00"), "\x00")
	var records []rawRecord
	for i := 0; i < len(fields); {
		header := fields[i]
		if !strings.HasPrefix(header, ":") {
			i++
			continue
		}
		parts := strings.Fields(header)
		if len(parts) < 5 {
			i++
			continue
		}
		status := parts[4]
		i++
		nPaths := 1
		if strings.HasPrefix(status, "R") || strings.HasPrefix(status, "C") {
			nPaths = 2
		}
		if i+nPaths > len(fields) {
			break
		}
		records = append(records, rawRecord{status: status, paths: fields[i : i+nPaths]})
		i += nPaths
	}
	return records
}

// resolveRef resolves a git ref to a commit SHA, used by the Updater to
// record a clean HEAD after a successful incremental run.
func resolveRef(repoPath, ref string) (string, error) {
	cmd := exec.Command("git", "rev-parse", ref)
	cmd.Dir = repoPath
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git rev-parse %s: %w", ref, err)
	}
	return strings.TrimSpace(string(out)), nil
}
