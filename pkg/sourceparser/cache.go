// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package sourceparser

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// CacheKey identifies what a ParserCache entry was computed against: either
// a clean git commit, or a per-file mtime snapshot when the tree is dirty or
// not a git repository at all.
type CacheKey struct {
	Type       string // "git" or "mtime"
	CommitHash string
	FileMTimes map[string]time.Time
}

// Cache persists (function_spans, include_relations) alongside a project,
// named parser_cache_<project>.gob, the Go-idiomatic analog of the Python
// implementation's parser_cache_<project>.pkl.
type Cache struct {
	Dir     string
	Project string
}

func (c *Cache) path() string {
	name := fmt.Sprintf("parser_cache_%s.gob", sanitizeProjectName(c.Project))
	return filepath.Join(c.Dir, name)
}

func sanitizeProjectName(p string) string {
	return strings.NewReplacer("/", "_", "\\", "_", " ", "_").Replace(filepath.Base(p))
}

type cacheEntry struct {
	Key    CacheKey
	Result Result
}

// CurrentKey computes the cache key for projectRoot: the clean-tree commit
// hash when git reports no local modifications, otherwise a per-file mtime
// snapshot over files.
func CurrentKey(projectRoot string, files []string) CacheKey {
	if hash, ok := cleanGitCommit(projectRoot); ok {
		return CacheKey{Type: "git", CommitHash: hash}
	}
	mtimes := make(map[string]time.Time, len(files))
	for _, f := range files {
		if info, err := os.Stat(f); err == nil {
			mtimes[f] = info.ModTime()
		}
	}
	return CacheKey{Type: "mtime", FileMTimes: mtimes}
}

func cleanGitCommit(projectRoot string) (string, bool) {
	statusCmd := exec.Command("git", "status", "--porcelain")
	statusCmd.Dir = projectRoot
	out, err := statusCmd.Output()
	if err != nil || strings.TrimSpace(string(out)) != "" {
		return "", false
	}
	revCmd := exec.Command("git", "rev-parse", "HEAD")
	revCmd.Dir = projectRoot
	rev, err := revCmd.Output()
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(rev)), true
}

func keysMatch(a, b CacheKey) bool {
	if a.Type != b.Type {
		return false
	}
	if a.Type == "git" {
		return a.CommitHash == b.CommitHash
	}
	if len(a.FileMTimes) != len(b.FileMTimes) {
		return false
	}
	for f, t := range a.FileMTimes {
		if bt, ok := b.FileMTimes[f]; !ok || !bt.Equal(t) {
			return false
		}
	}
	return true
}

// Load returns a cached Result if one exists and its key matches the
// project's current state; a decode failure or key mismatch is treated as a
// cache-invalid error and handled by returning ok=false.
func (c *Cache) Load(currentKey CacheKey) (Result, bool) {
	data, err := os.ReadFile(c.path())
	if err != nil {
		return Result{}, false
	}
	var entry cacheEntry
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&entry); err != nil {
		_ = os.Remove(c.path())
		return Result{}, false
	}
	if !keysMatch(entry.Key, currentKey) {
		return Result{}, false
	}
	return entry.Result, true
}

// Save persists result under key, atomically (temp file + rename).
func (c *Cache) Save(key CacheKey, result Result) error {
	entry := cacheEntry{Key: key, Result: result}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(entry); err != nil {
		return err
	}
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return err
	}
	tmp := c.path() + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, c.path())
}
