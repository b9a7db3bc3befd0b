// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package indexparser

import (
	"bytes"
	"encoding/gob"
	"os"
	"strings"

	"github.com/kraklabs/codegraph/pkg/graphmodel"
)

// cachePayload is the gob-serializable shape of a SymbolTable. Go's
// encoding/gob is the direct analog of the index format's pickle cache; the
// rest of this corpus has no third-party serialization library that handles
// arbitrary pointer graphs like SymbolTable's, so gob is used as-is (see
// DESIGN.md).
type cachePayload struct {
	Symbols           map[string]*graphmodel.Symbol
	HasContainerField bool
	HasCallKind       bool
}

func cachePath(indexPath string) string {
	base := strings.TrimSuffix(indexPath, filepathExt(indexPath))
	return base + ".cache"
}

// filepathExt avoids importing path/filepath just for Ext in this tiny file.
func filepathExt(p string) string {
	for i := len(p) - 1; i >= 0 && p[i] != '/'; i-- {
		if p[i] == '.' {
			return p[i:]
		}
	}
	return ""
}

// loadCache returns (table, true) if a valid cache exists alongside
// indexPath: it must exist and its mtime must be at or after the index's
// mtime. Any read or decode failure is treated as a cache-invalid error and
// the cache is silently discarded.
func loadCache(indexPath string) (*SymbolTable, bool) {
	idxInfo, err := os.Stat(indexPath)
	if err != nil {
		return nil, false
	}
	cp := cachePath(indexPath)
	cacheInfo, err := os.Stat(cp)
	if err != nil {
		return nil, false
	}
	if cacheInfo.ModTime().Before(idxInfo.ModTime()) {
		return nil, false
	}

	data, err := os.ReadFile(cp)
	if err != nil {
		return nil, false
	}

	var payload cachePayload
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&payload); err != nil {
		_ = os.Remove(cp)
		return nil, false
	}

	table := NewSymbolTable()
	table.Symbols = payload.Symbols
	table.HasContainerField = payload.HasContainerField
	table.HasCallKind = payload.HasCallKind
	table.deriveFunctions()
	return table, true
}

// saveCache persists table to indexPath's side-car cache file, atomically
// (temp file + rename), mirroring checkpoint.go's write discipline.
func saveCache(indexPath string, table *SymbolTable) error {
	payload := cachePayload{
		Symbols:           table.Symbols,
		HasContainerField: table.HasContainerField,
		HasCallKind:       table.HasCallKind,
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(payload); err != nil {
		return err
	}

	cp := cachePath(indexPath)
	tmp := cp + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, cp); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
