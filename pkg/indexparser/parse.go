// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package indexparser

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kraklabs/codegraph/pkg/graphmodel"
)

// chunkResult is what one worker produces from its slice of the document
// stream.
type chunkResult struct {
	symbols  map[string]*graphmodel.Symbol
	unlinked []unlinkedRef
}

// unlinkedRef pairs a Reference with the symbol ID it targets, before
// cross-referencing attaches it to that symbol's References slice.
type unlinkedRef struct {
	targetID string
	ref      graphmodel.Reference
}

// Options configures Parse.
type Options struct {
	Workers int
	Logger  *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// Parse streams the YAML multi-document index at indexPath, splits it into
// Options.Workers contiguous chunks on document boundaries, parses each
// chunk concurrently, and merges the results in deterministic chunk order
// before running the final cross-reference pass. A side-car cache is
// consulted first and refreshed afterward.
func Parse(indexPath string, opts Options) (*SymbolTable, error) {
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	log := opts.logger()

	if table, ok := loadCache(indexPath); ok {
		log.Info("indexparser.cache.hit", "path", indexPath)
		return table, nil
	}

	raw, err := os.ReadFile(indexPath)
	if err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}
	raw = normalizeTabs(raw)

	chunks := splitIntoChunks(raw, workers)
	log.Info("indexparser.parse.start", "path", indexPath, "workers", len(chunks))

	results := make([]chunkResult, len(chunks))
	errs := make([]error, len(chunks))
	done := make(chan int, len(chunks))

	for i, chunk := range chunks {
		go func(i int, chunk []byte) {
			results[i], errs[i] = parseChunk(chunk, log)
			done <- i
		}(i, chunk)
	}
	for range chunks {
		<-done
	}

	table := NewSymbolTable()
	var unlinked []unlinkedRef
	// Merge in deterministic chunk order: last writer wins on id collision.
	for i := range chunks {
		if errs[i] != nil {
			log.Warn("indexparser.chunk.failed", "chunk", i, "error", errs[i])
			continue
		}
		for id, sym := range results[i].symbols {
			table.Symbols[id] = sym
		}
		unlinked = append(unlinked, results[i].unlinked...)
	}

	buildCrossReferences(table, unlinked)
	table.deriveFunctions()

	log.Info("indexparser.parse.done", "symbols", len(table.Symbols), "functions", len(table.Functions),
		"has_container_field", table.HasContainerField, "has_call_kind", table.HasCallKind)

	if err := saveCache(indexPath, table); err != nil {
		log.Warn("indexparser.cache.save_failed", "error", err)
	}

	return table, nil
}

// splitIntoChunks slices raw into up to n contiguous byte ranges, each
// ending on a "---" document-separator boundary, per docs_per_chunk =
// ceil(total_docs / workers).
func splitIntoChunks(raw []byte, n int) [][]byte {
	totalDocs := countDocs(raw)
	if totalDocs == 0 {
		return nil
	}
	docsPerChunk := (totalDocs + n - 1) / n
	if docsPerChunk < 1 {
		docsPerChunk = 1
	}

	var chunks [][]byte
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)

	var current bytes.Buffer
	docsInCurrent := 0
	sawFirstSep := false

	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, append([]byte(nil), current.Bytes()...))
			current.Reset()
			docsInCurrent = 0
		}
	}

	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(strings.TrimSpace(line), "---") {
			if sawFirstSep && docsInCurrent >= docsPerChunk {
				flush()
			}
			docsInCurrent++
			sawFirstSep = true
		}
		current.WriteString(line)
		current.WriteByte('\n')
	}
	flush()
	return chunks
}

func countDocs(raw []byte) int {
	count := 0
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	for scanner.Scan() {
		if strings.HasPrefix(strings.TrimSpace(scanner.Text()), "---") {
			count++
		}
	}
	return count
}

// parseChunk decodes every document in chunk, returning local symbols and
// unlinked references. A YAML syntax error aborts only this chunk and
// yields an empty, logged result, per the index parser's failure model; a
// document that parses but does not decode into the record shape is logged
// and skipped.
func parseChunk(chunk []byte, log *slog.Logger) (chunkResult, error) {
	result := chunkResult{symbols: make(map[string]*graphmodel.Symbol)}

	dec := yaml.NewDecoder(bytes.NewReader(chunk))
	for {
		var node yaml.Node
		if err := dec.Decode(&node); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			log.Warn("indexparser.document.malformed", "error", err)
			return chunkResult{symbols: make(map[string]*graphmodel.Symbol)}, nil
		}
		if node.Kind == 0 {
			continue
		}
		doc, err := decodeRawDoc(&node)
		if err != nil {
			log.Warn("indexparser.document.malformed", "error", err)
			continue
		}
		if doc.ID == "" {
			continue
		}
		if doc.isSymbolDoc() {
			result.symbols[doc.ID] = doc.toSymbol()
			continue
		}
		for _, r := range doc.References {
			ref := graphmodel.Reference{Kind: r.Kind, Location: r.Location.toLocation()}
			if r.Container != nil {
				ref.ContainerID = r.Container.ID
			}
			result.unlinked = append(result.unlinked, unlinkedRef{targetID: doc.ID, ref: ref})
		}
	}
	return result, nil
}

// buildCrossReferences attaches each unlinked reference to its target
// symbol and sets the two index-capability flags the first time it observes
// evidence for them.
func buildCrossReferences(table *SymbolTable, unlinked []unlinkedRef) {
	for _, u := range unlinked {
		sym, ok := table.Symbols[u.targetID]
		if !ok {
			continue
		}
		sym.References = append(sym.References, u.ref)

		if u.ref.ContainerID != "" && u.ref.ContainerID != graphmodel.NullContainerID {
			table.HasContainerField = true
		}
		if graphmodel.HasCallBit(u.ref.Kind) {
			table.HasCallKind = true
		}
	}
	if table.HasContainerField {
		table.HasCallKind = true
	}
}
