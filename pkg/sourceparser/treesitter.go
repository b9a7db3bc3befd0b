// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package sourceparser

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/cpp"

	"github.com/kraklabs/codegraph/pkg/graphmodel"
)

// TreeSitterStrategy parses each file syntactically with the Tree-sitter C++
// grammar. It recovers function spans but never include edges (callers must
// account for this, per spec).
type TreeSitterStrategy struct {
	Workers      int
	MaxStackDepth int // guard against pathological nesting; 0 = default
	Logger       *slog.Logger
	Cache        *Cache
}

func (s *TreeSitterStrategy) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *TreeSitterStrategy) maxDepth() int {
	if s.MaxStackDepth > 0 {
		return s.MaxStackDepth
	}
	return 4096
}

// Parse implements Strategy. Each worker goroutine builds its own
// *sitter.Parser once (the explicit worker initializer named in the design
// notes) and reuses it across every file it is handed, rather than mutating
// shared, process-wide parser state.
func (s *TreeSitterStrategy) Parse(files []string) (Result, error) {
	workers := s.Workers
	if workers < 1 {
		workers = 1
	}
	log := s.logger()

	jobs := make(chan string)
	type fileResult struct {
		file  string
		spans graphmodel.FileFunctionSpans
	}
	results := make(chan fileResult, len(files))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			parser := sitter.NewParser()
			parser.SetLanguage(cpp.GetLanguage())
			for file := range jobs {
				spans, err := s.parseOneFile(parser, file)
				if err != nil {
					log.Warn("sourceparser.treesitter.file_failed", "file", file, "error", err)
					continue
				}
				results <- fileResult{file: file, spans: spans}
			}
		}()
	}

	go func() {
		for _, f := range files {
			jobs <- f
		}
		close(jobs)
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	var out Result
	for r := range results {
		out.FunctionSpans = append(out.FunctionSpans, r.spans)
	}
	return out, nil
}

func (s *TreeSitterStrategy) parseOneFile(parser *sitter.Parser, file string) (graphmodel.FileFunctionSpans, error) {
	content, err := os.ReadFile(file)
	if err != nil {
		return graphmodel.FileFunctionSpans{}, fmt.Errorf("read %s: %w", file, err)
	}

	tree, err := parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return graphmodel.FileFunctionSpans{}, fmt.Errorf("parse %s: %w", file, err)
	}
	defer tree.Close()

	fileURI := "file://" + file
	spans := s.walkFunctionDefinitions(tree.RootNode(), content, file)
	return graphmodel.FileFunctionSpans{FileURI: fileURI, Functions: spans}, nil
}

// walkFunctionDefinitions walks the parse tree with an explicit stack
// (not Go call recursion) per the design note on recursive AST walks,
// collecting every function_definition node. A depth guard stands in for
// the source's try/except RecursionError: if the explicit stack grows past
// maxDepth the file is logged and abandoned rather than aborting the pool.
func (s *TreeSitterStrategy) walkFunctionDefinitions(root *sitter.Node, content []byte, file string) []graphmodel.FunctionSpan {
	var spans []graphmodel.FunctionSpan
	type frame struct {
		node  *sitter.Node
		depth int
	}
	stack := []frame{{node: root, depth: 0}}

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if top.node == nil {
			continue
		}
		if top.depth > s.maxDepth() {
			s.logger().Warn("sourceparser.treesitter.depth_exceeded", "file", file)
			return nil
		}

		if top.node.Type() == "function_definition" {
			if span, ok := s.extractFunctionSpan(top.node, content); ok {
				spans = append(spans, span)
			}
		}

		for i := 0; i < int(top.node.ChildCount()); i++ {
			stack = append(stack, frame{node: top.node.Child(i), depth: top.depth + 1})
		}
	}
	return spans
}

// extractFunctionSpan pulls the declarator identifier and the full
// definition extent (return type through closing brace) out of a
// function_definition node.
func (s *TreeSitterStrategy) extractFunctionSpan(node *sitter.Node, content []byte) (graphmodel.FunctionSpan, bool) {
	declarator := findChildByType(node, "function_declarator")
	if declarator == nil {
		return graphmodel.FunctionSpan{}, false
	}
	ident := findIdentifier(declarator)
	if ident == nil {
		return graphmodel.FunctionSpan{}, false
	}

	name := string(content[ident.StartByte():ident.EndByte()])
	nameLoc := nodeToRelativeLocation(ident)
	bodyLoc := nodeToRelativeLocation(node)

	return graphmodel.FunctionSpan{
		Name:         name,
		NameLocation: nameLoc,
		BodyLocation: bodyLoc,
	}, true
}

func findChildByType(node *sitter.Node, typ string) *sitter.Node {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() == typ {
			return child
		}
	}
	return nil
}

// findIdentifier looks for the identifier naming a (possibly pointer- or
// reference-qualified, possibly nested for out-of-line method definitions)
// declarator, using an explicit stack rather than recursion.
func findIdentifier(node *sitter.Node) *sitter.Node {
	stack := []*sitter.Node{node}
	var best *sitter.Node
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		switch n.Type() {
		case "identifier", "field_identifier", "qualified_identifier", "destructor_name":
			best = n
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			stack = append(stack, n.Child(i))
		}
	}
	return best
}

func nodeToRelativeLocation(n *sitter.Node) graphmodel.RelativeLocation {
	start := n.StartPoint()
	end := n.EndPoint()
	return graphmodel.RelativeLocation{
		Start: graphmodel.Position{Line: int(start.Row), Column: int(start.Column)},
		End:   graphmodel.Position{Line: int(end.Row), Column: int(end.Column)},
	}
}
