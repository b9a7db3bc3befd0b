// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package sourceparser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/kraklabs/codegraph/pkg/graphmodel"
)

// CompileCommand is one entry of compile_commands.json.
type CompileCommand struct {
	Directory string   `json:"directory"`
	File      string   `json:"file"`
	Arguments []string `json:"arguments,omitempty"`
	Command   string   `json:"command,omitempty"`
}

// ClangStrategy drives the real `clang` binary per translation unit, treated
// as an opaque provider of function spans and include edges (the raw
// semantic parser is explicitly out of scope; only its JSON AST dump is
// consumed here).
type ClangStrategy struct {
	CompileCommandsPath string
	ClangBinary         string // defaults to "clang"
	Workers             int
	Timeout             time.Duration
	Logger              *slog.Logger
}

func (s *ClangStrategy) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *ClangStrategy) binary() string {
	if s.ClangBinary != "" {
		return s.ClangBinary
	}
	return "clang"
}

func (s *ClangStrategy) timeout() time.Duration {
	if s.Timeout > 0 {
		return s.Timeout
	}
	return 60 * time.Second
}

// loadCompileCommands reads and indexes compile_commands.json by absolute
// source file path.
func (s *ClangStrategy) loadCompileCommands() (map[string]CompileCommand, error) {
	data, err := os.ReadFile(s.CompileCommandsPath)
	if err != nil {
		return nil, fmt.Errorf("read compile_commands.json: %w", err)
	}
	var commands []CompileCommand
	if err := json.Unmarshal(data, &commands); err != nil {
		return nil, fmt.Errorf("parse compile_commands.json: %w", err)
	}

	out := make(map[string]CompileCommand, len(commands))
	for _, c := range commands {
		abs := c.File
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(c.Directory, c.File)
		}
		out[filepath.Clean(abs)] = c
	}
	return out, nil
}

// resourceDir asks the compiler for its resource include directory, per step
// 1 of the clang strategy's sanitization procedure.
func (s *ClangStrategy) resourceDir() (string, error) {
	out, err := exec.Command(s.binary(), "-print-resource-dir").Output()
	if err != nil {
		return "", fmt.Errorf("clang -print-resource-dir: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// sanitizeArgs strips flags that would conflict with an ast-dump invocation
// and the TU filename, then appends the compiler's resource include dir.
func sanitizeArgs(args []string, tuFile, resourceDir string) []string {
	var out []string
	skipNext := false
	for _, a := range args {
		if skipNext {
			skipNext = false
			continue
		}
		switch {
		case a == "-c", a == "-o", a == "-MMD", a == "-MF", a == "-MT":
			if a == "-o" || a == "-MF" || a == "-MT" {
				skipNext = true
			}
			continue
		case strings.HasPrefix(a, "-fcolor-diagnostics"), strings.HasPrefix(a, "-fdiagnostics-color"):
			continue
		case a == tuFile, filepath.Clean(a) == filepath.Clean(tuFile):
			continue
		}
		out = append(out, a)
	}
	if resourceDir != "" {
		out = append(out, "-resource-dir", resourceDir)
	}
	return out
}

// Parse implements Strategy.
func (s *ClangStrategy) Parse(files []string) (Result, error) {
	commands, err := s.loadCompileCommands()
	if err != nil {
		return Result{}, err
	}
	resourceDir, err := s.resourceDir()
	if err != nil {
		s.logger().Warn("sourceparser.clang.resource_dir_unavailable", "error", err)
	}

	workers := s.Workers
	if workers < 1 {
		workers = 1
	}

	jobs := make(chan string)
	type tuResult struct {
		spans    graphmodel.FileFunctionSpans
		includes []graphmodel.IncludeRelation
	}
	results := make(chan tuResult, len(files))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for file := range jobs {
				cmd, ok := commands[filepath.Clean(file)]
				if !ok {
					s.logger().Warn("sourceparser.clang.no_compile_command", "file", file)
					continue
				}
				spans, includes, err := s.parseTU(cmd, resourceDir)
				if err != nil {
					s.logger().Warn("sourceparser.clang.tu_failed", "file", file, "error", err)
					continue
				}
				results <- tuResult{spans: spans, includes: includes}
			}
		}()
	}

	go func() {
		for _, f := range files {
			jobs <- f
		}
		close(jobs)
	}()
	go func() { wg.Wait(); close(results) }()

	var out Result
	seenDef := make(map[string]bool) // de-dup by (file,name,line,col)
	for r := range results {
		var kept []graphmodel.FunctionSpan
		for _, fn := range r.spans.Functions {
			key := fmt.Sprintf("%s|%s|%d|%d", r.spans.FileURI, fn.Name, fn.NameLocation.Start.Line, fn.NameLocation.Start.Column)
			if seenDef[key] {
				continue
			}
			seenDef[key] = true
			kept = append(kept, fn)
		}
		if len(kept) > 0 {
			out.FunctionSpans = append(out.FunctionSpans, graphmodel.FileFunctionSpans{FileURI: r.spans.FileURI, Functions: kept})
		}
		out.IncludeRelations = append(out.IncludeRelations, r.includes...)
	}
	return out, nil
}

// clangASTNode is the subset of `clang -Xclang -ast-dump=json` we care about:
// FunctionDecl definitions and their source ranges.
type clangASTNode struct {
	Kind       string         `json:"kind"`
	Name       string         `json:"name,omitempty"`
	IsUsed     bool           `json:"isUsed,omitempty"`
	Loc        clangLoc       `json:"loc,omitempty"`
	Range      clangRange     `json:"range,omitempty"`
	Inner      []clangASTNode `json:"inner,omitempty"`
	StorageCls string         `json:"storageClass,omitempty"`
}

type clangLoc struct {
	File string `json:"file,omitempty"`
	Line int    `json:"line,omitempty"`
	Col  int    `json:"col,omitempty"`
}

type clangRange struct {
	Begin clangLoc `json:"begin"`
	End   clangLoc `json:"end"`
}

func (s *ClangStrategy) parseTU(cmd CompileCommand, resourceDir string) (graphmodel.FileFunctionSpans, []graphmodel.IncludeRelation, error) {
	args := cmd.Arguments
	if len(args) == 0 && cmd.Command != "" {
		args = strings.Fields(cmd.Command)
	}
	if len(args) > 0 {
		args = args[1:] // drop the compiler invocation itself
	}
	args = sanitizeArgs(args, cmd.File, resourceDir)
	args = append(args, "-Xclang", "-ast-dump=json", "-fsyntax-only", cmd.File)

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout())
	defer cancel()

	out, err := exec.CommandContext(ctx, s.binary(), args...).Output()
	if err != nil {
		return graphmodel.FileFunctionSpans{}, nil, fmt.Errorf("clang ast-dump: %w", err)
	}

	var root clangASTNode
	if err := json.Unmarshal(out, &root); err != nil {
		return graphmodel.FileFunctionSpans{}, nil, fmt.Errorf("parse ast-dump json: %w", err)
	}

	absFile := cmd.File
	if !filepath.IsAbs(absFile) {
		absFile = filepath.Join(cmd.Directory, cmd.File)
	}
	fileURI := "file://" + filepath.Clean(absFile)

	var spans []graphmodel.FunctionSpan
	walkClangAST(root, absFile, &spans)

	includes := collectIncludes(args, cmd.Directory, absFile)

	return graphmodel.FileFunctionSpans{FileURI: fileURI, Functions: spans}, includes, nil
}

// walkClangAST iterates the AST dump with an explicit stack, emitting a
// FunctionSpan for every FunctionDecl definition within the project file.
func walkClangAST(root clangASTNode, projectFile string, out *[]graphmodel.FunctionSpan) {
	stack := []clangASTNode{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if n.Kind == "FunctionDecl" && n.Name != "" && n.Range.Begin.Line > 0 && n.Range.End.Line > 0 {
			file := n.Loc.File
			if file == "" {
				file = projectFile
			}
			if filepath.Clean(file) == filepath.Clean(projectFile) {
				*out = append(*out, graphmodel.FunctionSpan{
					Name: n.Name,
					NameLocation: graphmodel.RelativeLocation{
						Start: graphmodel.Position{Line: n.Loc.Line - 1, Column: n.Loc.Col - 1},
						End:   graphmodel.Position{Line: n.Loc.Line - 1, Column: n.Loc.Col - 1},
					},
					BodyLocation: graphmodel.RelativeLocation{
						Start: graphmodel.Position{Line: n.Range.Begin.Line - 1, Column: n.Range.Begin.Col - 1},
						End:   graphmodel.Position{Line: n.Range.End.Line - 1, Column: n.Range.End.Col - 1},
					},
				})
			}
		}
		stack = append(stack, n.Inner...)
	}
}

// collectIncludes re-invokes the preprocessor with -H to recover the
// (including, included) pairs for this TU; clang's AST dump itself does not
// carry include edges.
func collectIncludes(args []string, dir, absFile string) []graphmodel.IncludeRelation {
	hArgs := append(append([]string{}, args...), "-H", "-fsyntax-only")
	cmd := exec.Command("clang", hArgs...)
	cmd.Dir = dir
	out, _ := cmd.CombinedOutput()

	var includes []graphmodel.IncludeRelation
	including := absFile
	lines := strings.Split(string(out), "\n")
	for _, line := range lines {
		depth := 0
		for depth < len(line) && line[depth] == '.' {
			depth++
		}
		if depth == 0 {
			continue
		}
		path := strings.TrimSpace(line[depth:])
		if path == "" {
			continue
		}
		includes = append(includes, graphmodel.IncludeRelation{Including: including, Included: path})
	}
	return includes
}
