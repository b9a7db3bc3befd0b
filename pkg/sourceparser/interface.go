// Copyright 2026 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package sourceparser produces per-file function spans and include edges
// from raw C/C++ source, via two interchangeable backends: a Clang-backed
// strategy driven by a compile_commands.json, and a Tree-sitter-backed
// strategy that needs no build system integration but cannot recover
// include edges.
package sourceparser

import "github.com/kraklabs/codegraph/pkg/graphmodel"

// Strategy parses a list of project files into function spans and include
// relations. Both ClangStrategy and TreeSitterStrategy implement it.
type Strategy interface {
	Parse(files []string) (Result, error)
}

// Result is the output of a full Parse call.
type Result struct {
	FunctionSpans    []graphmodel.FileFunctionSpans
	IncludeRelations []graphmodel.IncludeRelation
}

// Mode selects which Strategy a caller wants; mirrors the CLI's
// --source-parser flag.
type Mode string

const (
	ModeClang      Mode = "clang"
	ModeTreeSitter Mode = "treesitter"
)
