// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package sourceparser

import (
	"fmt"
	"log/slog"
	"time"
)

// NewStrategy builds the Strategy named by mode, the direct implementation
// of the CLI's --source-parser flag. compileCommandsPath is required for
// ModeClang and ignored otherwise.
func NewStrategy(mode Mode, compileCommandsPath string, workers int, logger *slog.Logger) (Strategy, error) {
	switch mode {
	case ModeClang, "":
		if compileCommandsPath == "" {
			return nil, fmt.Errorf("source parser %q requires --compile-commands", ModeClang)
		}
		return &ClangStrategy{
			CompileCommandsPath: compileCommandsPath,
			Workers:             workers,
			Timeout:             60 * time.Second,
			Logger:              logger,
		}, nil
	case ModeTreeSitter:
		return &TreeSitterStrategy{Workers: workers, Logger: logger}, nil
	default:
		return nil, fmt.Errorf("unknown source parser %q (expected %q or %q)", mode, ModeClang, ModeTreeSitter)
	}
}

// SourceExtensions lists the file extensions both strategies recognize as
// C/C++ translation units or headers; callers use it to narrow a discovered
// file set down to what Parse can consume.
var SourceExtensions = map[string]bool{
	".c": true, ".h": true,
	".cc": true, ".cpp": true, ".cxx": true,
	".hpp": true, ".hxx": true,
}
