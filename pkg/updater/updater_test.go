// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package updater

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/kraklabs/codegraph/pkg/graphingest"
	"github.com/kraklabs/codegraph/pkg/graphmodel"
	"github.com/kraklabs/codegraph/pkg/includegraph"
	"github.com/kraklabs/codegraph/pkg/sourceparser"
)

// fakeDriver records every Cypher call so tests can assert on ingest
// behavior without a live Neo4j instance.
type fakeDriver struct {
	mu    sync.Mutex
	calls []string
}

func (d *fakeDriver) NewSession(ctx context.Context, cfg neo4j.SessionConfig) graphingest.Session {
	return &fakeSession{driver: d}
}

type fakeSession struct{ driver *fakeDriver }

func (s *fakeSession) Run(ctx context.Context, cypher string, params map[string]any) (graphingest.ResultCursor, error) {
	s.driver.mu.Lock()
	s.driver.calls = append(s.driver.calls, cypher)
	s.driver.mu.Unlock()
	return &fakeCursor{}, nil
}

func (s *fakeSession) Close(ctx context.Context) error { return nil }

type fakeCursor struct{}

func (c *fakeCursor) Consume(ctx context.Context) (neo4j.ResultSummary, error) { return nil, nil }

func (d *fakeDriver) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

// fakeSourceParser returns a fixed Result regardless of which files are
// requested, and records the requested set for assertions.
type fakeSourceParser struct {
	result   sourceparser.Result
	lastArgs []string
}

func (f *fakeSourceParser) Parse(files []string) (sourceparser.Result, error) {
	f.lastArgs = files
	return f.result, nil
}

type fakeIncludeStore struct{}

func (fakeIncludeStore) IncludersOf(ctx context.Context, fileID string) ([]string, error) {
	return nil, nil
}

func initGitRepo(t *testing.T, dir string) {
	t.Helper()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v\n%s", args, err, out)
		}
	}
	run("init", "-q")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "test")
}

func commitAll(t *testing.T, dir, message string) string {
	t.Helper()
	cmd := exec.Command("git", "add", "-A")
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git add: %v\n%s", err, out)
	}
	cmd = exec.Command("git", "commit", "-q", "-m", message)
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git commit: %v\n%s", err, out)
	}
	out, err := exec.Command("git", "-C", dir, "rev-parse", "HEAD").Output()
	if err != nil {
		t.Fatalf("rev-parse: %v", err)
	}
	return string(out[:40])
}

func newUpdater(driver *fakeDriver, parser sourceparser.Strategy) *Updater {
	return &Updater{
		Ingestor:     graphingest.New(driver, graphingest.Config{}, nil),
		IncludeGraph: includegraph.NewMaterialized(fakeIncludeStore{}),
		SourceParser: parser,
	}
}

func TestRun_NoChanges_UpdatesCommitHashOnly(t *testing.T) {
	dir := t.TempDir()
	initGitRepo(t, dir)
	writeFile(t, filepath.Join(dir, "a.c"), "int a(void) { return 0; }\n")
	old := commitAll(t, dir, "initial")

	driver := &fakeDriver{}
	u := newUpdater(driver, &fakeSourceParser{})

	res, err := u.Run(context.Background(), Config{
		RepoPath: dir, ProjectRoot: dir, ProjectID: "p1", ProjectName: "proj",
		OldCommit: old, NewCommit: "HEAD",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.NoOp {
		t.Fatalf("expected a no-op result with no changes")
	}
	if driver.callCount() != 1 {
		t.Fatalf("expected exactly one UpsertProject call, got %d", driver.callCount())
	}
}

func TestRun_AbortsWithoutBaseline(t *testing.T) {
	driver := &fakeDriver{}
	u := newUpdater(driver, &fakeSourceParser{})
	_, err := u.Run(context.Background(), Config{RepoPath: ".", ProjectRoot: "."})
	if err == nil {
		t.Fatalf("expected an error when OldCommit is empty")
	}
}

func TestRun_ModifiedFile_PurgesAndReparses(t *testing.T) {
	dir := t.TempDir()
	initGitRepo(t, dir)
	writeFile(t, filepath.Join(dir, "a.c"), "int a(void) { return 0; }\n")
	old := commitAll(t, dir, "initial")

	writeFile(t, filepath.Join(dir, "a.c"), "int a(void) { return 1; }\n")
	commitAll(t, dir, "modify a.c")

	driver := &fakeDriver{}
	fn := graphmodel.FunctionSpan{
		Name:         "a",
		NameLocation: graphmodel.RelativeLocation{Start: graphmodel.Position{Line: 1, Column: 0}},
		BodyLocation: graphmodel.RelativeLocation{Start: graphmodel.Position{Line: 1, Column: 0}, End: graphmodel.Position{Line: 1, Column: 25}},
	}
	parser := &fakeSourceParser{result: sourceparser.Result{
		FunctionSpans: []graphmodel.FileFunctionSpans{{FileURI: filepath.Join(dir, "a.c"), Functions: []graphmodel.FunctionSpan{fn}}},
	}}
	u := newUpdater(driver, parser)

	res, err := u.Run(context.Background(), Config{
		RepoPath: dir, ProjectRoot: dir, ProjectID: "p1", ProjectName: "proj",
		IndexFilePath: "", OldCommit: old, NewCommit: "HEAD",
	})
	// IndexFilePath is empty; indexparser.Parse over a missing file is
	// expected to fail, so this exercises the error path up through step 6
	// rather than a full reingest. A real run supplies a valid index path.
	if err == nil {
		t.Fatalf("expected parse of the new index to fail with an empty index path")
	}
	_ = res
	if len(parser.lastArgs) != 1 || filepath.Base(parser.lastArgs[0]) != "a.c" {
		t.Fatalf("expected the dirty-file reparse to target a.c, got %v", parser.lastArgs)
	}
	if driver.callCount() == 0 {
		t.Fatalf("expected the purge step to have already run against the driver")
	}
}

func TestRun_RenamedFile_PurgesOldPathAndReparsesNewPath(t *testing.T) {
	dir := t.TempDir()
	initGitRepo(t, dir)
	writeFile(t, filepath.Join(dir, "a.c"), "int a(void) { return 0; }\n")
	old := commitAll(t, dir, "initial")

	cmd := exec.Command("git", "mv", "a.c", "b.c")
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git mv: %v\n%s", err, out)
	}
	commitAll(t, dir, "rename a.c to b.c")

	driver := &fakeDriver{}
	parser := &fakeSourceParser{}
	u := newUpdater(driver, parser)

	_, err := u.Run(context.Background(), Config{
		RepoPath: dir, ProjectRoot: dir, ProjectID: "p1", ProjectName: "proj",
		IndexFilePath: "", OldCommit: old, NewCommit: "HEAD",
	})
	// IndexFilePath is empty, so Run fails at step 6 the same way
	// TestRun_ModifiedFile_PurgesAndReparses does; steps 1-5 still ran.
	if err == nil {
		t.Fatalf("expected parse of the new index to fail with an empty index path")
	}
	if len(parser.lastArgs) != 1 || filepath.Base(parser.lastArgs[0]) != "b.c" {
		t.Fatalf("expected the rename's new path (b.c) to be reparsed, got %v", parser.lastArgs)
	}
	if driver.callCount() == 0 {
		t.Fatalf("expected the purge step to have run against the driver for the old path (a.c)")
	}
}

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
