// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package graphingest

import (
	"context"
	"testing"
)

func TestIngestFolders_Batches(t *testing.T) {
	driver := &fakeDriver{}
	ing := New(driver, Config{IngestBatchSize: 2}, nil)

	rows := []FolderRow{
		{ID: "f1", Path: "src", ParentID: "proj"},
		{ID: "f2", Path: "src/a", ParentID: "f1"},
		{ID: "f3", Path: "src/b", ParentID: "f1"},
	}
	if err := ing.IngestFolders(context.Background(), rows); err != nil {
		t.Fatalf("IngestFolders: %v", err)
	}
	if driver.callCount() != 2 {
		t.Fatalf("expected 2 batches of size 2, got %d calls", driver.callCount())
	}
	if driver.rowCount() != 3 {
		t.Fatalf("expected 3 total rows, got %d", driver.rowCount())
	}
}

func TestIngestDefines_IsolatedParallelGroupsByFile(t *testing.T) {
	driver := &fakeDriver{}
	ing := New(driver, Config{Defines: IsolatedParallel, Workers: 4}, nil)

	rows := []DefinesRow{
		{FileID: "fileA", SymbolID: "s1"},
		{FileID: "fileA", SymbolID: "s2"},
		{FileID: "fileB", SymbolID: "s3"},
	}
	if err := ing.IngestDefines(context.Background(), rows); err != nil {
		t.Fatalf("IngestDefines: %v", err)
	}
	if driver.callCount() != 2 {
		t.Fatalf("expected one call per distinct file, got %d", driver.callCount())
	}
	if driver.rowCount() != 3 {
		t.Fatalf("expected 3 total rows, got %d", driver.rowCount())
	}
}

func TestDryRun_NeverCallsDriver(t *testing.T) {
	driver := &fakeDriver{}
	ing := New(driver, Config{DryRun: true}, nil)

	if err := ing.UpsertProject(context.Background(), "p1", "proj", "abc123"); err != nil {
		t.Fatalf("UpsertProject: %v", err)
	}
	if driver.callCount() != 0 {
		t.Fatalf("expected dry run to skip the driver, got %d calls", driver.callCount())
	}
}

func TestCleanupOrphans_SkippedWhenKeepOrphans(t *testing.T) {
	driver := &fakeDriver{}
	ing := New(driver, Config{KeepOrphans: true}, nil)

	if err := ing.CleanupOrphans(context.Background()); err != nil {
		t.Fatalf("CleanupOrphans: %v", err)
	}
	if driver.callCount() != 0 {
		t.Fatalf("expected --keep-orphans to skip cleanup, got %d calls", driver.callCount())
	}
}
