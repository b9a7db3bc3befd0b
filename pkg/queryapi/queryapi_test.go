// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package queryapi

import (
	"context"
	"errors"
	"testing"
)

type fakeEmbedProvider struct {
	err error
}

func (f *fakeEmbedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func TestSemanticSearch_UnsupportedLabel(t *testing.T) {
	c := &Client{}
	_, err := c.SemanticSearch(context.Background(), &fakeEmbedProvider{}, "METHOD", "q", 5)
	if err == nil {
		t.Fatal("expected error for unsupported label, got nil")
	}
}

func TestSemanticSearch_EmbedFailurePropagates(t *testing.T) {
	c := &Client{}
	wantErr := errors.New("embedding backend unavailable")
	_, err := c.SemanticSearch(context.Background(), &fakeEmbedProvider{err: wantErr}, "FUNCTION", "q", 5)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestNodeLabelToIndex_MatchesVectorIndexNames(t *testing.T) {
	// Must mirror the index names graphingest.CreateVectorIndexes creates
	// (label + "_summary_embedding"), or semantic search silently 404s.
	for _, label := range []string{"FUNCTION", "FILE", "FOLDER"} {
		idx, ok := nodeLabelToIndex[label]
		if !ok {
			t.Fatalf("missing index mapping for label %s", label)
		}
		want := label + "_summary_embedding"
		if idx != want {
			t.Fatalf("label %s: got index name %s, want %s", label, idx, want)
		}
	}
}
