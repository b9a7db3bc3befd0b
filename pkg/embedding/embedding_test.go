// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package embedding

import (
	"context"
	"errors"
	"testing"
)

func TestFakeProvider_DeterministicAndNormalized(t *testing.T) {
	p := NewFakeProvider(16)
	v1, err := p.Embed(context.Background(), "int foo(void) { return 1; }")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	v2, _ := p.Embed(context.Background(), "int foo(void) { return 1; }")
	if len(v1) != 16 {
		t.Fatalf("expected dimension 16, got %d", len(v1))
	}
	for i := range v1 {
		if v1[i] != v2[i] {
			t.Fatalf("expected deterministic embeddings, differed at %d", i)
		}
	}
	var norm float64
	for _, x := range v1 {
		norm += float64(x) * float64(x)
	}
	if norm < 0.99 || norm > 1.01 {
		t.Errorf("expected a unit vector, got squared norm %f", norm)
	}
}

type flakyProvider struct {
	failuresLeft int
}

func (f *flakyProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.failuresLeft > 0 {
		f.failuresLeft--
		return nil, errors.New("transient failure")
	}
	return []float32{1, 0, 0}, nil
}

func TestGenerator_RetriesThenSucceeds(t *testing.T) {
	g := NewGenerator(&flakyProvider{failuresLeft: 2}, 1, nil)
	g.SetRetryConfig(RetryConfig{MaxRetries: 3, InitialBackoff: 1, MaxBackoff: 2})

	results := g.EmbedAll(context.Background(), []Item{{ID: "a", Text: "x"}})
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Err != nil {
		t.Fatalf("expected eventual success, got %v", results[0].Err)
	}
}

type alwaysFailProvider struct{}

func (alwaysFailProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("permanent failure")
}

func TestGenerator_PerItemFailureDoesNotAbortBatch(t *testing.T) {
	g := NewGenerator(alwaysFailProvider{}, 2, nil)
	g.SetRetryConfig(RetryConfig{MaxRetries: 1, InitialBackoff: 1, MaxBackoff: 1})

	results := g.EmbedAll(context.Background(), []Item{{ID: "a", Text: "x"}, {ID: "b", Text: "y"}})
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for _, r := range results {
		if r.Err == nil {
			t.Errorf("expected failure for %s", r.ID)
		}
	}
}
