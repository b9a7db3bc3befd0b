// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package embedding generates vector embeddings for RAG-enriched graph
// nodes, with a worker pool and exponential-backoff-with-jitter retry
// adapted from the ingestion pipeline's embedding generator.
package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Provider generates a single embedding vector for a piece of text.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// RetryConfig controls the Generator's exponential-backoff-with-jitter retry
// loop around a single Embed call.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

func defaultRetryConfig() RetryConfig {
	return RetryConfig{MaxRetries: 3, InitialBackoff: 200 * time.Millisecond, MaxBackoff: 2 * time.Second, Multiplier: 2.0}
}

// Generator fans a batch of (id, text) pairs out across a worker pool,
// retrying transient failures with backoff before giving up on that item.
type Generator struct {
	provider Provider
	workers  int
	retry    RetryConfig
	logger   *slog.Logger
}

// NewGenerator builds a Generator over provider.
func NewGenerator(provider Provider, workers int, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	if workers < 1 {
		workers = 1
	}
	return &Generator{provider: provider, workers: workers, retry: defaultRetryConfig(), logger: logger}
}

// SetRetryConfig overrides the retry policy, falling back to defaults for any
// zero-valued field.
func (g *Generator) SetRetryConfig(cfg RetryConfig) {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 200 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 2 * time.Second
	}
	if cfg.Multiplier <= 1.0 {
		cfg.Multiplier = 2.0
	}
	g.retry = cfg
}

// Item is one unit of embedding work.
type Item struct {
	ID   string
	Text string
}

// Result pairs an Item's id with its resolved vector, or an error if every
// retry was exhausted.
type Result struct {
	ID     string
	Vector []float32
	Err    error
}

// EmbedAll embeds every item, spread across the worker pool; failures are
// reported per-item rather than aborting the batch, per the "transient
// remote errors leave the node un-embedded" error-handling rule.
func (g *Generator) EmbedAll(ctx context.Context, items []Item) []Result {
	jobs := make(chan Item)
	results := make([]Result, len(items))

	var wg sync.WaitGroup
	workers := g.workers
	if workers > len(items) {
		workers = len(items)
	}
	if workers < 1 {
		workers = 1
	}

	indexByID := make(map[string]int, len(items))
	for i, it := range items {
		indexByID[it.ID] = i
	}

	var mu sync.Mutex
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for it := range jobs {
				vec, err := g.embedWithRetry(ctx, it)
				mu.Lock()
				results[indexByID[it.ID]] = Result{ID: it.ID, Vector: vec, Err: err}
				mu.Unlock()
			}
		}()
	}
	for _, it := range items {
		jobs <- it
	}
	close(jobs)
	wg.Wait()
	return results
}

func (g *Generator) embedWithRetry(ctx context.Context, it Item) ([]float32, error) {
	var lastErr error
	for attempt := 0; attempt <= g.retry.MaxRetries; attempt++ {
		vec, err := g.provider.Embed(ctx, it.Text)
		if err == nil {
			return vec, nil
		}
		lastErr = err
		if attempt == g.retry.MaxRetries {
			break
		}
		sleep := backoffWithJitter(g.retry.InitialBackoff, attempt, g.retry.Multiplier, g.retry.MaxBackoff)
		g.logger.Warn("embedding.retry", "id", it.ID, "attempt", attempt+1, "sleep_ms", sleep.Milliseconds(), "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(sleep):
		}
	}
	g.logger.Error("embedding.failed", "id", it.ID, "error", lastErr)
	return nil, lastErr
}

// backoffWithJitter returns exponential backoff with full jitter: a uniform
// draw from [0, min(base*mult^attempt, cap)].
func backoffWithJitter(base time.Duration, attempt int, mult float64, cap_ time.Duration) time.Duration {
	exp := float64(base)
	for i := 0; i < attempt; i++ {
		exp *= mult
	}
	d := time.Duration(exp)
	if d > cap_ {
		d = cap_
	}
	if d <= 0 {
		return base
	}
	return time.Duration(lcgInt63n(int64(d) + 1))
}

// lcgInt63n returns a pseudo-random value in [0,n) via a simple linear
// congruential generator, avoiding a dependency on math/rand's global lock
// for what is just jitter timing.
var (
	lcgMu   sync.Mutex
	lcgSeed int64
)

func lcgInt63n(n int64) int64 {
	if n <= 0 {
		return 0
	}
	lcgMu.Lock()
	defer lcgMu.Unlock()
	const a = 6364136223846793005
	const c = 1
	const m = 1<<63 - 1
	if lcgSeed == 0 {
		lcgSeed = time.Now().UnixNano() & m
	}
	lcgSeed = (a*lcgSeed + c) & m
	seed := lcgSeed
	if seed < 0 {
		seed = -seed
	}
	return seed % n
}

// FakeProvider returns a deterministic, non-semantic embedding derived from
// a text hash, for tests and runs configured with the fake embedding provider.
type FakeProvider struct {
	Dimension int
}

// NewFakeProvider builds a FakeProvider of the given dimension.
func NewFakeProvider(dimension int) *FakeProvider {
	if dimension <= 0 {
		dimension = 384
	}
	return &FakeProvider{Dimension: dimension}
}

func (f *FakeProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	hash := hashString(text)
	vec := make([]float32, f.Dimension)
	for i := range vec {
		val := float32((hash+uint64(i)*7919)%10000) / 10000.0
		vec[i] = val*2.0 - 1.0
	}
	return normalize(vec), nil
}

func hashString(s string) uint64 {
	var hash uint64 = 5381
	for _, c := range s {
		hash = ((hash << 5) + hash) + uint64(c)
	}
	return hash
}

func normalize(v []float32) []float32 {
	var sumSq float32
	for _, x := range v {
		sumSq += x * x
	}
	norm := float32(math.Sqrt(float64(sumSq)))
	if norm == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}

// OllamaProvider calls a local Ollama server's /api/embeddings endpoint.
type OllamaProvider struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllamaProvider builds an OllamaProvider against baseURL (default
// http://localhost:11434) using model.
func NewOllamaProvider(baseURL, model string, timeout time.Duration) *OllamaProvider {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &OllamaProvider{baseURL: strings.TrimSuffix(baseURL, "/"), model: model, client: &http.Client{Timeout: timeout}}
}

func (o *OllamaProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	payload, _ := json.Marshal(map[string]any{"model": o.model, "prompt": text})
	req, err := http.NewRequestWithContext(ctx, "POST", o.baseURL+"/api/embeddings", strings.NewReader(string(payload)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama embed error (status %d): %s", resp.StatusCode, string(body))
	}

	var result struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return normalize(result.Embedding), nil
}

// OpenAIProvider calls an OpenAI-compatible /embeddings endpoint.
type OpenAIProvider struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewOpenAIProvider builds an OpenAIProvider against baseURL (default the
// public OpenAI API) using model.
func NewOpenAIProvider(baseURL, apiKey, model string, timeout time.Duration) *OpenAIProvider {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if model == "" {
		model = "text-embedding-3-small"
	}
	return &OpenAIProvider{baseURL: strings.TrimSuffix(baseURL, "/"), apiKey: apiKey, model: model, client: &http.Client{Timeout: timeout}}
}

func (o *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	payload, _ := json.Marshal(map[string]any{"model": o.model, "input": text})
	req, err := http.NewRequestWithContext(ctx, "POST", o.baseURL+"/embeddings", strings.NewReader(string(payload)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if o.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.apiKey)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai embed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("openai embed error (status %d): %s", resp.StatusCode, string(body))
	}

	var result struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	if len(result.Data) == 0 {
		return nil, fmt.Errorf("openai embed: no data returned")
	}
	return normalize(result.Data[0].Embedding), nil
}

// CreateProvider builds a Provider from an embedding-specific type string:
// "ollama" (or empty), "openai", or "fake" (also "mock"/"test"); any other
// value is an error.
func CreateProvider(providerType, baseURL, apiKey, model string, timeout time.Duration) (Provider, error) {
	switch strings.ToLower(providerType) {
	case "ollama", "":
		return NewOllamaProvider(baseURL, model, timeout), nil
	case "openai":
		return NewOpenAIProvider(baseURL, apiKey, model, timeout), nil
	case "fake", "mock", "test":
		return NewFakeProvider(384), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider type: %s (supported: ollama, openai, fake)", providerType)
	}
}
