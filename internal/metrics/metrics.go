// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package metrics exposes Prometheus counters and histograms for the
// build/update/enrich pipelines, registered once regardless of how many
// times the package is imported.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type registry struct {
	once sync.Once

	// Ingest
	foldersIngested        prometheus.Counter
	filesIngested          prometheus.Counter
	functionsIngested      prometheus.Counter
	dataStructuresIngested prometheus.Counter
	callsIngested          prometheus.Counter
	includesIngested       prometheus.Counter
	orphansPurged          prometheus.Counter

	// Update
	filesAdded       prometheus.Counter
	filesModified    prometheus.Counter
	filesDeleted     prometheus.Counter
	filesImpacted    prometheus.Counter
	updateNoOps      prometheus.Counter
	symbolsPurged    prometheus.Counter
	includesPurged   prometheus.Counter

	// Rag enrichment
	codeSummaries    prometheus.Counter
	contextSummaries prometheus.Counter
	fileSummaries    prometheus.Counter
	folderSummaries  prometheus.Counter
	projectSummaries prometheus.Counter
	embeddingsOK     prometheus.Counter
	embeddingsFailed prometheus.Counter
	embeddingRetries prometheus.Counter

	// Durations
	parseDuration    prometheus.Histogram
	ingestDuration   prometheus.Histogram
	updateDuration   prometheus.Histogram
	enrichDuration   prometheus.Histogram
}

var m registry

func durationBuckets() []float64 {
	return []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300}
}

func (r *registry) init() {
	r.once.Do(func() {
		r.foldersIngested = prometheus.NewCounter(prometheus.CounterOpts{Name: "codegraph_folders_ingested_total", Help: "FOLDER nodes written"})
		r.filesIngested = prometheus.NewCounter(prometheus.CounterOpts{Name: "codegraph_files_ingested_total", Help: "FILE nodes written"})
		r.functionsIngested = prometheus.NewCounter(prometheus.CounterOpts{Name: "codegraph_functions_ingested_total", Help: "FUNCTION nodes written"})
		r.dataStructuresIngested = prometheus.NewCounter(prometheus.CounterOpts{Name: "codegraph_data_structures_ingested_total", Help: "DATA_STRUCTURE nodes written"})
		r.callsIngested = prometheus.NewCounter(prometheus.CounterOpts{Name: "codegraph_calls_ingested_total", Help: "CALLS edges written"})
		r.includesIngested = prometheus.NewCounter(prometheus.CounterOpts{Name: "codegraph_includes_ingested_total", Help: "INCLUDES edges written"})
		r.orphansPurged = prometheus.NewCounter(prometheus.CounterOpts{Name: "codegraph_orphans_purged_total", Help: "Orphaned nodes removed by cleanup"})

		r.filesAdded = prometheus.NewCounter(prometheus.CounterOpts{Name: "codegraph_update_files_added_total", Help: "Files classified as added by an update run"})
		r.filesModified = prometheus.NewCounter(prometheus.CounterOpts{Name: "codegraph_update_files_modified_total", Help: "Files classified as modified by an update run"})
		r.filesDeleted = prometheus.NewCounter(prometheus.CounterOpts{Name: "codegraph_update_files_deleted_total", Help: "Files classified as deleted by an update run"})
		r.filesImpacted = prometheus.NewCounter(prometheus.CounterOpts{Name: "codegraph_update_files_impacted_total", Help: "Files pulled in via transitive #include impact"})
		r.updateNoOps = prometheus.NewCounter(prometheus.CounterOpts{Name: "codegraph_update_noops_total", Help: "Update runs that found no dirty files"})
		r.symbolsPurged = prometheus.NewCounter(prometheus.CounterOpts{Name: "codegraph_update_symbols_purged_total", Help: "Symbol nodes purged before reingest"})
		r.includesPurged = prometheus.NewCounter(prometheus.CounterOpts{Name: "codegraph_update_includes_purged_total", Help: "INCLUDES edges purged before reingest"})

		r.codeSummaries = prometheus.NewCounter(prometheus.CounterOpts{Name: "codegraph_rag_code_summaries_total", Help: "Function code summaries computed"})
		r.contextSummaries = prometheus.NewCounter(prometheus.CounterOpts{Name: "codegraph_rag_context_summaries_total", Help: "Function context summaries computed"})
		r.fileSummaries = prometheus.NewCounter(prometheus.CounterOpts{Name: "codegraph_rag_file_summaries_total", Help: "File summaries computed"})
		r.folderSummaries = prometheus.NewCounter(prometheus.CounterOpts{Name: "codegraph_rag_folder_summaries_total", Help: "Folder summaries computed"})
		r.projectSummaries = prometheus.NewCounter(prometheus.CounterOpts{Name: "codegraph_rag_project_summaries_total", Help: "Project summaries computed"})
		r.embeddingsOK = prometheus.NewCounter(prometheus.CounterOpts{Name: "codegraph_rag_embeddings_total", Help: "Embeddings computed successfully"})
		r.embeddingsFailed = prometheus.NewCounter(prometheus.CounterOpts{Name: "codegraph_rag_embeddings_failed_total", Help: "Embeddings that exhausted retries"})
		r.embeddingRetries = prometheus.NewCounter(prometheus.CounterOpts{Name: "codegraph_rag_embedding_retries_total", Help: "Embedding retry attempts"})

		buckets := durationBuckets()
		r.parseDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "codegraph_parse_seconds", Help: "Index + source parse duration", Buckets: buckets})
		r.ingestDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "codegraph_ingest_seconds", Help: "Graph write duration", Buckets: buckets})
		r.updateDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "codegraph_update_seconds", Help: "Incremental update duration", Buckets: buckets})
		r.enrichDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "codegraph_enrich_seconds", Help: "RAG enrichment duration", Buckets: buckets})

		prometheus.MustRegister(
			r.foldersIngested, r.filesIngested, r.functionsIngested, r.dataStructuresIngested,
			r.callsIngested, r.includesIngested, r.orphansPurged,
			r.filesAdded, r.filesModified, r.filesDeleted, r.filesImpacted, r.updateNoOps,
			r.symbolsPurged, r.includesPurged,
			r.codeSummaries, r.contextSummaries, r.fileSummaries, r.folderSummaries, r.projectSummaries,
			r.embeddingsOK, r.embeddingsFailed, r.embeddingRetries,
			r.parseDuration, r.ingestDuration, r.updateDuration, r.enrichDuration,
		)
	})
}

func AddFoldersIngested(n int)        { m.init(); m.foldersIngested.Add(float64(n)) }
func AddFilesIngested(n int)          { m.init(); m.filesIngested.Add(float64(n)) }
func AddFunctionsIngested(n int)      { m.init(); m.functionsIngested.Add(float64(n)) }
func AddDataStructuresIngested(n int) { m.init(); m.dataStructuresIngested.Add(float64(n)) }
func AddCallsIngested(n int)          { m.init(); m.callsIngested.Add(float64(n)) }
func AddIncludesIngested(n int)       { m.init(); m.includesIngested.Add(float64(n)) }
func AddOrphansPurged(n int)          { m.init(); m.orphansPurged.Add(float64(n)) }

func AddFilesAdded(n int)     { m.init(); m.filesAdded.Add(float64(n)) }
func AddFilesModified(n int)  { m.init(); m.filesModified.Add(float64(n)) }
func AddFilesDeleted(n int)   { m.init(); m.filesDeleted.Add(float64(n)) }
func AddFilesImpacted(n int)  { m.init(); m.filesImpacted.Add(float64(n)) }
func IncUpdateNoOp()          { m.init(); m.updateNoOps.Inc() }
func AddSymbolsPurged(n int)  { m.init(); m.symbolsPurged.Add(float64(n)) }
func AddIncludesPurged(n int) { m.init(); m.includesPurged.Add(float64(n)) }

func IncCodeSummary()        { m.init(); m.codeSummaries.Inc() }
func IncContextSummary()     { m.init(); m.contextSummaries.Inc() }
func IncFileSummary()        { m.init(); m.fileSummaries.Inc() }
func IncFolderSummary()      { m.init(); m.folderSummaries.Inc() }
func IncProjectSummary()     { m.init(); m.projectSummaries.Inc() }
func IncEmbeddingOK()        { m.init(); m.embeddingsOK.Inc() }
func IncEmbeddingFailed()    { m.init(); m.embeddingsFailed.Inc() }
func IncEmbeddingRetry()     { m.init(); m.embeddingRetries.Inc() }

func ObserveParseSeconds(s float64)  { m.init(); m.parseDuration.Observe(s) }
func ObserveIngestSeconds(s float64) { m.init(); m.ingestDuration.Observe(s) }
func ObserveUpdateSeconds(s float64) { m.init(); m.updateDuration.Observe(s) }
func ObserveEnrichSeconds(s float64) { m.init(); m.enrichDuration.Observe(s) }
