// Package progress prints per-dataset progress of a run.
//
// The Reporter is attached to the orchestrator as an observer and writes one
// line per finished dataset.
//
// # Output Format
//
//	[vforwater-loader] Datasets: 10 | Workers: 4
//	[vforwater-loader] Loading: 3/10 datasets (1 skipped, 0 failed)
//	[vforwater-loader] Done: 8 loaded | 1 skipped | 1 failed | Total time: 12s
package progress
