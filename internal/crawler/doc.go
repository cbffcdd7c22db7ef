// Package crawler implements the resumable crawl-and-classify engine: the
// checkpointed pagination cursor, the source-profile fallback strategy, the
// result merge, and the convergence loop that drives a run to its target.
package crawler
