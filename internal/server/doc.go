// Package server hosts the Fiber HTTP service that exposes the file cache to
// other processes: resolve/prune/flush operations, holder-scoped locks and the
// diagnostics endpoints under /-/. Handlers stay thin and delegate every cache
// decision to filecache.Engine; URL policy checks happen here before Resolve.
package server
