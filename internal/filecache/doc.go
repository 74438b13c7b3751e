// Package filecache is the cache engine: it maps remote URLs to local files in
// an evictable "cache" area or a "permanent" area, downloads on a miss with at
// most one in-flight fetch per file, keeps the cache area under a byte
// threshold by evicting unlocked entries oldest first, and supports explicit
// prune and flush with "pruned" notifications keyed by URL.
//
// Consumers that render a resolved file should Lock its name for as long as
// they need it. A holder that never unlocks pins the file until the process
// restarts; ReleaseHolder drops every lock of a holder at once.
package filecache
