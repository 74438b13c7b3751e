// Package cache manages the two on-disk storage areas of the file cache: the
// evictable "cache" area and the never-evicted "permanent" area. The manager
// is stateless; directory listings and stat calls derive every entry's size
// and last-touched time on demand. New files are staged outside both areas and
// published with an atomic rename so a partial download is never visible under
// its final name.
package cache
