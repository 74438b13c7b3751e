// Package naming derives the on-disk file name of a cached resource. Names are
// a pure function of the URL, the headers that change the payload and the
// optional file name/extension overrides, so the same logical resource always
// lands on the same file and can be pruned later with the same options.
package naming
