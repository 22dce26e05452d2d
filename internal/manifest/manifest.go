// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package manifest implements the on-disk manifest format: a
// content-addressed, checksummed, versioned, optionally zstd-compressed
// record mapping a direct-mode key to a set of results and the include-file
// fingerprints that justify serving each one. See spec.md §4.4.
package manifest

import (
	"os"

	"infra/cascache/internal/digest"
)

const (
	magic   = "cCmF"
	version = 2

	// MaxEntries bounds |results|; above it the manifest is discarded and
	// rebuilt, a crude LRU surrogate.
	MaxEntries = 100
	// MaxFileInfoEntries bounds |file_infos|.
	MaxFileInfoEntries = 10000
)

// CompressionType selects the body's on-disk encoding.
type CompressionType byte

const (
	CompressionNone CompressionType = 0
	CompressionZstd CompressionType = 1
)

// untrustedTime is the sentinel written for mtime/ctime when the file was
// observed to have been modified within the same second as compilation
// start; such timestamps cannot be trusted to detect a subsequent change.
const untrustedTime int64 = -1

// StatFile stats path and returns the size, mtime and ctime fields a
// FileInfo/Stat needs, using the same platform-specific ctime logic the
// lookup path's verifyFileInfo relies on (stat_unix.go/stat_windows.go/
// stat_other.go), so a freshly written FileInfo and one re-read from disk
// agree on what "ctime" means.
func StatFile(path string) (size, mtime, ctime int64, err error) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, 0, 0, err
	}
	return fi.Size(), statMtime(fi), statCtime(fi), nil
}

// FileInfo is one deduplicated (path, content digest, stat) tuple.
type FileInfo struct {
	PathIndex uint32
	Digest    digest.Digest
	Size      int64
	Mtime     int64
	Ctime     int64
}

// Result is one cached outcome: the result-file key plus the indexes into
// Manifest.FileInfos whose verification justifies serving it.
type Result struct {
	FileInfoIndexes []uint32
	Name            digest.Digest
}

// Manifest is the in-memory form of one manifest file's three parallel
// tables. Results are ordered oldest-first; Lookup scans newest-first.
type Manifest struct {
	Paths     []string
	FileInfos []FileInfo
	Results   []Result
}

// New returns an empty manifest.
func New() *Manifest {
	return &Manifest{}
}

// fileInfoKey identifies a file_info tuple for structural deduplication.
type fileInfoKey struct {
	pathIndex uint32
	digest    digest.Digest
	size      int64
	mtime     int64
	ctime     int64
}

// internPath returns the index of path in m.Paths, appending it if new.
func (m *Manifest) internPath(path string) uint32 {
	for i, p := range m.Paths {
		if p == path {
			return uint32(i)
		}
	}
	m.Paths = append(m.Paths, path)
	return uint32(len(m.Paths) - 1)
}

// internFileInfo returns the index of fi in m.FileInfos, appending it if no
// structurally-identical entry exists yet.
func (m *Manifest) internFileInfo(fi FileInfo) uint32 {
	key := fileInfoKey{fi.PathIndex, fi.Digest, fi.Size, fi.Mtime, fi.Ctime}
	for i, existing := range m.FileInfos {
		if (fileInfoKey{existing.PathIndex, existing.Digest, existing.Size, existing.Mtime, existing.Ctime}) == key {
			return uint32(i)
		}
	}
	m.FileInfos = append(m.FileInfos, fi)
	return uint32(len(m.FileInfos) - 1)
}

// Stat is the filesystem metadata the caller has already gathered for one
// included file, used to populate a FileInfo when appending a result.
type Stat struct {
	Path   string
	Digest digest.Digest
	Size   int64
	Mtime  int64
	Ctime  int64
}

// Add appends a new result for stats, interning paths and file_infos into
// the manifest's shared tables, enforcing the bound-and-discard rule from
// spec.md §4.4 before growing further.
func (m *Manifest) Add(name digest.Digest, stats []Stat) {
	if len(m.Results) >= MaxEntries || len(m.FileInfos) >= MaxFileInfoEntries {
		*m = Manifest{}
	}
	indexes := make([]uint32, len(stats))
	for i, s := range stats {
		pi := m.internPath(s.Path)
		indexes[i] = m.internFileInfo(FileInfo{
			PathIndex: pi,
			Digest:    s.Digest,
			Size:      s.Size,
			Mtime:     s.Mtime,
			Ctime:     s.Ctime,
		})
	}
	m.Results = append(m.Results, Result{FileInfoIndexes: indexes, Name: name})
}

// TrustTime returns untrustedTime if compileStart is not strictly after
// both mtime and ctime (the one-second stat granularity race from spec.md
// §9), otherwise returns t unchanged.
func TrustTime(t, compileStart, mtime, ctime int64) int64 {
	max := mtime
	if ctime > max {
		max = ctime
	}
	if compileStart <= max {
		return untrustedTime
	}
	return t
}
