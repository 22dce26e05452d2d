// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package manifest

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"infra/cascache/internal/compilerid"
	"infra/cascache/internal/digest"
)

// PathForKey returns the manifest file location for a manifest key under
// cacheDir: <cache-dir>/<first-hex-byte>/<rest>.manifest.
func PathForKey(cacheDir string, key digest.Digest) string {
	hex := key.String()
	return filepath.Join(cacheDir, hex[:2], hex[2:]+".manifest")
}

// Load reads and decodes the manifest at path. A missing file is treated
// as an empty manifest (not an error); a corrupt one is also treated as
// empty, per spec.md §7's "discard and start empty" rule.
func Load(path string) (*Manifest, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return New(), nil
		}
		return nil, err
	}
	m, err := Decode(b)
	if err != nil {
		return New(), nil
	}
	return m, nil
}

// VerifyOptions controls how Lookup verifies a candidate result's
// file_infos against the current filesystem.
type VerifyOptions struct {
	SloppyFileStatMatches       bool
	SloppyFileStatMatchesCtime  bool
	OutputIsPCH                 bool
	Guessed                     compilerid.ID
}

// digestFunc computes a file's current content digest; overridable in
// tests.
type digestFunc func(ctx context.Context, path string) (digest.Digest, error)

// Lookup scans m.Results newest-first, verifying every referenced
// file_info against the current filesystem, and returns the first fully
// verified result's name. It returns false if no result verifies. cache, if
// non-nil, is shared with the caller's other digest computations for this
// same invocation so a header re-read later (e.g. by a preprocessor-mode
// rescan on a miss) isn't rehashed.
func Lookup(ctx context.Context, m *Manifest, opts VerifyOptions, cache *digest.Store) (digest.Digest, bool) {
	digestOf := digest.OfFile
	if cache != nil {
		digestOf = func(ctx context.Context, path string) (digest.Digest, error) {
			return digest.OfFileCached(ctx, cache, path)
		}
	}
	return lookup(ctx, m, opts, digestOf)
}

func lookup(ctx context.Context, m *Manifest, opts VerifyOptions, digestOf digestFunc) (digest.Digest, bool) {
	memo := make(map[int]bool)

	for i := len(m.Results) - 1; i >= 0; i-- {
		res := m.Results[i]
		ok := true
		for _, idx := range res.FileInfoIndexes {
			if verified, done := memo[int(idx)]; done {
				if !verified {
					ok = false
					break
				}
				continue
			}
			v := verifyFileInfo(ctx, m, idx, opts, digestOf)
			memo[int(idx)] = v
			if !v {
				ok = false
				break
			}
		}
		if ok {
			return res.Name, true
		}
	}
	return digest.Digest{}, false
}

func verifyFileInfo(ctx context.Context, m *Manifest, idx uint32, opts VerifyOptions, digestOf digestFunc) bool {
	fi := m.FileInfos[idx]
	path := m.Paths[fi.PathIndex]

	st, err := os.Stat(path)
	if err != nil {
		return false
	}
	if st.Size() != fi.Size {
		return false
	}
	if opts.OutputIsPCH && (opts.Guessed == compilerid.Clang || opts.Guessed == compilerid.Unknown) {
		if statMtime(st) != fi.Mtime {
			return false
		}
	}
	if opts.SloppyFileStatMatches {
		mtimeOK := statMtime(st) == fi.Mtime
		ctimeOK := opts.SloppyFileStatMatchesCtime || statCtime(st) == fi.Ctime
		if mtimeOK && ctimeOK {
			return true
		}
	}

	d, err := digestOf(ctx, path)
	if err != nil {
		return false
	}
	return digest.Equal(d, fi.Digest)
}

// Put appends a new result to m for stats and writes the updated manifest
// to path via a temporary sibling and atomic rename, per spec.md §4.4's
// "locking is not used" design: a lost entry in a race is tolerated, a
// torn write is not.
func Put(path string, m *Manifest, name digest.Digest, stats []Stat, compr CompressionType, level int) error {
	m.Add(name, stats)

	b, err := Encode(m, compr, level)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Touch refreshes a manifest's mtime to protect it from LRU eviction after
// a successful lookup.
func Touch(path string) error {
	now := timeNow()
	return os.Chtimes(path, now, now)
}
