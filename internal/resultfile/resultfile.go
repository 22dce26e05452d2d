// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package resultfile implements the result-file bundle: a keyed collection
// of named blobs ({".o", ".d", ".gcno", ".su", ".dia", ".dwo", stderr})
// produced by one compilation, persisted under a sharded, gzip-compressed,
// content-addressed local cache directory. The core passes this bundle
// opaquely; resultfile owns its on-disk shape.
package resultfile

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"infra/cascache/internal/digest"
)

// Bundle is the in-memory form of one result: named blobs plus the process
// exit code and stderr the wrapper must replay on a cache hit.
type Bundle struct {
	ExitCode int
	Stderr   []byte
	Blobs    map[string][]byte // keyed by artifact suffix: ".o", ".d", ".gcno", ".su", ".dia", ".dwo"
}

// NewBundle returns an empty Bundle ready to have blobs attached.
func NewBundle() *Bundle {
	return &Bundle{Blobs: make(map[string][]byte)}
}

// Set attaches a named blob to the bundle.
func (b *Bundle) Set(suffix string, content []byte) {
	b.Blobs[suffix] = content
}

// Store is a local, content-addressed store of result bundles, sharded by
// the first two hex characters of the result key (mirroring the manifest
// store's directory layout) and gzip-compressed on disk.
type Store struct {
	Dir string
}

// PathForKey returns the on-disk location for key's result file.
func (s *Store) PathForKey(key digest.Digest) string {
	hex := key.String()
	return filepath.Join(s.Dir, hex[:2], hex[2:]+".result")
}

// Put writes bundle for key via a temporary sibling and atomic rename, so
// concurrent writers racing on the same key never observe a torn file;
// last writer wins.
func (s *Store) Put(ctx context.Context, key digest.Digest, bundle *Bundle) error {
	path := s.PathForKey(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	raw, err := encode(bundle)
	if err != nil {
		return err
	}

	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	if _, err := zw.Write(raw); err != nil {
		zw.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, gz.Bytes(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Get reads and decodes the result bundle for key, or (nil, false, nil) if
// absent.
func (s *Store) Get(ctx context.Context, key digest.Digest) (*Bundle, bool, error) {
	path := s.PathForKey(key)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, false, fmt.Errorf("resultfile: %s: %w", path, err)
	}
	defer zr.Close()
	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, false, fmt.Errorf("resultfile: %s: %w", path, err)
	}
	bundle, err := decode(raw)
	if err != nil {
		return nil, false, fmt.Errorf("resultfile: %s: %w", path, err)
	}
	return bundle, true, nil
}

// Touch refreshes a result file's mtime, protecting it from external LRU
// eviction after a hit.
func (s *Store) Touch(key digest.Digest) error {
	now := time.Now()
	return os.Chtimes(s.PathForKey(key), now, now)
}
