// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package manifest_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"infra/cascache/internal/digest"
	"infra/cascache/internal/manifest"
)

func TestStatFileMatchesOSStat(t *testing.T) {
	dir := t.TempDir()
	hdr := filepath.Join(dir, "a.h")
	if err := os.WriteFile(hdr, []byte("int x;"), 0o644); err != nil {
		t.Fatal(err)
	}
	fi, err := os.Stat(hdr)
	if err != nil {
		t.Fatal(err)
	}

	size, mtime, ctime, err := manifest.StatFile(hdr)
	if err != nil {
		t.Fatal(err)
	}
	if size != fi.Size() {
		t.Errorf("StatFile size=%d; want %d", size, fi.Size())
	}
	if mtime == 0 {
		t.Errorf("StatFile mtime=0; want nonzero")
	}
	if ctime == 0 {
		t.Errorf("StatFile ctime=0; want nonzero")
	}

	// Calling StatFile again on the same unmodified file must report the
	// same mtime/ctime, since the write path (via StatFile) and Lookup (read
	// path) both use the same statMtime/statCtime helpers and must agree.
	_, mtime2, ctime2, err := manifest.StatFile(hdr)
	if err != nil {
		t.Fatal(err)
	}
	if mtime2 != mtime || ctime2 != ctime {
		t.Errorf("StatFile not stable: (%d,%d) vs (%d,%d)", mtime, ctime, mtime2, ctime2)
	}
}

func TestRoundTrip(t *testing.T) {
	dir := t.TempDir()
	hdr := filepath.Join(dir, "a.h")
	if err := os.WriteFile(hdr, []byte("int x;"), 0o644); err != nil {
		t.Fatal(err)
	}
	fi, err := os.Stat(hdr)
	if err != nil {
		t.Fatal(err)
	}
	d, err := digest.OfFile(context.Background(), hdr)
	if err != nil {
		t.Fatal(err)
	}

	m := manifest.New()
	resultName := digest.Of([]byte("result1"))
	path := filepath.Join(dir, "key.manifest")
	stats := []manifest.Stat{{Path: hdr, Digest: d, Size: fi.Size(), Mtime: fi.ModTime().Unix(), Ctime: fi.ModTime().Unix()}}

	if err := manifest.Put(path, m, resultName, stats, manifest.CompressionZstd, 3); err != nil {
		t.Fatal(err)
	}

	loaded, err := manifest.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	got, ok := manifest.Lookup(context.Background(), loaded, manifest.VerifyOptions{}, nil)
	if !ok {
		t.Fatal("Lookup: no hit; want hit")
	}
	if got != resultName {
		t.Errorf("Lookup name=%s; want %s", got, resultName)
	}
}

func TestLookupFailsWhenFileGone(t *testing.T) {
	dir := t.TempDir()
	hdr := filepath.Join(dir, "a.h")
	if err := os.WriteFile(hdr, []byte("int x;"), 0o644); err != nil {
		t.Fatal(err)
	}
	d, _ := digest.OfFile(context.Background(), hdr)

	m := manifest.New()
	m.Add(digest.Of([]byte("r1")), []manifest.Stat{{Path: hdr, Digest: d, Size: 6}})

	if err := os.Remove(hdr); err != nil {
		t.Fatal(err)
	}
	_, ok := manifest.Lookup(context.Background(), m, manifest.VerifyOptions{}, nil)
	if ok {
		t.Errorf("Lookup hit after file removed; want miss")
	}
}

func TestBadChecksumTreatedAsCorrupt(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "key.manifest")
	m := manifest.New()
	m.Add(digest.Of([]byte("r1")), nil)
	if err := manifest.Put(path, m, digest.Of([]byte("r1")), nil, manifest.CompressionNone, 0); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	b[len(b)-1] ^= 0xff
	if err := os.WriteFile(path, b, 0o644); err != nil {
		t.Fatal(err)
	}

	loaded, err := manifest.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded.Results) != 0 {
		t.Errorf("Load of corrupt manifest returned %d results; want 0 (treated as empty)", len(loaded.Results))
	}
}

func TestBoundedGrowth(t *testing.T) {
	m := manifest.New()
	for i := 0; i < manifest.MaxEntries+5; i++ {
		m.Add(digest.Of([]byte{byte(i)}), nil)
	}
	if len(m.Results) > manifest.MaxEntries {
		t.Errorf("len(Results)=%d; want <= %d", len(m.Results), manifest.MaxEntries)
	}
}
