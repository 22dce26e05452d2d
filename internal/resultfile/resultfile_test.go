// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package resultfile_test

import (
	"context"
	"path/filepath"
	"testing"

	"infra/cascache/internal/digest"
	"infra/cascache/internal/resultfile"
)

func TestPutGetRoundTrip(t *testing.T) {
	store := &resultfile.Store{Dir: t.TempDir()}
	key := digest.Of([]byte("result-key"))

	b := resultfile.NewBundle()
	b.ExitCode = 0
	b.Stderr = []byte("warning: unused variable\n")
	b.Set(".o", []byte("fake object code"))
	b.Set(".d", []byte("a.o: a.c a.h\n"))

	ctx := context.Background()
	if err := store.Put(ctx, key, b); err != nil {
		t.Fatal(err)
	}

	got, ok, err := store.Get(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("Get: not found; want found")
	}
	if string(got.Stderr) != string(b.Stderr) {
		t.Errorf("Stderr=%q; want %q", got.Stderr, b.Stderr)
	}
	if string(got.Blobs[".o"]) != string(b.Blobs[".o"]) {
		t.Errorf(".o blob=%q; want %q", got.Blobs[".o"], b.Blobs[".o"])
	}
	if string(got.Blobs[".d"]) != string(b.Blobs[".d"]) {
		t.Errorf(".d blob=%q; want %q", got.Blobs[".d"], b.Blobs[".d"])
	}
}

func TestGetMissing(t *testing.T) {
	store := &resultfile.Store{Dir: t.TempDir()}
	_, ok, err := store.Get(context.Background(), digest.Of([]byte("nope")))
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Errorf("Get found a result that was never put")
	}
}

func TestPathForKeyShardsByFirstByte(t *testing.T) {
	store := &resultfile.Store{Dir: "/cache"}
	key := digest.Of([]byte("x"))
	path := store.PathForKey(key)
	want := filepath.Join("/cache", key.String()[:2], key.String()[2:]+".result")
	if path != want {
		t.Errorf("PathForKey=%q; want %q", path, want)
	}
}
