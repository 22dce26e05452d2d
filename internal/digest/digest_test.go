// Copyright 2023 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package digest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestOfDeterministic(t *testing.T) {
	b := []byte("int x;\n")
	d1 := Of(b)
	d2 := Of(b)
	if d1 != d2 {
		t.Errorf("Of(%q) not deterministic: %v != %v", b, d1, d2)
	}
	if d1.IsZero() {
		t.Errorf("Of(%q).IsZero() = true, want false", b)
	}
}

func TestOfDiffersOnContent(t *testing.T) {
	a := Of([]byte("a"))
	b := Of([]byte("b"))
	if a == b {
		t.Errorf("Of(\"a\") == Of(\"b\"): %v", a)
	}
}

func TestStringRoundTrip(t *testing.T) {
	d := Of([]byte("round trip me"))
	s := d.String()
	if len(s) != Size*2 {
		t.Errorf("String() length = %d, want %d", len(s), Size*2)
	}
	got, err := ParseString(s)
	if err != nil {
		t.Fatalf("ParseString(%q): %v", s, err)
	}
	if got != d {
		t.Errorf("ParseString(%q) = %v, want %v", s, got, d)
	}
}

func TestParseStringRejectsWrongLength(t *testing.T) {
	_, err := ParseString(strings.Repeat("ab", 10))
	if err == nil {
		t.Errorf("ParseString of short hex: want error, got nil")
	}
}

func TestHasherDelimiterAvoidsConcatenationCollision(t *testing.T) {
	h1 := NewHasher()
	h1.Delimiter("a")
	h1.Bytes([]byte("b"))
	h1.Delimiter("c")
	d1 := h1.Sum()

	h2 := NewHasher()
	h2.Delimiter("a")
	h2.Bytes([]byte("bc"))
	d2 := h2.Sum()

	if d1 == d2 {
		t.Errorf("segment framing did not prevent a concatenation collision")
	}
}

func TestHasherCloneIndependence(t *testing.T) {
	h := NewHasher()
	h.Field("prefix", "shared")

	a := h.Clone()
	b := h.Clone()
	a.Field("branch", "a")
	b.Field("branch", "b")

	if a.Sum() == b.Sum() {
		t.Errorf("clones diverged by branch but produced the same digest")
	}

	base := NewHasher()
	base.Field("prefix", "shared")
	base.Field("branch", "a")
	if a.Sum() != base.Sum() {
		t.Errorf("cloned-then-extended hasher did not match an equivalent hasher built from scratch")
	}
}

func TestStore(t *testing.T) {
	s := NewStore()
	d := s.Set([]byte("content"))
	got, ok := s.Get(d)
	if !ok || string(got) != "content" {
		t.Errorf("Get(%v) = %q, %t, want %q, true", d, got, ok, "content")
	}
	if !s.Has(d) {
		t.Errorf("Has(%v) = false, want true", d)
	}
	if s.Size() != 1 {
		t.Errorf("Size() = %d, want 1", s.Size())
	}
}

func TestOfFileCachedMemoizesByPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hdr.h")
	if err := os.WriteFile(path, []byte("v1"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := NewStore()
	d1, err := OfFileCached(context.Background(), s, path)
	if err != nil {
		t.Fatal(err)
	}

	// Rewriting the file after the first read must not change the cached
	// digest; OfFileCached should return the memoized value, not re-read.
	if err := os.WriteFile(path, []byte("v2"), 0o644); err != nil {
		t.Fatal(err)
	}
	d2, err := OfFileCached(context.Background(), s, path)
	if err != nil {
		t.Fatal(err)
	}
	if d1 != d2 {
		t.Errorf("OfFileCached did not memoize: got %v, want %v", d2, d1)
	}

	want := Of([]byte("v2"))
	if got, err := OfFileCached(context.Background(), NewStore(), path); err != nil || got != want {
		t.Errorf("OfFileCached(fresh store) = %v, %v, want %v, nil", got, err, want)
	}
}

func TestOfFileCachedNilStore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hdr.h")
	if err := os.WriteFile(path, []byte("content"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := OfFileCached(context.Background(), nil, path)
	if err != nil {
		t.Fatal(err)
	}
	if want := Of([]byte("content")); got != want {
		t.Errorf("OfFileCached(nil store) = %v, want %v", got, want)
	}
}
