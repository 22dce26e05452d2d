// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package compilerid_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"infra/cascache/internal/compilerid"
)

func TestGuess(t *testing.T) {
	for _, tc := range []struct {
		path string
		want compilerid.ID
	}{
		{"/usr/bin/gcc", compilerid.Gcc},
		{"/usr/bin/x86_64-linux-gnu-g++", compilerid.Gcc},
		{"/usr/bin/clang++", compilerid.Clang},
		{"clang-cl.exe", compilerid.Msvc},
		{"cl.exe", compilerid.Msvc},
		{"/usr/local/cuda/bin/nvcc", compilerid.Nvcc},
		{"/usr/bin/distcc-pump", compilerid.Pump},
		{"/usr/bin/rustc", compilerid.Unknown},
	} {
		if got := compilerid.Guess(tc.path); got != tc.want {
			t.Errorf("Guess(%q)=%s; want %s", tc.path, got, tc.want)
		}
	}
}

func TestParseCheck(t *testing.T) {
	for _, tc := range []struct {
		in         string
		wantPolicy compilerid.CheckPolicy
	}{
		{"", compilerid.CheckMtime},
		{"mtime", compilerid.CheckMtime},
		{"none", compilerid.CheckNone},
		{"content", compilerid.CheckContent},
		{"string:v1", compilerid.CheckString},
		{"%compiler% --version", compilerid.CheckCommand},
	} {
		id := compilerid.ParseCheck(tc.in)
		if id.Policy != tc.wantPolicy {
			t.Errorf("ParseCheck(%q).Policy=%d; want %d", tc.in, id.Policy, tc.wantPolicy)
		}
	}
}

func TestIdentityHashString(t *testing.T) {
	ctx := context.Background()
	id := compilerid.ParseCheck("string:abc")
	got, err := id.Hash(ctx, "/usr/bin/gcc", nil)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if string(got) != "abc" {
		t.Errorf("Hash=%q; want %q", got, "abc")
	}
}

func TestIdentityHashNone(t *testing.T) {
	ctx := context.Background()
	id := compilerid.ParseCheck("none")
	got, err := id.Hash(ctx, "/usr/bin/gcc", nil)
	if err != nil || got != nil {
		t.Errorf("Hash=%q, %v; want nil, nil", got, err)
	}
}

func TestIdentityHashMtimeDiffersOnTouch(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "gcc")
	if err := os.WriteFile(path, []byte("binary"), 0o755); err != nil {
		t.Fatal(err)
	}
	id := compilerid.ParseCheck("mtime")
	h1, err := id.Hash(ctx, path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("binary2"), 0o755); err != nil {
		t.Fatal(err)
	}
	h2, err := id.Hash(ctx, path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(h1) == string(h2) {
		t.Errorf("Hash unchanged after content+size change: %q", h1)
	}
}

func TestIdentityHashCommandSubstitutesCompiler(t *testing.T) {
	ctx := context.Background()
	id := compilerid.ParseCheck("%compiler% --version")
	var gotArgs []string
	run := func(ctx context.Context, args []string) ([]byte, error) {
		gotArgs = args
		return []byte("v1"), nil
	}
	got, err := id.Hash(ctx, "/usr/bin/gcc", run)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "v1" {
		t.Errorf("Hash=%q; want v1", got)
	}
	want := []string{"/usr/bin/gcc", "--version"}
	if len(gotArgs) != len(want) || gotArgs[0] != want[0] || gotArgs[1] != want[1] {
		t.Errorf("run args=%v; want %v", gotArgs, want)
	}
}
