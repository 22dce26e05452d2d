// Copyright 2023 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package main

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestRunMaintenanceDispatch(t *testing.T) {
	got := run([]string{"cascache", "--cleanup"})
	if got != 1 {
		t.Errorf("run(cascache --cleanup) = %d, want 1", got)
	}
}

func TestRunUsageWithNoCompiler(t *testing.T) {
	got := run([]string{"cascache"})
	if got != 2 {
		t.Errorf("run(cascache) = %d, want 2", got)
	}
}

func TestRunCompilesThroughWrapperForm(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("fake compiler script is a shell script")
	}
	dir := t.TempDir()
	src := filepath.Join(dir, "a.c")
	if err := os.WriteFile(src, []byte("int x;\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	obj := filepath.Join(dir, "a.o")
	cc := writeFakeCompiler(t, dir)

	t.Setenv("CCACHE_DIR", t.TempDir())
	chdir(t, dir)

	got := run([]string{"cascache", cc, "-c", "a.c", "-o", "a.o"})
	if got != 0 {
		t.Fatalf("run = %d, want 0", got)
	}
	if _, err := os.Stat(obj); err != nil {
		t.Errorf("object file not produced: %v", err)
	}
}

func TestFindRealCompilerSkipsSelfDir(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("PATH/symlink layout is POSIX-specific here")
	}
	selfDir := t.TempDir()
	realDir := t.TempDir()

	writeFakeCompiler(t, selfDir)
	writeFakeCompiler(t, realDir)

	t.Setenv("PATH", selfDir+string(os.PathListSeparator)+realDir)

	got, err := findRealCompiler(filepath.Join(selfDir, "cc"))
	if err != nil {
		t.Fatalf("findRealCompiler: %v", err)
	}
	if got != filepath.Join(realDir, "cc") {
		t.Errorf("findRealCompiler = %q, want %q", got, filepath.Join(realDir, "cc"))
	}
}

// writeFakeCompiler writes an executable named "cc" under dir that answers
// -E with a trivial linemarker and otherwise writes a fixed payload to its
// -o target, standing in for a real compiler in tests that can't assume one
// is installed.
func writeFakeCompiler(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "cc")
	script := `#!/bin/sh
for a in "$@"; do
  if [ "$a" = "-E" ]; then
    printf '# 1 "a.c"\nint x;\n'
    exit 0
  fi
done
prev=""
for a in "$@"; do
  if [ "$prev" = "-o" ]; then
    printf 'object-bytes' > "$a"
  fi
  prev="$a"
done
exit 0
`
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(old) })
}
