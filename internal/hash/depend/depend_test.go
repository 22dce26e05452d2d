// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package depend_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"infra/cascache/internal/analyzer"
	"infra/cascache/internal/digest"
	"infra/cascache/internal/hash/depend"
)

func TestEligible(t *testing.T) {
	res := &analyzer.Result{OutputDep: "a.d"}
	res.Flags.GeneratingDeps = true
	if !depend.Eligible(true, res, true, false) {
		t.Errorf("Eligible=false; want true")
	}
	if depend.Eligible(false, res, true, false) {
		t.Errorf("Eligible=true with depend mode off; want false")
	}
	if depend.Eligible(true, res, false, false) {
		t.Errorf("Eligible=true with run_second_cpp off; want false")
	}
}

func TestEligibleStepsAsideForMultiArch(t *testing.T) {
	res := &analyzer.Result{OutputDep: "a.d", ArchArgs: []string{"x86_64", "arm64"}}
	res.Flags.GeneratingDeps = true
	if depend.Eligible(true, res, true, false) {
		t.Errorf("Eligible=true with multiple -arch operands; want false (falls back to preprocessor tier's per-arch fan-out)")
	}

	res.ArchArgs = []string{"arm64"}
	if !depend.Eligible(true, res, true, false) {
		t.Errorf("Eligible=false with a single -arch operand; want true")
	}
}

func TestHashParsesDepFile(t *testing.T) {
	dir := t.TempDir()
	hdr := filepath.Join(dir, "a.h")
	if err := os.WriteFile(hdr, []byte("int x;"), 0o644); err != nil {
		t.Fatal(err)
	}
	depFile := filepath.Join(dir, "a.d")
	if err := os.WriteFile(depFile, []byte("a.o: "+hdr+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	h := digest.NewHasher()
	_, included, err := depend.Hash(context.Background(), h, depFile, "", dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(included) != 1 || included[0].Path != hdr {
		t.Errorf("included=%v; want one entry for %s", included, hdr)
	}
}
