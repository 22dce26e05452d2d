// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package common_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"infra/cascache/internal/analyzer"
	"infra/cascache/internal/compilerid"
	"infra/cascache/internal/config"
	"infra/cascache/internal/digest"
	"infra/cascache/internal/hash/common"
)

func hashCompiler(t *testing.T, res *analyzer.Result, cfg *config.Config, in common.Inputs) digest.Digest {
	t.Helper()
	h := digest.NewHasher()
	if err := common.Hash(context.Background(), h, res, cfg, in); err != nil {
		t.Fatalf("common.Hash: %v", err)
	}
	return h.Sum()
}

func baseInputs(t *testing.T) (*analyzer.Result, *config.Config, common.Inputs) {
	t.Helper()
	dir := t.TempDir()
	compiler := filepath.Join(dir, "gcc")
	if err := os.WriteFile(compiler, []byte("binary"), 0o755); err != nil {
		t.Fatal(err)
	}
	res := &analyzer.Result{
		ActualLanguage: analyzer.LangC,
		CompilerArgs:   []string{"-c", "a.c"},
	}
	cfg := &config.Config{CompilerCheck: compilerid.ParseCheck("mtime")}
	in := common.Inputs{CompilerPath: compiler, Cwd: dir, Guessed: compilerid.Gcc}
	return res, cfg, in
}

func TestHashDeterministic(t *testing.T) {
	res, cfg, in := baseInputs(t)
	d1 := hashCompiler(t, res, cfg, in)
	d2 := hashCompiler(t, res, cfg, in)
	if d1 != d2 {
		t.Errorf("Hash not deterministic: %s vs %s", d1, d2)
	}
}

func TestPrefixMapValueNeutral(t *testing.T) {
	res1, cfg, in := baseInputs(t)
	res1.CompilerArgs = append(res1.CompilerArgs, "-fdebug-prefix-map=/a=/x")
	res2, _, _ := baseInputs(t)
	res2.CompilerArgs = append(res2.CompilerArgs, "-fdebug-prefix-map=/b=/y")

	d1 := hashCompiler(t, res1, cfg, in)
	d2 := hashCompiler(t, res2, cfg, in)
	if d1 != d2 {
		t.Errorf("prefix-map value changed hash: %s vs %s", d1, d2)
	}
}

func TestPrefixMapPresenceChangesHash(t *testing.T) {
	res1, cfg, in := baseInputs(t)
	res2, _, _ := baseInputs(t)
	res2.CompilerArgs = append(res2.CompilerArgs, "-fdebug-prefix-map=/a=/x")

	d1 := hashCompiler(t, res1, cfg, in)
	d2 := hashCompiler(t, res2, cfg, in)
	if d1 == d2 {
		t.Errorf("adding prefix-map option did not change hash")
	}
}

func TestLinkerFlagsNeutralForGCC(t *testing.T) {
	res1, cfg, in := baseInputs(t)
	res2, _, _ := baseInputs(t)
	res2.CompilerArgs = append(res2.CompilerArgs, "-L/opt/lib", "-Wl,-rpath,/opt/lib")

	d1 := hashCompiler(t, res1, cfg, in)
	d2 := hashCompiler(t, res2, cfg, in)
	if d1 != d2 {
		t.Errorf("gcc: -L/-Wl, changed hash: %s vs %s", d1, d2)
	}
}

func TestLinkerFlagsMatterForClang(t *testing.T) {
	res1, cfg, in := baseInputs(t)
	in.Guessed = compilerid.Clang
	res2, _, _ := baseInputs(t)
	res2.CompilerArgs = append(res2.CompilerArgs, "-L/opt/lib")

	d1 := hashCompiler(t, res1, cfg, in)
	d2 := hashCompiler(t, res2, cfg, in)
	if d1 == d2 {
		t.Errorf("clang: -L did not change hash")
	}
}

func TestSanitizeBlacklistContentChangesHash(t *testing.T) {
	res1, cfg, in := baseInputs(t)
	list := filepath.Join(in.Cwd, "blacklist.txt")
	if err := os.WriteFile(list, []byte("fun:a"), 0o644); err != nil {
		t.Fatal(err)
	}
	res1.SanitizeBlacklists = []string{list}
	d1 := hashCompiler(t, res1, cfg, in)

	if err := os.WriteFile(list, []byte("fun:b"), 0o644); err != nil {
		t.Fatal(err)
	}
	d2 := hashCompiler(t, res1, cfg, in)
	if d1 == d2 {
		t.Errorf("changing sanitize-blacklist content did not change hash")
	}

	res2, _, _ := baseInputs(t)
	d3 := hashCompiler(t, res2, cfg, in)
	if d1 == d3 {
		t.Errorf("presence of -fsanitize-blacklist= did not change hash")
	}
}

func TestXclangLoadPluginContentChangesHash(t *testing.T) {
	res1, cfg, in := baseInputs(t)
	plugin := filepath.Join(in.Cwd, "plugin.so")
	if err := os.WriteFile(plugin, []byte("v1"), 0o644); err != nil {
		t.Fatal(err)
	}
	res1.CompilerArgs = append(res1.CompilerArgs, "-Xclang", "-load", "-Xclang", plugin)
	d1 := hashCompiler(t, res1, cfg, in)

	if err := os.WriteFile(plugin, []byte("v2"), 0o644); err != nil {
		t.Fatal(err)
	}
	d2 := hashCompiler(t, res1, cfg, in)
	if d1 == d2 {
		t.Errorf("changing -Xclang -load -Xclang plugin content did not change hash")
	}
}

func TestExtraFilesToHashContentChangesHash(t *testing.T) {
	res, _, in := baseInputs(t)
	extra := filepath.Join(in.Cwd, "extra.txt")
	if err := os.WriteFile(extra, []byte("v1"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := &config.Config{CompilerCheck: compilerid.ParseCheck("mtime"), ExtraFilesToHash: []string{extra}}
	d1 := hashCompiler(t, res, cfg, in)

	if err := os.WriteFile(extra, []byte("v2"), 0o644); err != nil {
		t.Fatal(err)
	}
	d2 := hashCompiler(t, res, cfg, in)
	if d1 == d2 {
		t.Errorf("changing extra_files_to_hash content did not change hash")
	}
}
