// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package direct_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"infra/cascache/internal/analyzer"
	"infra/cascache/internal/config"
	"infra/cascache/internal/digest"
	"infra/cascache/internal/hash/direct"
)

func writeSrc(t *testing.T, content string) *analyzer.Result {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "a.c")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return &analyzer.Result{InputFile: path}
}

func TestHashDiffersOnContent(t *testing.T) {
	res1 := writeSrc(t, "int x;\n")
	res2 := writeSrc(t, "int y;\n")
	cfg := &config.Config{}

	d1, err := direct.Hash(context.Background(), digest.NewHasher(), res1, cfg)
	if err != nil {
		t.Fatal(err)
	}
	d2, err := direct.Hash(context.Background(), digest.NewHasher(), res2, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if d1 == d2 {
		t.Errorf("differing source content produced equal digests")
	}
}

func TestTemporalMacroDetected(t *testing.T) {
	res := writeSrc(t, `const char *t = __TIME__;`)
	cfg := &config.Config{}
	_, err := direct.Hash(context.Background(), digest.NewHasher(), res, cfg)
	if !errors.Is(err, direct.ErrTemporalMacro) {
		t.Errorf("Hash err=%v; want ErrTemporalMacro", err)
	}
}

func TestTemporalMacroNotFalsePositive(t *testing.T) {
	res := writeSrc(t, `const char *t = "__TIME__INSIDE_IDENT";`)
	cfg := &config.Config{}
	_, err := direct.Hash(context.Background(), digest.NewHasher(), res, cfg)
	if err != nil {
		t.Errorf("Hash err=%v; want nil (macro is part of a longer identifier)", err)
	}
}
