// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package common builds the digest shared by both the direct and
// preprocessor lookup tiers: everything that must agree regardless of which
// tier ultimately serves the request.
package common

import (
	"context"
	"os"

	"infra/cascache/internal/analyzer"
	"infra/cascache/internal/compilerid"
	"infra/cascache/internal/config"
	"infra/cascache/internal/digest"
)

// hashPrefix is bumped to invalidate every prior cache entry at once, e.g.
// after a change to the hashing rules below.
const hashPrefix = "cascache1"

// Inputs bundles everything the common hasher needs beyond the analyzer
// result and config: the compiler path (for identity hashing), the working
// directory, and a way to run a compiler-identity command.
type Inputs struct {
	CompilerPath string
	Cwd          string
	Guessed      compilerid.ID
	Run          compilerid.Runner
}

// Hash seeds h with everything both lookup tiers must agree on, per
// spec.md's common-hasher ordering.
func Hash(ctx context.Context, h *digest.Hasher, res *analyzer.Result, cfg *config.Config, in Inputs) error {
	h.Field("hash_prefix", hashPrefix)
	h.Field("ext", res.ActualLanguage.String())

	idBytes, err := cfg.CompilerCheck.Hash(ctx, in.CompilerPath, in.Run)
	if err != nil {
		return err
	}
	h.FieldBytes("compiler_identity", idBytes)
	h.Field("compiler_basename", basename(in.CompilerPath))

	if !cfg.Sloppiness.Has(config.Locale) {
		for _, name := range []string{"LANG", "LC_ALL", "LC_CTYPE", "LC_MESSAGES"} {
			h.Field("env:"+name, os.Getenv(name))
		}
	}

	if res.Flags.GeneratingDebugInfo && cfg.HashDir {
		h.Field("cwd", in.Cwd)
	}

	if res.Flags.SeenSplitDwarf && res.OutputDwo != "" {
		h.Field("split_dwarf", basename(res.OutputDwo))
	}

	if in.Guessed == compilerid.Gcc {
		h.Field("gcc_colors", os.Getenv("GCC_COLORS"))
	}

	if err := hashArgs(ctx, h, res.CompilerArgs, false, in); err != nil {
		return err
	}
	if err := hashArgs(ctx, h, res.PreprocessorArgs, true, in); err != nil {
		return err
	}
	h.Field("extra_hash_args", joinArgs(res.ExtraHashArgs))

	for _, path := range res.SanitizeBlacklists {
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		h.FieldBytes("sanitizeblacklist", content)
	}

	for _, path := range cfg.ExtraFilesToHash {
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		h.FieldBytes("extrafile", content)
	}

	return nil
}

func basename(p string) string {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '/' || p[i] == '\\' {
			return p[i+1:]
		}
	}
	return p
}

func joinArgs(args []string) string {
	s := ""
	for i, a := range args {
		if i > 0 {
			s += "\x00"
		}
		s += a
	}
	return s
}
