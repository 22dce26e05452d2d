// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package preprocessor runs the real compiler in -E mode and hashes the
// preprocessed output while parsing its linemarkers, producing the result
// key for the slower but more precise lookup tier.
package preprocessor

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"infra/cascache/internal/analyzer"
	"infra/cascache/internal/compilerid"
	"infra/cascache/internal/config"
	"infra/cascache/internal/digest"
	"infra/cascache/internal/o11y/clog"
	"infra/cascache/internal/runner"
	"infra/cascache/internal/toolsupport/msvcutil"
)

// ErrIncbin is returned when the preprocessed text contains a ".incbin"
// assembler directive, which references an external file the wrapper
// cannot discover; caching such a compile is unsafe.
var ErrIncbin = errors.New("preprocessor: .incbin directive detected")

// IncludedFile is one header the preprocessor reported having included,
// together with its content digest for manifest file_info population.
type IncludedFile struct {
	Path   string
	Digest digest.Digest
}

// Result is the preprocessor hasher's output: the result key and the set
// of included files to record in the manifest.
type Result struct {
	Key      digest.Digest
	Included []IncludedFile
	// Text is the preprocessed output. The real-compile step does not use
	// it; that step always compiles the original source file.
	Text []byte
}

var (
	lineMarkerRE = regexp.MustCompile(`^#\s*(\d+)\s+"((?:[^"\\]|\\.)*)"([0-9 ]*)`)
	lineDirRE    = regexp.MustCompile(`^#line\s+(\d+)\s+"((?:[^"\\]|\\.)*)"`)
	pchMarkerRE  = regexp.MustCompile(`^#pragma GCC pch_preprocess "((?:[^"\\]|\\.)*)"`)
)

// Run execs the compiler in -E mode and hashes its output into h (already
// seeded by the common hasher), producing the preprocessor-tier result key.
// For the MSVC family (SPEC_FULL.md §8) it instead requests /showIncludes
// output, since cl.exe/clang-cl don't emit GCC-style linemarkers. cache, if
// non-nil, memoizes included-file digests against ones already computed
// elsewhere in this invocation (e.g. a manifest lookup's file_info verify).
func Run(ctx context.Context, h *digest.Hasher, compilerPath string, res *analyzer.Result, cfg *config.Config, guessed compilerid.ID, baseDir, cwd string, cache *digest.Store) (*Result, error) {
	if guessed == compilerid.Msvc {
		return runShowIncludes(ctx, h, compilerPath, res, baseDir, cwd, cache)
	}

	args := append([]string{"-E"}, res.PreprocessorArgs...)
	out, err := runner.Run(ctx, &runner.Cmd{Args: append([]string{compilerPath}, args...), Dir: cwd})
	var exitErr *runner.ExitError
	switch {
	case errors.As(err, &exitErr):
		return nil, fmt.Errorf("preprocessor: compiler exited %d: %s", exitErr.ExitCode, out.Stderr)
	case err != nil:
		return nil, fmt.Errorf("preprocessor: %w", err)
	}

	included, err := scanAndHash(ctx, h, out.Stdout, res, cfg, guessed, baseDir, cwd, cache)
	if err != nil {
		return nil, err
	}

	h.FieldBytes("cpp_stderr", out.Stderr)

	return &Result{Key: h.Sum(), Included: included, Text: out.Stdout}, nil
}

// runShowIncludes is the MSVC-family counterpart of Run: it reruns the
// invocation in /P /showIncludes mode via toolsupport/msvcutil.Deps and
// hashes each "Note: including file:" path instead of scanning linemarkers.
func runShowIncludes(ctx context.Context, h *digest.Hasher, compilerPath string, res *analyzer.Result, baseDir, cwd string, cache *digest.Store) (*Result, error) {
	args := msvcutil.DepsArgs(append([]string{}, res.PreprocessorArgs...))
	deps, extraStderr, err := msvcutil.Deps(ctx, append([]string{compilerPath}, args...), nil, cwd)
	var exitErr *runner.ExitError
	switch {
	case errors.As(err, &exitErr):
		return nil, fmt.Errorf("preprocessor: compiler exited %d: %s", exitErr.ExitCode, extraStderr)
	case err != nil:
		return nil, fmt.Errorf("preprocessor: %w", err)
	}

	seen := make(map[string]bool)
	var included []IncludedFile
	for _, dep := range deps {
		rel := analyzer.RelativePath(dep, baseDir, cwd)
		if seen[rel] {
			continue
		}
		seen[rel] = true
		d, err := digest.OfFileCached(ctx, cache, rel)
		if err != nil {
			clog.Warningf(ctx, "preprocessor(msvc): stat %s: %v", rel, err)
			continue
		}
		included = append(included, IncludedFile{Path: rel, Digest: d})
		h.Field("include", rel)
		h.FieldBytes("include_digest", d[:])
	}
	h.FieldBytes("cpp_stderr", extraStderr)

	return &Result{Key: h.Sum(), Included: included}, nil
}

// scanAndHash walks text line by line looking for linemarkers, feeding each
// newly-seen include path and its content digest into h, per spec.md §4.5.
func scanAndHash(ctx context.Context, h *digest.Hasher, text []byte, res *analyzer.Result, cfg *config.Config, guessed compilerid.ID, baseDir, cwd string, cache *digest.Store) ([]IncludedFile, error) {
	seen := make(map[string]bool)
	var included []IncludedFile

	isPump := guessed == compilerid.Pump

	sc := bufio.NewScanner(bytes.NewReader(text))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for sc.Scan() {
		line := sc.Text()

		if strings.Contains(line, ".incbin") {
			return nil, ErrIncbin
		}

		if isPump && strings.HasPrefix(line, "________") {
			continue
		}

		switch line {
		case `# 31 "<command-line>"`:
			continue
		case `# 32 "<command-line>" 2`:
			line = `# 1 "<command-line>"`
		}

		file, ok := lineMarkerFile(line)
		if !ok {
			h.FieldBytes("cpp_line", []byte(line))
			continue
		}
		if file == "" || file == "<built-in>" || file == "<command-line>" {
			continue
		}
		if strings.HasPrefix(file, cwd) && strings.HasSuffix(file, "//") {
			// GCC emits the bare working directory as a linemarker like
			// `# 1 "/home/x/proj//"` (note the doubled trailing slash) when
			// -g or similar is in effect. Per spec.md §4.5, when hash_dir
			// is unset this shouldn't perturb the hash across checkouts at
			// different absolute paths.
			if !cfg.HashDir {
				continue
			}
		}

		rel := analyzer.RelativePath(file, baseDir, cwd)
		if seen[rel] {
			continue
		}
		seen[rel] = true

		d, err := digest.OfFileCached(ctx, cache, rel)
		if err != nil {
			clog.Warningf(ctx, "preprocessor: stat %s: %v", rel, err)
			continue
		}
		included = append(included, IncludedFile{Path: rel, Digest: d})
		h.Field("include", rel)
		h.FieldBytes("include_digest", d[:])
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	if res.IncludedPCHFile != "" && !seen[res.IncludedPCHFile] {
		d, err := digest.OfFileCached(ctx, cache, res.IncludedPCHFile)
		if err == nil {
			included = append(included, IncludedFile{Path: res.IncludedPCHFile, Digest: d})
			h.Field("include_pch", res.IncludedPCHFile)
			h.FieldBytes("include_pch_digest", d[:])
		}
	}

	return included, nil
}

// lineMarkerFile extracts the filename from a GCC/Clang linemarker
// (# N "FILE" FLAGS), a #line directive, or a #pragma GCC pch_preprocess
// marker.
func lineMarkerFile(line string) (string, bool) {
	if m := lineMarkerRE.FindStringSubmatch(line); m != nil {
		return unescapeC(m[2]), true
	}
	if m := lineDirRE.FindStringSubmatch(line); m != nil {
		return unescapeC(m[2]), true
	}
	if m := pchMarkerRE.FindStringSubmatch(line); m != nil {
		return unescapeC(m[1]), true
	}
	return "", false
}

func unescapeC(s string) string {
	s = strings.ReplaceAll(s, `\"`, `"`)
	s = strings.ReplaceAll(s, `\\`, `\`)
	return s
}
