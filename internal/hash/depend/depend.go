// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package depend derives the result key from a compiler-emitted dependency
// file instead of running a separate preprocessor pass, per spec.md §4.7.
package depend

import (
	"context"
	"os"

	"infra/cascache/internal/analyzer"
	"infra/cascache/internal/digest"
	"infra/cascache/internal/toolsupport/makeutil"
)

// IncludedFile mirrors preprocessor.IncludedFile; kept as a distinct type
// since the two hashers are never used together for one compilation and
// depend's provenance (a .d file, not linemarkers) is worth keeping visible
// in call sites and logs.
type IncludedFile struct {
	Path   string
	Digest digest.Digest
}

// Eligible reports whether depend mode applies to this invocation, per
// spec.md §4.7's precondition. A single -arch re-invocation yields a single
// .d file naming one arch's headers, which is what depend mode hashes; with
// more than one -arch there is no single dependency file that speaks for
// every arch's compile, so depend mode steps aside in favor of the
// preprocessor tier's per-arch fan-out (spec.md §9(a)).
func Eligible(depModeConfigured bool, res *analyzer.Result, runSecondCPP bool, unify bool) bool {
	return depModeConfigured &&
		res.Flags.GeneratingDeps &&
		runSecondCPP &&
		res.OutputDep != "/dev/null" &&
		len(res.ArchArgs) <= 1 &&
		!unify
}

// Hash parses the dependency file at depFile (already produced by a real
// compile that has already run) and extends h with each declared header,
// rewritten relative and content-digested, per spec.md §4.7. cache, if
// non-nil, memoizes header digests against other digest work done earlier
// in the same invocation (e.g. the preceding manifest lookup).
func Hash(ctx context.Context, h *digest.Hasher, depFile string, baseDir, cwd string, cache *digest.Store) (digest.Digest, []IncludedFile, error) {
	b, err := os.ReadFile(depFile)
	if err != nil {
		return digest.Digest{}, nil, err
	}
	headers := makeutil.ParseDeps(b)

	var included []IncludedFile
	for _, hdr := range headers {
		rel := analyzer.RelativePath(hdr, baseDir, cwd)
		d, err := digest.OfFileCached(ctx, cache, rel)
		if err != nil {
			continue
		}
		included = append(included, IncludedFile{Path: rel, Digest: d})
		h.Field("dep_include", rel)
		h.FieldBytes("dep_include_digest", d[:])
	}

	return h.Sum(), included, nil
}
