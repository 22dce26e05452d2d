// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package direct extends the common digest with the source file's own
// content and the include-search environment, producing the manifest key
// used by the fast lookup tier.
package direct

import (
	"context"
	"errors"
	"os"

	"infra/cascache/internal/analyzer"
	"infra/cascache/internal/config"
	"infra/cascache/internal/digest"
)

// ErrTemporalMacro is returned when the source file contains an unescaped
// __TIME__ or __DATE__ token; direct mode must be silently disabled for
// this compilation and the preprocessor tier used instead.
var ErrTemporalMacro = errors.New("direct: source contains __TIME__ or __DATE__")

var includeSearchEnvVars = []string{
	"CPATH", "C_INCLUDE_PATH", "CPLUS_INCLUDE_PATH",
	"OBJC_INCLUDE_PATH", "OBJCPLUS_INCLUDE_PATH",
}

// Hash extends h (already seeded by the common hasher) with the direct-mode
// contributions and returns the resulting manifest key. sloppiness controls
// whether __FILE__-path hashing is skipped.
func Hash(ctx context.Context, h *digest.Hasher, res *analyzer.Result, cfg *config.Config) (digest.Digest, error) {
	for _, name := range includeSearchEnvVars {
		h.Field("env:"+name, os.Getenv(name))
	}

	if !cfg.Sloppiness.Has(config.FileMacro) {
		h.Field("input_file_path", res.InputFile)
	}

	content, err := os.ReadFile(res.InputFile)
	if err != nil {
		return digest.Digest{}, err
	}
	if hasTemporalMacro(content) {
		return digest.Digest{}, ErrTemporalMacro
	}
	h.FieldBytes("source_content", content)

	return h.Sum(), nil
}

// hasTemporalMacro reports whether buf contains an unescaped __TIME__ or
// __DATE__ token: the macro name must start at the beginning of the buffer
// or be preceded by a non-identifier byte, and be followed by a
// non-identifier byte (or end of buffer).
func hasTemporalMacro(buf []byte) bool {
	for _, macro := range [][]byte{[]byte("__TIME__"), []byte("__DATE__")} {
		if containsToken(buf, macro) {
			return true
		}
	}
	return false
}

func containsToken(buf, token []byte) bool {
	n := len(token)
	for i := 0; i+n <= len(buf); i++ {
		if string(buf[i:i+n]) != string(token) {
			continue
		}
		if i > 0 && isIdentByte(buf[i-1]) {
			continue
		}
		if i+n < len(buf) && isIdentByte(buf[i+n]) {
			continue
		}
		return true
	}
	return false
}

func isIdentByte(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}
