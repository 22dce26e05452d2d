// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package analyzer

import (
	"fmt"
	"os"
	"strings"
)

// maxResponseFileDepth bounds response-file expansion recursion. ccache's
// own parser has no explicit cap and relies on the filesystem to eventually
// break a cycle; a response file that includes itself (directly or through
// a chain) would otherwise recurse forever.
const maxResponseFileDepth = 10

// expandResponseFiles expands @file arguments (GCC/Clang/MSVC convention)
// and NVCC's comma-separated --options-file=a,b,c in place, recursively.
func expandResponseFiles(args []string) ([]string, error) {
	return expandResponseFilesDepth(args, 0)
}

func expandResponseFilesDepth(args []string, depth int) ([]string, error) {
	if depth > maxResponseFileDepth {
		return nil, reject(TooHard, "response files nested more than %d deep", maxResponseFileDepth)
	}
	var out []string
	for _, a := range args {
		switch {
		case strings.HasPrefix(a, "@"):
			expanded, err := readResponseFile(a[1:])
			if err != nil {
				return nil, err
			}
			sub, err := expandResponseFilesDepth(expanded, depth+1)
			if err != nil {
				return nil, err
			}
			out = append(out, sub...)
		case strings.HasPrefix(a, "--options-file="):
			for _, fname := range strings.Split(strings.TrimPrefix(a, "--options-file="), ",") {
				expanded, err := readResponseFile(fname)
				if err != nil {
					return nil, err
				}
				sub, err := expandResponseFilesDepth(expanded, depth+1)
				if err != nil {
					return nil, err
				}
				out = append(out, sub...)
			}
		default:
			out = append(out, a)
		}
	}
	return out, nil
}

// readResponseFile reads fname and splits it into whitespace-separated
// tokens, honoring double-quoted segments so a quoted argument containing
// spaces survives as one token.
func readResponseFile(fname string) ([]string, error) {
	b, err := os.ReadFile(fname)
	if err != nil {
		return nil, fmt.Errorf("analyzer: response file %s: %w", fname, err)
	}
	return tokenizeResponseFile(string(b)), nil
}

func tokenizeResponseFile(s string) []string {
	var tokens []string
	var cur strings.Builder
	inQuote := false
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"':
			inQuote = !inQuote
		case !inQuote && (c == ' ' || c == '\t' || c == '\n' || c == '\r'):
			flush()
		default:
			cur.WriteByte(c)
		}
	}
	flush()
	return tokens
}
