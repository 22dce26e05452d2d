// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package config

import "strings"

// Sloppiness is a bitset of relaxations a user has explicitly opted into via
// CCACHE_SLOPPINESS, each one disabling a normally-safe hashing check.
type Sloppiness uint32

const (
	IncludeFileMtime Sloppiness = 1 << iota
	IncludeFileCtime
	TimeMacros
	PCHDefines
	FileStatMatches
	FileStatMatchesCtime
	SystemHeaders
	ClangIndexStore
	Locale
	FileMacro
	ModulesInferredNoIncludes
)

var sloppinessNames = map[string]Sloppiness{
	"include_file_mtime":          IncludeFileMtime,
	"include_file_ctime":          IncludeFileCtime,
	"time_macros":                 TimeMacros,
	"pch_defines":                 PCHDefines,
	"file_stat_matches":           FileStatMatches,
	"file_stat_matches_ctime":     FileStatMatchesCtime,
	"system_headers":              SystemHeaders,
	"clang_index_store":           ClangIndexStore,
	"locale":                      Locale,
	"file_macro":                  FileMacro,
	"modules_inferred_no_includes": ModulesInferredNoIncludes,
}

// Has reports whether s has every flag set in f.
func (s Sloppiness) Has(f Sloppiness) bool { return s&f == f }

// ParseSloppiness parses a comma-separated CCACHE_SLOPPINESS value. Unknown
// tokens are ignored, matching ccache's own lenient parsing.
func ParseSloppiness(v string) Sloppiness {
	var s Sloppiness
	for _, tok := range strings.Split(v, ",") {
		tok = strings.TrimSpace(tok)
		if f, ok := sloppinessNames[tok]; ok {
			s |= f
		}
	}
	return s
}

func (s Sloppiness) String() string {
	var names []string
	for name, f := range sloppinessNames {
		if s.Has(f) {
			names = append(names, name)
		}
	}
	return strings.Join(names, ",")
}
