// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package analyzer

import "strings"

var extLanguages = map[string]Language{
	".c":   LangC,
	".i":   LangC,
	".cc":  LangCXX,
	".cp":  LangCXX,
	".cxx": LangCXX,
	".cpp": LangCXX,
	".CPP": LangCXX,
	".c++": LangCXX,
	".C":   LangCXX,
	".ii":  LangCXX,
	".m":   LangObjC,
	".mi":  LangObjC,
	".mm":  LangObjCXX,
	".M":   LangObjCXX,
	".mii": LangObjCXX,
	".cu":  LangCUDA,
	".s":   LangAssembler,
	".S":   LangAssemblerWithCPP,
	".sx":  LangAssemblerWithCPP,
	".h":   LangCHeader,
	".hh":  LangCXXHeader,
	".hpp": LangCXXHeader,
	".hxx": LangCXXHeader,
}

var xArgLanguages = map[string]Language{
	"c":                        LangC,
	"cpp-output":               LangC,
	"c++":                      LangCXX,
	"c++-cpp-output":           LangCXX,
	"objective-c":              LangObjC,
	"objective-c-cpp-output":   LangObjC,
	"objective-c++":            LangObjCXX,
	"objective-c++-cpp-output": LangObjCXX,
	"cu":                       LangCUDA,
	"assembler":                LangAssembler,
	"assembler-with-cpp":       LangAssemblerWithCPP,
	"c-header":                 LangCHeader,
	"c++-header":               LangCXXHeader,
}

// languageFromExt derives the language from a filename's extension. It
// returns LangUnknown for extensions the wrapper does not recognize, e.g.
// ".o" or ".obj" (link-only inputs, which the caller then rejects).
func languageFromExt(path string) Language {
	for ext, lang := range extLanguages {
		if strings.HasSuffix(path, ext) {
			return lang
		}
	}
	return LangUnknown
}

// languageFromXArg derives the language from an explicit -x argument.
func languageFromXArg(s string) (Language, bool) {
	lang, ok := xArgLanguages[s]
	return lang, ok
}
