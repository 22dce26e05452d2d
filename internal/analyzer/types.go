// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package analyzer classifies a raw compiler invocation into the argument
// buckets the hashing and orchestration pipeline needs: which tokens affect
// only the preprocessor, only the compiler proper, both, or only dependency
// generation, along with the derived input/output file set and a flag
// record describing what kind of artifacts the invocation produces.
package analyzer

import "fmt"

// Language is the compilation language, either named explicitly via -x or
// derived from the input file's extension.
type Language int

const (
	LangUnknown Language = iota
	LangC
	LangCXX
	LangObjC
	LangObjCXX
	LangCUDA
	LangAssembler
	LangAssemblerWithCPP
	LangCHeader
	LangCXXHeader
)

func (l Language) String() string {
	switch l {
	case LangC:
		return "c"
	case LangCXX:
		return "c++"
	case LangObjC:
		return "objective-c"
	case LangObjCXX:
		return "objective-c++"
	case LangCUDA:
		return "cu"
	case LangAssembler:
		return "assembler"
	case LangAssemblerWithCPP:
		return "assembler-with-cpp"
	case LangCHeader:
		return "c-header"
	case LangCXXHeader:
		return "c++-header"
	default:
		return "unknown"
	}
}

// GeneratesPCH reports whether l produces a precompiled header rather than
// an object file.
func (l Language) GeneratesPCH() bool {
	return l == LangCHeader || l == LangCXXHeader
}

// Flags records the generation modes an invocation triggers, independent of
// the concrete argv shape that produced them.
type Flags struct {
	FoundC, FoundDC, FoundS bool

	GeneratingDeps        bool
	GeneratingCoverage    bool
	GeneratingStackUsage  bool
	GeneratingDiagnostics bool
	GeneratingDebugInfo   bool
	GeneratingDebugInfoL3 bool

	ProfileUse      bool
	ProfileGenerate bool
	ProfileArcs     bool

	SeenSplitDwarf bool
	DirectIFile    bool
	UsingPCH       bool
	OutputIsPCH    bool
}

// Result is the analyzer's output for one invocation: the derived argv
// lists the hashers and the real-compiler fallback consume, plus the file
// and flag record.
type Result struct {
	InputFile string
	OutputObj string
	OutputDep string
	OutputCov string
	OutputSu  string
	OutputDia string
	OutputDwo string

	ActualLanguage Language

	// PreprocessorArgs is passed to "<compiler> -E".
	PreprocessorArgs []string
	// CompilerArgs is passed to the real compile step.
	CompilerArgs []string
	// ExtraHashArgs never reach the compiler; they exist purely to widen
	// the common hash.
	ExtraHashArgs []string
	// DepArgs affects only dependency-file generation.
	DepArgs []string

	ArchArgs []string

	Flags Flags

	IncludedPCHFile string

	// SanitizeBlacklists lists every -fsanitize-blacklist=PATH operand seen,
	// in argv order; ccache hashes each one's content (spec.md §4.2).
	SanitizeBlacklists []string
}

// RejectKind categorizes why the analyzer refused to classify an
// invocation for caching.
type RejectKind int

const (
	_ RejectKind = iota
	TooHard
	MultipleInputs
	Link
	NoInput
	BadOutput
	UnsupportedLanguage
)

func (k RejectKind) String() string {
	switch k {
	case TooHard:
		return "too_hard"
	case MultipleInputs:
		return "multiple_inputs"
	case Link:
		return "link"
	case NoInput:
		return "no_input"
	case BadOutput:
		return "bad_output"
	case UnsupportedLanguage:
		return "unsupported_language"
	default:
		return "unknown"
	}
}

// RejectReason explains why Analyze refused an invocation. The orchestrator
// treats any non-nil RejectReason as "fall through to the real compiler,
// uncached".
type RejectReason struct {
	Kind   RejectKind
	Detail string
}

func (r *RejectReason) Error() string {
	if r.Detail == "" {
		return r.Kind.String()
	}
	return fmt.Sprintf("%s: %s", r.Kind, r.Detail)
}

func reject(kind RejectKind, format string, args ...any) error {
	return &RejectReason{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

const maxArchArgs = 10
