// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package analyzer

import (
	"os"
	"path/filepath"
	"strings"

	"infra/cascache/internal/compilerid"
)

// tooHardOptions is a curated subset of options ccache refuses to reason
// about statically; any command containing one of these falls through
// uncached.
var tooHardOptions = map[string]bool{
	"-fbranch-probabilities": true,
	"-save-temps":            true,
	"-combine":                true,
	"-fsyntax-only":          true,
	"-precompile":            true,
}

// pathBearingFlags take a path operand that must go through the
// relative-path rule. true means "operand is the next argv token"; false
// means "operand is attached after an = or the flag itself".
var pathBearingFlags = map[string]bool{
	"-I":           true,
	"-isystem":     true,
	"-iquote":      true,
	"-idirafter":   true,
	"-MF":          true,
	"-MT":          true,
	"-MQ":          true,
	"-MJ":          true,
	"-include":     true,
	"-include-pch": true,
	"-include-pth": true,
}

// cppOnlyFlags affect only the preprocessor. They are still passed to the
// real compile as well, because that step compiles the original source
// file, not the preprocessed text.
var cppOnlyFlags = map[string]bool{
	"-I":         true,
	"-isystem":   true,
	"-iquote":    true,
	"-idirafter": true,
	"-D":         true,
	"-U":         true,
	"-include":   true,
	"-nostdinc":  true,
	"-undef":     true,
}

// compilerOnlyFlags affect only codegen, not preprocessing, and so are
// never passed to the preprocessor step.
var compilerOnlyFlags = map[string]bool{
	"-g":        true,
	"-O":        true,
	"-Wall":     true,
	"-pthread":  true,
	"-fPIC":     true,
	"-fpic":     true,
}

// depOnlyFlags affect only dependency-file generation.
var depOnlyFlags = map[string]bool{
	"-MD":  true,
	"-MMD": true,
	"-MG":  true,
	"-MP":  true,
	"-M":   true,
	"-MM":  true,
}

// Analyze classifies argv (the invocation's arguments after the compiler
// path itself) for guessed compiler family guessed, rewriting paths under
// baseDir relative to cwd.
func Analyze(argv []string, guessed compilerid.ID, baseDir, cwd string) (*Result, error) {
	argv, err := expandResponseFiles(argv)
	if err != nil {
		return nil, err
	}

	r := &Result{}
	var inputs []string
	var output string

	i := 0
	for i < len(argv) {
		a := argv[i]

		switch {
		case a == "-E":
			return nil, reject(TooHard, "-E is a preprocess-only invocation")
		case a == "-c":
			r.Flags.FoundC = true
			i++
			continue
		case a == "-dc":
			r.Flags.FoundDC = true
			i++
			continue
		case a == "-S":
			r.Flags.FoundS = true
			i++
			continue
		case a == "-o":
			if i+1 >= len(argv) {
				return nil, reject(BadOutput, "-o with no operand")
			}
			output = argv[i+1]
			i += 2
			continue
		case strings.HasPrefix(a, "-o") && len(a) > 2:
			output = a[2:]
			i++
			continue
		case strings.HasPrefix(a, "-Xarch_"):
			return nil, reject(TooHard, "%s is per-arch and cannot be statically reasoned about", a)
		case a == "-Wp,-P" || strings.Contains(a, ",-P"):
			return nil, reject(TooHard, "%s disables linemarkers, breaking preprocessor hashing", a)
		case a == "--ccache-skip":
			if i+1 >= len(argv) {
				return nil, reject(TooHard, "--ccache-skip with no following token")
			}
			// spec.md's open question (b): --ccache-skip consumes the
			// following token into common_args without distinguishing
			// its kind.
			r.CompilerArgs = append(r.CompilerArgs, argv[i+1])
			r.PreprocessorArgs = append(r.PreprocessorArgs, argv[i+1])
			i += 2
			continue
		case a == "-arch":
			if i+1 >= len(argv) {
				return nil, reject(TooHard, "-arch with no operand")
			}
			if len(r.ArchArgs) >= maxArchArgs {
				return nil, reject(TooHard, "more than %d -arch options", maxArchArgs)
			}
			r.ArchArgs = append(r.ArchArgs, argv[i+1])
			r.CompilerArgs = append(r.CompilerArgs, a, argv[i+1])
			r.PreprocessorArgs = append(r.PreprocessorArgs, a, argv[i+1])
			i += 2
			continue
		case tooHardOptions[a]:
			return nil, reject(TooHard, "%s is not statically reasoned about", a)
		case strings.HasPrefix(a, "-fdump-") && a != "-fdump-rtl-all":
			return nil, reject(TooHard, "%s has unpredictable side output", a)
		case strings.HasPrefix(a, "-x"):
			var langStr string
			if a == "-x" {
				if i+1 >= len(argv) {
					return nil, reject(UnsupportedLanguage, "-x with no operand")
				}
				langStr = argv[i+1]
				i += 2
			} else {
				langStr = strings.TrimPrefix(a, "-x")
				i++
			}
			lang, ok := languageFromXArg(langStr)
			if !ok {
				return nil, reject(UnsupportedLanguage, "unsupported -x language %q", langStr)
			}
			r.ActualLanguage = lang
			r.CompilerArgs = append(r.CompilerArgs, "-x", langStr)
			r.PreprocessorArgs = append(r.PreprocessorArgs, "-x", langStr)
			continue
		case strings.HasPrefix(a, "-fdebug-prefix-map=") ||
			strings.HasPrefix(a, "-ffile-prefix-map=") ||
			strings.HasPrefix(a, "-fmacro-prefix-map="):
			// Hashed by stem only (handled in the common hasher); the
			// value is irrelevant to cacheability, so pass through
			// unmodified to both stages.
			r.CompilerArgs = append(r.CompilerArgs, a)
			r.PreprocessorArgs = append(r.PreprocessorArgs, a)
			i++
			continue
		case strings.HasPrefix(a, "-fprofile-"):
			r.Flags.ProfileUse = r.Flags.ProfileUse || strings.HasPrefix(a, "-fprofile-use")
			r.Flags.ProfileGenerate = r.Flags.ProfileGenerate || strings.HasPrefix(a, "-fprofile-generate")
			r.Flags.ProfileArcs = r.Flags.ProfileArcs || a == "-fprofile-arcs"
			r.CompilerArgs = append(r.CompilerArgs, a)
			r.PreprocessorArgs = append(r.PreprocessorArgs, a)
			i++
			continue
		case a != "-gsplit-dwarf" && strings.HasPrefix(a, "-g"):
			r.Flags.GeneratingDebugInfo = true
			if a == "-g3" || strings.HasSuffix(a, "gdwarf-5") {
				r.Flags.GeneratingDebugInfoL3 = true
			}
			r.CompilerArgs = append(r.CompilerArgs, a)
			i++
			continue
		case a == "--coverage" || a == "-ftest-coverage":
			r.Flags.GeneratingCoverage = true
			r.CompilerArgs = append(r.CompilerArgs, a)
			i++
			continue
		case a == "-fstack-usage":
			r.Flags.GeneratingStackUsage = true
			r.CompilerArgs = append(r.CompilerArgs, a)
			i++
			continue
		case a == "--serialize-diagnostics":
			if i+1 >= len(argv) {
				return nil, reject(TooHard, "--serialize-diagnostics with no operand")
			}
			r.Flags.GeneratingDiagnostics = true
			r.OutputDia = relativePath(argv[i+1], baseDir, cwd)
			r.CompilerArgs = append(r.CompilerArgs, a, r.OutputDia)
			i += 2
			continue
		case a == "-gsplit-dwarf":
			r.Flags.SeenSplitDwarf = true
			r.CompilerArgs = append(r.CompilerArgs, a)
			i++
			continue
		case depOnlyFlags[a]:
			r.Flags.GeneratingDeps = r.Flags.GeneratingDeps || a == "-MD" || a == "-MMD" || a == "-M" || a == "-MM"
			r.DepArgs = append(r.DepArgs, a)
			i++
			continue
		case pathBearingFlags[a]:
			if i+1 >= len(argv) {
				return nil, reject(TooHard, "%s with no operand", a)
			}
			raw := argv[i+1]
			if a == "-include" || a == "-include-pch" || a == "-include-pth" {
				if pch := detectPCH(a, raw); pch != "" {
					if r.IncludedPCHFile != "" && r.IncludedPCHFile != pch {
						return nil, reject(TooHard, "multiple precompiled headers used: %s and %s", r.IncludedPCHFile, pch)
					}
					r.IncludedPCHFile = pch
					r.Flags.UsingPCH = true
				}
			}
			operand := relativePath(raw, baseDir, cwd)
			switch a {
			case "-MF":
				r.OutputDep = operand
				r.DepArgs = append(r.DepArgs, a, operand)
			case "-MT", "-MQ", "-MJ":
				r.DepArgs = append(r.DepArgs, a, operand)
			case "-include", "-include-pch", "-include-pth":
				r.CompilerArgs = append(r.CompilerArgs, a, operand)
				r.PreprocessorArgs = append(r.PreprocessorArgs, a, operand)
			default:
				r.CompilerArgs = append(r.CompilerArgs, a, operand)
				r.PreprocessorArgs = append(r.PreprocessorArgs, a, operand)
			}
			i += 2
			continue
		case strings.HasPrefix(a, "--sysroot="):
			operand := relativePath(strings.TrimPrefix(a, "--sysroot="), baseDir, cwd)
			rewritten := "--sysroot=" + operand
			r.CompilerArgs = append(r.CompilerArgs, rewritten)
			r.PreprocessorArgs = append(r.PreprocessorArgs, rewritten)
			i++
			continue
		case strings.HasPrefix(a, "-L") || a == "-Wl," || strings.HasPrefix(a, "-Wl,"):
			if guessed == compilerid.Clang || guessed == compilerid.Unknown {
				r.CompilerArgs = append(r.CompilerArgs, a)
			}
			i++
			continue
		case strings.HasPrefix(a, "-fsanitize-blacklist="):
			r.SanitizeBlacklists = append(r.SanitizeBlacklists, strings.TrimPrefix(a, "-fsanitize-blacklist="))
			r.CompilerArgs = append(r.CompilerArgs, a)
			r.PreprocessorArgs = append(r.PreprocessorArgs, a)
			i++
			continue
		case strings.HasPrefix(a, "-specs=") || strings.HasPrefix(a, "--specs="):
			r.CompilerArgs = append(r.CompilerArgs, a)
			r.PreprocessorArgs = append(r.PreprocessorArgs, a)
			i++
			continue
		case strings.HasPrefix(a, "-fplugin="):
			r.CompilerArgs = append(r.CompilerArgs, a)
			i++
			continue
		case a == "-Xclang" && i+3 < len(argv) && argv[i+1] == "-load" && argv[i+2] == "-Xclang":
			plugin := argv[i+3]
			r.CompilerArgs = append(r.CompilerArgs, a, argv[i+1], argv[i+2], plugin)
			r.PreprocessorArgs = append(r.PreprocessorArgs, a, argv[i+1], argv[i+2], plugin)
			i += 4
			continue
		case cppOnlyFlags[a] || strings.HasPrefix(a, "-D") || strings.HasPrefix(a, "-U") || strings.HasPrefix(a, "-I"):
			r.PreprocessorArgs = append(r.PreprocessorArgs, a)
			r.CompilerArgs = append(r.CompilerArgs, a)
			i++
			continue
		case compilerOnlyFlags[a]:
			r.CompilerArgs = append(r.CompilerArgs, a)
			i++
			continue
		case strings.HasPrefix(a, "-"):
			// Unrecognized option: default to common (hashed, passed to
			// both stages) so an unknown flag never silently widens the
			// cache's blind spot.
			r.CompilerArgs = append(r.CompilerArgs, a)
			r.PreprocessorArgs = append(r.PreprocessorArgs, a)
			i++
			continue
		default:
			// Bare token: source input or stray positional argument.
			inputs = append(inputs, a)
			i++
			continue
		}
	}

	if output == "-" {
		return nil, reject(BadOutput, "-o - is not cacheable")
	}
	if !r.Flags.FoundC && !r.Flags.FoundDC && !r.Flags.FoundS {
		return nil, reject(Link, "no -c/-dc/-S: link invocation")
	}
	if len(inputs) == 0 {
		return nil, reject(NoInput, "no input file")
	}
	if len(inputs) > 1 {
		return nil, reject(MultipleInputs, "%d input files", len(inputs))
	}

	input := inputs[0]
	if input != os.DevNull {
		if fi, err := os.Stat(input); err != nil || !fi.Mode().IsRegular() {
			return nil, reject(NoInput, "%s is not a regular file", input)
		}
	}
	r.InputFile = relativePath(input, baseDir, cwd)
	r.CompilerArgs = append(r.CompilerArgs, r.InputFile)
	r.PreprocessorArgs = append(r.PreprocessorArgs, r.InputFile)

	if r.ActualLanguage == LangUnknown {
		r.ActualLanguage = languageFromExt(input)
	}
	if r.ActualLanguage == LangUnknown {
		return nil, reject(UnsupportedLanguage, "unrecognized extension for %s", input)
	}

	if output != "" {
		out := relativePath(output, baseDir, cwd)
		dir := filepath.Dir(out)
		if dir != "." {
			if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
				return nil, reject(BadOutput, "output directory %s does not exist", dir)
			}
		}
		r.OutputObj = out
		if r.ActualLanguage.GeneratesPCH() {
			r.Flags.OutputIsPCH = true
		}
	}
	if r.Flags.GeneratingCoverage {
		r.OutputCov = strings.TrimSuffix(r.OutputObj, filepath.Ext(r.OutputObj)) + ".gcno"
	}
	if r.Flags.GeneratingStackUsage {
		r.OutputSu = strings.TrimSuffix(r.OutputObj, filepath.Ext(r.OutputObj)) + ".su"
	}
	if r.Flags.SeenSplitDwarf {
		r.OutputDwo = strings.TrimSuffix(r.OutputObj, filepath.Ext(r.OutputObj)) + ".dwo"
	}

	r.CompilerArgs = append([]string{"-c"}, r.CompilerArgs...)
	if output != "" {
		r.CompilerArgs = append(r.CompilerArgs, "-o", r.OutputObj)
	}

	return r, nil
}

// detectPCH implements ccache's detect_pch() probe for a path-bearing
// option's operand: -include-pch/-include-pth name the precompiled header
// directly, so arg itself is stat'd; -include instead names the header
// being included, so the gch/pch/pth suffixes are tried against arg in
// turn. Returns "" if no precompiled header is in use.
func detectPCH(option, arg string) string {
	if option == "-include-pch" || option == "-include-pth" {
		if fi, err := os.Stat(arg); err == nil && fi.Mode().IsRegular() {
			return arg
		}
		return ""
	}
	for _, ext := range []string{".gch", ".pch", ".pth"} {
		candidate := arg + ext
		if fi, err := os.Stat(candidate); err == nil && fi.Mode().IsRegular() {
			return candidate
		}
	}
	return ""
}
