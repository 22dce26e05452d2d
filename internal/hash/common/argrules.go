// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package common

import (
	"context"
	"os"
	"strings"

	"infra/cascache/internal/compilerid"
	"infra/cascache/internal/digest"
)

// hashArgs feeds args's per-argument contribution into h, per spec.md
// §4.3. isCPPArgs marks args drawn from preprocessor_args but is not
// consulted: args from either list are hashed by the same rules, and
// options that only affect preprocessing are not skipped.
func hashArgs(ctx context.Context, h *digest.Hasher, args []string, isCPPArgs bool, in Inputs) error {
	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case strings.HasPrefix(a, "-L") || strings.HasPrefix(a, "-Wl,"):
			if in.Guessed == compilerid.Clang || in.Guessed == compilerid.Unknown {
				h.Field("arg", a)
			}
			continue
		case strings.HasPrefix(a, "-fdebug-prefix-map=") ||
			strings.HasPrefix(a, "-ffile-prefix-map=") ||
			strings.HasPrefix(a, "-fmacro-prefix-map="):
			h.Field("arg_stem", stemOf(a))
			continue
		case a == "-MF":
			h.Field("arg_stem", a)
			if i+1 < len(args) {
				i++
			}
			continue
		case strings.HasPrefix(a, "-specs=") || strings.HasPrefix(a, "--specs=") ||
			strings.HasPrefix(a, "-fplugin="):
			h.Field("arg_stem", stemOf(a))
			content, err := os.ReadFile(valueOf(a))
			if err != nil {
				return err
			}
			h.FieldBytes("arg_file_content", content)
			continue
		case a == "-Xclang" && i+3 < len(args) && args[i+1] == "-load" && args[i+2] == "-Xclang":
			plugin := args[i+3]
			h.Field("arg_stem", "-Xclang -load -Xclang")
			content, err := os.ReadFile(plugin)
			if err != nil {
				return err
			}
			h.FieldBytes("arg_file_content", content)
			i += 3
			continue
		case a == "-ccbin" || a == "--compiler-bindir":
			h.Field("arg", a)
			if i+1 < len(args) {
				if err := hashNVCCHostCompiler(h, args[i+1]); err != nil {
					return err
				}
				i++
			}
			continue
		default:
			h.Field("arg", a)
			continue
		}
	}
	return nil
}

func stemOf(a string) string {
	if i := strings.IndexByte(a, '='); i >= 0 {
		return a[:i+1]
	}
	return a
}

func valueOf(a string) string {
	if i := strings.IndexByte(a, '='); i >= 0 {
		return a[i+1:]
	}
	return ""
}

// hashNVCCHostCompiler implements the NVCC host-compiler rule: if ccbin
// names a directory or is empty, enumerate platform-default host compiler
// basenames and hash whichever are found under ccbin or on PATH; otherwise
// hash ccbin directly.
func hashNVCCHostCompiler(h *digest.Hasher, ccbin string) error {
	fi, err := os.Stat(ccbin)
	isDir := err == nil && fi.IsDir()
	if ccbin != "" && !isDir {
		content, err := os.ReadFile(ccbin)
		if err != nil {
			return err
		}
		h.FieldBytes("ccbin_content", content)
		return nil
	}
	for _, name := range hostCompilerCandidates() {
		dirs := []string{ccbin}
		dirs = append(dirs, strings.Split(os.Getenv("PATH"), string(os.PathListSeparator))...)
		for _, dir := range dirs {
			if dir == "" {
				continue
			}
			path := dir + string(os.PathSeparator) + name
			content, err := os.ReadFile(path)
			if err != nil {
				continue
			}
			h.FieldBytes("ccbin_found:"+name, content)
			break
		}
	}
	return nil
}
