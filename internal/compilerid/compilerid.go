// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package compilerid guesses the compiler family from a compiler path and
// implements the compiler-identity check policies used to decide what goes
// into the common hash for the compiler binary itself.
package compilerid

import (
	"path/filepath"
	"strings"
)

// ID identifies a compiler family.
type ID int

const (
	Unknown ID = iota
	Gcc
	Clang
	Nvcc
	Pump
	Msvc
)

func (id ID) String() string {
	switch id {
	case Gcc:
		return "gcc"
	case Clang:
		return "clang"
	case Nvcc:
		return "nvcc"
	case Pump:
		return "pump"
	case Msvc:
		return "msvc"
	default:
		return "unknown"
	}
}

// Guess returns the compiler family for compilerPath, based solely on its
// basename (stripped of any .exe suffix). It never execs the compiler.
func Guess(compilerPath string) ID {
	base := filepath.Base(compilerPath)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.ToLower(base)

	switch {
	case strings.Contains(base, "nvcc"):
		return Nvcc
	case strings.Contains(base, "pump") || strings.Contains(base, "distcc-pump"):
		return Pump
	case base == "cl" || strings.Contains(base, "clang-cl"):
		return Msvc
	case strings.Contains(base, "clang"):
		return Clang
	case strings.Contains(base, "gcc"), strings.Contains(base, "g++"),
		strings.HasSuffix(base, "-cc"), base == "cc", base == "c++",
		strings.Contains(base, "gnu-cc"):
		return Gcc
	default:
		return Unknown
	}
}
