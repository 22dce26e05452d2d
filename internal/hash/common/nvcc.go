// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package common

import "runtime"

// hostCompilerCandidates returns NVCC's platform-default host compiler
// basenames, per spec.md §4.3's NVCC host-compiler rule.
func hostCompilerCandidates() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{"clang", "clang++"}
	case "windows":
		return []string{"cl.exe"}
	default:
		return []string{"gcc", "g++"}
	}
}
