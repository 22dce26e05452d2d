// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package analyzer

import (
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// winDriveRE matches a Windows-style /c/x path using a forward-slash drive
// letter, as emitted by some MSYS/Cygwin shells.
var winDriveRE = regexp.MustCompile(`^/([A-Za-z])/`)

// winPathFixup rewrites /c/x to c:/x. It is a no-op for paths that do not
// match the pattern, so it is safe to call unconditionally regardless of
// host OS.
func winPathFixup(path string) string {
	if m := winDriveRE.FindStringSubmatch(path); m != nil {
		return m[1] + ":/" + path[len(m[0]):]
	}
	return path
}

// RelativePath implements the relative-path rule: if baseDir is non-empty
// and path starts with it, canonicalize path and express it relative to
// cwd; otherwise return path unchanged. Exported for reuse by the
// preprocessor hasher, which applies the same rule to linemarker paths.
func RelativePath(path, baseDir, cwd string) string {
	return relativePath(path, baseDir, cwd)
}

// relativePath implements the relative-path rule: if baseDir is non-empty
// and path starts with it, canonicalize path and express it relative to
// cwd; otherwise return path unchanged.
func relativePath(path, baseDir, cwd string) string {
	path = winPathFixup(path)
	if baseDir == "" || !strings.HasPrefix(path, baseDir) {
		return path
	}
	canon, err := canonicalize(path)
	if err != nil {
		return path
	}
	rel, err := filepath.Rel(cwd, canon)
	if err != nil {
		return path
	}
	return rel
}

// canonicalize resolves path's symlinks like realpath(3). If path does not
// exist, it walks up to the nearest existing ancestor, canonicalizes that,
// and re-appends the non-existent suffix, matching ccache's realpath
// fallback.
func canonicalize(path string) (string, error) {
	suffix := ""
	p := filepath.Clean(path)
	for {
		real, err := filepath.EvalSymlinks(p)
		if err == nil {
			if suffix == "" {
				return real, nil
			}
			return filepath.Join(real, suffix), nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(p)
		if parent == p {
			return "", err
		}
		if suffix == "" {
			suffix = filepath.Base(p)
		} else {
			suffix = filepath.Join(filepath.Base(p), suffix)
		}
		p = parent
	}
}
