// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

//go:build !linux && !windows

package manifest

import (
	"os"
	"time"
)

func statMtime(fi os.FileInfo) int64 {
	return fi.ModTime().Unix()
}

// statCtime falls back to mtime on platforms without a cheap, portable way
// to read inode change time from os.FileInfo. The ctime comparison then
// repeats the mtime comparison, so a ctime-only change goes undetected and
// sloppy_file_stat_matches_ctime makes no difference here.
func statCtime(fi os.FileInfo) int64 {
	return fi.ModTime().Unix()
}

func timeNow() time.Time {
	return time.Now()
}
