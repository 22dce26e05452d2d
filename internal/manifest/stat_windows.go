// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

//go:build windows

package manifest

import (
	"os"
	"time"
)

func statMtime(fi os.FileInfo) int64 {
	return fi.ModTime().Unix()
}

// statCtime has no Windows equivalent to POSIX inode change time;
// NTFS creation time is the closest analogue but behaves differently
// enough (e.g. preserved across copies) that using mtime here is safer.
func statCtime(fi os.FileInfo) int64 {
	return fi.ModTime().Unix()
}

func timeNow() time.Time {
	return time.Now()
}
