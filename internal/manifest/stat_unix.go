// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

//go:build linux

package manifest

import (
	"os"
	"syscall"
	"time"
)

func statMtime(fi os.FileInfo) int64 {
	return fi.ModTime().Unix()
}

func statCtime(fi os.FileInfo) int64 {
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return 0
	}
	return st.Ctim.Sec
}

func timeNow() time.Time {
	return time.Now()
}
