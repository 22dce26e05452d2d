// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package maintcmd provides the cache-maintenance subcommands dispatched
// when cascache is invoked by its own name rather than as a compiler
// wrapper (spec.md §6): cleanup, show-stats and zero-stats. None of these
// touch the on-disk cache today — the eviction/statistics store they'd
// operate on is a separate collaborator this module doesn't implement —
// so each returns a fixed "not implemented" error. They exist so the
// argv[0]/symlink dispatch rule has a real branch target to land on.
package maintcmd

import (
	"os"

	"github.com/maruel/subcommands"
)

// notImplementedMsg is printed by every subcommand in this package.
const notImplementedMsg = "not implemented: external cache-store collaborator"

// Application returns the subcommands.Application cascache's own-name
// invocation dispatches into.
func Application() *subcommands.DefaultApplication {
	return &subcommands.DefaultApplication{
		Name:  "cascache",
		Title: "cascache cache maintenance",
		Commands: []*subcommands.Command{
			cmdCleanup(),
			cmdShowStats(),
			cmdZeroStats(),
			subcommands.CmdHelp,
		},
	}
}

// Run dispatches args (excluding argv[0]) into the maintenance
// application and returns the process exit code.
func Run(args []string) int {
	return subcommands.Run(Application(), args)
}

func cmdCleanup() *subcommands.Command {
	return &subcommands.Command{
		UsageLine: "--cleanup",
		ShortDesc: "remove stale cache entries",
		LongDesc:  "Scan the cache directory and remove entries past the size or age limit.",
		CommandRun: func() subcommands.CommandRun {
			return &stubRun{name: "cleanup"}
		},
	}
}

func cmdShowStats() *subcommands.Command {
	return &subcommands.Command{
		UsageLine: "--show-stats",
		ShortDesc: "print cache hit/miss counters",
		CommandRun: func() subcommands.CommandRun {
			return &stubRun{name: "show-stats"}
		},
	}
}

func cmdZeroStats() *subcommands.Command {
	return &subcommands.Command{
		UsageLine: "--zero-stats",
		ShortDesc: "reset cache hit/miss counters",
		CommandRun: func() subcommands.CommandRun {
			return &stubRun{name: "zero-stats"}
		},
	}
}

// stubRun implements every maintenance subcommand identically: print the
// not-implemented reason and fail.
type stubRun struct {
	subcommands.CommandRunBase
	name string
}

func (c *stubRun) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	os.Stderr.WriteString("cascache " + c.name + ": " + notImplementedMsg + "\n")
	return 1
}
