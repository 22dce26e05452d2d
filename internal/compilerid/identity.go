// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package compilerid

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// CheckPolicy selects how the compiler's identity is folded into the common
// hash. See spec.md's compiler-identity policy table.
type CheckPolicy int

const (
	// CheckMtime hashes the compiler binary's size and modification time.
	CheckMtime CheckPolicy = iota
	// CheckContent hashes the compiler binary's full content.
	CheckContent
	// CheckString hashes a fixed, user-supplied string instead of touching
	// the binary at all.
	CheckString
	// CheckCommand runs a user-supplied command (with %compiler% substituted
	// for the compiler path) and hashes its stdout.
	CheckCommand
	// CheckNone contributes nothing; the compiler path itself still goes
	// into the hash as an argument, but its identity does not.
	CheckNone
)

// Identity is a parsed CCACHE_COMPILERCHECK value.
type Identity struct {
	Policy      CheckPolicy
	StringValue string
	Command     []string
}

// ParseCheck parses the CCACHE_COMPILERCHECK configuration value. An empty
// value defaults to CheckMtime, matching ccache's own default.
func ParseCheck(s string) Identity {
	switch {
	case s == "" || s == "mtime":
		return Identity{Policy: CheckMtime}
	case s == "none":
		return Identity{Policy: CheckNone}
	case s == "content":
		return Identity{Policy: CheckContent}
	case strings.HasPrefix(s, "string:"):
		return Identity{Policy: CheckString, StringValue: strings.TrimPrefix(s, "string:")}
	default:
		return Identity{Policy: CheckCommand, Command: strings.Fields(s)}
	}
}

// Runner execs command (already %compiler%-substituted) and returns its
// stdout. Supplied by the caller so this package stays free of process
// management concerns.
type Runner func(ctx context.Context, args []string) ([]byte, error)

// Hash returns the bytes to fold into the common hash for compilerPath under
// id's policy. A nil, zero-length result means "contributes nothing".
func (id Identity) Hash(ctx context.Context, compilerPath string, run Runner) ([]byte, error) {
	switch id.Policy {
	case CheckNone:
		return nil, nil
	case CheckString:
		return []byte(id.StringValue), nil
	case CheckContent:
		return os.ReadFile(compilerPath)
	case CheckMtime:
		fi, err := os.Stat(compilerPath)
		if err != nil {
			return nil, err
		}
		return []byte(fmt.Sprintf("%d:%d", fi.Size(), fi.ModTime().UnixNano())), nil
	case CheckCommand:
		if len(id.Command) == 0 {
			return nil, fmt.Errorf("compilerid: empty compiler_check command")
		}
		args := make([]string, len(id.Command))
		for i, a := range id.Command {
			args[i] = strings.ReplaceAll(a, "%compiler%", compilerPath)
		}
		return run(ctx, args)
	default:
		return nil, fmt.Errorf("compilerid: unknown policy %d", id.Policy)
	}
}

// String renders id back to its CCACHE_COMPILERCHECK form, for logging.
func (id Identity) String() string {
	switch id.Policy {
	case CheckNone:
		return "none"
	case CheckContent:
		return "content"
	case CheckString:
		return "string:" + id.StringValue
	case CheckCommand:
		return strings.Join(id.Command, " ")
	default:
		return "mtime"
	}
}
