// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package config loads cascache's configuration from CCACHE_* environment
// variables, optionally overlaid with a TOML file named by
// CCACHE_CONFIGPATH. Environment variables always win over the file, mirroring
// ccache's own "environment overrides config file" precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"infra/cascache/internal/compilerid"
)

// Config holds all user-tunable cascache behavior.
type Config struct {
	// Dir is the cache directory root (CCACHE_DIR).
	Dir string
	// BaseDir is the prefix under which absolute paths are rewritten
	// relative for hashing, enabling cache hits across checkouts
	// (CCACHE_BASEDIR).
	BaseDir string
	// CompilerCheck selects the compiler-identity hashing policy
	// (CCACHE_COMPILERCHECK).
	CompilerCheck compilerid.Identity
	// Sloppiness relaxes normally-safe hashing checks (CCACHE_SLOPPINESS).
	Sloppiness Sloppiness
	// Disable bypasses the cache entirely; the real compiler always runs
	// (CCACHE_DISABLE).
	Disable bool
	// ReadOnly serves cache hits but never writes new entries
	// (CCACHE_READONLY).
	ReadOnly bool
	// ReadOnlyDirect is like ReadOnly but only for the direct-mode lookup;
	// preprocessor-mode misses still populate the cache (CCACHE_READONLY_DIRECT).
	ReadOnlyDirect bool
	// Recache forces a miss and a fresh write, ignoring any existing entry
	// (CCACHE_RECACHE).
	Recache bool
	// NoDirect disables direct mode, forcing preprocessor mode
	// (CCACHE_NODIRECT).
	NoDirect bool
	// Depend enables depend mode in place of preprocessor mode
	// (CCACHE_DEPEND).
	Depend bool
	// HashDir includes the compilation working directory in the common
	// hash, needed when debug info embeds absolute paths (CCACHE_HASHDIR).
	HashDir bool
	// Debug turns on ccache's own verbose debug logging
	// (CCACHE_DEBUG).
	Debug bool
	// MaxSize caps the local cache size, e.g. "5G" (CCACHE_MAXSIZE).
	MaxSize string
	// Prefix is a command prepended to the real compiler invocation, e.g.
	// a distributed-build wrapper (CCACHE_PREFIX).
	Prefix string
	// ExtraFilesToHash names additional files whose content is folded into
	// the common hash regardless of whether the invocation references them,
	// delimited the same way PATH is (CCACHE_EXTRAFILES).
	ExtraFilesToHash []string
}

// fileConfig mirrors Config's fields for TOML decoding; only fields actually
// present in the file override env-derived defaults before env vars are
// reapplied on top.
type fileConfig struct {
	Dir            string `toml:"cache_dir"`
	BaseDir        string `toml:"base_dir"`
	CompilerCheck  string `toml:"compiler_check"`
	Sloppiness     string `toml:"sloppiness"`
	Disable        bool   `toml:"disable"`
	ReadOnly       bool   `toml:"read_only"`
	ReadOnlyDirect bool   `toml:"read_only_direct"`
	NoDirect       bool   `toml:"no_direct"`
	Depend         bool   `toml:"depend_mode"`
	HashDir        bool   `toml:"hash_dir"`
	Debug          bool   `toml:"debug"`
	MaxSize        string `toml:"max_size"`
	Prefix         string `toml:"prefix_command"`
	ExtraFiles     string `toml:"extra_files_to_hash"`
}

// Load builds a Config from environment variables read via getenv, applying
// an optional CCACHE_CONFIGPATH TOML overlay first so that environment
// variables retain the final say.
func Load(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		CompilerCheck: compilerid.ParseCheck(""),
	}

	if path := getenv("CCACHE_CONFIGPATH"); path != "" {
		var fc fileConfig
		if _, err := toml.DecodeFile(path, &fc); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
		cfg.applyFile(fc)
	}

	cfg.applyEnv(getenv)
	return cfg, nil
}

func (c *Config) applyFile(fc fileConfig) {
	c.Dir = fc.Dir
	c.BaseDir = fc.BaseDir
	if fc.CompilerCheck != "" {
		c.CompilerCheck = compilerid.ParseCheck(fc.CompilerCheck)
	}
	c.Sloppiness = ParseSloppiness(fc.Sloppiness)
	c.Disable = fc.Disable
	c.ReadOnly = fc.ReadOnly
	c.ReadOnlyDirect = fc.ReadOnlyDirect
	c.NoDirect = fc.NoDirect
	c.Depend = fc.Depend
	c.HashDir = fc.HashDir
	c.Debug = fc.Debug
	c.MaxSize = fc.MaxSize
	c.Prefix = fc.Prefix
	if fc.ExtraFiles != "" {
		c.ExtraFilesToHash = splitPathList(fc.ExtraFiles)
	}
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("CCACHE_DIR"); v != "" {
		c.Dir = v
	}
	if v := getenv("CCACHE_BASEDIR"); v != "" {
		c.BaseDir = v
	}
	if v := getenv("CCACHE_COMPILERCHECK"); v != "" {
		c.CompilerCheck = compilerid.ParseCheck(v)
	}
	if v := getenv("CCACHE_SLOPPINESS"); v != "" {
		c.Sloppiness = ParseSloppiness(v)
	}
	if b, ok := envBool(getenv, "CCACHE_DISABLE"); ok {
		c.Disable = b
	}
	if b, ok := envBool(getenv, "CCACHE_READONLY"); ok {
		c.ReadOnly = b
	}
	if b, ok := envBool(getenv, "CCACHE_READONLY_DIRECT"); ok {
		c.ReadOnlyDirect = b
	}
	if b, ok := envBool(getenv, "CCACHE_RECACHE"); ok {
		c.Recache = b
	}
	if b, ok := envBool(getenv, "CCACHE_NODIRECT"); ok {
		c.NoDirect = b
	}
	if b, ok := envBool(getenv, "CCACHE_DEPEND"); ok {
		c.Depend = b
	}
	if b, ok := envBool(getenv, "CCACHE_HASHDIR"); ok {
		c.HashDir = b
	}
	if b, ok := envBool(getenv, "CCACHE_DEBUG"); ok {
		c.Debug = b
	}
	if v := getenv("CCACHE_MAXSIZE"); v != "" {
		c.MaxSize = v
	}
	if v := getenv("CCACHE_PREFIX"); v != "" {
		c.Prefix = v
	}
	if v := getenv("CCACHE_EXTRAFILES"); v != "" {
		c.ExtraFilesToHash = splitPathList(v)
	}
	if c.Dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			c.Dir = home + "/.cascache"
		}
	}
}

// splitPathList splits a CCACHE_EXTRAFILES-style value on the platform path
// list separator, dropping empty elements from doubled or trailing
// separators.
func splitPathList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, string(os.PathListSeparator)) {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// envBool parses a CCACHE_* boolean env var. A set, non-empty value is true
// unless strconv.ParseBool reads it as false (e.g. "0", "false"); unset vars
// leave the existing config value untouched (ok is false).
func envBool(getenv func(string) string, name string) (b, ok bool) {
	v := getenv(name)
	if v == "" {
		return false, false
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return strings.ToLower(v) != "false" && v != "0", true
	}
	return parsed, true
}
