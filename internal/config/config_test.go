// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package config_test

import (
	"testing"

	"infra/cascache/internal/compilerid"
	"infra/cascache/internal/config"
)

func fakeEnv(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load(fakeEnv(nil))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.CompilerCheck.Policy != compilerid.CheckMtime {
		t.Errorf("CompilerCheck.Policy=%v; want CheckMtime", cfg.CompilerCheck.Policy)
	}
	if cfg.Dir == "" {
		t.Errorf("Dir is empty; want a default under $HOME")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	cfg, err := config.Load(fakeEnv(map[string]string{
		"CCACHE_DIR":           "/tmp/cache",
		"CCACHE_BASEDIR":       "/src",
		"CCACHE_SLOPPINESS":    "time_macros,pch_defines",
		"CCACHE_DISABLE":       "true",
		"CCACHE_COMPILERCHECK": "content",
	}))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Dir != "/tmp/cache" {
		t.Errorf("Dir=%q; want /tmp/cache", cfg.Dir)
	}
	if cfg.BaseDir != "/src" {
		t.Errorf("BaseDir=%q; want /src", cfg.BaseDir)
	}
	if !cfg.Sloppiness.Has(config.TimeMacros) || !cfg.Sloppiness.Has(config.PCHDefines) {
		t.Errorf("Sloppiness=%v; want time_macros|pch_defines set", cfg.Sloppiness)
	}
	if !cfg.Disable {
		t.Errorf("Disable=false; want true")
	}
	if cfg.CompilerCheck.Policy != compilerid.CheckContent {
		t.Errorf("CompilerCheck.Policy=%v; want CheckContent", cfg.CompilerCheck.Policy)
	}
}

func TestParseSloppinessIgnoresUnknown(t *testing.T) {
	s := config.ParseSloppiness("time_macros,bogus_token,locale")
	if !s.Has(config.TimeMacros) || !s.Has(config.Locale) {
		t.Errorf("ParseSloppiness=%v; want time_macros|locale", s)
	}
	if s.Has(config.PCHDefines) {
		t.Errorf("ParseSloppiness set pch_defines unexpectedly: %v", s)
	}
}
