// Copyright 2023 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// cascache is a compiler-invocation cache: run as a drop-in wrapper in
// front of a real compiler, it either serves a previously cached result
// or lets the compile run and caches it for next time. See spec.md §6.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"strings"

	log "github.com/golang/glog"

	"infra/cascache/internal/config"
	"infra/cascache/internal/maintcmd"
	"infra/cascache/internal/orchestrator"
	"infra/cascache/internal/sigcleanup"
)

func main() {
	os.Exit(run(os.Args))
}

// run implements the argv[0]/symlink dispatch rule of spec.md §6 and
// returns the process exit code. It never itself calls os.Exit so tests
// can drive it directly.
func run(args []string) (code int) {
	sigcleanup.Install()
	defer log.Flush()

	var compilerPath string
	var compilerArgs []string
	defer func() {
		if r := recover(); r != nil {
			const size = 64 << 10
			buf := make([]byte, size)
			buf = buf[:runtime.Stack(buf, false)]
			log.Errorf("panic: %v\n%s", r, buf)
			code = 1
			if compilerPath != "" {
				code = execReal(compilerPath, compilerArgs)
			}
		}
	}()

	logBuildInfo()

	ownName := filepath.Base(args[0])
	ownName = strings.TrimSuffix(ownName, filepath.Ext(ownName))

	if len(args) >= 2 && ownName == "cascache" && strings.HasPrefix(args[1], "-") {
		return maintcmd.Run(args[1:])
	}

	if ownName == "cascache" {
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: cascache <compiler> [args...]")
			return 2
		}
		compilerPath = args[1]
		compilerArgs = args[2:]
	} else {
		real, err := findRealCompiler(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "cascache: %v\n", err)
			return 1
		}
		compilerPath = real
		compilerArgs = args[1:]
	}

	cfg, err := config.Load(os.Getenv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cascache: %v\n", err)
		return 1
	}

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "cascache: %v\n", err)
		return 1
	}

	ctx := context.Background()
	o := orchestrator.New(cfg)
	res, err := o.Run(ctx, orchestrator.Invocation{
		CompilerPath: compilerPath,
		Argv:         compilerArgs,
		Cwd:          cwd,
		Env:          os.Environ(),
	})
	if err != nil {
		log.Errorf("cascache: %v", err)
		return execReal(compilerPath, compilerArgs)
	}

	switch res.Outcome {
	case orchestrator.OutcomeServed, orchestrator.OutcomeCompiled:
		os.Stderr.Write(res.Stderr)
		return res.ExitCode
	case orchestrator.OutcomeFallthrough:
		log.Infof("cascache: falling through: %v", res.Reason)
		return execReal(compilerPath, compilerArgs)
	default:
		return 1
	}
}

// execReal runs the real compiler with its stdio connected directly to
// this process's, and returns its exit code; this is the FALLTHROUGH
// terminal state of spec.md §4.6, which never re-enters the cache logic.
func execReal(compilerPath string, args []string) int {
	cmd := exec.Command(compilerPath, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	err := cmd.Run()
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	fmt.Fprintf(os.Stderr, "cascache: %v\n", err)
	return 1
}

// findRealCompiler resolves the actual compiler binary a symlink named
// selfPath is standing in for: every directory on PATH is searched in
// order, skipping selfPath's own directory, for an executable with
// selfPath's basename.
func findRealCompiler(selfPath string) (string, error) {
	self, err := filepath.Abs(selfPath)
	if err != nil {
		return "", err
	}
	selfInfo, err := os.Stat(self)
	if err != nil {
		return "", fmt.Errorf("couldn't find compiler: %w", err)
	}
	name := filepath.Base(self)
	selfDir := filepath.Dir(self)

	for _, dir := range filepath.SplitList(os.Getenv("PATH")) {
		if dir == "" {
			dir = "."
		}
		absDir, err := filepath.Abs(dir)
		if err == nil && absDir == selfDir {
			continue
		}
		candidate := filepath.Join(dir, name)
		info, err := os.Stat(candidate)
		if err != nil || info.IsDir() {
			continue
		}
		if os.SameFile(info, selfInfo) {
			continue
		}
		return candidate, nil
	}
	return "", fmt.Errorf("couldn't find compiler %q on PATH", name)
}

func logBuildInfo() {
	buildinfo, ok := debug.ReadBuildInfo()
	log.Infof("buildinfo: ok=%t", ok)
	if !ok {
		return
	}
	log.Infof("main module: %s %s", buildinfo.Main.Path, buildinfo.Main.Version)
	if log.V(1) {
		for _, m := range buildinfo.Deps {
			log.Infof("deps module: %s %s", m.Path, m.Version)
		}
	}
}
