// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package orchestrator glues the analyzer and hashers together: it tries
// direct lookup, falls back to preprocessor lookup, on miss runs the real
// compiler, captures outputs, stores them keyed by the result key, and
// updates the manifest. See spec.md §4.6.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"infra/cascache/internal/analyzer"
	"infra/cascache/internal/compilerid"
	"infra/cascache/internal/config"
	"infra/cascache/internal/digest"
	"infra/cascache/internal/hash/common"
	"infra/cascache/internal/hash/depend"
	"infra/cascache/internal/hash/direct"
	"infra/cascache/internal/hash/preprocessor"
	"infra/cascache/internal/manifest"
	"infra/cascache/internal/o11y/clog"
	"infra/cascache/internal/o11y/trace"
	"infra/cascache/internal/resultfile"
	"infra/cascache/internal/runner"
)

// Outcome is what the orchestrator decided to do with an invocation, for
// callers (cmd/cascache/main.go) that need to distinguish a served cache
// hit from a fresh compile from an uncached fallthrough.
type Outcome int

const (
	OutcomeServed Outcome = iota
	OutcomeCompiled
	OutcomeFallthrough
)

// Invocation is everything the orchestrator needs to process one compiler
// invocation.
type Invocation struct {
	CompilerPath string
	Argv         []string // arguments after the compiler path
	Cwd          string
	Env          []string
}

// Orchestrator runs the state machine in spec.md §4.6 for one invocation.
type Orchestrator struct {
	Config      *config.Config
	ManifestDir string
	ResultStore *resultfile.Store
	CompilerRun compilerid.Runner
}

// New returns an Orchestrator configured from cfg.
func New(cfg *config.Config) *Orchestrator {
	return &Orchestrator{
		Config:      cfg,
		ManifestDir: cfg.Dir,
		ResultStore: &resultfile.Store{Dir: cfg.Dir},
		CompilerRun: func(ctx context.Context, args []string) ([]byte, error) {
			out, err := runner.Run(ctx, &runner.Cmd{Args: args})
			if out != nil {
				return out.Stdout, err
			}
			return nil, err
		},
	}
}

// Result is what the orchestrator produced: an exit code to return to the
// caller and, for a served hit, the cached stderr to emit first.
type Result struct {
	Outcome  Outcome
	ExitCode int
	Stderr   []byte
	Reason   error // non-nil only for OutcomeFallthrough
}

// Run executes the full state machine for inv.
func (o *Orchestrator) Run(ctx context.Context, inv Invocation) (*Result, error) {
	invID := uuid.NewString()
	ctx = clog.NewSpan(ctx, invID, nil)
	ctx, end := trace.NewSpan(ctx, "invocation:"+invID)
	defer end()

	guessed := compilerid.Guess(inv.CompilerPath)
	res, err := analyzer.Analyze(inv.Argv, guessed, o.Config.BaseDir, inv.Cwd)
	var rr *analyzer.RejectReason
	if errors.As(err, &rr) {
		clog.Infof(ctx, "fallthrough: %v", rr)
		return &Result{Outcome: OutcomeFallthrough, Reason: rr}, nil
	}
	if err != nil {
		return nil, err
	}

	if o.Config.Disable {
		return &Result{Outcome: OutcomeFallthrough, Reason: errors.New("CCACHE_DISABLE set")}, nil
	}

	commonHasher := digest.NewHasher()
	commonIn := common.Inputs{
		CompilerPath: inv.CompilerPath,
		Cwd:          inv.Cwd,
		Guessed:      guessed,
		Run:          o.CompilerRun,
	}
	if err := common.Hash(ctx, commonHasher, res, o.Config, commonIn); err != nil {
		clog.Warningf(ctx, "common hash failed, falling through: %v", err)
		return &Result{Outcome: OutcomeFallthrough, Reason: err}, nil
	}

	// digestCache memoizes header content digests across this invocation's
	// manifest-lookup verification and any later preprocessor/depend rescan,
	// so a header read for one isn't re-read and re-hashed for the other.
	digestCache := digest.NewStore()

	useDirect := !o.Config.NoDirect
	if useDirect {
		manifestKey, ok := o.tryDirect(ctx, commonHasher, res, inv)
		if ok {
			if resultName, hit := o.lookupManifest(ctx, manifestKey, digestCache); hit {
				if bundle, found, err := o.ResultStore.Get(ctx, resultName); err == nil && found {
					werr := o.serve(ctx, res, bundle)
					if werr == nil {
						return &Result{Outcome: OutcomeServed, ExitCode: bundle.ExitCode, Stderr: bundle.Stderr}, nil
					}
					clog.Warningf(ctx, "restoring cached outputs: %v, falling back to preprocessor", werr)
				} else {
					clog.Infof(ctx, "manifest hit %s but result file missing, falling back to preprocessor", resultName)
				}
			}
			return o.compileViaPreprocessor(ctx, commonHasher, res, inv, guessed, &manifestKey, digestCache)
		}
	}

	return o.compileViaPreprocessor(ctx, commonHasher, res, inv, guessed, nil, digestCache)
}

// tryDirect extends a clone of the common hash with the direct-mode
// contributions, returning the manifest key and whether direct mode
// applies (it is silently disabled on a temporal-macro source).
func (o *Orchestrator) tryDirect(ctx context.Context, commonHasher *digest.Hasher, res *analyzer.Result, inv Invocation) (digest.Digest, bool) {
	h := commonHasher.Clone()
	key, err := direct.Hash(ctx, h, res, o.Config)
	if errors.Is(err, direct.ErrTemporalMacro) {
		clog.Infof(ctx, "temporal macro detected, disabling direct mode for this compile")
		return digest.Digest{}, false
	}
	if err != nil {
		clog.Warningf(ctx, "direct hash failed: %v", err)
		return digest.Digest{}, false
	}
	return key, true
}

func (o *Orchestrator) lookupManifest(ctx context.Context, manifestKey digest.Digest, cache *digest.Store) (digest.Digest, bool) {
	if o.Config.Recache {
		return digest.Digest{}, false
	}
	path := manifest.PathForKey(o.ManifestDir, manifestKey)
	m, err := manifest.Load(path)
	if err != nil {
		clog.Warningf(ctx, "manifest load %s: %v", path, err)
		return digest.Digest{}, false
	}
	name, ok := manifest.Lookup(ctx, m, manifest.VerifyOptions{
		SloppyFileStatMatches:      o.Config.Sloppiness.Has(config.FileStatMatches),
		SloppyFileStatMatchesCtime: o.Config.Sloppiness.Has(config.FileStatMatchesCtime),
	}, cache)
	if ok {
		_ = manifest.Touch(path)
	}
	return name, ok
}

// serve restores bundle's output blobs to the paths res's invocation
// expects them at, so a cache hit leaves the filesystem exactly as a fresh
// compile would have.
func (o *Orchestrator) serve(ctx context.Context, res *analyzer.Result, bundle *resultfile.Bundle) error {
	clog.Infof(ctx, "serving cached result, exit %d", bundle.ExitCode)
	for suffix, path := range map[string]string{
		".o":    res.OutputObj,
		".d":    res.OutputDep,
		".gcno": res.OutputCov,
		".su":   res.OutputSu,
		".dia":  res.OutputDia,
		".dwo":  res.OutputDwo,
	} {
		blob, ok := bundle.Blobs[suffix]
		if !ok || path == "" {
			continue
		}
		if err := os.WriteFile(path, blob, 0o644); err != nil {
			return err
		}
	}
	return nil
}

// compileViaPreprocessor runs the preprocessor-mode (or depend-mode) lookup
// tier, falling back to a real compile on a miss. manifestKey is non-nil
// when a direct-mode manifest key is available for write-back on a
// successful compile.
func (o *Orchestrator) compileViaPreprocessor(ctx context.Context, commonHasher *digest.Hasher, res *analyzer.Result, inv Invocation, guessed compilerid.ID, manifestKey *digest.Digest, cache *digest.Store) (*Result, error) {
	if o.Config.Depend && depend.Eligible(true, res, true, false) {
		return o.compileThenDeriveKey(ctx, commonHasher, res, inv, manifestKey, cache)
	}

	h := commonHasher.Clone()
	var pp *preprocessor.Result
	var err error
	if len(res.ArchArgs) > 1 {
		pp, err = o.multiArchPreprocess(ctx, h, res, inv, guessed, cache)
	} else {
		var r preprocessor.Result
		got, perr := preprocessor.Run(ctx, h, inv.CompilerPath, res, o.Config, guessed, o.Config.BaseDir, inv.Cwd, cache)
		if perr == nil {
			r = *got
		}
		err = perr
		pp = &r
	}
	if err != nil {
		clog.Warningf(ctx, "preprocessor failed, falling through: %v", err)
		return &Result{Outcome: OutcomeFallthrough, Reason: err}, nil
	}

	if !o.Config.Recache {
		if bundle, found, gerr := o.ResultStore.Get(ctx, pp.Key); gerr == nil && found {
			werr := o.serve(ctx, res, bundle)
			if werr == nil {
				return &Result{Outcome: OutcomeServed, ExitCode: bundle.ExitCode, Stderr: bundle.Stderr}, nil
			}
			clog.Warningf(ctx, "restoring cached outputs: %v, recompiling", werr)
		}
	}

	return o.realCompileAndStore(ctx, res, inv, pp.Key, toStats(pp.Included), manifestKey)
}

func (o *Orchestrator) compileThenDeriveKey(ctx context.Context, commonHasher *digest.Hasher, res *analyzer.Result, inv Invocation, manifestKey *digest.Digest, cache *digest.Store) (*Result, error) {
	args := append([]string{}, res.CompilerArgs...)
	out, err := runner.Run(ctx, &runner.Cmd{Args: append([]string{inv.CompilerPath}, args...), Dir: inv.Cwd, Env: inv.Env})
	var exitErr *runner.ExitError
	if errors.As(err, &exitErr) {
		clog.Infof(ctx, "compile failed, exit %d", exitErr.ExitCode)
		return &Result{Outcome: OutcomeCompiled, ExitCode: exitErr.ExitCode, Stderr: out.Stderr}, nil
	}
	if err != nil {
		return nil, err
	}

	h := commonHasher.Clone()
	key, included, derr := depend.Hash(ctx, h, res.OutputDep, o.Config.BaseDir, inv.Cwd, cache)
	if derr != nil {
		return nil, derr
	}

	bundle := resultfile.NewBundle()
	bundle.ExitCode = 0
	bundle.Stderr = out.Stderr
	if err := attachOutputs(bundle, res); err != nil {
		return nil, err
	}
	if !o.Config.ReadOnly {
		if err := o.ResultStore.Put(ctx, key, bundle); err != nil {
			clog.Warningf(ctx, "store result: %v", err)
		}
	}
	if manifestKey != nil && !o.Config.ReadOnly && !o.Config.ReadOnlyDirect {
		o.updateManifest(ctx, *manifestKey, key, dependStats(included))
	}
	return &Result{Outcome: OutcomeCompiled, ExitCode: 0, Stderr: out.Stderr}, nil
}

// multiArchPreprocess runs the preprocessor once per -arch operand,
// substituting each in turn for the full set res.ArchArgs carries, and
// folds every run's contribution into the same hasher in order so the
// result key reflects all architectures, per spec.md §4.6.
func (o *Orchestrator) multiArchPreprocess(ctx context.Context, h *digest.Hasher, res *analyzer.Result, inv Invocation, guessed compilerid.ID, cache *digest.Store) (*preprocessor.Result, error) {
	combined := &preprocessor.Result{}
	for _, arch := range res.ArchArgs {
		perArch := *res
		perArch.PreprocessorArgs = stripArchArgs(res.PreprocessorArgs)
		perArch.PreprocessorArgs = append(perArch.PreprocessorArgs, "-arch", arch)
		r, err := preprocessor.Run(ctx, h, inv.CompilerPath, &perArch, o.Config, guessed, o.Config.BaseDir, inv.Cwd, cache)
		if err != nil {
			return nil, fmt.Errorf("arch %s: %w", arch, err)
		}
		combined.Included = append(combined.Included, r.Included...)
	}
	combined.Key = h.Sum()
	return combined, nil
}

// stripArchArgs removes every "-arch VALUE" pair from args, leaving the
// remaining flags untouched and in order.
func stripArchArgs(args []string) []string {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		if args[i] == "-arch" && i+1 < len(args) {
			i++
			continue
		}
		out = append(out, args[i])
	}
	return out
}

func (o *Orchestrator) realCompileAndStore(ctx context.Context, res *analyzer.Result, inv Invocation, resultKey digest.Digest, stats []manifest.Stat, manifestKey *digest.Digest) (*Result, error) {
	out, err := runner.Run(ctx, &runner.Cmd{Args: append([]string{inv.CompilerPath}, res.CompilerArgs...), Dir: inv.Cwd, Env: inv.Env})
	var exitErr *runner.ExitError
	if errors.As(err, &exitErr) {
		return &Result{Outcome: OutcomeCompiled, ExitCode: exitErr.ExitCode, Stderr: out.Stderr}, nil
	}
	if err != nil {
		return nil, err
	}

	bundle := resultfile.NewBundle()
	bundle.ExitCode = 0
	bundle.Stderr = out.Stderr
	if err := attachOutputs(bundle, res); err != nil {
		return nil, err
	}

	if !o.Config.ReadOnly {
		if err := o.ResultStore.Put(ctx, resultKey, bundle); err != nil {
			clog.Warningf(ctx, "store result: %v", err)
		}
	}
	if manifestKey != nil && !o.Config.ReadOnly && !o.Config.ReadOnlyDirect {
		o.updateManifest(ctx, *manifestKey, resultKey, stats)
	}

	return &Result{Outcome: OutcomeCompiled, ExitCode: 0, Stderr: out.Stderr}, nil
}

func (o *Orchestrator) updateManifest(ctx context.Context, manifestKey, resultKey digest.Digest, stats []manifest.Stat) {
	path := manifest.PathForKey(o.ManifestDir, manifestKey)
	m, err := manifest.Load(path)
	if err != nil {
		m = manifest.New()
	}
	compileStart := time.Now().Unix()
	for i, s := range stats {
		stats[i].Mtime = manifest.TrustTime(s.Mtime, compileStart, s.Mtime, s.Ctime)
		stats[i].Ctime = manifest.TrustTime(s.Ctime, compileStart, s.Mtime, s.Ctime)
	}
	if err := manifest.Put(path, m, resultKey, stats, manifest.CompressionZstd, 3); err != nil {
		clog.Warningf(ctx, "update manifest %s: %v", path, err)
	}
}

func attachOutputs(bundle *resultfile.Bundle, res *analyzer.Result) error {
	for suffix, path := range map[string]string{
		".o":    res.OutputObj,
		".d":    res.OutputDep,
		".gcno": res.OutputCov,
		".su":   res.OutputSu,
		".dia":  res.OutputDia,
		".dwo":  res.OutputDwo,
	} {
		if path == "" {
			continue
		}
		b, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}
		bundle.Set(suffix, b)
	}
	return nil
}

func toStats(included []preprocessor.IncludedFile) []manifest.Stat {
	stats := make([]manifest.Stat, len(included))
	statAll(stats, func(i int) (string, digest.Digest) { return included[i].Path, included[i].Digest })
	return stats
}

func dependStats(included []depend.IncludedFile) []manifest.Stat {
	stats := make([]manifest.Stat, len(included))
	statAll(stats, func(i int) (string, digest.Digest) { return included[i].Path, included[i].Digest })
	return stats
}

// statAll fills out by stat-ing every included file concurrently: a
// translation unit can pull in hundreds of headers, and each stat is
// independent of the others, so there's no reason to serialize them.
func statAll(out []manifest.Stat, at func(i int) (string, digest.Digest)) {
	var g errgroup.Group
	for i := range out {
		i := i
		g.Go(func() error {
			path, d := at(i)
			out[i] = statOf(path, d)
			return nil
		})
	}
	_ = g.Wait()
}

func statOf(path string, d digest.Digest) manifest.Stat {
	size, mtime, ctime, _ := manifest.StatFile(path)
	return manifest.Stat{Path: path, Digest: d, Size: size, Mtime: mtime, Ctime: ctime}
}
