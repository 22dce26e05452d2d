// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package trace provides lightweight in-process span tracking. It logs span
// start/end through clog and warns about spans that run longer than a
// threshold, without depending on any external tracing backend.
package trace

import (
	"context"
	"time"

	"infra/cascache/internal/o11y/clog"
)

// slowThreshold is the duration above which a span's end is logged at
// warning level instead of info level.
const slowThreshold = 5 * time.Second

type spanKey struct{}

// Span tracks the duration of one unit of work.
type Span struct {
	name    string
	started time.Time
	closed  bool
}

// NewSpan starts a span named name and returns a context carrying it plus a
// function that ends the span. Nested spans are independent: ending a parent
// does not end its children.
func NewSpan(ctx context.Context, name string) (context.Context, func()) {
	s := &Span{name: name, started: time.Now()}
	ctx = context.WithValue(ctx, spanKey{}, s)
	clog.Infof(ctx, "span %s start", name)
	return ctx, func() { s.end(ctx) }
}

func (s *Span) end(ctx context.Context) {
	if s.closed {
		return
	}
	s.closed = true
	dur := time.Since(s.started)
	if dur > slowThreshold {
		clog.Warningf(ctx, "span %s done in %s (slow)", s.name, dur)
		return
	}
	clog.Infof(ctx, "span %s done in %s", s.name, dur)
}

// FromContext returns the innermost span in ctx, or nil if none.
func FromContext(ctx context.Context) *Span {
	s, _ := ctx.Value(spanKey{}).(*Span)
	return s
}

// Name returns the span's name, or "" for a nil span.
func (s *Span) Name() string {
	if s == nil {
		return ""
	}
	return s.name
}
