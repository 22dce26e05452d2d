// Copyright 2023 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package clog provides context aware logging.
// It stores a per-invocation trace id and arbitrary labels in the context so
// every log line emitted by the analyzer, hashers and orchestrator during one
// compiler invocation can be correlated.
package clog

import (
	"context"
	"fmt"

	"github.com/golang/glog"
)

type contextKeyType int

var contextKey contextKeyType

// New creates a new Logger with no trace id or labels set.
func New(ctx context.Context) *Logger {
	return &Logger{}
}

// NewContext sets the given logger to the context.
func NewContext(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, contextKey, logger)
}

// NewSpan sets a new logger with the given trace id and labels to the context.
func NewSpan(ctx context.Context, trace string, labels map[string]string) context.Context {
	logger, _ := ctx.Value(contextKey).(*Logger)
	return NewContext(ctx, logger.withTrace(trace, labels))
}

// FromContext returns a logger in the context, or nil if not set. A nil
// *Logger still logs, without a trace id or labels.
func FromContext(ctx context.Context) *Logger {
	logger, ok := ctx.Value(contextKey).(*Logger)
	if !ok {
		return nil
	}
	return logger
}

// Logger holds the trace id and arbitrary labels attached to a context.
type Logger struct {
	trace  string
	labels map[string]string
}

func (l *Logger) withTrace(trace string, labels map[string]string) *Logger {
	return &Logger{trace: trace, labels: labels}
}

func (l *Logger) prefix() string {
	if l == nil || l.trace == "" {
		return ""
	}
	return fmt.Sprintf("[%s] ", l.trace)
}

// Infof logs at info log level in the manner of fmt.Printf.
func (l *Logger) Infof(format string, args ...interface{}) {
	glog.InfoDepth(2, l.prefix()+fmt.Sprintf(format, args...))
}

// Infof logs at info log level in the manner of fmt.Printf.
func Infof(ctx context.Context, format string, args ...interface{}) {
	FromContext(ctx).Infof(format, args...)
}

// Warningf logs at warning log level in the manner of fmt.Printf.
func (l *Logger) Warningf(format string, args ...interface{}) {
	glog.WarningDepth(2, l.prefix()+fmt.Sprintf(format, args...))
}

// Warningf logs at warning log level in the manner of fmt.Printf.
func Warningf(ctx context.Context, format string, args ...interface{}) {
	FromContext(ctx).Warningf(format, args...)
}

// Errorf logs at error log level in the manner of fmt.Printf.
func (l *Logger) Errorf(format string, args ...interface{}) {
	glog.ErrorDepth(2, l.prefix()+fmt.Sprintf(format, args...))
}

// Errorf logs at error log level in the manner of fmt.Printf.
func Errorf(ctx context.Context, format string, args ...interface{}) {
	FromContext(ctx).Errorf(format, args...)
}

// Fatalf logs at fatal log level in the manner of fmt.Printf with stacktrace, and exits.
func (l *Logger) Fatalf(format string, args ...interface{}) {
	glog.FatalDepth(2, l.prefix()+fmt.Sprintf(format, args...))
}

// Fatalf logs at fatal log level in the manner of fmt.Printf with stacktrace, and exits.
func Fatalf(ctx context.Context, format string, args ...interface{}) {
	FromContext(ctx).Fatalf(format, args...)
}

// V reports whether verbosity level is at least the given level.
func (l *Logger) V(level int) bool {
	return bool(glog.V(glog.Level(level)))
}

// Close flushes pending log entries.
func (l *Logger) Close() {
	glog.Flush()
}
