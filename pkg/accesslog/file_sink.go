// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package accesslog

import (
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// FileSink is the default Sink: a rotating log file. Write never blocks on
// rotation for long and never returns an error to the caller, per the
// access-log sink contract.
type FileSink struct {
	mu  sync.Mutex
	out *lumberjack.Logger
}

// FileSinkConfig mirrors lumberjack's rotation knobs.
type FileSinkConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// NewFileSink returns a sink for a rotating log file at cfg.Path. The file
// is opened (and created if necessary) on the first Write.
func NewFileSink(cfg FileSinkConfig) *FileSink {
	return &FileSink{
		out: &lumberjack.Logger{
			Filename:   cfg.Path,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		},
	}
}

// Write appends line, terminated with a newline, to the rotating file.
func (f *FileSink) Write(line string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, _ = f.out.Write([]byte(line + "\n"))
}

// Close flushes and closes the underlying file.
func (f *FileSink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.out.Close()
}
