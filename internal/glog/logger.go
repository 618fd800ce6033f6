// Copyright 2026 The MottoMesh Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package glog provides the gateway's leveled logging interface.
package glog

import (
	"fmt"
	"log"
	"os"
	"sync/atomic"
)

// Logger is the leveled logging contract used throughout the gateway.
// Implementations must be safe for concurrent use.
type Logger interface {
	Noticef(format string, v ...interface{})
	Warnf(format string, v ...interface{})
	Errorf(format string, v ...interface{})
	Debugf(format string, v ...interface{})
	Tracef(format string, v ...interface{})
}

// Level controls which of Debugf/Tracef actually emit output.
type Level int32

const (
	LevelNotice Level = iota
	LevelDebug
	LevelTrace
)

// Console is a stdlib-log-backed Logger, the default for this gateway.
type Console struct {
	level atomic.Int32
	l     *log.Logger
}

// NewConsole returns a Console logger writing to stderr at the given level.
func NewConsole(level Level) *Console {
	c := &Console{l: log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds)}
	c.level.Store(int32(level))
	return c
}

func (c *Console) SetLevel(level Level) { c.level.Store(int32(level)) }

func (c *Console) Noticef(format string, v ...interface{}) {
	c.l.Print("[NOTICE] " + fmt.Sprintf(format, v...))
}

func (c *Console) Warnf(format string, v ...interface{}) {
	c.l.Print("[WARN] " + fmt.Sprintf(format, v...))
}

func (c *Console) Errorf(format string, v ...interface{}) {
	c.l.Print("[ERROR] " + fmt.Sprintf(format, v...))
}

func (c *Console) Debugf(format string, v ...interface{}) {
	if Level(c.level.Load()) >= LevelDebug {
		c.l.Print("[DEBUG] " + fmt.Sprintf(format, v...))
	}
}

func (c *Console) Tracef(format string, v ...interface{}) {
	if Level(c.level.Load()) >= LevelTrace {
		c.l.Print("[TRACE] " + fmt.Sprintf(format, v...))
	}
}

// Noop discards everything; useful in tests.
type Noop struct{}

func (Noop) Noticef(string, ...interface{}) {}
func (Noop) Warnf(string, ...interface{})   {}
func (Noop) Errorf(string, ...interface{})  {}
func (Noop) Debugf(string, ...interface{})  {}
func (Noop) Tracef(string, ...interface{})  {}
