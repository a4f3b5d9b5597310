/*
 * Copyright 2023 Comcast Cable Communications Management, LLC
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package logger sets up the global zap logger.
package logger

import (
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/mattn/go-isatty"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	logger      *zap.Logger
	atomicLevel = zap.NewAtomicLevel()
)

// Options configure Initialize.
type Options struct {
	Level string
	// File, when set, receives a JSON copy of every entry with rotation.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	// Console forces the human readable encoder on the primary output.
	Console bool
	// Output defaults to stderr.
	Output io.Writer
}

type lumberjackSink struct {
	*lumberjack.Logger
}

func (lumberjackSink) Sync() error {
	return nil
}

// Initialize builds the logger and installs it with zap.ReplaceGlobals. It
// logs JSON unless the output is a terminal or Console is set.
func Initialize(app string, opts Options) *zap.Logger {
	atomicLevel.SetLevel(parseLevel(opts.Level))

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	console := opts.Console
	if f, ok := out.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		console = true
	}

	encoder := zapcore.NewJSONEncoder(ProdEncoderConf())
	if console {
		encoder = zapcore.NewConsoleEncoder(ConsoleEncoderConf())
	}
	core := zapcore.NewCore(encoder, zapcore.AddSync(out), atomicLevel)

	if opts.File != "" {
		lj := lumberjackSink{&lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    withDefault(opts.MaxSizeMB, 64), // megabytes
			MaxBackups: withDefault(opts.MaxBackups, 3),
			MaxAge:     withDefault(opts.MaxAgeDays, 28), // days
		}}
		fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(ProdEncoderConf()), lj, atomicLevel)
		core = zapcore.NewTee(core, fileCore)
	}

	logger = zap.New(core, zap.AddCaller(), zap.Fields(zap.String("app", app)))
	zap.ReplaceGlobals(logger)
	return logger
}

func withDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// Flush syncs buffered entries.
func Flush() {
	if logger != nil {
		_ = logger.Sync()
	}
}

// SetLevel changes the level of the installed logger. Unknown names select
// info.
func SetLevel(l string) {
	atomicLevel.SetLevel(parseLevel(l))
}

// GetLevel returns the current level name.
func GetLevel() string {
	return atomicLevel.Level().String()
}

func parseLevel(l string) zapcore.Level {
	switch l {
	case "debug":
		return zap.DebugLevel
	case "warn":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}

// ProdEncoderConf is the JSON encoder configuration.
func ProdEncoderConf() zapcore.EncoderConfig {
	encConf := zap.NewProductionEncoderConfig()
	encConf.EncodeTime = zapcore.RFC3339TimeEncoder
	return encConf
}

// ConsoleEncoderConf is the terminal encoder configuration.
func ConsoleEncoderConf() zapcore.EncoderConfig {
	encConf := zap.NewDevelopmentEncoderConfig()
	encConf.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
	return encConf
}

// Verbosity reports the current level.
func Verbosity(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, "{\"verbosity\": %q}", GetLevel())
}

// SetVerbosity changes the level from the v query parameter.
func SetVerbosity(w http.ResponseWriter, r *http.Request) {
	level := r.URL.Query().Get("v")
	if level == "" {
		http.Error(w, "'v' parameter is not set", http.StatusBadRequest)
		return
	}
	SetLevel(level)
	zap.L().Info("updating logging level", zap.String("level", GetLevel()))
	w.WriteHeader(http.StatusNoContent)
}
