/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package log builds the single zap logger every binary entrypoint installs,
// bridged into both controller-runtime's logr sink and klog, before
// constructing the manager.
package log

import (
	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"k8s.io/klog/v2"
	ctrllog "sigs.k8s.io/controller-runtime/pkg/log"
)

// validLevels are the --log-level values accepted by the CLI.
var validLevels = map[string]zapcore.Level{
	"debug": zap.DebugLevel,
	"info":  zap.InfoLevel,
	"error": zap.ErrorLevel,
}

// IsValidLevel reports whether level is one of the accepted --log-level values.
func IsValidLevel(level string) bool {
	_, ok := validLevels[level]
	return ok || level == ""
}

func zapConfig(component, level string) zap.Config {
	atomicLevel := zap.NewAtomicLevelAt(zap.InfoLevel)
	if l, ok := validLevels[level]; ok {
		atomicLevel = zap.NewAtomicLevelAt(l)
	}
	return zap.Config{
		Level:             atomicLevel,
		Development:       false,
		DisableCaller:     level != "debug",
		DisableStacktrace: true,
		Encoding:          "json",
		EncoderConfig: zapcore.EncoderConfig{
			MessageKey:     "message",
			LevelKey:       "level",
			TimeKey:        "time",
			NameKey:        "logger",
			CallerKey:      "caller",
			FunctionKey:    zapcore.OmitKey,
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}
}

// New builds a *zap.Logger named component at the requested level.
func New(component, level string) *zap.Logger {
	return lo.Must(zapConfig(component, level).Build()).Named(component)
}

// Install bridges logger into logr, installs it as the controller-runtime
// logger and klog's logger, and returns the logr.Logger other packages
// should thread through their context.
func Install(logger *zap.Logger) logr.Logger {
	l := zapr.NewLogger(logger)
	ctrllog.SetLogger(l)
	klog.SetLogger(l)
	return l
}
