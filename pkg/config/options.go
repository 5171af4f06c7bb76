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

// Package config resolves the process's CLI flags into an Options value
// threaded through context.Context, bound from github.com/spf13/cobra+viper
// flags. Environment variables are not read here.
package config

import (
	"context"
	"fmt"

	"github.com/spf13/viper"
)

// Injectable is implemented by anything that can push its resolved state
// into a context.
type Injectable interface {
	ToContext(ctx context.Context) context.Context
}

type optionsKey struct{}

// Options holds the resolved values of --namespace, --host, --port,
// --kubeconfig, --log-level, --disable-operator, --disable-api.
type Options struct {
	Namespace       string
	Host            string
	Port            int
	Kubeconfig      string
	LogLevel        string
	DisableOperator bool
	DisableAPI      bool

	MetricsPort     int
	HealthProbePort int

	// ActivationTimeout bounds how long the gateway's activation waiter
	// blocks before failing an SSE open with ActivationTimeout.
	ActivationTimeout int
}

// FromFlags resolves Options from a bound viper instance. Callers bind
// cobra flags into v with viper.BindPFlags before calling this.
func FromFlags(v *viper.Viper) (*Options, error) {
	o := &Options{
		Namespace:         v.GetString("namespace"),
		Host:              v.GetString("host"),
		Port:              v.GetInt("port"),
		Kubeconfig:        v.GetString("kubeconfig"),
		LogLevel:          v.GetString("log-level"),
		DisableOperator:   v.GetBool("disable-operator"),
		DisableAPI:        v.GetBool("disable-api"),
		MetricsPort:       v.GetInt("metrics-port"),
		HealthProbePort:   v.GetInt("health-probe-port"),
		ActivationTimeout: v.GetInt("activation-timeout"),
	}
	if o.Port == 0 {
		o.Port = 8080
	}
	if o.MetricsPort == 0 {
		o.MetricsPort = 8081
	}
	if o.HealthProbePort == 0 {
		o.HealthProbePort = 8082
	}
	if o.ActivationTimeout == 0 {
		o.ActivationTimeout = 30
	}
	if o.Namespace == "" {
		o.Namespace = "default"
	}
	if !isValidLogLevel(o.LogLevel) {
		return nil, fmt.Errorf("invalid --log-level %q, must be one of debug, info, error", o.LogLevel)
	}
	return o, nil
}

func isValidLogLevel(level string) bool {
	switch level {
	case "", "debug", "info", "error":
		return true
	default:
		return false
	}
}

// ToContext implements Injectable.
func (o *Options) ToContext(ctx context.Context) context.Context {
	return ToContext(ctx, o)
}

// ToContext stashes opts in ctx.
func ToContext(ctx context.Context, opts *Options) context.Context {
	return context.WithValue(ctx, optionsKey{}, opts)
}

// FromContext recovers the Options pushed by ToContext. Panics if absent:
// every entrypoint installs it before starting any component, so its
// absence is a programming error, not a runtime condition to handle.
func FromContext(ctx context.Context) *Options {
	v := ctx.Value(optionsKey{})
	if v == nil {
		panic("config: Options not present in context")
	}
	return v.(*Options)
}

// WithOptionsOrDie installs opts into ctx. A single Options value is
// injected since it is the only Injectable this binary has.
func WithOptionsOrDie(ctx context.Context, opts *Options) context.Context {
	return opts.ToContext(ctx)
}
