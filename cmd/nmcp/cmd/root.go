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

// Package cmd is the nmcp binary's external interface: a cobra root command
// with viper flag binding. This surface is thin wiring over pkg/operator and
// pkg/gateway.
package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "nmcp",
	Short: "MCP server orchestration for Kubernetes",
	Long: `nmcp runs two controllers (pool, server) that bring up and tear
down MCP server workloads on demand, and an HTTP gateway that activates and
proxies sessions to them.`,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("namespace", "default", "Namespace the operator and gateway watch")
	flags.String("host", "0.0.0.0", "Address the gateway binds to")
	flags.Int("port", 8080, "Port the gateway listens on")
	flags.String("kubeconfig", "", "Path to a kubeconfig file; defaults to KUBECONFIG / in-cluster config")
	flags.String("log-level", "info", "Log level: debug, info, or error")
	flags.Bool("disable-operator", false, "Disable the pool/server reconciliation engine")
	flags.Bool("disable-api", false, "Disable the HTTP gateway")
	flags.Int("metrics-port", 8081, "Port the /metrics endpoint binds to")
	flags.Int("health-probe-port", 8082, "Port the /healthz and /readyz endpoints bind to")
	flags.Int("activation-timeout", 30, "Seconds the gateway waits for a server to reach Running before failing an SSE open")
	_ = viper.BindPFlags(flags)

	rootCmd.AddCommand(operatorCmd, gatewayCmd, managerCmd, exportCmd)
}

// Execute runs the root command, panicking on failure: a CLI parse or
// startup error is always a Fatal-class condition for this binary.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		panic(err)
	}
}
