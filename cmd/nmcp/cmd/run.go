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

package cmd

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/viper"
	"k8s.io/client-go/kubernetes"
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/nwrx/nmcp/pkg/accountant"
	"github.com/nwrx/nmcp/pkg/activation"
	nmcplog "github.com/nwrx/nmcp/pkg/log"

	"github.com/nwrx/nmcp/pkg/config"
	"github.com/nwrx/nmcp/pkg/controllers/pool"
	"github.com/nwrx/nmcp/pkg/controllers/server"
	"github.com/nwrx/nmcp/pkg/gateway"
	"github.com/nwrx/nmcp/pkg/operator"
)

// run builds the process's Options from the bound flags, installs logging,
// bootstraps the operator manager and, depending on opts.DisableOperator /
// opts.DisableAPI, registers the pool/server controllers, starts the
// gateway's HTTP listener, or both. It blocks until the process receives a
// termination signal. forceDisableOperator/forceDisableAPI let the
// operator/gateway subcommands pin one side off regardless of the
// --disable-operator/--disable-api flags, which the manager subcommand
// otherwise leaves to the user.
func run(forceDisableOperator, forceDisableAPI bool) error {
	opts, err := config.FromFlags(viper.GetViper())
	if err != nil {
		return err
	}
	opts.DisableOperator = opts.DisableOperator || forceDisableOperator
	opts.DisableAPI = opts.DisableAPI || forceDisableAPI

	logger := nmcplog.New("nmcp", opts.LogLevel)
	defer func() { _ = logger.Sync() }()
	nmcplog.Install(logger)

	ctx := ctrl.SetupSignalHandler()
	ctx = config.WithOptionsOrDie(ctx, opts)

	ctx, op := operator.New(ctx)

	if !opts.DisableOperator {
		op.WithControllers(ctx,
			server.NewController(op.Clock, op.KubeClient, op.Recorder),
			pool.NewController(op.KubeClient, op.Recorder),
		)
	}

	var srv *http.Server
	if !opts.DisableAPI {
		acct := accountant.New(op.KubeClient, op.Clock)
		go acct.Run(ctx)

		waiter := activation.New(op.KubeClient)
		clientset, err := kubernetes.NewForConfig(op.RestConfig)
		if err != nil {
			return fmt.Errorf("building clientset for stdio bridging: %w", err)
		}

		router := gateway.New(opts.Namespace, op.KubeClient, waiter, acct, op.RestConfig, clientset, time.Duration(opts.ActivationTimeout)*time.Second)
		srv = &http.Server{Addr: fmt.Sprintf("%s:%d", opts.Host, opts.Port), Handler: router}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Sugar().Fatalf("gateway listener failed: %s", err)
			}
		}()

		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	return op.Start(ctx)
}
