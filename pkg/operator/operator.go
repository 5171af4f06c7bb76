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

// Package operator bootstraps the controller-runtime manager the pool and
// server controllers register against: scheme, typed client, field indexers,
// health/ready checks and the event recorder, following a fluent
// New/WithControllers/Start construction, trimmed to what this system's two
// controllers need (no leader election: a single active operator is assumed).
package operator

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/awslabs/operatorpkg/controller"
	"github.com/samber/lo"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/utils/clock"
	ctrl "sigs.k8s.io/controller-runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	"sigs.k8s.io/controller-runtime/pkg/healthz"
	crmetricsserver "sigs.k8s.io/controller-runtime/pkg/metrics/server"

	nmcpv1 "github.com/nwrx/nmcp/pkg/apis/v1"
	"github.com/nwrx/nmcp/pkg/config"
	"github.com/nwrx/nmcp/pkg/events"
	"github.com/nwrx/nmcp/pkg/kube"
)

// AppName tags the event recorder and the manager's reporting component
// name (client-go's EventRecorder requires one even without leader election).
const AppName = "nmcp"

// Operator wraps a controller-runtime manager with the typed client and
// event recorder every controller in this repo is built against.
type Operator struct {
	ctrl.Manager

	RestConfig *rest.Config
	KubeClient *kube.Client
	Recorder   events.Recorder
	Clock      clock.Clock
}

// New constructs the manager, scheme and indexers, or panics: a failure here
// is a Fatal-class startup error, and the CLI is responsible for translating
// the panic into exit code 2 (kube-client init failure).
func New(ctx context.Context) (context.Context, *Operator) {
	opts := config.FromContext(ctx)

	restConfig := lo.Must(restConfigFor(opts))
	restConfig.UserAgent = fmt.Sprintf("%s/v1", AppName)

	scheme := clientgoscheme.Scheme
	lo.Must0(nmcpv1.AddToScheme(scheme))

	mgr, err := ctrl.NewManager(restConfig, ctrl.Options{
		Scheme: scheme,
		Metrics: crmetricsserver.Options{
			BindAddress: fmt.Sprintf(":%d", opts.MetricsPort),
		},
		HealthProbeBindAddress: fmt.Sprintf(":%d", opts.HealthProbePort),
		BaseContext: func() context.Context {
			return config.WithOptionsOrDie(context.Background(), opts)
		},
	})
	lo.Must0(err, "failed to setup manager")

	lo.Must0(kube.RegisterIndexers(ctx, mgr))
	lo.Must0(mgr.AddHealthzCheck("healthz", healthz.Ping))
	lo.Must0(mgr.AddReadyzCheck("readyz", func(req *http.Request) error {
		return lo.Ternary(mgr.GetCache().WaitForCacheSync(req.Context()), nil, fmt.Errorf("caches not yet synced"))
	}))

	kubeClient := kube.New(mgr.GetClient())
	recorder := events.NewRecorder(mgr.GetEventRecorderFor(AppName))

	return ctx, &Operator{
		Manager:    mgr,
		RestConfig: restConfig,
		KubeClient: kubeClient,
		Recorder:   recorder,
		Clock:      clock.RealClock{},
	}
}

// WithControllers registers every controller against the manager.
func (o *Operator) WithControllers(ctx context.Context, controllers ...controller.Controller) *Operator {
	for _, c := range controllers {
		lo.Must0(c.Register(ctx, o.Manager), fmt.Sprintf("registering controller %q", c.Name()))
	}
	return o
}

// Start blocks until ctx is cancelled, running the manager (informers,
// workqueues, leader-free since a single active operator is assumed).
func (o *Operator) Start(ctx context.Context) error {
	wg := &sync.WaitGroup{}
	wg.Add(1)
	var startErr error
	go func() {
		defer wg.Done()
		startErr = o.Manager.Start(ctx)
	}()
	wg.Wait()
	return startErr
}

// restConfigFor resolves the kube client config: an explicit --kubeconfig
// flag wins, otherwise KUBECONFIG / in-cluster auto-detection via
// ctrl.GetConfig.
func restConfigFor(opts *config.Options) (*rest.Config, error) {
	if opts.Kubeconfig != "" {
		return clientcmd.BuildConfigFromFlags("", opts.Kubeconfig)
	}
	return ctrl.GetConfig()
}
