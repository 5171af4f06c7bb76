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

// Package activation implements the gateway's cold-path helper: given a
// server name, transition it from Idle to Running and return a routable
// endpoint.
package activation

import (
	"context"
	"fmt"
	"time"

	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/util/wait"

	nmcpv1 "github.com/nwrx/nmcp/pkg/apis/v1"
	"github.com/nwrx/nmcp/pkg/errs"
	"github.com/nwrx/nmcp/pkg/kube"
)

// pollInterval is how often the waiter re-reads the server and its Pod while
// waiting for Running+Ready. The manager's informer cache makes this cheap:
// it is a local read, not a round trip to the API server.
const pollInterval = 250 * time.Millisecond

// Endpoint is the routable address the gateway dials to proxy an MCP
// session, once a server has reached Running.
type Endpoint struct {
	// DNSName is the cluster-DNS name of the Service (name.namespace.svc).
	DNSName string
	// Port is the transport port the Service exposes.
	Port int32
	// Transport discriminates how the gateway should speak to it.
	Transport nmcpv1.TransportKind
}

// Waiter drives a server from Idle to Running on demand.
type Waiter struct {
	kubeClient *kube.Client
}

// New wraps kubeClient.
func New(kubeClient *kube.Client) *Waiter {
	return &Waiter{kubeClient: kubeClient}
}

// Activate fast-path returns if the server is already Running, otherwise CAS
// the phase to Requested and polls until the server controller brings it up,
// or the deadline elapses, or it fails outright.
func (w *Waiter) Activate(ctx context.Context, namespace, name string, timeout time.Duration) (Endpoint, error) {
	key := types.NamespacedName{Namespace: namespace, Name: name}

	server, err := w.kubeClient.GetServer(ctx, key)
	if err != nil {
		return Endpoint{}, err
	}
	if server == nil {
		return Endpoint{}, errs.NewActivationFailed(fmt.Errorf("server %s/%s not found", namespace, name))
	}
	if server.Status.Phase == nmcpv1.PhaseRunning {
		return w.endpoint(ctx, server)
	}

	if _, err := w.kubeClient.RequestActivation(ctx, key); err != nil {
		return Endpoint{}, errs.NewActivationFailed(err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var result *nmcpv1.MCPServer
	pollErr := wait.PollUntilContextCancel(ctx, pollInterval, true, func(ctx context.Context) (bool, error) {
		s, err := w.kubeClient.GetServer(ctx, key)
		if err != nil {
			return false, nil // transient read failures don't abort the wait
		}
		if s == nil {
			return false, fmt.Errorf("server %s/%s deleted while activating", namespace, name)
		}
		if s.Status.Phase == nmcpv1.PhaseFailed {
			return false, errs.NewActivationFailed(fmt.Errorf("server entered Failed while activating"))
		}
		if s.Status.Phase == nmcpv1.PhaseRunning {
			result = s
			return true, nil
		}
		return false, nil
	})

	if pollErr != nil {
		if errs.IsActivationFailed(pollErr) {
			return Endpoint{}, pollErr
		}
		if ctx.Err() != nil {
			return Endpoint{}, errs.NewActivationTimeout(fmt.Errorf("server %s/%s did not become Running within %s", namespace, name, timeout))
		}
		return Endpoint{}, errs.NewActivationFailed(pollErr)
	}
	return w.endpoint(ctx, result)
}

func (w *Waiter) endpoint(ctx context.Context, server *nmcpv1.MCPServer) (Endpoint, error) {
	svc, err := w.kubeClient.GetService(ctx, types.NamespacedName{Namespace: server.Namespace, Name: server.Name})
	if err != nil {
		return Endpoint{}, err
	}
	if svc == nil {
		return Endpoint{}, errs.NewActivationFailed(fmt.Errorf("service/%s missing for running server", server.Name))
	}
	port := int32(0)
	if len(svc.Spec.Ports) > 0 {
		port = svc.Spec.Ports[0].Port
	}
	return Endpoint{
		DNSName:   fmt.Sprintf("%s.%s.svc", server.Name, server.Namespace),
		Port:      port,
		Transport: server.Spec.Transport.Type,
	}, nil
}
