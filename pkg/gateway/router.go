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

// Package gateway implements the HTTP surface that lists/gets/creates/
// updates/deletes pools and servers, and proxies MCP sessions
// (SSE + message POST) to the server a client addresses, activating it on
// demand if it is Idle. MCP payload semantics are treated as opaque: this
// package is a transport-level proxy only.
package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	crmetrics "sigs.k8s.io/controller-runtime/pkg/metrics"

	"github.com/nwrx/nmcp/pkg/accountant"
	"github.com/nwrx/nmcp/pkg/activation"
	"github.com/nwrx/nmcp/pkg/kube"
)

// Router is the gateway's http.Handler. It holds no per-request state beyond
// what's threaded through *http.Request; all server-addressable state lives
// in the kube API (pools/servers) or the accountant/session table.
type Router struct {
	namespace         string
	kubeClient        *kube.Client
	waiter            *activation.Waiter
	accountant        *accountant.Accountant
	sessions          *sessionTable
	restConfig        *rest.Config
	clientset         kubernetes.Interface
	activationTimeout time.Duration

	mux *http.ServeMux
}

// New wires a Router against the shared kube client, activation waiter and
// connection accountant. restConfig/clientset back the stdio exec-attach
// bridge; they may be nil if no server in the watched namespace uses stdio
// transport.
func New(namespace string, kubeClient *kube.Client, waiter *activation.Waiter, acct *accountant.Accountant, restConfig *rest.Config, clientset kubernetes.Interface, activationTimeout time.Duration) *Router {
	r := &Router{
		namespace:         namespace,
		kubeClient:        kubeClient,
		waiter:            waiter,
		accountant:        acct,
		sessions:          newSessionTable(),
		restConfig:        restConfig,
		clientset:         clientset,
		activationTimeout: activationTimeout,
	}
	r.mux = r.newMux()
	return r
}

func (r *Router) newMux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/pools", r.listPools)
	mux.HandleFunc("GET /api/v1/pools/{name}", r.getPool)
	mux.HandleFunc("POST /api/v1/pools", r.createPool)
	mux.HandleFunc("PUT /api/v1/pools/{name}", r.updatePool)
	mux.HandleFunc("DELETE /api/v1/pools/{name}", r.deletePool)

	mux.HandleFunc("GET /api/v1/servers", r.listServers)
	mux.HandleFunc("GET /api/v1/servers/{name}", r.getServer)
	mux.HandleFunc("POST /api/v1/servers", r.createServer)
	mux.HandleFunc("PUT /api/v1/servers/{name}", r.updateServer)
	mux.HandleFunc("DELETE /api/v1/servers/{name}", r.deleteServer)

	mux.HandleFunc("GET /api/v1/servers/{name}/sse", r.openSSE)
	mux.HandleFunc("POST /api/v1/servers/{name}/message", r.postMessage)

	mux.HandleFunc("GET /health", r.health)
	mux.HandleFunc("GET /ready", r.ready)
	mux.Handle("GET /metrics", promhttp.HandlerFor(crmetrics.Registry, promhttp.HandlerOpts{}))

	return mux
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

func (r *Router) health(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Router) ready(w http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
	defer cancel()
	if _, err := r.kubeClient.ListServersForPool(ctx, r.namespace, "default"); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
