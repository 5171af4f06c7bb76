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

package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	crmetrics "sigs.k8s.io/controller-runtime/pkg/metrics"
)

// metricsNamespace is the common Prometheus namespace prefix for every
// metric this process registers.
const metricsNamespace = "nmcp"

var (
	sseSessionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "gateway",
		Name:      "sse_sessions_total",
		Help:      "Total number of SSE sessions opened by the gateway, by server.",
	}, []string{"namespace", "server"})

	requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "gateway",
		Name:      "requests_total",
		Help:      "Total number of message requests forwarded by the gateway, by server and outcome.",
	}, []string{"namespace", "server", "outcome"})

	openSessionsGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: "gateway",
		Name:      "open_sessions",
		Help:      "Currently open SSE sessions, by server.",
	}, []string{"namespace", "server"})
)

func init() {
	crmetrics.Registry.MustRegister(sseSessionsTotal, requestsTotal, openSessionsGauge)
}
