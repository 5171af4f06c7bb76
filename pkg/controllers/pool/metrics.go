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

package pool

import (
	"github.com/prometheus/client_golang/prometheus"
	crmetrics "sigs.k8s.io/controller-runtime/pkg/metrics"
)

const metricsNamespace = "nmcp"

// poolNameLabel/poolNamespaceLabel tag every gauge below by the pool they
// describe.
const (
	poolNamespaceLabel = "namespace"
	poolNameLabel      = "pool"
)

var (
	activeGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: "pool",
		Name:      "active",
		Help:      "Number of managed servers in the pool currently Starting or Running.",
	}, []string{poolNamespaceLabel, poolNameLabel})

	pendingGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: "pool",
		Name:      "pending",
		Help:      "Number of managed servers in the pool awaiting promotion.",
	}, []string{poolNamespaceLabel, poolNameLabel})

	managedGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: "pool",
		Name:      "managed",
		Help:      "Number of servers admitted under the pool's maxManaged ceiling.",
	}, []string{poolNamespaceLabel, poolNameLabel})
)

func init() {
	crmetrics.Registry.MustRegister(activeGauge, pendingGauge, managedGauge)
}

// recordMetrics publishes the pool's freshly aggregated status counters.
func recordMetrics(namespace, name string, active, pending, managed uint32) {
	activeGauge.WithLabelValues(namespace, name).Set(float64(active))
	pendingGauge.WithLabelValues(namespace, name).Set(float64(pending))
	managedGauge.WithLabelValues(namespace, name).Set(float64(managed))
}
