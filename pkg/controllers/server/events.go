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

package server

import (
	"fmt"

	corev1 "k8s.io/api/core/v1"

	nmcpv1 "github.com/nwrx/nmcp/pkg/apis/v1"
	"github.com/nwrx/nmcp/pkg/events"
)

func awaitingCapacityEvent(server *nmcpv1.MCPServer, pool *nmcpv1.MCPPool) events.Event {
	return events.Event{
		InvolvedObject: server,
		Type:           corev1.EventTypeNormal,
		Reason:         events.ReasonAwaitingCapacity,
		Message:        fmt.Sprintf("waiting for capacity in pool %q (%d/%d active)", pool.Name, pool.Status.Active, pool.Spec.MaxActive),
		DedupeValues:   []string{string(server.UID)},
	}
}

func podCreatedEvent(server *nmcpv1.MCPServer) events.Event {
	return events.Event{
		InvolvedObject: server,
		Type:           corev1.EventTypeNormal,
		Reason:         events.ReasonPodCreated,
		Message:        fmt.Sprintf("created pod/%s", server.Name),
		DedupeValues:   []string{string(server.UID), server.ResourceVersion},
	}
}

func specDriftEvent(server *nmcpv1.MCPServer) events.Event {
	return events.Event{
		InvolvedObject: server,
		Type:           corev1.EventTypeNormal,
		Reason:         events.ReasonSpecDrift,
		Message:        "spec changed, recreating pod",
		DedupeValues:   []string{string(server.UID), server.ResourceVersion},
	}
}

func idleReapEvent(server *nmcpv1.MCPServer) events.Event {
	return events.Event{
		InvolvedObject: server,
		Type:           corev1.EventTypeNormal,
		Reason:         events.ReasonIdleReap,
		Message:        fmt.Sprintf("reaping idle server after %ds with no connections", server.Spec.IdleTimeout),
		DedupeValues:   []string{string(server.UID), server.ResourceVersion},
	}
}

func podFailedEvent(server *nmcpv1.MCPServer, reason string) events.Event {
	return events.Event{
		InvolvedObject: server,
		Type:           corev1.EventTypeWarning,
		Reason:         events.ReasonPodFailed,
		Message:        fmt.Sprintf("pod failed: %s", reason),
		DedupeValues:   []string{string(server.UID)},
	}
}
