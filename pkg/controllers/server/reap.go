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
	"context"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/utils/clock"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/reconcile"

	nmcpv1 "github.com/nwrx/nmcp/pkg/apis/v1"
	"github.com/nwrx/nmcp/pkg/events"
	"github.com/nwrx/nmcp/pkg/kube"
)

// reapRequeue bounds how soon a Stopping server is rechecked for Pod/Service
// deletion to finish, independent of idleTimeout.
const reapRequeue = 2 * time.Second

// Reap transitions a Running server with zero connections for idleTimeout
// seconds through Running→Stopping→Idle, across two ticks so the
// intermediate phase is externally observable.
type Reap struct {
	kubeClient *kube.Client
	clock      clock.Clock
	recorder   events.Recorder
}

func (r *Reap) Reconcile(ctx context.Context, server *nmcpv1.MCPServer) (reconcile.Result, error) {
	key := client.ObjectKeyFromObject(server)

	if server.Status.Phase == nmcpv1.PhaseStopping {
		return r.finishStopping(ctx, server, key)
	}
	if server.Status.Phase != nmcpv1.PhaseRunning {
		return reconcile.Result{}, nil
	}
	if server.Status.CurrentConnections > 0 {
		return reconcile.Result{}, nil
	}

	idleTimeout := time.Duration(server.Spec.IdleTimeout) * time.Second
	lastActivity := server.Status.StartedAt
	if server.Status.LastRequestAt != nil {
		lastActivity = server.Status.LastRequestAt
	}
	if lastActivity == nil {
		return reconcile.Result{}, nil
	}

	idleSince := r.clock.Since(lastActivity.Time)
	if idleSince < idleTimeout {
		return reconcile.Result{RequeueAfter: idleTimeout - idleSince}, nil
	}

	r.recorder.Publish(idleReapEvent(server))
	server.Status.Phase = nmcpv1.PhaseStopping
	if err := r.kubeClient.DeletePod(ctx, key); err != nil {
		return reconcile.Result{}, err
	}
	if err := r.kubeClient.DeleteService(ctx, key); err != nil {
		return reconcile.Result{}, err
	}
	return reconcile.Result{RequeueAfter: reapRequeue}, nil
}

// finishStopping waits for the Pod and Service deleted by the reap step (or
// by finalize, for the delete path) to actually disappear, then settles the
// phase back to Idle.
func (r *Reap) finishStopping(ctx context.Context, server *nmcpv1.MCPServer, key client.ObjectKey) (reconcile.Result, error) {
	pod, err := r.kubeClient.GetPod(ctx, key)
	if err != nil {
		return reconcile.Result{}, err
	}
	svc, err := r.kubeClient.GetService(ctx, key)
	if err != nil {
		return reconcile.Result{}, err
	}
	if pod != nil || svc != nil {
		return reconcile.Result{RequeueAfter: reapRequeue}, nil
	}
	server.Status.Phase = nmcpv1.PhaseIdle
	now := metav1.NewTime(r.clock.Now())
	server.Status.StoppedAt = &now
	server.Status.CurrentConnections = 0
	return reconcile.Result{}, nil
}
