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
	"fmt"
	"time"

	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/reconcile"

	nmcpv1 "github.com/nwrx/nmcp/pkg/apis/v1"
	"github.com/nwrx/nmcp/pkg/events"
	"github.com/nwrx/nmcp/pkg/kube"
)

// Admission resolves the owning pool and, for a Requested server, gates its
// promotion on pool.active < pool.maxActive.
type Admission struct {
	kubeClient *kube.Client
	recorder   events.Recorder
}

func (a *Admission) Reconcile(ctx context.Context, server *nmcpv1.MCPServer) (reconcile.Result, error) {
	poolName := server.Spec.Pool
	if poolName == "" {
		poolName = "default"
	}
	pool, err := a.kubeClient.GetPool(ctx, client.ObjectKey{Namespace: server.Namespace, Name: poolName})
	if err != nil {
		return reconcile.Result{}, err
	}
	if pool == nil {
		meta.SetStatusCondition(&server.Status.Conditions, metaCondition(nmcpv1.ConditionTypePoolNotFound, metav1.ConditionTrue, "PoolNotFound",
			fmt.Sprintf("pool %q not found", poolName), server.Generation))
		return reconcile.Result{RequeueAfter: 10 * time.Second}, nil
	}
	meta.SetStatusCondition(&server.Status.Conditions, metaCondition(nmcpv1.ConditionTypePoolNotFound, metav1.ConditionFalse, "PoolFound", "", server.Generation))

	if server.Status.Phase != nmcpv1.PhaseRequested {
		meta.SetStatusCondition(&server.Status.Conditions, metaCondition(nmcpv1.ConditionTypeAwaitingCapacity, metav1.ConditionFalse, "NotRequested", "", server.Generation))
		return reconcile.Result{}, nil
	}

	if pool.Status.Active >= pool.Spec.MaxActive {
		meta.SetStatusCondition(&server.Status.Conditions, metaCondition(nmcpv1.ConditionTypeAwaitingCapacity, metav1.ConditionTrue, "PoolAtCapacity",
			fmt.Sprintf("pool %q has %d/%d active servers", poolName, pool.Status.Active, pool.Spec.MaxActive), server.Generation))
		a.recorder.Publish(awaitingCapacityEvent(server, pool))
		return reconcile.Result{RequeueAfter: 5 * time.Second}, nil
	}

	meta.SetStatusCondition(&server.Status.Conditions, metaCondition(nmcpv1.ConditionTypeAwaitingCapacity, metav1.ConditionFalse, "Admitted", "", server.Generation))
	return reconcile.Result{}, nil
}
