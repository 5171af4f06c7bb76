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

// Package pool implements the MCPPool controller: classification of its
// servers into active/pending/managed/unmanaged, promotion of pending
// servers as capacity frees up, and status-count aggregation.
package pool

import (
	"context"
	"sort"
	"time"

	"k8s.io/apimachinery/pkg/api/equality"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"
	controllerruntime "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/controller"
	"sigs.k8s.io/controller-runtime/pkg/manager"
	"sigs.k8s.io/controller-runtime/pkg/reconcile"

	nmcpv1 "github.com/nwrx/nmcp/pkg/apis/v1"
	"github.com/nwrx/nmcp/pkg/events"
	"github.com/nwrx/nmcp/pkg/kube"
)

// requeueInterval bounds how stale a pool's counters can get absent any
// triggering server event.
const requeueInterval = 5 * time.Second

// Controller reconciles one MCPPool: classification, promotion, status
// aggregation.
type Controller struct {
	kubeClient *kube.Client
	recorder   events.Recorder
}

// NewController wires the pool controller against a shared kube client.
func NewController(kubeClient *kube.Client, recorder events.Recorder) *Controller {
	return &Controller{kubeClient: kubeClient, recorder: recorder}
}

func (c *Controller) Name() string { return "pool" }

func (c *Controller) Register(ctx context.Context, m manager.Manager) error {
	return controllerruntime.NewControllerManagedBy(m).
		Named(c.Name()).
		For(&nmcpv1.MCPPool{}).
		WithOptions(controller.Options{MaxConcurrentReconciles: 2}).
		Complete(reconcile.AsReconciler(m.GetClient(), c))
}

// Reconcile classifies the pool's servers, promotes pending ones as
// capacity frees up, and aggregates status counts.
func (c *Controller) Reconcile(ctx context.Context, pool *nmcpv1.MCPPool) (reconcile.Result, error) {
	stored := pool.DeepCopy()

	servers, err := c.kubeClient.ListServersForPool(ctx, pool.Namespace, pool.Name)
	if err != nil {
		return reconcile.Result{}, err
	}

	managed, unmanaged := classifyManaged(servers, pool.EffectiveMaxManaged())

	var active, pending int
	var toPromote []*nmcpv1.MCPServer
	for i := range managed {
		s := &managed[i]
		switch s.Status.Phase {
		case nmcpv1.PhaseStarting, nmcpv1.PhaseRunning:
			active++
		case nmcpv1.PhaseRequested:
			pending++
			toPromote = append(toPromote, s)
		}
	}

	for _, s := range unmanaged {
		c.markUnmanaged(&s)
		if err := c.patchServerIfChanged(ctx, &s); err != nil {
			return reconcile.Result{}, err
		}
	}

	sort.Slice(toPromote, func(i, j int) bool {
		if !toPromote[i].CreationTimestamp.Equal(&toPromote[j].CreationTimestamp) {
			return toPromote[i].CreationTimestamp.Before(&toPromote[j].CreationTimestamp)
		}
		return toPromote[i].UID < toPromote[j].UID
	})

	slack := int(pool.Spec.MaxActive) - active
	for i := 0; i < slack && i < len(toPromote); i++ {
		// Promotion itself (flipping AwaitingCapacity and letting the server
		// controller materialize the pod) happens in the server controller;
		// here we just enqueue by touching the server so its watch fires.
		if err := c.wake(ctx, toPromote[i]); err != nil {
			return reconcile.Result{}, err
		}
	}

	pool.Status.Total = uint32(len(servers))
	pool.Status.Managed = uint32(len(managed))
	pool.Status.Unmanaged = uint32(len(unmanaged))
	pool.Status.Active = uint32(active)
	pool.Status.Pending = uint32(pending)
	pool.Status.ObservedGeneration = pool.Generation
	recordMetrics(pool.Namespace, pool.Name, pool.Status.Active, pool.Status.Pending, pool.Status.Managed)

	if !equality.Semantic.DeepEqual(stored.Status, pool.Status) {
		if err := c.kubeClient.PatchPoolStatus(ctx, pool, stored); client.IgnoreNotFound(err) != nil {
			return reconcile.Result{}, err
		}
	}
	return reconcile.Result{RequeueAfter: requeueInterval}, nil
}

// classifyManaged splits servers into the oldest maxManaged (by creation
// time ascending, UID ascending on ties) and the rest.
func classifyManaged(servers []nmcpv1.MCPServer, maxManaged uint32) (managed, unmanaged []nmcpv1.MCPServer) {
	sorted := make([]nmcpv1.MCPServer, len(servers))
	copy(sorted, servers)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].CreationTimestamp.Equal(&sorted[j].CreationTimestamp) {
			return sorted[i].CreationTimestamp.Before(&sorted[j].CreationTimestamp)
		}
		return sorted[i].UID < sorted[j].UID
	})
	if uint32(len(sorted)) <= maxManaged {
		return sorted, nil
	}
	return sorted[:maxManaged], sorted[maxManaged:]
}

func (c *Controller) markUnmanaged(server *nmcpv1.MCPServer) {
	setUnmanagedCondition(server)
}

func (c *Controller) patchServerIfChanged(ctx context.Context, server *nmcpv1.MCPServer) error {
	current, err := c.kubeClient.GetServer(ctx, client.ObjectKeyFromObject(server))
	if err != nil || current == nil {
		return err
	}
	stored := current.DeepCopy()
	setUnmanagedCondition(current)
	if equality.Semantic.DeepEqual(stored.Status, current.Status) {
		return nil
	}
	return client.IgnoreNotFound(c.kubeClient.PatchStatus(ctx, current, stored))
}

// wake nudges a pending server so its watch fires on the next tick; the
// server controller's own admission step re-checks pool capacity and
// transitions it to Starting.
func (c *Controller) wake(ctx context.Context, server *nmcpv1.MCPServer) error {
	current, err := c.kubeClient.GetServer(ctx, client.ObjectKeyFromObject(server))
	if err != nil || current == nil {
		return err
	}
	stored := current.DeepCopy()
	clearAwaitingCapacity(current)
	if equality.Semantic.DeepEqual(stored.Status, current.Status) {
		return nil
	}
	return client.IgnoreNotFound(c.kubeClient.PatchStatus(ctx, current, stored))
}

func setUnmanagedCondition(server *nmcpv1.MCPServer) {
	for i := range server.Status.Conditions {
		if server.Status.Conditions[i].Type == nmcpv1.ConditionTypeUnmanaged {
			if server.Status.Conditions[i].Status != metav1.ConditionTrue {
				server.Status.Conditions[i].Status = metav1.ConditionTrue
				server.Status.Conditions[i].LastTransitionTime = metav1.Now()
			}
			return
		}
	}
	server.Status.Conditions = append(server.Status.Conditions, metav1.Condition{
		Type:               nmcpv1.ConditionTypeUnmanaged,
		Status:             metav1.ConditionTrue,
		Reason:             "ExceedsMaxManaged",
		Message:            "server exceeds the pool's maxManaged slots and will not be admitted",
		LastTransitionTime: metav1.Now(),
		ObservedGeneration: server.Generation,
	})
}

func clearAwaitingCapacity(server *nmcpv1.MCPServer) {
	for i := range server.Status.Conditions {
		if server.Status.Conditions[i].Type == nmcpv1.ConditionTypeAwaitingCapacity {
			server.Status.Conditions[i].Status = metav1.ConditionFalse
			server.Status.Conditions[i].LastTransitionTime = metav1.Now()
		}
	}
}
