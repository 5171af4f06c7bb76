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

// Package server implements the MCPServer lifecycle controller: the phase
// state machine, admission against pool capacity, Pod/Service
// materialization and the idle reaper.
package server

import (
	"context"

	"go.uber.org/multierr"
	"golang.org/x/time/rate"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/equality"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/client-go/util/workqueue"
	"k8s.io/utils/clock"
	controllerruntime "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"
	"sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/manager"
	"sigs.k8s.io/controller-runtime/pkg/reconcile"

	nmcpv1 "github.com/nwrx/nmcp/pkg/apis/v1"
	"github.com/nwrx/nmcp/pkg/errs"
	"github.com/nwrx/nmcp/pkg/events"
	"github.com/nwrx/nmcp/pkg/kube"
)

// maxConcurrentReconciles is the per-controller worker count, fixed at 2
// rather than scaled with CPU count, since servers are cheap to reconcile
// and fairness across keys matters more than throughput.
const maxConcurrentReconciles = 2

// subReconciler mirrors reconcile.Reconciler but is scoped to *MCPServer so
// the three lifecycle steps (admission, materialization, idle reaping) can be
// implemented, tested and reasoned about in isolation.
type subReconciler interface {
	Reconcile(ctx context.Context, server *nmcpv1.MCPServer) (reconcile.Result, error)
}

// Controller reconciles one MCPServer at a time.
type Controller struct {
	kubeClient *kube.Client
	clock      clock.Clock
	recorder   events.Recorder

	admission   *Admission
	materialize *Materialize
	reap        *Reap
}

// NewController wires the sub-reconcilers against a shared kube client.
func NewController(clk clock.Clock, kubeClient *kube.Client, recorder events.Recorder) *Controller {
	return &Controller{
		kubeClient: kubeClient,
		clock:      clk,
		recorder:   recorder,

		admission:   &Admission{kubeClient: kubeClient, recorder: recorder},
		materialize: &Materialize{kubeClient: kubeClient, recorder: recorder},
		reap:        &Reap{kubeClient: kubeClient, clock: clk, recorder: recorder},
	}
}

func (c *Controller) Name() string { return "server" }

func (c *Controller) Register(ctx context.Context, m manager.Manager) error {
	return controllerruntime.NewControllerManagedBy(m).
		Named(c.Name()).
		For(&nmcpv1.MCPServer{}).
		Owns(&corev1.Pod{}).
		WithOptions(controller.Options{
			RateLimiter: workqueue.NewTypedMaxOfRateLimiter[reconcile.Request](
				workqueue.NewTypedItemExponentialFailureRateLimiter[reconcile.Request](kube.BackoffBase, kube.BackoffCap),
				&workqueue.TypedBucketRateLimiter[reconcile.Request]{Limiter: rate.NewLimiter(rate.Limit(10), 100)},
			),
			MaxConcurrentReconciles: maxConcurrentReconciles,
		}).
		Complete(reconcile.AsReconciler(m.GetClient(), c))
}

// Reconcile implements reconcile.TypedReconciler[*nmcpv1.MCPServer], and is
// the single entry point driving a server through finalization, admission,
// materialization and idle reaping.
func (c *Controller) Reconcile(ctx context.Context, server *nmcpv1.MCPServer) (reconcile.Result, error) {
	ctx = log.IntoContext(ctx, log.FromContext(ctx).WithValues("server", server.Name, "namespace", server.Namespace))

	if !server.DeletionTimestamp.IsZero() {
		return c.finalize(ctx, server)
	}

	stored := server.DeepCopy()
	controllerutil.AddFinalizer(server, nmcpv1.TerminationFinalizer)
	if !equality.Semantic.DeepEqual(server, stored) {
		if err := c.kubeClient.Patch(ctx, server, client.MergeFromWithOptions(stored, client.MergeFromWithOptimisticLock{})); err != nil {
			if apierrors.IsConflict(err) {
				return reconcile.Result{Requeue: true}, nil
			}
			return reconcile.Result{}, client.IgnoreNotFound(err)
		}
	}

	stored = server.DeepCopy()
	var errs_ error
	var result reconcile.Result
	for _, sub := range []subReconciler{c.admission, c.materialize, c.reap} {
		res, err := sub.Reconcile(ctx, server)
		errs_ = multierr.Append(errs_, err)
		result = minResult(result, res)
	}

	server.Status.ObservedGeneration = server.Generation
	if !equality.Semantic.DeepEqual(stored.Status, server.Status) {
		if err := c.kubeClient.PatchStatus(ctx, server, stored); err != nil {
			if errs.IsConflict(err) {
				return reconcile.Result{Requeue: true}, nil
			}
			errs_ = multierr.Append(errs_, err)
		}
	}

	if errs_ != nil {
		if errs.IsValidation(errs_) || errs.IsPodFailed(errs_) {
			// terminal: no requeue. A server left in phase Failed is skipped
			// by Materialize on every later reconcile, spec changes included,
			// until its status is cleared.
			return reconcile.Result{}, nil
		}
		return reconcile.Result{}, errs_
	}
	return result, nil
}

// finalize runs the deletion path: Stopping, delete Pod then Service
// (ignoring NotFound), then drop the finalizer.
func (c *Controller) finalize(ctx context.Context, server *nmcpv1.MCPServer) (reconcile.Result, error) {
	if !controllerutil.ContainsFinalizer(server, nmcpv1.TerminationFinalizer) {
		return reconcile.Result{}, nil
	}

	key := client.ObjectKeyFromObject(server)
	stored := server.DeepCopy()
	server.Status.Phase = nmcpv1.PhaseStopping
	if !equality.Semantic.DeepEqual(stored.Status, server.Status) {
		if err := c.kubeClient.PatchStatus(ctx, server, stored); client.IgnoreNotFound(err) != nil && !errs.IsConflict(err) {
			return reconcile.Result{}, err
		}
	}

	if err := c.kubeClient.DeletePod(ctx, key); err != nil {
		return reconcile.Result{}, err
	}
	if err := c.kubeClient.DeleteService(ctx, key); err != nil {
		return reconcile.Result{}, err
	}

	stored = server.DeepCopy()
	controllerutil.RemoveFinalizer(server, nmcpv1.TerminationFinalizer)
	if err := c.kubeClient.Patch(ctx, server, client.MergeFromWithOptions(stored, client.MergeFromWithOptimisticLock{})); err != nil {
		if apierrors.IsConflict(err) {
			return reconcile.Result{Requeue: true}, nil
		}
		return reconcile.Result{}, client.IgnoreNotFound(err)
	}
	return reconcile.Result{}, nil
}

// minResult combines two reconcile.Result the way multiple sub-reconcilers'
// preferences are reconciled: the shorter non-zero RequeueAfter wins, and a
// bare Requeue beats no requeue at all.
func minResult(a, b reconcile.Result) reconcile.Result {
	if a.RequeueAfter == 0 && b.RequeueAfter == 0 {
		return reconcile.Result{Requeue: a.Requeue || b.Requeue}
	}
	if a.RequeueAfter == 0 {
		return b
	}
	if b.RequeueAfter == 0 {
		return a
	}
	if a.RequeueAfter < b.RequeueAfter {
		return a
	}
	return b
}
