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

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/reconcile"

	nmcpv1 "github.com/nwrx/nmcp/pkg/apis/v1"
	"github.com/nwrx/nmcp/pkg/errs"
	"github.com/nwrx/nmcp/pkg/events"
	"github.com/nwrx/nmcp/pkg/kube"
	"github.com/nwrx/nmcp/pkg/resources"
)

// Materialize ensures the Pod/Service for a Requested, Starting or Running
// server match the desired descriptors, transitioning the phase as they
// converge. A missing Pod is created only for a Requested or Starting server;
// a Running server whose Pod is gone gets no new Pod here.
type Materialize struct {
	kubeClient *kube.Client
	recorder   events.Recorder
}

func (m *Materialize) Reconcile(ctx context.Context, server *nmcpv1.MCPServer) (reconcile.Result, error) {
	switch server.Status.Phase {
	case nmcpv1.PhaseIdle, nmcpv1.PhaseStopping, nmcpv1.PhaseFailed:
		return reconcile.Result{}, nil
	}

	if err := m.validate(server); err != nil {
		server.Status.Phase = nmcpv1.PhaseFailed
		return reconcile.Result{}, err
	}

	poolName := server.Spec.Pool
	if poolName == "" {
		poolName = "default"
	}
	pool, err := m.kubeClient.GetPool(ctx, client.ObjectKey{Namespace: server.Namespace, Name: poolName})
	if err != nil {
		return reconcile.Result{}, err
	}

	// Admission gate: a server that hasn't been admitted stays Requested and
	// must not be materialized yet (Admission already recorded why).
	if server.Status.Phase == nmcpv1.PhaseRequested {
		if pool == nil || pool.Status.Active >= pool.Spec.MaxActive {
			return reconcile.Result{}, nil
		}
	}

	key := client.ObjectKeyFromObject(server)
	pod, err := m.kubeClient.GetPod(ctx, key)
	if err != nil {
		return reconcile.Result{}, err
	}
	if pod == nil && server.Status.Phase == nmcpv1.PhaseRunning {
		return reconcile.Result{}, nil
	}

	if pod != nil && !resources.MatchesLabels(pod.Labels, server) {
		// Name collision with a foreign Pod: don't touch it, surface as
		// PodFailed so the operator notices instead of silently stalling.
		return reconcile.Result{}, errs.NewPodFailed(fmt.Errorf("pod/%s exists but is not managed by nmcp", server.Name), 1)
	}

	if pod != nil && resources.Drifted(pod, server, pool) {
		m.recorder.Publish(specDriftEvent(server))
		if err := m.kubeClient.DeletePod(ctx, key); err != nil {
			return reconcile.Result{}, err
		}
		if err := m.kubeClient.DeleteService(ctx, key); err != nil {
			return reconcile.Result{}, err
		}
		pod = nil
	}

	if pod == nil {
		desiredPod := resources.BuildPod(server, pool)
		if err := resources.SetOwner(server, desiredPod, m.kubeClient.Scheme()); err != nil {
			return reconcile.Result{}, err
		}
		if err := m.kubeClient.Create(ctx, desiredPod); err != nil && !apierrors.IsAlreadyExists(err) {
			return reconcile.Result{}, errs.NewTransientAPI(err)
		}
		desiredSvc := resources.BuildService(server)
		if err := resources.SetOwner(server, desiredSvc, m.kubeClient.Scheme()); err != nil {
			return reconcile.Result{}, err
		}
		if err := m.kubeClient.Create(ctx, desiredSvc); err != nil && !apierrors.IsAlreadyExists(err) {
			return reconcile.Result{}, errs.NewTransientAPI(err)
		}

		server.Status.Phase = nmcpv1.PhaseStarting
		if server.Status.StartedAt == nil {
			now := metav1.Now()
			server.Status.StartedAt = &now
		}
		m.recorder.Publish(podCreatedEvent(server))
		return reconcile.Result{}, nil
	}

	if !podReady(pod) {
		if podFailedPermanently(pod) {
			server.Status.Phase = nmcpv1.PhaseFailed
			meta.SetStatusCondition(&server.Status.Conditions, metaCondition(nmcpv1.ConditionTypePodFailed, metav1.ConditionTrue, "PodFailed", podFailureReason(pod), server.Generation))
			m.recorder.Publish(podFailedEvent(server, podFailureReason(pod)))
			return reconcile.Result{}, errs.NewPodFailed(fmt.Errorf("%s", podFailureReason(pod)), 3)
		}
		server.Status.Phase = nmcpv1.PhaseStarting
		return reconcile.Result{}, nil
	}

	server.Status.Phase = nmcpv1.PhaseRunning
	return reconcile.Result{}, nil
}

func (m *Materialize) validate(server *nmcpv1.MCPServer) error {
	if server.Spec.IdleTimeout < 0 {
		return errs.NewValidation("InvalidSpec", fmt.Errorf("idleTimeout must be >= 0"))
	}
	switch server.Spec.Transport.Type {
	case nmcpv1.TransportStdio:
	case nmcpv1.TransportSSE:
		if server.Spec.Transport.Port <= 0 {
			return errs.NewValidation("InvalidSpec", fmt.Errorf("transport.port is required for sse transport"))
		}
	default:
		return errs.NewValidation("InvalidSpec", fmt.Errorf("unknown transport type %q", server.Spec.Transport.Type))
	}
	return nil
}

func podReady(pod *corev1.Pod) bool {
	for _, c := range pod.Status.Conditions {
		if c.Type == corev1.PodReady {
			return c.Status == corev1.ConditionTrue
		}
	}
	return false
}

func podFailedPermanently(pod *corev1.Pod) bool {
	if pod.Status.Phase == corev1.PodFailed {
		return true
	}
	for _, cs := range pod.Status.ContainerStatuses {
		if w := cs.State.Waiting; w != nil && (w.Reason == "ImagePullBackOff" || w.Reason == "ErrImagePull" || w.Reason == "CrashLoopBackOff") {
			return true
		}
	}
	return false
}

func podFailureReason(pod *corev1.Pod) string {
	for _, cs := range pod.Status.ContainerStatuses {
		if w := cs.State.Waiting; w != nil {
			return w.Reason
		}
		if t := cs.State.Terminated; t != nil {
			return t.Reason
		}
	}
	return "unknown"
}
