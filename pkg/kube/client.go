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

// Package kube is the typed surface every other package uses to talk to the
// API server: reads go through the manager's cached client, writes against
// the CRDs carry a resource-version precondition and retry on conflict, and
// status writes always go through the status subresource.
package kube

import (
	"context"
	"time"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"

	nmcpv1 "github.com/nwrx/nmcp/pkg/apis/v1"
	"github.com/nwrx/nmcp/pkg/errs"
)

// maxCASRetries bounds the read-modify-write retry loop used by RequestActivation.
const maxCASRetries = 5

// Client wraps a controller-runtime client.Client with the read/write
// operations the controllers, activation waiter and gateway need, so none of
// them import sigs.k8s.io/controller-runtime/pkg/client directly.
type Client struct {
	client.Client
}

// New wraps c.
func New(c client.Client) *Client {
	return &Client{Client: c}
}

// GetServer reads one MCPServer, translating NotFound into a nil, nil
// result so callers don't need to import apierrors themselves.
func (c *Client) GetServer(ctx context.Context, key types.NamespacedName) (*nmcpv1.MCPServer, error) {
	server := &nmcpv1.MCPServer{}
	if err := c.Get(ctx, key, server); err != nil {
		if apierrors.IsNotFound(err) {
			return nil, nil
		}
		return nil, errs.NewTransientAPI(err)
	}
	return server, nil
}

// GetPool reads one MCPPool, translating NotFound into a nil, nil result.
func (c *Client) GetPool(ctx context.Context, key types.NamespacedName) (*nmcpv1.MCPPool, error) {
	pool := &nmcpv1.MCPPool{}
	if err := c.Get(ctx, key, pool); err != nil {
		if apierrors.IsNotFound(err) {
			return nil, nil
		}
		return nil, errs.NewTransientAPI(err)
	}
	return pool, nil
}

// ListServersForPool lists every MCPServer in namespace whose spec.pool
// equals pool, relying on the field indexer registered by the manager.
func (c *Client) ListServersForPool(ctx context.Context, namespace, pool string) ([]nmcpv1.MCPServer, error) {
	list := &nmcpv1.MCPServerList{}
	if err := c.List(ctx, list,
		client.InNamespace(namespace),
		client.MatchingFields{IndexFieldSpecPool: pool},
	); err != nil {
		return nil, errs.NewTransientAPI(err)
	}
	return list.Items, nil
}

// GetPod reads the Pod materializing server, translating NotFound into a
// nil, nil result.
func (c *Client) GetPod(ctx context.Context, key types.NamespacedName) (*corev1.Pod, error) {
	pod := &corev1.Pod{}
	if err := c.Get(ctx, key, pod); err != nil {
		if apierrors.IsNotFound(err) {
			return nil, nil
		}
		return nil, errs.NewTransientAPI(err)
	}
	return pod, nil
}

// GetService reads the Service materializing server, translating NotFound
// into a nil, nil result.
func (c *Client) GetService(ctx context.Context, key types.NamespacedName) (*corev1.Service, error) {
	svc := &corev1.Service{}
	if err := c.Get(ctx, key, svc); err != nil {
		if apierrors.IsNotFound(err) {
			return nil, nil
		}
		return nil, errs.NewTransientAPI(err)
	}
	return svc, nil
}

// DeletePod deletes the Pod named key, ignoring NotFound.
func (c *Client) DeletePod(ctx context.Context, key types.NamespacedName) error {
	pod := &corev1.Pod{}
	pod.Name, pod.Namespace = key.Name, key.Namespace
	return client.IgnoreNotFound(c.Delete(ctx, pod))
}

// DeleteService deletes the Service named key, ignoring NotFound.
func (c *Client) DeleteService(ctx context.Context, key types.NamespacedName) error {
	svc := &corev1.Service{}
	svc.Name, svc.Namespace = key.Name, key.Namespace
	return client.IgnoreNotFound(c.Delete(ctx, svc))
}

// PatchStatus applies a JSON merge patch of server's status against stored,
// using the status subresource, with stored's resourceVersion as a
// precondition. It always sends the patch; callers skip the call themselves
// (via equality.Semantic.DeepEqual) when nothing changed.
func (c *Client) PatchStatus(ctx context.Context, server, stored *nmcpv1.MCPServer) error {
	if err := c.Status().Patch(ctx, server, client.MergeFromWithOptions(stored, client.MergeFromWithOptimisticLock{})); err != nil {
		if apierrors.IsConflict(err) {
			return errs.NewConflict(err)
		}
		return errs.NewTransientAPI(client.IgnoreNotFound(err))
	}
	return nil
}

// PatchPoolStatus applies a JSON merge patch of pool's status against stored,
// with stored's resourceVersion as a precondition.
func (c *Client) PatchPoolStatus(ctx context.Context, pool, stored *nmcpv1.MCPPool) error {
	if err := c.Status().Patch(ctx, pool, client.MergeFromWithOptions(stored, client.MergeFromWithOptimisticLock{})); err != nil {
		if apierrors.IsConflict(err) {
			return errs.NewConflict(err)
		}
		return errs.NewTransientAPI(client.IgnoreNotFound(err))
	}
	return nil
}

// RequestActivation performs the compare-and-swap used when activating a server:
// reload the server, and if it is still Idle, patch its phase to Requested.
// On a resourceVersion conflict it reloads and retries up to maxCASRetries
// times. Returns the server as observed after the (possibly no-op) patch.
func (c *Client) RequestActivation(ctx context.Context, key types.NamespacedName) (*nmcpv1.MCPServer, error) {
	var last error
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		server, err := c.GetServer(ctx, key)
		if err != nil {
			return nil, err
		}
		if server == nil {
			return nil, errs.NewTransientAPI(apierrors.NewNotFound(nmcpv1.Resource("mcpservers"), key.Name))
		}
		if server.Status.Phase != nmcpv1.PhaseIdle {
			return server, nil
		}
		stored := server.DeepCopy()
		server.Status.Phase = nmcpv1.PhaseRequested
		if err := c.PatchStatus(ctx, server, stored); err != nil {
			if errs.IsConflict(err) {
				last = err
				continue
			}
			return nil, err
		}
		return server, nil
	}
	return nil, errs.NewConflict(last)
}

// BackoffBase and BackoffCap parameterize the exponential backoff the server
// controller's workqueue rate limiter uses for failed reconciles; the 2x
// growth factor between them is fixed by
// workqueue.NewTypedItemExponentialFailureRateLimiter itself, not a
// separately tunable value. That limiter applies no jitter, and the pool
// controller keeps controller-runtime's default rate limiter.
const (
	BackoffBase = 200 * time.Millisecond
	BackoffCap  = 60 * time.Second
)
