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

// Package accountant tracks open connections and request activity per
// server in process memory and coalesces writes of that state to the status
// subresource. It is the only in-process shared mutable state in
// the system; everything else lives in the Kubernetes API.
package accountant

import (
	"context"
	"sync"
	"time"

	"k8s.io/apimachinery/pkg/api/equality"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/utils/clock"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/nwrx/nmcp/pkg/errs"
	"github.com/nwrx/nmcp/pkg/kube"
)

// flushInterval is the coalescing window: all deltas accumulated within one
// tick are folded into a single status patch.
const flushInterval = time.Second

// delta is the pending, unflushed state for one server. totalRequests is a
// monotonic increment, never reset on flush failure; lastRequestAt records
// the latest observed request regardless of flush success. lastFlushedConns
// is the openConns value last durably written to the status subresource, so
// a flush can tell a real 1->0 transition (must be written) from "nothing
// changed" (openConns==0 with nothing ever open).
type delta struct {
	mu                 sync.Mutex
	openConns          int32
	totalRequestsDelta uint64
	lastRequestAt      time.Time
	haveLastRequest    bool
	lastFlushedConns   int32
}

// Accountant is safe for concurrent use from every SSE pump and message
// handler in the gateway.
type Accountant struct {
	kubeClient *kube.Client
	clock      clock.Clock

	mu      sync.Mutex
	byKey   map[types.NamespacedName]*delta
}

// New constructs an Accountant. Call Run in a goroutine to start the
// background flusher.
func New(kubeClient *kube.Client, clk clock.Clock) *Accountant {
	return &Accountant{
		kubeClient: kubeClient,
		clock:      clk,
		byKey:      make(map[types.NamespacedName]*delta),
	}
}

func (a *Accountant) entry(key types.NamespacedName) *delta {
	a.mu.Lock()
	defer a.mu.Unlock()
	d, ok := a.byKey[key]
	if !ok {
		d = &delta{}
		a.byKey[key] = d
	}
	return d
}

// Open increments currentConnections for key. Call on SSE stream open.
func (a *Accountant) Open(key types.NamespacedName) {
	d := a.entry(key)
	d.mu.Lock()
	d.openConns++
	d.mu.Unlock()
}

// Close decrements currentConnections for key. Call exactly once per Open,
// on every exit path (normal close, client disconnect, upstream error).
func (a *Accountant) Close(key types.NamespacedName) {
	d := a.entry(key)
	d.mu.Lock()
	d.openConns--
	d.mu.Unlock()
}

// Request records one forwarded message: increments totalRequests and sets
// lastRequestAt to now.
func (a *Accountant) Request(key types.NamespacedName) {
	d := a.entry(key)
	d.mu.Lock()
	d.totalRequestsDelta++
	d.lastRequestAt = a.clock.Now()
	d.haveLastRequest = true
	d.mu.Unlock()
}

// Run drives the 1s-coalesced flusher until ctx is cancelled.
func (a *Accountant) Run(ctx context.Context) {
	ticker := a.clock.NewTicker(flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			a.flushAll(ctx)
		}
	}
}

func (a *Accountant) keys() []types.NamespacedName {
	a.mu.Lock()
	defer a.mu.Unlock()
	keys := make([]types.NamespacedName, 0, len(a.byKey))
	for k := range a.byKey {
		keys = append(keys, k)
	}
	return keys
}

func (a *Accountant) flushAll(ctx context.Context) {
	for _, key := range a.keys() {
		a.Flush(ctx, key)
	}
}

// Flush patches one server's status with its accumulated delta. On failure,
// the delta is left in place (not reset) so the next tick retries with the
// same, now-larger, pending amount: back-pressure folds in rather than
// drops. Exported so tests can drive a flush deterministically instead of
// waiting on the ticker in Run.
func (a *Accountant) Flush(ctx context.Context, key types.NamespacedName) {
	d := a.entry(key)
	d.mu.Lock()
	openConns := d.openConns
	reqDelta := d.totalRequestsDelta
	lastRequestAt := d.lastRequestAt
	haveLastRequest := d.haveLastRequest
	lastFlushedConns := d.lastFlushedConns
	d.mu.Unlock()

	if openConns < 0 {
		openConns = 0
	}

	if reqDelta == 0 && !haveLastRequest && openConns == lastFlushedConns {
		return
	}

	server, err := a.kubeClient.GetServer(ctx, key)
	if err != nil || server == nil {
		return
	}
	stored := server.DeepCopy()

	server.Status.CurrentConnections = uint32(openConns)
	server.Status.TotalRequests += reqDelta
	if haveLastRequest {
		t := metav1.NewTime(lastRequestAt)
		server.Status.LastRequestAt = &t
	}

	if equality.Semantic.DeepEqual(stored.Status, server.Status) {
		a.clearFlushed(key, reqDelta, openConns)
		return
	}

	if err := a.kubeClient.PatchStatus(ctx, server, stored); errs.IsConflict(err) || client.IgnoreNotFound(err) != nil {
		return // leave delta pending; retried next tick
	}
	a.clearFlushed(key, reqDelta, openConns)
}

// clearFlushed subtracts exactly the request amount this flush succeeded in
// writing (so a Request() racing with the flush isn't lost) and records the
// connection count that was durably written, so the next tick can detect
// further transitions including a drop back to zero.
func (a *Accountant) clearFlushed(key types.NamespacedName, reqDelta uint64, flushedConns int32) {
	d := a.entry(key)
	d.mu.Lock()
	d.totalRequestsDelta -= reqDelta
	d.haveLastRequest = false
	d.lastFlushedConns = flushedConns
	d.mu.Unlock()
}

// Snapshot returns the current in-memory connection count and pending
// request delta for key, used by the gateway to answer reads without
// waiting for the next flush to land in the status subresource.
func (a *Accountant) Snapshot(key types.NamespacedName) (openConns int32, totalRequestsPending uint64) {
	d := a.entry(key)
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.openConns, d.totalRequestsDelta
}
