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

// Package events wraps client-go's EventRecorder with deduping and optional
// rate limiting, so the server and pool controllers can emit Kubernetes
// events on every reconcile without flooding the API with repeats.
package events

import (
	"fmt"
	"strings"
	"time"

	cache "github.com/patrickmn/go-cache"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/tools/record"
	"k8s.io/client-go/util/flowcontrol"
)

// Event is one candidate Kubernetes event. DedupeValues, when non-empty,
// scope the dedupe key beyond the reason alone (e.g. object UID) so distinct
// objects hitting the same reason don't suppress each other.
type Event struct {
	InvolvedObject runtime.Object
	Type           string
	Reason         string
	Message        string
	DedupeValues   []string
	DedupeTimeout  time.Duration
	RateLimiter    flowcontrol.RateLimiter
}

func (e Event) dedupeKey() string {
	return fmt.Sprintf("%s-%s", strings.ToLower(e.Reason), strings.Join(e.DedupeValues, "-"))
}

// Recorder publishes deduped events.
type Recorder interface {
	Publish(...Event)
}

type recorder struct {
	rec   record.EventRecorder
	cache *cache.Cache
}

const defaultDedupeTimeout = 2 * time.Minute

// NewRecorder wraps a client-go EventRecorder with a short-lived dedupe cache.
func NewRecorder(r record.EventRecorder) Recorder {
	return &recorder{
		rec:   r,
		cache: cache.New(defaultDedupeTimeout, 10*time.Second),
	}
}

func (r *recorder) Publish(evts ...Event) {
	for _, evt := range evts {
		r.publishEvent(evt)
	}
}

func (r *recorder) publishEvent(evt Event) {
	timeout := defaultDedupeTimeout
	if evt.DedupeTimeout != 0 {
		timeout = evt.DedupeTimeout
	}
	if len(evt.DedupeValues) > 0 && !r.shouldCreateEvent(evt.dedupeKey(), timeout) {
		return
	}
	if evt.RateLimiter != nil && !evt.RateLimiter.TryAccept() {
		return
	}
	r.rec.Event(evt.InvolvedObject, evt.Type, evt.Reason, evt.Message)
}

func (r *recorder) shouldCreateEvent(key string, timeout time.Duration) bool {
	if _, exists := r.cache.Get(key); exists {
		return false
	}
	r.cache.Set(key, nil, timeout)
	return true
}
