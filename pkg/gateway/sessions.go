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

package gateway

import (
	"context"
	"sync"
)

// session is one open SSE stream's routing entry: postMessage looks it up by
// id and forwards the request body through send, regardless of whether the
// underlying transport is stdio (pod stdin) or sse (an upstream HTTP POST).
type session struct {
	id        string
	namespace string
	server    string
	send      func(ctx context.Context, payload []byte) error
	close     func()
}

// sessionTable is the gateway's message-routing directory: one entry per
// open SSE stream, keyed by the session id minted at /sse open time and
// handed back to the client as the endpoint event's query parameter.
type sessionTable struct {
	mu   sync.Mutex
	byID map[string]*session
}

func newSessionTable() *sessionTable {
	return &sessionTable{byID: make(map[string]*session)}
}

func (t *sessionTable) add(s *session) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byID[s.id] = s
}

func (t *sessionTable) get(id string) (*session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.byID[id]
	return s, ok
}

func (t *sessionTable) remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.byID, id)
}

// closeAllFor tears down every open session for server, called when the
// server CR is deleted out from under a live stream.
func (t *sessionTable) closeAllFor(server string) {
	t.mu.Lock()
	var toClose []*session
	for id, s := range t.byID {
		if s.server == server {
			toClose = append(toClose, s)
			delete(t.byID, id)
		}
	}
	t.mu.Unlock()
	for _, s := range toClose {
		s.close()
	}
}
