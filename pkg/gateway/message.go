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
	"io"
	"net/http"

	"k8s.io/apimachinery/pkg/types"

	"github.com/nwrx/nmcp/pkg/errs"
)

// postMessage forwards one client-to-server message over the session opened
// by a prior openSSE call, keyed by the session query parameter. A missing
// or unknown session is a 409 Conflict: the client must re-open the stream.
func (r *Router) postMessage(w http.ResponseWriter, req *http.Request) {
	name := req.PathValue("name")
	sessionID := req.URL.Query().Get("session")
	if sessionID == "" {
		writeError(w, http.StatusConflict, "Conflict", "missing session")
		return
	}

	sess, ok := r.sessions.get(sessionID)
	if !ok || sess.server != name {
		writeError(w, http.StatusConflict, "Conflict", "no open session for session id")
		return
	}

	body, err := io.ReadAll(io.LimitReader(req.Body, 8<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Validation", err.Error())
		return
	}

	key := types.NamespacedName{Namespace: r.namespace, Name: name}
	if err := sess.send(req.Context(), body); err != nil {
		requestsTotal.WithLabelValues(r.namespace, name, "error").Inc()
		writeErr(w, errs.NewUpstreamIOError(err))
		return
	}

	r.accountant.Request(key)
	requestsTotal.WithLabelValues(r.namespace, name, "ok").Inc()
	w.WriteHeader(http.StatusAccepted)
}
