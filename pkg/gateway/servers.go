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
	"encoding/json"
	"net/http"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"

	nmcpv1 "github.com/nwrx/nmcp/pkg/apis/v1"
	"github.com/nwrx/nmcp/pkg/errs"
)

// serverBody is the JSON mirror of an MCPServer's spec/status.
type serverBody struct {
	Name   string                `json:"name"`
	Spec   nmcpv1.MCPServerSpec  `json:"spec"`
	Status *nmcpv1.MCPServerStatus `json:"status,omitempty"`
}

// toServerBody mirrors s's spec/status, overlaying CurrentConnections and
// TotalRequests with the accountant's in-memory snapshot so a read between
// two flush ticks doesn't show stale counts from the last status patch.
func (r *Router) toServerBody(s *nmcpv1.MCPServer) serverBody {
	status := s.Status
	openConns, pendingRequests := r.accountant.Snapshot(types.NamespacedName{Namespace: s.Namespace, Name: s.Name})
	if openConns < 0 {
		openConns = 0
	}
	status.CurrentConnections = uint32(openConns)
	status.TotalRequests += pendingRequests
	return serverBody{Name: s.Name, Spec: s.Spec, Status: &status}
}

func (r *Router) listServers(w http.ResponseWriter, req *http.Request) {
	list := &nmcpv1.MCPServerList{}
	if err := r.kubeClient.List(req.Context(), list, client.InNamespace(r.namespace)); err != nil {
		writeErr(w, errs.NewTransientAPI(err))
		return
	}
	out := make([]serverBody, 0, len(list.Items))
	for i := range list.Items {
		out = append(out, r.toServerBody(&list.Items[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (r *Router) getServer(w http.ResponseWriter, req *http.Request) {
	name := req.PathValue("name")
	server, err := r.kubeClient.GetServer(req.Context(), client.ObjectKey{Namespace: r.namespace, Name: name})
	if err != nil {
		writeErr(w, err)
		return
	}
	if server == nil {
		writeNotFound(w, "NotFound", "server not found")
		return
	}
	writeJSON(w, http.StatusOK, r.toServerBody(server))
}

func (r *Router) createServer(w http.ResponseWriter, req *http.Request) {
	var body serverBody
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Validation", err.Error())
		return
	}
	server := &nmcpv1.MCPServer{
		ObjectMeta: metav1.ObjectMeta{Name: body.Name, Namespace: r.namespace},
		Spec:       body.Spec,
	}
	if err := r.kubeClient.Create(req.Context(), server); err != nil {
		if apierrors.IsAlreadyExists(err) {
			writeError(w, http.StatusConflict, "Conflict", err.Error())
			return
		}
		writeErr(w, errs.NewTransientAPI(err))
		return
	}
	writeJSON(w, http.StatusCreated, r.toServerBody(server))
}

func (r *Router) updateServer(w http.ResponseWriter, req *http.Request) {
	name := req.PathValue("name")
	var body serverBody
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Validation", err.Error())
		return
	}
	server, err := r.kubeClient.GetServer(req.Context(), client.ObjectKey{Namespace: r.namespace, Name: name})
	if err != nil {
		writeErr(w, err)
		return
	}
	if server == nil {
		writeNotFound(w, "NotFound", "server not found")
		return
	}
	server.Spec = body.Spec
	if err := r.kubeClient.Update(req.Context(), server); err != nil {
		if apierrors.IsConflict(err) {
			writeError(w, http.StatusConflict, "Conflict", err.Error())
			return
		}
		writeErr(w, errs.NewTransientAPI(err))
		return
	}
	writeJSON(w, http.StatusOK, r.toServerBody(server))
}

func (r *Router) deleteServer(w http.ResponseWriter, req *http.Request) {
	name := req.PathValue("name")
	server := &nmcpv1.MCPServer{ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: r.namespace}}
	if err := client.IgnoreNotFound(r.kubeClient.Delete(req.Context(), server)); err != nil {
		writeErr(w, errs.NewTransientAPI(err))
		return
	}
	r.sessions.closeAllFor(name)
	w.WriteHeader(http.StatusNoContent)
}
