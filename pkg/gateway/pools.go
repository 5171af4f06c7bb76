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
	"sigs.k8s.io/controller-runtime/pkg/client"

	nmcpv1 "github.com/nwrx/nmcp/pkg/apis/v1"
	"github.com/nwrx/nmcp/pkg/errs"
)

// poolBody is the JSON mirror of an MCPPool: its name, spec and status
// (status is ignored on create and update).
type poolBody struct {
	Name   string              `json:"name"`
	Spec   nmcpv1.MCPPoolSpec  `json:"spec"`
	Status *nmcpv1.MCPPoolStatus `json:"status,omitempty"`
}

func toPoolBody(p *nmcpv1.MCPPool) poolBody {
	status := p.Status
	return poolBody{Name: p.Name, Spec: p.Spec, Status: &status}
}

func (r *Router) listPools(w http.ResponseWriter, req *http.Request) {
	list := &nmcpv1.MCPPoolList{}
	if err := r.kubeClient.List(req.Context(), list, client.InNamespace(r.namespace)); err != nil {
		writeErr(w, errs.NewTransientAPI(err))
		return
	}
	out := make([]poolBody, 0, len(list.Items))
	for i := range list.Items {
		out = append(out, toPoolBody(&list.Items[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (r *Router) getPool(w http.ResponseWriter, req *http.Request) {
	name := req.PathValue("name")
	pool, err := r.kubeClient.GetPool(req.Context(), client.ObjectKey{Namespace: r.namespace, Name: name})
	if err != nil {
		writeErr(w, err)
		return
	}
	if pool == nil {
		writeNotFound(w, "NotFound", "pool not found")
		return
	}
	writeJSON(w, http.StatusOK, toPoolBody(pool))
}

func (r *Router) createPool(w http.ResponseWriter, req *http.Request) {
	var body poolBody
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Validation", err.Error())
		return
	}
	pool := &nmcpv1.MCPPool{
		ObjectMeta: metav1.ObjectMeta{Name: body.Name, Namespace: r.namespace},
		Spec:       body.Spec,
	}
	if err := r.kubeClient.Create(req.Context(), pool); err != nil {
		if apierrors.IsAlreadyExists(err) {
			writeError(w, http.StatusConflict, "Conflict", err.Error())
			return
		}
		writeErr(w, errs.NewTransientAPI(err))
		return
	}
	writeJSON(w, http.StatusCreated, toPoolBody(pool))
}

func (r *Router) updatePool(w http.ResponseWriter, req *http.Request) {
	name := req.PathValue("name")
	var body poolBody
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Validation", err.Error())
		return
	}
	pool, err := r.kubeClient.GetPool(req.Context(), client.ObjectKey{Namespace: r.namespace, Name: name})
	if err != nil {
		writeErr(w, err)
		return
	}
	if pool == nil {
		writeNotFound(w, "NotFound", "pool not found")
		return
	}
	pool.Spec = body.Spec
	if err := r.kubeClient.Update(req.Context(), pool); err != nil {
		if apierrors.IsConflict(err) {
			writeError(w, http.StatusConflict, "Conflict", err.Error())
			return
		}
		writeErr(w, errs.NewTransientAPI(err))
		return
	}
	writeJSON(w, http.StatusOK, toPoolBody(pool))
}

func (r *Router) deletePool(w http.ResponseWriter, req *http.Request) {
	name := req.PathValue("name")
	pool := &nmcpv1.MCPPool{ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: r.namespace}}
	if err := client.IgnoreNotFound(r.kubeClient.Delete(req.Context(), pool)); err != nil {
		writeErr(w, errs.NewTransientAPI(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
