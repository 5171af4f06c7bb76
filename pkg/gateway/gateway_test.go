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

package gateway_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/samber/lo"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"sigs.k8s.io/controller-runtime/pkg/client"
	fakeclient "sigs.k8s.io/controller-runtime/pkg/client/fake"
	fakeclock "k8s.io/utils/clock/testing"

	"github.com/nwrx/nmcp/pkg/accountant"
	"github.com/nwrx/nmcp/pkg/activation"
	nmcpv1 "github.com/nwrx/nmcp/pkg/apis/v1"
	"github.com/nwrx/nmcp/pkg/gateway"
	"github.com/nwrx/nmcp/pkg/kube"
)

func newScheme() *runtime.Scheme {
	scheme := runtime.NewScheme()
	lo.Must0(clientgoscheme.AddToScheme(scheme))
	lo.Must0(nmcpv1.AddToScheme(scheme))
	return scheme
}

func newFakeClient(objs ...runtime.Object) *kube.Client {
	c := fakeclient.NewClientBuilder().
		WithScheme(newScheme()).
		WithStatusSubresource(&nmcpv1.MCPServer{}, &nmcpv1.MCPPool{}).
		WithRuntimeObjects(objs...).
		WithIndex(&nmcpv1.MCPServer{}, kube.IndexFieldSpecPool, func(o client.Object) []string {
			return []string{o.(*nmcpv1.MCPServer).Spec.Pool}
		}).
		Build()
	return kube.New(c)
}

func newRouter(objs ...runtime.Object) *gateway.Router {
	kubeClient := newFakeClient(objs...)
	waiter := activation.New(kubeClient)
	acct := accountant.New(kubeClient, fakeclock.NewFakeClock(time.Now()))
	return gateway.New("default", kubeClient, waiter, acct, nil, nil, time.Second)
}

func TestListPoolsEmpty(t *testing.T) {
	r := newRouter()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/pools", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var got []any
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no pools, got %d", len(got))
	}
}

func TestCreateAndGetPool(t *testing.T) {
	r := newRouter()

	body, _ := json.Marshal(map[string]any{
		"name": "default",
		"spec": map[string]any{"maxActive": 10},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/pools", bytes.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/pools/default", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestGetServerNotFound(t *testing.T) {
	r := newRouter()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/servers/missing", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	var env struct {
		Error struct {
			Kind string `json:"kind"`
		} `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	if env.Error.Kind != "NotFound" {
		t.Fatalf("expected kind NotFound, got %q", env.Error.Kind)
	}
}

func TestPostMessageWithoutSessionIsConflict(t *testing.T) {
	server := &nmcpv1.MCPServer{
		ObjectMeta: metav1.ObjectMeta{Name: "fetch", Namespace: "default"},
		Spec:       nmcpv1.MCPServerSpec{Transport: nmcpv1.TransportSpec{Type: nmcpv1.TransportSSE, Port: 8080}},
	}
	r := newRouter(server)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/servers/fetch/message?session=unknown", bytes.NewReader([]byte("{}")))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 for unknown session, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHealthAndReady(t *testing.T) {
	r := newRouter()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected /health 200, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/ready", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected /ready 200 against a reachable fake client, got %d", w.Code)
	}
}
