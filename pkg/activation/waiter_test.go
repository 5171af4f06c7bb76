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

package activation_test

import (
	"context"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/samber/lo"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"sigs.k8s.io/controller-runtime/pkg/client"
	fakeclient "sigs.k8s.io/controller-runtime/pkg/client/fake"

	"github.com/nwrx/nmcp/pkg/activation"
	nmcpv1 "github.com/nwrx/nmcp/pkg/apis/v1"
	"github.com/nwrx/nmcp/pkg/errs"
	"github.com/nwrx/nmcp/pkg/kube"
)

func TestActivation(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Activation Waiter")
}

func newScheme() *runtime.Scheme {
	scheme := runtime.NewScheme()
	lo.Must0(clientgoscheme.AddToScheme(scheme))
	lo.Must0(nmcpv1.AddToScheme(scheme))
	return scheme
}

var _ = Describe("Activation Waiter", func() {
	It("returns immediately for an already-Running server", func() {
		ctx := context.Background()
		server := &nmcpv1.MCPServer{
			ObjectMeta: metav1.ObjectMeta{Name: "ctx7", Namespace: "default"},
			Spec:       nmcpv1.MCPServerSpec{Transport: nmcpv1.TransportSpec{Type: nmcpv1.TransportStdio}},
			Status:     nmcpv1.MCPServerStatus{Phase: nmcpv1.PhaseRunning},
		}
		svc := &corev1.Service{
			ObjectMeta: metav1.ObjectMeta{Name: "ctx7", Namespace: "default"},
			Spec:       corev1.ServiceSpec{Ports: []corev1.ServicePort{{Port: 8080}}},
		}
		c := fakeclient.NewClientBuilder().WithScheme(newScheme()).WithObjects(server, svc).
			WithStatusSubresource(&nmcpv1.MCPServer{}).Build()
		w := activation.New(kube.New(c))

		endpoint, err := w.Activate(ctx, "default", "ctx7", time.Second)
		Expect(err).NotTo(HaveOccurred())
		Expect(endpoint.DNSName).To(Equal("ctx7.default.svc"))
		Expect(endpoint.Port).To(Equal(int32(8080)))
	})

	It("times out when the server never reaches Running", func() {
		ctx := context.Background()
		server := &nmcpv1.MCPServer{
			ObjectMeta: metav1.ObjectMeta{Name: "ctx7", Namespace: "default"},
			Spec:       nmcpv1.MCPServerSpec{Transport: nmcpv1.TransportSpec{Type: nmcpv1.TransportStdio}},
			Status:     nmcpv1.MCPServerStatus{Phase: nmcpv1.PhaseIdle},
		}
		c := fakeclient.NewClientBuilder().WithScheme(newScheme()).WithObjects(server).
			WithStatusSubresource(&nmcpv1.MCPServer{}).Build()
		w := activation.New(kube.New(c))

		_, err := w.Activate(ctx, "default", "ctx7", 300*time.Millisecond)
		Expect(errs.IsActivationTimeout(err)).To(BeTrue())
	})

	It("fails fast when the server transitions to Failed", func() {
		ctx := context.Background()
		server := &nmcpv1.MCPServer{
			ObjectMeta: metav1.ObjectMeta{Name: "ctx7", Namespace: "default"},
			Spec:       nmcpv1.MCPServerSpec{Transport: nmcpv1.TransportSpec{Type: nmcpv1.TransportStdio}},
			Status:     nmcpv1.MCPServerStatus{Phase: nmcpv1.PhaseIdle},
		}
		c := fakeclient.NewClientBuilder().WithScheme(newScheme()).WithObjects(server).
			WithStatusSubresource(&nmcpv1.MCPServer{}).Build()
		w := activation.New(kube.New(c))

		go func() {
			defer GinkgoRecover()
			time.Sleep(50 * time.Millisecond)
			current := &nmcpv1.MCPServer{}
			Expect(c.Get(ctx, client.ObjectKey{Namespace: "default", Name: "ctx7"}, current)).To(Succeed())
			current.Status.Phase = nmcpv1.PhaseFailed
			Expect(c.Status().Update(ctx, current)).To(Succeed())
		}()

		_, err := w.Activate(ctx, "default", "ctx7", 2*time.Second)
		Expect(errs.IsActivationFailed(err)).To(BeTrue())
	})
})
