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

package pool_test

import (
	"context"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/samber/lo"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"sigs.k8s.io/controller-runtime/pkg/client"
	fakeclient "sigs.k8s.io/controller-runtime/pkg/client/fake"

	nmcpv1 "github.com/nwrx/nmcp/pkg/apis/v1"
	poolcontroller "github.com/nwrx/nmcp/pkg/controllers/pool"
	"github.com/nwrx/nmcp/pkg/events"
	"github.com/nwrx/nmcp/pkg/kube"
)

func TestPool(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Pool Controller")
}

type discardingRecorder struct{}

func (discardingRecorder) Publish(...events.Event) {}

func newScheme() *runtime.Scheme {
	scheme := runtime.NewScheme()
	lo.Must0(clientgoscheme.AddToScheme(scheme))
	lo.Must0(nmcpv1.AddToScheme(scheme))
	return scheme
}

var _ = Describe("Pool Controller", func() {
	It("counts every Requested server in the pool as pending", func() {
		ctx := context.Background()
		poolObj := &nmcpv1.MCPPool{
			ObjectMeta: metav1.ObjectMeta{Name: "default", Namespace: "default"},
			Spec:       nmcpv1.MCPPoolSpec{MaxActive: 1, MaxManaged: 10},
		}
		older := metav1.NewTime(time.Now().Add(-time.Minute))
		a := &nmcpv1.MCPServer{
			ObjectMeta: metav1.ObjectMeta{Name: "a", Namespace: "default", CreationTimestamp: older},
			Spec:       nmcpv1.MCPServerSpec{Pool: "default", Transport: nmcpv1.TransportSpec{Type: nmcpv1.TransportStdio}},
			Status:     nmcpv1.MCPServerStatus{Phase: nmcpv1.PhaseRequested},
		}
		b := &nmcpv1.MCPServer{
			ObjectMeta: metav1.ObjectMeta{Name: "b", Namespace: "default"},
			Spec:       nmcpv1.MCPServerSpec{Pool: "default", Transport: nmcpv1.TransportSpec{Type: nmcpv1.TransportStdio}},
			Status:     nmcpv1.MCPServerStatus{Phase: nmcpv1.PhaseRequested},
		}

		c := fakeclient.NewClientBuilder().
			WithScheme(newScheme()).
			WithStatusSubresource(&nmcpv1.MCPServer{}, &nmcpv1.MCPPool{}).
			WithObjects(poolObj, a, b).
			WithIndex(&nmcpv1.MCPServer{}, kube.IndexFieldSpecPool, func(o client.Object) []string {
				return []string{o.(*nmcpv1.MCPServer).Spec.Pool}
			}).
			Build()
		kubeClient := kube.New(c)
		ctrl := poolcontroller.NewController(kubeClient, discardingRecorder{})

		_, err := ctrl.Reconcile(ctx, poolObj)
		Expect(err).NotTo(HaveOccurred())
		Expect(poolObj.Status.Total).To(Equal(uint32(2)))
		Expect(poolObj.Status.Pending).To(Equal(uint32(2)))
	})
})
