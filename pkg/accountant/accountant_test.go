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

package accountant_test

import (
	"context"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/samber/lo"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	fakeclock "k8s.io/utils/clock/testing"
	"sigs.k8s.io/controller-runtime/pkg/client"
	fakeclient "sigs.k8s.io/controller-runtime/pkg/client/fake"

	"github.com/nwrx/nmcp/pkg/accountant"
	nmcpv1 "github.com/nwrx/nmcp/pkg/apis/v1"
	"github.com/nwrx/nmcp/pkg/kube"
)

func TestAccountant(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Accountant")
}

func newScheme() *runtime.Scheme {
	scheme := runtime.NewScheme()
	lo.Must0(clientgoscheme.AddToScheme(scheme))
	lo.Must0(nmcpv1.AddToScheme(scheme))
	return scheme
}

var _ = Describe("Accountant", func() {
	It("flushes a close back to zero even when no request ever landed", func() {
		ctx := context.Background()
		server := &nmcpv1.MCPServer{
			ObjectMeta: metav1.ObjectMeta{Name: "ctx7", Namespace: "default"},
			Status:     nmcpv1.MCPServerStatus{Phase: nmcpv1.PhaseRunning},
		}
		c := fakeclient.NewClientBuilder().WithScheme(newScheme()).WithObjects(server).
			WithStatusSubresource(&nmcpv1.MCPServer{}).Build()
		kubeClient := kube.New(c)
		a := accountant.New(kubeClient, fakeclock.NewFakeClock(time.Now()))

		key := types.NamespacedName{Namespace: "default", Name: "ctx7"}

		a.Open(key)
		a.Flush(ctx, key)

		current := &nmcpv1.MCPServer{}
		Expect(c.Get(ctx, client.ObjectKey{Namespace: "default", Name: "ctx7"}, current)).To(Succeed())
		Expect(current.Status.CurrentConnections).To(Equal(uint32(1)))

		a.Close(key)
		a.Flush(ctx, key)

		Expect(c.Get(ctx, client.ObjectKey{Namespace: "default", Name: "ctx7"}, current)).To(Succeed())
		Expect(current.Status.CurrentConnections).To(Equal(uint32(0)))
	})

	It("does not re-flush an unchanged zero count", func() {
		ctx := context.Background()
		server := &nmcpv1.MCPServer{
			ObjectMeta: metav1.ObjectMeta{Name: "ctx7", Namespace: "default"},
			Status:     nmcpv1.MCPServerStatus{Phase: nmcpv1.PhaseIdle},
		}
		c := fakeclient.NewClientBuilder().WithScheme(newScheme()).WithObjects(server).
			WithStatusSubresource(&nmcpv1.MCPServer{}).Build()
		a := accountant.New(kube.New(c), fakeclock.NewFakeClock(time.Now()))

		key := types.NamespacedName{Namespace: "default", Name: "ctx7"}
		a.Flush(ctx, key)
		a.Flush(ctx, key)

		openConns, pending := a.Snapshot(key)
		Expect(openConns).To(Equal(int32(0)))
		Expect(pending).To(Equal(uint64(0)))
	})
})
