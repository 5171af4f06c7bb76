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

package server_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	clocktesting "k8s.io/utils/clock/testing"
	"sigs.k8s.io/controller-runtime/pkg/client"

	nmcpv1 "github.com/nwrx/nmcp/pkg/apis/v1"
	servercontroller "github.com/nwrx/nmcp/pkg/controllers/server"
)

var _ = Describe("Server Controller", func() {
	var (
		ctx        context.Context
		kubeClient = newFakeClient
	)

	BeforeEach(func() {
		ctx = context.Background()
	})

	It("admits and materializes a Requested server within pool capacity", func() {
		pool := &nmcpv1.MCPPool{
			ObjectMeta: metav1.ObjectMeta{Name: "default", Namespace: "default"},
			Spec:       nmcpv1.MCPPoolSpec{MaxActive: 5, MaxManaged: 5},
			Status:     nmcpv1.MCPPoolStatus{Active: 0},
		}
		server := &nmcpv1.MCPServer{
			ObjectMeta: metav1.ObjectMeta{Name: "ctx7", Namespace: "default"},
			Spec: nmcpv1.MCPServerSpec{
				Image:     "mcp/context7:latest",
				Pool:      "default",
				Transport: nmcpv1.TransportSpec{Type: nmcpv1.TransportStdio},
			},
			Status: nmcpv1.MCPServerStatus{Phase: nmcpv1.PhaseRequested},
		}
		c := kubeClient(pool, server)
		fakeClock := clocktesting.NewFakeClock(time.Now())
		ctrl := servercontroller.NewController(fakeClock, c, discardingRecorder{})

		_, err := ctrl.Reconcile(ctx, server)
		Expect(err).NotTo(HaveOccurred())
		Expect(server.Status.Phase).To(Equal(nmcpv1.PhaseStarting))

		pod := &corev1.Pod{}
		Expect(c.Get(ctx, client.ObjectKey{Namespace: "default", Name: "ctx7"}, pod)).To(Succeed())
		Expect(pod.Spec.Containers[0].Image).To(Equal("mcp/context7:latest"))
	})

	It("keeps a Requested server Requested when the pool is at capacity", func() {
		pool := &nmcpv1.MCPPool{
			ObjectMeta: metav1.ObjectMeta{Name: "default", Namespace: "default"},
			Spec:       nmcpv1.MCPPoolSpec{MaxActive: 1, MaxManaged: 5},
			Status:     nmcpv1.MCPPoolStatus{Active: 1},
		}
		server := &nmcpv1.MCPServer{
			ObjectMeta: metav1.ObjectMeta{Name: "b", Namespace: "default"},
			Spec: nmcpv1.MCPServerSpec{
				Pool:      "default",
				Transport: nmcpv1.TransportSpec{Type: nmcpv1.TransportStdio},
			},
			Status: nmcpv1.MCPServerStatus{Phase: nmcpv1.PhaseRequested},
		}
		c := kubeClient(pool, server)
		fakeClock := clocktesting.NewFakeClock(time.Now())
		ctrl := servercontroller.NewController(fakeClock, c, discardingRecorder{})

		_, err := ctrl.Reconcile(ctx, server)
		Expect(err).NotTo(HaveOccurred())
		Expect(server.Status.Phase).To(Equal(nmcpv1.PhaseRequested))

		pod := &corev1.Pod{}
		Expect(c.Get(ctx, client.ObjectKey{Namespace: "default", Name: "b"}, pod)).To(HaveOccurred())
	})

	It("reaps a Running server past its idle timeout", func() {
		now := time.Now()
		fakeClock := clocktesting.NewFakeClock(now)
		started := metav1.NewTime(now.Add(-time.Hour))
		server := &nmcpv1.MCPServer{
			ObjectMeta: metav1.ObjectMeta{Name: "ctx7", Namespace: "default"},
			Spec: nmcpv1.MCPServerSpec{
				Pool:        "default",
				IdleTimeout: 5,
				Transport:   nmcpv1.TransportSpec{Type: nmcpv1.TransportStdio},
			},
			Status: nmcpv1.MCPServerStatus{
				Phase:     nmcpv1.PhaseRunning,
				StartedAt: &started,
			},
		}
		pool := &nmcpv1.MCPPool{
			ObjectMeta: metav1.ObjectMeta{Name: "default", Namespace: "default"},
			Spec:       nmcpv1.MCPPoolSpec{MaxActive: 5, MaxManaged: 5},
		}
		c := kubeClient(pool, server)
		ctrl := servercontroller.NewController(fakeClock, c, discardingRecorder{})

		_, err := ctrl.Reconcile(ctx, server)
		Expect(err).NotTo(HaveOccurred())
		Expect(server.Status.Phase).To(Equal(nmcpv1.PhaseStopping))

		pod := &corev1.Pod{}
		Expect(c.Get(ctx, client.ObjectKey{Namespace: "default", Name: "ctx7"}, pod)).To(HaveOccurred())

		_, err = ctrl.Reconcile(ctx, server)
		Expect(err).NotTo(HaveOccurred())
		Expect(server.Status.Phase).To(Equal(nmcpv1.PhaseIdle))
		Expect(server.Status.StoppedAt).NotTo(BeNil())
	})

	It("is idempotent: a second reconcile with no change writes nothing new", func() {
		server := &nmcpv1.MCPServer{
			ObjectMeta: metav1.ObjectMeta{Name: "ctx7", Namespace: "default"},
			Spec: nmcpv1.MCPServerSpec{
				Pool:      "default",
				Transport: nmcpv1.TransportSpec{Type: nmcpv1.TransportStdio},
			},
			Status: nmcpv1.MCPServerStatus{Phase: nmcpv1.PhaseIdle},
		}
		pool := &nmcpv1.MCPPool{
			ObjectMeta: metav1.ObjectMeta{Name: "default", Namespace: "default"},
			Spec:       nmcpv1.MCPPoolSpec{MaxActive: 5, MaxManaged: 5},
		}
		c := kubeClient(pool, server)
		fakeClock := clocktesting.NewFakeClock(time.Now())
		ctrl := servercontroller.NewController(fakeClock, c, discardingRecorder{})

		_, err := ctrl.Reconcile(ctx, server)
		Expect(err).NotTo(HaveOccurred())
		generationAfterFirst := server.ResourceVersion

		_, err = ctrl.Reconcile(ctx, server)
		Expect(err).NotTo(HaveOccurred())
		Expect(server.ResourceVersion).To(Equal(generationAfterFirst))
	})
})
