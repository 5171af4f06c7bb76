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
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/samber/lo"
	"k8s.io/apimachinery/pkg/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	fakeclient "sigs.k8s.io/controller-runtime/pkg/client/fake"

	nmcpv1 "github.com/nwrx/nmcp/pkg/apis/v1"
	"github.com/nwrx/nmcp/pkg/events"
	"github.com/nwrx/nmcp/pkg/kube"
)

func TestServer(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Server Controller")
}

// discardingRecorder swallows every event; tests assert state, not events.
type discardingRecorder struct{}

func (discardingRecorder) Publish(...events.Event) {}

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
		Build()
	return kube.New(c)
}
