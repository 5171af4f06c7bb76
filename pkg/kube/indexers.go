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

package kube

import (
	"context"

	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/manager"

	nmcpv1 "github.com/nwrx/nmcp/pkg/apis/v1"
)

// IndexFieldSpecPool is the field-indexer key the pool controller relies on
// to list its managed servers in O(matching) instead of scanning the
// namespace.
const IndexFieldSpecPool = "spec.pool"

// RegisterIndexers installs the field indexers this package's list helpers
// depend on. Call once against the manager before starting it.
func RegisterIndexers(ctx context.Context, mgr manager.Manager) error {
	return mgr.GetFieldIndexer().IndexField(ctx, &nmcpv1.MCPServer{}, IndexFieldSpecPool, func(o client.Object) []string {
		server := o.(*nmcpv1.MCPServer)
		return []string{server.Spec.Pool}
	})
}
