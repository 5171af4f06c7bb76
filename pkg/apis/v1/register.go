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

// Package v1 contains the nmcp.nwrx.io/v1 API group: MCPServer and MCPPool.
package v1

import (
	"k8s.io/apimachinery/pkg/runtime/schema"
	"sigs.k8s.io/controller-runtime/pkg/scheme"
)

const (
	// GroupName is the API group served by the nmcp CRDs.
	GroupName = "nmcp.nwrx.io"
)

var (
	// SchemeGroupVersion is the group/version used to register these objects.
	SchemeGroupVersion = schema.GroupVersion{Group: GroupName, Version: "v1"}

	// SchemeBuilder collects functions that add types to a scheme.
	SchemeBuilder = scheme.Builder{GroupVersion: SchemeGroupVersion}

	// AddToScheme adds the nmcp.nwrx.io/v1 types to a scheme.
	AddToScheme = SchemeBuilder.Register(
		&MCPServer{},
		&MCPServerList{},
		&MCPPool{},
		&MCPPoolList{},
	).AddToScheme
)

// Resource returns the GroupResource for one of this group's resource
// plural names (e.g. "mcpservers"), for callers building an apierrors.NewNotFound.
func Resource(resource string) schema.GroupResource {
	return SchemeGroupVersion.WithResource(resource).GroupResource()
}
