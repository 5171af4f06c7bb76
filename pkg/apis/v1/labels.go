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

package v1

const (
	// LabelManagedBy is stamped onto every Pod/Service the resource builder
	// produces so ownership can be recognized without an ownerReference lookup.
	LabelManagedBy = "app.kubernetes.io/managed-by"
	// ManagedByValue is the only value nmcp ever writes to LabelManagedBy.
	ManagedByValue = "nmcp"

	// LabelServer names the owning MCPServer.
	LabelServer = GroupName + "/server"
	// LabelPool names the owning MCPPool.
	LabelPool = GroupName + "/pool"
)
