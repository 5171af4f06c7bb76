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

import (
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// MCPPoolSpec is the declared capacity and server defaults for a pool.
type MCPPoolSpec struct {
	// DefaultIdleTimeout seeds MCPServerSpec.IdleTimeout for servers in this
	// pool that don't set their own.
	// +kubebuilder:default=60
	// +kubebuilder:validation:Minimum=0
	// +optional
	DefaultIdleTimeout int64 `json:"defaultIdleTimeout,omitempty"`

	// DefaultResources are applied to a server's Pod when the server itself
	// specifies none.
	// +optional
	DefaultResources *corev1.ResourceRequirements `json:"defaultResources,omitempty"`

	// MaxActive bounds how many servers in this pool may be Starting or
	// Running at once.
	// +kubebuilder:default=100
	// +optional
	MaxActive uint32 `json:"maxActive,omitempty"`

	// MaxManaged bounds how many servers this pool will admit into its
	// managed set at all (superset of MaxActive).
	// +kubebuilder:default=100
	// +optional
	MaxManaged uint32 `json:"maxManaged,omitempty"`

	// MaxServersLimit is a deprecated alias for MaxManaged, retained for
	// schema compatibility with the source this system was distilled from.
	// When set and MaxManaged is not, MaxManaged defaults from this field.
	//
	// Deprecated: use MaxManaged.
	// +optional
	MaxServersLimit *uint32 `json:"maxServersLimit,omitempty"`
}

// MCPPoolStatus holds derived, never-authoritative capacity counters.
type MCPPoolStatus struct {
	// Total is the number of servers referencing this pool, managed or not.
	// +optional
	Total uint32 `json:"total,omitempty"`
	// Managed is the oldest MaxManaged servers by creation time.
	// +optional
	Managed uint32 `json:"managed,omitempty"`
	// Unmanaged is Total-Managed.
	// +optional
	Unmanaged uint32 `json:"unmanaged,omitempty"`
	// Active is managed servers with phase Starting or Running.
	// +optional
	Active uint32 `json:"active,omitempty"`
	// Pending is managed servers with phase Requested.
	// +optional
	Pending uint32 `json:"pending,omitempty"`

	// +optional
	// +listType=map
	// +listMapKey=type
	Conditions []metav1.Condition `json:"conditions,omitempty"`

	// +optional
	ObservedGeneration int64 `json:"observedGeneration,omitempty"`
}

// MCPPool is the Schema for the MCPPool API.
// +kubebuilder:object:root=true
// +kubebuilder:resource:path=mcppools,scope=Namespaced,shortName=mcpp
// +kubebuilder:subresource:status
// +kubebuilder:printcolumn:name="InUse",type="integer",JSONPath=".status.active"
// +kubebuilder:printcolumn:name="Waiting",type="integer",JSONPath=".status.pending"
// +kubebuilder:printcolumn:name="Age",type="date",JSONPath=".metadata.creationTimestamp"
type MCPPool struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	// +required
	Spec   MCPPoolSpec   `json:"spec"`
	Status MCPPoolStatus `json:"status,omitempty"`
}

// MCPPoolList contains a list of MCPPool.
// +kubebuilder:object:root=true
type MCPPoolList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []MCPPool `json:"items"`
}

// EffectiveMaxManaged resolves the maxManaged/maxServersLimit open question:
// maxManaged wins when set; otherwise it's seeded from the deprecated field;
// otherwise the schema default (100) applies.
func (p *MCPPool) EffectiveMaxManaged() uint32 {
	if p.Spec.MaxManaged != 0 {
		return p.Spec.MaxManaged
	}
	if p.Spec.MaxServersLimit != nil {
		return *p.Spec.MaxServersLimit
	}
	return 100
}
