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

// TerminationFinalizer guarantees Pod/Service cleanup before an MCPServer is removed.
const TerminationFinalizer = GroupName + "/termination"

// Phase is the coarse lifecycle state of a server. It is a closed tagged
// variant in-process; at the wire (CRD) level it remains a plain string for
// schema compatibility.
// +kubebuilder:validation:Enum=Idle;Requested;Starting;Running;Stopping;Failed
type Phase string

const (
	PhaseIdle      Phase = "Idle"
	PhaseRequested Phase = "Requested"
	PhaseStarting  Phase = "Starting"
	PhaseRunning   Phase = "Running"
	PhaseStopping  Phase = "Stopping"
	PhaseFailed    Phase = "Failed"
)

// Condition types set on MCPServer.Status.Conditions.
const (
	ConditionTypeReady            = "Ready"
	ConditionTypePoolNotFound     = "PoolNotFound"
	ConditionTypeAwaitingCapacity = "AwaitingCapacity"
	ConditionTypeUnmanaged        = "Unmanaged"
	ConditionTypePodFailed        = "PodFailed"
	ConditionTypeInvalidSpec      = "InvalidSpec"
)

// TransportKind discriminates the TransportSpec tagged union.
// +kubebuilder:validation:Enum=stdio;sse
type TransportKind string

const (
	TransportStdio TransportKind = "stdio"
	TransportSSE   TransportKind = "sse"
)

// TransportSpec is a closed tagged union: {stdio} | {sse, port}. Port is only
// meaningful, and only required, when Type is sse.
type TransportSpec struct {
	// +kubebuilder:validation:Required
	Type TransportKind `json:"type"`

	// Port is the container port the sse transport listens on.
	// +kubebuilder:validation:Minimum=1
	// +kubebuilder:validation:Maximum=65535
	// +optional
	Port int32 `json:"port,omitempty"`
}

// EnvSource mirrors corev1.EnvVarSource but is re-declared here so the
// MCPServer schema stays self-contained (configmap/secret/field/resource refs).
type EnvSource struct {
	// +optional
	ConfigMapKeyRef *corev1.ConfigMapKeySelector `json:"configMapKeyRef,omitempty"`
	// +optional
	SecretKeyRef *corev1.SecretKeySelector `json:"secretKeyRef,omitempty"`
	// +optional
	FieldRef *corev1.ObjectFieldSelector `json:"fieldRef,omitempty"`
	// +optional
	ResourceFieldRef *corev1.ResourceFieldSelector `json:"resourceFieldRef,omitempty"`
}

// EnvVar is a name/value pair, optionally sourced from elsewhere in the cluster.
type EnvVar struct {
	// +kubebuilder:validation:Required
	Name string `json:"name"`
	// +optional
	Value string `json:"value,omitempty"`
	// +optional
	ValueFrom *EnvSource `json:"valueFrom,omitempty"`
}

// MCPServerSpec describes one MCP workload.
type MCPServerSpec struct {
	// Image is the container image reference to run.
	// +kubebuilder:default="mcp/fetch:latest"
	// +optional
	Image string `json:"image,omitempty"`

	// Command overrides the container entrypoint.
	// +optional
	Command []string `json:"command,omitempty"`

	// Args overrides the container arguments.
	// +optional
	Args []string `json:"args,omitempty"`

	// Env lists environment variables to set in the container.
	// +optional
	Env []EnvVar `json:"env,omitempty"`

	// Resources are the compute resource requirements for the container. When
	// unset, the owning pool's defaultResources apply.
	// +optional
	Resources *corev1.ResourceRequirements `json:"resources,omitempty"`

	// Pool is the name of the MCPPool this server belongs to.
	// +kubebuilder:default="default"
	// +optional
	Pool string `json:"pool,omitempty"`

	// IdleTimeout is the number of seconds of zero connections after which a
	// Running server is reaped.
	// +kubebuilder:default=60
	// +kubebuilder:validation:Minimum=0
	// +optional
	IdleTimeout int64 `json:"idleTimeout,omitempty"`

	// Transport is the in-band communication channel with the MCP process.
	// +kubebuilder:validation:Required
	Transport TransportSpec `json:"transport"`
}

// MCPServerStatus is the observed state of an MCPServer, entirely derived and
// recomputed by the server controller; never authoritative.
type MCPServerStatus struct {
	// +kubebuilder:default=Idle
	// +optional
	Phase Phase `json:"phase,omitempty"`

	// +optional
	CurrentConnections uint32 `json:"currentConnections,omitempty"`

	// TotalRequests is monotonic within a server's lifecycle.
	// +optional
	TotalRequests uint64 `json:"totalRequests,omitempty"`

	// +optional
	LastRequestAt *metav1.Time `json:"lastRequestAt,omitempty"`
	// +optional
	StartedAt *metav1.Time `json:"startedAt,omitempty"`
	// +optional
	StoppedAt *metav1.Time `json:"stoppedAt,omitempty"`

	// +optional
	// +patchMergeKey=type
	// +patchStrategy=merge
	// +listType=map
	// +listMapKey=type
	Conditions []metav1.Condition `json:"conditions,omitempty"`

	// ObservedGeneration is the generation most recently acted on.
	// +optional
	ObservedGeneration int64 `json:"observedGeneration,omitempty"`
}

// MCPServer is the Schema for the MCPServer API.
// +kubebuilder:object:root=true
// +kubebuilder:resource:path=mcpservers,scope=Namespaced,shortName=mcp
// +kubebuilder:subresource:status
// +kubebuilder:printcolumn:name="Pool",type="string",JSONPath=".spec.pool"
// +kubebuilder:printcolumn:name="Phase",type="string",JSONPath=".status.phase"
// +kubebuilder:printcolumn:name="Age",type="date",JSONPath=".metadata.creationTimestamp"
type MCPServer struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	// +kubebuilder:validation:XValidation:rule="self.transport.type == oldSelf.transport.type",message="transport.type is immutable"
	// +required
	Spec   MCPServerSpec   `json:"spec"`
	Status MCPServerStatus `json:"status,omitempty"`
}

// MCPServerList contains a list of MCPServer.
// +kubebuilder:object:root=true
type MCPServerList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []MCPServer `json:"items"`
}

// IsManaged reports whether this server carries the labels the resource
// builder (pkg/resources) stamps onto everything it owns.
func (s *MCPServer) IsManaged() bool {
	return s.Labels[LabelManagedBy] == ManagedByValue
}
