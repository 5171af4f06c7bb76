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

// Package resources holds pure, deterministic functions that turn a
// validated MCPServer (and its owning MCPPool's defaults) into the Pod and
// Service Kubernetes objects that materialize it. Nothing here talks to the
// API server; callers diff the output against observed state.
package resources

import (
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/util/intstr"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"

	nmcpv1 "github.com/nwrx/nmcp/pkg/apis/v1"
)

// defaultStdioPort is the container port the stdio bridge listens on when a
// Service is still required to give the gateway something routable to dial
// for exec-attach.
const defaultStdioPort = 8080

// ContainerName is the name of the sole container in every Pod this package
// builds.
const ContainerName = "mcp-server"

// Labels returns the label set every Pod/Service built for server carries.
func Labels(server *nmcpv1.MCPServer) map[string]string {
	return map[string]string{
		nmcpv1.LabelManagedBy: nmcpv1.ManagedByValue,
		nmcpv1.LabelServer:    server.Name,
		nmcpv1.LabelPool:      server.Spec.Pool,
	}
}

// effectiveResources resolves the server/pool resource-requirements
// precedence: an explicit server override wins, otherwise the pool's
// defaults, otherwise no requirements at all.
func effectiveResources(server *nmcpv1.MCPServer, pool *nmcpv1.MCPPool) *corev1.ResourceRequirements {
	if server.Spec.Resources != nil {
		return server.Spec.Resources
	}
	if pool != nil && pool.Spec.DefaultResources != nil {
		return pool.Spec.DefaultResources
	}
	return nil
}

// expandEnv lowers the MCPServer's env list to corev1.EnvVar, resolving
// ValueFrom sources 1:1 onto the equivalent corev1 selector.
func expandEnv(vars []nmcpv1.EnvVar) []corev1.EnvVar {
	if len(vars) == 0 {
		return nil
	}
	out := make([]corev1.EnvVar, 0, len(vars))
	for _, v := range vars {
		ev := corev1.EnvVar{Name: v.Name, Value: v.Value}
		if v.ValueFrom != nil {
			ev.ValueFrom = &corev1.EnvVarSource{
				ConfigMapKeyRef:  v.ValueFrom.ConfigMapKeyRef,
				SecretKeyRef:     v.ValueFrom.SecretKeyRef,
				FieldRef:         v.ValueFrom.FieldRef,
				ResourceFieldRef: v.ValueFrom.ResourceFieldRef,
			}
		}
		out = append(out, ev)
	}
	return out
}

// Port returns the container port the Service should target: the declared
// sse port, or the stdio bridge's fixed port.
func Port(server *nmcpv1.MCPServer) int32 {
	if server.Spec.Transport.Type == nmcpv1.TransportSSE {
		return server.Spec.Transport.Port
	}
	return defaultStdioPort
}

// BuildPod returns the desired Pod for server. The caller is responsible for
// setting the owner reference (see SetOwner) and for the create/adopt
// decision against any Pod already observed under this name.
func BuildPod(server *nmcpv1.MCPServer, pool *nmcpv1.MCPPool) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      server.Name,
			Namespace: server.Namespace,
			Labels:    Labels(server),
		},
		Spec: corev1.PodSpec{
			RestartPolicy: corev1.RestartPolicyNever,
			Containers: []corev1.Container{
				{
					Name:      ContainerName,
					Image:     server.Spec.Image,
					Command:   server.Spec.Command,
					Args:      server.Spec.Args,
					Env:       expandEnv(server.Spec.Env),
					Resources: resourceRequirementsOrZero(effectiveResources(server, pool)),
					Ports: []corev1.ContainerPort{
						{ContainerPort: Port(server)},
					},
					Stdin:     server.Spec.Transport.Type == nmcpv1.TransportStdio,
					StdinOnce: false,
					TTY:       false,
				},
			},
		},
	}
}

func resourceRequirementsOrZero(r *corev1.ResourceRequirements) corev1.ResourceRequirements {
	if r == nil {
		return corev1.ResourceRequirements{}
	}
	return *r
}

// BuildService returns the desired Service for server, selecting the Pod
// BuildPod produces and exposing the transport port.
func BuildService(server *nmcpv1.MCPServer) *corev1.Service {
	port := Port(server)
	return &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{
			Name:      server.Name,
			Namespace: server.Namespace,
			Labels:    Labels(server),
		},
		Spec: corev1.ServiceSpec{
			Selector: map[string]string{
				nmcpv1.LabelManagedBy: nmcpv1.ManagedByValue,
				nmcpv1.LabelServer:    server.Name,
			},
			Ports: []corev1.ServicePort{
				{
					Name:       "transport",
					Port:       port,
					TargetPort: intstr.FromInt32(port),
				},
			},
		},
	}
}

// SetOwner stamps an owner reference to server onto obj so the Kubernetes
// garbage collector cascades deletion, and wires the controller field so
// the server controller's Owns() watch fires on changes to it.
func SetOwner(server *nmcpv1.MCPServer, obj metav1.Object, scheme *runtime.Scheme) error {
	return controllerutil.SetControllerReference(server, obj, scheme)
}

// MatchesLabels reports whether obj carries the labels this package stamps
// for server, used by the server controller to decide between adopting a
// pre-existing Pod/Service and treating a name collision as foreign.
func MatchesLabels(got map[string]string, server *nmcpv1.MCPServer) bool {
	want := Labels(server)
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}

// Drifted reports whether the observed Pod differs from server in a field
// that can only be corrected by delete+recreate (image, command, args, env).
// Resource and label changes are not considered drift.
func Drifted(observed *corev1.Pod, server *nmcpv1.MCPServer, pool *nmcpv1.MCPPool) bool {
	if len(observed.Spec.Containers) != 1 {
		return true
	}
	c := observed.Spec.Containers[0]
	want := BuildPod(server, pool).Spec.Containers[0]
	if c.Image != want.Image {
		return true
	}
	if !stringSlicesEqual(c.Command, want.Command) {
		return true
	}
	if !stringSlicesEqual(c.Args, want.Args) {
		return true
	}
	if len(c.Env) != len(want.Env) {
		return true
	}
	for i := range c.Env {
		if c.Env[i].Name != want.Env[i].Name || c.Env[i].Value != want.Env[i].Value {
			return true
		}
	}
	return false
}

func stringSlicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
