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

// Package crds hand-builds the apiextensions.k8s.io/v1 CustomResourceDefinition
// objects for MCPServer and MCPPool, the way controller-gen would render the
// marker comments on pkg/apis/v1's types, without actually depending on the
// controller-gen binary (a build-time tool, not something this process can
// import at runtime). It backs the CLI's `export --type=crd` subcommand.
package crds

import (
	apiextensionsv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	nmcpv1 "github.com/nwrx/nmcp/pkg/apis/v1"
)

// preserveUnknown marks a schema node whose shape is borrowed wholesale from
// a corev1/metav1 type (ResourceRequirements, EnvVarSource, Condition) and
// not worth re-describing property by property here.
func preserveUnknown() apiextensionsv1.JSONSchemaProps {
	t := true
	return apiextensionsv1.JSONSchemaProps{
		Type:                   "object",
		XPreserveUnknownFields: &t,
	}
}

func stringSchema() apiextensionsv1.JSONSchemaProps {
	return apiextensionsv1.JSONSchemaProps{Type: "string"}
}

func intSchema() apiextensionsv1.JSONSchemaProps {
	return apiextensionsv1.JSONSchemaProps{Type: "integer"}
}

// Server returns the CustomResourceDefinition for MCPServer, mirroring the
// +kubebuilder markers on pkg/apis/v1/mcpserver_types.go.
func Server() *apiextensionsv1.CustomResourceDefinition {
	specProps := map[string]apiextensionsv1.JSONSchemaProps{
		"image":   stringSchema(),
		"command": {Type: "array", Items: &apiextensionsv1.JSONSchemaPropsOrArray{Schema: ptrSchema(stringSchema())}},
		"args":    {Type: "array", Items: &apiextensionsv1.JSONSchemaPropsOrArray{Schema: ptrSchema(stringSchema())}},
		"env": {
			Type: "array",
			Items: &apiextensionsv1.JSONSchemaPropsOrArray{Schema: ptrSchema(apiextensionsv1.JSONSchemaProps{
				Type:     "object",
				Required: []string{"name"},
				Properties: map[string]apiextensionsv1.JSONSchemaProps{
					"name":      stringSchema(),
					"value":     stringSchema(),
					"valueFrom": preserveUnknown(),
				},
			})},
		},
		"resources": preserveUnknown(),
		"pool":      stringSchema(),
		"idleTimeout": intSchema(),
		"transport": {
			Type:     "object",
			Required: []string{"type"},
			Properties: map[string]apiextensionsv1.JSONSchemaProps{
				"type": {Type: "string", Enum: enumOf(string(nmcpv1.TransportStdio), string(nmcpv1.TransportSSE))},
				"port": intSchema(),
			},
		},
	}

	statusProps := map[string]apiextensionsv1.JSONSchemaProps{
		"phase": {Type: "string", Enum: enumOf(
			string(nmcpv1.PhaseIdle), string(nmcpv1.PhaseRequested), string(nmcpv1.PhaseStarting),
			string(nmcpv1.PhaseRunning), string(nmcpv1.PhaseStopping), string(nmcpv1.PhaseFailed))},
		"currentConnections": intSchema(),
		"totalRequests":       intSchema(),
		"lastRequestAt":       {Type: "string", Format: "date-time"},
		"startedAt":           {Type: "string", Format: "date-time"},
		"stoppedAt":           {Type: "string", Format: "date-time"},
		"observedGeneration":  intSchema(),
		"conditions": {
			Type:  "array",
			Items: &apiextensionsv1.JSONSchemaPropsOrArray{Schema: ptrSchema(preserveUnknown())},
		},
	}

	return build("mcpservers", "MCPServer", "MCPServerList", "mcp", specProps, statusProps, []apiextensionsv1.CustomResourceColumnDefinition{
		{Name: "Pool", Type: "string", JSONPath: ".spec.pool"},
		{Name: "Phase", Type: "string", JSONPath: ".status.phase"},
		{Name: "Age", Type: "date", JSONPath: ".metadata.creationTimestamp"},
	})
}

// Pool returns the CustomResourceDefinition for MCPPool, mirroring the
// +kubebuilder markers on pkg/apis/v1/mcppool_types.go.
func Pool() *apiextensionsv1.CustomResourceDefinition {
	specProps := map[string]apiextensionsv1.JSONSchemaProps{
		"defaultIdleTimeout": intSchema(),
		"defaultResources":   preserveUnknown(),
		"maxActive":          intSchema(),
		"maxManaged":         intSchema(),
		"maxServersLimit":    intSchema(),
	}
	statusProps := map[string]apiextensionsv1.JSONSchemaProps{
		"total":              intSchema(),
		"managed":            intSchema(),
		"unmanaged":          intSchema(),
		"active":             intSchema(),
		"pending":            intSchema(),
		"observedGeneration": intSchema(),
		"conditions": {
			Type:  "array",
			Items: &apiextensionsv1.JSONSchemaPropsOrArray{Schema: ptrSchema(preserveUnknown())},
		},
	}
	return build("mcppools", "MCPPool", "MCPPoolList", "mcpp", specProps, statusProps, []apiextensionsv1.CustomResourceColumnDefinition{
		{Name: "InUse", Type: "integer", JSONPath: ".status.active"},
		{Name: "Waiting", Type: "integer", JSONPath: ".status.pending"},
		{Name: "Age", Type: "date", JSONPath: ".metadata.creationTimestamp"},
	})
}

func build(plural, kind, listKind, shortName string, specProps, statusProps map[string]apiextensionsv1.JSONSchemaProps, columns []apiextensionsv1.CustomResourceColumnDefinition) *apiextensionsv1.CustomResourceDefinition {
	return &apiextensionsv1.CustomResourceDefinition{
		TypeMeta: metav1.TypeMeta{APIVersion: "apiextensions.k8s.io/v1", Kind: "CustomResourceDefinition"},
		ObjectMeta: metav1.ObjectMeta{
			Name: plural + "." + nmcpv1.GroupName,
		},
		Spec: apiextensionsv1.CustomResourceDefinitionSpec{
			Group: nmcpv1.GroupName,
			Names: apiextensionsv1.CustomResourceDefinitionNames{
				Plural:     plural,
				Kind:       kind,
				ListKind:   listKind,
				ShortNames: []string{shortName},
			},
			Scope: apiextensionsv1.NamespaceScoped,
			Versions: []apiextensionsv1.CustomResourceDefinitionVersion{
				{
					Name:    "v1",
					Served:  true,
					Storage: true,
					Subresources: &apiextensionsv1.CustomResourceSubresources{
						Status: &apiextensionsv1.CustomResourceSubresourceStatus{},
					},
					AdditionalPrinterColumns: columns,
					Schema: &apiextensionsv1.CustomResourceValidation{
						OpenAPIV3Schema: &apiextensionsv1.JSONSchemaProps{
							Type:     "object",
							Required: []string{"spec"},
							Properties: map[string]apiextensionsv1.JSONSchemaProps{
								"spec":   {Type: "object", Properties: specProps},
								"status": {Type: "object", Properties: statusProps},
							},
						},
					},
				},
			},
		},
	}
}

func ptrSchema(s apiextensionsv1.JSONSchemaProps) *apiextensionsv1.JSONSchemaProps { return &s }

func enumOf(values ...string) []apiextensionsv1.JSON {
	out := make([]apiextensionsv1.JSON, 0, len(values))
	for _, v := range values {
		out = append(out, apiextensionsv1.JSON{Raw: []byte(`"` + v + `"`)})
	}
	return out
}
