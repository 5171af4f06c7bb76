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

package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	apiextensionsv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"
	k8syaml "sigs.k8s.io/yaml"

	"github.com/nwrx/nmcp/pkg/crds"
)

var (
	exportType     string
	exportResource string
	exportFormat   string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Render a static artifact (currently: CustomResourceDefinitions) to stdout",
	RunE: func(cmd *cobra.Command, args []string) error {
		if exportType != "crd" {
			return fmt.Errorf("unsupported --type %q, only \"crd\" is supported", exportType)
		}

		var defs []*apiextensionsv1.CustomResourceDefinition
		switch exportResource {
		case "server":
			defs = append(defs, crds.Server())
		case "pool":
			defs = append(defs, crds.Pool())
		case "", "all":
			defs = append(defs, crds.Server(), crds.Pool())
		default:
			return fmt.Errorf("unsupported --resource %q, must be one of server, pool", exportResource)
		}

		for i, def := range defs {
			if i > 0 && exportFormat == "yaml" {
				fmt.Println("---")
			}
			out, err := renderCRD(def, exportFormat)
			if err != nil {
				return err
			}
			fmt.Println(out)
		}
		return nil
	},
}

func renderCRD(def *apiextensionsv1.CustomResourceDefinition, format string) (string, error) {
	switch format {
	case "", "yaml":
		b, err := k8syaml.Marshal(def)
		return string(b), err
	case "json":
		b, err := json.MarshalIndent(def, "", "  ")
		return string(b), err
	default:
		return "", fmt.Errorf("unsupported --format %q, must be one of json, yaml", format)
	}
}

func init() {
	exportCmd.Flags().StringVar(&exportType, "type", "crd", "Artifact type to export")
	exportCmd.Flags().StringVar(&exportResource, "resource", "all", "Resource to export: pool, server, or all")
	exportCmd.Flags().StringVar(&exportFormat, "format", "yaml", "Output format: json or yaml")
}
