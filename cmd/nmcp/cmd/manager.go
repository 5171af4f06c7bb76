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

import "github.com/spf13/cobra"

// managerCmd runs both the reconciliation engine and the gateway in one
// process, the common single-binary deployment shape; --disable-operator
// and --disable-api still apply if the caller wants to carve one back out.
var managerCmd = &cobra.Command{
	Use:   "manager",
	Short: "Run the reconciliation engine and the HTTP gateway together",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(false, false)
	},
}
